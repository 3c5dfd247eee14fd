package messaging

import "strings"

// MaskPhone redacts a phone number for logging. At most the leading seven
// characters survive; everything after is starred. Short strings are fully
// masked.
func MaskPhone(number string) string {
	const visible = 7
	if len(number) <= visible {
		return strings.Repeat("*", len(number))
	}
	return number[:visible] + strings.Repeat("*", len(number)-visible)
}
