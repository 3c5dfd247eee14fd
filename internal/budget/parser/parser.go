// Package parser turns raw inbound SMS text into a typed intent. It is a
// pure function of its input: no I/O, no clock, no logger.
package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/centsible/smsbudget/internal/budget/domain"
)

const (
	// MinBudgetDollars and MaxBudgetDollars bound what a parsed amount may be.
	MinBudgetDollars = 100
	MaxBudgetDollars = 100000
)

var commandWords = map[string]domain.CommandWord{
	"STOP":        domain.CommandStop,
	"UNSUBSCRIBE": domain.CommandStop,
	"CANCEL":      domain.CommandStop,
	"END":         domain.CommandStop,
	"QUIT":        domain.CommandStop,
	"START":       domain.CommandStart,
	"YES":         domain.CommandStart,
	"UNSTOP":      domain.CommandStart,
	"HELP":        domain.CommandHelp,
	"INFO":        domain.CommandHelp,
}

// Leading phrases stripped before numeric matching. Longer phrases first so
// "my budget is" wins over "budget".
var leadingPhrases = []string{
	"my budget is",
	"i want",
	"make it",
	"budget",
	"goal",
	"limit",
	"set",
}

var (
	reBareInteger   = regexp.MustCompile(`^\d+$`)
	reCommaGrouped  = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
	reDecimalAmount = regexp.MustCompile(`^\d+\.\d+$`)
	// Permissive by intent: matches any 3-6 digit run anywhere in the text,
	// which can pick up digits embedded in unrelated content (dates, zip
	// codes). Product has chosen to keep this; do not tighten without a
	// product decision.
	reDigitRun = regexp.MustCompile(`\d{3,6}`)
)

// Written-number fallback, tried by substring containment when no numeric
// pattern matches. Longer phrases first.
var writtenNumbers = []struct {
	phrase string
	amount int64
}{
	{"twenty five hundred", 2500},
	{"fifteen hundred", 1500},
	{"ten thousand", 10000},
	{"five thousand", 5000},
	{"four thousand", 4000},
	{"three thousand", 3000},
	{"two thousand", 2000},
	{"one thousand", 1000},
	{"a thousand", 1000},
	{"five hundred", 500},
	{"four hundred", 400},
	{"three hundred", 300},
	{"two hundred", 200},
	{"one hundred", 100},
}

// Parse maps one message body to a ParsedIntent.
func Parse(text string) domain.ParsedIntent {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.InvalidIntent(text)
	}

	if cmd, ok := commandWords[strings.ToUpper(trimmed)]; ok {
		return domain.CommandIntent(cmd)
	}

	working := stripLeadingPhrases(strings.ToLower(trimmed))
	working = strings.TrimSpace(strings.ReplaceAll(working, "$", ""))

	if amount, ok := matchNumeric(working, trimmed); ok {
		if amount < MinBudgetDollars || amount > MaxBudgetDollars {
			return domain.InvalidIntent(text)
		}
		return domain.SetBudgetIntent(amount)
	}

	lower := strings.ToLower(trimmed)
	for _, wn := range writtenNumbers {
		if strings.Contains(lower, wn.phrase) {
			if wn.amount < MinBudgetDollars || wn.amount > MaxBudgetDollars {
				return domain.InvalidIntent(text)
			}
			return domain.SetBudgetIntent(wn.amount)
		}
	}

	return domain.InvalidIntent(text)
}

func stripLeadingPhrases(s string) string {
	for {
		stripped := false
		for _, phrase := range leadingPhrases {
			if s == phrase {
				return ""
			}
			if strings.HasPrefix(s, phrase+" ") {
				s = strings.TrimSpace(strings.TrimPrefix(s, phrase))
				stripped = true
				break
			}
		}
		if !stripped {
			return s
		}
	}
}

// matchNumeric tries the numeric patterns in priority order: bare integer,
// comma-grouped integer, decimal, then a 3-6 digit run anywhere in the
// original text. Returns the amount rounded to the nearest whole dollar.
func matchNumeric(cleaned, original string) (int64, bool) {
	if reBareInteger.MatchString(cleaned) {
		n, err := strconv.ParseInt(cleaned, 10, 64)
		return n, err == nil
	}

	if reCommaGrouped.MatchString(cleaned) {
		n, err := strconv.ParseInt(strings.ReplaceAll(cleaned, ",", ""), 10, 64)
		return n, err == nil
	}

	noCommas := strings.ReplaceAll(cleaned, ",", "")
	if reDecimalAmount.MatchString(noCommas) {
		f, err := strconv.ParseFloat(noCommas, 64)
		if err != nil {
			return 0, false
		}
		return int64(math.Round(f)), true
	}

	if run := reDigitRun.FindString(original); run != "" {
		n, err := strconv.ParseInt(run, 10, 64)
		return n, err == nil
	}

	return 0, false
}
