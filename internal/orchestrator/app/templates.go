package app

import (
	"fmt"
	"strconv"
)

// Reply texts. Kept in one place so copy changes never touch flow logic.

const (
	helpReply = "Reply with a dollar amount (like 3000) to set your monthly budget. " +
		"Text STOP to unsubscribe or START to resubscribe."

	stopReply = "You are unsubscribed and will receive no more messages. " +
		"Text START at any time to resubscribe."

	startReply = "Welcome back! You will receive daily budget updates again. " +
		"Text HELP for options."

	notUnderstoodReply = "Sorry, we didn't understand that. Reply with a dollar amount " +
		"(like 3000) to set your monthly budget, or HELP for options."
)

func firstGoalReply(amountDollars, dailyTarget int64) string {
	return fmt.Sprintf("Your monthly budget is set to $%s. You can spend about $%s per day "+
		"for the rest of this period. Text HELP for options.",
		formatDollars(amountDollars), formatDollars(dailyTarget))
}

func updatedGoalReply(amountDollars, previousDollars, dailyTarget int64) string {
	return fmt.Sprintf("Your monthly budget is now $%s (was $%s). You can spend about $%s "+
		"per day for the rest of this period.",
		formatDollars(amountDollars), formatDollars(previousDollars), formatDollars(dailyTarget))
}

// formatDollars renders a whole-dollar amount with comma grouping.
func formatDollars(amount int64) string {
	s := strconv.FormatInt(amount, 10)
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		return "-" + s
	}
	return s
}
