// Package target computes daily spending targets. Every function here is
// pure and total: deterministic, side-effect free, and defensive about
// negative or malformed inputs.
package target

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/centsible/smsbudget/internal/budget/domain"
)

// DailyTarget returns the whole-dollar amount the user may spend per day for
// the rest of today's calendar month. Zero when the budget is exhausted.
func DailyTarget(monthlyBudget, currentSpending decimal.Decimal, today time.Time) int64 {
	budget := clampNonNegative(monthlyBudget)
	spent := clampNonNegative(currentSpending)

	daysRemaining := daysInMonth(today) - today.Day() + 1
	return dailyAmount(budget.Sub(spent), daysRemaining)
}

// PeriodDailyTarget is DailyTarget against an explicit inclusive
// [periodStart, periodEnd] window. Zero once today is past periodEnd.
func PeriodDailyTarget(periodBudget, currentSpending decimal.Decimal, periodStart, periodEnd, today time.Time) int64 {
	budget := clampNonNegative(periodBudget)
	spent := clampNonNegative(currentSpending)

	start := dateOnly(periodStart)
	end := dateOnly(periodEnd)
	day := dateOnly(today)

	if day.After(end) {
		return 0
	}
	if day.Before(start) {
		day = start
	}

	daysRemaining := daysBetween(day, end) + 1
	return dailyAmount(budget.Sub(spent), daysRemaining)
}

// PeriodSpending sums the positive transactions dated inside the inclusive
// window. Refunds (negative amounts) and non-finite amounts are skipped.
func PeriodSpending(transactions []domain.Transaction, periodStart, periodEnd time.Time) decimal.Decimal {
	start := dateOnly(periodStart)
	end := dateOnly(periodEnd)

	total := decimal.Zero
	for _, txn := range transactions {
		if txn.Amount <= 0 || math.IsNaN(txn.Amount) || math.IsInf(txn.Amount, 0) {
			continue
		}
		day := dateOnly(txn.Date)
		if day.Before(start) || day.After(end) {
			continue
		}
		total = total.Add(decimal.NewFromFloat(txn.Amount))
	}
	return total
}

func dailyAmount(remaining decimal.Decimal, daysRemaining int) int64 {
	if daysRemaining <= 0 || remaining.Sign() <= 0 {
		return 0
	}
	target := remaining.Div(decimal.NewFromInt(int64(daysRemaining))).IntPart()
	if target < 0 {
		return 0
	}
	return target
}

func clampNonNegative(d decimal.Decimal) decimal.Decimal {
	if d.Sign() < 0 {
		return decimal.Zero
	}
	return d
}

func daysInMonth(t time.Time) int {
	y, m, _ := t.Date()
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
