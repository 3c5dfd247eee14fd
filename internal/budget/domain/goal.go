package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SpendingGoal is one monthly budget commitment. At most one goal per user
// is active at any time; superseded goals are deactivated, never deleted.
type SpendingGoal struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	MonthlyLimit decimal.Decimal `json:"monthly_limit"`
	PeriodStart  time.Time       `json:"period_start"` // date, midnight UTC
	PeriodEnd    time.Time       `json:"period_end"`   // inclusive
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewSpendingGoal builds an active goal whose period is derived from now
// and the configured month anchor day.
func NewSpendingGoal(userID uuid.UUID, amountDollars int64, now time.Time, monthStartDay int) *SpendingGoal {
	start, end := PeriodFor(now, monthStartDay)
	return &SpendingGoal{
		ID:           uuid.New(),
		UserID:       userID,
		MonthlyLimit: decimal.NewFromInt(amountDollars),
		PeriodStart:  start,
		PeriodEnd:    end,
		IsActive:     true,
		CreatedAt:    now.UTC(),
	}
}

// PeriodFor returns the inclusive [start, end] budget window containing now.
// With monthStartDay=1 this is the calendar month. With a later anchor day
// the window runs from that day-of-month through the day before the next
// anchor; anchors past a short month's length clamp to its last day.
func PeriodFor(now time.Time, monthStartDay int) (start, end time.Time) {
	if monthStartDay < 1 {
		monthStartDay = 1
	}
	if monthStartDay > 28 {
		monthStartDay = 28
	}

	y, m, d := now.Date()
	anchor := time.Date(y, m, clampDay(y, m, monthStartDay), 0, 0, 0, 0, time.UTC)
	if d < anchor.Day() {
		prev := anchor.AddDate(0, -1, 0)
		py, pm, _ := prev.Date()
		anchor = time.Date(py, pm, clampDay(py, pm, monthStartDay), 0, 0, 0, 0, time.UTC)
	}

	next := anchor.AddDate(0, 1, 0)
	ny, nm, _ := next.Date()
	next = time.Date(ny, nm, clampDay(ny, nm, monthStartDay), 0, 0, 0, 0, time.UTC)

	return anchor, next.AddDate(0, 0, -1)
}

func clampDay(year int, month time.Month, day int) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}
