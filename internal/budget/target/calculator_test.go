package target

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/centsible/smsbudget/internal/budget/domain"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

func TestDailyTarget_MidMonth(t *testing.T) {
	// March 15: 17 days remaining, floor((3000-1000)/17) = 117.
	got := DailyTarget(d(3000), d(1000), day(2024, time.March, 15))
	assert.Equal(t, int64(117), got)
}

func TestDailyTarget_FirstOfMonth(t *testing.T) {
	// 31-day month: floor(3000/31) = 96.
	got := DailyTarget(d(3000), d(0), day(2024, time.March, 1))
	assert.Equal(t, int64(96), got)
}

func TestDailyTarget_BudgetExhausted(t *testing.T) {
	assert.Equal(t, int64(0), DailyTarget(d(3000), d(3000), day(2024, time.March, 10)))
	assert.Equal(t, int64(0), DailyTarget(d(3000), d(3500), day(2024, time.March, 10)))
}

func TestDailyTarget_NegativeInputsClamp(t *testing.T) {
	assert.Equal(t, int64(0), DailyTarget(d(-3000), d(0), day(2024, time.March, 1)))
	// Negative spending never inflates the target past budget/days.
	got := DailyTarget(d(3100), d(-500), day(2024, time.March, 1))
	assert.Equal(t, int64(100), got)
}

func TestDailyTarget_NeverNegative(t *testing.T) {
	for spent := int64(0); spent <= 6000; spent += 250 {
		got := DailyTarget(d(3000), d(spent), day(2024, time.February, 20))
		assert.GreaterOrEqual(t, got, int64(0), "spent=%d", spent)
		if spent >= 3000 {
			assert.Equal(t, int64(0), got, "spent=%d", spent)
		}
	}
}

func TestPeriodDailyTarget_InsideWindow(t *testing.T) {
	// Sep 24 - Oct 23, today Sep 29: 25 days remaining, floor(2800/25) = 112.
	got := PeriodDailyTarget(d(3000), d(200),
		day(2024, time.September, 24), day(2024, time.October, 23), day(2024, time.September, 29))
	assert.Equal(t, int64(112), got)
}

func TestPeriodDailyTarget_AfterPeriodEnd(t *testing.T) {
	got := PeriodDailyTarget(d(3000), d(0),
		day(2024, time.September, 24), day(2024, time.October, 23), day(2024, time.October, 24))
	assert.Equal(t, int64(0), got)
}

func TestPeriodDailyTarget_LastDayOfPeriod(t *testing.T) {
	got := PeriodDailyTarget(d(3000), d(2900),
		day(2024, time.September, 24), day(2024, time.October, 23), day(2024, time.October, 23))
	assert.Equal(t, int64(100), got)
}

func TestPeriodDailyTarget_BeforePeriodStartUsesFullWindow(t *testing.T) {
	got := PeriodDailyTarget(d(3000), d(0),
		day(2024, time.September, 24), day(2024, time.October, 23), day(2024, time.September, 20))
	// 30 days in window.
	assert.Equal(t, int64(100), got)
}

func TestPeriodSpending(t *testing.T) {
	start := day(2024, time.September, 1)
	end := day(2024, time.September, 30)

	txns := []domain.Transaction{
		{Amount: 100.50, Date: day(2024, time.September, 5)},
		{Amount: 49.50, Date: day(2024, time.September, 30)}, // inclusive end
		{Amount: -25, Date: day(2024, time.September, 10)},   // refund, excluded
		{Amount: 75, Date: day(2024, time.August, 31)},       // before window
		{Amount: 75, Date: day(2024, time.October, 1)},       // after window
		{Amount: math.NaN(), Date: day(2024, time.September, 12)},
		{Amount: math.Inf(1), Date: day(2024, time.September, 13)},
		{Amount: 0, Date: day(2024, time.September, 14)},
	}

	got := PeriodSpending(txns, start, end)
	assert.True(t, got.Equal(decimal.NewFromFloat(150.0)), "got %s", got)
}

func TestPeriodSpending_Empty(t *testing.T) {
	got := PeriodSpending(nil, day(2024, time.September, 1), day(2024, time.September, 30))
	assert.True(t, got.IsZero())
}
