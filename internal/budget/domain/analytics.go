package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SpendingAnalytics is the externally computed per-user spending snapshot.
// The analytics pipeline owns it; this core reads it as calculator input.
type SpendingAnalytics struct {
	UserID                 uuid.UUID       `json:"user_id"`
	CurrentMonthSpending   decimal.Decimal `json:"current_month_spending"`
	AverageMonthlySpending decimal.Decimal `json:"average_monthly_spending"`
	ComputedAt             time.Time       `json:"computed_at"`
}

// Transaction is a single bank transaction as delivered by the ingestion
// pipeline. Amounts are floats on the wire; negative amounts are refunds.
type Transaction struct {
	Amount float64   `json:"amount"`
	Date   time.Time `json:"date"`
}
