package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClosingDateLayout is the canonical key format for business days.
const ClosingDateLayout = "2006-01-02"

// PaymentMethod identifies how a sale was tendered.
type PaymentMethod string

const (
	PaymentMethodCash        PaymentMethod = "cash"
	PaymentMethodCard        PaymentMethod = "card"
	PaymentMethodTransfer    PaymentMethod = "transfer"
	PaymentMethodEWallet     PaymentMethod = "e_wallet"
	PaymentMethodUnspecified PaymentMethod = "unspecified"
)

// LedgerEntry is a single sale or refund as recorded by the sales ledger.
// Refunds carry a negative amount.
type LedgerEntry struct {
	ID            string
	Amount        decimal.Decimal
	PaymentMethod PaymentMethod
	Timestamp     time.Time
}

// ExpectedTotals are the ledger totals for one business day.
type ExpectedTotals struct {
	Date          string
	ExpectedCash  decimal.Decimal
	DigitalTotals map[PaymentMethod]decimal.Decimal
	EntryCount    int
}

// VarianceStatus labels the sign of a closing variance.
type VarianceStatus string

const (
	VarianceBalanced VarianceStatus = "balanced"
	VarianceSurplus  VarianceStatus = "surplus"
	VarianceShortage VarianceStatus = "shortage"
)

// ClosingRecord is the immutable daily Z-report.
type ClosingRecord struct {
	ID            string
	Date          string
	ExpectedCash  decimal.Decimal
	ActualCash    decimal.Decimal
	DigitalTotals map[PaymentMethod]decimal.Decimal
	Variance      decimal.Decimal
	Status        VarianceStatus
	Notes         string
	ClosedBy      string
	CreatedAt     time.Time
}
