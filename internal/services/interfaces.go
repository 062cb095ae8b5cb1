package services

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/partshub/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	DutyKind         = domain.DutyKind
	DutyMode         = domain.DutyMode
	RateConfig       = domain.RateConfig
	Dimensions       = domain.Dimensions
	PriceField       = domain.PriceField
	CandidatePrices  = domain.CandidatePrices
	ManifestLine     = domain.ManifestLine
	ShipmentSummary  = domain.ShipmentSummary
	LineResult       = domain.LineResult
	ShipmentAnalysis = domain.ShipmentAnalysis
	RatePreset       = domain.RatePreset
	PaymentMethod    = domain.PaymentMethod
	LedgerEntry      = domain.LedgerEntry
	ExpectedTotals   = domain.ExpectedTotals
	VarianceStatus   = domain.VarianceStatus
	ClosingRecord    = domain.ClosingRecord
	ShipmentDraft    = domain.ShipmentDraft
	DraftSummary     = domain.DraftSummary
	CatalogVariant   = domain.CatalogVariant
)

const (
	DutyExempt         = domain.DutyExempt
	DutyPercent        = domain.DutyPercent
	PriceFieldRetail   = domain.PriceFieldRetail
	PriceFieldOnline   = domain.PriceFieldOnline
	PriceFieldProposed = domain.PriceFieldProposed
)

// ClosingService reconciles the cash drawer against the ledger and records the daily Z-report.
type ClosingService interface {
	ExpectedForDate(ctx context.Context, date string) (ExpectedTotals, error)
	CloseShift(ctx context.Context, cmd CloseShiftCommand) (ClosingRecord, error)
	CloseShiftFromLedger(ctx context.Context, cmd CloseShiftFromLedgerCommand) (ClosingRecord, error)
	ListClosings(ctx context.Context, from, to string) ([]ClosingRecord, error)
	AmendClosing(ctx context.Context, date string) error
	Today() string
}

// CloseShiftCommand carries the figures for a closing whose expected cash was computed by the caller.
type CloseShiftCommand struct {
	Date          string
	ExpectedCash  decimal.Decimal
	ActualCash    decimal.Decimal
	DigitalTotals map[PaymentMethod]decimal.Decimal
	Notes         string
	ClosedBy      string
}

// CloseShiftFromLedgerCommand closes a day using the ledger totals as the expected figures.
type CloseShiftFromLedgerCommand struct {
	Date       string
	ActualCash decimal.Decimal
	Notes      string
	ClosedBy   string
}

// ShiftClosedEvent is emitted once a closing has been recorded.
type ShiftClosedEvent struct {
	ClosingID    string    `json:"closingId"`
	Date         string    `json:"date"`
	ExpectedCash string    `json:"expectedCash"`
	ActualCash   string    `json:"actualCash"`
	Variance     string    `json:"variance"`
	Status       string    `json:"status"`
	ClosedBy     string    `json:"closedBy,omitempty"`
	ClosedAt     time.Time `json:"closedAt"`
}

// ClosingEventPublisher delivers shift closed notifications for downstream consumers.
type ClosingEventPublisher interface {
	PublishShiftClosed(ctx context.Context, event ShiftClosedEvent) (string, error)
}

// DraftService saves and restores shipment plans.
type DraftService interface {
	Save(ctx context.Context, cmd SaveDraftCommand) (string, error)
	Load(ctx context.Context, draftID string) (ShipmentDraft, error)
	List(ctx context.Context) ([]DraftSummary, error)
	Delete(ctx context.Context, draftID string) error
}

// SaveDraftCommand describes a shipment plan to persist.
type SaveDraftCommand struct {
	Name  string
	Rates RateConfig
	Lines []ManifestLine
}

// ShipmentPlanningService assembles manifests from the catalog and runs shipment analyses.
type ShipmentPlanningService interface {
	BuildManifest(ctx context.Context, items []ManifestItemRequest) ([]ManifestLine, error)
	AnalyzeShipment(ctx context.Context, cmd AnalyzeShipmentCommand) (ShipmentAnalysis, error)
	ExportAnalysis(ctx context.Context, cmd ExportAnalysisCommand) (ExportResult, error)
	RatePresets() []RatePreset
}

// ManifestItemRequest names a catalog variant and the quantity to ship.
type ManifestItemRequest struct {
	VariantID   string
	Quantity    int
	TargetPrice *decimal.Decimal
}

// AnalyzeShipmentCommand carries an analysis request. When PriceField is set every line's target
// price is replaced with that catalog price before computing.
type AnalyzeShipmentCommand struct {
	Rates      RateConfig
	Lines      []ManifestLine
	PriceField PriceField
}

// ExportAnalysisCommand requests a CSV export of a shipment analysis.
type ExportAnalysisCommand struct {
	Name       string
	Rates      RateConfig
	Lines      []ManifestLine
	PriceField PriceField
}

// ExportResult identifies a written export object.
type ExportResult struct {
	Bucket    string
	Object    string
	Bytes     int64
	CreatedAt time.Time
}

// ReportExporter writes rendered reports to durable storage.
type ReportExporter interface {
	WriteReport(ctx context.Context, report ReportObject) (ExportResult, error)
}

// ReportObject is a rendered report ready to be written.
type ReportObject struct {
	Name        string
	ContentType string
	CreatedAt   time.Time
	Body        io.Reader
}
