package domain

import (
	"github.com/shopspring/decimal"
)

// DutyKind distinguishes duty-exempt shipments from percentage duty.
type DutyKind string

const (
	// DutyExempt applies no import duty.
	DutyExempt DutyKind = "exempt"
	// DutyPercent applies a percentage of the local FOB value.
	DutyPercent DutyKind = "percent"
)

// DutyMode describes how import duty is assessed for a shipment. Percent is expressed
// as a percentage, so 5 means five percent.
type DutyMode struct {
	Kind    DutyKind
	Percent decimal.Decimal
}

// ExemptDuty returns a duty mode that charges nothing.
func ExemptDuty() DutyMode {
	return DutyMode{Kind: DutyExempt}
}

// PercentDuty returns a duty mode charging the given percentage of FOB.
func PercentDuty(percent decimal.Decimal) DutyMode {
	return DutyMode{Kind: DutyPercent, Percent: percent}
}

// RateConfig holds the exchange rate and flat or per-unit charges for a single shipment.
type RateConfig struct {
	ExchangeRate      decimal.Decimal
	OceanFreight      decimal.Decimal
	InlandTrucking    decimal.Decimal
	Duty              DutyMode
	ConsumablePerUnit decimal.Decimal
	LicensePerUnit    decimal.Decimal
}

// Dimensions are carton measurements in centimetres.
type Dimensions struct {
	Length decimal.Decimal
	Width  decimal.Decimal
	Height decimal.Decimal
}

// PriceField selects which catalog price becomes a line's target price.
type PriceField string

const (
	PriceFieldRetail   PriceField = "retail"
	PriceFieldOnline   PriceField = "online"
	PriceFieldProposed PriceField = "proposed"
)

// CandidatePrices are the catalog prices a manifest line may adopt as its target price.
// Nil entries mean the catalog has no price for that field.
type CandidatePrices struct {
	Retail   *decimal.Decimal
	Online   *decimal.Decimal
	Proposed *decimal.Decimal
}

// ManifestLine is one product variant in a shipment.
type ManifestLine struct {
	VariantID       string
	Name            string
	SKU             string
	Quantity        int
	UnitCostForeign decimal.Decimal
	ItemsPerCarton  int
	Dimensions      Dimensions
	TargetPrice     decimal.Decimal
	Candidates      CandidatePrices
}

// ShipmentSummary aggregates a manifest under a rate configuration.
type ShipmentSummary struct {
	TotalQuantity          int
	TotalCartons           decimal.Decimal
	TotalVolumeCBM         decimal.Decimal
	TotalFOBForeign        decimal.Decimal
	TotalFOBLocal          decimal.Decimal
	TotalTax               decimal.Decimal
	TotalDuty              decimal.Decimal
	TotalLogistics         decimal.Decimal
	TotalOverhead          decimal.Decimal
	TotalLandedCost        decimal.Decimal
	TotalRevenue           decimal.Decimal
	ProjectedProfit        decimal.Decimal
	ProjectedMarginPercent decimal.Decimal
}

// LineResult holds per-unit and line-level figures for a single manifest line.
type LineResult struct {
	VariantID         string
	Quantity          int
	Cartons           decimal.Decimal
	VolumeCBM         decimal.Decimal
	FOBLocalPerUnit   decimal.Decimal
	TaxPerUnit        decimal.Decimal
	DutyPerUnit       decimal.Decimal
	LogisticsPerUnit  decimal.Decimal
	OverheadPerUnit   decimal.Decimal
	LandedCostPerUnit decimal.Decimal
	TargetPrice       decimal.Decimal
	ProfitPerUnit     decimal.Decimal
	MarginPercent     decimal.Decimal
	LineLandedCost    decimal.Decimal
	LineRevenue       decimal.Decimal
	LineProfit        decimal.Decimal
}

// ShipmentAnalysis pairs the shipment summary with its per-line results in manifest order.
type ShipmentAnalysis struct {
	Summary ShipmentSummary
	Lines   []LineResult
}

// RatePreset is a named, reusable rate configuration.
type RatePreset struct {
	Name        string
	Description string
	Rates       RateConfig
}
