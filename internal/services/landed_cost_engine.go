package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidRateConfig signals a non-positive exchange rate or a negative charge.
	ErrInvalidRateConfig = errors.New("landed cost: invalid rate config")
	// ErrInvalidManifestLine signals a manifest line with impossible quantities or negative amounts.
	ErrInvalidManifestLine = errors.New("landed cost: invalid manifest line")
	// ErrUnknownPriceField is returned when a uniform target price names an unsupported field.
	ErrUnknownPriceField = errors.New("landed cost: unknown price field")
)

// DutyTreatment decides whether assessed duty is folded into landed cost.
type DutyTreatment string

const (
	// DutyInformational reports duty in the summary without adding it to landed cost.
	DutyInformational DutyTreatment = "informational"
	// DutyAdditive adds assessed duty to landed cost.
	DutyAdditive DutyTreatment = "additive"
)

// DefaultTaxRate is the import tax applied to the local FOB value.
var DefaultTaxRate = decimal.RequireFromString("0.10")

var (
	hundred         = decimal.NewFromInt(100)
	cubicCmPerMetre = decimal.NewFromInt(1_000_000)
)

// CostingPolicy carries the tax and duty rules that apply to every shipment.
type CostingPolicy struct {
	TaxRate       decimal.Decimal
	DutyTreatment DutyTreatment
}

// DefaultCostingPolicy taxes FOB at 10% and treats duty as informational.
func DefaultCostingPolicy() CostingPolicy {
	return CostingPolicy{TaxRate: DefaultTaxRate, DutyTreatment: DutyInformational}
}

// Validate reports whether the policy is usable.
func (p CostingPolicy) Validate() error {
	if p.TaxRate.IsNegative() || p.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("costing policy: tax rate %s must be between 0 and 1", p.TaxRate)
	}
	switch p.DutyTreatment {
	case DutyInformational, DutyAdditive:
		return nil
	default:
		return fmt.Errorf("costing policy: unsupported duty treatment %q", p.DutyTreatment)
	}
}

// LandedCostEngine derives shipment totals and per-unit landed costs. It performs no I/O
// and never mutates its inputs.
type LandedCostEngine struct {
	policy CostingPolicy
}

// NewLandedCostEngine constructs an engine bound to the supplied policy.
func NewLandedCostEngine(policy CostingPolicy) (*LandedCostEngine, error) {
	if policy.DutyTreatment == "" {
		policy.DutyTreatment = DutyInformational
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &LandedCostEngine{policy: policy}, nil
}

// Policy returns the policy the engine was built with.
func (e *LandedCostEngine) Policy() CostingPolicy {
	return e.policy
}

// ComputeSummary aggregates the manifest. An empty manifest yields an all-zero summary.
func (e *LandedCostEngine) ComputeSummary(rates RateConfig, lines []ManifestLine) (ShipmentSummary, error) {
	if err := ValidateRateConfig(rates); err != nil {
		return ShipmentSummary{}, err
	}
	if err := ValidateManifest(lines); err != nil {
		return ShipmentSummary{}, err
	}
	if len(lines) == 0 {
		return ShipmentSummary{}, nil
	}

	var (
		totalQuantity int
		fobForeign    = decimal.Zero
		cartons       = decimal.Zero
		volume        = decimal.Zero
		revenue       = decimal.Zero
	)
	for _, line := range lines {
		qty := decimal.NewFromInt(int64(line.Quantity))
		totalQuantity += line.Quantity
		fobForeign = fobForeign.Add(line.UnitCostForeign.Mul(qty))
		cartons = cartons.Add(lineCartons(line))
		volume = volume.Add(lineVolume(line))
		revenue = revenue.Add(line.TargetPrice.Mul(qty))
	}

	fobLocal := fobForeign.Mul(rates.ExchangeRate)
	tax := fobLocal.Mul(e.policy.TaxRate)
	duty := dutyOn(rates.Duty, fobLocal)
	logistics := rates.OceanFreight.Add(rates.InlandTrucking)
	overhead := perUnitOverhead(rates).Mul(decimal.NewFromInt(int64(totalQuantity)))

	landed := fobLocal.Add(tax).Add(logistics).Add(overhead)
	if e.policy.DutyTreatment == DutyAdditive {
		landed = landed.Add(duty)
	}
	profit := revenue.Sub(landed)

	return ShipmentSummary{
		TotalQuantity:          totalQuantity,
		TotalCartons:           cartons,
		TotalVolumeCBM:         volume,
		TotalFOBForeign:        fobForeign,
		TotalFOBLocal:          fobLocal,
		TotalTax:               tax,
		TotalDuty:              duty,
		TotalLogistics:         logistics,
		TotalOverhead:          overhead,
		TotalLandedCost:        landed,
		TotalRevenue:           revenue,
		ProjectedProfit:        profit,
		ProjectedMarginPercent: percentOf(profit, revenue),
	}, nil
}

// ComputeLineResult derives per-unit figures for one line. The summary supplies the shipment-wide
// quantity used to spread flat logistics charges evenly across units.
func (e *LandedCostEngine) ComputeLineResult(rates RateConfig, line ManifestLine, summary ShipmentSummary) (LineResult, error) {
	if err := ValidateRateConfig(rates); err != nil {
		return LineResult{}, err
	}
	if err := ValidateManifestLine(line); err != nil {
		return LineResult{}, err
	}

	fobLocal := line.UnitCostForeign.Mul(rates.ExchangeRate)
	tax := fobLocal.Mul(e.policy.TaxRate)
	duty := dutyOn(rates.Duty, fobLocal)
	logistics := decimal.Zero
	if summary.TotalQuantity > 0 {
		logistics = summary.TotalLogistics.Div(decimal.NewFromInt(int64(summary.TotalQuantity)))
	}
	overhead := perUnitOverhead(rates)

	landed := fobLocal.Add(tax).Add(logistics).Add(overhead)
	if e.policy.DutyTreatment == DutyAdditive {
		landed = landed.Add(duty)
	}
	profit := line.TargetPrice.Sub(landed)
	qty := decimal.NewFromInt(int64(line.Quantity))

	return LineResult{
		VariantID:         line.VariantID,
		Quantity:          line.Quantity,
		Cartons:           lineCartons(line),
		VolumeCBM:         lineVolume(line),
		FOBLocalPerUnit:   fobLocal,
		TaxPerUnit:        tax,
		DutyPerUnit:       duty,
		LogisticsPerUnit:  logistics,
		OverheadPerUnit:   overhead,
		LandedCostPerUnit: landed,
		TargetPrice:       line.TargetPrice,
		ProfitPerUnit:     profit,
		MarginPercent:     percentOf(profit, line.TargetPrice),
		LineLandedCost:    landed.Mul(qty),
		LineRevenue:       line.TargetPrice.Mul(qty),
		LineProfit:        profit.Mul(qty),
	}, nil
}

// Analyze computes the summary followed by every line result, preserving manifest order.
func (e *LandedCostEngine) Analyze(rates RateConfig, lines []ManifestLine) (ShipmentAnalysis, error) {
	summary, err := e.ComputeSummary(rates, lines)
	if err != nil {
		return ShipmentAnalysis{}, err
	}
	results := make([]LineResult, 0, len(lines))
	for _, line := range lines {
		result, err := e.ComputeLineResult(rates, line, summary)
		if err != nil {
			return ShipmentAnalysis{}, err
		}
		results = append(results, result)
	}
	allocateLogistics(summary.TotalLogistics, results)
	return ShipmentAnalysis{Summary: summary, Lines: results}, nil
}

// allocateLogistics makes the line logistics shares add up to total. The per-unit share can be a
// repeating fraction, so the last line absorbs the rounding difference.
func allocateLogistics(total decimal.Decimal, results []LineResult) {
	allocated := decimal.Zero
	for i := range results {
		qty := decimal.NewFromInt(int64(results[i].Quantity))
		even := results[i].LogisticsPerUnit.Mul(qty)
		share := even
		if i == len(results)-1 {
			share = total.Sub(allocated)
		}
		allocated = allocated.Add(share)
		results[i].LineLandedCost = results[i].LineLandedCost.Add(share.Sub(even))
		results[i].LineProfit = results[i].LineRevenue.Sub(results[i].LineLandedCost)
	}
}

// SetUniformTargetPrice returns a copy of lines whose target price is taken from the chosen
// catalog price. Lines without that price get a zero target.
func SetUniformTargetPrice(lines []ManifestLine, field PriceField) ([]ManifestLine, error) {
	pick, err := candidatePicker(field)
	if err != nil {
		return nil, err
	}
	out := make([]ManifestLine, len(lines))
	for i, line := range lines {
		out[i] = line
		if price := pick(line.Candidates); price != nil {
			out[i].TargetPrice = *price
		} else {
			out[i].TargetPrice = decimal.Zero
		}
	}
	return out, nil
}

func candidatePicker(field PriceField) (func(CandidatePrices) *decimal.Decimal, error) {
	switch field {
	case PriceFieldRetail:
		return func(c CandidatePrices) *decimal.Decimal { return c.Retail }, nil
	case PriceFieldOnline:
		return func(c CandidatePrices) *decimal.Decimal { return c.Online }, nil
	case PriceFieldProposed:
		return func(c CandidatePrices) *decimal.Decimal { return c.Proposed }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPriceField, field)
	}
}

// ValidateRateConfig checks that the exchange rate is positive and every charge is non-negative.
func ValidateRateConfig(rates RateConfig) error {
	if !rates.ExchangeRate.IsPositive() {
		return fmt.Errorf("%w: exchange rate must be positive", ErrInvalidRateConfig)
	}
	charges := []struct {
		name  string
		value decimal.Decimal
	}{
		{"ocean freight", rates.OceanFreight},
		{"inland trucking", rates.InlandTrucking},
		{"consumable per unit", rates.ConsumablePerUnit},
		{"license per unit", rates.LicensePerUnit},
	}
	for _, charge := range charges {
		if charge.value.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidRateConfig, charge.name)
		}
	}
	switch rates.Duty.Kind {
	case DutyExempt, "":
	case DutyPercent:
		if rates.Duty.Percent.IsNegative() {
			return fmt.Errorf("%w: duty percent must not be negative", ErrInvalidRateConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported duty mode %q", ErrInvalidRateConfig, rates.Duty.Kind)
	}
	return nil
}

// ValidateManifest validates every line and reports the first offending index.
func ValidateManifest(lines []ManifestLine) error {
	for i, line := range lines {
		if err := ValidateManifestLine(line); err != nil {
			return fmt.Errorf("line %d: %w", i, err)
		}
	}
	return nil
}

// ValidateManifestLine checks quantities, carton packing and amounts of a single line.
func ValidateManifestLine(line ManifestLine) error {
	if line.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidManifestLine)
	}
	if line.ItemsPerCarton <= 0 {
		return fmt.Errorf("%w: items per carton must be positive", ErrInvalidManifestLine)
	}
	amounts := []struct {
		name  string
		value decimal.Decimal
	}{
		{"unit cost", line.UnitCostForeign},
		{"length", line.Dimensions.Length},
		{"width", line.Dimensions.Width},
		{"height", line.Dimensions.Height},
		{"target price", line.TargetPrice},
	}
	for _, amount := range amounts {
		if amount.value.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidManifestLine, amount.name)
		}
	}
	return nil
}

func lineCartons(line ManifestLine) decimal.Decimal {
	return decimal.NewFromInt(int64(line.Quantity)).Div(decimal.NewFromInt(int64(line.ItemsPerCarton)))
}

func lineVolume(line ManifestLine) decimal.Decimal {
	dims := line.Dimensions
	cartonVolume := dims.Length.Mul(dims.Width).Mul(dims.Height)
	numerator := cartonVolume.Mul(decimal.NewFromInt(int64(line.Quantity)))
	return numerator.Div(cubicCmPerMetre.Mul(decimal.NewFromInt(int64(line.ItemsPerCarton))))
}

func dutyOn(mode DutyMode, fobLocal decimal.Decimal) decimal.Decimal {
	if mode.Kind != DutyPercent {
		return decimal.Zero
	}
	return fobLocal.Mul(mode.Percent).Div(hundred)
}

func perUnitOverhead(rates RateConfig) decimal.Decimal {
	return rates.ConsumablePerUnit.Add(rates.LicensePerUnit)
}

func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}
