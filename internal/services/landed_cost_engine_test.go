package services

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func decPtr(value string) *decimal.Decimal {
	d := dec(value)
	return &d
}

func assertDecimal(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s: expected %s, got %s", name, want, got.String())
	}
}

func newTestEngine(t *testing.T, policy CostingPolicy) *LandedCostEngine {
	t.Helper()
	engine, err := NewLandedCostEngine(policy)
	if err != nil {
		t.Fatalf("NewLandedCostEngine: %v", err)
	}
	return engine
}

func sampleRates() RateConfig {
	return RateConfig{
		ExchangeRate:      dec("4.75"),
		OceanFreight:      dec("5000"),
		InlandTrucking:    dec("800"),
		Duty:              DutyMode{Kind: DutyExempt},
		ConsumablePerUnit: dec("2.0"),
		LicensePerUnit:    dec("0.3"),
	}
}

func sampleLine() ManifestLine {
	return ManifestLine{
		VariantID:       "var_brake_pad",
		Quantity:        100,
		UnitCostForeign: dec("10"),
		ItemsPerCarton:  10,
		Dimensions:      Dimensions{Length: dec("30"), Width: dec("20"), Height: dec("15")},
		TargetPrice:     dec("80"),
	}
}

func TestLandedCostEngine_EndToEndExample(t *testing.T) {
	engine := newTestEngine(t, DefaultCostingPolicy())

	analysis, err := engine.Analyze(sampleRates(), []ManifestLine{sampleLine()})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	summary := analysis.Summary
	if summary.TotalQuantity != 100 {
		t.Fatalf("expected quantity 100, got %d", summary.TotalQuantity)
	}
	assertDecimal(t, "totalFobForeign", summary.TotalFOBForeign, "1000")
	assertDecimal(t, "totalFobLocal", summary.TotalFOBLocal, "4750")
	assertDecimal(t, "totalTax", summary.TotalTax, "475")
	assertDecimal(t, "totalDuty", summary.TotalDuty, "0")
	assertDecimal(t, "totalLogistics", summary.TotalLogistics, "5800")
	assertDecimal(t, "totalOverhead", summary.TotalOverhead, "230")
	assertDecimal(t, "totalLandedCost", summary.TotalLandedCost, "11255")
	assertDecimal(t, "totalRevenue", summary.TotalRevenue, "8000")
	assertDecimal(t, "projectedProfit", summary.ProjectedProfit, "-3255")
	assertDecimal(t, "projectedMargin", summary.ProjectedMarginPercent, "-40.6875")
	assertDecimal(t, "totalCartons", summary.TotalCartons, "10")
	assertDecimal(t, "totalVolumeCbm", summary.TotalVolumeCBM, "0.09")

	if len(analysis.Lines) != 1 {
		t.Fatalf("expected 1 line result, got %d", len(analysis.Lines))
	}
	line := analysis.Lines[0]
	if line.VariantID != "var_brake_pad" {
		t.Fatalf("expected variant id preserved, got %q", line.VariantID)
	}
	assertDecimal(t, "fobLocal", line.FOBLocalPerUnit, "47.5")
	assertDecimal(t, "taxPerUnit", line.TaxPerUnit, "4.75")
	assertDecimal(t, "logisticsPerUnit", line.LogisticsPerUnit, "58")
	assertDecimal(t, "overheadPerUnit", line.OverheadPerUnit, "2.3")
	assertDecimal(t, "landedCostPerUnit", line.LandedCostPerUnit, "112.55")
	assertDecimal(t, "profitPerUnit", line.ProfitPerUnit, "-32.55")
	assertDecimal(t, "marginPercent", line.MarginPercent, "-40.6875")
	assertDecimal(t, "lineLandedCost", line.LineLandedCost, "11255")
	assertDecimal(t, "cartons", line.Cartons, "10")
	assertDecimal(t, "volume", line.VolumeCBM, "0.09")
}

func TestLandedCostEngine_EmptyManifestYieldsZeroSummary(t *testing.T) {
	engine := newTestEngine(t, DefaultCostingPolicy())

	summary, err := engine.ComputeSummary(sampleRates(), nil)
	if err != nil {
		t.Fatalf("ComputeSummary: %v", err)
	}
	if summary.TotalQuantity != 0 {
		t.Fatalf("expected zero quantity, got %d", summary.TotalQuantity)
	}
	for name, value := range map[string]decimal.Decimal{
		"cartons":    summary.TotalCartons,
		"volume":     summary.TotalVolumeCBM,
		"fobLocal":   summary.TotalFOBLocal,
		"tax":        summary.TotalTax,
		"logistics":  summary.TotalLogistics,
		"landedCost": summary.TotalLandedCost,
		"revenue":    summary.TotalRevenue,
		"profit":     summary.ProjectedProfit,
	} {
		if !value.IsZero() {
			t.Fatalf("expected %s to be zero, got %s", name, value)
		}
	}
}

func TestLandedCostEngine_FOBLocalIsAdditive(t *testing.T) {
	engine := newTestEngine(t, DefaultCostingPolicy())
	rates := sampleRates()

	a := sampleLine()
	b := sampleLine()
	b.VariantID = "var_rotor"
	b.Quantity = 7
	b.UnitCostForeign = dec("3.33")

	onlyA, err := engine.ComputeSummary(rates, []ManifestLine{a})
	if err != nil {
		t.Fatalf("ComputeSummary(a): %v", err)
	}
	onlyB, err := engine.ComputeSummary(rates, []ManifestLine{b})
	if err != nil {
		t.Fatalf("ComputeSummary(b): %v", err)
	}
	both, err := engine.ComputeSummary(rates, []ManifestLine{a, b})
	if err != nil {
		t.Fatalf("ComputeSummary(a+b): %v", err)
	}
	if !both.TotalFOBLocal.Equal(onlyA.TotalFOBLocal.Add(onlyB.TotalFOBLocal)) {
		t.Fatalf("expected additive fob local, got %s vs %s + %s", both.TotalFOBLocal, onlyA.TotalFOBLocal, onlyB.TotalFOBLocal)
	}
}

func TestLandedCostEngine_LineTotalsReconcileWithSummary(t *testing.T) {
	engine := newTestEngine(t, DefaultCostingPolicy())
	rates := sampleRates()
	rates.OceanFreight = dec("5200")

	second := sampleLine()
	second.VariantID = "var_filter"
	second.Quantity = 50
	second.UnitCostForeign = dec("4")
	second.ItemsPerCarton = 5
	second.TargetPrice = dec("45")

	analysis, err := engine.Analyze(rates, []ManifestLine{sampleLine(), second})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	sum := decimal.Zero
	revenue := decimal.Zero
	for _, line := range analysis.Lines {
		sum = sum.Add(line.LineLandedCost)
		revenue = revenue.Add(line.LineRevenue)
	}
	if !sum.Equal(analysis.Summary.TotalLandedCost) {
		t.Fatalf("expected line landed costs %s to equal total %s", sum, analysis.Summary.TotalLandedCost)
	}
	if !revenue.Equal(analysis.Summary.TotalRevenue) {
		t.Fatalf("expected line revenue %s to equal total %s", revenue, analysis.Summary.TotalRevenue)
	}
	assertDecimal(t, "logistics share", analysis.Lines[1].LogisticsPerUnit, "40")
}

func TestLandedCostEngine_IndivisibleLogisticsStillReconcile(t *testing.T) {
	engine := newTestEngine(t, DefaultCostingPolicy())

	single := sampleLine()
	single.Quantity = 3

	first := sampleLine()
	first.Quantity = 7
	second := sampleLine()
	second.VariantID = "var_filter"
	second.Quantity = 11
	second.TargetPrice = dec("45")

	for name, lines := range map[string][]ManifestLine{
		"single line": {single},
		"two lines":   {first, second},
	} {
		analysis, err := engine.Analyze(sampleRates(), lines)
		if err != nil {
			t.Fatalf("%s: Analyze: %v", name, err)
		}
		landed := decimal.Zero
		profit := decimal.Zero
		for _, line := range analysis.Lines {
			landed = landed.Add(line.LineLandedCost)
			profit = profit.Add(line.LineProfit)
		}
		if !landed.Equal(analysis.Summary.TotalLandedCost) {
			t.Fatalf("%s: expected line landed costs %s to equal total %s", name, landed, analysis.Summary.TotalLandedCost)
		}
		if !profit.Equal(analysis.Summary.ProjectedProfit) {
			t.Fatalf("%s: expected line profits %s to equal projected profit %s", name, profit, analysis.Summary.ProjectedProfit)
		}
	}
}

func TestLandedCostEngine_ZeroTargetPriceHasZeroMargin(t *testing.T) {
	engine := newTestEngine(t, DefaultCostingPolicy())
	line := sampleLine()
	line.TargetPrice = decimal.Zero

	analysis, err := engine.Analyze(sampleRates(), []ManifestLine{line})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !analysis.Lines[0].MarginPercent.IsZero() {
		t.Fatalf("expected zero margin, got %s", analysis.Lines[0].MarginPercent)
	}
	if !analysis.Summary.ProjectedMarginPercent.IsZero() {
		t.Fatalf("expected zero projected margin, got %s", analysis.Summary.ProjectedMarginPercent)
	}
}

func TestLandedCostEngine_FractionalCartons(t *testing.T) {
	engine := newTestEngine(t, DefaultCostingPolicy())
	line := sampleLine()
	line.Quantity = 5
	line.ItemsPerCarton = 2

	summary, err := engine.ComputeSummary(sampleRates(), []ManifestLine{line})
	if err != nil {
		t.Fatalf("ComputeSummary: %v", err)
	}
	assertDecimal(t, "totalCartons", summary.TotalCartons, "2.5")
}

func TestLandedCostEngine_ZeroQuantitySummaryGuardsLogisticsShare(t *testing.T) {
	engine := newTestEngine(t, DefaultCostingPolicy())

	result, err := engine.ComputeLineResult(sampleRates(), sampleLine(), ShipmentSummary{TotalLogistics: dec("5800")})
	if err != nil {
		t.Fatalf("ComputeLineResult: %v", err)
	}
	if !result.LogisticsPerUnit.IsZero() {
		t.Fatalf("expected zero logistics share, got %s", result.LogisticsPerUnit)
	}
}

func TestLandedCostEngine_DutyTreatment(t *testing.T) {
	rates := sampleRates()
	rates.Duty = DutyMode{Kind: DutyPercent, Percent: dec("5")}

	informational := newTestEngine(t, DefaultCostingPolicy())
	summary, err := informational.ComputeSummary(rates, []ManifestLine{sampleLine()})
	if err != nil {
		t.Fatalf("ComputeSummary: %v", err)
	}
	assertDecimal(t, "informational duty", summary.TotalDuty, "237.5")
	assertDecimal(t, "informational landed", summary.TotalLandedCost, "11255")

	additive := newTestEngine(t, CostingPolicy{TaxRate: DefaultTaxRate, DutyTreatment: DutyAdditive})
	analysis, err := additive.Analyze(rates, []ManifestLine{sampleLine()})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	assertDecimal(t, "additive landed", analysis.Summary.TotalLandedCost, "11492.5")
	assertDecimal(t, "additive duty per unit", analysis.Lines[0].DutyPerUnit, "2.375")
	assertDecimal(t, "additive landed per unit", analysis.Lines[0].LandedCostPerUnit, "114.925")
}

func TestLandedCostEngine_TaxRateIsPolicy(t *testing.T) {
	engine := newTestEngine(t, CostingPolicy{TaxRate: dec("0.12")})

	summary, err := engine.ComputeSummary(sampleRates(), []ManifestLine{sampleLine()})
	if err != nil {
		t.Fatalf("ComputeSummary: %v", err)
	}
	assertDecimal(t, "totalTax", summary.TotalTax, "570")
	if engine.Policy().DutyTreatment != DutyInformational {
		t.Fatalf("expected informational default, got %s", engine.Policy().DutyTreatment)
	}
}

func TestNewLandedCostEngineRejectsInvalidPolicy(t *testing.T) {
	if _, err := NewLandedCostEngine(CostingPolicy{TaxRate: dec("-0.1")}); err == nil {
		t.Fatalf("expected error for negative tax rate")
	}
	if _, err := NewLandedCostEngine(CostingPolicy{TaxRate: dec("10")}); err == nil {
		t.Fatalf("expected error for tax rate above 1")
	}
	if _, err := NewLandedCostEngine(CostingPolicy{TaxRate: DefaultTaxRate, DutyTreatment: "sometimes"}); err == nil {
		t.Fatalf("expected error for unknown duty treatment")
	}
}

func TestValidateRateConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RateConfig)
	}{
		{"zero exchange rate", func(r *RateConfig) { r.ExchangeRate = decimal.Zero }},
		{"negative exchange rate", func(r *RateConfig) { r.ExchangeRate = dec("-1") }},
		{"negative freight", func(r *RateConfig) { r.OceanFreight = dec("-0.01") }},
		{"negative trucking", func(r *RateConfig) { r.InlandTrucking = dec("-5") }},
		{"negative consumable", func(r *RateConfig) { r.ConsumablePerUnit = dec("-1") }},
		{"negative license", func(r *RateConfig) { r.LicensePerUnit = dec("-1") }},
		{"negative duty", func(r *RateConfig) { r.Duty = DutyMode{Kind: DutyPercent, Percent: dec("-2")} }},
		{"unknown duty", func(r *RateConfig) { r.Duty = DutyMode{Kind: "quota"} }},
	}
	engine := newTestEngine(t, DefaultCostingPolicy())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rates := sampleRates()
			tc.mutate(&rates)
			_, err := engine.ComputeSummary(rates, []ManifestLine{sampleLine()})
			if !errors.Is(err, ErrInvalidRateConfig) {
				t.Fatalf("expected ErrInvalidRateConfig, got %v", err)
			}
		})
	}
}

func TestValidateManifestLine(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ManifestLine)
	}{
		{"zero quantity", func(l *ManifestLine) { l.Quantity = 0 }},
		{"zero items per carton", func(l *ManifestLine) { l.ItemsPerCarton = 0 }},
		{"negative cost", func(l *ManifestLine) { l.UnitCostForeign = dec("-1") }},
		{"negative height", func(l *ManifestLine) { l.Dimensions.Height = dec("-1") }},
		{"negative price", func(l *ManifestLine) { l.TargetPrice = dec("-80") }},
	}
	engine := newTestEngine(t, DefaultCostingPolicy())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line := sampleLine()
			tc.mutate(&line)
			if _, err := engine.ComputeSummary(sampleRates(), []ManifestLine{line}); !errors.Is(err, ErrInvalidManifestLine) {
				t.Fatalf("expected ErrInvalidManifestLine from summary, got %v", err)
			}
			if _, err := engine.ComputeLineResult(sampleRates(), line, ShipmentSummary{}); !errors.Is(err, ErrInvalidManifestLine) {
				t.Fatalf("expected ErrInvalidManifestLine from line result, got %v", err)
			}
		})
	}
}

func TestSetUniformTargetPrice(t *testing.T) {
	priced := sampleLine()
	priced.Candidates = CandidatePrices{Retail: decPtr("95"), Online: decPtr("89.90")}
	unpriced := sampleLine()
	unpriced.VariantID = "var_unpriced"
	input := []ManifestLine{priced, unpriced}

	out, err := SetUniformTargetPrice(input, PriceFieldOnline)
	if err != nil {
		t.Fatalf("SetUniformTargetPrice: %v", err)
	}
	if len(out) != 2 || out[0].VariantID != "var_brake_pad" || out[1].VariantID != "var_unpriced" {
		t.Fatalf("expected order preserved, got %#v", out)
	}
	assertDecimal(t, "online price", out[0].TargetPrice, "89.90")
	assertDecimal(t, "missing price", out[1].TargetPrice, "0")
	assertDecimal(t, "input untouched", input[0].TargetPrice, "80")

	out, err = SetUniformTargetPrice(input, PriceFieldRetail)
	if err != nil {
		t.Fatalf("SetUniformTargetPrice retail: %v", err)
	}
	assertDecimal(t, "retail price", out[0].TargetPrice, "95")

	if _, err := SetUniformTargetPrice(input, PriceField("wholesale")); !errors.Is(err, ErrUnknownPriceField) {
		t.Fatalf("expected ErrUnknownPriceField, got %v", err)
	}
}
