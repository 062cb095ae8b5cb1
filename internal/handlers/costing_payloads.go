package handlers

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/partshub/api/internal/services"
)

// dutyPayload mirrors DutyMode. Decimals across these payloads decode from JSON strings or
// numbers and encode as strings.
type dutyPayload struct {
	Mode    string           `json:"mode"`
	Percent *decimal.Decimal `json:"percent,omitempty"`
}

type ratesPayload struct {
	ExchangeRate      decimal.Decimal `json:"exchangeRate"`
	OceanFreight      decimal.Decimal `json:"oceanFreight"`
	InlandTrucking    decimal.Decimal `json:"inlandTrucking"`
	Duty              dutyPayload     `json:"duty"`
	ConsumablePerUnit decimal.Decimal `json:"consumablePerUnit"`
	LicensePerUnit    decimal.Decimal `json:"licensePerUnit"`
}

type dimensionsPayload struct {
	Length decimal.Decimal `json:"length"`
	Width  decimal.Decimal `json:"width"`
	Height decimal.Decimal `json:"height"`
}

type candidatesPayload struct {
	Retail   *decimal.Decimal `json:"retail,omitempty"`
	Online   *decimal.Decimal `json:"online,omitempty"`
	Proposed *decimal.Decimal `json:"proposed,omitempty"`
}

type manifestLinePayload struct {
	VariantID       string            `json:"variantId"`
	Name            string            `json:"name,omitempty"`
	SKU             string            `json:"sku,omitempty"`
	Quantity        int               `json:"quantity"`
	UnitCostForeign decimal.Decimal   `json:"unitCostForeign"`
	ItemsPerCarton  int               `json:"itemsPerCarton"`
	Dimensions      dimensionsPayload `json:"dimensions"`
	TargetPrice     decimal.Decimal   `json:"targetPrice"`
	Candidates      candidatesPayload `json:"candidates"`
}

type summaryPayload struct {
	TotalQuantity          int    `json:"totalQuantity"`
	TotalCartons           string `json:"totalCartons"`
	TotalVolumeCBM         string `json:"totalVolumeCbm"`
	TotalFOBForeign        string `json:"totalFobForeign"`
	TotalFOBLocal          string `json:"totalFobLocal"`
	TotalTax               string `json:"totalTax"`
	TotalDuty              string `json:"totalDuty"`
	TotalLogistics         string `json:"totalLogistics"`
	TotalOverhead          string `json:"totalOverhead"`
	TotalLandedCost        string `json:"totalLandedCost"`
	TotalRevenue           string `json:"totalRevenue"`
	ProjectedProfit        string `json:"projectedProfit"`
	ProjectedMarginPercent string `json:"projectedMarginPercent"`
}

type lineResultPayload struct {
	VariantID         string `json:"variantId"`
	Quantity          int    `json:"quantity"`
	Cartons           string `json:"cartons"`
	VolumeCBM         string `json:"volumeCbm"`
	FOBLocalPerUnit   string `json:"fobLocalPerUnit"`
	TaxPerUnit        string `json:"taxPerUnit"`
	DutyPerUnit       string `json:"dutyPerUnit"`
	LogisticsPerUnit  string `json:"logisticsPerUnit"`
	OverheadPerUnit   string `json:"overheadPerUnit"`
	LandedCostPerUnit string `json:"landedCostPerUnit"`
	TargetPrice       string `json:"targetPrice"`
	ProfitPerUnit     string `json:"profitPerUnit"`
	MarginPercent     string `json:"marginPercent"`
	LineLandedCost    string `json:"lineLandedCost"`
	LineRevenue       string `json:"lineRevenue"`
	LineProfit        string `json:"lineProfit"`
}

type analysisPayload struct {
	Summary summaryPayload      `json:"summary"`
	Lines   []lineResultPayload `json:"lines"`
}

type ratePresetPayload struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Rates       ratesPayload `json:"rates"`
}

func (p ratesPayload) toRateConfig() (services.RateConfig, error) {
	rates := services.RateConfig{
		ExchangeRate:      p.ExchangeRate,
		OceanFreight:      p.OceanFreight,
		InlandTrucking:    p.InlandTrucking,
		ConsumablePerUnit: p.ConsumablePerUnit,
		LicensePerUnit:    p.LicensePerUnit,
	}
	switch services.DutyKind(strings.ToLower(strings.TrimSpace(p.Duty.Mode))) {
	case "", services.DutyExempt:
		rates.Duty = services.DutyMode{Kind: services.DutyExempt}
	case services.DutyPercent:
		if p.Duty.Percent == nil {
			return services.RateConfig{}, errors.New("duty.percent is required when duty.mode is percent")
		}
		rates.Duty = services.DutyMode{Kind: services.DutyPercent, Percent: *p.Duty.Percent}
	default:
		return services.RateConfig{}, errors.New("duty.mode must be exempt or percent")
	}
	return rates, nil
}

func buildRatesPayload(rates services.RateConfig) ratesPayload {
	duty := dutyPayload{Mode: string(rates.Duty.Kind)}
	if rates.Duty.Kind == services.DutyPercent {
		percent := rates.Duty.Percent
		duty.Percent = &percent
	}
	if duty.Mode == "" {
		duty.Mode = string(services.DutyExempt)
	}
	return ratesPayload{
		ExchangeRate:      rates.ExchangeRate,
		OceanFreight:      rates.OceanFreight,
		InlandTrucking:    rates.InlandTrucking,
		Duty:              duty,
		ConsumablePerUnit: rates.ConsumablePerUnit,
		LicensePerUnit:    rates.LicensePerUnit,
	}
}

func toManifestLines(payloads []manifestLinePayload) []services.ManifestLine {
	lines := make([]services.ManifestLine, 0, len(payloads))
	for _, p := range payloads {
		lines = append(lines, services.ManifestLine{
			VariantID:       strings.TrimSpace(p.VariantID),
			Name:            strings.TrimSpace(p.Name),
			SKU:             strings.TrimSpace(p.SKU),
			Quantity:        p.Quantity,
			UnitCostForeign: p.UnitCostForeign,
			ItemsPerCarton:  p.ItemsPerCarton,
			Dimensions: services.Dimensions{
				Length: p.Dimensions.Length,
				Width:  p.Dimensions.Width,
				Height: p.Dimensions.Height,
			},
			TargetPrice: p.TargetPrice,
			Candidates: services.CandidatePrices{
				Retail:   p.Candidates.Retail,
				Online:   p.Candidates.Online,
				Proposed: p.Candidates.Proposed,
			},
		})
	}
	return lines
}

func buildManifestLinePayloads(lines []services.ManifestLine) []manifestLinePayload {
	out := make([]manifestLinePayload, 0, len(lines))
	for _, line := range lines {
		out = append(out, manifestLinePayload{
			VariantID:       line.VariantID,
			Name:            line.Name,
			SKU:             line.SKU,
			Quantity:        line.Quantity,
			UnitCostForeign: line.UnitCostForeign,
			ItemsPerCarton:  line.ItemsPerCarton,
			Dimensions: dimensionsPayload{
				Length: line.Dimensions.Length,
				Width:  line.Dimensions.Width,
				Height: line.Dimensions.Height,
			},
			TargetPrice: line.TargetPrice,
			Candidates: candidatesPayload{
				Retail:   line.Candidates.Retail,
				Online:   line.Candidates.Online,
				Proposed: line.Candidates.Proposed,
			},
		})
	}
	return out
}

func buildAnalysisPayload(analysis services.ShipmentAnalysis) analysisPayload {
	s := analysis.Summary
	payload := analysisPayload{
		Summary: summaryPayload{
			TotalQuantity:          s.TotalQuantity,
			TotalCartons:           s.TotalCartons.String(),
			TotalVolumeCBM:         s.TotalVolumeCBM.String(),
			TotalFOBForeign:        s.TotalFOBForeign.String(),
			TotalFOBLocal:          s.TotalFOBLocal.String(),
			TotalTax:               s.TotalTax.String(),
			TotalDuty:              s.TotalDuty.String(),
			TotalLogistics:         s.TotalLogistics.String(),
			TotalOverhead:          s.TotalOverhead.String(),
			TotalLandedCost:        s.TotalLandedCost.String(),
			TotalRevenue:           s.TotalRevenue.String(),
			ProjectedProfit:        s.ProjectedProfit.String(),
			ProjectedMarginPercent: s.ProjectedMarginPercent.String(),
		},
		Lines: make([]lineResultPayload, 0, len(analysis.Lines)),
	}
	for _, line := range analysis.Lines {
		payload.Lines = append(payload.Lines, lineResultPayload{
			VariantID:         line.VariantID,
			Quantity:          line.Quantity,
			Cartons:           line.Cartons.String(),
			VolumeCBM:         line.VolumeCBM.String(),
			FOBLocalPerUnit:   line.FOBLocalPerUnit.String(),
			TaxPerUnit:        line.TaxPerUnit.String(),
			DutyPerUnit:       line.DutyPerUnit.String(),
			LogisticsPerUnit:  line.LogisticsPerUnit.String(),
			OverheadPerUnit:   line.OverheadPerUnit.String(),
			LandedCostPerUnit: line.LandedCostPerUnit.String(),
			TargetPrice:       line.TargetPrice.String(),
			ProfitPerUnit:     line.ProfitPerUnit.String(),
			MarginPercent:     line.MarginPercent.String(),
			LineLandedCost:    line.LineLandedCost.String(),
			LineRevenue:       line.LineRevenue.String(),
			LineProfit:        line.LineProfit.String(),
		})
	}
	return payload
}
