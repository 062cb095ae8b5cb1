package services

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var analysisLineHeader = []string{
	"variant_id",
	"quantity",
	"cartons",
	"volume_cbm",
	"fob_local_per_unit",
	"tax_per_unit",
	"duty_per_unit",
	"logistics_per_unit",
	"overhead_per_unit",
	"landed_cost_per_unit",
	"target_price",
	"profit_per_unit",
	"margin_percent",
	"line_landed_cost",
	"line_revenue",
	"line_profit",
}

// RenderAnalysisCSV writes the analysis as two CSV sections: a summary block with machine and
// locale formatted values, then one row per manifest line. Money is fixed to two places, CBM to four.
func RenderAnalysisCSV(w io.Writer, name string, analysis ShipmentAnalysis, locale language.Tag) error {
	printer := message.NewPrinter(locale)
	out := csv.NewWriter(w)

	summary := analysis.Summary
	rows := [][]string{
		{"shipment", name, ""},
		{"metric", "value", "display"},
		{"total_quantity", strconv.Itoa(summary.TotalQuantity), printer.Sprintf("%d", summary.TotalQuantity)},
		summaryRow(printer, "total_cartons", summary.TotalCartons, 2),
		summaryRow(printer, "total_volume_cbm", summary.TotalVolumeCBM, 4),
		summaryRow(printer, "total_fob_foreign", summary.TotalFOBForeign, 2),
		summaryRow(printer, "total_fob_local", summary.TotalFOBLocal, 2),
		summaryRow(printer, "total_tax", summary.TotalTax, 2),
		summaryRow(printer, "total_duty", summary.TotalDuty, 2),
		summaryRow(printer, "total_logistics", summary.TotalLogistics, 2),
		summaryRow(printer, "total_overhead", summary.TotalOverhead, 2),
		summaryRow(printer, "total_landed_cost", summary.TotalLandedCost, 2),
		summaryRow(printer, "total_revenue", summary.TotalRevenue, 2),
		summaryRow(printer, "projected_profit", summary.ProjectedProfit, 2),
		summaryRow(printer, "projected_margin_percent", summary.ProjectedMarginPercent, 2),
		{},
		analysisLineHeader,
	}
	if err := out.WriteAll(rows); err != nil {
		return err
	}

	for _, line := range analysis.Lines {
		record := []string{
			line.VariantID,
			strconv.Itoa(line.Quantity),
			line.Cartons.StringFixed(2),
			line.VolumeCBM.StringFixed(4),
			line.FOBLocalPerUnit.StringFixed(2),
			line.TaxPerUnit.StringFixed(2),
			line.DutyPerUnit.StringFixed(2),
			line.LogisticsPerUnit.StringFixed(2),
			line.OverheadPerUnit.StringFixed(2),
			line.LandedCostPerUnit.StringFixed(2),
			line.TargetPrice.StringFixed(2),
			line.ProfitPerUnit.StringFixed(2),
			line.MarginPercent.StringFixed(2),
			line.LineLandedCost.StringFixed(2),
			line.LineRevenue.StringFixed(2),
			line.LineProfit.StringFixed(2),
		}
		if err := out.Write(record); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}

func summaryRow(printer *message.Printer, metric string, value decimal.Decimal, places int32) []string {
	rounded := value.Round(places)
	var display string
	if places == 4 {
		display = printer.Sprintf("%.4f", rounded.InexactFloat64())
	} else {
		display = printer.Sprintf("%.2f", rounded.InexactFloat64())
	}
	return []string{metric, value.StringFixed(places), display}
}
