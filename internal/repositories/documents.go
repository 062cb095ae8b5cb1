package repositories

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/partshub/api/internal/domain"
)

// Persisted documents keep decimals as strings so values round-trip without float drift. The
// same shapes back Firestore documents and PostgreSQL JSONB columns.

// RateDocument is the stored form of domain.RateConfig.
type RateDocument struct {
	ExchangeRate      string `firestore:"exchangeRate" json:"exchangeRate"`
	OceanFreight      string `firestore:"oceanFreight" json:"oceanFreight"`
	InlandTrucking    string `firestore:"inlandTrucking" json:"inlandTrucking"`
	DutyMode          string `firestore:"dutyMode" json:"dutyMode"`
	DutyPercent       string `firestore:"dutyPercent,omitempty" json:"dutyPercent,omitempty"`
	ConsumablePerUnit string `firestore:"consumablePerUnit" json:"consumablePerUnit"`
	LicensePerUnit    string `firestore:"licensePerUnit" json:"licensePerUnit"`
}

// LineDocument is the stored form of domain.ManifestLine.
type LineDocument struct {
	VariantID       string  `firestore:"variantId" json:"variantId"`
	Name            string  `firestore:"name,omitempty" json:"name,omitempty"`
	SKU             string  `firestore:"sku,omitempty" json:"sku,omitempty"`
	Quantity        int     `firestore:"quantity" json:"quantity"`
	UnitCostForeign string  `firestore:"unitCostForeign" json:"unitCostForeign"`
	ItemsPerCarton  int     `firestore:"itemsPerCarton" json:"itemsPerCarton"`
	LengthCm        string  `firestore:"lengthCm" json:"lengthCm"`
	WidthCm         string  `firestore:"widthCm" json:"widthCm"`
	HeightCm        string  `firestore:"heightCm" json:"heightCm"`
	TargetPrice     string  `firestore:"targetPrice" json:"targetPrice"`
	RetailPrice     *string `firestore:"retailPrice,omitempty" json:"retailPrice,omitempty"`
	OnlinePrice     *string `firestore:"onlinePrice,omitempty" json:"onlinePrice,omitempty"`
	ProposedPrice   *string `firestore:"proposedPrice,omitempty" json:"proposedPrice,omitempty"`
}

// DraftDocument is the stored form of domain.ShipmentDraft.
type DraftDocument struct {
	Name      string         `firestore:"name" json:"name"`
	Rates     RateDocument   `firestore:"rates" json:"rates"`
	Lines     []LineDocument `firestore:"lines" json:"lines"`
	LineCount int            `firestore:"lineCount" json:"lineCount"`
	SavedAt   time.Time      `firestore:"savedAt" json:"savedAt"`
}

// ClosingDocument is the stored form of domain.ClosingRecord.
type ClosingDocument struct {
	ClosingID     string            `firestore:"closingId" json:"closingId"`
	Date          string            `firestore:"date" json:"date"`
	ExpectedCash  string            `firestore:"expectedCash" json:"expectedCash"`
	ActualCash    string            `firestore:"actualCash" json:"actualCash"`
	DigitalTotals map[string]string `firestore:"digitalTotals" json:"digitalTotals"`
	Variance      string            `firestore:"variance" json:"variance"`
	Status        string            `firestore:"status" json:"status"`
	Notes         string            `firestore:"notes,omitempty" json:"notes,omitempty"`
	ClosedBy      string            `firestore:"closedBy,omitempty" json:"closedBy,omitempty"`
	CreatedAt     time.Time         `firestore:"createdAt" json:"createdAt"`
}

// EncodeRates converts a rate configuration into its stored form.
func EncodeRates(rates domain.RateConfig) RateDocument {
	doc := RateDocument{
		ExchangeRate:      rates.ExchangeRate.String(),
		OceanFreight:      rates.OceanFreight.String(),
		InlandTrucking:    rates.InlandTrucking.String(),
		DutyMode:          string(rates.Duty.Kind),
		ConsumablePerUnit: rates.ConsumablePerUnit.String(),
		LicensePerUnit:    rates.LicensePerUnit.String(),
	}
	if doc.DutyMode == "" {
		doc.DutyMode = string(domain.DutyExempt)
	}
	if rates.Duty.Kind == domain.DutyPercent {
		doc.DutyPercent = rates.Duty.Percent.String()
	}
	return doc
}

// Decode restores the rate configuration.
func (d RateDocument) Decode() (domain.RateConfig, error) {
	var (
		rates domain.RateConfig
		err   error
	)
	p := decimalParser{}
	rates.ExchangeRate = p.parse("exchangeRate", d.ExchangeRate)
	rates.OceanFreight = p.parse("oceanFreight", d.OceanFreight)
	rates.InlandTrucking = p.parse("inlandTrucking", d.InlandTrucking)
	rates.ConsumablePerUnit = p.parse("consumablePerUnit", d.ConsumablePerUnit)
	rates.LicensePerUnit = p.parse("licensePerUnit", d.LicensePerUnit)
	switch domain.DutyKind(d.DutyMode) {
	case domain.DutyPercent:
		rates.Duty = domain.PercentDuty(p.parse("dutyPercent", d.DutyPercent))
	case domain.DutyExempt, "":
		rates.Duty = domain.ExemptDuty()
	default:
		err = fmt.Errorf("unknown duty mode %q", d.DutyMode)
	}
	if p.err != nil {
		return domain.RateConfig{}, p.err
	}
	return rates, err
}

// EncodeLine converts a manifest line into its stored form.
func EncodeLine(line domain.ManifestLine) LineDocument {
	return LineDocument{
		VariantID:       line.VariantID,
		Name:            line.Name,
		SKU:             line.SKU,
		Quantity:        line.Quantity,
		UnitCostForeign: line.UnitCostForeign.String(),
		ItemsPerCarton:  line.ItemsPerCarton,
		LengthCm:        line.Dimensions.Length.String(),
		WidthCm:         line.Dimensions.Width.String(),
		HeightCm:        line.Dimensions.Height.String(),
		TargetPrice:     line.TargetPrice.String(),
		RetailPrice:     optionalString(line.Candidates.Retail),
		OnlinePrice:     optionalString(line.Candidates.Online),
		ProposedPrice:   optionalString(line.Candidates.Proposed),
	}
}

// Decode restores the manifest line.
func (d LineDocument) Decode() (domain.ManifestLine, error) {
	p := decimalParser{}
	line := domain.ManifestLine{
		VariantID:       d.VariantID,
		Name:            d.Name,
		SKU:             d.SKU,
		Quantity:        d.Quantity,
		UnitCostForeign: p.parse("unitCostForeign", d.UnitCostForeign),
		ItemsPerCarton:  d.ItemsPerCarton,
		Dimensions: domain.Dimensions{
			Length: p.parse("lengthCm", d.LengthCm),
			Width:  p.parse("widthCm", d.WidthCm),
			Height: p.parse("heightCm", d.HeightCm),
		},
		TargetPrice: p.parse("targetPrice", d.TargetPrice),
		Candidates: domain.CandidatePrices{
			Retail:   p.optional("retailPrice", d.RetailPrice),
			Online:   p.optional("onlinePrice", d.OnlinePrice),
			Proposed: p.optional("proposedPrice", d.ProposedPrice),
		},
	}
	if p.err != nil {
		return domain.ManifestLine{}, fmt.Errorf("line %s: %w", d.VariantID, p.err)
	}
	return line, nil
}

// EncodeDraft converts a draft into its stored form.
func EncodeDraft(draft domain.ShipmentDraft) DraftDocument {
	lines := make([]LineDocument, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		lines = append(lines, EncodeLine(line))
	}
	return DraftDocument{
		Name:      draft.Name,
		Rates:     EncodeRates(draft.Rates),
		Lines:     lines,
		LineCount: len(lines),
		SavedAt:   draft.SavedAt.UTC(),
	}
}

// Decode restores the draft stored under id.
func (d DraftDocument) Decode(id string) (domain.ShipmentDraft, error) {
	rates, err := d.Rates.Decode()
	if err != nil {
		return domain.ShipmentDraft{}, fmt.Errorf("draft %s rates: %w", id, err)
	}
	lines := make([]domain.ManifestLine, 0, len(d.Lines))
	for _, doc := range d.Lines {
		line, err := doc.Decode()
		if err != nil {
			return domain.ShipmentDraft{}, fmt.Errorf("draft %s: %w", id, err)
		}
		lines = append(lines, line)
	}
	return domain.ShipmentDraft{ID: id, Name: d.Name, Rates: rates, Lines: lines, SavedAt: d.SavedAt}, nil
}

// Summary returns the listing view of the stored draft.
func (d DraftDocument) Summary(id string) domain.DraftSummary {
	count := d.LineCount
	if count == 0 {
		count = len(d.Lines)
	}
	return domain.DraftSummary{ID: id, Name: d.Name, SavedAt: d.SavedAt, LineCount: count}
}

// EncodeClosing converts a closing record into its stored form.
func EncodeClosing(record domain.ClosingRecord) ClosingDocument {
	totals := make(map[string]string, len(record.DigitalTotals))
	for method, amount := range record.DigitalTotals {
		totals[string(method)] = amount.String()
	}
	return ClosingDocument{
		ClosingID:     record.ID,
		Date:          record.Date,
		ExpectedCash:  record.ExpectedCash.String(),
		ActualCash:    record.ActualCash.String(),
		DigitalTotals: totals,
		Variance:      record.Variance.String(),
		Status:        string(record.Status),
		Notes:         record.Notes,
		ClosedBy:      record.ClosedBy,
		CreatedAt:     record.CreatedAt.UTC(),
	}
}

// Decode restores the closing record.
func (d ClosingDocument) Decode() (domain.ClosingRecord, error) {
	p := decimalParser{}
	totals := make(map[domain.PaymentMethod]decimal.Decimal, len(d.DigitalTotals))
	for method, raw := range d.DigitalTotals {
		totals[domain.PaymentMethod(method)] = p.parse("digitalTotals."+method, raw)
	}
	record := domain.ClosingRecord{
		ID:            d.ClosingID,
		Date:          d.Date,
		ExpectedCash:  p.parse("expectedCash", d.ExpectedCash),
		ActualCash:    p.parse("actualCash", d.ActualCash),
		DigitalTotals: totals,
		Variance:      p.parse("variance", d.Variance),
		Status:        domain.VarianceStatus(d.Status),
		Notes:         d.Notes,
		ClosedBy:      d.ClosedBy,
		CreatedAt:     d.CreatedAt,
	}
	if p.err != nil {
		return domain.ClosingRecord{}, fmt.Errorf("closing %s: %w", d.Date, p.err)
	}
	return record, nil
}

// ParseDecimal parses a stored decimal; the empty string reads as zero.
func ParseDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

// decimalParser keeps the first parse failure so decoders can read all fields in one pass.
type decimalParser struct {
	err error
}

func (p *decimalParser) parse(field, raw string) decimal.Decimal {
	value, err := ParseDecimal(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", field, err)
	}
	return value
}

func (p *decimalParser) optional(field string, raw *string) *decimal.Decimal {
	if raw == nil {
		return nil
	}
	value := p.parse(field, *raw)
	return &value
}

func optionalString(value *decimal.Decimal) *string {
	if value == nil {
		return nil
	}
	s := value.String()
	return &s
}
