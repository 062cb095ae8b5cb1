package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShipmentDraft is a saved work-in-progress shipment plan.
type ShipmentDraft struct {
	ID      string
	Name    string
	Rates   RateConfig
	Lines   []ManifestLine
	SavedAt time.Time
}

// DraftSummary is the list view of a saved draft.
type DraftSummary struct {
	ID        string
	Name      string
	SavedAt   time.Time
	LineCount int
}

// CatalogVariant is the catalog view of a sellable product variant used to build manifests.
type CatalogVariant struct {
	VariantID       string
	ProductID       string
	Name            string
	SKU             string
	UnitCostForeign decimal.Decimal
	ItemsPerCarton  int
	Dimensions      Dimensions
	RetailPrice     *decimal.Decimal
	OnlinePrice     *decimal.Decimal
	ProposedPrice   *decimal.Decimal
	StockQuantity   int
}
