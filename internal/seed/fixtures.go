// Package seed loads catalog and ledger fixtures into a storage backend.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	domain "github.com/partshub/api/internal/domain"
	"github.com/partshub/api/internal/repositories"
	"github.com/partshub/api/internal/services"
)

// ErrInvalidFixture reports a fixture document that cannot be loaded.
var ErrInvalidFixture = errors.New("seed: invalid fixture")

// Fixtures is the decoded fixture document.
//
//	variants:
//	  - variantId: var_brake_pad
//	    name: Brake pad set
//	    unitCostForeign: "10"
//	    itemsPerCarton: 10
//	    dimensions: {length: "30", width: "20", height: "15"}
//	    retailPrice: "80"
//	sales:
//	  - amount: "1200.50"
//	    paymentMethod: cash
//	    timestamp: "2025-06-03T09:00:00+08:00"
type Fixtures struct {
	Variants []domain.CatalogVariant
	Sales    []domain.LedgerEntry
}

type document struct {
	Variants []variantRecord `yaml:"variants"`
	Sales    []saleRecord    `yaml:"sales"`
}

type variantRecord struct {
	VariantID       string          `yaml:"variantId"`
	ProductID       string          `yaml:"productId"`
	Name            string          `yaml:"name"`
	SKU             string          `yaml:"sku"`
	UnitCostForeign string          `yaml:"unitCostForeign"`
	ItemsPerCarton  int             `yaml:"itemsPerCarton"`
	Dimensions      dimensionRecord `yaml:"dimensions"`
	RetailPrice     string          `yaml:"retailPrice"`
	OnlinePrice     string          `yaml:"onlinePrice"`
	ProposedPrice   string          `yaml:"proposedPrice"`
	StockQuantity   int             `yaml:"stockQuantity"`
}

type dimensionRecord struct {
	Length string `yaml:"length"`
	Width  string `yaml:"width"`
	Height string `yaml:"height"`
}

type saleRecord struct {
	ID            string `yaml:"id"`
	Amount        string `yaml:"amount"`
	PaymentMethod string `yaml:"paymentMethod"`
	Timestamp     string `yaml:"timestamp"`
}

// Parse decodes a YAML fixture document. Sales without an id receive a ULID.
func Parse(data []byte) (Fixtures, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Fixtures{}, fmt.Errorf("%w: %v", ErrInvalidFixture, err)
	}

	var out Fixtures
	seen := make(map[string]struct{}, len(doc.Variants))
	for i, record := range doc.Variants {
		variant, err := record.toDomain()
		if err != nil {
			return Fixtures{}, fmt.Errorf("%w: variant %d: %v", ErrInvalidFixture, i, err)
		}
		if _, dup := seen[variant.VariantID]; dup {
			return Fixtures{}, fmt.Errorf("%w: variant %q declared twice", ErrInvalidFixture, variant.VariantID)
		}
		seen[variant.VariantID] = struct{}{}
		out.Variants = append(out.Variants, variant)
	}
	for i, record := range doc.Sales {
		entry, err := record.toDomain()
		if err != nil {
			return Fixtures{}, fmt.Errorf("%w: sale %d: %v", ErrInvalidFixture, i, err)
		}
		out.Sales = append(out.Sales, entry)
	}
	return out, nil
}

// Result counts the rows written by Apply.
type Result struct {
	Variants int
	Sales    int
}

// Apply writes the fixtures through the seeder, stopping at the first failure.
func Apply(ctx context.Context, seeder repositories.Seeder, fixtures Fixtures) (Result, error) {
	var result Result
	if seeder == nil {
		return result, errors.New("seed: seeder is required")
	}
	catalog := seeder.CatalogWriter()
	for _, variant := range fixtures.Variants {
		if err := catalog.Upsert(ctx, variant); err != nil {
			return result, fmt.Errorf("seed: upsert variant %s: %w", variant.VariantID, err)
		}
		result.Variants++
	}
	ledger := seeder.LedgerWriter()
	for _, entry := range fixtures.Sales {
		if err := ledger.Record(ctx, entry); err != nil {
			return result, fmt.Errorf("seed: record sale %s: %w", entry.ID, err)
		}
		result.Sales++
	}
	return result, nil
}

func (r variantRecord) toDomain() (domain.CatalogVariant, error) {
	id := strings.TrimSpace(r.VariantID)
	if id == "" {
		return domain.CatalogVariant{}, errors.New("variantId is required")
	}
	if r.ItemsPerCarton < 0 || r.StockQuantity < 0 {
		return domain.CatalogVariant{}, errors.New("counts must not be negative")
	}
	variant := domain.CatalogVariant{
		VariantID:      id,
		ProductID:      strings.TrimSpace(r.ProductID),
		Name:           strings.TrimSpace(r.Name),
		SKU:            strings.TrimSpace(r.SKU),
		ItemsPerCarton: r.ItemsPerCarton,
		StockQuantity:  r.StockQuantity,
	}

	required := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"unitCostForeign", r.UnitCostForeign, &variant.UnitCostForeign},
		{"dimensions.length", r.Dimensions.Length, &variant.Dimensions.Length},
		{"dimensions.width", r.Dimensions.Width, &variant.Dimensions.Width},
		{"dimensions.height", r.Dimensions.Height, &variant.Dimensions.Height},
	}
	for _, field := range required {
		value, err := parseAmount(field.name, field.raw, true)
		if err != nil {
			return domain.CatalogVariant{}, err
		}
		*field.dst = *value
	}

	optional := []struct {
		name string
		raw  string
		dst  **decimal.Decimal
	}{
		{"retailPrice", r.RetailPrice, &variant.RetailPrice},
		{"onlinePrice", r.OnlinePrice, &variant.OnlinePrice},
		{"proposedPrice", r.ProposedPrice, &variant.ProposedPrice},
	}
	for _, field := range optional {
		value, err := parseAmount(field.name, field.raw, false)
		if err != nil {
			return domain.CatalogVariant{}, err
		}
		*field.dst = value
	}
	return variant, nil
}

func (r saleRecord) toDomain() (domain.LedgerEntry, error) {
	amount, err := parseAmount("amount", r.Amount, true)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	raw := strings.TrimSpace(r.Timestamp)
	if raw == "" {
		return domain.LedgerEntry{}, errors.New("timestamp is required")
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("timestamp %q: %w", raw, err)
	}
	id := strings.TrimSpace(r.ID)
	if id == "" {
		id = "sale_" + strings.ToLower(ulid.Make().String())
	}
	return domain.LedgerEntry{
		ID:            id,
		Amount:        *amount,
		PaymentMethod: services.NormalizePaymentMethod(r.PaymentMethod),
		Timestamp:     ts,
	}, nil
}

func parseAmount(name, raw string, required bool) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return nil, fmt.Errorf("%s is required", name)
		}
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", name, raw, err)
	}
	return &value, nil
}
