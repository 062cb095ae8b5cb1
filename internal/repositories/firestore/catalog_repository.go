// Package firestore implements the storage contracts on Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/partshub/api/internal/domain"
	pfirestore "github.com/partshub/api/internal/platform/firestore"
	"github.com/partshub/api/internal/repositories"
)

const variantsCollection = "product_variants"

type variantDocument struct {
	ProductID       string  `firestore:"productId"`
	Name            string  `firestore:"name"`
	SKU             string  `firestore:"sku"`
	UnitCostForeign string  `firestore:"unitCostForeign"`
	ItemsPerCarton  int     `firestore:"itemsPerCarton"`
	LengthCm        string  `firestore:"lengthCm"`
	WidthCm         string  `firestore:"widthCm"`
	HeightCm        string  `firestore:"heightCm"`
	RetailPrice     *string `firestore:"retailPrice,omitempty"`
	OnlinePrice     *string `firestore:"onlinePrice,omitempty"`
	ProposedPrice   *string `firestore:"proposedPrice,omitempty"`
	StockQuantity   int     `firestore:"stockQuantity"`
}

// CatalogRepository reads product variants from the product_variants collection.
type CatalogRepository struct {
	variants *pfirestore.Collection[domain.CatalogVariant]
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository binds the repository to the provider.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		variants: pfirestore.NewCollection[domain.CatalogVariant](provider, variantsCollection, encodeVariant, decodeVariant),
	}, nil
}

// FindVariants fetches the requested variants in a single batched read.
func (r *CatalogRepository) FindVariants(ctx context.Context, variantIDs []string) (map[string]domain.CatalogVariant, error) {
	return r.variants.GetAll(ctx, variantIDs)
}

// Upsert replaces the variant document.
func (r *CatalogRepository) Upsert(ctx context.Context, v domain.CatalogVariant) error {
	doc, err := r.variants.Doc(ctx, v.VariantID)
	if err != nil {
		return err
	}
	payload, err := r.variants.Encode(v)
	if err != nil {
		return fmt.Errorf("encode variant %s: %w", v.VariantID, err)
	}
	if _, err := doc.Set(ctx, payload); err != nil {
		return pfirestore.WrapError(variantsCollection+".set", err)
	}
	return nil
}

func encodeVariant(v domain.CatalogVariant) (map[string]any, error) {
	doc := map[string]any{
		"productId":       v.ProductID,
		"name":            v.Name,
		"sku":             v.SKU,
		"unitCostForeign": v.UnitCostForeign.String(),
		"itemsPerCarton":  v.ItemsPerCarton,
		"lengthCm":        v.Dimensions.Length.String(),
		"widthCm":         v.Dimensions.Width.String(),
		"heightCm":        v.Dimensions.Height.String(),
		"stockQuantity":   v.StockQuantity,
	}
	for key, price := range map[string]*decimal.Decimal{
		"retailPrice":   v.RetailPrice,
		"onlinePrice":   v.OnlinePrice,
		"proposedPrice": v.ProposedPrice,
	} {
		if price != nil {
			doc[key] = price.String()
		}
	}
	return doc, nil
}

func decodeVariant(snap *firestore.DocumentSnapshot) (domain.CatalogVariant, error) {
	var doc variantDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.CatalogVariant{}, err
	}
	var firstErr error
	parse := func(field, raw string) decimal.Decimal {
		value, err := repositories.ParseDecimal(strings.TrimSpace(raw))
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", field, err)
		}
		return value
	}
	optional := func(field string, raw *string) *decimal.Decimal {
		if raw == nil {
			return nil
		}
		value := parse(field, *raw)
		return &value
	}
	variant := domain.CatalogVariant{
		VariantID:       snap.Ref.ID,
		ProductID:       doc.ProductID,
		Name:            doc.Name,
		SKU:             doc.SKU,
		UnitCostForeign: parse("unitCostForeign", doc.UnitCostForeign),
		ItemsPerCarton:  doc.ItemsPerCarton,
		Dimensions: domain.Dimensions{
			Length: parse("lengthCm", doc.LengthCm),
			Width:  parse("widthCm", doc.WidthCm),
			Height: parse("heightCm", doc.HeightCm),
		},
		RetailPrice:   optional("retailPrice", doc.RetailPrice),
		OnlinePrice:   optional("onlinePrice", doc.OnlinePrice),
		ProposedPrice: optional("proposedPrice", doc.ProposedPrice),
		StockQuantity: doc.StockQuantity,
	}
	return variant, firstErr
}
