// Package postgres implements the storage contracts on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/partshub/api/internal/domain"
	ppostgres "github.com/partshub/api/internal/platform/postgres"
	"github.com/partshub/api/internal/repositories"
)

// CatalogRepository reads product_variants.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) FindVariants(ctx context.Context, variantIDs []string) (map[string]domain.CatalogVariant, error) {
	out := make(map[string]domain.CatalogVariant, len(variantIDs))
	if len(variantIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT variant_id, product_id, name, sku,
		       unit_cost_foreign::text, items_per_carton,
		       length_cm::text, width_cm::text, height_cm::text,
		       retail_price::text, online_price::text, proposed_price::text,
		       stock_quantity
		FROM product_variants
		WHERE variant_id = ANY($1)
	`, variantIDs)
	if err != nil {
		return nil, ppostgres.WrapError("product_variants.select", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			v                           domain.CatalogVariant
			cost, length, width, height string
			retail, online, proposed    *string
		)
		if err := rows.Scan(&v.VariantID, &v.ProductID, &v.Name, &v.SKU,
			&cost, &v.ItemsPerCarton, &length, &width, &height,
			&retail, &online, &proposed, &v.StockQuantity); err != nil {
			return nil, ppostgres.WrapError("product_variants.scan", err)
		}
		p := numericReader{}
		v.UnitCostForeign = p.read("unit_cost_foreign", cost)
		v.Dimensions = domain.Dimensions{
			Length: p.read("length_cm", length),
			Width:  p.read("width_cm", width),
			Height: p.read("height_cm", height),
		}
		v.RetailPrice = p.optional("retail_price", retail)
		v.OnlinePrice = p.optional("online_price", online)
		v.ProposedPrice = p.optional("proposed_price", proposed)
		if p.err != nil {
			return nil, fmt.Errorf("product_variants %s: %w", v.VariantID, p.err)
		}
		out[v.VariantID] = v
	}
	if err := rows.Err(); err != nil {
		return nil, ppostgres.WrapError("product_variants.rows", err)
	}
	return out, nil
}

// Upsert writes a variant row, used by seeding and tests.
func (r *CatalogRepository) Upsert(ctx context.Context, v domain.CatalogVariant) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO product_variants (
			variant_id, product_id, name, sku, unit_cost_foreign, items_per_carton,
			length_cm, width_cm, height_cm, retail_price, online_price, proposed_price, stock_quantity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (variant_id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			name = EXCLUDED.name,
			sku = EXCLUDED.sku,
			unit_cost_foreign = EXCLUDED.unit_cost_foreign,
			items_per_carton = EXCLUDED.items_per_carton,
			length_cm = EXCLUDED.length_cm,
			width_cm = EXCLUDED.width_cm,
			height_cm = EXCLUDED.height_cm,
			retail_price = EXCLUDED.retail_price,
			online_price = EXCLUDED.online_price,
			proposed_price = EXCLUDED.proposed_price,
			stock_quantity = EXCLUDED.stock_quantity
	`, v.VariantID, v.ProductID, v.Name, v.SKU, v.UnitCostForeign.String(), v.ItemsPerCarton,
		v.Dimensions.Length.String(), v.Dimensions.Width.String(), v.Dimensions.Height.String(),
		numericText(v.RetailPrice), numericText(v.OnlinePrice), numericText(v.ProposedPrice), v.StockQuantity)
	return ppostgres.WrapError("product_variants.upsert", err)
}
