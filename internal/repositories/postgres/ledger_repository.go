package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/partshub/api/internal/domain"
	ppostgres "github.com/partshub/api/internal/platform/postgres"
	"github.com/partshub/api/internal/repositories"
)

// LedgerRepository reads the sales table.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

var _ repositories.LedgerRepository = (*LedgerRepository)(nil)

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

func (r *LedgerRepository) ListEntries(ctx context.Context, from, to time.Time) ([]domain.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, amount::text, payment_method, sold_at
		FROM sales
		WHERE sold_at >= $1 AND sold_at < $2
		ORDER BY sold_at, id
	`, from, to)
	if err != nil {
		return nil, ppostgres.WrapError("sales.select", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			entry  domain.LedgerEntry
			amount string
			method string
		)
		if err := rows.Scan(&entry.ID, &amount, &method, &entry.Timestamp); err != nil {
			return nil, ppostgres.WrapError("sales.scan", err)
		}
		p := numericReader{}
		entry.Amount = p.read("amount", amount)
		if p.err != nil {
			return nil, p.err
		}
		entry.PaymentMethod = domain.PaymentMethod(method)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, ppostgres.WrapError("sales.rows", err)
	}
	return entries, nil
}

// Record inserts a ledger entry.
func (r *LedgerRepository) Record(ctx context.Context, entry domain.LedgerEntry) error {
	method := string(entry.PaymentMethod)
	if method == "" {
		method = string(domain.PaymentMethodUnspecified)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sales (id, amount, payment_method, sold_at) VALUES ($1, $2, $3, $4)
	`, entry.ID, entry.Amount.String(), method, entry.Timestamp.UTC())
	return ppostgres.WrapError("sales.insert", err)
}
