package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/partshub/api/internal/domain"
	ppostgres "github.com/partshub/api/internal/platform/postgres"
	"github.com/partshub/api/internal/repositories"
)

const closingColumns = `
	id, to_char(closing_date, 'YYYY-MM-DD'), expected_cash::text, actual_cash::text,
	digital_totals, variance::text, status, notes, closed_by, created_at`

// ClosingRepository stores daily closings; the unique closing_date constraint arbitrates
// concurrent closes.
type ClosingRepository struct {
	pool *pgxpool.Pool
}

var _ repositories.ClosingRepository = (*ClosingRepository)(nil)

func NewClosingRepository(pool *pgxpool.Pool) *ClosingRepository {
	return &ClosingRepository{pool: pool}
}

func (r *ClosingRepository) Create(ctx context.Context, record domain.ClosingRecord) error {
	if record.Date == "" {
		return repositories.NewClosingError(repositories.ClosingErrorInvalidInput, "", "closing date is required", nil)
	}
	doc := repositories.EncodeClosing(record)
	totals, err := json.Marshal(doc.DigitalTotals)
	if err != nil {
		return fmt.Errorf("daily_closings: encode totals: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO daily_closings (
			id, closing_date, expected_cash, actual_cash, digital_totals,
			variance, status, notes, closed_by, created_at
		) VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9, $10)
	`, doc.ClosingID, doc.Date, doc.ExpectedCash, doc.ActualCash, totals,
		doc.Variance, doc.Status, doc.Notes, doc.ClosedBy, doc.CreatedAt)
	if err == nil {
		return nil
	}
	wrapped := ppostgres.WrapError("daily_closings.insert", err)
	var pgErr *ppostgres.Error
	if errors.As(wrapped, &pgErr) && pgErr.IsUniqueViolation() {
		return repositories.NewClosingError(repositories.ClosingErrorAlreadyExists, record.Date, "closing already recorded", pgErr)
	}
	return wrapped
}

func (r *ClosingRepository) FindByDate(ctx context.Context, date string) (domain.ClosingRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+closingColumns+` FROM daily_closings WHERE closing_date = $1::date`, date)
	record, err := scanClosing(row)
	if err != nil {
		return domain.ClosingRecord{}, ppostgres.WrapError("daily_closings.select", err)
	}
	return record, nil
}

func (r *ClosingRepository) ListRange(ctx context.Context, from, to string) ([]domain.ClosingRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+closingColumns+`
		FROM daily_closings
		WHERE closing_date >= COALESCE(NULLIF($1, '')::date, '-infinity'::date)
		  AND closing_date <= COALESCE(NULLIF($2, '')::date, 'infinity'::date)
		ORDER BY closing_date
	`, from, to)
	if err != nil {
		return nil, ppostgres.WrapError("daily_closings.list", err)
	}
	defer rows.Close()

	var records []domain.ClosingRecord
	for rows.Next() {
		record, err := scanClosing(rows)
		if err != nil {
			return nil, ppostgres.WrapError("daily_closings.scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, ppostgres.WrapError("daily_closings.rows", err)
	}
	return records, nil
}

func scanClosing(row pgx.Row) (domain.ClosingRecord, error) {
	var (
		doc    repositories.ClosingDocument
		totals []byte
	)
	if err := row.Scan(&doc.ClosingID, &doc.Date, &doc.ExpectedCash, &doc.ActualCash,
		&totals, &doc.Variance, &doc.Status, &doc.Notes, &doc.ClosedBy, &doc.CreatedAt); err != nil {
		return domain.ClosingRecord{}, err
	}
	if len(totals) > 0 {
		if err := json.Unmarshal(totals, &doc.DigitalTotals); err != nil {
			return domain.ClosingRecord{}, fmt.Errorf("decode digital totals: %w", err)
		}
	}
	return doc.Decode()
}
