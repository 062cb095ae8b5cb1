package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/partshub/api/internal/domain"
	ppostgres "github.com/partshub/api/internal/platform/postgres"
	"github.com/partshub/api/internal/repositories"
)

// DraftRepository stores drafts as JSONB documents in shipment_drafts.
type DraftRepository struct {
	pool *pgxpool.Pool
}

var _ repositories.DraftRepository = (*DraftRepository)(nil)

func NewDraftRepository(pool *pgxpool.Pool) *DraftRepository {
	return &DraftRepository{pool: pool}
}

func (r *DraftRepository) Insert(ctx context.Context, draft domain.ShipmentDraft) error {
	doc := repositories.EncodeDraft(draft)
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("shipment_drafts: encode %s: %w", draft.ID, err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO shipment_drafts (id, name, document, line_count, saved_at)
		VALUES ($1, $2, $3, $4, $5)
	`, draft.ID, doc.Name, payload, doc.LineCount, doc.SavedAt)
	return ppostgres.WrapError("shipment_drafts.insert", err)
}

func (r *DraftRepository) FindByID(ctx context.Context, draftID string) (domain.ShipmentDraft, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, `SELECT document FROM shipment_drafts WHERE id = $1`, draftID).Scan(&payload)
	if err != nil {
		return domain.ShipmentDraft{}, ppostgres.WrapError("shipment_drafts.select", err)
	}
	var doc repositories.DraftDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return domain.ShipmentDraft{}, fmt.Errorf("shipment_drafts: decode %s: %w", draftID, err)
	}
	return doc.Decode(draftID)
}

func (r *DraftRepository) List(ctx context.Context) ([]domain.DraftSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, saved_at, line_count
		FROM shipment_drafts
		ORDER BY saved_at DESC, id DESC
	`)
	if err != nil {
		return nil, ppostgres.WrapError("shipment_drafts.list", err)
	}
	defer rows.Close()

	summaries := make([]domain.DraftSummary, 0)
	for rows.Next() {
		var s domain.DraftSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.SavedAt, &s.LineCount); err != nil {
			return nil, ppostgres.WrapError("shipment_drafts.scan", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, ppostgres.WrapError("shipment_drafts.rows", err)
	}
	return summaries, nil
}

func (r *DraftRepository) Delete(ctx context.Context, draftID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM shipment_drafts WHERE id = $1`, draftID)
	if err != nil {
		return ppostgres.WrapError("shipment_drafts.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("shipment_drafts.delete", fmt.Sprintf("draft %s not found", draftID))
	}
	return nil
}
