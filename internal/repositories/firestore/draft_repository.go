package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	domain "github.com/partshub/api/internal/domain"
	pfirestore "github.com/partshub/api/internal/platform/firestore"
	"github.com/partshub/api/internal/repositories"
)

const draftsCollection = "shipment_drafts"

// DraftRepository persists shipment drafts in the shipment_drafts collection.
type DraftRepository struct {
	drafts *pfirestore.Collection[domain.ShipmentDraft]
}

var _ repositories.DraftRepository = (*DraftRepository)(nil)

// NewDraftRepository binds the repository to the provider.
func NewDraftRepository(provider *pfirestore.Provider) (*DraftRepository, error) {
	if provider == nil {
		return nil, errors.New("draft repository requires firestore provider")
	}
	return &DraftRepository{
		drafts: pfirestore.NewCollection[domain.ShipmentDraft](provider, draftsCollection, encodeDraft, decodeDraft),
	}, nil
}

func (r *DraftRepository) Insert(ctx context.Context, draft domain.ShipmentDraft) error {
	return r.drafts.Create(ctx, draft.ID, draft)
}

func (r *DraftRepository) FindByID(ctx context.Context, draftID string) (domain.ShipmentDraft, error) {
	return r.drafts.Get(ctx, draftID)
}

func (r *DraftRepository) List(ctx context.Context) ([]domain.DraftSummary, error) {
	drafts, err := r.drafts.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("savedAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.DraftSummary, 0, len(drafts))
	for _, draft := range drafts {
		out = append(out, domain.DraftSummary{ID: draft.ID, Name: draft.Name, SavedAt: draft.SavedAt, LineCount: len(draft.Lines)})
	}
	return out, nil
}

func (r *DraftRepository) Delete(ctx context.Context, draftID string) error {
	return r.drafts.Delete(ctx, draftID)
}

func encodeDraft(draft domain.ShipmentDraft) (map[string]any, error) {
	doc := repositories.EncodeDraft(draft)
	return map[string]any{
		"name":      doc.Name,
		"rates":     doc.Rates,
		"lines":     doc.Lines,
		"lineCount": doc.LineCount,
		"savedAt":   doc.SavedAt,
	}, nil
}

func decodeDraft(snap *firestore.DocumentSnapshot) (domain.ShipmentDraft, error) {
	var doc repositories.DraftDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.ShipmentDraft{}, err
	}
	return doc.Decode(snap.Ref.ID)
}
