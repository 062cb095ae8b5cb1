package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/partshub/api/internal/domain"
	pfirestore "github.com/partshub/api/internal/platform/firestore"
	"github.com/partshub/api/internal/repositories"
)

const (
	closingsCollection = "daily_closings"
	closingTxTimeout   = 10 * time.Second
)

// ClosingRepository stores one document per business date in daily_closings. The date is the
// document ID, so uniqueness is enforced by Firestore's create semantics.
type ClosingRepository struct {
	provider *pfirestore.Provider
	closings *pfirestore.Collection[domain.ClosingRecord]
}

var _ repositories.ClosingRepository = (*ClosingRepository)(nil)

// NewClosingRepository binds the repository to the provider.
func NewClosingRepository(provider *pfirestore.Provider) (*ClosingRepository, error) {
	if provider == nil {
		return nil, errors.New("closing repository requires firestore provider")
	}
	return &ClosingRepository{
		provider: provider,
		closings: pfirestore.NewCollection[domain.ClosingRecord](provider, closingsCollection, encodeClosing, decodeClosing),
	}, nil
}

// Create records the closing inside a transaction so a concurrent close of the same date aborts
// with closing_already_exists.
func (r *ClosingRepository) Create(ctx context.Context, record domain.ClosingRecord) error {
	if record.Date == "" {
		return repositories.NewClosingError(repositories.ClosingErrorInvalidInput, "", "closing date is required", nil)
	}
	ref, err := r.closings.Doc(ctx, record.Date)
	if err != nil {
		return err
	}
	payload, err := r.closings.Encode(record)
	if err != nil {
		return err
	}
	err = r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		return tx.Create(ref, payload)
	}, pfirestore.WithTxAttempts(1), pfirestore.WithTxTimeout(closingTxTimeout))
	return wrapClosingError("daily_closings.create", record.Date, err)
}

func (r *ClosingRepository) FindByDate(ctx context.Context, date string) (domain.ClosingRecord, error) {
	return r.closings.Get(ctx, date)
}

func (r *ClosingRepository) ListRange(ctx context.Context, from, to string) ([]domain.ClosingRecord, error) {
	return r.closings.Query(ctx, func(q firestore.Query) firestore.Query {
		if from != "" {
			q = q.Where("date", ">=", from)
		}
		if to != "" {
			q = q.Where("date", "<=", to)
		}
		return q.OrderBy("date", firestore.Asc)
	})
}

func encodeClosing(record domain.ClosingRecord) (map[string]any, error) {
	doc := repositories.EncodeClosing(record)
	return map[string]any{
		"closingId":     doc.ClosingID,
		"date":          doc.Date,
		"expectedCash":  doc.ExpectedCash,
		"actualCash":    doc.ActualCash,
		"digitalTotals": doc.DigitalTotals,
		"variance":      doc.Variance,
		"status":        doc.Status,
		"notes":         doc.Notes,
		"closedBy":      doc.ClosedBy,
		"createdAt":     doc.CreatedAt,
	}, nil
}

func decodeClosing(snap *firestore.DocumentSnapshot) (domain.ClosingRecord, error) {
	var doc repositories.ClosingDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.ClosingRecord{}, err
	}
	if doc.Date == "" {
		doc.Date = snap.Ref.ID
	}
	return doc.Decode()
}
