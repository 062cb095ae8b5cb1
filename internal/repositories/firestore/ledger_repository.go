package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/partshub/api/internal/domain"
	pfirestore "github.com/partshub/api/internal/platform/firestore"
	"github.com/partshub/api/internal/repositories"
)

const salesCollection = "sales"

type saleDocument struct {
	Amount        string    `firestore:"amount"`
	PaymentMethod string    `firestore:"paymentMethod"`
	Timestamp     time.Time `firestore:"timestamp"`
}

// LedgerRepository reads sale and refund entries from the sales collection.
type LedgerRepository struct {
	sales *pfirestore.Collection[domain.LedgerEntry]
}

var _ repositories.LedgerRepository = (*LedgerRepository)(nil)

// NewLedgerRepository binds the repository to the provider.
func NewLedgerRepository(provider *pfirestore.Provider) (*LedgerRepository, error) {
	if provider == nil {
		return nil, errors.New("ledger repository requires firestore provider")
	}
	return &LedgerRepository{
		sales: pfirestore.NewCollection[domain.LedgerEntry](provider, salesCollection, encodeSale, decodeSale),
	}, nil
}

// ListEntries returns entries stamped within [from, to) in timestamp order.
func (r *LedgerRepository) ListEntries(ctx context.Context, from, to time.Time) ([]domain.LedgerEntry, error) {
	return r.sales.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("timestamp", ">=", from.UTC()).
			Where("timestamp", "<", to.UTC()).
			OrderBy("timestamp", firestore.Asc)
	})
}

// Record stores a ledger entry.
func (r *LedgerRepository) Record(ctx context.Context, entry domain.LedgerEntry) error {
	return r.sales.Create(ctx, entry.ID, entry)
}

func encodeSale(entry domain.LedgerEntry) (map[string]any, error) {
	return map[string]any{
		"amount":        entry.Amount.String(),
		"paymentMethod": string(entry.PaymentMethod),
		"timestamp":     entry.Timestamp.UTC(),
	}, nil
}

func decodeSale(snap *firestore.DocumentSnapshot) (domain.LedgerEntry, error) {
	var doc saleDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.LedgerEntry{}, err
	}
	amount, err := repositories.ParseDecimal(strings.TrimSpace(doc.Amount))
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	return domain.LedgerEntry{
		ID:            snap.Ref.ID,
		Amount:        amount,
		PaymentMethod: domain.PaymentMethod(doc.PaymentMethod),
		Timestamp:     doc.Timestamp,
	}, nil
}
