// Package memory implements the storage contracts in process memory for local development
// and tests.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	domain "github.com/partshub/api/internal/domain"
	"github.com/partshub/api/internal/repositories"
)

// BackendName identifies the in-memory backend in readiness reports.
const BackendName = "memory"

// Store holds every collection behind one mutex. Values are copied on the way in and out.
type Store struct {
	mu       sync.RWMutex
	variants map[string]domain.CatalogVariant
	ledger   []domain.LedgerEntry
	drafts   map[string]repositories.DraftDocument
	closings map[string]domain.ClosingRecord
	now      func() time.Time
}

var (
	_ repositories.Registry = (*Store)(nil)
	_ repositories.Seeder   = (*Store)(nil)
)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		variants: make(map[string]domain.CatalogVariant),
		drafts:   make(map[string]repositories.DraftDocument),
		closings: make(map[string]domain.ClosingRecord),
		now:      time.Now,
	}
}

func (s *Store) Backend() string { return BackendName }

func (s *Store) Close(context.Context) error { return nil }

func (s *Store) Catalog() repositories.CatalogRepository { return catalogRepo{s} }

func (s *Store) Ledger() repositories.LedgerRepository { return ledgerRepo{s} }

func (s *Store) Drafts() repositories.DraftRepository { return draftRepo{s} }

func (s *Store) Closings() repositories.ClosingRepository { return closingRepo{s} }

func (s *Store) Readiness() repositories.ReadinessProbe { return s }

func (s *Store) CatalogWriter() repositories.CatalogWriter { return catalogRepo{s} }

func (s *Store) LedgerWriter() repositories.LedgerWriter { return ledgerRepo{s} }

// Collect always reports healthy since there is no remote dependency.
func (s *Store) Collect(context.Context) (domain.ReadinessReport, error) {
	now := s.now()
	return domain.ReadinessReport{
		Status:  domain.HealthStatusOK,
		Backend: BackendName,
		Checks: map[string]domain.DependencyStatus{
			BackendName: {Status: domain.HealthStatusOK, Detail: "ok", CheckedAt: now},
		},
		GeneratedAt: now,
	}, nil
}

// PutVariant seeds a catalog variant.
func (s *Store) PutVariant(v domain.CatalogVariant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[v.VariantID] = v
}

// RecordEntry appends a ledger entry.
func (s *Store) RecordEntry(entry domain.LedgerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = append(s.ledger, entry)
}

type catalogRepo struct{ s *Store }

func (r catalogRepo) FindVariants(_ context.Context, ids []string) (map[string]domain.CatalogVariant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[string]domain.CatalogVariant, len(ids))
	for _, id := range ids {
		if v, ok := r.s.variants[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (r catalogRepo) Upsert(_ context.Context, v domain.CatalogVariant) error {
	r.s.PutVariant(v)
	return nil
}

type ledgerRepo struct{ s *Store }

func (r ledgerRepo) Record(_ context.Context, entry domain.LedgerEntry) error {
	r.s.RecordEntry(entry)
	return nil
}

func (r ledgerRepo) ListEntries(_ context.Context, from, to time.Time) ([]domain.LedgerEntry, error) {
	r.s.mu.RLock()
	var out []domain.LedgerEntry
	for _, entry := range r.s.ledger {
		if !entry.Timestamp.Before(from) && entry.Timestamp.Before(to) {
			out = append(out, entry)
		}
	}
	r.s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

type draftRepo struct{ s *Store }

func (r draftRepo) Insert(_ context.Context, draft domain.ShipmentDraft) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.drafts[draft.ID]; exists {
		return &conflictError{kind: "draft", id: draft.ID}
	}
	r.s.drafts[draft.ID] = repositories.EncodeDraft(draft)
	return nil
}

func (r draftRepo) FindByID(_ context.Context, id string) (domain.ShipmentDraft, error) {
	r.s.mu.RLock()
	doc, ok := r.s.drafts[id]
	r.s.mu.RUnlock()
	if !ok {
		return domain.ShipmentDraft{}, &notFoundError{kind: "draft", id: id}
	}
	return doc.Decode(id)
}

func (r draftRepo) List(context.Context) ([]domain.DraftSummary, error) {
	r.s.mu.RLock()
	out := make([]domain.DraftSummary, 0, len(r.s.drafts))
	for id, doc := range r.s.drafts {
		out = append(out, doc.Summary(id))
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].SavedAt.Equal(out[j].SavedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].SavedAt.After(out[j].SavedAt)
	})
	return out, nil
}

func (r draftRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.drafts[id]; !ok {
		return &notFoundError{kind: "draft", id: id}
	}
	delete(r.s.drafts, id)
	return nil
}

type closingRepo struct{ s *Store }

func (r closingRepo) Create(_ context.Context, record domain.ClosingRecord) error {
	if record.Date == "" {
		return repositories.NewClosingError(repositories.ClosingErrorInvalidInput, "", "closing date is required", nil)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.closings[record.Date]; exists {
		return repositories.NewClosingError(repositories.ClosingErrorAlreadyExists, record.Date, "closing already recorded", nil)
	}
	r.s.closings[record.Date] = cloneClosing(record)
	return nil
}

func (r closingRepo) FindByDate(_ context.Context, date string) (domain.ClosingRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	record, ok := r.s.closings[date]
	if !ok {
		return domain.ClosingRecord{}, &notFoundError{kind: "closing", id: date}
	}
	return cloneClosing(record), nil
}

func (r closingRepo) ListRange(_ context.Context, from, to string) ([]domain.ClosingRecord, error) {
	r.s.mu.RLock()
	var out []domain.ClosingRecord
	for date, record := range r.s.closings {
		if from != "" && date < from {
			continue
		}
		if to != "" && date > to {
			continue
		}
		out = append(out, cloneClosing(record))
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func cloneClosing(record domain.ClosingRecord) domain.ClosingRecord {
	record.DigitalTotals = maps.Clone(record.DigitalTotals)
	return record
}
