package repositories

import (
	"context"
	"time"

	domain "github.com/partshub/api/internal/domain"
)

// Registry exposes the storage contracts of the active backend together with its lifecycle.
type Registry interface {
	Backend() string
	Close(ctx context.Context) error

	Catalog() CatalogRepository
	Ledger() LedgerRepository
	Drafts() DraftRepository
	Closings() ClosingRepository
	Readiness() ReadinessProbe
}

// Seeder is implemented by registries that accept fixture data outside the service layer.
type Seeder interface {
	CatalogWriter() CatalogWriter
	LedgerWriter() LedgerWriter
}

// CatalogWriter inserts or replaces catalog variants keyed by variant ID.
type CatalogWriter interface {
	Upsert(ctx context.Context, variant domain.CatalogVariant) error
}

// LedgerWriter appends recorded sales.
type LedgerWriter interface {
	Record(ctx context.Context, entry domain.LedgerEntry) error
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CatalogRepository reads the product catalog used to assemble shipment manifests.
type CatalogRepository interface {
	// FindVariants returns the variants found for the supplied IDs. Missing IDs are absent from the map.
	FindVariants(ctx context.Context, variantIDs []string) (map[string]domain.CatalogVariant, error)
}

// LedgerRepository reads recorded sales and refunds.
type LedgerRepository interface {
	// ListEntries returns entries with from <= timestamp < to ordered by timestamp.
	ListEntries(ctx context.Context, from, to time.Time) ([]domain.LedgerEntry, error)
}

// DraftRepository persists saved shipment plans.
type DraftRepository interface {
	Insert(ctx context.Context, draft domain.ShipmentDraft) error
	FindByID(ctx context.Context, draftID string) (domain.ShipmentDraft, error)
	// List returns draft summaries, newest first.
	List(ctx context.Context) ([]domain.DraftSummary, error)
	Delete(ctx context.Context, draftID string) error
}

// ClosingRepository persists daily closings. Create must be atomic on the closing date and fail
// with a ClosingError coded ClosingErrorAlreadyExists when a record for that date exists.
type ClosingRepository interface {
	Create(ctx context.Context, record domain.ClosingRecord) error
	FindByDate(ctx context.Context, date string) (domain.ClosingRecord, error)
	// ListRange returns closings with from <= date <= to ordered by date. Empty bounds are open.
	ListRange(ctx context.Context, from, to string) ([]domain.ClosingRecord, error)
}

// ReadinessProbe reports whether the backing dependencies answer.
type ReadinessProbe interface {
	Collect(ctx context.Context) (domain.ReadinessReport, error)
}
