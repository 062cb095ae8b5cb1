package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/partshub/api/internal/platform/firestore"
	"github.com/partshub/api/internal/repositories"
)

// BackendName identifies the Firestore backend in readiness reports.
const BackendName = "firestore"

// Registry groups the Firestore repositories sharing one provider.
type Registry struct {
	provider  *pfirestore.Provider
	catalog   *CatalogRepository
	ledger    *LedgerRepository
	drafts    *DraftRepository
	closings  *ClosingRepository
	readiness repositories.ReadinessProbe
}

var (
	_ repositories.Registry = (*Registry)(nil)
	_ repositories.Seeder   = (*Registry)(nil)
)

// NewRegistry wires every repository onto provider. The registry owns the provider and closes it.
func NewRegistry(provider *pfirestore.Provider, opts ...repositories.ReadinessOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		return nil, err
	}
	ledger, err := NewLedgerRepository(provider)
	if err != nil {
		return nil, err
	}
	drafts, err := NewDraftRepository(provider)
	if err != nil {
		return nil, err
	}
	closings, err := NewClosingRepository(provider)
	if err != nil {
		return nil, err
	}
	probe, err := repositories.NewReadinessProbe(BackendName, []repositories.DependencyCheck{
		{Name: "firestore", Check: func(ctx context.Context) error {
			return provider.Ping(ctx, closingsCollection)
		}},
	}, opts...)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider:  provider,
		catalog:   catalog,
		ledger:    ledger,
		drafts:    drafts,
		closings:  closings,
		readiness: probe,
	}, nil
}

func (r *Registry) Backend() string { return BackendName }

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Catalog() repositories.CatalogRepository { return r.catalog }

func (r *Registry) Ledger() repositories.LedgerRepository { return r.ledger }

func (r *Registry) Drafts() repositories.DraftRepository { return r.drafts }

func (r *Registry) Closings() repositories.ClosingRepository { return r.closings }

func (r *Registry) Readiness() repositories.ReadinessProbe { return r.readiness }

// CatalogWriter exposes variant upserts for the seed command.
func (r *Registry) CatalogWriter() repositories.CatalogWriter { return r.catalog }

// LedgerWriter exposes direct ledger writes for the seed command and tests.
func (r *Registry) LedgerWriter() repositories.LedgerWriter { return r.ledger }

// Provider exposes the shared client provider to stores living outside the registry.
func (r *Registry) Provider() *pfirestore.Provider { return r.provider }
