package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/partshub/api/internal/repositories"
)

// BackendName identifies the PostgreSQL backend in readiness reports.
const BackendName = "postgres"

// Registry groups the PostgreSQL repositories sharing one pool.
type Registry struct {
	pool      *pgxpool.Pool
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

// NewRegistry wires the repositories onto pool. The registry owns the pool and closes it.
func NewRegistry(pool *pgxpool.Pool, opts ...repositories.ReadinessOption) (*Registry, error) {
	if pool == nil {
		return nil, errors.New("postgres registry requires pool")
	}
	probe, err := repositories.NewReadinessProbe(BackendName, []repositories.DependencyCheck{
		{Name: "postgres", Check: pool.Ping},
	}, opts...)
	if err != nil {
		return nil, err
	}
	return &Registry{
		pool:      pool,
		catalog:   NewCatalogRepository(pool),
		ledger:    NewLedgerRepository(pool),
		drafts:    NewDraftRepository(pool),
		closings:  NewClosingRepository(pool),
		readiness: probe,
	}, nil
}

func (r *Registry) Backend() string { return BackendName }

func (r *Registry) Close(context.Context) error {
	r.pool.Close()
	return nil
}

func (r *Registry) Catalog() repositories.CatalogRepository { return r.catalog }

func (r *Registry) Ledger() repositories.LedgerRepository { return r.ledger }

func (r *Registry) Drafts() repositories.DraftRepository { return r.drafts }

func (r *Registry) Closings() repositories.ClosingRepository { return r.closings }

func (r *Registry) Readiness() repositories.ReadinessProbe { return r.readiness }

// CatalogWriter exposes variant upserts for the seed command and tests.
func (r *Registry) CatalogWriter() repositories.CatalogWriter { return r.catalog }

// LedgerWriter exposes ledger inserts for the seed command and tests.
func (r *Registry) LedgerWriter() repositories.LedgerWriter { return r.ledger }

// Pool exposes the shared connection pool to stores living outside the registry.
func (r *Registry) Pool() *pgxpool.Pool { return r.pool }
