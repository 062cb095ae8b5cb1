package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/partshub/api/internal/domain"
	"github.com/partshub/api/internal/repositories"
)

func TestClosingsConcurrentCreateHasOneWinner(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	record := domain.ClosingRecord{ID: "cls_1", Date: "2025-06-02", ActualCash: decimal.NewFromInt(100), Status: domain.VarianceBalanced}

	const workers = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Closings().Create(ctx, record)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if repositories.IsClosingAlreadyExists(err) {
				rejected++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, rejected)
}

func TestClosingsAreCopied(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	totals := map[domain.PaymentMethod]decimal.Decimal{domain.PaymentMethodCard: decimal.NewFromInt(300)}
	require.NoError(t, store.Closings().Create(ctx, domain.ClosingRecord{Date: "2025-06-02", DigitalTotals: totals}))

	totals[domain.PaymentMethodCard] = decimal.NewFromInt(1)
	stored, err := store.Closings().FindByDate(ctx, "2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, "300", stored.DigitalTotals[domain.PaymentMethodCard].String())

	_, err = store.Closings().FindByDate(ctx, "2025-06-03")
	assert.True(t, repositories.IsNotFound(err))
}

func TestClosingsListRange(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	for _, date := range []string{"2025-06-03", "2025-05-31", "2025-06-01"} {
		require.NoError(t, store.Closings().Create(ctx, domain.ClosingRecord{Date: date}))
	}

	all, err := store.Closings().ListRange(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"2025-05-31", "2025-06-01", "2025-06-03"}, []string{all[0].Date, all[1].Date, all[2].Date})

	bounded, err := store.Closings().ListRange(ctx, "2025-06-01", "2025-06-02")
	require.NoError(t, err)
	require.Len(t, bounded, 1)
	assert.Equal(t, "2025-06-01", bounded[0].Date)
}

func TestLedgerWindowIsHalfOpenAndOrdered(t *testing.T) {
	store := NewStore()
	day := time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)
	store.RecordEntry(domain.LedgerEntry{ID: "late", Timestamp: day.Add(20 * time.Hour)})
	store.RecordEntry(domain.LedgerEntry{ID: "next-day", Timestamp: day.Add(24 * time.Hour)})
	store.RecordEntry(domain.LedgerEntry{ID: "midnight", Timestamp: day})
	store.RecordEntry(domain.LedgerEntry{ID: "previous", Timestamp: day.Add(-time.Nanosecond)})

	entries, err := store.Ledger().ListEntries(context.Background(), day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "midnight", entries[0].ID)
	assert.Equal(t, "late", entries[1].ID)
}

func TestDraftsLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	rates := domain.RateConfig{ExchangeRate: decimal.RequireFromString("4.75"), Duty: domain.ExemptDuty()}

	require.NoError(t, store.Drafts().Insert(ctx, domain.ShipmentDraft{ID: "drf_a", Name: "first", Rates: rates, SavedAt: base}))
	require.NoError(t, store.Drafts().Insert(ctx, domain.ShipmentDraft{
		ID:      "drf_b",
		Name:    "second",
		Rates:   rates,
		Lines:   []domain.ManifestLine{{VariantID: "var_filter", Quantity: 5, UnitCostForeign: decimal.RequireFromString("4.125"), ItemsPerCarton: 2}},
		SavedAt: base.Add(time.Minute),
	}))
	err := store.Drafts().Insert(ctx, domain.ShipmentDraft{ID: "drf_a", Name: "dup", Rates: rates})
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsConflict())

	summaries, err := store.Drafts().List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "drf_b", summaries[0].ID)
	assert.Equal(t, 1, summaries[0].LineCount)

	loaded, err := store.Drafts().FindByID(ctx, "drf_b")
	require.NoError(t, err)
	assert.Equal(t, "4.125", loaded.Lines[0].UnitCostForeign.String())

	require.NoError(t, store.Drafts().Delete(ctx, "drf_b"))
	assert.True(t, repositories.IsNotFound(store.Drafts().Delete(ctx, "drf_b")))
}

func TestCatalogAndReadiness(t *testing.T) {
	store := NewStore()
	store.PutVariant(domain.CatalogVariant{VariantID: "var_brake_pad", SKU: "BP-100"})

	found, err := store.Catalog().FindVariants(context.Background(), []string{"var_brake_pad", "var_missing"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Equal(t, "BP-100", found["var_brake_pad"].SKU)

	report, err := store.Readiness().Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusOK, report.Status)
	assert.Equal(t, BackendName, store.Backend())
}
