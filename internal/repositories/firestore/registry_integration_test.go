//go:build integration

package firestore

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/partshub/api/internal/domain"
	pconfig "github.com/partshub/api/internal/platform/config"
	pfirestore "github.com/partshub/api/internal/platform/firestore"
	"github.com/partshub/api/internal/repositories"
)

func newEmulatorRegistry(t *testing.T) *Registry {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	project := "partshub-test-" + time.Now().UTC().Format("150405.000000")
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: project, EmulatorHost: host})
	registry, err := NewRegistry(provider)
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close(context.Background()) })
	return registry
}

func TestClosingRepositoryIntegration(t *testing.T) {
	registry := newEmulatorRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	record := domain.ClosingRecord{
		ID:            "cls_1",
		Date:          "2025-06-02",
		ExpectedCash:  decimal.RequireFromString("1200.50"),
		ActualCash:    decimal.RequireFromString("1195"),
		DigitalTotals: map[domain.PaymentMethod]decimal.Decimal{domain.PaymentMethodCard: decimal.RequireFromString("300")},
		Variance:      decimal.RequireFromString("-5.50"),
		Status:        domain.VarianceShortage,
		CreatedAt:     time.Date(2025, time.June, 2, 22, 0, 0, 0, time.UTC),
	}

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		conflict int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := registry.Closings().Create(ctx, record)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case repositories.IsClosingAlreadyExists(err):
				conflict++
			default:
				t.Errorf("unexpected create error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, success)
	assert.Equal(t, workers-1, conflict)

	stored, err := registry.Closings().FindByDate(ctx, "2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, "-5.5", stored.Variance.String())
	assert.Equal(t, "300", stored.DigitalTotals[domain.PaymentMethodCard].String())

	listed, err := registry.Closings().ListRange(ctx, "2025-06-01", "2025-06-30")
	require.NoError(t, err)
	require.Len(t, listed, 1)

	_, err = registry.Closings().FindByDate(ctx, "2025-06-03")
	assert.True(t, repositories.IsNotFound(err))
}

func TestLedgerAndDraftRepositoryIntegration(t *testing.T) {
	registry := newEmulatorRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	day := time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)
	for i, entry := range []domain.LedgerEntry{
		{ID: "s1", Amount: decimal.RequireFromString("200.50"), PaymentMethod: domain.PaymentMethodCash, Timestamp: day.Add(9 * time.Hour)},
		{ID: "s2", Amount: decimal.RequireFromString("300"), PaymentMethod: domain.PaymentMethodCard, Timestamp: day.Add(10 * time.Hour)},
		{ID: "s3", Amount: decimal.RequireFromString("99"), PaymentMethod: domain.PaymentMethodCash, Timestamp: day.Add(24 * time.Hour)},
	} {
		require.NoError(t, registry.LedgerWriter().Record(ctx, entry), "entry %d", i)
	}
	entries, err := registry.Ledger().ListEntries(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "s1", entries[0].ID)
	assert.Equal(t, "200.5", entries[0].Amount.String())

	retail := decimal.RequireFromString("80")
	draft := domain.ShipmentDraft{
		ID:   "drf_1",
		Name: "June container",
		Rates: domain.RateConfig{
			ExchangeRate: decimal.RequireFromString("4.75"),
			Duty:         domain.PercentDuty(decimal.RequireFromString("7.5")),
		},
		Lines: []domain.ManifestLine{{
			VariantID:       "var_brake_pad",
			Quantity:        100,
			UnitCostForeign: decimal.RequireFromString("10.125"),
			ItemsPerCarton:  10,
			Candidates:      domain.CandidatePrices{Retail: &retail},
		}},
		SavedAt: day,
	}
	require.NoError(t, registry.Drafts().Insert(ctx, draft))
	loaded, err := registry.Drafts().FindByID(ctx, "drf_1")
	require.NoError(t, err)
	assert.Equal(t, "10.125", loaded.Lines[0].UnitCostForeign.String())
	assert.Equal(t, "7.5", loaded.Rates.Duty.Percent.String())
	require.NotNil(t, loaded.Lines[0].Candidates.Retail)

	require.NoError(t, registry.Drafts().Delete(ctx, "drf_1"))
	assert.True(t, repositories.IsNotFound(registry.Drafts().Delete(ctx, "drf_1")))

	report, err := registry.Readiness().Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatusOK, report.Status)
}
