package di

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/partshub/api/internal/domain"
	"github.com/partshub/api/internal/platform/config"
	"github.com/partshub/api/internal/platform/idempotency"
	"github.com/partshub/api/internal/repositories/memory"
	"github.com/partshub/api/internal/services"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []services.ShiftClosedEvent
}

func (p *recordingPublisher) PublishShiftClosed(_ context.Context, event services.ShiftClosedEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return "msg-1", nil
}

type discardExporter struct{}

func (discardExporter) WriteReport(_ context.Context, report services.ReportObject) (services.ExportResult, error) {
	return services.ExportResult{Bucket: "test", Object: report.Name, CreatedAt: report.CreatedAt}, nil
}

const testPolicy = `
taxRate: "0.08"
dutyTreatment: additive
presets:
  - name: sea-standard
    rates:
      exchangeRate: "4.75"
      oceanFreight: "3500"
      inlandTrucking: "1500"
      duty: {mode: percent, percent: "5"}
      consumablePerUnit: "0.30"
      licensePerUnit: "2.00"
`

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func testConfig(policyFile string) config.Config {
	return config.Config{
		Storage: config.StorageConfig{Backend: config.BackendMemory},
		Costing: config.CostingConfig{
			TaxRate:       decimal.RequireFromString("0.10"),
			DutyTreatment: "informational",
			PolicyFile:    policyFile,
		},
		Business: config.BusinessConfig{TimeZone: "UTC", Location: time.UTC, Locale: "en-US"},
	}
}

func TestNewContainerRequiresRegistry(t *testing.T) {
	if _, err := NewContainer(context.Background(), config.Config{}, nil); err == nil {
		t.Fatalf("expected error for nil registry")
	}
}

func TestNewContainerWiresMemoryBackend(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	day := time.Date(2025, time.June, 3, 0, 0, 0, 0, time.UTC)
	store.RecordEntry(domain.LedgerEntry{ID: "s1", Amount: decimal.RequireFromString("100"), PaymentMethod: domain.PaymentMethodCash, Timestamp: day.Add(10 * time.Hour)})

	publisher := &recordingPublisher{}
	container, err := NewContainer(ctx, testConfig(writePolicy(t, testPolicy)), store,
		WithEventPublisher(publisher),
		WithReportExporter(discardExporter{}),
		WithClock(func() time.Time { return day.Add(20 * time.Hour) }),
	)
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Close(ctx); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})

	if container.Services.Shipments == nil || container.Services.Drafts == nil || container.Services.Closing == nil {
		t.Fatalf("expected all services wired, got %#v", container.Services)
	}
	presets := container.Services.Shipments.RatePresets()
	if len(presets) != 1 || presets[0].Name != "sea-standard" {
		t.Fatalf("expected preset from policy file, got %#v", presets)
	}

	record, err := container.Services.Closing.CloseShiftFromLedger(ctx, services.CloseShiftFromLedgerCommand{
		Date:       "2025-06-03",
		ActualCash: decimal.RequireFromString("100"),
		ClosedBy:   "tester",
	})
	if err != nil {
		t.Fatalf("CloseShiftFromLedger: %v", err)
	}
	if record.ExpectedCash.String() != "100" {
		t.Fatalf("expected ledger cash 100, got %s", record.ExpectedCash)
	}
	if len(publisher.events) != 1 || publisher.events[0].Date != "2025-06-03" {
		t.Fatalf("expected one shift closed event, got %#v", publisher.events)
	}

	report, err := container.Readiness.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK || report.Backend != memory.BackendName {
		t.Fatalf("unexpected readiness %#v", report)
	}
	if _, ok := report.Checks[memory.BackendName]; !ok {
		t.Fatalf("expected memory check, got %#v", report.Checks)
	}
	if _, ok := container.Idempotency.(*idempotency.MemoryStore); !ok {
		t.Fatalf("expected memory idempotency store, got %T", container.Idempotency)
	}
}

func TestNewContainerStopsJanitorOnClose(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig("")
	cfg.Idempotency.CleanupInterval = time.Millisecond
	container, err := NewContainer(ctx, cfg, memory.NewStore(), WithReportExporter(discardExporter{}))
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	if container.stopJanitor == nil {
		t.Fatalf("expected janitor to be started")
	}

	done := make(chan error, 1)
	go func() { done <- container.Close(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not stop the janitor")
	}
}

func TestNewContainerRejectsBadLocale(t *testing.T) {
	cfg := testConfig("")
	cfg.Business.Locale = "not a locale!"
	if _, err := NewContainer(context.Background(), cfg, memory.NewStore()); err == nil {
		t.Fatalf("expected locale error")
	}
}

func TestCostingPolicyFileOverridesEnvironment(t *testing.T) {
	policy, presets, err := costingPolicy(testConfig(writePolicy(t, testPolicy)).Costing)
	if err != nil {
		t.Fatalf("costingPolicy: %v", err)
	}
	if policy.TaxRate.String() != "0.08" || policy.DutyTreatment != services.DutyAdditive {
		t.Fatalf("expected file values to win, got %#v", policy)
	}
	if len(presets) != 1 {
		t.Fatalf("expected one preset, got %d", len(presets))
	}

	policy, presets, err = costingPolicy(testConfig("").Costing)
	if err != nil {
		t.Fatalf("costingPolicy without file: %v", err)
	}
	if policy.TaxRate.String() != "0.1" || policy.DutyTreatment != services.DutyInformational || len(presets) != 0 {
		t.Fatalf("expected environment policy, got %#v / %#v", policy, presets)
	}

	if _, _, err := costingPolicy(testConfig(writePolicy(t, "taxRate: [")).Costing); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestOpenRegistry(t *testing.T) {
	ctx := context.Background()
	reg, err := OpenRegistry(ctx, testConfig(""))
	if err != nil {
		t.Fatalf("OpenRegistry: %v", err)
	}
	if reg.Backend() != memory.BackendName {
		t.Fatalf("expected memory backend, got %s", reg.Backend())
	}

	cfg := testConfig("")
	cfg.Storage.Backend = "cassandra"
	if _, err := OpenRegistry(ctx, cfg); err == nil || !strings.Contains(err.Error(), "cassandra") {
		t.Fatalf("expected unsupported backend error, got %v", err)
	}
}

func TestReportError(t *testing.T) {
	if err := reportError(domain.ReadinessReport{Status: domain.HealthStatusOK}); err != nil {
		t.Fatalf("expected nil for ok report, got %v", err)
	}
	err := reportError(domain.ReadinessReport{
		Status: domain.HealthStatusDegraded,
		Checks: map[string]domain.DependencyStatus{
			"postgres": {Status: domain.HealthStatusError, Detail: "timeout"},
			"cache":    {Status: domain.HealthStatusOK, Detail: "ok"},
		},
	})
	if err == nil || err.Error() != "postgres: timeout" {
		t.Fatalf("unexpected error %v", err)
	}
	if err := reportError(domain.ReadinessReport{Status: domain.HealthStatusError}); err == nil || err.Error() != "backend status error" {
		t.Fatalf("expected generic error, got %v", err)
	}
}
