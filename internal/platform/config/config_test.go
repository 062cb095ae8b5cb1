package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/partshub/api/internal/domain"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.ShutdownTimeout != defaultShutdownTimeout {
		t.Errorf("unexpected shutdown timeout: %s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Costing.TaxRate.String() != "0.1" {
		t.Errorf("expected default tax rate 0.1, got %s", cfg.Costing.TaxRate)
	}
	if cfg.Costing.DutyTreatment != "informational" {
		t.Errorf("expected informational duty treatment, got %s", cfg.Costing.DutyTreatment)
	}
	if cfg.Business.Location == nil || cfg.Business.Location.String() != "UTC" {
		t.Errorf("expected UTC location, got %v", cfg.Business.Location)
	}
	if cfg.Exports.Prefix != "exports" || cfg.Exports.Bucket != "" {
		t.Errorf("unexpected exports config %#v", cfg.Exports)
	}
	if cfg.Events.ShiftClosedTopic != "" {
		t.Errorf("expected events disabled by default, got %s", cfg.Events.ShiftClosedTopic)
	}
	if cfg.Idempotency.Header != "Idempotency-Key" || cfg.Idempotency.TTL != 24*time.Hour || cfg.Idempotency.RequireKey {
		t.Errorf("unexpected idempotency defaults %#v", cfg.Idempotency)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"PARTSHUB_SERVER_PORT":             "9090",
		"PARTSHUB_SERVER_WRITE_TIMEOUT":    "25s",
		"PARTSHUB_STORAGE_BACKEND":         "Postgres",
		"PARTSHUB_FIRESTORE_PROJECT_ID":    "parts-prod",
		"PARTSHUB_POSTGRES_URL":            "secret://postgres_url",
		"PARTSHUB_POSTGRES_MAX_CONNS":      "4",
		"PARTSHUB_EXPORTS_BUCKET":          "parts-exports",
		"PARTSHUB_EXPORTS_PREFIX":          "/reports/",
		"PARTSHUB_EVENTS_ENABLED":          "true",
		"PARTSHUB_COSTING_TAX_RATE":        "0.11",
		"PARTSHUB_COSTING_DUTY_TREATMENT":  "ADDITIVE",
		"PARTSHUB_BUSINESS_TIMEZONE":       "Asia/Kuala_Lumpur",
		"PARTSHUB_BUSINESS_LOCALE":         "ms",
		"PARTSHUB_IDEMPOTENCY_HEADER":      "X-Request-Key",
		"PARTSHUB_IDEMPOTENCY_TTL":         "2h",
		"PARTSHUB_IDEMPOTENCY_REQUIRE_KEY": "yes",
	}
	var refs []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		refs = append(refs, ref)
		return " postgres://parts:pw@db/parts \n", nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Server.WriteTimeout != 25*time.Second {
		t.Errorf("unexpected server config %#v", cfg.Server)
	}
	if cfg.Storage.Backend != BackendPostgres {
		t.Errorf("expected postgres backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Postgres.URL != "postgres://parts:pw@db/parts" || cfg.Postgres.MaxConns != 4 {
		t.Errorf("unexpected postgres config %#v", cfg.Postgres)
	}
	if len(refs) != 1 || refs[0] != "secret://postgres_url" {
		t.Errorf("unexpected resolver calls %v", refs)
	}
	if cfg.Exports.Prefix != "reports" {
		t.Errorf("expected trimmed prefix, got %s", cfg.Exports.Prefix)
	}
	if cfg.Events.ProjectID != "parts-prod" || cfg.Events.ShiftClosedTopic != "shift.closed" {
		t.Errorf("unexpected events config %#v", cfg.Events)
	}
	if cfg.Secrets.ProjectID != "parts-prod" {
		t.Errorf("expected secrets project to default to firestore project, got %s", cfg.Secrets.ProjectID)
	}
	if cfg.Costing.TaxRate.String() != "0.11" || cfg.Costing.DutyTreatment != "additive" {
		t.Errorf("unexpected costing config %#v", cfg.Costing)
	}
	if cfg.Business.Location.String() != "Asia/Kuala_Lumpur" {
		t.Errorf("unexpected location %s", cfg.Business.Location)
	}
	if cfg.Idempotency.Header != "X-Request-Key" || cfg.Idempotency.TTL != 2*time.Hour || !cfg.Idempotency.RequireKey {
		t.Errorf("unexpected idempotency config %#v", cfg.Idempotency)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"PARTSHUB_STORAGE_BACKEND":        "firestore",
		"PARTSHUB_COSTING_TAX_RATE":       "1.5",
		"PARTSHUB_COSTING_DUTY_TREATMENT": "compound",
		"PARTSHUB_BUSINESS_TIMEZONE":      "Mars/Olympus",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := map[string]bool{
		"Firestore.ProjectID":   false,
		"Costing.TaxRate":       false,
		"Costing.DutyTreatment": false,
		"Business.TimeZone":     false,
	}
	for _, field := range vErr.Fields() {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected %s in validation fields %v", field, vErr.Fields())
		}
	}
}

func TestLoadUnknownBackend(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(map[string]string{"PARTSHUB_STORAGE_BACKEND": "sqlite"}),
		WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) || len(vErr.Fields()) != 1 || vErr.Fields()[0] != "Storage.Backend" {
		t.Fatalf("expected Storage.Backend validation error, got %v", err)
	}
}

func TestLoadSecretWithoutResolver(t *testing.T) {
	env := map[string]string{
		"PARTSHUB_STORAGE_BACKEND": "postgres",
		"PARTSHUB_POSTGRES_URL":    "secret://postgres_url",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var sErr *SecretError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if sErr.Field != "Postgres.URL" || !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("unexpected secret error %#v", sErr)
	}
}

func TestLoadReadsDotEnvWithLowerPrecedence(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "# local\nPARTSHUB_SERVER_PORT=7070\nexport PARTSHUB_BUSINESS_LOCALE=\"id\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(envPath),
		WithEnvMap(map[string]string{"PARTSHUB_SERVER_PORT": "6060"}),
		WithoutSystemEnv(),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected env map to win over .env, got %s", cfg.Server.Port)
	}
	if cfg.Business.Locale != "id" {
		t.Errorf("expected locale from .env, got %s", cfg.Business.Locale)
	}
}

func TestBootstrapReadsSecretsSettings(t *testing.T) {
	secrets, level, err := Bootstrap(
		WithEnvMap(map[string]string{
			"PARTSHUB_FIRESTORE_PROJECT_ID": "parts-dev",
			"PARTSHUB_LOG_LEVEL":            "DEBUG",
		}),
		WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Bootstrap returned error: %v", err)
	}
	if secrets.ProjectID != "parts-dev" || secrets.FallbackFile != ".secrets.local" || level != "debug" {
		t.Fatalf("unexpected bootstrap output %#v %s", secrets, level)
	}
}

func TestParsePolicy(t *testing.T) {
	policy, err := ParsePolicy([]byte(`
taxRate: "0.08"
dutyTreatment: Additive
presets:
  - name: sea-standard
    description: 40ft container via Port Klang
    rates:
      exchangeRate: "4.75"
      oceanFreight: "3500"
      inlandTrucking: "1500"
      duty: {mode: percent, percent: "5"}
      consumablePerUnit: "0.30"
      licensePerUnit: "2.00"
  - name: air-express
    rates:
      exchangeRate: "4.80"
      oceanFreight: "9000"
`))
	if err != nil {
		t.Fatalf("ParsePolicy returned error: %v", err)
	}
	if policy.TaxRate == nil || policy.TaxRate.String() != "0.08" || policy.DutyTreatment != "additive" {
		t.Fatalf("unexpected policy values %#v", policy)
	}
	if len(policy.Presets) != 2 {
		t.Fatalf("expected 2 presets, got %d", len(policy.Presets))
	}
	sea := policy.Presets[0]
	if sea.Rates.Duty.Kind != domain.DutyPercent || sea.Rates.Duty.Percent.String() != "5" {
		t.Errorf("unexpected duty %#v", sea.Rates.Duty)
	}
	if sea.Rates.ExchangeRate.String() != "4.75" || sea.Rates.LicensePerUnit.String() != "2" {
		t.Errorf("unexpected rates %#v", sea.Rates)
	}
	air := policy.Presets[1]
	if air.Rates.Duty.Kind != domain.DutyExempt || !air.Rates.InlandTrucking.IsZero() {
		t.Errorf("expected defaults for omitted fields, got %#v", air.Rates)
	}
}

func TestParsePolicyRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"bad decimal":    "presets:\n  - name: x\n    rates: {exchangeRate: abc}\n",
		"missing name":   "presets:\n  - rates: {exchangeRate: \"1\"}\n",
		"duplicate name": "presets:\n  - name: x\n  - name: x\n",
		"bad duty":       "presets:\n  - name: x\n    rates: {duty: {mode: compound}}\n",
		"bad tax":        "taxRate: ten\n",
		"tax above one":  "taxRate: \"10\"\n",
		"negative tax":   "taxRate: \"-0.1\"\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParsePolicy([]byte(doc)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestLoadPolicyFileMissingIsEmpty(t *testing.T) {
	policy, err := LoadPolicyFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadPolicyFile returned error: %v", err)
	}
	if policy.TaxRate != nil || len(policy.Presets) != 0 {
		t.Fatalf("expected empty policy, got %#v", policy)
	}
}
