package di

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	domain "github.com/partshub/api/internal/domain"
	"github.com/partshub/api/internal/platform/config"
	pfirestore "github.com/partshub/api/internal/platform/firestore"
	"github.com/partshub/api/internal/platform/idempotency"
	"github.com/partshub/api/internal/platform/jobs"
	"github.com/partshub/api/internal/platform/observability"
	ppostgres "github.com/partshub/api/internal/platform/postgres"
	"github.com/partshub/api/internal/platform/storage"
	"github.com/partshub/api/internal/repositories"
	firestoreRepo "github.com/partshub/api/internal/repositories/firestore"
	"github.com/partshub/api/internal/repositories/memory"
	postgresRepo "github.com/partshub/api/internal/repositories/postgres"
	"github.com/partshub/api/internal/services"
)

const dependencyCheckTimeout = 2 * time.Second

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Closing   services.ClosingService
	Drafts    services.DraftService
	Shipments services.ShipmentPlanningService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Readiness    repositories.ReadinessProbe
	Idempotency  idempotency.Store

	logger      *zap.Logger
	pubsub      *pubsub.Client
	topic       *pubsub.Topic
	publisher   *jobs.ShiftClosedPublisher
	exporter    *storage.Exporter
	stopJanitor context.CancelFunc
	janitorDone chan struct{}
}

// Option customises container construction.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	clock     func() time.Time
	publisher services.ClosingEventPublisher
	exporter  services.ReportExporter
}

// WithLogger sets the base logger handed to services and background workers.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the clock used by services.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithEventPublisher replaces the Pub/Sub publisher built from Config.Events.
func WithEventPublisher(publisher services.ClosingEventPublisher) Option {
	return func(o *options) {
		o.publisher = publisher
	}
}

// WithReportExporter replaces the Cloud Storage exporter built from Config.Exports.
func WithReportExporter(exporter services.ReportExporter) Option {
	return func(o *options) {
		o.exporter = exporter
	}
}

// OpenRegistry connects the storage backend selected by cfg.Storage.Backend. Postgres schemas are
// migrated before the registry is returned.
func OpenRegistry(ctx context.Context, cfg config.Config, opts ...repositories.ReadinessOption) (repositories.Registry, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case config.BackendFirestore:
		registry, err := firestoreRepo.NewRegistry(pfirestore.NewProvider(cfg.Firestore), opts...)
		if err != nil {
			return nil, fmt.Errorf("build firestore registry: %w", err)
		}
		return registry, nil
	case config.BackendPostgres:
		pool, err := ppostgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := ppostgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		registry, err := postgresRepo.NewRegistry(pool, opts...)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("build postgres registry: %w", err)
		}
		return registry, nil
	case config.BackendMemory, "":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

// NewContainer constructs the runtime dependencies. Production wiring connects Pub/Sub and Cloud
// Storage when configured, while tests can supply in-memory registries and fakes.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	o := options{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	c := &Container{Config: cfg, Repositories: reg, logger: o.logger}
	if err := c.connectInfrastructure(ctx, &o); err != nil {
		_ = c.Close(ctx)
		return nil, err
	}

	svc, err := buildServices(cfg, reg, o)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.Services = svc

	probe, err := c.buildReadiness(o.clock)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.Readiness = probe

	store, err := idempotencyStore(reg)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.Idempotency = store
	c.startJanitor(ctx, o.clock)
	return c, nil
}

// idempotencyStore keeps replay records next to the domain data of the selected backend.
func idempotencyStore(reg repositories.Registry) (idempotency.Store, error) {
	switch backend := reg.(type) {
	case interface{ Provider() *pfirestore.Provider }:
		store, err := idempotency.NewFirestoreStore(backend.Provider())
		if err != nil {
			return nil, fmt.Errorf("build firestore idempotency store: %w", err)
		}
		return store, nil
	case interface{ Pool() *pgxpool.Pool }:
		store, err := idempotency.NewPostgresStore(backend.Pool())
		if err != nil {
			return nil, fmt.Errorf("build postgres idempotency store: %w", err)
		}
		return store, nil
	default:
		return idempotency.NewMemoryStore(), nil
	}
}

func (c *Container) startJanitor(ctx context.Context, clock func() time.Time) {
	interval := c.Config.Idempotency.CleanupInterval
	if interval <= 0 || c.Idempotency == nil {
		return
	}
	janitorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.stopJanitor = cancel
	c.janitorDone = done
	go func() {
		defer close(done)
		idempotency.RunJanitor(janitorCtx, c.Idempotency, interval, c.logger.Named("idempotency"), clock)
	}()
}

// Close stops the idempotency janitor, flushes pending events and releases every client.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.stopJanitor != nil {
		c.stopJanitor()
		<-c.janitorDone
		c.stopJanitor = nil
	}
	if c.publisher != nil {
		c.publisher.Stop()
	}
	if c.pubsub != nil {
		if err := c.pubsub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub: %w", err))
		}
	}
	if c.exporter != nil {
		if err := c.exporter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close repositories: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Container) connectInfrastructure(ctx context.Context, o *options) error {
	if o.publisher == nil && strings.TrimSpace(c.Config.Events.ShiftClosedTopic) != "" {
		client, err := pubsub.NewClient(ctx, c.Config.Events.ProjectID)
		if err != nil {
			return fmt.Errorf("create pubsub client: %w", err)
		}
		c.pubsub = client
		topic := client.Topic(c.Config.Events.ShiftClosedTopic)
		topic.EnableMessageOrdering = true
		c.topic = topic
		publisher, err := jobs.NewShiftClosedPublisher(topic)
		if err != nil {
			return fmt.Errorf("build shift closed publisher: %w", err)
		}
		c.publisher = publisher
		o.publisher = publisher
	}

	if o.exporter == nil && strings.TrimSpace(c.Config.Exports.Bucket) != "" {
		exporter, err := storage.NewExporter(ctx, c.Config.Exports, storage.WithExporterLogger(c.logger))
		if err != nil {
			return fmt.Errorf("build report exporter: %w", err)
		}
		c.exporter = exporter
		o.exporter = exporter
	}
	return nil
}

func buildServices(cfg config.Config, reg repositories.Registry, o options) (Services, error) {
	var svc Services
	events := observability.EventLogger(o.logger)

	policy, presets, err := costingPolicy(cfg.Costing)
	if err != nil {
		return Services{}, err
	}
	engine, err := services.NewLandedCostEngine(policy)
	if err != nil {
		return Services{}, fmt.Errorf("build landed cost engine: %w", err)
	}

	locale := language.English
	if raw := strings.TrimSpace(cfg.Business.Locale); raw != "" {
		tag, err := language.Parse(raw)
		if err != nil {
			return Services{}, fmt.Errorf("parse business locale %q: %w", raw, err)
		}
		locale = tag
	}

	shipments, err := services.NewShipmentPlanningService(services.ShipmentPlanningServiceDeps{
		Catalog:  reg.Catalog(),
		Engine:   engine,
		Exporter: o.exporter,
		Presets:  presets,
		Locale:   locale,
		Clock:    o.clock,
		Logger:   events,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipment planning service: %w", err)
	}
	svc.Shipments = shipments

	drafts, err := services.NewDraftService(services.DraftServiceDeps{
		Drafts: reg.Drafts(),
		Clock:  o.clock,
		Logger: events,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build draft service: %w", err)
	}
	svc.Drafts = drafts

	closing, err := services.NewClosingService(services.ClosingServiceDeps{
		Closings: reg.Closings(),
		Ledger:   reg.Ledger(),
		Events:   o.publisher,
		Location: cfg.Business.Location,
		Clock:    o.clock,
		Logger:   events,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build closing service: %w", err)
	}
	svc.Closing = closing

	return svc, nil
}

// costingPolicy merges the environment policy with the optional YAML policy file. Values set in
// the file win.
func costingPolicy(cfg config.CostingConfig) (services.CostingPolicy, []services.RatePreset, error) {
	policy := services.CostingPolicy{TaxRate: cfg.TaxRate}
	if treatment := strings.TrimSpace(cfg.DutyTreatment); treatment != "" {
		policy.DutyTreatment = services.DutyTreatment(strings.ToLower(treatment))
	}

	file, err := config.LoadPolicyFile(cfg.PolicyFile)
	if err != nil {
		return services.CostingPolicy{}, nil, err
	}
	if file.TaxRate != nil {
		policy.TaxRate = *file.TaxRate
	}
	if file.DutyTreatment != "" {
		policy.DutyTreatment = services.DutyTreatment(file.DutyTreatment)
	}
	return policy, file.Presets, nil
}

func (c *Container) buildReadiness(clock func() time.Time) (repositories.ReadinessProbe, error) {
	reg := c.Repositories
	checks := []repositories.DependencyCheck{{
		Name:    reg.Backend(),
		Timeout: dependencyCheckTimeout,
		Check: func(ctx context.Context) error {
			probe := reg.Readiness()
			if probe == nil {
				return nil
			}
			report, err := probe.Collect(ctx)
			if err != nil {
				return err
			}
			return reportError(report)
		},
	}}

	if c.topic != nil {
		topic := c.topic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: dependencyCheckTimeout,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s not found", topic.ID())
				}
				return nil
			},
		})
	}

	if c.exporter != nil {
		exporter := c.exporter
		checks = append(checks, repositories.DependencyCheck{
			Name:    "exports",
			Timeout: dependencyCheckTimeout,
			Check:   exporter.Ping,
		})
	}

	return repositories.NewReadinessProbe(reg.Backend(), checks, repositories.WithProbeClock(clock))
}

func reportError(report domain.ReadinessReport) error {
	if report.Status == domain.HealthStatusOK {
		return nil
	}
	var failed []string
	for name, check := range report.Checks {
		if check.Status != domain.HealthStatusOK {
			failed = append(failed, name+": "+check.Detail)
		}
	}
	sort.Strings(failed)
	if len(failed) == 0 {
		return fmt.Errorf("backend status %s", report.Status)
	}
	return errors.New(strings.Join(failed, "; "))
}
