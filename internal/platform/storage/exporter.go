package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/partshub/api/internal/platform/config"
	"github.com/partshub/api/internal/services"
)

// ErrExportsDisabled is returned when no exports bucket is configured.
var ErrExportsDisabled = errors.New("storage: exports bucket is not configured")

// ObjectWriterFactory opens a writer for a new object. Writers must not overwrite existing objects.
type ObjectWriterFactory func(ctx context.Context, bucket, object, contentType string) io.WriteCloser

// Exporter writes rendered reports to Cloud Storage.
type Exporter struct {
	bucket  string
	prefix  string
	kind    ExportKind
	client  *gcs.Client
	writers ObjectWriterFactory
	newID   func() string
	logger  *zap.Logger
	opts    []option.ClientOption
}

// ExporterOption customises the exporter.
type ExporterOption func(*Exporter)

// WithStorageClient injects an existing Cloud Storage client.
func WithStorageClient(client *gcs.Client) ExporterOption {
	return func(e *Exporter) {
		e.client = client
	}
}

// WithObjectWriterFactory replaces the Cloud Storage writer, primarily for tests.
func WithObjectWriterFactory(factory ObjectWriterFactory) ExporterOption {
	return func(e *Exporter) {
		e.writers = factory
	}
}

// WithExporterLogger sets the logger used for export diagnostics.
func WithExporterLogger(logger *zap.Logger) ExporterOption {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObjectIDGenerator overrides ULID-based object identifiers.
func WithObjectIDGenerator(fn func() string) ExporterOption {
	return func(e *Exporter) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithStorageClientOptions forwards options used when the exporter creates its own client.
func WithStorageClientOptions(opts ...option.ClientOption) ExporterOption {
	return func(e *Exporter) {
		e.opts = append(e.opts, opts...)
	}
}

// NewExporter constructs an exporter for the configured bucket. A Cloud Storage client is created
// on demand unless one, or a writer factory, has been supplied.
func NewExporter(ctx context.Context, cfg config.ExportsConfig, opts ...ExporterOption) (*Exporter, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, ErrExportsDisabled
	}
	exporter := &Exporter{
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
		kind:   KindShipmentAnalysis,
		newID:  func() string { return ulid.Make().String() },
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(exporter)
		}
	}
	if _, err := validatePrefix(exporter.prefix); err != nil {
		return nil, err
	}

	if exporter.writers == nil {
		if exporter.client == nil {
			client, err := gcs.NewClient(ctx, exporter.opts...)
			if err != nil {
				return nil, fmt.Errorf("storage: create client: %w", err)
			}
			exporter.client = client
		}
		exporter.writers = clientWriterFactory(exporter.client)
	}
	return exporter, nil
}

// Bucket reports the destination bucket.
func (e *Exporter) Bucket() string {
	return e.bucket
}

// WriteReport streams the report body into a new object and reports its location.
func (e *Exporter) WriteReport(ctx context.Context, report services.ReportObject) (services.ExportResult, error) {
	if e == nil || e.writers == nil {
		return services.ExportResult{}, errors.New("storage: exporter is not initialised")
	}
	if report.Body == nil {
		return services.ExportResult{}, errors.New("storage: report body is required")
	}
	createdAt := report.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	createdAt = createdAt.UTC()

	object, err := BuildObjectPath(e.kind, PathParams{
		Prefix:    e.prefix,
		Name:      report.Name,
		ObjectID:  e.newID(),
		CreatedAt: createdAt,
		Extension: extensionFor(report.ContentType),
	})
	if err != nil {
		return services.ExportResult{}, err
	}

	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := e.writers(writeCtx, e.bucket, object, report.ContentType)
	written, err := io.Copy(writer, report.Body)
	if err != nil {
		// Cancel before Close so the partial upload is discarded.
		cancel()
		_ = writer.Close()
		return services.ExportResult{}, fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return services.ExportResult{}, fmt.Errorf("storage: finalize %s: %w", object, err)
	}

	e.logger.Info("report exported",
		zap.String("bucket", e.bucket),
		zap.String("object", object),
		zap.Int64("bytes", written),
	)
	return services.ExportResult{
		Bucket:    e.bucket,
		Object:    object,
		Bytes:     written,
		CreatedAt: createdAt,
	}, nil
}

// Ping reads the bucket attributes. Exporters built around a writer factory have no client and
// always succeed.
func (e *Exporter) Ping(ctx context.Context) error {
	if e == nil || e.client == nil {
		return nil
	}
	if _, err := e.client.Bucket(e.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("storage: bucket %s: %w", e.bucket, err)
	}
	return nil
}

// Close releases the underlying client when the exporter created or was given one.
func (e *Exporter) Close() error {
	if e == nil || e.client == nil {
		return nil
	}
	return e.client.Close()
}

func clientWriterFactory(client *gcs.Client) ObjectWriterFactory {
	return func(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
		handle := client.Bucket(bucket).Object(object).If(gcs.Conditions{DoesNotExist: true})
		writer := handle.NewWriter(ctx)
		writer.ContentType = contentType
		writer.Metadata = map[string]string{"kind": string(KindShipmentAnalysis)}
		return writer
	}
}

func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])) {
	case "application/json":
		return "json"
	default:
		return "csv"
	}
}

var _ services.ReportExporter = (*Exporter)(nil)
