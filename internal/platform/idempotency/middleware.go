package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/partshub/api/internal/platform/httpx"
	"github.com/partshub/api/internal/platform/requestctx"
)

const (
	// DefaultHeader carries the client-chosen key.
	DefaultHeader = "Idempotency-Key"
	// ReplayHeader marks responses served from the store.
	ReplayHeader = "Idempotent-Replayed"

	maxKeyLength       = 255
	defaultMaxBodySize = 1 << 20
)

type middlewareConfig struct {
	header     string
	ttl        time.Duration
	requireKey bool
	maxBody    int64
	clock      func() time.Time
	logger     *zap.Logger
}

// MiddlewareOption customises Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithHeader overrides the request header holding the key.
func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.header = name
		}
	}
}

// WithTTL sets how long completed responses are replayable.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithRequiredKey rejects mutating requests that omit the header.
func WithRequiredKey(required bool) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.requireKey = required
	}
}

// WithMaxBodyBytes caps the request body buffered for fingerprinting.
func WithMaxBodyBytes(limit int64) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if limit > 0 {
			cfg.maxBody = limit
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// WithLogger sets the logger used for store failures.
func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// Middleware guards POST, PUT, PATCH and DELETE requests that carry an idempotency key. Keys are
// scoped to the operator on the request context. The first request runs the handler and, unless
// it fails with a 5xx, its response is stored; retries with the same key and body replay it.
// Reusing a key for a different request or while the first is still running yields 409.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{
		header:  DefaultHeader,
		ttl:     DefaultTTL,
		maxBody: defaultMaxBodySize,
		clock:   time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !guarded(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			key := strings.TrimSpace(r.Header.Get(cfg.header))
			if key == "" {
				if cfg.requireKey {
					httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", cfg.header+" header is required", http.StatusBadRequest))
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_idempotency_key", cfg.header+" is too long", http.StatusBadRequest))
				return
			}

			body, err := bufferBody(r, cfg.maxBody)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds the allowed size", http.StatusRequestEntityTooLarge))
				return
			}

			scoped := scopeKey(ctx, key)
			fingerprint := fingerprintRequest(r, body)
			reservation, err := store.Reserve(ctx, scoped, fingerprint, cfg.clock(), cfg.ttl)
			if err != nil {
				writeStoreError(ctx, w, cfg.logger, err)
				return
			}
			switch reservation.State {
			case ReservationStateCompleted:
				replay(w, reservation.Record)
				return
			case ReservationStatePending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "a request with this key is still being processed", http.StatusConflict))
				return
			}

			capture := newCapture()
			serveReleasingOnPanic(next, capture, r, func() {
				if err := store.Release(context.WithoutCancel(ctx), scoped); err != nil {
					cfg.logger.Warn("idempotency release failed", zap.Error(err))
				}
			})

			if capture.status >= http.StatusInternalServerError {
				if err := store.Release(context.WithoutCancel(ctx), scoped); err != nil {
					cfg.logger.Warn("idempotency release failed", zap.Error(err))
				}
				capture.flush(w)
				return
			}
			resp := Response{Status: capture.status, Headers: capture.header, Body: capture.body.Bytes()}
			if err := store.Complete(context.WithoutCancel(ctx), scoped, fingerprint, resp, cfg.clock(), cfg.ttl); err != nil {
				cfg.logger.Warn("idempotency response not stored", zap.Error(err))
				if err := store.Release(context.WithoutCancel(ctx), scoped); err != nil {
					cfg.logger.Warn("idempotency release failed", zap.Error(err))
				}
			}
			capture.flush(w)
		})
	}
}

// serveReleasingOnPanic runs next and, if it panics, releases the key before re-panicking so
// recovery middleware further out still sees the panic.
func serveReleasingOnPanic(next http.Handler, w http.ResponseWriter, r *http.Request, release func()) {
	defer func() {
		if rec := recover(); rec != nil {
			release()
			panic(rec)
		}
	}()
	next.ServeHTTP(w, r)
}

func guarded(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func scopeKey(ctx context.Context, key string) string {
	operator := requestctx.Operator(ctx)
	if operator == "" {
		operator = "anonymous"
	}
	return operator + "|" + key
}

func fingerprintRequest(r *http.Request, body []byte) string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte('\n')
	b.WriteString(r.URL.Path)
	b.WriteByte('?')
	b.WriteString(r.URL.RawQuery)
	b.WriteByte('\n')
	b.Write(body)
	return documentID(b.String())
}

var errBodyTooLarge = errors.New("idempotency: body too large")

func bufferBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func writeStoreError(ctx context.Context, w http.ResponseWriter, logger *zap.Logger, err error) {
	if errors.Is(err, ErrFingerprintMismatch) {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "key already used for a different request", http.StatusConflict))
		return
	}
	logger.Error("idempotency store unavailable", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to process idempotency key", http.StatusServiceUnavailable))
}

func replay(w http.ResponseWriter, record Record) {
	header := w.Header()
	for name, values := range record.Headers {
		header[name] = append([]string(nil), values...)
	}
	header.Set(ReplayHeader, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.Body)
}

// capture buffers the handler response so it can be stored before reaching the client.
type capture struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newCapture() *capture {
	return &capture{header: make(http.Header)}
}

func (c *capture) Header() http.Header { return c.header }

func (c *capture) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func (c *capture) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(p)
}

func (c *capture) flush(w http.ResponseWriter) {
	dst := w.Header()
	for name, values := range c.header {
		dst[name] = values
	}
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(c.body.Bytes())
}
