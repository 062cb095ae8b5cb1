package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	ppostgres "github.com/partshub/api/internal/platform/postgres"
)

// PostgresStore keeps keys in the idempotency_keys table created by postgres.Migrate.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore binds the store to pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("idempotency: postgres pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

// Reserve inserts a pending row or, when one exists, locks it to decide between replay, conflict
// and takeover of an expired key.
func (s *PostgresStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	id := documentID(key)
	fresh := pendingRecord(key, fingerprint, now, effectiveTTL(ttl))
	var result Reservation
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO idempotency_keys (id, key, fingerprint, status, response_status, created_at, expires_at)
			VALUES ($1, $2, $3, $4, 0, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, id, key, fingerprint, string(fresh.Status), fresh.CreatedAt, fresh.ExpiresAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			result = Reservation{State: ReservationStateNew, Record: fresh}
			return nil
		}

		record, err := lockRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		if record.expired(now) {
			_, err := tx.Exec(ctx, `
				UPDATE idempotency_keys SET
					key = $2, fingerprint = $3, status = $4, response_status = 0,
					headers = NULL, body = NULL, created_at = $5, expires_at = $6
				WHERE id = $1
			`, id, key, fingerprint, string(fresh.Status), fresh.CreatedAt, fresh.ExpiresAt)
			if err != nil {
				return err
			}
			result = Reservation{State: ReservationStateNew, Record: fresh}
			return nil
		}
		if record.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		state := ReservationStatePending
		if record.Status == StatusCompleted {
			state = ReservationStateCompleted
		}
		result = Reservation{State: state, Record: record}
		return nil
	})
	if errors.Is(err, ErrFingerprintMismatch) {
		return Reservation{}, ErrFingerprintMismatch
	}
	if err != nil {
		return Reservation{}, ppostgres.WrapError("idempotency_keys.reserve", err)
	}
	return result, nil
}

func (s *PostgresStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	headers, err := json.Marshal(storableHeaders(resp.Headers))
	if err != nil {
		return fmt.Errorf("idempotency: encode headers: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (id, key, fingerprint, status, response_status, headers, body, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			response_status = EXCLUDED.response_status,
			headers = EXCLUDED.headers,
			body = EXCLUDED.body,
			expires_at = EXCLUDED.expires_at
		WHERE idempotency_keys.fingerprint = EXCLUDED.fingerprint
	`, documentID(key), key, fingerprint, string(StatusCompleted), resp.Status, headers, resp.Body, now, now.Add(effectiveTTL(ttl)))
	if err != nil {
		return ppostgres.WrapError("idempotency_keys.complete", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFingerprintMismatch
	}
	return nil
}

func (s *PostgresStore) Release(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE id = $1`, documentID(key))
	return ppostgres.WrapError("idempotency_keys.release", err)
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 200
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM idempotency_keys
		WHERE id IN (SELECT id FROM idempotency_keys WHERE expires_at <= $1 LIMIT $2)
	`, now.UTC(), limit)
	if err != nil {
		return 0, ppostgres.WrapError("idempotency_keys.cleanup", err)
	}
	return int(tag.RowsAffected()), nil
}

func lockRecord(ctx context.Context, tx pgx.Tx, id string) (Record, error) {
	var (
		record  Record
		status  string
		headers []byte
	)
	err := tx.QueryRow(ctx, `
		SELECT key, fingerprint, status, response_status, headers, body, created_at, expires_at
		FROM idempotency_keys WHERE id = $1 FOR UPDATE
	`, id).Scan(
		&record.Key, &record.Fingerprint, &status, &record.ResponseStatus,
		&headers, &record.Body, &record.CreatedAt, &record.ExpiresAt,
	)
	if err != nil {
		return Record{}, err
	}
	record.Status = Status(status)
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &record.Headers); err != nil {
			return Record{}, fmt.Errorf("idempotency: decode headers: %w", err)
		}
	}
	return record, nil
}
