package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore persists processed idempotency keys scoped to an
// organization, so two tenants can reuse the same client-supplied key
// without colliding.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// ErrIdempotencyConflict indicates the (org, module, key) triple was already
// recorded; the caller should look up and return the prior result instead of
// redoing the side-effecting work.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// CheckAndInsert claims (orgID, module, key) atomically. A request with no
// Idempotency-Key header never calls this; the documented default for an
// absent key is to skip idempotency entirely and allocate a fresh result
// every time.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, orgID, module, key, resultRef string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if orgID == "" {
		return errors.New("idempotency org id required")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO idempotency_keys (org_id, module, key, result_ref, created_at) VALUES ($1, $2, $3, $4, $5)`,
		orgID, module, key, resultRef, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// ResultRef returns the result reference stored for (orgID, module, key), if
// any. Callers use this after CheckAndInsert returns ErrIdempotencyConflict
// to recover what the first request produced, e.g. an invoice id.
func (s *IdempotencyStore) ResultRef(ctx context.Context, orgID, module, key string) (string, bool, error) {
	if s == nil {
		return "", false, errors.New("idempotency store not initialised")
	}
	var ref string
	err := s.pool.QueryRow(ctx,
		`SELECT result_ref FROM idempotency_keys WHERE org_id=$1 AND module=$2 AND key=$3`,
		orgID, module, key).Scan(&ref)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return ref, true, nil
}

// Cleanup removes entries older than retention, across all tenants.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if s == nil {
		return nil
	}
	cutoff := time.Now().Add(-olderThan)
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	return err
}

// Delete removes a key, typically used to roll back failed processing so a
// retried request does not see a phantom conflict.
func (s *IdempotencyStore) Delete(ctx context.Context, orgID, module, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE org_id=$1 AND module=$2 AND key=$3`, orgID, module, key)
	return err
}
