package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telemedik/paygate/internal/database"
)

// Store claims idempotency keys against a uniquely-constrained table. The
// insert itself is the arbiter between racing duplicate deliveries: the
// database constraint decides, not an application-level existence check.
type Store struct {
	pool    *pgxpool.Pool
	metrics *database.Metrics
}

// NewStore constructs a Store. metrics may be nil.
func NewStore(pool *pgxpool.Pool, metrics *database.Metrics) *Store {
	return &Store{pool: pool, metrics: metrics}
}

func (s *Store) Acquire(ctx context.Context, key string) (bool, error) {
	query := `
		INSERT INTO idempotency_keys (key)
		VALUES ($1)
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query, key)
	if s.metrics != nil {
		s.metrics.RecordQuery(ctx, "idempotency_acquire", time.Since(start).Seconds())
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("insert idempotency key: %w", err)
	}

	return true, nil
}

func (s *Store) Release(ctx context.Context, key string) error {
	query := `
		DELETE FROM idempotency_keys
		WHERE key = $1
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query, key)
	if s.metrics != nil {
		s.metrics.RecordQuery(ctx, "idempotency_release", time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("delete idempotency key: %w", err)
	}

	return nil
}
