package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telemedik/paygate/internal/database"
)

// Sink appends business events to the analytics events table. Rows are
// write-only from this service; the analytics pipeline reads them.
type Sink struct {
	pool    *pgxpool.Pool
	metrics *database.Metrics
}

// NewSink constructs a Sink. metrics may be nil.
func NewSink(pool *pgxpool.Pool, metrics *database.Metrics) *Sink {
	return &Sink{pool: pool, metrics: metrics}
}

func (s *Sink) Emit(ctx context.Context, name string, props map[string]any) error {
	if props == nil {
		props = map[string]any{}
	}

	propsJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("marshal event props: %w", err)
	}

	query := `
		INSERT INTO events (id, name, props)
		VALUES ($1, $2, $3)
	`

	start := time.Now()
	_, err = s.pool.Exec(ctx, query, uuid.New(), name, propsJSON)
	if s.metrics != nil {
		s.metrics.RecordQuery(ctx, "event_insert", time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return nil
}
