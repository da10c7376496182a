// Package timeline writes the append-only audit trail attached to each deal.
// Workflow execution, deal events, and internal chat notes all land here.
package timeline

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Event struct {
	DealID      string
	EventType   string
	Description string
	Metadata    map[string]any
}

type Repository interface {
	Append(ctx context.Context, ev Event) error
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Append(ctx context.Context, ev Event) error {
	const query = `
		INSERT INTO deal_timeline_events (id, deal_id, event_type, description, metadata)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
	`

	if _, err := r.pool.Exec(ctx, query, ev.DealID, ev.EventType, ev.Description, ev.Metadata); err != nil {
		return fmt.Errorf("timeline: append: %w", err)
	}
	return nil
}
