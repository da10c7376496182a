// Package task persists deal tasks created by workflow steps.
package task

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type CreateParams struct {
	DealID      string
	Title       string
	Description *string
	DueDate     *time.Time
}

type Repository interface {
	Create(ctx context.Context, params CreateParams) (string, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (string, error) {
	const query = `
		INSERT INTO deal_tasks (id, deal_id, title, description, due_date)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id
	`

	var id string
	err := r.pool.QueryRow(ctx, query, params.DealID, params.Title, params.Description, params.DueDate).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("task: create: %w", err)
	}
	return id, nil
}
