package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tcflow/deal"
)

var ErrNotFound = errors.New("workflow: not found")

type Repository interface {
	ListActiveDefinitions(ctx context.Context, side deal.Side, trigger TriggerType) ([]Definition, error)
	ListSteps(ctx context.Context, definitionID string) ([]Step, error)
	RunExists(ctx context.Context, dealID, definitionID string) (bool, error)
	CreateRun(ctx context.Context, dealID, definitionID string) (Run, error)
	CreateRunStep(ctx context.Context, runID, stepID string, scheduledFor time.Time) error
	ListPendingWaitSteps(ctx context.Context, dealID string) ([]PendingStep, error)
	RescheduleRunStep(ctx context.Context, runStepID string, scheduledFor time.Time) error
	ListDueSteps(ctx context.Context, now time.Time) ([]DueStep, error)
	MarkStepCompleted(ctx context.Context, runStepID string, executedAt time.Time) error
	MarkStepError(ctx context.Context, runStepID, message string, executedAt time.Time) error
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) ListActiveDefinitions(ctx context.Context, side deal.Side, trigger TriggerType) ([]Definition, error) {
	const query = `
		SELECT id, name, description, side, trigger_type, is_active
		FROM workflow_definitions
		WHERE side = $1 AND trigger_type = $2 AND is_active = true
		ORDER BY name
	`

	rows, err := r.pool.Query(ctx, query, side, trigger)
	if err != nil {
		return nil, fmt.Errorf("workflow: list definitions: %w", err)
	}
	defer rows.Close()

	list := []Definition{}
	for rows.Next() {
		var d Definition
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.Side, &d.TriggerType, &d.IsActive); err != nil {
			return nil, fmt.Errorf("workflow: scan definition: %w", err)
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

func (r *PGRepository) ListSteps(ctx context.Context, definitionID string) ([]Step, error) {
	const query = `
		SELECT id, workflow_definition_id, step_order, name, relative_to, offset_days, auto_action_type, auto_config
		FROM workflow_steps
		WHERE workflow_definition_id = $1
		ORDER BY step_order
	`

	rows, err := r.pool.Query(ctx, query, definitionID)
	if err != nil {
		return nil, fmt.Errorf("workflow: list steps: %w", err)
	}
	defer rows.Close()

	list := []Step{}
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (r *PGRepository) RunExists(ctx context.Context, dealID, definitionID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM workflow_runs
			WHERE deal_id = $1 AND workflow_definition_id = $2
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, dealID, definitionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("workflow: run exists: %w", err)
	}
	return exists, nil
}

func (r *PGRepository) CreateRun(ctx context.Context, dealID, definitionID string) (Run, error) {
	const query = `
		INSERT INTO workflow_runs (id, deal_id, workflow_definition_id, status, started_at)
		VALUES (gen_random_uuid(), $1, $2, 'active', now())
		RETURNING id, deal_id, workflow_definition_id, status, started_at
	`

	var run Run
	err := r.pool.QueryRow(ctx, query, dealID, definitionID).Scan(
		&run.ID, &run.DealID, &run.DefinitionID, &run.Status, &run.StartedAt,
	)
	if err != nil {
		return Run{}, fmt.Errorf("workflow: create run: %w", err)
	}
	return run, nil
}

func (r *PGRepository) CreateRunStep(ctx context.Context, runID, stepID string, scheduledFor time.Time) error {
	const query = `
		INSERT INTO workflow_run_steps (id, workflow_run_id, workflow_step_id, scheduled_for, status)
		VALUES (gen_random_uuid(), $1, $2, $3, 'pending')
	`

	if _, err := r.pool.Exec(ctx, query, runID, stepID, scheduledFor); err != nil {
		return fmt.Errorf("workflow: create run step: %w", err)
	}
	return nil
}

// ListPendingWaitSteps returns the pending wait_for_event run steps of a
// deal's active runs, joined with their step templates.
func (r *PGRepository) ListPendingWaitSteps(ctx context.Context, dealID string) ([]PendingStep, error) {
	const query = `
		SELECT rs.id, rs.workflow_run_id, rs.workflow_step_id, rs.scheduled_for, rs.executed_at, rs.status, rs.error_message,
		       s.id, s.workflow_definition_id, s.step_order, s.name, s.relative_to, s.offset_days, s.auto_action_type, s.auto_config
		FROM workflow_run_steps rs
		JOIN workflow_runs r ON r.id = rs.workflow_run_id
		JOIN workflow_steps s ON s.id = rs.workflow_step_id
		WHERE r.deal_id = $1
		  AND r.status = 'active'
		  AND rs.status = 'pending'
		  AND s.auto_action_type = 'wait_for_event'
	`

	rows, err := r.pool.Query(ctx, query, dealID)
	if err != nil {
		return nil, fmt.Errorf("workflow: list pending wait steps: %w", err)
	}
	defer rows.Close()

	list := []PendingStep{}
	for rows.Next() {
		var p PendingStep
		err := rows.Scan(
			&p.RunStep.ID, &p.RunStep.RunID, &p.RunStep.StepID, &p.RunStep.ScheduledFor,
			&p.RunStep.ExecutedAt, &p.RunStep.Status, &p.RunStep.ErrorMessage,
			&p.Step.ID, &p.Step.DefinitionID, &p.Step.StepOrder, &p.Step.Name,
			&p.Step.RelativeTo, &p.Step.OffsetDays, &p.Step.ActionType, &p.Step.ActionConfig,
		)
		if err != nil {
			return nil, fmt.Errorf("workflow: scan pending wait step: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *PGRepository) RescheduleRunStep(ctx context.Context, runStepID string, scheduledFor time.Time) error {
	const query = `
		UPDATE workflow_run_steps
		SET scheduled_for = $2, updated_at = now()
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, runStepID, scheduledFor); err != nil {
		return fmt.Errorf("workflow: reschedule run step: %w", err)
	}
	return nil
}

func (r *PGRepository) ListDueSteps(ctx context.Context, now time.Time) ([]DueStep, error) {
	const query = `
		SELECT rs.id, rs.workflow_run_id, rs.workflow_step_id, rs.scheduled_for, rs.executed_at, rs.status, rs.error_message,
		       s.id, s.workflow_definition_id, s.step_order, s.name, s.relative_to, s.offset_days, s.auto_action_type, s.auto_config,
		       r.deal_id
		FROM workflow_run_steps rs
		JOIN workflow_runs r ON r.id = rs.workflow_run_id
		JOIN workflow_steps s ON s.id = rs.workflow_step_id
		WHERE rs.status = 'pending'
		  AND rs.scheduled_for <= $1
		ORDER BY rs.scheduled_for
	`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("workflow: list due steps: %w", err)
	}
	defer rows.Close()

	list := []DueStep{}
	for rows.Next() {
		var d DueStep
		err := rows.Scan(
			&d.RunStep.ID, &d.RunStep.RunID, &d.RunStep.StepID, &d.RunStep.ScheduledFor,
			&d.RunStep.ExecutedAt, &d.RunStep.Status, &d.RunStep.ErrorMessage,
			&d.Step.ID, &d.Step.DefinitionID, &d.Step.StepOrder, &d.Step.Name,
			&d.Step.RelativeTo, &d.Step.OffsetDays, &d.Step.ActionType, &d.Step.ActionConfig,
			&d.DealID,
		)
		if err != nil {
			return nil, fmt.Errorf("workflow: scan due step: %w", err)
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

func (r *PGRepository) MarkStepCompleted(ctx context.Context, runStepID string, executedAt time.Time) error {
	const query = `
		UPDATE workflow_run_steps
		SET status = 'completed', executed_at = $2, updated_at = now()
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, runStepID, executedAt); err != nil {
		return fmt.Errorf("workflow: mark step completed: %w", err)
	}
	return nil
}

func (r *PGRepository) MarkStepError(ctx context.Context, runStepID, message string, executedAt time.Time) error {
	const query = `
		UPDATE workflow_run_steps
		SET status = 'error', error_message = $2, executed_at = $3, updated_at = now()
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, runStepID, message, executedAt); err != nil {
		return fmt.Errorf("workflow: mark step error: %w", err)
	}
	return nil
}

func scanStep(row pgx.Row) (Step, error) {
	var s Step
	err := row.Scan(
		&s.ID, &s.DefinitionID, &s.StepOrder, &s.Name,
		&s.RelativeTo, &s.OffsetDays, &s.ActionType, &s.ActionConfig,
	)
	if err != nil {
		return Step{}, fmt.Errorf("workflow: scan step: %w", err)
	}
	return s, nil
}
