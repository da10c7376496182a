package actors

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Claimer races other claimers over a small set of ledger keys. A claim that
// wins the insert settles to sent or failed; a losing claim is a no-op. The
// unique index is the only arbiter.
func Claimer(ctx context.Context, pool *pgxpool.Pool, dealID string, templates []string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		key := templates[rand.Intn(len(templates))]
		contextDate := time.Now().AddDate(0, 0, rand.Intn(3))

		var logID string
		err := pool.QueryRow(ctx, `
			INSERT INTO transaction_email_log (id, deal_id, template_key, context_date, status)
			VALUES (gen_random_uuid(), $1, $2, $3, 'pending')
			ON CONFLICT (deal_id, template_key, COALESCE(context_date, DATE '0001-01-01')) DO NOTHING
			RETURNING id
		`, dealID, key, contextDate).Scan(&logID)
		if err == nil {
			if rand.Intn(5) == 0 {
				_, _ = pool.Exec(ctx, `UPDATE transaction_email_log SET status='failed', error_message='stress failure' WHERE id=$1`, logID)
			} else {
				_, _ = pool.Exec(ctx, `UPDATE transaction_email_log SET status='sent', sent_at=NOW(), recipient_emails=ARRAY['stress@example.com'] WHERE id=$1`, logID)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// StepScheduler keeps feeding pending run steps into the queue so executors
// always have contention.
func StepScheduler(ctx context.Context, pool *pgxpool.Pool, runID, stepID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `
			INSERT INTO workflow_run_steps (workflow_run_id, workflow_step_id, scheduled_for, status)
			VALUES ($1, $2, NOW() - interval '1 second', 'pending')
		`, runID, stepID)
		if err != nil {
			return fmt.Errorf("scheduler insert: %w", err)
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// StepExecutor drains due pending steps with SKIP LOCKED so two executors
// never double-complete one step.
func StepExecutor(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			SELECT id FROM workflow_run_steps
			WHERE status='pending' AND scheduled_for <= NOW()
			ORDER BY scheduled_for
			FOR UPDATE SKIP LOCKED
			LIMIT 10
		`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]string, 0, 10)
		for rows.Next() {
			var id string
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE workflow_run_steps SET status='error', error_message='stress failure', executed_at=NOW() WHERE id=$1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE workflow_run_steps SET status='completed', executed_at=NOW() WHERE id=$1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}

// TimelineWriter appends deal timeline events, mimicking event ingestion
// running alongside the dispatcher.
func TimelineWriter(ctx context.Context, pool *pgxpool.Pool, dealID string, stop <-chan struct{}) error {
	types := []string{"deal_event", "step_executed", "internal_chat"}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		ty := types[rand.Intn(len(types))]
		_, err := pool.Exec(ctx, `
			INSERT INTO deal_timeline_events (deal_id, event_type, description, metadata)
			VALUES ($1, $2, 'stress event', '{}'::jsonb)
		`, dealID, ty)
		if err != nil {
			return fmt.Errorf("timeline insert: %w", err)
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

// FieldUpdater flips business dates on the deal while everything else runs,
// like concurrent update_field steps would.
func FieldUpdater(ctx context.Context, pool *pgxpool.Pool, dealID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, _ = pool.Exec(ctx, `
			UPDATE deals
			SET estimated_coe_date = NOW() + (interval '1 day' * $2), updated_at = NOW()
			WHERE id = $1
		`, dealID, rand.Intn(30))
		time.Sleep(200 * time.Millisecond)
	}
}
