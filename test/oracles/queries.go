package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariant checks run between stress iterations. Each query
// must return zero rows on a healthy database.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_ledger_unique_key",
			SQL: `SELECT deal_id, template_key, COALESCE(context_date, DATE '0001-01-01') AS ctx, COUNT(*)
                  FROM transaction_email_log
                  GROUP BY deal_id, template_key, COALESCE(context_date, DATE '0001-01-01')
                  HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_ledger_sent_settled",
			SQL: `SELECT id FROM transaction_email_log
                  WHERE status = 'sent' AND sent_at IS NULL`,
		},
		{
			Name: "O3_ledger_failed_has_reason",
			SQL: `SELECT id FROM transaction_email_log
                  WHERE status = 'failed' AND error_message IS NULL`,
		},
		{
			Name: "O4_step_completed_executed",
			SQL: `SELECT id FROM workflow_run_steps
                  WHERE status = 'completed' AND executed_at IS NULL`,
		},
		{
			Name: "O5_step_error_has_message",
			SQL: `SELECT id FROM workflow_run_steps
                  WHERE status = 'error' AND error_message IS NULL`,
		},
		{
			Name: "O6_step_pending_untouched",
			SQL: `SELECT id FROM workflow_run_steps
                  WHERE status = 'pending' AND executed_at IS NOT NULL`,
		},
		{
			Name: "O7_run_per_definition",
			SQL: `SELECT deal_id, workflow_definition_id, COUNT(*)
                  FROM workflow_runs
                  GROUP BY deal_id, workflow_definition_id
                  HAVING COUNT(*) > 1`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample
// row text) or an empty name when every invariant holds.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
