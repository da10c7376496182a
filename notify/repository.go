package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrTemplateNotFound = errors.New("notify: template not found")

type TemplateRepository interface {
	GetActiveByKey(ctx context.Context, key string) (EmailTemplate, error)
}

// LogRepository is the dedup ledger. Claim inserts a pending row before any
// send is attempted; the unique index makes the insert the race arbiter, so
// two concurrent dispatches of the same key can never both send.
type LogRepository interface {
	Claim(ctx context.Context, dealID, templateKey string, contextDate *time.Time) (logID string, claimed bool, err error)
	MarkSent(ctx context.Context, logID string, recipientEmails []string) error
	MarkFailed(ctx context.Context, logID string, recipientEmails []string, errorMessage string) error
}

type AlertRepository interface {
	Create(ctx context.Context, alert Alert) error
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) GetActiveByKey(ctx context.Context, key string) (EmailTemplate, error) {
	const query = `
		SELECT id, key, name, subject_template, body_html, body_text, audience_type, is_active
		FROM email_templates
		WHERE key = $1 AND is_active = true
	`

	var t EmailTemplate
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&t.ID, &t.Key, &t.Name, &t.SubjectTemplate, &t.BodyHTML, &t.BodyText, &t.AudienceType, &t.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EmailTemplate{}, ErrTemplateNotFound
		}
		return EmailTemplate{}, fmt.Errorf("notify: get template: %w", err)
	}
	return t, nil
}

func (r *PGRepository) Claim(ctx context.Context, dealID, templateKey string, contextDate *time.Time) (string, bool, error) {
	// The conflict target must match the ledger's expression index exactly,
	// including the sentinel date standing in for NULL context dates.
	const query = `
		INSERT INTO transaction_email_log (id, deal_id, template_key, context_date, status)
		VALUES (gen_random_uuid(), $1, $2, $3, 'pending')
		ON CONFLICT (deal_id, template_key, COALESCE(context_date, DATE '0001-01-01')) DO NOTHING
		RETURNING id
	`

	var id string
	err := r.pool.QueryRow(ctx, query, dealID, templateKey, contextDate).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("notify: claim ledger row: %w", err)
	}
	return id, true, nil
}

func (r *PGRepository) MarkSent(ctx context.Context, logID string, recipientEmails []string) error {
	const query = `
		UPDATE transaction_email_log
		SET status = 'sent', recipient_emails = $2, sent_at = now()
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, logID, nilIfEmpty(recipientEmails)); err != nil {
		return fmt.Errorf("notify: mark sent: %w", err)
	}
	return nil
}

func (r *PGRepository) MarkFailed(ctx context.Context, logID string, recipientEmails []string, errorMessage string) error {
	const query = `
		UPDATE transaction_email_log
		SET status = 'failed', recipient_emails = $2, error_message = $3
		WHERE id = $1
	`

	if _, err := r.pool.Exec(ctx, query, logID, nilIfEmpty(recipientEmails), errorMessage); err != nil {
		return fmt.Errorf("notify: mark failed: %w", err)
	}
	return nil
}

func (r *PGRepository) Create(ctx context.Context, alert Alert) error {
	const query = `
		INSERT INTO alerts (id, deal_id, type, level, message, is_read)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, false)
	`

	if _, err := r.pool.Exec(ctx, query, alert.DealID, alert.Type, alert.Level, alert.Message); err != nil {
		return fmt.Errorf("notify: create alert: %w", err)
	}
	return nil
}

func nilIfEmpty(s []string) any {
	if len(s) == 0 {
		return nil
	}
	return s
}
