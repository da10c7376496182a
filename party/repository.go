package party

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("party: not found")

type Repository interface {
	ListByRole(ctx context.Context, dealID string, role Role) ([]Party, error)
	GetEscrowCompany(ctx context.Context, id string) (EscrowCompany, error)
	GetLender(ctx context.Context, id string) (Lender, error)
	GetAgent(ctx context.Context, id string) (Agent, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) ListByRole(ctx context.Context, dealID string, role Role) ([]Party, error) {
	const query = `
		SELECT id, deal_id, role, name, email, phone, created_at
		FROM deal_parties
		WHERE deal_id = $1 AND role = $2
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, dealID, role)
	if err != nil {
		return nil, fmt.Errorf("party: list by role: %w", err)
	}
	defer rows.Close()

	list := []Party{}
	for rows.Next() {
		var p Party
		if err := rows.Scan(&p.ID, &p.DealID, &p.Role, &p.Name, &p.Email, &p.Phone, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("party: scan party: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *PGRepository) GetEscrowCompany(ctx context.Context, id string) (EscrowCompany, error) {
	const query = `
		SELECT id, name, email, phone, contact_person
		FROM escrow_companies
		WHERE id = $1
	`

	var c EscrowCompany
	err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.ContactPerson)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EscrowCompany{}, ErrNotFound
		}
		return EscrowCompany{}, fmt.Errorf("party: get escrow company: %w", err)
	}
	return c, nil
}

func (r *PGRepository) GetLender(ctx context.Context, id string) (Lender, error) {
	const query = `
		SELECT id, name, email, phone, loan_officer_name
		FROM lenders
		WHERE id = $1
	`

	var l Lender
	err := r.pool.QueryRow(ctx, query, id).Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.LoanOfficerName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lender{}, ErrNotFound
		}
		return Lender{}, fmt.Errorf("party: get lender: %w", err)
	}
	return l, nil
}

func (r *PGRepository) GetAgent(ctx context.Context, id string) (Agent, error) {
	const query = `
		SELECT id, email, first_name, last_name
		FROM agent_profiles
		WHERE id = $1
	`

	var a Agent
	err := r.pool.QueryRow(ctx, query, id).Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, ErrNotFound
		}
		return Agent{}, fmt.Errorf("party: get agent: %w", err)
	}
	return a, nil
}
