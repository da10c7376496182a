package deal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound     = errors.New("deal: not found")
	ErrUnknownField = errors.New("deal: unknown field")
)

type Repository interface {
	GetByID(ctx context.Context, id string) (Deal, error)
	ListByStatuses(ctx context.Context, statuses []Status) ([]Deal, error)
	Update(ctx context.Context, id string, changes map[string]any) (Deal, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const dealColumns = `id, property_address, side, status, price, loan_type, down_payment_percent,
	emd_amount, tc_fee_amount, tc_fee_payer, primary_agent_id, escrow_company_id, lender_id,
	has_hoa, has_solar, offer_acceptance_date, emd_due_date, emd_received_at,
	inspection_deadline, inspection_scheduled_at, inspection_contingency_removed_at,
	seller_disclosures_due_date, seller_disclosures_sent_at, buyer_disclosures_signed_at,
	buyer_investigation_due_date, buyer_appraisal_due_date, buyer_loan_due_date,
	buyer_insurance_due_date, appraisal_ordered_at, hoa_docs_received_at,
	cda_prepared_at, cda_sent_to_escrow_at, estimated_coe_date, coe_date,
	possession_date, closed_at, created_at, updated_at`

// updatableColumns is the allowlist for Update. Field writes coming from
// workflow steps and deal events go through here; anything else is rejected
// before it can reach SQL.
var updatableColumns = map[string]bool{
	"status":                            true,
	"price":                             true,
	"loan_type":                         true,
	"down_payment_percent":              true,
	"emd_amount":                        true,
	"tc_fee_amount":                     true,
	"tc_fee_payer":                      true,
	"escrow_company_id":                 true,
	"lender_id":                         true,
	"has_hoa":                           true,
	"has_solar":                         true,
	"offer_acceptance_date":             true,
	"emd_due_date":                      true,
	"emd_received_at":                   true,
	"inspection_deadline":               true,
	"inspection_scheduled_at":           true,
	"inspection_contingency_removed_at": true,
	"seller_disclosures_due_date":       true,
	"seller_disclosures_sent_at":        true,
	"buyer_disclosures_signed_at":       true,
	"buyer_investigation_due_date":      true,
	"buyer_appraisal_due_date":          true,
	"buyer_loan_due_date":               true,
	"buyer_insurance_due_date":          true,
	"appraisal_ordered_at":              true,
	"hoa_docs_received_at":              true,
	"cda_prepared_at":                   true,
	"cda_sent_to_escrow_at":             true,
	"estimated_coe_date":                true,
	"coe_date":                          true,
	"possession_date":                   true,
	"closed_at":                         true,
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Deal, error) {
	query := fmt.Sprintf(`SELECT %s FROM deals WHERE id = $1`, dealColumns)

	d, err := scanDeal(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deal{}, ErrNotFound
		}
		return Deal{}, fmt.Errorf("deal: get by id: %w", err)
	}
	return d, nil
}

func (r *PGRepository) ListByStatuses(ctx context.Context, statuses []Status) ([]Deal, error) {
	query := fmt.Sprintf(`SELECT %s FROM deals WHERE status = ANY($1) ORDER BY created_at`, dealColumns)

	vals := make([]string, len(statuses))
	for i, s := range statuses {
		vals[i] = string(s)
	}

	rows, err := r.pool.Query(ctx, query, vals)
	if err != nil {
		return nil, fmt.Errorf("deal: list by statuses: %w", err)
	}
	defer rows.Close()

	list := []Deal{}
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("deal: scan list: %w", err)
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

func (r *PGRepository) Update(ctx context.Context, id string, changes map[string]any) (Deal, error) {
	if len(changes) == 0 {
		return r.GetByID(ctx, id)
	}

	set := []string{}
	args := []any{id}
	for col, val := range changes {
		if !updatableColumns[col] {
			return Deal{}, fmt.Errorf("%w: %s", ErrUnknownField, col)
		}
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	set = append(set, "updated_at = now()")

	query := fmt.Sprintf(`UPDATE deals SET %s WHERE id = $1 RETURNING %s`,
		strings.Join(set, ", "), dealColumns)

	d, err := scanDeal(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deal{}, ErrNotFound
		}
		return Deal{}, fmt.Errorf("deal: update: %w", err)
	}
	return d, nil
}

func scanDeal(row pgx.Row) (Deal, error) {
	var d Deal
	return d, row.Scan(
		&d.ID,
		&d.PropertyAddress,
		&d.Side,
		&d.Status,
		&d.Price,
		&d.LoanType,
		&d.DownPaymentPercent,
		&d.EmdAmount,
		&d.TcFeeAmount,
		&d.TcFeePayer,
		&d.PrimaryAgentID,
		&d.EscrowCompanyID,
		&d.LenderID,
		&d.HasHoa,
		&d.HasSolar,
		&d.OfferAcceptanceDate,
		&d.EmdDueDate,
		&d.EmdReceivedAt,
		&d.InspectionDeadline,
		&d.InspectionScheduledAt,
		&d.InspectionContingencyRemovedAt,
		&d.SellerDisclosuresDueDate,
		&d.SellerDisclosuresSentAt,
		&d.BuyerDisclosuresSignedAt,
		&d.BuyerInvestigationDueDate,
		&d.BuyerAppraisalDueDate,
		&d.BuyerLoanDueDate,
		&d.BuyerInsuranceDueDate,
		&d.AppraisalOrderedAt,
		&d.HoaDocsReceivedAt,
		&d.CdaPreparedAt,
		&d.CdaSentToEscrowAt,
		&d.EstimatedCoeDate,
		&d.CoeDate,
		&d.PossessionDate,
		&d.ClosedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
}

// IsUpdatableColumn reports whether a deal column may be written through
// Update. Exposed so step validation can reject bad configs before execution.
func IsUpdatableColumn(col string) bool {
	return updatableColumns[col]
}
