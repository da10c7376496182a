package deal

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuying   Side = "buying"
	SideListing  Side = "listing"
	SideLandlord Side = "landlord"
	SideTenant   Side = "tenant"
	SideDual     Side = "dual"
)

type Status string

const (
	StatusDraft                Status = "draft"
	StatusLead                 Status = "lead"
	StatusSearching            Status = "searching"
	StatusPreApproval          Status = "pre_approval"
	StatusOffer                Status = "offer"
	StatusOfferReview          Status = "offer_review"
	StatusPreListing           Status = "pre_listing"
	StatusActive               Status = "active"
	StatusUnderContract        Status = "under_contract"
	StatusInEscrow             Status = "in_escrow"
	StatusPendingContingencies Status = "pending_contingencies"
	StatusPending              Status = "pending"
	StatusPendingCOE           Status = "pending_coe"
	StatusClosed               Status = "closed"
	StatusCancelled            Status = "cancelled"
)

// Deal is the transaction aggregate. Business dates are nullable; the
// workflow engine and notification rules treat a nil date as "not yet known".
type Deal struct {
	ID              string
	PropertyAddress string
	Side            Side
	Status          Status

	Price              *decimal.Decimal
	LoanType           *string
	DownPaymentPercent *decimal.Decimal
	EmdAmount          *decimal.Decimal
	TcFeeAmount        *decimal.Decimal
	TcFeePayer         *string

	PrimaryAgentID  *string
	EscrowCompanyID *string
	LenderID        *string

	HasHoa   bool
	HasSolar bool

	OfferAcceptanceDate            *time.Time
	EmdDueDate                     *time.Time
	EmdReceivedAt                  *time.Time
	InspectionDeadline             *time.Time
	InspectionScheduledAt          *time.Time
	InspectionContingencyRemovedAt *time.Time
	SellerDisclosuresDueDate       *time.Time
	SellerDisclosuresSentAt        *time.Time
	BuyerDisclosuresSignedAt       *time.Time
	BuyerInvestigationDueDate      *time.Time
	BuyerAppraisalDueDate          *time.Time
	BuyerLoanDueDate               *time.Time
	BuyerInsuranceDueDate          *time.Time
	AppraisalOrderedAt             *time.Time
	HoaDocsReceivedAt              *time.Time
	CdaPreparedAt                  *time.Time
	CdaSentToEscrowAt              *time.Time
	EstimatedCoeDate               *time.Time
	CoeDate                        *time.Time
	PossessionDate                 *time.Time
	ClosedAt                       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActiveEmailStatuses are the deal statuses the daily notification rules
// consider in-flight.
var ActiveEmailStatuses = []Status{
	StatusInEscrow,
	StatusPendingContingencies,
	StatusPending,
	StatusPendingCOE,
}
