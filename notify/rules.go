package notify

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"tcflow/dates"
	"tcflow/deal"
)

// Template keys for the rule-driven emails.
const (
	TplListingOpeningEscrowChat      = "listing_opening_escrow_chat"
	TplListingNewEscrowToEscrow      = "listing_new_escrow_to_escrow"
	TplListingNewEscrowTimelineAll   = "listing_new_escrow_timeline_all"
	TplBuyerOpeningEscrowChat        = "buyer_opening_escrow_chat"
	TplBuyerCongratsListingSide      = "buyer_congrats_listing_side"
	TplBuyerTimelineAll              = "buyer_timeline_all"
	TplBuyerInspectionScheduled      = "buyer_inspection_scheduled_to_listing"
	TplListingHoaDocsUpdate          = "listing_hoa_docs_update"
	TplListingSolarTransferUpdate    = "listing_solar_transfer_update"
	TplBuyerSolarTransferUpdate      = "buyer_solar_transfer_update"
	TplBuyerDisclosuresFollowup      = "buyer_seller_disclosures_followup"
	TplListingContingencyDueToday    = "listing_contingency_due_today"
	TplListingCdaToEscrow            = "listing_cda_to_escrow"
	TplBuyerCdaToEscrow              = "buyer_cda_to_escrow"
	TplBuyerUpcomingClosingUpdate    = "buyer_upcoming_closing_update"
	TplListingRequestUtilitiesSeller = "listing_request_utilities_seller"
	TplBuyerRequestUtilities         = "buyer_request_utilities_from_listing"
)

// Sender abstracts the dispatcher for rule tests.
type Sender interface {
	Dispatch(ctx context.Context, params DispatchParams) DispatchResult
}

// Rules decides which notifications a deal is due for. All predicates are
// pure functions of the deal and the evaluation date; the ledger makes
// re-evaluation safe, so the engine can run as often as it likes.
type Rules struct {
	deals  deal.Repository
	sender Sender
	dates  *dates.Service
	log    *logrus.Logger
}

func NewRules(deals deal.Repository, sender Sender, ds *dates.Service, log *logrus.Logger) *Rules {
	return &Rules{deals: deals, sender: sender, dates: ds, log: log}
}

// RunImmediateRules fires event-driven notifications for one deal. Called
// after status changes and key-date events.
func (r *Rules) RunImmediateRules(ctx context.Context, dealID string) {
	d, err := r.deals.GetByID(ctx, dealID)
	if err != nil {
		r.log.WithField("deal_id", dealID).WithError(err).Error("rules: deal lookup failed")
		return
	}
	r.maybeSendOpeningEscrow(ctx, d)
	r.maybeSendInspectionScheduled(ctx, d)
}

// RunDailyRules evaluates every daily rule against every active deal.
func (r *Rules) RunDailyRules(ctx context.Context, today time.Time) RuleStats {
	stats := RuleStats{}

	deals, err := r.deals.ListByStatuses(ctx, deal.ActiveEmailStatuses)
	if err != nil {
		r.log.WithError(err).Error("rules: list active deals failed")
		return stats
	}
	stats.Considered = len(deals)

	for _, d := range deals {
		results := []DispatchResult{
			r.maybeSendHoaDocsUpdate(ctx, d, today),
			r.maybeSendSolarTransferUpdate(ctx, d, today),
			r.maybeSendDisclosuresFollowup(ctx, d, today),
			r.maybeSendContingencyDueToday(ctx, d, today),
			r.maybeSendCdaReminder(ctx, d, today),
			r.maybeSendUpcomingClosingUpdate(ctx, d, today),
			r.maybeSendUtilityRequests(ctx, d, today),
		}
		for _, res := range results {
			switch {
			case res.Sent:
				stats.Sent++
			case res.Skipped:
				stats.Skipped++
			case !res.Success:
				stats.Failed++
			}
		}
	}

	r.log.WithFields(logrus.Fields{
		"considered": stats.Considered,
		"sent":       stats.Sent,
		"skipped":    stats.Skipped,
		"failed":     stats.Failed,
	}).Info("rules: daily pass complete")
	return stats
}

func (r *Rules) maybeSendOpeningEscrow(ctx context.Context, d deal.Deal) {
	if d.Status != deal.StatusInEscrow {
		return
	}

	switch d.Side {
	case deal.SideListing:
		r.sender.Dispatch(ctx, DispatchParams{DealID: d.ID, TemplateKey: TplListingOpeningEscrowChat})
		if d.EscrowCompanyID != nil {
			r.sender.Dispatch(ctx, DispatchParams{DealID: d.ID, TemplateKey: TplListingNewEscrowToEscrow})
		}
		if d.EstimatedCoeDate != nil || d.EmdDueDate != nil {
			r.sender.Dispatch(ctx, DispatchParams{DealID: d.ID, TemplateKey: TplListingNewEscrowTimelineAll})
		}
	case deal.SideBuying:
		r.sender.Dispatch(ctx, DispatchParams{DealID: d.ID, TemplateKey: TplBuyerOpeningEscrowChat})
		r.sender.Dispatch(ctx, DispatchParams{DealID: d.ID, TemplateKey: TplBuyerCongratsListingSide})
		if d.EstimatedCoeDate != nil || d.BuyerInvestigationDueDate != nil {
			r.sender.Dispatch(ctx, DispatchParams{DealID: d.ID, TemplateKey: TplBuyerTimelineAll})
		}
	}
}

func (r *Rules) maybeSendInspectionScheduled(ctx context.Context, d deal.Deal) {
	if d.Side != deal.SideBuying || d.InspectionScheduledAt == nil {
		return
	}
	r.sender.Dispatch(ctx, DispatchParams{DealID: d.ID, TemplateKey: TplBuyerInspectionScheduled})
}

// Listing side with HOA: nudge when docs are outstanding more than 5 days
// after offer acceptance. Context date is today, so the nudge can recur on
// later days if it fails.
func (r *Rules) maybeSendHoaDocsUpdate(ctx context.Context, d deal.Deal, today time.Time) DispatchResult {
	if d.Side != deal.SideListing || !d.HasHoa {
		return skipped()
	}
	if d.HoaDocsReceivedAt != nil || d.OfferAcceptanceDate == nil {
		return skipped()
	}
	if r.dates.DaysSince(*d.OfferAcceptanceDate, today) <= 5 {
		return skipped()
	}
	return r.sender.Dispatch(ctx, DispatchParams{
		DealID:      d.ID,
		TemplateKey: TplListingHoaDocsUpdate,
		ContextDate: &today,
	})
}

func (r *Rules) maybeSendSolarTransferUpdate(ctx context.Context, d deal.Deal, today time.Time) DispatchResult {
	if !d.HasSolar || d.OfferAcceptanceDate == nil {
		return skipped()
	}
	if r.dates.DaysSince(*d.OfferAcceptanceDate, today) <= 7 {
		return skipped()
	}
	key := TplBuyerSolarTransferUpdate
	if d.Side == deal.SideListing {
		key = TplListingSolarTransferUpdate
	}
	return r.sender.Dispatch(ctx, DispatchParams{DealID: d.ID, TemplateKey: key, ContextDate: &today})
}

// Buying side: chase seller disclosures exactly 3 days before they are due.
// Context date is the due date itself, so the chase fires once per deadline.
func (r *Rules) maybeSendDisclosuresFollowup(ctx context.Context, d deal.Deal, today time.Time) DispatchResult {
	if d.Side != deal.SideBuying || d.SellerDisclosuresDueDate == nil {
		return skipped()
	}
	if d.SellerDisclosuresSentAt != nil {
		return skipped()
	}
	if r.dates.DaysUntil(*d.SellerDisclosuresDueDate, today) != 3 {
		return skipped()
	}
	return r.sender.Dispatch(ctx, DispatchParams{
		DealID:      d.ID,
		TemplateKey: TplBuyerDisclosuresFollowup,
		ContextDate: d.SellerDisclosuresDueDate,
	})
}

// Listing side: one notification per contingency deadline landing today.
// The per-date context keeps same-day deadlines independent in the ledger.
func (r *Rules) maybeSendContingencyDueToday(ctx context.Context, d deal.Deal, today time.Time) DispatchResult {
	if d.Side != deal.SideListing {
		return skipped()
	}
	for _, date := range []*time.Time{
		d.BuyerInvestigationDueDate,
		d.BuyerAppraisalDueDate,
		d.BuyerLoanDueDate,
		d.BuyerInsuranceDueDate,
	} {
		if date != nil && r.dates.SameDay(*date, today) {
			r.sender.Dispatch(ctx, DispatchParams{
				DealID:      d.ID,
				TemplateKey: TplListingContingencyDueToday,
				ContextDate: date,
			})
		}
	}
	return skipped()
}

func (r *Rules) maybeSendCdaReminder(ctx context.Context, d deal.Deal, today time.Time) DispatchResult {
	if d.EstimatedCoeDate == nil || d.CdaSentToEscrowAt != nil {
		return skipped()
	}
	if r.dates.DaysUntil(*d.EstimatedCoeDate, today) != 5 {
		return skipped()
	}
	key := TplBuyerCdaToEscrow
	if d.Side == deal.SideListing {
		key = TplListingCdaToEscrow
	}
	return r.sender.Dispatch(ctx, DispatchParams{DealID: d.ID, TemplateKey: key, ContextDate: d.EstimatedCoeDate})
}

func (r *Rules) maybeSendUpcomingClosingUpdate(ctx context.Context, d deal.Deal, today time.Time) DispatchResult {
	if d.Side != deal.SideBuying || d.EstimatedCoeDate == nil {
		return skipped()
	}
	if r.dates.DaysUntil(*d.EstimatedCoeDate, today) != 3 {
		return skipped()
	}
	return r.sender.Dispatch(ctx, DispatchParams{
		DealID:      d.ID,
		TemplateKey: TplBuyerUpcomingClosingUpdate,
		ContextDate: d.EstimatedCoeDate,
	})
}

func (r *Rules) maybeSendUtilityRequests(ctx context.Context, d deal.Deal, today time.Time) DispatchResult {
	if d.EstimatedCoeDate == nil {
		return skipped()
	}
	days := r.dates.DaysUntil(*d.EstimatedCoeDate, today)
	if days > 5 || days < 0 {
		return skipped()
	}
	key := TplBuyerRequestUtilities
	if d.Side == deal.SideListing {
		key = TplListingRequestUtilitiesSeller
	}
	return r.sender.Dispatch(ctx, DispatchParams{DealID: d.ID, TemplateKey: key, ContextDate: d.EstimatedCoeDate})
}

func skipped() DispatchResult {
	return DispatchResult{Success: true, Skipped: true}
}
