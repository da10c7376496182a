package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"tcflow/deal"
	"tcflow/party"
)

// Resolver maps an audience type to concrete email recipients for a deal.
// Missing links (no escrow company set, agent without email) resolve to an
// empty list with a warning; they never fail a dispatch outright.
type Resolver struct {
	parties party.Repository
	log     *logrus.Logger
}

func NewResolver(parties party.Repository, log *logrus.Logger) *Resolver {
	return &Resolver{parties: parties, log: log}
}

func (r *Resolver) Resolve(ctx context.Context, d deal.Deal, audience AudienceType) []Recipient {
	switch audience {
	case AudienceEscrow:
		return r.escrow(ctx, d)
	case AudienceLender:
		return r.lender(ctx, d)
	case AudienceListingAgent:
		return r.listingAgent(ctx, d)
	case AudienceBuyingAgent:
		return r.buyingAgent(ctx, d)
	case AudienceSeller:
		return r.partyEmails(ctx, d.ID, party.RoleSeller)
	case AudienceBuyer:
		return r.partyEmails(ctx, d.ID, party.RoleBuyer)
	case AudienceAllParties:
		return r.allParties(ctx, d)
	case AudienceInternalChat:
		// Internal chat has no email recipients.
		return nil
	default:
		r.log.WithFields(logrus.Fields{"deal_id": d.ID, "audience": audience}).
			Warn("unknown audience type")
		return nil
	}
}

func (r *Resolver) escrow(ctx context.Context, d deal.Deal) []Recipient {
	if d.EscrowCompanyID == nil {
		r.log.WithField("deal_id", d.ID).Warn("no escrow company linked")
		return nil
	}
	c, err := r.parties.GetEscrowCompany(ctx, *d.EscrowCompanyID)
	if err != nil || c.Email == nil {
		r.log.WithField("deal_id", d.ID).Warn("escrow company has no email")
		return nil
	}
	return []Recipient{{Email: *c.Email, Name: c.Name}}
}

func (r *Resolver) lender(ctx context.Context, d deal.Deal) []Recipient {
	if d.LenderID == nil {
		r.log.WithField("deal_id", d.ID).Warn("no lender linked")
		return nil
	}
	l, err := r.parties.GetLender(ctx, *d.LenderID)
	if err != nil || l.Email == nil {
		r.log.WithField("deal_id", d.ID).Warn("lender has no email")
		return nil
	}
	name := l.Name
	if l.LoanOfficerName != nil && *l.LoanOfficerName != "" {
		name = *l.LoanOfficerName
	}
	return []Recipient{{Email: *l.Email, Name: name}}
}

// listingAgent: on listing-side deals the primary agent is the listing
// agent; otherwise look for a listing_agent deal party.
func (r *Resolver) listingAgent(ctx context.Context, d deal.Deal) []Recipient {
	if d.Side == deal.SideListing && d.PrimaryAgentID != nil {
		return r.agent(ctx, d, *d.PrimaryAgentID)
	}
	return r.firstParty(ctx, d, party.RoleListingAgent)
}

func (r *Resolver) buyingAgent(ctx context.Context, d deal.Deal) []Recipient {
	if d.Side == deal.SideBuying && d.PrimaryAgentID != nil {
		return r.agent(ctx, d, *d.PrimaryAgentID)
	}
	return r.firstParty(ctx, d, party.RoleBuyerAgent)
}

func (r *Resolver) agent(ctx context.Context, d deal.Deal, agentID string) []Recipient {
	a, err := r.parties.GetAgent(ctx, agentID)
	if err != nil || a.Email == "" {
		r.log.WithFields(logrus.Fields{"deal_id": d.ID, "agent_id": agentID}).
			Warn("agent has no email")
		return nil
	}
	return []Recipient{{Email: a.Email, Name: a.FullName()}}
}

func (r *Resolver) firstParty(ctx context.Context, d deal.Deal, role party.Role) []Recipient {
	parties, err := r.parties.ListByRole(ctx, d.ID, role)
	if err != nil {
		r.log.WithFields(logrus.Fields{"deal_id": d.ID, "role": role}).
			WithError(err).Warn("party lookup failed")
		return nil
	}
	for _, p := range parties {
		if p.Email != nil && *p.Email != "" {
			return []Recipient{{Email: *p.Email, Name: p.Name}}
		}
	}
	r.log.WithFields(logrus.Fields{"deal_id": d.ID, "role": role}).Warn("no party with email")
	return nil
}

func (r *Resolver) partyEmails(ctx context.Context, dealID string, role party.Role) []Recipient {
	parties, err := r.parties.ListByRole(ctx, dealID, role)
	if err != nil {
		r.log.WithFields(logrus.Fields{"deal_id": dealID, "role": role}).
			WithError(err).Warn("party lookup failed")
		return nil
	}
	var out []Recipient
	for _, p := range parties {
		if p.Email != nil && *p.Email != "" {
			out = append(out, Recipient{Email: *p.Email, Name: p.Name})
		}
	}
	return out
}

// allParties unions both agents, escrow, and lender, deduplicated by email.
func (r *Resolver) allParties(ctx context.Context, d deal.Deal) []Recipient {
	var all []Recipient
	all = append(all, r.listingAgent(ctx, d)...)
	all = append(all, r.buyingAgent(ctx, d)...)
	all = append(all, r.escrow(ctx, d)...)
	all = append(all, r.lender(ctx, d)...)

	seen := map[string]bool{}
	out := all[:0]
	for _, rec := range all {
		if seen[rec.Email] {
			continue
		}
		seen[rec.Email] = true
		out = append(out, rec)
	}
	return out
}
