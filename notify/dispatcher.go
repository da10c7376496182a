package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tcflow/deal"
	"tcflow/render"
	"tcflow/timeline"
)

const batchConcurrency = 8

// RecipientResolver abstracts Resolver for tests.
type RecipientResolver interface {
	Resolve(ctx context.Context, d deal.Deal, audience AudienceType) []Recipient
}

// Dispatcher sends one notification at most once per (deal, template,
// context date). The ledger row is claimed before the send so a crash or a
// concurrent dispatch can duplicate a claim attempt but never an email.
type Dispatcher struct {
	deals     deal.Repository
	templates TemplateRepository
	ledger    LogRepository
	alerts    AlertRepository
	timeline  timeline.Repository
	resolver  RecipientResolver
	mailer    Mailer
	log       *logrus.Logger
}

func NewDispatcher(
	deals deal.Repository,
	templates TemplateRepository,
	ledger LogRepository,
	alerts AlertRepository,
	tl timeline.Repository,
	resolver RecipientResolver,
	mailer Mailer,
	log *logrus.Logger,
) *Dispatcher {
	return &Dispatcher{
		deals:     deals,
		templates: templates,
		ledger:    ledger,
		alerts:    alerts,
		timeline:  tl,
		resolver:  resolver,
		mailer:    mailer,
		log:       log,
	}
}

// Dispatch never returns an error; every outcome is encoded in the result so
// callers (rules, workflow steps) can aggregate without unwrapping.
func (d *Dispatcher) Dispatch(ctx context.Context, params DispatchParams) DispatchResult {
	entry := d.log.WithFields(logrus.Fields{
		"deal_id":      params.DealID,
		"template_key": params.TemplateKey,
	})

	dl, err := d.deals.GetByID(ctx, params.DealID)
	if err != nil {
		entry.WithError(err).Error("dispatch: deal lookup failed")
		return DispatchResult{Error: fmt.Sprintf("deal not found: %s", params.DealID)}
	}

	tpl, err := d.templates.GetActiveByKey(ctx, params.TemplateKey)
	if err != nil {
		entry.WithError(err).Error("dispatch: template lookup failed")
		return DispatchResult{Error: fmt.Sprintf("template not found or inactive: %s", params.TemplateKey)}
	}

	logID, claimed, err := d.ledger.Claim(ctx, params.DealID, params.TemplateKey, params.ContextDate)
	if err != nil {
		entry.WithError(err).Error("dispatch: ledger claim failed")
		return DispatchResult{Error: err.Error()}
	}
	if !claimed {
		entry.Debug("dispatch: already sent, skipping")
		return DispatchResult{Success: true, Skipped: true, Reason: "already sent"}
	}

	if tpl.AudienceType == AudienceInternalChat {
		return d.dispatchInternalChat(ctx, dl, tpl, params, logID)
	}

	recipients := d.resolver.Resolve(ctx, dl, tpl.AudienceType)
	if len(recipients) == 0 {
		reason := fmt.Sprintf("no recipients for %s", tpl.AudienceType)
		entry.Warn("dispatch: " + reason)
		d.settleFailed(ctx, logID, nil, reason)
		return DispatchResult{Success: true, Skipped: true, Reason: reason}
	}

	names := make([]string, 0, len(recipients))
	emails := make([]string, 0, len(recipients))
	for _, r := range recipients {
		emails = append(emails, r.Email)
		if r.Name != "" {
			names = append(names, r.Name)
		}
	}

	data := render.BuildData(dl, map[string]any{
		"template_key":    params.TemplateKey,
		"recipient_names": strings.Join(names, ", "),
	})
	subject, body := render.RenderEmail(tpl.SubjectTemplate, tpl.BodyHTML, data)

	text := ""
	if tpl.BodyText != nil {
		text = *tpl.BodyText
	}

	res := d.mailer.Send(ctx, SendParams{To: recipients, Subject: subject, HTML: body, Text: text})
	if !res.Success {
		entry.WithField("send_error", res.Error).Error("dispatch: transport failure")
		d.settleFailed(ctx, logID, emails, res.Error)
		d.raiseAlert(ctx, dl.ID, params.TemplateKey, res.Error)
		return DispatchResult{Error: res.Error}
	}

	if err := d.ledger.MarkSent(ctx, logID, emails); err != nil {
		entry.WithError(err).Error("dispatch: ledger settle failed")
	}
	entry.WithField("recipients", len(recipients)).Info("dispatch: sent")
	return DispatchResult{Success: true, Sent: true}
}

// dispatchInternalChat writes the rendered message to the deal timeline
// instead of sending mail.
func (d *Dispatcher) dispatchInternalChat(ctx context.Context, dl deal.Deal, tpl EmailTemplate, params DispatchParams, logID string) DispatchResult {
	data := render.BuildData(dl, map[string]any{"template_key": params.TemplateKey})

	bodyTpl := tpl.BodyHTML
	if tpl.BodyText != nil && *tpl.BodyText != "" {
		bodyTpl = *tpl.BodyText
	}
	subject, body := render.RenderEmail(tpl.SubjectTemplate, bodyTpl, data)

	meta := map[string]any{
		"template_key": params.TemplateKey,
		"message":      body,
	}
	if params.ContextDate != nil {
		meta["context_date"] = params.ContextDate.Format("2006-01-02")
	}

	err := d.timeline.Append(ctx, timeline.Event{
		DealID:      dl.ID,
		EventType:   "internal_chat",
		Description: subject,
		Metadata:    meta,
	})
	if err != nil {
		d.log.WithField("deal_id", dl.ID).WithError(err).Error("dispatch: internal chat write failed")
		d.settleFailed(ctx, logID, nil, err.Error())
		return DispatchResult{Error: err.Error()}
	}

	if err := d.ledger.MarkSent(ctx, logID, nil); err != nil {
		d.log.WithField("deal_id", dl.ID).WithError(err).Error("dispatch: ledger settle failed")
	}
	return DispatchResult{Success: true, Sent: true}
}

// DispatchBatch runs dispatches with bounded concurrency and aggregates the
// outcomes. Individual failures never abort the batch.
func (d *Dispatcher) DispatchBatch(ctx context.Context, list []DispatchParams) BatchResult {
	results := make([]DispatchResult, len(list))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, params := range list {
		g.Go(func() error {
			results[i] = d.Dispatch(gctx, params)
			return nil
		})
	}
	_ = g.Wait()

	batch := BatchResult{Total: len(list), Results: results}
	for _, r := range results {
		switch {
		case r.Sent:
			batch.Sent++
		case r.Skipped:
			batch.Skipped++
		case !r.Success:
			batch.Failed++
		}
	}
	return batch
}

func (d *Dispatcher) settleFailed(ctx context.Context, logID string, emails []string, reason string) {
	if err := d.ledger.MarkFailed(ctx, logID, emails, reason); err != nil {
		d.log.WithError(err).Error("dispatch: ledger settle failed")
	}
}

func (d *Dispatcher) raiseAlert(ctx context.Context, dealID, templateKey, sendErr string) {
	alert := Alert{
		DealID:  dealID,
		Type:    "overdue_task",
		Level:   AlertWarning,
		Message: fmt.Sprintf("Failed to send %s email: %s", templateKey, sendErr),
	}
	if err := d.alerts.Create(ctx, alert); err != nil {
		d.log.WithError(err).Error("dispatch: alert create failed")
	}
}
