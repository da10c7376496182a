package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tcflow/deal"
	"tcflow/timeline"
)

// waitEventTypes maps deal event types to the event_type values
// wait_for_event step configs declare.
var waitEventTypes = map[string]string{
	EventSetEmdReceived:                   "emd_received",
	EventMarkInspectionContingencyRemoved: "inspection_contingency_removed",
}

// Engine instantiates workflows and reacts to deal events.
type Engine struct {
	repo     Repository
	deals    deal.Repository
	timeline timeline.Repository
	log      *logrus.Logger
	now      func() time.Time
}

func NewEngine(repo Repository, deals deal.Repository, tl timeline.Repository, log *logrus.Logger) *Engine {
	return &Engine{
		repo:     repo,
		deals:    deals,
		timeline: tl,
		log:      log,
		now:      time.Now,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CalculateScheduledDate anchors a step's schedule on one of the deal's key
// dates and shifts it by offsetDays. A missing anchor falls back to now, so
// the step becomes due immediately rather than never.
func CalculateScheduledDate(d deal.Deal, relativeTo *string, offsetDays int, now time.Time) time.Time {
	base := now
	if relativeTo != nil {
		switch *relativeTo {
		case RelativeToCoeDate:
			if d.CoeDate != nil {
				base = *d.CoeDate
			}
		case RelativeToInspectionDeadline:
			if d.InspectionDeadline != nil {
				base = *d.InspectionDeadline
			}
		case RelativeToDealCreated:
			base = d.CreatedAt
		}
	}
	return base.AddDate(0, 0, offsetDays)
}

// StartWorkflowsForDeal instantiates every active in_escrow workflow
// matching the deal's side. Definitions that already have a run for this
// deal are skipped, so re-entering escrow cannot double-schedule steps.
func (e *Engine) StartWorkflowsForDeal(ctx context.Context, dealID string) error {
	d, err := e.deals.GetByID(ctx, dealID)
	if err != nil {
		return fmt.Errorf("workflow: start workflows: %w", err)
	}

	if d.Status != deal.StatusInEscrow {
		return nil
	}

	defs, err := e.repo.ListActiveDefinitions(ctx, d.Side, TriggerInEscrow)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		return nil
	}

	started := []string{}
	for _, def := range defs {
		exists, err := e.repo.RunExists(ctx, d.ID, def.ID)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := e.startRun(ctx, d, def); err != nil {
			return err
		}
		started = append(started, def.ID)
	}
	if len(started) == 0 {
		return nil
	}

	err = e.timeline.Append(ctx, timeline.Event{
		DealID:      d.ID,
		EventType:   "workflow_started",
		Description: fmt.Sprintf("Started %d workflow(s) for deal", len(started)),
		Metadata:    map[string]any{"workflows": started},
	})
	if err != nil {
		e.log.WithField("deal_id", d.ID).WithError(err).Error("engine: timeline write failed")
	}
	return nil
}

func (e *Engine) startRun(ctx context.Context, d deal.Deal, def Definition) error {
	run, err := e.repo.CreateRun(ctx, d.ID, def.ID)
	if err != nil {
		return err
	}

	steps, err := e.repo.ListSteps(ctx, def.ID)
	if err != nil {
		return err
	}

	for _, step := range steps {
		scheduledFor := CalculateScheduledDate(d, step.RelativeTo, step.OffsetDays, e.now())
		if err := e.repo.CreateRunStep(ctx, run.ID, step.ID, scheduledFor); err != nil {
			// One bad step must not abort the rest of the run.
			e.log.WithFields(logrus.Fields{
				"run_id":  run.ID,
				"step_id": step.ID,
			}).WithError(err).Error("engine: create run step failed")
		}
	}
	return nil
}

// HandleDealEvent applies the event's field updates, reschedules any
// wait_for_event steps listening for it, and records the event on the
// timeline. Unknown event types mutate nothing but still flow through
// advancement and the timeline.
func (e *Engine) HandleDealEvent(ctx context.Context, ev Event) error {
	changes := map[string]any{}

	switch ev.EventType {
	case EventSetEmdReceived:
		changes["emd_received_at"] = e.now()
	case EventSetInspectionDeadline:
		if t, ok := eventTime(ev.Data, "deadline"); ok {
			changes["inspection_deadline"] = t
		}
	case EventMarkInspectionContingencyRemoved:
		changes["inspection_contingency_removed_at"] = e.now()
	case EventSetCoeDate:
		if t, ok := eventTime(ev.Data, "coe_date"); ok {
			changes["coe_date"] = t
		}
	case EventStatusChanged:
		if s, ok := ev.Data["status"].(string); ok && s != "" {
			changes["status"] = s
		}
	}

	if len(changes) > 0 {
		if _, err := e.deals.Update(ctx, ev.DealID, changes); err != nil {
			return fmt.Errorf("workflow: apply event %s: %w", ev.EventType, err)
		}
	}

	e.advanceWaitForEventSteps(ctx, ev.DealID, ev.EventType)

	err := e.timeline.Append(ctx, timeline.Event{
		DealID:      ev.DealID,
		EventType:   "deal_event",
		Description: fmt.Sprintf("Deal event %s", ev.EventType),
		Metadata:    map[string]any{"event_type": ev.EventType, "data": ev.Data},
	})
	if err != nil {
		e.log.WithField("deal_id", ev.DealID).WithError(err).Error("engine: timeline write failed")
	}
	return nil
}

// advanceWaitForEventSteps recomputes the schedule of pending
// wait_for_event steps listening for this event, against the just-updated
// deal. It changes schedules only, never statuses.
func (e *Engine) advanceWaitForEventSteps(ctx context.Context, dealID, eventType string) {
	waitType, ok := waitEventTypes[eventType]
	if !ok {
		return
	}

	pending, err := e.repo.ListPendingWaitSteps(ctx, dealID)
	if err != nil {
		e.log.WithField("deal_id", dealID).WithError(err).Error("engine: list wait steps failed")
		return
	}
	if len(pending) == 0 {
		return
	}

	d, err := e.deals.GetByID(ctx, dealID)
	if err != nil {
		e.log.WithField("deal_id", dealID).WithError(err).Error("engine: deal reload failed")
		return
	}

	for _, p := range pending {
		cfg, ok := ParseActionConfig(p.Step.ActionType, p.Step.ActionConfig).(WaitForEventConfig)
		if !ok || cfg.EventType != waitType {
			continue
		}
		scheduledFor := CalculateScheduledDate(d, p.Step.RelativeTo, p.Step.OffsetDays, e.now())
		if err := e.repo.RescheduleRunStep(ctx, p.RunStep.ID, scheduledFor); err != nil {
			e.log.WithField("run_step_id", p.RunStep.ID).WithError(err).Error("engine: reschedule failed")
		}
	}
}

// eventTime extracts a timestamp from event payload data, accepting either
// a date or a full RFC 3339 timestamp.
func eventTime(data map[string]any, key string) (time.Time, bool) {
	raw, ok := data[key].(string)
	if !ok || raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
