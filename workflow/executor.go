package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tcflow/deal"
	"tcflow/notify"
	"tcflow/task"
	"tcflow/timeline"
)

// TickStats summarizes one executor pass.
type TickStats struct {
	Due       int `json:"due"`
	Completed int `json:"completed"`
	Errored   int `json:"errored"`
}

// Executor runs due workflow steps. Each step executes in isolation: a
// panic or error marks that step terminal and the pass moves on.
type Executor struct {
	repo     Repository
	deals    deal.Repository
	tasks    task.Repository
	timeline timeline.Repository
	sender   notify.Sender
	log      *logrus.Logger
	now      func() time.Time
}

func NewExecutor(
	repo Repository,
	deals deal.Repository,
	tasks task.Repository,
	tl timeline.Repository,
	sender notify.Sender,
	log *logrus.Logger,
) *Executor {
	return &Executor{
		repo:     repo,
		deals:    deals,
		tasks:    tasks,
		timeline: tl,
		sender:   sender,
		log:      log,
		now:      time.Now,
	}
}

func (x *Executor) WithClock(now func() time.Time) *Executor {
	x.now = now
	return x
}

// RunDueSteps executes every pending step scheduled at or before now.
func (x *Executor) RunDueSteps(ctx context.Context, now time.Time) TickStats {
	stats := TickStats{}

	due, err := x.repo.ListDueSteps(ctx, now)
	if err != nil {
		x.log.WithError(err).Error("executor: list due steps failed")
		return stats
	}
	stats.Due = len(due)

	for _, d := range due {
		markComplete, err := x.runOne(ctx, d)
		if err != nil {
			stats.Errored++
			x.log.WithFields(logrus.Fields{
				"run_step_id": d.RunStep.ID,
				"step_name":   d.Step.Name,
			}).WithError(err).Error("executor: step failed")
			if merr := x.repo.MarkStepError(ctx, d.RunStep.ID, err.Error(), x.now()); merr != nil {
				x.log.WithField("run_step_id", d.RunStep.ID).WithError(merr).Error("executor: mark error failed")
			}
			continue
		}
		if !markComplete {
			// wait_for_event steps stay pending until their event reschedules them.
			continue
		}

		if err := x.repo.MarkStepCompleted(ctx, d.RunStep.ID, x.now()); err != nil {
			x.log.WithField("run_step_id", d.RunStep.ID).WithError(err).Error("executor: mark completed failed")
			continue
		}
		stats.Completed++

		err = x.timeline.Append(ctx, timeline.Event{
			DealID:      d.DealID,
			EventType:   "step_executed",
			Description: fmt.Sprintf("Executed workflow step %q", d.Step.Name),
			Metadata: map[string]any{
				"step_id":     d.Step.ID,
				"step_name":   d.Step.Name,
				"action_type": string(d.Step.ActionType),
			},
		})
		if err != nil {
			x.log.WithField("deal_id", d.DealID).WithError(err).Error("executor: timeline write failed")
		}
	}
	return stats
}

// runOne wraps step execution with panic recovery so a bad step cannot take
// the tick down.
func (x *Executor) runOne(ctx context.Context, d DueStep) (markComplete bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			markComplete = false
			err = fmt.Errorf("workflow: step panic: %v", r)
		}
	}()
	return x.executeStep(ctx, d)
}

func (x *Executor) executeStep(ctx context.Context, d DueStep) (bool, error) {
	cfg := ParseActionConfig(d.Step.ActionType, d.Step.ActionConfig)
	if cfg == nil {
		return false, fmt.Errorf("workflow: invalid action config for step %s", d.Step.ID)
	}

	switch c := cfg.(type) {
	case SendEmailConfig:
		// The dispatcher owns dedup and failure reporting; a failed send is
		// recorded in the ledger and never fails the step.
		res := x.sender.Dispatch(ctx, notify.DispatchParams{
			DealID:      d.DealID,
			TemplateKey: c.TemplateName,
		})
		entry := x.log.WithFields(logrus.Fields{
			"deal_id":      d.DealID,
			"template_key": c.TemplateName,
		})
		switch {
		case res.Sent:
			entry.Info("executor: step email sent")
		case res.Skipped:
			entry.WithField("reason", res.Reason).Info("executor: step email skipped")
		default:
			entry.WithField("error", res.Error).Error("executor: step email failed")
		}
		return true, nil

	case CreateTaskConfig:
		var dueDate *time.Time
		if c.DueDateOffsetDays != nil {
			due := x.now().AddDate(0, 0, *c.DueDateOffsetDays)
			dueDate = &due
		}
		_, err := x.tasks.Create(ctx, task.CreateParams{
			DealID:      d.DealID,
			Title:       c.Title,
			Description: c.Description,
			DueDate:     dueDate,
		})
		if err != nil {
			return false, err
		}
		err = x.timeline.Append(ctx, timeline.Event{
			DealID:      d.DealID,
			EventType:   "task_created",
			Description: fmt.Sprintf("Created task %q", c.Title),
			Metadata:    map[string]any{"title": c.Title},
		})
		if err != nil {
			x.log.WithField("deal_id", d.DealID).WithError(err).Error("executor: timeline write failed")
		}
		return true, nil

	case UpdateFieldConfig:
		if _, err := x.deals.Update(ctx, d.DealID, map[string]any{c.Field: c.Value}); err != nil {
			return false, err
		}
		err := x.timeline.Append(ctx, timeline.Event{
			DealID:      d.DealID,
			EventType:   "field_updated",
			Description: fmt.Sprintf("Updated field %s", c.Field),
			Metadata:    map[string]any{"field": c.Field, "value": c.Value},
		})
		if err != nil {
			x.log.WithField("deal_id", d.DealID).WithError(err).Error("executor: timeline write failed")
		}
		return true, nil

	case WaitForEventConfig:
		// Nothing to execute; the step stays pending until its event arrives.
		return false, nil

	default:
		return false, fmt.Errorf("workflow: unhandled action type %s", d.Step.ActionType)
	}
}
