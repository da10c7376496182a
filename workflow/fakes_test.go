package workflow

import (
	"context"
	"errors"
	"time"

	"tcflow/deal"
	"tcflow/notify"
	"tcflow/task"
	"tcflow/timeline"
)

type createdRunStep struct {
	runID        string
	stepID       string
	scheduledFor time.Time
}

type fakeRepo struct {
	defs        []Definition
	steps       map[string][]Step
	existing    map[string]bool
	pendingWait []PendingStep
	due         []DueStep

	createdRuns     []Run
	createdRunSteps []createdRunStep
	rescheduled     map[string]time.Time
	completed       map[string]time.Time
	errored         map[string]string

	createRunStepErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		steps:       map[string][]Step{},
		existing:    map[string]bool{},
		rescheduled: map[string]time.Time{},
		completed:   map[string]time.Time{},
		errored:     map[string]string{},
	}
}

func (f *fakeRepo) ListActiveDefinitions(_ context.Context, side deal.Side, trigger TriggerType) ([]Definition, error) {
	out := []Definition{}
	for _, d := range f.defs {
		if d.Side == side && d.TriggerType == trigger && d.IsActive {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListSteps(_ context.Context, definitionID string) ([]Step, error) {
	return f.steps[definitionID], nil
}

func (f *fakeRepo) RunExists(_ context.Context, dealID, definitionID string) (bool, error) {
	return f.existing[dealID+"/"+definitionID], nil
}

func (f *fakeRepo) CreateRun(_ context.Context, dealID, definitionID string) (Run, error) {
	run := Run{
		ID:           "run-" + definitionID,
		DealID:       dealID,
		DefinitionID: definitionID,
		Status:       RunActive,
	}
	f.createdRuns = append(f.createdRuns, run)
	return run, nil
}

func (f *fakeRepo) CreateRunStep(_ context.Context, runID, stepID string, scheduledFor time.Time) error {
	if f.createRunStepErr != nil {
		return f.createRunStepErr
	}
	f.createdRunSteps = append(f.createdRunSteps, createdRunStep{runID, stepID, scheduledFor})
	return nil
}

func (f *fakeRepo) ListPendingWaitSteps(_ context.Context, _ string) ([]PendingStep, error) {
	return f.pendingWait, nil
}

func (f *fakeRepo) RescheduleRunStep(_ context.Context, runStepID string, scheduledFor time.Time) error {
	f.rescheduled[runStepID] = scheduledFor
	return nil
}

func (f *fakeRepo) ListDueSteps(_ context.Context, _ time.Time) ([]DueStep, error) {
	return f.due, nil
}

func (f *fakeRepo) MarkStepCompleted(_ context.Context, runStepID string, executedAt time.Time) error {
	f.completed[runStepID] = executedAt
	return nil
}

func (f *fakeRepo) MarkStepError(_ context.Context, runStepID, message string, executedAt time.Time) error {
	f.errored[runStepID] = message
	return nil
}

type fakeDeals struct {
	deals   map[string]deal.Deal
	updates []map[string]any
}

func (f *fakeDeals) GetByID(_ context.Context, id string) (deal.Deal, error) {
	d, ok := f.deals[id]
	if !ok {
		return deal.Deal{}, deal.ErrNotFound
	}
	return d, nil
}

func (f *fakeDeals) ListByStatuses(_ context.Context, statuses []deal.Status) ([]deal.Deal, error) {
	out := []deal.Deal{}
	for _, d := range f.deals {
		for _, s := range statuses {
			if d.Status == s {
				out = append(out, d)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeDeals) Update(_ context.Context, id string, changes map[string]any) (deal.Deal, error) {
	d, ok := f.deals[id]
	if !ok {
		return deal.Deal{}, deal.ErrNotFound
	}
	for col := range changes {
		if !deal.IsUpdatableColumn(col) {
			return deal.Deal{}, deal.ErrUnknownField
		}
	}
	f.updates = append(f.updates, changes)
	// Apply the fields the engine tests observe.
	if v, ok := changes["emd_received_at"].(time.Time); ok {
		d.EmdReceivedAt = &v
	}
	if v, ok := changes["coe_date"].(time.Time); ok {
		d.CoeDate = &v
	}
	if v, ok := changes["inspection_deadline"].(time.Time); ok {
		d.InspectionDeadline = &v
	}
	if v, ok := changes["status"].(string); ok {
		d.Status = deal.Status(v)
	}
	f.deals[id] = d
	return d, nil
}

type fakeTimeline struct {
	events []timeline.Event
	err    error
}

func (f *fakeTimeline) Append(_ context.Context, ev timeline.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

type fakeTasks struct {
	created []task.CreateParams
	err     error
}

func (f *fakeTasks) Create(_ context.Context, params task.CreateParams) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, params)
	return "task-1", nil
}

type fakeSender struct {
	calls   []notify.DispatchParams
	result  notify.DispatchResult
	panicky bool
}

func (f *fakeSender) Dispatch(_ context.Context, params notify.DispatchParams) notify.DispatchResult {
	if f.panicky {
		panic("sender exploded")
	}
	f.calls = append(f.calls, params)
	return f.result
}

var errBoom = errors.New("boom")
