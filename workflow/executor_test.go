package workflow

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"tcflow/deal"
	"tcflow/notify"
)

func dueStep(id string, actionType ActionType, config string) DueStep {
	return DueStep{
		RunStep: RunStep{ID: id, Status: StepPending},
		Step: Step{
			ID:           "step-" + id,
			Name:         "step " + id,
			ActionType:   actionType,
			ActionConfig: json.RawMessage(config),
		},
		DealID: "deal-1",
	}
}

func newExecutorFixture() (*Executor, *fakeRepo, *fakeDeals, *fakeTasks, *fakeTimeline, *fakeSender) {
	repo := newFakeRepo()
	deals := &fakeDeals{deals: map[string]deal.Deal{
		"deal-1": {ID: "deal-1", Status: deal.StatusInEscrow},
	}}
	tasks := &fakeTasks{}
	tl := &fakeTimeline{}
	sender := &fakeSender{result: notify.DispatchResult{Success: true, Sent: true}}
	x := NewExecutor(repo, deals, tasks, tl, sender, testLogger())
	return x, repo, deals, tasks, tl, sender
}

func TestRunDueStepsSendEmail(t *testing.T) {
	x, repo, _, _, tl, sender := newExecutorFixture()
	repo.due = []DueStep{dueStep("rs-1", ActionSendEmail, `{"template_name":"buyer_timeline_all","audience":"all_parties"}`)}

	stats := x.RunDueSteps(context.Background(), time.Now())

	if stats.Due != 1 || stats.Completed != 1 || stats.Errored != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(sender.calls) != 1 || sender.calls[0].TemplateKey != "buyer_timeline_all" {
		t.Fatalf("sender calls = %+v", sender.calls)
	}
	if _, ok := repo.completed["rs-1"]; !ok {
		t.Fatal("expected step completed")
	}
	if len(tl.events) != 1 || tl.events[0].EventType != "step_executed" {
		t.Fatalf("timeline = %+v", tl.events)
	}
}

func TestRunDueStepsSendEmailFailureStillCompletesStep(t *testing.T) {
	x, repo, _, _, _, sender := newExecutorFixture()
	sender.result = notify.DispatchResult{Error: "smtp down"}
	repo.due = []DueStep{dueStep("rs-1", ActionSendEmail, `{"template_name":"t","audience":"buyer"}`)}

	stats := x.RunDueSteps(context.Background(), time.Now())

	// Email outcomes live in the ledger; the step itself succeeds.
	if stats.Completed != 1 || stats.Errored != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestRunDueStepsCreateTask(t *testing.T) {
	now := time.Date(2024, 11, 5, 10, 0, 0, 0, time.UTC)
	x, repo, _, tasks, _, _ := newExecutorFixture()
	x.WithClock(func() time.Time { return now })
	repo.due = []DueStep{dueStep("rs-1", ActionCreateTask, `{"title":"Order home warranty","due_date_offset_days":3}`)}

	stats := x.RunDueSteps(context.Background(), now)

	if stats.Completed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(tasks.created) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks.created))
	}
	created := tasks.created[0]
	if created.Title != "Order home warranty" {
		t.Fatalf("title = %q", created.Title)
	}
	if created.DueDate == nil || !created.DueDate.Equal(now.AddDate(0, 0, 3)) {
		t.Fatalf("due date = %v", created.DueDate)
	}
}

func TestRunDueStepsUpdateField(t *testing.T) {
	x, repo, deals, _, _, _ := newExecutorFixture()
	repo.due = []DueStep{dueStep("rs-1", ActionUpdateField, `{"field":"cda_prepared_at","value":"2024-12-01T00:00:00Z"}`)}

	stats := x.RunDueSteps(context.Background(), time.Now())

	if stats.Completed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(deals.updates) != 1 {
		t.Fatalf("expected one deal update")
	}
	if _, ok := deals.updates[0]["cda_prepared_at"]; !ok {
		t.Fatalf("updates = %+v", deals.updates[0])
	}
}

func TestRunDueStepsUpdateFieldRejectsUnknownColumn(t *testing.T) {
	x, repo, _, _, _, _ := newExecutorFixture()
	repo.due = []DueStep{dueStep("rs-1", ActionUpdateField, `{"field":"drop_table","value":1}`)}

	stats := x.RunDueSteps(context.Background(), time.Now())

	if stats.Errored != 1 || stats.Completed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if _, ok := repo.errored["rs-1"]; !ok {
		t.Fatal("expected step marked error")
	}
}

func TestRunDueStepsWaitForEventStaysPending(t *testing.T) {
	x, repo, _, _, _, _ := newExecutorFixture()
	repo.due = []DueStep{dueStep("rs-1", ActionWaitForEvent, `{"event_type":"emd_received"}`)}

	stats := x.RunDueSteps(context.Background(), time.Now())

	if stats.Completed != 0 || stats.Errored != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if _, ok := repo.completed["rs-1"]; ok {
		t.Fatal("wait step must not be completed")
	}
	if _, ok := repo.errored["rs-1"]; ok {
		t.Fatal("wait step must not be errored")
	}
}

func TestRunDueStepsInvalidConfigMarksError(t *testing.T) {
	x, repo, _, _, _, _ := newExecutorFixture()
	repo.due = []DueStep{dueStep("rs-1", ActionSendEmail, `{"nope":true}`)}

	stats := x.RunDueSteps(context.Background(), time.Now())

	if stats.Errored != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if msg := repo.errored["rs-1"]; !strings.Contains(msg, "invalid action config") {
		t.Fatalf("error message = %q", msg)
	}
}

func TestRunDueStepsIsolatesPanics(t *testing.T) {
	x, repo, _, _, _, sender := newExecutorFixture()
	sender.panicky = true
	repo.due = []DueStep{
		dueStep("rs-1", ActionSendEmail, `{"template_name":"t","audience":"buyer"}`),
		dueStep("rs-2", ActionCreateTask, `{"title":"Survive the tick"}`),
	}

	stats := x.RunDueSteps(context.Background(), time.Now())

	if stats.Errored != 1 || stats.Completed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if msg := repo.errored["rs-1"]; !strings.Contains(msg, "panic") {
		t.Fatalf("error message = %q", msg)
	}
	if _, ok := repo.completed["rs-2"]; !ok {
		t.Fatal("second step should still execute")
	}
}

func TestRunDueStepsTaskCreateFailure(t *testing.T) {
	x, repo, _, tasks, _, _ := newExecutorFixture()
	tasks.err = errBoom
	repo.due = []DueStep{dueStep("rs-1", ActionCreateTask, `{"title":"x"}`)}

	stats := x.RunDueSteps(context.Background(), time.Now())

	if stats.Errored != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}
