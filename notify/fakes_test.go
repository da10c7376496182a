package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tcflow/deal"
	"tcflow/party"
	"tcflow/timeline"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

type fakeDealRepo struct {
	deals map[string]deal.Deal
}

func (f *fakeDealRepo) GetByID(_ context.Context, id string) (deal.Deal, error) {
	d, ok := f.deals[id]
	if !ok {
		return deal.Deal{}, deal.ErrNotFound
	}
	return d, nil
}

func (f *fakeDealRepo) ListByStatuses(_ context.Context, statuses []deal.Status) ([]deal.Deal, error) {
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

func (f *fakeDealRepo) Update(_ context.Context, id string, _ map[string]any) (deal.Deal, error) {
	return f.deals[id], nil
}

type fakeTemplates struct {
	templates map[string]EmailTemplate
}

func (f *fakeTemplates) GetActiveByKey(_ context.Context, key string) (EmailTemplate, error) {
	t, ok := f.templates[key]
	if !ok || !t.IsActive {
		return EmailTemplate{}, ErrTemplateNotFound
	}
	return t, nil
}

// fakeLedger enforces claim uniqueness in memory the way the database index
// does, including the sentinel for nil context dates.
type fakeLedger struct {
	mu      sync.Mutex
	claims  map[string]string
	settled map[string]LogStatus
	nextID  int

	claimErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{claims: map[string]string{}, settled: map[string]LogStatus{}}
}

func ledgerKey(dealID, templateKey string, contextDate *time.Time) string {
	date := "0001-01-01"
	if contextDate != nil {
		date = contextDate.Format("2006-01-02")
	}
	return dealID + "|" + templateKey + "|" + date
}

func (f *fakeLedger) Claim(_ context.Context, dealID, templateKey string, contextDate *time.Time) (string, bool, error) {
	if f.claimErr != nil {
		return "", false, f.claimErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	key := ledgerKey(dealID, templateKey, contextDate)
	if _, ok := f.claims[key]; ok {
		return "", false, nil
	}
	f.nextID++
	id := fmt.Sprintf("log-%d", f.nextID)
	f.claims[key] = id
	f.settled[id] = LogPending
	return id, true, nil
}

func (f *fakeLedger) MarkSent(_ context.Context, logID string, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled[logID] = LogSent
	return nil
}

func (f *fakeLedger) MarkFailed(_ context.Context, logID string, _ []string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled[logID] = LogFailed
	return nil
}

type fakeAlerts struct {
	alerts []Alert
}

func (f *fakeAlerts) Create(_ context.Context, alert Alert) error {
	f.alerts = append(f.alerts, alert)
	return nil
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

type fakeResolver struct {
	recipients []Recipient
}

func (f *fakeResolver) Resolve(_ context.Context, _ deal.Deal, _ AudienceType) []Recipient {
	return f.recipients
}

type fakeMailer struct {
	mu     sync.Mutex
	sends  []SendParams
	result SendResult
}

func (f *fakeMailer) Send(_ context.Context, params SendParams) SendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, params)
	return f.result
}

func (f *fakeMailer) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

// recordingSender captures rule-engine dispatches without a full dispatcher.
type recordingSender struct {
	calls  []DispatchParams
	result DispatchResult
}

func (f *recordingSender) Dispatch(_ context.Context, params DispatchParams) DispatchResult {
	f.calls = append(f.calls, params)
	return f.result
}

type fakePartyRepo struct {
	parties map[party.Role][]party.Party
	escrow  *party.EscrowCompany
	lender  *party.Lender
	agents  map[string]party.Agent
	listErr error
}

func (f *fakePartyRepo) ListByRole(_ context.Context, _ string, role party.Role) ([]party.Party, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.parties[role], nil
}

func (f *fakePartyRepo) GetEscrowCompany(_ context.Context, _ string) (party.EscrowCompany, error) {
	if f.escrow == nil {
		return party.EscrowCompany{}, party.ErrNotFound
	}
	return *f.escrow, nil
}

func (f *fakePartyRepo) GetLender(_ context.Context, _ string) (party.Lender, error) {
	if f.lender == nil {
		return party.Lender{}, party.ErrNotFound
	}
	return *f.lender, nil
}

func (f *fakePartyRepo) GetAgent(_ context.Context, id string) (party.Agent, error) {
	a, ok := f.agents[id]
	if !ok {
		return party.Agent{}, party.ErrNotFound
	}
	return a, nil
}

var errTransport = errors.New("transport down")
