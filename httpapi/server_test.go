package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcflow/dates"
	"tcflow/notify"
	"tcflow/workflow"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

type stubBackend struct {
	sequence []string
	events   []workflow.Event

	startErr  error
	handleErr error

	dailyStats notify.RuleStats
	tickReport workflow.TickReport
}

func (s *stubBackend) StartWorkflowsForDeal(_ context.Context, dealID string) error {
	s.sequence = append(s.sequence, "start:"+dealID)
	return s.startErr
}

func (s *stubBackend) HandleDealEvent(_ context.Context, ev workflow.Event) error {
	s.sequence = append(s.sequence, "event:"+ev.EventType)
	s.events = append(s.events, ev)
	return s.handleErr
}

func (s *stubBackend) RunImmediateRules(_ context.Context, dealID string) {
	s.sequence = append(s.sequence, "immediate:"+dealID)
}

func (s *stubBackend) RunDailyRules(_ context.Context, _ time.Time) notify.RuleStats {
	s.sequence = append(s.sequence, "daily")
	return s.dailyStats
}

func (s *stubBackend) RunTick(_ context.Context) workflow.TickReport {
	s.sequence = append(s.sequence, "tick")
	return s.tickReport
}

func newTestServer(backend *stubBackend, secret string, enableCron bool) *gin.Engine {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	ds := dates.NewService(time.UTC)
	return NewServer(backend, backend, backend, backend, ds, secret, enableCron, log).Router()
}

func doRequest(router *gin.Engine, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestDealEventRejectsUnknownType(t *testing.T) {
	backend := &stubBackend{}
	router := newTestServer(backend, "s3cret", false)

	w := doRequest(router, http.MethodPost, "/api/deals/deal-1/events",
		`{"eventType":"paint-the-fence"}`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, backend.sequence)
}

func TestDealEventRejectsMissingType(t *testing.T) {
	backend := &stubBackend{}
	router := newTestServer(backend, "s3cret", false)

	w := doRequest(router, http.MethodPost, "/api/deals/deal-1/events", `{"data":{}}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDealEventHandlesAndRunsImmediateRules(t *testing.T) {
	backend := &stubBackend{}
	router := newTestServer(backend, "s3cret", false)

	w := doRequest(router, http.MethodPost, "/api/deals/deal-1/events",
		`{"eventType":"set-emd-received"}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
	assert.Equal(t, []string{"event:set-emd-received", "immediate:deal-1"}, backend.sequence)
}

func TestDealEventInEscrowStartsWorkflowsFirst(t *testing.T) {
	backend := &stubBackend{}
	router := newTestServer(backend, "s3cret", false)

	w := doRequest(router, http.MethodPost, "/api/deals/deal-1/events",
		`{"eventType":"status-changed","data":{"status":"in_escrow"}}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{
		"start:deal-1",
		"immediate:deal-1",
		"event:status-changed",
		"immediate:deal-1",
	}, backend.sequence)
	require.Len(t, backend.events, 1)
	assert.Equal(t, "in_escrow", backend.events[0].Data["status"])
}

func TestDealEventOtherStatusSkipsWorkflowStart(t *testing.T) {
	backend := &stubBackend{}
	router := newTestServer(backend, "s3cret", false)

	w := doRequest(router, http.MethodPost, "/api/deals/deal-1/events",
		`{"eventType":"status-changed","data":{"status":"closed"}}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"event:status-changed", "immediate:deal-1"}, backend.sequence)
}

func TestDealEventStartFailureReturns500(t *testing.T) {
	backend := &stubBackend{startErr: errors.New("db down")}
	router := newTestServer(backend, "s3cret", false)

	w := doRequest(router, http.MethodPost, "/api/deals/deal-1/events",
		`{"eventType":"status-changed","data":{"status":"in_escrow"}}`, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// Nothing past the failed start runs.
	assert.Equal(t, []string{"start:deal-1"}, backend.sequence)
}

func TestDealEventHandleFailureReturns500(t *testing.T) {
	backend := &stubBackend{handleErr: errors.New("deal not found")}
	router := newTestServer(backend, "s3cret", false)

	w := doRequest(router, http.MethodPost, "/api/deals/deal-1/events",
		`{"eventType":"set-coe-date","data":{"coe_date":"2024-12-15"}}`, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "deal not found")
}

func TestDailyEmailsRequiresSecret(t *testing.T) {
	backend := &stubBackend{}
	router := newTestServer(backend, "s3cret", false)

	w := doRequest(router, http.MethodPost, "/api/cron/transaction-emails", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, http.MethodPost, "/api/cron/transaction-emails", "",
		map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Empty(t, backend.sequence)
}

func TestDailyEmailsBearerToken(t *testing.T) {
	backend := &stubBackend{dailyStats: notify.RuleStats{Considered: 4, Sent: 2, Skipped: 2}}
	router := newTestServer(backend, "s3cret", false)

	w := doRequest(router, http.MethodPost, "/api/cron/transaction-emails", "",
		map[string]string{"Authorization": "Bearer s3cret"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"considered":4`)
	assert.Contains(t, w.Body.String(), `"sent":2`)
	assert.Equal(t, []string{"daily"}, backend.sequence)
}

func TestDailyEmailsQuerySecret(t *testing.T) {
	backend := &stubBackend{}
	router := newTestServer(backend, "s3cret", false)

	w := doRequest(router, http.MethodPost, "/api/cron/transaction-emails?secret=s3cret", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDailyEmailsEmptySecretConfigRejectsAll(t *testing.T) {
	backend := &stubBackend{}
	router := newTestServer(backend, "", false)

	w := doRequest(router, http.MethodPost, "/api/cron/transaction-emails?secret=", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDailyEmailsInfoEndpoint(t *testing.T) {
	router := newTestServer(&stubBackend{}, "s3cret", false)

	w := doRequest(router, http.MethodGet, "/api/cron/transaction-emails", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ready"`)
}

func TestRunWorkflowsDisabledByFlag(t *testing.T) {
	backend := &stubBackend{}
	router := newTestServer(backend, "s3cret", false)

	w := doRequest(router, http.MethodPost, "/api/system/run-workflows", "", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, backend.sequence)
}

func TestRunWorkflowsEnabled(t *testing.T) {
	backend := &stubBackend{tickReport: workflow.TickReport{
		Steps: workflow.TickStats{Due: 2, Completed: 2},
	}}
	router := newTestServer(backend, "s3cret", true)

	w := doRequest(router, http.MethodPost, "/api/system/run-workflows", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"tick"}, backend.sequence)
}
