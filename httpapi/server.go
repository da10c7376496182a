// Package httpapi exposes the engine's three external surfaces: deal event
// ingestion, the secret-gated daily-email webhook, and the flag-gated
// manual workflow tick.
package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"tcflow/dates"
	"tcflow/deal"
	"tcflow/notify"
	"tcflow/workflow"
)

type Engine interface {
	StartWorkflowsForDeal(ctx context.Context, dealID string) error
	HandleDealEvent(ctx context.Context, ev workflow.Event) error
}

type ImmediateRules interface {
	RunImmediateRules(ctx context.Context, dealID string)
}

type DailyRules interface {
	RunDailyRules(ctx context.Context, today time.Time) notify.RuleStats
}

type Ticker interface {
	RunTick(ctx context.Context) workflow.TickReport
}

type Server struct {
	engine             Engine
	immediate          ImmediateRules
	daily              DailyRules
	ticker             Ticker
	dates              *dates.Service
	cronSecret         string
	enableWorkflowCron bool
	log                *logrus.Logger
}

func NewServer(
	engine Engine,
	immediate ImmediateRules,
	daily DailyRules,
	ticker Ticker,
	ds *dates.Service,
	cronSecret string,
	enableWorkflowCron bool,
	log *logrus.Logger,
) *Server {
	return &Server{
		engine:             engine,
		immediate:          immediate,
		daily:              daily,
		ticker:             ticker,
		dates:              ds,
		cronSecret:         cronSecret,
		enableWorkflowCron: enableWorkflowCron,
		log:                log,
	}
}

type dealEventRequest struct {
	EventType string         `json:"eventType" binding:"required,dealevent"`
	Data      map[string]any `json:"data"`
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/api/deals/:dealID/events", s.handleDealEvent)
	r.POST("/api/cron/transaction-emails", s.handleDailyEmails)
	r.GET("/api/cron/transaction-emails", s.handleDailyEmailsInfo)
	r.POST("/api/system/run-workflows", s.handleRunWorkflows)

	return r
}

func registerValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("dealevent", func(fl validator.FieldLevel) bool {
		val := fl.Field().String()
		for _, t := range workflow.EventTypes {
			if t == val {
				return true
			}
		}
		return false
	})
}

func (s *Server) handleDealEvent(c *gin.Context) {
	dealID := c.Param("dealID")

	var req dealEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event: " + err.Error()})
		return
	}

	ctx := c.Request.Context()

	// A status change into escrow kicks off workflow instantiation and the
	// opening-escrow emails before the event itself is processed.
	if req.EventType == workflow.EventStatusChanged {
		if status, _ := req.Data["status"].(string); status == string(deal.StatusInEscrow) {
			if err := s.engine.StartWorkflowsForDeal(ctx, dealID); err != nil {
				s.log.WithField("deal_id", dealID).WithError(err).Error("httpapi: start workflows failed")
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			s.immediate.RunImmediateRules(ctx, dealID)
		}
	}

	err := s.engine.HandleDealEvent(ctx, workflow.Event{
		DealID:    dealID,
		EventType: req.EventType,
		Data:      req.Data,
	})
	if err != nil {
		s.log.WithField("deal_id", dealID).WithError(err).Error("httpapi: event handling failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Immediate rules run after every event so date-driven immediate
	// notifications (inspection scheduled, ...) pick up the new state.
	s.immediate.RunImmediateRules(ctx, dealID)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleDailyEmails(c *gin.Context) {
	if !s.authorized(c) {
		s.log.Warn("httpapi: unauthorized cron attempt")
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}

	start := time.Now()
	stats := s.daily.RunDailyRules(c.Request.Context(), s.dates.Today(start))

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"considered":  stats.Considered,
		"sent":        stats.Sent,
		"skipped":     stats.Skipped,
		"failed":      stats.Failed,
		"duration_ms": time.Since(start).Milliseconds(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDailyEmailsInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"endpoint": "transaction-emails",
		"method":   "POST",
		"auth":     "required",
	})
}

func (s *Server) handleRunWorkflows(c *gin.Context) {
	if !s.enableWorkflowCron {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "workflow cron is disabled, set ENABLE_WORKFLOW_CRON=true to enable",
		})
		return
	}

	report := s.ticker.RunTick(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}

// authorized accepts the shared secret from the Authorization header
// (preferred) or the ?secret= query parameter.
func (s *Server) authorized(c *gin.Context) bool {
	if s.cronSecret == "" {
		return false
	}
	provided := c.Query("secret")
	if header := c.GetHeader("Authorization"); header != "" {
		provided = strings.TrimPrefix(header, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(s.cronSecret)) == 1
}
