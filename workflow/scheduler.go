package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"tcflow/dates"
	"tcflow/notify"
)

// DailyRules is the slice of the notification rule engine the scheduler
// drives each tick.
type DailyRules interface {
	RunDailyRules(ctx context.Context, today time.Time) notify.RuleStats
}

// TickReport is the outcome of one scheduler tick.
type TickReport struct {
	Steps  TickStats        `json:"steps"`
	Emails notify.RuleStats `json:"emails"`
}

// Scheduler drives the executor and the daily notification rules on a fixed
// interval. Both are idempotent per day, so a short interval only costs
// queries, never duplicate sends.
type Scheduler struct {
	cron     *cron.Cron
	executor *Executor
	rules    DailyRules
	dates    *dates.Service
	log      *logrus.Logger
	interval time.Duration
	now      func() time.Time
}

func NewScheduler(executor *Executor, rules DailyRules, ds *dates.Service, interval time.Duration, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		executor: executor,
		rules:    rules,
		dates:    ds,
		log:      log,
		interval: interval,
		now:      time.Now,
	}
}

func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Start registers the periodic tick and begins running. The first tick runs
// immediately so a restart never waits a full interval to catch up.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.safeTick(context.Background())
	})
	if err != nil {
		return fmt.Errorf("workflow: register tick: %w", err)
	}

	go s.safeTick(context.Background())
	s.cron.Start()
	s.log.WithField("interval", s.interval.String()).Info("scheduler: started")
	return nil
}

// Stop halts the cron loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler: stopped")
}

// RunTick executes one full pass: due workflow steps, then daily email
// rules. Also the backing implementation for the manual trigger endpoint.
func (s *Scheduler) RunTick(ctx context.Context) TickReport {
	now := s.now()
	report := TickReport{
		Steps:  s.executor.RunDueSteps(ctx, now),
		Emails: s.rules.RunDailyRules(ctx, s.dates.Today(now)),
	}
	s.log.WithFields(logrus.Fields{
		"steps_due":       report.Steps.Due,
		"steps_completed": report.Steps.Completed,
		"steps_errored":   report.Steps.Errored,
		"emails_sent":     report.Emails.Sent,
	}).Info("scheduler: tick complete")
	return report
}

func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("scheduler: tick panicked")
		}
	}()
	s.RunTick(ctx)
}
