package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"tcflow/config"
	"tcflow/dates"
	"tcflow/db"
	"tcflow/deal"
	"tcflow/httpapi"
	"tcflow/notify"
	"tcflow/party"
	"tcflow/task"
	"tcflow/timeline"
	"tcflow/workflow"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("bootstrap database pool")
	}
	defer pool.Close()

	dateService := dates.NewService(cfg.Location())

	dealRepo := deal.NewRepository(pool)
	partyRepo := party.NewRepository(pool)
	timelineRepo := timeline.NewRepository(pool)
	taskRepo := task.NewRepository(pool)
	notifyRepo := notify.NewRepository(pool)
	workflowRepo := workflow.NewRepository(pool)

	var mailer notify.Mailer
	if cfg.EmailDryRun {
		mailer = notify.NewDryRunMailer(log)
	} else {
		mailer = notify.NewResendMailer(cfg.ResendAPIKey, cfg.EmailFromAddress, cfg.EmailFromName)
	}

	resolver := notify.NewResolver(partyRepo, log)
	dispatcher := notify.NewDispatcher(dealRepo, notifyRepo, notifyRepo, notifyRepo, timelineRepo, resolver, mailer, log)
	rules := notify.NewRules(dealRepo, dispatcher, dateService, log)

	engine := workflow.NewEngine(workflowRepo, dealRepo, timelineRepo, log)
	executor := workflow.NewExecutor(workflowRepo, dealRepo, taskRepo, timelineRepo, dispatcher, log)
	scheduler := workflow.NewScheduler(executor, rules, dateService, cfg.TickInterval, log)

	if cfg.EnableWorkflowCron {
		if err := scheduler.Start(); err != nil {
			log.WithError(err).Fatal("start scheduler")
		}
		defer scheduler.Stop()
	}

	server := httpapi.NewServer(engine, rules, rules, scheduler, dateService, cfg.CronSecret, cfg.EnableWorkflowCron, log)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Router(),
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
}
