package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"settlepos/internal/config"
	"settlepos/internal/infra"
	"settlepos/internal/repository"
	"settlepos/internal/router"
	"settlepos/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Structured logger — dev: pretty, prod: JSON
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	// One breaker per external sidecar: verification gateway outages must not
	// block fiscal emission, and vice versa.
	cbCfg := infra.CircuitBreakerConfig{
		FailureThreshold: cfg.CBFailureThreshold,
		SuccessThreshold: 2,
		OpenTimeout:      cfg.CBOpenTimeout(),
	}
	gatewayCB := infra.NewCircuitBreaker("verification-gateway", cbCfg)
	fiscalCB := infra.NewCircuitBreaker("fiscal-emitter", cbCfg)

	// Start goroutine worker pool for async tasks (audit trail, fiscal
	// emission, supervisor email). Worker handlers are wired here (composition
	// root) so that the pool has full access to all infrastructure dependencies.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fiscalClient := infra.NewFiscalClient(cfg.FiscalEmitterURL)
	mailer := infra.NewMailer(cfg)
	receiptRepo := repository.NewReceiptRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	workerHandlers := &worker.WorkerHandlers{
		Audit:  worker.NewAuditWorker(auditRepo),
		Fiscal: worker.NewFiscalWorker(fiscalClient, receiptRepo, fiscalCB),
		Email:  worker.NewEmailWorker(mailer),
	}
	worker.StartWorkerPool(ctx, rdb, workerHandlers, cfg.WorkerPoolSize)

	worker.StartRetryCron(ctx, worker.RetryCronConfig{
		ReceiptRepo:  receiptRepo,
		FiscalClient: fiscalClient,
		CB:           fiscalCB,
		RDB:          rdb,
	})

	store := repository.NewSettlementStore()
	r := router.New(cfg, db, rdb, store, gatewayCB, fiscalCB)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("settlepos backend listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server exited")
}
