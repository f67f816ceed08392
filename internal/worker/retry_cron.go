package worker

// retry_cron.go
// Background goroutine that periodically re-attempts fiscal emission for
// receipts stuck in status='pending' with a next_retry_at in the past.
// Uses the circuit breaker to avoid hammering a downed emitter.

import (
	"context"
	"fmt"
	"time"

	"settlepos/internal/infra"
	"settlepos/internal/repository"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	retryTickInterval = 30 * time.Second
	retryBatchSize    = 10
)

// RetryCronConfig holds all dependencies for the retry goroutine.
type RetryCronConfig struct {
	ReceiptRepo  repository.ReceiptRepository
	FiscalClient *infra.FiscalClient
	CB           *infra.CircuitBreaker
	RDB          *redis.Client
}

// StartRetryCron launches a background goroutine that ticks every 30s,
// queries receipts due for retry, and re-attempts emission through the CB.
// It respects the context for graceful shutdown.
func StartRetryCron(ctx context.Context, cfg RetryCronConfig) {
	go func() {
		ticker := time.NewTicker(retryTickInterval)
		defer ticker.Stop()

		log.Info().Msg("retry_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("retry_cron: shutting down")
				return
			case <-ticker.C:
				processRetries(ctx, cfg)
			}
		}
	}()
}

func processRetries(ctx context.Context, cfg RetryCronConfig) {
	// If CB is open, skip entirely — don't hammer a downed emitter
	if cfg.CB.State() == infra.CBOpen {
		log.Debug().Msg("retry_cron: circuit breaker is open, skipping tick")
		return
	}

	now := time.Now()
	receipts, err := cfg.ReceiptRepo.ListPendingRetries(ctx, now, retryBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("retry_cron: failed to query pending retries")
		return
	}

	if len(receipts) == 0 {
		return
	}

	log.Info().Int("count", len(receipts)).Msg("retry_cron: processing pending receipts")

	for i := range receipts {
		rec := &receipts[i]

		// Check CB state before each call — it may have tripped mid-batch
		if cfg.CB.State() == infra.CBOpen {
			log.Debug().Msg("retry_cron: circuit breaker opened mid-batch, stopping")
			return
		}

		var resp *infra.FiscalResponse
		cbErr := cfg.CB.Execute(func() error {
			r, err := cfg.FiscalClient.Emit(ctx, buildFiscalPayload(rec))
			if err != nil {
				return err
			}
			resp = r
			return nil
		})

		if cbErr != nil {
			rec.RetryCount++
			errMsg := cbErr.Error()
			rec.LastError = &errMsg
			nextRetry := time.Now().Add(computeRetryBackoff(rec.RetryCount))
			rec.NextRetryAt = &nextRetry

			if rec.RetryCount >= MaxReceiptRetries {
				rec.Status = "error"
				rec.NextRetryAt = nil
				log.Error().
					Str("receipt_token", rec.Token.String()).
					Int("retries", rec.RetryCount).
					Msg("retry_cron: max retries exceeded, moving to error/DLQ")

				// Send to DLQ for manual inspection
				payload := fmt.Sprintf(`{"receipt_token":"%s"}`, rec.Token)
				SendToDLQ(ctx, cfg.RDB, QueueFiscal, "fiscal", []byte(payload),
					fmt.Sprintf("max retries (%d) exceeded: %s", MaxReceiptRetries, errMsg),
					rec.RetryCount)
			} else {
				log.Warn().
					Str("receipt_token", rec.Token.String()).
					Int("retry_count", rec.RetryCount).
					Time("next_retry_at", *rec.NextRetryAt).
					Msg("retry_cron: emission retry failed, scheduled next attempt")
			}

			_ = cfg.ReceiptRepo.Update(ctx, rec)
			continue
		}

		// Success path
		if resp != nil && resp.Result == "A" {
			rec.Status = "emitted"
			ref := resp.AuthRef
			rec.EmitterRef = &ref
			rec.NextRetryAt = nil
			rec.LastError = nil
			_ = cfg.ReceiptRepo.Update(ctx, rec)

			log.Info().
				Str("auth_ref", ref).
				Str("receipt_token", rec.Token.String()).
				Int("total_retries", rec.RetryCount).
				Msg("retry_cron: document emitted after retry")
		} else if resp != nil {
			rec.Status = "rejected"
			detail := fmt.Sprintf("emitter rejected (retry): result=%s detail=%s", resp.Result, resp.Detail)
			rec.LastError = &detail
			rec.NextRetryAt = nil
			_ = cfg.ReceiptRepo.Update(ctx, rec)
			log.Warn().
				Str("result", resp.Result).
				Str("receipt_token", rec.Token.String()).
				Msg("retry_cron: emitter rejected on retry")
		}
	}
}
