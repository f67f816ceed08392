package worker

// fiscal_worker.go
// Processes fiscal document emission jobs from QueueFiscal.
// Sends the finalized receipt (token + tender breakdown) to the emitter
// sidecar and stores the authorization reference. Implements exponential
// backoff for transient failures; exhausted jobs go to the DLQ.

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"settlepos/internal/infra"
	"settlepos/internal/model"
	"settlepos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MaxReceiptRetries before a receipt is parked in status "error" / DLQ.
const MaxReceiptRetries = 5

// FiscalJobPayload is the job envelope sent to QueueFiscal.
type FiscalJobPayload struct {
	ReceiptToken string `json:"receipt_token"`
}

// FiscalWorker emits fiscal documents for finalized receipts.
type FiscalWorker struct {
	fiscalClient *infra.FiscalClient
	receiptRepo  repository.ReceiptRepository
	cb           *infra.CircuitBreaker
}

func NewFiscalWorker(fiscalClient *infra.FiscalClient, receiptRepo repository.ReceiptRepository, cb *infra.CircuitBreaker) *FiscalWorker {
	return &FiscalWorker{fiscalClient: fiscalClient, receiptRepo: receiptRepo, cb: cb}
}

// Process handles a single fiscal job:
//  1. Parse FiscalJobPayload and fetch the Receipt by token
//  2. Call the emitter sidecar through the circuit breaker with in-process
//     backoff (3 attempts: immediate, 1s, 2s)
//  3. Update the receipt (auth ref / status)
//  4. On failure, schedule the retry cron via RetryCount / NextRetryAt
func (w *FiscalWorker) Process(ctx context.Context, raw json.RawMessage) {
	var payload FiscalJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("fiscal_worker: invalid payload")
		return
	}

	token, err := uuid.Parse(payload.ReceiptToken)
	if err != nil {
		log.Error().Str("receipt_token", payload.ReceiptToken).Msg("fiscal_worker: invalid token")
		return
	}

	receipt, err := w.receiptRepo.FindByToken(ctx, token)
	if err != nil {
		log.Error().Err(err).Str("receipt_token", payload.ReceiptToken).Msg("fiscal_worker: receipt not found")
		return
	}
	if receipt.Status != "pending" {
		log.Debug().Str("receipt_token", payload.ReceiptToken).Str("status", receipt.Status).
			Msg("fiscal_worker: receipt already resolved, skipping")
		return
	}

	var resp *infra.FiscalResponse
	emitErr := withRetry(ctx, 3, func(attempt int) error {
		return w.cb.Execute(func() error {
			r, err := w.fiscalClient.Emit(ctx, buildFiscalPayload(receipt))
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
	})

	if emitErr != nil {
		w.scheduleRetry(ctx, receipt, emitErr)
		return
	}

	switch resp.Result {
	case "A":
		receipt.Status = "emitted"
		ref := resp.AuthRef
		receipt.EmitterRef = &ref
		receipt.NextRetryAt = nil
		receipt.LastError = nil
		log.Info().
			Str("receipt_token", receipt.Token.String()).
			Str("auth_ref", ref).
			Msg("fiscal_worker: document emitted")
	default:
		receipt.Status = "rejected"
		detail := fmt.Sprintf("emitter rejected: result=%s detail=%s", resp.Result, resp.Detail)
		receipt.LastError = &detail
		receipt.NextRetryAt = nil
		log.Warn().
			Str("receipt_token", receipt.Token.String()).
			Str("result", resp.Result).
			Msg("fiscal_worker: document rejected")
	}

	if err := w.receiptRepo.Update(ctx, receipt); err != nil {
		log.Error().Err(err).Str("receipt_token", receipt.Token.String()).
			Msg("fiscal_worker: failed to update receipt")
	}
}

func (w *FiscalWorker) scheduleRetry(ctx context.Context, receipt *model.Receipt, cause error) {
	receipt.RetryCount++
	errMsg := cause.Error()
	receipt.LastError = &errMsg

	if receipt.RetryCount >= MaxReceiptRetries {
		receipt.Status = "error"
		receipt.NextRetryAt = nil
		log.Error().
			Str("receipt_token", receipt.Token.String()).
			Int("retries", receipt.RetryCount).
			Msg("fiscal_worker: max retries exceeded, moving to error")
	} else {
		next := time.Now().Add(computeRetryBackoff(receipt.RetryCount))
		receipt.NextRetryAt = &next
		log.Warn().
			Str("receipt_token", receipt.Token.String()).
			Int("retry_count", receipt.RetryCount).
			Time("next_retry_at", next).
			Msg("fiscal_worker: emission failed, scheduled retry")
	}

	if err := w.receiptRepo.Update(ctx, receipt); err != nil {
		log.Error().Err(err).Str("receipt_token", receipt.Token.String()).
			Msg("fiscal_worker: failed to persist retry state")
	}
}

func buildFiscalPayload(receipt *model.Receipt) infra.FiscalPayload {
	return infra.FiscalPayload{
		ReceiptToken:    receipt.Token.String(),
		SessionID:       receipt.SessionID.String(),
		TargetAmount:    model.FromMinorUnits(receipt.TargetAmount).InexactFloat64(),
		CollectedAmount: model.FromMinorUnits(receipt.CollectedAmount).InexactFloat64(),
		ChangeDue:       model.FromMinorUnits(receipt.ChangeDue).InexactFloat64(),
		Tenders:         json.RawMessage(receipt.TenderBreakdown),
	}
}

// withRetry runs fn up to attempts times with 1s, 2s, 4s… pauses between
// tries. Returns the last error.
func withRetry(ctx context.Context, attempts int, fn func(attempt int) error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<(i-1)) * time.Second):
			}
		}
		if err = fn(i); err == nil {
			return nil
		}
	}
	return err
}

// computeRetryBackoff grows 1m, 2m, 4m… capped at 30m for the retry cron.
func computeRetryBackoff(retryCount int) time.Duration {
	d := time.Minute << (retryCount - 1)
	if d > 30*time.Minute {
		d = 30 * time.Minute
	}
	return d
}
