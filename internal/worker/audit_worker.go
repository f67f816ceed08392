package worker

// audit_worker.go
// Persists fire-and-forget audit records emitted by the settlement core.
// Every tender and ledger operation produces one record with the derived
// totals before and after the mutation.

import (
	"context"
	"encoding/json"
	"time"

	"settlepos/internal/model"
	"settlepos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AuditJobPayload is the job envelope sent to QueueAudit.
type AuditJobPayload struct {
	Operation   string    `json:"operation"`
	OperatorID  uuid.UUID `json:"operator_id"`
	EntityID    uuid.UUID `json:"entity_id"`
	BeforeTotal int64     `json:"before_total"`
	AfterTotal  int64     `json:"after_total"`
	Detail      string    `json:"detail,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// AuditWorker writes audit records to the database.
type AuditWorker struct {
	repo repository.AuditRepository
}

func NewAuditWorker(repo repository.AuditRepository) *AuditWorker {
	return &AuditWorker{repo: repo}
}

// Process stores one audit record. Failures are logged and dropped — the
// audit trail is best-effort by contract and must never block operations.
func (w *AuditWorker) Process(ctx context.Context, raw json.RawMessage) {
	var payload AuditJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("audit_worker: invalid payload")
		return
	}

	rec := &model.AuditRecord{
		Operation:   payload.Operation,
		OperatorID:  payload.OperatorID,
		EntityID:    payload.EntityID,
		BeforeTotal: payload.BeforeTotal,
		AfterTotal:  payload.AfterTotal,
		Detail:      payload.Detail,
		OccurredAt:  payload.OccurredAt,
	}
	if err := w.repo.Create(ctx, rec); err != nil {
		log.Error().Err(err).
			Str("operation", payload.Operation).
			Str("entity_id", payload.EntityID.String()).
			Msg("audit_worker: failed to persist record")
	}
}
