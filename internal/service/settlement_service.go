package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"settlepos/internal/dto"
	"settlepos/internal/infra"
	"settlepos/internal/model"
	"settlepos/internal/repository"
	"settlepos/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrMissingInstrumentDetails is returned when a tender request lacks the
// details block matching its kind.
var ErrMissingInstrumentDetails = errors.New("missing instrument details for tender kind")

// VerificationGateway confirms asynchronous tenders against the payment
// provider sidecar. Satisfied by *infra.GatewayClient; tests substitute fakes.
type VerificationGateway interface {
	Check(ctx context.Context, reference string) (infra.VerificationResult, error)
}

// SettlementCoordinator drives the payment collection lifecycle for one sale:
// begin → add/void/confirm tenders → finalize or abandon. It owns the
// interaction between the in-memory settlement, the verification gateway and
// the cash-session ledger.
type SettlementCoordinator interface {
	BeginSale(ctx context.Context, operatorID uuid.UUID, req dto.BeginSaleRequest) (*dto.SettlementResponse, error)
	Get(ctx context.Context, settlementID uuid.UUID) (*dto.SettlementResponse, error)
	AddTender(ctx context.Context, settlementID uuid.UUID, req dto.AddTenderRequest) (*dto.SettlementResponse, error)
	VoidTender(ctx context.Context, settlementID, tenderID uuid.UUID) (*dto.SettlementResponse, error)
	// ConfirmTender checks an unverified tender against the gateway and applies
	// the three-way outcome: confirmed → verified, not_found → failed,
	// pending → unchanged.
	ConfirmTender(ctx context.Context, settlementID, tenderID uuid.UUID) (*dto.ConfirmTenderResponse, error)
	Finalize(ctx context.Context, settlementID uuid.UUID) (*dto.FinalizeResponse, error)
	Abandon(ctx context.Context, settlementID uuid.UUID) error
}

type settlementCoordinator struct {
	store      *repository.SettlementStore
	sessions   repository.SessionRepository
	sessionSvc SessionService
	receipts   repository.ReceiptRepository
	gateway    VerificationGateway
	cb         *infra.CircuitBreaker
	dispatcher JobDispatcher

	// nonCashTolerance is the configured over-collection allowance for
	// non-cash tenders, in minor units.
	nonCashTolerance model.Amount
}

func NewSettlementCoordinator(
	store *repository.SettlementStore,
	sessions repository.SessionRepository,
	sessionSvc SessionService,
	receipts repository.ReceiptRepository,
	gateway VerificationGateway,
	cb *infra.CircuitBreaker,
	dispatcher JobDispatcher,
	nonCashTolerance model.Amount,
) SettlementCoordinator {
	return &settlementCoordinator{
		store:            store,
		sessions:         sessions,
		sessionSvc:       sessionSvc,
		receipts:         receipts,
		gateway:          gateway,
		cb:               cb,
		dispatcher:       dispatcher,
		nonCashTolerance: nonCashTolerance,
	}
}

// ── BeginSale ─────────────────────────────────────────────────────────────────

func (c *settlementCoordinator) BeginSale(ctx context.Context, operatorID uuid.UUID, req dto.BeginSaleRequest) (*dto.SettlementResponse, error) {
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid session id", model.ErrNoOpenSession)
	}

	session, err := c.sessions.FindSessionByID(ctx, sessionID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.ErrNoOpenSession
	}
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionOpen {
		return nil, model.ErrNoOpenSession
	}

	target, err := model.ToMinorUnits(req.TargetAmount)
	if err != nil {
		return nil, err
	}

	settlement, err := model.NewSettlement(sessionID, operatorID, target, c.nonCashTolerance)
	if err != nil {
		return nil, err
	}
	c.store.Save(settlement)

	c.audit(ctx, "settlement.begin", operatorID, settlement.ID, 0, 0, fmt.Sprintf("target=%d", target))
	return buildSettlement(settlement), nil
}

// ── Get ───────────────────────────────────────────────────────────────────────

func (c *settlementCoordinator) Get(_ context.Context, settlementID uuid.UUID) (*dto.SettlementResponse, error) {
	settlement, err := c.store.Get(settlementID)
	if err != nil {
		return nil, err
	}
	return buildSettlement(settlement), nil
}

// ── AddTender ─────────────────────────────────────────────────────────────────

func (c *settlementCoordinator) AddTender(ctx context.Context, settlementID uuid.UUID, req dto.AddTenderRequest) (*dto.SettlementResponse, error) {
	settlement, err := c.store.Get(settlementID)
	if err != nil {
		return nil, err
	}

	amount, err := model.ToMinorUnits(req.Amount)
	if err != nil {
		return nil, err
	}

	kind := model.TenderKind(req.Kind)
	details, qrImage, err := buildInstrumentDetails(kind, req)
	if err != nil {
		return nil, err
	}

	before := settlement.CollectedAmount()
	tender, err := settlement.AddTender(kind, amount, details)
	if err != nil {
		return nil, err
	}

	c.audit(ctx, "tender.add", settlement.OperatorID, settlement.ID,
		before, settlement.CollectedAmount(), string(kind))

	resp := buildSettlement(settlement)
	if qrImage != "" {
		for i := range resp.Tenders {
			if resp.Tenders[i].ID == tender.ID.String() {
				resp.Tenders[i].QRImage = qrImage
			}
		}
	}
	return resp, nil
}

// buildInstrumentDetails validates the kind/details pairing and, for QR
// tenders without a provider reference, mints a payment intent and renders it
// as a scannable image.
func buildInstrumentDetails(kind model.TenderKind, req dto.AddTenderRequest) (model.InstrumentDetails, string, error) {
	var details model.InstrumentDetails
	var qrImage string

	switch kind {
	case model.TenderCash:
		// No details to carry.
	case model.TenderCard:
		if req.Card == nil {
			return details, "", fmt.Errorf("%w: card", ErrMissingInstrumentDetails)
		}
		details.Card = &model.CardDetails{
			Brand:        req.Card.Brand,
			Terminal:     req.Card.Terminal,
			Installments: req.Card.Installments,
		}
	case model.TenderWireTransfer:
		if req.Wire == nil {
			return details, "", fmt.Errorf("%w: wire", ErrMissingInstrumentDetails)
		}
		details.Wire = &model.WireDetails{
			BankID:     req.Wire.BankID,
			ReceiptRef: req.Wire.ReceiptRef,
		}
	case model.TenderQR:
		if req.QR == nil {
			return details, "", fmt.Errorf("%w: qr", ErrMissingInstrumentDetails)
		}
		ref := req.QR.TransactionRef
		if ref == "" {
			ref = "qri_" + uuid.NewString()
			img, err := infra.RenderPaymentQR(ref)
			if err != nil {
				return details, "", err
			}
			qrImage = img
		}
		details.QR = &model.QRDetails{
			Provider:       req.QR.Provider,
			TransactionRef: ref,
		}
	}
	return details, qrImage, nil
}

// ── VoidTender ────────────────────────────────────────────────────────────────

func (c *settlementCoordinator) VoidTender(ctx context.Context, settlementID, tenderID uuid.UUID) (*dto.SettlementResponse, error) {
	settlement, err := c.store.Get(settlementID)
	if err != nil {
		return nil, err
	}

	before := settlement.CollectedAmount()
	if err := settlement.VoidTender(tenderID); err != nil {
		return nil, err
	}
	c.audit(ctx, "tender.void", settlement.OperatorID, settlement.ID,
		before, settlement.CollectedAmount(), tenderID.String())

	return buildSettlement(settlement), nil
}

// ── ConfirmTender ─────────────────────────────────────────────────────────────

func (c *settlementCoordinator) ConfirmTender(ctx context.Context, settlementID, tenderID uuid.UUID) (*dto.ConfirmTenderResponse, error) {
	settlement, err := c.store.Get(settlementID)
	if err != nil {
		return nil, err
	}

	var tender *model.Tender
	for i := range settlement.Tenders {
		if settlement.Tenders[i].ID == tenderID {
			tender = &settlement.Tenders[i]
		}
	}
	if tender == nil {
		return nil, fmt.Errorf("%w: tender %s", model.ErrNotFound, tenderID)
	}
	if tender.State != model.VerificationUnverified {
		return nil, fmt.Errorf("%w: tender is already %s", model.ErrInvalidStateTransition, tender.State)
	}
	ref := tender.VerificationRef()
	if ref == "" {
		return nil, fmt.Errorf("%w: %s tenders are verified synchronously", model.ErrInvalidStateTransition, tender.Kind)
	}

	// The gateway call is bounded by the client timeout and shielded by the
	// circuit breaker. On timeout the tender stays unverified and the operator
	// retries explicitly; nothing retries in the background.
	var result infra.VerificationResult
	cbErr := c.cb.Execute(func() error {
		r, err := c.gateway.Check(ctx, ref)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if cbErr != nil {
		return nil, cbErr
	}

	before := settlement.CollectedAmount()
	switch result {
	case infra.VerificationConfirmed:
		if err := settlement.MarkVerified(tenderID); err != nil {
			return nil, err
		}
	case infra.VerificationNotFound:
		if err := settlement.MarkFailed(tenderID); err != nil {
			return nil, err
		}
	case infra.VerificationPending:
		// No state change. The operator retries once the provider settles.
	}

	c.audit(ctx, "tender.confirm", settlement.OperatorID, settlement.ID,
		before, settlement.CollectedAmount(), string(result))

	return &dto.ConfirmTenderResponse{
		TenderID:   tenderID.String(),
		Result:     string(result),
		Settlement: *buildSettlement(settlement),
	}, nil
}

// ── Finalize ──────────────────────────────────────────────────────────────────
// Posts the ledger movements, creates the durable receipt row, queues fiscal
// emission, and discards the in-memory settlement.

func (c *settlementCoordinator) Finalize(ctx context.Context, settlementID uuid.UUID) (*dto.FinalizeResponse, error) {
	settlement, err := c.store.Get(settlementID)
	if err != nil {
		return nil, err
	}
	if settlement.Status != model.SettlementSettled {
		return nil, fmt.Errorf("%w: settlement is %s, not settled", model.ErrInvalidStateTransition, settlement.Status)
	}

	breakdown, err := json.Marshal(settlement.Tenders)
	if err != nil {
		return nil, err
	}

	receipt := &model.Receipt{
		Token:           uuid.New(),
		SessionID:       settlement.SessionID,
		TargetAmount:    settlement.TargetAmount,
		CollectedAmount: settlement.CollectedAmount(),
		ChangeDue:       settlement.ChangeDue(),
		TenderBreakdown: string(breakdown),
		Status:          "pending",
	}

	if err := c.sessionSvc.PostSettlement(ctx, settlement, receipt); err != nil {
		return nil, err
	}

	if err := c.dispatcher.EnqueueFiscal(ctx, worker.FiscalJobPayload{ReceiptToken: receipt.Token.String()}); err != nil {
		// The retry cron only scans receipts with a due next_retry_at, so a
		// receipt whose enqueue failed must be scheduled explicitly or it would
		// stay pending forever. Finalization itself still succeeds.
		next := time.Now().Add(time.Minute)
		receipt.NextRetryAt = &next
		errMsg := fmt.Sprintf("enqueue fiscal job: %v", err)
		receipt.LastError = &errMsg
		if uerr := c.receipts.Update(ctx, receipt); uerr != nil {
			log.Error().Err(uerr).Str("receipt_token", receipt.Token.String()).
				Msg("failed to schedule fiscal retry after enqueue failure")
		}
		log.Error().Err(err).Str("receipt_token", receipt.Token.String()).Msg("failed to enqueue fiscal job")
	}

	c.audit(ctx, "settlement.finalize", settlement.OperatorID, settlement.ID,
		settlement.TargetAmount, settlement.CollectedAmount(), receipt.Token.String())

	c.store.Delete(settlement.ID)

	resp := &dto.FinalizeResponse{
		ReceiptToken:    receipt.Token.String(),
		SessionID:       settlement.SessionID.String(),
		TargetAmount:    model.FromMinorUnits(settlement.TargetAmount),
		CollectedAmount: model.FromMinorUnits(receipt.CollectedAmount),
		ChangeDue:       model.FromMinorUnits(receipt.ChangeDue),
	}
	for i := range settlement.Tenders {
		resp.Tenders = append(resp.Tenders, *buildTender(&settlement.Tenders[i]))
	}
	return resp, nil
}

// ── Abandon ───────────────────────────────────────────────────────────────────

func (c *settlementCoordinator) Abandon(ctx context.Context, settlementID uuid.UUID) error {
	settlement, err := c.store.Get(settlementID)
	if err != nil {
		return err
	}
	if err := settlement.Abandon(); err != nil {
		return err
	}

	c.audit(ctx, "settlement.abandon", settlement.OperatorID, settlement.ID,
		settlement.CollectedAmount(), 0, "")

	// No ledger postings ever happen for an abandoned settlement.
	c.store.Delete(settlement.ID)
	return nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (c *settlementCoordinator) audit(ctx context.Context, operation string, operatorID, entityID uuid.UUID, before, after model.Amount, detail string) {
	payload := worker.AuditJobPayload{
		Operation:   operation,
		OperatorID:  operatorID,
		EntityID:    entityID,
		BeforeTotal: before,
		AfterTotal:  after,
		Detail:      detail,
		OccurredAt:  time.Now().UTC(),
	}
	if err := c.dispatcher.EnqueueAudit(ctx, payload); err != nil {
		log.Error().Err(err).Str("operation", operation).Msg("failed to enqueue audit record")
	}
}

func buildTender(t *model.Tender) *dto.TenderResponse {
	resp := &dto.TenderResponse{
		ID:         t.ID.String(),
		Kind:       string(t.Kind),
		Amount:     model.FromMinorUnits(t.Amount),
		State:      string(t.State),
		RecordedAt: t.RecordedAt.Format(time.RFC3339),
	}
	if t.Details.Card != nil {
		resp.Card = &dto.CardDetails{
			Brand:        t.Details.Card.Brand,
			Terminal:     t.Details.Card.Terminal,
			Installments: t.Details.Card.Installments,
		}
	}
	if t.Details.Wire != nil {
		resp.Wire = &dto.WireDetails{
			BankID:     t.Details.Wire.BankID,
			ReceiptRef: t.Details.Wire.ReceiptRef,
		}
	}
	if t.Details.QR != nil {
		resp.QR = &dto.QRDetails{
			Provider:       t.Details.QR.Provider,
			TransactionRef: t.Details.QR.TransactionRef,
		}
	}
	return resp
}

func buildSettlement(s *model.Settlement) *dto.SettlementResponse {
	resp := &dto.SettlementResponse{
		ID:              s.ID.String(),
		SessionID:       s.SessionID.String(),
		Status:          string(s.Status),
		TargetAmount:    model.FromMinorUnits(s.TargetAmount),
		CollectedAmount: model.FromMinorUnits(s.CollectedAmount()),
		ChangeDue:       model.FromMinorUnits(s.ChangeDue()),
		IsSettled:       s.Status == model.SettlementSettled,
		CreatedAt:       s.CreatedAt.Format(time.RFC3339),
	}
	for i := range s.Tenders {
		resp.Tenders = append(resp.Tenders, *buildTender(&s.Tenders[i]))
	}
	return resp
}
