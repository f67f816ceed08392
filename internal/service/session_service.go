package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlepos/internal/dto"
	"settlepos/internal/model"
	"settlepos/internal/repository"
	"settlepos/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrNoteRequired is returned when a session closes with critical variance and
// no supervisor note was provided.
var ErrNoteRequired = errors.New("critical variance requires a supervisor note")

// JobDispatcher is the async-job surface the services need. Satisfied by
// *worker.Dispatcher; tests substitute a recording fake.
type JobDispatcher interface {
	EnqueueAudit(ctx context.Context, payload interface{}) error
	EnqueueFiscal(ctx context.Context, payload interface{}) error
	EnqueueEmail(ctx context.Context, payload interface{}) error
}

type SessionService interface {
	Open(ctx context.Context, operatorID uuid.UUID, req dto.OpenSessionRequest) (*dto.SessionReportResponse, error)
	PostMovement(ctx context.Context, sessionID, operatorID uuid.UUID, req dto.PostMovementRequest) (*dto.MovementResponse, error)
	Close(ctx context.Context, sessionID, closedBy uuid.UUID, req dto.CloseSessionRequest) (*dto.CloseSessionResponse, error)
	Report(ctx context.Context, sessionID uuid.UUID) (*dto.SessionReportResponse, error)
	// ReportPDF renders the session report as a PDF and returns the file path.
	ReportPDF(ctx context.Context, sessionID uuid.UUID) (string, error)
	// Active returns the operator's currently open session.
	Active(ctx context.Context, operatorID uuid.UUID) (*dto.SessionReportResponse, error)
	History(ctx context.Context, page, limit int) (*dto.SessionListResponse, error)
	// PostSettlement writes the ledger entries and the receipt row for one
	// finalized settlement in a single transaction. Called by the coordinator.
	PostSettlement(ctx context.Context, settlement *model.Settlement, receipt *model.Receipt) error
}

// ReportArtifacts produces the closing PDF and its supervisor notification.
// Split from the service so tests can run without a filesystem or SMTP.
type ReportArtifacts interface {
	GeneratePDF(s *model.CashSession) (string, error)
}

type sessionService struct {
	repo       repository.SessionRepository
	receipts   repository.ReceiptRepository
	store      *repository.SettlementStore
	dispatcher JobDispatcher
	artifacts  ReportArtifacts

	supervisorEmail string
}

func NewSessionService(
	repo repository.SessionRepository,
	receipts repository.ReceiptRepository,
	store *repository.SettlementStore,
	dispatcher JobDispatcher,
	artifacts ReportArtifacts,
	supervisorEmail string,
) SessionService {
	return &sessionService{
		repo:            repo,
		receipts:        receipts,
		store:           store,
		dispatcher:      dispatcher,
		artifacts:       artifacts,
		supervisorEmail: supervisorEmail,
	}
}

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// ── Open ──────────────────────────────────────────────────────────────────────

func (s *sessionService) Open(ctx context.Context, operatorID uuid.UUID, req dto.OpenSessionRequest) (*dto.SessionReportResponse, error) {
	openingFloat, err := model.ToMinorUnits(req.OpeningFloat)
	if err != nil {
		return nil, err
	}
	if openingFloat < 0 {
		return nil, fmt.Errorf("%w: opening float cannot be negative", model.ErrInvalidAmount)
	}

	// Guard: at most one open session per operator+location. The partial
	// unique index backs this up against concurrent opens.
	if _, err := s.repo.FindOpenSession(ctx, operatorID, req.LocationID); err == nil {
		return nil, model.ErrSessionAlreadyOpen
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	session := &model.CashSession{
		OperatorID:   operatorID,
		LocationID:   req.LocationID,
		OpeningFloat: openingFloat,
		Status:       model.SessionOpen,
		Note:         req.Note,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.audit(ctx, "session.open", operatorID, session.ID, 0, openingFloat, "")
	return buildSessionReport(session), nil
}

// ── PostMovement ──────────────────────────────────────────────────────────────
// Manual income / expense only. Sale-derived movements go through
// PostSettlement. Movements are immutable, there is no update or delete.

func (s *sessionService) PostMovement(ctx context.Context, sessionID, operatorID uuid.UUID, req dto.PostMovementRequest) (*dto.MovementResponse, error) {
	session, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionOpen {
		return nil, model.ErrSessionClosed
	}

	amount, err := model.ToMinorUnits(req.Amount)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: movement amount must be positive", model.ErrInvalidAmount)
	}

	kind := model.MovementKind(req.Kind)
	if kind != model.MovementIncome && kind != model.MovementExpense {
		return nil, fmt.Errorf("%w: kind %q cannot be posted manually", model.ErrInvalidStateTransition, req.Kind)
	}

	before := session.TheoreticalBalance()
	mov := &model.CashMovement{
		SessionID: sessionID,
		Kind:      kind,
		Amount:    amount,
		Category:  req.Category,
		Note:      req.Note,
		PostedBy:  operatorID,
	}
	if err := s.repo.CreateMovement(ctx, mov); err != nil {
		return nil, err
	}

	after := before + amount
	if kind == model.MovementExpense {
		after = before - amount
	}
	s.audit(ctx, "movement.post", operatorID, sessionID, before, after, req.Category)

	return buildMovement(mov), nil
}

// ── PostSettlement ────────────────────────────────────────────────────────────
// Ledger impact of one finalized settlement, all-or-nothing:
//   - cash tenders        → sale_settlement (money physically in the drawer)
//   - card / wire / QR    → pending_sale_settlement (recognized, not in drawer)
//   - change handed back  → one expense movement, category "change"
//
// The receipt row is created in the same transaction so a crash cannot leave
// postings without their durable artifact.

func (s *sessionService) PostSettlement(ctx context.Context, settlement *model.Settlement, receipt *model.Receipt) error {
	session, err := s.repo.FindSessionByID(ctx, settlement.SessionID)
	if err != nil {
		return err
	}
	if session.Status != model.SessionOpen {
		return model.ErrSessionClosed
	}

	before := session.TheoreticalBalance()

	err = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.receipts.CreateTx(tx, receipt); err != nil {
			return err
		}

		ref := receipt.Token
		for i := range settlement.Tenders {
			t := &settlement.Tenders[i]
			kind := model.MovementSale
			if t.Kind != model.TenderCash {
				kind = model.MovementPendingSale
			}
			mov := &model.CashMovement{
				SessionID:   settlement.SessionID,
				Kind:        kind,
				Amount:      t.Amount,
				Category:    string(t.Kind),
				ReferenceID: &ref,
				PostedBy:    settlement.OperatorID,
			}
			if err := s.repo.CreateMovementTx(tx, mov); err != nil {
				return err
			}
		}

		if change := settlement.ChangeDue(); change > 0 {
			mov := &model.CashMovement{
				SessionID:   settlement.SessionID,
				Kind:        model.MovementExpense,
				Amount:      change,
				Category:    "change",
				Note:        "change returned to customer",
				ReferenceID: &ref,
				PostedBy:    settlement.OperatorID,
			}
			if err := s.repo.CreateMovementTx(tx, mov); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	cashDelta := settlement.CollectedAmount()
	for i := range settlement.Tenders {
		if settlement.Tenders[i].Kind != model.TenderCash {
			cashDelta -= settlement.Tenders[i].Amount
		}
	}
	after := before + cashDelta - settlement.ChangeDue()
	s.audit(ctx, "session.post_settlement", settlement.OperatorID, settlement.SessionID, before, after,
		receipt.Token.String())
	return nil
}

// ── Close ─────────────────────────────────────────────────────────────────────
// Blind count: the variance is computed after the operator declares the
// counted amount. Closing is terminal; there is no reopen.

func (s *sessionService) Close(ctx context.Context, sessionID, closedBy uuid.UUID, req dto.CloseSessionRequest) (*dto.CloseSessionResponse, error) {
	session, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionOpen {
		return nil, model.ErrSessionNotOpen
	}

	counted, err := model.ToMinorUnits(req.CountedAmount)
	if err != nil {
		return nil, err
	}
	if counted < 0 {
		return nil, fmt.Errorf("%w: counted amount cannot be negative", model.ErrInvalidAmount)
	}

	if inflight := s.store.CountBySession(sessionID); inflight > 0 {
		log.Warn().
			Str("session_id", sessionID.String()).
			Int("in_flight", inflight).
			Msg("closing session with settlements still collecting")
	}

	theoretical := session.TheoreticalBalance()
	variance := counted - theoretical
	pct := variancePercentage(variance, theoretical)
	classification := classifyVariance(pct)

	if classification == "critical" && req.Note == "" {
		return nil, ErrNoteRequired
	}

	now := time.Now().UTC()
	session.CountedAmount = &counted
	session.Variance = &variance
	session.CloseNote = req.Note
	session.ClosedBy = &closedBy
	session.ClosedAt = &now
	session.Status = model.SessionClosed

	if err := s.repo.UpdateSession(ctx, session); err != nil {
		return nil, err
	}

	s.audit(ctx, "session.close", closedBy, sessionID, theoretical, counted, classification)
	s.emitClosingReport(ctx, session, classification)

	return &dto.CloseSessionResponse{
		SessionID:          session.ID.String(),
		TheoreticalBalance: model.FromMinorUnits(theoretical),
		RecognizedTotal:    model.FromMinorUnits(session.RecognizedTotal()),
		CountedAmount:      model.FromMinorUnits(counted),
		Variance: dto.VarianceResponse{
			Amount:         model.FromMinorUnits(variance),
			Percentage:     pct,
			Classification: classification,
			Detected:       variance != 0,
		},
		Status: string(model.SessionClosed),
	}, nil
}

// emitClosingReport generates the PDF and, on critical variance, mails it to
// the supervisor. Both are best-effort: a broken printer must not undo a close.
func (s *sessionService) emitClosingReport(ctx context.Context, session *model.CashSession, classification string) {
	if s.artifacts == nil {
		return
	}
	pdfPath, err := s.artifacts.GeneratePDF(session)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to generate closing report PDF")
		return
	}

	if classification != "critical" || s.supervisorEmail == "" {
		return
	}
	payload := worker.EmailJobPayload{
		ToEmail: s.supervisorEmail,
		Subject: fmt.Sprintf("Critical cash variance — session %s", session.ID),
		Body: fmt.Sprintf("Session %s at location %s closed with a critical variance. Report attached.",
			session.ID, session.LocationID),
		PDFPath: pdfPath,
	}
	if err := s.dispatcher.EnqueueEmail(ctx, payload); err != nil {
		log.Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to enqueue supervisor email")
	}
}

// ── Report / Active / History ─────────────────────────────────────────────────

func (s *sessionService) Report(ctx context.Context, sessionID uuid.UUID) (*dto.SessionReportResponse, error) {
	session, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return buildSessionReport(session), nil
}

func (s *sessionService) ReportPDF(ctx context.Context, sessionID uuid.UUID) (string, error) {
	session, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return s.artifacts.GeneratePDF(session)
}

func (s *sessionService) Active(ctx context.Context, operatorID uuid.UUID) (*dto.SessionReportResponse, error) {
	session, err := s.repo.FindOpenSessionByOperator(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	return buildSessionReport(session), nil
}

func (s *sessionService) History(ctx context.Context, page, limit int) (*dto.SessionListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	sessions, total, err := s.repo.ListClosedSessions(ctx, page, limit)
	if err != nil {
		return nil, err
	}

	data := make([]dto.SessionReportResponse, 0, len(sessions))
	for i := range sessions {
		data = append(data, *buildSessionReport(&sessions[i]))
	}
	return &dto.SessionListResponse{Data: data, Total: total, Page: page, Limit: limit}, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (s *sessionService) audit(ctx context.Context, operation string, operatorID, entityID uuid.UUID, before, after model.Amount, detail string) {
	payload := worker.AuditJobPayload{
		Operation:   operation,
		OperatorID:  operatorID,
		EntityID:    entityID,
		BeforeTotal: before,
		AfterTotal:  after,
		Detail:      detail,
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.dispatcher.EnqueueAudit(ctx, payload); err != nil {
		// Audit is fire-and-forget: log and move on, never block the operation.
		log.Error().Err(err).Str("operation", operation).Msg("failed to enqueue audit record")
	}
}

// variancePercentage is variance over theoretical, in percent, rounded to 2
// decimals. Zero when the theoretical balance is zero.
func variancePercentage(variance, theoretical model.Amount) decimal.Decimal {
	if theoretical == 0 {
		return decimal.Zero
	}
	return model.FromMinorUnits(variance).
		Div(model.FromMinorUnits(theoretical)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}

// classifyVariance returns "normal" | "warning" | "critical".
// normal: |pct| <= 1%, warning: <= 5%, critical: > 5%.
func classifyVariance(pct decimal.Decimal) string {
	abs := pct.Abs()
	switch {
	case abs.LessThanOrEqual(decimal.NewFromInt(1)):
		return "normal"
	case abs.LessThanOrEqual(decimal.NewFromInt(5)):
		return "warning"
	default:
		return "critical"
	}
}

func buildMovement(m *model.CashMovement) *dto.MovementResponse {
	resp := &dto.MovementResponse{
		ID:       m.ID.String(),
		Kind:     string(m.Kind),
		Amount:   model.FromMinorUnits(m.Amount),
		Category: m.Category,
		Note:     m.Note,
		PostedBy: m.PostedBy.String(),
		PostedAt: m.PostedAt.UTC().Format(time.RFC3339),
	}
	if m.ReferenceID != nil {
		ref := m.ReferenceID.String()
		resp.Reference = &ref
	}
	return resp
}

func buildSessionReport(session *model.CashSession) *dto.SessionReportResponse {
	theoretical := session.TheoreticalBalance()

	resp := &dto.SessionReportResponse{
		SessionID:    session.ID.String(),
		OperatorID:   session.OperatorID.String(),
		LocationID:   session.LocationID,
		Status:       string(session.Status),
		OpeningFloat: model.FromMinorUnits(session.OpeningFloat),
		Totals: dto.MovementTotals{
			Income:      model.FromMinorUnits(session.TotalByKind(model.MovementIncome)),
			Expense:     model.FromMinorUnits(session.TotalByKind(model.MovementExpense)),
			Sales:       model.FromMinorUnits(session.TotalByKind(model.MovementSale)),
			PendingSale: model.FromMinorUnits(session.TotalByKind(model.MovementPendingSale)),
		},
		TheoreticalBalance: model.FromMinorUnits(theoretical),
		RecognizedTotal:    model.FromMinorUnits(session.RecognizedTotal()),
		Note:               session.Note,
		CloseNote:          session.CloseNote,
		OpenedAt:           session.OpenedAt.UTC().Format(time.RFC3339),
	}

	for i := range session.Movements {
		resp.Movements = append(resp.Movements, *buildMovement(&session.Movements[i]))
	}

	if session.CountedAmount != nil {
		counted := model.FromMinorUnits(*session.CountedAmount)
		resp.CountedAmount = &counted
	}
	if session.Variance != nil {
		pct := variancePercentage(*session.Variance, theoretical)
		resp.Variance = &dto.VarianceResponse{
			Amount:         model.FromMinorUnits(*session.Variance),
			Percentage:     pct,
			Classification: classifyVariance(pct),
			Detected:       *session.Variance != 0,
		}
	}
	if session.ClosedAt != nil {
		t := session.ClosedAt.UTC().Format(time.RFC3339)
		resp.ClosedAt = &t
	}
	return resp
}
