package service

import (
	"context"
	"testing"
	"time"

	"settlepos/internal/dto"
	"settlepos/internal/model"
	"settlepos/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ── In-memory fakes ───────────────────────────────────────────────────────────

type fakeSessionRepo struct {
	sessions  map[uuid.UUID]*model.CashSession
	movements []model.CashMovement
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uuid.UUID]*model.CashSession)}
}

func (r *fakeSessionRepo) CreateSession(_ context.Context, s *model.CashSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.OpenedAt = time.Now()
	r.sessions[s.ID] = s
	return nil
}

func (r *fakeSessionRepo) FindSessionByID(_ context.Context, id uuid.UUID) (*model.CashSession, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	s.Movements = nil
	for _, m := range r.movements {
		if m.SessionID == id {
			s.Movements = append(s.Movements, m)
		}
	}
	return s, nil
}

func (r *fakeSessionRepo) FindOpenSession(_ context.Context, operatorID uuid.UUID, locationID string) (*model.CashSession, error) {
	for _, s := range r.sessions {
		if s.OperatorID == operatorID && s.LocationID == locationID && s.Status == model.SessionOpen {
			return s, nil
		}
	}
	return nil, model.ErrNotFound
}

func (r *fakeSessionRepo) FindOpenSessionByOperator(_ context.Context, operatorID uuid.UUID) (*model.CashSession, error) {
	for id, s := range r.sessions {
		if s.OperatorID == operatorID && s.Status == model.SessionOpen {
			return r.FindSessionByID(context.Background(), id)
		}
	}
	return nil, model.ErrNotFound
}

func (r *fakeSessionRepo) UpdateSession(_ context.Context, s *model.CashSession) error {
	r.sessions[s.ID] = s
	return nil
}

func (r *fakeSessionRepo) CreateMovement(_ context.Context, m *model.CashMovement) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.PostedAt = time.Now()
	r.movements = append(r.movements, *m)
	return nil
}

func (r *fakeSessionRepo) CreateMovementTx(_ *gorm.DB, m *model.CashMovement) error {
	return r.CreateMovement(context.Background(), m)
}

func (r *fakeSessionRepo) ListClosedSessions(_ context.Context, page, limit int) ([]model.CashSession, int64, error) {
	var closed []model.CashSession
	for _, s := range r.sessions {
		if s.Status == model.SessionClosed {
			closed = append(closed, *s)
		}
	}
	return closed, int64(len(closed)), nil
}

func (r *fakeSessionRepo) DB() *gorm.DB { return nil }

var _ repository.SessionRepository = (*fakeSessionRepo)(nil)

type fakeReceiptRepo struct {
	receipts map[uuid.UUID]*model.Receipt
}

func newFakeReceiptRepo() *fakeReceiptRepo {
	return &fakeReceiptRepo{receipts: make(map[uuid.UUID]*model.Receipt)}
}

func (r *fakeReceiptRepo) Create(_ context.Context, rec *model.Receipt) error {
	r.receipts[rec.Token] = rec
	return nil
}

func (r *fakeReceiptRepo) CreateTx(_ *gorm.DB, rec *model.Receipt) error {
	r.receipts[rec.Token] = rec
	return nil
}

func (r *fakeReceiptRepo) FindByToken(_ context.Context, token uuid.UUID) (*model.Receipt, error) {
	rec, ok := r.receipts[token]
	if !ok {
		return nil, model.ErrNotFound
	}
	return rec, nil
}

func (r *fakeReceiptRepo) Update(_ context.Context, rec *model.Receipt) error {
	r.receipts[rec.Token] = rec
	return nil
}

func (r *fakeReceiptRepo) ListPendingRetries(_ context.Context, now time.Time, limit int) ([]model.Receipt, error) {
	var due []model.Receipt
	for _, rec := range r.receipts {
		if rec.Status == "pending" && rec.NextRetryAt != nil && !rec.NextRetryAt.After(now) {
			due = append(due, *rec)
		}
	}
	return due, nil
}

var _ repository.ReceiptRepository = (*fakeReceiptRepo)(nil)

type fakeDispatcher struct {
	audits  []interface{}
	fiscals []interface{}
	emails  []interface{}

	// fiscalErr simulates a broken queue connection.
	fiscalErr error
}

func (d *fakeDispatcher) EnqueueAudit(_ context.Context, p interface{}) error {
	d.audits = append(d.audits, p)
	return nil
}

func (d *fakeDispatcher) EnqueueFiscal(_ context.Context, p interface{}) error {
	if d.fiscalErr != nil {
		return d.fiscalErr
	}
	d.fiscals = append(d.fiscals, p)
	return nil
}

func (d *fakeDispatcher) EnqueueEmail(_ context.Context, p interface{}) error {
	d.emails = append(d.emails, p)
	return nil
}

type fakeArtifacts struct{ generated int }

func (a *fakeArtifacts) GeneratePDF(_ *model.CashSession) (string, error) {
	a.generated++
	return "/tmp/report.pdf", nil
}

func newSessionService(repo *fakeSessionRepo) (SessionService, *fakeDispatcher, *fakeArtifacts) {
	dispatcher := &fakeDispatcher{}
	artifacts := &fakeArtifacts{}
	svc := NewSessionService(repo, newFakeReceiptRepo(), repository.NewSettlementStore(), dispatcher, artifacts, "supervisor@example.com")
	return svc, dispatcher, artifacts
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ── Open ──────────────────────────────────────────────────────────────────────

func TestOpenSession(t *testing.T) {
	repo := newFakeSessionRepo()
	svc, dispatcher, _ := newSessionService(repo)

	resp, err := svc.Open(context.Background(), uuid.New(), dto.OpenSessionRequest{
		LocationID:   "pos-01",
		OpeningFloat: dec("500.00"),
	})

	require.NoError(t, err)
	assert.Equal(t, "open", resp.Status)
	assert.Equal(t, "500", resp.OpeningFloat.String())
	assert.Equal(t, "500", resp.TheoreticalBalance.String())
	assert.Len(t, dispatcher.audits, 1)
}

func TestOpenSessionDuplicateOperatorLocation(t *testing.T) {
	repo := newFakeSessionRepo()
	svc, _, _ := newSessionService(repo)
	operatorID := uuid.New()

	_, err := svc.Open(context.Background(), operatorID, dto.OpenSessionRequest{
		LocationID: "pos-01", OpeningFloat: dec("500"),
	})
	require.NoError(t, err)

	_, err = svc.Open(context.Background(), operatorID, dto.OpenSessionRequest{
		LocationID: "pos-01", OpeningFloat: dec("200"),
	})
	assert.ErrorIs(t, err, model.ErrSessionAlreadyOpen)

	// Same operator at another location is allowed.
	_, err = svc.Open(context.Background(), operatorID, dto.OpenSessionRequest{
		LocationID: "pos-02", OpeningFloat: dec("200"),
	})
	assert.NoError(t, err)
}

func TestOpenSessionRejectsNegativeFloat(t *testing.T) {
	repo := newFakeSessionRepo()
	svc, _, _ := newSessionService(repo)

	_, err := svc.Open(context.Background(), uuid.New(), dto.OpenSessionRequest{
		LocationID: "pos-01", OpeningFloat: dec("-1.00"),
	})
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
}

// ── PostMovement ──────────────────────────────────────────────────────────────

func TestPostMovement(t *testing.T) {
	repo := newFakeSessionRepo()
	svc, _, _ := newSessionService(repo)
	operatorID := uuid.New()

	opened, err := svc.Open(context.Background(), operatorID, dto.OpenSessionRequest{
		LocationID: "pos-01", OpeningFloat: dec("100"),
	})
	require.NoError(t, err)
	sessionID := uuid.MustParse(opened.SessionID)

	_, err = svc.PostMovement(context.Background(), sessionID, operatorID, dto.PostMovementRequest{
		Kind: "income", Amount: dec("50.25"), Category: "float top-up",
	})
	require.NoError(t, err)
	_, err = svc.PostMovement(context.Background(), sessionID, operatorID, dto.PostMovementRequest{
		Kind: "expense", Amount: dec("20.25"), Category: "supplies",
	})
	require.NoError(t, err)

	report, err := svc.Report(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, "130", report.TheoreticalBalance.String())
	assert.Len(t, report.Movements, 2)
}

func TestPostMovementRejectsSaleKinds(t *testing.T) {
	repo := newFakeSessionRepo()
	svc, _, _ := newSessionService(repo)
	operatorID := uuid.New()

	opened, err := svc.Open(context.Background(), operatorID, dto.OpenSessionRequest{
		LocationID: "pos-01", OpeningFloat: dec("100"),
	})
	require.NoError(t, err)
	sessionID := uuid.MustParse(opened.SessionID)

	_, err = svc.PostMovement(context.Background(), sessionID, operatorID, dto.PostMovementRequest{
		Kind: "sale_settlement", Amount: dec("10"), Category: "sneaky",
	})
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)
}

func TestPostMovementClosedSession(t *testing.T) {
	repo := newFakeSessionRepo()
	svc, _, _ := newSessionService(repo)
	operatorID := uuid.New()

	opened, err := svc.Open(context.Background(), operatorID, dto.OpenSessionRequest{
		LocationID: "pos-01", OpeningFloat: dec("100"),
	})
	require.NoError(t, err)
	sessionID := uuid.MustParse(opened.SessionID)

	_, err = svc.Close(context.Background(), sessionID, operatorID, dto.CloseSessionRequest{
		CountedAmount: dec("100"),
	})
	require.NoError(t, err)

	_, err = svc.PostMovement(context.Background(), sessionID, operatorID, dto.PostMovementRequest{
		Kind: "income", Amount: dec("10"), Category: "late",
	})
	assert.ErrorIs(t, err, model.ErrSessionClosed)
}

// ── Close ─────────────────────────────────────────────────────────────────────

func openWithBalance(t *testing.T, svc SessionService, repo *fakeSessionRepo, operatorID uuid.UUID, openingFloat string) uuid.UUID {
	t.Helper()
	opened, err := svc.Open(context.Background(), operatorID, dto.OpenSessionRequest{
		LocationID: "pos-01", OpeningFloat: dec(openingFloat),
	})
	require.NoError(t, err)
	return uuid.MustParse(opened.SessionID)
}

func TestCloseExactCountIsNormal(t *testing.T) {
	repo := newFakeSessionRepo()
	svc, _, artifacts := newSessionService(repo)
	operatorID := uuid.New()
	sessionID := openWithBalance(t, svc, repo, operatorID, "5000")

	resp, err := svc.Close(context.Background(), sessionID, operatorID, dto.CloseSessionRequest{
		CountedAmount: dec("5000"),
	})
	require.NoError(t, err)
	assert.Equal(t, "closed", resp.Status)
	assert.Equal(t, "normal", resp.Variance.Classification)
	assert.False(t, resp.Variance.Detected)
	assert.Equal(t, 1, artifacts.generated)
}

func TestCloseWarningVariance(t *testing.T) {
	repo := newFakeSessionRepo()
	svc, dispatcher, _ := newSessionService(repo)
	operatorID := uuid.New()
	sessionID := openWithBalance(t, svc, repo, operatorID, "5000")

	// Counted 4800 against 5000 expected: -4% → warning, no supervisor email.
	resp, err := svc.Close(context.Background(), sessionID, operatorID, dto.CloseSessionRequest{
		CountedAmount: dec("4800"),
	})
	require.NoError(t, err)
	assert.Equal(t, "warning", resp.Variance.Classification)
	assert.True(t, resp.Variance.Detected)
	assert.Equal(t, "-200", resp.Variance.Amount.String())
	assert.Empty(t, dispatcher.emails)
}

func TestCloseCriticalVarianceRequiresNote(t *testing.T) {
	repo := newFakeSessionRepo()
	svc, dispatcher, _ := newSessionService(repo)
	operatorID := uuid.New()
	sessionID := openWithBalance(t, svc, repo, operatorID, "5000")

	// -10% without a note is refused and the session stays open.
	_, err := svc.Close(context.Background(), sessionID, operatorID, dto.CloseSessionRequest{
		CountedAmount: dec("4500"),
	})
	assert.ErrorIs(t, err, ErrNoteRequired)

	resp, err := svc.Close(context.Background(), sessionID, operatorID, dto.CloseSessionRequest{
		CountedAmount: dec("4500"),
		Note:          "drawer was short, incident filed",
	})
	require.NoError(t, err)
	assert.Equal(t, "critical", resp.Variance.Classification)
	assert.Len(t, dispatcher.emails, 1)
}

func TestCloseTwiceFails(t *testing.T) {
	repo := newFakeSessionRepo()
	svc, _, _ := newSessionService(repo)
	operatorID := uuid.New()
	sessionID := openWithBalance(t, svc, repo, operatorID, "1000")

	_, err := svc.Close(context.Background(), sessionID, operatorID, dto.CloseSessionRequest{
		CountedAmount: dec("1000"),
	})
	require.NoError(t, err)

	_, err = svc.Close(context.Background(), sessionID, operatorID, dto.CloseSessionRequest{
		CountedAmount: dec("1000"),
	})
	assert.ErrorIs(t, err, model.ErrSessionNotOpen)
}

func TestCloseKeepsOpeningNote(t *testing.T) {
	repo := newFakeSessionRepo()
	svc, _, _ := newSessionService(repo)
	operatorID := uuid.New()

	opened, err := svc.Open(context.Background(), operatorID, dto.OpenSessionRequest{
		LocationID: "pos-01", OpeningFloat: dec("5000"),
		Note: "float counted with shift lead",
	})
	require.NoError(t, err)
	sessionID := uuid.MustParse(opened.SessionID)

	_, err = svc.Close(context.Background(), sessionID, operatorID, dto.CloseSessionRequest{
		CountedAmount: dec("4500"), Note: "drawer short, incident filed",
	})
	require.NoError(t, err)

	report, err := svc.Report(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, "float counted with shift lead", report.Note)
	assert.Equal(t, "drawer short, incident filed", report.CloseNote)
}

// ── Report PDF ────────────────────────────────────────────────────────────────

func TestReportPDF(t *testing.T) {
	repo := newFakeSessionRepo()
	svc, _, artifacts := newSessionService(repo)
	operatorID := uuid.New()
	sessionID := openWithBalance(t, svc, repo, operatorID, "100")

	path, err := svc.ReportPDF(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/report.pdf", path)
	assert.Equal(t, 1, artifacts.generated)

	_, err = svc.ReportPDF(context.Background(), uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

// ── PostSettlement ────────────────────────────────────────────────────────────

func TestPostSettlementSplitsMovements(t *testing.T) {
	repo := newFakeSessionRepo()
	dispatcher := &fakeDispatcher{}
	receipts := newFakeReceiptRepo()
	svc := NewSessionService(repo, receipts, repository.NewSettlementStore(), dispatcher, &fakeArtifacts{}, "")
	operatorID := uuid.New()

	opened, err := svc.Open(context.Background(), operatorID, dto.OpenSessionRequest{
		LocationID: "pos-01", OpeningFloat: dec("100"),
	})
	require.NoError(t, err)
	sessionID := uuid.MustParse(opened.SessionID)

	// $100 sale paid $60 card + $50 cash → $10 change.
	settlement, err := model.NewSettlement(sessionID, operatorID, 10000, 0)
	require.NoError(t, err)
	_, err = settlement.AddTender(model.TenderCard, 6000, model.InstrumentDetails{Card: &model.CardDetails{Brand: "visa", Terminal: "t1", Installments: 1}})
	require.NoError(t, err)
	_, err = settlement.AddTender(model.TenderCash, 5000, model.InstrumentDetails{})
	require.NoError(t, err)
	require.Equal(t, model.SettlementSettled, settlement.Status)

	receipt := &model.Receipt{
		Token:           uuid.New(),
		SessionID:       sessionID,
		TargetAmount:    10000,
		CollectedAmount: 11000,
		ChangeDue:       1000,
		TenderBreakdown: "[]",
		Status:          "pending",
	}
	require.NoError(t, svc.PostSettlement(context.Background(), settlement, receipt))

	byKind := map[model.MovementKind]model.Amount{}
	for _, m := range repo.movements {
		byKind[m.Kind] += m.Amount
	}
	assert.Equal(t, model.Amount(5000), byKind[model.MovementSale])
	assert.Equal(t, model.Amount(6000), byKind[model.MovementPendingSale])
	assert.Equal(t, model.Amount(1000), byKind[model.MovementExpense])

	// Receipt persisted alongside the postings.
	_, err = receipts.FindByToken(context.Background(), receipt.Token)
	assert.NoError(t, err)

	// Drawer math: 100.00 float + 50.00 cash - 10.00 change = 140.00.
	report, err := svc.Report(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, "140", report.TheoreticalBalance.String())
	assert.Equal(t, "200", report.RecognizedTotal.String())
}

func TestPostSettlementClosedSession(t *testing.T) {
	repo := newFakeSessionRepo()
	svc, _, _ := newSessionService(repo)
	operatorID := uuid.New()
	sessionID := openWithBalance(t, svc, repo, operatorID, "100")

	_, err := svc.Close(context.Background(), sessionID, operatorID, dto.CloseSessionRequest{
		CountedAmount: dec("100"),
	})
	require.NoError(t, err)

	settlement, err := model.NewSettlement(sessionID, operatorID, 1000, 0)
	require.NoError(t, err)
	_, err = settlement.AddTender(model.TenderCash, 1000, model.InstrumentDetails{})
	require.NoError(t, err)

	receipt := &model.Receipt{Token: uuid.New(), SessionID: sessionID, TargetAmount: 1000, CollectedAmount: 1000, TenderBreakdown: "[]", Status: "pending"}
	err = svc.PostSettlement(context.Background(), settlement, receipt)
	assert.ErrorIs(t, err, model.ErrSessionClosed)
}
