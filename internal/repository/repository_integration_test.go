//go:build integration

package repository

// Integration tests against real Postgres via testcontainers.
// Run with: go test -tags integration ./internal/repository/... -v

import (
	"context"
	"testing"
	"time"

	"settlepos/internal/infra"
	"settlepos/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("settlepos_test"),
		tcPostgres.WithUsername("settlepos"),
		tcPostgres.WithPassword("settlepos"),
		testcontainers.WithWaitStrategy(
			tcPostgres.BasicWaitStrategies()...,
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := infra.NewDatabase(pgURL)
	require.NoError(t, err)
	return db
}

func TestSessionPersistenceLifecycle(t *testing.T) {
	db := setupDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	operator := uuid.New()
	s := &model.CashSession{
		OperatorID:   operator,
		LocationID:   "store-01",
		OpeningFloat: 50000,
		Status:       model.SessionOpen,
	}
	require.NoError(t, repo.CreateSession(ctx, s))
	require.NotEqual(t, uuid.Nil, s.ID)

	found, err := repo.FindOpenSession(ctx, operator, "store-01")
	require.NoError(t, err)
	assert.Equal(t, s.ID, found.ID)

	_, err = repo.FindOpenSession(ctx, operator, "store-02")
	assert.ErrorIs(t, err, model.ErrNotFound)

	byOperator, err := repo.FindOpenSessionByOperator(ctx, operator)
	require.NoError(t, err)
	assert.Equal(t, s.ID, byOperator.ID)

	// Movements come back in posting order regardless of insertion order.
	base := time.Now().UTC().Truncate(time.Second)
	later := &model.CashMovement{
		SessionID: s.ID, Kind: model.MovementExpense, Amount: 1000,
		Category: "supplies", PostedBy: operator, PostedAt: base.Add(2 * time.Second),
	}
	earlier := &model.CashMovement{
		SessionID: s.ID, Kind: model.MovementSale, Amount: 12000,
		Category: "cash", PostedBy: operator, PostedAt: base,
	}
	require.NoError(t, repo.CreateMovement(ctx, later))
	require.NoError(t, repo.CreateMovement(ctx, earlier))

	loaded, err := repo.FindSessionByID(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Movements, 2)
	assert.Equal(t, model.MovementSale, loaded.Movements[0].Kind)
	assert.Equal(t, model.MovementExpense, loaded.Movements[1].Kind)
	assert.Equal(t, model.Amount(61000), loaded.TheoreticalBalance())

	// Close and verify it drops out of the open lookup and shows up in history.
	counted := model.Amount(61000)
	variance := model.Amount(0)
	now := time.Now().UTC()
	loaded.Status = model.SessionClosed
	loaded.CountedAmount = &counted
	loaded.Variance = &variance
	loaded.ClosedBy = &operator
	loaded.ClosedAt = &now
	require.NoError(t, repo.UpdateSession(ctx, loaded))

	_, err = repo.FindOpenSession(ctx, operator, "store-01")
	assert.ErrorIs(t, err, model.ErrNotFound)

	closed, total, err := repo.ListClosedSessions(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, closed, 1)
	assert.Equal(t, s.ID, closed[0].ID)
}

func TestOpenSessionUniquePerOperatorLocation(t *testing.T) {
	db := setupDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	operator := uuid.New()
	first := &model.CashSession{
		OperatorID: operator, LocationID: "store-01",
		OpeningFloat: 10000, Status: model.SessionOpen,
	}
	require.NoError(t, repo.CreateSession(ctx, first))

	// The partial unique index rejects a second open session for the pair.
	dup := &model.CashSession{
		OperatorID: operator, LocationID: "store-01",
		OpeningFloat: 20000, Status: model.SessionOpen,
	}
	assert.Error(t, repo.CreateSession(ctx, dup))

	// Same operator at another location is fine.
	other := &model.CashSession{
		OperatorID: operator, LocationID: "store-02",
		OpeningFloat: 20000, Status: model.SessionOpen,
	}
	assert.NoError(t, repo.CreateSession(ctx, other))

	// Closing the first frees the pair for a fresh session.
	now := time.Now().UTC()
	first.Status = model.SessionClosed
	first.ClosedAt = &now
	require.NoError(t, repo.UpdateSession(ctx, first))

	again := &model.CashSession{
		OperatorID: operator, LocationID: "store-01",
		OpeningFloat: 30000, Status: model.SessionOpen,
	}
	assert.NoError(t, repo.CreateSession(ctx, again))
}

func TestSettlementPostingIsTransactional(t *testing.T) {
	db := setupDB(t)
	sessions := NewSessionRepository(db)
	receipts := NewReceiptRepository(db)
	ctx := context.Background()

	operator := uuid.New()
	s := &model.CashSession{
		OperatorID: operator, LocationID: "store-01",
		OpeningFloat: 10000, Status: model.SessionOpen,
	}
	require.NoError(t, sessions.CreateSession(ctx, s))

	token := uuid.New()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := &model.Receipt{
			Token: token, SessionID: s.ID,
			TargetAmount: 15000, CollectedAmount: 15000,
			TenderBreakdown: `[]`, Status: "pending",
		}
		if err := receipts.CreateTx(tx, rec); err != nil {
			return err
		}
		return sessions.CreateMovementTx(tx, &model.CashMovement{
			SessionID: s.ID, Kind: model.MovementSale, Amount: 15000,
			Category: "cash", ReferenceID: &token, PostedBy: operator,
		})
	})
	require.NoError(t, err)

	rec, err := receipts.FindByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "pending", rec.Status)

	loaded, err := sessions.FindSessionByID(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Movements, 1)
	require.NotNil(t, loaded.Movements[0].ReferenceID)
	assert.Equal(t, token, *loaded.Movements[0].ReferenceID)
}

func TestReceiptRetryQueue(t *testing.T) {
	db := setupDB(t)
	receipts := NewReceiptRepository(db)
	ctx := context.Background()

	session := uuid.New()
	now := time.Now().UTC()

	mkReceipt := func(status string, nextRetry *time.Time) *model.Receipt {
		return &model.Receipt{
			Token: uuid.New(), SessionID: session,
			TargetAmount: 10000, CollectedAmount: 10000,
			TenderBreakdown: `[]`, Status: status, NextRetryAt: nextRetry,
		}
	}

	overdue := now.Add(-10 * time.Minute)
	justDue := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	first := mkReceipt("pending", &overdue)
	second := mkReceipt("pending", &justDue)
	require.NoError(t, receipts.Create(ctx, first))
	require.NoError(t, receipts.Create(ctx, second))
	require.NoError(t, receipts.Create(ctx, mkReceipt("pending", &future)))
	require.NoError(t, receipts.Create(ctx, mkReceipt("pending", nil)))
	require.NoError(t, receipts.Create(ctx, mkReceipt("emitted", &overdue)))

	due, err := receipts.ListPendingRetries(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, first.Token, due[0].Token)
	assert.Equal(t, second.Token, due[1].Token)

	// Emission success clears the retry state.
	ref := "A-0001-00000042"
	first.Status = "emitted"
	first.EmitterRef = &ref
	first.NextRetryAt = nil
	require.NoError(t, receipts.Update(ctx, first))

	due, err = receipts.ListPendingRetries(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, second.Token, due[0].Token)

	updated, err := receipts.FindByToken(ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, "emitted", updated.Status)
	require.NotNil(t, updated.EmitterRef)
	assert.Equal(t, ref, *updated.EmitterRef)
}

func TestAuditTrailByEntity(t *testing.T) {
	db := setupDB(t)
	audits := NewAuditRepository(db)
	ctx := context.Background()

	operator := uuid.New()
	entity := uuid.New()
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, audits.Create(ctx, &model.AuditRecord{
		Operation: "session.close", OperatorID: operator, EntityID: entity,
		BeforeTotal: 61000, AfterTotal: 61000, OccurredAt: base.Add(time.Second),
	}))
	require.NoError(t, audits.Create(ctx, &model.AuditRecord{
		Operation: "session.open", OperatorID: operator, EntityID: entity,
		BeforeTotal: 0, AfterTotal: 50000, OccurredAt: base,
	}))
	require.NoError(t, audits.Create(ctx, &model.AuditRecord{
		Operation: "session.open", OperatorID: operator, EntityID: uuid.New(),
		BeforeTotal: 0, AfterTotal: 10000, OccurredAt: base,
	}))

	trail, err := audits.ListByEntity(ctx, entity)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "session.open", trail[0].Operation)
	assert.Equal(t, "session.close", trail[1].Operation)
}
