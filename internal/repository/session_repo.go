package repository

import (
	"context"
	"errors"

	"settlepos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionRepository interface {
	CreateSession(ctx context.Context, s *model.CashSession) error
	FindSessionByID(ctx context.Context, id uuid.UUID) (*model.CashSession, error)
	// FindOpenSession looks up the single open session for an operator+location
	// pair. Returns model.ErrNotFound when none exists.
	FindOpenSession(ctx context.Context, operatorID uuid.UUID, locationID string) (*model.CashSession, error)
	FindOpenSessionByOperator(ctx context.Context, operatorID uuid.UUID) (*model.CashSession, error)
	UpdateSession(ctx context.Context, s *model.CashSession) error
	CreateMovement(ctx context.Context, m *model.CashMovement) error
	// CreateMovementTx writes inside an outer transaction (settlement postings
	// are all-or-nothing).
	CreateMovementTx(tx *gorm.DB, m *model.CashMovement) error
	ListClosedSessions(ctx context.Context, page, limit int) ([]model.CashSession, int64, error)
	DB() *gorm.DB
}

type sessionRepo struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &sessionRepo{db: db} }

func (r *sessionRepo) CreateSession(ctx context.Context, s *model.CashSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *sessionRepo) FindSessionByID(ctx context.Context, id uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).
		Preload("Movements", func(db *gorm.DB) *gorm.DB { return db.Order("posted_at ASC") }).
		First(&s, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) FindOpenSession(ctx context.Context, operatorID uuid.UUID, locationID string) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).
		Where("operator_id = ? AND location_id = ? AND status = ?", operatorID, locationID, model.SessionOpen).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) FindOpenSessionByOperator(ctx context.Context, operatorID uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).
		Preload("Movements", func(db *gorm.DB) *gorm.DB { return db.Order("posted_at ASC") }).
		Where("operator_id = ? AND status = ?", operatorID, model.SessionOpen).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) UpdateSession(ctx context.Context, s *model.CashSession) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *sessionRepo) CreateMovement(ctx context.Context, m *model.CashMovement) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *sessionRepo) CreateMovementTx(tx *gorm.DB, m *model.CashMovement) error {
	return tx.Create(m).Error
}

func (r *sessionRepo) ListClosedSessions(ctx context.Context, page, limit int) ([]model.CashSession, int64, error) {
	var sessions []model.CashSession
	var total int64

	q := r.db.WithContext(ctx).Model(&model.CashSession{}).Where("status = ?", model.SessionClosed)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("closed_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&sessions).Error
	return sessions, total, err
}

func (r *sessionRepo) DB() *gorm.DB { return r.db }
