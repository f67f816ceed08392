package repository

import (
	"context"
	"errors"
	"time"

	"settlepos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReceiptRepository interface {
	Create(ctx context.Context, rec *model.Receipt) error
	CreateTx(tx *gorm.DB, rec *model.Receipt) error
	FindByToken(ctx context.Context, token uuid.UUID) (*model.Receipt, error)
	Update(ctx context.Context, rec *model.Receipt) error
	// ListPendingRetries returns receipts whose fiscal emission failed and are
	// due for another attempt.
	ListPendingRetries(ctx context.Context, now time.Time, limit int) ([]model.Receipt, error)
}

type receiptRepo struct{ db *gorm.DB }

func NewReceiptRepository(db *gorm.DB) ReceiptRepository { return &receiptRepo{db: db} }

func (r *receiptRepo) Create(ctx context.Context, rec *model.Receipt) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *receiptRepo) CreateTx(tx *gorm.DB, rec *model.Receipt) error {
	return tx.Create(rec).Error
}

func (r *receiptRepo) FindByToken(ctx context.Context, token uuid.UUID) (*model.Receipt, error) {
	var rec model.Receipt
	err := r.db.WithContext(ctx).First(&rec, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *receiptRepo) Update(ctx context.Context, rec *model.Receipt) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

func (r *receiptRepo) ListPendingRetries(ctx context.Context, now time.Time, limit int) ([]model.Receipt, error) {
	var recs []model.Receipt
	err := r.db.WithContext(ctx).
		Where("status = 'pending' AND next_retry_at IS NOT NULL AND next_retry_at <= ?", now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}
