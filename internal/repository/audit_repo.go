package repository

import (
	"context"

	"settlepos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditRepository interface {
	Create(ctx context.Context, rec *model.AuditRecord) error
	ListByEntity(ctx context.Context, entityID uuid.UUID) ([]model.AuditRecord, error)
}

type auditRepo struct{ db *gorm.DB }

func NewAuditRepository(db *gorm.DB) AuditRepository { return &auditRepo{db: db} }

func (r *auditRepo) Create(ctx context.Context, rec *model.AuditRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *auditRepo) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]model.AuditRecord, error) {
	var recs []model.AuditRecord
	err := r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("occurred_at ASC").
		Find(&recs).Error
	return recs, err
}
