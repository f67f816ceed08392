package model

import (
	"time"

	"github.com/google/uuid"
)

// AuditRecord is one immutable entry in the fire-and-forget audit trail.
// Every tender and ledger operation emits one, carrying the derived totals
// before and after the mutation so drift is visible in the trail itself.
type AuditRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Operation  string    `gorm:"type:varchar(40);not null;index"`
	OperatorID uuid.UUID `gorm:"type:uuid;not null"`
	// EntityID is the settlement or session the operation touched.
	EntityID    uuid.UUID `gorm:"type:uuid;not null;index"`
	BeforeTotal Amount    `gorm:"not null"`
	AfterTotal  Amount    `gorm:"not null"`
	Detail      string
	OccurredAt  time.Time `gorm:"not null"`
	CreatedAt   time.Time
}

func (AuditRecord) TableName() string { return "audit_records" }
