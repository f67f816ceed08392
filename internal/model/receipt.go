package model

import (
	"time"

	"github.com/google/uuid"
)

// Receipt is the finalized record handed to the fiscal document emitter.
// One row is created per finalized settlement; the Token is the value the
// emitter (and the operator's printed ticket) references.
// Status: "pending" | "emitted" | "rejected" | "error"
type Receipt struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Token     uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	SessionID uuid.UUID `gorm:"type:uuid;index;not null"`

	TargetAmount    Amount `gorm:"not null"`
	CollectedAmount Amount `gorm:"not null"`
	ChangeDue       Amount `gorm:"not null;default:0"`
	// TenderBreakdown is the serialized tender list at finalize time, kept for
	// the emitter payload and period reports.
	TenderBreakdown string `gorm:"type:jsonb;not null"`

	Status string `gorm:"type:varchar(20);not null;default:'pending'"`
	// EmitterRef is the authorization reference returned by the fiscal emitter.
	EmitterRef *string `gorm:"type:varchar(40)"`

	// Retry fields used by the fiscal retry cron.
	RetryCount  int `gorm:"not null;default:0"`
	NextRetryAt *time.Time
	LastError   *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Receipt) TableName() string { return "receipts" }
