package model

import (
	"time"

	"github.com/google/uuid"
)

// MovementKind classifies a ledger entry inside a cash session. Amounts are
// always stored positive; the kind implies the sign.
//
// sale_settlement is literal cash that landed in the drawer. Card, wire and
// QR tenders post as pending_sale_settlement: recognized revenue, but not
// yet bank-cleared and never part of the physical drawer count.
type MovementKind string

const (
	MovementIncome      MovementKind = "income"
	MovementExpense     MovementKind = "expense"
	MovementSale        MovementKind = "sale_settlement"
	MovementPendingSale MovementKind = "pending_sale_settlement"
)

// SessionStatus: open → closed, terminal. No reopening; a new working period
// means a new session.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

// CashMovement is one immutable ledger entry. Movements are NEVER modified or
// deleted after creation; corrections create new entries.
type CashMovement struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	SessionID uuid.UUID    `gorm:"type:uuid;index;not null" json:"session_id"`
	Kind      MovementKind `gorm:"type:varchar(30);not null" json:"kind"`
	Amount    Amount       `gorm:"not null" json:"amount"`
	Category  string       `gorm:"type:varchar(60)" json:"category"`
	Note      string       `json:"note"`
	// ReferenceID links sale-derived movements to their receipt token.
	ReferenceID *uuid.UUID `gorm:"type:uuid" json:"reference_id,omitempty"`
	PostedBy    uuid.UUID  `gorm:"type:uuid;not null" json:"posted_by"`
	PostedAt    time.Time  `gorm:"autoCreateTime" json:"posted_at"`
}

// CashSession is one operator's open-to-close working period at a location.
// At most one open session may exist per (operator, location) pair; the
// repository enforces the lookup and the service refuses duplicates.
type CashSession struct {
	ID           uuid.UUID     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OperatorID   uuid.UUID     `gorm:"type:uuid;not null;index:idx_sessions_operator_location" json:"operator_id"`
	LocationID   string        `gorm:"type:varchar(40);not null;index:idx_sessions_operator_location" json:"location_id"`
	OpeningFloat Amount        `gorm:"not null" json:"opening_float"`
	Status       SessionStatus `gorm:"type:varchar(10);not null;default:'open'" json:"status"`
	Note         string        `json:"note"`

	// Set only at close, immutable afterwards. CloseNote is kept apart from
	// Note so the closing observation never clobbers the opening one.
	CountedAmount *Amount    `json:"counted_amount,omitempty"`
	Variance      *Amount    `json:"variance,omitempty"`
	CloseNote     string     `json:"close_note,omitempty"`
	ClosedBy      *uuid.UUID `gorm:"type:uuid" json:"closed_by,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`

	OpenedAt time.Time `gorm:"autoCreateTime" json:"opened_at"`

	// Append-only, insertion order == chronological order by PostedAt.
	Movements []CashMovement `gorm:"foreignKey:SessionID" json:"movements,omitempty"`
}

func (CashSession) TableName() string  { return "cash_sessions" }
func (CashMovement) TableName() string { return "cash_movements" }

// TheoreticalBalance folds over the movements in insertion order and returns
// the expected physical drawer total:
//
//	openingFloat + Σincome + Σsale_settlement − Σexpense
//
// pending_sale_settlement entries are excluded — they never touched the
// drawer. The fold is deterministic and idempotent: repeating it over the
// same sequence yields the same balance.
func (s *CashSession) TheoreticalBalance() Amount {
	balance := s.OpeningFloat
	for i := range s.Movements {
		switch s.Movements[i].Kind {
		case MovementIncome, MovementSale:
			balance += s.Movements[i].Amount
		case MovementExpense:
			balance -= s.Movements[i].Amount
		}
	}
	return balance
}

// RecognizedTotal is the reporting figure that includes non-cash settlement
// revenue on top of the drawer balance.
func (s *CashSession) RecognizedTotal() Amount {
	total := s.TheoreticalBalance()
	for i := range s.Movements {
		if s.Movements[i].Kind == MovementPendingSale {
			total += s.Movements[i].Amount
		}
	}
	return total
}

// TotalByKind sums movement amounts for one kind (report breakdowns).
func (s *CashSession) TotalByKind(kind MovementKind) Amount {
	var sum Amount
	for i := range s.Movements {
		if s.Movements[i].Kind == kind {
			sum += s.Movements[i].Amount
		}
	}
	return sum
}
