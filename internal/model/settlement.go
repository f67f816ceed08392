package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SettlementStatus is the lifecycle of a payment collection for one sale.
// collecting → settled | abandoned; both end states are terminal.
type SettlementStatus string

const (
	SettlementCollecting SettlementStatus = "collecting"
	SettlementSettled    SettlementStatus = "settled"
	SettlementAbandoned  SettlementStatus = "abandoned"
)

// Settlement owns the tenders collected against one sale total. It is a pure
// in-memory value: created when a sale enters payment, discarded once the
// sale is invoiced or abandoned. The collected amount is always derived from
// the tender list, never stored, so it cannot drift.
//
// One operator owns one settlement at a time; methods are not safe for
// concurrent use and are serialized by the settlement store.
type Settlement struct {
	ID           uuid.UUID
	SessionID    uuid.UUID
	OperatorID   uuid.UUID
	TargetAmount Amount
	Status       SettlementStatus
	Tenders      []Tender
	CreatedAt    time.Time

	// NonCashTolerance is the maximum over-collection allowed for non-cash
	// tenders, in minor units. 0 means exact-or-partial only; cash may always
	// overshoot to produce change.
	NonCashTolerance Amount
}

// NewSettlement starts collection for a sale total.
func NewSettlement(sessionID, operatorID uuid.UUID, target Amount, nonCashTolerance Amount) (*Settlement, error) {
	if target <= 0 {
		return nil, fmt.Errorf("%w: target amount must be positive", ErrInvalidAmount)
	}
	return &Settlement{
		ID:               uuid.New(),
		SessionID:        sessionID,
		OperatorID:       operatorID,
		TargetAmount:     target,
		Status:           SettlementCollecting,
		CreatedAt:        time.Now().UTC(),
		NonCashTolerance: nonCashTolerance,
	}, nil
}

// CollectedAmount is the sum of verified tender amounts. Unverified and
// failed tenders contribute nothing: an unconfirmed wire transfer must not
// silently count as money received.
func (s *Settlement) CollectedAmount() Amount {
	var sum Amount
	for i := range s.Tenders {
		if s.Tenders[i].State == VerificationVerified {
			sum += s.Tenders[i].Amount
		}
	}
	return sum
}

// pendingCollected counts every tender that has not failed as if it will
// eventually verify. Used by the over-collection guard when accepting a new
// non-cash tender.
func (s *Settlement) pendingCollected() Amount {
	var sum Amount
	for i := range s.Tenders {
		if s.Tenders[i].State != VerificationFailed {
			sum += s.Tenders[i].Amount
		}
	}
	return sum
}

// ChangeDue is computed only against the cash subtotal: change is handed back
// in cash, never netted against cards or transfers.
func (s *Settlement) ChangeDue() Amount {
	var cash, nonCash Amount
	for i := range s.Tenders {
		t := &s.Tenders[i]
		if t.State != VerificationVerified {
			continue
		}
		if t.Kind == TenderCash {
			cash += t.Amount
		} else {
			nonCash += t.Amount
		}
	}
	cashPortion := s.TargetAmount - nonCash
	if cashPortion < 0 {
		cashPortion = 0
	}
	change := cash - cashPortion
	if change < 0 {
		return 0
	}
	return change
}

// IsSettled requires full coverage AND every tender resolved as verified.
// A numeric sum that covers the target is not enough while an unverified or
// failed tender is still on the list.
func (s *Settlement) IsSettled() bool {
	if len(s.Tenders) == 0 {
		return false
	}
	for i := range s.Tenders {
		if s.Tenders[i].State != VerificationVerified {
			return false
		}
	}
	return s.CollectedAmount() >= s.TargetAmount
}

// AddTender records one instrument applied to the sale.
//
// Cash and card are created verified (synchronous trust). Wire and QR start
// unverified and only transition through MarkVerified / MarkFailed.
func (s *Settlement) AddTender(kind TenderKind, amount Amount, details InstrumentDetails) (*Tender, error) {
	if s.Status != SettlementCollecting {
		return nil, fmt.Errorf("%w: settlement is %s", ErrInvalidStateTransition, s.Status)
	}
	if !ValidTenderKind(kind) {
		return nil, fmt.Errorf("%w: unknown tender kind %q", ErrInvalidStateTransition, kind)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: tender amount must be positive", ErrInvalidAmount)
	}
	// Non-cash tenders must not overshoot: there is no way to hand change back
	// through a card terminal or a wire. Cash may overshoot freely.
	if kind != TenderCash {
		if s.pendingCollected()+amount > s.TargetAmount+s.NonCashTolerance {
			return nil, fmt.Errorf("%w: %s tender of %d exceeds outstanding %d",
				ErrOverCollection, kind, amount, s.TargetAmount-s.pendingCollected())
		}
	}

	state := VerificationVerified
	if kind == TenderWireTransfer || kind == TenderQR {
		state = VerificationUnverified
	}

	t := Tender{
		ID:         uuid.New(),
		Kind:       kind,
		Amount:     amount,
		Details:    details,
		State:      state,
		RecordedAt: time.Now().UTC(),
	}
	s.Tenders = append(s.Tenders, t)
	s.transitionIfSettled()
	return &s.Tenders[len(s.Tenders)-1], nil
}

// MarkVerified resolves an unverified tender as received.
func (s *Settlement) MarkVerified(tenderID uuid.UUID) error {
	return s.resolve(tenderID, VerificationVerified)
}

// MarkFailed resolves an unverified tender as not received. The tender stays
// on the list (audit trail); the settlement remains collecting until the
// operator voids it and collects another instrument.
func (s *Settlement) MarkFailed(tenderID uuid.UUID) error {
	return s.resolve(tenderID, VerificationFailed)
}

func (s *Settlement) resolve(tenderID uuid.UUID, to VerificationState) error {
	if s.Status != SettlementCollecting {
		return fmt.Errorf("%w: settlement is %s", ErrInvalidStateTransition, s.Status)
	}
	t := s.findTender(tenderID)
	if t == nil {
		return fmt.Errorf("%w: tender %s", ErrNotFound, tenderID)
	}
	if t.State != VerificationUnverified {
		return fmt.Errorf("%w: tender is already %s", ErrInvalidStateTransition, t.State)
	}
	t.State = to
	s.transitionIfSettled()
	return nil
}

// VoidTender removes a tender and its contribution. Legal only while
// collecting — a settled settlement is immutable.
func (s *Settlement) VoidTender(tenderID uuid.UUID) error {
	if s.Status != SettlementCollecting {
		return fmt.Errorf("%w: settlement is %s", ErrInvalidStateTransition, s.Status)
	}
	for i := range s.Tenders {
		if s.Tenders[i].ID == tenderID {
			s.Tenders = append(s.Tenders[:i], s.Tenders[i+1:]...)
			s.transitionIfSettled()
			return nil
		}
	}
	return fmt.Errorf("%w: tender %s", ErrNotFound, tenderID)
}

// Abandon cancels collection before completion. No ledger postings ever
// happen for an abandoned settlement.
func (s *Settlement) Abandon() error {
	if s.Status != SettlementCollecting {
		return fmt.Errorf("%w: settlement is %s", ErrInvalidStateTransition, s.Status)
	}
	s.Status = SettlementAbandoned
	return nil
}

func (s *Settlement) findTender(id uuid.UUID) *Tender {
	for i := range s.Tenders {
		if s.Tenders[i].ID == id {
			return &s.Tenders[i]
		}
	}
	return nil
}

func (s *Settlement) transitionIfSettled() {
	if s.Status == SettlementCollecting && s.IsSettled() {
		s.Status = SettlementSettled
	}
}
