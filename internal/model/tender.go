package model

import (
	"time"

	"github.com/google/uuid"
)

// TenderKind is the closed set of payment instruments. No open extension:
// adding a kind means touching the settlement rules that decide trust and
// drawer impact, so the compiler should force that review.
type TenderKind string

const (
	TenderCash         TenderKind = "cash"
	TenderCard         TenderKind = "card"
	TenderWireTransfer TenderKind = "wire_transfer"
	TenderQR           TenderKind = "qr"
)

// ValidTenderKind reports whether k is one of the closed set.
func ValidTenderKind(k TenderKind) bool {
	switch k {
	case TenderCash, TenderCard, TenderWireTransfer, TenderQR:
		return true
	}
	return false
}

// VerificationState tracks whether the money behind a tender has actually
// been received. Cash and card are trusted synchronously (physical custody /
// terminal authorization); wire and QR confirmations arrive asynchronously
// and adversarially — funds can fail to arrive.
type VerificationState string

const (
	VerificationUnverified VerificationState = "unverified"
	VerificationVerified   VerificationState = "verified"
	VerificationFailed     VerificationState = "failed"
)

// InstrumentDetails is the kind-specific payload of a tender. Exactly one
// field is set, matching the tender kind; the state machine never looks
// inside.
type InstrumentDetails struct {
	Card *CardDetails `json:"card,omitempty"`
	Wire *WireDetails `json:"wire,omitempty"`
	QR   *QRDetails   `json:"qr,omitempty"`
}

type CardDetails struct {
	Brand        string `json:"brand"`
	Terminal     string `json:"terminal"`
	Installments int    `json:"installments"`
}

type WireDetails struct {
	BankID     string `json:"bank_id"`
	ReceiptRef string `json:"receipt_ref"`
}

type QRDetails struct {
	Provider       string `json:"provider"`
	TransactionRef string `json:"transaction_ref"`
}

// Tender is one payment instrument applied to a sale. Immutable after
// creation except for State.
type Tender struct {
	ID         uuid.UUID         `json:"id"`
	Kind       TenderKind        `json:"kind"`
	Amount     Amount            `json:"amount"`
	Details    InstrumentDetails `json:"details"`
	State      VerificationState `json:"state"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// VerificationRef returns the external reference the gateway needs to confirm
// this tender, or "" for synchronously trusted kinds.
func (t *Tender) VerificationRef() string {
	switch t.Kind {
	case TenderWireTransfer:
		if t.Details.Wire != nil {
			return t.Details.Wire.ReceiptRef
		}
	case TenderQR:
		if t.Details.QR != nil {
			return t.Details.QR.TransactionRef
		}
	}
	return ""
}
