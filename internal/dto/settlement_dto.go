package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type BeginSaleRequest struct {
	SessionID    string          `json:"session_id"    validate:"required,uuid"`
	TargetAmount decimal.Decimal `json:"target_amount" validate:"required,gt=0"`
}

// AddTenderRequest carries exactly the details block matching its kind; the
// others must be absent.
type AddTenderRequest struct {
	Kind   string          `json:"kind"   validate:"required,oneof=cash card wire_transfer qr"`
	Amount decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Card   *CardDetails    `json:"card,omitempty"`
	Wire   *WireDetails    `json:"wire,omitempty"`
	QR     *QRDetails      `json:"qr,omitempty"`
}

type CardDetails struct {
	Brand        string `json:"brand"        validate:"required"`
	Terminal     string `json:"terminal"     validate:"required"`
	Installments int    `json:"installments" validate:"min=1,max=24"`
}

type WireDetails struct {
	BankID     string `json:"bank_id"     validate:"required"`
	ReceiptRef string `json:"receipt_ref" validate:"required"`
}

type QRDetails struct {
	Provider string `json:"provider" validate:"required"`
	// TransactionRef may be empty on creation; the server then assigns an
	// intent reference and returns it as a QR image for the customer to scan.
	TransactionRef string `json:"transaction_ref"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type TenderResponse struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	State      string          `json:"state"`
	RecordedAt string          `json:"recorded_at"`
	Card       *CardDetails    `json:"card,omitempty"`
	Wire       *WireDetails    `json:"wire,omitempty"`
	QR         *QRDetails      `json:"qr,omitempty"`
	// QRImage is a base64 PNG of the payment reference, present only on the
	// AddTender response for qr tenders.
	QRImage string `json:"qr_image,omitempty"`
}

type SettlementResponse struct {
	ID              string           `json:"id"`
	SessionID       string           `json:"session_id"`
	Status          string           `json:"status"`
	TargetAmount    decimal.Decimal  `json:"target_amount"`
	CollectedAmount decimal.Decimal  `json:"collected_amount"`
	ChangeDue       decimal.Decimal  `json:"change_due"`
	IsSettled       bool             `json:"is_settled"`
	Tenders         []TenderResponse `json:"tenders"`
	CreatedAt       string           `json:"created_at"`
}

// ConfirmTenderResponse reports the three-way gateway outcome. On "pending"
// the tender stays unverified and the operator may retry.
type ConfirmTenderResponse struct {
	TenderID   string             `json:"tender_id"`
	Result     string             `json:"result"` // confirmed | not_found | pending
	Settlement SettlementResponse `json:"settlement"`
}

// FinalizeResponse is the receipt token handed to the fiscal emitter, plus
// the tender breakdown the emitter receives.
type FinalizeResponse struct {
	ReceiptToken    string           `json:"receipt_token"`
	SessionID       string           `json:"session_id"`
	TargetAmount    decimal.Decimal  `json:"target_amount"`
	CollectedAmount decimal.Decimal  `json:"collected_amount"`
	ChangeDue       decimal.Decimal  `json:"change_due"`
	Tenders         []TenderResponse `json:"tenders"`
}
