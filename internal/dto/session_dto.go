package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OpenSessionRequest struct {
	LocationID   string          `json:"location_id"   validate:"required,min=1,max=40"`
	OpeningFloat decimal.Decimal `json:"opening_float" validate:"min=0"`
	Note         string          `json:"note"`
}

type PostMovementRequest struct {
	Kind     string          `json:"kind"     validate:"required,oneof=income expense"`
	Amount   decimal.Decimal `json:"amount"   validate:"required,gt=0"`
	Category string          `json:"category" validate:"required,min=2,max=60"`
	Note     string          `json:"note"`
}

type CloseSessionRequest struct {
	CountedAmount decimal.Decimal `json:"counted_amount" validate:"min=0"`
	Note          string          `json:"note"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type MovementResponse struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Category  string          `json:"category"`
	Note      string          `json:"note,omitempty"`
	PostedBy  string          `json:"posted_by"`
	PostedAt  string          `json:"posted_at"`
	Reference *string         `json:"reference_id,omitempty"`
}

// MovementTotals breaks the session down per movement kind for reports.
type MovementTotals struct {
	Income      decimal.Decimal `json:"income"`
	Expense     decimal.Decimal `json:"expense"`
	Sales       decimal.Decimal `json:"sales"`
	PendingSale decimal.Decimal `json:"pending_sales"`
}

type VarianceResponse struct {
	Amount decimal.Decimal `json:"amount"`
	// Percentage of theoretical balance; zero when theoretical is zero.
	Percentage decimal.Decimal `json:"percentage"`
	// Classification: normal | warning | critical
	Classification string `json:"classification"`
	Detected       bool   `json:"detected"`
}

type SessionReportResponse struct {
	SessionID          string             `json:"session_id"`
	OperatorID         string             `json:"operator_id"`
	LocationID         string             `json:"location_id"`
	Status             string             `json:"status"`
	OpeningFloat       decimal.Decimal    `json:"opening_float"`
	Totals             MovementTotals     `json:"totals"`
	TheoreticalBalance decimal.Decimal    `json:"theoretical_balance"`
	RecognizedTotal    decimal.Decimal    `json:"recognized_total"`
	CountedAmount      *decimal.Decimal   `json:"counted_amount,omitempty"`
	Variance           *VarianceResponse  `json:"variance,omitempty"`
	Note               string             `json:"note,omitempty"`
	CloseNote          string             `json:"close_note,omitempty"`
	Movements          []MovementResponse `json:"movements,omitempty"`
	OpenedAt           string             `json:"opened_at"`
	ClosedAt           *string            `json:"closed_at,omitempty"`
}

type CloseSessionResponse struct {
	SessionID          string           `json:"session_id"`
	TheoreticalBalance decimal.Decimal  `json:"theoretical_balance"`
	RecognizedTotal    decimal.Decimal  `json:"recognized_total"`
	CountedAmount      decimal.Decimal  `json:"counted_amount"`
	Variance           VarianceResponse `json:"variance"`
	Status             string           `json:"status"`
}

type SessionListResponse struct {
	Data  []SessionReportResponse `json:"data"`
	Total int64                   `json:"total"`
	Page  int                     `json:"page"`
	Limit int                     `json:"limit"`
}
