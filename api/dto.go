/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures decoupling the domain model from the API contract.
  Money fields are decimal.Decimal, which marshals as a quoted string
  and unmarshals from either a string or a number, so clients never
  push float artifacts into the engine.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients

VALIDATION:
  Structural validation (participant kinds, share sums, positive
  amounts) lives on the domain types; handlers convert and delegate.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chipin/split-engine/ledger"
	"github.com/chipin/split-engine/receipt"
)

// ParticipantDTO is the (kind, id) addressing pair used everywhere.
type ParticipantDTO struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (p ParticipantDTO) toDomain() ledger.Participant {
	return ledger.Participant{Kind: ledger.Kind(p.Kind), ID: p.ID}
}

func toParticipantDTO(p ledger.Participant) ParticipantDTO {
	return ParticipantDTO{Kind: string(p.Kind), ID: p.ID}
}

func toParticipantDTOs(ps []ledger.Participant) []ParticipantDTO {
	out := make([]ParticipantDTO, len(ps))
	for i, p := range ps {
		out[i] = toParticipantDTO(p)
	}
	return out
}

// =============================================================================
// EXPENSES
// =============================================================================

type ShareDTO struct {
	Participant ParticipantDTO  `json:"participant"`
	Amount      decimal.Decimal `json:"amount"`
}

type ExpenseDTO struct {
	ID          string          `json:"id"`
	GroupID     string          `json:"group_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Payer       ParticipantDTO  `json:"payer"`
	Date        string          `json:"date"`
	CreatedAt   string          `json:"created_at,omitempty"`
	Shares      []ShareDTO      `json:"shares"`
}

// SaveExpenseRequest creates or fully replaces an expense. Edits
// replace the participants-and-amount set; there are no partial share
// updates.
type SaveExpenseRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Payer       ParticipantDTO  `json:"payer"`
	Date        string          `json:"date"` // YYYY-MM-DD
	Shares      []ShareDTO      `json:"shares"`
}

func toExpenseDTO(e *ledger.Expense) ExpenseDTO {
	shares := make([]ShareDTO, len(e.Shares))
	for i, s := range e.Shares {
		shares[i] = ShareDTO{Participant: toParticipantDTO(s.Participant), Amount: s.Amount}
	}
	return ExpenseDTO{
		ID:          e.ID,
		GroupID:     e.GroupID,
		Description: e.Description,
		Amount:      e.Amount,
		Payer:       toParticipantDTO(e.Payer),
		Date:        e.Date.Format("2006-01-02"),
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		Shares:      shares,
	}
}

// =============================================================================
// BALANCES / SETTLEMENTS
// =============================================================================

type BalanceDTO struct {
	Participant ParticipantDTO  `json:"participant"`
	TotalPaid   decimal.Decimal `json:"total_paid"`
	TotalOwed   decimal.Decimal `json:"total_owed"`
	Net         decimal.Decimal `json:"net"`
}

// TransactionDTO is one suggested payment from the optimizer. Never
// persisted; display and mark-paid only.
type TransactionDTO struct {
	From   ParticipantDTO  `json:"from"`
	To     ParticipantDTO  `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type SettlementDTO struct {
	ID        string          `json:"id"`
	GroupID   string          `json:"group_id"`
	From      ParticipantDTO  `json:"from"`
	To        ParticipantDTO  `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    string          `json:"paid_at"`
	CreatedAt string          `json:"created_at,omitempty"`
}

// CreateSettlementRequest marks a suggested transaction as paid.
type CreateSettlementRequest struct {
	From   ParticipantDTO  `json:"from"`
	To     ParticipantDTO  `json:"to"`
	Amount decimal.Decimal `json:"amount"`
	PaidAt *time.Time      `json:"paid_at,omitempty"`
}

// =============================================================================
// RECEIPT SESSIONS
// =============================================================================

// SessionParticipantDTO is one roster entry.
type SessionParticipantDTO struct {
	Participant ParticipantDTO `json:"participant"`
	DisplayName string         `json:"display_name"`
}

// CreateSessionRequest carries the untrusted extraction payload plus
// the fixed participant roster and the creating participant.
type CreateSessionRequest struct {
	Receipt      receipt.ExtractedReceipt `json:"receipt"`
	Participants []SessionParticipantDTO  `json:"participants"`
	CreatedBy    ParticipantDTO           `json:"created_by"`
	TTLHours     int                      `json:"ttl_hours,omitempty"`
}

type ItemDTO struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Price          decimal.Decimal  `json:"price"`
	Position       int              `json:"position"`
	Claimants      []ParticipantDTO `json:"claimants"`
	SharePerPerson decimal.Decimal  `json:"share_per_person"`
}

type SessionDTO struct {
	ID           string                  `json:"id"`
	GroupID      string                  `json:"group_id"`
	Merchant     string                  `json:"merchant"`
	Date         string                  `json:"date"`
	Subtotal     decimal.Decimal         `json:"subtotal"`
	Tax          decimal.Decimal         `json:"tax"`
	Tip          decimal.Decimal         `json:"tip"`
	Total        decimal.Decimal         `json:"total"`
	Status       string                  `json:"status"`
	ExpiresAt    string                  `json:"expires_at"`
	CreatedBy    ParticipantDTO          `json:"created_by"`
	ReopenedBy   *ParticipantDTO         `json:"reopened_by,omitempty"`
	ExpenseID    string                  `json:"expense_id,omitempty"`
	Participants []SessionParticipantDTO `json:"participants"`
	Items        []ItemDTO               `json:"items"`
}

// ClaimRequest identifies who is claiming or unclaiming.
type ClaimRequest struct {
	Participant ParticipantDTO `json:"participant"`
}

// ClaimStateDTO is the authoritative claimant set after a mutation.
// The same numbers go out on the event stream as an advisory snapshot.
type ClaimStateDTO struct {
	ItemID         string           `json:"item_id"`
	Claimants      []ParticipantDTO `json:"claimants"`
	TotalClaims    int              `json:"total_claims"`
	SharePerPerson decimal.Decimal  `json:"share_per_person"`
}

// FinalizeRequest identifies the finalizing participant (the payer).
type FinalizeRequest struct {
	Participant ParticipantDTO `json:"participant"`
}

type FinalizeResponseDTO struct {
	ExpenseID string `json:"expense_id"`
	Result    string `json:"result"` // "created" or "updated"
}

// ReopenRequest identifies who is reopening a completed session.
type ReopenRequest struct {
	Participant ParticipantDTO `json:"participant"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
