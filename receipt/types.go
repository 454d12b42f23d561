/*
Package receipt implements itemized receipt sessions: concurrent item
claiming and the reconciliation that turns claims into exact shares.

PURPOSE:
  A receipt session holds extracted line items for a fixed participant
  roster. During the claiming phase participants claim/unclaim items
  concurrently; finalizing reads a snapshot of the claims and produces
  an Expense whose Shares sum to the declared total to the cent.

LIFECYCLE:
  claiming ──finalize──▶ completed ──reopen──▶ claiming ...

  A completed session links the Expense it produced; re-finalizing
  after a reopen overwrites that same Expense rather than creating a
  new one. Once now > ExpiresAt, all mutations fail with
  ErrSessionExpired; reads stay allowed.

SEE ALSO:
  - registry.go: claim/unclaim protocol
  - reconcile.go: finalize math (discrepancies, tax/tip, rounding)
  - extract.go: untrusted extraction payload → session + items
*/
package receipt

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chipin/split-engine/ledger"
)

// Status is the session state machine.
type Status string

const (
	// StatusClaiming allows claim/unclaim/finalize mutations.
	StatusClaiming Status = "claiming"

	// StatusCompleted means the session produced its linked Expense.
	StatusCompleted Status = "completed"
)

// RosterEntry is one participant in the session's fixed roster, with a
// display name for event payloads. Position preserves creation order.
type RosterEntry struct {
	Participant ledger.Participant
	DisplayName string
	Position    int
}

// Session is an itemized receipt being split. The declared subtotal,
// tax, tip, and total are stored as independent scalars: the extraction
// source is untrusted, so the subtotal need not equal the sum of item
// prices. Reconciliation corrects for that (see reconcile.go).
type Session struct {
	ID       string
	GroupID  string
	Merchant string
	Date     time.Time

	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Tip      decimal.Decimal
	Total    decimal.Decimal

	Status    Status
	ExpiresAt time.Time
	CreatedAt time.Time

	// CreatedBy may finalize and reopen. After a reopen, ReopenedBy may
	// finalize the next round instead.
	CreatedBy  ledger.Participant
	ReopenedBy *ledger.Participant

	// ExpenseID links the produced Expense once completed. Re-finalizing
	// overwrites this Expense in place.
	ExpenseID string

	Participants []RosterEntry
}

// Expired reports whether the session's expiry has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// HasParticipant reports whether p is in the session roster.
func (s *Session) HasParticipant(p ledger.Participant) bool {
	for _, r := range s.Participants {
		if r.Participant == p {
			return true
		}
	}
	return false
}

// CanFinalize reports whether p may finalize or reopen this session:
// the original creator, or whoever last reopened it.
func (s *Session) CanFinalize(p ledger.Participant) bool {
	if p == s.CreatedBy {
		return true
	}
	return s.ReopenedBy != nil && p == *s.ReopenedBy
}

// rosterName returns the display name for p, or its key as a fallback.
func (s *Session) rosterName(p ledger.Participant) string {
	for _, r := range s.Participants {
		if r.Participant == p && r.DisplayName != "" {
			return r.DisplayName
		}
	}
	return p.Key()
}

// Item is one receipt line item. Immutable once created.
type Item struct {
	ID        string
	SessionID string
	Name      string
	Price     decimal.Decimal
	Position  int
}

// Claim associates one item with one participant. An item may carry
// zero, one, or many claims; a participant may claim any number of
// items. Claims exist only during the claiming phase's lifetime and
// are read once at finalize.
type Claim struct {
	ItemID      string
	Participant ledger.Participant
}
