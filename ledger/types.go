/*
Package ledger provides the core accounting types and the balance fold.

PURPOSE:
  This package contains the shared domain types for the split engine:
  participant identity, expenses, shares, settlements, and the pure
  balance calculation over them. Everything downstream (the settlement
  optimizer, receipt reconciliation, the HTTP API) builds on these types.

KEY CONCEPTS IN THIS FILE (types.go):
  - Participant: tagged (kind, id) identity, a member or a placeholder
  - Expense: a paid amount owed back by its Shares
  - Share: one participant's owed portion of one Expense
  - Settlement: a recorded payment that clears part of a debt

DESIGN PRINCIPLES:
  1. Precision: all money is decimal.Decimal, never float64
  2. Identity: (id, kind) pairs address participants everywhere; an id
     alone could collide across kinds
  3. Shares travel with their Expense and are replaced as a full set,
     never patched

SEE ALSO:
  - money.go: epsilon, rounding, decimal helpers
  - balances.go: ComputeBalances fold
  - errors.go: error taxonomy shared by the core packages
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PARTICIPANT - Tagged identity (member or placeholder)
// =============================================================================

// Kind discriminates the two participant identity spaces.
type Kind string

const (
	// KindMember is a durable, authenticated identity.
	KindMember Kind = "member"

	// KindPlaceholder is a stand-in created before the real person joins.
	// When a placeholder is claimed, all of its historical records are
	// rewritten to the claiming member before they reach this package;
	// the core never resolves placeholder indirection itself.
	KindPlaceholder Kind = "placeholder"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindMember || k == KindPlaceholder
}

// Participant addresses one person able to owe or be owed money.
// The zero value is invalid.
type Participant struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// Key returns a stable string form usable as a map key and sort key.
func (p Participant) Key() string {
	return string(p.Kind) + ":" + p.ID
}

// IsZero reports whether p is the zero value.
func (p Participant) IsZero() bool {
	return p.ID == "" && p.Kind == ""
}

// Validate checks that p addresses a participant.
func (p Participant) Validate() error {
	if p.ID == "" {
		return &ValidationError{Field: "participant.id", Message: "must not be empty"}
	}
	if !p.Kind.Valid() {
		return &ValidationError{Field: "participant.kind", Message: fmt.Sprintf("unknown kind %q", p.Kind)}
	}
	return nil
}

// =============================================================================
// EXPENSE / SHARE
// =============================================================================

// Share is one participant's owed portion of one Expense.
type Share struct {
	Participant Participant
	Amount      decimal.Decimal
}

// Expense records an amount paid by one participant on behalf of a group.
// Shares must sum to Amount within Epsilon (exactly, for reconciled
// expenses). Edits replace the full share set; deletes cascade it.
type Expense struct {
	ID          string
	GroupID     string
	Description string
	Amount      decimal.Decimal
	Payer       Participant
	Date        time.Time
	CreatedAt   time.Time
	Shares      []Share
}

// Validate checks the expense invariants enforced on direct entry:
// a valid payer, a non-empty share set with valid unique participants,
// and shares summing to the amount within Epsilon.
func (e *Expense) Validate() error {
	if err := e.Payer.Validate(); err != nil {
		return err
	}
	if len(e.Shares) == 0 {
		return &ValidationError{Field: "shares", Message: "must not be empty"}
	}
	seen := make(map[string]bool, len(e.Shares))
	sum := decimal.Zero
	for _, s := range e.Shares {
		if err := s.Participant.Validate(); err != nil {
			return err
		}
		k := s.Participant.Key()
		if seen[k] {
			return &ValidationError{Field: "shares", Message: fmt.Sprintf("duplicate share for %s", k)}
		}
		seen[k] = true
		sum = sum.Add(s.Amount)
	}
	if sum.Sub(e.Amount).Abs().GreaterThan(Epsilon) {
		return &ValidationError{
			Field:   "shares",
			Message: fmt.Sprintf("shares sum to %s, expense amount is %s", sum, e.Amount),
		}
	}
	return nil
}

// =============================================================================
// SETTLEMENT - Recorded payment between participants
// =============================================================================

// Settlement is a persisted payment from one participant to another,
// recorded when a suggested settlement transaction is marked paid. It
// feeds back into ComputeBalances so that paying a debt actually clears
// it from future suggestions.
type Settlement struct {
	ID        string
	GroupID   string
	From      Participant // debtor who paid
	To        Participant // creditor who received
	Amount    decimal.Decimal
	PaidAt    time.Time
	CreatedAt time.Time
}

// Validate checks the settlement fields set by callers.
func (s *Settlement) Validate() error {
	if err := s.From.Validate(); err != nil {
		return err
	}
	if err := s.To.Validate(); err != nil {
		return err
	}
	if s.From == s.To {
		return &ValidationError{Field: "to", Message: "cannot settle with yourself"}
	}
	if !s.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be positive"}
	}
	return nil
}

// =============================================================================
// BALANCE - Derived, never persisted
// =============================================================================

// ParticipantBalance is one participant's derived net position in a group.
// Positive Net means the participant is owed money; negative means they
// owe money.
type ParticipantBalance struct {
	Participant Participant
	TotalPaid   decimal.Decimal
	TotalOwed   decimal.Decimal
	Net         decimal.Decimal
}
