package receipt

import (
	"errors"
	"fmt"

	"github.com/chipin/split-engine/ledger"
)

// State-machine and input errors specific to receipt sessions. The base
// taxonomy (validation, authorization, not-found) lives in the ledger
// package; these wrap it where appropriate.
var (
	// ErrSessionExpired is returned by every mutating operation once
	// now > session.ExpiresAt. Reads remain allowed.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionNotClaimable is returned when a mutation requires the
	// claiming status and the session is completed.
	ErrSessionNotClaimable = errors.New("session is not in claiming status")

	// ErrReconciliationInput is the base for malformed finalize input
	// (zero participants, broken extraction payload). Surfaced to the
	// caller, never silently corrected into wrong totals.
	ErrReconciliationInput = errors.New("bad reconciliation input")
)

// NotFinalizerError is returned when someone other than the session
// creator or last reopener attempts to finalize or reopen.
type NotFinalizerError struct {
	SessionID string
	Requester ledger.Participant
}

func (e *NotFinalizerError) Error() string {
	return fmt.Sprintf("participant %s may not finalize session %s", e.Requester.Key(), e.SessionID)
}

func (e *NotFinalizerError) Unwrap() error { return ledger.ErrNotAuthorized }

// ReconciliationInputError carries detail about rejected finalize input.
type ReconciliationInputError struct {
	SessionID string
	Reason    string
}

func (e *ReconciliationInputError) Error() string {
	return fmt.Sprintf("cannot reconcile session %s: %s", e.SessionID, e.Reason)
}

func (e *ReconciliationInputError) Unwrap() error { return ErrReconciliationInput }
