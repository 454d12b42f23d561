package receipt

import (
	"context"

	"github.com/chipin/split-engine/ledger"
)

// Store is the persistence surface the registry and reconciler need.
// Implemented by store/sqlite (production) and store/memory (tests).
//
// Claim idempotency is enforced HERE, at the storage layer: the
// (item, participant) pair is unique, AddClaim collapses duplicates
// instead of erroring, and RemoveClaim treats "nothing deleted" as
// success. Racing callers therefore never observe a conflict.
type Store interface {
	// CreateSession persists a session with its items and roster
	// atomically. IDs are assigned if absent.
	CreateSession(ctx context.Context, s *Session, items []Item) error

	// GetSession returns the session with its roster loaded.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// ListItems returns the session's items ordered by position.
	ListItems(ctx context.Context, sessionID string) ([]Item, error)

	// GetItem returns one item.
	GetItem(ctx context.Context, itemID string) (*Item, error)

	// AddClaim records (itemID, p). Duplicate claims are a no-op.
	AddClaim(ctx context.Context, itemID string, p ledger.Participant) error

	// RemoveClaim deletes (itemID, p). Absent claims are a no-op.
	RemoveClaim(ctx context.Context, itemID string, p ledger.Participant) error

	// Claimants returns the item's current claimant set, ordered by
	// participant key.
	Claimants(ctx context.Context, itemID string) ([]ledger.Participant, error)

	// ClaimsBySession returns claimants per item id for the whole
	// session, the snapshot finalize reads once.
	ClaimsBySession(ctx context.Context, sessionID string) (map[string][]ledger.Participant, error)

	// CompleteSession atomically upserts the reconciled expense (full
	// share-set replace), links it to the session, and transitions the
	// session to completed. The session's stored expense link takes
	// precedence over expense.ID, so racing or retried finalizes all
	// land on the same expense row. Reports whether the expense was
	// newly created.
	CompleteSession(ctx context.Context, sessionID string, expense *ledger.Expense) (created bool, err error)

	// ReopenSession transitions a completed session back to claiming
	// and records who reopened it.
	ReopenSession(ctx context.Context, sessionID string, by ledger.Participant) error
}
