/*
registry.go - Concurrent item-claim protocol

PURPOSE:
  Claim and Unclaim let several participants mark responsibility for
  receipt line items at the same time, without losing or double-counting
  a claim. Both operations are idempotent: two people racing to tap
  "claim", or one person double-clicking, is the expected common case
  and must read as success, not as a conflict.

CONCURRENCY MODEL:
  There is no session-level lock. Uniqueness of the (item, participant)
  pair is enforced by the storage layer, so concurrent duplicate claims
  collapse rather than error. The stored claim set for an item exactly
  reflects the most recently applied calls; racing calls on the SAME
  pair resolve last-write-wins, different participants never conflict.

BROADCAST:
  Every successful mutation publishes an advisory snapshot to the hub,
  fire-and-forget. Persisted state and the broadcast channel may
  transiently disagree; clients re-fetch on receipt of any event.
*/
package receipt

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chipin/split-engine/ledger"
	"github.com/chipin/split-engine/realtime"
)

// ClaimState is the authoritative claimant set after a mutation, plus
// the same advisory numbers that go out on the event stream.
type ClaimState struct {
	ItemID         string
	Claimants      []ledger.Participant
	TotalClaims    int
	SharePerPerson decimal.Decimal
}

// Registry coordinates claim mutations against the store and the hub.
type Registry struct {
	store Store
	hub   *realtime.Hub
	now   func() time.Time
}

// NewRegistry creates a Registry. hub may be nil in tests that don't
// care about fan-out.
func NewRegistry(store Store, hub *realtime.Hub) *Registry {
	return &Registry{store: store, hub: hub, now: time.Now}
}

// Claim adds p to the item's claimant set. Duplicate claims are a
// silent no-op. Returns the resulting claimant set.
func (r *Registry) Claim(ctx context.Context, sessionID, itemID string, p ledger.Participant) (*ClaimState, error) {
	return r.mutate(ctx, sessionID, itemID, p, realtime.EventClaimed)
}

// Unclaim removes p from the item's claimant set. Removing an absent
// claim is a silent no-op. Returns the resulting claimant set.
func (r *Registry) Unclaim(ctx context.Context, sessionID, itemID string, p ledger.Participant) (*ClaimState, error) {
	return r.mutate(ctx, sessionID, itemID, p, realtime.EventUnclaimed)
}

func (r *Registry) mutate(ctx context.Context, sessionID, itemID string, p ledger.Participant, evType realtime.EventType) (*ClaimState, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	session, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Expired(r.now()) {
		return nil, ErrSessionExpired
	}
	if session.Status != StatusClaiming {
		return nil, ErrSessionNotClaimable
	}
	if !session.HasParticipant(p) {
		return nil, &ledger.ValidationError{Field: "participant", Message: p.Key() + " is not in this session"}
	}

	item, err := r.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.SessionID != sessionID {
		return nil, &ledger.NotFoundError{Resource: "item", ID: itemID}
	}

	switch evType {
	case realtime.EventClaimed:
		err = r.store.AddClaim(ctx, itemID, p)
	case realtime.EventUnclaimed:
		err = r.store.RemoveClaim(ctx, itemID, p)
	}
	if err != nil {
		return nil, err
	}

	claimants, err := r.store.Claimants(ctx, itemID)
	if err != nil {
		return nil, err
	}

	state := &ClaimState{
		ItemID:         itemID,
		Claimants:      claimants,
		TotalClaims:    len(claimants),
		SharePerPerson: PerPersonShare(item.Price, len(claimants)),
	}

	r.broadcast(session, item, state, evType)
	return state, nil
}

// broadcast publishes the mutation to subscribers. Failures here are a
// notification problem, never the caller's: logged and swallowed.
func (r *Registry) broadcast(session *Session, item *Item, state *ClaimState, evType realtime.EventType) {
	if r.hub == nil {
		return
	}

	summaries := make([]realtime.ClaimantSummary, len(state.Claimants))
	for i, c := range state.Claimants {
		summaries[i] = realtime.ClaimantSummary{
			Participant: c,
			DisplayName: session.rosterName(c),
			Share:       state.SharePerPerson,
		}
	}

	delivered := r.hub.Publish(session.ID, realtime.Event{
		Type:           evType,
		ItemID:         item.ID,
		TotalClaims:    state.TotalClaims,
		SharePerPerson: state.SharePerPerson,
		Claimants:      summaries,
		Timestamp:      r.now(),
	})
	slog.Debug("claim event published",
		"session_id", session.ID, "item_id", item.ID,
		"type", string(evType), "subscribers", delivered)
}

// PerPersonShare is the advisory even split shown in the UI while
// claiming. The exact shares come from reconciliation at finalize.
func PerPersonShare(price decimal.Decimal, claimants int) decimal.Decimal {
	if claimants == 0 {
		return decimal.Zero
	}
	return ledger.RoundCents(price.Div(decimal.NewFromInt(int64(claimants))))
}
