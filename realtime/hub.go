/*
Package realtime fans out claim-state changes to session subscribers.

PURPOSE:
  An injected, in-process broadcaster: session id → subscriber set.
  Claim and unclaim mutations publish events here; the SSE endpoint
  subscribes on behalf of connected clients.

DELIVERY CONTRACT:
  At-least-once, best-effort, fire-and-forget relative to the
  triggering request. A claim must still succeed even if nobody is
  subscribed or a subscriber is too slow: the broadcaster is a
  notification optimization, not a correctness mechanism. Event
  payloads carry a computed snapshot purely as a UI hint; clients must
  re-fetch full claim state on any event rather than trusting it.

LIFECYCLE:
  Created once at process start and passed to whoever needs it.
  Subscriptions are pruned on Close so a disconnected client never
  leaks a dead channel.

LIMITATION:
  A single-process fan-out does not scale past one node. Horizontal
  scaling needs a pub/sub layer behind the same interface.
*/
package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chipin/split-engine/ledger"
)

// EventType discriminates claim-state change events.
type EventType string

const (
	EventClaimed   EventType = "claimed"
	EventUnclaimed EventType = "unclaimed"
)

// ClaimantSummary is the advisory per-claimant view carried on events.
type ClaimantSummary struct {
	Participant ledger.Participant `json:"participant"`
	DisplayName string             `json:"display_name"`
	Share       decimal.Decimal    `json:"share"`
}

// Event is the payload pushed on every claim/unclaim. Its numbers are a
// snapshot taken at publish time and may trail the persisted state;
// receivers treat them as advisory.
type Event struct {
	Type           EventType         `json:"type"`
	ItemID         string            `json:"item_id"`
	TotalClaims    int               `json:"total_claims"`
	SharePerPerson decimal.Decimal   `json:"share_per_person"`
	Claimants      []ClaimantSummary `json:"claimants"`
	Timestamp      time.Time         `json:"timestamp"`
}

// =============================================================================
// HUB
// =============================================================================

const subscriberBuffer = 16

// Hub is the session → subscriber registry. Safe for concurrent use.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// Subscription is one subscriber's event feed. Receive from C; call
// Close exactly once when done (Close is idempotent).
type Subscription struct {
	C chan Event

	hub       *Hub
	sessionID string
	once      sync.Once
}

// NewHub creates an empty broadcaster.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber for the session's events.
func (h *Hub) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{
		C:         make(chan Event, subscriberBuffer),
		hub:       h,
		sessionID: sessionID,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Close removes the subscription from the fan-out set. Events already
// buffered remain readable; no further events arrive.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[s.sessionID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.sessionID)
			}
		}
	})
}

// Publish delivers ev to every current subscriber of the session.
// Non-blocking: a subscriber whose buffer is full misses this event
// (it will re-sync on its next one). Returns the delivered count.
func (h *Hub) Publish(sessionID string, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[sessionID] {
		select {
		case sub.C <- ev:
			delivered++
		default:
			slog.Warn("realtime: dropping event for slow subscriber",
				"session_id", sessionID, "item_id", ev.ItemID)
		}
	}
	return delivered
}

// SubscriberCount returns the number of active subscribers for a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
