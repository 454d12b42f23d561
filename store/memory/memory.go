// Package memory provides an in-memory receipt.Store for tests and
// development. Mirrors the sqlite implementation's semantics, claim
// idempotency included, without a database.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/chipin/split-engine/ledger"
	"github.com/chipin/split-engine/receipt"
)

var _ receipt.Store = (*Store)(nil)

// Store holds everything behind one mutex. Claim mutations from
// concurrent goroutines serialize here the way the sqlite primary key
// serializes them in production.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*receipt.Session
	items    map[string]*receipt.Item       // by item id
	byOrder  map[string][]string            // session id -> item ids in position order
	claims   map[string]map[string]ledger.Participant // item id -> participant key -> participant
	expenses map[string]*ledger.Expense
}

// New creates an empty store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*receipt.Session),
		items:    make(map[string]*receipt.Item),
		byOrder:  make(map[string][]string),
		claims:   make(map[string]map[string]ledger.Participant),
		expenses: make(map[string]*ledger.Expense),
	}
}

func (m *Store) CreateSession(_ context.Context, s *receipt.Session, items []receipt.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	cp := *s
	cp.Participants = append([]receipt.RosterEntry(nil), s.Participants...)
	m.sessions[s.ID] = &cp

	for i := range items {
		it := items[i]
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		it.SessionID = s.ID
		it.Position = i
		items[i] = it
		itCopy := it
		m.items[it.ID] = &itCopy
		m.byOrder[s.ID] = append(m.byOrder[s.ID], it.ID)
	}
	return nil
}

func (m *Store) GetSession(_ context.Context, sessionID string) (*receipt.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, &ledger.NotFoundError{Resource: "session", ID: sessionID}
	}
	cp := *s
	cp.Participants = append([]receipt.RosterEntry(nil), s.Participants...)
	if s.ReopenedBy != nil {
		r := *s.ReopenedBy
		cp.ReopenedBy = &r
	}
	return &cp, nil
}

func (m *Store) ListItems(_ context.Context, sessionID string) ([]receipt.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []receipt.Item
	for _, id := range m.byOrder[sessionID] {
		out = append(out, *m.items[id])
	}
	return out, nil
}

func (m *Store) GetItem(_ context.Context, itemID string) (*receipt.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[itemID]
	if !ok {
		return nil, &ledger.NotFoundError{Resource: "item", ID: itemID}
	}
	cp := *it
	return &cp, nil
}

func (m *Store) AddClaim(_ context.Context, itemID string, p ledger.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.claims[itemID]
	if !ok {
		set = make(map[string]ledger.Participant)
		m.claims[itemID] = set
	}
	set[p.Key()] = p // duplicate collapses
	return nil
}

func (m *Store) RemoveClaim(_ context.Context, itemID string, p ledger.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims[itemID], p.Key()) // absent is a no-op
	return nil
}

func (m *Store) Claimants(_ context.Context, itemID string) ([]ledger.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedClaimants(m.claims[itemID]), nil
}

func (m *Store) ClaimsBySession(_ context.Context, sessionID string) (map[string][]ledger.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]ledger.Participant)
	for _, itemID := range m.byOrder[sessionID] {
		if set := m.claims[itemID]; len(set) > 0 {
			out[itemID] = sortedClaimants(set)
		}
	}
	return out, nil
}

func (m *Store) CompleteSession(_ context.Context, sessionID string, expense *ledger.Expense) (bool, error) {
	if err := expense.Validate(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return false, &ledger.NotFoundError{Resource: "session", ID: sessionID}
	}

	// The stored link wins over the caller's snapshot, same as the
	// sqlite transaction. Racing finalizes converge on one expense.
	if s.ExpenseID != "" {
		expense.ID = s.ExpenseID
	} else if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	_, existed := m.expenses[expense.ID]

	cp := *expense
	cp.Shares = append([]ledger.Share(nil), expense.Shares...)
	m.expenses[expense.ID] = &cp

	s.Status = receipt.StatusCompleted
	s.ExpenseID = expense.ID
	return !existed, nil
}

func (m *Store) ReopenSession(_ context.Context, sessionID string, by ledger.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return &ledger.NotFoundError{Resource: "session", ID: sessionID}
	}
	s.Status = receipt.StatusClaiming
	r := by
	s.ReopenedBy = &r
	return nil
}

// GetExpense returns an expense written by CompleteSession. Test helper.
func (m *Store) GetExpense(_ context.Context, expenseID string) (*ledger.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.expenses[expenseID]
	if !ok {
		return nil, &ledger.NotFoundError{Resource: "expense", ID: expenseID}
	}
	cp := *e
	cp.Shares = append([]ledger.Share(nil), e.Shares...)
	return &cp, nil
}

func sortedClaimants(set map[string]ledger.Participant) []ledger.Participant {
	out := make([]ledger.Participant, 0, len(set))
	for _, p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
