package sqlite

import (
	"context"
	"fmt"

	"github.com/chipin/split-engine/ledger"
)

// AddClaim records (itemID, p). INSERT OR IGNORE against the primary
// key makes the duplicate case a no-op: a uniqueness hit from a racing
// caller reads as success, which is the claim protocol's contract.
func (s *Store) AddClaim(ctx context.Context, itemID string, p ledger.Participant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO item_claims (item_id, participant_id, participant_kind)
		 VALUES (?, ?, ?)`,
		itemID, p.ID, string(p.Kind),
	)
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

// RemoveClaim deletes (itemID, p). A zero deleted-row count means the
// claim was already absent, which is equally a success.
func (s *Store) RemoveClaim(ctx context.Context, itemID string, p ledger.Participant) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM item_claims WHERE item_id = ? AND participant_id = ? AND participant_kind = ?`,
		itemID, p.ID, string(p.Kind),
	)
	if err != nil {
		return fmt.Errorf("failed to delete claim: %w", err)
	}
	return nil
}

// Claimants returns the item's current claimant set, ordered by
// participant key.
func (s *Store) Claimants(ctx context.Context, itemID string) ([]ledger.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT participant_id, participant_kind FROM item_claims
		 WHERE item_id = ? ORDER BY participant_kind, participant_id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list claimants: %w", err)
	}
	defer rows.Close()

	var out []ledger.Participant
	for rows.Next() {
		var (
			p    ledger.Participant
			kind string
		)
		if err := rows.Scan(&p.ID, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan claimant: %w", err)
		}
		p.Kind = ledger.Kind(kind)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate claimants: %w", err)
	}
	return out, nil
}

// ClaimsBySession returns claimants per item for the whole session in
// one query: the snapshot finalize reads once.
func (s *Store) ClaimsBySession(ctx context.Context, sessionID string) (map[string][]ledger.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.item_id, c.participant_id, c.participant_kind
		 FROM item_claims c
		 JOIN receipt_items i ON i.id = c.item_id
		 WHERE i.session_id = ?
		 ORDER BY c.item_id, c.participant_kind, c.participant_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session claims: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]ledger.Participant)
	for rows.Next() {
		var (
			itemID string
			p      ledger.Participant
			kind   string
		)
		if err := rows.Scan(&itemID, &p.ID, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan session claim: %w", err)
		}
		p.Kind = ledger.Kind(kind)
		out[itemID] = append(out[itemID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session claims: %w", err)
	}
	return out, nil
}
