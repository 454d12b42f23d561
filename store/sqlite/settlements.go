package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chipin/split-engine/ledger"
)

// CreateSettlement records a payment (mark paid). ID, PaidAt, and
// CreatedAt are assigned if absent.
func (s *Store) CreateSettlement(ctx context.Context, rec *ledger.Settlement) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rec.PaidAt.IsZero() {
		rec.PaidAt = now
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settlements (id, group_id, from_id, from_kind, to_id, to_kind, amount, paid_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.GroupID,
		rec.From.ID, string(rec.From.Kind), rec.To.ID, string(rec.To.Kind),
		rec.Amount.String(), formatTime(rec.PaidAt), formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

// DeleteSettlement removes a recorded payment (unmark paid).
func (s *Store) DeleteSettlement(ctx context.Context, settlementID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM settlements WHERE id = ?", settlementID)
	if err != nil {
		return fmt.Errorf("failed to delete settlement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if n == 0 {
		return &ledger.NotFoundError{Resource: "settlement", ID: settlementID}
	}
	return nil
}

// ListSettlementsByGroup returns all recorded payments for a group,
// newest first.
func (s *Store) ListSettlementsByGroup(ctx context.Context, groupID string) ([]ledger.Settlement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, from_id, from_kind, to_id, to_kind, amount, paid_at, created_at
		 FROM settlements WHERE group_id = ? ORDER BY paid_at DESC, id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var out []ledger.Settlement
	for rows.Next() {
		var (
			rec                                      ledger.Settlement
			fromKind, toKind, amount, paid, created string
		)
		if err := rows.Scan(&rec.ID, &rec.GroupID,
			&rec.From.ID, &fromKind, &rec.To.ID, &toKind,
			&amount, &paid, &created); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		rec.From.Kind = ledger.Kind(fromKind)
		rec.To.Kind = ledger.Kind(toKind)
		if rec.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		if rec.PaidAt, err = parseTime(paid); err != nil {
			return nil, err
		}
		if rec.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}
	return out, nil
}
