package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chipin/split-engine/ledger"
	"github.com/chipin/split-engine/receipt"
)

// CreateSession persists a session, its items, and its roster in one
// transaction. IDs and item ordering are assigned here.
func (s *Store) CreateSession(ctx context.Context, sess *receipt.Session, items []receipt.Item) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO receipt_sessions
		 (id, group_id, merchant, receipt_date, subtotal, tax, tip, total,
		  status, expires_at, created_by_id, created_by_kind, expense_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
		sess.ID, sess.GroupID, sess.Merchant, formatTime(sess.Date),
		sess.Subtotal.String(), sess.Tax.String(), sess.Tip.String(), sess.Total.String(),
		string(sess.Status), formatTime(sess.ExpiresAt),
		sess.CreatedBy.ID, string(sess.CreatedBy.Kind), formatTime(sess.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	for i := range sess.Participants {
		r := &sess.Participants[i]
		_, err = tx.ExecContext(ctx,
			`INSERT INTO session_participants (session_id, participant_id, participant_kind, display_name, position)
			 VALUES (?, ?, ?, ?, ?)`,
			sess.ID, r.Participant.ID, string(r.Participant.Kind), r.DisplayName, r.Position,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session participant: %w", err)
		}
	}

	for i := range items {
		it := &items[i]
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		it.SessionID = sess.ID
		it.Position = i
		_, err = tx.ExecContext(ctx,
			`INSERT INTO receipt_items (id, session_id, name, price, position)
			 VALUES (?, ?, ?, ?, ?)`,
			it.ID, sess.ID, it.Name, it.Price.String(), it.Position,
		)
		if err != nil {
			return fmt.Errorf("failed to insert receipt item: %w", err)
		}
	}

	return tx.Commit()
}

// GetSession retrieves a session with its roster loaded.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*receipt.Session, error) {
	var (
		sess                                       receipt.Session
		subtotal, tax, tip, total                  string
		date, expires, created, status             string
		createdKind                                string
		reopenedID, reopenedKind, expenseID        sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, merchant, receipt_date, subtotal, tax, tip, total,
		        status, expires_at, created_by_id, created_by_kind,
		        reopened_by_id, reopened_by_kind, expense_id, created_at
		 FROM receipt_sessions WHERE id = ?`, sessionID,
	).Scan(&sess.ID, &sess.GroupID, &sess.Merchant, &date, &subtotal, &tax, &tip, &total,
		&status, &expires, &sess.CreatedBy.ID, &createdKind,
		&reopenedID, &reopenedKind, &expenseID, &created)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Resource: "session", ID: sessionID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	sess.Status = receipt.Status(status)
	sess.CreatedBy.Kind = ledger.Kind(createdKind)
	if reopenedID.Valid {
		sess.ReopenedBy = &ledger.Participant{ID: reopenedID.String, Kind: ledger.Kind(reopenedKind.String)}
	}
	if expenseID.Valid {
		sess.ExpenseID = expenseID.String
	}

	if sess.Subtotal, err = parseAmount(subtotal); err != nil {
		return nil, err
	}
	if sess.Tax, err = parseAmount(tax); err != nil {
		return nil, err
	}
	if sess.Tip, err = parseAmount(tip); err != nil {
		return nil, err
	}
	if sess.Total, err = parseAmount(total); err != nil {
		return nil, err
	}
	if sess.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	if sess.ExpiresAt, err = parseTime(expires); err != nil {
		return nil, err
	}
	if sess.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT participant_id, participant_kind, display_name, position
		 FROM session_participants WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r    receipt.RosterEntry
			kind string
		)
		if err := rows.Scan(&r.Participant.ID, &kind, &r.DisplayName, &r.Position); err != nil {
			return nil, fmt.Errorf("failed to scan session participant: %w", err)
		}
		r.Participant.Kind = ledger.Kind(kind)
		sess.Participants = append(sess.Participants, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session participants: %w", err)
	}

	return &sess, nil
}

// ListItems returns the session's items ordered by position.
func (s *Store) ListItems(ctx context.Context, sessionID string) ([]receipt.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, name, price, position
		 FROM receipt_items WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []receipt.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

// GetItem returns one item.
func (s *Store) GetItem(ctx context.Context, itemID string) (*receipt.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, name, price, position FROM receipt_items WHERE id = ?`, itemID)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Resource: "item", ID: itemID}
	}
	return it, err
}

// CompleteSession atomically upserts the reconciled expense, replaces
// its share set, links it to the session, and marks the session
// completed. The session row, not the caller's snapshot, decides
// which expense id to write: two finalizes racing past the same
// snapshot must land on one expense, never strand an orphan row.
// Returns whether a new expense was created.
func (s *Store) CompleteSession(ctx context.Context, sessionID string, expense *ledger.Expense) (bool, error) {
	if err := expense.Validate(); err != nil {
		return false, err
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var linked sql.NullString
	err = tx.QueryRowContext(ctx,
		"SELECT expense_id FROM receipt_sessions WHERE id = ?", sessionID).Scan(&linked)
	if err == sql.ErrNoRows {
		return false, &ledger.NotFoundError{Resource: "session", ID: sessionID}
	}
	if err != nil {
		return false, fmt.Errorf("failed to read session expense link: %w", err)
	}
	if linked.Valid && linked.String != "" {
		expense.ID = linked.String
	} else if expense.ID == "" {
		expense.ID = uuid.New().String()
	}

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM expenses WHERE id = ?", expense.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check expense existence: %w", err)
	}

	if exists == 0 {
		if err := insertExpense(ctx, tx, expense); err != nil {
			return false, err
		}
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE expenses SET description = ?, amount = ?, payer_id = ?, payer_kind = ?, expense_date = ?
			 WHERE id = ?`,
			expense.Description, expense.Amount.String(),
			expense.Payer.ID, string(expense.Payer.Kind), formatTime(expense.Date), expense.ID,
		)
		if err != nil {
			return false, fmt.Errorf("failed to update expense: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM shares WHERE expense_id = ?", expense.ID); err != nil {
			return false, fmt.Errorf("failed to clear shares: %w", err)
		}
		if err := insertShares(ctx, tx, expense); err != nil {
			return false, err
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE receipt_sessions SET status = ?, expense_id = ? WHERE id = ?`,
		string(receipt.StatusCompleted), expense.ID, sessionID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return exists == 0, nil
}

// ReopenSession transitions a completed session back to claiming and
// records the reopener for the next finalize's authorization check.
func (s *Store) ReopenSession(ctx context.Context, sessionID string, by ledger.Participant) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE receipt_sessions SET status = ?, reopened_by_id = ?, reopened_by_kind = ?
		 WHERE id = ?`,
		string(receipt.StatusClaiming), by.ID, string(by.Kind), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to reopen session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return &ledger.NotFoundError{Resource: "session", ID: sessionID}
	}
	return nil
}

// ListSessionsByGroup returns session headers for a group, newest
// first, without rosters.
func (s *Store) ListSessionsByGroup(ctx context.Context, groupID string) ([]receipt.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM receipt_sessions WHERE group_id = ? ORDER BY created_at DESC, id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	out := make([]receipt.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, nil
}

func scanItem(r rowScanner) (*receipt.Item, error) {
	var (
		it    receipt.Item
		price string
	)
	if err := r.Scan(&it.ID, &it.SessionID, &it.Name, &price, &it.Position); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}
	var err error
	if it.Price, err = parseAmount(price); err != nil {
		return nil, err
	}
	return &it, nil
}
