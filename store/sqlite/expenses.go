package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chipin/split-engine/ledger"
)

// CreateExpense persists an expense and its full share set in one
// transaction. The expense is validated before any write; IDs and
// CreatedAt are assigned if absent.
func (s *Store) CreateExpense(ctx context.Context, e *ledger.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertExpense(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateExpense replaces an expense in full: scalars and the complete
// share set. Shares are never patched row by row.
func (s *Store) UpdateExpense(ctx context.Context, e *ledger.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE expenses SET description = ?, amount = ?, payer_id = ?, payer_kind = ?, expense_date = ?
		 WHERE id = ?`,
		e.Description, e.Amount.String(), e.Payer.ID, string(e.Payer.Kind),
		formatTime(e.Date), e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return &ledger.NotFoundError{Resource: "expense", ID: e.ID}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM shares WHERE expense_id = ?", e.ID); err != nil {
		return fmt.Errorf("failed to clear shares: %w", err)
	}
	if err := insertShares(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteExpense removes an expense; its shares cascade.
func (s *Store) DeleteExpense(ctx context.Context, expenseID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", expenseID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if n == 0 {
		return &ledger.NotFoundError{Resource: "expense", ID: expenseID}
	}
	return nil
}

// GetExpense retrieves an expense with its shares.
func (s *Store) GetExpense(ctx context.Context, expenseID string) (*ledger.Expense, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, description, amount, payer_id, payer_kind, expense_date, created_at
		 FROM expenses WHERE id = ?`, expenseID)

	e, err := scanExpense(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Resource: "expense", ID: expenseID}
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadShares(ctx, []*ledger.Expense{e}); err != nil {
		return nil, err
	}
	return e, nil
}

// ListExpensesByGroup returns all of a group's expenses with shares,
// newest first.
func (s *Store) ListExpensesByGroup(ctx context.Context, groupID string) ([]ledger.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, description, amount, payer_id, payer_kind, expense_date, created_at
		 FROM expenses WHERE group_id = ? ORDER BY expense_date DESC, id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var ptrs []*ledger.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		ptrs = append(ptrs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	if err := s.loadShares(ctx, ptrs); err != nil {
		return nil, err
	}

	out := make([]ledger.Expense, len(ptrs))
	for i, e := range ptrs {
		out[i] = *e
	}
	return out, nil
}

// =============================================================================
// INTERNAL
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(r rowScanner) (*ledger.Expense, error) {
	var (
		e                           ledger.Expense
		amount, date, created, kind string
	)
	if err := r.Scan(&e.ID, &e.GroupID, &e.Description, &amount, &e.Payer.ID, &kind, &date, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan expense: %w", err)
	}
	e.Payer.Kind = ledger.Kind(kind)

	var err error
	if e.Amount, err = parseAmount(amount); err != nil {
		return nil, err
	}
	if e.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) loadShares(ctx context.Context, expenses []*ledger.Expense) error {
	for _, e := range expenses {
		rows, err := s.db.QueryContext(ctx,
			`SELECT participant_id, participant_kind, amount FROM shares
			 WHERE expense_id = ? ORDER BY participant_kind, participant_id`, e.ID)
		if err != nil {
			return fmt.Errorf("failed to load shares: %w", err)
		}

		for rows.Next() {
			var (
				sh           ledger.Share
				kind, amount string
			)
			if err := rows.Scan(&sh.Participant.ID, &kind, &amount); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan share: %w", err)
			}
			sh.Participant.Kind = ledger.Kind(kind)
			if sh.Amount, err = parseAmount(amount); err != nil {
				rows.Close()
				return err
			}
			e.Shares = append(e.Shares, sh)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("failed to iterate shares: %w", err)
		}
		rows.Close()
	}
	return nil
}

func insertExpense(ctx context.Context, tx *sql.Tx, e *ledger.Expense) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO expenses (id, group_id, description, amount, payer_id, payer_kind, expense_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.GroupID, e.Description, e.Amount.String(),
		e.Payer.ID, string(e.Payer.Kind), formatTime(e.Date), formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}
	return insertShares(ctx, tx, e)
}

func insertShares(ctx context.Context, tx *sql.Tx, e *ledger.Expense) error {
	for _, sh := range e.Shares {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO shares (expense_id, participant_id, participant_kind, amount)
			 VALUES (?, ?, ?, ?)`,
			e.ID, sh.Participant.ID, string(sh.Participant.Kind), sh.Amount.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert share: %w", err)
		}
	}
	return nil
}
