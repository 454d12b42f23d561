/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Persists expenses (with their share sets), settlements, and receipt
  sessions (items, roster, claims). In production the same patterns
  apply to PostgreSQL; only minor SQL dialect differences.

KEY TABLES:
  expenses / shares:       an expense and its full share set
  settlements:             recorded payments (mark-paid)
  receipt_sessions:        session scalars + state machine fields
  receipt_items:           immutable line items
  session_participants:    the roster fixed at session creation
  item_claims:             the claim registry

CLAIM IDEMPOTENCY:
  item_claims carries a (item_id, participant_id, participant_kind)
  primary key. AddClaim uses INSERT OR IGNORE and RemoveClaim ignores
  the deleted-row count, so concurrent duplicate claims collapse
  instead of erroring. This is the storage-layer half of the claim
  protocol's contract.

MONEY:
  Amounts are stored as TEXT and parsed with shopspring/decimal.
  Floats never touch the database.

WAL MODE:
  The database is opened with WAL so readers don't block during claim
  bursts; a busy timeout absorbs writer contention.

USAGE:
  store, err := sqlite.New("./data/chipin.db")  // ":memory:" for tests
  defer store.Close()
*/
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/chipin/split-engine/receipt"
)

// Ensure Store satisfies the receipt storage surface.
var _ receipt.Store = (*Store)(nil)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a store at the given database path and migrates the
// schema. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty
	// database; pin the pool to one connection so the schema survives.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		payer_id TEXT NOT NULL,
		payer_kind TEXT NOT NULL,
		expense_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_expenses_group ON expenses(group_id);

	-- Shares are only ever written as a full set with their expense.
	CREATE TABLE IF NOT EXISTS shares (
		expense_id TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		participant_kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		PRIMARY KEY (expense_id, participant_id, participant_kind),
		FOREIGN KEY (expense_id) REFERENCES expenses(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS settlements (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		from_id TEXT NOT NULL,
		from_kind TEXT NOT NULL,
		to_id TEXT NOT NULL,
		to_kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_settlements_group ON settlements(group_id);

	CREATE TABLE IF NOT EXISTS receipt_sessions (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		merchant TEXT NOT NULL,
		receipt_date TEXT NOT NULL,
		subtotal TEXT NOT NULL,
		tax TEXT NOT NULL,
		tip TEXT NOT NULL,
		total TEXT NOT NULL,
		status TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		created_by_id TEXT NOT NULL,
		created_by_kind TEXT NOT NULL,
		reopened_by_id TEXT,
		reopened_by_kind TEXT,
		expense_id TEXT,
		created_at TEXT NOT NULL,
		FOREIGN KEY (expense_id) REFERENCES expenses(id) ON DELETE SET NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_group ON receipt_sessions(group_id);

	-- Items are immutable once created.
	CREATE TABLE IF NOT EXISTS receipt_items (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		position INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES receipt_sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_items_session ON receipt_items(session_id);

	CREATE TABLE IF NOT EXISTS session_participants (
		session_id TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		participant_kind TEXT NOT NULL,
		display_name TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (session_id, participant_id, participant_kind),
		FOREIGN KEY (session_id) REFERENCES receipt_sessions(id) ON DELETE CASCADE
	);

	-- CRITICAL: the primary key makes claims idempotent at the storage
	-- layer. Concurrent duplicate claims collapse; see AddClaim.
	CREATE TABLE IF NOT EXISTS item_claims (
		item_id TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		participant_kind TEXT NOT NULL,
		PRIMARY KEY (item_id, participant_id, participant_kind),
		FOREIGN KEY (item_id) REFERENCES receipt_items(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_claims_item ON item_claims(item_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse stored amount %q: %w", s, err)
	}
	return d, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s, err)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
