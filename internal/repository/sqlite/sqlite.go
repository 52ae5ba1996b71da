// Package sqlite implements the repository interfaces on an embedded SQLite
// database. It backs single-node deployments, local development and tests.
//
// Timestamps are stored as fixed-width UTC text so that lexical order is
// chronological order. Money is stored as decimal text.
package sqlite

import (
	"alcyxob/fitness-billing/internal/repository"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB wraps the database handle. Repositories built on the same DB share its
// transactions through the context passed to WithTransaction.
type DB struct {
	db *sql.DB
}

var _ repository.Transactor = (*DB)(nil)

// Open opens (and migrates) the database at path. Use ":memory:" for a
// throwaway database.
func Open(path string) (*DB, error) {
	dsn := path + "?_foreign_keys=on&_txlock=immediate&_busy_timeout=5000"
	memory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if !memory {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &DB{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS client_ledgers (
		client_id TEXT PRIMARY KEY,
		current_plan_id TEXT,
		balance TEXT NOT NULL DEFAULT '0',
		monthly_balance TEXT NOT NULL DEFAULT '0',
		last_balance_reset TEXT,
		billed_entries INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS plan_assignments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL REFERENCES client_ledgers(client_id),
		plan_id TEXT NOT NULL,
		plan_start_date TEXT NOT NULL,
		plan_end_date TEXT NOT NULL,
		assigned_at TEXT NOT NULL,
		trainer_id TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_plan_assignments_client ON plan_assignments(client_id);

	-- Append-only: rows are never updated or deleted.
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_id TEXT NOT NULL REFERENCES client_ledgers(client_id),
		entry_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_client_date ON ledger_entries(client_id, entry_date);

	CREATE TABLE IF NOT EXISTS monthly_invoices (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		month TEXT NOT NULL,
		due_date TEXT NOT NULL,
		total_balance TEXT NOT NULL,
		plan_costs TEXT NOT NULL,
		penalties TEXT NOT NULL,
		excluded_charges TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		paid_at TEXT,
		statement_key TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE(client_id, month)
	);
	CREATE INDEX IF NOT EXISTS idx_monthly_invoices_status_due ON monthly_invoices(status, due_date);

	CREATE TABLE IF NOT EXISTS training_plans (
		id TEXT PRIMARY KEY,
		trainer_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS workouts (
		id TEXT PRIMARY KEY,
		training_plan_id TEXT NOT NULL REFERENCES training_plans(id),
		name TEXT NOT NULL,
		day_of_week INTEGER,
		sequence INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_workouts_plan ON workouts(training_plan_id, sequence);
	`
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	// Databases created before the reset marker existed.
	return d.addColumnIfMissing(ctx, "client_ledgers", "billed_entries", "INTEGER NOT NULL DEFAULT 0")
}

func (d *DB) addColumnIfMissing(ctx context.Context, table, column, definition string) error {
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = d.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

type txKey struct{}

// querier is the subset shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the transaction carried by ctx, or the pool.
func (d *DB) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return d.db
}

// WithTransaction runs fn in an immediate transaction. Nested calls join the
// outer transaction.
func (d *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseID(s string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("parse stored id %q: %w", s, err)
	}
	return id, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
