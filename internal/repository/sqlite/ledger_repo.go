package sqlite

import (
	"alcyxob/fitness-billing/internal/domain"
	"alcyxob/fitness-billing/internal/repository"
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ledgerRepository struct {
	db *DB
}

// NewLedgerRepository creates a ClientLedger repository. Multi-statement
// updates run in an immediate transaction, which holds the write lock for
// their whole duration.
func NewLedgerRepository(db *DB) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) EnsureLedger(ctx context.Context, clientID primitive.ObjectID) error {
	now := formatTime(time.Now())
	_, err := r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO client_ledgers (client_id, balance, monthly_balance, created_at, updated_at)
		VALUES (?, '0', '0', ?, ?)
		ON CONFLICT(client_id) DO NOTHING`,
		clientID.Hex(), now, now)
	return err
}

// GetByClientID reads the header and both histories in one transaction so
// that BilledEntries indexes the history it was counted against.
func (r *ledgerRepository) GetByClientID(ctx context.Context, clientID primitive.ObjectID) (*domain.ClientLedger, error) {
	var ledger *domain.ClientLedger
	err := r.db.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		ledger, err = r.readLedger(ctx, clientID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

func (r *ledgerRepository) readLedger(ctx context.Context, clientID primitive.ObjectID) (*domain.ClientLedger, error) {
	q := r.db.conn(ctx)
	ledger := domain.ClientLedger{ClientID: clientID}

	var (
		currentPlan          sql.NullString
		lastReset            sql.NullString
		createdAt, updatedAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT current_plan_id, balance, monthly_balance, last_balance_reset, billed_entries, created_at, updated_at
		FROM client_ledgers WHERE client_id = ?`, clientID.Hex()).
		Scan(&currentPlan, &ledger.Balance, &ledger.MonthlyBalance, &lastReset, &ledger.BilledEntries, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if currentPlan.Valid {
		id, err := parseID(currentPlan.String)
		if err != nil {
			return nil, err
		}
		ledger.CurrentPlanID = &id
	}
	if ledger.LastBalanceReset, err = parseNullTime(lastReset); err != nil {
		return nil, err
	}
	if ledger.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if ledger.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	if ledger.PlanHistory, err = r.loadPlanHistory(ctx, q, clientID); err != nil {
		return nil, err
	}
	if ledger.ChargeHistory, err = r.loadChargeHistory(ctx, q, clientID); err != nil {
		return nil, err
	}
	return &ledger, nil
}

func (r *ledgerRepository) loadPlanHistory(ctx context.Context, q querier, clientID primitive.ObjectID) ([]domain.PlanAssignment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT plan_id, plan_start_date, plan_end_date, assigned_at, trainer_id
		FROM plan_assignments WHERE client_id = ? ORDER BY id`, clientID.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []domain.PlanAssignment{}
	for rows.Next() {
		var planID, start, end, assignedAt, trainerID string
		if err := rows.Scan(&planID, &start, &end, &assignedAt, &trainerID); err != nil {
			return nil, err
		}
		var p domain.PlanAssignment
		if p.PlanID, err = parseID(planID); err != nil {
			return nil, err
		}
		if p.TrainerID, err = parseID(trainerID); err != nil {
			return nil, err
		}
		if p.PlanStartDate, err = parseTime(start); err != nil {
			return nil, err
		}
		if p.PlanEndDate, err = parseTime(end); err != nil {
			return nil, err
		}
		if p.AssignedAt, err = parseTime(assignedAt); err != nil {
			return nil, err
		}
		history = append(history, p)
	}
	return history, rows.Err()
}

func (r *ledgerRepository) loadChargeHistory(ctx context.Context, q querier, clientID primitive.ObjectID) ([]domain.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT entry_date, amount, reason, recorded_at
		FROM ledger_entries WHERE client_id = ? ORDER BY id`, clientID.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.LedgerEntry{}
	for rows.Next() {
		var (
			e                domain.LedgerEntry
			date, recordedAt string
			reason           string
		)
		if err := rows.Scan(&date, &e.Amount, &reason, &recordedAt); err != nil {
			return nil, err
		}
		e.Reason = domain.ChargeReason(reason)
		if e.Date, err = parseTime(date); err != nil {
			return nil, err
		}
		if e.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *ledgerRepository) AppendPlanAssignment(ctx context.Context, clientID primitive.ObjectID, a domain.PlanAssignment) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		if err := r.touch(ctx, clientID); err != nil {
			return err
		}
		_, err := r.db.conn(ctx).ExecContext(ctx, `
			INSERT INTO plan_assignments (client_id, plan_id, plan_start_date, plan_end_date, assigned_at, trainer_id)
			VALUES (?, ?, ?, ?, ?, ?)`,
			clientID.Hex(), a.PlanID.Hex(), formatTime(a.PlanStartDate), formatTime(a.PlanEndDate),
			formatTime(a.AssignedAt), a.TrainerID.Hex())
		return err
	})
}

func (r *ledgerRepository) AppendCharge(ctx context.Context, clientID primitive.ObjectID, entry domain.LedgerEntry) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		q := r.db.conn(ctx)

		var balance, monthly decimal.Decimal
		err := q.QueryRowContext(ctx,
			`SELECT balance, monthly_balance FROM client_ledgers WHERE client_id = ?`, clientID.Hex()).
			Scan(&balance, &monthly)
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		if err != nil {
			return err
		}

		if _, err := q.ExecContext(ctx, `
			INSERT INTO ledger_entries (client_id, entry_date, amount, reason, recorded_at)
			VALUES (?, ?, ?, ?, ?)`,
			clientID.Hex(), formatTime(entry.Date), entry.Amount, string(entry.Reason), formatTime(entry.RecordedAt)); err != nil {
			return err
		}

		_, err = q.ExecContext(ctx, `
			UPDATE client_ledgers SET balance = ?, monthly_balance = ?, updated_at = ?
			WHERE client_id = ?`,
			balance.Add(entry.Amount), monthly.Add(entry.Amount), formatTime(time.Now()), clientID.Hex())
		return err
	})
}

func (r *ledgerRepository) SetCurrentPlan(ctx context.Context, clientID, planID primitive.ObjectID) error {
	return r.exec(ctx, `UPDATE client_ledgers SET current_plan_id = ?, updated_at = ? WHERE client_id = ?`,
		planID.Hex(), formatTime(time.Now()), clientID.Hex())
}

func (r *ledgerRepository) ClearCurrentPlan(ctx context.Context, clientID, expected primitive.ObjectID) (bool, error) {
	res, err := r.db.conn(ctx).ExecContext(ctx, `
		UPDATE client_ledgers SET current_plan_id = NULL, updated_at = ?
		WHERE client_id = ? AND current_plan_id = ?`,
		formatTime(time.Now()), clientID.Hex(), expected.Hex())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ClearBalance marks every entry present at the time of the write as billed.
// The count is taken inside the UPDATE, so an entry committed later stays
// unbilled whatever its RecordedAt says.
func (r *ledgerRepository) ClearBalance(ctx context.Context, clientID primitive.ObjectID, at time.Time) error {
	return r.exec(ctx, `
		UPDATE client_ledgers SET balance = '0', monthly_balance = '0', last_balance_reset = ?,
			billed_entries = (SELECT COUNT(*) FROM ledger_entries WHERE client_id = client_ledgers.client_id),
			updated_at = ?
		WHERE client_id = ?`,
		formatTime(at), formatTime(time.Now()), clientID.Hex())
}

// CorrectBalance compares numerically in Go; the stored text of an equal
// amount may differ ("10.5" and "10.50").
func (r *ledgerRepository) CorrectBalance(ctx context.Context, clientID primitive.ObjectID, expectedBalance, expectedMonthly decimal.Decimal, expectedBilled int, corrected decimal.Decimal) (bool, error) {
	applied := false
	err := r.db.WithTransaction(ctx, func(ctx context.Context) error {
		q := r.db.conn(ctx)

		var (
			balance, monthly decimal.Decimal
			billed           int
		)
		err := q.QueryRowContext(ctx,
			`SELECT balance, monthly_balance, billed_entries FROM client_ledgers WHERE client_id = ?`, clientID.Hex()).
			Scan(&balance, &monthly, &billed)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		// A reset since the caller's read moves the marker even when both
		// totals happen to match.
		if !balance.Equal(expectedBalance) || !monthly.Equal(expectedMonthly) || billed != expectedBilled {
			return nil
		}

		_, err = q.ExecContext(ctx, `
			UPDATE client_ledgers SET balance = ?, monthly_balance = ?, updated_at = ?
			WHERE client_id = ?`,
			corrected, corrected, formatTime(time.Now()), clientID.Hex())
		applied = err == nil
		return err
	})
	return applied, err
}

func (r *ledgerRepository) ListClientIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, `SELECT client_id FROM client_ledgers ORDER BY client_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []primitive.ObjectID{}
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, err
		}
		id, err := parseID(hex)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// touch bumps updated_at and reports ErrNotFound for an unknown client.
func (r *ledgerRepository) touch(ctx context.Context, clientID primitive.ObjectID) error {
	return r.exec(ctx, `UPDATE client_ledgers SET updated_at = ? WHERE client_id = ?`,
		formatTime(time.Now()), clientID.Hex())
}

func (r *ledgerRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
