package sqlite

import (
	"alcyxob/fitness-billing/internal/domain"
	"alcyxob/fitness-billing/internal/repository"
	"context"
	"database/sql"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type invoiceRepository struct {
	db *DB
}

// NewInvoiceRepository creates a MonthlyInvoice repository. UNIQUE(client_id,
// month) turns a duplicate Create into ErrConflict.
func NewInvoiceRepository(db *DB) repository.InvoiceRepository {
	return &invoiceRepository{db: db}
}

const invoiceColumns = `id, client_id, month, due_date, total_balance, plan_costs, penalties,
	excluded_charges, status, paid_at, statement_key, created_at`

func (r *invoiceRepository) Create(ctx context.Context, inv *domain.MonthlyInvoice) (primitive.ObjectID, error) {
	inv.ID = primitive.NewObjectID()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.conn(ctx).ExecContext(ctx, `
		INSERT INTO monthly_invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID.Hex(), inv.ClientID.Hex(), formatTime(inv.Month), formatTime(inv.DueDate),
		inv.TotalBalance, inv.PlanCosts, inv.Penalties, inv.ExcludedCharges,
		string(inv.Status), formatNullTime(inv.PaidAt), inv.StatementKey, formatTime(inv.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return primitive.NilObjectID, repository.ErrConflict
		}
		return primitive.NilObjectID, err
	}
	return inv.ID, nil
}

func (r *invoiceRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.MonthlyInvoice, error) {
	row := r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM monthly_invoices WHERE id = ?`, id.Hex())
	return scanInvoice(row)
}

func (r *invoiceRepository) GetByClientAndMonth(ctx context.Context, clientID primitive.ObjectID, month time.Time) (*domain.MonthlyInvoice, error) {
	row := r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM monthly_invoices WHERE client_id = ? AND month = ?`,
		clientID.Hex(), formatTime(month))
	return scanInvoice(row)
}

func (r *invoiceRepository) ListByClient(ctx context.Context, clientID primitive.ObjectID) ([]domain.MonthlyInvoice, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM monthly_invoices WHERE client_id = ? ORDER BY month DESC`,
		clientID.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := []domain.MonthlyInvoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

func (r *invoiceRepository) MarkPaid(ctx context.Context, id primitive.ObjectID, paidAt time.Time) error {
	q := r.db.conn(ctx)
	res, err := q.ExecContext(ctx, `
		UPDATE monthly_invoices SET status = ?, paid_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(domain.InvoicePaid), formatTime(paidAt), id.Hex(),
		string(domain.InvoiceUnpaid), string(domain.InvoiceOverdue))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = q.QueryRowContext(ctx, `SELECT COUNT(1) FROM monthly_invoices WHERE id = ?`, id.Hex()).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func (r *invoiceRepository) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.conn(ctx).ExecContext(ctx, `
		UPDATE monthly_invoices SET status = ?
		WHERE status = ? AND due_date < ?`,
		string(domain.InvoiceOverdue), string(domain.InvoiceUnpaid), formatTime(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *invoiceRepository) SetStatementKey(ctx context.Context, id primitive.ObjectID, key string) error {
	res, err := r.db.conn(ctx).ExecContext(ctx,
		`UPDATE monthly_invoices SET statement_key = ? WHERE id = ?`, key, id.Hex())
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

type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(s scanner) (*domain.MonthlyInvoice, error) {
	var (
		inv                                  domain.MonthlyInvoice
		id, clientID, month, dueDate, status string
		createdAt                            string
		paidAt                               sql.NullString
	)
	err := s.Scan(&id, &clientID, &month, &dueDate, &inv.TotalBalance, &inv.PlanCosts, &inv.Penalties,
		&inv.ExcludedCharges, &status, &paidAt, &inv.StatementKey, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	inv.Status = domain.InvoiceStatus(status)
	if inv.ID, err = parseID(id); err != nil {
		return nil, err
	}
	if inv.ClientID, err = parseID(clientID); err != nil {
		return nil, err
	}
	if inv.Month, err = parseTime(month); err != nil {
		return nil, err
	}
	if inv.DueDate, err = parseTime(dueDate); err != nil {
		return nil, err
	}
	if inv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if inv.PaidAt, err = parseNullTime(paidAt); err != nil {
		return nil, err
	}
	return &inv, nil
}
