package invoices

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists invoices in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const invoiceColumns = `id, customer_id, subtotal, discount, shipping_fee, other_fees, total_amount, paid_amount, remaining_amount, payment_method, status, cancel_reason, operator, created_at, updated_at`

// GetInvoice loads an invoice with its lines.
func (r *Repository) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		return Invoice{}, err
	}
	inv.Lines, err = r.listLines(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// ListInvoices returns invoices without lines, newest first.
func (r *Repository) ListInvoices(ctx context.Context) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (r *Repository) listLines(ctx context.Context, invoiceID uuid.UUID) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_id, quantity, unit_price
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY position`,
		invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv Invoice) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO invoices (id, customer_id, subtotal, discount, shipping_fee, other_fees, total_amount, paid_amount, remaining_amount, payment_method, status, cancel_reason, operator, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		inv.ID, inv.CustomerID, inv.Subtotal, inv.Discount, inv.ShippingFee, inv.OtherFees,
		inv.TotalAmount, inv.PaidAmount, inv.RemainingAmount, inv.PaymentMethod,
		string(inv.Status), inv.CancelReason, inv.Operator, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("invoices: insert invoice: %w", err)
	}

	for i, line := range inv.Lines {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO invoice_lines (invoice_id, position, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			inv.ID, i, line.ProductID, line.Quantity, line.UnitPrice)
		if err != nil {
			return fmt.Errorf("invoices: insert line %d: %w", i+1, err)
		}
	}
	return nil
}

func (t *txRepo) GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (Invoice, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
	return scanInvoice(row)
}

func (t *txRepo) UpdateInvoiceAmounts(ctx context.Context, id uuid.UUID, paid, remaining int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE invoices SET paid_amount = $2, remaining_amount = $3, updated_at = NOW()
		WHERE id = $1`,
		id, paid, remaining)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: invoice", shared.ErrNotFound)
	}
	return nil
}

func (t *txRepo) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, from, to InvoiceStatus, reason string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE invoices SET status = $3, cancel_reason = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: invoice no longer %s", shared.ErrIllegalTransition, from)
	}
	return nil
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.CustomerID, &inv.Subtotal, &inv.Discount, &inv.ShippingFee, &inv.OtherFees,
		&inv.TotalAmount, &inv.PaidAmount, &inv.RemainingAmount, &inv.PaymentMethod,
		&status, &inv.CancelReason, &inv.Operator, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("%w: invoice", shared.ErrNotFound)
		}
		return Invoice{}, err
	}
	inv.Status = InvoiceStatus(status)
	return inv, nil
}
