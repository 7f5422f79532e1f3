package refunds

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

// Repository persists refund orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const refundColumns = `id, invoice_id, refund_amount, reason, reject_reason, status, operator, created_at, updated_at`

// CreateRefund inserts a refund order with its items.
func (r *Repository) CreateRefund(ctx context.Context, ref RefundOrder) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO refund_orders (id, invoice_id, refund_amount, reason, reject_reason, status, operator, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			ref.ID, ref.InvoiceID, ref.RefundAmount, ref.Reason, ref.RejectReason,
			string(ref.Status), ref.Operator, ref.CreatedAt, ref.UpdatedAt)
		if err != nil {
			return fmt.Errorf("refunds: insert refund: %w", err)
		}

		for i, item := range ref.Items {
			_, err := tx.Exec(ctx, `
				INSERT INTO refund_items (refund_id, position, product_id, quantity, restock_quantity, unit_price)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				ref.ID, i, item.ProductID, item.Quantity, item.RestockQuantity, item.UnitPrice)
			if err != nil {
				return fmt.Errorf("refunds: insert item %d: %w", i+1, err)
			}
		}
		return nil
	})
}

// GetRefund loads a refund order with its items.
func (r *Repository) GetRefund(ctx context.Context, id uuid.UUID) (RefundOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+refundColumns+` FROM refund_orders WHERE id = $1`, id)
	ref, err := scanRefund(row)
	if err != nil {
		return RefundOrder{}, err
	}
	ref.Items, err = r.listItems(ctx, id)
	if err != nil {
		return RefundOrder{}, err
	}
	return ref, nil
}

// ListRefunds returns refund orders without items, newest first.
func (r *Repository) ListRefunds(ctx context.Context) ([]RefundOrder, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+refundColumns+` FROM refund_orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refunds []RefundOrder
	for rows.Next() {
		ref, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, ref)
	}
	return refunds, rows.Err()
}

// UpdateRefundStatus performs a guarded status move.
func (r *Repository) UpdateRefundStatus(ctx context.Context, id uuid.UUID, from, to RefundStatus, rejectReason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE refund_orders SET status = $3, reject_reason = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), rejectReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: refund no longer %s", shared.ErrIllegalTransition, from)
	}
	return nil
}

func (r *Repository) listItems(ctx context.Context, refundID uuid.UUID) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_id, quantity, restock_quantity, unit_price
		FROM refund_items
		WHERE refund_id = $1
		ORDER BY position`,
		refundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.RestockQuantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanRefund(row pgx.Row) (RefundOrder, error) {
	var ref RefundOrder
	var status string
	err := row.Scan(&ref.ID, &ref.InvoiceID, &ref.RefundAmount, &ref.Reason, &ref.RejectReason,
		&status, &ref.Operator, &ref.CreatedAt, &ref.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefundOrder{}, fmt.Errorf("%w: refund", shared.ErrNotFound)
		}
		return RefundOrder{}, err
	}
	ref.Status = RefundStatus(status)
	return ref, nil
}
