package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists the stock ledger in PostgreSQL.
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

const productColumns = `id, sku, name, current_stock, min_stock, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.CurrentStock, &p.MinStock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("%w: product", shared.ErrNotFound)
		}
		return Product{}, err
	}
	return p, nil
}

// GetProduct loads a single product.
func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

// ListProducts returns the catalog ordered by name.
func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

// ListProductIDs returns every product id.
func (r *Repository) ListProductIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM products ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListLowStock returns products at or below their reorder threshold.
func (r *Repository) ListLowStock(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE current_stock <= min_stock ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

// CreateProduct inserts a new catalog entry.
func (r *Repository) CreateProduct(ctx context.Context, product Product) (Product, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO products (id, sku, name, current_stock, min_stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		product.ID, product.SKU, product.Name, product.CurrentStock, product.MinStock, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return Product{}, fmt.Errorf("ledger: create product: %w", err)
	}
	return product, nil
}

const transactionColumns = `id, product_id, tx_type, quantity, before_stock, after_stock, related_id, related_type, note, operator, created_at`

// ListTransactions lists stock card entries, newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter HistoryFilter) ([]Transaction, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM stock_transactions
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		filter.ProductID, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (t *txRepo) GetProductForUpdate(ctx context.Context, id uuid.UUID) (Product, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
	return scanProduct(row)
}

func (t *txRepo) InsertTransaction(ctx context.Context, tr Transaction) error {
	relatedID := pgtype.UUID{Bytes: tr.RelatedID, Valid: tr.RelatedID != uuid.Nil}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stock_transactions (id, product_id, tx_type, quantity, before_stock, after_stock, related_id, related_type, note, operator, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		tr.ID, tr.ProductID, string(tr.Type), tr.Quantity, tr.BeforeStock, tr.AfterStock,
		relatedID, tr.RelatedType, tr.Note, tr.Operator, tr.CreatedAt)
	if err != nil {
		return fmt.Errorf("ledger: insert transaction: %w", err)
	}
	return nil
}

func (t *txRepo) UpdateProductStock(ctx context.Context, id uuid.UUID, stock int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE products SET current_stock = $2, updated_at = NOW() WHERE id = $1`, id, stock)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product", shared.ErrNotFound)
	}
	return nil
}

func (t *txRepo) ListTransactions(ctx context.Context, productID uuid.UUID) ([]Transaction, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM stock_transactions
		WHERE product_id = $1
		ORDER BY created_at ASC, id ASC`,
		productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectProducts(rows pgx.Rows) ([]Product, error) {
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.CurrentStock, &p.MinStock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func collectTransactions(rows pgx.Rows) ([]Transaction, error) {
	var transactions []Transaction
	for rows.Next() {
		var tr Transaction
		var txType string
		var relatedID pgtype.UUID
		if err := rows.Scan(&tr.ID, &tr.ProductID, &txType, &tr.Quantity, &tr.BeforeStock, &tr.AfterStock,
			&relatedID, &tr.RelatedType, &tr.Note, &tr.Operator, &tr.CreatedAt); err != nil {
			return nil, err
		}
		tr.Type = TransactionType(txType)
		if relatedID.Valid {
			tr.RelatedID = relatedID.Bytes
		}
		transactions = append(transactions, tr)
	}
	return transactions, rows.Err()
}
