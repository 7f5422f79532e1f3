package accounts

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

// Repository persists accounts and payment records in PostgreSQL.
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

const accountColumns = `id, kind, party_id, party_name, reference, total_amount, paid_amount, remaining_amount, due_date, status, operator, created_at, updated_at`

// CreateAccount inserts a new account entry.
func (r *Repository) CreateAccount(ctx context.Context, account Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (id, kind, party_id, party_name, reference, total_amount, paid_amount, remaining_amount, due_date, status, operator, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		account.ID, string(account.Kind), account.PartyID, account.PartyName, account.Reference,
		account.TotalAmount, account.PaidAmount, account.RemainingAmount, account.DueDate,
		string(account.Status), account.Operator, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("accounts: create account: %w", err)
	}
	return nil
}

// GetAccount loads a single account.
func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// ListAccounts returns accounts of one kind, newest first.
func (r *Repository) ListAccounts(ctx context.Context, kind Kind) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE kind = $1 ORDER BY created_at DESC`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

// ListOutstanding returns accounts of one kind with a remaining balance.
func (r *Repository) ListOutstanding(ctx context.Context, kind Kind) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE kind = $1 AND remaining_amount > 0
		ORDER BY due_date`,
		string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

// ListPayments returns an account's settlement history, oldest first.
func (r *Repository) ListPayments(ctx context.Context, accountID uuid.UUID) ([]PaymentRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, amount, method, reference, paid_at, operator, created_at
		FROM payment_records
		WHERE account_id = $1
		ORDER BY created_at ASC, id ASC`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []PaymentRecord
	for rows.Next() {
		var p PaymentRecord
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Amount, &p.Method, &p.Reference, &p.PaidAt, &p.Operator, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (t *txRepo) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (Account, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	return scanAccount(row)
}

func (t *txRepo) InsertPayment(ctx context.Context, payment PaymentRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payment_records (id, account_id, amount, method, reference, paid_at, operator, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		payment.ID, payment.AccountID, payment.Amount, payment.Method, payment.Reference,
		payment.PaidAt, payment.Operator, payment.CreatedAt)
	if err != nil {
		return fmt.Errorf("accounts: insert payment: %w", err)
	}
	return nil
}

func (t *txRepo) UpdateAccountAmounts(ctx context.Context, id uuid.UUID, paid, remaining int64, status Status) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE accounts SET paid_amount = $2, remaining_amount = $3, status = $4, updated_at = NOW()
		WHERE id = $1`,
		id, paid, remaining, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account", shared.ErrNotFound)
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var account Account
	var kind, status string
	err := row.Scan(&account.ID, &kind, &account.PartyID, &account.PartyName, &account.Reference,
		&account.TotalAmount, &account.PaidAmount, &account.RemainingAmount, &account.DueDate,
		&status, &account.Operator, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: account", shared.ErrNotFound)
		}
		return Account{}, err
	}
	account.Kind = Kind(kind)
	account.Status = Status(status)
	return account, nil
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}
