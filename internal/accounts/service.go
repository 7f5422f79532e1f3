package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts account persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (Account, error)
	ListAccounts(ctx context.Context, kind Kind) ([]Account, error)
	ListOutstanding(ctx context.Context, kind Kind) ([]Account, error)
	ListPayments(ctx context.Context, accountID uuid.UUID) ([]PaymentRecord, error)
}

// TxRepository exposes the operations available inside an account transaction.
type TxRepository interface {
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (Account, error)
	InsertPayment(ctx context.Context, payment PaymentRecord) error
	UpdateAccountAmounts(ctx context.Context, id uuid.UUID, paid, remaining int64, status Status) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the receivable/payable settlement ledger: immutable payment
// records against each account, with status derived on every read.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: func() time.Time { return time.Now().UTC() }}
}

// Open registers a new outstanding balance.
func (s *Service) Open(ctx context.Context, input OpenInput) (Account, error) {
	if !validKind(input.Kind) {
		return Account{}, fmt.Errorf("%w: unknown account kind %q", shared.ErrInvalidAmount, input.Kind)
	}
	if input.TotalAmount <= 0 {
		return Account{}, fmt.Errorf("%w: account total must be positive, got %d", shared.ErrInvalidAmount, input.TotalAmount)
	}

	now := s.now()
	account := Account{
		ID:              uuid.New(),
		Kind:            input.Kind,
		PartyID:         input.PartyID,
		PartyName:       input.PartyName,
		Reference:       input.Reference,
		TotalAmount:     input.TotalAmount,
		RemainingAmount: input.TotalAmount,
		DueDate:         input.DueDate,
		Operator:        input.Operator,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	account.Status = DeriveStatus(account, now)
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return Account{}, err
	}

	s.record(ctx, input.Operator, "accounts:open", account.ID.String(), map[string]any{
		"kind":         string(account.Kind),
		"total_amount": account.TotalAmount,
	})
	return account, nil
}

// RecordPayment appends an immutable payment record and moves the balance.
// The overpayment message carries the exact outstanding amount.
func (s *Service) RecordPayment(ctx context.Context, input PaymentInput) (Account, PaymentRecord, error) {
	if input.Amount <= 0 {
		return Account{}, PaymentRecord{}, fmt.Errorf("%w: payment must be positive, got %d", shared.ErrInvalidAmount, input.Amount)
	}

	now := s.now()
	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}

	var account Account
	payment := PaymentRecord{
		ID:        uuid.New(),
		AccountID: input.AccountID,
		Amount:    input.Amount,
		Method:    input.Method,
		Reference: input.Reference,
		PaidAt:    paidAt,
		Operator:  input.Operator,
		CreatedAt: now,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.GetAccountForUpdate(ctx, input.AccountID)
		if err != nil {
			return err
		}
		if input.Amount > account.RemainingAmount {
			return fmt.Errorf("%w: payment %d exceeds remaining balance %d", shared.ErrOverpayment, input.Amount, account.RemainingAmount)
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}
		account.PaidAmount += input.Amount
		account.RemainingAmount -= input.Amount
		account.Status = DeriveStatus(account, now)
		account.UpdatedAt = now
		return tx.UpdateAccountAmounts(ctx, account.ID, account.PaidAmount, account.RemainingAmount, account.Status)
	})
	if err != nil {
		return Account{}, PaymentRecord{}, err
	}

	s.record(ctx, input.Operator, "accounts:payment", account.ID.String(), map[string]any{
		"amount":    input.Amount,
		"method":    input.Method,
		"remaining": account.RemainingAmount,
	})
	return account, payment, nil
}

// Get returns a single account with its status freshly derived.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	account, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return Account{}, err
	}
	account.Status = DeriveStatus(account, s.now())
	return account, nil
}

// List returns accounts of one kind, each with a freshly derived status.
func (s *Service) List(ctx context.Context, kind Kind) ([]Account, error) {
	if !validKind(kind) {
		return nil, fmt.Errorf("%w: unknown account kind %q", shared.ErrInvalidAmount, kind)
	}
	accounts, err := s.repo.ListAccounts(ctx, kind)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range accounts {
		accounts[i].Status = DeriveStatus(accounts[i], now)
	}
	return accounts, nil
}

// Payments lists the immutable settlement history of an account.
func (s *Service) Payments(ctx context.Context, accountID uuid.UUID) ([]PaymentRecord, error) {
	if _, err := s.repo.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, accountID)
}

// Aging groups outstanding balances by days overdue as of asOf.
func (s *Service) Aging(ctx context.Context, kind Kind, asOf time.Time) (AgingBucket, error) {
	if !validKind(kind) {
		return AgingBucket{}, fmt.Errorf("%w: unknown account kind %q", shared.ErrInvalidAmount, kind)
	}
	accounts, err := s.repo.ListOutstanding(ctx, kind)
	if err != nil {
		return AgingBucket{}, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}

	var bucket AgingBucket
	for _, account := range accounts {
		if account.RemainingAmount == 0 {
			continue
		}
		days := int(asOf.Sub(account.DueDate).Hours() / 24)
		switch {
		case days <= 0:
			bucket.Current += account.RemainingAmount
		case days <= 30:
			bucket.Bucket30 += account.RemainingAmount
		case days <= 60:
			bucket.Bucket60 += account.RemainingAmount
		case days <= 90:
			bucket.Bucket90 += account.RemainingAmount
		default:
			bucket.Bucket120 += account.RemainingAmount
		}
	}
	return bucket, nil
}

func (s *Service) record(ctx context.Context, operator, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Operator: operator,
		Action:   action,
		Entity:   "account",
		EntityID: entityID,
		Meta:     meta,
	})
}
