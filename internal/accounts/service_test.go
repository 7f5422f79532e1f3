package accounts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryAccountRepo struct {
	accounts map[uuid.UUID]Account
	payments map[uuid.UUID][]PaymentRecord
}

func newMemoryAccountRepo() *memoryAccountRepo {
	return &memoryAccountRepo{
		accounts: make(map[uuid.UUID]Account),
		payments: make(map[uuid.UUID][]PaymentRecord),
	}
}

// WithTx snapshots state so a failing callback leaves nothing behind.
func (m *memoryAccountRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	accounts := make(map[uuid.UUID]Account, len(m.accounts))
	for id, account := range m.accounts {
		accounts[id] = account
	}
	payments := make(map[uuid.UUID][]PaymentRecord, len(m.payments))
	for id, records := range m.payments {
		payments[id] = append([]PaymentRecord(nil), records...)
	}
	if err := fn(ctx, (*memoryAccountTx)(m)); err != nil {
		m.accounts = accounts
		m.payments = payments
		return err
	}
	return nil
}

func (m *memoryAccountRepo) CreateAccount(_ context.Context, account Account) error {
	m.accounts[account.ID] = account
	return nil
}

func (m *memoryAccountRepo) GetAccount(_ context.Context, id uuid.UUID) (Account, error) {
	account, ok := m.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("%w: account", shared.ErrNotFound)
	}
	return account, nil
}

func (m *memoryAccountRepo) ListAccounts(_ context.Context, kind Kind) ([]Account, error) {
	var out []Account
	for _, account := range m.accounts {
		if account.Kind == kind {
			out = append(out, account)
		}
	}
	return out, nil
}

func (m *memoryAccountRepo) ListOutstanding(_ context.Context, kind Kind) ([]Account, error) {
	var out []Account
	for _, account := range m.accounts {
		if account.Kind == kind && account.RemainingAmount > 0 {
			out = append(out, account)
		}
	}
	return out, nil
}

func (m *memoryAccountRepo) ListPayments(_ context.Context, accountID uuid.UUID) ([]PaymentRecord, error) {
	return m.payments[accountID], nil
}

type memoryAccountTx memoryAccountRepo

func (m *memoryAccountTx) GetAccountForUpdate(_ context.Context, id uuid.UUID) (Account, error) {
	account, ok := m.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("%w: account", shared.ErrNotFound)
	}
	return account, nil
}

func (m *memoryAccountTx) InsertPayment(_ context.Context, payment PaymentRecord) error {
	m.payments[payment.AccountID] = append(m.payments[payment.AccountID], payment)
	return nil
}

func (m *memoryAccountTx) UpdateAccountAmounts(_ context.Context, id uuid.UUID, paid, remaining int64, status Status) error {
	account, ok := m.accounts[id]
	if !ok {
		return fmt.Errorf("%w: account", shared.ErrNotFound)
	}
	account.PaidAmount = paid
	account.RemainingAmount = remaining
	account.Status = status
	m.accounts[id] = account
	return nil
}

func newAccountService(t *testing.T) (*Service, *memoryAccountRepo) {
	t.Helper()
	repo := newMemoryAccountRepo()
	return NewService(repo, nil), repo
}

func TestOpenValidates(t *testing.T) {
	svc, _ := newAccountService(t)
	ctx := context.Background()

	_, err := svc.Open(ctx, OpenInput{Kind: Kind("loan"), TotalAmount: 100})
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = svc.Open(ctx, OpenInput{Kind: KindReceivable, TotalAmount: 0})
	require.ErrorIs(t, err, shared.ErrInvalidAmount)
}

func TestOverdueThenPartialThenPaid(t *testing.T) {
	svc, _ := newAccountService(t)
	ctx := context.Background()

	account, err := svc.Open(ctx, OpenInput{
		Kind:        KindReceivable,
		PartyName:   "Acme",
		TotalAmount: 1000,
		DueDate:     time.Now().UTC().AddDate(0, 0, -10),
	})
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, account.Status)

	got, err := svc.Get(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, got.Status)
	require.Equal(t, 10, OverdueDays(got, time.Now().UTC()))

	got, _, err = svc.RecordPayment(ctx, PaymentInput{AccountID: account.ID, Amount: 400, Method: "bank"})
	require.NoError(t, err)
	require.Equal(t, StatusPartial, got.Status)
	require.Equal(t, int64(600), got.RemainingAmount)

	got, _, err = svc.RecordPayment(ctx, PaymentInput{AccountID: account.ID, Amount: 600, Method: "bank"})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, got.Status)
	require.Equal(t, int64(0), got.RemainingAmount)
	require.Equal(t, got.TotalAmount, got.PaidAmount)

	payments, err := svc.Payments(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	var sum int64
	for _, p := range payments {
		sum += p.Amount
	}
	require.Equal(t, got.PaidAmount, sum, "payment records add up to the paid amount")
}

func TestRecordPaymentGuards(t *testing.T) {
	svc, repo := newAccountService(t)
	ctx := context.Background()

	account, err := svc.Open(ctx, OpenInput{Kind: KindReceivable, TotalAmount: 1000})
	require.NoError(t, err)

	_, _, err = svc.RecordPayment(ctx, PaymentInput{AccountID: account.ID, Amount: 0})
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, _, err = svc.RecordPayment(ctx, PaymentInput{AccountID: account.ID, Amount: 1500})
	require.ErrorIs(t, err, shared.ErrOverpayment)
	require.ErrorContains(t, err, "1000")

	got, err := svc.Get(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), got.PaidAmount, "rejected payments leave the balance alone")
	require.Empty(t, repo.payments[account.ID])
}

func TestStatusDerivedNotStored(t *testing.T) {
	svc, repo := newAccountService(t)
	ctx := context.Background()

	account, err := svc.Open(ctx, OpenInput{
		Kind:        KindPayable,
		TotalAmount: 500,
		DueDate:     time.Now().UTC().AddDate(0, 0, -3),
	})
	require.NoError(t, err)

	// corrupt the cached status; reads must not trust it
	stored := repo.accounts[account.ID]
	stored.Status = StatusPaid
	repo.accounts[account.ID] = stored

	got, err := svc.Get(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, got.Status)
}

func TestDeriveStatusTable(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 1)

	cases := []struct {
		name    string
		account Account
		want    Status
	}{
		{"settled", Account{TotalAmount: 100, PaidAmount: 100, RemainingAmount: 0, DueDate: past}, StatusPaid},
		{"partially collected", Account{TotalAmount: 100, PaidAmount: 40, RemainingAmount: 60, DueDate: past}, StatusPartial},
		{"past due untouched", Account{TotalAmount: 100, RemainingAmount: 100, DueDate: past}, StatusOverdue},
		{"not yet due", Account{TotalAmount: 100, RemainingAmount: 100, DueDate: future}, StatusPending},
		{"no due date", Account{TotalAmount: 100, RemainingAmount: 100}, StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveStatus(tc.account, now))
		})
	}
}

func TestAgingBuckets(t *testing.T) {
	svc, _ := newAccountService(t)
	ctx := context.Background()
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	open := func(amount int64, daysOverdue int) {
		t.Helper()
		_, err := svc.Open(ctx, OpenInput{
			Kind:        KindReceivable,
			TotalAmount: amount,
			DueDate:     asOf.AddDate(0, 0, -daysOverdue),
		})
		require.NoError(t, err)
	}
	open(100, -5)  // not yet due
	open(200, 15)  // within 30
	open(300, 45)  // within 60
	open(400, 75)  // within 90
	open(500, 150) // older

	bucket, err := svc.Aging(ctx, KindReceivable, asOf)
	require.NoError(t, err)
	require.Equal(t, int64(100), bucket.Current)
	require.Equal(t, int64(200), bucket.Bucket30)
	require.Equal(t, int64(300), bucket.Bucket60)
	require.Equal(t, int64(400), bucket.Bucket90)
	require.Equal(t, int64(500), bucket.Bucket120)
}

func TestAgingSkipsSettledAccounts(t *testing.T) {
	svc, _ := newAccountService(t)
	ctx := context.Background()

	account, err := svc.Open(ctx, OpenInput{
		Kind:        KindReceivable,
		TotalAmount: 1000,
		DueDate:     time.Now().UTC().AddDate(0, 0, -40),
	})
	require.NoError(t, err)
	_, _, err = svc.RecordPayment(ctx, PaymentInput{AccountID: account.ID, Amount: 1000})
	require.NoError(t, err)

	bucket, err := svc.Aging(ctx, KindReceivable, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, AgingBucket{}, bucket)
}
