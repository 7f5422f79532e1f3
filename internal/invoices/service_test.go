package invoices

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type fakeLedger struct {
	stock   map[uuid.UUID]int64
	keys    map[string]bool
	applied []ledger.ApplyInput
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{stock: make(map[uuid.UUID]int64), keys: make(map[string]bool)}
}

func movementKey(input ledger.ApplyInput) string {
	return fmt.Sprintf("%s:%s:%s:%s", input.Type, input.RelatedType, input.RelatedID, input.ProductID)
}

// ApplyBatch mirrors the real behavior: all-or-nothing, with one idempotency
// key per document, product and movement type. A short line or a duplicate
// key rolls the whole batch back.
func (f *fakeLedger) ApplyBatch(_ context.Context, inputs []ledger.ApplyInput) ([]ledger.Transaction, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: empty movement batch", shared.ErrNoItemsSelected)
	}
	snapshot := make(map[uuid.UUID]int64, len(f.stock))
	for id, stock := range f.stock {
		snapshot[id] = stock
	}
	var reserved []string
	rollback := func() {
		f.stock = snapshot
		for _, k := range reserved {
			delete(f.keys, k)
		}
	}

	transactions := make([]ledger.Transaction, 0, len(inputs))
	for _, input := range inputs {
		if input.RelatedID != uuid.Nil {
			key := movementKey(input)
			if f.keys[key] {
				rollback()
				return nil, fmt.Errorf("%w: %s", shared.ErrIdempotencyConflict, key)
			}
			f.keys[key] = true
			reserved = append(reserved, key)
		}
		before := f.stock[input.ProductID]
		var after int64
		switch input.Type {
		case ledger.TransactionTypeIn:
			after = before + input.Quantity
		case ledger.TransactionTypeOut:
			if input.Quantity > before {
				rollback()
				return nil, fmt.Errorf("%w: product %s: requested %d, available %d",
					shared.ErrInsufficientStock, input.ProductID, input.Quantity, before)
			}
			after = before - input.Quantity
		default:
			rollback()
			return nil, fmt.Errorf("unexpected movement type %s", input.Type)
		}
		f.stock[input.ProductID] = after
		transactions = append(transactions, ledger.Transaction{
			ID: uuid.New(), ProductID: input.ProductID, Type: input.Type,
			Quantity: input.Quantity, BeforeStock: before, AfterStock: after,
		})
	}
	f.applied = append(f.applied, inputs...)
	return transactions, nil
}

type memoryInvoiceRepo struct {
	invoices   map[uuid.UUID]Invoice
	failInsert bool
}

func newMemoryInvoiceRepo() *memoryInvoiceRepo {
	return &memoryInvoiceRepo{invoices: make(map[uuid.UUID]Invoice)}
}

// WithTx snapshots state so a failing callback leaves nothing behind.
func (m *memoryInvoiceRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[uuid.UUID]Invoice, len(m.invoices))
	for id, inv := range m.invoices {
		snapshot[id] = inv
	}
	if err := fn(ctx, (*memoryInvoiceTx)(m)); err != nil {
		m.invoices = snapshot
		return err
	}
	return nil
}

func (m *memoryInvoiceRepo) GetInvoice(_ context.Context, id uuid.UUID) (Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return Invoice{}, fmt.Errorf("%w: invoice", shared.ErrNotFound)
	}
	return inv, nil
}

func (m *memoryInvoiceRepo) ListInvoices(_ context.Context) ([]Invoice, error) {
	out := make([]Invoice, 0, len(m.invoices))
	for _, inv := range m.invoices {
		out = append(out, inv)
	}
	return out, nil
}

type memoryInvoiceTx memoryInvoiceRepo

func (m *memoryInvoiceTx) InsertInvoice(_ context.Context, inv Invoice) error {
	if m.failInsert {
		return fmt.Errorf("boom")
	}
	m.invoices[inv.ID] = inv
	return nil
}

func (m *memoryInvoiceTx) GetInvoiceForUpdate(_ context.Context, id uuid.UUID) (Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return Invoice{}, fmt.Errorf("%w: invoice", shared.ErrNotFound)
	}
	return inv, nil
}

func (m *memoryInvoiceTx) UpdateInvoiceAmounts(_ context.Context, id uuid.UUID, paid, remaining int64) error {
	inv, ok := m.invoices[id]
	if !ok {
		return fmt.Errorf("%w: invoice", shared.ErrNotFound)
	}
	inv.PaidAmount = paid
	inv.RemainingAmount = remaining
	m.invoices[id] = inv
	return nil
}

func (m *memoryInvoiceTx) UpdateInvoiceStatus(_ context.Context, id uuid.UUID, from, to InvoiceStatus, reason string) error {
	inv, ok := m.invoices[id]
	if !ok || inv.Status != from {
		return fmt.Errorf("%w: invoice no longer %s", shared.ErrIllegalTransition, from)
	}
	inv.Status = to
	inv.CancelReason = reason
	m.invoices[id] = inv
	return nil
}

func newInvoiceService(t *testing.T, stock int64) (*Service, *fakeLedger, *memoryInvoiceRepo, uuid.UUID) {
	t.Helper()
	led := newFakeLedger()
	productID := uuid.New()
	led.stock[productID] = stock
	repo := newMemoryInvoiceRepo()
	return NewService(repo, led, nil), led, repo, productID
}

func TestCreateDeductsStockAndSplitsAmounts(t *testing.T) {
	svc, led, _, productID := newInvoiceService(t, 10)

	inv, err := svc.Create(context.Background(), CreateInput{
		Lines:    []Line{{ProductID: productID, Quantity: 4, UnitPrice: 250}},
		Operator: "ops",
	})
	require.NoError(t, err)
	require.Equal(t, int64(6), led.stock[productID])
	require.Equal(t, int64(1000), inv.TotalAmount)
	require.Equal(t, int64(0), inv.PaidAmount)
	require.Equal(t, inv.TotalAmount, inv.RemainingAmount)
	require.Equal(t, InvoiceStatusActive, inv.Status)
}

func TestCreateComputesTotalsWithFees(t *testing.T) {
	svc, _, _, productID := newInvoiceService(t, 10)

	inv, err := svc.Create(context.Background(), CreateInput{
		Lines:       []Line{{ProductID: productID, Quantity: 2, UnitPrice: 500}},
		Discount:    100,
		ShippingFee: 50,
		OtherFees:   25,
		UpfrontPaid: 300,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1000), inv.Subtotal)
	require.Equal(t, int64(975), inv.TotalAmount)
	require.Equal(t, int64(300), inv.PaidAmount)
	require.Equal(t, int64(675), inv.RemainingAmount)
}

func TestCreateMergesDuplicateProductLines(t *testing.T) {
	svc, led, _, productID := newInvoiceService(t, 10)

	inv, err := svc.Create(context.Background(), CreateInput{
		Lines: []Line{
			{ProductID: productID, Quantity: 2, UnitPrice: 100},
			{ProductID: productID, Quantity: 3, UnitPrice: 100},
		},
		Operator: "ops",
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), led.stock[productID])
	require.Equal(t, int64(500), inv.TotalAmount)
	require.Len(t, inv.Lines, 2, "the document keeps both lines")
	require.Len(t, led.applied, 1, "the ledger sees one movement per product")
	require.EqualValues(t, 5, led.applied[0].Quantity)
}

func TestCreateRejectsEmptyAndInvalidInput(t *testing.T) {
	svc, _, _, productID := newInvoiceService(t, 10)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{})
	require.ErrorIs(t, err, shared.ErrNoItemsSelected)

	_, err = svc.Create(ctx, CreateInput{
		Lines: []Line{{ProductID: productID, Quantity: 0, UnitPrice: 100}},
	})
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	// discount larger than subtotal plus fees
	_, err = svc.Create(ctx, CreateInput{
		Lines:    []Line{{ProductID: productID, Quantity: 1, UnitPrice: 100}},
		Discount: 500,
	})
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = svc.Create(ctx, CreateInput{
		Lines:       []Line{{ProductID: productID, Quantity: 1, UnitPrice: 100}},
		UpfrontPaid: 200,
	})
	require.ErrorIs(t, err, shared.ErrOverpayment)
}

func TestCreateAllOrNothing(t *testing.T) {
	svc, led, repo, productID := newInvoiceService(t, 10)
	short := uuid.New()
	led.stock[short] = 1

	_, err := svc.Create(context.Background(), CreateInput{
		Lines: []Line{
			{ProductID: productID, Quantity: 4, UnitPrice: 100},
			{ProductID: short, Quantity: 3, UnitPrice: 100},
		},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(10), led.stock[productID], "first line must be rolled back")
	require.Equal(t, int64(1), led.stock[short])
	require.Empty(t, repo.invoices)
}

func TestCreateCompensatesOnPersistFailure(t *testing.T) {
	svc, led, repo, productID := newInvoiceService(t, 10)
	repo.failInsert = true

	_, err := svc.Create(context.Background(), CreateInput{
		Lines: []Line{{ProductID: productID, Quantity: 4, UnitPrice: 100}},
	})
	require.Error(t, err)
	require.NotErrorIs(t, err, shared.ErrLedgerDesync)
	require.Equal(t, int64(10), led.stock[productID], "deduction must be rolled back")
}

func TestRecordPaymentToSettled(t *testing.T) {
	svc, _, _, productID := newInvoiceService(t, 10)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateInput{
		Lines: []Line{{ProductID: productID, Quantity: 4, UnitPrice: 250}},
	})
	require.NoError(t, err)

	got, err := svc.RecordPayment(ctx, inv.ID, inv.TotalAmount, "cash", "ops")
	require.NoError(t, err)
	require.Equal(t, int64(0), got.RemainingAmount)
	require.Equal(t, got.TotalAmount, got.PaidAmount)
	require.Equal(t, got.TotalAmount, got.PaidAmount+got.RemainingAmount)
}

func TestRecordPaymentGuards(t *testing.T) {
	svc, _, _, productID := newInvoiceService(t, 10)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateInput{
		Lines: []Line{{ProductID: productID, Quantity: 1, UnitPrice: 1000}},
	})
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, inv.ID, 0, "cash", "ops")
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = svc.RecordPayment(ctx, inv.ID, 1500, "cash", "ops")
	require.ErrorIs(t, err, shared.ErrOverpayment)
	require.ErrorContains(t, err, "1000")

	got, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), got.PaidAmount, "failed payments leave the balance alone")
}

func TestCancelRules(t *testing.T) {
	svc, led, _, productID := newInvoiceService(t, 10)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateInput{
		Lines: []Line{{ProductID: productID, Quantity: 4, UnitPrice: 100}},
	})
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, inv.ID, "", "ops")
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	got, err := svc.Cancel(ctx, inv.ID, "entered twice", "ops")
	require.NoError(t, err)
	require.Equal(t, InvoiceStatusCancelled, got.Status)
	require.Equal(t, "entered twice", got.CancelReason)
	require.Equal(t, int64(6), led.stock[productID], "cancellation never restocks")

	_, err = svc.Cancel(ctx, inv.ID, "again", "ops")
	require.ErrorIs(t, err, shared.ErrIllegalTransition)

	_, err = svc.RecordPayment(ctx, inv.ID, 100, "cash", "ops")
	require.ErrorIs(t, err, shared.ErrIllegalTransition)
}

func TestApplyRefundFloorsAtZero(t *testing.T) {
	svc, _, _, productID := newInvoiceService(t, 10)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateInput{
		Lines:       []Line{{ProductID: productID, Quantity: 4, UnitPrice: 250}},
		UpfrontPaid: 300,
	})
	require.NoError(t, err)

	app, err := svc.ApplyRefund(ctx, inv.ID, 500, "ops")
	require.NoError(t, err)
	require.Equal(t, int64(300), app.Applied)
	require.Equal(t, int64(200), app.Absorbed)

	got, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), got.PaidAmount)
	require.Equal(t, got.TotalAmount, got.RemainingAmount)
}
