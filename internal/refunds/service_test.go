package refunds

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/invoices"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type fakeLedger struct {
	stock   map[uuid.UUID]int64
	fail    bool
	applied []ledger.ApplyInput
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{stock: make(map[uuid.UUID]int64)}
}

func (f *fakeLedger) ApplyBatch(_ context.Context, inputs []ledger.ApplyInput) ([]ledger.Transaction, error) {
	if f.fail {
		return nil, fmt.Errorf("boom")
	}
	transactions := make([]ledger.Transaction, 0, len(inputs))
	for _, input := range inputs {
		if input.Type != ledger.TransactionTypeIn {
			return nil, fmt.Errorf("unexpected movement type %s", input.Type)
		}
		before := f.stock[input.ProductID]
		f.stock[input.ProductID] = before + input.Quantity
		transactions = append(transactions, ledger.Transaction{
			ID: uuid.New(), ProductID: input.ProductID, Type: input.Type,
			Quantity: input.Quantity, BeforeStock: before, AfterStock: before + input.Quantity,
		})
	}
	f.applied = append(f.applied, inputs...)
	return transactions, nil
}

type fakeInvoices struct {
	invoices map[uuid.UUID]invoices.Invoice
	failNext bool
}

func newFakeInvoices() *fakeInvoices {
	return &fakeInvoices{invoices: make(map[uuid.UUID]invoices.Invoice)}
}

func (f *fakeInvoices) Get(_ context.Context, id uuid.UUID) (invoices.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return invoices.Invoice{}, fmt.Errorf("%w: invoice", shared.ErrNotFound)
	}
	return inv, nil
}

func (f *fakeInvoices) ApplyRefund(_ context.Context, id uuid.UUID, refundAmount int64, _ string) (invoices.RefundApplication, error) {
	if f.failNext {
		return invoices.RefundApplication{}, fmt.Errorf("boom")
	}
	inv, ok := f.invoices[id]
	if !ok {
		return invoices.RefundApplication{}, fmt.Errorf("%w: invoice", shared.ErrNotFound)
	}
	app := invoices.RefundApplication{InvoiceID: id, Applied: refundAmount}
	if app.Applied > inv.PaidAmount {
		app.Absorbed = app.Applied - inv.PaidAmount
		app.Applied = inv.PaidAmount
	}
	inv.PaidAmount -= app.Applied
	inv.RemainingAmount = inv.TotalAmount - inv.PaidAmount
	f.invoices[id] = inv
	return app, nil
}

type memoryRefundRepo struct {
	refunds map[uuid.UUID]RefundOrder
}

func newMemoryRefundRepo() *memoryRefundRepo {
	return &memoryRefundRepo{refunds: make(map[uuid.UUID]RefundOrder)}
}

func (m *memoryRefundRepo) CreateRefund(_ context.Context, ref RefundOrder) error {
	m.refunds[ref.ID] = ref
	return nil
}

func (m *memoryRefundRepo) GetRefund(_ context.Context, id uuid.UUID) (RefundOrder, error) {
	ref, ok := m.refunds[id]
	if !ok {
		return RefundOrder{}, fmt.Errorf("%w: refund", shared.ErrNotFound)
	}
	return ref, nil
}

func (m *memoryRefundRepo) ListRefunds(_ context.Context) ([]RefundOrder, error) {
	out := make([]RefundOrder, 0, len(m.refunds))
	for _, ref := range m.refunds {
		out = append(out, ref)
	}
	return out, nil
}

func (m *memoryRefundRepo) UpdateRefundStatus(_ context.Context, id uuid.UUID, from, to RefundStatus, rejectReason string) error {
	ref, ok := m.refunds[id]
	if !ok || ref.Status != from {
		return fmt.Errorf("%w: refund no longer %s", shared.ErrIllegalTransition, from)
	}
	ref.Status = to
	if rejectReason != "" {
		ref.RejectReason = rejectReason
	}
	m.refunds[id] = ref
	return nil
}

type refundFixture struct {
	svc       *Service
	led       *fakeLedger
	inv       *fakeInvoices
	invoiceID uuid.UUID
	productID uuid.UUID
}

// newRefundFixture seeds an invoice of 4 units at 250 each, fully paid, with
// post-sale stock of 6.
func newRefundFixture(t *testing.T) refundFixture {
	t.Helper()
	led := newFakeLedger()
	inv := newFakeInvoices()
	productID := uuid.New()
	led.stock[productID] = 6
	invoiceID := uuid.New()
	inv.invoices[invoiceID] = invoices.Invoice{
		ID:          invoiceID,
		Lines:       []invoices.Line{{ProductID: productID, Quantity: 4, UnitPrice: 250}},
		TotalAmount: 1000,
		PaidAmount:  1000,
		Status:      invoices.InvoiceStatusActive,
	}
	return refundFixture{
		svc:       NewService(newMemoryRefundRepo(), led, inv, nil),
		led:       led,
		inv:       inv,
		invoiceID: invoiceID,
		productID: productID,
	}
}

func TestCreateValidatesAgainstInvoiceLines(t *testing.T) {
	fx := newRefundFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Create(ctx, CreateInput{
		InvoiceID: fx.invoiceID,
		Items:     []ItemInput{{ProductID: fx.productID, Quantity: 2, RestockQuantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrInvalidAmount, "reason is mandatory")

	_, err = fx.svc.Create(ctx, CreateInput{
		InvoiceID: fx.invoiceID,
		Items:     []ItemInput{{ProductID: fx.productID, Quantity: 5}},
		Reason:    "damaged",
	})
	require.ErrorIs(t, err, shared.ErrInvalidAmount, "quantity above invoiced line")

	_, err = fx.svc.Create(ctx, CreateInput{
		InvoiceID: fx.invoiceID,
		Items:     []ItemInput{{ProductID: fx.productID, Quantity: 2, RestockQuantity: 3}},
		Reason:    "damaged",
	})
	require.ErrorIs(t, err, shared.ErrInvalidAmount, "restock above refund quantity")

	_, err = fx.svc.Create(ctx, CreateInput{
		InvoiceID: fx.invoiceID,
		Items:     []ItemInput{{ProductID: uuid.New(), Quantity: 1}},
		Reason:    "damaged",
	})
	require.ErrorIs(t, err, shared.ErrInvalidAmount, "product not on the invoice")

	_, err = fx.svc.Create(ctx, CreateInput{
		InvoiceID: fx.invoiceID,
		Items:     []ItemInput{{ProductID: fx.productID, Quantity: 0}},
		Reason:    "damaged",
	})
	require.ErrorIs(t, err, shared.ErrNoItemsSelected)
}

func TestCreatePricesFromInvoice(t *testing.T) {
	fx := newRefundFixture(t)

	ref, err := fx.svc.Create(context.Background(), CreateInput{
		InvoiceID: fx.invoiceID,
		Items:     []ItemInput{{ProductID: fx.productID, Quantity: 2, RestockQuantity: 1}},
		Reason:    "one unit damaged",
	})
	require.NoError(t, err)
	require.Equal(t, RefundStatusPending, ref.Status)
	require.Equal(t, int64(500), ref.RefundAmount)
	require.Equal(t, int64(250), ref.Items[0].UnitPrice)
}

func TestStateMachinePaths(t *testing.T) {
	fx := newRefundFixture(t)
	ctx := context.Background()

	ref, err := fx.svc.Create(ctx, CreateInput{
		InvoiceID: fx.invoiceID,
		Items:     []ItemInput{{ProductID: fx.productID, Quantity: 1, RestockQuantity: 1}},
		Reason:    "wrong color",
	})
	require.NoError(t, err)

	// completed is unreachable from pending
	_, err = fx.svc.Complete(ctx, ref.ID, "ops")
	require.ErrorIs(t, err, shared.ErrIllegalTransition)

	_, err = fx.svc.Reject(ctx, ref.ID, "", "ops")
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	rejected, err := fx.svc.Reject(ctx, ref.ID, "out of window", "ops")
	require.NoError(t, err)
	require.Equal(t, RefundStatusRejected, rejected.Status)
	require.Equal(t, "out of window", rejected.RejectReason)

	_, err = fx.svc.Approve(ctx, ref.ID, "ops")
	require.ErrorIs(t, err, shared.ErrIllegalTransition)
	_, err = fx.svc.Complete(ctx, ref.ID, "ops")
	require.ErrorIs(t, err, shared.ErrIllegalTransition)
	require.Empty(t, fx.led.applied, "rejected refunds never touch stock")
}

func TestCompletePartialRestock(t *testing.T) {
	fx := newRefundFixture(t)
	ctx := context.Background()

	ref, err := fx.svc.Create(ctx, CreateInput{
		InvoiceID: fx.invoiceID,
		Items:     []ItemInput{{ProductID: fx.productID, Quantity: 2, RestockQuantity: 1}},
		Reason:    "one unit damaged",
	})
	require.NoError(t, err)

	_, err = fx.svc.Approve(ctx, ref.ID, "ops")
	require.NoError(t, err)

	got, err := fx.svc.Complete(ctx, ref.ID, "ops")
	require.NoError(t, err)
	require.Equal(t, RefundStatusCompleted, got.Status)
	require.Equal(t, int64(7), fx.led.stock[fx.productID], "only the undamaged unit restocks")

	inv := fx.inv.invoices[fx.invoiceID]
	require.Equal(t, int64(500), inv.PaidAmount, "paid amount drops by 2 x unit price")
	require.Equal(t, inv.TotalAmount, inv.PaidAmount+inv.RemainingAmount)
}

func TestCompleteIsIdempotent(t *testing.T) {
	fx := newRefundFixture(t)
	ctx := context.Background()

	ref, err := fx.svc.Create(ctx, CreateInput{
		InvoiceID: fx.invoiceID,
		Items:     []ItemInput{{ProductID: fx.productID, Quantity: 1, RestockQuantity: 1}},
		Reason:    "wrong color",
	})
	require.NoError(t, err)
	_, err = fx.svc.Approve(ctx, ref.ID, "ops")
	require.NoError(t, err)
	_, err = fx.svc.Complete(ctx, ref.ID, "ops")
	require.NoError(t, err)

	applied := len(fx.led.applied)
	paid := fx.inv.invoices[fx.invoiceID].PaidAmount

	got, err := fx.svc.Complete(ctx, ref.ID, "ops")
	require.NoError(t, err)
	require.Equal(t, RefundStatusCompleted, got.Status)
	require.Len(t, fx.led.applied, applied, "no second restock")
	require.Equal(t, paid, fx.inv.invoices[fx.invoiceID].PaidAmount, "no second invoice adjustment")
}

func TestCompleteRevertsOnRestockFailure(t *testing.T) {
	fx := newRefundFixture(t)
	ctx := context.Background()

	ref, err := fx.svc.Create(ctx, CreateInput{
		InvoiceID: fx.invoiceID,
		Items:     []ItemInput{{ProductID: fx.productID, Quantity: 1, RestockQuantity: 1}},
		Reason:    "wrong color",
	})
	require.NoError(t, err)
	_, err = fx.svc.Approve(ctx, ref.ID, "ops")
	require.NoError(t, err)

	fx.led.fail = true
	_, err = fx.svc.Complete(ctx, ref.ID, "ops")
	require.Error(t, err)
	require.NotErrorIs(t, err, shared.ErrLedgerDesync)

	got, err := fx.svc.Get(ctx, ref.ID)
	require.NoError(t, err)
	require.Equal(t, RefundStatusApproved, got.Status, "status reverts so the refund can be retried deliberately")
	require.Equal(t, int64(1000), fx.inv.invoices[fx.invoiceID].PaidAmount)
}

func TestCompleteSurfacesDesyncAfterRestock(t *testing.T) {
	fx := newRefundFixture(t)
	ctx := context.Background()

	ref, err := fx.svc.Create(ctx, CreateInput{
		InvoiceID: fx.invoiceID,
		Items:     []ItemInput{{ProductID: fx.productID, Quantity: 1, RestockQuantity: 1}},
		Reason:    "wrong color",
	})
	require.NoError(t, err)
	_, err = fx.svc.Approve(ctx, ref.ID, "ops")
	require.NoError(t, err)

	fx.inv.failNext = true
	_, err = fx.svc.Complete(ctx, ref.ID, "ops")
	require.ErrorIs(t, err, shared.ErrLedgerDesync)
	require.Equal(t, int64(7), fx.led.stock[fx.productID], "restock stays; the desync is for manual repair")
}
