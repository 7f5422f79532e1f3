package invoices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// LedgerPort is the slice of the stock ledger invoice settlement drives.
type LedgerPort interface {
	ApplyBatch(ctx context.Context, inputs []ledger.ApplyInput) ([]ledger.Transaction, error)
}

// RepositoryPort abstracts invoice persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error)
	ListInvoices(ctx context.Context) ([]Invoice, error)
}

// TxRepository exposes the operations available inside an invoice transaction.
type TxRepository interface {
	InsertInvoice(ctx context.Context, inv Invoice) error
	GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (Invoice, error)
	UpdateInvoiceAmounts(ctx context.Context, id uuid.UUID, paid, remaining int64) error
	// UpdateInvoiceStatus succeeds only when the stored status still equals
	// from; otherwise it returns shared.ErrIllegalTransition.
	UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, from, to InvoiceStatus, reason string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service settles invoices against the stock ledger and tracks the
// paid/remaining split consumed by the receivable ledger.
type Service struct {
	repo   RepositoryPort
	ledger LedgerPort
	audit  AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, audit AuditPort) *Service {
	return &Service{repo: repo, ledger: ledgerPort, audit: audit}
}

// Create settles a new invoice. Every line's OUT movement applies as one unit;
// a single short line rejects the whole invoice with nothing written.
func (s *Service) Create(ctx context.Context, input CreateInput) (Invoice, error) {
	if len(input.Lines) == 0 {
		return Invoice{}, fmt.Errorf("%w: invoice has no lines", shared.ErrNoItemsSelected)
	}
	for i, line := range input.Lines {
		if line.ProductID == uuid.Nil {
			return Invoice{}, fmt.Errorf("%w: line %d missing product", shared.ErrInvalidAmount, i+1)
		}
		if line.Quantity <= 0 {
			return Invoice{}, fmt.Errorf("%w: line %d quantity must be positive, got %d", shared.ErrInvalidAmount, i+1, line.Quantity)
		}
		if line.UnitPrice < 0 {
			return Invoice{}, fmt.Errorf("%w: line %d unit price must be >= 0", shared.ErrInvalidAmount, i+1)
		}
	}
	if input.Discount < 0 || input.ShippingFee < 0 || input.OtherFees < 0 {
		return Invoice{}, fmt.Errorf("%w: discount and fees must be >= 0", shared.ErrInvalidAmount)
	}

	sub := subtotal(input.Lines)
	total := sub - input.Discount + input.ShippingFee + input.OtherFees
	if total < 0 {
		return Invoice{}, fmt.Errorf("%w: total amount %d is negative", shared.ErrInvalidAmount, total)
	}
	if input.UpfrontPaid < 0 {
		return Invoice{}, fmt.Errorf("%w: upfront payment must be >= 0", shared.ErrInvalidAmount)
	}
	if input.UpfrontPaid > total {
		return Invoice{}, fmt.Errorf("%w: upfront payment %d exceeds total %d", shared.ErrOverpayment, input.UpfrontPaid, total)
	}

	now := time.Now().UTC()
	inv := Invoice{
		ID:              uuid.New(),
		CustomerID:      input.CustomerID,
		Lines:           input.Lines,
		Subtotal:        sub,
		Discount:        input.Discount,
		ShippingFee:     input.ShippingFee,
		OtherFees:       input.OtherFees,
		TotalAmount:     total,
		PaidAmount:      input.UpfrontPaid,
		RemainingAmount: total - input.UpfrontPaid,
		PaymentMethod:   input.PaymentMethod,
		Status:          InvoiceStatusActive,
		Operator:        input.Operator,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if _, err := s.ledger.ApplyBatch(ctx, s.movements(inv, ledger.TransactionTypeOut, "invoice")); err != nil {
		return Invoice{}, err
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertInvoice(ctx, inv)
	})
	if err != nil {
		if _, rerr := s.ledger.ApplyBatch(ctx, s.movements(inv, ledger.TransactionTypeIn, "invoice-rollback")); rerr != nil {
			return Invoice{}, fmt.Errorf("%w: invoice %s: %v", shared.ErrLedgerDesync, inv.ID, rerr)
		}
		return Invoice{}, err
	}

	s.record(ctx, input.Operator, "invoices:create", inv.ID.String(), map[string]any{
		"total_amount": inv.TotalAmount,
		"paid_amount":  inv.PaidAmount,
		"lines":        len(inv.Lines),
	})
	return inv, nil
}

// RecordPayment applies a payment to an active invoice. The error message on
// overpayment carries the exact outstanding balance.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, amount int64, method, operator string) (Invoice, error) {
	if amount <= 0 {
		return Invoice{}, fmt.Errorf("%w: payment must be positive, got %d", shared.ErrInvalidAmount, amount)
	}

	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != InvoiceStatusActive {
			return fmt.Errorf("%w: invoice is %s", shared.ErrIllegalTransition, inv.Status)
		}
		if amount > inv.RemainingAmount {
			return fmt.Errorf("%w: payment %d exceeds remaining balance %d", shared.ErrOverpayment, amount, inv.RemainingAmount)
		}
		inv.PaidAmount += amount
		inv.RemainingAmount -= amount
		return tx.UpdateInvoiceAmounts(ctx, id, inv.PaidAmount, inv.RemainingAmount)
	})
	if err != nil {
		return Invoice{}, err
	}

	s.record(ctx, operator, "invoices:payment", id.String(), map[string]any{
		"amount":    amount,
		"method":    method,
		"paid":      inv.PaidAmount,
		"remaining": inv.RemainingAmount,
	})
	return inv, nil
}

// Cancel voids an active invoice. Stock is not restored; returns go through
// the refund flow.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason, operator string) (Invoice, error) {
	if strings.TrimSpace(reason) == "" {
		return Invoice{}, fmt.Errorf("%w: cancellation reason required", shared.ErrInvalidAmount)
	}

	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status != InvoiceStatusActive {
			return fmt.Errorf("%w: invoice is %s", shared.ErrIllegalTransition, inv.Status)
		}
		if err := tx.UpdateInvoiceStatus(ctx, id, InvoiceStatusActive, InvoiceStatusCancelled, reason); err != nil {
			return err
		}
		inv.Status = InvoiceStatusCancelled
		inv.CancelReason = reason
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}

	s.record(ctx, operator, "invoices:cancel", id.String(), map[string]any{"reason": reason})
	return inv, nil
}

// ApplyRefund reduces the invoice's collected paidAmount by refundAmount,
// floored at zero. The floored-away remainder is reported and audited, never
// silently dropped.
func (s *Service) ApplyRefund(ctx context.Context, id uuid.UUID, refundAmount int64, operator string) (RefundApplication, error) {
	if refundAmount <= 0 {
		return RefundApplication{}, fmt.Errorf("%w: refund must be positive, got %d", shared.ErrInvalidAmount, refundAmount)
	}

	app := RefundApplication{InvoiceID: id}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		app.Applied = refundAmount
		if app.Applied > inv.PaidAmount {
			app.Absorbed = app.Applied - inv.PaidAmount
			app.Applied = inv.PaidAmount
		}
		paid := inv.PaidAmount - app.Applied
		return tx.UpdateInvoiceAmounts(ctx, id, paid, inv.TotalAmount-paid)
	})
	if err != nil {
		return RefundApplication{}, err
	}

	meta := map[string]any{"applied": app.Applied}
	if app.Absorbed > 0 {
		meta["absorbed"] = app.Absorbed
	}
	s.record(ctx, operator, "invoices:refund-applied", id.String(), meta)
	return app, nil
}

// Get returns a single invoice with its lines.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// List returns all invoices, newest first.
func (s *Service) List(ctx context.Context) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx)
}

// movements folds the invoice lines into one movement per product. The same
// product may appear on several lines; the ledger keys movements by document
// and product, so per-product quantities have to be merged here.
func (s *Service) movements(inv Invoice, txType ledger.TransactionType, relatedType string) []ledger.ApplyInput {
	quantities := make(map[uuid.UUID]int64, len(inv.Lines))
	order := make([]uuid.UUID, 0, len(inv.Lines))
	for _, line := range inv.Lines {
		if _, seen := quantities[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		quantities[line.ProductID] += line.Quantity
	}

	inputs := make([]ledger.ApplyInput, 0, len(order))
	for _, productID := range order {
		inputs = append(inputs, ledger.ApplyInput{
			ProductID:   productID,
			Type:        txType,
			Quantity:    quantities[productID],
			RelatedID:   inv.ID,
			RelatedType: relatedType,
			Operator:    inv.Operator,
		})
	}
	return inputs
}

func (s *Service) record(ctx context.Context, operator, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Operator: operator,
		Action:   action,
		Entity:   "invoice",
		EntityID: entityID,
		Meta:     meta,
	})
}
