package refunds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/invoices"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// LedgerPort is the slice of the stock ledger refund completion drives.
type LedgerPort interface {
	ApplyBatch(ctx context.Context, inputs []ledger.ApplyInput) ([]ledger.Transaction, error)
}

// InvoicePort is the slice of invoice settlement refunds read and adjust.
type InvoicePort interface {
	Get(ctx context.Context, id uuid.UUID) (invoices.Invoice, error)
	ApplyRefund(ctx context.Context, id uuid.UUID, refundAmount int64, operator string) (invoices.RefundApplication, error)
}

// RepositoryPort abstracts refund persistence.
type RepositoryPort interface {
	CreateRefund(ctx context.Context, ref RefundOrder) error
	GetRefund(ctx context.Context, id uuid.UUID) (RefundOrder, error)
	ListRefunds(ctx context.Context) ([]RefundOrder, error)
	// UpdateRefundStatus succeeds only when the stored status still equals
	// from; otherwise it returns shared.ErrIllegalTransition.
	UpdateRefundStatus(ctx context.Context, id uuid.UUID, from, to RefundStatus, rejectReason string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service reconciles refunds against their source invoice. The state machine
// is pending -> approved -> completed, with pending -> rejected as the only
// other exit; completion is the single transition with side effects.
type Service struct {
	repo     RepositoryPort
	ledger   LedgerPort
	invoices InvoicePort
	audit    AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, invoicePort InvoicePort, audit AuditPort) *Service {
	return &Service{repo: repo, ledger: ledgerPort, invoices: invoicePort, audit: audit}
}

// Create validates a refund request against the source invoice lines and
// stores it in pending state. Nothing touches the ledger yet.
func (s *Service) Create(ctx context.Context, input CreateInput) (RefundOrder, error) {
	if strings.TrimSpace(input.Reason) == "" {
		return RefundOrder{}, fmt.Errorf("%w: refund reason required", shared.ErrInvalidAmount)
	}

	inv, err := s.invoices.Get(ctx, input.InvoiceID)
	if err != nil {
		return RefundOrder{}, err
	}

	invoiced := make(map[uuid.UUID]invoices.Line, len(inv.Lines))
	for _, line := range inv.Lines {
		merged := invoiced[line.ProductID]
		merged.ProductID = line.ProductID
		merged.Quantity += line.Quantity
		merged.UnitPrice = line.UnitPrice
		invoiced[line.ProductID] = merged
	}

	var items []Item
	var amount int64
	for i, item := range input.Items {
		if item.Quantity < 0 || item.RestockQuantity < 0 {
			return RefundOrder{}, fmt.Errorf("%w: item %d quantities must be >= 0", shared.ErrInvalidAmount, i+1)
		}
		if item.Quantity == 0 {
			continue
		}
		line, ok := invoiced[item.ProductID]
		if !ok {
			return RefundOrder{}, fmt.Errorf("%w: product %s is not on invoice %s", shared.ErrInvalidAmount, item.ProductID, inv.ID)
		}
		if item.Quantity > line.Quantity {
			return RefundOrder{}, fmt.Errorf("%w: product %s: refund quantity %d exceeds invoiced %d",
				shared.ErrInvalidAmount, item.ProductID, item.Quantity, line.Quantity)
		}
		if item.RestockQuantity > item.Quantity {
			return RefundOrder{}, fmt.Errorf("%w: product %s: restock quantity %d exceeds refund quantity %d",
				shared.ErrInvalidAmount, item.ProductID, item.RestockQuantity, item.Quantity)
		}
		items = append(items, Item{
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			RestockQuantity: item.RestockQuantity,
			UnitPrice:       line.UnitPrice,
		})
		amount += item.Quantity * line.UnitPrice
	}
	if len(items) == 0 {
		return RefundOrder{}, fmt.Errorf("%w: refund selects no items", shared.ErrNoItemsSelected)
	}

	now := time.Now().UTC()
	ref := RefundOrder{
		ID:           uuid.New(),
		InvoiceID:    inv.ID,
		Items:        items,
		RefundAmount: amount,
		Reason:       strings.TrimSpace(input.Reason),
		Status:       RefundStatusPending,
		Operator:     input.Operator,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateRefund(ctx, ref); err != nil {
		return RefundOrder{}, err
	}

	s.record(ctx, input.Operator, "refunds:create", ref.ID.String(), map[string]any{
		"invoice_id":    ref.InvoiceID.String(),
		"refund_amount": ref.RefundAmount,
		"items":         len(ref.Items),
	})
	return ref, nil
}

// Approve moves a pending refund to approved. No stock or invoice effect.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, operator string) (RefundOrder, error) {
	ref, err := s.repo.GetRefund(ctx, id)
	if err != nil {
		return RefundOrder{}, err
	}
	if ref.Status != RefundStatusPending {
		return RefundOrder{}, fmt.Errorf("%w: refund %s -> approved", shared.ErrIllegalTransition, ref.Status)
	}
	if err := s.repo.UpdateRefundStatus(ctx, id, RefundStatusPending, RefundStatusApproved, ""); err != nil {
		return RefundOrder{}, err
	}
	ref.Status = RefundStatusApproved
	ref.UpdatedAt = time.Now().UTC()
	s.record(ctx, operator, "refunds:approve", id.String(), nil)
	return ref, nil
}

// Reject terminates a pending refund. No stock or invoice effect.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason, operator string) (RefundOrder, error) {
	if strings.TrimSpace(reason) == "" {
		return RefundOrder{}, fmt.Errorf("%w: rejection reason required", shared.ErrInvalidAmount)
	}
	ref, err := s.repo.GetRefund(ctx, id)
	if err != nil {
		return RefundOrder{}, err
	}
	if ref.Status != RefundStatusPending {
		return RefundOrder{}, fmt.Errorf("%w: refund %s -> rejected", shared.ErrIllegalTransition, ref.Status)
	}
	if err := s.repo.UpdateRefundStatus(ctx, id, RefundStatusPending, RefundStatusRejected, reason); err != nil {
		return RefundOrder{}, err
	}
	ref.Status = RefundStatusRejected
	ref.RejectReason = reason
	ref.UpdatedAt = time.Now().UTC()
	s.record(ctx, operator, "refunds:reject", id.String(), map[string]any{"reason": reason})
	return ref, nil
}

// Complete executes an approved refund: restock every item with
// restockQuantity > 0 as one unit, then reduce the invoice's collected
// paidAmount. Re-completing an already completed refund is a no-op. A failure
// after the restocks have landed is surfaced as a desync for manual
// reconciliation, never re-applied automatically.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, operator string) (RefundOrder, error) {
	ref, err := s.repo.GetRefund(ctx, id)
	if err != nil {
		return RefundOrder{}, err
	}
	if ref.Status == RefundStatusCompleted {
		return ref, nil
	}
	if ref.Status != RefundStatusApproved {
		return RefundOrder{}, fmt.Errorf("%w: refund %s -> completed", shared.ErrIllegalTransition, ref.Status)
	}

	// The guarded flip also loses any race with a concurrent complete, so the
	// side effects below run at most once.
	if err := s.repo.UpdateRefundStatus(ctx, id, RefundStatusApproved, RefundStatusCompleted, ""); err != nil {
		return RefundOrder{}, err
	}

	var restocks []ledger.ApplyInput
	for _, item := range ref.Items {
		if item.RestockQuantity == 0 {
			continue
		}
		restocks = append(restocks, ledger.ApplyInput{
			ProductID:   item.ProductID,
			Type:        ledger.TransactionTypeIn,
			Quantity:    item.RestockQuantity,
			RelatedID:   ref.ID,
			RelatedType: "refund",
			Note:        ref.Reason,
			Operator:    operator,
		})
	}
	if len(restocks) > 0 {
		if _, err := s.ledger.ApplyBatch(ctx, restocks); err != nil {
			if rerr := s.repo.UpdateRefundStatus(ctx, id, RefundStatusCompleted, RefundStatusApproved, ""); rerr != nil {
				return RefundOrder{}, fmt.Errorf("%w: refund %s: %v", shared.ErrLedgerDesync, id, rerr)
			}
			return RefundOrder{}, err
		}
	}

	app, err := s.invoices.ApplyRefund(ctx, ref.InvoiceID, ref.RefundAmount, operator)
	if err != nil {
		// Restocks are already on the ledger. Do not unwind them.
		return RefundOrder{}, fmt.Errorf("%w: refund %s: invoice adjustment failed: %v", shared.ErrLedgerDesync, id, err)
	}

	ref.Status = RefundStatusCompleted
	ref.UpdatedAt = time.Now().UTC()
	meta := map[string]any{
		"invoice_id": ref.InvoiceID.String(),
		"applied":    app.Applied,
		"restocks":   len(restocks),
	}
	if app.Absorbed > 0 {
		meta["absorbed"] = app.Absorbed
	}
	s.record(ctx, operator, "refunds:complete", id.String(), meta)
	return ref, nil
}

// Get returns a single refund order.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (RefundOrder, error) {
	return s.repo.GetRefund(ctx, id)
}

// List returns all refund orders.
func (s *Service) List(ctx context.Context) ([]RefundOrder, error) {
	return s.repo.ListRefunds(ctx)
}

func (s *Service) record(ctx context.Context, operator, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Operator: operator,
		Action:   action,
		Entity:   "refund_order",
		EntityID: entityID,
		Meta:     meta,
	})
}
