package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	ListProductIDs(ctx context.Context) ([]uuid.UUID, error)
	ListLowStock(ctx context.Context) ([]Product, error)
	CreateProduct(ctx context.Context, product Product) (Product, error)
	ListTransactions(ctx context.Context, filter HistoryFilter) ([]Transaction, error)
}

// TxRepository exposes the operations available inside a ledger transaction.
// GetProductForUpdate must lock the product row so writers for a single
// product serialize against each other.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, id uuid.UUID) (Product, error)
	InsertTransaction(ctx context.Context, tr Transaction) error
	UpdateProductStock(ctx context.Context, id uuid.UUID, stock int64) error
	ListTransactions(ctx context.Context, productID uuid.UUID) ([]Transaction, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards mutations keyed by their related document.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service owns the stock ledger and its projection. Every stock change writes
// one immutable transaction and updates the product's currentStock in the same
// unit of work.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// ErrUnsupportedType indicates a transaction type outside the ledger vocabulary.
var ErrUnsupportedType = errors.New("ledger: unsupported transaction type")

// Apply posts a single stock movement. OUT and HOLD movements fail when the
// requested quantity exceeds the current stock; nothing is written in that
// case.
func (s *Service) Apply(ctx context.Context, input ApplyInput) (Transaction, error) {
	if err := validateApply(input); err != nil {
		return Transaction{}, err
	}

	key, inserted, err := s.reserveKey(ctx, input)
	if err != nil {
		return Transaction{}, err
	}

	var tr Transaction
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		tr, err = applyMovement(ctx, tx, input)
		return err
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Transaction{}, err
	}

	s.recordMovement(ctx, tr)
	return tr, nil
}

// ApplyBatch posts several movements as one unit: either every movement
// applies, or none do. Used for multi-line invoices and refund restocks.
func (s *Service) ApplyBatch(ctx context.Context, inputs []ApplyInput) ([]Transaction, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: empty movement batch", shared.ErrNoItemsSelected)
	}
	for _, input := range inputs {
		if err := validateApply(input); err != nil {
			return nil, err
		}
	}

	var keys []string
	for _, input := range inputs {
		key, inserted, err := s.reserveKey(ctx, input)
		if err != nil {
			for _, k := range keys {
				_ = s.idempotency.Delete(ctx, k)
			}
			return nil, err
		}
		if inserted {
			keys = append(keys, key)
		}
	}

	transactions := make([]Transaction, 0, len(inputs))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, input := range inputs {
			tr, err := applyMovement(ctx, tx, input)
			if err != nil {
				return err
			}
			transactions = append(transactions, tr)
		}
		return nil
	})
	if err != nil {
		for _, k := range keys {
			_ = s.idempotency.Delete(ctx, k)
		}
		return nil, err
	}

	for _, tr := range transactions {
		s.recordMovement(ctx, tr)
	}
	return transactions, nil
}

// Adjust posts a manual adjustment with a signed delta. Downward adjustments
// are clamped at zero stock; the transaction records the quantity actually
// applied so the before/after invariant holds.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (Transaction, error) {
	if input.ProductID == uuid.Nil {
		return Transaction{}, fmt.Errorf("%w: product required", shared.ErrNotFound)
	}
	if input.Delta == 0 {
		return Transaction{}, fmt.Errorf("%w: adjustment delta must be non zero", shared.ErrInvalidAmount)
	}

	var tr Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		applied := input.Delta
		if applied < 0 && -applied > product.CurrentStock {
			applied = -product.CurrentStock
		}
		if applied == 0 {
			return fmt.Errorf("%w: adjustment of %d has no effect on empty stock", shared.ErrInvalidAmount, input.Delta)
		}
		quantity := applied
		if quantity < 0 {
			quantity = -quantity
		}
		tr = Transaction{
			ID:          uuid.New(),
			ProductID:   product.ID,
			Type:        TransactionTypeAdjustment,
			Quantity:    quantity,
			BeforeStock: product.CurrentStock,
			AfterStock:  product.CurrentStock + applied,
			Note:        input.Note,
			Operator:    input.Operator,
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.InsertTransaction(ctx, tr); err != nil {
			return err
		}
		if err := tx.UpdateProductStock(ctx, product.ID, tr.AfterStock); err != nil {
			return fmt.Errorf("%w: product %s: %v", shared.ErrLedgerDesync, product.ID, err)
		}
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}

	s.recordMovement(ctx, tr)
	return tr, nil
}

// Recompute rebuilds the projection by replaying the product's ledger from
// zero in createdAt order. Repair path, not the hot path.
func (s *Service) Recompute(ctx context.Context, productID uuid.UUID) (RecomputeResult, error) {
	var result RecomputeResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		transactions, err := tx.ListTransactions(ctx, productID)
		if err != nil {
			return err
		}
		result = RecomputeResult{
			ProductID: productID,
			Stored:    product.CurrentStock,
			Replayed:  replay(transactions),
		}
		if result.Stored != result.Replayed {
			if err := tx.UpdateProductStock(ctx, productID, result.Replayed); err != nil {
				return fmt.Errorf("%w: product %s: %v", shared.ErrLedgerDesync, productID, err)
			}
			result.Repaired = true
		}
		return nil
	})
	if err != nil {
		return RecomputeResult{}, err
	}

	if result.Repaired && s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "ledger:recompute",
			Entity:   "product",
			EntityID: productID.String(),
			Meta: map[string]any{
				"stored":   result.Stored,
				"replayed": result.Replayed,
			},
		})
	}
	return result, nil
}

// Verify replays the ledger without writing, reporting whether the stored
// projection agrees. Used by the reconciliation sweep.
func (s *Service) Verify(ctx context.Context, productID uuid.UUID) (RecomputeResult, error) {
	var result RecomputeResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		transactions, err := tx.ListTransactions(ctx, productID)
		if err != nil {
			return err
		}
		result = RecomputeResult{
			ProductID: productID,
			Stored:    product.CurrentStock,
			Replayed:  replay(transactions),
		}
		return nil
	})
	if err != nil {
		return RecomputeResult{}, err
	}
	return result, nil
}

// CreateProduct registers a catalog entry with zero opening stock.
func (s *Service) CreateProduct(ctx context.Context, input CreateProductInput) (Product, error) {
	if strings.TrimSpace(input.SKU) == "" || strings.TrimSpace(input.Name) == "" {
		return Product{}, fmt.Errorf("%w: sku and name required", shared.ErrInvalidAmount)
	}
	if input.MinStock < 0 {
		return Product{}, fmt.Errorf("%w: min stock must be >= 0", shared.ErrInvalidAmount)
	}
	now := time.Now().UTC()
	product := Product{
		ID:        uuid.New(),
		SKU:       strings.TrimSpace(input.SKU),
		Name:      strings.TrimSpace(input.Name),
		MinStock:  input.MinStock,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.repo.CreateProduct(ctx, product)
}

// GetProduct returns a single product.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts returns the catalog.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.repo.ListProducts(ctx)
}

// ListProductIDs returns every product id, for reconciliation sweeps.
func (s *Service) ListProductIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.repo.ListProductIDs(ctx)
}

// LowStock lists products at or below their reorder threshold.
func (s *Service) LowStock(ctx context.Context) ([]Product, error) {
	return s.repo.ListLowStock(ctx)
}

// History lists stock card entries for a product.
func (s *Service) History(ctx context.Context, filter HistoryFilter) ([]Transaction, error) {
	if filter.ProductID == uuid.Nil {
		return nil, fmt.Errorf("%w: product required", shared.ErrNotFound)
	}
	return s.repo.ListTransactions(ctx, filter)
}

func validateApply(input ApplyInput) error {
	switch input.Type {
	case TransactionTypeIn, TransactionTypeOut, TransactionTypeHold, TransactionTypeRelease:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedType, input.Type)
	}
	if input.ProductID == uuid.Nil {
		return fmt.Errorf("%w: product required", shared.ErrNotFound)
	}
	if input.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", shared.ErrInvalidAmount, input.Quantity)
	}
	return nil
}

// applyMovement runs the two writes that must act as one unit: insert the
// ledger entry, then move the projection to the recorded afterStock.
func applyMovement(ctx context.Context, tx TxRepository, input ApplyInput) (Transaction, error) {
	product, err := tx.GetProductForUpdate(ctx, input.ProductID)
	if err != nil {
		return Transaction{}, err
	}

	before := product.CurrentStock
	var after int64
	switch input.Type {
	case TransactionTypeIn, TransactionTypeRelease:
		after = before + input.Quantity
	case TransactionTypeOut, TransactionTypeHold:
		if input.Quantity > before {
			return Transaction{}, fmt.Errorf("%w: product %s: requested %d, available %d",
				shared.ErrInsufficientStock, product.SKU, input.Quantity, before)
		}
		after = before - input.Quantity
	default:
		return Transaction{}, fmt.Errorf("%w: %q", ErrUnsupportedType, input.Type)
	}

	tr := Transaction{
		ID:          uuid.New(),
		ProductID:   product.ID,
		Type:        input.Type,
		Quantity:    input.Quantity,
		BeforeStock: before,
		AfterStock:  after,
		RelatedID:   input.RelatedID,
		RelatedType: input.RelatedType,
		Note:        input.Note,
		Operator:    input.Operator,
		CreatedAt:   time.Now().UTC(),
	}
	if err := tx.InsertTransaction(ctx, tr); err != nil {
		return Transaction{}, err
	}
	if err := tx.UpdateProductStock(ctx, product.ID, after); err != nil {
		return Transaction{}, fmt.Errorf("%w: product %s: %v", shared.ErrLedgerDesync, product.ID, err)
	}
	return tr, nil
}

// replay folds transactions from zero. Adjustment direction is carried by the
// before/after pair.
func replay(transactions []Transaction) int64 {
	var stock int64
	for _, tr := range transactions {
		switch tr.Type {
		case TransactionTypeIn, TransactionTypeRelease:
			stock += tr.Quantity
		case TransactionTypeOut, TransactionTypeHold:
			stock -= tr.Quantity
		case TransactionTypeAdjustment:
			if tr.AfterStock >= tr.BeforeStock {
				stock += tr.Quantity
			} else {
				stock -= tr.Quantity
			}
		}
	}
	return stock
}

func idempotencyKey(input ApplyInput) string {
	return fmt.Sprintf("%s:%s:%s:%s", input.Type, input.RelatedType, input.RelatedID, input.ProductID)
}

func (s *Service) reserveKey(ctx context.Context, input ApplyInput) (string, bool, error) {
	if s.idempotency == nil || input.RelatedID == uuid.Nil {
		return "", false, nil
	}
	key := idempotencyKey(input)
	if err := s.idempotency.CheckAndInsert(ctx, key, "ledger"); err != nil {
		return "", false, err
	}
	return key, true, nil
}

// Unreserve drops the idempotency key a movement reserved. Callers that
// compensated a movement after a failed persist use it so retrying the same
// document is not rejected as a duplicate.
func (s *Service) Unreserve(ctx context.Context, input ApplyInput) error {
	if s.idempotency == nil || input.RelatedID == uuid.Nil {
		return nil
	}
	return s.idempotency.Delete(ctx, idempotencyKey(input))
}

func (s *Service) recordMovement(ctx context.Context, tr Transaction) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Operator: tr.Operator,
		Action:   fmt.Sprintf("ledger:%s", tr.Type),
		Entity:   "stock_transaction",
		EntityID: tr.ID.String(),
		Meta: map[string]any{
			"product_id":   tr.ProductID.String(),
			"quantity":     tr.Quantity,
			"before_stock": tr.BeforeStock,
			"after_stock":  tr.AfterStock,
			"related_id":   tr.RelatedID.String(),
			"related_type": tr.RelatedType,
		},
	})
}
