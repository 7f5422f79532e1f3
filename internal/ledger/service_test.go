package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryIdem struct {
	keys map[string]bool
}

func newMemoryIdem() *memoryIdem {
	return &memoryIdem{keys: make(map[string]bool)}
}

func (m *memoryIdem) CheckAndInsert(_ context.Context, key, _ string) error {
	if m.keys[key] {
		return fmt.Errorf("%w: %s", shared.ErrIdempotencyConflict, key)
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdem) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type memoryRepo struct {
	products     map[uuid.UUID]Product
	transactions []Transaction
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[uuid.UUID]Product)}
}

// seed registers a product. Nonzero stock is backed by an opening IN entry so
// a replay from zero agrees with the projection.
func (r *memoryRepo) seed(stock, minStock int64) uuid.UUID {
	id := uuid.New()
	r.products[id] = Product{ID: id, SKU: "SKU-" + id.String()[:8], Name: "Widget", CurrentStock: stock, MinStock: minStock}
	if stock > 0 {
		r.transactions = append(r.transactions, Transaction{
			ID:          uuid.New(),
			ProductID:   id,
			Type:        TransactionTypeIn,
			Quantity:    stock,
			BeforeStock: 0,
			AfterStock:  stock,
			Note:        "opening stock",
		})
	}
	return id
}

type memoryTx struct {
	repo *memoryRepo
}

// WithTx emulates transactional rollback: on error all writes are discarded.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	productsSnapshot := make(map[uuid.UUID]Product, len(r.products))
	for k, v := range r.products {
		productsSnapshot[k] = v
	}
	txSnapshot := make([]Transaction, len(r.transactions))
	copy(txSnapshot, r.transactions)

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.products = productsSnapshot
		r.transactions = txSnapshot
		return err
	}
	return nil
}

func (r *memoryRepo) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	for _, p := range r.products {
		products = append(products, p)
	}
	return products, nil
}

func (r *memoryRepo) ListProductIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id := range r.products {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *memoryRepo) ListLowStock(ctx context.Context) ([]Product, error) {
	var products []Product
	for _, p := range r.products {
		if p.CurrentStock <= p.MinStock {
			products = append(products, p)
		}
	}
	return products, nil
}

func (r *memoryRepo) CreateProduct(ctx context.Context, product Product) (Product, error) {
	r.products[product.ID] = product
	return product, nil
}

func (r *memoryRepo) ListTransactions(ctx context.Context, filter HistoryFilter) ([]Transaction, error) {
	var out []Transaction
	for _, tr := range r.transactions {
		if tr.ProductID == filter.ProductID {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, id uuid.UUID) (Product, error) {
	return tx.repo.GetProduct(ctx, id)
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, tr Transaction) error {
	tx.repo.transactions = append(tx.repo.transactions, tr)
	return nil
}

func (tx *memoryTx) UpdateProductStock(ctx context.Context, id uuid.UUID, stock int64) error {
	p, ok := tx.repo.products[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.CurrentStock = stock
	tx.repo.products[id] = p
	return nil
}

func (tx *memoryTx) ListTransactions(ctx context.Context, productID uuid.UUID) ([]Transaction, error) {
	return tx.repo.ListTransactions(ctx, HistoryFilter{ProductID: productID})
}

func TestApplyRecordsBeforeAfter(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	productID := repo.seed(10, 2)

	tr, err := svc.Apply(ctx, ApplyInput{ProductID: productID, Type: TransactionTypeOut, Quantity: 4, Operator: "tester"})
	require.NoError(t, err)
	require.EqualValues(t, 10, tr.BeforeStock)
	require.EqualValues(t, 6, tr.AfterStock)

	product, err := svc.GetProduct(ctx, productID)
	require.NoError(t, err)
	require.EqualValues(t, 6, product.CurrentStock)

	result, err := svc.Verify(ctx, productID)
	require.NoError(t, err)
	require.True(t, result.InSync())
}

func TestApplyInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	productID := repo.seed(3, 0)

	_, err := svc.Apply(ctx, ApplyInput{ProductID: productID, Type: TransactionTypeOut, Quantity: 5})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Contains(t, err.Error(), "requested 5")
	require.Contains(t, err.Error(), "available 3")

	product, err := svc.GetProduct(ctx, productID)
	require.NoError(t, err)
	require.EqualValues(t, 3, product.CurrentStock)
	require.Len(t, repo.transactions, 1, "only the opening entry remains")
}

func TestApplyRejectsInvalidQuantity(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	productID := repo.seed(3, 0)

	_, err := svc.Apply(context.Background(), ApplyInput{ProductID: productID, Type: TransactionTypeIn, Quantity: 0})
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = svc.Apply(context.Background(), ApplyInput{ProductID: productID, Type: "TRANSFER", Quantity: 1})
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestHoldReleaseRoundTrip(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	productID := repo.seed(5, 0)
	holdRef := uuid.New()

	_, err := svc.Apply(ctx, ApplyInput{ProductID: productID, Type: TransactionTypeHold, Quantity: 3, RelatedID: holdRef, RelatedType: "reservation"})
	require.NoError(t, err)
	product, _ := svc.GetProduct(ctx, productID)
	require.EqualValues(t, 2, product.CurrentStock)

	_, err = svc.Apply(ctx, ApplyInput{ProductID: productID, Type: TransactionTypeRelease, Quantity: 3, RelatedID: holdRef, RelatedType: "reservation"})
	require.NoError(t, err)
	product, _ = svc.GetProduct(ctx, productID)
	require.EqualValues(t, 5, product.CurrentStock)

	result, err := svc.Verify(ctx, productID)
	require.NoError(t, err)
	require.True(t, result.InSync())
}

func TestAdjustClampsAtZero(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	productID := repo.seed(3, 0)

	tr, err := svc.Adjust(ctx, AdjustInput{ProductID: productID, Delta: -5, Note: "stocktake"})
	require.NoError(t, err)
	require.EqualValues(t, 3, tr.Quantity)
	require.EqualValues(t, 3, tr.BeforeStock)
	require.EqualValues(t, 0, tr.AfterStock)

	result, err := svc.Verify(ctx, productID)
	require.NoError(t, err)
	require.True(t, result.InSync())
}

func TestAdjustRejectsNoEffect(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	productID := repo.seed(0, 0)

	_, err := svc.Adjust(context.Background(), AdjustInput{ProductID: productID, Delta: -2})
	require.ErrorIs(t, err, shared.ErrInvalidAmount)
}

func TestApplyBatchAllOrNothing(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	first := repo.seed(5, 0)
	second := repo.seed(1, 0)

	_, err := svc.ApplyBatch(ctx, []ApplyInput{
		{ProductID: first, Type: TransactionTypeOut, Quantity: 2},
		{ProductID: second, Type: TransactionTypeOut, Quantity: 3},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	p1, _ := svc.GetProduct(ctx, first)
	p2, _ := svc.GetProduct(ctx, second)
	require.EqualValues(t, 5, p1.CurrentStock)
	require.EqualValues(t, 1, p2.CurrentStock)
	require.Len(t, repo.transactions, 2, "only the opening entries remain")
}

func TestApplyDuplicateDocumentRejected(t *testing.T) {
	repo := newMemoryRepo()
	idem := newMemoryIdem()
	svc := NewService(repo, nil, idem)
	ctx := context.Background()
	productID := repo.seed(10, 0)
	docID := uuid.New()

	input := ApplyInput{ProductID: productID, Type: TransactionTypeOut, Quantity: 4, RelatedID: docID, RelatedType: "invoice"}
	_, err := svc.Apply(ctx, input)
	require.NoError(t, err)

	_, err = svc.Apply(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	product, _ := svc.GetProduct(ctx, productID)
	require.EqualValues(t, 6, product.CurrentStock, "the duplicate must not deduct again")

	// A caller that compensated the movement clears the key and may retry.
	require.NoError(t, svc.Unreserve(ctx, input))
	_, err = svc.Apply(ctx, input)
	require.NoError(t, err)
}

func TestApplyReleasesKeyOnFailedMovement(t *testing.T) {
	repo := newMemoryRepo()
	idem := newMemoryIdem()
	svc := NewService(repo, nil, idem)
	ctx := context.Background()
	productID := repo.seed(3, 0)
	docID := uuid.New()

	input := ApplyInput{ProductID: productID, Type: TransactionTypeOut, Quantity: 5, RelatedID: docID, RelatedType: "invoice"}
	_, err := svc.Apply(ctx, input)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Empty(t, idem.keys, "a failed movement must not pin its key")
}

func TestRecomputeRepairsDrift(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	productID := repo.seed(0, 0)

	_, err := svc.Apply(ctx, ApplyInput{ProductID: productID, Type: TransactionTypeIn, Quantity: 10})
	require.NoError(t, err)
	_, err = svc.Apply(ctx, ApplyInput{ProductID: productID, Type: TransactionTypeOut, Quantity: 4})
	require.NoError(t, err)

	// Corrupt the projection behind the ledger's back.
	p := repo.products[productID]
	p.CurrentStock = 42
	repo.products[productID] = p

	verify, err := svc.Verify(ctx, productID)
	require.NoError(t, err)
	require.False(t, verify.InSync())

	result, err := svc.Recompute(ctx, productID)
	require.NoError(t, err)
	require.True(t, result.Repaired)
	require.EqualValues(t, 42, result.Stored)
	require.EqualValues(t, 6, result.Replayed)

	product, _ := svc.GetProduct(ctx, productID)
	require.EqualValues(t, 6, product.CurrentStock)
}
