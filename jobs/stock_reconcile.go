package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const defaultReconcileConcurrency = 4

// LedgerVerifier is the slice of the stock ledger the sweep needs.
type LedgerVerifier interface {
	ListProductIDs(ctx context.Context) ([]uuid.UUID, error)
	Verify(ctx context.Context, productID uuid.UUID) (ledger.RecomputeResult, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// StockReconciler sweeps every product, replaying its ledger against the
// stored projection. Mismatches are reported, never repaired here; repair is
// a deliberate operator action through the recompute endpoint.
type StockReconciler struct {
	ledger LedgerVerifier
	audit  AuditPort
	logger *slog.Logger
}

// NewStockReconciler constructs StockReconciler.
func NewStockReconciler(ledgerPort LedgerVerifier, audit AuditPort, logger *slog.Logger) *StockReconciler {
	return &StockReconciler{ledger: ledgerPort, audit: audit, logger: logger}
}

// Handle processes TaskStockReconcile tasks.
func (r *StockReconciler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload StockReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	return r.Run(ctx, payload.Concurrency)
}

// Run executes one sweep. A verification error on one product does not stop
// the others; the first error is returned after the sweep finishes.
func (r *StockReconciler) Run(ctx context.Context, concurrency int) error {
	if concurrency <= 0 {
		concurrency = defaultReconcileConcurrency
	}

	ids, err := r.ledger.ListProductIDs(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range ids {
		g.Go(func() error {
			result, err := r.ledger.Verify(ctx, id)
			if err != nil {
				r.logger.Error("stock reconcile verify failed",
					slog.String("product_id", id.String()),
					slog.Any("error", err))
				return err
			}
			if !result.InSync() {
				r.flagMismatch(ctx, result)
			}
			return nil
		})
	}

	err = g.Wait()
	r.logger.Info("stock reconcile sweep finished", slog.Int("products", len(ids)))
	return err
}

func (r *StockReconciler) flagMismatch(ctx context.Context, result ledger.RecomputeResult) {
	r.logger.Error("stock projection out of sync",
		slog.String("product_id", result.ProductID.String()),
		slog.Int64("stored", result.Stored),
		slog.Int64("replayed", result.Replayed))
	if r.audit == nil {
		return
	}
	_ = r.audit.Record(ctx, shared.AuditLog{
		Action:   "jobs:stock-reconcile-mismatch",
		Entity:   "product",
		EntityID: result.ProductID.String(),
		Meta: map[string]any{
			"stored":   result.Stored,
			"replayed": result.Replayed,
		},
	})
}
