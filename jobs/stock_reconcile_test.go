package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type fakeVerifier struct {
	mu      sync.Mutex
	results map[uuid.UUID]ledger.RecomputeResult
	failID  uuid.UUID
	visited []uuid.UUID
}

func (f *fakeVerifier) ListProductIDs(_ context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(f.results))
	for id := range f.results {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeVerifier) Verify(_ context.Context, productID uuid.UUID) (ledger.RecomputeResult, error) {
	f.mu.Lock()
	f.visited = append(f.visited, productID)
	f.mu.Unlock()
	if productID == f.failID {
		return ledger.RecomputeResult{}, fmt.Errorf("boom")
	}
	return f.results[productID], nil
}

type captureAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (c *captureAudit) Record(_ context.Context, log shared.AuditLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, log)
	return nil
}

func TestSweepFlagsOnlyMismatches(t *testing.T) {
	inSync := uuid.New()
	drifted := uuid.New()
	verifier := &fakeVerifier{results: map[uuid.UUID]ledger.RecomputeResult{
		inSync:  {ProductID: inSync, Stored: 5, Replayed: 5},
		drifted: {ProductID: drifted, Stored: 9, Replayed: 7},
	}}
	audit := &captureAudit{}
	rec := NewStockReconciler(verifier, audit, slog.Default())

	require.NoError(t, rec.Run(context.Background(), 2))
	require.Len(t, verifier.visited, 2)
	require.Len(t, audit.logs, 1)
	require.Equal(t, drifted.String(), audit.logs[0].EntityID)
	require.Equal(t, int64(9), audit.logs[0].Meta["stored"])
	require.Equal(t, int64(7), audit.logs[0].Meta["replayed"])
}

func TestSweepSurfacesVerifyError(t *testing.T) {
	bad := uuid.New()
	verifier := &fakeVerifier{
		results: map[uuid.UUID]ledger.RecomputeResult{bad: {}},
		failID:  bad,
	}
	rec := NewStockReconciler(verifier, nil, slog.Default())

	require.Error(t, rec.Run(context.Background(), 0))
}
