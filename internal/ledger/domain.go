package ledger

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType enumerates supported stock movements. Holds are first-class
// ledger entries so replaying the ledger always reproduces the projection.
type TransactionType string

const (
	// TransactionTypeIn represents an inbound movement (purchase, restock).
	TransactionTypeIn TransactionType = "IN"
	// TransactionTypeOut represents an outbound movement (sale, invoice line).
	TransactionTypeOut TransactionType = "OUT"
	// TransactionTypeAdjustment indicates manual adjustments.
	TransactionTypeAdjustment TransactionType = "ADJUSTMENT"
	// TransactionTypeHold earmarks stock for a reservation or exhibition.
	TransactionTypeHold TransactionType = "HOLD"
	// TransactionTypeRelease returns held stock on a terminal hold transition.
	TransactionTypeRelease TransactionType = "RELEASE"
)

// Product carries the authoritative currentStock projection. The stock value is
// only ever mutated together with a ledger entry, never set directly.
type Product struct {
	ID           uuid.UUID
	SKU          string
	Name         string
	CurrentStock int64
	MinStock     int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Transaction is an immutable ledger entry recording a single stock change.
// Quantity is always positive; direction is carried by the type, and for
// adjustments by the before/after pair.
type Transaction struct {
	ID          uuid.UUID
	ProductID   uuid.UUID
	Type        TransactionType
	Quantity    int64
	BeforeStock int64
	AfterStock  int64
	RelatedID   uuid.UUID
	RelatedType string
	Note        string
	Operator    string
	CreatedAt   time.Time
}

// ApplyInput describes a single stock movement request.
type ApplyInput struct {
	ProductID   uuid.UUID
	Type        TransactionType
	Quantity    int64
	RelatedID   uuid.UUID
	RelatedType string
	Note        string
	Operator    string
}

// AdjustInput describes a manual stock adjustment. Delta may be negative; a
// downward adjustment is clamped so the projection never goes below zero.
type AdjustInput struct {
	ProductID uuid.UUID
	Delta     int64
	Note      string
	Operator  string
}

// CreateProductInput describes a new catalog entry. Stock starts at zero and
// only moves through the ledger.
type CreateProductInput struct {
	SKU      string
	Name     string
	MinStock int64
}

// HistoryFilter filters stock card entries.
type HistoryFilter struct {
	ProductID uuid.UUID
	Limit     int
	Offset    int
}

// RecomputeResult reports a ledger replay against the stored projection.
type RecomputeResult struct {
	ProductID uuid.UUID
	Stored    int64
	Replayed  int64
	Repaired  bool
}

// InSync reports whether projection and ledger agree.
func (r RecomputeResult) InSync() bool {
	return r.Stored == r.Replayed
}
