package refunds

import (
	"time"

	"github.com/google/uuid"
)

// RefundStatus enumerates refund order lifecycle states.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusApproved  RefundStatus = "approved"
	RefundStatusRejected  RefundStatus = "rejected"
	RefundStatusCompleted RefundStatus = "completed"
)

// Item is one returned position. RestockQuantity may be lower than Quantity
// so damaged returns can be written off without restocking.
type Item struct {
	ProductID       uuid.UUID
	Quantity        int64
	RestockQuantity int64
	UnitPrice       int64
}

// RefundOrder reverses part of a settled invoice. Only the transition into
// completed touches stock or the invoice balance.
type RefundOrder struct {
	ID           uuid.UUID
	InvoiceID    uuid.UUID
	Items        []Item
	RefundAmount int64
	Reason       string
	RejectReason string
	Status       RefundStatus
	Operator     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateInput describes a new refund request. Unit prices are taken from the
// source invoice, not from the caller.
type CreateInput struct {
	InvoiceID uuid.UUID
	Items     []ItemInput
	Reason    string
	Operator  string
}

// ItemInput is one requested return position.
type ItemInput struct {
	ProductID       uuid.UUID
	Quantity        int64
	RestockQuantity int64
}
