package invoices

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus enumerates invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusActive    InvoiceStatus = "active"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Line is one invoiced product position. UnitPrice is in minor currency units.
type Line struct {
	ProductID uuid.UUID
	Quantity  int64
	UnitPrice int64
}

// Invoice settles a sale against the stock ledger. Creation deducts every line
// as an OUT movement; cancellation never restocks, refunds do.
type Invoice struct {
	ID              uuid.UUID
	CustomerID      string
	Lines           []Line
	Subtotal        int64
	Discount        int64
	ShippingFee     int64
	OtherFees       int64
	TotalAmount     int64
	PaidAmount      int64
	RemainingAmount int64
	PaymentMethod   string
	Status          InvoiceStatus
	CancelReason    string
	Operator        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateInput describes a new invoice request. UpfrontPaid is the amount
// collected at the counter, 0 when invoiced on credit.
type CreateInput struct {
	CustomerID    string
	Lines         []Line
	Discount      int64
	ShippingFee   int64
	OtherFees     int64
	UpfrontPaid   int64
	PaymentMethod string
	Operator      string
}

// RefundApplication reports how a refund landed on the invoice balance.
// Absorbed is the part of the refund that exceeded the collected paidAmount
// and was floored away.
type RefundApplication struct {
	InvoiceID uuid.UUID
	Applied   int64
	Absorbed  int64
}

func subtotal(lines []Line) int64 {
	var sum int64
	for _, line := range lines {
		sum += line.Quantity * line.UnitPrice
	}
	return sum
}
