package accounts

import (
	"time"

	"github.com/google/uuid"
)

// Kind splits the ledger into money owed to us and money we owe.
type Kind string

const (
	KindReceivable Kind = "receivable"
	KindPayable    Kind = "payable"
)

// Status enumerates settlement states. Never trusted from storage; always
// derived from balance and due date at read time.
type Status string

const (
	StatusPending Status = "pending"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

// Account tracks one outstanding balance against a customer or supplier.
// Receivables and payables are structurally identical; Kind is the only axis.
type Account struct {
	ID              uuid.UUID
	Kind            Kind
	PartyID         string
	PartyName       string
	Reference       string
	TotalAmount     int64
	PaidAmount      int64
	RemainingAmount int64
	DueDate         time.Time
	Status          Status
	Operator        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PaymentRecord is one immutable settlement entry against an account.
type PaymentRecord struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Amount    int64
	Method    string
	Reference string
	PaidAt    time.Time
	Operator  string
	CreatedAt time.Time
}

// OpenInput describes a new account entry.
type OpenInput struct {
	Kind        Kind
	PartyID     string
	PartyName   string
	Reference   string
	TotalAmount int64
	DueDate     time.Time
	Operator    string
}

// PaymentInput describes a settlement against an account.
type PaymentInput struct {
	AccountID uuid.UUID
	Amount    int64
	Method    string
	Reference string
	PaidAt    time.Time
	Operator  string
}

// AgingBucket summarises outstanding balances by days overdue.
type AgingBucket struct {
	Current   int64
	Bucket30  int64
	Bucket60  int64
	Bucket90  int64
	Bucket120 int64
}

// DeriveStatus is the single source of truth for an account's settlement
// state: paid when nothing remains, partial once anything was collected,
// overdue past the due date, pending otherwise.
func DeriveStatus(account Account, now time.Time) Status {
	switch {
	case account.RemainingAmount == 0:
		return StatusPaid
	case account.PaidAmount > 0:
		return StatusPartial
	case !account.DueDate.IsZero() && account.DueDate.Before(now):
		return StatusOverdue
	default:
		return StatusPending
	}
}

// OverdueDays reports whole days past due, never negative. Reporting only.
func OverdueDays(account Account, now time.Time) int {
	if account.DueDate.IsZero() || !account.DueDate.Before(now) {
		return 0
	}
	return int(now.Sub(account.DueDate).Hours() / 24)
}

func validKind(kind Kind) bool {
	return kind == KindReceivable || kind == KindPayable
}
