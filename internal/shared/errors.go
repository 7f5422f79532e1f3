package shared

import "errors"

// Domain failure taxonomy shared across the ledger and settlement packages.
// Callers wrap these with context (exact balances, stock counts) so the
// message is always sufficient to correct the input.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates a requested OUT/HOLD exceeds current stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidAmount indicates a non-positive or malformed monetary/quantity input.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrOverpayment indicates a payment or refund exceeding the outstanding balance.
	ErrOverpayment = errors.New("payment exceeds outstanding balance")
	// ErrIllegalTransition indicates a state transition not permitted from the current state.
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrLedgerDesync indicates the ledger write and projection update did not both
	// complete. Surfaced for manual repair, never retried blindly.
	ErrLedgerDesync = errors.New("ledger and stock projection out of sync")
	// ErrNoItemsSelected indicates a submission with zero effective line items.
	ErrNoItemsSelected = errors.New("no items selected")
)
