package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807. The detail
// carries the wrapped message (exact balances, current stock) so the caller can
// correct the input.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInsufficientStock):
		Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrInvalidAmount):
		Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
	case errors.Is(err, shared.ErrNoItemsSelected):
		Problem(w, http.StatusBadRequest, "No Items Selected", err.Error())
	case errors.Is(err, shared.ErrOverpayment):
		Problem(w, http.StatusUnprocessableEntity, "Overpayment", err.Error())
	case errors.Is(err, shared.ErrIllegalTransition):
		Problem(w, http.StatusConflict, "Illegal State Transition", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, shared.ErrLedgerDesync):
		Problem(w, http.StatusInternalServerError, "Ledger Desync", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
