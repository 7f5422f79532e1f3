package refunds

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler manages refund endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers refund routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/refunds", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/reject", h.reject)
		r.Post("/{id}/complete", h.complete)
	})
}

type itemRequest struct {
	ProductID       string `json:"product_id" validate:"required,uuid"`
	Quantity        int64  `json:"quantity" validate:"gte=0"`
	RestockQuantity int64  `json:"restock_quantity" validate:"gte=0"`
}

type createRequest struct {
	InvoiceID string        `json:"invoice_id" validate:"required,uuid"`
	Items     []itemRequest `json:"items" validate:"required,min=1,dive"`
	Reason    string        `json:"reason" validate:"required"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type itemResponse struct {
	ProductID       string `json:"product_id"`
	Quantity        int64  `json:"quantity"`
	RestockQuantity int64  `json:"restock_quantity"`
	UnitPrice       int64  `json:"unit_price"`
}

type refundResponse struct {
	ID           string         `json:"id"`
	InvoiceID    string         `json:"invoice_id"`
	Items        []itemResponse `json:"items,omitempty"`
	RefundAmount int64          `json:"refund_amount"`
	Reason       string         `json:"reason"`
	RejectReason string         `json:"reject_reason,omitempty"`
	Status       string         `json:"status"`
	Operator     string         `json:"operator,omitempty"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
}

func toRefundResponse(ref RefundOrder) refundResponse {
	resp := refundResponse{
		ID:           ref.ID.String(),
		InvoiceID:    ref.InvoiceID.String(),
		RefundAmount: ref.RefundAmount,
		Reason:       ref.Reason,
		RejectReason: ref.RejectReason,
		Status:       string(ref.Status),
		Operator:     ref.Operator,
		CreatedAt:    ref.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    ref.UpdatedAt.Format(time.RFC3339),
	}
	for _, item := range ref.Items {
		resp.Items = append(resp.Items, itemResponse{
			ProductID:       item.ProductID.String(),
			Quantity:        item.Quantity,
			RestockQuantity: item.RestockQuantity,
			UnitPrice:       item.UnitPrice,
		})
	}
	return resp
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	invoiceID, _ := uuid.Parse(req.InvoiceID)

	items := make([]ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		productID, _ := uuid.Parse(item.ProductID)
		items = append(items, ItemInput{
			ProductID:       productID,
			Quantity:        item.Quantity,
			RestockQuantity: item.RestockQuantity,
		})
	}

	ref, err := h.service.Create(r.Context(), CreateInput{
		InvoiceID: invoiceID,
		Items:     items,
		Reason:    req.Reason,
		Operator:  shared.ActorFromContext(r.Context()).Operator(),
	})
	if err != nil {
		h.logger.Error("create refund", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRefundResponse(ref))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	refunds, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list refunds", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]refundResponse, 0, len(refunds))
	for _, ref := range refunds {
		resp = append(resp, toRefundResponse(ref))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "refund id must be a uuid")
		return
	}
	ref, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRefundResponse(ref))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "refund id must be a uuid")
		return
	}
	ref, err := h.service.Approve(r.Context(), id, shared.ActorFromContext(r.Context()).Operator())
	if err != nil {
		h.logger.Error("approve refund", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRefundResponse(ref))
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "refund id must be a uuid")
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	ref, err := h.service.Reject(r.Context(), id, req.Reason, shared.ActorFromContext(r.Context()).Operator())
	if err != nil {
		h.logger.Error("reject refund", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRefundResponse(ref))
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "refund id must be a uuid")
		return
	}
	ref, err := h.service.Complete(r.Context(), id, shared.ActorFromContext(r.Context()).Operator())
	if err != nil {
		h.logger.Error("complete refund", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRefundResponse(ref))
}
