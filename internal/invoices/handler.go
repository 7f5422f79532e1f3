package invoices

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

// Handler manages invoice endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Post("/{id}/payments", h.recordPayment)
		r.Post("/{id}/cancel", h.cancel)
	})
}

type lineRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0"`
}

type createRequest struct {
	CustomerID    string        `json:"customer_id"`
	Lines         []lineRequest `json:"lines" validate:"required,min=1,dive"`
	Discount      int64         `json:"discount" validate:"gte=0"`
	ShippingFee   int64         `json:"shipping_fee" validate:"gte=0"`
	OtherFees     int64         `json:"other_fees" validate:"gte=0"`
	UpfrontPaid   int64         `json:"upfront_paid" validate:"gte=0"`
	PaymentMethod string        `json:"payment_method"`
}

type paymentRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Method string `json:"method"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type lineResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type invoiceResponse struct {
	ID              string         `json:"id"`
	CustomerID      string         `json:"customer_id,omitempty"`
	Lines           []lineResponse `json:"lines,omitempty"`
	Subtotal        int64          `json:"subtotal"`
	Discount        int64          `json:"discount"`
	ShippingFee     int64          `json:"shipping_fee"`
	OtherFees       int64          `json:"other_fees"`
	TotalAmount     int64          `json:"total_amount"`
	PaidAmount      int64          `json:"paid_amount"`
	RemainingAmount int64          `json:"remaining_amount"`
	PaymentMethod   string         `json:"payment_method,omitempty"`
	Status          string         `json:"status"`
	CancelReason    string         `json:"cancel_reason,omitempty"`
	Operator        string         `json:"operator,omitempty"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
}

func toInvoiceResponse(inv Invoice) invoiceResponse {
	resp := invoiceResponse{
		ID:              inv.ID.String(),
		CustomerID:      inv.CustomerID,
		Subtotal:        inv.Subtotal,
		Discount:        inv.Discount,
		ShippingFee:     inv.ShippingFee,
		OtherFees:       inv.OtherFees,
		TotalAmount:     inv.TotalAmount,
		PaidAmount:      inv.PaidAmount,
		RemainingAmount: inv.RemainingAmount,
		PaymentMethod:   inv.PaymentMethod,
		Status:          string(inv.Status),
		CancelReason:    inv.CancelReason,
		Operator:        inv.Operator,
		CreatedAt:       inv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       inv.UpdatedAt.Format(time.RFC3339),
	}
	for _, line := range inv.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ProductID: line.ProductID.String(),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
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

	lines := make([]Line, 0, len(req.Lines))
	for _, line := range req.Lines {
		productID, _ := uuid.Parse(line.ProductID)
		lines = append(lines, Line{ProductID: productID, Quantity: line.Quantity, UnitPrice: line.UnitPrice})
	}

	inv, err := h.service.Create(r.Context(), CreateInput{
		CustomerID:    req.CustomerID,
		Lines:         lines,
		Discount:      req.Discount,
		ShippingFee:   req.ShippingFee,
		OtherFees:     req.OtherFees,
		UpfrontPaid:   req.UpfrontPaid,
		PaymentMethod: req.PaymentMethod,
		Operator:      shared.ActorFromContext(r.Context()).Operator(),
	})
	if err != nil {
		h.logger.Error("create invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		resp = append(resp, toInvoiceResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "invoice id must be a uuid")
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "invoice id must be a uuid")
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	inv, err := h.service.RecordPayment(r.Context(), id, req.Amount, req.Method, shared.ActorFromContext(r.Context()).Operator())
	if err != nil {
		h.logger.Error("record invoice payment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "invoice id must be a uuid")
		return
	}
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	inv, err := h.service.Cancel(r.Context(), id, req.Reason, shared.ActorFromContext(r.Context()).Operator())
	if err != nil {
		h.logger.Error("cancel invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}
