package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler manages stock ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/products", h.createProduct)
	r.Get("/products", h.listProducts)
	r.Get("/products/low-stock", h.lowStock)
	r.Get("/products/{id}", h.getProduct)
	r.Post("/products/{id}/inbound", h.inbound)
	r.Post("/products/{id}/outbound", h.outbound)
	r.Post("/products/{id}/adjust", h.adjust)
	r.Get("/products/{id}/transactions", h.history)
	r.Post("/products/{id}/recompute", h.recompute)
}

type createProductRequest struct {
	SKU      string `json:"sku" validate:"required"`
	Name     string `json:"name" validate:"required"`
	MinStock int64  `json:"min_stock" validate:"gte=0"`
}

type movementRequest struct {
	Quantity    int64  `json:"quantity" validate:"required,gt=0"`
	RelatedID   string `json:"related_id" validate:"omitempty,uuid"`
	RelatedType string `json:"related_type"`
	Note        string `json:"note"`
}

type adjustRequest struct {
	Delta int64  `json:"delta" validate:"required"`
	Note  string `json:"note"`
}

type productResponse struct {
	ID           string `json:"id"`
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	CurrentStock int64  `json:"current_stock"`
	MinStock     int64  `json:"min_stock"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type transactionResponse struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	Type        string `json:"type"`
	Quantity    int64  `json:"quantity"`
	BeforeStock int64  `json:"before_stock"`
	AfterStock  int64  `json:"after_stock"`
	RelatedID   string `json:"related_id,omitempty"`
	RelatedType string `json:"related_type,omitempty"`
	Note        string `json:"note,omitempty"`
	Operator    string `json:"operator,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type recomputeResponse struct {
	ProductID string `json:"product_id"`
	Stored    int64  `json:"stored"`
	Replayed  int64  `json:"replayed"`
	Repaired  bool   `json:"repaired"`
}

func toProductResponse(p Product) productResponse {
	return productResponse{
		ID:           p.ID.String(),
		SKU:          p.SKU,
		Name:         p.Name,
		CurrentStock: p.CurrentStock,
		MinStock:     p.MinStock,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    p.UpdatedAt.Format(time.RFC3339),
	}
}

func toTransactionResponse(tr Transaction) transactionResponse {
	resp := transactionResponse{
		ID:          tr.ID.String(),
		ProductID:   tr.ProductID.String(),
		Type:        string(tr.Type),
		Quantity:    tr.Quantity,
		BeforeStock: tr.BeforeStock,
		AfterStock:  tr.AfterStock,
		RelatedType: tr.RelatedType,
		Note:        tr.Note,
		Operator:    tr.Operator,
		CreatedAt:   tr.CreatedAt.Format(time.RFC3339),
	}
	if tr.RelatedID != uuid.Nil {
		resp.RelatedID = tr.RelatedID.String()
	}
	return resp
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	product, err := h.service.CreateProduct(r.Context(), CreateProductInput{
		SKU:      req.SKU,
		Name:     req.Name,
		MinStock: req.MinStock,
	})
	if err != nil {
		h.logger.Error("create product", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProductResponse(p))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.LowStock(r.Context())
	if err != nil {
		h.logger.Error("low stock report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProductResponse(p))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "product id must be a uuid")
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) inbound(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, TransactionTypeIn)
}

func (h *Handler) outbound(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, TransactionTypeOut)
}

func (h *Handler) movement(w http.ResponseWriter, r *http.Request, txType TransactionType) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "product id must be a uuid")
		return
	}
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	relatedID := uuid.Nil
	if req.RelatedID != "" {
		relatedID, _ = uuid.Parse(req.RelatedID)
	}

	tr, err := h.service.Apply(r.Context(), ApplyInput{
		ProductID:   id,
		Type:        txType,
		Quantity:    req.Quantity,
		RelatedID:   relatedID,
		RelatedType: req.RelatedType,
		Note:        req.Note,
		Operator:    shared.ActorFromContext(r.Context()).Operator(),
	})
	if err != nil {
		h.logger.Error("apply movement", slog.String("type", string(txType)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(tr))
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "product id must be a uuid")
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	tr, err := h.service.Adjust(r.Context(), AdjustInput{
		ProductID: id,
		Delta:     req.Delta,
		Note:      req.Note,
		Operator:  shared.ActorFromContext(r.Context()).Operator(),
	})
	if err != nil {
		h.logger.Error("adjust stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(tr))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "product id must be a uuid")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	transactions, err := h.service.History(r.Context(), HistoryFilter{ProductID: id, Limit: limit, Offset: offset})
	if err != nil {
		h.logger.Error("stock history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]transactionResponse, 0, len(transactions))
	for _, tr := range transactions {
		resp = append(resp, toTransactionResponse(tr))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) recompute(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "product id must be a uuid")
		return
	}
	result, err := h.service.Recompute(r.Context(), id)
	if err != nil {
		h.logger.Error("recompute stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, recomputeResponse{
		ProductID: result.ProductID.String(),
		Stored:    result.Stored,
		Replayed:  result.Replayed,
		Repaired:  result.Repaired,
	})
}
