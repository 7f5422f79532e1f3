package accounts

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

// Handler manages receivable/payable endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", h.open)
		r.Get("/", h.list)
		r.Get("/aging", h.aging)
		r.Get("/{id}", h.get)
		r.Get("/{id}/payments", h.listPayments)
		r.Post("/{id}/payments", h.recordPayment)
	})
}

type openRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=receivable payable"`
	PartyID     string `json:"party_id"`
	PartyName   string `json:"party_name"`
	Reference   string `json:"reference"`
	TotalAmount int64  `json:"total_amount" validate:"required,gt=0"`
	DueDate     string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
}

type paymentRequest struct {
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
	PaidAt    string `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
}

type accountResponse struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	PartyID         string `json:"party_id,omitempty"`
	PartyName       string `json:"party_name,omitempty"`
	Reference       string `json:"reference,omitempty"`
	TotalAmount     int64  `json:"total_amount"`
	PaidAmount      int64  `json:"paid_amount"`
	RemainingAmount int64  `json:"remaining_amount"`
	DueDate         string `json:"due_date,omitempty"`
	Status          string `json:"status"`
	OverdueDays     int    `json:"overdue_days"`
	Operator        string `json:"operator,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

type paymentResponse struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Method    string `json:"method,omitempty"`
	Reference string `json:"reference,omitempty"`
	PaidAt    string `json:"paid_at"`
	Operator  string `json:"operator,omitempty"`
}

type paymentResult struct {
	Account accountResponse `json:"account"`
	Payment paymentResponse `json:"payment"`
}

type agingResponse struct {
	Kind      string `json:"kind"`
	AsOf      string `json:"as_of"`
	Current   int64  `json:"current"`
	Bucket30  int64  `json:"bucket_30"`
	Bucket60  int64  `json:"bucket_60"`
	Bucket90  int64  `json:"bucket_90"`
	Bucket120 int64  `json:"bucket_120"`
}

func toAccountResponse(account Account) accountResponse {
	resp := accountResponse{
		ID:              account.ID.String(),
		Kind:            string(account.Kind),
		PartyID:         account.PartyID,
		PartyName:       account.PartyName,
		Reference:       account.Reference,
		TotalAmount:     account.TotalAmount,
		PaidAmount:      account.PaidAmount,
		RemainingAmount: account.RemainingAmount,
		Status:          string(account.Status),
		OverdueDays:     OverdueDays(account, time.Now().UTC()),
		Operator:        account.Operator,
		CreatedAt:       account.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       account.UpdatedAt.Format(time.RFC3339),
	}
	if !account.DueDate.IsZero() {
		resp.DueDate = account.DueDate.Format("2006-01-02")
	}
	return resp
}

func toPaymentResponse(payment PaymentRecord) paymentResponse {
	return paymentResponse{
		ID:        payment.ID.String(),
		AccountID: payment.AccountID.String(),
		Amount:    payment.Amount,
		Method:    payment.Method,
		Reference: payment.Reference,
		PaidAt:    payment.PaidAt.Format(time.RFC3339),
		Operator:  payment.Operator,
	}
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var dueDate time.Time
	if req.DueDate != "" {
		dueDate, _ = time.Parse("2006-01-02", req.DueDate)
	}

	account, err := h.service.Open(r.Context(), OpenInput{
		Kind:        Kind(req.Kind),
		PartyID:     req.PartyID,
		PartyName:   req.PartyName,
		Reference:   req.Reference,
		TotalAmount: req.TotalAmount,
		DueDate:     dueDate,
		Operator:    shared.ActorFromContext(r.Context()).Operator(),
	})
	if err != nil {
		h.logger.Error("open account", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	kind := Kind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = KindReceivable
	}
	accounts, err := h.service.List(r.Context(), kind)
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]accountResponse, 0, len(accounts))
	for _, account := range accounts {
		resp = append(resp, toAccountResponse(account))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "account id must be a uuid")
		return
	}
	account, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "account id must be a uuid")
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
	var paidAt time.Time
	if req.PaidAt != "" {
		paidAt, _ = time.Parse("2006-01-02", req.PaidAt)
	}

	account, payment, err := h.service.RecordPayment(r.Context(), PaymentInput{
		AccountID: id,
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: req.Reference,
		PaidAt:    paidAt,
		Operator:  shared.ActorFromContext(r.Context()).Operator(),
	})
	if err != nil {
		h.logger.Error("record account payment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, paymentResult{
		Account: toAccountResponse(account),
		Payment: toPaymentResponse(payment),
	})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "account id must be a uuid")
		return
	}
	payments, err := h.service.Payments(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := make([]paymentResponse, 0, len(payments))
	for _, payment := range payments {
		resp = append(resp, toPaymentResponse(payment))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	kind := Kind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = KindReceivable
	}
	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}

	bucket, err := h.service.Aging(r.Context(), kind, asOf)
	if err != nil {
		h.logger.Error("account aging", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, agingResponse{
		Kind:      string(kind),
		AsOf:      asOf.Format("2006-01-02"),
		Current:   bucket.Current,
		Bucket30:  bucket.Bucket30,
		Bucket60:  bucket.Bucket60,
		Bucket90:  bucket.Bucket90,
		Bucket120: bucket.Bucket120,
	})
}
