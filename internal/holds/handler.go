package holds

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

// Handler manages reservation and exhibition endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers hold routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reservations", func(r chi.Router) {
		r.Post("/", h.createReservation)
		r.Get("/", h.listReservations)
		r.Get("/{id}", h.getReservation)
		r.Post("/{id}/transition", h.transitionReservation)
		r.Delete("/{id}", h.deleteReservation)
	})
	r.Route("/exhibitions", func(r chi.Router) {
		r.Post("/", h.createExhibition)
		r.Get("/", h.listExhibitions)
		r.Get("/{id}", h.getExhibition)
		r.Post("/{id}/transition", h.transitionExhibition)
		r.Delete("/{id}", h.deleteExhibition)
	})
}

type createReservationRequest struct {
	ProductID   string `json:"product_id" validate:"required,uuid"`
	Quantity    int64  `json:"quantity" validate:"required,gt=0"`
	Kind        string `json:"kind" validate:"required,oneof=customer activity project event"`
	RelatedID   string `json:"related_id"`
	RelatedName string `json:"related_name"`
}

type createExhibitionRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	EventName string `json:"event_name" validate:"required"`
	EventDate string `json:"event_date" validate:"omitempty,datetime=2006-01-02"`
	Location  string `json:"location"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

type reservationResponse struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	Quantity    int64  `json:"quantity"`
	Kind        string `json:"kind"`
	RelatedID   string `json:"related_id,omitempty"`
	RelatedName string `json:"related_name,omitempty"`
	Status      string `json:"status"`
	Operator    string `json:"operator,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type exhibitionResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	EventName string `json:"event_name"`
	EventDate string `json:"event_date,omitempty"`
	Location  string `json:"location,omitempty"`
	Status    string `json:"status"`
	Operator  string `json:"operator,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toReservationResponse(res Reservation) reservationResponse {
	return reservationResponse{
		ID:          res.ID.String(),
		ProductID:   res.ProductID.String(),
		Quantity:    res.Quantity,
		Kind:        string(res.Kind),
		RelatedID:   res.RelatedID,
		RelatedName: res.RelatedName,
		Status:      string(res.Status),
		Operator:    res.Operator,
		CreatedAt:   res.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   res.UpdatedAt.Format(time.RFC3339),
	}
}

func toExhibitionResponse(ex Exhibition) exhibitionResponse {
	resp := exhibitionResponse{
		ID:        ex.ID.String(),
		ProductID: ex.ProductID.String(),
		Quantity:  ex.Quantity,
		EventName: ex.EventName,
		Location:  ex.Location,
		Status:    string(ex.Status),
		Operator:  ex.Operator,
		CreatedAt: ex.CreatedAt.Format(time.RFC3339),
		UpdatedAt: ex.UpdatedAt.Format(time.RFC3339),
	}
	if !ex.EventDate.IsZero() {
		resp.EventDate = ex.EventDate.Format("2006-01-02")
	}
	return resp
}

func (h *Handler) createReservation(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	productID, _ := uuid.Parse(req.ProductID)

	res, err := h.service.CreateReservation(r.Context(), CreateReservationInput{
		ProductID:   productID,
		Quantity:    req.Quantity,
		Kind:        ReservationKind(req.Kind),
		RelatedID:   req.RelatedID,
		RelatedName: req.RelatedName,
		Operator:    shared.ActorFromContext(r.Context()).Operator(),
	})
	if err != nil {
		h.logger.Error("create reservation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toReservationResponse(res))
}

func (h *Handler) listReservations(w http.ResponseWriter, r *http.Request) {
	reservations, err := h.service.ListReservations(r.Context())
	if err != nil {
		h.logger.Error("list reservations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]reservationResponse, 0, len(reservations))
	for _, res := range reservations {
		resp = append(resp, toReservationResponse(res))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) getReservation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "reservation id must be a uuid")
		return
	}
	res, err := h.service.GetReservation(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReservationResponse(res))
}

func (h *Handler) transitionReservation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "reservation id must be a uuid")
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	res, err := h.service.TransitionReservation(r.Context(), id, ReservationStatus(req.Status), shared.ActorFromContext(r.Context()).Operator())
	if err != nil {
		h.logger.Error("transition reservation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReservationResponse(res))
}

func (h *Handler) deleteReservation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "reservation id must be a uuid")
		return
	}
	if err := h.service.DeleteReservation(r.Context(), id, shared.ActorFromContext(r.Context()).Operator()); err != nil {
		h.logger.Error("delete reservation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createExhibition(w http.ResponseWriter, r *http.Request) {
	var req createExhibitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	productID, _ := uuid.Parse(req.ProductID)
	var eventDate time.Time
	if req.EventDate != "" {
		eventDate, _ = time.Parse("2006-01-02", req.EventDate)
	}

	ex, err := h.service.CreateExhibition(r.Context(), CreateExhibitionInput{
		ProductID: productID,
		Quantity:  req.Quantity,
		EventName: req.EventName,
		EventDate: eventDate,
		Location:  req.Location,
		Operator:  shared.ActorFromContext(r.Context()).Operator(),
	})
	if err != nil {
		h.logger.Error("create exhibition", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toExhibitionResponse(ex))
}

func (h *Handler) listExhibitions(w http.ResponseWriter, r *http.Request) {
	exhibitions, err := h.service.ListExhibitions(r.Context())
	if err != nil {
		h.logger.Error("list exhibitions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]exhibitionResponse, 0, len(exhibitions))
	for _, ex := range exhibitions {
		resp = append(resp, toExhibitionResponse(ex))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) getExhibition(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "exhibition id must be a uuid")
		return
	}
	ex, err := h.service.GetExhibition(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toExhibitionResponse(ex))
}

func (h *Handler) transitionExhibition(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "exhibition id must be a uuid")
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	ex, err := h.service.TransitionExhibition(r.Context(), id, ExhibitionStatus(req.Status), shared.ActorFromContext(r.Context()).Operator())
	if err != nil {
		h.logger.Error("transition exhibition", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toExhibitionResponse(ex))
}

func (h *Handler) deleteExhibition(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Id", "exhibition id must be a uuid")
		return
	}
	if err := h.service.DeleteExhibition(r.Context(), id, shared.ActorFromContext(r.Context()).Operator()); err != nil {
		h.logger.Error("delete exhibition", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
