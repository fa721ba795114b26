package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nairobikonnect/konnect/internal/auth"
	"github.com/nairobikonnect/konnect/internal/core/domain"
	"github.com/nairobikonnect/konnect/internal/core/service"
	"github.com/nairobikonnect/konnect/internal/port"
)

type HTTPHandler struct {
	reservations *service.ReservationService
	payments     *service.PaymentService
	log          *zap.Logger
}

func NewHTTPHandler(reservations *service.ReservationService, payments *service.PaymentService, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		reservations: reservations,
		payments:     payments,
		log:          log,
	}
}

// Routes wires the full HTTP surface. The provider callback stays outside the
// auth group: the provider signs nothing useful and redelivers at will, so the
// confirm path is idempotent instead of authenticated.
func (h *HTTPHandler) Routes(identity port.Identity) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/payments/callback", h.PaymentCallback)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(identity))

		r.Post("/api/reservations", h.CreateReservation)
		r.Get("/api/reservations/{id}", h.GetReservation)
		r.Delete("/api/reservations/{id}", h.ReleaseReservation)

		r.Post("/api/payments", h.InitiatePayment)
		r.Get("/api/payments/{transactionID}", h.PaymentStatus)

		r.Get("/api/units/{id}", h.GetUnit)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))
			r.Post("/api/units", h.CreateUnit)
			r.Put("/api/units/{id}/capacity", h.AdjustCapacity)
		})
	})

	return r
}

type createUnitRequest struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Capacity int    `json:"capacity"`
}

type unitResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Kind              string `json:"kind"`
	Capacity          int    `json:"capacity"`
	CapacityRemaining int    `json:"capacity_remaining"`
}

func (h *HTTPHandler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	var req createUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	kind := domain.UnitKind(req.Kind)
	if req.Name == "" || (kind != domain.UnitKindSeats && kind != domain.UnitKindStock) {
		writeError(w, http.StatusBadRequest, "name and kind (seats|stock) are required")
		return
	}

	unit, err := h.reservations.CreateUnit(r.Context(), req.Name, kind, req.Capacity)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUnitResponse(unit))
}

func (h *HTTPHandler) GetUnit(w http.ResponseWriter, r *http.Request) {
	unit, err := h.reservations.GetUnit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitResponse(unit))
}

type adjustCapacityRequest struct {
	Capacity int `json:"capacity"`
}

func (h *HTTPHandler) AdjustCapacity(w http.ResponseWriter, r *http.Request) {
	var req adjustCapacityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	unit, err := h.reservations.AdjustCapacity(r.Context(), chi.URLParam(r, "id"), req.Capacity)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUnitResponse(unit))
}

type createReservationRequest struct {
	UnitID         string `json:"unit_id"`
	Quantity       int    `json:"quantity"`
	IdempotencyKey string `json:"idempotency_key"`
}

type reservationResponse struct {
	ID       string `json:"id"`
	UnitID   string `json:"unit_id"`
	Quantity int    `json:"quantity"`
	Status   string `json:"status"`
	Created  string `json:"created_at"`
}

func (h *HTTPHandler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UnitID == "" {
		writeError(w, http.StatusBadRequest, "unit_id is required")
		return
	}

	// Header form wins over the body field when both are present.
	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = req.IdempotencyKey
	}

	principal := auth.FromContext(r.Context())
	reservation, err := h.reservations.Reserve(r.Context(), principal.UserID, req.UnitID, req.Quantity, idempotencyKey)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toReservationResponse(reservation))
}

func (h *HTTPHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	reservation, err := h.reservations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponse(reservation))
}

func (h *HTTPHandler) ReleaseReservation(w http.ResponseWriter, r *http.Request) {
	if err := h.reservations.Release(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type initiatePaymentRequest struct {
	ReservationID string `json:"reservation_id"`
	Amount        int64  `json:"amount"`
	Phone         string `json:"phone"`
}

type paymentResponse struct {
	TransactionID string `json:"transaction_id"`
	ReservationID string `json:"reservation_id,omitempty"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
}

func (h *HTTPHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Phone == "" || req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "phone and a positive amount are required")
		return
	}

	payment, err := h.payments.Initiate(r.Context(), req.ReservationID, req.Amount, req.Phone)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPaymentResponse(payment))
}

func (h *HTTPHandler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	payment, err := h.payments.Status(r.Context(), chi.URLParam(r, "transactionID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

type callbackRequest struct {
	TransactionID string `json:"transaction_id"`
	Outcome       string `json:"outcome"`
}

// PaymentCallback receives the provider's asynchronous result. Redeliveries
// of an already-applied outcome answer 200 without side effects.
func (h *HTTPHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TransactionID == "" {
		writeError(w, http.StatusBadRequest, "transaction_id is required")
		return
	}

	err := h.payments.Confirm(r.Context(), req.TransactionID, domain.PaymentStatus(req.Outcome))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidOutcome):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInsufficientCapacity):
		writeError(w, http.StatusGone, "sold out")
	case errors.Is(err, domain.ErrAlreadyReleased),
		errors.Is(err, domain.ErrAlreadyFinalized),
		errors.Is(err, domain.ErrDuplicateRequest),
		errors.Is(err, domain.ErrContention):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, port.ErrProviderTimeout),
		errors.Is(err, port.ErrProviderUnavailable),
		errors.Is(err, port.ErrProviderRejected):
		writeError(w, http.StatusBadGateway, "payment provider error")
	default:
		h.log.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func toUnitResponse(u *domain.InventoryUnit) unitResponse {
	return unitResponse{
		ID:                u.ID,
		Name:              u.Name,
		Kind:              string(u.Kind),
		Capacity:          u.Capacity,
		CapacityRemaining: u.CapacityRemaining,
	}
}

func toReservationResponse(r *domain.Reservation) reservationResponse {
	return reservationResponse{
		ID:       r.ID,
		UnitID:   r.UnitID,
		Quantity: r.Quantity,
		Status:   string(r.Status),
		Created:  r.CreatedAt.Format(time.RFC3339),
	}
}

func toPaymentResponse(p *domain.PaymentAttempt) paymentResponse {
	return paymentResponse{
		TransactionID: p.TransactionID,
		ReservationID: p.ReservationID,
		Amount:        p.Amount,
		Status:        string(p.Status),
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
