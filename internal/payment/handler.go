// AngelaMos | 2026
// handler.go

package payment

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/promptstudio/api/internal/core"
	"github.com/promptstudio/api/internal/middleware"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/payments/manual", func(r chi.Router) {
		r.Use(authenticator)

		r.Post("/", h.Submit)
		r.Get("/", h.ListMine)
	})
}

// RegisterAdminRoutes registers the review queue and the approve and
// reject actions.
func (h *Handler) RegisterAdminRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin/payments/manual", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/", h.List)
		r.Get("/{paymentID}", h.Get)
		r.Post("/approve", h.Approve)
		r.Post("/reject", h.Reject)
	})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	resp, err := h.service.Submit(r.Context(), userID, req)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.CreatedMessage(w, "payment submitted", resp)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	params := listParams(r)

	payments, total, err := h.service.ListForUser(r.Context(), userID, params)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.Paginated(
		w,
		ToPaymentResponseList(payments),
		params.Page,
		params.PageSize,
		total,
	)
}

// List returns the admin review queue, filtered by ?status= when given.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	params := listParams(r)
	params.UserID = r.URL.Query().Get("user_id")

	payments, total, err := h.service.List(r.Context(), params)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.Paginated(
		w,
		ToPaymentResponseList(payments),
		params.Page,
		params.PageSize,
		total,
	)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, ToPaymentResponse(p))
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	admin := middleware.GetAdminEmail(r.Context())

	resp, err := h.service.Approve(r.Context(), req.PaymentID, admin)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OKMessage(w, "payment approved", resp)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	admin := middleware.GetAdminEmail(r.Context())

	resp, err := h.service.Reject(r.Context(), req.PaymentID, admin, req.Reason)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OKMessage(w, "payment rejected", resp)
}

func listParams(r *http.Request) ListParams {
	params := ListParams{
		Status:   r.URL.Query().Get("status"),
		Page:     parseIntQuery(r, "page", 1),
		PageSize: parseIntQuery(r, "page_size", 20),
	}
	params.Normalize()
	return params
}

func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}

	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return parsed
}
