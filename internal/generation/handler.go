// AngelaMos | 2026
// handler.go

package generation

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

// RegisterRoutes mounts the generation endpoints behind authenticator and
// the per-plan rate limiter, and the history endpoint behind authenticator.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, limiter func(http.Handler) http.Handler,
) {
	r.Route("/generate", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(limiter)

		r.Post("/image-to-prompt", h.ImageToPrompt)
		r.Post("/concept-prompt", h.ConceptPrompt)
		r.Post("/image", h.Image)
		r.Post("/enhance", h.Enhance)
		r.Post("/video-prompt", h.VideoPrompt)
	})

	r.Route("/prompts", func(r chi.Router) {
		r.Use(authenticator)

		r.Get("/", h.History)
	})
}

func (h *Handler) ImageToPrompt(w http.ResponseWriter, r *http.Request) {
	var req ImageToPromptRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.service.ImageToPrompt(r.Context(), middleware.GetUserID(r.Context()), req)
	respond(w, resp, err)
}

func (h *Handler) ConceptPrompt(w http.ResponseWriter, r *http.Request) {
	var req ConceptPromptRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.service.ConceptPrompt(r.Context(), middleware.GetUserID(r.Context()), req)
	respond(w, resp, err)
}

func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	var req ImageRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.service.Image(r.Context(), middleware.GetUserID(r.Context()), req)
	respond(w, resp, err)
}

func (h *Handler) Enhance(w http.ResponseWriter, r *http.Request) {
	var req EnhanceRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.service.Enhance(r.Context(), middleware.GetUserID(r.Context()), req)
	respond(w, resp, err)
}

func (h *Handler) VideoPrompt(w http.ResponseWriter, r *http.Request) {
	var req VideoPromptRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.service.VideoPrompt(r.Context(), middleware.GetUserID(r.Context()), req)
	respond(w, resp, err)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	params := ListParams{
		Kind:     r.URL.Query().Get("kind"),
		Page:     parseIntQuery(r, "page", 1),
		PageSize: parseIntQuery(r, "page_size", 20),
	}
	params.Normalize()

	prompts, total, err := h.service.History(
		r.Context(),
		middleware.GetUserID(r.Context()),
		params,
	)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.Paginated(
		w,
		ToPromptResponseList(prompts),
		params.Page,
		params.PageSize,
		total,
	)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		core.BadRequest(w, "invalid request body")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}

	return true
}

func respond(w http.ResponseWriter, resp *GenerationResponse, err error) {
	if err != nil {
		core.JSONError(w, err)
		return
	}
	core.OK(w, resp)
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
