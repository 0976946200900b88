package labels

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tillpoint/backoffice/internal/platform/httpx"
)

// Handler serves label expansion to the printing frontend.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers label routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/grn/{id}", h.handleExpand)
}

var errorClassifiers = []httpx.Classifier{
	httpx.Is(httpx.KindInvalidState, ErrInvalidState),
	httpx.Is(httpx.KindNotFound, ErrNotFound),
}

func (h *Handler) handleExpand(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid receipt id")
		return
	}
	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = "en"
	}
	items, err := h.service.BuildFromGRN(r.Context(), id, lang)
	if err != nil {
		h.logger.Error("label expansion failed", slog.Int64("grn_id", id), slog.Any("error", err))
		httpx.RespondError(w, err, errorClassifiers...)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}
