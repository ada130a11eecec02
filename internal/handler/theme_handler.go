package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/agent-pulse/internal/domain"
	"github.com/xela07ax/agent-pulse/internal/infra/auth"
	"go.uber.org/zap"
)

// ThemeProvider Описываем, что нам нужно от сервиса
type ThemeProvider interface {
	Create(ctx context.Context, authorID string, t *domain.Theme) (*domain.Theme, error)
	Get(ctx context.Context, authorID, id string) (*domain.Theme, error)
	Search(ctx context.Context, authorID, query string) ([]*domain.Theme, error)
	Update(ctx context.Context, authorID string, t *domain.Theme) (*domain.Theme, error)
	Delete(ctx context.Context, authorID, id string) error
	Export(ctx context.Context, authorID, id string) (*domain.ThemeExport, error)
	Import(ctx context.Context, authorID string, export *domain.ThemeExport) (*domain.Theme, error)
}

type ThemeHandler struct {
	service ThemeProvider
	logger  *zap.Logger
}

func NewThemeHandler(s ThemeProvider, logger *zap.Logger) *ThemeHandler {
	return &ThemeHandler{service: s, logger: logger.Named("theme-handler")}
}

// Routes собирает поддерево /api/themes.
func (h *ThemeHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/import", h.Import)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Get("/export", h.Export)
	})
	return r
}

func (h *ThemeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var t domain.Theme
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if t.Name == "" {
		writeError(w, http.StatusBadRequest, "Theme name is required")
		return
	}

	created, err := h.service.Create(r.Context(), auth.OperatorID(r.Context()), &t)
	if err != nil {
		h.logger.Error("theme create failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create theme")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ThemeHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q") // Поиск по подстроке имени
	themes, err := h.service.Search(r.Context(), auth.OperatorID(r.Context()), query)
	if err != nil {
		h.logger.Error("theme search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch themes")
		return
	}
	writeJSON(w, http.StatusOK, themes)
}

func (h *ThemeHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Get(r.Context(), auth.OperatorID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.themeError(w, err, "fetch")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *ThemeHandler) Update(w http.ResponseWriter, r *http.Request) {
	var t domain.Theme
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	t.ID = chi.URLParam(r, "id")

	updated, err := h.service.Update(r.Context(), auth.OperatorID(r.Context()), &t)
	if err != nil {
		h.themeError(w, err, "update")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ThemeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), auth.OperatorID(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.themeError(w, err, "delete")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ThemeHandler) Export(w http.ResponseWriter, r *http.Request) {
	export, err := h.service.Export(r.Context(), auth.OperatorID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.themeError(w, err, "export")
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (h *ThemeHandler) Import(w http.ResponseWriter, r *http.Request) {
	var export domain.ThemeExport
	if err := json.NewDecoder(r.Body).Decode(&export); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.service.Import(r.Context(), auth.OperatorID(r.Context()), &export)
	if err != nil {
		h.logger.Error("theme import failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid theme export")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ThemeHandler) themeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, domain.ErrThemeNotFound):
		writeError(w, http.StatusNotFound, "Theme not found")
	case errors.Is(err, domain.ErrThemeAccess):
		writeError(w, http.StatusForbidden, "Theme belongs to another author")
	default:
		h.logger.Error("theme operation failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Theme operation failed")
	}
}
