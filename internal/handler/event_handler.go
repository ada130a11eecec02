package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/agent-pulse/internal/domain"
	"github.com/xela07ax/agent-pulse/internal/infra/auth"
	"go.uber.org/zap"
)

// Лимит выборки последних событий по умолчанию (и потолок для защиты от
// limit=1000000 из адресной строки)
const (
	defaultRecentLimit = 100
	maxRecentLimit     = 1000
)

// EventProvider Описываем, что нам нужно от сервиса
type EventProvider interface {
	Ingest(ctx context.Context, e *domain.Event) (*domain.Event, error)
	Recent(ctx context.Context, limit int) ([]*domain.Event, error)
	FilterOptions(ctx context.Context) (*domain.FilterOptions, error)
	RespondHITL(ctx context.Context, id int64, response map[string]interface{}, operatorID string) (*domain.Event, error)
}

type EventHandler struct {
	service EventProvider
	logger  *zap.Logger
}

func NewEventHandler(s EventProvider, logger *zap.Logger) *EventHandler {
	return &EventHandler{service: s, logger: logger.Named("event-handler")}
}

// Create принимает одно событие от hook-скрипта агента.
// POST /events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var e domain.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// id и timestamp принадлежат серверу, что бы клиент ни прислал
	e.ID = 0

	// Поля решения — тоже: событие не может родиться «уже отвеченным»,
	// иначе дашборд покажет ответ, которого не было
	if e.HumanInTheLoop != nil {
		e.HumanInTheLoop.Response = nil
		e.HumanInTheLoop.RespondedAt = nil
		e.HumanInTheLoop.RespondedBy = ""
	}

	if err := e.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	stored, err := h.service.Ingest(r.Context(), &e)
	if err != nil {
		h.logger.Error("event ingestion failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to store event")
		return
	}

	writeJSON(w, http.StatusOK, stored)
}

// Recent отдает N последних событий, новые первыми.
// GET /events/recent?limit=N
func (h *EventHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	events, err := h.service.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to fetch recent events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch events")
		return
	}

	writeJSON(w, http.StatusOK, events)
}

// FilterOptions отдает различные значения для фильтров дашборда.
// GET /events/filter-options
func (h *EventHandler) FilterOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.service.FilterOptions(r.Context())
	if err != nil {
		h.logger.Error("failed to fetch filter options", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch filter options")
		return
	}

	writeJSON(w, http.StatusOK, opts)
}

// Respond прикрепляет ответ оператора к HITL-событию.
// POST /events/{id}/respond
//
// Callback-адрес агента читается из сохраненного события, а не из тела
// запроса — дашборд не может перенаправить доставку.
func (h *EventHandler) Respond(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event id")
		return
	}

	var response map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&response); err != nil || response == nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.service.RespondHITL(r.Context(), id, response, auth.OperatorID(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEventNotFound):
			writeError(w, http.StatusNotFound, "Event not found")
		case errors.Is(err, domain.ErrAlreadyResponded):
			writeError(w, http.StatusConflict, "Event already has a response")
		default:
			h.logger.Error("hitl respond failed", zap.Int64("event_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to store response")
		}
		return
	}

	writeJSON(w, http.StatusOK, updated)
}
