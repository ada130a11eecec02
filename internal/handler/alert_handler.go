package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/agent-pulse/internal/domain"
	"go.uber.org/zap"
)

// AlertProcessor Описываем, что нам нужно от сервиса
type AlertProcessor interface {
	ProcessWebhookAlert(ctx context.Context, alert domain.Alert, raw map[string]interface{}) (*domain.Event, bool, error)
}

type AlertHandler struct {
	service AlertProcessor
	logger  *zap.Logger
}

func NewAlertHandler(s AlertProcessor, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{service: s, logger: logger.Named("alert-handler")}
}

// Trigger принимает вебхук внешней алертинговой системы.
// POST /alerts/trigger
//
// Внешний алертер никогда не получает ошибку из-за проблем анализатора:
// запуск анализа отвязан от ответа еще в сервисе.
func (h *AlertHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil || raw == nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	alert := parseWebhookAlert(raw)

	stored, triggered, err := h.service.ProcessWebhookAlert(r.Context(), alert, raw)
	if err != nil {
		h.logger.Error("alert processing failed",
			zap.String("alert_name", alert.AlertName), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to process alert")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":            true,
		"event_id":           stored.ID,
		"analysis_triggered": triggered,
	})
}

// parseWebhookAlert нормализует свободный JSON вебхука в Alert.
// Все поля контракта опциональны; отсутствующий alert_id синтезируется,
// чтобы у анализа всегда был сквозной идентификатор.
func parseWebhookAlert(raw map[string]interface{}) domain.Alert {
	alert := domain.Alert{
		AlertID:    stringField(raw, "alert_id"),
		AlertName:  stringField(raw, "alert_name"),
		Service:    stringField(raw, "service"),
		ErrorCount: intField(raw, "error_count"),
		Severity:   stringField(raw, "severity"),
		TimeRange:  stringField(raw, "time_range"),
		Timestamp:  time.Now().UTC(),
	}

	if alert.AlertID == "" {
		alert.AlertID = uuid.New().String()
	}
	if ts := stringField(raw, "timestamp"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			alert.Timestamp = parsed
		}
	}
	if qc, ok := raw["query_context"].(map[string]interface{}); ok {
		alert.QueryContext = qc
	}

	return alert
}

func stringField(raw map[string]interface{}, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

func intField(raw map[string]interface{}, key string) int {
	// JSON-числа приезжают как float64
	if v, ok := raw[key].(float64); ok {
		return int(v)
	}
	return 0
}
