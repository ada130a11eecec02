package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/agent-pulse/internal/domain"
)

type stubAlertProcessor struct {
	lastAlert domain.Alert
	lastRaw   map[string]interface{}
	calls     int
	triggered bool
}

func (s *stubAlertProcessor) ProcessWebhookAlert(ctx context.Context, alert domain.Alert, raw map[string]interface{}) (*domain.Event, bool, error) {
	s.calls++
	s.lastAlert = alert
	s.lastRaw = raw
	return &domain.Event{ID: 11, HookEventType: "AlertTriggered"}, s.triggered, nil
}

func TestTriggerAcknowledgesWebhook(t *testing.T) {
	svc := &stubAlertProcessor{triggered: true}
	h := NewAlertHandler(svc, zap.NewNop())

	body := `{"alert_name":"Critical: DB down","service":"checkout","error_count":3,"severity":"low","extra":"kept"}`
	req := httptest.NewRequest(http.MethodPost, "/alerts/trigger", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Trigger(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["success"] != true || resp["analysis_triggered"] != true {
		t.Fatalf("unexpected ack: %v", resp)
	}
	if resp["event_id"] != float64(11) {
		t.Fatalf("expected stored event id in ack, got %v", resp["event_id"])
	}

	if svc.lastAlert.AlertName != "Critical: DB down" || svc.lastAlert.ErrorCount != 3 {
		t.Fatalf("alert not normalized: %+v", svc.lastAlert)
	}
	// Сырой вебхук уходит в сервис целиком
	if svc.lastRaw["extra"] != "kept" {
		t.Fatalf("raw webhook not passed through: %v", svc.lastRaw)
	}
}

func TestTriggerInvalidBody(t *testing.T) {
	svc := &stubAlertProcessor{}
	h := NewAlertHandler(svc, zap.NewNop())

	for _, body := range []string{"{not json", "null"} {
		req := httptest.NewRequest(http.MethodPost, "/alerts/trigger", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.Trigger(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
	if svc.calls != 0 {
		t.Fatal("invalid webhook must not reach the service")
	}
}

func TestParseWebhookAlert(t *testing.T) {
	raw := map[string]interface{}{
		"alert_name":    "High error rate",
		"service":       "checkout",
		"error_count":   float64(25), // JSON-числа приезжают как float64
		"severity":      "high",
		"time_range":    "5m",
		"timestamp":     "2026-08-30T10:00:00Z",
		"query_context": map[string]interface{}{"threshold": float64(10)},
	}

	alert := parseWebhookAlert(raw)

	if alert.ErrorCount != 25 || alert.Service != "checkout" {
		t.Fatalf("fields not normalized: %+v", alert)
	}
	if alert.AlertID == "" {
		t.Fatal("missing alert_id must be synthesized")
	}
	want, _ := time.Parse(time.RFC3339, "2026-08-30T10:00:00Z")
	if !alert.Timestamp.Equal(want) {
		t.Fatalf("timestamp not parsed: %v", alert.Timestamp)
	}
	if alert.QueryContext["threshold"] != float64(10) {
		t.Fatalf("query_context lost: %v", alert.QueryContext)
	}
}

func TestParseWebhookAlertBadTimestampFallsBack(t *testing.T) {
	before := time.Now().UTC()
	alert := parseWebhookAlert(map[string]interface{}{"timestamp": "yesterday-ish"})
	if alert.Timestamp.Before(before.Add(-time.Minute)) {
		t.Fatalf("unparseable timestamp must fall back to now, got %v", alert.Timestamp)
	}
}
