package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/agent-pulse/internal/domain"
)

type stubEventService struct {
	ingested    []*domain.Event
	recentLimit int
	respondErr  error
	responded   *domain.Event
}

func (s *stubEventService) Ingest(ctx context.Context, e *domain.Event) (*domain.Event, error) {
	stored := *e
	stored.ID = int64(len(s.ingested) + 1)
	stored.Timestamp = time.Now().UTC()
	s.ingested = append(s.ingested, &stored)
	return &stored, nil
}

func (s *stubEventService) Recent(ctx context.Context, limit int) ([]*domain.Event, error) {
	s.recentLimit = limit
	return []*domain.Event{}, nil
}

func (s *stubEventService) FilterOptions(ctx context.Context) (*domain.FilterOptions, error) {
	return &domain.FilterOptions{
		SourceApps:     []string{"resume-agent"},
		SessionIDs:     []string{"s1"},
		HookEventTypes: []string{"PreToolUse"},
	}, nil
}

func (s *stubEventService) RespondHITL(ctx context.Context, id int64, response map[string]interface{}, operatorID string) (*domain.Event, error) {
	if s.respondErr != nil {
		return nil, s.respondErr
	}
	return s.responded, nil
}

func newEventRouter(svc *stubEventService) http.Handler {
	h := NewEventHandler(svc, zap.NewNop())
	r := chi.NewRouter()
	r.Post("/events", h.Create)
	r.Get("/events/recent", h.Recent)
	r.Get("/events/filter-options", h.FilterOptions)
	r.Post("/events/{id}/respond", h.Respond)
	return r
}

func TestCreateEventAssignsServerFields(t *testing.T) {
	svc := &stubEventService{}
	router := newEventRouter(svc)

	// Клиентский id обязан игнорироваться
	body := `{"id":999,"source_app":"resume-agent","session_id":"s1","hook_event_type":"PreToolUse","payload":{"tool":"Bash"}}`
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got domain.Event
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != 1 {
		t.Fatalf("expected server-assigned id 1, got %d", got.ID)
	}
	if got.Timestamp.IsZero() {
		t.Fatal("expected server-assigned timestamp")
	}
	if len(svc.ingested) != 1 || svc.ingested[0].SourceApp != "resume-agent" {
		t.Fatalf("service received unexpected event: %v", svc.ingested)
	}
}

func TestCreateEventScrubsClientDecisionFields(t *testing.T) {
	svc := &stubEventService{}
	router := newEventRouter(svc)

	// Клиент пытается прислать событие "уже отвеченным"
	body := `{"source_app":"resume-agent","session_id":"s1","hook_event_type":"Notification","payload":{},
		"humanInTheLoop":{
			"responseWebSocketUrl":"ws://agent.local:9999/callback",
			"request":{"question":"deploy?"},
			"response":{"decision":"approve"},
			"respondedAt":"2026-08-30T10:00:00Z",
			"respondedBy":"impostor"}}`
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	hitl := svc.ingested[0].HumanInTheLoop
	if hitl == nil {
		t.Fatal("humanInTheLoop block must survive ingestion")
	}
	if hitl.ResponseWebSocketURL != "ws://agent.local:9999/callback" || hitl.Request == nil {
		t.Fatalf("request side of hitl must be kept: %+v", hitl)
	}
	if hitl.Response != nil || hitl.RespondedAt != nil || hitl.RespondedBy != "" {
		t.Fatalf("client-supplied decision fields must be scrubbed: %+v", hitl)
	}
}

func TestCreateEventMissingFieldRejected(t *testing.T) {
	svc := &stubEventService{}
	router := newEventRouter(svc)

	body := `{"source_app":"resume-agent","hook_event_type":"PreToolUse","payload":{}}`
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing session_id, got %d", rec.Code)
	}
	if len(svc.ingested) != 0 {
		t.Fatal("invalid event must not reach the service")
	}

	var errBody map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody["error"] != "Missing required fields" {
		t.Fatalf("unexpected error message: %v", errBody)
	}
}

func TestCreateEventMalformedJSON(t *testing.T) {
	router := newEventRouter(&stubEventService{})

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestRecentLimitValidationAndCap(t *testing.T) {
	svc := &stubEventService{}
	router := newEventRouter(svc)

	for _, bad := range []string{"abc", "0", "-5"} {
		req := httptest.NewRequest(http.MethodGet, "/events/recent?limit="+bad, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s: expected 400, got %d", bad, rec.Code)
		}
	}

	// Чрезмерный лимит молча прижимается к потолку
	req := httptest.NewRequest(http.MethodGet, "/events/recent?limit=5000", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.recentLimit != maxRecentLimit {
		t.Fatalf("expected limit capped at %d, got %d", maxRecentLimit, svc.recentLimit)
	}
}

func TestRespondStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.ErrEventNotFound, http.StatusNotFound},
		{"already responded", domain.ErrAlreadyResponded, http.StatusConflict},
	}

	for _, tc := range cases {
		svc := &stubEventService{respondErr: tc.err}
		router := newEventRouter(svc)

		req := httptest.NewRequest(http.MethodPost, "/events/5/respond", strings.NewReader(`{"decision":"approve"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
		}
	}
}

func TestRespondBadRequests(t *testing.T) {
	router := newEventRouter(&stubEventService{})

	req := httptest.NewRequest(http.MethodPost, "/events/abc/respond", strings.NewReader(`{"decision":"approve"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric id: expected 400, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/events/5/respond", strings.NewReader(`null`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("null body: expected 400, got %d", rec.Code)
	}
}

func TestRespondReturnsUpdatedEvent(t *testing.T) {
	respondedAt := time.Now().UTC()
	svc := &stubEventService{responded: &domain.Event{
		ID: 5, SourceApp: "resume-agent", SessionID: "s1", HookEventType: "Notification",
		HumanInTheLoop: &domain.HumanInTheLoop{
			Response:    map[string]interface{}{"decision": "approve"},
			RespondedAt: &respondedAt,
		},
	}}
	router := newEventRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/events/5/respond", strings.NewReader(`{"decision":"approve"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got domain.Event
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.HumanInTheLoop == nil || got.HumanInTheLoop.RespondedAt == nil {
		t.Fatalf("expected responded event in body, got %+v", got)
	}
}
