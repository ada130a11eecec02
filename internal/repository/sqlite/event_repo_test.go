package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/xela07ax/agent-pulse/internal/domain"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testEvent(app, session, hookType string) *domain.Event {
	return &domain.Event{
		SourceApp:     app,
		SessionID:     session,
		HookEventType: hookType,
		Payload:       map[string]interface{}{"tool": "Bash"},
	}
}

func TestInsertEventAssignsMonotonicIDs(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	var lastID int64
	for i := 0; i < 5; i++ {
		stored, err := s.InsertEvent(ctx, testEvent("resume-agent", "s1", "PreToolUse"))
		if err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
		if stored.ID <= lastID {
			t.Fatalf("InsertEvent: expected id > %d, got %d", lastID, stored.ID)
		}
		if stored.Timestamp.IsZero() {
			t.Fatal("InsertEvent: expected server-assigned timestamp")
		}
		lastID = stored.ID
	}
}

func TestRecentEventsNewestFirstWithLimit(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := s.InsertEvent(ctx, testEvent("resume-agent", "s1", "PreToolUse")); err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
	}

	events, err := s.RecentEvents(ctx, 3)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("RecentEvents: expected 3 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i-1].ID <= events[i].ID {
			t.Fatalf("RecentEvents: expected newest-first order, got ids %d, %d", events[i-1].ID, events[i].ID)
		}
	}
}

func TestRecentEventsEmptyStore(t *testing.T) {
	s := newTestStorage(t)

	events, err := s.RecentEvents(context.Background(), 50)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Fatalf("RecentEvents: expected empty slice, got %v", events)
	}
}

func TestFilterOptionsDistinctAndIdempotent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	seed := []*domain.Event{
		testEvent("resume-agent", "s1", "PreToolUse"),
		testEvent("resume-agent", "s2", "PostToolUse"),
		testEvent("cover-letter-agent", "s1", "PreToolUse"),
	}
	for _, e := range seed {
		if _, err := s.InsertEvent(ctx, e); err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
	}

	first, err := s.FilterOptions(ctx)
	if err != nil {
		t.Fatalf("FilterOptions: %v", err)
	}
	if len(first.SourceApps) != 2 {
		t.Fatalf("FilterOptions: expected 2 source apps, got %v", first.SourceApps)
	}
	if len(first.HookEventTypes) != 2 {
		t.Fatalf("FilterOptions: expected 2 hook event types, got %v", first.HookEventTypes)
	}
	if len(first.SessionIDs) != 2 {
		t.Fatalf("FilterOptions: expected 2 session ids, got %v", first.SessionIDs)
	}

	// Без записей между вызовами результат обязан совпасть
	second, err := s.FilterOptions(ctx)
	if err != nil {
		t.Fatalf("FilterOptions: %v", err)
	}
	if len(second.SourceApps) != len(first.SourceApps) ||
		len(second.SessionIDs) != len(first.SessionIDs) ||
		len(second.HookEventTypes) != len(first.HookEventTypes) {
		t.Fatalf("FilterOptions: expected idempotent result, got %v vs %v", first, second)
	}
}

func TestUpdateEventHITLResponse(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	e := testEvent("resume-agent", "s1", "Notification")
	e.HumanInTheLoop = &domain.HumanInTheLoop{
		ResponseWebSocketURL: "ws://agent.local:9999/callback",
		Request:              map[string]interface{}{"question": "deploy?"},
	}
	stored, err := s.InsertEvent(ctx, e)
	if err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}

	updated, err := s.UpdateEventHITLResponse(ctx, stored.ID, map[string]interface{}{"decision": "approve"}, "op-1")
	if err != nil {
		t.Fatalf("UpdateEventHITLResponse: %v", err)
	}
	if updated.HumanInTheLoop == nil || updated.HumanInTheLoop.RespondedAt == nil {
		t.Fatal("UpdateEventHITLResponse: expected respondedAt to be set server-side")
	}
	if updated.HumanInTheLoop.Response["decision"] != "approve" {
		t.Fatalf("UpdateEventHITLResponse: response not stored: %v", updated.HumanInTheLoop.Response)
	}
	if updated.HumanInTheLoop.ResponseWebSocketURL != "ws://agent.local:9999/callback" {
		t.Fatal("UpdateEventHITLResponse: callback URL must survive the update")
	}

	// Повторный ответ отвергается — решение принимается один раз
	_, err = s.UpdateEventHITLResponse(ctx, stored.ID, map[string]interface{}{"decision": "reject"}, "op-2")
	if !errors.Is(err, domain.ErrAlreadyResponded) {
		t.Fatalf("UpdateEventHITLResponse: expected ErrAlreadyResponded, got %v", err)
	}
}

func TestUpdateEventHITLResponseNotFound(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.UpdateEventHITLResponse(context.Background(), 777, map[string]interface{}{"decision": "approve"}, "")
	if !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("UpdateEventHITLResponse: expected ErrEventNotFound, got %v", err)
	}
}
