package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNotifierDeliversResponse(t *testing.T) {
	received := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, data, err := conn.ReadMessage(); err == nil {
			received <- data
		}
	}))
	defer srv.Close()

	n := NewNotifier(5*time.Second, zap.NewNop())
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	payload := map[string]interface{}{"type": "hitl_response", "event_id": int64(42)}
	if err := n.Send(wsURL, payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case data := <-received:
		var got map[string]interface{}
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if got["type"] != "hitl_response" {
			t.Fatalf("expected hitl_response payload, got %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("agent never received the response")
	}
}

func TestNotifierFailsFastOnDeadAgent(t *testing.T) {
	n := NewNotifier(500*time.Millisecond, zap.NewNop())

	start := time.Now()
	err := n.Send("ws://127.0.0.1:1/callback", map[string]string{"type": "hitl_response"})
	if err == nil {
		t.Fatal("Send: expected error for unreachable agent")
	}
	// Операция обязана уложиться в свой таймаут, а не висеть
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("Send took %v, expected bounded failure", elapsed)
	}
}
