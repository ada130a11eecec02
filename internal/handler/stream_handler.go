package handler

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ClientRegistry Описываем, что нам нужно от хаба
type ClientRegistry interface {
	Register(conn *websocket.Conn)
}

type StreamHandler struct {
	hub      ClientRegistry
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewStreamHandler(hub ClientRegistry, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Дашборд живет на другом origin, CORS-модель тут не работает
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.Named("stream-handler"),
	}
}

// Serve апгрейдит /stream до WebSocket и отдает соединение хабу.
// Обычный GET без Upgrade-заголовков получает текстовый баннер.
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("agent-pulse event stream: connect with a WebSocket client\n"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам ответил клиенту кодом ошибки
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.hub.Register(conn)
}
