package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Notifier доставляет HITL-ответ обратно агенту. Необычная инверсия:
// сервер сам становится WebSocket-КЛИЕНТОМ и подключается по callback-адресу,
// который агент оставил в событии.
//
// Операция одноразовая (deliver-once) и ограничена одним общим таймаутом
// на всю последовательность connecting → connected → sent → closed.
// Все три плохих сценария (соединение не открылось, открылось и упало,
// отправка сломалась) сводятся к чистой ошибке, а не зависанию.
type Notifier struct {
	timeout time.Duration
	dialer  *websocket.Dialer
	logger  *zap.Logger
}

// Грейс после отправки: даем TCP-стеку дослать кадр до закрытия
const closeGrace = 100 * time.Millisecond

func NewNotifier(timeout time.Duration, logger *zap.Logger) *Notifier {
	return &Notifier{
		timeout: timeout,
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
		},
		logger: logger.Named("notifier"),
	}
}

// Send открывает исходящее соединение, шлет сериализованный ответ и
// закрывается. Ошибка здесь никогда не блокирует HTTP-ответ оператору:
// авторитетное состояние (сохраненный ответ) уже зафиксировано.
func (n *Notifier) Send(wsURL string, response interface{}) error {
	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("notifier: failed to encode response: %w", err)
	}

	// Один дедлайн на весь жизненный цикл операции
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	deadline, _ := ctx.Deadline()

	// Фаза 1: connecting
	conn, _, err := n.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("notifier: failed to connect to agent at %s: %w", wsURL, err)
	}
	defer conn.Close()

	// Фаза 2: connected → sent
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("notifier: failed to deliver response: %w", err)
	}

	// Фаза 3: closed. Вежливый Close-кадр + короткий грейс на доставку.
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

	select {
	case <-time.After(closeGrace):
	case <-ctx.Done():
	}

	n.logger.Info("HITL response delivered to agent", zap.String("url", wsURL))
	return nil
}
