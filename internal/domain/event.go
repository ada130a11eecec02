package domain

import (
	"errors"
	"time"
)

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrAlreadyResponded = errors.New("event already has a human response")
)

// Event — центральная сущность сервера: одна запись о том, что произошло
// в наблюдаемом агенте (tool use, границы сессии, алерты).
type Event struct {
	ID            int64                  `json:"id"`              // Монотонный, выдается хранилищем
	SourceApp     string                 `json:"source_app"`      // Какой агент прислал
	SessionID     string                 `json:"session_id"`      // Группировка по запуску агента
	HookEventType string                 `json:"hook_event_type"` // PreToolUse, PostToolUse, PollingAlert...
	Payload       map[string]interface{} `json:"payload"`         // Произвольная структура, зависит от типа

	// Заполнен только если агент ждет решения оператора
	HumanInTheLoop *HumanInTheLoop `json:"humanInTheLoop,omitempty"`

	Timestamp time.Time `json:"timestamp"` // Проставляется сервером при приеме
}

// Validate проверяет обязательные поля при приеме (POST /events).
func (e *Event) Validate() error {
	if e.SourceApp == "" || e.SessionID == "" || e.HookEventType == "" || e.Payload == nil {
		return errors.New("missing required fields: source_app, session_id, hook_event_type, payload")
	}
	return nil
}

// HumanInTheLoop — запрос на решение человека, прикрепленный к событию.
// Заполняется один раз при создании события; Response и RespondedAt
// проставляются единственным вызовом /events/:id/respond.
type HumanInTheLoop struct {
	// Callback-адрес агента. Сервер сам откроет исходящий WebSocket,
	// чтобы доставить решение (см. hub.Notifier).
	ResponseWebSocketURL string `json:"responseWebSocketUrl,omitempty"`

	// Что именно агент спрашивает (свободная форма)
	Request map[string]interface{} `json:"request,omitempty"`

	// Ответ оператора (свободная форма)
	Response map[string]interface{} `json:"response,omitempty"`

	// Всегда проставляется сервером в момент обработки ответа,
	// значение клиента игнорируется
	RespondedAt *time.Time `json:"respondedAt,omitempty"`

	// Кто ответил (из JWT оператора, если авторизация включена)
	RespondedBy string `json:"respondedBy,omitempty"`
}

// FilterOptions — различные значения по фильтруемым измерениям,
// для наполнения выпадающих списков дашборда.
type FilterOptions struct {
	SourceApps     []string `json:"source_apps"`
	SessionIDs     []string `json:"session_ids"`
	HookEventTypes []string `json:"hook_event_types"`
}

// Типы сообщений WebSocket-потока (/stream)
const (
	StreamTypeInitial      = "initial"
	StreamTypeEvent        = "event"
	StreamTypeAlert        = "alert"
	StreamTypePollingAlert = "polling_alert"
)

// StreamMessage — конверт для всех исходящих сообщений дашборду.
type StreamMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
