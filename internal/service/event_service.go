package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/agent-pulse/internal/domain"
	"github.com/xela07ax/agent-pulse/internal/metrics"
	"go.uber.org/zap"
)

// EventRepository описывает требования к хранилищу событий
type EventRepository interface {
	InsertEvent(ctx context.Context, e *domain.Event) (*domain.Event, error)
	RecentEvents(ctx context.Context, limit int) ([]*domain.Event, error)
	FilterOptions(ctx context.Context) (*domain.FilterOptions, error)
	UpdateEventHITLResponse(ctx context.Context, id int64, response map[string]interface{}, respondedBy string) (*domain.Event, error)
}

// Broadcaster — веер рассылки дашбордам
type Broadcaster interface {
	Broadcast(msg domain.StreamMessage)
}

// AgentNotifier доставляет HITL-ответ агенту по его callback-адресу
type AgentNotifier interface {
	Send(wsURL string, response interface{}) error
}

type EventService struct {
	repo     EventRepository
	hub      Broadcaster
	notifier AgentNotifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewEventService(repo EventRepository, hub Broadcaster, notifier AgentNotifier, m *metrics.Metrics, logger *zap.Logger) *EventService {
	return &EventService{
		repo:     repo,
		hub:      hub,
		notifier: notifier,
		metrics:  m,
		logger:   logger.Named("event-service"),
	}
}

// Ingest сохраняет событие и рассылает его дашбордам.
// Порядок строгий: broadcast только после успешного persist — рассылаемое
// сообщение должно нести присвоенные id и timestamp.
func (s *EventService) Ingest(ctx context.Context, e *domain.Event) (*domain.Event, error) {
	stored, err := s.repo.InsertEvent(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("service: failed to store event: %w", err)
	}

	s.metrics.EventsIngested.WithLabelValues(stored.SourceApp, stored.HookEventType).Inc()
	s.hub.Broadcast(domain.StreamMessage{Type: domain.StreamTypeEvent, Data: stored})
	return stored, nil
}

// Recent возвращает N последних событий для первоначальной загрузки дашборда.
func (s *EventService) Recent(ctx context.Context, limit int) ([]*domain.Event, error) {
	events, err := s.repo.RecentEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch recent events: %w", err)
	}
	return events, nil
}

// FilterOptions отдает различные значения для выпадающих фильтров.
func (s *EventService) FilterOptions(ctx context.Context) (*domain.FilterOptions, error) {
	opts, err := s.repo.FilterOptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch filter options: %w", err)
	}
	return opts, nil
}

// RespondHITL фиксирует ответ оператора и уведомляет заинтересованных:
//  1. хранилище — единственная авторитетная запись (однократная);
//  2. дашборды — обновленное событие рассылается повторно;
//  3. агент — best-effort доставка по его callback WebSocket, в отдельной
//     горутине, чтобы HTTP-ответ оператору никогда не ждал и не зависел
//     от доступности агента.
func (s *EventService) RespondHITL(ctx context.Context, id int64, response map[string]interface{}, operatorID string) (*domain.Event, error) {
	updated, err := s.repo.UpdateEventHITLResponse(ctx, id, response, operatorID)
	if err != nil {
		return nil, err
	}

	s.hub.Broadcast(domain.StreamMessage{Type: domain.StreamTypeEvent, Data: updated})

	if hitl := updated.HumanInTheLoop; hitl != nil && hitl.ResponseWebSocketURL != "" {
		go s.notifyAgent(hitl.ResponseWebSocketURL, updated.ID, hitl.Response, hitl.RespondedAt)
	}

	return updated, nil
}

// notifyAgent — отвязанная (detached) доставка ответа агенту.
// Сбой здесь только логируется: авторитетное состояние уже сохранено.
func (s *EventService) notifyAgent(wsURL string, eventID int64, response map[string]interface{}, respondedAt *time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("agent notification panicked", zap.Any("panic", r))
		}
	}()

	payload := map[string]interface{}{
		"type":        "hitl_response",
		"event_id":    eventID,
		"response":    response,
		"respondedAt": respondedAt,
	}

	if err := s.notifier.Send(wsURL, payload); err != nil {
		s.logger.Warn("failed to notify agent, response remains stored",
			zap.String("url", wsURL),
			zap.Int64("event_id", eventID),
			zap.Error(err))
	}
}
