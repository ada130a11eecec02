package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xela07ax/agent-pulse/internal/domain"
	"go.uber.org/zap"
)

// AnalysisRunner запускает внешний анализатор (fire-and-forget)
type AnalysisRunner interface {
	TriggerAsync(alert domain.Alert)
}

type AlertService struct {
	repo      EventRepository
	hub       Broadcaster
	analyzer  AnalysisRunner
	threshold int // порог error_count в правиле запуска анализа
	logger    *zap.Logger
}

func NewAlertService(repo EventRepository, hub Broadcaster, analyzer AnalysisRunner, threshold int, logger *zap.Logger) *AlertService {
	return &AlertService{
		repo:      repo,
		hub:       hub,
		analyzer:  analyzer,
		threshold: threshold,
		logger:    logger.Named("alert-service"),
	}
}

// ShouldAnalyze — правило запуска анализа для внешних вебхуков.
// Любое из трех условий достаточно: высокая важность, превышение порога
// ошибок, либо "Critical" в имени алерта (чувствительно к регистру).
func (s *AlertService) ShouldAnalyze(alert domain.Alert) bool {
	return alert.Severity == domain.SeverityHigh ||
		alert.ErrorCount > s.threshold ||
		strings.Contains(alert.AlertName, "Critical")
}

// ProcessWebhookAlert принимает алерт внешней алертинговой системы:
// сохраняет событием, рассылает дашбордам и, если правило сработало,
// отвязанно запускает анализ. Возвращает сохраненное событие и признак
// запуска анализа. Проблемы анализатора сюда не доходят по построению.
func (s *AlertService) ProcessWebhookAlert(ctx context.Context, alert domain.Alert, raw map[string]interface{}) (*domain.Event, bool, error) {
	event := &domain.Event{
		SourceApp:     alertSource(alert),
		SessionID:     alertSession(alert),
		HookEventType: "AlertTriggered",
		Payload:       raw, // Сохраняем вебхук целиком, включая поля вне контракта
	}

	stored, err := s.repo.InsertEvent(ctx, event)
	if err != nil {
		return nil, false, fmt.Errorf("service: failed to store alert event: %w", err)
	}

	s.hub.Broadcast(domain.StreamMessage{Type: domain.StreamTypeAlert, Data: stored})

	triggered := s.ShouldAnalyze(alert)
	if triggered {
		s.logger.Info("alert qualifies for analysis",
			zap.String("alert_name", alert.AlertName),
			zap.String("service", alert.Service),
			zap.String("severity", alert.Severity),
			zap.Int("error_count", alert.ErrorCount))
		s.analyzer.TriggerAsync(alert)
	}

	return stored, triggered, nil
}

// RaisePollingAlert — вход для поллера: порог уже проверен, анализ
// запускается всегда (троттлинг применит сам Trigger).
func (s *AlertService) RaisePollingAlert(ctx context.Context, alert domain.Alert) error {
	event := &domain.Event{
		SourceApp:     alertSource(alert),
		SessionID:     alertSession(alert),
		HookEventType: "PollingAlert",
		Payload: map[string]interface{}{
			"alert_id":      alert.AlertID,
			"alert_name":    alert.AlertName,
			"service":       alert.Service,
			"error_count":   alert.ErrorCount,
			"severity":      alert.Severity,
			"time_range":    alert.TimeRange,
			"query_context": alert.QueryContext,
		},
	}

	stored, err := s.repo.InsertEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("service: failed to store polling alert: %w", err)
	}

	s.hub.Broadcast(domain.StreamMessage{Type: domain.StreamTypePollingAlert, Data: stored})
	s.analyzer.TriggerAsync(alert)
	return nil
}

func alertSource(alert domain.Alert) string {
	if alert.Service != "" {
		return alert.Service
	}
	return "external-alerting"
}

func alertSession(alert domain.Alert) string {
	if alert.AlertID != "" {
		return alert.AlertID
	}
	return "alerts"
}
