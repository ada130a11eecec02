package poller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/agent-pulse/internal/domain"
	"github.com/xela07ax/agent-pulse/internal/metrics"
	"go.uber.org/zap"
)

// ErrorCounter описывает, что нам нужно от внешнего хранилища логов
type ErrorCounter interface {
	CountErrors(ctx context.Context, service, window string) (int, error)
}

// AlertSink принимает алерт, поднятый поллером: сохранить событием,
// разослать дашбордам и (fire-and-forget) запустить анализ.
type AlertSink interface {
	RaisePollingAlert(ctx context.Context, alert domain.Alert) error
}

// Poller периодически опрашивает хранилище логов по каждому наблюдаемому
// сервису и поднимает алерт при превышении порога ошибок.
//
// Цикл: Idle → Polling(service) → {AlertRaised | NoAlert} → Idle.
// Сервисы опрашиваются последовательно; сбой запроса по одному сервису
// логируется и не прерывает цикл для остальных.
type Poller struct {
	es        ErrorCounter
	sink      AlertSink
	services  []string
	threshold int
	window    string
	interval  time.Duration
	metrics   *metrics.Metrics
	logger    *zap.Logger

	// Защита от наложения циклов, если интервал настроен короче,
	// чем фактическая длительность запросов
	busy int32
}

func NewPoller(
	es ErrorCounter,
	sink AlertSink,
	services []string,
	threshold int,
	window string,
	interval time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Poller {
	return &Poller{
		es:        es,
		sink:      sink,
		services:  services,
		threshold: threshold,
		window:    window,
		interval:  interval,
		metrics:   m,
		logger:    logger.Named("poller"),
	}
}

// Run крутит таймерный цикл до отмены контекста (graceful shutdown).
func (p *Poller) Run(ctx context.Context) {
	if len(p.services) == 0 {
		p.logger.Info("no monitored services configured, poller idle")
		return
	}

	p.logger.Info("poller started",
		zap.Strings("services", p.services),
		zap.Duration("interval", p.interval),
		zap.Int("threshold", p.threshold),
		zap.String("window", p.window))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return
		case <-ticker.C:
			p.Cycle(ctx)
		}
	}
}

// Cycle выполняет один проход по всем сервисам.
func (p *Poller) Cycle(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&p.busy, 0, 1) {
		p.logger.Warn("previous poll cycle still running, skipping tick")
		return
	}
	defer atomic.StoreInt32(&p.busy, 0)

	for _, service := range p.services {
		p.pollService(ctx, service)
	}
}

func (p *Poller) pollService(ctx context.Context, service string) {
	count, err := p.es.CountErrors(ctx, service, p.window)
	if err != nil {
		// Сбой одного сервиса не должен срывать цикл для остальных:
		// логируем и идем дальше, следующий тик повторит запрос сам
		p.logger.Error("error count query failed",
			zap.String("service", service), zap.Error(err))
		p.metrics.PollCycles.WithLabelValues(service, "error").Inc()
		return
	}

	if count <= p.threshold {
		p.metrics.PollCycles.WithLabelValues(service, "ok").Inc()
		return
	}

	p.logger.Warn("error threshold exceeded",
		zap.String("service", service),
		zap.Int("count", count),
		zap.Int("threshold", p.threshold))
	p.metrics.PollCycles.WithLabelValues(service, "alert").Inc()

	alert := domain.Alert{
		AlertID:    uuid.New().String(),
		AlertName:  "High error rate detected",
		Service:    service,
		ErrorCount: count,
		Severity:   domain.SeverityHigh,
		Timestamp:  time.Now().UTC(),
		TimeRange:  p.window,
		QueryContext: map[string]interface{}{
			"threshold": p.threshold,
			"window":    p.window,
		},
	}

	if err := p.sink.RaisePollingAlert(ctx, alert); err != nil {
		p.logger.Error("failed to raise polling alert",
			zap.String("service", service), zap.Error(err))
	}
}
