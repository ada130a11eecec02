package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/agent-pulse/internal/infra"
	"go.uber.org/zap"
)

// Guard подавляет повторные запуски анализа по одному сервису внутри
// окна (cooldown). Двухуровневая схема:
//   - L1: локальная мапа под RWMutex — источник правды для одного инстанса;
//   - L2: Redis (SET EX) — общий cooldown для нескольких инстансов,
//     включается только если передан клиент.
//
// Потеря L1 при рестарте допустима: худший случай — один лишний
// пограничный запуск анализа.
type Guard struct {
	mu     sync.RWMutex
	last   map[string]time.Time
	window time.Duration
	rdb    *redis.Client // nil = чисто локальный режим
	logger *zap.Logger
}

func NewGuard(window time.Duration, rdb *redis.Client, logger *zap.Logger) *Guard {
	return &Guard{
		last:   make(map[string]time.Time),
		window: window,
		rdb:    rdb,
		logger: logger.Named("throttle"),
	}
}

// Window возвращает настроенное окно подавления.
func (g *Guard) Window() time.Duration {
	return g.window
}

// ShouldThrottle отвечает, нужно ли подавить запуск анализа для сервиса.
func (g *Guard) ShouldThrottle(ctx context.Context, service string, now time.Time) bool {
	g.mu.RLock()
	last, ok := g.last[service]
	g.mu.RUnlock()

	if ok && now.Sub(last) < g.window {
		return true
	}

	// L2: другой инстанс мог запустить анализ недавно.
	// Ошибки Redis деградируют до локального решения.
	if g.rdb != nil {
		exists, err := g.rdb.Exists(ctx, infra.GetThrottleKey(service)).Result()
		if err != nil {
			g.logger.Warn("redis throttle check failed, falling back to local state",
				zap.String("service", service), zap.Error(err))
			return false
		}
		return exists > 0
	}

	return false
}

// RecordTrigger безусловно обновляет время последнего запуска — даже если
// подавления не было, окно отсчитывается заново.
func (g *Guard) RecordTrigger(ctx context.Context, service string, now time.Time) {
	g.mu.Lock()
	g.last[service] = now
	g.mu.Unlock()

	if g.rdb != nil {
		// TTL ключа равен окну: протухание ключа = снятие блокировки
		if err := g.rdb.Set(ctx, infra.GetThrottleKey(service), now.Unix(), g.window).Err(); err != nil {
			g.logger.Warn("redis throttle record failed",
				zap.String("service", service), zap.Error(err))
		}
	}
}
