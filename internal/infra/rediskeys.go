package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "pulse"
)

// Ключи троттлинга анализа. Значение — таймстемп последнего запуска,
// TTL ключа равен окну подавления, так что протухание = снятие блокировки.
const (
	RedisKeyThrottlePrefix = RedisNamespace + ":analysis:throttle:"
)

// GetThrottleKey Генератор ключа подавления для конкретного сервиса
func GetThrottleKey(service string) string {
	return fmt.Sprintf("%s%s", RedisKeyThrottlePrefix, service)
}
