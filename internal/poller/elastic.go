package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ElasticClient — узкий клиент внешнего хранилища логов: нам нужен только
// подсчет ошибок по сервису за окно времени (_count API).
//
// Обернут в Reliability-слой: rate limiter бережет ES от шквала запросов
// при коротком интервале опроса, circuit breaker перестает долбить
// лежащее хранилище (открытый предохранитель выглядит как обычная ошибка
// запроса — цикл опроса логирует и идет дальше).
type ElasticClient struct {
	baseURL string
	index   string
	httpc   *http.Client
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewElasticClient(baseURL, index string, logger *zap.Logger) *ElasticClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "elasticsearch",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &ElasticClient{
		baseURL: baseURL,
		index:   index,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(10), 5),
		logger:  logger.Named("elastic"),
	}
}

// WaitReady пробует достучаться до ES при старте (с бэкоффом).
// Неудача не фатальна: хранилище может подняться позже, поллер всё равно
// стартует и будет получать ошибки цикла до его появления.
func (c *ElasticClient) WaitReady(ctx context.Context) error {
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(time.Second),
	)

	return r.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("elastic: readiness probe returned %d", resp.StatusCode)
		}
		return nil
	})
}

// CountErrors возвращает число error-записей сервиса за окно времени
// (window — строка длительности в синтаксисе ES, например "5m").
func (c *ElasticClient) CountErrors(ctx context.Context, service, window string) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("elastic: rate limit wait: %w", err)
	}

	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.countErrors(ctx, service, window)
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

func (c *ElasticClient) countErrors(ctx context.Context, service, window string) (int, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"service": service}},
					map[string]interface{}{"term": map[string]interface{}{"level": "error"}},
					map[string]interface{}{"range": map[string]interface{}{
						"@timestamp": map[string]interface{}{"gte": "now-" + window},
					}},
				},
			},
		},
	}

	body, err := json.Marshal(query)
	if err != nil {
		return 0, fmt.Errorf("elastic: failed to encode query: %w", err)
	}

	url := fmt.Sprintf("%s/%s/_count", c.baseURL, c.index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("elastic: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("elastic: count request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("elastic: count returned %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("elastic: failed to decode count response: %w", err)
	}
	return parsed.Count, nil
}
