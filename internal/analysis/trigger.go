package analysis

/*
Файл trigger.go — мост к внешнему анализатору ошибок.

Анализатор — черный ящик за узким контрактом: алерт передается одним
JSON-аргументом командной строки, результат ожидается JSON-объектом на stdout.
Любой его сбой (ненулевой код выхода, мусор вместо JSON, таймаут) логируется
и гасится на этой границе — он никогда не доходит до вызывающей стороны
(поллера или HTTP-обработчика). Это диагностический инструмент, не
пользовательский поток: результаты живут только в логах.
*/

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/xela07ax/agent-pulse/internal/domain"
	"github.com/xela07ax/agent-pulse/internal/metrics"
	"github.com/xela07ax/agent-pulse/internal/throttle"
	"go.uber.org/zap"
)

type Trigger struct {
	script  string
	timeout time.Duration
	gate    *throttle.Guard
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewTrigger(script string, timeout time.Duration, gate *throttle.Guard, m *metrics.Metrics, logger *zap.Logger) *Trigger {
	return &Trigger{
		script:  script,
		timeout: timeout,
		gate:    gate,
		metrics: m,
		logger:  logger.Named("analysis"),
	}
}

// TriggerAsync запускает анализ в отдельной горутине (fire-and-forget).
// Вызывающая сторона — поллер или обработчик /alerts/trigger — продолжает
// работу немедленно, ничего не ожидая и не получая.
func (t *Trigger) TriggerAsync(alert domain.Alert) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("analysis goroutine panicked", zap.Any("panic", r))
			}
		}()
		t.Run(context.Background(), alert)
	}()
}

// Run выполняет полный цикл: троттлинг → subprocess → разбор результата.
// Ошибки не возвращаются наружу: граница самодостаточна.
func (t *Trigger) Run(ctx context.Context, alert domain.Alert) {
	now := time.Now()

	if t.gate.ShouldThrottle(ctx, alert.Service, now) {
		t.logger.Info("analysis skipped: throttled",
			zap.String("service", alert.Service),
			zap.Duration("window", t.gate.Window()))
		t.metrics.AnalysisRuns.WithLabelValues("throttled").Inc()
		return
	}
	t.gate.RecordTrigger(ctx, alert.Service, now)

	result, err := t.invoke(ctx, alert)
	if err != nil {
		t.logger.Error("analysis failed",
			zap.String("service", alert.Service),
			zap.String("alert_id", alert.AlertID),
			zap.Error(err))
		t.metrics.AnalysisRuns.WithLabelValues("failed").Inc()
		return
	}

	t.metrics.AnalysisRuns.WithLabelValues("ok").Inc()
	t.logResult(alert, result)
}

// invoke запускает subprocess и интерпретирует его вывод по контракту.
func (t *Trigger) invoke(ctx context.Context, alert domain.Alert) (*domain.AnalysisResult, error) {
	alertJSON, err := json.Marshal(alert)
	if err != nil {
		return nil, fmt.Errorf("analysis: failed to encode alert: %w", err)
	}

	// Жесткий таймаут на весь subprocess: зависший скрипт == ненулевой выход
	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, t.script, string(alertJSON), "--output-format", "json")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	t.logger.Info("starting analysis subprocess",
		zap.String("script", t.script),
		zap.String("service", alert.Service),
		zap.String("alert_id", alert.AlertID))

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("analysis: subprocess failed (%v), stderr: %s", err, truncate(stderr.String(), 512))
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("analysis: non-JSON output: %w", err)
	}
	return &result, nil
}

func (t *Trigger) logResult(alert domain.Alert, result *domain.AnalysisResult) {
	t.logger.Info("analysis completed",
		zap.String("service", alert.Service),
		zap.String("alert_id", alert.AlertID),
		zap.Int("total_errors", result.Analysis.TotalErrors),
		zap.Strings("patterns", result.Analysis.Patterns),
		zap.String("root_cause", result.Analysis.RootCause),
		zap.Strings("actions_taken", result.ActionsTaken))

	switch {
	case result.LinearIssue != nil:
		t.logger.Info("analysis created tracker issue",
			zap.String("identifier", result.LinearIssue.Identifier),
			zap.String("url", result.LinearIssueURL))
	case result.LinearIssueData != nil:
		t.logger.Info("analysis prepared issue draft (auto-create not configured)",
			zap.Any("draft", result.LinearIssueData))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
