package domain

import "time"

// Уровни важности, которые понимает правило запуска анализа
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert — нормализованное представление алерта: либо из внешнего вебхука
// (POST /alerts/trigger), либо синтезированное поллером по порогу ошибок.
type Alert struct {
	AlertID      string                 `json:"alert_id"`
	AlertName    string                 `json:"alert_name"`
	Service      string                 `json:"service"`
	ErrorCount   int                    `json:"error_count"`
	Severity     string                 `json:"severity"`
	Timestamp    time.Time              `json:"timestamp"`
	TimeRange    string                 `json:"time_range,omitempty"`
	QueryContext map[string]interface{} `json:"query_context,omitempty"`
}

// AnalysisResult — структурированный вывод внешнего анализатора (stdout, JSON).
// Мы не делаем предположений о его внутренней работе — только контракт.
type AnalysisResult struct {
	Analysis struct {
		TotalErrors int      `json:"total_errors"`
		Patterns    []string `json:"patterns"`
		RootCause   string   `json:"root_cause"`
	} `json:"analysis"`

	// Если анализатор сам создал задачу в трекере
	LinearIssue *struct {
		Identifier string `json:"identifier"`
	} `json:"linear_issue,omitempty"`
	LinearIssueURL string `json:"linear_issue_url,omitempty"`

	// Черновик задачи, если автосоздание не настроено
	LinearIssueData map[string]interface{} `json:"linear_issue_data,omitempty"`

	ActionsTaken []string `json:"actions_taken,omitempty"`
}
