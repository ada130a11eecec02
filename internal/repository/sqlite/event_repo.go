package sqlite

/*
Файл event_repo.go — журнал событий агентов (append-only).
Новые строки только добавляются, единственная разрешенная мутация —
однократное прикрепление ответа оператора (HITL).
*/

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xela07ax/agent-pulse/internal/domain"
)

// InsertEvent сохраняет новое событие и возвращает его с присвоенным id.
// Таймстемп всегда проставляется сервером, id монотонно растет (AUTOINCREMENT
// гарантирует, что значения не переиспользуются даже после удалений).
func (s *Storage) InsertEvent(ctx context.Context, e *domain.Event) (*domain.Event, error) {
	e.Timestamp = time.Now().UTC()

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to encode payload: %w", err)
	}

	var hitl sql.NullString
	if e.HumanInTheLoop != nil {
		data, err := json.Marshal(e.HumanInTheLoop)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to encode hitl: %w", err)
		}
		hitl = sql.NullString{String: string(data), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (source_app, session_id, hook_event_type, payload, hitl, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.SourceApp, e.SessionID, e.HookEventType, string(payload), hitl, e.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to insert event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to read inserted id: %w", err)
	}
	e.ID = id
	return e, nil
}

// RecentEvents возвращает N последних событий, новые первыми.
// Используется и REST-роутом дашборда, и снапшотом при подключении к /stream.
func (s *Storage) RecentEvents(ctx context.Context, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_app, session_id, hook_event_type, payload, hitl, timestamp
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query recent events: %w", err)
	}
	defer rows.Close()

	// Пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.Event, 0, limit)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows iteration error: %w", err)
	}
	return results, nil
}

// GetEvent достает одно событие по id.
func (s *Storage) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_app, session_id, hook_event_type, payload, hitl, timestamp
		 FROM events WHERE id = ?`, id)

	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return e, nil
}

// FilterOptions собирает различные значения по фильтруемым измерениям.
func (s *Storage) FilterOptions(ctx context.Context) (*domain.FilterOptions, error) {
	opts := &domain.FilterOptions{
		SourceApps:     make([]string, 0),
		SessionIDs:     make([]string, 0),
		HookEventTypes: make([]string, 0),
	}

	queries := []struct {
		query string
		dst   *[]string
	}{
		{`SELECT DISTINCT source_app FROM events ORDER BY source_app`, &opts.SourceApps},
		{`SELECT DISTINCT session_id FROM events ORDER BY session_id`, &opts.SessionIDs},
		{`SELECT DISTINCT hook_event_type FROM events ORDER BY hook_event_type`, &opts.HookEventTypes},
	}

	for _, q := range queries {
		rows, err := s.db.QueryContext(ctx, q.query)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to query filter options: %w", err)
		}
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				rows.Close()
				return nil, fmt.Errorf("sqlite: scan filter option error: %w", err)
			}
			*q.dst = append(*q.dst, v)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: rows iteration error: %w", err)
		}
		rows.Close()
	}

	return opts, nil
}

// UpdateEventHITLResponse однократно прикрепляет ответ оператора к событию.
// Условие WHERE responded_at IS NULL защищает от Double Decision: повторный
// ответ по той же заявке будет отвергнут атомарно, без гонки между чтением
// и записью.
func (s *Storage) UpdateEventHITLResponse(ctx context.Context, id int64, response map[string]interface{}, respondedBy string) (*domain.Event, error) {
	event, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	hitl := event.HumanInTheLoop
	if hitl == nil {
		hitl = &domain.HumanInTheLoop{}
	}

	now := time.Now().UTC()
	hitl.Response = response
	hitl.RespondedAt = &now // Значение клиента игнорируем, время — серверное
	hitl.RespondedBy = respondedBy

	data, err := json.Marshal(hitl)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to encode hitl response: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET hitl = ?, responded_at = ? WHERE id = ? AND responded_at IS NULL`,
		string(data), now, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to update hitl response: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: rows affected error: %w", err)
	}
	if affected == 0 {
		// Строка существует (GetEvent выше прошел), значит решение уже принято
		return nil, domain.ErrAlreadyResponded
	}

	event.HumanInTheLoop = hitl
	return event, nil
}

// scanner покрывает и *sql.Row, и *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (*domain.Event, error) {
	var e domain.Event
	var payload string
	var hitl sql.NullString

	err := row.Scan(&e.ID, &e.SourceApp, &e.SessionID, &e.HookEventType, &payload, &hitl, &e.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: failed to scan event: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
		return nil, fmt.Errorf("sqlite: corrupted payload for event %d: %w", e.ID, err)
	}
	if hitl.Valid {
		var h domain.HumanInTheLoop
		if err := json.Unmarshal([]byte(hitl.String), &h); err != nil {
			return nil, fmt.Errorf("sqlite: corrupted hitl for event %d: %w", e.ID, err)
		}
		e.HumanInTheLoop = &h
	}
	return &e, nil
}
