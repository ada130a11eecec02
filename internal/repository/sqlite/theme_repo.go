package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xela07ax/agent-pulse/internal/domain"
)

// CreateTheme сохраняет новую тему дашборда.
func (s *Storage) CreateTheme(ctx context.Context, t *domain.Theme) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	data, err := json.Marshal(t.Data)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode theme data: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO themes (id, name, author_id, is_public, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.AuthorID, boolToInt(t.IsPublic), string(data), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create theme: %w", err)
	}
	return nil
}

// GetTheme достает тему по id.
func (s *Storage) GetTheme(ctx context.Context, id string) (*domain.Theme, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, author_id, is_public, data, created_at, updated_at
		 FROM themes WHERE id = ?`, id)
	return scanTheme(row)
}

// FindThemes возвращает темы, видимые автору: его собственные плюс публичные.
// Непустой query сужает выборку по подстроке имени.
func (s *Storage) FindThemes(ctx context.Context, authorID, query string) ([]*domain.Theme, error) {
	q := `SELECT id, name, author_id, is_public, data, created_at, updated_at
	      FROM themes WHERE (author_id = ? OR is_public = 1)`
	args := []interface{}{authorID}

	if query != "" {
		q += ` AND name LIKE ?`
		args = append(args, "%"+query+"%")
	}
	q += ` ORDER BY updated_at DESC LIMIT 200`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query themes: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.Theme, 0)
	for rows.Next() {
		t, err := scanTheme(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: rows iteration error: %w", err)
	}
	return results, nil
}

// UpdateTheme перезаписывает имя, видимость и данные темы.
func (s *Storage) UpdateTheme(ctx context.Context, t *domain.Theme) error {
	data, err := json.Marshal(t.Data)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode theme data: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE themes SET name = ?, is_public = ?, data = ?, updated_at = ? WHERE id = ?`,
		t.Name, boolToInt(t.IsPublic), string(data), time.Now().UTC(), t.ID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update theme: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrThemeNotFound
	}
	return nil
}

// DeleteTheme удаляет тему по id.
func (s *Storage) DeleteTheme(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM themes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete theme: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrThemeNotFound
	}
	return nil
}

func scanTheme(row scanner) (*domain.Theme, error) {
	var t domain.Theme
	var isPublic int
	var data string

	err := row.Scan(&t.ID, &t.Name, &t.AuthorID, &isPublic, &data, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrThemeNotFound
		}
		return nil, fmt.Errorf("sqlite: failed to scan theme: %w", err)
	}

	t.IsPublic = isPublic == 1
	if err := json.Unmarshal([]byte(data), &t.Data); err != nil {
		return nil, fmt.Errorf("sqlite: corrupted theme data for %s: %w", t.ID, err)
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
