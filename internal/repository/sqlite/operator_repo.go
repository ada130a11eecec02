package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xela07ax/agent-pulse/internal/domain"
)

// GetOperatorByUsername ищет оператора для выдачи токена.
func (s *Storage) GetOperatorByUsername(ctx context.Context, username string) (*domain.Operator, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM operators WHERE username = ?`, username)

	var op domain.Operator
	if err := row.Scan(&op.ID, &op.Username, &op.PasswordHash, &op.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("operator not found: %w", err)
		}
		return nil, fmt.Errorf("sqlite: failed to fetch operator: %w", err)
	}
	return &op, nil
}

// CreateOperator регистрирует нового оператора (используется CLI-утилитой
// первоначальной настройки, публичного роута регистрации нет).
func (s *Storage) CreateOperator(ctx context.Context, op *domain.Operator) error {
	op.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO operators (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		op.ID, op.Username, op.PasswordHash, op.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create operator: %w", err)
	}
	return nil
}
