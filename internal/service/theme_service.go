package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/xela07ax/agent-pulse/internal/domain"
	"go.uber.org/zap"
)

// ThemeRepository описывает требования к хранилищу тем
type ThemeRepository interface {
	CreateTheme(ctx context.Context, t *domain.Theme) error
	GetTheme(ctx context.Context, id string) (*domain.Theme, error)
	FindThemes(ctx context.Context, authorID, query string) ([]*domain.Theme, error)
	UpdateTheme(ctx context.Context, t *domain.Theme) error
	DeleteTheme(ctx context.Context, id string) error
}

type ThemeService struct {
	repo   ThemeRepository
	logger *zap.Logger
}

func NewThemeService(repo ThemeRepository, logger *zap.Logger) *ThemeService {
	return &ThemeService{
		repo:   repo,
		logger: logger.Named("theme-service"),
	}
}

// Create сохраняет новую тему от имени вызывающего автора.
func (s *ThemeService) Create(ctx context.Context, authorID string, t *domain.Theme) (*domain.Theme, error) {
	t.ID = uuid.New().String()
	t.AuthorID = authorID

	if err := s.repo.CreateTheme(ctx, t); err != nil {
		return nil, fmt.Errorf("service: could not create theme: %w", err)
	}
	return t, nil
}

// Get отдает тему: свою любую, чужую — только публичную.
func (s *ThemeService) Get(ctx context.Context, authorID, id string) (*domain.Theme, error) {
	t, err := s.repo.GetTheme(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.IsPublic && t.AuthorID != authorID {
		return nil, domain.ErrThemeAccess
	}
	return t, nil
}

// Search возвращает видимые автору темы с фильтром по подстроке имени.
func (s *ThemeService) Search(ctx context.Context, authorID, query string) ([]*domain.Theme, error) {
	themes, err := s.repo.FindThemes(ctx, authorID, query)
	if err != nil {
		return nil, fmt.Errorf("service: could not search themes: %w", err)
	}
	return themes, nil
}

// Update меняет тему. Мутации разрешены только владельцу.
func (s *ThemeService) Update(ctx context.Context, authorID string, t *domain.Theme) (*domain.Theme, error) {
	existing, err := s.repo.GetTheme(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if existing.AuthorID != authorID {
		return nil, domain.ErrThemeAccess
	}

	existing.Name = t.Name
	existing.IsPublic = t.IsPublic
	existing.Data = t.Data

	if err := s.repo.UpdateTheme(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete удаляет тему. Только владелец.
func (s *ThemeService) Delete(ctx context.Context, authorID, id string) error {
	existing, err := s.repo.GetTheme(ctx, id)
	if err != nil {
		return err
	}
	if existing.AuthorID != authorID {
		return domain.ErrThemeAccess
	}
	return s.repo.DeleteTheme(ctx, id)
}

// Export выгружает тему одним версионированным JSON-документом.
func (s *ThemeService) Export(ctx context.Context, authorID, id string) (*domain.ThemeExport, error) {
	t, err := s.Get(ctx, authorID, id)
	if err != nil {
		return nil, err
	}
	return &domain.ThemeExport{Version: 1, Theme: t}, nil
}

// Import создает тему из выгрузки. Владельцем становится импортирующий,
// id выдается новый — импорт никогда не перезаписывает чужие темы.
func (s *ThemeService) Import(ctx context.Context, authorID string, export *domain.ThemeExport) (*domain.Theme, error) {
	if export == nil || export.Theme == nil {
		return nil, fmt.Errorf("service: empty theme export")
	}

	t := &domain.Theme{
		Name:     export.Theme.Name,
		IsPublic: export.Theme.IsPublic,
		Data:     export.Theme.Data,
	}
	return s.Create(ctx, authorID, t)
}
