package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/xela07ax/agent-pulse/internal/domain"
)

type stubThemeRepo struct {
	themes map[string]*domain.Theme
}

func newStubThemeRepo(seed ...*domain.Theme) *stubThemeRepo {
	r := &stubThemeRepo{themes: make(map[string]*domain.Theme)}
	for _, t := range seed {
		r.themes[t.ID] = t
	}
	return r
}

func (r *stubThemeRepo) CreateTheme(ctx context.Context, t *domain.Theme) error {
	r.themes[t.ID] = t
	return nil
}

func (r *stubThemeRepo) GetTheme(ctx context.Context, id string) (*domain.Theme, error) {
	t, ok := r.themes[id]
	if !ok {
		return nil, domain.ErrThemeNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *stubThemeRepo) FindThemes(ctx context.Context, authorID, query string) ([]*domain.Theme, error) {
	out := make([]*domain.Theme, 0)
	for _, t := range r.themes {
		if t.AuthorID == authorID || t.IsPublic {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *stubThemeRepo) UpdateTheme(ctx context.Context, t *domain.Theme) error {
	if _, ok := r.themes[t.ID]; !ok {
		return domain.ErrThemeNotFound
	}
	r.themes[t.ID] = t
	return nil
}

func (r *stubThemeRepo) DeleteTheme(ctx context.Context, id string) error {
	if _, ok := r.themes[id]; !ok {
		return domain.ErrThemeNotFound
	}
	delete(r.themes, id)
	return nil
}

func ownedTheme(id, author string, public bool) *domain.Theme {
	return &domain.Theme{ID: id, Name: "Dark " + id, AuthorID: author, IsPublic: public,
		Data: map[string]interface{}{"background": "#111"}}
}

func TestThemeUpdateForeignRejected(t *testing.T) {
	repo := newStubThemeRepo(ownedTheme("t1", "op-1", true))
	s := NewThemeService(repo, zap.NewNop())

	_, err := s.Update(context.Background(), "op-2", &domain.Theme{ID: "t1", Name: "Hijacked"})
	if !errors.Is(err, domain.ErrThemeAccess) {
		t.Fatalf("Update: expected ErrThemeAccess for foreign theme, got %v", err)
	}
	// Публичность дает право читать, но не менять
	if repo.themes["t1"].Name != "Dark t1" {
		t.Fatalf("foreign update must not be persisted: %+v", repo.themes["t1"])
	}
}

func TestThemeDeleteForeignRejected(t *testing.T) {
	repo := newStubThemeRepo(ownedTheme("t1", "op-1", false))
	s := NewThemeService(repo, zap.NewNop())

	if err := s.Delete(context.Background(), "op-2", "t1"); !errors.Is(err, domain.ErrThemeAccess) {
		t.Fatalf("Delete: expected ErrThemeAccess for foreign theme, got %v", err)
	}
	if _, ok := repo.themes["t1"]; !ok {
		t.Fatal("foreign delete must not remove the theme")
	}
}

func TestThemeGetVisibility(t *testing.T) {
	repo := newStubThemeRepo(
		ownedTheme("private", "op-1", false),
		ownedTheme("shared", "op-1", true),
	)
	s := NewThemeService(repo, zap.NewNop())
	ctx := context.Background()

	// Чужая приватная закрыта
	if _, err := s.Get(ctx, "op-2", "private"); !errors.Is(err, domain.ErrThemeAccess) {
		t.Fatalf("Get: expected ErrThemeAccess for foreign private theme, got %v", err)
	}

	// Чужая публичная и своя приватная — читаются
	if _, err := s.Get(ctx, "op-2", "shared"); err != nil {
		t.Fatalf("Get: foreign public theme must be readable: %v", err)
	}
	if _, err := s.Get(ctx, "op-1", "private"); err != nil {
		t.Fatalf("Get: own private theme must be readable: %v", err)
	}
}

func TestThemeOwnerCanMutate(t *testing.T) {
	repo := newStubThemeRepo(ownedTheme("t1", "op-1", false))
	s := NewThemeService(repo, zap.NewNop())
	ctx := context.Background()

	updated, err := s.Update(ctx, "op-1", &domain.Theme{ID: "t1", Name: "Darker", IsPublic: true,
		Data: map[string]interface{}{"background": "#000"}})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "Darker" || !updated.IsPublic {
		t.Fatalf("Update: changes not applied: %+v", updated)
	}

	if err := s.Delete(ctx, "op-1", "t1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
