package domain

import (
	"errors"
	"time"
)

var (
	ErrThemeNotFound = errors.New("theme not found")
	ErrThemeAccess   = errors.New("theme belongs to another author")
)

// Theme — настройка внешнего вида дашборда. Вторичная CRUD-сущность:
// владелец может менять и удалять, чужие видят только публичные.
type Theme struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	AuthorID string                 `json:"authorId"`
	IsPublic bool                   `json:"isPublic"`
	Data     map[string]interface{} `json:"data"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ThemeExport — формат выгрузки/загрузки темы одним JSON-документом.
type ThemeExport struct {
	Version int    `json:"version"`
	Theme   *Theme `json:"theme"`
}
