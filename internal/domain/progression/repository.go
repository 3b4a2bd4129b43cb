package progression

import (
	"context"

	"github.com/nivo-app/nivo-hub/internal/domain/catalog"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// Контракт для работы с хранилищем. Реализации - в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции над прохождениями программ.
type Repository interface {
	// Create создаёт новое прохождение.
	Create(ctx context.Context, p *Progression) error

	// Get возвращает прохождение по пользователю и программе.
	// Возвращает ErrProgressionNotFound, если записи нет.
	Get(ctx context.Context, userID string, programID catalog.Tier) (*Progression, error)

	// GetAllByUser возвращает все прохождения пользователя.
	GetAllByUser(ctx context.Context, userID string) ([]*Progression, error)

	// Update сохраняет изменённое прохождение.
	Update(ctx context.Context, p *Progression) error

	// FindActiveStreaks возвращает прохождения с ненулевой серией
	// (для фоновой проверки сломанных серий).
	FindActiveStreaks(ctx context.Context) ([]*Progression, error)

	// SetUnlockedForUser массово открывает или закрывает платные
	// программы пользователя при смене уровня доступа.
	SetUnlockedForUser(ctx context.Context, userID string, unlocked bool) error

	// TopStreaks возвращает лучшие текущие серии (для сводки).
	TopStreaks(ctx context.Context, limit int) ([]*Progression, error)
}
