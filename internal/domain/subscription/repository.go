package subscription

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Контракт для работы с хранилищем. Реализации - в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции над записями подписок.
type Repository interface {
	// Create создаёт новую запись подписки.
	// Возвращает ErrRecordNotFound-совместимую ошибку "already exists"
	// из shared при конфликте по UserID.
	Create(ctx context.Context, record *Record) error

	// GetByUserID возвращает запись по идентификатору пользователя.
	// Возвращает ErrRecordNotFound, если записи нет - это валидный
	// исход, а не сбой транспорта.
	GetByUserID(ctx context.Context, userID string) (*Record, error)

	// GetByCustomerID возвращает запись по идентификатору клиента
	// у биллинг-провайдера (для обработки вебхуков).
	GetByCustomerID(ctx context.Context, customerID string) (*Record, error)

	// Update сохраняет изменённую запись.
	Update(ctx context.Context, record *Record) error

	// FindLapsed находит записи с повышенным статусом, у которых
	// оплаченный период закончился раньше cutoff.
	FindLapsed(ctx context.Context, cutoff time.Time) ([]*Record, error)
}

// Cache определяет кеширование снапшотов подписки.
type Cache interface {
	// Get получает снапшот из кеша.
	Get(ctx context.Context, userID string) (*Record, error)

	// Set сохраняет снапшот в кеш.
	Set(ctx context.Context, record *Record, ttl time.Duration) error

	// Invalidate удаляет снапшот из кеша.
	Invalidate(ctx context.Context, userID string) error
}
