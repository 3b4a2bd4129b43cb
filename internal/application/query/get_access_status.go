// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"time"

	"github.com/nivo-app/nivo-hub/internal/domain/shared"
	"github.com/nivo-app/nivo-hub/internal/domain/subscription"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACCESS STATUS QUERY
// Отвечает на главный вопрос клиента: "что мне доступно прямо сейчас".
// Производный от записи подписки снимок доступа. Важно: отсутствие записи -
// это подтверждённый free, а ошибка хранилища - неизвестность, и эти два
// исхода никогда не смешиваются.
// ══════════════════════════════════════════════════════════════════════════════

// GetAccessStatusQuery содержит параметры запроса уровня доступа.
type GetAccessStatusQuery struct {
	// UserID - идентификатор пользователя.
	UserID string
}

// Validate проверяет корректность параметров запроса.
func (q *GetAccessStatusQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id must be provided")
	}
	return nil
}

// AccessStatusDTO - снимок уровня доступа пользователя.
type AccessStatusDTO struct {
	// UserID - идентификатор пользователя.
	UserID string `json:"user_id"`

	// Level - производный уровень доступа: "free" или "pro".
	Level string `json:"level"`

	// Status - статус подписки, из которого выведен уровень.
	Status string `json:"status"`

	// IsElevated - true, если открыты платные программы.
	IsElevated bool `json:"is_elevated"`

	// DaysUntilExpiry - дней до конца оплаченного периода.
	// nil, если период не задан. Частичный день считается целым.
	DaysUntilExpiry *int `json:"days_until_expiry,omitempty"`

	// ExpiresAt - конец оплаченного периода (если задан).
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// CheckedAt - момент вычисления снимка.
	CheckedAt time.Time `json:"checked_at"`
}

// GetAccessStatusHandler обрабатывает запросы уровня доступа.
type GetAccessStatusHandler struct {
	subscriptionRepo  subscription.Repository
	subscriptionCache subscription.Cache
}

// NewGetAccessStatusHandler создаёт новый обработчик.
func NewGetAccessStatusHandler(
	subscriptionRepo subscription.Repository,
	subscriptionCache subscription.Cache,
) *GetAccessStatusHandler {
	return &GetAccessStatusHandler{
		subscriptionRepo:  subscriptionRepo,
		subscriptionCache: subscriptionCache,
	}
}

// Handle выполняет запрос уровня доступа.
func (h *GetAccessStatusHandler) Handle(ctx context.Context, query GetAccessStatusQuery) (*AccessStatusDTO, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetAccessStatus", shared.ErrValidation, err.Error(), err)
	}

	now := time.Now().UTC()

	record, err := h.fetchRecord(ctx, query.UserID)
	if err != nil {
		if shared.IsNotFound(err) {
			// Записи нет - пользователь подтверждённо free.
			return h.buildDTO(query.UserID, nil, now), nil
		}
		// Хранилище недоступно: уровень неизвестен, наружу уходит
		// отличимая от "нет подписки" ошибка.
		return nil, shared.WrapError("query", "GetAccessStatus", shared.ErrExternalService,
			"subscription lookup failed", err)
	}

	return h.buildDTO(query.UserID, record, now), nil
}

// fetchRecord читает запись подписки, сначала из кэша.
func (h *GetAccessStatusHandler) fetchRecord(ctx context.Context, userID string) (*subscription.Record, error) {
	if h.subscriptionCache != nil {
		if record, err := h.subscriptionCache.Get(ctx, userID); err == nil && record != nil {
			return record, nil
		}
	}

	record, err := h.subscriptionRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if h.subscriptionCache != nil {
		_ = h.subscriptionCache.Set(ctx, record, 0)
	}

	return record, nil
}

// buildDTO строит снимок доступа из записи (или её отсутствия).
func (h *GetAccessStatusHandler) buildDTO(userID string, record *subscription.Record, now time.Time) *AccessStatusDTO {
	access := subscription.DeriveAccess(record, now)

	dto := &AccessStatusDTO{
		UserID:          userID,
		Level:           string(access.AccessLevel),
		Status:          string(access.Status),
		IsElevated:      access.IsElevated,
		DaysUntilExpiry: access.DaysUntilExpiry,
		CheckedAt:       now,
	}

	if record != nil && record.CurrentPeriodEnd != nil {
		expiresAt := *record.CurrentPeriodEnd
		dto.ExpiresAt = &expiresAt
	}

	return dto
}
