package query

import (
	"context"
	"errors"
	"time"

	"github.com/nivo-app/nivo-hub/internal/domain/rank"
	"github.com/nivo-app/nivo-hub/internal/domain/shared"
	"github.com/nivo-app/nivo-hub/internal/domain/subscription"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RANK PROFILE QUERY
// Профиль биоранга пользователя: текущий ранг по стажу подписки, следующий
// ранг и прогресс до него. Стаж считается в календарных месяцах от первого
// перехода в elevated-статус.
// ══════════════════════════════════════════════════════════════════════════════

// GetRankProfileQuery содержит параметры запроса профиля ранга.
type GetRankProfileQuery struct {
	// UserID - идентификатор пользователя.
	UserID string
}

// Validate проверяет корректность параметров запроса.
func (q *GetRankProfileQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id must be provided")
	}
	return nil
}

// RankDTO - один ранг в ответе.
type RankDTO struct {
	// ID - машинный идентификатор ранга.
	ID string `json:"id"`

	// Name - отображаемое название.
	Name string `json:"name"`

	// MonthsRequired - порог стажа в месяцах.
	MonthsRequired int `json:"months_required"`

	// Tag - короткая подпись для UI.
	Tag string `json:"tag,omitempty"`
}

// RankProfileDTO - профиль ранга пользователя.
type RankProfileDTO struct {
	// UserID - идентификатор пользователя.
	UserID string `json:"user_id"`

	// TenureMonths - стаж подписки в календарных месяцах.
	TenureMonths int `json:"tenure_months"`

	// Current - текущий ранг.
	Current RankDTO `json:"current"`

	// Next - следующий ранг. nil на максимальном ранге.
	Next *RankDTO `json:"next,omitempty"`

	// MonthsToNext - месяцев до следующего ранга (0 на максимальном).
	MonthsToNext int `json:"months_to_next"`

	// Progress - прогресс к следующему рангу, 0.0 - 1.0.
	Progress float64 `json:"progress"`

	// MemberSince - начало стажа. nil, если подписки ещё не было.
	MemberSince *time.Time `json:"member_since,omitempty"`

	// GeneratedAt - время генерации профиля.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetRankProfileHandler обрабатывает запросы профиля ранга.
type GetRankProfileHandler struct {
	subscriptionRepo subscription.Repository
	table            rank.Table
}

// NewGetRankProfileHandler создаёт новый обработчик.
// Пустая таблица заменяется на таблицу по умолчанию.
func NewGetRankProfileHandler(subscriptionRepo subscription.Repository, table rank.Table) *GetRankProfileHandler {
	if len(table) == 0 {
		table = rank.DefaultTable
	}
	return &GetRankProfileHandler{
		subscriptionRepo: subscriptionRepo,
		table:            table,
	}
}

// Handle выполняет запрос профиля ранга.
func (h *GetRankProfileHandler) Handle(ctx context.Context, query GetRankProfileQuery) (*RankProfileDTO, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetRankProfile", shared.ErrValidation, err.Error(), err)
	}

	now := time.Now().UTC()

	// Отсутствие записи - легальный случай: пользователь без подписки
	// сидит на низшем ранге с нулевым стажем.
	var startedAt *time.Time
	record, err := h.subscriptionRepo.GetByUserID(ctx, query.UserID)
	if err != nil && !shared.IsNotFound(err) {
		return nil, shared.WrapError("query", "GetRankProfile", shared.ErrExternalService,
			"subscription lookup failed", err)
	}
	if record != nil {
		startedAt = record.StartedAt
	}

	state := rank.Compute(h.table, startedAt, now)

	dto := &RankProfileDTO{
		UserID:       query.UserID,
		TenureMonths: state.TenureMonths,
		Current:      toRankDTO(state.Current),
		MonthsToNext: state.MonthsToNext,
		Progress:     state.Progress,
		MemberSince:  startedAt,
		GeneratedAt:  now,
	}

	if state.Next != nil {
		next := toRankDTO(*state.Next)
		dto.Next = &next
	}

	return dto, nil
}

// toRankDTO конвертирует доменный ранг в DTO.
func toRankDTO(r rank.BioRank) RankDTO {
	return RankDTO{
		ID:             r.ID,
		Name:           r.Name,
		MonthsRequired: r.MonthsRequired,
		Tag:            r.Tag,
	}
}
