package query

import (
	"context"
	"errors"
	"time"

	"github.com/nivo-app/nivo-hub/internal/domain/catalog"
	"github.com/nivo-app/nivo-hub/internal/domain/progression"
	"github.com/nivo-app/nivo-hub/internal/domain/shared"
	"github.com/nivo-app/nivo-hub/internal/domain/subscription"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET TODAY SESSION QUERY
// Экран "сегодня": сессия текущего дня программы, подпись фазы и состояние
// доступа. Платные программы без elevated-доступа отдают сессию в
// заблокированном виде, а не ошибкой - UI показывает paywall поверх контента.
// ══════════════════════════════════════════════════════════════════════════════

// GetTodaySessionQuery содержит параметры запроса сессии дня.
type GetTodaySessionQuery struct {
	// UserID - идентификатор пользователя.
	UserID string

	// Tier - программа. Пустая строка недопустима.
	Tier string
}

// Validate проверяет корректность параметров запроса.
func (q *GetTodaySessionQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id must be provided")
	}
	if q.Tier == "" {
		return errors.New("tier must be provided")
	}
	if !catalog.Tier(q.Tier).IsValid() {
		return errors.New("unknown tier: " + q.Tier)
	}
	return nil
}

// SessionDTO - сессия дня в ответе.
type SessionDTO struct {
	// Day - день программы, которому принадлежит сессия.
	Day int `json:"day"`

	// Title - заголовок сессии.
	Title string `json:"title"`

	// Subtitle - подзаголовок.
	Subtitle string `json:"subtitle,omitempty"`

	// Duration - длительность, человекочитаемая строка.
	Duration string `json:"duration,omitempty"`

	// ClinicalGoal - цель сессии.
	ClinicalGoal string `json:"clinical_goal,omitempty"`

	// AudioCue - аудио-подсказка.
	AudioCue string `json:"audio_cue,omitempty"`

	// Rationale - обоснование для пользователя.
	Rationale string `json:"rationale,omitempty"`

	// Steps - шаги сессии по порядку.
	Steps []string `json:"steps,omitempty"`

	// IsFallback - true, если точной сессии на день нет и отдана
	// сессия первого дня.
	IsFallback bool `json:"is_fallback"`
}

// TodaySessionDTO - полный ответ экрана "сегодня".
type TodaySessionDTO struct {
	// UserID - идентификатор пользователя.
	UserID string `json:"user_id"`

	// Tier - программа.
	Tier string `json:"tier"`

	// ProgramName - отображаемое имя программы.
	ProgramName string `json:"program_name"`

	// CurrentDay - текущий день пользователя в программе.
	CurrentDay int `json:"current_day"`

	// TotalDays - длительность программы в днях.
	TotalDays int `json:"total_days"`

	// PhaseLabel - подпись фазы для текущего дня.
	PhaseLabel string `json:"phase_label"`

	// Session - сессия текущего дня.
	Session SessionDTO `json:"session"`

	// Locked - true, если программа платная, а доступ не elevated.
	Locked bool `json:"locked"`

	// CompletedToday - true, если сегодняшняя сессия уже завершена.
	CompletedToday bool `json:"completed_today"`

	// CurrentStreak - текущая серия дней подряд.
	CurrentStreak int `json:"current_streak"`

	// GeneratedAt - время генерации ответа.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetTodaySessionHandler обрабатывает запросы экрана "сегодня".
type GetTodaySessionHandler struct {
	progressionRepo  progression.Repository
	subscriptionRepo subscription.Repository
}

// NewGetTodaySessionHandler создаёт новый обработчик.
func NewGetTodaySessionHandler(
	progressionRepo progression.Repository,
	subscriptionRepo subscription.Repository,
) *GetTodaySessionHandler {
	return &GetTodaySessionHandler{
		progressionRepo:  progressionRepo,
		subscriptionRepo: subscriptionRepo,
	}
}

// Handle выполняет запрос сессии текущего дня.
func (h *GetTodaySessionHandler) Handle(ctx context.Context, query GetTodaySessionQuery) (*TodaySessionDTO, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetTodaySession", shared.ErrValidation, err.Error(), err)
	}

	tier := catalog.Tier(query.Tier)
	program, err := catalog.Get(tier)
	if err != nil {
		return nil, shared.WrapError("query", "GetTodaySession", shared.ErrValidation, "unknown program", err)
	}

	now := time.Now().UTC()

	// День берём из прогрессии пользователя; без прогрессии показываем
	// первый день программы.
	currentDay := 1
	completedToday := false
	currentStreak := 0

	prog, err := h.progressionRepo.Get(ctx, query.UserID, tier)
	switch {
	case err == nil:
		currentDay = prog.CurrentDay
		if currentDay > program.TotalDays {
			currentDay = program.TotalDays
		}
		completedToday = prog.CompletedOn(now)
		currentStreak = prog.CurrentStreak
	case shared.IsNotFound(err):
		// Нет прогрессии - день 1.
	default:
		return nil, shared.WrapError("query", "GetTodaySession", shared.ErrExternalService,
			"progression lookup failed", err)
	}

	locked, err := h.resolveLocked(ctx, query.UserID, tier, now)
	if err != nil {
		return nil, err
	}

	// Тир уже проверен через Get, ошибки резолверов невозможны.
	phaseLabel, _ := catalog.ResolvePhaseLabel(currentDay, tier)
	session, _ := catalog.ResolveSession(currentDay, tier)

	sessionDTO := toSessionDTO(session, currentDay)
	if locked {
		sessionDTO = redactSession(sessionDTO)
	}

	return &TodaySessionDTO{
		UserID:         query.UserID,
		Tier:           string(tier),
		ProgramName:    program.Name,
		CurrentDay:     currentDay,
		TotalDays:      program.TotalDays,
		PhaseLabel:     phaseLabel,
		Session:        sessionDTO,
		Locked:         locked,
		CompletedToday: completedToday,
		CurrentStreak:  currentStreak,
		GeneratedAt:    now,
	}, nil
}

// resolveLocked определяет, закрыта ли программа для пользователя.
func (h *GetTodaySessionHandler) resolveLocked(ctx context.Context, userID string, tier catalog.Tier, now time.Time) (bool, error) {
	if !tier.RequiresElevatedAccess() {
		return false, nil
	}

	record, err := h.subscriptionRepo.GetByUserID(ctx, userID)
	if err != nil {
		if shared.IsNotFound(err) {
			return true, nil
		}
		return false, shared.WrapError("query", "GetTodaySession", shared.ErrExternalService,
			"subscription lookup failed", err)
	}

	access := subscription.DeriveAccess(record, now)
	return !access.IsElevated, nil
}

// redactSession убирает платный контент из сессии. Заголовок и длительность
// остаются - UI рисует paywall поверх карточки дня.
func redactSession(s SessionDTO) SessionDTO {
	s.ClinicalGoal = ""
	s.AudioCue = ""
	s.Rationale = ""
	s.Steps = nil
	return s
}

// toSessionDTO конвертирует доменную сессию в DTO.
func toSessionDTO(s catalog.Session, requestedDay int) SessionDTO {
	steps := make([]string, len(s.Steps))
	copy(steps, s.Steps)

	return SessionDTO{
		Day:          s.Day,
		Title:        s.Title,
		Subtitle:     s.Subtitle,
		Duration:     s.Duration,
		ClinicalGoal: s.ClinicalGoal,
		AudioCue:     s.AudioCue,
		Rationale:    s.Rationale,
		Steps:        steps,
		IsFallback:   s.Day != requestedDay,
	}
}
