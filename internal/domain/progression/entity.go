// Package progression содержит доменную модель прохождения программы:
// текущий день, серия активных дней и флаг разблокировки.
package progression

import (
	"errors"
	"fmt"
	"time"

	"github.com/nivo-app/nivo-hub/internal/domain/catalog"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: PROGRESSION
// ══════════════════════════════════════════════════════════════════════════════

// Progression - прохождение одной программы одним пользователем.
type Progression struct {
	// ID - внутренний уникальный идентификатор (UUID).
	ID string

	// UserID - идентификатор пользователя.
	UserID string

	// ProgramID - тир программы.
	ProgramID catalog.Tier

	// CurrentDay - текущий день программы (1-based).
	CurrentDay int

	// Unlocked - открыта ли программа для пользователя.
	// Платные тиры разблокируются повышенным доступом.
	Unlocked bool

	// CurrentStreak - текущая серия активных дней.
	CurrentStreak int

	// BestStreak - лучшая серия активных дней.
	BestStreak int

	// LastCompletedAt - дата последнего завершённого дня (начало суток UTC).
	LastCompletedAt time.Time

	// StartedAt - когда пользователь начал программу.
	StartedAt time.Time

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrProgressionNotFound - прохождение не найдено.
	ErrProgressionNotFound = errors.New("progression not found")

	// ErrAlreadyCompletedToday - сегодняшний день уже засчитан.
	ErrAlreadyCompletedToday = errors.New("today's session is already completed")

	// ErrProgramFinished - программа пройдена до конца.
	ErrProgramFinished = errors.New("program is already finished")

	// ErrLocked - программа заблокирована для текущего уровня доступа.
	ErrLocked = errors.New("program is locked")
)

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY
// ══════════════════════════════════════════════════════════════════════════════

// NewProgression создаёт прохождение программы с первого дня.
func NewProgression(id, userID string, programID catalog.Tier, unlocked bool) (*Progression, error) {
	if id == "" {
		return nil, errors.New("progression id is required")
	}
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if !programID.IsValid() {
		return nil, fmt.Errorf("%w: %q", catalog.ErrUnknownTier, programID)
	}

	now := time.Now().UTC()

	return &Progression{
		ID:         id,
		UserID:     userID,
		ProgramID:  programID,
		CurrentDay: 1,
		Unlocked:   unlocked,
		StartedAt:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// startOfDay обрезает время до начала суток UTC.
func startOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// CompleteDay засчитывает сегодняшнюю сессию: обновляет серию и
// продвигает текущий день, не выходя за пределы программы.
// Возвращает засчитанный день.
func (p *Progression) CompleteDay(at time.Time) (int, error) {
	if !p.Unlocked {
		return 0, ErrLocked
	}

	program, err := catalog.Get(p.ProgramID)
	if err != nil {
		return 0, err
	}

	day := startOfDay(at)

	if !p.LastCompletedAt.IsZero() && p.LastCompletedAt.Equal(day) {
		return 0, ErrAlreadyCompletedToday
	}

	if p.CurrentDay > program.TotalDays {
		return 0, ErrProgramFinished
	}

	completed := p.CurrentDay

	p.recordStreakDay(day)
	p.LastCompletedAt = day
	p.CurrentDay++
	p.UpdatedAt = time.Now().UTC()

	return completed, nil
}

// recordStreakDay обновляет серию по дате активности.
// Тот же день - no-op (отфильтрован раньше), следующий день - продолжение,
// пропуск - сброс на единицу.
func (p *Progression) recordStreakDay(day time.Time) {
	if p.LastCompletedAt.IsZero() {
		p.CurrentStreak = 1
	} else {
		daysDiff := int(day.Sub(startOfDay(p.LastCompletedAt)).Hours() / 24)
		switch daysDiff {
		case 1:
			p.CurrentStreak++
		default:
			p.CurrentStreak = 1
		}
	}

	if p.CurrentStreak > p.BestStreak {
		p.BestStreak = p.CurrentStreak
	}
}

// CompletedOn возвращает true, если день at уже завершён (UTC-сутки).
func (p *Progression) CompletedOn(at time.Time) bool {
	if p.LastCompletedAt.IsZero() {
		return false
	}
	return startOfDay(p.LastCompletedAt).Equal(startOfDay(at))
}

// IsStreakBroken проверяет, сломана ли серия (пропущен вчерашний день).
func (p *Progression) IsStreakBroken(now time.Time) bool {
	if p.LastCompletedAt.IsZero() || p.CurrentStreak == 0 {
		return false
	}

	daysDiff := int(startOfDay(now).Sub(startOfDay(p.LastCompletedAt)).Hours() / 24)
	return daysDiff > 1
}

// ResetStreak сбрасывает сломанную серию. Возвращает потерянную длину.
// Вызывается фоновой сверкой, а не в горячем пути чтения.
func (p *Progression) ResetStreak() int {
	lost := p.CurrentStreak
	p.CurrentStreak = 0
	p.UpdatedAt = time.Now().UTC()
	return lost
}

// Unlock открывает программу (при переходе на повышенный доступ).
func (p *Progression) Unlock() {
	if p.Unlocked {
		return
	}
	p.Unlocked = true
	p.UpdatedAt = time.Now().UTC()
}

// Lock закрывает платную программу (при потере повышенного доступа).
// Прогресс не стирается: после продления пользователь продолжает с того же дня.
func (p *Progression) Lock() {
	if !p.Unlocked {
		return
	}
	p.Unlocked = false
	p.UpdatedAt = time.Now().UTC()
}

// IsFinished возвращает true, если все дни программы пройдены.
func (p *Progression) IsFinished() bool {
	program, err := catalog.Get(p.ProgramID)
	if err != nil {
		return false
	}
	return p.CurrentDay > program.TotalDays
}

// String возвращает строковое представление для логирования.
func (p *Progression) String() string {
	return fmt.Sprintf("Progression{User: %s, Program: %s, Day: %d, Streak: %d}",
		p.UserID, p.ProgramID, p.CurrentDay, p.CurrentStreak)
}
