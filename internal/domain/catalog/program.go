// Package catalog содержит доменную модель каталога программ NIVO.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
// Каталог неизменяем: все программы, фазы и сессии определяются при сборке
// и никогда не мутируются во время работы процесса.
package catalog

import (
	"errors"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Tier представляет идентификатор программы из закрытого набора.
type Tier string

const (
	// TierRapidPatch - короткая 7-дневная программа быстрого восстановления.
	TierRapidPatch Tier = "RAPID_PATCH"
	// TierSystemReboot - основная 21-дневная программа перестройки привычек.
	TierSystemReboot Tier = "SYSTEM_REBOOT"
	// TierArchitectMode - длинная 66-дневная программа закрепления.
	TierArchitectMode Tier = "ARCHITECT_MODE"
)

// IsValid проверяет, что тир входит в закрытый набор.
func (t Tier) IsValid() bool {
	switch t {
	case TierRapidPatch, TierSystemReboot, TierArchitectMode:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление тира.
func (t Tier) String() string {
	return string(t)
}

// RequiresElevatedAccess возвращает true, если программа доступна
// только по платной подписке. RAPID_PATCH открыт для бесплатного уровня.
func (t Tier) RequiresElevatedAccess() bool {
	return t != TierRapidPatch
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Phase представляет именованный поддиапазон дней внутри программы.
// Интервал [StartDay, EndDay] закрытый с обеих сторон.
type Phase struct {
	// Name - отображаемое имя фазы.
	Name string

	// StartDay - первый день фазы (включительно).
	StartDay int

	// EndDay - последний день фазы (включительно).
	EndDay int
}

// Contains проверяет, попадает ли день в интервал фазы.
func (p Phase) Contains(day int) bool {
	return day >= p.StartDay && day <= p.EndDay
}

// Session представляет контент одного дня программы.
// Неизменяемые данные каталога; никогда не мутируются в рантайме.
type Session struct {
	// Day - номер дня, к которому привязана сессия.
	Day int

	// Title - заголовок сессии.
	Title string

	// Subtitle - подзаголовок (эхо названия фазы).
	Subtitle string

	// Duration - отображаемая длительность (например, "12 min").
	Duration string

	// ClinicalGoal - клиническая цель сессии.
	ClinicalGoal string

	// AudioCue - скрипт аудио-подсказки.
	AudioCue string

	// Rationale - обоснование, почему сессия устроена именно так.
	Rationale string

	// Steps - упорядоченный список шагов инструкции.
	Steps []string
}

// Program представляет программу одного тира.
type Program struct {
	// ID - идентификатор программы.
	ID Tier

	// Name - отображаемое имя.
	Name string

	// Description - краткое описание.
	Description string

	// TotalDays - общая длительность программы в днях.
	TotalDays int

	// Phases - упорядоченный список фаз. Фазы не обязаны покрывать
	// каждый день TotalDays; резолвер деградирует корректно.
	Phases []Phase

	// Sessions - упорядоченный список сессий. Дни не обязаны быть
	// непрерывными; день 1 всегда заполнен.
	Sessions []Session
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrUnknownTier - тир отсутствует в каталоге. Это ошибка программиста,
	// а не рантайм-ветка: каталог закрыт и известен при сборке.
	ErrUnknownTier = errors.New("catalog: unknown program tier")

	// ErrEmptyProgram - программа без сессий невалидна (день 1 обязателен).
	ErrEmptyProgram = errors.New("catalog: program has no sessions")

	// ErrInvalidPhase - фаза с start > end невалидна.
	ErrInvalidPhase = errors.New("catalog: phase start day is after end day")
)

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// Validate проверяет структурные инварианты программы.
// Вызывается один раз при построении реестра.
func (p *Program) Validate() error {
	if !p.ID.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownTier, p.ID)
	}

	if len(p.Sessions) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyProgram, p.ID)
	}

	for _, ph := range p.Phases {
		if ph.StartDay > ph.EndDay {
			return fmt.Errorf("%w: %s %q [%d, %d]", ErrInvalidPhase, p.ID, ph.Name, ph.StartDay, ph.EndDay)
		}
	}

	return nil
}

// String возвращает строковое представление программы для логирования.
func (p *Program) String() string {
	return fmt.Sprintf("Program{ID: %s, Days: %d, Phases: %d, Sessions: %d}",
		p.ID, p.TotalDays, len(p.Phases), len(p.Sessions))
}
