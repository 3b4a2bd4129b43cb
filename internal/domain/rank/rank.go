// Package rank содержит модель рангов, привязанных к стажу подписки.
// Ранг - статусный бейдж из статической упорядоченной таблицы, ключ -
// стаж в календарных месяцах с даты начала подписки.
package rank

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANK TABLE
// ══════════════════════════════════════════════════════════════════════════════

// BioRank - элемент таблицы рангов.
type BioRank struct {
	// ID - идентификатор ранга.
	ID string

	// Name - отображаемое имя.
	Name string

	// MonthsRequired - минимальный стаж в месяцах.
	MonthsRequired int

	// Tag - презентационная метка (цвет/стиль бейджа на клиенте).
	Tag string
}

// Table - упорядоченная по стажу таблица рангов.
// Инвариант: сортировка по MonthsRequired по возрастанию, без дубликатов
// идентификаторов, первый элемент с MonthsRequired == 0.
type Table []BioRank

// Validate проверяет инварианты таблицы. Вызывается один раз при старте.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("rank: table is empty")
	}
	if t[0].MonthsRequired != 0 {
		return fmt.Errorf("rank: first entry must require 0 months, got %d", t[0].MonthsRequired)
	}

	seen := make(map[string]bool, len(t))
	for i, r := range t {
		if seen[r.ID] {
			return fmt.Errorf("rank: duplicate id %q", r.ID)
		}
		seen[r.ID] = true

		if i > 0 && t[i-1].MonthsRequired > r.MonthsRequired {
			return fmt.Errorf("rank: table not sorted at %q", r.ID)
		}
	}
	return nil
}

// DefaultTable - таблица рангов NIVO. Константа процесса.
var DefaultTable = mustTable(Table{
	{ID: "initiate", Name: "Initiate", MonthsRequired: 0, Tag: "slate"},
	{ID: "stabilizer", Name: "Stabilizer", MonthsRequired: 1, Tag: "teal"},
	{ID: "operator", Name: "Operator", MonthsRequired: 3, Tag: "indigo"},
	{ID: "optimizer", Name: "Optimizer", MonthsRequired: 6, Tag: "violet"},
	{ID: "architect", Name: "Architect", MonthsRequired: 12, Tag: "amber"},
	{ID: "apex", Name: "Apex", MonthsRequired: 24, Tag: "gold"},
})

func mustTable(t Table) Table {
	if err := t.Validate(); err != nil {
		panic(err)
	}
	return t
}

// ══════════════════════════════════════════════════════════════════════════════
// TENURE
// ══════════════════════════════════════════════════════════════════════════════

// TenureMonths возвращает стаж как разницу календарных месяцев:
// year diff * 12 + month diff. День месяца игнорируется намеренно -
// 31 января против 1 февраля даёт 1 месяц стажа. Это грубая, но
// зафиксированная пользовательски-видимая семантика; "чинить" её нельзя,
// иначе сдвинутся сроки получения рангов.
func TenureMonths(start, now time.Time) int {
	months := (now.Year()-start.Year())*12 + int(now.Month()) - int(start.Month())
	if months < 0 {
		return 0
	}
	return months
}

// ══════════════════════════════════════════════════════════════════════════════
// RANK COMPUTATION
// ══════════════════════════════════════════════════════════════════════════════

// State - производное состояние ранга пользователя.
type State struct {
	// TenureMonths - стаж в календарных месяцах (0 при отсутствии старта).
	TenureMonths int

	// Current - текущий ранг: последний элемент таблицы с
	// MonthsRequired <= TenureMonths.
	Current BioRank

	// Next - следующий ранг, nil на максимальном.
	Next *BioRank

	// MonthsToNext - месяцев до следующего ранга, 0 на максимальном.
	MonthsToNext int

	// Progress - линейная интерполяция стажа между порогами текущего
	// и следующего рангов, [0, 1]. Ровно 1 на максимальном ранге.
	Progress float64
}

// Compute вычисляет состояние ранга по дате начала подписки.
// nil startedAt означает нулевой стаж и низший ранг таблицы.
func Compute(table Table, startedAt *time.Time, now time.Time) State {
	tenure := 0
	if startedAt != nil {
		tenure = TenureMonths(*startedAt, now)
	}

	// Инвариант таблицы (первый порог == 0) гарантирует совпадение.
	current := 0
	for i, r := range table {
		if r.MonthsRequired <= tenure {
			current = i
		}
	}

	state := State{
		TenureMonths: tenure,
		Current:      table[current],
	}

	if current == len(table)-1 {
		// Максимальный ранг: прогресс завершён независимо от стажа.
		state.Progress = 1
		return state
	}

	next := table[current+1]
	state.Next = &next

	state.MonthsToNext = next.MonthsRequired - tenure
	if state.MonthsToNext < 0 {
		state.MonthsToNext = 0
	}

	span := next.MonthsRequired - table[current].MonthsRequired
	if span <= 0 {
		// Нулевой интервал между порогами: не делим на ноль.
		state.Progress = 0
		return state
	}

	progress := float64(tenure-table[current].MonthsRequired) / float64(span)
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	state.Progress = progress

	return state
}
