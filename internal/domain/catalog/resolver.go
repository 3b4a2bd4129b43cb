package catalog

import "fmt"

// ══════════════════════════════════════════════════════════════════════════════
// PHASE / SESSION RESOLVER
// Чистые проекции: по номеру дня и тиру определяют активную фазу и контент.
// Никогда не падают на out-of-range днях - UI всегда должен получить
// что-то отображаемое.
// ══════════════════════════════════════════════════════════════════════════════

// FallbackPhaseLabel - sentinel-метка для дней вне всех фаз.
const FallbackPhaseLabel = "Phase in progress"

// ResolvePhaseLabel возвращает метку активной фазы для дня программы.
// День может быть любым целым, включая out-of-range значения.
// При пересечении фаз (чего авторинг каталога не допускает, но структурно
// не запрещает) побеждает первая подходящая фаза в порядке списка.
func ResolvePhaseLabel(day int, tier Tier) (string, error) {
	program, err := Get(tier)
	if err != nil {
		return "", err
	}

	for i, phase := range program.Phases {
		if phase.Contains(day) {
			return fmt.Sprintf("Phase %d: %s", i+1, phase.Name), nil
		}
	}

	return FallbackPhaseLabel, nil
}

// ResolveSession возвращает сессию для дня программы.
// Если день не заполнен в каталоге, возвращается первая сессия программы
// (день 1 всегда заполнен) - вызывающий НЕ должен предполагать, что
// Day возвращённой сессии равен запрошенному дню.
func ResolveSession(day int, tier Tier) (Session, error) {
	program, err := Get(tier)
	if err != nil {
		return Session{}, err
	}

	for _, session := range program.Sessions {
		if session.Day == day {
			return session, nil
		}
	}

	// Валидация реестра гарантирует хотя бы одну сессию.
	return program.Sessions[0], nil
}
