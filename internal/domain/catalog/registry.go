package catalog

// ══════════════════════════════════════════════════════════════════════════════
// PROGRAM REGISTRY
// Статический реестр программ. Строится один раз при старте процесса
// и дальше только читается - никакого singleton-with-setters.
// ══════════════════════════════════════════════════════════════════════════════

// registry - неизменяемая таблица программ, ключ - Tier.
var registry = buildRegistry()

// buildRegistry собирает каталог и валидирует каждый элемент.
// Паника здесь допустима: невалидный каталог - дефект сборки, не рантайма.
func buildRegistry() map[Tier]*Program {
	programs := []*Program{
		rapidPatch(),
		systemReboot(),
		architectMode(),
	}

	m := make(map[Tier]*Program, len(programs))
	for _, p := range programs {
		if err := p.Validate(); err != nil {
			panic(err)
		}
		m[p.ID] = p
	}
	return m
}

// Get возвращает программу по тиру.
// Отсутствие тира в каталоге - ошибка программиста: каталог закрыт.
func Get(tier Tier) (*Program, error) {
	p, ok := registry[tier]
	if !ok {
		return nil, ErrUnknownTier
	}
	return p, nil
}

// MustGet возвращает программу или паникует.
// Для вызовов с заведомо валидным тиром (константы пакета).
func MustGet(tier Tier) *Program {
	p, err := Get(tier)
	if err != nil {
		panic(err)
	}
	return p
}

// All возвращает все программы в фиксированном порядке тиров.
func All() []*Program {
	return []*Program{
		registry[TierRapidPatch],
		registry[TierSystemReboot],
		registry[TierArchitectMode],
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// RAPID_PATCH: 7 дней, открыт для бесплатного уровня.
// ─────────────────────────────────────────────────────────────────────────────

func rapidPatch() *Program {
	return &Program{
		ID:          TierRapidPatch,
		Name:        "Rapid Patch",
		Description: "Seven days to stop the bleed: short daily resets that pull the nervous system out of alarm mode.",
		TotalDays:   7,
		Phases: []Phase{
			{Name: "Stabilize", StartDay: 1, EndDay: 3},
			{Name: "Rebuild", StartDay: 4, EndDay: 7},
		},
		Sessions: []Session{
			{
				Day:          1,
				Title:        "Pressure Release",
				Subtitle:     "Stabilize",
				Duration:     "8 min",
				ClinicalGoal: "Downshift sympathetic arousal through extended exhalation.",
				AudioCue:     "Find a seat. Let the shoulders drop on the next breath out. We are not fixing anything today - only releasing pressure.",
				Rationale:    "Exhale-biased breathing raises vagal tone within minutes; day one must produce a felt result to earn trust.",
				Steps: []string{
					"Sit upright, feet flat, eyes closed or lowered.",
					"Inhale through the nose for 4 counts.",
					"Exhale through pursed lips for 8 counts.",
					"Repeat for 10 cycles, then breathe normally for 1 minute.",
					"Note one word describing how the body feels now.",
				},
			},
			{
				Day:          2,
				Title:        "Signal Scan",
				Subtitle:     "Stabilize",
				Duration:     "10 min",
				ClinicalGoal: "Build interoceptive accuracy with a structured body scan.",
				AudioCue:     "Start at the crown of the head. Move down slowly. You are taking inventory, not passing judgment.",
				Rationale:    "Interoception precedes regulation; users cannot manage states they cannot detect.",
				Steps: []string{
					"Lie down or recline with support under the knees.",
					"Scan from head to feet, pausing 20 seconds per region.",
					"Label each region: tight, neutral, or open.",
					"Finish with three slow breaths into the tightest region.",
				},
			},
			{
				Day:          3,
				Title:        "Interrupt Protocol",
				Subtitle:     "Stabilize",
				Duration:     "9 min",
				ClinicalGoal: "Install a physiological sigh as a portable stress interrupt.",
				AudioCue:     "Two sharp sips of air in through the nose, one long sigh out. That is the whole move. Learn it here, use it everywhere.",
				Rationale:    "The double-inhale sigh is the fastest known voluntary route to reduce CO2-driven arousal, and it needs no equipment.",
				Steps: []string{
					"Practice the double inhale and extended exhale 5 times.",
					"Recall a mildly stressful moment from this week.",
					"Apply the sigh while holding the memory in mind.",
					"Repeat the pairing three times.",
				},
			},
			{
				Day:          5,
				Title:        "Load Test",
				Subtitle:     "Rebuild",
				Duration:     "12 min",
				ClinicalGoal: "Practice regulation under a controlled cold or tension stressor.",
				AudioCue:     "We invited the discomfort on purpose. Your only job is to keep the exhale longer than the inhale.",
				Rationale:    "Graded exposure with an active coping tool consolidates the skill better than rest-state practice alone.",
				Steps: []string{
					"Choose a stressor: 30 seconds of cold water or a wall sit.",
					"Enter the stressor while running 4-8 breathing.",
					"Exit, recover for 1 minute, and rate the difficulty 1-10.",
					"Repeat once more, aiming for a lower rating.",
				},
			},
			{
				Day:          7,
				Title:        "Patch Review",
				Subtitle:     "Rebuild",
				Duration:     "10 min",
				ClinicalGoal: "Consolidate the week into one default response and one trigger plan.",
				AudioCue:     "Seven days ago the alarm was running the show. Today you pick the one tool you will keep.",
				Rationale:    "A single rehearsed default beats a menu of half-learned options under real stress.",
				Steps: []string{
					"Review notes from days 1-6.",
					"Pick the one technique that worked best.",
					"Write an if-then plan: trigger, tool, duration.",
					"Run the chosen tool once, unprompted.",
				},
			},
		},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// SYSTEM_REBOOT: 21 день, платный тир.
// ─────────────────────────────────────────────────────────────────────────────

func systemReboot() *Program {
	return &Program{
		ID:          TierSystemReboot,
		Name:        "System Reboot",
		Description: "Twenty-one days of habit architecture: sleep anchors, stimulus control, and daily state training.",
		TotalDays:   21,
		Phases: []Phase{
			{Name: "Teardown", StartDay: 1, EndDay: 7},
			{Name: "Rewire", StartDay: 8, EndDay: 14},
			{Name: "Integrate", StartDay: 15, EndDay: 21},
		},
		Sessions: []Session{
			{
				Day:          1,
				Title:        "Baseline Audit",
				Subtitle:     "Teardown",
				Duration:     "15 min",
				ClinicalGoal: "Establish an honest baseline of sleep, screen, and stress patterns.",
				AudioCue:     "No optimizing today. We measure first, because a reboot without a baseline is just a guess.",
				Rationale:    "Self-monitoring alone produces measurable behavior change and anchors later comparisons.",
				Steps: []string{
					"Record last night's sleep and wake times.",
					"Count screen pickups before 9am, honestly.",
					"Rate baseline stress 1-10 at three points today.",
					"Write the single habit you most want gone.",
				},
			},
			{
				Day:          2,
				Title:        "Anchor Drop",
				Subtitle:     "Teardown",
				Duration:     "12 min",
				ClinicalGoal: "Fix a non-negotiable wake time as the circadian anchor.",
				AudioCue:     "Everything in this program hangs off one nail: the time you get up. Choose it now and defend it.",
				Rationale:    "A fixed wake time stabilizes circadian phase faster than any bedtime intervention.",
				Steps: []string{
					"Choose a wake time sustainable seven days a week.",
					"Set the alarm across the room.",
					"Plan 10 minutes of outdoor light within 30 minutes of waking.",
					"Commit in writing inside the app.",
				},
			},
			{
				Day:          3,
				Title:        "Friction Design",
				Subtitle:     "Teardown",
				Duration:     "14 min",
				ClinicalGoal: "Add friction to the top compulsive loop identified on day 1.",
				AudioCue:     "Willpower is a budget. Today we stop spending it and start designing around it.",
				Rationale:    "Environmental friction outperforms inhibition; twenty seconds of delay collapses most compulsive loops.",
				Steps: []string{
					"Move the target app off the home screen.",
					"Log out so every open requires a password.",
					"Place a replacement object where the phone used to sit.",
					"Note each urge tonight: time and trigger.",
				},
			},
		},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ARCHITECT_MODE: 66 дней, платный тир.
// Фазы намеренно не покрывают хвост программы (дни 61-66) -
// резолвер обязан вернуть sentinel-метку, а не упасть.
// ─────────────────────────────────────────────────────────────────────────────

func architectMode() *Program {
	return &Program{
		ID:          TierArchitectMode,
		Name:        "Architect Mode",
		Description: "Sixty-six days to automaticity: build the identity-level systems that keep the reboot permanent.",
		TotalDays:   66,
		Phases: []Phase{
			{Name: "Foundation", StartDay: 1, EndDay: 21},
			{Name: "Framing", StartDay: 22, EndDay: 44},
			{Name: "Finishing", StartDay: 45, EndDay: 60},
		},
		Sessions: []Session{
			{
				Day:          1,
				Title:        "Blueprint",
				Subtitle:     "Foundation",
				Duration:     "20 min",
				ClinicalGoal: "Translate outcome goals into identity statements and daily minimums.",
				AudioCue:     "Architects do not pour concrete on day one. They draw. Today you draw the person the next 66 days will build.",
				Rationale:    "Identity-framed goals survive motivation dips that outcome-framed goals do not.",
				Steps: []string{
					"Write three 'I am the kind of person who...' statements.",
					"Attach one two-minute daily minimum to each.",
					"Schedule the minimums against existing anchors.",
					"Read the statements aloud once.",
				},
			},
			{
				Day:          2,
				Title:        "Load-Bearing Habits",
				Subtitle:     "Foundation",
				Duration:     "18 min",
				ClinicalGoal: "Select the two keystone habits the remaining 64 days will compound.",
				AudioCue:     "Not everything carries weight. Find the two walls that hold the house up and reinforce only those.",
				Rationale:    "Keystone habits generate spillover compliance; spreading effort across many habits dilutes all of them.",
				Steps: []string{
					"List every habit you are tempted to build.",
					"Strike all but the two with the widest spillover.",
					"Define the smallest daily rep for each.",
					"Do both reps now, however small.",
				},
			},
		},
	}
}
