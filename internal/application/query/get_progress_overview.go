package query

import (
	"context"
	"errors"
	"time"

	"github.com/nivo-app/nivo-hub/internal/domain/catalog"
	"github.com/nivo-app/nivo-hub/internal/domain/progression"
	"github.com/nivo-app/nivo-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS OVERVIEW QUERY
// Сводка по всем программам пользователя: день, процент, серия. Один запрос
// для главного экрана вместо трёх.
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressOverviewQuery содержит параметры запроса сводки прогресса.
type GetProgressOverviewQuery struct {
	// UserID - идентификатор пользователя.
	UserID string
}

// Validate проверяет корректность параметров запроса.
func (q *GetProgressOverviewQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id must be provided")
	}
	return nil
}

// ProgramProgressDTO - прогресс по одной программе.
type ProgramProgressDTO struct {
	// Tier - программа.
	Tier string `json:"tier"`

	// ProgramName - отображаемое имя программы.
	ProgramName string `json:"program_name"`

	// CurrentDay - текущий день пользователя.
	CurrentDay int `json:"current_day"`

	// TotalDays - длительность программы.
	TotalDays int `json:"total_days"`

	// PercentComplete - завершённость программы, 0.0 - 1.0.
	PercentComplete float64 `json:"percent_complete"`

	// PhaseLabel - подпись фазы текущего дня.
	PhaseLabel string `json:"phase_label"`

	// Unlocked - открыта ли программа пользователю.
	Unlocked bool `json:"unlocked"`

	// Finished - пройдены ли все дни.
	Finished bool `json:"finished"`

	// StartedAt - когда пользователь начал программу.
	StartedAt time.Time `json:"started_at"`
}

// ProgressOverviewDTO - сводка прогресса пользователя.
type ProgressOverviewDTO struct {
	// UserID - идентификатор пользователя.
	UserID string `json:"user_id"`

	// Programs - прогресс по каждой начатой программе.
	Programs []ProgramProgressDTO `json:"programs"`

	// CurrentStreak - максимальная текущая серия среди программ.
	CurrentStreak int `json:"current_streak"`

	// BestStreak - лучшая серия за всё время среди программ.
	BestStreak int `json:"best_streak"`

	// GeneratedAt - время генерации сводки.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetProgressOverviewHandler обрабатывает запросы сводки прогресса.
type GetProgressOverviewHandler struct {
	progressionRepo progression.Repository
}

// NewGetProgressOverviewHandler создаёт новый обработчик.
func NewGetProgressOverviewHandler(progressionRepo progression.Repository) *GetProgressOverviewHandler {
	return &GetProgressOverviewHandler{progressionRepo: progressionRepo}
}

// Handle выполняет запрос сводки прогресса.
func (h *GetProgressOverviewHandler) Handle(ctx context.Context, query GetProgressOverviewQuery) (*ProgressOverviewDTO, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetProgressOverview", shared.ErrValidation, err.Error(), err)
	}

	progressions, err := h.progressionRepo.GetAllByUser(ctx, query.UserID)
	if err != nil && !shared.IsNotFound(err) {
		return nil, shared.WrapError("query", "GetProgressOverview", shared.ErrExternalService,
			"progression lookup failed", err)
	}

	now := time.Now().UTC()
	overview := &ProgressOverviewDTO{
		UserID:      query.UserID,
		Programs:    make([]ProgramProgressDTO, 0, len(progressions)),
		GeneratedAt: now,
	}

	for _, prog := range progressions {
		program, err := catalog.Get(prog.ProgramID)
		if err != nil {
			// Осиротевшая прогрессия по удалённому тиру: пропускаем.
			continue
		}

		dto := ProgramProgressDTO{
			Tier:        string(prog.ProgramID),
			ProgramName: program.Name,
			CurrentDay:  prog.CurrentDay,
			TotalDays:   program.TotalDays,
			Unlocked:    prog.Unlocked,
			Finished:    prog.IsFinished(),
			StartedAt:   prog.StartedAt,
		}

		displayDay := prog.CurrentDay
		if displayDay > program.TotalDays {
			displayDay = program.TotalDays
		}
		dto.PhaseLabel, _ = catalog.ResolvePhaseLabel(displayDay, prog.ProgramID)

		completed := prog.CurrentDay - 1
		if completed > program.TotalDays {
			completed = program.TotalDays
		}
		if program.TotalDays > 0 {
			dto.PercentComplete = float64(completed) / float64(program.TotalDays)
		}

		overview.Programs = append(overview.Programs, dto)

		if prog.CurrentStreak > overview.CurrentStreak {
			overview.CurrentStreak = prog.CurrentStreak
		}
		if prog.BestStreak > overview.BestStreak {
			overview.BestStreak = prog.BestStreak
		}
	}

	return overview, nil
}
