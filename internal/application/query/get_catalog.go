package query

import (
	"context"
	"time"

	"github.com/nivo-app/nivo-hub/internal/domain/catalog"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET CATALOG QUERY
// Отдаёт весь каталог программ. Контент статический, поэтому у запроса нет
// параметров и зависимостей - обработчик существует ради симметрии API.
// ══════════════════════════════════════════════════════════════════════════════

// ProgramDTO - программа каталога в ответе.
type ProgramDTO struct {
	// Tier - машинный идентификатор программы.
	Tier string `json:"tier"`

	// Name - отображаемое имя.
	Name string `json:"name"`

	// Description - описание для карточки программы.
	Description string `json:"description,omitempty"`

	// TotalDays - длительность в днях.
	TotalDays int `json:"total_days"`

	// RequiresPro - нужна ли подписка.
	RequiresPro bool `json:"requires_pro"`

	// Phases - фазы программы по порядку.
	Phases []PhaseDTO `json:"phases"`

	// SessionDays - дни, для которых заполнены сессии.
	SessionDays []int `json:"session_days"`
}

// PhaseDTO - фаза программы в ответе.
type PhaseDTO struct {
	// Name - название фазы.
	Name string `json:"name"`

	// StartDay - первый день фазы (включительно).
	StartDay int `json:"start_day"`

	// EndDay - последний день фазы (включительно).
	EndDay int `json:"end_day"`
}

// CatalogDTO - весь каталог.
type CatalogDTO struct {
	// Programs - программы в порядке возрастания длительности.
	Programs []ProgramDTO `json:"programs"`

	// GeneratedAt - время генерации ответа.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetCatalogHandler обрабатывает запросы каталога.
type GetCatalogHandler struct{}

// NewGetCatalogHandler создаёт новый обработчик.
func NewGetCatalogHandler() *GetCatalogHandler {
	return &GetCatalogHandler{}
}

// Handle возвращает каталог программ.
func (h *GetCatalogHandler) Handle(_ context.Context) (*CatalogDTO, error) {
	programs := catalog.All()

	dto := &CatalogDTO{
		Programs:    make([]ProgramDTO, 0, len(programs)),
		GeneratedAt: time.Now().UTC(),
	}

	for _, p := range programs {
		item := ProgramDTO{
			Tier:        string(p.ID),
			Name:        p.Name,
			Description: p.Description,
			TotalDays:   p.TotalDays,
			RequiresPro: p.ID.RequiresElevatedAccess(),
			Phases:      make([]PhaseDTO, 0, len(p.Phases)),
			SessionDays: make([]int, 0, len(p.Sessions)),
		}

		for _, phase := range p.Phases {
			item.Phases = append(item.Phases, PhaseDTO{
				Name:     phase.Name,
				StartDay: phase.StartDay,
				EndDay:   phase.EndDay,
			})
		}

		for _, session := range p.Sessions {
			item.SessionDays = append(item.SessionDays, session.Day)
		}

		dto.Programs = append(dto.Programs, item)
	}

	return dto, nil
}
