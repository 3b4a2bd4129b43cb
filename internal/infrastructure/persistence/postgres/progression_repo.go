package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nivo-app/nivo-hub/internal/domain/catalog"
	"github.com/nivo-app/nivo-hub/internal/domain/progression"
	"github.com/nivo-app/nivo-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressionRepository implements progression.Repository for PostgreSQL.
type ProgressionRepository struct {
	conn *Connection
}

// NewProgressionRepository creates a new ProgressionRepository.
func NewProgressionRepository(conn *Connection) *ProgressionRepository {
	return &ProgressionRepository{conn: conn}
}

const progressionColumns = `id, user_id, program_id, current_day, unlocked,
	   current_streak, best_streak, last_completed_at, started_at, created_at, updated_at`

// Create creates a new progression.
func (r *ProgressionRepository) Create(ctx context.Context, p *progression.Progression) error {
	query := `
		INSERT INTO progressions (
			id, user_id, program_id, current_day, unlocked,
			current_streak, best_streak, last_completed_at, started_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.conn.Exec(ctx, query,
		p.ID,
		p.UserID,
		string(p.ProgramID),
		p.CurrentDay,
		p.Unlocked,
		p.CurrentStreak,
		p.BestStreak,
		nullTime(p.LastCompletedAt),
		p.StartedAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("progression", "Create", shared.ErrAlreadyExists,
				"progression already exists", err)
		}
		return fmt.Errorf("failed to create progression: %w", err)
	}

	return nil
}

// Get returns a progression by user and program.
func (r *ProgressionRepository) Get(ctx context.Context, userID string, programID catalog.Tier) (*progression.Progression, error) {
	query := `SELECT ` + progressionColumns + ` FROM progressions WHERE user_id = $1 AND program_id = $2`

	row := r.conn.QueryRow(ctx, query, userID, string(programID))
	return r.scanProgression(row, "Get")
}

// GetAllByUser returns all progressions of a user.
func (r *ProgressionRepository) GetAllByUser(ctx context.Context, userID string) ([]*progression.Progression, error) {
	query := `SELECT ` + progressionColumns + ` FROM progressions WHERE user_id = $1 ORDER BY started_at`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query progressions: %w", err)
	}
	defer rows.Close()

	return r.scanProgressions(rows)
}

// Update persists a modified progression.
func (r *ProgressionRepository) Update(ctx context.Context, p *progression.Progression) error {
	query := `
		UPDATE progressions
		SET current_day = $2,
		    unlocked = $3,
		    current_streak = $4,
		    best_streak = $5,
		    last_completed_at = $6,
		    updated_at = $7
		WHERE id = $1
	`

	tag, err := r.conn.Exec(ctx, query,
		p.ID,
		p.CurrentDay,
		p.Unlocked,
		p.CurrentStreak,
		p.BestStreak,
		nullTime(p.LastCompletedAt),
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update progression: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.WrapError("progression", "Update", shared.ErrNotFound,
			"progression not found", progression.ErrProgressionNotFound)
	}

	return nil
}

// FindActiveStreaks returns progressions with a non-zero streak.
func (r *ProgressionRepository) FindActiveStreaks(ctx context.Context) ([]*progression.Progression, error) {
	query := `SELECT ` + progressionColumns + ` FROM progressions WHERE current_streak > 0`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active streaks: %w", err)
	}
	defer rows.Close()

	return r.scanProgressions(rows)
}

// SetUnlockedForUser opens or closes the user's paid programs in bulk.
// The free program is never touched.
func (r *ProgressionRepository) SetUnlockedForUser(ctx context.Context, userID string, unlocked bool) error {
	query := `
		UPDATE progressions
		SET unlocked = $2,
		    updated_at = NOW()
		WHERE user_id = $1
		  AND program_id IN ('SYSTEM_REBOOT', 'ARCHITECT_MODE')
	`

	if _, err := r.conn.Exec(ctx, query, userID, unlocked); err != nil {
		return fmt.Errorf("failed to update program locks: %w", err)
	}

	return nil
}

// TopStreaks returns the best current streaks.
func (r *ProgressionRepository) TopStreaks(ctx context.Context, limit int) ([]*progression.Progression, error) {
	query := `
		SELECT ` + progressionColumns + `
		FROM progressions
		WHERE current_streak > 0
		ORDER BY current_streak DESC, best_streak DESC
		LIMIT $1
	`

	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top streaks: %w", err)
	}
	defer rows.Close()

	return r.scanProgressions(rows)
}

// scanProgression scans a single progression row.
func (r *ProgressionRepository) scanProgression(row pgx.Row, op string) (*progression.Progression, error) {
	var (
		p               progression.Progression
		programID       string
		lastCompletedAt *time.Time
	)

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&programID,
		&p.CurrentDay,
		&p.Unlocked,
		&p.CurrentStreak,
		&p.BestStreak,
		&lastCompletedAt,
		&p.StartedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.WrapError("progression", op, shared.ErrNotFound,
				"progression not found", progression.ErrProgressionNotFound)
		}
		return nil, fmt.Errorf("failed to scan progression: %w", err)
	}

	p.ProgramID = catalog.Tier(programID)
	if lastCompletedAt != nil {
		p.LastCompletedAt = *lastCompletedAt
	}

	return &p, nil
}

// scanProgressions scans all rows of a progression query.
func (r *ProgressionRepository) scanProgressions(rows pgx.Rows) ([]*progression.Progression, error) {
	var out []*progression.Progression
	for rows.Next() {
		p, err := r.scanProgression(rows, "scan")
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// nullTime maps zero times to SQL NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
