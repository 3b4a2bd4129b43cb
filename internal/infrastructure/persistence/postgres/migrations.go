package postgres

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_subscriptions",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_progressions",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}

const migration001Up = `
CREATE TABLE IF NOT EXISTS subscriptions (
    id                 UUID PRIMARY KEY,
    user_id            TEXT NOT NULL UNIQUE,
    status             TEXT NOT NULL DEFAULT 'free',
    customer_id        TEXT,
    subscription_id    TEXT,
    current_period_end TIMESTAMP WITH TIME ZONE,
    started_at         TIMESTAMP WITH TIME ZONE,
    created_at         TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT subscriptions_status_check CHECK (
        status IN ('free', 'pro', 'trialing', 'past_due', 'canceled')
    )
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_customer_id
    ON subscriptions (customer_id)
    WHERE customer_id IS NOT NULL AND customer_id <> '';

-- Reconciliation scans only elevated rows with a known period end.
CREATE INDEX IF NOT EXISTS idx_subscriptions_lapsed
    ON subscriptions (current_period_end)
    WHERE status IN ('pro', 'trialing') AND current_period_end IS NOT NULL;
`

const migration001Down = `
DROP TABLE IF EXISTS subscriptions;
`

const migration002Up = `
CREATE TABLE IF NOT EXISTS progressions (
    id                UUID PRIMARY KEY,
    user_id           TEXT NOT NULL,
    program_id        TEXT NOT NULL,
    current_day       INTEGER NOT NULL DEFAULT 1,
    unlocked          BOOLEAN NOT NULL DEFAULT FALSE,
    current_streak    INTEGER NOT NULL DEFAULT 0,
    best_streak       INTEGER NOT NULL DEFAULT 0,
    last_completed_at TIMESTAMP WITH TIME ZONE,
    started_at        TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    created_at        TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT progressions_user_program_unique UNIQUE (user_id, program_id),
    CONSTRAINT progressions_program_check CHECK (
        program_id IN ('RAPID_PATCH', 'SYSTEM_REBOOT', 'ARCHITECT_MODE')
    ),
    CONSTRAINT progressions_day_check CHECK (current_day >= 1)
);

CREATE INDEX IF NOT EXISTS idx_progressions_user_id
    ON progressions (user_id);

CREATE INDEX IF NOT EXISTS idx_progressions_active_streaks
    ON progressions (current_streak DESC)
    WHERE current_streak > 0;
`

const migration002Down = `
DROP TABLE IF EXISTS progressions;
`
