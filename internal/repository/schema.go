package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// migrations are applied in order; each statement is idempotent.
var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "users",
		sql: `
			CREATE TABLE IF NOT EXISTS users (
				telegram_id BIGINT PRIMARY KEY,
				username VARCHAR(255) NOT NULL,
				balance BIGINT NOT NULL DEFAULT 1000 CHECK (balance >= 0),
				last_daily_claim BIGINT DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_users_balance ON users(balance DESC);
		`,
	},
	{
		name: "transactions",
		sql: `
			CREATE TABLE IF NOT EXISTS transactions (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
				amount BIGINT NOT NULL,
				type VARCHAR(50) NOT NULL,
				description TEXT,
				ref VARCHAR(200) UNIQUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_transactions_type_time ON transactions(type, created_at DESC);
		`,
	},
	{
		name: "lobby_settlements",
		sql: `
			CREATE TABLE IF NOT EXISTS lobby_settlements (
				session_id VARCHAR(64) PRIMARY KEY,
				scope_key VARCHAR(64) NOT NULL,
				kind VARCHAR(32) NOT NULL,
				owner_id BIGINT NOT NULL,
				phase VARCHAR(16) NOT NULL,
				reason VARCHAR(64) NOT NULL,
				total_staked BIGINT NOT NULL,
				total_disbursed BIGINT NOT NULL,
				partial_failure BOOLEAN NOT NULL DEFAULT FALSE,
				outcome JSONB,
				finished_at TIMESTAMPTZ NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_lobby_settlements_partial
				ON lobby_settlements(finished_at) WHERE partial_failure;
		`,
	},
	{
		name: "lobby_payouts",
		sql: `
			CREATE TABLE IF NOT EXISTS lobby_payouts (
				session_id VARCHAR(64) NOT NULL REFERENCES lobby_settlements(session_id) ON DELETE CASCADE,
				position INT NOT NULL,
				participant_id BIGINT NOT NULL,
				selection INT NOT NULL,
				stake BIGINT NOT NULL,
				amount BIGINT NOT NULL,
				paid BOOLEAN NOT NULL,
				PRIMARY KEY (session_id, position)
			);
		`,
	},
}

// Migrate applies the schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")
	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Int("step", i+1).Str("name", m.name).Msg("Migration applied")
	}
	log.Info().Msg("All migrations completed successfully")
	return nil
}
