package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE SCHEMA IF NOT EXISTS prison`,

	`CREATE TABLE IF NOT EXISTS prison.accounts (
		id            BIGINT PRIMARY KEY,
		username      TEXT NOT NULL DEFAULT '',
		display_name  TEXT NOT NULL DEFAULT '',
		balance       BIGINT NOT NULL CHECK (balance >= 0),
		price         BIGINT NOT NULL CHECK (price > 0),
		owner_id      BIGINT REFERENCES prison.accounts (id),
		referral_code TEXT NOT NULL UNIQUE,
		referred_by   BIGINT REFERENCES prison.accounts (id),
		shield_until  TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (owner_id IS NULL OR owner_id <> id)
	)`,

	`CREATE INDEX IF NOT EXISTS accounts_owner_idx
		ON prison.accounts (owner_id) WHERE owner_id IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS prison.ownership_history (
		id           BIGSERIAL PRIMARY KEY,
		tx_group_id  UUID NOT NULL,
		owned_id     BIGINT NOT NULL REFERENCES prison.accounts (id),
		old_owner_id BIGINT REFERENCES prison.accounts (id),
		new_owner_id BIGINT REFERENCES prison.accounts (id),
		price_paid   BIGINT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS ownership_history_owned_idx
		ON prison.ownership_history (owned_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS prison.ledger_entries (
		id          BIGSERIAL PRIMARY KEY,
		tx_group_id UUID NOT NULL,
		account_id  BIGINT NOT NULL REFERENCES prison.accounts (id),
		delta       BIGINT NOT NULL,
		kind        TEXT NOT NULL,
		metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS ledger_entries_account_idx
		ON prison.ledger_entries (account_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS prison.income_log (
		id             BIGSERIAL PRIMARY KEY,
		owner_id       BIGINT NOT NULL REFERENCES prison.accounts (id),
		amount         BIGINT NOT NULL,
		prisoner_count INT NOT NULL,
		tick_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate applies the schema. Statements are idempotent so running it on
// every startup is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
