package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// balances is shared with the payment service and is not created here.
const schema = `
CREATE TABLE IF NOT EXISTS tournaments (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	join_fee                NUMERIC(12,2) NOT NULL,
	status                  TEXT NOT NULL DEFAULT 'live',
	end_at                  TIMESTAMPTZ NOT NULL,
	duration_seconds        BIGINT NOT NULL,
	max_total_entries       INT NOT NULL,
	max_entries_per_user    INT NOT NULL,
	entered_user_count      INT NOT NULL DEFAULT 0,
	extension_seconds       BIGINT NOT NULL DEFAULT 0,
	max_extension_limit     INT NOT NULL DEFAULT 0,
	extended_count          INT NOT NULL DEFAULT 0,
	winning_prizes          JSONB NOT NULL DEFAULT '[]',
	total_prize             NUMERIC(12,2) NOT NULL DEFAULT 0,
	total_moves             INT NOT NULL,
	use_same_pawn_positions BOOLEAN NOT NULL DEFAULT false,
	pawn_positions          JSONB,
	is_repeatable           BOOLEAN NOT NULL DEFAULT false,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS tournaments_status_end_at ON tournaments (status, end_at);

CREATE TABLE IF NOT EXISTS tournament_entries (
	id            BIGSERIAL PRIMARY KEY,
	tournament_id TEXT NOT NULL REFERENCES tournaments (id),
	user_id       TEXT NOT NULL,
	table_id      TEXT NOT NULL UNIQUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS tournament_entries_user ON tournament_entries (tournament_id, user_id);
`

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
