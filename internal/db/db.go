// Package db provides a pgxpool-based connection pool with prepared statement
// registration, health checking and embedded schema migrations.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/donation-tracker/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool. The schema must already
// exist: prepared statements are validated against it on every connection.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// registerPreparedStatements registers the single-row lookups used by the
// store. Bulk writes build their statements inline.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Seasons
		"latest_season": "SELECT id, start, finish FROM seasons WHERE start <= $1 ORDER BY start DESC, id DESC LIMIT 1",
		"season_by_id":  "SELECT id, start, finish FROM seasons WHERE id = $1",

		// Capture work queue
		"pending_player_tags": `SELECT DISTINCT p.player_tag
			FROM players p
			JOIN clans c ON c.clan_tag = p.clan_tag
			WHERE c.in_use AND p.season_id = $1 AND NOT p.start_update AND NOT p.ignore
			ORDER BY p.player_tag`,

		// Clans
		"list_clans": "SELECT clan_tag, clan_name, guild_id, channel_id, in_use FROM clans WHERE in_use OR NOT $1 ORDER BY clan_tag",

		// Players
		"player_record": `SELECT player_tag, season_id, player_name, clan_tag, user_id,
			donations, received, start_update, final_update, ignore,
			start_friend_in_need, start_sharing_is_caring, start_attack_wins, start_defense_wins, start_trophies, start_best_trophies,
			end_friend_in_need, end_sharing_is_caring, end_attack_wins, end_defense_wins, end_trophies, end_best_trophies
			FROM players WHERE player_tag = $1 AND season_id = $2`,
		"link_player": "UPDATE players SET user_id = $2, updated_at = NOW() WHERE player_tag = $1",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
