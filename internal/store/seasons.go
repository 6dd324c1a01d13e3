package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// rolloverLockKey serializes season creation across processes.
const rolloverLockKey = 54_110_001

// insertSeasonSQL assigns the next id under the rollover lock so ids stay
// contiguous even when a rollover transaction is rolled back.
const insertSeasonSQL = `
	INSERT INTO seasons (id, start, finish)
	VALUES ((SELECT COALESCE(MAX(id), 0) + 1 FROM seasons), $1, $2)
	RETURNING id`

// Season is one month-aligned scoring period.
type Season struct {
	ID     int       `json:"id"`
	Start  time.Time `json:"start"`
	Finish time.Time `json:"finish"`
}

// Remaining returns the time left until the season finishes, never negative.
func (s Season) Remaining(now time.Time) time.Duration {
	return max(s.Finish.Sub(now), 0)
}

// LatestSeason returns the most recent season whose start is at or before asOf.
func (s *Store) LatestSeason(ctx context.Context, asOf time.Time) (Season, error) {
	var season Season
	err := s.pool.QueryRow(ctx, "latest_season", asOf).Scan(&season.ID, &season.Start, &season.Finish)
	if err != nil {
		return Season{}, fmt.Errorf("latest season: %w", mapNoRows(err))
	}
	return season, nil
}

// SeasonByID looks up one season.
func (s *Store) SeasonByID(ctx context.Context, id int) (Season, error) {
	var season Season
	err := s.pool.QueryRow(ctx, "season_by_id", id).Scan(&season.ID, &season.Start, &season.Finish)
	if err != nil {
		return Season{}, fmt.Errorf("season %d: %w", id, mapNoRows(err))
	}
	return season, nil
}

// CreateSeason inserts the first season. It fails with ErrStaleSeason when
// any season already exists.
func (s *Store) CreateSeason(ctx context.Context, start, finish time.Time) (Season, error) {
	var season Season
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", rolloverLockKey); err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM seasons)").Scan(&exists); err != nil {
			return fmt.Errorf("check seasons: %w", err)
		}
		if exists {
			return ErrStaleSeason
		}
		season = Season{Start: start, Finish: finish}
		return tx.QueryRow(ctx, insertSeasonSQL, start, finish).Scan(&season.ID)
	})
	if err != nil {
		return Season{}, fmt.Errorf("create season: %w", err)
	}
	return season, nil
}

// RollSeason closes prev by inserting its successor, starting at prev.Finish,
// and carrying every tracked player of prev forward with zeroed counters.
// It returns the new season and the number of carried records.
func (s *Store) RollSeason(ctx context.Context, prev Season, finish time.Time) (Season, int64, error) {
	next := Season{Start: prev.Finish, Finish: finish}
	var carried int64

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", rolloverLockKey); err != nil {
			return fmt.Errorf("lock: %w", err)
		}

		var latestID int
		err := tx.QueryRow(ctx, "SELECT id FROM seasons ORDER BY start DESC, id DESC LIMIT 1").Scan(&latestID)
		if err != nil {
			return fmt.Errorf("latest season: %w", mapNoRows(err))
		}
		if latestID != prev.ID {
			return ErrStaleSeason
		}

		if err := tx.QueryRow(ctx, insertSeasonSQL, next.Start, next.Finish).Scan(&next.ID); err != nil {
			return fmt.Errorf("insert season: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO players (player_tag, season_id, player_name, clan_tag, user_id)
			SELECT p.player_tag, $2::int4, p.player_name, p.clan_tag, p.user_id
			FROM players p
			JOIN clans c ON c.clan_tag = p.clan_tag
			WHERE p.season_id = $1 AND c.in_use
			ON CONFLICT (player_tag, season_id) DO NOTHING`,
			prev.ID, next.ID,
		)
		if err != nil {
			return fmt.Errorf("carry players: %w", err)
		}
		carried = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return Season{}, 0, fmt.Errorf("roll season %d: %w", prev.ID, err)
	}
	return next, carried, nil
}
