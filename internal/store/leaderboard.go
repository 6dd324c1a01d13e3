package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const (
	DefaultLeaderboardLimit = 25
	MaxLeaderboardLimit     = 100
)

// LeaderboardQuery selects one season's ranking, optionally for one clan.
type LeaderboardQuery struct {
	SeasonID int
	ClanTag  string
	Limit    int
}

// LeaderboardEntry is one ranked player.
type LeaderboardEntry struct {
	Rank      int     `json:"rank"`
	Tag       string  `json:"tag"`
	Name      string  `json:"name"`
	ClanTag   string  `json:"clan_tag"`
	Donations int     `json:"donations"`
	Received  int     `json:"received"`
	Ratio     float64 `json:"ratio"`
}

// Ratio is donations over received; with nothing received it is donations.
func Ratio(donations, received int) float64 {
	if received == 0 {
		return float64(donations)
	}
	return float64(donations) / float64(received)
}

// ClampLimit bounds a requested leaderboard size.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLeaderboardLimit
	case n > MaxLeaderboardLimit:
		return MaxLeaderboardLimit
	default:
		return n
	}
}

// Leaderboard ranks a season's non-ignored players by donations.
func (s *Store) Leaderboard(ctx context.Context, q LeaderboardQuery) ([]LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT player_tag, player_name, clan_tag, donations, received
		FROM players
		WHERE season_id = $1 AND NOT ignore AND ($2::text = '' OR clan_tag = $2::text)
		ORDER BY donations DESC, received ASC, player_tag
		LIMIT $3`,
		q.SeasonID, q.ClanTag, ClampLimit(q.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("leaderboard season %d: %w", q.SeasonID, err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (LeaderboardEntry, error) {
		var e LeaderboardEntry
		err := row.Scan(&e.Tag, &e.Name, &e.ClanTag, &e.Donations, &e.Received)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan leaderboard: %w", err)
	}
	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].Ratio = Ratio(entries[i].Donations, entries[i].Received)
	}
	return entries, nil
}
