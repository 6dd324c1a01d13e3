package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/donation-tracker/internal/provider"
)

// Counters are the cumulative values captured at one edge of a season.
type Counters struct {
	FriendInNeed    int `json:"friend_in_need"`
	SharingIsCaring int `json:"sharing_is_caring"`
	AttackWins      int `json:"attack_wins"`
	DefenseWins     int `json:"defense_wins"`
	Trophies        int `json:"trophies"`
	BestTrophies    int `json:"best_trophies"`
}

// Sub returns c minus o field by field.
func (c Counters) Sub(o Counters) Counters {
	return Counters{
		FriendInNeed:    c.FriendInNeed - o.FriendInNeed,
		SharingIsCaring: c.SharingIsCaring - o.SharingIsCaring,
		AttackWins:      c.AttackWins - o.AttackWins,
		DefenseWins:     c.DefenseWins - o.DefenseWins,
		Trophies:        c.Trophies - o.Trophies,
		BestTrophies:    c.BestTrophies - o.BestTrophies,
	}
}

// PlayerRecord is one (player, season) row.
type PlayerRecord struct {
	Tag         string   `json:"tag"`
	SeasonID    int      `json:"season_id"`
	Name        string   `json:"name"`
	ClanTag     string   `json:"clan_tag"`
	UserID      *string  `json:"user_id,omitempty"`
	Donations   int      `json:"donations"`
	Received    int      `json:"received"`
	StartUpdate bool     `json:"start_update"`
	FinalUpdate bool     `json:"final_update"`
	Ignore      bool     `json:"ignore"`
	Start       Counters `json:"start"`
	End         Counters `json:"end"`
}

// SnapshotWrite reports how many rows one ApplySnapshots call touched.
type SnapshotWrite struct {
	Started   int64
	Finalized int64
}

// snapshotColumns is the columnar form of a snapshot batch, matching the
// unnest() argument order of the bulk updates.
type snapshotColumns struct {
	tags     []string
	fin      []int32
	sic      []int32
	attacks  []int32
	defenses []int32
	tr       []int32
	bestTr   []int32
}

func columnsOf(snaps []provider.PlayerSnapshot) snapshotColumns {
	n := len(snaps)
	cols := snapshotColumns{
		tags:     make([]string, 0, n),
		fin:      make([]int32, 0, n),
		sic:      make([]int32, 0, n),
		attacks:  make([]int32, 0, n),
		defenses: make([]int32, 0, n),
		tr:       make([]int32, 0, n),
		bestTr:   make([]int32, 0, n),
	}
	seen := make(map[string]struct{}, n)
	for _, s := range snaps {
		if _, dup := seen[s.Tag]; dup {
			continue
		}
		seen[s.Tag] = struct{}{}
		cols.tags = append(cols.tags, s.Tag)
		cols.fin = append(cols.fin, int32(s.FriendInNeed))
		cols.sic = append(cols.sic, int32(s.SharingIsCaring))
		cols.attacks = append(cols.attacks, int32(s.AttackWins))
		cols.defenses = append(cols.defenses, int32(s.DefenseWins))
		cols.tr = append(cols.tr, int32(s.Trophies))
		cols.bestTr = append(cols.bestTr, int32(s.BestTrophies))
	}
	return cols
}

func (c snapshotColumns) args(seasonID int) []any {
	return []any{seasonID, c.tags, c.fin, c.sic, c.attacks, c.defenses, c.tr, c.bestTr}
}

const applyStartSQL = `
	UPDATE players p SET
		start_friend_in_need = s.fin,
		start_sharing_is_caring = s.sic,
		start_attack_wins = s.attacks,
		start_defense_wins = s.defenses,
		start_trophies = s.trophies,
		start_best_trophies = s.best_trophies,
		start_update = TRUE,
		updated_at = NOW()
	FROM unnest($2::text[], $3::int4[], $4::int4[], $5::int4[], $6::int4[], $7::int4[], $8::int4[])
		AS s(tag, fin, sic, attacks, defenses, trophies, best_trophies)
	WHERE p.season_id = $1 AND p.player_tag = s.tag AND NOT p.start_update`

const applyEndSQL = `
	UPDATE players p SET
		end_friend_in_need = s.fin,
		end_sharing_is_caring = s.sic,
		end_attack_wins = s.attacks,
		end_defense_wins = s.defenses,
		end_trophies = s.trophies,
		end_best_trophies = s.best_trophies,
		final_update = TRUE,
		updated_at = NOW()
	FROM unnest($2::text[], $3::int4[], $4::int4[], $5::int4[], $6::int4[], $7::int4[], $8::int4[])
		AS s(tag, fin, sic, attacks, defenses, trophies, best_trophies)
	WHERE p.season_id = $1 - 1 AND p.player_tag = s.tag AND NOT p.final_update`

// PendingPlayerTags returns the capture work queue for a season: distinct
// tags of tracked clans whose start snapshot is still missing.
func (s *Store) PendingPlayerTags(ctx context.Context, seasonID int) ([]string, error) {
	rows, err := s.pool.Query(ctx, "pending_player_tags", seasonID)
	if err != nil {
		return nil, fmt.Errorf("pending tags for season %d: %w", seasonID, err)
	}
	tags, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan pending tags: %w", err)
	}
	return tags, nil
}

// ApplySnapshots writes one group of snapshots in a single transaction: the
// start half of seasonID's rows and the end half of the previous season's.
// Rows whose flag is already set are left untouched.
func (s *Store) ApplySnapshots(ctx context.Context, seasonID int, snaps []provider.PlayerSnapshot) (SnapshotWrite, error) {
	var w SnapshotWrite
	if len(snaps) == 0 {
		return w, nil
	}
	args := columnsOf(snaps).args(seasonID)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, applyStartSQL, args...)
		if err != nil {
			return fmt.Errorf("start snapshot: %w", err)
		}
		w.Started = tag.RowsAffected()

		tag, err = tx.Exec(ctx, applyEndSQL, args...)
		if err != nil {
			return fmt.Errorf("end snapshot: %w", err)
		}
		w.Finalized = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return SnapshotWrite{}, fmt.Errorf("apply snapshots to season %d: %w", seasonID, err)
	}
	return w, nil
}

// MarkIgnored flags rows of seasonID so they leave the work queue.
func (s *Store) MarkIgnored(ctx context.Context, seasonID int, tags []string) (int64, error) {
	if len(tags) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		"UPDATE players SET ignore = TRUE, updated_at = NOW() WHERE season_id = $1 AND player_tag = ANY($2::text[]) AND NOT ignore",
		seasonID, tags,
	)
	if err != nil {
		return 0, fmt.Errorf("mark ignored: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpsertMembers records a clan's live member counters for seasonID. New
// tags get a fresh row; existing rows keep their snapshot flags.
func (s *Store) UpsertMembers(ctx context.Context, seasonID int, clanTag string, members []provider.ClanMember) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	tags := make([]string, len(members))
	names := make([]string, len(members))
	donations := make([]int32, len(members))
	received := make([]int32, len(members))
	for i, m := range members {
		tags[i] = m.Tag
		names[i] = m.Name
		donations[i] = int32(m.Donations)
		received[i] = int32(m.Received)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO players (player_tag, season_id, clan_tag, player_name, donations, received)
		SELECT DISTINCT ON (m.tag) m.tag, $1::int4, $2::text, m.name, m.donations, m.received
		FROM unnest($3::text[], $4::text[], $5::int4[], $6::int4[]) AS m(tag, name, donations, received)
		ON CONFLICT (player_tag, season_id) DO UPDATE SET
			clan_tag = EXCLUDED.clan_tag,
			player_name = EXCLUDED.player_name,
			donations = EXCLUDED.donations,
			received = EXCLUDED.received,
			updated_at = NOW()`,
		seasonID, clanTag, tags, names, donations, received,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert members of %s: %w", clanTag, err)
	}
	return tag.RowsAffected(), nil
}

// PlayerRecord returns one player's row for a season.
func (s *Store) PlayerRecord(ctx context.Context, tag string, seasonID int) (PlayerRecord, error) {
	var r PlayerRecord
	err := s.pool.QueryRow(ctx, "player_record", tag, seasonID).Scan(
		&r.Tag, &r.SeasonID, &r.Name, &r.ClanTag, &r.UserID,
		&r.Donations, &r.Received, &r.StartUpdate, &r.FinalUpdate, &r.Ignore,
		&r.Start.FriendInNeed, &r.Start.SharingIsCaring, &r.Start.AttackWins,
		&r.Start.DefenseWins, &r.Start.Trophies, &r.Start.BestTrophies,
		&r.End.FriendInNeed, &r.End.SharingIsCaring, &r.End.AttackWins,
		&r.End.DefenseWins, &r.End.Trophies, &r.End.BestTrophies,
	)
	if err != nil {
		return PlayerRecord{}, fmt.Errorf("player %s season %d: %w", tag, seasonID, mapNoRows(err))
	}
	return r, nil
}

// LinkPlayer associates a Discord user with every row of a player tag.
// It returns ErrNotFound when the tag has never been recorded.
func (s *Store) LinkPlayer(ctx context.Context, tag, userID string) error {
	ct, err := s.pool.Exec(ctx, "link_player", tag, userID)
	if err != nil {
		return fmt.Errorf("link %s: %w", tag, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("link %s: %w", tag, ErrNotFound)
	}
	return nil
}
