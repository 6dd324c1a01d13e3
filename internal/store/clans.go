package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Clan is a registered clan. Only in-use clans feed the capture work queue.
type Clan struct {
	Tag       string `json:"tag"`
	Name      string `json:"name"`
	GuildID   string `json:"guild_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	InUse     bool   `json:"in_use"`
}

// TrackClan registers a clan or re-enables a previously untracked one.
func (s *Store) TrackClan(ctx context.Context, c Clan) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO clans (clan_tag, clan_name, guild_id, channel_id, in_use)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (clan_tag) DO UPDATE SET
			clan_name = COALESCE(NULLIF(EXCLUDED.clan_name, ''), clans.clan_name),
			guild_id = COALESCE(NULLIF(EXCLUDED.guild_id, ''), clans.guild_id),
			channel_id = COALESCE(NULLIF(EXCLUDED.channel_id, ''), clans.channel_id),
			in_use = TRUE`,
		c.Tag, c.Name, c.GuildID, c.ChannelID,
	)
	if err != nil {
		return fmt.Errorf("track clan %s: %w", c.Tag, err)
	}
	return nil
}

// UntrackClan stops tracking a clan. Its history is kept.
func (s *Store) UntrackClan(ctx context.Context, tag string) error {
	ct, err := s.pool.Exec(ctx, "UPDATE clans SET in_use = FALSE WHERE clan_tag = $1", tag)
	if err != nil {
		return fmt.Errorf("untrack clan %s: %w", tag, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("untrack clan %s: %w", tag, ErrNotFound)
	}
	return nil
}

// ListClans returns registered clans, optionally only the tracked ones.
func (s *Store) ListClans(ctx context.Context, onlyInUse bool) ([]Clan, error) {
	rows, err := s.pool.Query(ctx, "list_clans", onlyInUse)
	if err != nil {
		return nil, fmt.Errorf("list clans: %w", err)
	}
	clans, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Clan, error) {
		var c Clan
		err := row.Scan(&c.Tag, &c.Name, &c.GuildID, &c.ChannelID, &c.InUse)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan clans: %w", err)
	}
	return clans, nil
}
