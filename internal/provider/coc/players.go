package coc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/albapepper/donation-tracker/internal/provider"
)

type playerRaw struct {
	Tag          string `json:"tag"`
	Name         string `json:"name"`
	Trophies     int    `json:"trophies"`
	BestTrophies int    `json:"bestTrophies"`
	AttackWins   int    `json:"attackWins"`
	DefenseWins  int    `json:"defenseWins"`
	Clan         *struct {
		Tag  string `json:"tag"`
		Name string `json:"name"`
	} `json:"clan"`
	Achievements []provider.Achievement `json:"achievements"`
}

// GetPlayer fetches one player and normalizes it into a snapshot.
func (c *Client) GetPlayer(ctx context.Context, tag string) (*provider.PlayerSnapshot, error) {
	tag = provider.NormalizeTag(tag)
	var raw playerRaw
	if err := c.getJSON(ctx, "/players/"+url.PathEscape(tag), nil, &raw); err != nil {
		return nil, fmt.Errorf("fetch player %s: %w", tag, err)
	}
	if raw.Tag == "" {
		return nil, fmt.Errorf("fetch player %s: %w: empty tag", tag, ErrDecode)
	}
	snap := normalizePlayer(raw)
	return &snap, nil
}

func normalizePlayer(raw playerRaw) provider.PlayerSnapshot {
	fin, _ := provider.AchievementValue(raw.Achievements, provider.AchievementFriendInNeed)
	sic, _ := provider.AchievementValue(raw.Achievements, provider.AchievementSharingIsCaring)
	snap := provider.PlayerSnapshot{
		Tag:             provider.NormalizeTag(raw.Tag),
		Name:            raw.Name,
		FriendInNeed:    fin,
		SharingIsCaring: sic,
		AttackWins:      raw.AttackWins,
		DefenseWins:     raw.DefenseWins,
		Trophies:        raw.Trophies,
		BestTrophies:    raw.BestTrophies,
	}
	if raw.Clan != nil {
		snap.ClanTag = provider.NormalizeTag(raw.Clan.Tag)
	}
	return snap
}

// Stream fetches every distinct tag with at most the configured number of
// requests in flight. Each tag yields exactly one result; the channel is
// closed once all of them have been delivered or ctx is cancelled.
func (c *Client) Stream(ctx context.Context, tags []string) <-chan provider.FetchResult {
	out := make(chan provider.FetchResult, c.concurrency)

	go func() {
		defer close(out)

		var g errgroup.Group
		g.SetLimit(c.concurrency)

		seen := make(map[string]struct{}, len(tags))
		for _, raw := range tags {
			tag := provider.NormalizeTag(raw)
			if tag == "" {
				continue
			}
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}

			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				res := c.fetchResult(ctx, tag)
				select {
				case out <- res:
				case <-ctx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	return out
}

func (c *Client) fetchResult(ctx context.Context, tag string) provider.FetchResult {
	snap, err := c.GetPlayer(ctx, tag)
	if err != nil {
		return provider.FetchResult{Tag: tag, Skip: &provider.Skip{Reason: classify(ctx, err), Err: err}}
	}
	return provider.FetchResult{Tag: tag, Snapshot: snap}
}

func classify(ctx context.Context, err error) provider.SkipReason {
	switch {
	case errors.Is(err, ErrNotFound):
		return provider.SkipNotFound
	case errors.Is(err, ErrDecode):
		return provider.SkipDecode
	case ctx.Err() != nil:
		return provider.SkipCancelled
	}
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusTooManyRequests {
		return provider.SkipRateLimited
	}
	return provider.SkipTransient
}
