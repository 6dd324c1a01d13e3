package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/donation-tracker/internal/api/respond"
	"github.com/albapepper/donation-tracker/internal/cache"
	"github.com/albapepper/donation-tracker/internal/provider"
	"github.com/albapepper/donation-tracker/internal/store"
)

// SeasonResponse describes one season.
type SeasonResponse struct {
	store.Season
	RemainingSeconds int64 `json:"remaining_seconds"`
}

// LeaderboardResponse is one season's ranking.
type LeaderboardResponse struct {
	Season  store.Season             `json:"season"`
	ClanTag string                   `json:"clan_tag,omitempty"`
	Entries []store.LeaderboardEntry `json:"entries"`
}

// PlayerResponse is a player's record for one season. Delta is set once both
// edges of the season have been captured.
type PlayerResponse struct {
	Record store.PlayerRecord `json:"record"`
	Delta  *store.Counters    `json:"delta,omitempty"`
}

// GetCurrentSeason returns the season in effect now.
// @Summary Current season
// @Description Returns the current season and the seconds left until it finishes.
// @Tags seasons
// @Produce json
// @Success 200 {object} SeasonResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/seasons/current [get]
func (h *Handler) GetCurrentSeason(w http.ResponseWriter, r *http.Request) {
	h.serveCached(w, r, cache.KeySeason+"current", cache.TTLSeason, func(ctx context.Context) (any, error) {
		season, err := h.resolveSeason(ctx, "")
		if err != nil {
			return nil, err
		}
		return SeasonResponse{
			Season:           season,
			RemainingSeconds: int64(season.Remaining(h.now()) / time.Second),
		}, nil
	})
}

// GetLeaderboard returns the donation ranking for a season.
// @Summary Donation leaderboard
// @Description Players ranked by donations, optionally filtered to one clan.
// @Tags donations
// @Produce json
// @Param season query int false "Season ID (defaults to current)"
// @Param clan query string false "Clan tag"
// @Param limit query int false "Maximum entries (1-100)"
// @Success 200 {object} LeaderboardResponse
// @Success 304 "Not Modified"
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/leaderboard [get]
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := store.DefaultLeaderboardLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_PARAM", "limit must be an integer")
			return
		}
		limit = store.ClampLimit(n)
	}

	clanTag := ""
	if raw := q.Get("clan"); raw != "" {
		clanTag = provider.NormalizeTag(raw)
		if !provider.ValidTag(clanTag) {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_TAG", "Invalid clan tag")
			return
		}
	}

	seasonParam := q.Get("season")
	key := fmt.Sprintf("%s%s:%s:%d", cache.KeyLeaderboard, seasonParam, clanTag, limit)

	h.serveCached(w, r, key, cache.TTLLeaderboard, func(ctx context.Context) (any, error) {
		season, err := h.resolveSeason(ctx, seasonParam)
		if err != nil {
			return nil, err
		}
		entries, err := h.store.Leaderboard(ctx, store.LeaderboardQuery{
			SeasonID: season.ID,
			ClanTag:  clanTag,
			Limit:    limit,
		})
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []store.LeaderboardEntry{}
		}
		return LeaderboardResponse{Season: season, ClanTag: clanTag, Entries: entries}, nil
	})
}

// GetPlayer returns one player's record for a season.
// @Summary Player season record
// @Description Donations and captured counters for a player. The tag may omit the leading '#'.
// @Tags donations
// @Produce json
// @Param tag path string true "Player tag"
// @Param season query int false "Season ID (defaults to current)"
// @Success 200 {object} PlayerResponse
// @Success 304 "Not Modified"
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/players/{tag} [get]
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "tag"))
	tag := provider.NormalizeTag(raw)
	if err != nil || !provider.ValidTag(tag) {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_TAG", "Invalid player tag")
		return
	}

	seasonParam := r.URL.Query().Get("season")
	key := fmt.Sprintf("%s%s:%s", cache.KeyPlayer, tag, seasonParam)

	h.serveCached(w, r, key, cache.TTLPlayer, func(ctx context.Context) (any, error) {
		season, err := h.resolveSeason(ctx, seasonParam)
		if err != nil {
			return nil, err
		}
		rec, err := h.store.PlayerRecord(ctx, tag, season.ID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("NOT_FOUND", fmt.Sprintf("Player %s has no record for season %d", tag, season.ID))
		}
		if err != nil {
			return nil, err
		}
		resp := PlayerResponse{Record: rec}
		if rec.StartUpdate && rec.FinalUpdate {
			d := rec.End.Sub(rec.Start)
			resp.Delta = &d
		}
		return resp, nil
	})
}
