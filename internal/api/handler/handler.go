// Package handler provides HTTP handlers for the read-only donations API.
// Responses are encoded once, cached with an ETag and served as raw bytes.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/albapepper/donation-tracker/internal/api/respond"
	"github.com/albapepper/donation-tracker/internal/cache"
	"github.com/albapepper/donation-tracker/internal/store"
)

// Store is the read side of the donations database used by handlers.
type Store interface {
	Ping(ctx context.Context) error
	LatestSeason(ctx context.Context, asOf time.Time) (store.Season, error)
	SeasonByID(ctx context.Context, id int) (store.Season, error)
	Leaderboard(ctx context.Context, q store.LeaderboardQuery) ([]store.LeaderboardEntry, error)
	PlayerRecord(ctx context.Context, tag string, seasonID int) (store.PlayerRecord, error)
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	store  Store
	cache  *cache.Cache
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Handler with shared dependencies.
func New(st Store, c *cache.Cache, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: st, cache: c, logger: logger, now: time.Now}
}

// errResponse carries a status and error code out of a build function.
type errResponse struct {
	status  int
	code    string
	message string
}

func (e *errResponse) Error() string { return e.message }

func notFound(code, message string) error {
	return &errResponse{status: http.StatusNotFound, code: code, message: message}
}

func badRequest(code, message string) error {
	return &errResponse{status: http.StatusBadRequest, code: code, message: message}
}

// serveCached answers from cache when possible, otherwise calls build,
// encodes its result, stores it under key and writes it.
func (h *Handler) serveCached(w http.ResponseWriter, r *http.Request, key string, ttl time.Duration, build func(ctx context.Context) (any, error)) {
	if data, etag, ok := h.cache.Get(key); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	v, err := build(r.Context())
	if err != nil {
		var er *errResponse
		if errors.As(err, &er) {
			respond.WriteError(w, er.status, er.code, er.message)
			return
		}
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "DB_ERROR", "Database error", err.Error())
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "ENCODE_ERROR", "Failed to encode response")
		return
	}
	etag := h.cache.Set(key, data, ttl)

	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteJSON(w, data, etag, ttl, false)
}

// resolveSeason returns the season named by the "season" query parameter, or
// the current one when it is absent.
func (h *Handler) resolveSeason(ctx context.Context, raw string) (store.Season, error) {
	var (
		season store.Season
		err    error
	)
	if raw == "" {
		season, err = h.store.LatestSeason(ctx, h.now())
	} else {
		id, convErr := strconv.Atoi(raw)
		if convErr != nil || id <= 0 {
			return store.Season{}, badRequest("INVALID_PARAM", "season must be a positive integer")
		}
		season, err = h.store.SeasonByID(ctx, id)
	}
	if errors.Is(err, store.ErrNotFound) {
		return store.Season{}, notFound("NO_SEASON", "Season not found")
	}
	return season, err
}
