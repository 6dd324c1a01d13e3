// Package provider defines canonical data types that the game-data client
// normalizes into. These structs are the contract between the Clash of Clans
// client and the capture/sync runners. The client outputs these and runners
// write them to Postgres.
package provider

import (
	"fmt"
	"strings"
)

// PlayerSnapshot is a player's cumulative counters at one point in time.
// The same snapshot is written as the start of one season and the end of
// the previous one.
type PlayerSnapshot struct {
	Tag             string `json:"tag"`
	Name            string `json:"name"`
	ClanTag         string `json:"clan_tag,omitempty"`
	FriendInNeed    int    `json:"friend_in_need"`
	SharingIsCaring int    `json:"sharing_is_caring"`
	AttackWins      int    `json:"attack_wins"`
	DefenseWins     int    `json:"defense_wins"`
	Trophies        int    `json:"trophies"`
	BestTrophies    int    `json:"best_trophies"`
}

// Clan is the canonical clan profile.
type Clan struct {
	Tag     string `json:"tag"`
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// ClanMember is one row of a clan's member list with its live season
// donation counters.
type ClanMember struct {
	Tag       string `json:"tag"`
	Name      string `json:"name"`
	Donations int    `json:"donations"`
	Received  int    `json:"received"`
}

// --------------------------------------------------------------------------
// Fetch results
// --------------------------------------------------------------------------

// SkipReason classifies why a tag produced no snapshot.
type SkipReason string

const (
	SkipNotFound    SkipReason = "not_found"
	SkipRateLimited SkipReason = "rate_limited"
	SkipTransient   SkipReason = "transient"
	SkipDecode      SkipReason = "decode"
	SkipCancelled   SkipReason = "cancelled"
)

// Skip describes a tag that could not be fetched.
type Skip struct {
	Reason SkipReason
	Err    error
}

func (s *Skip) Error() string {
	if s.Err == nil {
		return string(s.Reason)
	}
	return fmt.Sprintf("%s: %v", s.Reason, s.Err)
}

func (s *Skip) Unwrap() error { return s.Err }

// FetchResult is exactly one of Snapshot or Skip for a tag.
type FetchResult struct {
	Tag      string
	Snapshot *PlayerSnapshot
	Skip     *Skip
}

// OK reports whether the fetch produced a snapshot.
func (r FetchResult) OK() bool { return r.Snapshot != nil }

// --------------------------------------------------------------------------
// Tags
// --------------------------------------------------------------------------

// NormalizeTag uppercases a player or clan tag, strips whitespace, maps the
// letter O to zero (tags never contain O) and ensures a leading '#'.
func NormalizeTag(tag string) string {
	t := strings.ToUpper(strings.TrimSpace(tag))
	t = strings.TrimLeft(t, "#")
	t = strings.ReplaceAll(t, "O", "0")
	if t == "" {
		return ""
	}
	return "#" + t
}

// ValidTag reports whether a normalized tag only uses the characters the
// game assigns (0289PYLQGRJCUV).
func ValidTag(tag string) bool {
	if len(tag) < 4 || tag[0] != '#' {
		return false
	}
	for _, r := range tag[1:] {
		if !strings.ContainsRune("0289PYLQGRJCUV", r) {
			return false
		}
	}
	return true
}
