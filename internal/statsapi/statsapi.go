// Package statsapi is the upstream provider of schedules, rosters and player
// career statistics (the public MLB Stats API).
//
// Parsing is kept pure (Parse* functions over raw response bodies) so it can be
// tested on fixtures; Client adds HTTP transport, metrics and error wrapping.
package statsapi

import (
	"context"
	"fmt"
)

// Game is one scheduled game as reported upstream.
type Game struct {
	ID        int64
	Season    int
	Status    string // detailed state, e.g. "Final", "Postponed"
	GameType  string // "R" regular season, "S" spring, "F"/"D"/"L"/"W" postseason, ...
	HomeID    int64
	AwayID    int64
	HomeScore int64
	AwayScore int64
}

// StatusFinal is the detailed state of a completed game.
const StatusFinal = "Final"

// GameTypeRegular marks regular-season games.
const GameTypeRegular = "R"

// StatGroup is one raw stat group of a player's career record. Stats values are
// whatever the upstream JSON held (float64, string, bool, nested map).
type StatGroup struct {
	Group string
	Stats map[string]any
}

// CareerStats is a player's career record: a list of raw stat groups.
// Fielding appears once per position played.
type CareerStats struct {
	PlayerID int64
	Groups   []StatGroup
}

// Provider is the upstream contract used by discovery and the season pipeline.
type Provider interface {
	SeasonGames(ctx context.Context, season int) ([]Game, error)
	TeamRoster(ctx context.Context, teamID int64, season int) ([]int64, error)
	CareerStats(ctx context.Context, playerID int64) (CareerStats, error)
}

// FetchError is returned when the upstream is unreachable or answers with a
// non-2xx status or an unparseable body. It aborts the run; there is no retry.
type FetchError struct {
	Op     string // "schedule", "roster", "people"
	URL    string
	Status int // 0 when no response was received
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("statsapi %s: %s: status %d: %v", e.Op, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("statsapi %s: %s: %v", e.Op, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
