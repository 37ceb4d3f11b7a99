package multitable

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"seasonetl/internal/metrics"
	"seasonetl/internal/probe"
	"seasonetl/internal/projection"
	"seasonetl/internal/schema"
	"seasonetl/internal/statsapi"
	"seasonetl/internal/storage"
	"seasonetl/internal/transformer"
)

// Logger is the minimal logging interface used by the season engine.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Stage is the last committed step of a season collection.
type Stage int

const (
	StageEmpty Stage = iota
	StageGamesLoaded
	StageTeamsKnown
	StageRostersLoaded
	StagePlayersKnown
	StageStatsLoaded
)

func (s Stage) String() string {
	switch s {
	case StageEmpty:
		return "EMPTY"
	case StageGamesLoaded:
		return "GAMES_LOADED"
	case StageTeamsKnown:
		return "TEAMS_KNOWN"
	case StageRostersLoaded:
		return "ROSTERS_LOADED"
	case StagePlayersKnown:
		return "PLAYERS_KNOWN"
	case StageStatsLoaded:
		return "STATS_LOADED"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Progress reports how far a run got. On failure Stage is the last stage
// whose writes were committed.
type Progress struct {
	Season    int
	Stage     Stage
	Games     int64
	Teams     int
	Rosters   int64
	Players   int
	StatsRows int64
}

// StageError tags a failure with the step that produced it.
type StageError struct {
	Step string
	Err  error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage=%s: %v", e.Step, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Engine runs the season state machine:
//
//	EMPTY -> GAMES_LOADED -> TEAMS_KNOWN -> ROSTERS_LOADED -> PLAYERS_KNOWN -> STATS_LOADED
//
// Each transition follows a committed write. Stages run sequentially and
// upstream calls are made one at a time; any upstream or drift error ends the
// run without retry.
type Engine struct {
	Repo     storage.Repository
	Provider statsapi.Provider
	Schema   schema.Schema
	Logger   Logger

	// Job labels metrics. Empty means DefaultJob.
	Job string

	// Quiet disables the per-team and per-player log lines.
	Quiet bool

	// Now is a clock seam for tests. Nil means time.Now.
	Now func() time.Time
}

func (e *Engine) logger() func(format string, v ...any) {
	if e.Logger == nil {
		l := log.New(discardWriter{}, "", 0)
		return l.Printf
	}
	return e.Logger.Printf
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) job() string {
	if e.Job == "" {
		return DefaultJob
	}
	return e.Job
}

func (e *Engine) since(start time.Time) time.Duration {
	return e.now().Sub(start).Truncate(time.Millisecond)
}

func (e *Engine) check() error {
	if e.Repo == nil {
		return fmt.Errorf("engine: Repo is required")
	}
	if e.Provider == nil {
		return fmt.Errorf("engine: Provider is required")
	}
	return nil
}

// step runs fn as one named stage, logging and recording its outcome.
func (e *Engine) step(name string, fn func() (string, error)) error {
	start := e.now()
	detail, err := fn()
	d := e.since(start)
	metrics.RecordStep(e.job(), name, err, d)
	if err != nil {
		e.logger()("stage=%s failed duration=%s err=%v", name, d, err)
		return &StageError{Step: name, Err: err}
	}
	e.logger()("stage=%s ok %s duration=%s", name, detail, d)
	return nil
}

// Init creates the games table and recreates every stats table from the
// schema. Existing stats rows are dropped; games rows survive.
func (e *Engine) Init(ctx context.Context) error {
	if e.Repo == nil {
		return fmt.Errorf("engine: Repo is required")
	}
	return e.step("init", func() (string, error) {
		if err := projection.New(e.Repo).CreateTables(ctx, e.Schema); err != nil {
			return "", err
		}
		return fmt.Sprintf("stats_tables=%d", e.Schema.Len()), nil
	})
}

// CollectSeason loads the season's final regular-season games, derives the
// participating teams and replaces the season roster table.
func (e *Engine) CollectSeason(ctx context.Context, season int) (Progress, error) {
	p := Progress{Season: season, Stage: StageEmpty}
	if err := e.check(); err != nil {
		return p, err
	}
	proj := projection.New(e.Repo)
	logf := e.logger()

	err := e.step("games", func() (string, error) {
		if err := proj.EnsureGamesTable(ctx); err != nil {
			return "", err
		}
		games, err := e.Provider.SeasonGames(ctx, season)
		if err != nil {
			return "", err
		}
		n, err := proj.UpsertGames(ctx, games)
		if err != nil {
			return "", err
		}
		p.Games = n
		metrics.RecordRecords(e.job(), "games", int(n))
		metrics.RecordBatch(e.job())
		return fmt.Sprintf("season=%d fetched=%d rows=%d", season, len(games), n), nil
	})
	if err != nil {
		return p, err
	}
	p.Stage = StageGamesLoaded

	var teams []int64
	err = e.step("teams", func() (string, error) {
		var err error
		teams, err = proj.TeamsInSeason(ctx, season)
		if err != nil {
			return "", err
		}
		p.Teams = len(teams)
		return fmt.Sprintf("season=%d teams=%d", season, len(teams)), nil
	})
	if err != nil {
		return p, err
	}
	p.Stage = StageTeamsKnown

	err = e.step("rosters", func() (string, error) {
		rosters := make(map[int64][]int64, len(teams))
		for i, team := range teams {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			if !e.Quiet {
				logf("rosters: team %d/%d id=%d", i+1, len(teams), team)
			}
			ids, err := e.Provider.TeamRoster(ctx, team, season)
			if err != nil {
				return "", err
			}
			rosters[team] = ids
		}

		n, err := proj.ReplaceRosters(ctx, season, rosters)
		if err != nil {
			return "", err
		}
		p.Rosters = n
		metrics.RecordRecords(e.job(), "rosters", int(n))
		metrics.RecordBatch(e.job())
		return fmt.Sprintf("table=%s rows=%d", projection.RosterTable(season), n), nil
	})
	if err != nil {
		return p, err
	}
	p.Stage = StageRostersLoaded
	return p, nil
}

// UpdatePlayers fetches career stats for ids, normalizes them against the
// schema and upserts every category in one batch.
//
// Missing stats tables are created from the schema before the first upstream
// call, so a store that never ran Init is usable. Each record is normalized
// right after it is fetched, so drift stops the run before the remaining
// players are requested.
func (e *Engine) UpdatePlayers(ctx context.Context, ids []int64) (Progress, error) {
	p := Progress{Stage: StagePlayersKnown}
	if err := e.check(); err != nil {
		return Progress{}, err
	}
	ids = uniqueIDs(ids)
	p.Players = len(ids)
	logf := e.logger()

	proj := projection.New(e.Repo)
	err := e.step("stats_tables", func() (string, error) {
		if err := proj.EnsureStatsTables(ctx, e.Schema); err != nil {
			return "", err
		}
		return fmt.Sprintf("categories=%d", e.Schema.Len()), nil
	})
	if err != nil {
		return p, err
	}

	tuples := map[string][]transformer.Tuple{}
	err = e.step("players", func() (string, error) {
		for i, id := range ids {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			if !e.Quiet {
				logf("players: player %d/%d id=%d", i+1, len(ids), id)
			}
			cs, err := e.Provider.CareerStats(ctx, id)
			if err != nil {
				return "", err
			}
			rec, err := probe.RecordOf(cs)
			if err != nil {
				return "", err
			}
			norm, err := transformer.Normalize(e.Schema, id, rec)
			if err != nil {
				var de *schema.DriftError
				if errors.As(err, &de) {
					metrics.RecordDrift(e.job(), de.Category)
				}
				return "", err
			}
			for cat, t := range norm {
				tuples[cat] = append(tuples[cat], t)
			}
		}
		return fmt.Sprintf("players=%d categories=%d", len(ids), len(tuples)), nil
	})
	if err != nil {
		return p, err
	}

	err = e.step("stats", func() (string, error) {
		n, err := proj.UpsertStats(ctx, e.Schema, tuples)
		if err != nil {
			return "", err
		}
		p.StatsRows = n
		metrics.RecordRecords(e.job(), "stats", int(n))
		if n > 0 {
			metrics.RecordBatch(e.job())
		}
		return fmt.Sprintf("rows=%d", n), nil
	})
	if err != nil {
		return p, err
	}
	p.Stage = StageStatsLoaded
	return p, nil
}

// Run performs a full season refresh: CollectSeason and, when withPlayers is
// set, UpdatePlayers for everyone on the season's rosters.
func (e *Engine) Run(ctx context.Context, season int, withPlayers bool) (Progress, error) {
	p, err := e.CollectSeason(ctx, season)
	if err != nil || !withPlayers {
		return p, err
	}

	ids, err := e.seasonPlayers(ctx, season)
	if err != nil {
		return p, err
	}

	pp, err := e.UpdatePlayers(ctx, ids)
	pp.Season = season
	pp.Games, pp.Teams, pp.Rosters = p.Games, p.Teams, p.Rosters
	return pp, err
}

// seasonPlayers reads the player ids on the season's committed rosters.
func (e *Engine) seasonPlayers(ctx context.Context, season int) ([]int64, error) {
	if e.Repo == nil {
		return nil, fmt.Errorf("engine: Repo is required")
	}
	ids, err := projection.New(e.Repo).PlayersInSeason(ctx, season)
	if err != nil {
		return nil, &StageError{Step: "players", Err: err}
	}
	e.logger()("stage=players season=%d players=%d", season, len(ids))
	return ids, nil
}

func uniqueIDs(in []int64) []int64 {
	seen := make(map[int64]struct{}, len(in))
	out := make([]int64, 0, len(in))
	for _, id := range in {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (n int, err error) { return len(p), nil }
