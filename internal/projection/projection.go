// Package projection maps games, rosters and normalized stat tuples onto
// relational tables and answers the read paths that feed later ingestion
// steps.
//
// Table layout comes from two places only: the fixed games and roster specs
// in this package, and the schema artifact for stat tables. Table names are
// produced by GamesTable, RosterTable and StatsTable; nothing else builds
// them.
package projection

import (
	"context"
	"fmt"
	"sort"

	"seasonetl/internal/schema"
	"seasonetl/internal/statsapi"
	"seasonetl/internal/storage"
	"seasonetl/internal/transformer"
)

// Projection writes and reads the season tables through a storage.Repository.
type Projection struct {
	Repo storage.Repository
}

// New returns a Projection over repo.
func New(repo storage.Repository) *Projection {
	return &Projection{Repo: repo}
}

// CreateTables prepares a store for ingestion: the games table is created if
// missing and every stats_<category> table is dropped and recreated from s.
func (p *Projection) CreateTables(ctx context.Context, s schema.Schema) error {
	stats, err := SchemaSpecs(s)
	if err != nil {
		return err
	}
	specs := append([]storage.TableSpec{GamesSpec()}, stats...)
	if err := p.Repo.EnsureTables(ctx, specs); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// EnsureStatsTables creates every stats_<category> table of s that does not
// exist yet. Existing tables and their rows are left alone.
func (p *Projection) EnsureStatsTables(ctx context.Context, s schema.Schema) error {
	specs, err := SchemaSpecs(s)
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		return nil
	}
	for i := range specs {
		specs[i].Replace = false
	}
	if err := p.Repo.EnsureTables(ctx, specs); err != nil {
		return fmt.Errorf("ensure stats tables: %w", err)
	}
	return nil
}

// EnsureGamesTable creates the games table if it does not exist.
func (p *Projection) EnsureGamesTable(ctx context.Context) error {
	if err := p.Repo.EnsureTables(ctx, []storage.TableSpec{GamesSpec()}); err != nil {
		return fmt.Errorf("create %s: %w", GamesTable, err)
	}
	return nil
}

// FinalRegularSeason keeps the games that belong in the games table: status
// "Final" and regular-season type.
func FinalRegularSeason(games []statsapi.Game) []statsapi.Game {
	out := make([]statsapi.Game, 0, len(games))
	for _, g := range games {
		if g.Status == statsapi.StatusFinal && g.GameType == statsapi.GameTypeRegular {
			out = append(out, g)
		}
	}
	return out
}

// UpsertGames writes the final regular-season games in one atomic batch and
// returns how many were written.
func (p *Projection) UpsertGames(ctx context.Context, games []statsapi.Game) (int64, error) {
	keep := FinalRegularSeason(games)
	if len(keep) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(keep))
	for _, g := range keep {
		rows = append(rows, []any{g.ID, int64(g.Season), g.GameType, g.HomeID, g.AwayID, g.HomeScore, g.AwayScore})
	}
	n, err := p.Repo.Upsert(ctx, storage.RowBatch{
		Table:      GamesTable,
		Columns:    gamesColumns,
		KeyColumns: []string{"game_id"},
		Rows:       rows,
	})
	if err != nil {
		return 0, fmt.Errorf("upsert games: %w", err)
	}
	return n, nil
}

// ReplaceRosters rebuilds roster_<season> from rosters: the table is dropped,
// recreated and filled with every padded roster in one transaction, so a
// failed write keeps the previous season roster. A roster over capacity fails
// the whole call before the store is touched.
func (p *Projection) ReplaceRosters(ctx context.Context, season int, rosters map[int64][]int64) (int64, error) {
	if err := CheckRosters(season, rosters); err != nil {
		return 0, err
	}

	teams := make([]int64, 0, len(rosters))
	for id := range rosters {
		teams = append(teams, id)
	}
	sortIDs(teams)

	rows := make([][]any, 0, len(teams))
	for _, team := range teams {
		row, err := PadRoster(team, rosters[team])
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	spec := RosterSpec(season)
	var batches []storage.RowBatch
	if len(rows) > 0 {
		batches = append(batches, storage.RowBatch{
			Table:      spec.Name,
			Columns:    specColumns(spec),
			KeyColumns: spec.PrimaryKey,
			Rows:       rows,
		})
	}
	n, err := p.Repo.Apply(ctx, []storage.TableSpec{spec}, batches...)
	if err != nil {
		return 0, fmt.Errorf("replace %s: %w", spec.Name, err)
	}
	return n, nil
}

// UpsertStats writes normalized tuples for every category in one atomic
// batch. Categories must exist in s and tuples must match its field count.
func (p *Projection) UpsertStats(ctx context.Context, s schema.Schema, tuples map[string][]transformer.Tuple) (int64, error) {
	for cat := range tuples {
		if !s.Has(cat) {
			return 0, &schema.DriftError{Category: cat, Reason: schema.ReasonUnknownCategory}
		}
	}

	var batches []storage.RowBatch
	for _, cat := range s.Categories() {
		rowsIn := tuples[cat]
		if len(rowsIn) == 0 {
			continue
		}
		fields, _ := s.Fields(cat)
		spec, err := StatsSpec(cat, fields)
		if err != nil {
			return 0, err
		}
		rows := make([][]any, len(rowsIn))
		for i, t := range rowsIn {
			rows[i] = t
		}
		batches = append(batches, storage.RowBatch{
			Table:      spec.Name,
			Columns:    specColumns(spec),
			KeyColumns: spec.PrimaryKey,
			Rows:       rows,
		})
	}
	if len(batches) == 0 {
		return 0, nil
	}

	n, err := p.Repo.Upsert(ctx, batches...)
	if err != nil {
		return 0, fmt.Errorf("upsert stats: %w", err)
	}
	return n, nil
}

// TeamsInSeason returns the distinct team ids found in the home and away
// columns of the season's stored games, sorted.
func (p *Projection) TeamsInSeason(ctx context.Context, season int) ([]int64, error) {
	rows, err := p.Repo.SelectRows(ctx, GamesTable, []string{"home_id", "away_id"}, map[string]any{"season": int64(season)})
	if err != nil {
		return nil, fmt.Errorf("teams in season %d: %w", season, err)
	}

	seen := map[int64]struct{}{}
	for _, r := range rows {
		for _, v := range r {
			id, ok, err := storage.Int64Value(v)
			if err != nil {
				return nil, fmt.Errorf("teams in season %d: %w", season, err)
			}
			if ok {
				seen[id] = struct{}{}
			}
		}
	}
	return sortedSet(seen), nil
}

// SeasonRosters reads roster_<season> back into team id -> members, with
// empty slots stripped.
func (p *Projection) SeasonRosters(ctx context.Context, season int) (map[int64][]int64, error) {
	spec := RosterSpec(season)
	rows, err := p.Repo.SelectRows(ctx, spec.Name, specColumns(spec), nil)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", spec.Name, err)
	}

	out := make(map[int64][]int64, len(rows))
	for _, r := range rows {
		team, members, err := UnpadRoster(r)
		if err != nil {
			return nil, err
		}
		out[team] = members
	}
	return out, nil
}

// PlayersInSeason returns every player on any of the season's rosters,
// deduplicated and sorted.
func (p *Projection) PlayersInSeason(ctx context.Context, season int) ([]int64, error) {
	rosters, err := p.SeasonRosters(ctx, season)
	if err != nil {
		return nil, err
	}
	seen := map[int64]struct{}{}
	for _, members := range rosters {
		for _, id := range members {
			seen[id] = struct{}{}
		}
	}
	return sortedSet(seen), nil
}

func sortedSet(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
