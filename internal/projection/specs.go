package projection

import (
	"fmt"

	"seasonetl/internal/schema"
	"seasonetl/internal/storage"
)

var notNull = func() *bool { b := false; return &b }()

var gamesColumns = []string{"game_id", "season", "game_type", "home_id", "away_id", "home_score", "away_score"}

// GamesSpec is the games table. It is created once and upserted by game_id.
func GamesSpec() storage.TableSpec {
	return storage.TableSpec{
		Name: GamesTable,
		Columns: []storage.ColumnSpec{
			{Name: "game_id", Type: storage.TypeInteger},
			{Name: "season", Type: storage.TypeInteger, Nullable: notNull},
			{Name: "game_type", Type: storage.TypeText, Nullable: notNull},
			{Name: "home_id", Type: storage.TypeInteger, Nullable: notNull},
			{Name: "away_id", Type: storage.TypeInteger, Nullable: notNull},
			{Name: "home_score", Type: storage.TypeInteger, Nullable: notNull},
			{Name: "away_score", Type: storage.TypeInteger, Nullable: notNull},
		},
		PrimaryKey: []string{"game_id"},
	}
}

// RosterSpec is the season's roster table, replaced on every collection.
func RosterSpec(season int) storage.TableSpec {
	cols := make([]storage.ColumnSpec, 0, 1+MaxRosterSize)
	cols = append(cols, storage.ColumnSpec{Name: "team_id", Type: storage.TypeInteger})
	for _, name := range memberColumns() {
		cols = append(cols, storage.ColumnSpec{Name: name, Type: storage.TypeInteger})
	}
	return storage.TableSpec{
		Name:       RosterTable(season),
		Columns:    cols,
		PrimaryKey: []string{"team_id"},
		Replace:    true,
	}
}

// StatsSpec is one category table: player_id plus one real column per schema
// field, in schema order.
func StatsSpec(category string, fields []string) (storage.TableSpec, error) {
	name, err := StatsTable(category)
	if err != nil {
		return storage.TableSpec{}, err
	}
	cols := make([]storage.ColumnSpec, 0, 1+len(fields))
	cols = append(cols, storage.ColumnSpec{Name: "player_id", Type: storage.TypeInteger})
	for _, f := range fields {
		if !ValidColumn(f) {
			return storage.TableSpec{}, fmt.Errorf("projection: category %q field %q is not a valid column name", category, f)
		}
		if f == "player_id" {
			return storage.TableSpec{}, fmt.Errorf("projection: category %q declares reserved field player_id", category)
		}
		cols = append(cols, storage.ColumnSpec{Name: f, Type: storage.TypeReal})
	}
	return storage.TableSpec{
		Name:       name,
		Columns:    cols,
		PrimaryKey: []string{"player_id"},
		Replace:    true,
	}, nil
}

// SchemaSpecs returns the stats table specs of every schema category, in
// schema order.
func SchemaSpecs(s schema.Schema) ([]storage.TableSpec, error) {
	out := make([]storage.TableSpec, 0, s.Len())
	for _, cat := range s.Categories() {
		fields, _ := s.Fields(cat)
		spec, err := StatsSpec(cat, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

func specColumns(t storage.TableSpec) []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}
