package postgres

import (
	"strings"
	"testing"

	"seasonetl/internal/storage"
)

// boolPtr is a tiny helper to avoid repeating &[]bool literals in tests.
func boolPtr(v bool) *bool { return &v }

func TestBuildCreateTableSQL_MapsTypesAndKey(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name:       "games",
		PrimaryKey: []string{"game_id"},
		Columns: []storage.ColumnSpec{
			{Name: "game_id", Type: storage.TypeInteger},
			{Name: "game_type", Type: storage.TypeText, Nullable: boolPtr(false)},
			{Name: "avg", Type: storage.TypeReal},
		},
	}

	got, err := buildCreateTableSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateTableSQL: %v", err)
	}
	want := `CREATE TABLE IF NOT EXISTS "games" ("game_id" BIGINT NOT NULL, "game_type" TEXT NOT NULL, "avg" DOUBLE PRECISION, PRIMARY KEY ("game_id"))`
	if got != want {
		t.Fatalf("buildCreateTableSQL()=\n%s\nwant\n%s", got, want)
	}
}

func TestBuildCreateTableSQL_RejectsInvalid(t *testing.T) {
	t.Parallel()

	if _, err := buildCreateTableSQL(storage.TableSpec{Name: "x"}); err == nil {
		t.Fatalf("expected error for table without columns")
	}
}

func TestBuildDropTableSQL_QuotesName(t *testing.T) {
	t.Parallel()

	if got := buildDropTableSQL(`roster_2018`); got != `DROP TABLE IF EXISTS "roster_2018"` {
		t.Fatalf("buildDropTableSQL()=%q", got)
	}
	if got := pgIdent(`a"b`); got != `"a""b"` {
		t.Fatalf("pgIdent()=%q", got)
	}
}

func TestBuildUpsertSQL_OnConflictDoUpdate(t *testing.T) {
	t.Parallel()

	b := storage.RowBatch{
		Table:      "stats_hitting",
		Columns:    []string{"player_id", "avg", "hits"},
		KeyColumns: []string{"player_id"},
	}
	rows := [][]any{{int64(1), 0.3, 10.0}, {int64(2), nil, 4.0}}

	q, args := buildUpsertSQL(b, rows)

	if !strings.Contains(q, `VALUES ($1, $2, $3), ($4, $5, $6)`) {
		t.Fatalf("placeholders wrong: %s", q)
	}
	if !strings.HasSuffix(q, `ON CONFLICT ("player_id") DO UPDATE SET "avg" = EXCLUDED."avg", "hits" = EXCLUDED."hits"`) {
		t.Fatalf("conflict clause wrong: %s", q)
	}
	if len(args) != 6 || args[3] != int64(2) || args[4] != nil {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildUpsertSQL_KeyOnlyDoesNothing(t *testing.T) {
	t.Parallel()

	b := storage.RowBatch{
		Table:      "games",
		Columns:    []string{"game_id"},
		KeyColumns: []string{"game_id"},
	}
	q, _ := buildUpsertSQL(b, [][]any{{int64(1)}})
	if !strings.HasSuffix(q, `ON CONFLICT ("game_id") DO NOTHING`) {
		t.Fatalf("expected DO NOTHING: %s", q)
	}
}

func TestBuildSelectSQL_NumbersPlaceholders(t *testing.T) {
	t.Parallel()

	q, args, err := buildSelectSQL("games", []string{"home_id"}, map[string]any{"season": 2018, "game_type": "R"})
	if err != nil {
		t.Fatalf("buildSelectSQL: %v", err)
	}
	want := `SELECT "home_id" FROM "games" WHERE "game_type" = $1 AND "season" = $2 ORDER BY "home_id"`
	if q != want {
		t.Fatalf("buildSelectSQL()=\n%s\nwant\n%s", q, want)
	}
	if len(args) != 2 || args[0] != "R" {
		t.Fatalf("unexpected args: %v", args)
	}
}
