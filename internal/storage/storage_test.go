package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func boolPtr(v bool) *bool { return &v }

func TestTableSpec_Validate(t *testing.T) {
	t.Parallel()

	ok := TableSpec{
		Name:       "games",
		PrimaryKey: []string{"game_id"},
		Columns: []ColumnSpec{
			{Name: "game_id", Type: TypeInteger},
			{Name: "game_type", Type: TypeText, Nullable: boolPtr(false)},
		},
	}

	tests := []struct {
		name    string
		mutate  func(t *TableSpec)
		wantErr bool
	}{
		{name: "valid", mutate: func(*TableSpec) {}},
		{name: "empty_name", mutate: func(t *TableSpec) { t.Name = " " }, wantErr: true},
		{name: "no_columns", mutate: func(t *TableSpec) { t.Columns = nil }, wantErr: true},
		{name: "bad_type", mutate: func(t *TableSpec) { t.Columns = []ColumnSpec{{Name: "game_id", Type: "varchar(10)"}} }, wantErr: true},
		{name: "dup_column", mutate: func(t *TableSpec) { t.Columns = append(t.Columns, ColumnSpec{Name: "game_id", Type: TypeInteger}) }, wantErr: true},
		{name: "pk_missing", mutate: func(t *TableSpec) { t.PrimaryKey = []string{"season"} }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			spec := ok
			spec.Columns = append([]ColumnSpec(nil), ok.Columns...)
			tt.mutate(&spec)
			err := spec.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestColumnSpec_IsNullable(t *testing.T) {
	t.Parallel()

	if !(ColumnSpec{}).IsNullable() {
		t.Fatalf("nil Nullable should default to nullable")
	}
	if (ColumnSpec{Nullable: boolPtr(false)}).IsNullable() {
		t.Fatalf("explicit false should be NOT NULL")
	}
}

func TestRowBatch_Validate(t *testing.T) {
	t.Parallel()

	b := RowBatch{
		Table:      "games",
		Columns:    []string{"game_id", "season"},
		KeyColumns: []string{"game_id"},
		Rows:       [][]any{{int64(1), int64(2018)}},
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	short := b
	short.Rows = [][]any{{int64(1)}}
	if err := short.Validate(); err == nil {
		t.Fatalf("expected row width error")
	}

	badKey := b
	badKey.KeyColumns = []string{"team_id"}
	if err := badKey.Validate(); err == nil {
		t.Fatalf("expected missing key column error")
	}

	if got := b.NonKeyColumns(); !reflect.DeepEqual(got, []string{"season"}) {
		t.Fatalf("NonKeyColumns()=%v", got)
	}
}

func TestChunkRows(t *testing.T) {
	t.Parallel()

	rows := make([][]any, 10)
	for i := range rows {
		rows[i] = []any{i, i}
	}

	tests := []struct {
		name      string
		maxParams int
		wantSizes []int
	}{
		{name: "fits", maxParams: 100, wantSizes: []int{10}},
		{name: "split", maxParams: 8, wantSizes: []int{4, 4, 2}},
		{name: "one_per_chunk_minimum", maxParams: 1, wantSizes: []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			chunks := ChunkRows(rows, 2, tt.maxParams)
			var sizes []int
			for _, c := range chunks {
				sizes = append(sizes, len(c))
			}
			if !reflect.DeepEqual(sizes, tt.wantSizes) {
				t.Fatalf("chunk sizes=%v, want %v", sizes, tt.wantSizes)
			}
		})
	}

	if ChunkRows(nil, 2, 10) != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestDedupeLast_KeepsLastValueAtFirstPosition(t *testing.T) {
	t.Parallel()

	cols := []string{"team_id", "member_1"}
	rows := [][]any{
		{int64(118), int64(1)},
		{int64(119), int64(2)},
		{int64(118), int64(3)},
	}
	got, err := DedupeLast(rows, cols, []string{"team_id"})
	if err != nil {
		t.Fatalf("DedupeLast: %v", err)
	}
	want := [][]any{
		{int64(118), int64(3)},
		{int64(119), int64(2)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DedupeLast()=%v, want %v", got, want)
	}

	if _, err := DedupeLast(rows, cols, []string{"missing"}); err == nil {
		t.Fatalf("expected error for unknown key column")
	}
}

func TestInt64Value(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      any
		want    int64
		wantOK  bool
		wantErr bool
	}{
		{name: "nil", in: nil},
		{name: "int64", in: int64(42), want: 42, wantOK: true},
		{name: "int32", in: int32(7), want: 7, wantOK: true},
		{name: "float_integral", in: float64(118), want: 118, wantOK: true},
		{name: "float_fraction", in: 1.5, wantErr: true},
		{name: "bytes", in: []byte("605141"), want: 605141, wantOK: true},
		{name: "string_bad", in: "x", wantErr: true},
		{name: "bool", in: true, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok, err := Int64Value(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Int64Value(%v) err=%v, wantErr=%v", tt.in, err, tt.wantErr)
			}
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("Int64Value(%v)=(%d,%v), want (%d,%v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

type stubRepo struct{}

func (stubRepo) Close()                                          {}
func (stubRepo) EnsureTables(context.Context, []TableSpec) error { return nil }
func (stubRepo) Upsert(context.Context, ...RowBatch) (int64, error) {
	return 0, nil
}
func (stubRepo) Apply(context.Context, []TableSpec, ...RowBatch) (int64, error) {
	return 0, nil
}
func (stubRepo) SelectRows(context.Context, string, []string, map[string]any) ([][]any, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	// Not parallel: mutates the package registry.
	wantErr := errors.New("boom")
	Register("test-ok", func(ctx context.Context, cfg Config) (Repository, error) { return stubRepo{}, nil })
	Register("test-err", func(ctx context.Context, cfg Config) (Repository, error) { return nil, wantErr })

	if _, err := New(context.Background(), Config{Kind: "test-ok"}); err != nil {
		t.Fatalf("New(test-ok): %v", err)
	}
	if _, err := New(context.Background(), Config{Kind: "test-err"}); !errors.Is(err, wantErr) {
		t.Fatalf("New(test-err) err=%v, want %v", err, wantErr)
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty kind")
	}
	if _, err := New(context.Background(), Config{Kind: "nope"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}

	kinds := Kinds()
	if len(kinds) < 2 || kinds[0] > kinds[len(kinds)-1] {
		t.Fatalf("Kinds()=%v not sorted or incomplete", kinds)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	Register("test-ok", func(ctx context.Context, cfg Config) (Repository, error) { return stubRepo{}, nil })
}
