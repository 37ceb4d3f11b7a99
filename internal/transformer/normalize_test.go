package transformer

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/guregu/null"

	"seasonetl/internal/schema"
	"seasonetl/internal/statsapi"
)

func TestCoerceNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want null.Float
	}{
		{name: "nil", in: nil, want: null.Float{}},
		{name: "float64", in: float64(120), want: null.FloatFrom(120)},
		{name: "int", in: 7, want: null.FloatFrom(7)},
		{name: "int64", in: int64(-3), want: null.FloatFrom(-3)},
		{name: "leading_dot", in: ".287", want: null.FloatFrom(0.287)},
		{name: "negative_leading_dot", in: "-.5", want: null.FloatFrom(-0.5)},
		{name: "integer_string", in: "12", want: null.FloatFrom(12)},
		{name: "padded_string", in: " 3.5 ", want: null.FloatFrom(3.5)},
		{name: "exponent", in: "1e3", want: null.FloatFrom(1000)},
		{name: "json_number", in: json.Number("42.25"), want: null.FloatFrom(42.25)},
		{name: "bytes", in: []byte("9"), want: null.FloatFrom(9)},
		{name: "empty", in: "", want: null.Float{}},
		{name: "placeholder", in: "-.--", want: null.Float{}},
		{name: "star", in: "*", want: null.Float{}},
		{name: "inf_string", in: "Infinity", want: null.Float{}},
		{name: "nan_string", in: "NaN", want: null.Float{}},
		{name: "nan_float", in: math.NaN(), want: null.Float{}},
		{name: "inf_float", in: math.Inf(1), want: null.Float{}},
		{name: "bool", in: true, want: null.Float{}},
		{name: "object", in: map[string]any{"code": "8"}, want: null.Float{}},
		{name: "slice", in: []any{1.0}, want: null.Float{}},
		{name: "valid_null_float", in: null.FloatFrom(2), want: null.FloatFrom(2)},
		{name: "invalid_null_float", in: null.Float{}, want: null.Float{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := CoerceNumber(tt.in)
			if got.Valid != tt.want.Valid || (got.Valid && got.Float64 != tt.want.Float64) {
				t.Fatalf("CoerceNumber(%#v)=%v/%v, want %v/%v", tt.in, got.Float64, got.Valid, tt.want.Float64, tt.want.Valid)
			}
		})
	}
}

func TestCoerceNumber_ParsedCareerValues(t *testing.T) {
	t.Parallel()

	body := []byte(`{"people": [{"id": 7, "stats": [{"group": {"displayName": "hitting"},
	  "splits": [{"stat": {"gamesPlayed": 120, "avg": ".287", "ops": "-.--", "babip": null}}]}]}]}`)
	cs, err := statsapi.ParseCareerStats(7, body)
	if err != nil {
		t.Fatalf("ParseCareerStats: %v", err)
	}
	if len(cs.Groups) != 1 {
		t.Fatalf("groups=%d, want 1", len(cs.Groups))
	}
	stats := cs.Groups[0].Stats

	want := map[string]null.Float{
		"gamesPlayed": null.FloatFrom(120),
		"avg":         null.FloatFrom(0.287),
		"ops":         {},
		"babip":       {},
		"missing":     {},
	}
	for field, w := range want {
		if got := CoerceNumber(stats[field]); got != w {
			t.Fatalf("CoerceNumber(%s=%#v)=%v, want %v", field, stats[field], got, w)
		}
	}
}

func battingSchema() schema.Schema {
	return schema.MustNew(map[string][]string{
		"batting":    {"AB", "AVG", "H"},
		"fielding_3": {"assists", "errors"},
	})
}

func TestNormalize_FieldOrderAndNulls(t *testing.T) {
	t.Parallel()

	got, err := Normalize(battingSchema(), 11, Record{
		"batting": {"H": float64(30), "AB": "100", "extra": 1.0},
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("categories=%d, want 1 (absent schema category yields no tuple)", len(got))
	}

	want := Tuple{int64(11), null.FloatFrom(100), null.Float{}, null.FloatFrom(30)}
	if !reflect.DeepEqual(got["batting"], want) {
		t.Fatalf("batting=%v, want %v", got["batting"], want)
	}
}

func TestNormalize_UnparseableFieldIsNull(t *testing.T) {
	t.Parallel()

	got, err := Normalize(battingSchema(), 5, Record{
		"fielding_3": {"assists": "-.--", "errors": map[string]any{}},
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	row := got["fielding_3"]
	if len(row) != 3 || row[0] != int64(5) {
		t.Fatalf("row=%v", row)
	}
	for i, v := range row[1:] {
		if f := v.(null.Float); f.Valid {
			t.Fatalf("row[%d]=%v, want null", i+1, f.Float64)
		}
	}
}

func TestNormalize_UnknownCategory(t *testing.T) {
	t.Parallel()

	_, err := Normalize(battingSchema(), 77, Record{
		"batting":    {"H": 1.0},
		"fielding_9": {"assists": 1.0},
	})
	if !errors.Is(err, schema.ErrDrift) {
		t.Fatalf("err=%v, want drift", err)
	}
	var de *schema.DriftError
	if !errors.As(err, &de) {
		t.Fatalf("err=%T, want *schema.DriftError", err)
	}
	if de.EntityID != 77 || de.Category != "fielding_9" || de.Reason != schema.ReasonUnknownCategory {
		t.Fatalf("DriftError=%+v", de)
	}
}

func TestNormalize_EmptyRecord(t *testing.T) {
	t.Parallel()

	got, err := Normalize(battingSchema(), 1, nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("got=%v err=%v", got, err)
	}
}

func TestGroupByCategory(t *testing.T) {
	t.Parallel()

	s := battingSchema()
	got, err := GroupByCategory(s, map[int64]Record{
		33: {"batting": {"H": 3.0}},
		11: {"batting": {"H": 1.0}, "fielding_3": {"errors": 2.0}},
		22: {},
	})
	if err != nil {
		t.Fatalf("GroupByCategory: %v", err)
	}

	batting := got["batting"]
	if len(batting) != 2 || batting[0][0] != int64(11) || batting[1][0] != int64(33) {
		t.Fatalf("batting rows not ordered by id: %v", batting)
	}
	if len(got["fielding_3"]) != 1 {
		t.Fatalf("fielding_3=%v", got["fielding_3"])
	}
}

func TestGroupByCategory_DriftAborts(t *testing.T) {
	t.Parallel()

	got, err := GroupByCategory(battingSchema(), map[int64]Record{
		1: {"batting": {"H": 1.0}},
		2: {"pitching": {"era": "3.10"}},
	})
	if !errors.Is(err, schema.ErrDrift) {
		t.Fatalf("err=%v, want drift", err)
	}
	if got != nil {
		t.Fatalf("partial result returned: %v", got)
	}
}
