// Package probe discovers the stat category schema by sampling live player
// records.
//
// Discovery runs offline (cmd/probe). The first sampled entity to expose a
// category fixes that category's field set; every later entity must expose
// exactly the same set. A mismatch stops discovery with a *schema.DriftError
// instead of widening the schema, because the relational layout would
// otherwise lose data.
//
// The result is frozen into the schema artifact (see package schema) and
// consumed at ingestion time; it is never rediscovered on the hot path.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"seasonetl/internal/schema"
	"seasonetl/internal/statsapi"
	"seasonetl/internal/transformer"
)

// Logger is the minimal logging interface used by discovery.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// RecordFn returns one entity's full career record.
type RecordFn func(ctx context.Context, id int64) (statsapi.CareerStats, error)

// Options control discovery.
type Options struct {
	// Logger receives one progress line per sampled entity. Nil discards.
	Logger Logger
}

// ErrEmptySample is returned when discovery is given no entities.
var ErrEmptySample = errors.New("probe: empty sample")

// fieldingGroup is the upstream group name split per position.
const fieldingGroup = "fielding"

// positionField carries the fielding position; it becomes part of the
// category name and is never a column.
const positionField = "position"

var fold = cases.Fold()

// SplitCategory maps one raw stat group onto its schema category.
//
// Fielding groups (matched case-insensitively) become "fielding_<code-1>",
// where code is the numeric position code, and lose the position field. Other
// groups keep their name and fields. The returned map is a copy.
func SplitCategory(group string, stats map[string]any) (string, map[string]any, error) {
	fields := make(map[string]any, len(stats))
	for k, v := range stats {
		fields[k] = v
	}

	if fold.String(group) != fold.String(fieldingGroup) {
		return group, fields, nil
	}

	code, err := positionCode(stats[positionField])
	if err != nil {
		return "", nil, fmt.Errorf("probe: group %q: %w", group, err)
	}
	delete(fields, positionField)
	return fieldingGroup + "_" + strconv.Itoa(code-1), fields, nil
}

// positionCode reads a position code from {"code": "8", ...} or a bare value.
func positionCode(raw any) (int, error) {
	if m, ok := raw.(map[string]any); ok {
		raw = m["code"]
	}
	switch v := raw.(type) {
	case nil:
		return 0, errors.New("missing position code")
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("position code %v is not an integer", v)
		}
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("position code %q is not numeric", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("position code has type %T", raw)
	}
}

// RecordOf flattens a career record into category -> fields, applying
// SplitCategory to every group. When a category repeats, the later group
// wins.
func RecordOf(cs statsapi.CareerStats) (transformer.Record, error) {
	rec := make(transformer.Record, len(cs.Groups))
	for _, g := range cs.Groups {
		cat, fields, err := SplitCategory(g.Group, g.Stats)
		if err != nil {
			return nil, fmt.Errorf("player %d: %w", cs.PlayerID, err)
		}
		rec[cat] = fields
	}
	return rec, nil
}

// Report summarizes a discovery run.
type Report struct {
	// Entities is the number of distinct entities sampled.
	Entities int
	// Categories lists the discovered categories, sorted.
	Categories []string
	// FirstEntity maps each category to the entity that introduced it.
	FirstEntity map[string]int64
	// FieldCounts maps each category to its number of fields.
	FieldCounts map[string]int
}

// Format renders the report as a small tab-separated table.
func (r Report) Format() string {
	if r.Entities <= 0 {
		return "discovery: no entities sampled"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "discovery report:\tentities=%d\tcategories=%d\n", r.Entities, len(r.Categories))
	fmt.Fprintf(&b, "%-15s\t%-7s\tfirst_entity\n", "category", "fields")
	for _, cat := range r.Categories {
		fmt.Fprintf(&b, "%-15s\t%-7d\t%d\n", cat, r.FieldCounts[cat], r.FirstEntity[cat])
	}
	return strings.TrimRight(b.String(), "\n")
}

// Discover samples ids in order and returns the frozen schema.
//
// Fetch errors abort discovery. Duplicate ids are sampled once.
func Discover(ctx context.Context, ids []int64, fetch RecordFn, opt Options) (schema.Schema, Report, error) {
	if len(ids) == 0 {
		return schema.Schema{}, Report{}, ErrEmptySample
	}
	if fetch == nil {
		return schema.Schema{}, Report{}, errors.New("probe: RecordFn is required")
	}
	logf := loggerOf(opt.Logger)

	var (
		fieldSets = map[string][]string{}
		first     = map[string]int64{}
		seen      = make(map[int64]struct{}, len(ids))
	)

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return schema.Schema{}, Report{}, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		logf("probe: entity %d/%d id=%d", i+1, len(ids), id)

		cs, err := fetch(ctx, id)
		if err != nil {
			return schema.Schema{}, Report{}, fmt.Errorf("probe: fetch id=%d: %w", id, err)
		}
		rec, err := RecordOf(cs)
		if err != nil {
			return schema.Schema{}, Report{}, err
		}

		for _, cat := range sortedCategories(rec) {
			got := sortedFields(rec[cat])
			want, known := fieldSets[cat]
			if !known {
				fieldSets[cat] = got
				first[cat] = id
				continue
			}
			if !equalStrings(want, got) {
				return schema.Schema{}, Report{}, &schema.DriftError{
					EntityID: id,
					Category: cat,
					Want:     want,
					Got:      got,
					Reason:   schema.ReasonFieldMismatch,
				}
			}
		}
	}

	s, err := schema.New(fieldSets)
	if err != nil {
		return schema.Schema{}, Report{}, fmt.Errorf("probe: %w", err)
	}
	rep := Report{
		Entities:    len(seen),
		Categories:  s.Categories(),
		FirstEntity: first,
		FieldCounts: make(map[string]int, len(fieldSets)),
	}
	for cat, fields := range fieldSets {
		rep.FieldCounts[cat] = len(fields)
	}
	return s, rep, nil
}

func loggerOf(l Logger) func(string, ...any) {
	if l == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return l.Printf
}

func sortedCategories(rec transformer.Record) []string {
	out := make([]string, 0, len(rec))
	for cat := range rec {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

func sortedFields(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
