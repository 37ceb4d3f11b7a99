package storage

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ChunkRows splits rows so that no chunk binds more than maxParams
// placeholders (width values per row). Every chunk holds at least one row.
func ChunkRows(rows [][]any, width, maxParams int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	per := 1
	if width > 0 && maxParams > width {
		per = maxParams / width
	}
	out := make([][][]any, 0, (len(rows)+per-1)/per)
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}

// DedupeLast keeps one row per key, the last occurrence, at the position of
// the first occurrence. Statements such as ON CONFLICT DO UPDATE and MERGE
// reject a source that touches the same target row twice.
func DedupeLast(rows [][]any, columns, keyColumns []string) ([][]any, error) {
	idx, err := columnIndexes(columns, keyColumns)
	if err != nil {
		return nil, err
	}

	pos := make(map[string]int, len(rows))
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		k := rowKey(r, idx)
		if p, ok := pos[k]; ok {
			out[p] = r
			continue
		}
		pos[k] = len(out)
		out = append(out, r)
	}
	return out, nil
}

// WhereColumns returns the keys of where in sorted order so generated SQL is
// deterministic.
func WhereColumns(where map[string]any) []string {
	cols := make([]string, 0, len(where))
	for c := range where {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Int64Value converts a scanned integer column value to int64.
//
// ok is false for NULL. Drivers differ in what they hand back for integer
// columns (int64, int32, []byte, integral float64), so read paths go through
// this instead of type-asserting.
func Int64Value(v any) (n int64, ok bool, err error) {
	switch t := v.(type) {
	case nil:
		return 0, false, nil
	case int64:
		return t, true, nil
	case int32:
		return int64(t), true, nil
	case int:
		return int64(t), true, nil
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return 0, false, fmt.Errorf("non-integral value %v", t)
		}
		return int64(t), true, nil
	case []byte:
		return parseInt(string(t))
	case string:
		return parseInt(t)
	default:
		return 0, false, fmt.Errorf("unsupported integer value %T", v)
	}
}

func parseInt(s string) (int64, bool, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func columnIndexes(columns, want []string) ([]int, error) {
	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		pos[c] = i
	}
	out := make([]int, 0, len(want))
	for _, w := range want {
		i, ok := pos[w]
		if !ok {
			return nil, fmt.Errorf("column %s not in column list", w)
		}
		out = append(out, i)
	}
	return out, nil
}

func rowKey(r []any, idx []int) string {
	var b strings.Builder
	for i, j := range idx {
		if i > 0 {
			b.WriteByte(0)
		}
		fmt.Fprintf(&b, "%T:%v", r[j], r[j])
	}
	return b.String()
}
