// Package transformer reshapes raw per-entity stat records into fixed-width
// rows laid out by a frozen schema.
package transformer

import (
	"sort"

	"seasonetl/internal/schema"
)

// Record is one entity's raw stat record: category name -> field -> raw value.
type Record map[string]map[string]any

// Tuple is one relational row: the entity id followed by one value per schema
// field, in schema order. Values are int64 or null.Float, both valid
// database/sql bind arguments.
type Tuple []any

// Normalize produces one tuple per category present in record.
//
// A field missing from the record or not numeric is stored as null. A category
// the schema does not know is a *schema.DriftError; it is never dropped. A
// schema category the record lacks yields no tuple.
func Normalize(s schema.Schema, entityID int64, record Record) (map[string]Tuple, error) {
	out := make(map[string]Tuple, len(record))

	// Visit categories in sorted order so the reported drift is stable.
	cats := make([]string, 0, len(record))
	for cat := range record {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	for _, cat := range cats {
		fields, ok := s.Fields(cat)
		if !ok {
			return nil, &schema.DriftError{
				EntityID: entityID,
				Category: cat,
				Reason:   schema.ReasonUnknownCategory,
			}
		}
		out[cat] = buildTuple(entityID, fields, record[cat])
	}
	return out, nil
}

func buildTuple(entityID int64, fields []string, values map[string]any) Tuple {
	t := make(Tuple, 1+len(fields))
	t[0] = entityID
	for i, f := range fields {
		t[i+1] = CoerceNumber(values[f])
	}
	return t
}

// GroupByCategory normalizes many entities and collects the tuples per
// category, ordered by entity id. The first drift aborts the whole batch.
func GroupByCategory(s schema.Schema, records map[int64]Record) (map[string][]Tuple, error) {
	ids := make([]int64, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make(map[string][]Tuple, s.Len())
	for _, id := range ids {
		tuples, err := Normalize(s, id, records[id])
		if err != nil {
			return nil, err
		}
		for cat, t := range tuples {
			out[cat] = append(out[cat], t)
		}
	}
	return out, nil
}
