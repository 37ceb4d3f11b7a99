// Package schema holds the frozen stat-category schema: the mapping from
// category name to the ordered list of numeric field names that governs the
// column layout of every stats_<category> table.
//
// A Schema is produced once by discovery (internal/probe), persisted as a
// human-diffable JSON artifact (see Save/Load) and treated as read-only
// configuration by the ingestion pipeline afterwards.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Category is one named group of stat fields.
type Category struct {
	Name   string
	Fields []string
}

// Schema is an ordered category -> field list mapping.
//
// The zero value is an empty schema. Schema values are immutable once built;
// accessors return copies so callers cannot mutate the frozen layout.
type Schema struct {
	cats  []Category
	index map[string]int
}

// New builds a deterministic Schema from a category -> field set mapping.
//
// Category keys are sorted, and each field list is sorted and deduplicated,
// so the same input always yields the same artifact bytes. Blank category or
// field names are rejected with the same errors as FromCategories.
func New(m map[string][]string) (Schema, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	cats := make([]Category, 0, len(names))
	for _, name := range names {
		cats = append(cats, Category{Name: name, Fields: sortedUnique(m[name])})
	}
	return FromCategories(cats)
}

// MustNew is New for fixed, known-good mappings. It panics on error.
func MustNew(m map[string][]string) Schema {
	s, err := New(m)
	if err != nil {
		panic(err)
	}
	return s
}

// FromCategories builds a Schema that keeps the given category order.
//
// Errors:
//   - empty category name
//   - duplicate category name
//   - empty or duplicate field name within a category
func FromCategories(cats []Category) (Schema, error) {
	s := Schema{
		cats:  make([]Category, 0, len(cats)),
		index: make(map[string]int, len(cats)),
	}
	for _, c := range cats {
		if strings.TrimSpace(c.Name) == "" {
			return Schema{}, errors.New("schema: empty category name")
		}
		if _, dup := s.index[c.Name]; dup {
			return Schema{}, fmt.Errorf("schema: duplicate category %q", c.Name)
		}
		seen := make(map[string]struct{}, len(c.Fields))
		for _, f := range c.Fields {
			if strings.TrimSpace(f) == "" {
				return Schema{}, fmt.Errorf("schema: category %q has an empty field name", c.Name)
			}
			if _, dup := seen[f]; dup {
				return Schema{}, fmt.Errorf("schema: category %q lists field %q twice", c.Name, f)
			}
			seen[f] = struct{}{}
		}
		s.index[c.Name] = len(s.cats)
		s.cats = append(s.cats, Category{Name: c.Name, Fields: append([]string(nil), c.Fields...)})
	}
	return s, nil
}

// Len returns the number of categories.
func (s Schema) Len() int { return len(s.cats) }

// Categories returns category names in artifact order.
func (s Schema) Categories() []string {
	out := make([]string, 0, len(s.cats))
	for _, c := range s.cats {
		out = append(out, c.Name)
	}
	return out
}

// Fields returns the ordered field list for category.
func (s Schema) Fields(category string) ([]string, bool) {
	i, ok := s.index[category]
	if !ok {
		return nil, false
	}
	return append([]string(nil), s.cats[i].Fields...), true
}

// Has reports whether category is declared.
func (s Schema) Has(category string) bool {
	_, ok := s.index[category]
	return ok
}

// Equal reports whether both schemas declare the same categories, in the
// same order, with the same field lists.
func (s Schema) Equal(o Schema) bool {
	if len(s.cats) != len(o.cats) {
		return false
	}
	for i := range s.cats {
		a, b := s.cats[i], o.cats[i]
		if a.Name != b.Name || len(a.Fields) != len(b.Fields) {
			return false
		}
		for j := range a.Fields {
			if a.Fields[j] != b.Fields[j] {
				return false
			}
		}
	}
	return true
}

// MarshalJSON writes the schema as a JSON object whose key order is the
// category order of s.
func (s Schema) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, c := range s.cats {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')

		fields := c.Fields
		if fields == nil {
			fields = []string{}
		}
		v, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of category -> field list, preserving the
// document's key order.
func (s *Schema) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("schema: read object start: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("schema: expected object, got %v", tok)
	}

	var cats []Category
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("schema: read category name: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("schema: expected category name, got %v", tok)
		}

		var fields []string
		if err := dec.Decode(&fields); err != nil {
			return fmt.Errorf("schema: category %q: %w", name, err)
		}
		if fields == nil {
			return fmt.Errorf("schema: category %q: field list must be an array", name)
		}
		cats = append(cats, Category{Name: name, Fields: fields})
	}

	if tok, err := dec.Token(); err != nil {
		return fmt.Errorf("schema: read object end: %w", err)
	} else if d, ok := tok.(json.Delim); !ok || d != '}' {
		return fmt.Errorf("schema: expected object end, got %v", tok)
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("schema: trailing data after object")
	}

	built, err := FromCategories(cats)
	if err != nil {
		return err
	}
	*s = built
	return nil
}

func sortedUnique(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	n := 0
	for i, v := range out {
		if i > 0 && v == out[n-1] {
			continue
		}
		out[n] = v
		n++
	}
	return out[:n]
}
