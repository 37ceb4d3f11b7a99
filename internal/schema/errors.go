package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned (wrapped) by Load when no artifact exists at the
	// configured path. Discovery must run before ingestion.
	ErrNotFound = errors.New("schema: artifact not found")

	// ErrDrift matches every *DriftError via errors.Is.
	ErrDrift = errors.New("schema: drift")
)

// Drift reasons.
const (
	ReasonFieldMismatch   = "field set mismatch"
	ReasonUnknownCategory = "unknown category"
)

// DriftError reports that an entity's stat layout does not agree with the
// schema (or, during discovery, with the first entity that introduced the
// category).
//
// Want is the reference field set and Got is what the offending entity
// exposed. Both are nil for ReasonUnknownCategory.
type DriftError struct {
	EntityID int64
	Category string
	Want     []string
	Got      []string
	Reason   string
}

func (e *DriftError) Error() string {
	if e.Reason == ReasonUnknownCategory {
		return fmt.Sprintf("schema drift: entity %d category %q not in schema; rerun discovery", e.EntityID, e.Category)
	}
	return fmt.Sprintf("schema drift: entity %d category %q: %s: want [%s] got [%s]",
		e.EntityID, e.Category, e.Reason, strings.Join(e.Want, " "), strings.Join(e.Got, " "))
}

// Is lets errors.Is(err, ErrDrift) match any DriftError.
func (e *DriftError) Is(target error) bool { return target == ErrDrift }
