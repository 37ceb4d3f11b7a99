package projection

import (
	"fmt"

	"seasonetl/internal/storage"
)

// MaxRosterSize is the fixed number of member slots in a roster row.
const MaxRosterSize = 70

// CapacityExceededError reports a roster with more distinct members than
// MaxRosterSize. Rosters are never truncated.
type CapacityExceededError struct {
	Season  int
	TeamID  int64
	Members int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("roster capacity exceeded: season %d team %d has %d members, max %d",
		e.Season, e.TeamID, e.Members, MaxRosterSize)
}

// PadRoster encodes one roster as a fixed-width row:
// team_id, member_1 .. member_MaxRosterSize. Duplicate ids are collapsed
// first (keeping first occurrence order) and unused slots are nil.
func PadRoster(teamID int64, members []int64) ([]any, error) {
	uniq := dedupeIDs(members)
	if len(uniq) > MaxRosterSize {
		return nil, &CapacityExceededError{TeamID: teamID, Members: len(uniq)}
	}

	row := make([]any, 1+MaxRosterSize)
	row[0] = teamID
	for i, id := range uniq {
		row[i+1] = id
	}
	return row, nil
}

// CheckRosters verifies every roster fits MaxRosterSize, reporting the
// lowest offending team id.
func CheckRosters(season int, rosters map[int64][]int64) error {
	teams := make([]int64, 0, len(rosters))
	for id := range rosters {
		teams = append(teams, id)
	}
	sortIDs(teams)
	for _, team := range teams {
		if n := len(dedupeIDs(rosters[team])); n > MaxRosterSize {
			return &CapacityExceededError{Season: season, TeamID: team, Members: n}
		}
	}
	return nil
}

// UnpadRoster decodes a roster row back into the team id and its members,
// dropping empty slots and keeping slot order.
func UnpadRoster(row []any) (int64, []int64, error) {
	if len(row) == 0 {
		return 0, nil, fmt.Errorf("projection: empty roster row")
	}
	teamID, ok, err := storage.Int64Value(row[0])
	if err != nil {
		return 0, nil, fmt.Errorf("projection: roster team_id: %w", err)
	}
	if !ok {
		return 0, nil, fmt.Errorf("projection: roster row without team_id")
	}

	var members []int64
	for i, v := range row[1:] {
		id, ok, err := storage.Int64Value(v)
		if err != nil {
			return 0, nil, fmt.Errorf("projection: team %d member_%d: %w", teamID, i+1, err)
		}
		if ok {
			members = append(members, id)
		}
	}
	return teamID, members, nil
}

func memberColumns() []string {
	cols := make([]string, MaxRosterSize)
	for i := range cols {
		cols[i] = fmt.Sprintf("member_%d", i+1)
	}
	return cols
}

func dedupeIDs(in []int64) []int64 {
	seen := make(map[int64]struct{}, len(in))
	out := make([]int64, 0, len(in))
	for _, id := range in {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
