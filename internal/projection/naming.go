package projection

import (
	"fmt"
	"regexp"
)

// GamesTable holds every collected regular-season game.
const GamesTable = "games"

var identRE = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// RosterTable names the season-scoped roster table.
func RosterTable(season int) string {
	return fmt.Sprintf("roster_%d", season)
}

// StatsTable names the table of one stat category.
//
// Category names come from the schema artifact and end up in DDL, so anything
// other than letters, digits and underscores is rejected.
func StatsTable(category string) (string, error) {
	if !identRE.MatchString(category) {
		return "", fmt.Errorf("projection: category %q is not a valid table suffix", category)
	}
	return "stats_" + category, nil
}

// ValidColumn reports whether name is safe to use as a generated column name.
func ValidColumn(name string) bool {
	return identRE.MatchString(name)
}
