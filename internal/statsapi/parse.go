package statsapi

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var errInvalidJSON = errors.New("invalid JSON body")

// ParseSchedule extracts games from a /schedule response body.
//
// Every game is returned regardless of status or type; filtering is the
// projection's job. A game listed on more than one date (suspended and
// resumed) is kept once, with the last listing winning.
func ParseSchedule(body []byte, season int) ([]Game, error) {
	if !gjson.ValidBytes(body) {
		return nil, errInvalidJSON
	}

	var (
		out []Game
		pos = map[int64]int{}
	)
	var perr error
	gjson.GetBytes(body, "dates").ForEach(func(_, date gjson.Result) bool {
		date.Get("games").ForEach(func(_, g gjson.Result) bool {
			id := g.Get("gamePk")
			if !id.Exists() {
				perr = fmt.Errorf("schedule: game without gamePk on %s", date.Get("date").String())
				return false
			}
			game := Game{
				ID:        id.Int(),
				Season:    season,
				Status:    g.Get("status.detailedState").String(),
				GameType:  g.Get("gameType").String(),
				HomeID:    g.Get("teams.home.team.id").Int(),
				AwayID:    g.Get("teams.away.team.id").Int(),
				HomeScore: g.Get("teams.home.score").Int(),
				AwayScore: g.Get("teams.away.score").Int(),
			}
			if i, dup := pos[game.ID]; dup {
				out[i] = game
				return true
			}
			pos[game.ID] = len(out)
			out = append(out, game)
			return true
		})
		return perr == nil
	})
	if perr != nil {
		return nil, perr
	}
	return out, nil
}

// ParseRoster extracts person ids from a /teams/{id}/roster response body, in
// upstream order.
func ParseRoster(body []byte) ([]int64, error) {
	if !gjson.ValidBytes(body) {
		return nil, errInvalidJSON
	}
	roster := gjson.GetBytes(body, "roster")
	if !roster.IsArray() {
		return nil, errors.New("roster: missing roster array")
	}

	var ids []int64
	for i, entry := range roster.Array() {
		id := entry.Get("person.id")
		if id.Type != gjson.Number {
			return nil, fmt.Errorf("roster: entry %d has no person.id", i)
		}
		ids = append(ids, id.Int())
	}
	return ids, nil
}

// ParseCareerStats extracts stat groups from a hydrated /people/{id} response.
//
// One StatGroup is produced per split. When a fielding split carries its
// position on the split rather than inside the stat object, it is copied into
// Stats["position"] so category splitting sees one shape.
func ParseCareerStats(playerID int64, body []byte) (CareerStats, error) {
	if !gjson.ValidBytes(body) {
		return CareerStats{}, errInvalidJSON
	}
	person := gjson.GetBytes(body, "people.0")
	if !person.Exists() {
		return CareerStats{}, fmt.Errorf("people: no person in response for id %d", playerID)
	}

	cs := CareerStats{PlayerID: playerID}
	if id := person.Get("id"); id.Exists() {
		cs.PlayerID = id.Int()
	}

	var perr error
	person.Get("stats").ForEach(func(_, group gjson.Result) bool {
		name := group.Get("group.displayName").String()
		if name == "" {
			perr = fmt.Errorf("people %d: stat group without name", cs.PlayerID)
			return false
		}
		group.Get("splits").ForEach(func(_, split gjson.Result) bool {
			stat := split.Get("stat")
			if !stat.IsObject() {
				return true
			}
			stats, ok := stat.Value().(map[string]any)
			if !ok {
				return true
			}
			if _, has := stats["position"]; !has {
				if p := split.Get("position"); p.IsObject() {
					stats["position"] = p.Value()
				}
			}
			cs.Groups = append(cs.Groups, StatGroup{Group: name, Stats: stats})
			return true
		})
		return perr == nil
	})
	if perr != nil {
		return CareerStats{}, perr
	}
	return cs, nil
}
