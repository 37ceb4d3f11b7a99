package statsapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const scheduleFixture = `{
  "dates": [
    {"date": "2018-04-01", "games": [
      {"gamePk": 529415, "gameType": "R", "status": {"detailedState": "Final"},
       "teams": {"away": {"team": {"id": 133}, "score": 4}, "home": {"team": {"id": 118}, "score": 7}}},
      {"gamePk": 529416, "gameType": "R", "status": {"detailedState": "Postponed"},
       "teams": {"away": {"team": {"id": 121}}, "home": {"team": {"id": 120}}}}
    ]},
    {"date": "2018-10-05", "games": [
      {"gamePk": 563390, "gameType": "D", "status": {"detailedState": "Final"},
       "teams": {"away": {"team": {"id": 147}, "score": 1}, "home": {"team": {"id": 111}, "score": 5}}},
      {"gamePk": 529416, "gameType": "R", "status": {"detailedState": "Final"},
       "teams": {"away": {"team": {"id": 121}, "score": 2}, "home": {"team": {"id": 120}, "score": 3}}}
    ]}
  ]
}`

const rosterFixture = `{"roster": [
  {"person": {"id": 605141, "fullName": "A"}, "jerseyNumber": "7"},
  {"person": {"id": 592450, "fullName": "B"}}
]}`

const peopleFixture = `{"people": [{
  "id": 605141,
  "stats": [
    {"type": {"displayName": "career"}, "group": {"displayName": "hitting"},
     "splits": [{"stat": {"gamesPlayed": 120, "avg": ".287", "homeRuns": 11}}]},
    {"type": {"displayName": "career"}, "group": {"displayName": "fielding"},
     "splits": [
       {"stat": {"assists": 4, "fielding": ".990", "position": {"code": "8", "abbreviation": "CF"}}},
       {"position": {"code": "9", "abbreviation": "RF"}, "stat": {"assists": 2, "fielding": "1.000"}}
     ]}
  ]
}]}`

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	games, err := ParseSchedule([]byte(scheduleFixture), 2018)
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	if len(games) != 3 {
		t.Fatalf("len(games)=%d, want 3 (duplicate gamePk collapsed)", len(games))
	}

	want := Game{ID: 529415, Season: 2018, Status: "Final", GameType: "R", HomeID: 118, AwayID: 133, HomeScore: 7, AwayScore: 4}
	if games[0] != want {
		t.Fatalf("games[0]=%+v, want %+v", games[0], want)
	}
	// The resumed listing wins but keeps the first position.
	if games[1].ID != 529416 || games[1].Status != "Final" || games[1].HomeScore != 3 {
		t.Fatalf("games[1]=%+v", games[1])
	}
	if games[2].GameType != "D" {
		t.Fatalf("games[2]=%+v", games[2])
	}
}

func TestParseSchedule_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{name: "invalid_json", in: `{"dates": [`},
		{name: "empty", in: ``},
		{name: "game_without_pk", in: `{"dates": [{"date": "2018-04-01", "games": [{"gameType": "R"}]}]}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseSchedule([]byte(tt.in), 2018); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	games, err := ParseSchedule([]byte(`{"dates": []}`), 2018)
	if err != nil || len(games) != 0 {
		t.Fatalf("empty schedule: games=%v err=%v", games, err)
	}
}

func TestParseRoster(t *testing.T) {
	t.Parallel()

	ids, err := ParseRoster([]byte(rosterFixture))
	if err != nil {
		t.Fatalf("ParseRoster: %v", err)
	}
	if !reflect.DeepEqual(ids, []int64{605141, 592450}) {
		t.Fatalf("ids=%v", ids)
	}

	if _, err := ParseRoster([]byte(`{"copyright": "x"}`)); err == nil {
		t.Fatalf("expected error for missing roster")
	}
	if _, err := ParseRoster([]byte(`{"roster": [{"person": {}}]}`)); err == nil {
		t.Fatalf("expected error for entry without id")
	}
}

func TestParseCareerStats(t *testing.T) {
	t.Parallel()

	cs, err := ParseCareerStats(605141, []byte(peopleFixture))
	if err != nil {
		t.Fatalf("ParseCareerStats: %v", err)
	}
	if cs.PlayerID != 605141 || len(cs.Groups) != 3 {
		t.Fatalf("cs=%+v", cs)
	}

	hitting := cs.Groups[0]
	if hitting.Group != "hitting" || hitting.Stats["avg"] != ".287" || hitting.Stats["gamesPlayed"] != float64(120) {
		t.Fatalf("hitting=%+v", hitting)
	}

	cf := cs.Groups[1]
	pos, ok := cf.Stats["position"].(map[string]any)
	if !ok || pos["code"] != "8" {
		t.Fatalf("fielding split 0 position=%v", cf.Stats["position"])
	}

	rf := cs.Groups[2]
	pos, ok = rf.Stats["position"].(map[string]any)
	if !ok || pos["code"] != "9" {
		t.Fatalf("split-level position not copied into stats: %v", rf.Stats)
	}

	if _, err := ParseCareerStats(1, []byte(`{"people": []}`)); err == nil {
		t.Fatalf("expected error for empty people")
	}
}

func TestClient_Endpoints(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		switch {
		case r.URL.Path == "/api/v1/schedule":
			if r.URL.Query().Get("startDate") != "04/01/2018" || r.URL.Query().Get("endDate") != "12/31/2018" {
				http.Error(w, "bad dates", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(scheduleFixture))
		case r.URL.Path == "/api/v1/teams/118/roster":
			if r.URL.Query().Get("season") != "2018" {
				http.Error(w, "bad season", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(rosterFixture))
		case r.URL.Path == "/api/v1/people/605141":
			if !strings.Contains(r.URL.Query().Get("hydrate"), "type=[career]") {
				http.Error(w, "missing hydrate", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(peopleFixture))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL+"/", 5*time.Second)
	ctx := context.Background()

	games, err := c.SeasonGames(ctx, 2018)
	if err != nil || len(games) != 3 {
		t.Fatalf("SeasonGames: games=%d err=%v", len(games), err)
	}
	ids, err := c.TeamRoster(ctx, 118, 2018)
	if err != nil || len(ids) != 2 {
		t.Fatalf("TeamRoster: ids=%v err=%v", ids, err)
	}
	cs, err := c.CareerStats(ctx, 605141)
	if err != nil || len(cs.Groups) != 3 {
		t.Fatalf("CareerStats: %+v err=%v", cs, err)
	}
	if requests.Load() != 3 {
		t.Fatalf("requests=%d, want 3 (no retries)", requests.Load())
	}
}

func TestClient_FetchErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/teams/1/roster":
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		case "/api/v1/teams/2/roster":
			_, _ = w.Write([]byte(`not json`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, 5*time.Second)

	tests := []struct {
		name       string
		team       int64
		wantStatus int
	}{
		{name: "non_2xx", team: 1, wantStatus: http.StatusServiceUnavailable},
		{name: "bad_body", team: 2, wantStatus: http.StatusOK},
		{name: "not_found", team: 3, wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := c.TeamRoster(context.Background(), tt.team, 2018)
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("err=%v, want *FetchError", err)
			}
			if fe.Status != tt.wantStatus || fe.Op != "roster" {
				t.Fatalf("FetchError=%+v, want status %d", fe, tt.wantStatus)
			}
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := NewClient(base, time.Second)
	_, err := c.SeasonGames(context.Background(), 2018)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != 0 {
		t.Fatalf("err=%v, want transport FetchError with status 0", err)
	}
	if !strings.Contains(fe.Error(), "schedule") {
		t.Fatalf("message=%q", fe.Error())
	}
}
