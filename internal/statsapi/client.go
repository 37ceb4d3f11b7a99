package statsapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"seasonetl/internal/metrics"
)

// DefaultBaseURL is the public MLB Stats API root.
const DefaultBaseURL = "https://statsapi.mlb.com"

// maxBodyBytes bounds a single response read. A full season schedule is a few
// megabytes.
const maxBodyBytes = 64 << 20

// Client talks to the Stats API over HTTP. Requests are sequential and
// never retried.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	// Job labels the HTTP metrics.
	Job string
}

// NewClient returns a Client with a pooled transport and per-request timeout.
// An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    newHTTPClient(timeout),
		Job:     "seasonetl",
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 4,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// SeasonGames fetches every scheduled game between April 1 and December 31 of
// season.
func (c *Client) SeasonGames(ctx context.Context, season int) ([]Game, error) {
	q := url.Values{}
	q.Set("sportId", "1")
	q.Set("startDate", fmt.Sprintf("04/01/%d", season))
	q.Set("endDate", fmt.Sprintf("12/31/%d", season))

	u := c.BaseURL + "/api/v1/schedule?" + q.Encode()
	body, err := c.get(ctx, "schedule", u)
	if err != nil {
		return nil, err
	}
	games, err := ParseSchedule(body, season)
	if err != nil {
		return nil, &FetchError{Op: "schedule", URL: u, Status: http.StatusOK, Err: err}
	}
	return games, nil
}

// TeamRoster fetches the person ids on teamID's roster for season.
func (c *Client) TeamRoster(ctx context.Context, teamID int64, season int) ([]int64, error) {
	u := fmt.Sprintf("%s/api/v1/teams/%d/roster?season=%d", c.BaseURL, teamID, season)
	body, err := c.get(ctx, "roster", u)
	if err != nil {
		return nil, err
	}
	ids, err := ParseRoster(body)
	if err != nil {
		return nil, &FetchError{Op: "roster", URL: u, Status: http.StatusOK, Err: err}
	}
	return ids, nil
}

// CareerStats fetches hitting, pitching and fielding career stats for playerID.
func (c *Client) CareerStats(ctx context.Context, playerID int64) (CareerStats, error) {
	q := url.Values{}
	q.Set("hydrate", "stats(group=[hitting,pitching,fielding],type=[career])")

	u := fmt.Sprintf("%s/api/v1/people/%d?%s", c.BaseURL, playerID, q.Encode())
	body, err := c.get(ctx, "people", u)
	if err != nil {
		return CareerStats{}, err
	}
	cs, err := ParseCareerStats(playerID, body)
	if err != nil {
		return CareerStats{}, &FetchError{Op: "people", URL: u, Status: http.StatusOK, Err: err}
	}
	return cs, nil
}

// get performs one GET and returns the body of a 2xx response. Every attempt is
// recorded with metrics.RecordHTTP.
func (c *Client) get(ctx context.Context, op, rawURL string) ([]byte, error) {
	start := time.Now()
	status := 0
	var reqDur, respDur time.Duration
	size := int64(-1)

	body, err := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, err
		}
		reqDur = time.Since(start)
		defer resp.Body.Close()

		status = resp.StatusCode
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			// Drain so the connection can be reused.
			n, _ := io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
			size = n
			return nil, errors.New(http.StatusText(resp.StatusCode))
		}

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		size = int64(len(b))
		respDur = time.Since(start)
		return b, err
	}()
	if reqDur == 0 {
		reqDur = time.Since(start)
	}

	metrics.RecordHTTP(c.Job, op, status, err, reqDur, respDur, size)

	if err != nil {
		return nil, &FetchError{Op: op, URL: rawURL, Status: status, Err: err}
	}
	return body, nil
}

var _ Provider = (*Client)(nil)
