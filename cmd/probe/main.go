// Command probe discovers the stats schema artifact from one team's roster.
//
// It fetches the roster of -team for -season, pulls each player's career
// stats, and fixes one field set per stat category. The result is written to
// -out as the schema artifact that cmd/etl loads. A player whose field set
// disagrees with an earlier player's for the same category aborts the run and
// nothing is written.
//
//	probe -team 118 -season 2018 -out player_datadef.json
//
// With -report, a per-category summary is printed to stderr after the
// artifact is saved.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"seasonetl/internal/probe"
	"seasonetl/internal/schema"
	"seasonetl/internal/statsapi"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// runMain is main without process exit. Exit codes: 0 success, 1 runtime
// failure, 2 usage error.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		team    = fs.Int64("team", 118, "Team id whose roster is sampled")
		season  = fs.Int("season", 2018, "Season of the sampled roster")
		out     = fs.String("out", "player_datadef.json", "Path of the schema artifact to write")
		baseURL = fs.String("base-url", statsapi.DefaultBaseURL, "Stats API root URL")
		timeout = fs.Duration("timeout", 30*time.Second, "Per-request HTTP timeout")
		report  = fs.Bool("report", false, "Print a discovery report to stderr")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return 2
	}
	if strings.TrimSpace(*out) == "" {
		fmt.Fprintln(stderr, "missing -out")
		return 2
	}
	if *team <= 0 {
		fmt.Fprintf(stderr, "invalid -team %d\n", *team)
		return 2
	}
	if *timeout <= 0 {
		fmt.Fprintf(stderr, "invalid -timeout %s\n", *timeout)
		return 2
	}

	logger := log.New(stderr, "", log.LstdFlags)
	client := statsapi.NewClient(*baseURL, *timeout)
	client.Job = "probe"

	start := time.Now()
	ids, err := client.TeamRoster(ctx, *team, *season)
	if err != nil {
		fmt.Fprintf(stderr, "probe: roster team=%d season=%d: %v\n", *team, *season, err)
		return 1
	}
	logger.Printf("probe: roster team=%d season=%d players=%d", *team, *season, len(ids))

	s, rep, err := probe.Discover(ctx, ids, client.CareerStats, probe.Options{Logger: logger})
	if err != nil {
		var drift *schema.DriftError
		if errors.As(err, &drift) {
			fmt.Fprintf(stderr, "probe: nothing written to %s: %v\n", *out, err)
			return 1
		}
		fmt.Fprintln(stderr, err)
		return 1
	}

	if err := schema.Save(*out, s); err != nil {
		fmt.Fprintf(stderr, "probe: %v\n", err)
		return 1
	}
	logger.Printf("probe: wrote %s categories=%d duration=%s", *out, s.Len(), time.Since(start).Truncate(time.Millisecond))

	if *report {
		fmt.Fprintln(stderr, rep.Format())
	}
	fmt.Fprintln(stdout, *out)
	return 0
}
