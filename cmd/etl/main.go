// Command etl collects season data into the relational store.
//
//	etl -config pipeline.json init
//	etl -config pipeline.json collect 2021
//	etl -config pipeline.json players 2021
//	etl -config pipeline.json update-players 605141,592450
//	etl -config pipeline.json run 2021
package main

import (
	"context"
	"encoding/json"
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

	"seasonetl/internal/metrics"
	"seasonetl/internal/metrics/datadog"
	"seasonetl/internal/multitable"
	"seasonetl/internal/storage"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "seasonetl/internal/storage/all"
)

// runner executes one command against a pipeline config.
type runner interface {
	Run(ctx context.Context, cfg multitable.Pipeline, cmd multitable.Command) error
}

// metricsBackend is the part of a metrics backend the CLI owns: shutdown.
type metricsBackend interface {
	Close() error
}

// appDeps are the side-effecting seams of runMain.
type appDeps struct {
	readFile    func(string) ([]byte, error)
	unmarshal   func([]byte, any) error
	newRunner   func() runner
	initMetrics func(ctx context.Context, jobName, backendName string) (func(), error)

	// getenv defaults to os.Getenv.
	getenv func(string) string
}

var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	setMetricsBackend = func(b any) {
		if mb, ok := b.(metrics.Backend); ok {
			metrics.SetBackend(mb)
		}
	}
	logPrintf = log.Printf
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.New(os.Stderr, "", log.LstdFlags)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, appDeps{
		readFile:    os.ReadFile,
		unmarshal:   json.Unmarshal,
		newRunner:   func() runner { return multitable.NewDefaultRunner(logger) },
		initMetrics: initMetrics,
		getenv:      os.Getenv,
	})
	stop()
	os.Exit(code)
}

const usage = "usage: etl -config path/to/pipeline.json [-metrics-backend none|datadog] [-validate] <init | collect SEASON | players SEASON | update-players ID... | run SEASON>"

// runMain is main without process exit, so it can be tested.
//
// Exit codes: 0 success, 1 runtime failure, 2 usage error. Usage errors are
// detected before any seam is called.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("etl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath     string
		backendFlag string
		validate    bool
	)
	fs.StringVar(&cfgPath, "config", "", "pipeline config JSON path")
	fs.StringVar(&backendFlag, "metrics-backend", "", "metrics backend: none|datadog (overrides env METRICS_BACKEND)")
	fs.BoolVar(&validate, "validate", false, "validate the configuration and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, usage)
		}
		return 2
	}
	if strings.TrimSpace(cfgPath) == "" {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	var cmd multitable.Command
	if !validate {
		var err error
		cmd, err = multitable.ParseCommand(fs.Args())
		if err != nil {
			fmt.Fprintf(stderr, "%v\n%s\n", err, usage)
			return 2
		}
	}

	getenv := deps.getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	raw, err := deps.readFile(cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "read config: %v\n", err)
		return 1
	}
	var p multitable.Pipeline
	if err := deps.unmarshal(raw, &p); err != nil {
		fmt.Fprintf(stderr, "parse config: %v\n", err)
		return 1
	}
	multitable.ApplyEnv(&p, getenv)

	if validate {
		issues := multitable.ValidatePipeline(p, storage.Kinds())
		for _, iss := range issues {
			fmt.Fprintln(stderr, iss.String())
		}
		if multitable.HasErrors(issues) {
			fmt.Fprintf(stderr, "configuration is invalid: %s\n", cfgPath)
			return 1
		}
		fmt.Fprintln(stdout, "ok")
		return 0
	}

	// Decide metrics backend: flag → env → default.
	backendName := backendFlag
	if backendName == "" {
		backendName = getenv("METRICS_BACKEND")
	}

	cleanup, err := deps.initMetrics(ctx, p.JobName(), backendName)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	start := time.Now()
	if err := deps.newRunner().Run(ctx, p, cmd); err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	fmt.Fprintf(stderr, "completed %s in %s\n", cmd.Name, time.Since(start).Truncate(time.Millisecond))
	fmt.Fprintln(stdout, "ok")
	return 0
}

// initMetrics wires the selected metrics backend into the metrics package.
//
// The returned cleanup is never nil and is safe to call on every path. For
// Datadog it stops the flush loop and submits what is still buffered.
func initMetrics(ctx context.Context, jobName, backendName string) (func(), error) {
	noop := func() {}

	switch strings.ToLower(strings.TrimSpace(backendName)) {
	case "", "none", "noop":
		// metrics disabled; nop backend remains
		return noop, nil

	case "datadog", "dd":
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")),
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			return noop, fmt.Errorf("datadog: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil

	default:
		return noop, fmt.Errorf("unknown metrics backend %q (want none|datadog)", backendName)
	}
}
