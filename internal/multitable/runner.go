package multitable

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"seasonetl/internal/schema"
	"seasonetl/internal/statsapi"
	"seasonetl/internal/storage"
)

// Command names accepted by Runner.Run.
const (
	CommandInit    = "init"
	CommandCollect = "collect"
	CommandPlayers = "players"
	CommandUpdate  = "update-players"
	CommandRun     = "run"
)

// Command selects what a run does.
//
//	init                      create games and recreate stats tables
//	collect <season>          games and rosters for a season
//	players <season>          career stats for everyone on the season's rosters
//	update-players <id>...    career stats for the given player ids
//	run <season>              collect followed by players
type Command struct {
	Name      string
	Season    int
	PlayerIDs []int64
}

// ParseCommand parses positional CLI arguments into a Command.
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return Command{}, fmt.Errorf("missing command (one of %s)", commandList())
	}
	cmd := Command{Name: args[0]}
	rest := args[1:]

	switch cmd.Name {
	case CommandInit:
		if len(rest) != 0 {
			return Command{}, fmt.Errorf("%s takes no arguments", cmd.Name)
		}
	case CommandCollect, CommandPlayers, CommandRun:
		if len(rest) != 1 {
			return Command{}, fmt.Errorf("%s requires exactly one season argument", cmd.Name)
		}
		season, err := strconv.Atoi(rest[0])
		if err != nil || season < 1876 || season > 9999 {
			return Command{}, fmt.Errorf("%s: invalid season %q", cmd.Name, rest[0])
		}
		cmd.Season = season
	case CommandUpdate:
		if len(rest) == 0 {
			return Command{}, fmt.Errorf("%s requires at least one player id", cmd.Name)
		}
		for _, arg := range rest {
			for _, part := range strings.Split(arg, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				id, err := strconv.ParseInt(part, 10, 64)
				if err != nil || id <= 0 {
					return Command{}, fmt.Errorf("%s: invalid player id %q", cmd.Name, part)
				}
				cmd.PlayerIDs = append(cmd.PlayerIDs, id)
			}
		}
		if len(cmd.PlayerIDs) == 0 {
			return Command{}, fmt.Errorf("%s requires at least one player id", cmd.Name)
		}
	default:
		return Command{}, fmt.Errorf("unknown command %q (one of %s)", cmd.Name, commandList())
	}
	return cmd, nil
}

func commandList() string {
	return strings.Join([]string{CommandInit, CommandCollect, CommandPlayers, CommandUpdate, CommandRun}, "|")
}

// Runner wires configuration to an Engine: it loads the schema artifact, opens
// the store and the upstream client, and runs one Command.
type Runner struct {
	// storage-agnostic factory seam
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

	NewProvider func(cfg Upstream) statsapi.Provider
	LoadSchema  func(path string) (schema.Schema, error)

	Logger Logger
}

// NewDefaultRunner returns a Runner backed by the registered storage
// backends, the HTTP stats client and the on-disk schema artifact.
func NewDefaultRunner(logger Logger) *Runner {
	return &Runner{
		NewRepository: func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
			return storage.New(ctx, cfg)
		},
		NewProvider: func(cfg Upstream) statsapi.Provider {
			timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
			if timeout <= 0 {
				timeout = 30 * time.Second
			}
			return statsapi.NewClient(cfg.BaseURL, timeout)
		},
		LoadSchema: schema.Load,
		Logger:     logger,
	}
}

// Run validates cfg and executes cmd against the store it describes. The
// schema artifact is loaded before the store is opened, so a missing artifact aborts before any
// table is touched. The store is closed on every return path.
func (r *Runner) Run(ctx context.Context, cfg Pipeline, cmd Command) error {
	if issues := ValidatePipeline(cfg, storage.Kinds()); HasErrors(issues) {
		msgs := make([]string, 0, len(issues))
		for _, iss := range issues {
			if iss.Severity == SeverityError {
				msgs = append(msgs, iss.Path+": "+iss.Message)
			}
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}

	s, err := r.LoadSchema(cfg.Schema.Path)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	repo, err := r.NewRepository(ctx, storage.Config{
		Kind: cfg.Storage.Kind,
		DSN:  os.ExpandEnv(cfg.Storage.DB.DSN),
	})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer repo.Close()

	provider := r.NewProvider(cfg.Upstream)
	if c, ok := provider.(*statsapi.Client); ok {
		c.Job = cfg.JobName()
	}

	e := &Engine{
		Repo:     repo,
		Provider: provider,
		Schema:   s,
		Logger:   r.Logger,
		Job:      cfg.JobName(),
		Quiet:    cfg.Runtime.Quiet,
	}
	return runCommand(ctx, e, cmd)
}

func runCommand(ctx context.Context, e *Engine, cmd Command) error {
	logf := e.logger()

	var (
		p   Progress
		err error
	)
	switch cmd.Name {
	case CommandInit:
		return e.Init(ctx)
	case CommandCollect:
		p, err = e.CollectSeason(ctx, cmd.Season)
	case CommandPlayers:
		var ids []int64
		ids, err = e.seasonPlayers(ctx, cmd.Season)
		if err != nil {
			return err
		}
		p, err = e.UpdatePlayers(ctx, ids)
		p.Season = cmd.Season
	case CommandUpdate:
		p, err = e.UpdatePlayers(ctx, cmd.PlayerIDs)
	case CommandRun:
		p, err = e.Run(ctx, cmd.Season, true)
	default:
		return fmt.Errorf("unknown command %q", cmd.Name)
	}

	logf("run: command=%s season=%d stage=%s games=%d teams=%d rosters=%d players=%d stats_rows=%d",
		cmd.Name, p.Season, p.Stage, p.Games, p.Teams, p.Rosters, p.Players, p.StatsRows)
	return err
}
