package multitable

// Pipeline is the JSON configuration shared by cmd/etl subcommands.
//
//	{
//	  "job": "seasonetl",
//	  "schema": {"path": "schema/stat_categories.json"},
//	  "upstream": {"base_url": "https://statsapi.mlb.com", "timeout_seconds": 30},
//	  "storage": {"kind": "sqlite", "db": {"dsn": "data/season.db"}},
//	  "runtime": {"quiet": false}
//	}
type Pipeline struct {
	Job      string        `json:"job"`
	Schema   SchemaConfig  `json:"schema"`
	Upstream Upstream      `json:"upstream"`
	Storage  Storage       `json:"storage"`
	Runtime  RuntimeConfig `json:"runtime"`
}

// SchemaConfig locates the frozen schema artifact written by cmd/probe.
type SchemaConfig struct {
	Path string `json:"path"`
}

// Upstream configures the stats provider client.
type Upstream struct {
	// BaseURL defaults to statsapi.DefaultBaseURL.
	BaseURL string `json:"base_url"`
	// TimeoutSeconds bounds each request. Zero means 30s.
	TimeoutSeconds int `json:"timeout_seconds"`
}

type Storage struct {
	// Backend kind: "postgres" | "mssql" | "sqlite"
	Kind string `json:"kind"`
	DB   DB     `json:"db"`
}

type DB struct {
	// DSN is expanded with os.ExpandEnv before use.
	DSN string `json:"dsn"`
}

// RuntimeConfig controls pipeline execution behavior.
type RuntimeConfig struct {
	// Quiet suppresses the per-team and per-player progress lines, which are
	// logged by default.
	Quiet bool `json:"quiet"`
}

// DefaultJob names the job when the config leaves it empty.
const DefaultJob = "seasonetl"

// JobName returns p.Job or DefaultJob.
func (p Pipeline) JobName() string {
	if p.Job == "" {
		return DefaultJob
	}
	return p.Job
}
