package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a Repository.
//
// When to use:
//   - Pass Config to New when opening the store for a pipeline run.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//
// Errors:
//   - New returns an error if Kind is empty or unsupported.
type Config struct {
	Kind string
	DSN  string
}

// Repository is the backend-agnostic store used by the season pipeline.
//
// The interface is limited to what the projection layer needs. Each backend
// implements upsert in its own idiom (SQLite INSERT OR REPLACE, Postgres
// ON CONFLICT DO UPDATE, SQL Server MERGE).
type Repository interface {
	// Close releases backend resources. Callers should treat Close as "call once".
	Close()

	// EnsureTables creates the tables in order. Specs with Replace set are
	// dropped first. Backends with transactional DDL apply the whole slice
	// atomically.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// Upsert writes every batch inside one transaction: either all rows of all
	// batches are committed or none are. Rows that share key values with an
	// existing row replace it. Returns the number of rows written.
	Upsert(ctx context.Context, batches ...RowBatch) (int64, error)

	// Apply runs EnsureTables(tables) and Upsert(batches) in one transaction,
	// so a replaced table is never visible empty: either the new table with
	// all rows is committed or the previous table is kept.
	Apply(ctx context.Context, tables []TableSpec, batches ...RowBatch) (int64, error)

	// SelectRows returns the requested columns for rows matching every
	// column=value pair in where (nil selects all rows), ordered by the first
	// requested column.
	SelectRows(ctx context.Context, table string, columns []string, where map[string]any) ([][]any, error)
}

// Factory opens a Repository for a registered backend kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The `kind` string becomes the lookup key used by New.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Concurrency:
//   - Safe for concurrent use with Register.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
