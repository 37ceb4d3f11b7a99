package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"seasonetl/internal/storage"
)

// maxParams is the Postgres wire protocol limit on bind parameters.
const maxParams = 65535

/*
Repo implements storage.Repository for Postgres.

It provides:
  - Transactional DDL (drop + create of replaced tables in one tx)
  - Upsert via INSERT ... ON CONFLICT (key) DO UPDATE SET col = EXCLUDED.col
  - Simple equality-filtered reads
*/
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a Postgres-backed Repo from a pgx connection string.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	_, err := r.Apply(ctx, tables)
	return err
}

// Upsert writes every batch in one transaction.
func (r *Repo) Upsert(ctx context.Context, batches ...storage.RowBatch) (int64, error) {
	return r.Apply(ctx, nil, batches...)
}

// Apply runs the DDL for tables and then the upserts in one transaction.
// Postgres DDL is transactional, so a dropped table comes back on rollback.
func (r *Repo) Apply(ctx context.Context, tables []storage.TableSpec, batches ...storage.RowBatch) (int64, error) {
	for _, b := range batches {
		if err := b.Validate(); err != nil {
			return 0, err
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if err := ensureTx(ctx, tx, tables); err != nil {
		return 0, err
	}
	total, err := upsertTx(ctx, tx, batches)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return total, nil
}

func ensureTx(ctx context.Context, tx pgx.Tx, tables []storage.TableSpec) error {
	for _, t := range tables {
		create, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if t.Replace {
			if _, err := tx.Exec(ctx, buildDropTableSQL(t.Name)); err != nil {
				return fmt.Errorf("drop table %s: %w", t.Name, err)
			}
		}
		if _, err := tx.Exec(ctx, create); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// upsertTx collapses rows sharing a key inside one batch (last wins) first:
// ON CONFLICT DO UPDATE refuses to touch the same row twice per statement.
func upsertTx(ctx context.Context, tx pgx.Tx, batches []storage.RowBatch) (int64, error) {
	var total int64
	for _, b := range batches {
		rows, err := storage.DedupeLast(b.Rows, b.Columns, b.KeyColumns)
		if err != nil {
			return 0, err
		}
		for _, chunk := range storage.ChunkRows(rows, len(b.Columns), maxParams) {
			q, args := buildUpsertSQL(b, chunk)
			tag, err := tx.Exec(ctx, q, args...)
			if err != nil {
				return 0, fmt.Errorf("upsert %s: %w", b.Table, err)
			}
			total += tag.RowsAffected()
		}
	}
	return total, nil
}

func (r *Repo) SelectRows(ctx context.Context, table string, columns []string, where map[string]any) ([][]any, error) {
	q, args, err := buildSelectSQL(table, columns, where)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([]any, error) {
		return row.Values()
	})
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return out, nil
}

// pgIdent quotes an identifier, escaping embedded double quotes.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func pgType(logical string) (string, error) {
	switch logical {
	case storage.TypeInteger:
		return "BIGINT", nil
	case storage.TypeReal:
		return "DOUBLE PRECISION", nil
	case storage.TypeText:
		return "TEXT", nil
	default:
		return "", fmt.Errorf("postgres: unsupported column type %q", logical)
	}
}

func buildDropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + pgIdent(table)
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	parts := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		typ, err := pgType(c.Type)
		if err != nil {
			return "", err
		}
		col := pgIdent(c.Name) + " " + typ
		if !c.IsNullable() || t.IsKey(c.Name) {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}
	if len(t.PrimaryKey) > 0 {
		parts = append(parts, "PRIMARY KEY ("+joinIdents(t.PrimaryKey)+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", pgIdent(t.Name), strings.Join(parts, ", ")), nil
}

// buildUpsertSQL constructs a single INSERT ... ON CONFLICT statement and its
// args. It is pure so placeholder numbering and the conflict clause can be
// unit tested without a database.
func buildUpsertSQL(b storage.RowBatch, rows [][]any) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(pgIdent(b.Table))
	sb.WriteString(" (")
	sb.WriteString(joinIdents(b.Columns))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(b.Columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := range b.Columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("$%d", p))
			args = append(args, row[j])
			p++
		}
		sb.WriteString(")")
	}

	sb.WriteString(" ON CONFLICT (")
	sb.WriteString(joinIdents(b.KeyColumns))
	sb.WriteString(")")

	rest := b.NonKeyColumns()
	if len(rest) == 0 {
		sb.WriteString(" DO NOTHING")
		return sb.String(), args
	}
	sb.WriteString(" DO UPDATE SET ")
	for i, c := range rest {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(pgIdent(c))
		sb.WriteString(" = EXCLUDED.")
		sb.WriteString(pgIdent(c))
	}
	return sb.String(), args
}

func buildSelectSQL(table string, columns []string, where map[string]any) (string, []any, error) {
	if strings.TrimSpace(table) == "" {
		return "", nil, fmt.Errorf("select: table name is empty")
	}
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("select %s: no columns", table)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(joinIdents(columns))
	b.WriteString(" FROM ")
	b.WriteString(pgIdent(table))

	var args []any
	for i, c := range storage.WhereColumns(where) {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		args = append(args, where[c])
		fmt.Fprintf(&b, "%s = $%d", pgIdent(c), len(args))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(pgIdent(columns[0]))
	return b.String(), args, nil
}

func joinIdents(cols []string) string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, pgIdent(c))
	}
	return strings.Join(out, ", ")
}
