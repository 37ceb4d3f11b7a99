package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"seasonetl/internal/storage"
)

// maxParams stays under SQLITE_MAX_VARIABLE_NUMBER (32766).
const maxParams = 32000

// Repo implements storage.Repository for SQLite (modernc.org/sqlite, pure Go).
//
// A single connection is used: SQLite serializes writers anyway, and it keeps
// ":memory:" DSNs pointing at one database.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database file named by cfg.DSN and verifies it with a ping.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTables applies all DDL in one transaction; SQLite DDL is
// transactional, so a failure leaves the previous tables untouched.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	_, err := r.Apply(ctx, tables)
	return err
}

// Upsert writes all batches with INSERT OR REPLACE in one transaction.
func (r *Repo) Upsert(ctx context.Context, batches ...storage.RowBatch) (int64, error) {
	return r.Apply(ctx, nil, batches...)
}

// Apply runs the DDL for tables and then the upserts in one transaction.
func (r *Repo) Apply(ctx context.Context, tables []storage.TableSpec, batches ...storage.RowBatch) (int64, error) {
	for _, b := range batches {
		if err := b.Validate(); err != nil {
			return 0, err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := ensureTx(ctx, tx, tables); err != nil {
		return 0, err
	}
	total, err := upsertTx(ctx, tx, batches)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func ensureTx(ctx context.Context, tx *sql.Tx, tables []storage.TableSpec) error {
	for _, t := range tables {
		create, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if t.Replace {
			if _, err := tx.ExecContext(ctx, buildDropTableSQL(t.Name)); err != nil {
				return fmt.Errorf("drop table %s: %w", t.Name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, create); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func upsertTx(ctx context.Context, tx *sql.Tx, batches []storage.RowBatch) (int64, error) {
	var total int64
	for _, b := range batches {
		for _, chunk := range storage.ChunkRows(b.Rows, len(b.Columns), maxParams) {
			q, args := buildUpsertSQL(b.Table, b.Columns, chunk)
			res, err := tx.ExecContext(ctx, q, args...)
			if err != nil {
				return 0, fmt.Errorf("upsert %s: %w", b.Table, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
	}
	return total, nil
}

func (r *Repo) SelectRows(ctx context.Context, table string, columns []string, where map[string]any) ([][]any, error) {
	q, args, err := buildSelectSQL(table, columns, where)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func sqliteType(logical string) (string, error) {
	switch logical {
	case storage.TypeInteger:
		return "INTEGER", nil
	case storage.TypeReal:
		return "REAL", nil
	case storage.TypeText:
		return "TEXT", nil
	default:
		return "", fmt.Errorf("sqlite: unsupported column type %q", logical)
	}
}

func buildDropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + sqlIdent(table)
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	parts := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		typ, err := sqliteType(c.Type)
		if err != nil {
			return "", err
		}
		col := sqlIdent(c.Name) + " " + typ
		if !c.IsNullable() || t.IsKey(c.Name) {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}
	if len(t.PrimaryKey) > 0 {
		parts = append(parts, "PRIMARY KEY ("+joinIdents(t.PrimaryKey)+")")
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", sqlIdent(t.Name), strings.Join(parts, ", ")), nil
}

// buildUpsertSQL builds one multi-row INSERT OR REPLACE. Conflicts resolve
// against the table's PRIMARY KEY, so the batch key columns are implied.
func buildUpsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT OR REPLACE INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	b.WriteString(joinIdents(columns))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, row...)
	}
	return b.String(), args
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
	b.WriteString(sqlIdent(table))

	var args []any
	for i, c := range storage.WhereColumns(where) {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(sqlIdent(c))
		b.WriteString(" = ?")
		args = append(args, where[c])
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(sqlIdent(columns[0]))
	return b.String(), args, nil
}

func joinIdents(cols []string) string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, sqlIdent(c))
	}
	return strings.Join(out, ", ")
}
