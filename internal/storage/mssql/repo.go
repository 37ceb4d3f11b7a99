package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"seasonetl/internal/storage"
)

// maxParams stays under SQL Server's 2100 parameter limit per request.
const maxParams = 2000

// Repo implements storage.Repository for Microsoft SQL Server.
//
// Upserts use MERGE ... WITH (HOLDLOCK) so concurrent writers for the same key
// serialize instead of racing between the match and the insert.
//
// Note on driver registration:
//   - This package does NOT blank-import a SQL Server driver. The application
//     registers "sqlserver" elsewhere (see internal/storage/all).
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

// New constructs a Repo using database/sql and the "sqlserver" driver.
//
// This method validates connectivity via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: raw}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	_, err := r.Apply(ctx, tables)
	return err
}

// Upsert writes every batch in one transaction via MERGE.
func (r *Repo) Upsert(ctx context.Context, batches ...storage.RowBatch) (int64, error) {
	return r.Apply(ctx, nil, batches...)
}

// Apply runs the DDL for tables and then the MERGE statements in one
// transaction. SQL Server DDL is transactional.
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
	total, err := mergeTx(ctx, tx, batches)
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

// mergeTx collapses each batch to one row per key (last wins) first: MERGE
// fails when the source holds the same key twice.
func mergeTx(ctx context.Context, tx *sql.Tx, batches []storage.RowBatch) (int64, error) {
	var total int64
	for _, b := range batches {
		rows, err := storage.DedupeLast(b.Rows, b.Columns, b.KeyColumns)
		if err != nil {
			return 0, err
		}
		for _, chunk := range storage.ChunkRows(rows, len(b.Columns), maxParams) {
			q, args := buildMergeSQL(b, chunk)
			res, err := tx.ExecContext(ctx, q, args...)
			if err != nil {
				return 0, fmt.Errorf("merge %s: %w", b.Table, err)
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

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlType maps logical types. Text is bounded so it can serve as a key.
func mssqlType(logical string) (string, error) {
	switch logical {
	case storage.TypeInteger:
		return "BIGINT", nil
	case storage.TypeReal:
		return "FLOAT", nil
	case storage.TypeText:
		return "NVARCHAR(255)", nil
	default:
		return "", fmt.Errorf("mssql: unsupported column type %q", logical)
	}
}

func objectName(table string) string {
	return "N'" + strings.ReplaceAll(table, "'", "''") + "'"
}

func buildDropTableSQL(table string) string {
	return fmt.Sprintf("IF OBJECT_ID(%s, N'U') IS NOT NULL DROP TABLE %s", objectName(table), mssqlIdent(table))
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}

	parts := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		typ, err := mssqlType(c.Type)
		if err != nil {
			return "", err
		}
		col := mssqlIdent(c.Name) + " " + typ
		if !c.IsNullable() || t.IsKey(c.Name) {
			col += " NOT NULL"
		} else {
			col += " NULL"
		}
		parts = append(parts, col)
	}
	if len(t.PrimaryKey) > 0 {
		parts = append(parts, "PRIMARY KEY ("+joinIdents(t.PrimaryKey)+")")
	}
	return fmt.Sprintf("IF OBJECT_ID(%s, N'U') IS NULL CREATE TABLE %s (%s)",
		objectName(t.Name), mssqlIdent(t.Name), strings.Join(parts, ", ")), nil
}

// buildMergeSQL builds:
//
//	MERGE INTO [t] WITH (HOLDLOCK) AS tgt
//	USING (VALUES (@p1, ...), ...) AS src ([k], [c])
//	ON tgt.[k] = src.[k]
//	WHEN MATCHED THEN UPDATE SET tgt.[c] = src.[c]
//	WHEN NOT MATCHED THEN INSERT ([k], [c]) VALUES (src.[k], src.[c]);
func buildMergeSQL(b storage.RowBatch, rows [][]any) (string, []any) {
	var sb strings.Builder
	sb.WriteString("MERGE INTO ")
	sb.WriteString(mssqlIdent(b.Table))
	sb.WriteString(" WITH (HOLDLOCK) AS tgt USING (VALUES ")

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
			sb.WriteString(fmt.Sprintf("@p%d", p))
			args = append(args, row[j])
			p++
		}
		sb.WriteString(")")
	}
	sb.WriteString(") AS src (")
	sb.WriteString(joinIdents(b.Columns))
	sb.WriteString(") ON ")
	for i, k := range b.KeyColumns {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString("tgt.")
		sb.WriteString(mssqlIdent(k))
		sb.WriteString(" = src.")
		sb.WriteString(mssqlIdent(k))
	}

	if rest := b.NonKeyColumns(); len(rest) > 0 {
		sb.WriteString(" WHEN MATCHED THEN UPDATE SET ")
		for i, c := range rest {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("tgt.")
			sb.WriteString(mssqlIdent(c))
			sb.WriteString(" = src.")
			sb.WriteString(mssqlIdent(c))
		}
	}

	sb.WriteString(" WHEN NOT MATCHED THEN INSERT (")
	sb.WriteString(joinIdents(b.Columns))
	sb.WriteString(") VALUES (")
	for i, c := range b.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("src.")
		sb.WriteString(mssqlIdent(c))
	}
	sb.WriteString(");")
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
	b.WriteString(mssqlIdent(table))

	var args []any
	for i, c := range storage.WhereColumns(where) {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		args = append(args, where[c])
		fmt.Fprintf(&b, "%s = @p%d", mssqlIdent(c), len(args))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(mssqlIdent(columns[0]))
	return b.String(), args, nil
}

func joinIdents(cols []string) string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, mssqlIdent(c))
	}
	return strings.Join(out, ", ")
}
