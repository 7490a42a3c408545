package export

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	_ "github.com/mattn/go-sqlite3"
)

// Column types of the SQLite artifact.
const (
	TypeInteger = "INTEGER"
	TypeText    = "TEXT"
	TypeReal    = "REAL"
)

// Column is one declared column of the SQLite artifact.
type Column struct {
	Name string
	Type string
}

// Table is the fixed schema of the SQLite artifact. Result columns are
// matched to it by name; the query's own projection order does not matter.
type Table struct {
	Name    string
	Columns []Column
}

// DefaultTable is the updated_items table the downstream importer reads.
var DefaultTable = Table{
	Name: "updated_items",
	Columns: []Column{
		{Name: "エコールコード", Type: TypeInteger},
		{Name: "商品名", Type: TypeText},
		{Name: "品番", Type: TypeText},
		{Name: "分類コード", Type: TypeText},
		{Name: "単位", Type: TypeText},
		{Name: "表示定価", Type: TypeReal},
		{Name: "商品メーカー名", Type: TypeText},
	},
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (t Table) createSQL() string {
	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		defs[i] = quoteIdent(c.Name) + " " + c.Type
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(t.Name), strings.Join(defs, ", "))
}

func (t Table) insertSQL() string {
	names := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = quoteIdent(c.Name)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(t.Name), strings.Join(names, ", "), strings.Join(marks, ", "))
}

// columnIndex maps every table column to its position in the result set.
func (t Table) columnIndex(resultCols []string) ([]int, error) {
	pos := make(map[string]int, len(resultCols))
	for i, c := range resultCols {
		pos[c] = i
	}
	idx := make([]int, len(t.Columns))
	var missing []string
	for i, c := range t.Columns {
		p, ok := pos[c.Name]
		if !ok {
			missing = append(missing, c.Name)
			continue
		}
		idx[i] = p
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("query result lacks column(s) %s required by table %s", strings.Join(missing, ", "), t.Name)
	}
	return idx, nil
}

// writeSQLite creates the table in a new database file at path and inserts
// one bound row per result row inside a single transaction.
func writeSQLite(ctx context.Context, path string, table Table, rows Rows) (int, error) {
	idx, err := table.columnIndex(rows.Columns())
	if err != nil {
		return 0, err
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return 0, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, table.createSQL()); err != nil {
		return 0, fmt.Errorf("cannot create table %s: %w", table.Name, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, table.insertSQL())
	if err != nil {
		return 0, fmt.Errorf("cannot prepare insert: %w", err)
	}
	defer stmt.Close()

	count := 0
	args := make([]any, len(table.Columns))
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return count, fmt.Errorf("cannot read row %d: %w", count+1, err)
		}
		for i, c := range table.Columns {
			if args[i], err = coerce(vals[idx[i]], c.Type); err != nil {
				return count, fmt.Errorf("row %d, column %s: %w", count+1, c.Name, err)
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return count, fmt.Errorf("cannot insert row %d: %w", count+1, err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("cannot read rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return count, fmt.Errorf("cannot commit: %w", err)
	}
	return count, nil
}

// coerce converts a driver value to the declared column type.
// NULL stays NULL for INTEGER and REAL and becomes "" for TEXT.
func coerce(v any, typ string) (any, error) {
	switch typ {
	case TypeInteger:
		return toInt64(v)
	case TypeReal:
		return toFloat64(v)
	default:
		return CellText(v), nil
	}
}

func toInt64(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case int64:
		return val, nil
	case int32:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case float64:
		if val != math.Trunc(val) {
			return nil, fmt.Errorf("%v is not an integer", val)
		}
		// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive.
		if val < math.MinInt64 || val >= math.MaxInt64 {
			return nil, fmt.Errorf("%v is out of the integer range", val)
		}
		return int64(val), nil
	case float32:
		return toInt64(float64(val))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", val)
		}
		return n, nil
	case pgtype.Numeric:
		if !val.Valid {
			return nil, nil
		}
		n, err := val.Int64Value()
		if err != nil {
			return nil, err
		}
		return n.Int64, nil
	case driver.Valuer:
		dv, err := val.Value()
		if err != nil {
			return nil, err
		}
		if _, again := dv.(driver.Valuer); again {
			return nil, fmt.Errorf("cannot convert %T to INTEGER", v)
		}
		return toInt64(dv)
	default:
		return nil, fmt.Errorf("cannot convert %T to INTEGER", v)
	}
}

func toFloat64(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", val)
		}
		return f, nil
	case pgtype.Numeric:
		if !val.Valid {
			return nil, nil
		}
		f, err := val.Float64Value()
		if err != nil {
			return nil, err
		}
		return f.Float64, nil
	case driver.Valuer:
		dv, err := val.Value()
		if err != nil {
			return nil, err
		}
		if _, again := dv.(driver.Valuer); again {
			return nil, fmt.Errorf("cannot convert %T to REAL", v)
		}
		return toFloat64(dv)
	default:
		return nil, fmt.Errorf("cannot convert %T to REAL", v)
	}
}
