package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// RowSet is the fully materialised result of one statement.
type RowSet struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (rs *RowSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Row returns the i-th row. It panics if i is out of range, like slice indexing.
func (rs *RowSet) Row(i int) Row {
	return Row{columns: rs.Columns, values: rs.Rows[i]}
}

// Row gives typed access to one result row by column name.
// Drivers differ in how they surface TEXT and BOOLEAN columns, so the
// accessors accept every representation pgx and go-sqlite3 produce.
type Row struct {
	columns []string
	values  []any
}

// Value returns the raw value of column, or nil if the column is absent.
func (r Row) Value(column string) any {
	for i, c := range r.columns {
		if c == column {
			return r.values[i]
		}
	}
	return nil
}

// String returns column as a string. NULL yields "".
func (r Row) String(column string) (string, error) {
	switch v := r.Value(column).(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), nil
	default:
		return "", fmt.Errorf("column %q: unexpected type %T", column, v)
	}
}

// Bool returns column as a bool. NULL yields false.
func (r Row) Bool(column string) (bool, error) {
	switch v := r.Value(column).(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case []byte:
		return strconv.ParseBool(string(v))
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("column %q: unexpected type %T", column, v)
	}
}

// Int64 returns column as an int64. NULL yields 0.
func (r Row) Int64(column string) (int64, error) {
	switch v := r.Value(column).(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("column %q: unexpected type %T", column, v)
	}
}

// collectRows drains rows into a RowSet.
func collectRows(rows *sql.Rows) (*RowSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	rs := &RowSet{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}
