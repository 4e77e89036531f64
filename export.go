package main

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
)

// exportFilePath names one table's output file: <schema>.<table>.<format>.
func exportFilePath(dir, schema, table, format string) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%s.%s", schema, table, format))
}

// rowSource abstracts a streaming row cursor so the file writers work the
// same over database/sql and pgx.
type rowSource interface {
	Columns() []string
	Next() bool
	Values() ([]any, error)
	Err() error
	Close()
}

// sqlRowSource wraps *sql.Rows (MySQL, SQL Server read paths).
type sqlRowSource struct {
	rows *sql.Rows
	cols []string
}

func newSQLRowSource(rows *sql.Rows) (*sqlRowSource, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	return &sqlRowSource{rows: rows, cols: cols}, nil
}

func (s *sqlRowSource) Columns() []string { return s.cols }
func (s *sqlRowSource) Next() bool        { return s.rows.Next() }
func (s *sqlRowSource) Err() error        { return s.rows.Err() }
func (s *sqlRowSource) Close()            { s.rows.Close() }

func (s *sqlRowSource) Values() ([]any, error) {
	vals := make([]any, len(s.cols))
	ptrs := make([]any, len(s.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := s.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return vals, nil
}

// exportRowsToFile drains src into path in the requested format and returns
// the row count and on-disk size.
func exportRowsToFile(src rowSource, table *SourceTableMetadata, mapper TypeMapper, format, path string) (int64, int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, 0, exportError("create output directory", err)
	}

	var (
		rows int64
		err  error
	)
	switch format {
	case FormatCSV:
		rows, err = writeCSV(src, path)
	case FormatParquet:
		rows, err = writeParquet(src, table, mapper, path)
	default:
		return 0, 0, exportError(fmt.Sprintf("unsupported export format %q", format), nil)
	}
	if err != nil {
		os.Remove(path)
		return 0, 0, err
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		return rows, 0, exportError("stat output file", statErr)
	}
	return rows, info.Size(), nil
}

// writeCSV writes a delimited text file with a header row.
func writeCSV(src rowSource, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, exportError("create output file", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(src.Columns()); err != nil {
		return 0, exportError("write header", err)
	}

	var count int64
	record := make([]string, len(src.Columns()))
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return count, exportError("read row", err)
		}
		for i, v := range vals {
			record[i] = formatExportValue(v)
		}
		if err := w.Write(record); err != nil {
			return count, exportError("write row", err)
		}
		count++
	}
	if err := src.Err(); err != nil {
		return count, exportError("iterate rows", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return count, exportError("flush output", err)
	}
	return count, f.Close()
}

// parquet physical families derived from the mapped Snowflake type.
type parquetFamily int

const (
	parquetString parquetFamily = iota
	parquetInt64
	parquetFloat64
	parquetBool
	parquetBytes
)

// writeParquet writes a Snappy-compressed Parquet file whose schema is
// derived from the table's mapped Snowflake column types.
func writeParquet(src rowSource, table *SourceTableMetadata, mapper TypeMapper, path string) (int64, error) {
	families := make(map[string]parquetFamily, len(table.Columns))
	group := parquet.Group{}
	for _, col := range table.Columns {
		fam := parquetFamilyFor(mapper.MapColumn(col).Type)
		families[col.Name] = fam
		group[col.Name] = parquet.Optional(parquetNodeFor(fam))
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, exportError("create output file", err)
	}
	defer f.Close()

	schema := parquet.NewSchema(table.Table, group)
	writer := parquet.NewGenericWriter[map[string]any](f, schema, parquet.Compression(&parquet.Snappy))

	var count int64
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return count, exportError("read row", err)
		}
		row := make(map[string]any, len(vals))
		for i, name := range src.Columns() {
			if vals[i] == nil {
				continue
			}
			fam, ok := families[name]
			if !ok {
				fam = parquetString
			}
			if cv := coerceParquetValue(vals[i], fam); cv != nil {
				row[name] = cv
			}
		}
		if _, err := writer.Write([]map[string]any{row}); err != nil {
			return count, exportError("write row", err)
		}
		count++
	}
	if err := src.Err(); err != nil {
		return count, exportError("iterate rows", err)
	}

	if err := writer.Close(); err != nil {
		return count, exportError("finalize parquet file", err)
	}
	return count, f.Close()
}

func parquetNodeFor(fam parquetFamily) parquet.Node {
	switch fam {
	case parquetInt64:
		return parquet.Int(64)
	case parquetFloat64:
		return parquet.Leaf(parquet.DoubleType)
	case parquetBool:
		return parquet.Leaf(parquet.BooleanType)
	case parquetBytes:
		return parquet.Leaf(parquet.ByteArrayType)
	default:
		return parquet.String()
	}
}

func parquetFamilyFor(snowflakeType string) parquetFamily {
	t := strings.ToUpper(snowflakeType)
	switch {
	case t == "BOOLEAN":
		return parquetBool
	case t == "SMALLINT" || t == "INTEGER" || t == "BIGINT":
		return parquetInt64
	case t == "FLOAT":
		return parquetFloat64
	case strings.HasPrefix(t, "NUMBER"):
		if numberScale(t) > 0 {
			return parquetFloat64
		}
		return parquetInt64
	case strings.HasPrefix(t, "BINARY"):
		return parquetBytes
	default:
		return parquetString
	}
}

// numberScale extracts S from NUMBER(P,S); 0 when absent.
func numberScale(t string) int {
	open := strings.IndexByte(t, '(')
	comma := strings.IndexByte(t, ',')
	close := strings.IndexByte(t, ')')
	if open < 0 || comma < 0 || close < comma {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(t[comma+1 : close]))
	if err != nil {
		return 0
	}
	return n
}

func coerceParquetValue(v any, fam parquetFamily) any {
	switch fam {
	case parquetInt64:
		switch x := v.(type) {
		case int64:
			return x
		case int32:
			return int64(x)
		case int:
			return int64(x)
		case []byte:
			if n, err := strconv.ParseInt(string(x), 10, 64); err == nil {
				return n
			}
		case string:
			if n, err := strconv.ParseInt(x, 10, 64); err == nil {
				return n
			}
		}
	case parquetFloat64:
		switch x := v.(type) {
		case float64:
			return x
		case float32:
			return float64(x)
		case int64:
			return float64(x)
		case []byte:
			if f, err := strconv.ParseFloat(string(x), 64); err == nil {
				return f
			}
		case string:
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return f
			}
		}
	case parquetBool:
		switch x := v.(type) {
		case bool:
			return x
		case int64:
			return x != 0
		case []byte:
			return string(x) == "1" || strings.EqualFold(string(x), "true")
		}
	case parquetBytes:
		switch x := v.(type) {
		case []byte:
			return x
		case string:
			return []byte(x)
		}
	case parquetString:
		return formatExportValue(v)
	}
	// Driver value does not fit the column's physical family; a null beats a
	// schema violation mid-file.
	return nil
}

// formatExportValue renders a driver value as text. Row values pass through
// unchanged beyond this textual rendering.
func formatExportValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case time.Time:
		return x.UTC().Format("2006-01-02 15:04:05.999999999")
	default:
		return fmt.Sprint(v)
	}
}
