package main

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRowSource replays canned rows for the file writers.
type fakeRowSource struct {
	cols []string
	rows [][]any
	pos  int
	err  error
}

func (f *fakeRowSource) Columns() []string { return f.cols }
func (f *fakeRowSource) Err() error        { return f.err }
func (f *fakeRowSource) Close()            {}

func (f *fakeRowSource) Next() bool {
	if f.pos >= len(f.rows) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeRowSource) Values() ([]any, error) {
	return f.rows[f.pos-1], nil
}

func TestExportFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "public.users.parquet"), exportFilePath("out", "public", "users", FormatParquet))
	assert.Equal(t, filepath.Join("out", "shop.orders.csv"), exportFilePath("out", "shop", "orders", FormatCSV))
}

func TestWriteCSV(t *testing.T) {
	src := &fakeRowSource{
		cols: []string{"id", "name", "created"},
		rows: [][]any{
			{int64(1), "alice", time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)},
			{int64(2), []byte("bob"), nil},
		},
	}
	path := filepath.Join(t.TempDir(), "t.csv")

	count, err := writeCSV(src, path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"id", "name", "created"}, records[0])
	assert.Equal(t, []string{"1", "alice", "2024-03-01 12:30:00"}, records[1])
	assert.Equal(t, []string{"2", "bob", ""}, records[2])
}

func TestExportRowsToFileUnknownFormat(t *testing.T) {
	src := &fakeRowSource{cols: []string{"id"}}
	meta := &SourceTableMetadata{Schema: "s", Table: "t"}
	_, _, err := exportRowsToFile(src, meta, postgresTypeMapper{}, "avro", filepath.Join(t.TempDir(), "t.avro"))
	require.Error(t, err)
	assert.Equal(t, ErrCodeExport, errorCode(err))
}

func TestExportRowsToFileReportsSize(t *testing.T) {
	src := &fakeRowSource{cols: []string{"id"}, rows: [][]any{{int64(1)}}}
	meta := &SourceTableMetadata{
		Schema:  "s",
		Table:   "t",
		Columns: []SourceColumn{{Name: "id", DataType: "integer", UdtName: "int4"}},
	}
	path := filepath.Join(t.TempDir(), "sub", "t.csv")

	rows, size, err := exportRowsToFile(src, meta, postgresTypeMapper{}, FormatCSV, path)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), size)
}

func TestWriteParquet(t *testing.T) {
	meta := &SourceTableMetadata{
		Schema: "public",
		Table:  "users",
		Columns: []SourceColumn{
			{Name: "id", DataType: "integer", UdtName: "int4"},
			{Name: "name", DataType: "text", UdtName: "text"},
			{Name: "score", DataType: "numeric", UdtName: "numeric", NumericPrecision: int64Ptr(10), NumericScale: int64Ptr(2)},
			{Name: "active", DataType: "boolean", UdtName: "bool"},
		},
	}
	src := &fakeRowSource{
		cols: []string{"id", "name", "score", "active"},
		rows: [][]any{
			{int64(1), "alice", []byte("9.50"), true},
			{int64(2), "bob", nil, false},
		},
	}
	path := filepath.Join(t.TempDir(), "users.parquet")

	count, err := writeParquet(src, meta, postgresTypeMapper{}, path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestParquetFamilyFor(t *testing.T) {
	tests := []struct {
		snowflakeType string
		want          parquetFamily
	}{
		{"BOOLEAN", parquetBool},
		{"SMALLINT", parquetInt64},
		{"INTEGER", parquetInt64},
		{"BIGINT", parquetInt64},
		{"FLOAT", parquetFloat64},
		{"NUMBER(38,0)", parquetInt64},
		{"NUMBER(10,2)", parquetFloat64},
		{"BINARY(8)", parquetBytes},
		{"VARCHAR(100)", parquetString},
		{"TIMESTAMP_NTZ", parquetString},
		{"VARIANT", parquetString},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parquetFamilyFor(tt.snowflakeType), "type %s", tt.snowflakeType)
	}
}

func TestCoerceParquetValue(t *testing.T) {
	assert.Equal(t, int64(7), coerceParquetValue(int64(7), parquetInt64))
	assert.Equal(t, int64(7), coerceParquetValue([]byte("7"), parquetInt64))
	assert.Equal(t, 1.5, coerceParquetValue([]byte("1.5"), parquetFloat64))
	assert.Equal(t, true, coerceParquetValue(int64(1), parquetBool))
	assert.Equal(t, []byte("x"), coerceParquetValue("x", parquetBytes))
	assert.Equal(t, "42", coerceParquetValue(int64(42), parquetString))
	// Values that cannot fit the physical family degrade to null.
	assert.Nil(t, coerceParquetValue("not a number", parquetInt64))
	assert.Nil(t, coerceParquetValue(time.Now(), parquetBool))
}

func TestFormatExportValue(t *testing.T) {
	ts := time.Date(2024, 6, 15, 9, 0, 0, 123000000, time.UTC)
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{[]byte("y"), "y"},
		{int64(42), "42"},
		{3.14, "3.14"},
		{true, "true"},
		{false, "false"},
		{ts, "2024-06-15 09:00:00.123"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatExportValue(tt.in))
	}
}

func TestNumberScale(t *testing.T) {
	assert.Equal(t, 0, numberScale("NUMBER(38,0)"))
	assert.Equal(t, 2, numberScale("NUMBER(10,2)"))
	assert.Equal(t, 0, numberScale("NUMBER(10)"))
	assert.Equal(t, 0, numberScale("INTEGER"))
}

func TestRunTableExportsIsolatesFailures(t *testing.T) {
	tables := []*SourceTableMetadata{
		{Schema: "s", Table: "a"},
		{Schema: "s", Table: "b"},
		{Schema: "s", Table: "c"},
	}
	opts := ExportOptions{Format: FormatCSV, OutputDir: t.TempDir()}

	var progress []string
	results := runTableExports(context.Background(), tables, opts, func(name string, index, total int) {
		progress = append(progress, name)
		assert.Equal(t, 3, total)
	}, func(ctx context.Context, tm *SourceTableMetadata, path string) (int64, int64, error) {
		if tm.Table == "b" {
			return 0, 0, errors.New("boom")
		}
		return 10, 100, nil
	})

	require.Len(t, results, 3)
	assert.Equal(t, []string{"s.a", "s.b", "s.c"}, progress)

	assert.Equal(t, ExportStatusSuccess, results[0].Status)
	assert.Equal(t, int64(10), results[0].Rows)
	assert.NotEmpty(t, results[0].OutputFile)

	assert.Equal(t, ExportStatusError, results[1].Status)
	assert.Equal(t, int64(0), results[1].Rows)
	assert.Equal(t, "boom", results[1].Error)
	assert.Empty(t, results[1].OutputFile)

	assert.Equal(t, ExportStatusSuccess, results[2].Status)
}
