package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMSSQLMapColumn(t *testing.T) {
	tests := []struct {
		name string
		col  SourceColumn
		want SnowflakeColumn
	}{
		{
			name: "identity with explicit seed and increment",
			col: SourceColumn{
				Name: "id", DataType: "int", UdtName: "int",
				IsIdentity: true, IdentityGeneration: strPtr("100,5"),
			},
			want: SnowflakeColumn{
				Name: "id", Type: "INTEGER",
				IsIdentity: true, IdentitySeed: 100, IdentityIncrement: 5,
			},
		},
		{
			name: "identity without descriptor defaults to one-one",
			col: SourceColumn{
				Name: "id", DataType: "bigint", UdtName: "bigint", IsIdentity: true,
			},
			want: SnowflakeColumn{
				Name: "id", Type: "BIGINT",
				IsIdentity: true, IdentitySeed: 1, IdentityIncrement: 1,
			},
		},
		{
			name: "decimal with precision and scale",
			col:  SourceColumn{Name: "price", DataType: "decimal", UdtName: "decimal", NumericPrecision: int64Ptr(10), NumericScale: int64Ptr(2)},
			want: SnowflakeColumn{Name: "price", Type: "NUMBER(10,2)"},
		},
		{
			name: "decimal without parameters gets the default pair",
			col:  SourceColumn{Name: "amount", DataType: "decimal", UdtName: "decimal"},
			want: SnowflakeColumn{Name: "amount", Type: "NUMBER(18,0)"},
		},
		{
			name: "nvarchar with length",
			col:  SourceColumn{Name: "title", DataType: "nvarchar", UdtName: "nvarchar", CharMaxLen: int64Ptr(50), Nullable: true},
			want: SnowflakeColumn{Name: "title", Type: "VARCHAR(50)", Nullable: true},
		},
		{
			name: "nvarchar(max) drops the length",
			col:  SourceColumn{Name: "body", DataType: "nvarchar", UdtName: "nvarchar", CharMaxLen: int64Ptr(-1), Nullable: true},
			want: SnowflakeColumn{Name: "body", Type: "VARCHAR", Nullable: true},
		},
		{
			name: "bit is boolean",
			col:  SourceColumn{Name: "active", DataType: "bit", UdtName: "bit"},
			want: SnowflakeColumn{Name: "active", Type: "BOOLEAN"},
		},
		{
			name: "money keeps four decimal places",
			col:  SourceColumn{Name: "total", DataType: "money", UdtName: "money"},
			want: SnowflakeColumn{Name: "total", Type: "NUMBER(19,4)"},
		},
		{
			name: "uniqueidentifier",
			col:  SourceColumn{Name: "ref", DataType: "uniqueidentifier", UdtName: "uniqueidentifier"},
			want: SnowflakeColumn{Name: "ref", Type: "VARCHAR(36)"},
		},
		{
			name: "rowversion is a binary token",
			col:  SourceColumn{Name: "rv", DataType: "rowversion", UdtName: "rowversion"},
			want: SnowflakeColumn{Name: "rv", Type: "BINARY(8)"},
		},
		{
			name: "datetimeoffset keeps the zone",
			col:  SourceColumn{Name: "at", DataType: "datetimeoffset", UdtName: "datetimeoffset"},
			want: SnowflakeColumn{Name: "at", Type: "TIMESTAMP_TZ"},
		},
		{
			name: "varbinary with length",
			col:  SourceColumn{Name: "hash", DataType: "varbinary", UdtName: "varbinary", CharMaxLen: int64Ptr(32)},
			want: SnowflakeColumn{Name: "hash", Type: "BINARY(32)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mssqlTypeMapper{}.MapColumn(tt.col)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMSSQLMapColumnNeverPanics(t *testing.T) {
	got := mssqlTypeMapper{}.MapColumn(SourceColumn{Name: "x", DataType: "gizmo", UdtName: "gizmo"})
	assert.Equal(t, "VARCHAR", got.Type)
	require.NotNil(t, got.Comment)
	assert.Contains(t, *got.Comment, "no direct Snowflake mapping")
}

func TestMSSQLTranslateDefault(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		targetType string
		want       string
	}{
		{"double wrapped getdate", "(getdate())", "TIMESTAMP_NTZ", "CURRENT_TIMESTAMP()"},
		{"sysdatetime", "(sysdatetime())", "TIMESTAMP_NTZ", "CURRENT_TIMESTAMP()"},
		{"double wrapped number", "((0))", "INTEGER", "0"},
		{"unicode literal loses prefix", "(N'pending')", "VARCHAR(20)", "'pending'"},
		{"plain literal", "('x')", "VARCHAR(10)", "'x'"},
		{"bit one", "((1))", "BOOLEAN", "TRUE"},
		{"bit zero", "((0))", "BOOLEAN", "FALSE"},
		{"null suppressed", "(NULL)", "VARCHAR", ""},
		{"unbalanced parens untouched", "(a),(b)", "VARCHAR", "(a),(b)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mssqlTranslateDefault(tt.raw, tt.targetType))
		})
	}
}

func TestParseSeedIncrement(t *testing.T) {
	tests := []struct {
		name    string
		in      *string
		seed    int64
		incr    int64
	}{
		{"nil descriptor", nil, 1, 1},
		{"standard", strPtr("1,1"), 1, 1},
		{"custom", strPtr("1000,10"), 1000, 10},
		{"spaces tolerated", strPtr(" 5 , 2 "), 5, 2},
		{"malformed", strPtr("banana"), 1, 1},
		{"half malformed", strPtr("5,banana"), 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seed, incr := parseSeedIncrement(tt.in)
			assert.Equal(t, tt.seed, seed)
			assert.Equal(t, tt.incr, incr)
		})
	}
}

func TestPeelParens(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"((1))", "1"},
		{"(getdate())", "getdate()"},
		{"(((1)))", "(1)"}, // only two layers come off
		{"(a),(b)", "(a),(b)"},
		{"1", "1"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, peelParens(tt.in), "input %q", tt.in)
	}
}
