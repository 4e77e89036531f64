package main

import (
	"fmt"
	"strings"
)

// mysqlTypeMapper maps MySQL column types to Snowflake. The UdtName of a
// MySQL SourceColumn is the full COLUMN_TYPE string ("tinyint(1)",
// "enum('a','b')", "int unsigned").
type mysqlTypeMapper struct{}

var mysqlScalarTypes = map[string]string{
	"smallint":           "SMALLINT",
	"mediumint":          "INTEGER",
	"int":                "INTEGER",
	"integer":            "INTEGER",
	"bigint":             "BIGINT",
	"float":              "FLOAT",
	"double":             "FLOAT",
	"real":               "FLOAT",
	"date":               "DATE",
	"datetime":           "TIMESTAMP_NTZ",
	"timestamp":          "TIMESTAMP_NTZ",
	"time":               "TIME",
	"year":               "SMALLINT",
	"json":               "VARIANT",
	"bit":                "BINARY",
	"geometry":           "VARCHAR",
	"point":              "VARCHAR",
	"linestring":         "VARCHAR",
	"polygon":            "VARCHAR",
	"multipoint":         "VARCHAR",
	"multilinestring":    "VARCHAR",
	"multipolygon":       "VARCHAR",
	"geometrycollection": "VARCHAR",
}

func (mysqlTypeMapper) MapColumn(col SourceColumn) SnowflakeColumn {
	out := mysqlResolveType(col)
	out.Name = col.Name
	out.Nullable = col.Nullable

	// MySQL auto-increment is boolean-only; the start value is not
	// introspected, so seed/increment are always reported as 1/1.
	if col.IsIdentity {
		out.IsIdentity = true
		out.IdentitySeed = 1
		out.IdentityIncrement = 1
		out.DefaultValue = nil
		return out
	}

	if col.Default != nil {
		if rendered := mysqlTranslateDefault(*col.Default, out.Type); rendered != "" {
			out.DefaultValue = strPtr(rendered)
		}
	}
	return out
}

func mysqlResolveType(col SourceColumn) SnowflakeColumn {
	dataType := strings.ToLower(strings.TrimSpace(col.DataType))
	columnType := strings.ToLower(strings.TrimSpace(col.UdtName))

	switch dataType {
	case "decimal", "numeric":
		return SnowflakeColumn{Type: renderNumber(col.NumericPrecision, col.NumericScale, 10, 0)}

	case "tinyint":
		// Long-standing client convention: tinyint(1) is a boolean. Any other
		// declared width is an ordinary small integer.
		if mysqlIsTinyInt1(col, columnType) {
			return SnowflakeColumn{Type: "BOOLEAN"}
		}
		return SnowflakeColumn{Type: "SMALLINT"}

	case "varchar":
		return SnowflakeColumn{Type: renderSized("VARCHAR", col.CharMaxLen)}
	case "tinytext", "text", "mediumtext", "longtext":
		return SnowflakeColumn{Type: "VARCHAR"}
	case "char":
		return SnowflakeColumn{Type: renderFixed("CHAR", col.CharMaxLen)}
	case "binary":
		return SnowflakeColumn{Type: renderFixed("BINARY", col.CharMaxLen)}
	case "varbinary":
		return SnowflakeColumn{Type: renderSized("BINARY", col.CharMaxLen)}
	case "tinyblob", "blob", "mediumblob", "longblob":
		return SnowflakeColumn{Type: "BINARY"}

	case "enum", "set":
		return SnowflakeColumn{
			Type:    "VARCHAR",
			Comment: strPtr(fmt.Sprintf("source type %s", col.UdtName)),
		}
	}

	if t, ok := mysqlScalarTypes[dataType]; ok {
		return SnowflakeColumn{Type: t}
	}

	return fallbackColumn(col, dataType)
}

// mysqlIsTinyInt1 matches "tinyint(1)" literally, or the structural proxy
// MySQL 8 reports when display widths are gone: precision 3, scale 0, no
// declared character length.
func mysqlIsTinyInt1(col SourceColumn, columnType string) bool {
	if columnType == "tinyint(1)" || strings.HasPrefix(columnType, "tinyint(1) ") {
		return true
	}
	if strings.Contains(columnType, "(") {
		return false
	}
	return col.CharMaxLen == nil &&
		col.NumericPrecision != nil && *col.NumericPrecision == 3 &&
		col.NumericScale != nil && *col.NumericScale == 0
}

var mysqlNowAliases = []string{
	"current_timestamp", "current_timestamp()", "now()",
	"localtime", "localtime()", "localtimestamp", "localtimestamp()",
}

// mysqlTranslateDefault rewrites a MySQL default into Snowflake syntax.
// Returns "" when the default must be suppressed.
func mysqlTranslateDefault(raw, targetType string) string {
	expr := strings.TrimSpace(raw)
	if expr == "" || strings.EqualFold(expr, "null") {
		return ""
	}

	if ts, ok := normalizeCurrentTimestamp(expr, mysqlNowAliases); ok {
		return ts
	}

	if targetType == "BOOLEAN" {
		switch strings.Trim(expr, "'") {
		case "0", "false", "FALSE":
			return "FALSE"
		case "1", "true", "TRUE":
			return "TRUE"
		}
		return ""
	}

	// INFORMATION_SCHEMA reports string defaults without quoting; textual
	// targets need a real literal.
	if !isSingleQuoted(expr) && isTextualType(targetType) {
		return singleQuote(expr)
	}
	return expr
}

func isTextualType(t string) bool {
	return t == "VARCHAR" || strings.HasPrefix(t, "VARCHAR(") ||
		t == "CHAR" || strings.HasPrefix(t, "CHAR(")
}
