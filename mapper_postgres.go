package main

import (
	"fmt"
	"strings"
)

// postgresTypeMapper maps PostgreSQL column types to Snowflake.
type postgresTypeMapper struct{}

// pgScalarTypes is the literal lookup table for types that map 1:1 without
// length/precision parameters.
var pgScalarTypes = map[string]string{
	"smallint":                    "SMALLINT",
	"int2":                        "SMALLINT",
	"integer":                     "INTEGER",
	"int":                         "INTEGER",
	"int4":                        "INTEGER",
	"bigint":                      "BIGINT",
	"int8":                        "BIGINT",
	"serial":                      "INTEGER",
	"bigserial":                   "BIGINT",
	"smallserial":                 "SMALLINT",
	"real":                        "FLOAT",
	"float4":                      "FLOAT",
	"double precision":            "FLOAT",
	"float8":                      "FLOAT",
	"boolean":                     "BOOLEAN",
	"bool":                        "BOOLEAN",
	"date":                        "DATE",
	"time":                        "TIME",
	"time without time zone":      "TIME",
	"time with time zone":         "TIME",
	"timetz":                      "TIME",
	"timestamp":                   "TIMESTAMP_NTZ",
	"timestamp without time zone": "TIMESTAMP_NTZ",
	"timestamp with time zone":    "TIMESTAMP_TZ",
	"timestamptz":                 "TIMESTAMP_TZ",
	"json":                        "VARIANT",
	"jsonb":                       "VARIANT",
	"uuid":                        "VARCHAR(36)",
	"money":                       "NUMBER(19,4)",
	"xml":                         "VARCHAR",
	"inet":                        "VARCHAR(43)",
	"cidr":                        "VARCHAR(43)",
	"macaddr":                     "VARCHAR(17)",
	"macaddr8":                    "VARCHAR(23)",
	"point":                       "VARCHAR",
	"line":                        "VARCHAR",
	"lseg":                        "VARCHAR",
	"box":                         "VARCHAR",
	"path":                        "VARCHAR",
	"polygon":                     "VARCHAR",
	"circle":                      "VARCHAR",
	"bit":                         "VARCHAR",
	"bit varying":                 "VARCHAR",
	"varbit":                      "VARCHAR",
	"tsvector":                    "VARCHAR",
	"tsquery":                     "VARCHAR",
}

func (postgresTypeMapper) MapColumn(col SourceColumn) SnowflakeColumn {
	identity := pgIsIdentity(col)

	out := pgResolveType(col)
	out.Name = col.Name
	out.Nullable = col.Nullable

	if identity {
		out.IsIdentity = true
		out.IdentitySeed = 1
		out.IdentityIncrement = 1
		// Sequence start/increment is not parsed from the default, only
		// presence is tracked. The default never survives an identity column.
		out.DefaultValue = nil
		return out
	}

	if col.Default != nil {
		if rendered := pgTranslateDefault(*col.Default); rendered != "" {
			out.DefaultValue = strPtr(rendered)
		}
	}
	return out
}

// pgIsIdentity treats both declared identity columns and serial-style
// nextval() defaults as engine-generated.
func pgIsIdentity(col SourceColumn) bool {
	if col.IsIdentity {
		return true
	}
	return col.Default != nil && strings.Contains(strings.ToLower(*col.Default), "nextval(")
}

func pgResolveType(col SourceColumn) SnowflakeColumn {
	dataType := strings.ToLower(strings.TrimSpace(col.DataType))
	udt := strings.ToLower(strings.TrimSpace(col.UdtName))

	// Array types carry a leading underscore on the udt name.
	if strings.HasPrefix(udt, "_") {
		base := strings.TrimPrefix(udt, "_")
		comment := fmt.Sprintf("array of %s", base)
		if _, ok := pgScalarTypes[base]; !ok && !pgIsParameterizedFamily(base) {
			comment += "; base type has no direct Snowflake mapping"
		}
		return SnowflakeColumn{Type: "ARRAY", Comment: strPtr(comment)}
	}

	switch dataType {
	case "numeric", "decimal":
		return SnowflakeColumn{Type: renderNumber(col.NumericPrecision, col.NumericScale, 38, 0)}
	case "character varying", "varchar", "text", "citext", "name":
		return SnowflakeColumn{Type: renderSized("VARCHAR", col.CharMaxLen)}
	case "character", "char", "bpchar":
		return SnowflakeColumn{Type: renderFixed("CHAR", col.CharMaxLen)}
	case "bytea":
		return SnowflakeColumn{Type: renderSized("BINARY", col.CharMaxLen)}
	}

	if t, ok := pgScalarTypes[dataType]; ok {
		return SnowflakeColumn{Type: t}
	}
	if t, ok := pgScalarTypes[udt]; ok {
		return SnowflakeColumn{Type: t}
	}

	switch dataType {
	case "user-defined":
		return SnowflakeColumn{
			Type:    "VARCHAR",
			Comment: strPtr(fmt.Sprintf("user-defined type %q has no direct Snowflake equivalent", col.UdtName)),
		}
	case "interval":
		return SnowflakeColumn{
			Type:    "VARCHAR",
			Comment: strPtr("interval has no direct Snowflake equivalent"),
		}
	}

	sourceType := dataType
	if sourceType == "" {
		sourceType = udt
	}
	return fallbackColumn(col, sourceType)
}

func pgIsParameterizedFamily(t string) bool {
	switch t {
	case "numeric", "decimal", "varchar", "character varying", "text",
		"char", "character", "bpchar", "bytea":
		return true
	}
	return false
}

var pgNowAliases = []string{
	"now()", "current_timestamp", "current_timestamp()",
	"transaction_timestamp()", "statement_timestamp()",
	"clock_timestamp()", "localtimestamp", "localtimestamp()",
}

// pgTranslateDefault rewrites a PostgreSQL default expression into Snowflake
// syntax. Returns "" when the default must be suppressed.
func pgTranslateDefault(raw string) string {
	expr := strings.TrimSpace(raw)
	if expr == "" {
		return ""
	}

	// Guard: sequence defaults are identity-detected upstream, but never let
	// one leak through as a literal.
	if strings.Contains(strings.ToLower(expr), "nextval(") {
		return ""
	}

	// Strip the explicit cast Postgres appends to literal defaults, e.g.
	// 'active'::character varying.
	expr = pgStripCast(expr)

	if ts, ok := normalizeCurrentTimestamp(expr, pgNowAliases); ok {
		return ts
	}

	switch strings.ToLower(expr) {
	case "true":
		return "TRUE"
	case "false":
		return "FALSE"
	case "null":
		return ""
	}

	return expr
}

// pgStripCast truncates a default expression at the first "::" cast marker
// outside a quoted literal. A "::" inside the literal itself ('a::b'::text)
// is part of the value and must survive. Doubled quotes are the literal's
// escape form, so plain toggling tracks them correctly.
func pgStripCast(expr string) string {
	inQuote := false
	for i := 0; i+1 < len(expr); i++ {
		switch {
		case expr[i] == '\'':
			inQuote = !inQuote
		case !inQuote && expr[i] == ':' && expr[i+1] == ':':
			return strings.TrimSpace(expr[:i])
		}
	}
	return expr
}
