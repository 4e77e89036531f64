package main

import "strings"

// mssqlTypeMapper maps SQL Server column types to Snowflake.
type mssqlTypeMapper struct{}

var mssqlScalarTypes = map[string]string{
	"tinyint":          "SMALLINT",
	"smallint":         "SMALLINT",
	"int":              "INTEGER",
	"bigint":           "BIGINT",
	"bit":              "BOOLEAN",
	"float":            "FLOAT",
	"real":             "FLOAT",
	"money":            "NUMBER(19,4)",
	"smallmoney":       "NUMBER(10,4)",
	"date":             "DATE",
	"datetime":         "TIMESTAMP_NTZ",
	"datetime2":        "TIMESTAMP_NTZ",
	"smalldatetime":    "TIMESTAMP_NTZ",
	"datetimeoffset":   "TIMESTAMP_TZ",
	"time":             "TIME",
	"text":             "VARCHAR",
	"ntext":            "VARCHAR",
	"xml":              "VARCHAR",
	"uniqueidentifier": "VARCHAR(36)",
	"sql_variant":      "VARIANT",
	// rowversion is a row-versioning token, not a temporal value.
	"timestamp":   "BINARY(8)",
	"rowversion":  "BINARY(8)",
	"hierarchyid": "VARCHAR",
	"geometry":    "VARCHAR",
	"geography":   "VARCHAR",
	"image":       "BINARY",
}

func (mssqlTypeMapper) MapColumn(col SourceColumn) SnowflakeColumn {
	out := mssqlResolveType(col)
	out.Name = col.Name
	out.Nullable = col.Nullable

	if col.IsIdentity {
		seed, increment := parseSeedIncrement(col.IdentityGeneration)
		out.IsIdentity = true
		out.IdentitySeed = seed
		out.IdentityIncrement = increment
		out.DefaultValue = nil
		return out
	}

	if col.Default != nil {
		if rendered := mssqlTranslateDefault(*col.Default, out.Type); rendered != "" {
			out.DefaultValue = strPtr(rendered)
		}
	}
	return out
}

func mssqlResolveType(col SourceColumn) SnowflakeColumn {
	dataType := strings.ToLower(strings.TrimSpace(col.DataType))

	switch dataType {
	case "decimal", "numeric":
		return SnowflakeColumn{Type: renderNumber(col.NumericPrecision, col.NumericScale, 18, 0)}
	case "varchar", "nvarchar":
		return SnowflakeColumn{Type: renderSized("VARCHAR", col.CharMaxLen)}
	case "char", "nchar":
		return SnowflakeColumn{Type: renderFixed("CHAR", col.CharMaxLen)}
	case "binary":
		return SnowflakeColumn{Type: renderFixed("BINARY", col.CharMaxLen)}
	case "varbinary":
		return SnowflakeColumn{Type: renderSized("BINARY", col.CharMaxLen)}
	}

	if t, ok := mssqlScalarTypes[dataType]; ok {
		return SnowflakeColumn{Type: t}
	}

	return fallbackColumn(col, dataType)
}

var mssqlNowAliases = []string{
	"getdate()", "getutcdate()", "sysdatetime()", "sysutcdatetime()",
	"sysdatetimeoffset()", "current_timestamp",
}

// mssqlTranslateDefault rewrites a SQL Server default into Snowflake syntax.
// SQL Server wraps literal defaults in one or two layers of parentheses,
// which are peeled before any other rewrite.
func mssqlTranslateDefault(raw, targetType string) string {
	expr := peelParens(strings.TrimSpace(raw))
	if expr == "" || strings.EqualFold(expr, "null") {
		return ""
	}

	if ts, ok := normalizeCurrentTimestamp(expr, mssqlNowAliases); ok {
		return ts
	}

	// N'...' unicode literal prefix has no Snowflake counterpart.
	if strings.HasPrefix(expr, "N'") {
		expr = expr[1:]
	}

	if targetType == "BOOLEAN" {
		switch strings.Trim(expr, "'") {
		case "0":
			return "FALSE"
		case "1":
			return "TRUE"
		}
		return ""
	}

	return expr
}

// peelParens removes up to two enclosing balanced parenthesis layers.
func peelParens(expr string) string {
	for layer := 0; layer < 2; layer++ {
		if len(expr) < 2 || expr[0] != '(' || expr[len(expr)-1] != ')' {
			return expr
		}
		inner := expr[1 : len(expr)-1]
		// Only peel when the outer pair actually matches, e.g. not for
		// "(a),(b)".
		depth := 0
		balanced := true
		for i := 0; i < len(inner); i++ {
			switch inner[i] {
			case '(':
				depth++
			case ')':
				depth--
				if depth < 0 {
					balanced = false
				}
			}
		}
		if !balanced || depth != 0 {
			return expr
		}
		expr = strings.TrimSpace(inner)
	}
	return expr
}
