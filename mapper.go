package main

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeMapper translates one engine's column type system into Snowflake's.
// Implementations are pure and total: mapping never fails, the worst case is a
// textual fallback type plus an explanatory comment.
type TypeMapper interface {
	MapColumn(col SourceColumn) SnowflakeColumn
}

// unboundedLen is the conventional sentinel for varchar(max)/nvarchar(max)
// and unbounded text columns.
const unboundedLen = -1

func strPtr(s string) *string { return &s }

func int64Ptr(n int64) *int64 { return &n }

// renderNumber renders a precision/scale-parameterized NUMBER. Scale is only
// meaningful alongside precision; with neither declared the engine-specific
// default pair applies.
func renderNumber(precision, scale *int64, defPrecision, defScale int64) string {
	switch {
	case precision != nil && scale != nil:
		return fmt.Sprintf("NUMBER(%d,%d)", *precision, *scale)
	case precision != nil:
		return fmt.Sprintf("NUMBER(%d)", *precision)
	default:
		return fmt.Sprintf("NUMBER(%d,%d)", defPrecision, defScale)
	}
}

// renderSized renders a length-parameterized type. The unbounded sentinel and
// a missing length both collapse to the bare type name.
func renderSized(base string, length *int64) string {
	if length == nil || *length == unboundedLen {
		return base
	}
	return fmt.Sprintf("%s(%d)", base, *length)
}

// renderFixed is renderSized for fixed-width types, defaulting to length 1
// when the engine declared none.
func renderFixed(base string, length *int64) string {
	if length == nil {
		return fmt.Sprintf("%s(1)", base)
	}
	if *length == unboundedLen {
		return base
	}
	return fmt.Sprintf("%s(%d)", base, *length)
}

// fallbackColumn is the terminal rule of every mapper: an unparameterized
// textual type plus a comment naming the unmapped source type.
func fallbackColumn(col SourceColumn, sourceType string) SnowflakeColumn {
	return SnowflakeColumn{
		Name:     col.Name,
		Type:     "VARCHAR",
		Nullable: col.Nullable,
		Comment:  strPtr(fmt.Sprintf("no direct Snowflake mapping for source type %q", sourceType)),
	}
}

// normalizeCurrentTimestamp collapses an engine's now-producing function calls
// to the one canonical Snowflake form. The match set is engine-specific.
func normalizeCurrentTimestamp(raw string, aliases []string) (string, bool) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	for _, a := range aliases {
		if trimmed == a {
			return "CURRENT_TIMESTAMP()", true
		}
	}
	return "", false
}

// parseSeedIncrement decodes the SQL Server "seed,increment" identity
// descriptor, defaulting to 1,1 when absent or malformed.
func parseSeedIncrement(generation *string) (seed, increment int64) {
	seed, increment = 1, 1
	if generation == nil {
		return
	}
	parts := strings.SplitN(*generation, ",", 2)
	if len(parts) != 2 {
		return
	}
	s, err1 := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	i, err2 := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err1 != nil || err2 != nil {
		return 1, 1
	}
	return s, i
}

// singleQuote wraps a bare literal in single quotes, escaping embedded quotes.
func singleQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func isSingleQuoted(v string) bool {
	return len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\''
}
