package main

import (
	"fmt"
	"strings"
)

// DDLResult is a generated Snowflake DDL script plus the object counts the
// summary output reports.
type DDLResult struct {
	SQL             string
	SchemaCount     int
	TableCount      int
	ForeignKeyCount int
}

// generateDDL renders Snowflake DDL for the mapped tables: one CREATE SCHEMA
// per distinct schema in first-seen order, one CREATE TABLE per table in input
// order, then every foreign key as a trailing ALTER TABLE. The output is a
// pure function of the input; the same tables always render byte-identical
// scripts.
func generateDDL(tables []MappedTable) (*DDLResult, error) {
	if len(tables) == 0 {
		return nil, ddlError("no tables to generate DDL for", nil)
	}

	var b strings.Builder
	b.WriteString("-- Snowflake DDL generated by snowferry\n")
	b.WriteString("-- Note: Snowflake enforces NOT NULL only; primary and foreign key\n")
	b.WriteString("-- constraints below are declarative metadata.\n\n")

	var schemas []string
	seen := make(map[string]bool)
	for _, t := range tables {
		if !seen[t.Schema] {
			seen[t.Schema] = true
			schemas = append(schemas, t.Schema)
		}
	}
	for _, s := range schemas {
		fmt.Fprintf(&b, "CREATE SCHEMA IF NOT EXISTS %s;\n", quoteSnowflakeIdent(s))
	}
	b.WriteString("\n")

	fkCount := 0
	for _, t := range tables {
		if len(t.Columns) == 0 {
			return nil, ddlError(fmt.Sprintf("table %s.%s has no columns", t.Schema, t.Table), nil)
		}
		writeCreateTable(&b, t)
		b.WriteString("\n")
		fkCount += len(t.ForeignKeys)
	}

	if fkCount > 0 {
		b.WriteString("-- Foreign key constraints\n")
		for _, t := range tables {
			for _, fk := range t.ForeignKeys {
				writeForeignKey(&b, t, fk)
			}
		}
	}

	return &DDLResult{
		SQL:             b.String(),
		SchemaCount:     len(schemas),
		TableCount:      len(tables),
		ForeignKeyCount: fkCount,
	}, nil
}

func writeCreateTable(b *strings.Builder, t MappedTable) {
	fmt.Fprintf(b, "CREATE TABLE IF NOT EXISTS %s (\n", qualifiedName(t.Schema, t.Table))

	lines := make([]string, 0, len(t.Columns)+1)
	for _, col := range t.Columns {
		lines = append(lines, "    "+renderColumn(col))
	}
	if t.PrimaryKey != nil && len(t.PrimaryKey.Columns) > 0 {
		quoted := make([]string, len(t.PrimaryKey.Columns))
		for i, c := range t.PrimaryKey.Columns {
			quoted[i] = quoteSnowflakeIdent(c)
		}
		lines = append(lines, fmt.Sprintf("    CONSTRAINT %s PRIMARY KEY (%s)",
			quoteSnowflakeIdent(t.PrimaryKey.ConstraintName), strings.Join(quoted, ", ")))
	}
	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n);\n")
}

func renderColumn(col SnowflakeColumn) string {
	var parts []string
	parts = append(parts, quoteSnowflakeIdent(col.Name), col.Type)
	if col.IsIdentity {
		parts = append(parts, fmt.Sprintf("AUTOINCREMENT(%d, %d)", col.IdentitySeed, col.IdentityIncrement))
	} else if col.DefaultValue != nil {
		parts = append(parts, "DEFAULT "+*col.DefaultValue)
	}
	if !col.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if col.Comment != nil {
		parts = append(parts, "COMMENT "+singleQuote(*col.Comment))
	}
	return strings.Join(parts, " ")
}

func writeForeignKey(b *strings.Builder, t MappedTable, fk SourceForeignKey) {
	cols := make([]string, len(fk.Columns))
	for i, c := range fk.Columns {
		cols[i] = quoteSnowflakeIdent(c)
	}
	refCols := make([]string, len(fk.ReferencedColumns))
	for i, c := range fk.ReferencedColumns {
		refCols[i] = quoteSnowflakeIdent(c)
	}
	refSchema := fk.ReferencedSchema
	if refSchema == "" {
		refSchema = t.Schema
	}
	fmt.Fprintf(b, "ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s);\n",
		qualifiedName(t.Schema, t.Table),
		quoteSnowflakeIdent(fk.ConstraintName),
		strings.Join(cols, ", "),
		qualifiedName(refSchema, fk.ReferencedTable),
		strings.Join(refCols, ", "))
}

func qualifiedName(schema, table string) string {
	return quoteSnowflakeIdent(schema) + "." + quoteSnowflakeIdent(table)
}

// quoteSnowflakeIdent double-quotes an identifier, preserving the source's
// exact casing.
func quoteSnowflakeIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
