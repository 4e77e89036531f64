package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ddlFixture() []MappedTable {
	return []MappedTable{
		{
			Schema: "public",
			Table:  "users",
			Columns: []SnowflakeColumn{
				{Name: "id", Type: "INTEGER", IsIdentity: true, IdentitySeed: 1, IdentityIncrement: 1},
				{Name: "email", Type: "VARCHAR(100)", Nullable: false},
				{Name: "status", Type: "VARCHAR(20)", Nullable: false, DefaultValue: strPtr("'active'")},
				{Name: "bio", Type: "VARCHAR", Nullable: true, Comment: strPtr("no direct Snowflake mapping for source type \"citext\"")},
			},
			PrimaryKey: &SourcePrimaryKey{ConstraintName: "users_pkey", Columns: []string{"id"}},
		},
		{
			Schema: "billing",
			Table:  "invoices",
			Columns: []SnowflakeColumn{
				{Name: "id", Type: "BIGINT", IsIdentity: true, IdentitySeed: 1000, IdentityIncrement: 10},
				{Name: "user_id", Type: "INTEGER", Nullable: false},
				{Name: "total", Type: "NUMBER(10,2)", Nullable: false},
			},
			PrimaryKey: &SourcePrimaryKey{ConstraintName: "invoices_pkey", Columns: []string{"id"}},
			ForeignKeys: []SourceForeignKey{
				{
					ConstraintName:    "invoices_user_id_fkey",
					Columns:           []string{"user_id"},
					ReferencedSchema:  "public",
					ReferencedTable:   "users",
					ReferencedColumns: []string{"id"},
				},
			},
		},
	}
}

func TestGenerateDDL(t *testing.T) {
	result, err := generateDDL(ddlFixture())
	require.NoError(t, err)

	assert.Equal(t, 2, result.SchemaCount)
	assert.Equal(t, 2, result.TableCount)
	assert.Equal(t, 1, result.ForeignKeyCount)

	sql := result.SQL
	assert.Contains(t, sql, `CREATE SCHEMA IF NOT EXISTS "public";`)
	assert.Contains(t, sql, `CREATE SCHEMA IF NOT EXISTS "billing";`)
	assert.Contains(t, sql, `CREATE TABLE IF NOT EXISTS "public"."users" (`)
	assert.Contains(t, sql, `"id" INTEGER AUTOINCREMENT(1, 1) NOT NULL`)
	assert.Contains(t, sql, `"id" BIGINT AUTOINCREMENT(1000, 10) NOT NULL`)
	assert.Contains(t, sql, `"status" VARCHAR(20) DEFAULT 'active' NOT NULL`)
	assert.Contains(t, sql, `"bio" VARCHAR COMMENT 'no direct Snowflake mapping for source type "citext"'`)
	assert.Contains(t, sql, `CONSTRAINT "users_pkey" PRIMARY KEY ("id")`)
	assert.Contains(t, sql, `ALTER TABLE "billing"."invoices" ADD CONSTRAINT "invoices_user_id_fkey" FOREIGN KEY ("user_id") REFERENCES "public"."users" ("id");`)

	// Schemas render in first-seen order, before any table.
	publicIdx := strings.Index(sql, `CREATE SCHEMA IF NOT EXISTS "public";`)
	billingIdx := strings.Index(sql, `CREATE SCHEMA IF NOT EXISTS "billing";`)
	firstTableIdx := strings.Index(sql, "CREATE TABLE")
	assert.Less(t, publicIdx, billingIdx)
	assert.Less(t, billingIdx, firstTableIdx)

	// Foreign keys trail every table definition.
	fkIdx := strings.Index(sql, "ALTER TABLE")
	lastTableIdx := strings.LastIndex(sql, "CREATE TABLE")
	assert.Greater(t, fkIdx, lastTableIdx)
}

func TestGenerateDDLIsDeterministic(t *testing.T) {
	first, err := generateDDL(ddlFixture())
	require.NoError(t, err)
	second, err := generateDDL(ddlFixture())
	require.NoError(t, err)
	assert.Equal(t, first.SQL, second.SQL)
}

func TestGenerateDDLIdentityNeverRendersDefault(t *testing.T) {
	tables := []MappedTable{{
		Schema: "public",
		Table:  "t",
		Columns: []SnowflakeColumn{
			{Name: "id", Type: "INTEGER", IsIdentity: true, IdentitySeed: 1, IdentityIncrement: 1, DefaultValue: strPtr("42")},
		},
	}}
	result, err := generateDDL(tables)
	require.NoError(t, err)
	assert.NotContains(t, result.SQL, "DEFAULT")
	assert.Contains(t, result.SQL, "AUTOINCREMENT(1, 1)")
}

func TestGenerateDDLEmptyInput(t *testing.T) {
	_, err := generateDDL(nil)
	require.Error(t, err)
	assert.Equal(t, ErrCodeDDL, errorCode(err))
}

func TestGenerateDDLRejectsColumnlessTable(t *testing.T) {
	_, err := generateDDL([]MappedTable{{Schema: "s", Table: "empty"}})
	require.Error(t, err)
	assert.Equal(t, ErrCodeDDL, errorCode(err))
}

func TestGenerateDDLEscapesQuotedIdentifiers(t *testing.T) {
	tables := []MappedTable{{
		Schema:  "odd",
		Table:   `we"ird`,
		Columns: []SnowflakeColumn{{Name: "c", Type: "INTEGER"}},
	}}
	result, err := generateDDL(tables)
	require.NoError(t, err)
	assert.Contains(t, result.SQL, `"we""ird"`)
}
