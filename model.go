package main

import "time"

// SourceColumn is one physical column as reported by source-engine introspection.
// UdtName carries the engine's full/user-defined type descriptor: for MySQL it
// is the complete COLUMN_TYPE string (e.g. "tinyint(1)", "enum('a','b')"), for
// PostgreSQL and SQL Server it equals or refines DataType.
type SourceColumn struct {
	Schema             string  `json:"schema"`
	Table              string  `json:"table"`
	Name               string  `json:"name"`
	OrdinalPosition    int     `json:"ordinalPosition"` // 1-based, unique within (schema, table)
	Default            *string `json:"default,omitempty"`
	Nullable           bool    `json:"nullable"`
	DataType           string  `json:"dataType"`
	UdtName            string  `json:"udtName"`
	CharMaxLen         *int64  `json:"charMaxLen,omitempty"` // -1 means unbounded/max
	NumericPrecision   *int64  `json:"numericPrecision,omitempty"`
	NumericScale       *int64  `json:"numericScale,omitempty"`
	IsIdentity         bool    `json:"isIdentity"`
	IdentityGeneration *string `json:"identityGeneration,omitempty"` // PG: ALWAYS/BY DEFAULT; MSSQL: "seed,increment"
}

// SourcePrimaryKey describes a table's primary key. Columns are ordered by the
// key's column ordinal, not by introspection order.
type SourcePrimaryKey struct {
	Schema         string   `json:"schema"`
	Table          string   `json:"table"`
	ConstraintName string   `json:"constraintName"`
	Columns        []string `json:"columns"`
}

// SourceForeignKey describes one foreign key constraint. Columns and
// ReferencedColumns have the same length and are positionally paired, both
// ordered by the key's column ordinal.
type SourceForeignKey struct {
	Schema            string   `json:"schema"`
	Table             string   `json:"table"`
	ConstraintName    string   `json:"constraintName"`
	Columns           []string `json:"columns"`
	ReferencedSchema  string   `json:"referencedSchema"`
	ReferencedTable   string   `json:"referencedTable"`
	ReferencedColumns []string `json:"referencedColumns"`
	UpdateRule        string   `json:"updateRule"` // engine-native: CASCADE, NO ACTION, ...
	DeleteRule        string   `json:"deleteRule"`
}

// SourceIndex describes a secondary index. Primary-key-backed indexes are
// excluded; they are represented by SourcePrimaryKey instead.
type SourceIndex struct {
	Schema     string `json:"schema"`
	Table      string `json:"table"`
	Name       string `json:"name"`
	Definition string `json:"definition"` // rendered index definition
	IsUnique   bool   `json:"isUnique"`
}

// SourceSequence describes a sequence. Numeric values are kept as strings to
// preserve arbitrary-precision engine-native values. OwnedByTable/OwnedByColumn
// are only populated for engines that track per-column ownership (PostgreSQL).
type SourceSequence struct {
	Schema        string  `json:"schema"`
	Name          string  `json:"name"`
	DataType      string  `json:"dataType"`
	StartValue    string  `json:"startValue"`
	Increment     string  `json:"increment"`
	OwnedByTable  *string `json:"ownedByTable,omitempty"`
	OwnedByColumn *string `json:"ownedByColumn,omitempty"`
}

// SourceTableMetadata aggregates everything introspection discovers about one
// table. Constructed once during a map operation and immutable afterward.
//
// Sequences is only populated on the first table of a schema batch for engines
// whose sequences are schema-level rather than column-owned; this mirrors the
// persisted mapping shape and is admittedly lossy when a schema holds several
// unowned sequences.
type SourceTableMetadata struct {
	Schema      string             `json:"schema"`
	Table       string             `json:"table"`
	Columns     []SourceColumn     `json:"columns"` // ordered by ordinal
	PrimaryKey  *SourcePrimaryKey  `json:"primaryKey,omitempty"`
	ForeignKeys []SourceForeignKey `json:"foreignKeys,omitempty"`
	Indexes     []SourceIndex      `json:"indexes,omitempty"`
	Sequences   []SourceSequence   `json:"sequences,omitempty"`
}

// SnowflakeColumn is a fully mapped target column. Type is already rendered
// with length/precision/scale (e.g. "VARCHAR(100)", "NUMBER(10,2)"). When
// IsIdentity is true DefaultValue is always nil; identity and explicit
// defaults are mutually exclusive in Snowflake.
type SnowflakeColumn struct {
	Name              string  `json:"name"`
	Type              string  `json:"type"`
	Nullable          bool    `json:"nullable"`
	DefaultValue      *string `json:"defaultValue,omitempty"`
	IsIdentity        bool    `json:"isIdentity"`
	IdentitySeed      int64   `json:"identitySeed,omitempty"`
	IdentityIncrement int64   `json:"identityIncrement,omitempty"`
	Comment           *string `json:"comment,omitempty"` // flags lossy/unmapped conversions
}

// SchemaInfo is a schema descriptor returned by GetSchemas.
type SchemaInfo struct {
	Name string `json:"name"`
}

// TableInfo is a table descriptor returned by GetTables.
type TableInfo struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

// Export statuses for ExportResult.
const (
	ExportStatusSuccess = "success"
	ExportStatusError   = "error"
)

// ExportResult records the outcome of exporting a single table. One failed
// table never aborts its siblings, so a batch always yields one result per
// input table.
type ExportResult struct {
	Schema     string        `json:"schema"`
	Table      string        `json:"table"`
	Status     string        `json:"status"`
	Rows       int64         `json:"rows"`
	OutputFile string        `json:"outputFile,omitempty"`
	Bytes      int64         `json:"bytes"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// MappedTable is the DDL generator's input: a table whose columns have already
// been run through the engine's type mapper.
type MappedTable struct {
	Schema      string
	Table       string
	Columns     []SnowflakeColumn
	PrimaryKey  *SourcePrimaryKey
	ForeignKeys []SourceForeignKey
}
