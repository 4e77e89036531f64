package main

import (
	"context"
	"sync"
	"time"
)

// connectTimeout bounds connection establishment. Data export deliberately
// has no deadline; large tables take as long as they take.
const connectTimeout = 10 * time.Second

// ConnectionConfig identifies a source database. Password is plaintext and
// in-memory only; it is never persisted in this form.
type ConnectionConfig struct {
	Engine   Engine
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSL      bool

	// SQL Server only; absent for the other engines.
	InstanceName           string
	TrustServerCertificate bool
}

// Export file formats.
const (
	FormatParquet = "parquet"
	FormatCSV     = "csv"
)

// ExportOptions selects the output format and directory for a table export.
type ExportOptions struct {
	Format    string `json:"format"`
	OutputDir string `json:"outputDir"`
}

// ProgressFunc is invoked synchronously before each table's export begins.
type ProgressFunc func(displayName string, index, total int)

// SourceAdapter is the uniform capability surface over one source engine.
// An adapter owns at most one live connection; it is not safe to run two
// operations that share that connection concurrently from separate
// goroutines.
type SourceAdapter interface {
	Engine() Engine

	// Connect establishes the adapter's connection. Calling it again before
	// Disconnect replaces the stored connection.
	Connect(ctx context.Context, cfg ConnectionConfig) error

	// Disconnect is idempotent; with no active connection it is a no-op.
	Disconnect() error

	// TestConnection opens an independent short-lived connection, runs a
	// liveness query and closes it. It never fails hard: any problem reports
	// as false.
	TestConnection(ctx context.Context, cfg ConnectionConfig) bool

	// GetSchemas lists the selectable schemas. Engines without a schema
	// concept distinct from "database" return one synthetic schema named
	// after the connected database.
	GetSchemas(ctx context.Context) ([]SchemaInfo, error)

	// GetTables lists base tables only; views are excluded.
	GetTables(ctx context.Context, schema string) ([]TableInfo, error)

	// IntrospectTable assembles the full metadata for one table. The four
	// catalog sub-fetches (columns, primary key, foreign keys, indexes) run
	// concurrently.
	IntrospectTable(ctx context.Context, schema, table string) (*SourceTableMetadata, error)

	// IntrospectSchema introspects every named table and fetches schema-level
	// sequences where the engine has them, attaching unowned sequences to the
	// first table of the batch.
	IntrospectSchema(ctx context.Context, schema string, tables []string) ([]*SourceTableMetadata, error)

	// MapColumnToSnowflake delegates to the engine's TypeMapper. Pure and
	// side-effect-free regardless of adapter state.
	MapColumnToSnowflake(col SourceColumn) SnowflakeColumn

	// ExportTables exports each table sequentially, in input order. One
	// table's failure yields an error ExportResult and never aborts the
	// siblings; the result list always matches the input length.
	ExportTables(ctx context.Context, tables []*SourceTableMetadata, opts ExportOptions, onProgress ProgressFunc) []ExportResult
}

// errNotConnected reports use of an adapter before Connect.
var errNotConnected = connectionError("adapter is not connected", nil)

// tableExportFunc streams one table's rows into an output file and reports
// row count plus on-disk size.
type tableExportFunc func(ctx context.Context, table *SourceTableMetadata, path string) (rows, bytes int64, err error)

// runTableExports is the shared sequential export loop behind every adapter's
// ExportTables: progress callback, timing, output naming, and per-table
// failure isolation.
func runTableExports(ctx context.Context, tables []*SourceTableMetadata, opts ExportOptions, onProgress ProgressFunc, export tableExportFunc) []ExportResult {
	results := make([]ExportResult, 0, len(tables))
	for i, t := range tables {
		if onProgress != nil {
			onProgress(t.Schema+"."+t.Table, i, len(tables))
		}

		path := exportFilePath(opts.OutputDir, t.Schema, t.Table, opts.Format)
		start := time.Now()
		rows, size, err := export(ctx, t, path)
		res := ExportResult{
			Schema:     t.Schema,
			Table:      t.Table,
			Duration:   time.Since(start),
			OutputFile: path,
		}
		if err != nil {
			res.Status = ExportStatusError
			res.Rows = 0
			res.Error = err.Error()
			res.OutputFile = ""
		} else {
			res.Status = ExportStatusSuccess
			res.Rows = rows
			res.Bytes = size
		}
		results = append(results, res)
	}
	return results
}

// introspectParts runs the four per-table catalog sub-fetches concurrently
// and assembles the result once all have resolved. The fetches populate
// disjoint fields, so completion order is irrelevant.
func introspectParts(
	ctx context.Context,
	schema, table string,
	fetchColumns func(context.Context) ([]SourceColumn, error),
	fetchPK func(context.Context) (*SourcePrimaryKey, error),
	fetchFKs func(context.Context) ([]SourceForeignKey, error),
	fetchIndexes func(context.Context) ([]SourceIndex, error),
) (*SourceTableMetadata, error) {
	meta := &SourceTableMetadata{Schema: schema, Table: table}
	errs := make([]error, 4)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		meta.Columns, errs[0] = fetchColumns(ctx)
	}()
	go func() {
		defer wg.Done()
		meta.PrimaryKey, errs[1] = fetchPK(ctx)
	}()
	go func() {
		defer wg.Done()
		meta.ForeignKeys, errs[2] = fetchFKs(ctx)
	}()
	go func() {
		defer wg.Done()
		meta.Indexes, errs[3] = fetchIndexes(ctx)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return meta, nil
}

// introspectBatch introspects every named table concurrently, preserving
// input order in the returned slice.
func introspectBatch(ctx context.Context, schema string, tables []string, one func(context.Context, string, string) (*SourceTableMetadata, error)) ([]*SourceTableMetadata, error) {
	metas := make([]*SourceTableMetadata, len(tables))
	errs := make([]error, len(tables))

	var wg sync.WaitGroup
	for i, name := range tables {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			metas[i], errs[i] = one(ctx, schema, name)
		}(i, name)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return metas, nil
}

// attachSequences places owned sequences on their owning table and everything
// else on the first table of the batch. Engines without per-column ownership
// metadata land entirely on the first table.
func attachSequences(metas []*SourceTableMetadata, sequences []SourceSequence) {
	if len(metas) == 0 || len(sequences) == 0 {
		return
	}
	byTable := make(map[string]*SourceTableMetadata, len(metas))
	for _, m := range metas {
		byTable[m.Table] = m
	}
	for _, seq := range sequences {
		if seq.OwnedByTable != nil {
			if m, ok := byTable[*seq.OwnedByTable]; ok {
				m.Sequences = append(m.Sequences, seq)
				continue
			}
		}
		metas[0].Sequences = append(metas[0].Sequences, seq)
	}
}
