package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // sqlserver driver
)

// mssqlAdapter implements SourceAdapter over database/sql with the
// go-mssqldb driver.
type mssqlAdapter struct {
	db *sql.DB
}

func (a *mssqlAdapter) Engine() Engine { return EngineMSSQL }

func mssqlDSN(cfg ConnectionConfig) string {
	q := url.Values{}
	q.Set("database", cfg.Database)
	q.Set("dial timeout", "10")
	if cfg.SSL {
		q.Set("encrypt", "true")
	} else {
		q.Set("encrypt", "disable")
	}
	if cfg.TrustServerCertificate {
		q.Set("TrustServerCertificate", "true")
	}
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		RawQuery: q.Encode(),
	}
	// A named instance rides in the URL path.
	if cfg.InstanceName != "" {
		u.Path = cfg.InstanceName
	}
	return u.String()
}

func mssqlOpen(cfg ConnectionConfig) (*sql.DB, error) {
	return sql.Open("sqlserver", mssqlDSN(cfg))
}

func (a *mssqlAdapter) Connect(ctx context.Context, cfg ConnectionConfig) error {
	db, err := mssqlOpen(cfg)
	if err != nil {
		return connectionError("open SQL Server connection", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return connectionError(fmt.Sprintf("ping SQL Server at %s:%d", cfg.Host, cfg.Port), err)
	}

	if a.db != nil {
		a.db.Close()
	}
	a.db = db
	return nil
}

func (a *mssqlAdapter) Disconnect() error {
	if a.db != nil {
		err := a.db.Close()
		a.db = nil
		return err
	}
	return nil
}

func (a *mssqlAdapter) TestConnection(ctx context.Context, cfg ConnectionConfig) bool {
	db, err := mssqlOpen(cfg)
	if err != nil {
		return false
	}
	defer db.Close()

	testCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	var one int
	return db.QueryRowContext(testCtx, "SELECT 1").Scan(&one) == nil
}

func (a *mssqlAdapter) GetSchemas(ctx context.Context) ([]SchemaInfo, error) {
	if a.db == nil {
		return nil, errNotConnected
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT name FROM sys.schemas
		WHERE schema_id < 16384
		  AND name NOT IN ('sys', 'guest', 'INFORMATION_SCHEMA')
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	defer rows.Close()

	var schemas []SchemaInfo
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		schemas = append(schemas, SchemaInfo{Name: name})
	}
	return schemas, rows.Err()
}

func (a *mssqlAdapter) GetTables(ctx context.Context, schema string) ([]TableInfo, error) {
	if a.db == nil {
		return nil, errNotConnected
	}
	// sys.tables holds base tables only; views live in sys.views.
	rows, err := a.db.QueryContext(ctx, `
		SELECT t.name
		FROM sys.tables t
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		WHERE s.name = @p1
		ORDER BY t.name`, schema)
	if err != nil {
		return nil, fmt.Errorf("list tables in %s: %w", schema, err)
	}
	defer rows.Close()

	var tables []TableInfo
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, TableInfo{Schema: schema, Name: name})
	}
	return tables, rows.Err()
}

func (a *mssqlAdapter) IntrospectTable(ctx context.Context, schema, table string) (*SourceTableMetadata, error) {
	if a.db == nil {
		return nil, errNotConnected
	}
	return introspectParts(ctx, schema, table,
		func(ctx context.Context) ([]SourceColumn, error) { return a.fetchColumns(ctx, schema, table) },
		func(ctx context.Context) (*SourcePrimaryKey, error) { return a.fetchPrimaryKey(ctx, schema, table) },
		func(ctx context.Context) ([]SourceForeignKey, error) { return a.fetchForeignKeys(ctx, schema, table) },
		func(ctx context.Context) ([]SourceIndex, error) { return a.fetchIndexes(ctx, schema, table) },
	)
}

func (a *mssqlAdapter) IntrospectSchema(ctx context.Context, schema string, tables []string) ([]*SourceTableMetadata, error) {
	var (
		sequences []SourceSequence
		seqErr    error
		done      = make(chan struct{})
	)
	go func() {
		defer close(done)
		sequences, seqErr = a.fetchSequences(ctx, schema)
	}()

	metas, err := introspectBatch(ctx, schema, tables, a.IntrospectTable)
	<-done
	if err != nil {
		return nil, err
	}
	if seqErr != nil {
		return nil, seqErr
	}

	// SQL Server sequences are schema-level with no column ownership; the
	// whole list lands on the first table of the batch.
	attachSequences(metas, sequences)
	return metas, nil
}

func (a *mssqlAdapter) MapColumnToSnowflake(col SourceColumn) SnowflakeColumn {
	return mssqlTypeMapper{}.MapColumn(col)
}

func (a *mssqlAdapter) fetchColumns(ctx context.Context, schema, table string) ([]SourceColumn, error) {
	// nchar/nvarchar report max_length in bytes; halve to characters.
	// max_length -1 is the (max) sentinel and passes through unchanged.
	rows, err := a.db.QueryContext(ctx, `
		SELECT c.name, c.column_id,
		       OBJECT_DEFINITION(c.default_object_id) AS default_definition,
		       c.is_nullable, ty.name AS type_name,
		       CASE WHEN ty.name IN ('nvarchar', 'nchar') AND c.max_length > 0
		            THEN c.max_length / 2 ELSE c.max_length END AS char_len,
		       c.precision, c.scale, c.is_identity,
		       CASE WHEN ic.object_id IS NOT NULL
		            THEN CONVERT(varchar(40), ic.seed_value) + ',' + CONVERT(varchar(40), ic.increment_value)
		       END AS identity_generation
		FROM sys.columns c
		JOIN sys.tables t ON t.object_id = c.object_id
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		JOIN sys.types ty ON ty.user_type_id = c.user_type_id
		LEFT JOIN sys.identity_columns ic
		  ON ic.object_id = c.object_id AND ic.column_id = c.column_id
		WHERE s.name = @p1 AND t.name = @p2
		ORDER BY c.column_id`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("introspect columns for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var cols []SourceColumn
	ordinal := 0
	for rows.Next() {
		var (
			c        SourceColumn
			columnID int
			charLen  *int64
		)
		if err := rows.Scan(
			&c.Name, &columnID, &c.Default, &c.Nullable,
			&c.DataType, &charLen,
			&c.NumericPrecision, &c.NumericScale, &c.IsIdentity, &c.IdentityGeneration,
		); err != nil {
			return nil, err
		}
		ordinal++
		c.Schema = schema
		c.Table = table
		c.OrdinalPosition = ordinal
		c.DataType = strings.ToLower(c.DataType)
		c.UdtName = c.DataType
		if isMSSQLSizedType(c.DataType) {
			c.CharMaxLen = charLen
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// isMSSQLSizedType limits the character-length field to the families where
// sys.columns.max_length means a declared length, not a storage size.
func isMSSQLSizedType(t string) bool {
	switch t {
	case "char", "nchar", "varchar", "nvarchar", "binary", "varbinary":
		return true
	}
	return false
}

func (a *mssqlAdapter) fetchPrimaryKey(ctx context.Context, schema, table string) (*SourcePrimaryKey, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT kc.name, col.name
		FROM sys.key_constraints kc
		JOIN sys.tables t ON t.object_id = kc.parent_object_id
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		JOIN sys.index_columns ic
		  ON ic.object_id = kc.parent_object_id AND ic.index_id = kc.unique_index_id
		JOIN sys.columns col
		  ON col.object_id = ic.object_id AND col.column_id = ic.column_id
		WHERE kc.type = 'PK' AND s.name = @p1 AND t.name = @p2
		ORDER BY ic.key_ordinal`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("introspect primary key for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var pk *SourcePrimaryKey
	for rows.Next() {
		var name, col string
		if err := rows.Scan(&name, &col); err != nil {
			return nil, err
		}
		if pk == nil {
			pk = &SourcePrimaryKey{Schema: schema, Table: table, ConstraintName: name}
		}
		pk.Columns = append(pk.Columns, col)
	}
	return pk, rows.Err()
}

func (a *mssqlAdapter) fetchForeignKeys(ctx context.Context, schema, table string) ([]SourceForeignKey, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT fk.name, pc.name,
		       rs.name, rt.name, rc.name,
		       fk.update_referential_action_desc, fk.delete_referential_action_desc
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
		JOIN sys.columns pc
		  ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
		JOIN sys.columns rc
		  ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
		JOIN sys.tables pt ON pt.object_id = fk.parent_object_id
		JOIN sys.schemas ps ON ps.schema_id = pt.schema_id
		JOIN sys.tables rt ON rt.object_id = fk.referenced_object_id
		JOIN sys.schemas rs ON rs.schema_id = rt.schema_id
		WHERE ps.name = @p1 AND pt.name = @p2
		ORDER BY fk.name, fkc.constraint_column_id`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("introspect foreign keys for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	fkMap := make(map[string]*SourceForeignKey)
	var order []string
	for rows.Next() {
		var name, col, refSchema, refTable, refCol, updateRule, deleteRule string
		if err := rows.Scan(&name, &col, &refSchema, &refTable, &refCol, &updateRule, &deleteRule); err != nil {
			return nil, err
		}
		fk, ok := fkMap[name]
		if !ok {
			fk = &SourceForeignKey{
				Schema:           schema,
				Table:            table,
				ConstraintName:   name,
				ReferencedSchema: refSchema,
				ReferencedTable:  refTable,
				// The catalog reports NO_ACTION/SET_NULL style descriptors.
				UpdateRule: strings.ReplaceAll(updateRule, "_", " "),
				DeleteRule: strings.ReplaceAll(deleteRule, "_", " "),
			}
			fkMap[name] = fk
			order = append(order, name)
		}
		fk.Columns = append(fk.Columns, col)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refCol)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var fks []SourceForeignKey
	for _, name := range order {
		fks = append(fks, *fkMap[name])
	}
	return fks, nil
}

func (a *mssqlAdapter) fetchIndexes(ctx context.Context, schema, table string) ([]SourceIndex, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT i.name, i.is_unique, col.name, ic.is_descending_key
		FROM sys.indexes i
		JOIN sys.tables t ON t.object_id = i.object_id
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		JOIN sys.index_columns ic
		  ON ic.object_id = i.object_id AND ic.index_id = i.index_id
		JOIN sys.columns col
		  ON col.object_id = ic.object_id AND col.column_id = ic.column_id
		WHERE s.name = @p1 AND t.name = @p2
		  AND i.is_primary_key = 0 AND i.is_hypothetical = 0 AND i.type > 0
		  AND ic.is_included_column = 0
		ORDER BY i.name, ic.key_ordinal`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("introspect indexes for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	type idxBuild struct {
		unique bool
		cols   []string
	}
	builds := make(map[string]*idxBuild)
	var order []string
	for rows.Next() {
		var (
			name       string
			unique     bool
			col        string
			descending bool
		)
		if err := rows.Scan(&name, &unique, &col, &descending); err != nil {
			return nil, err
		}
		b, ok := builds[name]
		if !ok {
			b = &idxBuild{unique: unique}
			builds[name] = b
			order = append(order, name)
		}
		rendered := mssqlQuoteIdent(col)
		if descending {
			rendered += " DESC"
		}
		b.cols = append(b.cols, rendered)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var indexes []SourceIndex
	for _, name := range order {
		b := builds[name]
		def := "CREATE "
		if b.unique {
			def += "UNIQUE "
		}
		def += fmt.Sprintf("INDEX %s ON %s.%s (%s)",
			mssqlQuoteIdent(name), mssqlQuoteIdent(schema), mssqlQuoteIdent(table),
			strings.Join(b.cols, ", "))
		indexes = append(indexes, SourceIndex{
			Schema:     schema,
			Table:      table,
			Name:       name,
			Definition: def,
			IsUnique:   b.unique,
		})
	}
	return indexes, nil
}

func (a *mssqlAdapter) fetchSequences(ctx context.Context, schema string) ([]SourceSequence, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT seq.name, ty.name,
		       CONVERT(varchar(40), seq.start_value),
		       CONVERT(varchar(40), seq.increment)
		FROM sys.sequences seq
		JOIN sys.schemas s ON s.schema_id = seq.schema_id
		JOIN sys.types ty ON ty.user_type_id = seq.user_type_id
		WHERE s.name = @p1
		ORDER BY seq.name`, schema)
	if err != nil {
		return nil, fmt.Errorf("introspect sequences for %s: %w", schema, err)
	}
	defer rows.Close()

	var seqs []SourceSequence
	for rows.Next() {
		var seq SourceSequence
		if err := rows.Scan(&seq.Name, &seq.DataType, &seq.StartValue, &seq.Increment); err != nil {
			return nil, err
		}
		seq.Schema = schema
		seqs = append(seqs, seq)
	}
	return seqs, rows.Err()
}

func (a *mssqlAdapter) ExportTables(ctx context.Context, tables []*SourceTableMetadata, opts ExportOptions, onProgress ProgressFunc) []ExportResult {
	return runTableExports(ctx, tables, opts, onProgress, func(ctx context.Context, t *SourceTableMetadata, path string) (int64, int64, error) {
		if a.db == nil {
			return 0, 0, errNotConnected
		}
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = mssqlQuoteIdent(c.Name)
		}
		query := fmt.Sprintf("SELECT %s FROM %s.%s",
			strings.Join(cols, ", "), mssqlQuoteIdent(t.Schema), mssqlQuoteIdent(t.Table))
		rows, err := a.db.QueryContext(ctx, query)
		if err != nil {
			return 0, 0, exportError(fmt.Sprintf("read %s.%s", t.Schema, t.Table), err)
		}
		src, err := newSQLRowSource(rows)
		if err != nil {
			rows.Close()
			return 0, 0, exportError("read result columns", err)
		}
		defer src.Close()
		return exportRowsToFile(src, t, mssqlTypeMapper{}, opts.Format, path)
	})
}

func mssqlQuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
