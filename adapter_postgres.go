package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresAdapter implements SourceAdapter over pgx. A small pool (rather
// than one conn) backs the concurrent catalog sub-fetches; whether a single
// connection pipelines concurrent queries is a driver property this code
// does not rely on.
type postgresAdapter struct {
	pool *pgxpool.Pool
}

func (a *postgresAdapter) Engine() Engine { return EnginePostgres }

// postgresConnString builds a conn string valid for both pgxpool and plain
// pgx.Connect; pool-only options must not appear here, they would be sent to
// the server as startup parameters and rejected.
func postgresConnString(cfg ConnectionConfig) string {
	sslmode := "disable"
	if cfg.SSL {
		sslmode = "require"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=10",
		url.QueryEscape(cfg.User), url.QueryEscape(cfg.Password),
		cfg.Host, cfg.Port, url.PathEscape(cfg.Database), sslmode,
	)
}

// postgresPoolConfig sizes the pool for the concurrent catalog sub-fetches.
func postgresPoolConfig(cfg ConnectionConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(postgresConnString(cfg))
	if err != nil {
		return nil, err
	}
	pc.MaxConns = 4
	return pc, nil
}

func (a *postgresAdapter) Connect(ctx context.Context, cfg ConnectionConfig) error {
	pc, err := postgresPoolConfig(cfg)
	if err != nil {
		return connectionError("connect to PostgreSQL", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return connectionError("connect to PostgreSQL", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return connectionError(fmt.Sprintf("ping PostgreSQL at %s:%d", cfg.Host, cfg.Port), err)
	}

	if a.pool != nil {
		a.pool.Close()
	}
	a.pool = pool
	return nil
}

func (a *postgresAdapter) Disconnect() error {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return nil
}

func (a *postgresAdapter) TestConnection(ctx context.Context, cfg ConnectionConfig) bool {
	testCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, err := pgx.Connect(testCtx, postgresConnString(cfg))
	if err != nil {
		return false
	}
	defer conn.Close(context.Background())

	var one int
	return conn.QueryRow(testCtx, "SELECT 1").Scan(&one) == nil
}

func (a *postgresAdapter) GetSchemas(ctx context.Context) ([]SchemaInfo, error) {
	if a.pool == nil {
		return nil, errNotConnected
	}
	rows, err := a.pool.Query(ctx, `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('information_schema')
		  AND schema_name NOT LIKE 'pg\_%'
		ORDER BY schema_name`)
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

func (a *postgresAdapter) GetTables(ctx context.Context, schema string) ([]TableInfo, error) {
	if a.pool == nil {
		return nil, errNotConnected
	}
	rows, err := a.pool.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`, schema)
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

func (a *postgresAdapter) IntrospectTable(ctx context.Context, schema, table string) (*SourceTableMetadata, error) {
	if a.pool == nil {
		return nil, errNotConnected
	}
	return introspectParts(ctx, schema, table,
		func(ctx context.Context) ([]SourceColumn, error) { return a.fetchColumns(ctx, schema, table) },
		func(ctx context.Context) (*SourcePrimaryKey, error) { return a.fetchPrimaryKey(ctx, schema, table) },
		func(ctx context.Context) ([]SourceForeignKey, error) { return a.fetchForeignKeys(ctx, schema, table) },
		func(ctx context.Context) ([]SourceIndex, error) { return a.fetchIndexes(ctx, schema, table) },
	)
}

func (a *postgresAdapter) IntrospectSchema(ctx context.Context, schema string, tables []string) ([]*SourceTableMetadata, error) {
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

	attachSequences(metas, sequences)
	return metas, nil
}

func (a *postgresAdapter) MapColumnToSnowflake(col SourceColumn) SnowflakeColumn {
	return postgresTypeMapper{}.MapColumn(col)
}

func (a *postgresAdapter) fetchColumns(ctx context.Context, schema, table string) ([]SourceColumn, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT column_name, ordinal_position, column_default, is_nullable,
		       data_type, udt_name, character_maximum_length,
		       numeric_precision, numeric_scale, is_identity, identity_generation
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("introspect columns for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var cols []SourceColumn
	for rows.Next() {
		var (
			c                  SourceColumn
			nullable, identity string
		)
		if err := rows.Scan(
			&c.Name, &c.OrdinalPosition, &c.Default, &nullable,
			&c.DataType, &c.UdtName, &c.CharMaxLen,
			&c.NumericPrecision, &c.NumericScale, &identity, &c.IdentityGeneration,
		); err != nil {
			return nil, err
		}
		c.Schema = schema
		c.Table = table
		c.Nullable = nullable == "YES"
		c.IsIdentity = identity == "YES"
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (a *postgresAdapter) fetchPrimaryKey(ctx context.Context, schema, table string) (*SourcePrimaryKey, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT tc.constraint_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name
		 AND kcu.constraint_schema = tc.constraint_schema
		WHERE tc.table_schema = $1 AND tc.table_name = $2
		  AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY kcu.ordinal_position`, schema, table)
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

func (a *postgresAdapter) fetchForeignKeys(ctx context.Context, schema, table string) ([]SourceForeignKey, error) {
	// Referenced columns are matched positionally through
	// position_in_unique_constraint; rows arrive ordinal-sorted and are
	// appended in arrival order, never re-sorted.
	rows, err := a.pool.Query(ctx, `
		SELECT rc.constraint_name, kcu.column_name,
		       ref.table_schema, ref.table_name, ref.column_name,
		       rc.update_rule, rc.delete_rule
		FROM information_schema.referential_constraints rc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = rc.constraint_name
		 AND kcu.constraint_schema = rc.constraint_schema
		JOIN information_schema.key_column_usage ref
		  ON ref.constraint_name = rc.unique_constraint_name
		 AND ref.constraint_schema = rc.unique_constraint_schema
		 AND ref.ordinal_position = kcu.position_in_unique_constraint
		WHERE kcu.table_schema = $1 AND kcu.table_name = $2
		ORDER BY rc.constraint_name, kcu.ordinal_position`, schema, table)
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
				UpdateRule:       updateRule,
				DeleteRule:       deleteRule,
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

func (a *postgresAdapter) fetchIndexes(ctx context.Context, schema, table string) ([]SourceIndex, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT ic.relname, pg_get_indexdef(i.indexrelid), i.indisunique
		FROM pg_index i
		JOIN pg_class ic ON ic.oid = i.indexrelid
		JOIN pg_class t ON t.oid = i.indrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = $1 AND t.relname = $2 AND NOT i.indisprimary
		ORDER BY ic.relname`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("introspect indexes for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var indexes []SourceIndex
	for rows.Next() {
		var idx SourceIndex
		if err := rows.Scan(&idx.Name, &idx.Definition, &idx.IsUnique); err != nil {
			return nil, err
		}
		idx.Schema = schema
		idx.Table = table
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

func (a *postgresAdapter) fetchSequences(ctx context.Context, schema string) ([]SourceSequence, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT s.sequence_name, s.data_type, s.start_value, s.increment,
		       dep_t.relname, dep_a.attname
		FROM information_schema.sequences s
		JOIN pg_namespace n ON n.nspname = s.sequence_schema
		JOIN pg_class seq ON seq.relname = s.sequence_name AND seq.relnamespace = n.oid
		LEFT JOIN pg_depend d
		  ON d.objid = seq.oid AND d.classid = 'pg_class'::regclass AND d.deptype = 'a'
		LEFT JOIN pg_class dep_t ON dep_t.oid = d.refobjid
		LEFT JOIN pg_attribute dep_a
		  ON dep_a.attrelid = d.refobjid AND dep_a.attnum = d.refobjsubid
		WHERE s.sequence_schema = $1
		ORDER BY s.sequence_name`, schema)
	if err != nil {
		return nil, fmt.Errorf("introspect sequences for %s: %w", schema, err)
	}
	defer rows.Close()

	var seqs []SourceSequence
	for rows.Next() {
		var seq SourceSequence
		if err := rows.Scan(&seq.Name, &seq.DataType, &seq.StartValue, &seq.Increment,
			&seq.OwnedByTable, &seq.OwnedByColumn); err != nil {
			return nil, err
		}
		seq.Schema = schema
		seqs = append(seqs, seq)
	}
	return seqs, rows.Err()
}

func (a *postgresAdapter) ExportTables(ctx context.Context, tables []*SourceTableMetadata, opts ExportOptions, onProgress ProgressFunc) []ExportResult {
	return runTableExports(ctx, tables, opts, onProgress, func(ctx context.Context, t *SourceTableMetadata, path string) (int64, int64, error) {
		if a.pool == nil {
			return 0, 0, errNotConnected
		}
		query := fmt.Sprintf("SELECT %s FROM %s.%s",
			pgColumnList(t.Columns), pgQuoteIdent(t.Schema), pgQuoteIdent(t.Table))
		rows, err := a.pool.Query(ctx, query)
		if err != nil {
			return 0, 0, exportError(fmt.Sprintf("read %s.%s", t.Schema, t.Table), err)
		}
		src := &pgxRowSource{rows: rows}
		defer src.Close()
		return exportRowsToFile(src, t, postgresTypeMapper{}, opts.Format, path)
	})
}

// pgxRowSource adapts pgx.Rows to the shared rowSource.
type pgxRowSource struct {
	rows pgx.Rows
	cols []string
}

func (s *pgxRowSource) Columns() []string {
	if s.cols == nil {
		fds := s.rows.FieldDescriptions()
		s.cols = make([]string, len(fds))
		for i, fd := range fds {
			s.cols[i] = fd.Name
		}
	}
	return s.cols
}

func (s *pgxRowSource) Next() bool             { return s.rows.Next() }
func (s *pgxRowSource) Values() ([]any, error) { return s.rows.Values() }
func (s *pgxRowSource) Err() error             { return s.rows.Err() }
func (s *pgxRowSource) Close()                 { s.rows.Close() }

func pgQuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func pgColumnList(cols []SourceColumn) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = pgQuoteIdent(c.Name)
	}
	return strings.Join(parts, ", ")
}
