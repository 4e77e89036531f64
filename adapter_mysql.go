package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// mysqlAdapter implements SourceAdapter over database/sql with the
// go-sql-driver. MySQL has no schema concept distinct from the database, so
// GetSchemas returns a single synthetic schema named after the connected
// database.
type mysqlAdapter struct {
	db       *sql.DB
	database string
}

func (a *mysqlAdapter) Engine() Engine { return EngineMySQL }

func mysqlDSN(cfg ConnectionConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Timeout = connectTimeout
	if cfg.SSL {
		mc.TLSConfig = "preferred"
	}
	return mc.FormatDSN()
}

func mysqlOpen(cfg ConnectionConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", mysqlDSN(cfg))
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (a *mysqlAdapter) Connect(ctx context.Context, cfg ConnectionConfig) error {
	db, err := mysqlOpen(cfg)
	if err != nil {
		return connectionError("open MySQL connection", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return connectionError(fmt.Sprintf("ping MySQL at %s:%d", cfg.Host, cfg.Port), err)
	}

	if a.db != nil {
		a.db.Close()
	}
	a.db = db
	a.database = cfg.Database
	return nil
}

func (a *mysqlAdapter) Disconnect() error {
	if a.db != nil {
		err := a.db.Close()
		a.db = nil
		return err
	}
	return nil
}

func (a *mysqlAdapter) TestConnection(ctx context.Context, cfg ConnectionConfig) bool {
	db, err := mysqlOpen(cfg)
	if err != nil {
		return false
	}
	defer db.Close()

	testCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	var one int
	return db.QueryRowContext(testCtx, "SELECT 1").Scan(&one) == nil
}

func (a *mysqlAdapter) GetSchemas(ctx context.Context) ([]SchemaInfo, error) {
	if a.db == nil {
		return nil, errNotConnected
	}
	return []SchemaInfo{{Name: a.database}}, nil
}

func (a *mysqlAdapter) GetTables(ctx context.Context, schema string) ([]TableInfo, error) {
	if a.db == nil {
		return nil, errNotConnected
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`, schema)
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

func (a *mysqlAdapter) IntrospectTable(ctx context.Context, schema, table string) (*SourceTableMetadata, error) {
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

// IntrospectSchema has no sequence fetch: MySQL has no sequences.
func (a *mysqlAdapter) IntrospectSchema(ctx context.Context, schema string, tables []string) ([]*SourceTableMetadata, error) {
	return introspectBatch(ctx, schema, tables, a.IntrospectTable)
}

func (a *mysqlAdapter) MapColumnToSnowflake(col SourceColumn) SnowflakeColumn {
	return mysqlTypeMapper{}.MapColumn(col)
}

func (a *mysqlAdapter) fetchColumns(ctx context.Context, schema, table string) ([]SourceColumn, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT COLUMN_NAME, ORDINAL_POSITION, COLUMN_DEFAULT, IS_NULLABLE,
		       DATA_TYPE, COLUMN_TYPE, CHARACTER_MAXIMUM_LENGTH,
		       NUMERIC_PRECISION, NUMERIC_SCALE, EXTRA
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("introspect columns for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var cols []SourceColumn
	for rows.Next() {
		var (
			c               SourceColumn
			nullable, extra string
		)
		if err := rows.Scan(
			&c.Name, &c.OrdinalPosition, &c.Default, &nullable,
			&c.DataType, &c.UdtName, &c.CharMaxLen,
			&c.NumericPrecision, &c.NumericScale, &extra,
		); err != nil {
			return nil, err
		}
		c.Schema = schema
		c.Table = table
		c.Nullable = nullable == "YES"
		c.DataType = strings.ToLower(c.DataType)
		// Auto-increment is boolean-only; MySQL has no identity-generation
		// descriptor.
		c.IsIdentity = strings.Contains(strings.ToLower(extra), "auto_increment")
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (a *mysqlAdapter) fetchPrimaryKey(ctx context.Context, schema, table string) (*SourcePrimaryKey, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT CONSTRAINT_NAME, COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION`, schema, table)
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

func (a *mysqlAdapter) fetchForeignKeys(ctx context.Context, schema, table string) ([]SourceForeignKey, error) {
	// Rows arrive ordinal-sorted per constraint; group by constraint name and
	// append in arrival order.
	rows, err := a.db.QueryContext(ctx, `
		SELECT kcu.CONSTRAINT_NAME, kcu.COLUMN_NAME,
		       kcu.REFERENCED_TABLE_SCHEMA, kcu.REFERENCED_TABLE_NAME, kcu.REFERENCED_COLUMN_NAME,
		       rc.UPDATE_RULE, rc.DELETE_RULE
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
		  ON kcu.CONSTRAINT_NAME = rc.CONSTRAINT_NAME
		 AND kcu.TABLE_SCHEMA = rc.CONSTRAINT_SCHEMA
		WHERE kcu.TABLE_SCHEMA = ? AND kcu.TABLE_NAME = ?
		  AND kcu.REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY kcu.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`, schema, table)
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

func (a *mysqlAdapter) fetchIndexes(ctx context.Context, schema, table string) ([]SourceIndex, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT INDEX_NAME, COLUMN_NAME, NON_UNIQUE, COLLATION
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND INDEX_NAME <> 'PRIMARY'
		ORDER BY INDEX_NAME, SEQ_IN_INDEX`, schema, table)
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
			name      string
			col       sql.NullString
			nonUnique int
			collation sql.NullString
		)
		if err := rows.Scan(&name, &col, &nonUnique, &collation); err != nil {
			return nil, err
		}
		b, ok := builds[name]
		if !ok {
			b = &idxBuild{unique: nonUnique == 0}
			builds[name] = b
			order = append(order, name)
		}
		if !col.Valid {
			continue // expression key part, not representable as a column list
		}
		rendered := mysqlQuoteIdent(col.String)
		if collation.Valid && strings.EqualFold(collation.String, "D") {
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
			mysqlQuoteIdent(name), mysqlQuoteIdent(schema), mysqlQuoteIdent(table),
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

func (a *mysqlAdapter) ExportTables(ctx context.Context, tables []*SourceTableMetadata, opts ExportOptions, onProgress ProgressFunc) []ExportResult {
	return runTableExports(ctx, tables, opts, onProgress, func(ctx context.Context, t *SourceTableMetadata, path string) (int64, int64, error) {
		if a.db == nil {
			return 0, 0, errNotConnected
		}
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = mysqlQuoteIdent(c.Name)
		}
		query := fmt.Sprintf("SELECT %s FROM %s.%s",
			strings.Join(cols, ", "), mysqlQuoteIdent(t.Schema), mysqlQuoteIdent(t.Table))
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
		return exportRowsToFile(src, t, mysqlTypeMapper{}, opts.Format, path)
	})
}

func mysqlQuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
