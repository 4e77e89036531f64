package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.New()

var (
	configPath  string
	mappingPath string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "snowferry",
	Short: "Migrate relational schemas and data into Snowflake-consumable form",
	Long: `snowferry introspects a PostgreSQL, MySQL or SQL Server database,
maps its schema to Snowflake types, generates Snowflake DDL and exports
table data as Parquet or CSV files ready for loading.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	},
	SilenceUsage: true,
}

var mapCmd = &cobra.Command{
	Use:   "map <name>",
	Short: "Introspect the source database and write an encrypted mapping file",
	Args:  cobra.ExactArgs(1),
	RunE:  runMap,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export table data from a mapping file as Parquet or CSV",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var generateDDLCmd = &cobra.Command{
	Use:   "generate-ddl",
	Short: "Generate Snowflake DDL from a mapping file",
	Args:  cobra.NoArgs,
	RunE:  runGenerateDDL,
}

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Check that the configured source database is reachable",
	Args:  cobra.NoArgs,
	RunE:  runTestConnection,
}

var (
	mapSchemas   []string
	mapTables    []string
	mapOutput    string
	exportFormat string
	exportDir    string
	ddlOutput    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "snowferry.toml", "path to TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	mapCmd.Flags().StringSliceVar(&mapSchemas, "schema", nil, "schemas to map (default: all selectable schemas)")
	mapCmd.Flags().StringSliceVar(&mapTables, "table", nil, "tables to map (default: all tables in the selected schemas)")
	mapCmd.Flags().StringVarP(&mapOutput, "output", "o", "", "mapping file path (default: <name>.mapping.json)")

	exportCmd.Flags().StringVar(&mappingPath, "mapping", "", "path to mapping file (required)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "export format: parquet or csv (default: from mapping or config)")
	exportCmd.Flags().StringVar(&exportDir, "output-dir", "", "output directory (default: from mapping or config)")
	exportCmd.MarkFlagRequired("mapping")

	generateDDLCmd.Flags().StringVar(&mappingPath, "mapping", "", "path to mapping file (required)")
	generateDDLCmd.Flags().StringVarP(&ddlOutput, "output", "o", "", "DDL output path (default: stdout)")
	generateDDLCmd.MarkFlagRequired("mapping")

	rootCmd.AddCommand(mapCmd, exportCmd, generateDDLCmd, testConnectionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if code := errorCode(err); code != "" {
			log.WithField("code", string(code)).Error(err.Error())
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func runMap(cmd *cobra.Command, args []string) error {
	name := args[0]
	outPath := mapOutput
	if outPath == "" {
		outPath = name + ".mapping.json"
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	conn := cfg.connectionConfig()

	keyPath, err := cfg.keyFilePath()
	if err != nil {
		return err
	}
	key, err := loadOrCreateKey(keyPath)
	if err != nil {
		return err
	}

	adapter, err := newSourceAdapter(conn.Engine)
	if err != nil {
		return err
	}

	ctx := context.Background()
	log.WithFields(logrus.Fields{
		"engine":   engineDisplayName(conn.Engine),
		"host":     conn.Host,
		"database": conn.Database,
	}).Info("connecting to source")
	// Connection failures must not leave a partial mapping file behind, so
	// nothing is written until introspection fully succeeds.
	if err := adapter.Connect(ctx, conn); err != nil {
		return err
	}
	defer adapter.Disconnect()

	schemas, err := resolveSchemas(ctx, adapter, conn, mapSchemas)
	if err != nil {
		return err
	}

	var allTables []*SourceTableMetadata
	for _, schema := range schemas {
		tables, err := resolveTables(ctx, adapter, schema, mapTables)
		if err != nil {
			return err
		}
		if len(tables) == 0 {
			log.WithField("schema", schema).Warn("schema has no tables")
			continue
		}
		log.WithFields(logrus.Fields{"schema": schema, "tables": len(tables)}).Info("introspecting schema")
		metas, err := adapter.IntrospectSchema(ctx, schema, tables)
		if err != nil {
			return err
		}
		allTables = append(allTables, metas...)
	}
	if len(allTables) == 0 {
		return mappingError("no tables found to map", nil)
	}

	exportOpts := &ExportOptions{
		Format:    cfg.Export.Format,
		OutputDir: cfg.resolvePath(cfg.Export.OutputDir),
	}
	mapping, err := newMappingFile(name, conn, schemas, allTables, exportOpts, key)
	if err != nil {
		return err
	}
	if err := writeMappingFile(mapping, outPath); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"mapping": outPath,
		"schemas": len(schemas),
		"tables":  len(allTables),
	}).Info("mapping file written")
	return nil
}

// resolveSchemas expands an empty selection to every selectable schema and
// verifies an explicit selection against the catalog.
func resolveSchemas(ctx context.Context, adapter SourceAdapter, conn ConnectionConfig, selected []string) ([]string, error) {
	available, err := adapter.GetSchemas(ctx)
	if err != nil {
		return nil, err
	}

	if !engineSupportsSchemas(conn.Engine) {
		// The synthetic schema is the only valid choice.
		if len(selected) > 0 {
			return nil, fmt.Errorf("%s does not support schema selection", engineDisplayName(conn.Engine))
		}
		names := make([]string, len(available))
		for i, s := range available {
			names[i] = s.Name
		}
		return names, nil
	}

	if len(selected) == 0 {
		names := make([]string, len(available))
		for i, s := range available {
			names[i] = s.Name
		}
		return names, nil
	}

	known := make(map[string]bool, len(available))
	for _, s := range available {
		known[s.Name] = true
	}
	for _, s := range selected {
		if !known[s] {
			return nil, fmt.Errorf("schema %q does not exist in the source database", s)
		}
	}
	return selected, nil
}

// resolveTables narrows a schema's table list to the explicit selection, or
// returns all tables when the selection is empty.
func resolveTables(ctx context.Context, adapter SourceAdapter, schema string, selected []string) ([]string, error) {
	available, err := adapter.GetTables(ctx, schema)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(available))
	known := make(map[string]bool, len(available))
	for i, t := range available {
		names[i] = t.Name
		known[t.Name] = true
	}
	if len(selected) == 0 {
		return names, nil
	}

	var picked []string
	for _, name := range names {
		for _, want := range selected {
			if name == want {
				picked = append(picked, name)
				break
			}
		}
	}
	for _, want := range selected {
		if !known[want] {
			log.WithFields(logrus.Fields{"schema": schema, "table": want}).Debug("selected table not in schema")
		}
	}
	return picked, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	mapping, err := readMappingFile(mappingPath)
	if err != nil {
		return err
	}
	engine, err := getMappingEngine(mapping)
	if err != nil {
		return err
	}

	cfg, cfgErr := loadConfig(configPath)
	if cfgErr != nil && errorCode(cfgErr) != ErrCodeConfigNotFound {
		return cfgErr
	}

	keyPath, err := cfg.keyFilePath()
	if err != nil {
		return err
	}
	key, err := loadOrCreateKey(keyPath)
	if err != nil {
		return err
	}
	conn, err := connectionFromMapping(mapping, key)
	if err != nil {
		return err
	}

	opts := ExportOptions{Format: FormatParquet, OutputDir: "export"}
	if mapping.ExportOptions != nil {
		opts = *mapping.ExportOptions
	}
	if exportFormat != "" {
		opts.Format = exportFormat
	}
	if exportDir != "" {
		opts.OutputDir = exportDir
	}
	switch opts.Format {
	case FormatParquet, FormatCSV:
	default:
		return exportError(fmt.Sprintf("unsupported export format %q", opts.Format), nil)
	}

	adapter, err := newSourceAdapter(engine)
	if err != nil {
		return err
	}

	ctx := context.Background()
	log.WithFields(logrus.Fields{
		"engine":   engineDisplayName(engine),
		"host":     conn.Host,
		"database": conn.Database,
	}).Info("connecting to source")
	if err := adapter.Connect(ctx, conn); err != nil {
		return err
	}
	defer adapter.Disconnect()

	start := time.Now()
	results := adapter.ExportTables(ctx, mapping.Tables, opts, func(name string, index, total int) {
		log.WithFields(logrus.Fields{"table": name, "progress": fmt.Sprintf("%d/%d", index+1, total)}).Info("exporting")
	})

	var (
		succeeded int
		failed    int
		totalRows int64
	)
	for _, r := range results {
		if r.Status == ExportStatusSuccess {
			succeeded++
			totalRows += r.Rows
			log.WithFields(logrus.Fields{
				"table":    r.Schema + "." + r.Table,
				"rows":     r.Rows,
				"bytes":    r.Bytes,
				"duration": r.Duration.Round(time.Millisecond).String(),
				"file":     r.OutputFile,
			}).Info("table exported")
		} else {
			failed++
			log.WithFields(logrus.Fields{
				"table": r.Schema + "." + r.Table,
				"error": r.Error,
			}).Error("table export failed")
		}
	}

	log.WithFields(logrus.Fields{
		"succeeded": succeeded,
		"failed":    failed,
		"rows":      totalRows,
		"duration":  time.Since(start).Round(time.Millisecond).String(),
	}).Info("export finished")

	if failed > 0 {
		return exportError(fmt.Sprintf("%d of %d tables failed to export", failed, len(results)), nil)
	}
	return nil
}

func runGenerateDDL(cmd *cobra.Command, args []string) error {
	mapping, err := readMappingFile(mappingPath)
	if err != nil {
		return err
	}
	engine, err := getMappingEngine(mapping)
	if err != nil {
		return err
	}
	mapper, err := typeMapperFor(engine)
	if err != nil {
		return err
	}

	result, err := generateDDL(buildMappedTables(mapping.Tables, mapper))
	if err != nil {
		return err
	}

	if ddlOutput == "" {
		fmt.Print(result.SQL)
	} else {
		if err := os.WriteFile(ddlOutput, []byte(result.SQL), 0o644); err != nil {
			return ddlError(fmt.Sprintf("write DDL to %s", ddlOutput), err)
		}
	}

	log.WithFields(logrus.Fields{
		"schemas":     result.SchemaCount,
		"tables":      result.TableCount,
		"foreignKeys": result.ForeignKeyCount,
	}).Info("DDL generated")
	return nil
}

// buildMappedTables runs every introspected column through the engine's type
// mapper, producing the DDL generator's input.
func buildMappedTables(tables []*SourceTableMetadata, mapper TypeMapper) []MappedTable {
	mapped := make([]MappedTable, 0, len(tables))
	for _, t := range tables {
		mt := MappedTable{
			Schema:      t.Schema,
			Table:       t.Table,
			Columns:     make([]SnowflakeColumn, 0, len(t.Columns)),
			PrimaryKey:  t.PrimaryKey,
			ForeignKeys: t.ForeignKeys,
		}
		for _, col := range t.Columns {
			mt.Columns = append(mt.Columns, mapper.MapColumn(col))
		}
		mapped = append(mapped, mt)
	}
	return mapped
}

func runTestConnection(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	conn := cfg.connectionConfig()

	adapter, err := newSourceAdapter(conn.Engine)
	if err != nil {
		return err
	}

	target := fmt.Sprintf("%s:%d/%s", conn.Host, conn.Port, conn.Database)
	if conn.InstanceName != "" {
		target = fmt.Sprintf("%s\\%s:%d/%s", conn.Host, conn.InstanceName, conn.Port, conn.Database)
	}
	log.WithFields(logrus.Fields{
		"engine": engineDisplayName(conn.Engine),
		"target": target,
	}).Info("testing connection")

	if !adapter.TestConnection(context.Background(), conn) {
		return connectionError(fmt.Sprintf("cannot reach %s at %s", engineDisplayName(conn.Engine), target), nil)
	}
	log.Info("connection ok")
	return nil
}
