package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMappingFileRoundTrip(t *testing.T) {
	key := testKey(t)
	cfg := ConnectionConfig{
		Engine:   EngineMySQL,
		Host:     "db.internal",
		Port:     3306,
		Database: "shop",
		User:     "root",
		Password: "hunter2",
	}
	tables := []*SourceTableMetadata{{
		Schema: "shop",
		Table:  "orders",
		Columns: []SourceColumn{
			{Schema: "shop", Table: "orders", Name: "id", OrdinalPosition: 1, DataType: "int", UdtName: "int", IsIdentity: true},
		},
		PrimaryKey: &SourcePrimaryKey{Schema: "shop", Table: "orders", ConstraintName: "PRIMARY", Columns: []string{"id"}},
	}}

	mapping, err := newMappingFile("shop-migration", cfg, []string{"shop"}, tables, &ExportOptions{Format: FormatParquet, OutputDir: "out"}, key)
	require.NoError(t, err)
	assert.Equal(t, 2, mapping.Version)
	require.NotNil(t, mapping.Source.Connection.Password)
	assert.True(t, mapping.Source.Connection.Password.Encrypted)

	// CreatedAt is ISO 8601 UTC.
	created, err := time.Parse(time.RFC3339, mapping.CreatedAt)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, created.Location())

	path := filepath.Join(t.TempDir(), "shop.mapping.json")
	require.NoError(t, writeMappingFile(mapping, path))

	// The password never appears in plaintext on disk.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2")

	loaded, err := readMappingFile(path)
	require.NoError(t, err)
	assert.Equal(t, mapping.Name, loaded.Name)
	assert.Equal(t, mapping.SelectedSchemas, loaded.SelectedSchemas)
	require.Len(t, loaded.Tables, 1)
	assert.Equal(t, "orders", loaded.Tables[0].Table)

	conn, err := connectionFromMapping(loaded, key)
	require.NoError(t, err)
	assert.Equal(t, EngineMySQL, conn.Engine)
	assert.Equal(t, "hunter2", conn.Password)
}

func TestGetMappingEngineVersionOneDefaultsToPostgres(t *testing.T) {
	m := &MappingFile{Version: 1}
	engine, err := getMappingEngine(m)
	require.NoError(t, err)
	assert.Equal(t, EnginePostgres, engine)
}

func TestGetMappingEngineVersionTwoRequiresEngine(t *testing.T) {
	m := &MappingFile{Version: 2}
	_, err := getMappingEngine(m)
	require.Error(t, err)
	assert.Equal(t, ErrCodeMapping, errorCode(err))
}

func TestGetMappingEngineRejectsUnknown(t *testing.T) {
	m := &MappingFile{Version: 2, Source: MappingSource{Engine: "oracle"}}
	_, err := getMappingEngine(m)
	require.Error(t, err)
}

func TestReadMappingFileRejectsPlaintextPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.mapping.json")
	body := `{
	  "version": 2,
	  "name": "bad",
	  "createdAt": "2024-01-01T00:00:00Z",
	  "source": {
	    "engine": "postgresql",
	    "connection": {"host": "h", "port": 5432, "database": "d", "user": "u", "password": "plaintext", "ssl": false}
	  },
	  "selectedSchemas": ["public"],
	  "tables": []
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := readMappingFile(path)
	require.Error(t, err)
	assert.Equal(t, ErrCodeMapping, errorCode(err))
}

func TestReadMappingFileVersionBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.mapping.json")
	m := map[string]any{"version": 99, "name": "future", "source": map[string]any{"engine": "mysql"}}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = readMappingFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported mapping file version")
}

func TestReadMappingFileMissing(t *testing.T) {
	_, err := readMappingFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Equal(t, ErrCodeMapping, errorCode(err))
}

func TestConnectionFromMappingFillsEngineDefaults(t *testing.T) {
	m := &MappingFile{
		Version: 2,
		Source: MappingSource{
			Engine:     EngineMSSQL,
			Connection: MappingConnection{Host: "h", Database: "d"},
		},
	}
	conn, err := connectionFromMapping(m, testKey(t))
	require.NoError(t, err)
	assert.Equal(t, 1433, conn.Port)
	assert.Equal(t, "sa", conn.User)
	assert.Empty(t, conn.Password)
}

func TestWriteMappingFileCreatesDirectory(t *testing.T) {
	key := testKey(t)
	mapping, err := newMappingFile("n", ConnectionConfig{Engine: EnginePostgres, Host: "h", Port: 5432, Database: "d", User: "u"}, []string{"public"}, []*SourceTableMetadata{{Schema: "public", Table: "t"}}, nil, key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "deep", "nested", "n.mapping.json")
	require.NoError(t, writeMappingFile(mapping, path))
	_, err = os.Stat(path)
	require.NoError(t, err)
}
