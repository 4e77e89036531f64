package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snowferry.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeTestConfig(t, `
[source]
type = "postgresql"
database = "app"
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Source.Host)
	assert.Equal(t, 5432, cfg.Source.Port)
	assert.Equal(t, "postgres", cfg.Source.User)
	assert.Equal(t, FormatParquet, cfg.Export.Format)
	assert.Equal(t, "export", cfg.Export.OutputDir)
}

func TestLoadConfigEngineDefaultsFollowType(t *testing.T) {
	path := writeTestConfig(t, `
[source]
type = "mssql"
database = "crm"
instance_name = "SQLEXPRESS"
trust_server_certificate = true
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1433, cfg.Source.Port)
	assert.Equal(t, "sa", cfg.Source.User)

	conn := cfg.connectionConfig()
	assert.Equal(t, EngineMSSQL, conn.Engine)
	assert.Equal(t, "SQLEXPRESS", conn.InstanceName)
	assert.True(t, conn.TrustServerCertificate)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeTestConfig(t, `
[source]
type = "mysql"
database = "shop"
hostname = "typo"
`)
	_, err := loadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config keys")
	assert.Contains(t, err.Error(), "source.hostname")
}

func TestLoadConfigRejectsMSSQLOnlyOptionsElsewhere(t *testing.T) {
	path := writeTestConfig(t, `
[source]
type = "mysql"
database = "shop"
instance_name = "SQLEXPRESS"
`)
	_, err := loadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SQL Server-only")
}

func TestLoadConfigRequiresTypeAndDatabase(t *testing.T) {
	_, err := loadConfig(writeTestConfig(t, `
[source]
database = "app"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.type is required")

	_, err = loadConfig(writeTestConfig(t, `
[source]
type = "postgresql"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.database is required")
}

func TestLoadConfigRejectsUnknownEngine(t *testing.T) {
	_, err := loadConfig(writeTestConfig(t, `
[source]
type = "oracle"
database = "app"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported engine")
}

func TestLoadConfigRejectsBadExportFormat(t *testing.T) {
	_, err := loadConfig(writeTestConfig(t, `
[source]
type = "mysql"
database = "shop"

[export]
format = "avro"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export.format")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Equal(t, ErrCodeConfigNotFound, errorCode(err))
}

func TestConfigResolvePath(t *testing.T) {
	path := writeTestConfig(t, `
[source]
type = "mysql"
database = "shop"

[export]
output_dir = "out"
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)

	resolved := cfg.resolvePath(cfg.Export.OutputDir)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "out"), resolved)
	assert.Equal(t, "/abs/out", cfg.resolvePath("/abs/out"))
}

func TestConfigKeyFilePath(t *testing.T) {
	path := writeTestConfig(t, `
key_file = "secrets/key"

[source]
type = "mysql"
database = "shop"
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)

	keyPath, err := cfg.keyFilePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "secrets", "key"), keyPath)

	// A nil config falls back to the default location.
	var missing *Config
	defaultPath, err := missing.keyFilePath()
	require.NoError(t, err)
	assert.Contains(t, defaultPath, "snowferry")
}
