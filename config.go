package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the full TOML-driven tool configuration.
type Config struct {
	Source SourceConfig `toml:"source"`
	Export ExportConfig `toml:"export"`

	// KeyFile locates the master encryption key; empty means the default
	// under the user config directory.
	KeyFile string `toml:"key_file"`

	// configDir is the directory containing the TOML file, used to resolve
	// relative paths.
	configDir string
}

// SourceConfig identifies the source database engine and connection details.
type SourceConfig struct {
	Type     string `toml:"type"` // postgresql, mysql or mssql
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSL      bool   `toml:"ssl"`

	// SQL Server only.
	InstanceName           string `toml:"instance_name"`
	TrustServerCertificate bool   `toml:"trust_server_certificate"`
}

// ExportConfig sets the default export format and output directory; both can
// be overridden on the command line.
type ExportConfig struct {
	Format    string `toml:"format"` // parquet|csv
	OutputDir string `toml:"output_dir"`
}

// loadConfig reads a TOML config file and returns a Config with defaults
// applied and unknown keys rejected.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newCodedError(ErrCodeConfigNotFound, fmt.Sprintf("config file %s does not exist", path), err)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Config{
		Export: ExportConfig{Format: FormatParquet, OutputDir: "export"},
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.configDir = filepath.Dir(absPath)

	if cfg.Source.Type == "" {
		return nil, fmt.Errorf("source.type is required (must be postgresql, mysql or mssql)")
	}
	engine, err := parseEngine(cfg.Source.Type)
	if err != nil {
		return nil, err
	}
	if cfg.Source.Host == "" {
		cfg.Source.Host = "localhost"
	}
	if cfg.Source.Port == 0 {
		cfg.Source.Port = engineDefaultPort(engine)
	}
	if cfg.Source.User == "" {
		cfg.Source.User = engineDefaultUser(engine)
	}
	if cfg.Source.Database == "" {
		return nil, fmt.Errorf("source.database is required")
	}

	// Instance names and certificate trust are SQL Server concepts.
	if engine != EngineMSSQL {
		if cfg.Source.InstanceName != "" {
			return nil, fmt.Errorf("source.instance_name is a SQL Server-only option")
		}
		if cfg.Source.TrustServerCertificate {
			return nil, fmt.Errorf("source.trust_server_certificate is a SQL Server-only option")
		}
	}

	switch cfg.Export.Format {
	case FormatParquet, FormatCSV:
	default:
		return nil, fmt.Errorf("export.format must be one of: parquet, csv")
	}

	return &cfg, nil
}

// connectionConfig converts the TOML source block into a live connection
// config. The engine tag was validated during loadConfig.
func (c *Config) connectionConfig() ConnectionConfig {
	engine, _ := parseEngine(c.Source.Type)
	return ConnectionConfig{
		Engine:                 engine,
		Host:                   c.Source.Host,
		Port:                   c.Source.Port,
		Database:               c.Source.Database,
		User:                   c.Source.User,
		Password:               c.Source.Password,
		SSL:                    c.Source.SSL,
		InstanceName:           c.Source.InstanceName,
		TrustServerCertificate: c.Source.TrustServerCertificate,
	}
}

// resolvePath resolves a path relative to the config file directory.
func (c *Config) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.configDir, p)
}

// keyFilePath returns the master key location: the configured key_file if set,
// otherwise <user config dir>/snowferry/key.
func (c *Config) keyFilePath() (string, error) {
	if c != nil && c.KeyFile != "" {
		return c.resolvePath(c.KeyFile), nil
	}
	return defaultKeyFilePath()
}

func defaultKeyFilePath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config directory: %w", err)
	}
	return filepath.Join(base, "snowferry", "key"), nil
}
