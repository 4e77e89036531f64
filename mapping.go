package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// mappingFileVersion is the current on-disk format. Version 1 files predate
// multi-engine support and carry no engine tag; they are read as PostgreSQL.
const mappingFileVersion = 2

// MappingConnection is the persisted connection block. Password is only ever
// stored as an encrypted payload; the plaintext form never touches disk.
type MappingConnection struct {
	Host                   string            `json:"host"`
	Port                   int               `json:"port"`
	Database               string            `json:"database"`
	User                   string            `json:"user"`
	Password               *EncryptedPayload `json:"password,omitempty"`
	SSL                    bool              `json:"ssl"`
	InstanceName           string            `json:"instanceName,omitempty"`
	TrustServerCertificate bool              `json:"trustServerCertificate,omitempty"`
}

// MappingSource pairs the engine tag with its connection details.
type MappingSource struct {
	Engine     Engine            `json:"engine"`
	Connection MappingConnection `json:"connection"`
}

// MappingFile is the persisted result of a map operation: where the data came
// from, which schemas were selected and everything introspection discovered.
type MappingFile struct {
	Version         int                    `json:"version"`
	Name            string                 `json:"name"`
	CreatedAt       string                 `json:"createdAt"` // ISO 8601 UTC
	Source          MappingSource          `json:"source"`
	SelectedSchemas []string               `json:"selectedSchemas"`
	Tables          []*SourceTableMetadata `json:"tables"`
	ExportOptions   *ExportOptions         `json:"exportOptions,omitempty"`
}

// getMappingEngine resolves the mapping's engine, defaulting version 1 files
// (written before the engine tag existed) to PostgreSQL.
func getMappingEngine(m *MappingFile) (Engine, error) {
	if m.Source.Engine == "" {
		if m.Version <= 1 {
			return EnginePostgres, nil
		}
		return "", mappingError("mapping file has no source engine", nil)
	}
	return parseEngine(string(m.Source.Engine))
}

// connectionFromMapping reconstructs a live ConnectionConfig from the persisted
// block, decrypting the password with key and filling engine defaults for
// fields older files may omit.
func connectionFromMapping(m *MappingFile, key []byte) (ConnectionConfig, error) {
	engine, err := getMappingEngine(m)
	if err != nil {
		return ConnectionConfig{}, err
	}

	cfg := ConnectionConfig{
		Engine:                 engine,
		Host:                   m.Source.Connection.Host,
		Port:                   m.Source.Connection.Port,
		Database:               m.Source.Connection.Database,
		User:                   m.Source.Connection.User,
		SSL:                    m.Source.Connection.SSL,
		InstanceName:           m.Source.Connection.InstanceName,
		TrustServerCertificate: m.Source.Connection.TrustServerCertificate,
	}
	if cfg.Port == 0 {
		cfg.Port = engineDefaultPort(engine)
	}
	if cfg.User == "" {
		cfg.User = engineDefaultUser(engine)
	}

	if m.Source.Connection.Password != nil {
		plaintext, err := decryptPayload(m.Source.Connection.Password, key)
		if err != nil {
			return ConnectionConfig{}, err
		}
		cfg.Password = plaintext
	}
	return cfg, nil
}

// newMappingFile builds a version-current mapping from a completed map
// operation, sealing the password before it enters the struct.
func newMappingFile(name string, cfg ConnectionConfig, schemas []string, tables []*SourceTableMetadata, opts *ExportOptions, key []byte) (*MappingFile, error) {
	var sealed *EncryptedPayload
	if cfg.Password != "" {
		var err error
		sealed, err = encryptString(cfg.Password, key)
		if err != nil {
			return nil, err
		}
	}

	return &MappingFile{
		Version:   mappingFileVersion,
		Name:      name,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Source: MappingSource{
			Engine: cfg.Engine,
			Connection: MappingConnection{
				Host:                   cfg.Host,
				Port:                   cfg.Port,
				Database:               cfg.Database,
				User:                   cfg.User,
				Password:               sealed,
				SSL:                    cfg.SSL,
				InstanceName:           cfg.InstanceName,
				TrustServerCertificate: cfg.TrustServerCertificate,
			},
		},
		SelectedSchemas: schemas,
		Tables:          tables,
		ExportOptions:   opts,
	}, nil
}

// writeMappingFile persists the mapping as indented JSON via a same-directory
// temp file and rename, so a crash mid-write never leaves a truncated mapping.
func writeMappingFile(m *MappingFile, path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return mappingError("encode mapping file", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return mappingError("create mapping directory", err)
	}
	tmp, err := os.CreateTemp(dir, ".mapping-*.json")
	if err != nil {
		return mappingError("create temp mapping file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return mappingError("write mapping file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return mappingError("close mapping file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return mappingError("finalize mapping file", err)
	}
	return nil
}

// readMappingFile loads and validates a persisted mapping.
func readMappingFile(path string) (*MappingFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, mappingError(fmt.Sprintf("mapping file %s does not exist", path), err)
		}
		return nil, mappingError(fmt.Sprintf("read mapping file %s", path), err)
	}

	var m MappingFile
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, mappingError(fmt.Sprintf("parse mapping file %s", path), err)
	}
	if m.Version < 1 || m.Version > mappingFileVersion {
		return nil, mappingError(fmt.Sprintf("unsupported mapping file version %d", m.Version), nil)
	}
	if _, err := getMappingEngine(&m); err != nil {
		return nil, err
	}
	return &m, nil
}
