package main

import "fmt"

// Engine identifies a supported source database engine.
type Engine string

const (
	EnginePostgres Engine = "postgresql"
	EngineMySQL    Engine = "mysql"
	EngineMSSQL    Engine = "mssql"
)

// engineInfo holds the static per-engine registry entries that are needed
// before any connection exists (prompt pre-fill, config defaults).
type engineInfo struct {
	displayName     string
	defaultPort     int
	defaultUser     string
	supportsSchemas bool
}

var engineRegistry = map[Engine]engineInfo{
	EnginePostgres: {displayName: "PostgreSQL", defaultPort: 5432, defaultUser: "postgres", supportsSchemas: true},
	EngineMySQL:    {displayName: "MySQL", defaultPort: 3306, defaultUser: "root", supportsSchemas: false},
	EngineMSSQL:    {displayName: "SQL Server", defaultPort: 1433, defaultUser: "sa", supportsSchemas: true},
}

// parseEngine validates an engine tag against the closed set of three.
func parseEngine(s string) (Engine, error) {
	e := Engine(s)
	if _, ok := engineRegistry[e]; !ok {
		return "", fmt.Errorf("unsupported engine %q (must be postgresql, mysql or mssql)", s)
	}
	return e, nil
}

func engineDisplayName(e Engine) string { return engineRegistry[e].displayName }
func engineDefaultPort(e Engine) int    { return engineRegistry[e].defaultPort }
func engineDefaultUser(e Engine) string { return engineRegistry[e].defaultUser }

// engineSupportsSchemas reports whether the engine has a schema concept
// distinct from "database". Callers must branch on this instead of assuming
// schema selection applies uniformly.
func engineSupportsSchemas(e Engine) bool { return engineRegistry[e].supportsSchemas }

// newSourceAdapter returns the SourceAdapter implementation for the given
// engine tag.
func newSourceAdapter(e Engine) (SourceAdapter, error) {
	switch e {
	case EnginePostgres:
		return &postgresAdapter{}, nil
	case EngineMySQL:
		return &mysqlAdapter{}, nil
	case EngineMSSQL:
		return &mssqlAdapter{}, nil
	default:
		return nil, fmt.Errorf("unsupported engine %q (must be postgresql, mysql or mssql)", string(e))
	}
}

// typeMapperFor returns the pure type-mapping strategy for an engine.
func typeMapperFor(e Engine) (TypeMapper, error) {
	switch e {
	case EnginePostgres:
		return postgresTypeMapper{}, nil
	case EngineMySQL:
		return mysqlTypeMapper{}, nil
	case EngineMSSQL:
		return mssqlTypeMapper{}, nil
	default:
		return nil, fmt.Errorf("unsupported engine %q (must be postgresql, mysql or mssql)", string(e))
	}
}
