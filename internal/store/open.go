// ABOUTME: Backend selection for the checkpoint store
// ABOUTME: Maps the configured backend name to a concrete Store

package store

import "fmt"

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	SQLitePath  string
	PostgresURI string
	Postgres    *PostgresConfig
}

// Open returns the Store for opts.Backend.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite, "":
		return NewSQLiteStore(opts.SQLitePath)
	case BackendPostgres:
		return NewPostgresStore(opts.PostgresURI, opts.Postgres)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", opts.Backend)
	}
}
