package store

import (
	"context"
	"fmt"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns the repository selected by driver. target is a file path for
// SQLite and a connection string for PostgreSQL.
func Open(ctx context.Context, driver, target string) (Repository, error) {
	switch driver {
	case DriverSQLite:
		s, err := OpenSQLite(target)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := OpenPostgres(ctx, target)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}
