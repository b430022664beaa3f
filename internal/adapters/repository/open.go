package repository

import (
	"context"
	"fmt"
)

// Supported store drivers.
const (
	DriverCSV      = "csv"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Open builds the backend named by driver. target is the CSV path or the
// database DSN; it is ignored for the memory driver.
func Open(ctx context.Context, driver, target string, opts ...Option) (Store, error) {
	switch driver {
	case DriverCSV:
		return NewCSVStore(target, opts...), nil
	case DriverSQLite:
		s, err := OpenSQLite(ctx, target, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := OpenPostgres(ctx, target, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
