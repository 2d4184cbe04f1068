// Package repository persists normalized task rows into the append-only
// snapshot table.
package repository

import (
	"context"
	"fmt"
	"regexp"

	"github.com/nadmax/tracksync/internal/task"
)

type SnapshotRepository interface {
	EnsureTable(ctx context.Context) error
	InsertRows(ctx context.Context, rows []task.Row) (int, error)
	Close() error
}

// DatabaseError wraps a driver failure with the operation that hit it.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// A table name is one identifier, optionally schema-qualified.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}(\.[A-Za-z_][A-Za-z0-9_]{0,62})?$`)

func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name %q: expected [schema.]identifier of letters, digits and underscores", name)
	}
	return nil
}
