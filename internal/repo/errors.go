package repo

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned when the requested row does not exist
var ErrNotFound = errors.New("not found")

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
