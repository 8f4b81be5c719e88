package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/kirillm/agent-arena/internal/domain"
)

// Dialect selects the SQL flavour a repository speaks
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

var placeholder = regexp.MustCompile(`\$(\d+)`)

// Rebind converts $N placeholders into the dialect's syntax. Queries are
// written with $N; SQLite takes ?N with the same numbering.
func (d Dialect) Rebind(query string) string {
	if d == SQLite {
		return placeholder.ReplaceAllString(query, "?$1")
	}
	return query
}

// notFound maps sql.ErrNoRows onto domain.ErrNotFound
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}
