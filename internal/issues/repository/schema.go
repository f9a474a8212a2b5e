package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS projects (
	id         uuid PRIMARY KEY,
	name       text NOT NULL UNIQUE,
	created_on timestamptz NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS issues (
	seq         bigserial,
	id          uuid PRIMARY KEY,
	project_id  uuid NOT NULL REFERENCES projects (id),
	issue_title text NOT NULL,
	issue_text  text NOT NULL,
	created_by  text NOT NULL,
	assigned_to text NOT NULL DEFAULT '',
	status_text text NOT NULL DEFAULT '',
	open        boolean NOT NULL DEFAULT true,
	created_on  timestamptz NOT NULL,
	updated_on  timestamptz NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS issues_project_seq_idx ON issues (project_id, seq)`,
}

// Migrate creates the tables the Postgres store needs. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return nil
}

// isUniqueViolation recognises unique-constraint errors from either
// supported driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
