package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/issue-tracker/internal/issues/domain"
)

const issueColumns = `id, project_id, issue_title, issue_text, created_by, assigned_to, status_text, open, created_on, updated_on`

// PostgresStore persists projects and issues in two tables.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgresStore on an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (domain.Issue, error) {
	var is domain.Issue
	err := row.Scan(
		&is.ID, &is.ProjectID, &is.IssueTitle, &is.IssueText, &is.CreatedBy,
		&is.AssignedTo, &is.StatusText, &is.Open, &is.CreatedOn, &is.UpdatedOn,
	)
	return is, err
}

// FindProject returns the project with the given name or ErrProjectNotFound.
func (r *PostgresStore) FindProject(ctx context.Context, name string) (*domain.Project, error) {
	const q = `
SELECT id, name, created_on
FROM projects
WHERE name = $1;
`
	var p domain.Project
	err := r.db.QueryRowContext(ctx, q, name).Scan(&p.ID, &p.Name, &p.CreatedOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, fmt.Errorf("select project: %w", err)
	}
	return &p, nil
}

// FindOrCreateProject inserts candidate unless its name is taken, then
// returns the row that owns the name. Concurrent callers converge on the
// same project through the unique name constraint.
func (r *PostgresStore) FindOrCreateProject(ctx context.Context, candidate *domain.Project) (*domain.Project, error) {
	const q = `
INSERT INTO projects (id, name, created_on)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO NOTHING;
`
	if _, err := r.db.ExecContext(ctx, q, candidate.ID, candidate.Name, candidate.CreatedOn); err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return r.FindProject(ctx, candidate.Name)
}

// InsertIssue stores a new issue. It returns ErrDuplicateID when the id is
// already taken.
func (r *PostgresStore) InsertIssue(ctx context.Context, is *domain.Issue) error {
	const q = `
INSERT INTO issues (` + issueColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	_, err := r.db.ExecContext(ctx, q,
		is.ID, is.ProjectID, is.IssueTitle, is.IssueText, is.CreatedBy,
		is.AssignedTo, is.StatusText, is.Open, is.CreatedOn, is.UpdatedOn,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateID
		}
		return fmt.Errorf("insert issue: %w", err)
	}
	return nil
}

// issueWhere renders the project scope plus every set filter field as a
// conjunctive WHERE clause with positional arguments.
func issueWhere(projectID string, f domain.IssueFilter) (string, []any) {
	clauses := []string{"project_id = $1"}
	args := []any{projectID}

	add := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if f.ID != nil {
		add("id", *f.ID)
	}
	if f.IssueTitle != nil {
		add("issue_title", *f.IssueTitle)
	}
	if f.IssueText != nil {
		add("issue_text", *f.IssueText)
	}
	if f.CreatedBy != nil {
		add("created_by", *f.CreatedBy)
	}
	if f.AssignedTo != nil {
		add("assigned_to", *f.AssignedTo)
	}
	if f.StatusText != nil {
		add("status_text", *f.StatusText)
	}
	if f.Open != nil {
		add("open", *f.Open)
	}
	if f.CreatedOn != nil {
		add("created_on", *f.CreatedOn)
	}
	if f.UpdatedOn != nil {
		add("updated_on", *f.UpdatedOn)
	}

	return strings.Join(clauses, " AND "), args
}

// FindIssues returns the project's issues matching f in insertion order.
// f.ID must already be a well-formed UUID.
func (r *PostgresStore) FindIssues(ctx context.Context, projectID string, f domain.IssueFilter) ([]domain.Issue, error) {
	where, args := issueWhere(projectID, f)
	q := `SELECT ` + issueColumns + ` FROM issues WHERE ` + where + ` ORDER BY seq;`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select issues: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Issue, 0, 16)
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		out = append(out, is)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// issueSet renders the SET list for patch: one assignment per sent field
// plus updated_on, which always moves strictly forward. Arguments start at
// $3; $1 and $2 are the id and project id.
func issueSet(patch domain.IssuePatch, now time.Time) (string, []any) {
	fields := patch.Fields()
	var (
		sets []string
		args []any
	)
	for _, column := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, fields[column])
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)+2))
	}
	args = append(args, now)
	sets = append(sets, fmt.Sprintf("updated_on = GREATEST($%d, updated_on + interval '1 microsecond')", len(args)+2))
	return strings.Join(sets, ", "), args
}

// UpdateIssue applies patch to an existing issue in one statement, so
// concurrent updates of different fields do not overwrite each other.
func (r *PostgresStore) UpdateIssue(ctx context.Context, projectID, id string, patch domain.IssuePatch, now time.Time) error {
	set, args := issueSet(patch, now)
	q := `UPDATE issues SET ` + set + ` WHERE id = $1 AND project_id = $2;`

	result, err := r.db.ExecContext(ctx, q, append([]any{id, projectID}, args...)...)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrIssueNotFound
	}
	return nil
}

// DeleteIssue removes the issue with id from the given project.
func (r *PostgresStore) DeleteIssue(ctx context.Context, projectID, id string) error {
	const q = `
DELETE FROM issues
WHERE id = $1 AND project_id = $2;
`
	result, err := r.db.ExecContext(ctx, q, id, projectID)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrIssueNotFound
	}
	return nil
}

// Stats counts stored projects and issues.
func (r *PostgresStore) Stats(ctx context.Context) (domain.Stats, error) {
	const q = `
SELECT
  (SELECT count(*) FROM projects),
  (SELECT count(*) FROM issues),
  (SELECT count(*) FROM issues WHERE open);
`
	var s domain.Stats
	if err := r.db.QueryRowContext(ctx, q).Scan(&s.Projects, &s.Issues, &s.OpenIssues); err != nil {
		return domain.Stats{}, fmt.Errorf("count records: %w", err)
	}
	return s, nil
}

// Ping checks connectivity.
func (r *PostgresStore) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
