package domain

import "time"

// Project is a named partition that owns issues. It is created on the first
// issue posted under its name and is never updated or removed afterwards.
type Project struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	CreatedOn time.Time `json:"created_on"`
}

// Issue is a trackable unit of work belonging to exactly one Project.
// JSON names are the public wire contract.
type Issue struct {
	ID         string    `json:"_id"`
	ProjectID  string    `json:"projectId"`
	IssueTitle string    `json:"issue_title"`
	IssueText  string    `json:"issue_text"`
	CreatedBy  string    `json:"created_by"`
	AssignedTo string    `json:"assigned_to"`
	StatusText string    `json:"status_text"`
	Open       bool      `json:"open"`
	CreatedOn  time.Time `json:"created_on"`
	UpdatedOn  time.Time `json:"updated_on"`
}

// CreateIssueRequest holds the caller-supplied fields of a new issue.
type CreateIssueRequest struct {
	IssueTitle string
	IssueText  string
	CreatedBy  string
	AssignedTo string
	StatusText string
}

// Validate rejects a request with any required field empty.
func (r CreateIssueRequest) Validate() error {
	if r.IssueTitle == "" || r.IssueText == "" || r.CreatedBy == "" {
		return &ValidationError{Message: MsgRequiredFieldsMissing}
	}
	return nil
}

// Stats is a point-in-time count of stored records.
type Stats struct {
	Projects   int64
	Issues     int64
	OpenIssues int64
}
