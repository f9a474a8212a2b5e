package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Filter keys accepted on the list endpoint. Any other query key is ignored.
const (
	FieldID         = "_id"
	FieldIssueTitle = "issue_title"
	FieldIssueText  = "issue_text"
	FieldCreatedBy  = "created_by"
	FieldAssignedTo = "assigned_to"
	FieldStatusText = "status_text"
	FieldOpen       = "open"
	FieldCreatedOn  = "created_on"
	FieldUpdatedOn  = "updated_on"
)

// IssueFilter is a conjunctive exact-match filter. A nil field does not
// constrain the result.
type IssueFilter struct {
	ID         *string
	IssueTitle *string
	IssueText  *string
	CreatedBy  *string
	AssignedTo *string
	StatusText *string
	Open       *bool
	CreatedOn  *time.Time
	UpdatedOn  *time.Time
}

// ParseIssueFilter builds a filter from query values, using the first value
// of each recognised key. Unparseable booleans or timestamps yield
// ErrInvalidFilter.
func ParseIssueFilter(values map[string][]string) (IssueFilter, error) {
	var f IssueFilter

	str := func(key string) *string {
		vs, ok := values[key]
		if !ok || len(vs) == 0 {
			return nil
		}
		v := vs[0]
		return &v
	}

	f.ID = str(FieldID)
	f.IssueTitle = str(FieldIssueTitle)
	f.IssueText = str(FieldIssueText)
	f.CreatedBy = str(FieldCreatedBy)
	f.AssignedTo = str(FieldAssignedTo)
	f.StatusText = str(FieldStatusText)

	if v := str(FieldOpen); v != nil {
		b, err := strconv.ParseBool(*v)
		if err != nil {
			return IssueFilter{}, fmt.Errorf("%w: %s=%q", ErrInvalidFilter, FieldOpen, *v)
		}
		f.Open = &b
	}

	for key, dst := range map[string]**time.Time{
		FieldCreatedOn: &f.CreatedOn,
		FieldUpdatedOn: &f.UpdatedOn,
	} {
		v := str(key)
		if v == nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, *v)
		if err != nil {
			return IssueFilter{}, fmt.Errorf("%w: %s=%q", ErrInvalidFilter, key, *v)
		}
		*dst = &ts
	}

	return f, nil
}

// Matches reports whether is satisfies every constraint in f.
func (f IssueFilter) Matches(is Issue) bool {
	eq := func(want *string, got string) bool { return want == nil || *want == got }

	if !eq(f.ID, is.ID) ||
		!eq(f.IssueTitle, is.IssueTitle) ||
		!eq(f.IssueText, is.IssueText) ||
		!eq(f.CreatedBy, is.CreatedBy) ||
		!eq(f.AssignedTo, is.AssignedTo) ||
		!eq(f.StatusText, is.StatusText) {
		return false
	}
	if f.Open != nil && *f.Open != is.Open {
		return false
	}
	if f.CreatedOn != nil && !f.CreatedOn.Equal(is.CreatedOn) {
		return false
	}
	if f.UpdatedOn != nil && !f.UpdatedOn.Equal(is.UpdatedOn) {
		return false
	}
	return true
}
