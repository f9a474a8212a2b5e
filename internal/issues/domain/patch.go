package domain

import "time"

// IssuePatch carries the mutable fields of an update. Nil pointers and
// empty strings both mean "not sent".
type IssuePatch struct {
	IssueTitle *string
	IssueText  *string
	CreatedBy  *string
	AssignedTo *string
	StatusText *string
	Open       *bool
}

func sent(s *string) bool { return s != nil && *s != "" }

// Empty reports whether the patch would change nothing.
func (p IssuePatch) Empty() bool {
	return len(p.Fields()) == 0
}

// Fields returns the sent fields keyed by their wire name.
func (p IssuePatch) Fields() map[string]any {
	out := make(map[string]any, 6)
	for name, v := range map[string]*string{
		FieldIssueTitle: p.IssueTitle,
		FieldIssueText:  p.IssueText,
		FieldCreatedBy:  p.CreatedBy,
		FieldAssignedTo: p.AssignedTo,
		FieldStatusText: p.StatusText,
	} {
		if sent(v) {
			out[name] = *v
		}
	}
	if p.Open != nil {
		out[FieldOpen] = *p.Open
	}
	return out
}

// Apply merges the sent fields into is and stamps UpdatedOn with
// NextUpdatedOn(is.UpdatedOn, now).
func (p IssuePatch) Apply(is *Issue, now time.Time) {
	if sent(p.IssueTitle) {
		is.IssueTitle = *p.IssueTitle
	}
	if sent(p.IssueText) {
		is.IssueText = *p.IssueText
	}
	if sent(p.CreatedBy) {
		is.CreatedBy = *p.CreatedBy
	}
	if sent(p.AssignedTo) {
		is.AssignedTo = *p.AssignedTo
	}
	if sent(p.StatusText) {
		is.StatusText = *p.StatusText
	}
	if p.Open != nil {
		is.Open = *p.Open
	}
	is.UpdatedOn = NextUpdatedOn(is.UpdatedOn, now)
}

// NextUpdatedOn returns now, or prev plus one microsecond when the clock
// has not moved past prev.
func NextUpdatedOn(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Microsecond)
}
