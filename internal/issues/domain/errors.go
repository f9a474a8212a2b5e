package domain

import "errors"

// Store-level sentinels. Stores return these (possibly wrapped); the service
// translates them into the client-facing error types below.
var (
	ErrProjectNotFound = errors.New("project not found")
	ErrIssueNotFound   = errors.New("issue not found")
	ErrInvalidID       = errors.New("malformed issue id")
	ErrDuplicateID     = errors.New("duplicate issue id")
	ErrInvalidFilter   = errors.New("invalid filter value")
)

// Client-facing messages. These strings are part of the wire contract.
const (
	MsgRequiredFieldsMissing = "required field(s) missing"
	MsgMissingID             = "missing _id"
	MsgNoUpdateFields        = "no update field(s) sent"
	MsgProjectNotFound       = "project not found"
	MsgCouldNotGet           = "couldn't get data"
	MsgCouldNotPost          = "could not post data"
	MsgCouldNotUpdate        = "could not update"
	MsgCouldNotDelete        = "could not delete"
)

// ValidationError is returned for missing or malformed caller input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError is returned when the referenced project or issue is absent.
type NotFoundError struct {
	Message string
	Err     error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// StoreError is returned when the backing store fails.
type StoreError struct {
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *StoreError) Unwrap() error { return e.Err }

// PublicMessage returns the message safe to send to clients.
func PublicMessage(err error) string {
	var (
		ve *ValidationError
		ne *NotFoundError
		se *StoreError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Message
	case errors.As(err, &ne):
		return ne.Message
	case errors.As(err, &se):
		return se.Message
	default:
		return "internal error"
	}
}
