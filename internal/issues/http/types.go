package http

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/GoSim-25-26J-441/issue-tracker/internal/issues/service"
)

const (
	resultUpdated = "successfully updated"
	resultDeleted = "successfully deleted"
)

// Handler bundles the dependencies for issue HTTP endpoints.
type Handler struct {
	svc          *service.IssueService
	legacyStatus bool
}

// Options tunes response behaviour.
type Options struct {
	// LegacyStatus answers every logical outcome with 200 and signals
	// failures only through the "error" body field.
	LegacyStatus bool
}

func New(svc *service.IssueService, opts Options) *Handler {
	return &Handler{svc: svc, legacyStatus: opts.LegacyStatus}
}

type createReq struct {
	IssueTitle string `json:"issue_title" form:"issue_title"`
	IssueText  string `json:"issue_text" form:"issue_text"`
	CreatedBy  string `json:"created_by" form:"created_by"`
	AssignedTo string `json:"assigned_to" form:"assigned_to"`
	StatusText string `json:"status_text" form:"status_text"`
}

type updateReq struct {
	ID         string    `json:"_id" form:"_id"`
	IssueTitle *string   `json:"issue_title" form:"issue_title"`
	IssueText  *string   `json:"issue_text" form:"issue_text"`
	CreatedBy  *string   `json:"created_by" form:"created_by"`
	AssignedTo *string   `json:"assigned_to" form:"assigned_to"`
	StatusText *string   `json:"status_text" form:"status_text"`
	Open       *flexBool `json:"open" form:"open"`
}

func (r updateReq) open() *bool {
	if r.Open == nil {
		return nil
	}
	b := bool(*r.Open)
	return &b
}

// flexBool accepts a JSON boolean or a string strconv.ParseBool understands,
// since form-style clients send "false" inside JSON bodies.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = flexBool(t)
		return nil
	case string:
		parsed, err := strconv.ParseBool(t)
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		*b = flexBool(parsed)
		return nil
	default:
		return fmt.Errorf("open: unsupported value %s", data)
	}
}

type deleteReq struct {
	ID string `json:"_id" form:"_id"`
}

type resultResp struct {
	Result string `json:"result"`
	ID     string `json:"_id"`
}

type errorResp struct {
	Error string `json:"error"`
	ID    string `json:"_id,omitempty"`
}
