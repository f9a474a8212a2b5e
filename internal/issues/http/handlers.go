package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/issue-tracker/internal/issues/domain"
	"github.com/GoSim-25-26J-441/issue-tracker/internal/logging"
)

// bind decodes the body (JSON or form, by content type). An empty body is
// not an error: the zero request then fails the operation's own checks.
// Fields that did decode stay set on obj when err is returned.
func bind(c *gin.Context, obj any, message string) error {
	var err error
	if c.ContentType() == binding.MIMEJSON {
		// Keeps the raw body for bodyID.
		err = c.ShouldBindBodyWithJSON(obj)
	} else {
		err = c.ShouldBind(obj)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		logging.FromContext(c.Request.Context()).Debug("bind request", zap.Error(err))
		return &domain.ValidationError{Message: message}
	}
	return nil
}

// bodyID recovers _id from a JSON body that failed to bind as a whole.
func bodyID(c *gin.Context) string {
	raw, ok := c.Get(gin.BodyBytesKey)
	if !ok {
		return ""
	}
	body, _ := raw.([]byte)
	var v struct {
		ID string `json:"_id"`
	}
	if json.Unmarshal(body, &v) != nil {
		return ""
	}
	return v.ID
}

func (h *Handler) list(c *gin.Context) {
	project := c.Param("project")

	issues, err := h.svc.List(c.Request.Context(), project, c.Request.URL.Query())
	if err != nil {
		var ne *domain.NotFoundError
		if errors.As(err, &ne) {
			c.JSON(h.status(err), []errorResp{{Error: domain.PublicMessage(err)}})
			return
		}
		h.fail(c, err, "")
		return
	}

	c.JSON(http.StatusOK, issues)
}

func (h *Handler) create(c *gin.Context) {
	project := c.Param("project")

	var req createReq
	if err := bind(c, &req, domain.MsgCouldNotPost); err != nil {
		h.fail(c, err, "")
		return
	}

	is, err := h.svc.Create(c.Request.Context(), project, domain.CreateIssueRequest{
		IssueTitle: req.IssueTitle,
		IssueText:  req.IssueText,
		CreatedBy:  req.CreatedBy,
		AssignedTo: req.AssignedTo,
		StatusText: req.StatusText,
	})
	if err != nil {
		h.fail(c, err, "")
		return
	}

	c.JSON(h.successStatus(http.StatusCreated), is)
}

func (h *Handler) update(c *gin.Context) {
	project := c.Param("project")

	var req updateReq
	if err := bind(c, &req, domain.MsgCouldNotUpdate); err != nil {
		if req.ID == "" {
			req.ID = bodyID(c)
		}
		h.fail(c, err, req.ID)
		return
	}

	err := h.svc.Update(c.Request.Context(), project, req.ID, domain.IssuePatch{
		IssueTitle: req.IssueTitle,
		IssueText:  req.IssueText,
		CreatedBy:  req.CreatedBy,
		AssignedTo: req.AssignedTo,
		StatusText: req.StatusText,
		Open:       req.open(),
	})
	if err != nil {
		h.fail(c, err, req.ID)
		return
	}

	c.JSON(http.StatusOK, resultResp{Result: resultUpdated, ID: req.ID})
}

func (h *Handler) delete(c *gin.Context) {
	project := c.Param("project")

	var req deleteReq
	if err := bind(c, &req, domain.MsgCouldNotDelete); err != nil {
		if req.ID == "" {
			req.ID = bodyID(c)
		}
		h.fail(c, err, req.ID)
		return
	}
	if req.ID == "" {
		// net/http leaves DELETE form bodies unparsed; accept the query too.
		req.ID = c.Query("_id")
	}

	if err := h.svc.Delete(c.Request.Context(), project, req.ID); err != nil {
		h.fail(c, err, req.ID)
		return
	}

	c.JSON(http.StatusOK, resultResp{Result: resultDeleted, ID: req.ID})
}

func (h *Handler) fail(c *gin.Context, err error, id string) {
	c.JSON(h.status(err), errorResp{Error: domain.PublicMessage(err), ID: id})
}

// status maps an error to the transport status. In legacy mode every
// outcome is 200.
func (h *Handler) status(err error) int {
	if h.legacyStatus {
		return http.StatusOK
	}

	var (
		ve *domain.ValidationError
		ne *domain.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ne):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) successStatus(code int) int {
	if h.legacyStatus {
		return http.StatusOK
	}
	return code
}
