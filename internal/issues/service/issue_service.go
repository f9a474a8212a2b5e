package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/issue-tracker/internal/issues/domain"
	"github.com/GoSim-25-26J-441/issue-tracker/internal/logging"
	"github.com/GoSim-25-26J-441/issue-tracker/internal/metrics"
)

const insertAttempts = 3

// Store is the persistence contract shared by the Postgres and Redis
// backends.
type Store interface {
	FindProject(ctx context.Context, name string) (*domain.Project, error)
	FindOrCreateProject(ctx context.Context, candidate *domain.Project) (*domain.Project, error)
	InsertIssue(ctx context.Context, is *domain.Issue) error
	FindIssues(ctx context.Context, projectID string, f domain.IssueFilter) ([]domain.Issue, error)
	// UpdateIssue applies patch atomically and moves updated_on to now, or
	// one microsecond past its stored value when now is not later.
	UpdateIssue(ctx context.Context, projectID, id string, patch domain.IssuePatch, now time.Time) error
	DeleteIssue(ctx context.Context, projectID, id string) error
	Stats(ctx context.Context) (domain.Stats, error)
	Ping(ctx context.Context) error
}

// Option configures an IssueService.
type Option func(*IssueService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *IssueService) { s.now = now }
}

// IssueService handles issue-related business logic
type IssueService struct {
	store Store
	now   func() time.Time
}

// NewIssueService creates a new issue service
func NewIssueService(store Store, opts ...Option) *IssueService {
	s := &IssueService{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// timestamp is truncated so every backend round-trips it unchanged.
func (s *IssueService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Create validates req, resolves (or creates) the project, and inserts a new
// open issue. The project is not removed if the insert fails.
func (s *IssueService) Create(ctx context.Context, projectName string, req domain.CreateIssueRequest) (is *domain.Issue, err error) {
	defer observe("create", &err)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx).With(zap.String("operation", "create"), zap.String("project", projectName))
	now := s.timestamp()

	project, err := s.store.FindOrCreateProject(ctx, &domain.Project{
		ID:        uuid.NewString(),
		Name:      projectName,
		CreatedOn: now,
	})
	if err != nil {
		log.Error("resolve project failed", zap.Error(err))
		return nil, &domain.StoreError{Message: domain.MsgCouldNotPost, Err: err}
	}

	is = &domain.Issue{
		ProjectID:  project.ID,
		IssueTitle: req.IssueTitle,
		IssueText:  req.IssueText,
		CreatedBy:  req.CreatedBy,
		AssignedTo: req.AssignedTo,
		StatusText: req.StatusText,
		Open:       true,
		CreatedOn:  now,
		UpdatedOn:  now,
	}

	for attempt := 0; attempt < insertAttempts; attempt++ {
		is.ID = uuid.NewString()
		err = s.store.InsertIssue(ctx, is)
		if !errors.Is(err, domain.ErrDuplicateID) {
			break
		}
	}
	if err != nil {
		log.Error("insert issue failed", zap.Error(err))
		return nil, &domain.StoreError{Message: domain.MsgCouldNotPost, Err: err}
	}

	log.Debug("issue created", zap.String("issue_id", is.ID))
	return is, nil
}

// List returns the project's issues matching the query filter. A project
// that does not exist is an error, never an empty list.
func (s *IssueService) List(ctx context.Context, projectName string, query map[string][]string) (out []domain.Issue, err error) {
	defer observe("list", &err)

	log := logging.FromContext(ctx).With(zap.String("operation", "list"), zap.String("project", projectName))

	project, err := s.store.FindProject(ctx, projectName)
	if err != nil {
		if errors.Is(err, domain.ErrProjectNotFound) {
			return nil, &domain.NotFoundError{Message: domain.MsgProjectNotFound, Err: err}
		}
		log.Error("find project failed", zap.Error(err))
		return nil, &domain.StoreError{Message: domain.MsgCouldNotGet, Err: err}
	}

	filter, err := domain.ParseIssueFilter(query)
	if err != nil {
		log.Debug("rejected filter", zap.Error(err))
		return nil, &domain.ValidationError{Message: domain.MsgCouldNotGet}
	}
	if filter.ID != nil && !validID(*filter.ID) {
		return []domain.Issue{}, nil
	}

	out, err = s.store.FindIssues(ctx, project.ID, filter)
	if err != nil {
		log.Error("find issues failed", zap.Error(err))
		return nil, &domain.StoreError{Message: domain.MsgCouldNotGet, Err: err}
	}
	return out, nil
}

// Update applies patch to the issue identified by id within the project
// and refreshes updated_on. Only the sent fields are written.
func (s *IssueService) Update(ctx context.Context, projectName, id string, patch domain.IssuePatch) (err error) {
	defer observe("update", &err)

	if id == "" {
		return &domain.ValidationError{Message: domain.MsgMissingID}
	}
	if patch.Empty() {
		return &domain.ValidationError{Message: domain.MsgNoUpdateFields}
	}

	log := logging.FromContext(ctx).With(
		zap.String("operation", "update"),
		zap.String("project", projectName),
		zap.String("issue_id", id),
	)

	project, err := s.store.FindProject(ctx, projectName)
	if err != nil {
		return s.classify(log, domain.MsgCouldNotUpdate, err)
	}
	if !validID(id) {
		return s.classify(log, domain.MsgCouldNotUpdate, domain.ErrInvalidID)
	}
	if err := s.store.UpdateIssue(ctx, project.ID, id, patch, s.timestamp()); err != nil {
		return s.classify(log, domain.MsgCouldNotUpdate, err)
	}
	return nil
}

// Delete removes the issue identified by id from the project.
func (s *IssueService) Delete(ctx context.Context, projectName, id string) (err error) {
	defer observe("delete", &err)

	if id == "" {
		return &domain.ValidationError{Message: domain.MsgMissingID}
	}

	log := logging.FromContext(ctx).With(
		zap.String("operation", "delete"),
		zap.String("project", projectName),
		zap.String("issue_id", id),
	)

	project, err := s.store.FindProject(ctx, projectName)
	if err != nil {
		return s.classify(log, domain.MsgCouldNotDelete, err)
	}
	if !validID(id) {
		return s.classify(log, domain.MsgCouldNotDelete, domain.ErrInvalidID)
	}
	if err := s.store.DeleteIssue(ctx, project.ID, id); err != nil {
		return s.classify(log, domain.MsgCouldNotDelete, err)
	}
	return nil
}

// Stats reports stored record counts.
func (s *IssueService) Stats(ctx context.Context) (domain.Stats, error) {
	return s.store.Stats(ctx)
}

// Ping checks the backing store.
func (s *IssueService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// classify maps a store error to NotFoundError or StoreError, both carrying
// the operation's client message.
func (s *IssueService) classify(log *zap.Logger, message string, err error) error {
	if errors.Is(err, domain.ErrProjectNotFound) ||
		errors.Is(err, domain.ErrIssueNotFound) ||
		errors.Is(err, domain.ErrInvalidID) {
		log.Debug("target not found", zap.Error(err))
		return &domain.NotFoundError{Message: message, Err: err}
	}
	log.Error("store operation failed", zap.Error(err))
	return &domain.StoreError{Message: message, Err: err}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func observe(operation string, errp *error) {
	metrics.IssueOperationsTotal.WithLabelValues(operation, Outcome(*errp)).Inc()
}

// Outcome names the error class of err for metrics and logs.
func Outcome(err error) string {
	var (
		ve *domain.ValidationError
		ne *domain.NotFoundError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &ne):
		return "not_found"
	default:
		return "store"
	}
}
