package service_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/issue-tracker/internal/issues/domain"
	"github.com/GoSim-25-26J-441/issue-tracker/internal/issues/repository"
	"github.com/GoSim-25-26J-441/issue-tracker/internal/issues/service"
)

// fakeClock only moves when told to.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupService(t *testing.T) (*service.IssueService, *repository.RedisStore, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := repository.NewRedisStore(client, "svc")
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	return service.NewIssueService(store, service.WithClock(clock.Now)), store, clock
}

func fullRequest() domain.CreateIssueRequest {
	return domain.CreateIssueRequest{
		IssueTitle: "Bugs in view",
		IssueText:  "Functional test",
		CreatedBy:  "FCC",
		AssignedTo: "Arief",
		StatusText: "Not Done",
	}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func requireErrorMessage(t *testing.T, err error, want string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, domain.PublicMessage(err))
}

func TestCreate(t *testing.T) {
	svc, store, clock := setupService(t)
	ctx := context.Background()

	t.Run("echoes every field", func(t *testing.T) {
		is, err := svc.Create(ctx, "testing123", fullRequest())
		require.NoError(t, err)

		assert.Equal(t, "Bugs in view", is.IssueTitle)
		assert.Equal(t, "Functional test", is.IssueText)
		assert.Equal(t, "FCC", is.CreatedBy)
		assert.Equal(t, "Arief", is.AssignedTo)
		assert.Equal(t, "Not Done", is.StatusText)
		assert.True(t, is.Open)
		assert.True(t, clock.Now().Equal(is.CreatedOn))
		assert.True(t, is.CreatedOn.Equal(is.UpdatedOn))
		_, err = uuid.Parse(is.ID)
		assert.NoError(t, err)
	})

	t.Run("optional fields default to empty", func(t *testing.T) {
		is, err := svc.Create(ctx, "testing123", domain.CreateIssueRequest{
			IssueTitle: "Issue 2", IssueText: "Functional test", CreatedBy: "Arief",
		})
		require.NoError(t, err)
		assert.Equal(t, "", is.AssignedTo)
		assert.Equal(t, "", is.StatusText)
	})

	t.Run("issues share the lazily created project", func(t *testing.T) {
		project, err := store.FindProject(ctx, "testing123")
		require.NoError(t, err)

		list, err := svc.List(ctx, "testing123", nil)
		require.NoError(t, err)
		require.Len(t, list, 2)
		for _, is := range list {
			assert.Equal(t, project.ID, is.ProjectID)
		}
	})

	t.Run("missing required fields inserts nothing", func(t *testing.T) {
		for _, req := range []domain.CreateIssueRequest{
			{IssueText: "x", CreatedBy: "y"},
			{IssueTitle: "x", CreatedBy: "y"},
			{IssueTitle: "x", IssueText: "y"},
		} {
			_, err := svc.Create(ctx, "fresh-project", req)
			requireErrorMessage(t, err, domain.MsgRequiredFieldsMissing)
			var ve *domain.ValidationError
			assert.ErrorAs(t, err, &ve)
		}

		_, err := store.FindProject(ctx, "fresh-project")
		assert.ErrorIs(t, err, domain.ErrProjectNotFound, "a rejected create must not create the project")
	})
}

func TestList(t *testing.T) {
	svc, _, clock := setupService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, "apollo", fullRequest())
	require.NoError(t, err)
	clock.Advance(time.Second)

	req := fullRequest()
	req.CreatedBy = "Alice"
	req.AssignedTo = "Bob"
	b, err := svc.Create(ctx, "apollo", req)
	require.NoError(t, err)

	req.AssignedTo = "Carol"
	c, err := svc.Create(ctx, "apollo", req)
	require.NoError(t, err)

	_, err = svc.Create(ctx, "gemini", fullRequest())
	require.NoError(t, err)

	t.Run("unknown project is an error", func(t *testing.T) {
		out, err := svc.List(ctx, "nowhere", nil)
		assert.Nil(t, out)
		requireErrorMessage(t, err, domain.MsgProjectNotFound)
		var ne *domain.NotFoundError
		assert.ErrorAs(t, err, &ne)
	})

	t.Run("lists only the project's issues", func(t *testing.T) {
		out, err := svc.List(ctx, "apollo", url.Values{})
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, a.ID, out[0].ID)
	})

	t.Run("filter by _id", func(t *testing.T) {
		out, err := svc.List(ctx, "apollo", url.Values{"_id": {b.ID}})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, b.ID, out[0].ID)

		out, err = svc.List(ctx, "apollo", url.Values{"_id": {uuid.NewString()}})
		require.NoError(t, err)
		assert.Empty(t, out)

		out, err = svc.List(ctx, "apollo", url.Values{"_id": {"not-an-id"}})
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("conjunctive filter", func(t *testing.T) {
		out, err := svc.List(ctx, "apollo", url.Values{
			"created_by":  {"Alice"},
			"assigned_to": {"Carol"},
		})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, c.ID, out[0].ID)

		out, err = svc.List(ctx, "apollo", url.Values{
			"created_by": {"FCC"},
			"open":       {"true"},
		})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, a.ID, out[0].ID)
	})

	t.Run("bad filter value", func(t *testing.T) {
		_, err := svc.List(ctx, "apollo", url.Values{"open": {"perhaps"}})
		requireErrorMessage(t, err, domain.MsgCouldNotGet)
	})
}

func TestUpdate(t *testing.T) {
	svc, store, clock := setupService(t)
	ctx := context.Background()

	is, err := svc.Create(ctx, "apollo", fullRequest())
	require.NoError(t, err)
	project, err := store.FindProject(ctx, "apollo")
	require.NoError(t, err)

	t.Run("missing _id", func(t *testing.T) {
		err := svc.Update(ctx, "apollo", "", domain.IssuePatch{IssueTitle: strPtr("x")})
		requireErrorMessage(t, err, domain.MsgMissingID)
	})

	t.Run("no fields leaves record unchanged", func(t *testing.T) {
		err := svc.Update(ctx, "apollo", is.ID, domain.IssuePatch{IssueText: strPtr("")})
		requireErrorMessage(t, err, domain.MsgNoUpdateFields)

		got, err := store.GetIssue(ctx, project.ID, is.ID)
		require.NoError(t, err)
		assert.Equal(t, is.IssueText, got.IssueText)
		assert.True(t, is.UpdatedOn.Equal(got.UpdatedOn))
	})

	t.Run("one field", func(t *testing.T) {
		clock.Advance(time.Minute)
		require.NoError(t, svc.Update(ctx, "apollo", is.ID, domain.IssuePatch{IssueText: strPtr("updated")}))

		got, err := store.GetIssue(ctx, project.ID, is.ID)
		require.NoError(t, err)
		assert.Equal(t, "updated", got.IssueText)
		assert.Equal(t, is.IssueTitle, got.IssueTitle)
		assert.True(t, got.UpdatedOn.After(is.UpdatedOn))
		assert.True(t, is.CreatedOn.Equal(got.CreatedOn))
	})

	t.Run("multiple fields with a frozen clock", func(t *testing.T) {
		before, err := store.GetIssue(ctx, project.ID, is.ID)
		require.NoError(t, err)

		require.NoError(t, svc.Update(ctx, "apollo", is.ID, domain.IssuePatch{
			IssueTitle: strPtr("renamed"),
			StatusText: strPtr("closing"),
			Open:       boolPtr(false),
		}))

		got, err := store.GetIssue(ctx, project.ID, is.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.IssueTitle)
		assert.Equal(t, "closing", got.StatusText)
		assert.False(t, got.Open)
		assert.True(t, got.UpdatedOn.After(before.UpdatedOn), "updated_on must strictly increase")
	})

	t.Run("invalid or unknown _id", func(t *testing.T) {
		for _, id := range []string{"5f665eb46e296f6b9b6a504d", uuid.NewString()} {
			err := svc.Update(ctx, "apollo", id, domain.IssuePatch{IssueTitle: strPtr("x")})
			requireErrorMessage(t, err, domain.MsgCouldNotUpdate)
			var ne *domain.NotFoundError
			assert.ErrorAs(t, err, &ne)
		}
	})

	t.Run("unknown project", func(t *testing.T) {
		err := svc.Update(ctx, "nowhere", is.ID, domain.IssuePatch{IssueTitle: strPtr("x")})
		requireErrorMessage(t, err, domain.MsgCouldNotUpdate)
		assert.ErrorIs(t, err, domain.ErrProjectNotFound)
	})

	t.Run("issue from another project", func(t *testing.T) {
		_, err := svc.Create(ctx, "gemini", fullRequest())
		require.NoError(t, err)

		err = svc.Update(ctx, "gemini", is.ID, domain.IssuePatch{IssueTitle: strPtr("hijack")})
		requireErrorMessage(t, err, domain.MsgCouldNotUpdate)

		got, err := store.GetIssue(ctx, project.ID, is.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.IssueTitle)
	})
}

func TestUpdate_ConcurrentFieldsAllKept(t *testing.T) {
	svc, store, _ := setupService(t)
	ctx := context.Background()

	is, err := svc.Create(ctx, "apollo", fullRequest())
	require.NoError(t, err)

	patches := []domain.IssuePatch{
		{AssignedTo: strPtr("alice")},
		{StatusText: strPtr("done")},
		{IssueTitle: strPtr("retitled")},
		{Open: boolPtr(false)},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(patches))
	for i, p := range patches {
		wg.Add(1)
		go func(i int, p domain.IssuePatch) {
			defer wg.Done()
			errs[i] = svc.Update(ctx, "apollo", is.ID, p)
		}(i, p)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	got, err := store.GetIssue(ctx, is.ProjectID, is.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.AssignedTo)
	assert.Equal(t, "done", got.StatusText)
	assert.Equal(t, "retitled", got.IssueTitle)
	assert.False(t, got.Open)
	assert.True(t, got.UpdatedOn.After(is.UpdatedOn))
}

func TestDelete(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	is, err := svc.Create(ctx, "apollo", fullRequest())
	require.NoError(t, err)

	t.Run("missing _id", func(t *testing.T) {
		requireErrorMessage(t, svc.Delete(ctx, "apollo", ""), domain.MsgMissingID)
	})

	t.Run("unknown _id", func(t *testing.T) {
		requireErrorMessage(t, svc.Delete(ctx, "apollo", uuid.NewString()), domain.MsgCouldNotDelete)
		requireErrorMessage(t, svc.Delete(ctx, "apollo", "garbage"), domain.MsgCouldNotDelete)
	})

	t.Run("unknown project", func(t *testing.T) {
		err := svc.Delete(ctx, "nowhere", is.ID)
		requireErrorMessage(t, err, domain.MsgCouldNotDelete)
		assert.ErrorIs(t, err, domain.ErrProjectNotFound)
	})

	t.Run("removes the issue", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, "apollo", is.ID))

		out, err := svc.List(ctx, "apollo", url.Values{"_id": {is.ID}})
		require.NoError(t, err)
		assert.Empty(t, out)

		requireErrorMessage(t, svc.Delete(ctx, "apollo", is.ID), domain.MsgCouldNotDelete)
	})
}

// failingStore fails every call after the project lookup.
type failingStore struct {
	service.Store
	err error
}

func (f failingStore) FindOrCreateProject(_ context.Context, p *domain.Project) (*domain.Project, error) {
	return p, nil
}

func (f failingStore) FindProject(_ context.Context, name string) (*domain.Project, error) {
	return &domain.Project{ID: "p1", Name: name}, nil
}

func (f failingStore) InsertIssue(context.Context, *domain.Issue) error { return f.err }

func (f failingStore) FindIssues(context.Context, string, domain.IssueFilter) ([]domain.Issue, error) {
	return nil, f.err
}

func (f failingStore) UpdateIssue(context.Context, string, string, domain.IssuePatch, time.Time) error {
	return f.err
}

func (f failingStore) DeleteIssue(context.Context, string, string) error { return f.err }

func TestStoreFailures(t *testing.T) {
	boom := errors.New("connection refused")
	svc := service.NewIssueService(failingStore{err: boom})
	ctx := context.Background()

	_, err := svc.Create(ctx, "p", fullRequest())
	requireErrorMessage(t, err, domain.MsgCouldNotPost)
	var se *domain.StoreError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, boom)

	_, err = svc.List(ctx, "p", nil)
	requireErrorMessage(t, err, domain.MsgCouldNotGet)
	assert.ErrorAs(t, err, &se)

	err = svc.Update(ctx, "p", uuid.NewString(), domain.IssuePatch{IssueTitle: strPtr("x")})
	requireErrorMessage(t, err, domain.MsgCouldNotUpdate)
	assert.ErrorAs(t, err, &se)

	err = svc.Delete(ctx, "p", uuid.NewString())
	requireErrorMessage(t, err, domain.MsgCouldNotDelete)
	assert.ErrorAs(t, err, &se)
}

func TestCreate_RetriesDuplicateIDs(t *testing.T) {
	store := &duplicateOnceStore{}
	svc := service.NewIssueService(store)

	is, err := svc.Create(context.Background(), "p", fullRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, store.inserts)
	assert.Equal(t, store.lastID, is.ID)
}

type duplicateOnceStore struct {
	failingStore
	inserts int
	lastID  string
}

func (d *duplicateOnceStore) InsertIssue(_ context.Context, is *domain.Issue) error {
	d.inserts++
	d.lastID = is.ID
	if d.inserts == 1 {
		return domain.ErrDuplicateID
	}
	return nil
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", service.Outcome(nil))
	assert.Equal(t, "validation", service.Outcome(&domain.ValidationError{Message: "x"}))
	assert.Equal(t, "not_found", service.Outcome(&domain.NotFoundError{Message: "x"}))
	assert.Equal(t, "store", service.Outcome(&domain.StoreError{Message: "x"}))
}
