package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GoSim-25-26J-441/issue-tracker/internal/issues/domain"
)

// Key layout, relative to the configured prefix:
//
//	{p}:project-name:{name}        project JSON, written with SETNX
//	{p}:projects                   set of project ids
//	{p}:issue:{id}                 issue JSON
//	{p}:project-issues:{projectID} zset of issue ids scored by insert sequence
//	{p}:issue-seq                  insert sequence counter
//	{p}:issues                     set of all issue ids
//	{p}:issues:open                set of open issue ids
const (
	projectNameKeyPart   = "project-name"
	projectIssuesKeyPart = "project-issues"
)

// RedisStore keeps projects and issues as JSON documents in Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string

	// afterRead runs between the read and the write of UpdateIssue.
	afterRead func()
}

// NewRedisStore creates a RedisStore. An empty prefix defaults to
// "issuetracker".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "issuetracker"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) projectNameKey(name string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, projectNameKeyPart, name)
}

func (r *RedisStore) projectIssuesKey(projectID string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, projectIssuesKeyPart, projectID)
}

func (r *RedisStore) issueKey(id string) string { return r.prefix + ":issue:" + id }
func (r *RedisStore) projectsKey() string { return r.prefix + ":projects" }
func (r *RedisStore) issuesKey() string { return r.prefix + ":issues" }
func (r *RedisStore) openIssuesKey() string { return r.prefix + ":issues:open" }
func (r *RedisStore) issueSeqKey() string { return r.prefix + ":issue-seq" }

// updateAttempts bounds optimistic retries when a watched issue changes
// between read and write.
const updateAttempts = 16

// createProjectScript claims the project name and indexes the project id
// in one step. KEYS: name key, projects set. ARGV: project JSON, id.
var createProjectScript = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 1 then
  redis.call('SADD', KEYS[2], ARGV[2])
  return 1
end
return 0
`)

// FindProject returns the project with the given name or ErrProjectNotFound.
func (r *RedisStore) FindProject(ctx context.Context, name string) (*domain.Project, error) {
	data, err := r.client.Get(ctx, r.projectNameKey(name)).Result()
	if err == redis.Nil {
		return nil, domain.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	var p domain.Project
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project: %w", err)
	}
	return &p, nil
}

// FindOrCreateProject stores candidate under its name unless a project with
// that name already exists, and returns whichever project owns the name.
func (r *RedisStore) FindOrCreateProject(ctx context.Context, candidate *domain.Project) (*domain.Project, error) {
	data, err := json.Marshal(candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal project: %w", err)
	}

	created, err := createProjectScript.Run(ctx, r.client,
		[]string{r.projectNameKey(candidate.Name), r.projectsKey()},
		data, candidate.ID,
	).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	if created == 0 {
		return r.FindProject(ctx, candidate.Name)
	}

	p := *candidate
	return &p, nil
}

// InsertIssue stores a new issue. It returns ErrDuplicateID when the id is
// already taken.
func (r *RedisStore) InsertIssue(ctx context.Context, is *domain.Issue) error {
	data, err := json.Marshal(is)
	if err != nil {
		return fmt.Errorf("failed to marshal issue: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.issueKey(is.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to insert issue: %w", err)
	}
	if !created {
		return domain.ErrDuplicateID
	}

	seq, err := r.client.Incr(ctx, r.issueSeqKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to sequence issue: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, r.projectIssuesKey(is.ProjectID), redis.Z{
		Score:  float64(seq),
		Member: is.ID,
	})
	pipe.SAdd(ctx, r.issuesKey(), is.ID)
	if is.Open {
		pipe.SAdd(ctx, r.openIssuesKey(), is.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index issue: %w", err)
	}
	return nil
}

// FindIssues returns the project's issues matching f in insertion order.
func (r *RedisStore) FindIssues(ctx context.Context, projectID string, f domain.IssueFilter) ([]domain.Issue, error) {
	var ids []string
	if f.ID != nil {
		// Membership check keeps the lookup scoped to the project.
		_, err := r.client.ZScore(ctx, r.projectIssuesKey(projectID), *f.ID).Result()
		if err == redis.Nil {
			return []domain.Issue{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up issue: %w", err)
		}
		ids = []string{*f.ID}
	} else {
		var err error
		ids, err = r.client.ZRange(ctx, r.projectIssuesKey(projectID), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list issue ids: %w", err)
		}
	}

	out := make([]domain.Issue, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.issueKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load issues: %w", err)
	}

	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// deleted between ZRANGE and MGET
			continue
		}
		var is domain.Issue
		if err := json.Unmarshal([]byte(raw), &is); err != nil {
			return nil, fmt.Errorf("failed to unmarshal issue: %w", err)
		}
		if is.ProjectID == projectID && f.Matches(is) {
			out = append(out, is)
		}
	}
	return out, nil
}

// GetIssue returns the issue with id in the given project.
func (r *RedisStore) GetIssue(ctx context.Context, projectID, id string) (*domain.Issue, error) {
	data, err := r.client.Get(ctx, r.issueKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrIssueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}

	var is domain.Issue
	if err := json.Unmarshal([]byte(data), &is); err != nil {
		return nil, fmt.Errorf("failed to unmarshal issue: %w", err)
	}
	if is.ProjectID != projectID {
		return nil, domain.ErrIssueNotFound
	}
	return &is, nil
}

// UpdateIssue applies patch to an existing issue. The read-merge-write runs
// under WATCH and is retried when another writer touches the issue first.
func (r *RedisStore) UpdateIssue(ctx context.Context, projectID, id string, patch domain.IssuePatch, now time.Time) error {
	key := r.issueKey(id)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return domain.ErrIssueNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get issue: %w", err)
		}

		var is domain.Issue
		if err := json.Unmarshal([]byte(data), &is); err != nil {
			return fmt.Errorf("failed to unmarshal issue: %w", err)
		}
		if is.ProjectID != projectID {
			return domain.ErrIssueNotFound
		}
		if r.afterRead != nil {
			r.afterRead()
		}

		patch.Apply(&is, now)
		updated, err := json.Marshal(&is)
		if err != nil {
			return fmt.Errorf("failed to marshal issue: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			if is.Open {
				pipe.SAdd(ctx, r.openIssuesKey(), is.ID)
			} else {
				pipe.SRem(ctx, r.openIssuesKey(), is.ID)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < updateAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrIssueNotFound) {
			return fmt.Errorf("failed to update issue: %w", err)
		}
		return err
	}
	return fmt.Errorf("failed to update issue after %d attempts: %w", updateAttempts, redis.TxFailedErr)
}

// DeleteIssue removes the issue with id from the given project.
func (r *RedisStore) DeleteIssue(ctx context.Context, projectID, id string) error {
	if _, err := r.GetIssue(ctx, projectID, id); err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, r.issueKey(id))
	pipe.ZRem(ctx, r.projectIssuesKey(projectID), id)
	pipe.SRem(ctx, r.issuesKey(), id)
	pipe.SRem(ctx, r.openIssuesKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete issue: %w", err)
	}
	if del.Val() == 0 {
		return domain.ErrIssueNotFound
	}
	return nil
}

// Stats counts stored projects and issues.
func (r *RedisStore) Stats(ctx context.Context) (domain.Stats, error) {
	pipe := r.client.Pipeline()
	projects := pipe.SCard(ctx, r.projectsKey())
	issues := pipe.SCard(ctx, r.issuesKey())
	open := pipe.SCard(ctx, r.openIssuesKey())
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.Stats{}, fmt.Errorf("failed to count records: %w", err)
	}
	return domain.Stats{
		Projects:   projects.Val(),
		Issues:     issues.Val(),
		OpenIssues: open.Val(),
	}, nil
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
