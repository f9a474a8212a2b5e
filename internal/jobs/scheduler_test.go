package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GoSim-25-26J-441/issue-tracker/internal/issues/domain"
	"github.com/GoSim-25-26J-441/issue-tracker/internal/metrics"
)

type stubSource struct {
	stats domain.Stats
	err   error
	calls atomic.Int32
}

func (s *stubSource) Stats(context.Context) (domain.Stats, error) {
	s.calls.Add(1)
	return s.stats, s.err
}

func TestRefreshStatsSetsGauges(t *testing.T) {
	src := &stubSource{stats: domain.Stats{Projects: 3, Issues: 7, OpenIssues: 5}}
	s := NewScheduler(src, zaptest.NewLogger(t))

	require.NoError(t, s.RefreshStats(context.Background()))

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.ProjectsStored))
	assert.Equal(t, 7.0, testutil.ToFloat64(metrics.IssuesStored))
	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.OpenIssuesStored))
}

func TestRefreshStatsCountsErrors(t *testing.T) {
	src := &stubSource{err: errors.New("store down")}
	s := NewScheduler(src, nil)

	before := testutil.ToFloat64(metrics.StatsRefreshErrors)
	err := s.RefreshStats(context.Background())

	require.Error(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.StatsRefreshErrors))
}

func TestStartRunsImmediately(t *testing.T) {
	src := &stubSource{stats: domain.Stats{Projects: 1}}
	s := NewScheduler(src, zaptest.NewLogger(t))

	// Daily at midnight: only the initial refresh runs during the test.
	require.NoError(t, s.Start("0 0 0 * * *"))
	s.Stop()

	assert.Equal(t, int32(1), src.calls.Load())
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	src := &stubSource{}
	s := NewScheduler(src, nil)

	err := s.Start("every minute please")
	require.Error(t, err)
	assert.Equal(t, int32(0), src.calls.Load())
}

func TestScheduleRunsJob(t *testing.T) {
	s := NewScheduler(&stubSource{}, nil)

	ran := make(chan struct{}, 1)
	require.NoError(t, s.Schedule("tick", "* * * * * *", func(ctx context.Context) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		select {
		case ran <- struct{}{}:
		default:
		}
	}))
	require.NoError(t, s.Start("0 0 0 * * *"))
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not run")
	}
}
