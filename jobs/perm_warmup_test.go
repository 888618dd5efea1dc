package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	jobmetrics "github.com/meridian-admin/meridian-admin/internal/jobs"
)

type stubRefresher struct {
	refreshed []int64
	assigned  []int64
	failFor   map[int64]error
}

func (s *stubRefresher) RefreshPermissions(ctx context.Context, userID int64) ([]string, error) {
	if err := s.failFor[userID]; err != nil {
		return nil, err
	}
	s.refreshed = append(s.refreshed, userID)
	return []string{"users:view"}, nil
}

func (s *stubRefresher) AssignedUserIDs(ctx context.Context) ([]int64, error) {
	return s.assigned, nil
}

func newTestJob(refresher *stubRefresher) *PermCacheWarmupJob {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	return NewPermCacheWarmupJob(refresher, slog.Default(), metrics)
}

func TestHandleWarmupRefreshesUsers(t *testing.T) {
	refresher := &stubRefresher{}
	job := newTestJob(refresher)

	task, err := NewPermCacheWarmupTask([]int64{5, 6})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.HandleWarmup(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(refresher.refreshed) != 2 {
		t.Fatalf("expected 2 refreshes, got %v", refresher.refreshed)
	}
}

func TestHandleWarmupSkipsRetryOnBadPayload(t *testing.T) {
	job := newTestJob(&stubRefresher{})
	task := asynq.NewTask(TaskPermCacheWarmup, []byte("not json"))
	err := job.HandleWarmup(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestHandleWarmupToleratesPartialFailure(t *testing.T) {
	refresher := &stubRefresher{failFor: map[int64]error{5: errors.New("boom")}}
	job := newTestJob(refresher)

	task, err := NewPermCacheWarmupTask([]int64{5, 6})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.HandleWarmup(context.Background(), task); err != nil {
		t.Fatalf("partial failure should not fail the task, got %v", err)
	}
	if len(refresher.refreshed) != 1 || refresher.refreshed[0] != 6 {
		t.Fatalf("expected user 6 refreshed, got %v", refresher.refreshed)
	}
}

func TestHandleWarmupFailsWhenAllFail(t *testing.T) {
	refresher := &stubRefresher{failFor: map[int64]error{5: errors.New("boom")}}
	job := newTestJob(refresher)

	task, err := NewPermCacheWarmupTask([]int64{5})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.HandleWarmup(context.Background(), task); err == nil {
		t.Fatalf("expected error when every refresh fails")
	}
}

func TestHandleRefreshEnumeratesUsers(t *testing.T) {
	refresher := &stubRefresher{assigned: []int64{1, 2, 3}}
	job := newTestJob(refresher)

	if err := job.HandleRefresh(context.Background(), NewPermCacheRefreshTask()); err != nil {
		t.Fatalf("handle refresh: %v", err)
	}
	if len(refresher.refreshed) != 3 {
		t.Fatalf("expected 3 refreshes, got %v", refresher.refreshed)
	}
}
