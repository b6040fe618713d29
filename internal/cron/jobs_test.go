package cron

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ovasilenko/chatmarket-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

type stubSweeper struct {
	swept int
	err   error
	calls int
}

func (s *stubSweeper) SweepExpired(context.Context) (int, error) {
	s.calls++
	return s.swept, s.err
}

func TestBasketExpiryJobRuns(t *testing.T) {
	t.Parallel()
	sweeper := &stubSweeper{swept: 3}
	job, err := NewBasketExpiryJob(BasketExpiryJobParams{Logger: testLogger(), Baskets: sweeper})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	if job.Name() != "basket-expiry" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}
}

func TestBasketExpiryJobWrapsError(t *testing.T) {
	t.Parallel()
	cause := errors.New("db down")
	job, _ := NewBasketExpiryJob(BasketExpiryJobParams{Logger: testLogger(), Baskets: &stubSweeper{err: cause}})

	err := job.Run(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if !strings.Contains(err.Error(), "basket expiry sweep") {
		t.Fatalf("missing context in %q", err.Error())
	}
}

func TestBasketExpiryJobRequiresDeps(t *testing.T) {
	t.Parallel()
	if _, err := NewBasketExpiryJob(BasketExpiryJobParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected error without basket service")
	}
	if _, err := NewBasketExpiryJob(BasketExpiryJobParams{Baskets: &stubSweeper{}}); err == nil {
		t.Fatal("expected error without logger")
	}
}

type stubPruner struct {
	deleted int64
	err     error
	cutoff  time.Time
}

func (s *stubPruner) DeletePublishedBefore(cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.deleted, s.err
}

func TestOutboxRetentionJobUsesRetentionCutoff(t *testing.T) {
	t.Parallel()
	pruner := &stubPruner{deleted: 12}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		Repository: pruner,
		Retention:  48 * time.Hour,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	before := time.Now().UTC().Add(-48 * time.Hour)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	after := time.Now().UTC().Add(-48 * time.Hour)

	if pruner.cutoff.Before(before) || pruner.cutoff.After(after) {
		t.Fatalf("cutoff %v outside expected window [%v, %v]", pruner.cutoff, before, after)
	}
}

func TestOutboxRetentionJobWrapsError(t *testing.T) {
	t.Parallel()
	cause := errors.New("db down")
	job, _ := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		Repository: &stubPruner{err: cause},
	})

	err := job.Run(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

type stubJob struct {
	name string
	runs int
	err  error
}

func (j *stubJob) Name() string              { return j.name }
func (j *stubJob) Run(context.Context) error { j.runs++; return j.err }

type alwaysLock struct{ releases int }

func (l *alwaysLock) Acquire(context.Context) (bool, error) { return true, nil }
func (l *alwaysLock) Release(context.Context) error         { l.releases++; return nil }

type neverLock struct{}

func (neverLock) Acquire(context.Context) (bool, error) { return false, nil }
func (neverLock) Release(context.Context) error         { return nil }

func TestRunCycleRunsEveryJob(t *testing.T) {
	t.Parallel()
	first := &stubJob{name: "first"}
	second := &stubJob{name: "second", err: errors.New("boom")}
	third := &stubJob{name: "third"}
	lock := &alwaysLock{}

	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(first, second, third),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	err = svc.runCycle(context.Background())
	if err == nil || !strings.Contains(err.Error(), "second: boom") {
		t.Fatalf("expected the failing job surfaced, got %v", err)
	}
	// One failing job must not stop the ones after it.
	if first.runs != 1 || second.runs != 1 || third.runs != 1 {
		t.Fatalf("runs: %d %d %d", first.runs, second.runs, third.runs)
	}
	if lock.releases != 1 {
		t.Fatalf("lock released %d times", lock.releases)
	}
}

func TestRunCycleSkipsWhenLockHeldElsewhere(t *testing.T) {
	t.Parallel()
	job := &stubJob{name: "only"}

	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     neverLock{},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job ran %d times without the lock", job.runs)
	}
}
