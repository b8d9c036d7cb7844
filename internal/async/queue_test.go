package async

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestWorkerQueueProcessesAllJobs(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	var failed atomic.Int32
	q := NewWorkerQueue(func(_ context.Context, job Job) error {
		mu.Lock()
		seen = append(seen, job.ID)
		mu.Unlock()
		if job.ID == "bad" {
			return errors.New("boom")
		}
		return nil
	}, nil, WithWorkers(3), WithQueueSize(2), WithCompletion(func(_ Job, err error) {
		if err != nil {
			failed.Add(1)
		}
	}))

	want := []string{"bad"}
	for i := 0; i < 10; i++ {
		want = append(want, fmt.Sprintf("job-%02d", i))
	}
	for _, id := range want {
		if err := q.Enqueue(context.Background(), Job{ID: id}); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}
	q.Shutdown(context.Background())

	sort.Strings(seen)
	sort.Strings(want)
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Fatalf("processed jobs mismatch (-want +got):\n%s", diff)
	}
	if failed.Load() != 1 {
		t.Fatalf("failed = %d, want 1", failed.Load())
	}
}

func TestEnqueueAfterShutdown(t *testing.T) {
	q := NewWorkerQueue(func(context.Context, Job) error { return nil }, nil)
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())
	if err := q.Enqueue(context.Background(), Job{ID: "late"}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Enqueue after shutdown = %v, want ErrQueueClosed", err)
	}
}

func TestHandlerTimeout(t *testing.T) {
	errCh := make(chan error, 1)
	q := NewWorkerQueue(func(ctx context.Context, _ Job) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil, WithWorkers(1), WithProcessTimeout(20*time.Millisecond), WithCompletion(func(_ Job, err error) {
		errCh <- err
	}))
	if err := q.Enqueue(context.Background(), Job{ID: "slow"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err = %v, want deadline exceeded", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler never timed out")
	}
	q.Shutdown(context.Background())
}

func TestBaseContextCancelsJobs(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	errCh := make(chan error, 1)
	q := NewWorkerQueue(func(ctx context.Context, _ Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, nil, WithWorkers(1), WithBaseContext(base), WithCompletion(func(_ Job, err error) {
		errCh <- err
	}))
	if err := q.Enqueue(context.Background(), Job{ID: "cancelled"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-started
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job ignored base context cancellation")
	}
	q.Shutdown(context.Background())
}
