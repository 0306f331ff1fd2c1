package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/bank-importers/internal/jobs"
)

func waitForSettled(t *testing.T, store *Store, want int) []*jobs.ImportStatementJob {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		done, _ := store.ListJobs(context.Background(), jobs.JobFilter{Status: jobs.JobStatusCompleted})
		failed, _ := store.ListJobs(context.Background(), jobs.JobFilter{Status: jobs.JobStatusFailed})
		if len(done)+len(failed) >= want {
			return append(done, failed...)
		}
		select {
		case <-deadline:
			t.Fatalf("jobs never settled: %d completed, %d failed, want %d total", len(done), len(failed), want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestQueueProcessesJobs(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 2, store)
	defer q.Close()

	ctx := context.Background()
	var mu sync.Mutex
	seen := map[string]bool{}

	err := q.Start(ctx, func(ctx context.Context, job *jobs.ImportStatementJob) (int, error) {
		mu.Lock()
		seen[job.Path] = true
		mu.Unlock()
		return 3, nil
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for _, path := range []string{"a.csv", "b.csv", "c.csv"} {
		if err := q.PublishImport(ctx, &jobs.ImportStatementJob{Path: path}); err != nil {
			t.Fatalf("PublishImport(%s) error = %v", path, err)
		}
	}

	settled := waitForSettled(t, store, 3)
	for _, job := range settled {
		if job.Status != jobs.JobStatusCompleted {
			t.Errorf("job %s status = %s, want completed", job.Path, job.Status)
		}
		if job.Records != 3 {
			t.Errorf("job %s records = %d, want 3", job.Path, job.Records)
		}
		if job.StartedAt == nil || job.CompletedAt == nil {
			t.Errorf("job %s missing timestamps", job.Path)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Errorf("handler saw %d jobs, want 3", len(seen))
	}
}

func TestQueueRecordsFailureWithoutRetry(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	ctx := context.Background()
	var mu sync.Mutex
	calls := 0

	err := q.Start(ctx, func(ctx context.Context, job *jobs.ImportStatementJob) (int, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return 0, errors.New("unmapped type")
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := q.PublishImport(ctx, &jobs.ImportStatementJob{Path: "bad.csv"}); err != nil {
		t.Fatalf("PublishImport() error = %v", err)
	}

	settled := waitForSettled(t, store, 1)
	if settled[0].Status != jobs.JobStatusFailed {
		t.Errorf("status = %s, want failed", settled[0].Status)
	}
	if settled[0].Error != "unmapped type" {
		t.Errorf("error = %q", settled[0].Error)
	}

	// Give any erroneous retry a chance to run.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("handler called %d times, want exactly once", calls)
	}
}

func TestQueuePublishAssignsDefaults(t *testing.T) {
	store := NewStore()
	q := NewQueue(1, 1, store)
	defer q.Close()

	job := &jobs.ImportStatementJob{Path: "a.csv"}
	if err := q.PublishImport(context.Background(), job); err != nil {
		t.Fatalf("PublishImport() error = %v", err)
	}
	if job.JobID == "" {
		t.Error("JobID not assigned")
	}
	if job.Status != jobs.JobStatusPending {
		t.Errorf("Status = %s, want pending", job.Status)
	}
	if job.CreatedAt.IsZero() {
		t.Error("CreatedAt not assigned")
	}
}

func TestQueueClosedRejectsPublish(t *testing.T) {
	q := NewQueue(1, 1, NewStore())
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := q.PublishImport(context.Background(), &jobs.ImportStatementJob{Path: "a.csv"}); err == nil {
		t.Error("PublishImport() on a closed queue: want error")
	}
}

func TestStore(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for i, id := range []string{"one", "two", "three"} {
		status := jobs.JobStatusCompleted
		if i == 2 {
			status = jobs.JobStatusFailed
		}
		err := store.SaveJob(ctx, &jobs.ImportStatementJob{JobID: id, Status: status})
		if err != nil {
			t.Fatalf("SaveJob(%s) error = %v", id, err)
		}
	}

	got, err := store.GetJob(ctx, "two")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.JobID != "two" {
		t.Errorf("GetJob() = %s", got.JobID)
	}

	if _, err := store.GetJob(ctx, "missing"); err == nil {
		t.Error("GetJob(missing) want error")
	}

	all, err := store.ListJobs(ctx, jobs.JobFilter{})
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListJobs() returned %d jobs, want 3", len(all))
	}
	if all[0].JobID != "one" || all[2].JobID != "three" {
		t.Errorf("ListJobs() order = %s,%s,%s, want insertion order", all[0].JobID, all[1].JobID, all[2].JobID)
	}

	failed, err := store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusFailed})
	if err != nil {
		t.Fatalf("ListJobs(failed) error = %v", err)
	}
	if len(failed) != 1 || failed[0].JobID != "three" {
		t.Errorf("ListJobs(failed) = %v", failed)
	}

	limited, err := store.ListJobs(ctx, jobs.JobFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListJobs(limit) error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("ListJobs(limit 2) returned %d jobs", len(limited))
	}
}

func TestStoreCopiesJobs(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	job := &jobs.ImportStatementJob{JobID: "a", Status: jobs.JobStatusPending}
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob() error = %v", err)
	}
	job.Status = jobs.JobStatusFailed

	got, err := store.GetJob(ctx, "a")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Status != jobs.JobStatusPending {
		t.Errorf("stored job mutated through the caller's pointer; status = %s", got.Status)
	}
}
