package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJobRunnerExecutesDueJobs(t *testing.T) {
	s := NewInMemoryStore()
	runner := NewJobRunner(s, time.Second)

	var got []string
	runner.RegisterHandler(JobKindCampaignWave, func(ctx context.Context, payload string) error {
		got = append(got, payload)
		return nil
	})

	id, _ := s.EnqueueJob(JobKindCampaignWave, time.Now().Add(-time.Second), "wave-0", "")
	if _, err := s.EnqueueJob(JobKindCampaignWave, time.Now().Add(time.Hour), "wave-later", ""); err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}

	runner.Poll(context.Background())

	if len(got) != 1 || got[0] != "wave-0" {
		t.Fatalf("expected handler to run once with wave-0, got %v", got)
	}
	j, _ := s.GetJob(id)
	if j.Status != JobStatusDone {
		t.Errorf("job status = %s, want done", j.Status)
	}
}

func TestJobRunnerRetriesFailedJobs(t *testing.T) {
	s := NewInMemoryStore()
	runner := NewJobRunner(s, time.Second)

	calls := 0
	runner.RegisterHandler(JobKindCampaignWave, func(ctx context.Context, payload string) error {
		calls++
		return errors.New("smtp unavailable")
	})

	id, _ := s.EnqueueJob(JobKindCampaignWave, time.Now().Add(-time.Second), "p", "")
	runner.Poll(context.Background())

	if calls != 1 {
		t.Fatalf("expected 1 handler call, got %d", calls)
	}
	j, _ := s.GetJob(id)
	if j.Status != JobStatusQueued {
		t.Errorf("failed job should be requeued, got %s", j.Status)
	}
	if j.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", j.Attempt)
	}
	if !j.RunAt.After(time.Now()) {
		t.Error("retry should be scheduled in the future")
	}
}

func TestJobRunnerUnknownKind(t *testing.T) {
	s := NewInMemoryStore()
	runner := NewJobRunner(s, time.Second)

	id, _ := s.EnqueueJob("mystery", time.Now().Add(-time.Second), "p", "")
	runner.Poll(context.Background())

	j, _ := s.GetJob(id)
	if j.Status != JobStatusQueued {
		t.Errorf("unhandled job should be requeued, got %s", j.Status)
	}
	if j.LastError == "" {
		t.Error("unhandled job should record an error")
	}
}

func TestJobRunnerRecoverStaleJobs(t *testing.T) {
	s := NewInMemoryStore()
	runner := NewJobRunner(s, time.Second)

	id, _ := s.EnqueueJob(JobKindCampaignWave, time.Now().Add(-20*time.Minute), "p", "")
	if _, err := s.ClaimDueJobs(time.Now().Add(-10*time.Minute), 10); err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}

	if err := runner.RecoverStaleJobs(); err != nil {
		t.Fatalf("RecoverStaleJobs failed: %v", err)
	}
	j, _ := s.GetJob(id)
	if j.Status != JobStatusQueued {
		t.Errorf("stale job should be requeued, got %s", j.Status)
	}
}

func TestJobRunnerRunStopsOnCancel(t *testing.T) {
	s := NewInMemoryStore()
	runner := NewJobRunner(s, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
