package repository

import (
	"context"
	"errors"
	"testing"

	"auditflow/backend/internal/validation/domain"
)

func TestMemoryRepository_Jobs(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	for seq := int64(1); seq <= 3; seq++ {
		if err := r.CreateJob(ctx, &domain.Job{ID: "j", SubmissionID: "s1", Seq: seq, Status: domain.JobQueued}); err != nil {
			t.Fatalf("CreateJob(%d): %v", seq, err)
		}
	}
	if err := r.CreateJob(ctx, &domain.Job{SubmissionID: "s1", Seq: 2}); !errors.Is(err, ErrDuplicateJob) {
		t.Errorf("duplicate seq err = %v, want ErrDuplicateJob", err)
	}

	latest, err := r.LatestJob(ctx, "s1")
	if err != nil || latest == nil || latest.Seq != 3 {
		t.Fatalf("LatestJob = %+v, %v", latest, err)
	}
	if none, _ := r.LatestJob(ctx, "other"); none != nil {
		t.Errorf("LatestJob for unknown submission = %+v, want nil", none)
	}

	done, _ := r.GetJob(ctx, "s1", 1)
	done.Status = domain.JobCompleted
	if err := r.UpdateJob(ctx, done); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if err := r.SupersedeOlder(ctx, "s1", 3); err != nil {
		t.Fatalf("SupersedeOlder: %v", err)
	}
	want := map[int64]domain.JobStatus{1: domain.JobCompleted, 2: domain.JobSuperseded, 3: domain.JobQueued}
	for seq, status := range want {
		j, _ := r.GetJob(ctx, "s1", seq)
		if j.Status != status {
			t.Errorf("job %d status = %s, want %s", seq, j.Status, status)
		}
	}
}
