package inmemory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dvloznov/invoice-agent/internal/jobs"
)

func TestStore_SaveAndGet(t *testing.T) {
	s := NewStore(10)
	ctx := context.Background()
	job := &jobs.Job{JobID: "j1", Type: jobs.JobTypeIntake, Status: jobs.JobStatusPending}

	if err := s.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}
	job.Status = jobs.JobStatusFailed

	got, err := s.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != jobs.JobStatusPending {
		t.Errorf("stored job changed through caller pointer: %s", got.Status)
	}

	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
	if err := s.SaveJob(ctx, &jobs.Job{}); err == nil {
		t.Error("expected error for empty job id")
	}
}

func TestStore_ListJobs(t *testing.T) {
	s := NewStore(10)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	seed := []*jobs.Job{
		{JobID: "a", Type: jobs.JobTypeIntake, Status: jobs.JobStatusCompleted, SubmitterID: 1, CreatedAt: base},
		{JobID: "b", Type: jobs.JobTypeDecision, Status: jobs.JobStatusCompleted, CreatedAt: base.Add(time.Minute)},
		{JobID: "c", Type: jobs.JobTypeIntake, Status: jobs.JobStatusFailed, SubmitterID: 2, CreatedAt: base.Add(2 * time.Minute)},
		{JobID: "d", Type: jobs.JobTypeIntake, Status: jobs.JobStatusRunning, SubmitterID: 1, CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, j := range seed {
		if err := s.SaveJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{name: "all newest first", filter: jobs.JobFilter{}, want: []string{"d", "c", "b", "a"}},
		{name: "by type", filter: jobs.JobFilter{Type: jobs.JobTypeIntake}, want: []string{"d", "c", "a"}},
		{name: "by status", filter: jobs.JobFilter{Status: jobs.JobStatusCompleted}, want: []string{"b", "a"}},
		{name: "by submitter", filter: jobs.JobFilter{SubmitterID: 1}, want: []string{"d", "a"}},
		{name: "limit", filter: jobs.JobFilter{Limit: 2}, want: []string{"d", "c"}},
		{name: "offset", filter: jobs.JobFilter{Offset: 3}, want: []string{"a"}},
		{name: "offset past end", filter: jobs.JobFilter{Offset: 9}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListJobs failed: %v", err)
			}
			ids := make([]string, len(got))
			for i, j := range got {
				ids[i] = j.JobID
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.want) {
				t.Errorf("ids = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestStore_HistoryKeepsUnfinishedJobs(t *testing.T) {
	s := NewStore(2)
	ctx := context.Background()
	base := time.Now()

	_ = s.SaveJob(ctx, &jobs.Job{JobID: "running", Status: jobs.JobStatusRunning, CreatedAt: base})
	for i := 1; i <= 3; i++ {
		_ = s.SaveJob(ctx, &jobs.Job{JobID: fmt.Sprintf("done%d", i), Status: jobs.JobStatusCompleted, CreatedAt: base.Add(time.Duration(i) * time.Second)})
	}

	all, _ := s.ListJobs(ctx, jobs.JobFilter{})
	if len(all) != 2 {
		t.Fatalf("kept %d jobs, want 2", len(all))
	}
	if _, err := s.GetJob(ctx, "running"); err != nil {
		t.Error("running job was evicted")
	}
	if _, err := s.GetJob(ctx, "done3"); err != nil {
		t.Error("newest finished job was evicted")
	}
}

func TestStore_UpdateJobStatus(t *testing.T) {
	s := NewStore(0)
	ctx := context.Background()
	_ = s.SaveJob(ctx, &jobs.Job{JobID: "j", Status: jobs.JobStatusPending})

	if err := s.UpdateJobStatus(ctx, "j", jobs.JobStatusFailed, "boom"); err != nil {
		t.Fatalf("UpdateJobStatus failed: %v", err)
	}
	got, _ := s.GetJob(ctx, "j")
	if got.Status != jobs.JobStatusFailed || got.Error != "boom" {
		t.Errorf("job = %+v", got)
	}
	if err := s.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, ""); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}
