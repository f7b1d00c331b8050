package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"clipforge/internal/domain"
	"clipforge/internal/localstore"
	"clipforge/internal/provider"
)

func newTestSubmitter(t *testing.T, jobs *fakeJobLedger, points *fakePointsLedger, tasks *fakeTasks, watcher *fakeWatcher) (*Submitter, *localstore.Store) {
	t.Helper()
	local, err := localstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("localstore.New: %v", err)
	}
	s := NewSubmitter(jobs, points, local, nil, tasks, watcher, discardLogger())
	s.newID = func() string { return "job-1" }
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s, local
}

func validRequest() SubmitRequest {
	return SubmitRequest{
		OwnerID:     "user-1",
		DeviceID:    "device-1",
		Mode:        domain.ModeText,
		Prompt:      "a fox at dawn",
		Model:       domain.ModelFast,
		Ratio:       "16:9",
		DurationSec: 5,
	}
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SubmitRequest)
	}{
		{"unknown model", func(r *SubmitRequest) { r.Model = "sora" }},
		{"unsupported ratio", func(r *SubmitRequest) { r.Ratio = "2:1" }},
		{"duration too long", func(r *SubmitRequest) { r.DurationSec = 16 }},
		{"duration zero", func(r *SubmitRequest) { r.DurationSec = 0 }},
		{"text without prompt", func(r *SubmitRequest) { r.Prompt = "" }},
		{"unknown mode", func(r *SubmitRequest) { r.Mode = "style-transfer" }},
		{"image without frame", func(r *SubmitRequest) {
			r.Mode = domain.ModeImage
		}},
		{"frame-pair with three frames", func(r *SubmitRequest) {
			r.Mode = domain.ModeFramePair
			r.FrameAssets = []string{"a", "b", "c"}
		}},
		{"multi-reference without references", func(r *SubmitRequest) {
			r.Mode = domain.ModeMultiReference
		}},
		{"multi-reference too many images", func(r *SubmitRequest) {
			r.Mode = domain.ModeMultiReference
			r.ImageRefs = []string{"1", "2", "3", "4", "5"}
		}},
		{"multi-reference too many videos", func(r *SubmitRequest) {
			r.Mode = domain.ModeMultiReference
			r.VideoRefs = []domain.VideoRef{{URL: "a"}, {URL: "b"}, {URL: "c"}, {URL: "d"}}
		}},
		{"multi-reference video too long", func(r *SubmitRequest) {
			r.Mode = domain.ModeMultiReference
			r.VideoRefs = []domain.VideoRef{{URL: "a", DurationSec: 16}}
		}},
	}

	jobs := newFakeJobLedger()
	points := newFakePointsLedger(10_000)
	s, _ := newTestSubmitter(t, jobs, points, &fakeTasks{}, &fakeWatcher{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := s.Submit(context.Background(), req)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
		})
	}
	if len(jobs.jobs) != 0 {
		t.Fatalf("rejected submissions must not persist records")
	}
}

func TestSubmitInsufficientBalance(t *testing.T) {
	points := newFakePointsLedger(100) // fast 5s costs 500
	s, _ := newTestSubmitter(t, newFakeJobLedger(), points, &fakeTasks{}, &fakeWatcher{})

	_, err := s.Submit(context.Background(), validRequest())
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}
}

func TestSubmitAnonymousSkipsBalanceCheck(t *testing.T) {
	points := newFakePointsLedger(0)
	watcher := &fakeWatcher{}
	s, _ := newTestSubmitter(t, newFakeJobLedger(), points, &fakeTasks{}, watcher)

	req := validRequest()
	req.OwnerID = ""
	job, err := s.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.OwnerID != "" || job.Cost == 0 {
		t.Fatalf("job = %+v", job)
	}
}

func TestSubmitProviderRejectionLeavesNoRecord(t *testing.T) {
	jobs := newFakeJobLedger()
	rejecting := &fakeTasks{createFn: func(_ provider.TaskSpec) (string, error) {
		return "", &domain.ProviderError{StatusCode: 400, Message: "bad prompt"}
	}}
	s, local := newTestSubmitter(t, jobs, newFakePointsLedger(10_000), rejecting, &fakeWatcher{})

	_, err := s.Submit(context.Background(), validRequest())
	var perr *domain.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want ProviderError", err)
	}
	if len(jobs.jobs) != 0 {
		t.Fatalf("rejected submission persisted a ledger record")
	}
	records, _ := local.List("device-1")
	if len(records) != 0 {
		t.Fatalf("rejected submission persisted a device record")
	}
}

func TestSubmitPersistsBothStoresAndWatches(t *testing.T) {
	jobs := newFakeJobLedger()
	points := newFakePointsLedger(10_000)
	watcher := &fakeWatcher{}
	tasks := &fakeTasks{createFn: func(_ provider.TaskSpec) (string, error) { return "task-77", nil }}
	s, local := newTestSubmitter(t, jobs, points, tasks, watcher)

	job, err := s.Submit(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.ProviderJobID != "task-77" {
		t.Fatalf("provider job id = %q", job.ProviderJobID)
	}
	if job.Cost != 500 {
		t.Fatalf("cost = %d, want 500", job.Cost)
	}
	if job.State != domain.JobStatePending {
		t.Fatalf("state = %q", job.State)
	}

	stored, err := jobs.GetByProviderJobID(context.Background(), "task-77")
	if err != nil {
		t.Fatalf("ledger record missing: %v", err)
	}
	if stored.ID != job.ID {
		t.Fatalf("ledger id = %q, want %q", stored.ID, job.ID)
	}

	records, _ := local.List("device-1")
	if len(records) != 1 || records[0].ID != job.ID {
		t.Fatalf("device records = %+v", records)
	}
	if len(watcher.jobs) != 1 || watcher.jobs[0].ProviderJobID != "task-77" {
		t.Fatalf("watcher jobs = %+v", watcher.jobs)
	}

	// Balance is only checked at submission; the charge lands at settlement.
	if balance, _ := points.Balance(context.Background(), "user-1"); balance != 10_000 {
		t.Fatalf("balance after submit = %d, want 10000", balance)
	}
}

func TestSubmitUploadsRawFramesBeforeProviderContact(t *testing.T) {
	jobs := newFakeJobLedger()
	objects := &fakeObjects{}
	var gotSpec provider.TaskSpec
	tasks := &fakeTasks{createFn: func(spec provider.TaskSpec) (string, error) {
		gotSpec = spec
		return "task-1", nil
	}}
	local, err := localstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("localstore.New: %v", err)
	}
	s := NewSubmitter(jobs, newFakePointsLedger(10_000), local, objects, tasks, &fakeWatcher{}, discardLogger())
	s.newID = func() string { return "job-1" }

	req := validRequest()
	req.Mode = domain.ModeFramePair
	req.RawFrames = []RawAsset{{Data: []byte("png"), ContentType: "image/png"}}
	job, err := s.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(job.FrameAssets) != 1 || len(gotSpec.FilePaths) != 1 {
		t.Fatalf("frame assets = %v, spec filePaths = %v", job.FrameAssets, gotSpec.FilePaths)
	}
}

func TestSubmitUploadFailureAbortsBeforeProvider(t *testing.T) {
	jobs := newFakeJobLedger()
	objects := &fakeObjects{uploadErr: errors.New("disk full")}
	created := false
	tasks := &fakeTasks{createFn: func(provider.TaskSpec) (string, error) {
		created = true
		return "task-1", nil
	}}
	local, err := localstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("localstore.New: %v", err)
	}
	s := NewSubmitter(jobs, newFakePointsLedger(10_000), local, objects, tasks, &fakeWatcher{}, discardLogger())

	req := validRequest()
	req.Mode = domain.ModeFramePair
	req.RawFrames = []RawAsset{{Data: []byte("png"), ContentType: "image/png"}}
	_, err = s.Submit(context.Background(), req)
	if !errors.Is(err, domain.ErrUploadFailed) {
		t.Fatalf("error = %v, want ErrUploadFailed", err)
	}
	if created {
		t.Fatalf("provider contacted after upload failure")
	}
	if len(jobs.jobs) != 0 {
		t.Fatalf("upload failure persisted a record")
	}
}

func TestSubmitVideoReferencesDoubleRate(t *testing.T) {
	s, _ := newTestSubmitter(t, newFakeJobLedger(), newFakePointsLedger(10_000), &fakeTasks{}, &fakeWatcher{})

	req := validRequest()
	req.Mode = domain.ModeMultiReference
	req.VideoRefs = []domain.VideoRef{{URL: "https://cdn.example.com/ref.mp4", DurationSec: 10}}
	job, err := s.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Cost != 1000 { // fast rate doubled to 200/s for 5s
		t.Fatalf("cost = %d, want 1000", job.Cost)
	}
}
