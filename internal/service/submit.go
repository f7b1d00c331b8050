// Package service holds the generation lifecycle: submission, reconciliation
// of pending jobs against the provider, billing settlement and the recovery
// sweep that restores all three after a restart.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clipforge/internal/domain"
	"clipforge/internal/infra"
	"clipforge/internal/localstore"
	"clipforge/internal/provider"
	"clipforge/internal/storage"
)

// TaskAPI is the slice of the provider client the lifecycle services use.
type TaskAPI interface {
	CreateTask(ctx context.Context, spec provider.TaskSpec) (string, error)
	QueryTask(ctx context.Context, taskID string) (*provider.TaskStatus, error)
}

// Watcher receives accepted jobs to reconcile until they go terminal.
type Watcher interface {
	Watch(job domain.JobRecord)
}

// Submission limits. Reference videos are capped per clip because the provider
// rejects longer ones after accepting the task, which would bill the user for
// a guaranteed failure.
const (
	minDurationSec       = 1
	maxDurationSec       = 15
	maxFrameAssets       = 2
	maxReferenceImages   = 4
	maxReferenceVideos   = 3
	maxReferenceVideoSec = 15
)

var allowedRatios = map[string]bool{
	"16:9": true,
	"9:16": true,
	"4:3":  true,
	"3:4":  true,
	"1:1":  true,
}

// RawAsset is a binary input submitted in-band. It is uploaded to object
// storage during submission and discarded after the provider accepts the task.
type RawAsset struct {
	Data        []byte
	ContentType string
}

// SubmitRequest carries everything needed to create one generation job.
// Asset fields hold durable URLs produced by the upload endpoints; RawFrames
// are uploaded here; TempRefs are the storage keys of temporary uploads to
// discard once the provider has accepted the task.
type SubmitRequest struct {
	OwnerID     string
	DeviceID    string
	Mode        domain.Mode
	Prompt      string
	Model       string
	Ratio       string
	DurationSec int
	FrameAssets []string
	RawFrames   []RawAsset
	ImageRefs   []string
	VideoRefs   []domain.VideoRef
	TempRefs    []string
}

// Submitter validates requests, checks affordability, creates the provider
// task and persists the resulting job record in both stores.
type Submitter struct {
	jobs    domain.JobLedger
	points  domain.PointsLedger
	local   *localstore.Store
	objects storage.ObjectStore
	tasks   TaskAPI
	watcher Watcher
	logger  infra.Logger

	now   func() time.Time
	newID func() string
}

// NewSubmitter wires a submitter from its dependencies.
func NewSubmitter(jobs domain.JobLedger, points domain.PointsLedger, local *localstore.Store, objects storage.ObjectStore, tasks TaskAPI, watcher Watcher, logger infra.Logger) *Submitter {
	return &Submitter{
		jobs:    jobs,
		points:  points,
		local:   local,
		objects: objects,
		tasks:   tasks,
		watcher: watcher,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Submit runs the full submission flow. Validation and the affordability check
// happen before any side effect; a provider rejection leaves no record behind.
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (*domain.JobRecord, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	cost := domain.Cost(req.Model, req.DurationSec, len(req.VideoRefs) > 0)
	if req.OwnerID != "" {
		account, err := s.points.EnsureAccount(ctx, req.OwnerID)
		if err != nil {
			return nil, err
		}
		if account.Points < cost {
			return nil, domain.ErrInsufficientBalance
		}
	}

	// Raw binaries go to object storage first; an upload failure aborts
	// before the provider is contacted, with already-uploaded temps discarded.
	tempRefs := append([]string(nil), req.TempRefs...)
	if len(req.RawFrames) > 0 && s.objects == nil {
		return nil, domain.ErrUploadFailed
	}
	for _, asset := range req.RawFrames {
		stored, err := s.objects.Upload(ctx, asset.Data, asset.ContentType)
		if err != nil {
			s.logger.Error().Err(err).Msg("upload frame asset")
			s.cleanupTemp(tempRefs[len(req.TempRefs):])
			return nil, domain.ErrUploadFailed
		}
		req.FrameAssets = append(req.FrameAssets, stored.URL)
		tempRefs = append(tempRefs, stored.Ref)
	}

	taskID, err := s.tasks.CreateTask(ctx, taskSpec(req))
	if err != nil {
		return nil, err
	}

	job := &domain.JobRecord{
		ID:            s.newID(),
		ProviderJobID: taskID,
		OwnerID:       req.OwnerID,
		DeviceID:      req.DeviceID,
		Mode:          req.Mode,
		Prompt:        req.Prompt,
		FrameAssets:   req.FrameAssets,
		ImageRefs:     req.ImageRefs,
		VideoRefs:     req.VideoRefs,
		Model:         req.Model,
		Ratio:         req.Ratio,
		DurationSec:   req.DurationSec,
		Cost:          cost,
		State:         domain.JobStatePending,
		CreatedAt:     s.now().UTC(),
	}

	// The provider task is already running at this point, so a ledger write
	// failure must not discard the job: the device snapshot below still records
	// it and the recovery sweep folds it back in.
	if err := s.jobs.Create(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("persist job record")
	}
	if job.DeviceID != "" {
		if err := s.local.Save(job.DeviceID, *job); err != nil {
			s.logger.Error().Err(err).Str("device_id", job.DeviceID).Msg("save device snapshot")
		}
	}

	s.cleanupTemp(tempRefs)
	s.watcher.Watch(*job)
	return job, nil
}

// cleanupTemp discards temporary uploads in the background. The provider has
// already fetched them, so failures here only leak storage.
func (s *Submitter) cleanupTemp(refs []string) {
	if len(refs) == 0 || s.objects == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, ref := range refs {
			if err := s.objects.Delete(ctx, ref); err != nil {
				s.logger.Warn().Err(err).Str("ref", ref).Msg("delete temp upload")
			}
		}
	}()
}

func taskSpec(req SubmitRequest) provider.TaskSpec {
	spec := provider.TaskSpec{
		Prompt:      req.Prompt,
		Model:       req.Model,
		Ratio:       req.Ratio,
		DurationSec: req.DurationSec,
		Mode:        req.Mode,
	}
	if req.Mode == domain.ModeMultiReference {
		spec.ImageFiles = req.ImageRefs
		for _, v := range req.VideoRefs {
			spec.VideoFiles = append(spec.VideoFiles, v.URL)
		}
	} else {
		spec.FilePaths = req.FrameAssets
	}
	return spec
}

func validate(req SubmitRequest) error {
	if !domain.KnownModel(req.Model) {
		return domain.Validationf("model", "unknown model %q", req.Model)
	}
	if !allowedRatios[req.Ratio] {
		return domain.Validationf("ratio", "unsupported ratio %q", req.Ratio)
	}
	if req.DurationSec < minDurationSec || req.DurationSec > maxDurationSec {
		return domain.Validationf("duration", "duration must be between %d and %d seconds", minDurationSec, maxDurationSec)
	}

	frames := len(req.FrameAssets) + len(req.RawFrames)
	switch req.Mode {
	case domain.ModeText:
		if req.Prompt == "" {
			return domain.Validationf("prompt", "prompt is required")
		}
	case domain.ModeImage:
		if frames != 1 {
			return domain.Validationf("frames", "image mode needs exactly one frame")
		}
	case domain.ModeFramePair:
		if frames < 1 || frames > maxFrameAssets {
			return domain.Validationf("frames", "frame-pair mode needs one or two frames")
		}
	case domain.ModeMultiReference:
		if len(req.ImageRefs) == 0 && len(req.VideoRefs) == 0 {
			return domain.Validationf("references", "at least one reference is required")
		}
		if len(req.ImageRefs) > maxReferenceImages {
			return domain.Validationf("references", "at most %d reference images", maxReferenceImages)
		}
		if len(req.VideoRefs) > maxReferenceVideos {
			return domain.Validationf("references", "at most %d reference videos", maxReferenceVideos)
		}
		for _, v := range req.VideoRefs {
			if v.DurationSec > maxReferenceVideoSec {
				return domain.Validationf("references", "reference videos must be %d seconds or shorter", maxReferenceVideoSec)
			}
		}
	default:
		return domain.Validationf("mode", "unknown mode %q", req.Mode)
	}
	return nil
}
