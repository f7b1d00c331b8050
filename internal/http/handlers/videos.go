package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"clipforge/internal/domain"
	"clipforge/internal/middleware"
	"clipforge/internal/service"
)

type submitVideoRequest struct {
	Mode        string            `json:"mode"`
	Prompt      string            `json:"prompt"`
	Model       string            `json:"model"`
	Ratio       string            `json:"ratio"`
	DurationSec int               `json:"duration_sec"`
	FrameAssets []string          `json:"frame_assets,omitempty"`
	ImageRefs   []string          `json:"image_refs,omitempty"`
	VideoRefs   []domain.VideoRef `json:"video_refs,omitempty"`
	TempRefs    []string          `json:"temp_refs,omitempty"`
}

func deviceID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Device-ID"))
}

// VideosSubmit accepts a generation request. Anonymous submission is allowed;
// a bearer token binds the job to an account for billing.
func (a *App) VideosSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_request", "invalid payload")
		return
	}

	job, err := a.Submitter.Submit(r.Context(), service.SubmitRequest{
		OwnerID:     middleware.UserIDFromContext(r.Context()),
		DeviceID:    deviceID(r),
		Mode:        domain.Mode(req.Mode),
		Prompt:      req.Prompt,
		Model:       req.Model,
		Ratio:       req.Ratio,
		DurationSec: req.DurationSec,
		FrameAssets: req.FrameAssets,
		ImageRefs:   req.ImageRefs,
		VideoRefs:   req.VideoRefs,
		TempRefs:    req.TempRefs,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusAccepted, job)
}

// VideoStatus returns one job. The ledger is the source of truth; the device
// snapshot answers for jobs the ledger never saw.
func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "invalid_request", "id required")
		return
	}

	job, err := a.Jobs.GetByID(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		job, err = a.localJob(r, id)
	}
	if err != nil {
		a.fail(w, err)
		return
	}
	if !a.mayAccess(r, job) {
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	if job.State == domain.JobStatePending {
		a.json(w, http.StatusOK, struct {
			domain.JobRecord
			ElapsedSec int `json:"elapsed_sec"`
		}{*job, int(job.Elapsed(time.Now()).Seconds())})
		return
	}
	a.json(w, http.StatusOK, job)
}

// VideosList merges the account's ledger records with the device snapshot.
// Ledger records win on conflict; device-only records are appended so nothing
// the device submitted ever disappears from its list.
func (a *App) VideosList(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.UserIDFromContext(r.Context())
	device := deviceID(r)
	if ownerID == "" && device == "" {
		a.error(w, http.StatusBadRequest, "invalid_request", "X-Device-ID or authentication required")
		return
	}

	var remote []domain.JobRecord
	if ownerID != "" {
		var err error
		remote, err = a.Jobs.ListByOwner(r.Context(), ownerID, 0)
		if err != nil {
			a.fail(w, err)
			return
		}
	}

	var local []domain.JobRecord
	if device != "" {
		var err error
		local, err = a.Local.List(device)
		if err != nil {
			a.Logger.Warn().Err(err).Str("device_id", device).Msg("read device snapshot")
		}
	}

	seen := make(map[string]bool, len(remote))
	merged := make([]domain.JobRecord, 0, len(remote)+len(local))
	for _, job := range remote {
		seen[job.ID] = true
		merged = append(merged, job)
	}
	for _, job := range local {
		if !seen[job.ID] {
			merged = append(merged, job)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})

	a.json(w, http.StatusOK, map[string]any{"items": merged})
}

// VideoDelete removes the job from the device's list. The ledger record stays;
// billing history is append-only.
func (a *App) VideoDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	device := deviceID(r)
	if id == "" || device == "" {
		a.error(w, http.StatusBadRequest, "invalid_request", "id and X-Device-ID required")
		return
	}
	if err := a.Local.Remove(device, id); err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (a *App) localJob(r *http.Request, id string) (*domain.JobRecord, error) {
	device := deviceID(r)
	if device == "" {
		return nil, domain.ErrNotFound
	}
	records, err := a.Local.List(device)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == id {
			return &records[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

// mayAccess hides jobs from callers who own neither the account nor the
// device that submitted them.
func (a *App) mayAccess(r *http.Request, job *domain.JobRecord) bool {
	if ownerID := middleware.UserIDFromContext(r.Context()); ownerID != "" && ownerID == job.OwnerID {
		return true
	}
	if device := deviceID(r); device != "" && device == job.DeviceID {
		return true
	}
	return job.OwnerID == "" && job.DeviceID == ""
}
