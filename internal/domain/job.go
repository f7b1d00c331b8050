package domain

import "time"

// Mode enumerates supported generation modes.
type Mode string

const (
	ModeText           Mode = "text"
	ModeImage          Mode = "image"
	ModeFramePair      Mode = "frame-pair"
	ModeMultiReference Mode = "multi-reference"
)

// JobState enumerates job lifecycle states. Terminal states are absorbing.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// IsTerminal reports whether the state admits no further transitions.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// VideoRef is a durable URL to an uploaded reference video plus its real-time
// length, needed to enforce the per-clip duration cap before submission.
type VideoRef struct {
	URL         string `json:"url"`
	DurationSec int    `json:"duration_sec"`
}

// JobRecord is the canonical representation of one generation request. ID is
// client-generated and stable across devices; ProviderJobID is assigned by the
// generation provider once task creation succeeds.
type JobRecord struct {
	ID            string         `json:"id"`
	ProviderJobID string         `json:"provider_job_id,omitempty"`
	OwnerID       string         `json:"owner_id,omitempty"`
	DeviceID      string         `json:"device_id,omitempty"`
	Mode          Mode           `json:"mode"`
	Prompt        string         `json:"prompt"`
	FrameAssets   []string       `json:"frame_assets,omitempty"`
	ImageRefs     []string       `json:"image_refs,omitempty"`
	VideoRefs     []VideoRef     `json:"video_refs,omitempty"`
	Model         string         `json:"model"`
	Ratio         string         `json:"ratio"`
	DurationSec   int            `json:"duration_sec"`
	Cost          int            `json:"cost"`
	State         JobState       `json:"state"`
	ResultURL     string         `json:"result_url,omitempty"`
	ErrorDetail   *FailureDetail `json:"error_detail,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	SettledAt     *time.Time     `json:"settled_at,omitempty"`
}

// Elapsed returns wall-clock time since the job was created. The adaptive
// polling cadence and the six-hour ceiling are both computed from CreatedAt so
// a recovered loop does not reset the clock.
func (j *JobRecord) Elapsed(now time.Time) time.Duration {
	return now.Sub(j.CreatedAt)
}

// HasVideoRefs reports whether the job carries reference videos, which doubles
// the per-second point rate.
func (j *JobRecord) HasVideoRefs() bool {
	return len(j.VideoRefs) > 0
}
