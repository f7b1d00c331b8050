package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clipforge/internal/domain"
)

// JobLedgerPG implements domain.JobLedger backed by PostgreSQL. All
// state-transition writes are conditional on the row still being pending so
// the polling loop and webhook handler serialize without locks.
type JobLedgerPG struct {
	pool *pgxpool.Pool
}

// NewJobLedger creates a new job ledger backed by PostgreSQL.
func NewJobLedger(pool *pgxpool.Pool) *JobLedgerPG {
	return &JobLedgerPG{pool: pool}
}

const jobColumns = `id, provider_job_id, owner_id, device_id, mode, prompt,
frame_assets, image_refs, video_refs, model, ratio, duration_sec, cost,
state, result_url, error_class, error_message, created_at, completed_at, settled_at`

// Create inserts a new job record.
func (r *JobLedgerPG) Create(ctx context.Context, job *domain.JobRecord) error {
	frames, err := json.Marshal(orEmpty(job.FrameAssets))
	if err != nil {
		return fmt.Errorf("encode frame assets: %w", err)
	}
	images, err := json.Marshal(orEmpty(job.ImageRefs))
	if err != nil {
		return fmt.Errorf("encode image refs: %w", err)
	}
	videos, err := json.Marshal(job.VideoRefs)
	if err != nil {
		return fmt.Errorf("encode video refs: %w", err)
	}
	if job.VideoRefs == nil {
		videos = []byte("[]")
	}

	query := `
INSERT INTO jobs (id, provider_job_id, owner_id, device_id, mode, prompt,
	frame_assets, image_refs, video_refs, model, ratio, duration_sec, cost, state, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15);
`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.ProviderJobID,
		job.OwnerID,
		job.DeviceID,
		job.Mode,
		job.Prompt,
		frames,
		images,
		videos,
		job.Model,
		job.Ratio,
		job.DurationSec,
		job.Cost,
		job.State,
		job.CreatedAt,
	)
	return err
}

// GetByID fetches a job by its client-generated identifier.
func (r *JobLedgerPG) GetByID(ctx context.Context, id string) (*domain.JobRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// GetByProviderJobID fetches a job by the provider's task id.
func (r *JobLedgerPG) GetByProviderJobID(ctx context.Context, providerJobID string) (*domain.JobRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE provider_job_id = $1`, providerJobID)
	return scanJob(row)
}

// ListByOwner returns the owner's jobs, newest first.
func (r *JobLedgerPG) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.JobRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2`,
		ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListPending returns all non-terminal records for the recovery sweep.
func (r *JobLedgerPG) ListPending(ctx context.Context) ([]domain.JobRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE state = $1 AND provider_job_id IS NOT NULL`,
		domain.JobStatePending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListUnsettled returns billable terminal records without a settlement stamp:
// completions and content-policy rejections owned by a signed-in user.
func (r *JobLedgerPG) ListUnsettled(ctx context.Context) ([]domain.JobRecord, error) {
	query := `
SELECT ` + jobColumns + `
FROM jobs
WHERE settled_at IS NULL
  AND owner_id <> ''
  AND (state = $1 OR (state = $2 AND error_class = $3));
`
	rows, err := r.pool.Query(ctx, query,
		domain.JobStateCompleted, domain.JobStateFailed, domain.FailureContentPolicy)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// MarkTerminal transitions a pending job to a terminal state. The guard on the
// current state makes redundant observations from the losing channel no-ops.
func (r *JobLedgerPG) MarkTerminal(ctx context.Context, providerJobID string, state domain.JobState, resultURL string, detail *domain.FailureDetail, at time.Time) (bool, error) {
	if !state.IsTerminal() {
		return false, fmt.Errorf("mark terminal: %q is not a terminal state", state)
	}
	var errClass, errMessage *string
	if detail != nil {
		class := string(detail.Class)
		errClass = &class
		errMessage = &detail.Message
	}

	query := `
UPDATE jobs
SET state = $2,
    result_url = $3,
    error_class = $4,
    error_message = $5,
    completed_at = $6
WHERE provider_job_id = $1
  AND state = $7;
`
	tag, err := r.pool.Exec(ctx, query,
		providerJobID, state, resultURL, errClass, errMessage, at, domain.JobStatePending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanJob(row pgx.Row) (*domain.JobRecord, error) {
	var (
		job           domain.JobRecord
		providerJobID *string
		frames        []byte
		images        []byte
		videos        []byte
		errClass      *string
		errMessage    *string
	)
	if err := row.Scan(
		&job.ID,
		&providerJobID,
		&job.OwnerID,
		&job.DeviceID,
		&job.Mode,
		&job.Prompt,
		&frames,
		&images,
		&videos,
		&job.Model,
		&job.Ratio,
		&job.DurationSec,
		&job.Cost,
		&job.State,
		&job.ResultURL,
		&errClass,
		&errMessage,
		&job.CreatedAt,
		&job.CompletedAt,
		&job.SettledAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if providerJobID != nil {
		job.ProviderJobID = *providerJobID
	}
	_ = json.Unmarshal(frames, &job.FrameAssets)
	_ = json.Unmarshal(images, &job.ImageRefs)
	_ = json.Unmarshal(videos, &job.VideoRefs)
	if errClass != nil {
		job.ErrorDetail = &domain.FailureDetail{Class: domain.FailureClass(*errClass)}
		if errMessage != nil {
			job.ErrorDetail.Message = *errMessage
		}
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]domain.JobRecord, error) {
	var jobs []domain.JobRecord
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ domain.JobLedger = (*JobLedgerPG)(nil)
