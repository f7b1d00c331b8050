package service

import (
	"context"

	"clipforge/internal/domain"
	"clipforge/internal/infra"
)

// Settler deducts points for terminal jobs. The deduction itself is guarded by
// the job's settlement stamp, so calling Settle any number of times for the
// same job charges at most once.
type Settler struct {
	points domain.PointsLedger
	logger infra.Logger
}

// NewSettler wires a settler.
func NewSettler(points domain.PointsLedger, logger infra.Logger) *Settler {
	return &Settler{points: points, logger: logger}
}

// Settle charges the job's owner if the outcome warrants it. Completions and
// content-policy rejections bill; technical failures and timeouts do not, and
// anonymous jobs never do.
func (s *Settler) Settle(ctx context.Context, job *domain.JobRecord) error {
	if job.OwnerID == "" || !billable(job) {
		return nil
	}
	applied, err := s.points.SettleJob(ctx, job)
	if err != nil {
		return err
	}
	if applied {
		s.logger.Info().
			Str("job_id", job.ID).
			Str("owner_id", job.OwnerID).
			Int("cost", job.Cost).
			Msg("job settled")
	}
	return nil
}

func billable(job *domain.JobRecord) bool {
	switch job.State {
	case domain.JobStateCompleted:
		return true
	case domain.JobStateFailed:
		return job.ErrorDetail != nil && job.ErrorDetail.Class.Billable()
	default:
		return false
	}
}
