package service

import (
	"context"
	"sync"
	"time"

	"clipforge/internal/domain"
	"clipforge/internal/infra"
	"clipforge/internal/localstore"
	"clipforge/internal/provider"
)

// ReconcilerOptions tunes the polling cadence. Zero values fall back to the
// production defaults.
type ReconcilerOptions struct {
	FastInterval time.Duration
	SlowInterval time.Duration
	FastPhase    time.Duration
	MaxAge       time.Duration
	Now          func() time.Time
}

// Reconciler drives pending jobs to a terminal state. Each watched job gets a
// polling goroutine; webhook observations arrive through ApplyWebhook and race
// the poller. Whichever channel observes the terminal state first wins the
// conditional ledger write, and only the winner triggers settlement.
type Reconciler struct {
	jobs       domain.JobLedger
	local      *localstore.Store
	tasks      TaskAPI
	classifier *domain.FailureClassifier
	settler    *Settler
	logger     infra.Logger

	fastInterval time.Duration
	slowInterval time.Duration
	fastPhase    time.Duration
	maxAge       time.Duration
	now          func() time.Time

	mu      sync.Mutex
	baseCtx context.Context
	active  map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewReconciler wires a reconciler. Call Start before Watch to bind its
// lifetime to the process context.
func NewReconciler(jobs domain.JobLedger, local *localstore.Store, tasks TaskAPI, classifier *domain.FailureClassifier, settler *Settler, logger infra.Logger, opts ReconcilerOptions) *Reconciler {
	if opts.FastInterval <= 0 {
		opts.FastInterval = 5 * time.Second
	}
	if opts.SlowInterval <= 0 {
		opts.SlowInterval = 20 * time.Second
	}
	if opts.FastPhase <= 0 {
		opts.FastPhase = 2 * time.Minute
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 6 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		jobs:         jobs,
		local:        local,
		tasks:        tasks,
		classifier:   classifier,
		settler:      settler,
		logger:       logger,
		fastInterval: opts.FastInterval,
		slowInterval: opts.SlowInterval,
		fastPhase:    opts.FastPhase,
		maxAge:       opts.MaxAge,
		now:          opts.Now,
		baseCtx:      context.Background(),
		active:       make(map[string]context.CancelFunc),
	}
}

// Start binds all pollers spawned from here on to ctx.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	r.baseCtx = ctx
	r.mu.Unlock()
}

// Wait blocks until every poller has exited. Intended for shutdown and tests.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// Watch begins polling the job until it goes terminal. Jobs already terminal
// or already being watched are ignored.
func (r *Reconciler) Watch(job domain.JobRecord) {
	if job.State.IsTerminal() || job.ProviderJobID == "" {
		return
	}

	r.mu.Lock()
	if _, ok := r.active[job.ProviderJobID]; ok {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(r.baseCtx)
	r.active[job.ProviderJobID] = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer r.release(job.ProviderJobID)
		r.poll(ctx, job)
	}()
}

// poll queries the provider on an adaptive cadence until the job resolves.
// Both the cadence and the abandonment ceiling are measured from the job's
// CreatedAt, so a poller recovered after a restart does not restart the clock.
func (r *Reconciler) poll(ctx context.Context, job domain.JobRecord) {
	for {
		elapsed := job.Elapsed(r.now())
		if elapsed >= r.maxAge {
			r.finalize(ctx, job, domain.JobStateFailed, "", &domain.FailureDetail{
				Class:   domain.FailureTimeout,
				Message: "no terminal status before the polling ceiling",
			})
			return
		}

		timer := time.NewTimer(r.interval(elapsed))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		status, err := r.tasks.QueryTask(ctx, job.ProviderJobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Transient poll failures do not fail the job; the next tick or
			// the webhook will resolve it.
			r.logger.Warn().Err(err).Str("provider_job_id", job.ProviderJobID).Msg("status poll failed")
			continue
		}

		switch status.State {
		case provider.TaskCompleted:
			r.finalize(ctx, job, domain.JobStateCompleted, status.ResultURL, nil)
			return
		case provider.TaskFailed:
			r.finalize(ctx, job, domain.JobStateFailed, "", r.classifier.Classify(status.ErrMessage))
			return
		}
	}
}

func (r *Reconciler) interval(elapsed time.Duration) time.Duration {
	if elapsed < r.fastPhase {
		return r.fastInterval
	}
	return r.slowInterval
}

// ApplyWebhook folds a provider callback into the ledger. Pending callbacks
// and callbacks for unknown jobs are ignored; the handler always answers 200
// regardless, so retries from the provider stay cheap.
func (r *Reconciler) ApplyWebhook(ctx context.Context, providerJobID string, status *provider.TaskStatus) error {
	if providerJobID == "" || status == nil || status.State == provider.TaskPending {
		return nil
	}
	job, err := r.jobs.GetByProviderJobID(ctx, providerJobID)
	if err != nil {
		return err
	}
	if job.State.IsTerminal() {
		return nil
	}

	switch status.State {
	case provider.TaskCompleted:
		r.finalize(ctx, *job, domain.JobStateCompleted, status.ResultURL, nil)
	case provider.TaskFailed:
		r.finalize(ctx, *job, domain.JobStateFailed, "", r.classifier.Classify(status.ErrMessage))
	}
	r.cancelWatch(providerJobID)
	return nil
}

// finalize applies the terminal transition. The ledger write is conditional on
// the job still being pending, so when the poller and the webhook race only
// one of them settles. It runs on a detached context because the observation
// must land even if the observing request or poller is being torn down.
func (r *Reconciler) finalize(ctx context.Context, job domain.JobRecord, state domain.JobState, resultURL string, detail *domain.FailureDetail) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	at := r.now().UTC()
	won, err := r.jobs.MarkTerminal(ctx, job.ProviderJobID, state, resultURL, detail, at)
	if err != nil {
		r.logger.Error().Err(err).Str("provider_job_id", job.ProviderJobID).Msg("mark terminal")
		return
	}

	if job.DeviceID != "" {
		if err := r.local.Update(job.DeviceID, job.ID, func(rec *domain.JobRecord) {
			rec.State = state
			rec.ResultURL = resultURL
			rec.ErrorDetail = detail
			rec.CompletedAt = &at
		}); err != nil && err != domain.ErrNotFound {
			r.logger.Warn().Err(err).Str("device_id", job.DeviceID).Msg("update device snapshot")
		}
	}

	if !won {
		return
	}

	r.logger.Info().
		Str("provider_job_id", job.ProviderJobID).
		Str("state", string(state)).
		Msg("job resolved")

	job.State = state
	job.ResultURL = resultURL
	job.ErrorDetail = detail
	job.CompletedAt = &at
	if err := r.settler.Settle(ctx, &job); err != nil {
		// The settlement stamp is still unset, so the next recovery sweep
		// retries this charge.
		r.logger.Error().Err(err).Str("job_id", job.ID).Msg("settle job")
	}
}

// RecoverySweep restores lifecycle work after a restart: re-watch every
// pending job known to either store, then retry settlement for terminal jobs
// that crashed between the transition and the charge.
func (r *Reconciler) RecoverySweep(ctx context.Context) {
	seen := make(map[string]bool)

	remote, err := r.jobs.ListPending(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("sweep: list pending jobs")
	}
	for _, job := range remote {
		seen[job.ProviderJobID] = true
		r.Watch(job)
	}

	// Device snapshots can hold jobs the ledger missed (submission persisted
	// locally after a ledger write failure). Fold those in too.
	local, err := r.local.ListPendingAll()
	if err != nil {
		r.logger.Error().Err(err).Msg("sweep: list device snapshots")
	}
	for _, job := range local {
		if seen[job.ProviderJobID] {
			continue
		}
		r.Watch(job)
	}

	unsettled, err := r.jobs.ListUnsettled(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("sweep: list unsettled jobs")
		return
	}
	for i := range unsettled {
		if err := r.settler.Settle(ctx, &unsettled[i]); err != nil {
			r.logger.Error().Err(err).Str("job_id", unsettled[i].ID).Msg("sweep: settle job")
		}
	}
}

// RunSweeps performs a recovery sweep immediately and then on every tick until
// ctx is done.
func (r *Reconciler) RunSweeps(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	r.RecoverySweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RecoverySweep(ctx)
		}
	}
}

func (r *Reconciler) cancelWatch(providerJobID string) {
	r.mu.Lock()
	cancel, ok := r.active[providerJobID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

func (r *Reconciler) release(providerJobID string) {
	r.mu.Lock()
	if cancel, ok := r.active[providerJobID]; ok {
		cancel()
		delete(r.active, providerJobID)
	}
	r.mu.Unlock()
}
