package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"clipforge/internal/domain"
	"clipforge/internal/infra"
	"clipforge/internal/provider"
	"clipforge/internal/storage"
)

func discardLogger() infra.Logger {
	return zerolog.New(io.Discard)
}

// fakeJobLedger is an in-memory domain.JobLedger with the same conditional
// write semantics as the real one.
type fakeJobLedger struct {
	mu        sync.Mutex
	jobs      map[string]*domain.JobRecord
	createErr error
}

func newFakeJobLedger() *fakeJobLedger {
	return &fakeJobLedger{jobs: make(map[string]*domain.JobRecord)}
}

func (f *fakeJobLedger) Create(_ context.Context, job *domain.JobRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	clone := *job
	f.jobs[job.ID] = &clone
	return nil
}

func (f *fakeJobLedger) GetByID(_ context.Context, id string) (*domain.JobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job, ok := f.jobs[id]; ok {
		clone := *job
		return &clone, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeJobLedger) GetByProviderJobID(_ context.Context, providerJobID string) (*domain.JobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.ProviderJobID == providerJobID {
			clone := *job
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeJobLedger) ListByOwner(_ context.Context, ownerID string, _ int) ([]domain.JobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.JobRecord
	for _, job := range f.jobs {
		if job.OwnerID == ownerID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (f *fakeJobLedger) ListPending(_ context.Context) ([]domain.JobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.JobRecord
	for _, job := range f.jobs {
		if job.State == domain.JobStatePending && job.ProviderJobID != "" {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (f *fakeJobLedger) ListUnsettled(_ context.Context) ([]domain.JobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.JobRecord
	for _, job := range f.jobs {
		if job.SettledAt != nil || job.OwnerID == "" {
			continue
		}
		if job.State == domain.JobStateCompleted ||
			(job.State == domain.JobStateFailed && job.ErrorDetail != nil && job.ErrorDetail.Class == domain.FailureContentPolicy) {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (f *fakeJobLedger) MarkTerminal(_ context.Context, providerJobID string, state domain.JobState, resultURL string, detail *domain.FailureDetail, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.ProviderJobID != providerJobID {
			continue
		}
		if job.State != domain.JobStatePending {
			return false, nil
		}
		job.State = state
		job.ResultURL = resultURL
		job.ErrorDetail = detail
		job.CompletedAt = &at
		return true, nil
	}
	return false, nil
}

// fakePointsLedger is an in-memory domain.PointsLedger. Settlement is guarded
// the same way as the real one: the per-job stamp applies at most once.
type fakePointsLedger struct {
	mu            sync.Mutex
	starterPoints int
	accounts      map[string]*domain.Account
	txns          []domain.PointsTxn
	settled       map[string]bool
	redeemed      map[string]bool
}

func newFakePointsLedger(starterPoints int) *fakePointsLedger {
	return &fakePointsLedger{
		starterPoints: starterPoints,
		accounts:      make(map[string]*domain.Account),
		settled:       make(map[string]bool),
		redeemed:      make(map[string]bool),
	}
}

func (f *fakePointsLedger) EnsureAccount(_ context.Context, ownerID string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ensureLocked(ownerID), nil
}

func (f *fakePointsLedger) ensureLocked(ownerID string) *domain.Account {
	if account, ok := f.accounts[ownerID]; ok {
		return account
	}
	account := &domain.Account{OwnerID: ownerID, Points: f.starterPoints, CreatedAt: time.Now()}
	f.accounts[ownerID] = account
	if f.starterPoints > 0 {
		f.txns = append(f.txns, domain.PointsTxn{OwnerID: ownerID, Amount: f.starterPoints, Reason: domain.TxnStarterCredit})
	}
	return account
}

func (f *fakePointsLedger) GetAccount(_ context.Context, ownerID string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if account, ok := f.accounts[ownerID]; ok {
		clone := *account
		return &clone, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakePointsLedger) Balance(_ context.Context, ownerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if account, ok := f.accounts[ownerID]; ok {
		return account.Points, nil
	}
	return 0, nil
}

func (f *fakePointsLedger) SettleJob(_ context.Context, job *domain.JobRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job.OwnerID == "" || f.settled[job.ID] {
		return false, nil
	}
	f.settled[job.ID] = true
	account := f.ensureLocked(job.OwnerID)
	account.Points -= job.Cost
	account.TotalVideos++
	f.txns = append(f.txns, domain.PointsTxn{OwnerID: job.OwnerID, Amount: -job.Cost, Reason: domain.TxnGenerationDebit, RelatedJobID: job.ID})
	return true, nil
}

func (f *fakePointsLedger) Credit(_ context.Context, ownerID string, amount int, reason domain.TxnReason, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account := f.ensureLocked(ownerID)
	account.Points += amount
	f.txns = append(f.txns, domain.PointsTxn{OwnerID: ownerID, Amount: amount, Reason: reason, RelatedJobID: ref})
	return nil
}

func (f *fakePointsLedger) ListTransactions(_ context.Context, ownerID string, _ int) ([]domain.PointsTxn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PointsTxn
	for _, t := range f.txns {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakePointsLedger) RedeemPromo(_ context.Context, ownerID, code string, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := ownerID + "/" + code
	if f.redeemed[key] {
		return domain.ErrDuplicateOperation
	}
	f.redeemed[key] = true
	account := f.ensureLocked(ownerID)
	account.Points += amount
	f.txns = append(f.txns, domain.PointsTxn{OwnerID: ownerID, Amount: amount, Reason: domain.TxnPromoCredit, RelatedJobID: code})
	return nil
}

func (f *fakePointsLedger) SetReferralCode(_ context.Context, ownerID, code string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[ownerID]
	if !ok {
		return "", domain.ErrNotFound
	}
	if account.ReferralCode == "" {
		account.ReferralCode = code
	}
	return account.ReferralCode, nil
}

func (f *fakePointsLedger) FindByReferralCode(_ context.Context, code string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, account := range f.accounts {
		if account.ReferralCode == code && code != "" {
			clone := *account
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakePointsLedger) MarkReferred(_ context.Context, ownerID, referrerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account := f.ensureLocked(ownerID)
	if account.ReferredBy != "" {
		return domain.ErrDuplicateOperation
	}
	account.ReferredBy = referrerID
	return nil
}

func (f *fakePointsLedger) debits(ownerID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.txns {
		if t.OwnerID == ownerID && t.Reason == domain.TxnGenerationDebit {
			n++
		}
	}
	return n
}

// fakeTasks scripts the provider client.
type fakeTasks struct {
	mu         sync.Mutex
	createFn   func(spec provider.TaskSpec) (string, error)
	queryFn    func(taskID string) (*provider.TaskStatus, error)
	queryCalls int
}

func (f *fakeTasks) CreateTask(_ context.Context, spec provider.TaskSpec) (string, error) {
	if f.createFn == nil {
		return "task-1", nil
	}
	return f.createFn(spec)
}

func (f *fakeTasks) QueryTask(_ context.Context, taskID string) (*provider.TaskStatus, error) {
	f.mu.Lock()
	f.queryCalls++
	f.mu.Unlock()
	if f.queryFn == nil {
		return &provider.TaskStatus{State: provider.TaskPending}, nil
	}
	return f.queryFn(taskID)
}

func (f *fakeTasks) queries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queryCalls
}

// fakeObjects is an in-memory object store.
type fakeObjects struct {
	mu        sync.Mutex
	uploads   int
	deleted   []string
	uploadErr error
}

func (f *fakeObjects) Upload(_ context.Context, _ []byte, contentType string) (*storage.Stored, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploads++
	ref := fmt.Sprintf("tmp/up-%d", f.uploads)
	return &storage.Stored{URL: "https://cdn.example.com/" + ref, Ref: ref}, nil
}

func (f *fakeObjects) Delete(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

// fakeWatcher records jobs handed off for reconciliation.
type fakeWatcher struct {
	mu   sync.Mutex
	jobs []domain.JobRecord
}

func (f *fakeWatcher) Watch(job domain.JobRecord) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()
}
