package domain

import (
	"context"
	"time"
)

// JobLedger is the server-side durable store for job records, keyed by the
// provider's job id. It is the single point of truth for state transitions:
// MarkTerminal and Settle are conditional writes so the polling loop and the
// webhook handler converge without locks.
type JobLedger interface {
	Create(ctx context.Context, job *JobRecord) error
	GetByID(ctx context.Context, id string) (*JobRecord, error)
	GetByProviderJobID(ctx context.Context, providerJobID string) (*JobRecord, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]JobRecord, error)
	// ListPending returns all non-terminal records, for the recovery sweep.
	ListPending(ctx context.Context) ([]JobRecord, error)
	// ListUnsettled returns terminal records that warrant billing but carry no
	// settlement stamp yet (crash between transition and settlement).
	ListUnsettled(ctx context.Context) ([]JobRecord, error)
	// MarkTerminal transitions the record out of pending. It applies only if
	// the stored state is still pending and reports whether this caller won.
	MarkTerminal(ctx context.Context, providerJobID string, state JobState, resultURL string, detail *FailureDetail, at time.Time) (bool, error)
}

// PointsLedger is the durable balance store plus its append-only transaction
// log.
type PointsLedger interface {
	// EnsureAccount creates the account with the starter grant on first touch
	// and returns it either way.
	EnsureAccount(ctx context.Context, ownerID string) (*Account, error)
	GetAccount(ctx context.Context, ownerID string) (*Account, error)
	Balance(ctx context.Context, ownerID string) (int, error)
	// SettleJob stamps the job's settled_at, deducts the job's cost and
	// appends a generation-debit transaction atomically. It applies only if
	// settled_at was previously unset and reports whether it did.
	SettleJob(ctx context.Context, job *JobRecord) (bool, error)
	// Credit increases the balance and appends a transaction.
	Credit(ctx context.Context, ownerID string, amount int, reason TxnReason, ref string) error
	ListTransactions(ctx context.Context, ownerID string, limit int) ([]PointsTxn, error)
	// RedeemPromo applies a promo credit at most once per owner and code.
	RedeemPromo(ctx context.Context, ownerID, code string, amount int) error
	// SetReferralCode assigns a referral code if the account has none and
	// returns the effective code.
	SetReferralCode(ctx context.Context, ownerID, code string) (string, error)
	FindByReferralCode(ctx context.Context, code string) (*Account, error)
	// MarkReferred records who referred the owner; fails with
	// ErrDuplicateOperation if already referred.
	MarkReferred(ctx context.Context, ownerID, referrerID string) error
}
