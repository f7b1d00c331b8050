package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clipforge/internal/domain"
)

// PointsLedgerPG implements domain.PointsLedger backed by PostgreSQL.
type PointsLedgerPG struct {
	pool          *pgxpool.Pool
	starterPoints int
}

// NewPointsLedger creates a new points ledger. starterPoints is credited when
// an account is first touched.
func NewPointsLedger(pool *pgxpool.Pool, starterPoints int) *PointsLedgerPG {
	return &PointsLedgerPG{pool: pool, starterPoints: starterPoints}
}

const accountColumns = `owner_id, points, total_videos, referral_code, referred_by, created_at`

// EnsureAccount creates the account with the starter grant on first touch.
func (r *PointsLedgerPG) EnsureAccount(ctx context.Context, ownerID string) (*domain.Account, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO accounts (owner_id, points) VALUES ($1, $2) ON CONFLICT (owner_id) DO NOTHING`,
		ownerID, r.starterPoints)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() > 0 && r.starterPoints > 0 {
		if err := appendTxn(ctx, tx, ownerID, r.starterPoints, domain.TxnStarterCredit, ""); err != nil {
			return nil, err
		}
	}

	row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1`, ownerID)
	account, err := scanAccount(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return account, nil
}

// GetAccount fetches an account by owner id.
func (r *PointsLedgerPG) GetAccount(ctx context.Context, ownerID string) (*domain.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1`, ownerID)
	return scanAccount(row)
}

// Balance returns the current point balance. Unknown owners have zero.
func (r *PointsLedgerPG) Balance(ctx context.Context, ownerID string) (int, error) {
	account, err := r.GetAccount(ctx, ownerID)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return account.Points, nil
}

// SettleJob performs the settlement as one transaction: stamp settled_at if it
// is still unset, and only then deduct the job's cost and append the debit
// entry. The stamp is the idempotency guard; racing callers lose the
// conditional update and deduct nothing.
func (r *PointsLedgerPG) SettleJob(ctx context.Context, job *domain.JobRecord) (bool, error) {
	if job.OwnerID == "" {
		return false, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE jobs SET settled_at = NOW() WHERE id = $1 AND settled_at IS NULL`,
		job.ID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET points = points - $2, total_videos = total_videos + 1 WHERE owner_id = $1`,
		job.OwnerID, job.Cost); err != nil {
		return false, err
	}
	if err := appendTxn(ctx, tx, job.OwnerID, -job.Cost, domain.TxnGenerationDebit, job.ID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Credit increases the balance and appends a transaction.
func (r *PointsLedgerPG) Credit(ctx context.Context, ownerID string, amount int, reason domain.TxnReason, ref string) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
INSERT INTO accounts (owner_id, points) VALUES ($1, $2)
ON CONFLICT (owner_id) DO UPDATE SET points = accounts.points + $2;
`, ownerID, amount); err != nil {
		return err
	}
	if err := appendTxn(ctx, tx, ownerID, amount, reason, ref); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListTransactions returns the owner's transaction log, newest first.
func (r *PointsLedgerPG) ListTransactions(ctx context.Context, ownerID string, limit int) ([]domain.PointsTxn, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, owner_id, amount, reason, related_job_id, created_at
FROM points_txns
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2;
`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.PointsTxn
	for rows.Next() {
		var t domain.PointsTxn
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Amount, &t.Reason, &t.RelatedJobID, &t.CreatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// RedeemPromo applies a promo credit at most once per owner and code.
func (r *PointsLedgerPG) RedeemPromo(ctx context.Context, ownerID, code string, amount int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO promo_redemptions (owner_id, code) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		ownerID, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateOperation
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO accounts (owner_id, points) VALUES ($1, $2)
ON CONFLICT (owner_id) DO UPDATE SET points = accounts.points + $2;
`, ownerID, amount); err != nil {
		return err
	}
	if err := appendTxn(ctx, tx, ownerID, amount, domain.TxnPromoCredit, code); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SetReferralCode assigns a referral code if the account has none and returns
// the effective code.
func (r *PointsLedgerPG) SetReferralCode(ctx context.Context, ownerID, code string) (string, error) {
	if _, err := r.pool.Exec(ctx,
		`UPDATE accounts SET referral_code = $2 WHERE owner_id = $1 AND referral_code = ''`,
		ownerID, code); err != nil {
		return "", err
	}
	var effective string
	err := r.pool.QueryRow(ctx,
		`SELECT referral_code FROM accounts WHERE owner_id = $1`, ownerID).Scan(&effective)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return effective, nil
}

// FindByReferralCode looks up the account owning a referral code.
func (r *PointsLedgerPG) FindByReferralCode(ctx context.Context, code string) (*domain.Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE referral_code = $1 AND referral_code <> ''`, code)
	return scanAccount(row)
}

// MarkReferred records who referred the owner, once.
func (r *PointsLedgerPG) MarkReferred(ctx context.Context, ownerID, referrerID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET referred_by = $2 WHERE owner_id = $1 AND referred_by = ''`,
		ownerID, referrerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateOperation
	}
	return nil
}

func appendTxn(ctx context.Context, tx pgx.Tx, ownerID string, amount int, reason domain.TxnReason, ref string) error {
	_, err := tx.Exec(ctx, `
INSERT INTO points_txns (id, owner_id, amount, reason, related_job_id)
VALUES ($1, $2, $3, $4, $5);
`, uuid.NewString(), ownerID, amount, reason, ref)
	return err
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	if err := row.Scan(
		&account.OwnerID,
		&account.Points,
		&account.TotalVideos,
		&account.ReferralCode,
		&account.ReferredBy,
		&account.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

var _ domain.PointsLedger = (*PointsLedgerPG)(nil)
