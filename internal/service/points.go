package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"clipforge/internal/domain"
	"clipforge/internal/infra"
)

// Referral economics: the referee gets a flat bonus when the code is applied,
// the referrer gets a cut of every purchase the referee makes afterwards.
const (
	referralBonus       = 100
	referralKickbackPct = 15
)

// Points exposes the balance operations above the ledger: promo codes,
// referrals and purchases.
type Points struct {
	ledger     domain.PointsLedger
	promoCodes map[string]int
	logger     infra.Logger
}

// NewPoints wires the points service. promoCodes maps an uppercase code to its
// grant.
func NewPoints(ledger domain.PointsLedger, promoCodes map[string]int, logger infra.Logger) *Points {
	if promoCodes == nil {
		promoCodes = make(map[string]int)
	}
	return &Points{ledger: ledger, promoCodes: promoCodes, logger: logger}
}

// Account returns the owner's account, creating it with the starter grant on
// first touch.
func (p *Points) Account(ctx context.Context, ownerID string) (*domain.Account, error) {
	return p.ledger.EnsureAccount(ctx, ownerID)
}

// Transactions returns the owner's transaction log, newest first.
func (p *Points) Transactions(ctx context.Context, ownerID string, limit int) ([]domain.PointsTxn, error) {
	return p.ledger.ListTransactions(ctx, ownerID, limit)
}

// RedeemPromo applies a promo code once per owner and returns the granted
// amount. Unknown codes are ErrNotFound; repeats are ErrDuplicateOperation.
func (p *Points) RedeemPromo(ctx context.Context, ownerID, code string) (int, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	amount, ok := p.promoCodes[code]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if _, err := p.ledger.EnsureAccount(ctx, ownerID); err != nil {
		return 0, err
	}
	if err := p.ledger.RedeemPromo(ctx, ownerID, code, amount); err != nil {
		return 0, err
	}
	return amount, nil
}

// ReferralCode returns the owner's referral code, minting one on first use.
func (p *Points) ReferralCode(ctx context.Context, ownerID string) (string, error) {
	if _, err := p.ledger.EnsureAccount(ctx, ownerID); err != nil {
		return "", err
	}
	candidate := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return p.ledger.SetReferralCode(ctx, ownerID, candidate)
}

// ApplyReferral links the owner to the referrer behind code and credits the
// signup bonus. An owner can be referred at most once and never by themselves.
func (p *Points) ApplyReferral(ctx context.Context, ownerID, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Validationf("code", "referral code is required")
	}
	referrer, err := p.ledger.FindByReferralCode(ctx, code)
	if err != nil {
		return err
	}
	if referrer.OwnerID == ownerID {
		return domain.Validationf("code", "cannot apply your own referral code")
	}
	if _, err := p.ledger.EnsureAccount(ctx, ownerID); err != nil {
		return err
	}
	if err := p.ledger.MarkReferred(ctx, ownerID, referrer.OwnerID); err != nil {
		return err
	}
	return p.ledger.Credit(ctx, ownerID, referralBonus, domain.TxnReferralCredit, referrer.OwnerID)
}

// RecordPurchase credits purchased points and pays the referrer's kickback if
// the buyer was referred.
func (p *Points) RecordPurchase(ctx context.Context, ownerID string, amount int, ref string) error {
	if amount <= 0 {
		return domain.Validationf("amount", "purchase amount must be positive")
	}
	if _, err := p.ledger.EnsureAccount(ctx, ownerID); err != nil {
		return err
	}
	if err := p.ledger.Credit(ctx, ownerID, amount, domain.TxnPurchaseCredit, ref); err != nil {
		return err
	}

	account, err := p.ledger.GetAccount(ctx, ownerID)
	if err != nil {
		return err
	}
	if account.ReferredBy == "" {
		return nil
	}
	kickback := amount * referralKickbackPct / 100
	if kickback <= 0 {
		return nil
	}
	if err := p.ledger.Credit(ctx, account.ReferredBy, kickback, domain.TxnReferralCredit, ownerID); err != nil {
		// The buyer's credit already landed; the kickback is best effort.
		p.logger.Error().Err(err).
			Str("referrer_id", account.ReferredBy).
			Str("owner_id", ownerID).
			Msg("credit referral kickback")
	}
	return nil
}
