package domain

import "time"

// TxnReason tags a points transaction.
type TxnReason string

const (
	TxnGenerationDebit TxnReason = "generation-debit"
	TxnReferralCredit  TxnReason = "referral-credit"
	TxnPromoCredit     TxnReason = "promo-credit"
	TxnPurchaseCredit  TxnReason = "purchase-credit"
	TxnStarterCredit   TxnReason = "starter-credit"
)

// PointsTxn is one append-only entry in the per-user transaction log. Debits
// carry a negative amount.
type PointsTxn struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Amount       int       `json:"amount"`
	Reason       TxnReason `json:"reason"`
	RelatedJobID string    `json:"related_job_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Account is the durable per-user balance row.
type Account struct {
	OwnerID      string    `json:"owner_id"`
	Points       int       `json:"points"`
	TotalVideos  int       `json:"total_videos"`
	ReferralCode string    `json:"referral_code,omitempty"`
	ReferredBy   string    `json:"referred_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
