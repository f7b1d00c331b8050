package handlers

import (
	"encoding/json"
	"net/http"

	"clipforge/internal/middleware"
)

// PointsAccount returns the caller's balance, creating the account with the
// starter grant on first touch.
func (a *App) PointsAccount(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.UserIDFromContext(r.Context())
	account, err := a.Points.Account(r.Context(), ownerID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, account)
}

func (a *App) PointsTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.UserIDFromContext(r.Context())
	txns, err := a.Points.Transactions(r.Context(), ownerID, 100)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": txns})
}

type promoRequest struct {
	Code string `json:"code"`
}

func (a *App) PointsRedeemPromo(w http.ResponseWriter, r *http.Request) {
	var req promoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_request", "invalid payload")
		return
	}
	amount, err := a.Points.RedeemPromo(r.Context(), middleware.UserIDFromContext(r.Context()), req.Code)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]int{"granted": amount})
}

func (a *App) PointsReferralCode(w http.ResponseWriter, r *http.Request) {
	code, err := a.Points.ReferralCode(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"code": code})
}

func (a *App) PointsApplyReferral(w http.ResponseWriter, r *http.Request) {
	var req promoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_request", "invalid payload")
		return
	}
	if err := a.Points.ApplyReferral(r.Context(), middleware.UserIDFromContext(r.Context()), req.Code); err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"applied": true})
}

type purchaseRequest struct {
	Amount int    `json:"amount"`
	Ref    string `json:"ref"`
}

// PointsPurchase records a completed purchase. Payment capture happens
// upstream; this endpoint only credits the points and the referral kickback.
func (a *App) PointsPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_request", "invalid payload")
		return
	}
	if err := a.Points.RecordPurchase(r.Context(), middleware.UserIDFromContext(r.Context()), req.Amount, req.Ref); err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"credited": true})
}
