// Package handlers implements the HTTP surface: video submission and status,
// the provider webhook, points and uploads.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"clipforge/internal/domain"
	"clipforge/internal/infra"
	"clipforge/internal/localstore"
	"clipforge/internal/service"
	"clipforge/internal/storage"
)

// App bundles the dependencies handlers need.
type App struct {
	Submitter  *service.Submitter
	Reconciler *service.Reconciler
	Points     *service.Points
	Jobs       domain.JobLedger
	Local      *localstore.Store
	Objects    storage.ObjectStore
	Logger     infra.Logger
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorResponse{Error: code, Message: message})
}

// fail maps domain errors to HTTP responses.
func (a *App) fail(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	var perr *domain.ProviderError
	switch {
	case errors.As(err, &verr):
		a.error(w, http.StatusBadRequest, "invalid_request", verr.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "authentication required")
	case errors.Is(err, domain.ErrInsufficientBalance):
		a.error(w, http.StatusPaymentRequired, "insufficient_balance", "not enough points for this generation")
	case errors.Is(err, domain.ErrDuplicateOperation):
		a.error(w, http.StatusConflict, "duplicate", "operation already applied")
	case errors.As(err, &perr):
		if perr.RateLimited {
			a.error(w, http.StatusTooManyRequests, "provider_busy", "generation provider is busy, try again shortly")
			return
		}
		a.error(w, http.StatusBadGateway, "provider_error", perr.Message)
	default:
		a.Logger.Error().Err(err).Msg("unhandled request error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
