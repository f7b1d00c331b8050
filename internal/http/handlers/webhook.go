package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"clipforge/internal/domain"
	"clipforge/internal/provider"
)

// webhookPayload tolerates both envelope shapes the provider has used: fields
// nested under data, or flat at the top level.
type webhookPayload struct {
	TaskID string          `json:"task_id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	Error  any             `json:"error"`
	Data   *struct {
		TaskID string          `json:"task_id"`
		Status string          `json:"status"`
		Result json.RawMessage `json:"result"`
		Error  any             `json:"error"`
	} `json:"data"`
}

// ProviderWebhook ingests push notifications from the generation provider.
// It always answers 200: a non-2xx would make the provider retry forever, and
// the polling loop covers anything we fail to apply here.
func (a *App) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	defer func() { a.json(w, http.StatusOK, map[string]bool{"received": true}) }()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		a.Logger.Warn().Err(err).Msg("webhook: read body")
		return
	}
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		a.Logger.Warn().Err(err).Msg("webhook: malformed payload")
		return
	}

	taskID, status, result, errField := payload.TaskID, payload.Status, payload.Result, payload.Error
	if payload.Data != nil {
		if payload.Data.TaskID != "" {
			taskID = payload.Data.TaskID
		}
		if payload.Data.Status != "" {
			status = payload.Data.Status
		}
		if len(payload.Data.Result) > 0 {
			result = payload.Data.Result
		}
		if payload.Data.Error != nil {
			errField = payload.Data.Error
		}
	}
	if taskID == "" {
		a.Logger.Warn().Msg("webhook: payload without task id")
		return
	}

	taskStatus := provider.StatusFrom(status, result, errField)
	if err := a.Reconciler.ApplyWebhook(r.Context(), taskID, taskStatus); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.Logger.Warn().Str("task_id", taskID).Msg("webhook: unknown task")
			return
		}
		a.Logger.Error().Err(err).Str("task_id", taskID).Msg("webhook: apply status")
	}
}
