package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"clipforge/internal/domain"
)

// Uploads are reference material for a single task, not a media library; the
// cap keeps one request from holding the connection for minutes.
const maxUploadBytes = 100 << 20

// UploadCreate stores a temporary asset (frame image or reference video) and
// returns its durable URL plus the ref used to discard it after submission.
func (a *App) UploadCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_request", "invalid multipart payload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_request", "file field required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		a.fail(w, domain.ErrUploadFailed)
		return
	}
	if len(data) > maxUploadBytes {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds the size limit")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	stored, err := a.Objects.Upload(r.Context(), data, contentType)
	if err != nil {
		a.Logger.Error().Err(err).Msg("store upload")
		a.fail(w, domain.ErrUploadFailed)
		return
	}
	a.json(w, http.StatusCreated, stored)
}

type deleteUploadRequest struct {
	Ref string `json:"ref"`
}

// UploadDelete discards a temporary asset by ref. Deleting an already-removed
// asset succeeds.
func (a *App) UploadDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Ref == "" {
		a.error(w, http.StatusBadRequest, "invalid_request", "ref required")
		return
	}
	if err := a.Objects.Delete(r.Context(), req.Ref); err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"deleted": true})
}
