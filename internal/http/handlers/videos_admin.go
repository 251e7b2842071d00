package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/upload"
)

// UploadVideo accepts a multipart upload and runs the full workflow before
// responding. Progress is observable concurrently via UploadStatus.
func (a *App) UploadVideo(w http.ResponseWriter, r *http.Request) {
	form, err := a.stageUploadForm(r)
	if err != nil {
		var serr *stageError
		if errors.As(err, &serr) {
			a.error(w, serr.Status, serr.Code, serr.Message)
			return
		}
		a.Logger.Error().Err(err).Msg("staging upload failed")
		a.error(w, http.StatusInternalServerError, "internal", "Failed to receive upload.")
		return
	}

	// The workflow owns the staged files from here on, including removal.
	result, err := a.Uploader.Run(r.Context(), upload.Request{
		UploadID:       form.UploadID,
		OwnerID:        a.currentUserID(r),
		OwnerRole:      a.currentUserRole(r),
		Title:          form.Title,
		Tags:           form.Tags,
		PublishStatus:  form.PublishStatus,
		VideoPath:      form.VideoPath,
		VideoBytes:     form.VideoBytes,
		ThumbnailPath:  form.ThumbnailPath,
		ThumbnailBytes: form.ThumbnailBytes,
	})
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	a.json(w, http.StatusCreated, map[string]any{
		"message":  "Video uploaded successfully.",
		"uploadId": result.UploadID,
		"video": map[string]any{
			"id":           result.VideoID,
			"videoUrl":     result.VideoURL,
			"thumbnailUrl": result.ThumbnailURL,
		},
	})
}

// UploadStatus reports the progress ledger entry for one upload. Visible to
// the upload's owner and to super admins only.
func (a *App) UploadStatus(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "uploadId")
	if uploadID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "uploadId is required.")
		return
	}

	session, ok := a.Progress.Get(uploadID)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "Upload not found or expired.")
		return
	}

	if session.OwnerID != a.currentUserID(r) && a.currentUserRole(r) != domain.RoleSuperAdmin {
		a.error(w, http.StatusForbidden, "forbidden", "You cannot view this upload.")
		return
	}

	a.json(w, http.StatusOK, session)
}
