package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"server/internal/upload"
)

var allowedVideoTypes = map[string]struct{}{
	"video/mp4":        {},
	"video/webm":       {},
	"video/quicktime":  {},
	"video/x-matroska": {},
}

var allowedThumbnailTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/webp": {},
}

// stageError carries an HTTP status for defects found while reading the
// multipart form.
type stageError struct {
	Status  int
	Code    string
	Message string
}

func (e *stageError) Error() string { return e.Message }

// uploadForm is the staged result of one multipart upload request. File
// parts are already written to local disk.
type uploadForm struct {
	UploadID       string
	Title          string
	Tags           []string
	PublishStatus  string
	VideoPath      string
	VideoBytes     int64
	ThumbnailPath  string
	ThumbnailBytes int64
}

// paths lists the staged files for cleanup.
func (f *uploadForm) paths() []string {
	return []string{f.VideoPath, f.ThumbnailPath}
}

// stageUploadForm streams the request's multipart body to local disk. Parts
// are processed in order without buffering whole files in memory; size caps
// are enforced while copying so an oversized part aborts early.
func (a *App) stageUploadForm(r *http.Request) (*uploadForm, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, &stageError{Status: http.StatusBadRequest, Code: "bad_request", Message: "Request must be multipart/form-data."}
	}

	if err := os.MkdirAll(a.Cfg.TempUploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	form := &uploadForm{}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			a.discardForm(form)
			return nil, &stageError{Status: http.StatusBadRequest, Code: "bad_request", Message: "Malformed multipart body."}
		}

		if part.FileName() == "" {
			if err := readField(form, part); err != nil {
				a.discardForm(form)
				return nil, err
			}
			continue
		}

		if err := a.stageFilePart(form, part); err != nil {
			a.discardForm(form)
			return nil, err
		}
	}

	return form, nil
}

func readField(form *uploadForm, part *multipart.Part) error {
	// Field values are small; a hard cap guards against abuse.
	value, err := io.ReadAll(io.LimitReader(part, 64<<10))
	if err != nil {
		return &stageError{Status: http.StatusBadRequest, Code: "bad_request", Message: "Malformed multipart body."}
	}
	switch part.FormName() {
	case "title":
		form.Title = string(value)
	case "tags":
		form.Tags = append(form.Tags, string(value))
	case "publishStatus":
		form.PublishStatus = string(value)
	case "uploadId":
		form.UploadID = strings.TrimSpace(string(value))
	}
	return nil
}

func (a *App) stageFilePart(form *uploadForm, part *multipart.Part) error {
	contentType := strings.ToLower(strings.TrimSpace(part.Header.Get("Content-Type")))

	var maxBytes int64
	switch part.FormName() {
	case "video":
		if _, ok := allowedVideoTypes[contentType]; !ok {
			return &stageError{Status: http.StatusBadRequest, Code: "bad_request", Message: "Unsupported video format. Use MP4, WebM, MOV, or MKV."}
		}
		maxBytes = a.Cfg.MaxVideoSizeBytes()
	case "thumbnail":
		if _, ok := allowedThumbnailTypes[contentType]; !ok {
			return &stageError{Status: http.StatusBadRequest, Code: "bad_request", Message: "Unsupported thumbnail format. Use JPEG, PNG, or WebP."}
		}
		maxBytes = a.Cfg.MaxThumbnailSizeBytes()
	default:
		// Unknown file fields are drained and ignored.
		_, _ = io.Copy(io.Discard, part)
		return nil
	}

	path := filepath.Join(a.Cfg.TempUploadDir, uuid.NewString()+filepath.Ext(part.FileName()))
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create staged file: %w", err)
	}

	written, err := io.Copy(dst, io.LimitReader(part, maxBytes+1))
	closeErr := dst.Close()
	if err != nil || closeErr != nil {
		_ = os.Remove(path)
		return fmt.Errorf("write staged file: %w", errors.Join(err, closeErr))
	}
	if written > maxBytes {
		_ = os.Remove(path)
		return &stageError{Status: http.StatusRequestEntityTooLarge, Code: "payload_too_large", Message: "File exceeds the maximum allowed size."}
	}

	switch part.FormName() {
	case "video":
		form.VideoPath = path
		form.VideoBytes = written
	case "thumbnail":
		form.ThumbnailPath = path
		form.ThumbnailBytes = written
	}
	return nil
}

func (a *App) discardForm(form *uploadForm) {
	if err := upload.CleanupFiles(form.paths()...); err != nil {
		a.Logger.Error().Err(err).Msg("staged file cleanup failed")
	}
}
