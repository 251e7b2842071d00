package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/http/middleware"
	"server/internal/infra"
	"server/internal/monitor"
	"server/internal/progress"
	"server/internal/upload"
)

// App bundles the dependencies shared by all HTTP handlers.
type App struct {
	Logger   zerolog.Logger
	Pool     *pgxpool.Pool
	Cfg      *infra.Config
	Videos   domain.VideoRepository
	Users    domain.UserRepository
	Uploader *upload.Orchestrator
	Progress *progress.Ledger
	Monitor  *monitor.Store
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, codeStr, msg string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": codeStr, "message": msg},
	})
}

// domainError maps the service error taxonomy onto HTTP responses. Unknown
// errors are logged and reported as opaque 500s.
func (a *App) domainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *upload.ValidationError
	var aerr *upload.AuthorizationError
	var perr *upload.PersistenceError

	switch {
	case errors.As(err, &verr):
		a.error(w, http.StatusBadRequest, "bad_request", verr.Message)
	case errors.As(err, &aerr):
		a.error(w, http.StatusForbidden, "forbidden", aerr.Message)
	case errors.As(err, &perr):
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("persistence failure")
		a.error(w, http.StatusInternalServerError, "internal", "Failed to save video metadata.")
	case errors.Is(err, progress.ErrDuplicateSession):
		a.error(w, http.StatusConflict, "conflict", "An upload with this id is already in progress.")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "Resource not found.")
	case errors.Is(err, domain.ErrDuplicateEmail):
		a.error(w, http.StatusConflict, "conflict", "Email is already registered.")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "Invalid credentials.")
	case errors.Is(err, domain.ErrInactiveUser):
		a.error(w, http.StatusForbidden, "forbidden", "Account is deactivated.")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		a.error(w, http.StatusInternalServerError, "internal", "Something went wrong.")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	id, _ := middleware.UserID(r.Context())
	return id
}

func (a *App) currentUserRole(r *http.Request) domain.Role {
	role, _ := middleware.UserRole(r.Context())
	return role
}
