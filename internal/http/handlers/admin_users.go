package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"server/internal/domain"
)

// BootstrapSuperAdmin creates the first super admin account. The caller must
// present the deploy-time setup key; once any super admin exists the
// endpoint is permanently closed.
func (a *App) BootstrapSuperAdmin(w http.ResponseWriter, r *http.Request) {
	if a.Cfg.SuperAdminSetupKey == "" {
		a.error(w, http.StatusForbidden, "forbidden", "Setup is disabled.")
		return
	}
	key := r.Header.Get("X-Setup-Key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(a.Cfg.SuperAdminSetupKey)) != 1 {
		a.error(w, http.StatusForbidden, "forbidden", "Invalid setup key.")
		return
	}

	exists, err := a.Users.HasSuperAdmin(r.Context())
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if exists {
		a.error(w, http.StatusConflict, "conflict", "A super admin already exists.")
		return
	}

	a.createAdmin(w, r, domain.RoleSuperAdmin)
}

// CreateMiniAdmin provisions an uploader account. Reachable by super admins
// only; the router enforces the role.
func (a *App) CreateMiniAdmin(w http.ResponseWriter, r *http.Request) {
	a.createAdmin(w, r, domain.RoleMiniAdmin)
}

func (a *App) createAdmin(w http.ResponseWriter, r *http.Request, role domain.Role) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "Invalid payload.")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)

	if req.Name == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "Name is required.")
		return
	}
	if msg := validCredentials(req.Email, req.Password); msg != "" {
		a.error(w, http.StatusBadRequest, "bad_request", msg)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	user := &domain.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	}
	id, err := a.Users.Create(r.Context(), user)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	user.ID = id

	a.json(w, http.StatusCreated, map[string]any{"user": toUserDTO(user)})
}

// ListUsers returns a page of accounts for the admin console.
func (a *App) ListUsers(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1, 0)
	limit := queryInt(r, "limit", 20, 100)

	users, total, err := a.Users.List(r.Context(), page, limit)
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	dtos := make([]userDTO, 0, len(users))
	for i := range users {
		dtos = append(dtos, toUserDTO(&users[i]))
	}
	a.json(w, http.StatusOK, map[string]any{
		"users": dtos,
		"page":  page,
		"limit": limit,
		"total": total,
	})
}

// SetUserActive activates or deactivates an account. Admins cannot
// deactivate themselves, which keeps at least the acting session usable.
func (a *App) SetUserActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		a.error(w, http.StatusBadRequest, "bad_request", "Field 'active' is required.")
		return
	}
	if id == a.currentUserID(r) && !*req.Active {
		a.error(w, http.StatusBadRequest, "bad_request", "You cannot deactivate your own account.")
		return
	}

	if err := a.Users.SetActive(r.Context(), id, *req.Active); err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"id": id, "isActive": *req.Active})
}
