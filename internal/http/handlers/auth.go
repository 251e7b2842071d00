package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"server/internal/domain"
	"server/internal/http/middleware"
)

const tokenLifetime = 7 * 24 * time.Hour

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userDTO struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"isActive"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func toUserDTO(u *domain.User) userDTO {
	return userDTO{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        string(u.Role),
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

func validCredentials(email, password string) string {
	if !emailPattern.MatchString(email) {
		return "A valid email is required."
	}
	if len(password) < 8 {
		return "Password must be at least 8 characters."
	}
	return ""
}

// Register creates a viewer account. Admin accounts are provisioned through
// the admin user endpoints, never through self-registration.
func (a *App) Register(w http.ResponseWriter, r *http.Request) {
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
		Role:         domain.RoleUser,
		IsActive:     true,
	}
	id, err := a.Users.Create(r.Context(), user)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	user.ID = id

	a.issueToken(w, user)
	a.json(w, http.StatusCreated, map[string]any{"user": toUserDTO(user)})
}

// Login authenticates a viewer account.
func (a *App) Login(w http.ResponseWriter, r *http.Request) {
	a.loginWithRoles(w, r, domain.RoleUser)
}

// AdminLogin authenticates an admin account. Viewer credentials are rejected
// here even when valid, so the admin surface never issues viewer sessions.
func (a *App) AdminLogin(w http.ResponseWriter, r *http.Request) {
	a.loginWithRoles(w, r, domain.RoleSuperAdmin, domain.RoleMiniAdmin)
}

func (a *App) loginWithRoles(w http.ResponseWriter, r *http.Request, roles ...domain.Role) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "Invalid payload.")
		return
	}

	user, err := a.authenticate(r.Context(), req, roles...)
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	if err := a.Users.TouchLastLogin(r.Context(), user.ID); err != nil {
		a.Logger.Error().Err(err).Str("user_id", user.ID).Msg("recording login time failed")
	}

	a.issueToken(w, user)
	a.json(w, http.StatusOK, map[string]any{"user": toUserDTO(user)})
}

// authenticate resolves credentials against the allowed role set. An unknown
// email, a role outside the set, and a wrong password are indistinguishable
// to the caller so the response leaks nothing about which check failed.
func (a *App) authenticate(ctx context.Context, req credentialsRequest, roles ...domain.Role) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := a.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}

	allowed := false
	for _, role := range roles {
		if user.Role == role {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, domain.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, domain.ErrUnauthorized
	}
	if !user.IsActive {
		return nil, domain.ErrInactiveUser
	}
	return user, nil
}

// Logout clears the session cookie.
func (a *App) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Cfg.AppEnv == "production",
	})
	a.json(w, http.StatusOK, map[string]string{"message": "Logged out."})
}

// Me returns the authenticated account.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	user, err := a.Users.GetByID(r.Context(), a.currentUserID(r))
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"user": toUserDTO(user)})
}

func (a *App) issueToken(w http.ResponseWriter, user *domain.User) {
	claims := &middleware.Claims{
		UserID: user.ID,
		Role:   string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenLifetime)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.Cfg.JWTSecret))
	if err != nil {
		a.Logger.Error().Err(err).Msg("signing token failed")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		MaxAge:   int(tokenLifetime.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Cfg.AppEnv == "production",
	})
}
