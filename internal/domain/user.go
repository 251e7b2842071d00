package domain

import "time"

// Role enumerates the access levels known to the service.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleMiniAdmin  Role = "MINI_ADMIN"
	RoleUser       Role = "USER"
)

// CanUploadVideos reports whether the role is in the authorized-uploader set.
func (r Role) CanUploadVideos() bool {
	return r == RoleSuperAdmin || r == RoleMiniAdmin
}

// User is an account able to authenticate against the service.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
