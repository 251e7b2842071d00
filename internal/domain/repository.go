package domain

import "context"

// VideoRepository is the durable store for video metadata.
type VideoRepository interface {
	// Create persists a new video record and returns its identifier. It is
	// the commit point of the upload workflow.
	Create(ctx context.Context, video *Video) (string, error)
	GetPublished(ctx context.Context, id string) (*Video, error)
	ListPublished(ctx context.Context, q FeedQuery) ([]Video, error)
	CountPublished(ctx context.Context, tag string) (int64, error)
	Search(ctx context.Context, query string, page, limit int) ([]Video, int64, error)
	UpNext(ctx context.Context, current *Video, excludeIDs []string, limit int) ([]Video, error)
	IncrementViewCount(ctx context.Context, id string) (int64, error)
}

// UserRepository is the durable store for accounts.
type UserRepository interface {
	Create(ctx context.Context, user *User) (string, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, page, limit int) ([]User, int64, error)
	SetActive(ctx context.Context, id string, active bool) error
	TouchLastLogin(ctx context.Context, id string) error
	HasSuperAdmin(ctx context.Context) (bool, error)
}
