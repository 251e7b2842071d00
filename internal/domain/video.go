package domain

import (
	"strings"
	"time"
)

// PublishStatus controls public visibility of a video.
type PublishStatus string

const (
	PublishStatusDraft     PublishStatus = "DRAFT"
	PublishStatusPublished PublishStatus = "PUBLISHED"
)

// ParsePublishStatus normalizes a raw publish status value. An empty value
// defaults to DRAFT; anything else must match a known status exactly.
func ParsePublishStatus(raw string) (PublishStatus, bool) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	switch value {
	case "":
		return PublishStatusDraft, true
	case string(PublishStatusDraft):
		return PublishStatusDraft, true
	case string(PublishStatusPublished):
		return PublishStatusPublished, true
	}
	return "", false
}

// Video is the durable metadata record for an uploaded video.
type Video struct {
	ID                string
	Title             string
	Tags              []string
	VideoURL          string
	VideoPublicID     string
	ThumbnailURL      string
	ThumbnailPublicID string
	PublishStatus     PublishStatus
	UploadedBy        string
	UploadedByRole    Role
	UploadDate        time.Time
	ViewCount         int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FeedSort selects the ordering of public feed queries.
type FeedSort string

const (
	FeedSortLatest   FeedSort = "latest"
	FeedSortTrending FeedSort = "trending"
)

// FeedQuery captures pagination and filter options for the public feed.
type FeedQuery struct {
	Page   int
	Limit  int
	Tag    string
	Sort   FeedSort
	Cursor *FeedCursor
}

// FeedCursor is a keyset position in the latest-first ordering.
type FeedCursor struct {
	UploadDate time.Time
	ID         string
}
