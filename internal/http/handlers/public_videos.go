package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

const (
	defaultFeedLimit = 12
	maxFeedLimit     = 50
	upNextLimit      = 8
)

type videoDTO struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Tags         []string  `json:"tags"`
	VideoURL     string    `json:"videoUrl"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	UploadDate   time.Time `json:"uploadDate"`
	ViewCount    int64     `json:"viewCount"`
}

func toVideoDTO(v *domain.Video) videoDTO {
	tags := v.Tags
	if tags == nil {
		tags = []string{}
	}
	return videoDTO{
		ID:           v.ID,
		Title:        v.Title,
		Tags:         tags,
		VideoURL:     v.VideoURL,
		ThumbnailURL: v.ThumbnailURL,
		UploadDate:   v.UploadDate,
		ViewCount:    v.ViewCount,
	}
}

func toVideoDTOs(videos []domain.Video) []videoDTO {
	out := make([]videoDTO, 0, len(videos))
	for i := range videos {
		out = append(out, toVideoDTO(&videos[i]))
	}
	return out
}

// encodeFeedCursor packs a keyset position into an opaque token.
func encodeFeedCursor(v *domain.Video) string {
	raw := v.UploadDate.UTC().Format(time.RFC3339Nano) + "|" + v.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeFeedCursor(token string) (*domain.FeedCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	date, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, errors.New("malformed cursor")
	}
	uploadDate, err := time.Parse(time.RFC3339Nano, date)
	if err != nil {
		return nil, err
	}
	return &domain.FeedCursor{UploadDate: uploadDate, ID: id}, nil
}

func queryInt(r *http.Request, key string, def, max int) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || value < 1 {
		return def
	}
	if max > 0 && value > max {
		return max
	}
	return value
}

// PublicFeed lists published videos. Supports page/limit pagination, an
// opaque cursor for stable infinite scroll, a tag filter, and latest or
// trending ordering.
func (a *App) PublicFeed(w http.ResponseWriter, r *http.Request) {
	q := domain.FeedQuery{
		Page:  queryInt(r, "page", 1, 0),
		Limit: queryInt(r, "limit", defaultFeedLimit, maxFeedLimit),
		Tag:   strings.TrimSpace(r.URL.Query().Get("tag")),
		Sort:  domain.FeedSortLatest,
	}
	if r.URL.Query().Get("sort") == string(domain.FeedSortTrending) {
		q.Sort = domain.FeedSortTrending
	}
	if token := r.URL.Query().Get("cursor"); token != "" {
		cursor, err := decodeFeedCursor(token)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "Invalid cursor.")
			return
		}
		q.Cursor = cursor
	}

	videos, err := a.Videos.ListPublished(r.Context(), q)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	total, err := a.Videos.CountPublished(r.Context(), q.Tag)
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	resp := map[string]any{
		"videos": toVideoDTOs(videos),
		"page":   q.Page,
		"limit":  q.Limit,
		"total":  total,
	}
	if q.Sort == domain.FeedSortLatest && len(videos) == q.Limit {
		resp["nextCursor"] = encodeFeedCursor(&videos[len(videos)-1])
	}
	a.json(w, http.StatusOK, resp)
}

// SearchVideos matches published videos by title or tag.
func (a *App) SearchVideos(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "Search query is required.")
		return
	}
	page := queryInt(r, "page", 1, 0)
	limit := queryInt(r, "limit", defaultFeedLimit, maxFeedLimit)

	videos, total, err := a.Videos.Search(r.Context(), query, page, limit)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"videos": toVideoDTOs(videos),
		"query":  query,
		"page":   page,
		"limit":  limit,
		"total":  total,
	})
}

// PublicVideoDetail returns one published video plus its share link.
func (a *App) PublicVideoDetail(w http.ResponseWriter, r *http.Request) {
	video, err := a.Videos.GetPublished(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"video":    toVideoDTO(video),
		"shareUrl": strings.TrimSuffix(a.Cfg.FrontendBaseURL, "/") + "/watch/" + video.ID,
	})
}

// UpNext returns the watch-next list for a published video.
func (a *App) UpNext(w http.ResponseWriter, r *http.Request) {
	current, err := a.Videos.GetPublished(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	var excludeIDs []string
	if raw := r.URL.Query().Get("exclude"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				excludeIDs = append(excludeIDs, id)
			}
		}
	}

	videos, err := a.Videos.UpNext(r.Context(), current, excludeIDs, upNextLimit)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"videos": toVideoDTOs(videos)})
}

// RecordView increments a published video's view counter.
func (a *App) RecordView(w http.ResponseWriter, r *http.Request) {
	count, err := a.Videos.IncrementViewCount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"viewCount": count})
}
