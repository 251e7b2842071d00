package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

const videoColumns = "id, title, tags, video_url, video_public_id, thumbnail_url, thumbnail_public_id, publish_status, uploaded_by, uploaded_by_role, upload_date, view_count, created_at, updated_at"

// VideoRepositoryPG implements domain.VideoRepository backed by PostgreSQL.
type VideoRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewVideoRepository creates a new VideoRepositoryPG.
func NewVideoRepository(pool *pgxpool.Pool) *VideoRepositoryPG {
	return &VideoRepositoryPG{pool: pool}
}

// Create inserts the metadata record and returns the generated id.
func (r *VideoRepositoryPG) Create(ctx context.Context, video *domain.Video) (string, error) {
	query := `
INSERT INTO videos (title, tags, video_url, video_public_id, thumbnail_url, thumbnail_public_id, publish_status, uploaded_by, uploaded_by_role, upload_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id;
`
	var id string
	err := r.pool.QueryRow(ctx, query,
		video.Title,
		video.Tags,
		video.VideoURL,
		video.VideoPublicID,
		video.ThumbnailURL,
		video.ThumbnailPublicID,
		video.PublishStatus,
		video.UploadedBy,
		video.UploadedByRole,
		video.UploadDate,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetPublished fetches one publicly visible video by id.
func (r *VideoRepositoryPG) GetPublished(ctx context.Context, id string) (*domain.Video, error) {
	row := r.pool.QueryRow(ctx, `
SELECT `+videoColumns+`
FROM videos
WHERE id = $1 AND publish_status = 'PUBLISHED';
`, id)
	return scanVideo(row)
}

// ListPublished returns a page of the public feed. With a cursor the query
// uses keyset pagination on (upload_date, id); otherwise it falls back to
// page/offset. Trending ignores the cursor since its ordering is not stable
// under view count changes.
func (r *VideoRepositoryPG) ListPublished(ctx context.Context, q domain.FeedQuery) ([]domain.Video, error) {
	where := []string{"publish_status = 'PUBLISHED'"}
	args := []any{}

	if q.Tag != "" {
		where, args = appendWhere(where, args, "$%d = ANY(tags)", q.Tag)
	}

	orderBy := "upload_date DESC, id DESC"
	useCursor := q.Cursor != nil && q.Sort != domain.FeedSortTrending
	if q.Sort == domain.FeedSortTrending {
		orderBy = "view_count DESC, upload_date DESC, id DESC"
	}
	if useCursor {
		where, args = appendWhere(where, args, "(upload_date, id) < ($%d, $%d)", q.Cursor.UploadDate, q.Cursor.ID)
	}

	args = append(args, q.Limit)
	query := fmt.Sprintf(`
SELECT %s
FROM videos
WHERE %s
ORDER BY %s
LIMIT $%d`, videoColumns, strings.Join(where, " AND "), orderBy, len(args))

	if !useCursor {
		args = append(args, (q.Page-1)*q.Limit)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	query += ";"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

// CountPublished returns the total number of publicly visible videos, scoped
// to a tag when one is given.
func (r *VideoRepositoryPG) CountPublished(ctx context.Context, tag string) (int64, error) {
	var total int64
	var err error
	if tag != "" {
		err = r.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM videos WHERE publish_status = 'PUBLISHED' AND $1 = ANY(tags);
`, tag).Scan(&total)
	} else {
		err = r.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM videos WHERE publish_status = 'PUBLISHED';
`).Scan(&total)
	}
	return total, err
}

// Search matches published videos whose title or any tag contains the query,
// case-insensitively, newest first.
func (r *VideoRepositoryPG) Search(ctx context.Context, query string, page, limit int) ([]domain.Video, int64, error) {
	pattern := "%" + query + "%"

	var total int64
	if err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM videos
WHERE publish_status = 'PUBLISHED'
  AND (title ILIKE $1 OR EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE $1));
`, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+videoColumns+`
FROM videos
WHERE publish_status = 'PUBLISHED'
  AND (title ILIKE $1 OR EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE $1))
ORDER BY upload_date DESC, id DESC
LIMIT $2 OFFSET $3;
`, pattern, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	videos, err := collectVideos(rows)
	if err != nil {
		return nil, 0, err
	}
	return videos, total, nil
}

// UpNext builds the watch-next list for the current video. Candidates are
// drawn in passes of decreasing relevance until the limit is met: shared
// tags, then title keyword matches, then most recent, then most viewed. The
// current video and already-picked candidates are excluded in every pass.
func (r *VideoRepositoryPG) UpNext(ctx context.Context, current *domain.Video, excludeIDs []string, limit int) ([]domain.Video, error) {
	exclude := append([]string{current.ID}, excludeIDs...)
	var picked []domain.Video

	appendPass := func(videos []domain.Video) {
		for _, v := range videos {
			if len(picked) >= limit {
				return
			}
			picked = append(picked, v)
			exclude = append(exclude, v.ID)
		}
	}

	if len(current.Tags) > 0 {
		videos, err := r.upNextPass(ctx, "tags && $%d", []any{current.Tags}, "upload_date DESC, id DESC", exclude, limit-len(picked))
		if err != nil {
			return nil, err
		}
		appendPass(videos)
	}

	if len(picked) < limit {
		if cond, arg := titleKeywordCondition(current.Title); cond != "" {
			videos, err := r.upNextPass(ctx, cond, []any{arg}, "upload_date DESC, id DESC", exclude, limit-len(picked))
			if err != nil {
				return nil, err
			}
			appendPass(videos)
		}
	}

	if len(picked) < limit {
		videos, err := r.upNextPass(ctx, "", nil, "upload_date DESC, id DESC", exclude, limit-len(picked))
		if err != nil {
			return nil, err
		}
		appendPass(videos)
	}

	if len(picked) < limit {
		videos, err := r.upNextPass(ctx, "", nil, "view_count DESC, id DESC", exclude, limit-len(picked))
		if err != nil {
			return nil, err
		}
		appendPass(videos)
	}

	return picked, nil
}

func (r *VideoRepositoryPG) upNextPass(ctx context.Context, extraCond string, extraArgs []any, orderBy string, excludeIDs []string, limit int) ([]domain.Video, error) {
	if limit <= 0 {
		return nil, nil
	}

	where := []string{"publish_status = 'PUBLISHED'", "NOT (id = ANY($1))"}
	args := []any{excludeIDs}
	if extraCond != "" {
		where, args = appendWhere(where, args, extraCond, extraArgs...)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
SELECT %s
FROM videos
WHERE %s
ORDER BY %s
LIMIT $%d;`, videoColumns, strings.Join(where, " AND "), orderBy, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

// appendWhere adds a condition to the clause list, binding each condition
// argument to the next free positional placeholder. The condition references
// its arguments through $%d verbs, one per argument, so fragments stay valid
// regardless of how many parameters precede them.
func appendWhere(where []string, args []any, cond string, condArgs ...any) ([]string, []any) {
	positions := make([]any, 0, len(condArgs))
	for _, arg := range condArgs {
		args = append(args, arg)
		positions = append(positions, len(args))
	}
	return append(where, fmt.Sprintf(cond, positions...)), args
}

// titleKeywordCondition turns the current title into an any-keyword match.
// Short words are noise and dropped; at most eight keywords are used.
func titleKeywordCondition(title string) (string, any) {
	var patterns []string
	for _, word := range strings.Fields(strings.ToLower(title)) {
		if len(word) < 3 {
			continue
		}
		patterns = append(patterns, "%"+word+"%")
		if len(patterns) == 8 {
			break
		}
	}
	if len(patterns) == 0 {
		return "", nil
	}
	return "title ILIKE ANY($%d)", patterns
}

// IncrementViewCount bumps the view counter of a published video and returns
// the new value.
func (r *VideoRepositoryPG) IncrementViewCount(ctx context.Context, id string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
UPDATE videos
SET view_count = view_count + 1, updated_at = NOW()
WHERE id = $1 AND publish_status = 'PUBLISHED'
RETURNING view_count;
`, id).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return count, nil
}

func scanVideo(row pgx.Row) (*domain.Video, error) {
	var v domain.Video
	if err := row.Scan(
		&v.ID,
		&v.Title,
		&v.Tags,
		&v.VideoURL,
		&v.VideoPublicID,
		&v.ThumbnailURL,
		&v.ThumbnailPublicID,
		&v.PublishStatus,
		&v.UploadedBy,
		&v.UploadedByRole,
		&v.UploadDate,
		&v.ViewCount,
		&v.CreatedAt,
		&v.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func collectVideos(rows pgx.Rows) ([]domain.Video, error) {
	defer rows.Close()

	var videos []domain.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return videos, nil
}
