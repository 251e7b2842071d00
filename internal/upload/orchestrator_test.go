package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server/internal/domain"
	"server/internal/progress"
	"server/internal/providers/mediastore"
)

type uploadCall struct {
	path         string
	resourceType mediastore.ResourceType
	folder       string
	publicID     string
}

type destroyCall struct {
	publicID     string
	resourceType mediastore.ResourceType
}

type fakeAssets struct {
	mu         sync.Mutex
	uploads    []uploadCall
	destroys   []destroyCall
	videoErr   error
	thumbErr   error
	destroyErr error
}

func (f *fakeAssets) Upload(_ context.Context, path string, resourceType mediastore.ResourceType, folder, publicID string) (*mediastore.AssetReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, uploadCall{path: path, resourceType: resourceType, folder: folder, publicID: publicID})
	if resourceType == mediastore.ResourceVideo && f.videoErr != nil {
		return nil, f.videoErr
	}
	if resourceType == mediastore.ResourceImage && f.thumbErr != nil {
		return nil, f.thumbErr
	}
	return &mediastore.AssetReference{
		ResourceType: resourceType,
		PublicID:     folder + "/" + publicID,
		SecureURL:    "https://res.example.com/" + folder + "/" + publicID,
		Bytes:        42,
	}, nil
}

func (f *fakeAssets) Destroy(_ context.Context, publicID string, resourceType mediastore.ResourceType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroys = append(f.destroys, destroyCall{publicID: publicID, resourceType: resourceType})
	return f.destroyErr
}

func (f *fakeAssets) FirstFrameThumbnailURL(videoPublicID string) string {
	return "https://res.example.com/demo/video/upload/so_0/" + videoPublicID + ".jpg"
}

type fakeVideos struct {
	mu      sync.Mutex
	created []*domain.Video
	err     error
}

func (f *fakeVideos) Create(_ context.Context, video *domain.Video) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, video)
	return fmt.Sprintf("video-%d", len(f.created)), nil
}

type fixture struct {
	assets *fakeAssets
	videos *fakeVideos
	ledger *progress.Ledger
	orch   *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	assets := &fakeAssets{}
	videos := &fakeVideos{}
	ledger := progress.NewLedger(30 * time.Minute)
	orch := NewOrchestrator(assets, videos, ledger, zerolog.Nop(), "yt/videos", "yt/thumbnails")
	return &fixture{assets: assets, videos: videos, ledger: ledger, orch: orch}
}

func stagedFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("binary"), 0o644))
	return path
}

func validRequest(t *testing.T) Request {
	t.Helper()
	return Request{
		UploadID:   "up-1",
		OwnerID:    "admin-1",
		OwnerRole:  domain.RoleMiniAdmin,
		Title:      "Launch Demo",
		Tags:       []string{"tech, demo"},
		VideoPath:  stagedFile(t, "clip.mp4"),
		VideoBytes: 2048,
	}
}

func TestRunSucceedsWithDerivedThumbnail(t *testing.T) {
	f := newFixture(t)
	req := validRequest(t)

	result, err := f.orch.Run(context.Background(), req)
	require.NoError(t, err)

	// Only the video binary travels; the thumbnail is a derived URL.
	require.Len(t, f.assets.uploads, 1)
	assert.Equal(t, mediastore.ResourceVideo, f.assets.uploads[0].resourceType)
	assert.Contains(t, result.ThumbnailURL, "/so_0/")

	require.Len(t, f.videos.created, 1)
	created := f.videos.created[0]
	assert.Equal(t, "Launch Demo", created.Title)
	assert.Equal(t, []string{"tech", "demo"}, created.Tags)
	assert.Equal(t, domain.PublishStatusDraft, created.PublishStatus)
	assert.Equal(t, domain.RoleMiniAdmin, created.UploadedByRole)

	session, ok := f.ledger.Get("up-1")
	require.True(t, ok)
	assert.Equal(t, progress.StatusCompleted, session.Status)
	assert.Equal(t, 100, session.ProgressPercent)
	require.NotNil(t, session.Result)
	assert.Equal(t, "video-1", session.Result.VideoID)

	assert.NoFileExists(t, req.VideoPath, "staged video should be cleaned up")
	assert.Empty(t, f.assets.destroys)
}

func TestRunUploadsSuppliedThumbnail(t *testing.T) {
	f := newFixture(t)
	req := validRequest(t)
	req.ThumbnailPath = stagedFile(t, "cover.png")
	req.ThumbnailBytes = 128

	result, err := f.orch.Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, f.assets.uploads, 2)
	assert.Equal(t, mediastore.ResourceImage, f.assets.uploads[1].resourceType)
	assert.Equal(t, "yt/thumbnails", f.assets.uploads[1].folder)
	assert.NotContains(t, result.ThumbnailURL, "/so_0/")

	assert.NoFileExists(t, req.VideoPath)
	assert.NoFileExists(t, req.ThumbnailPath)
}

func TestRunFailsValidationBeforeAnyRemoteCall(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Request)
		message string
	}{
		{
			name:    "empty title",
			mutate:  func(r *Request) { r.Title = "   " },
			message: "Title is required.",
		},
		{
			name:    "no tags",
			mutate:  func(r *Request) { r.Tags = []string{" , "} },
			message: "At least one tag is required.",
		},
		{
			name:    "bad publish status",
			mutate:  func(r *Request) { r.PublishStatus = "ARCHIVED" },
			message: "Invalid publish status. Use DRAFT or PUBLISHED.",
		},
		{
			name:    "missing video",
			mutate:  func(r *Request) { r.VideoPath = "" },
			message: "Video file is required.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			req := validRequest(t)
			tc.mutate(&req)

			_, err := f.orch.Run(context.Background(), req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.message, verr.Message)

			assert.Empty(t, f.assets.uploads, "no remote calls before validation passes")
			assert.Empty(t, f.videos.created)

			session, ok := f.ledger.Get("up-1")
			require.True(t, ok)
			assert.Equal(t, progress.StatusFailed, session.Status)
			assert.LessOrEqual(t, session.ProgressPercent, 5, "no checkpoint beyond validating")
		})
	}
}

func TestRunRejectsUnauthorizedRole(t *testing.T) {
	f := newFixture(t)
	req := validRequest(t)
	req.OwnerRole = domain.RoleUser

	_, err := f.orch.Run(context.Background(), req)
	var aerr *AuthorizationError
	require.ErrorAs(t, err, &aerr)
	assert.Empty(t, f.assets.uploads)
	assert.NoFileExists(t, req.VideoPath)
}

func TestRunVideoUploadFailureCompensatesNothing(t *testing.T) {
	f := newFixture(t)
	f.assets.videoErr = &mediastore.UploadError{StatusCode: http.StatusBadGateway, ProviderMessage: "boom"}
	req := validRequest(t)

	_, err := f.orch.Run(context.Background(), req)
	var uerr *mediastore.UploadError
	require.ErrorAs(t, err, &uerr)

	assert.Empty(t, f.assets.destroys, "no assets exist yet, nothing to destroy")
	assert.Empty(t, f.videos.created)
	assert.NoFileExists(t, req.VideoPath)

	session, ok := f.ledger.Get("up-1")
	require.True(t, ok)
	assert.Equal(t, progress.StatusFailed, session.Status)
}

func TestRunThumbnailFailureDestroysVideoAsset(t *testing.T) {
	f := newFixture(t)
	f.assets.thumbErr = &mediastore.UploadError{StatusCode: http.StatusInternalServerError, ProviderMessage: "provider 500"}
	req := validRequest(t)
	req.ThumbnailPath = stagedFile(t, "cover.png")

	_, err := f.orch.Run(context.Background(), req)
	require.Error(t, err)

	require.Len(t, f.assets.destroys, 1)
	assert.Equal(t, mediastore.ResourceVideo, f.assets.destroys[0].resourceType)
	assert.Equal(t, "yt/videos/"+f.assets.uploads[0].publicID, f.assets.destroys[0].publicID)
	assert.Empty(t, f.videos.created, "no metadata record may exist")

	session, ok := f.ledger.Get("up-1")
	require.True(t, ok)
	assert.Equal(t, progress.StatusFailed, session.Status)
	assert.Contains(t, session.Error, "provider 500")
}

func TestRunFailedCompensationDoesNotMaskCause(t *testing.T) {
	f := newFixture(t)
	f.assets.thumbErr = &mediastore.UploadError{StatusCode: http.StatusInternalServerError, ProviderMessage: "original cause"}
	f.assets.destroyErr = errors.New("destroy also broken")
	req := validRequest(t)
	req.ThumbnailPath = stagedFile(t, "cover.png")

	_, err := f.orch.Run(context.Background(), req)
	var uerr *mediastore.UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "original cause", uerr.ProviderMessage)
	require.Len(t, f.assets.destroys, 1, "compensation is still attempted")
}

func TestRunPersistenceFailureKeepsRemoteAssets(t *testing.T) {
	f := newFixture(t)
	f.videos.err = errors.New("connection reset")
	req := validRequest(t)

	_, err := f.orch.Run(context.Background(), req)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)

	// The binaries stay in media storage for a retried metadata write.
	assert.Empty(t, f.assets.destroys)
	assert.NoFileExists(t, req.VideoPath)

	session, ok := f.ledger.Get("up-1")
	require.True(t, ok)
	assert.Equal(t, progress.StatusFailed, session.Status)
}

func TestRunRejectsDuplicateUploadID(t *testing.T) {
	f := newFixture(t)
	req := validRequest(t)
	_, err := f.orch.Run(context.Background(), req)
	require.NoError(t, err)

	again := validRequest(t)
	again.ThumbnailPath = stagedFile(t, "cover.png")
	_, err = f.orch.Run(context.Background(), again)
	assert.ErrorIs(t, err, progress.ErrDuplicateSession)

	// Rejected attempts still clean up their staged files.
	assert.NoFileExists(t, again.VideoPath)
	assert.NoFileExists(t, again.ThumbnailPath)
}

func TestRunGeneratesUploadIDWhenMissing(t *testing.T) {
	f := newFixture(t)
	req := validRequest(t)
	req.UploadID = ""

	result, err := f.orch.Run(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, result.UploadID)

	_, ok := f.ledger.Get(result.UploadID)
	assert.True(t, ok)
}

func TestRunSurvivesCanceledRequestContext(t *testing.T) {
	f := newFixture(t)
	req := validRequest(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Remote transfers ride a detached context, so the only step that sees
	// the cancellation is the metadata write; the created asset is then
	// handled by the persistence-failure policy, not silently leaked.
	f.videos.err = ctx.Err()
	_, err := f.orch.Run(ctx, req)
	require.Error(t, err)
	require.Len(t, f.assets.uploads, 1)
	assert.NoFileExists(t, req.VideoPath)
}
