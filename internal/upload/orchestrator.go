// Package upload drives the video upload workflow end to end: validate the
// request, transfer the binaries to external media storage, persist the
// metadata record, and publish progress to the ledger along the way. Any
// failure before the metadata commit unwinds already-created remote assets;
// staged local files are removed on every exit path.
package upload

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/progress"
	"server/internal/providers/mediastore"
)

// Workflow stages, in healthy order. A failing step transitions straight to
// failed; there is no retry-in-place.
const (
	StageValidating         = "validating"
	StageValidated          = "validated"
	StageUploadingVideo     = "uploading_video"
	StageVideoUploaded      = "video_uploaded"
	StageUploadingThumbnail = "uploading_thumbnail"
	StageThumbnailGenerated = "thumbnail_generated"
	StageSavingMetadata     = "saving_metadata"
)

// AssetClient is the narrow surface of the media storage provider used by
// the workflow.
type AssetClient interface {
	Upload(ctx context.Context, localPath string, resourceType mediastore.ResourceType, folder, publicID string) (*mediastore.AssetReference, error)
	Destroy(ctx context.Context, publicID string, resourceType mediastore.ResourceType) error
	FirstFrameThumbnailURL(videoPublicID string) string
}

// VideoCreator is the single metadata write the workflow performs.
type VideoCreator interface {
	Create(ctx context.Context, video *domain.Video) (string, error)
}

// Request carries one upload attempt. The binaries are already staged to
// local disk by the transport layer; the workflow owns their removal.
type Request struct {
	UploadID       string
	OwnerID        string
	OwnerRole      domain.Role
	Title          string
	Tags           []string
	PublishStatus  string
	VideoPath      string
	VideoBytes     int64
	ThumbnailPath  string
	ThumbnailBytes int64
}

// Result is returned to the caller on success; the same payload is published
// to the progress ledger.
type Result struct {
	UploadID     string
	VideoID      string
	VideoURL     string
	ThumbnailURL string
}

// Orchestrator executes upload workflows. One workflow runs per inbound
// request; steps are strictly sequential except compensating deletes.
type Orchestrator struct {
	assets          AssetClient
	videos          VideoCreator
	ledger          *progress.Ledger
	logger          zerolog.Logger
	videoFolder     string
	thumbnailFolder string
	now             func() time.Time
}

// NewOrchestrator wires the workflow's collaborators.
func NewOrchestrator(assets AssetClient, videos VideoCreator, ledger *progress.Ledger, logger zerolog.Logger, videoFolder, thumbnailFolder string) *Orchestrator {
	return &Orchestrator{
		assets:          assets,
		videos:          videos,
		ledger:          ledger,
		logger:          logger,
		videoFolder:     videoFolder,
		thumbnailFolder: thumbnailFolder,
		now:             time.Now,
	}
}

// Run executes one upload workflow. On success the progress ledger shows
// COMPLETED at 100%; on failure it shows FAILED with the cause, so a polling
// client observes the outcome even if this call's response is lost.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	uploadID := strings.TrimSpace(req.UploadID)
	if uploadID == "" {
		uploadID = uuid.NewString()
	}

	// The janitor runs whatever happens, registered before the first early
	// return so even a rejected session leaves no staged files behind. Its
	// failures are logged but never change the workflow's reported outcome.
	defer func() {
		if err := CleanupFiles(req.VideoPath, req.ThumbnailPath); err != nil {
			o.logger.Error().Err(err).Str("upload_id", uploadID).Msg("staged file cleanup failed")
		}
	}()

	if err := o.ledger.Create(uploadID, req.OwnerID, req.VideoBytes+req.ThumbnailBytes); err != nil {
		return nil, err
	}

	// Remote calls and compensation run on a cancellation-detached context:
	// an aborted inbound request must not cut a transfer already in flight,
	// or a remote asset would leak with nobody left to destroy it.
	remoteCtx := context.WithoutCancel(ctx)

	o.ledger.Advance(uploadID, 5, StageValidating, "Validating upload request.")
	video, err := o.validate(req)
	if err != nil {
		o.ledger.Fail(uploadID, "Upload failed.", err.Error())
		return nil, err
	}
	o.ledger.Advance(uploadID, 12, StageValidated, "Validation complete.")

	var assetRefs []*mediastore.AssetReference

	o.ledger.Advance(uploadID, 22, StageUploadingVideo, "Uploading video to media storage.")
	videoRef, err := o.assets.Upload(remoteCtx, req.VideoPath, mediastore.ResourceVideo,
		o.videoFolder, fmt.Sprintf("video-%s-%d", uploadID, o.now().UnixMilli()))
	if err != nil {
		o.fail(remoteCtx, uploadID, assetRefs, err)
		return nil, err
	}
	assetRefs = append(assetRefs, videoRef)
	videoBytes := videoRef.Bytes
	if videoBytes == 0 {
		videoBytes = req.VideoBytes
	}
	o.ledger.RecordVideoBytes(uploadID, videoBytes)
	o.ledger.Advance(uploadID, 72, StageVideoUploaded, "Video uploaded.")

	video.VideoURL = videoRef.SecureURL
	video.VideoPublicID = videoRef.PublicID

	if req.ThumbnailPath != "" {
		o.ledger.Advance(uploadID, 80, StageUploadingThumbnail, "Uploading custom thumbnail.")
		thumbRef, err := o.assets.Upload(remoteCtx, req.ThumbnailPath, mediastore.ResourceImage,
			o.thumbnailFolder, fmt.Sprintf("thumb-%s-%d", uploadID, o.now().UnixMilli()))
		if err != nil {
			o.fail(remoteCtx, uploadID, assetRefs, err)
			return nil, err
		}
		assetRefs = append(assetRefs, thumbRef)
		video.ThumbnailURL = thumbRef.SecureURL
		video.ThumbnailPublicID = thumbRef.PublicID
	} else {
		o.ledger.Advance(uploadID, 84, StageThumbnailGenerated, "Generating thumbnail from first frame.")
		video.ThumbnailURL = o.assets.FirstFrameThumbnailURL(videoRef.PublicID)
	}

	o.ledger.Advance(uploadID, 92, StageSavingMetadata, "Saving video metadata.")
	videoID, err := o.videos.Create(ctx, video)
	if err != nil {
		// The commit failed but the binaries are already in media storage.
		// They are kept for a retried metadata write; operators follow up.
		perr := &PersistenceError{Err: err}
		o.logger.Error().Err(err).
			Str("upload_id", uploadID).
			Str("video_public_id", video.VideoPublicID).
			Str("thumbnail_public_id", video.ThumbnailPublicID).
			Msg("metadata write failed; remote assets retained for operator follow-up")
		o.ledger.Fail(uploadID, "Upload failed.", perr.Error())
		return nil, perr
	}

	// Durable state now exists: the workflow is irreversibly committed and
	// compensation must never run, whatever happens below.
	result := progress.Result{
		VideoID:      videoID,
		VideoURL:     video.VideoURL,
		ThumbnailURL: video.ThumbnailURL,
	}
	o.ledger.Complete(uploadID, result)

	o.logger.Info().
		Str("upload_id", uploadID).
		Str("video_id", videoID).
		Str("uploaded_by", req.OwnerID).
		Msg("video upload completed")

	return &Result{
		UploadID:     uploadID,
		VideoID:      videoID,
		VideoURL:     video.VideoURL,
		ThumbnailURL: video.ThumbnailURL,
	}, nil
}

// validate checks the request and builds the metadata record skeleton.
func (o *Orchestrator) validate(req Request) (*domain.Video, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, &ValidationError{Message: "Title is required."}
	}

	tags := domain.NormalizeTags(req.Tags)
	if len(tags) == 0 {
		return nil, &ValidationError{Message: "At least one tag is required."}
	}

	publishStatus, ok := domain.ParsePublishStatus(req.PublishStatus)
	if !ok {
		return nil, &ValidationError{Message: "Invalid publish status. Use DRAFT or PUBLISHED."}
	}

	if req.VideoPath == "" {
		return nil, &ValidationError{Message: "Video file is required."}
	}

	if !req.OwnerRole.CanUploadVideos() {
		return nil, &AuthorizationError{Message: "Only admins can upload videos."}
	}

	return &domain.Video{
		Title:          title,
		Tags:           tags,
		PublishStatus:  publishStatus,
		UploadedBy:     req.OwnerID,
		UploadedByRole: req.OwnerRole,
		UploadDate:     o.now(),
	}, nil
}

// fail records the terminal state and unwinds any remote assets created so
// far. Compensating deletes run in parallel and are best-effort: their
// failures are logged, never allowed to mask the original error.
func (o *Orchestrator) fail(ctx context.Context, uploadID string, assetRefs []*mediastore.AssetReference, cause error) {
	o.compensate(ctx, uploadID, assetRefs)
	o.ledger.Fail(uploadID, "Upload failed.", cause.Error())
	o.logger.Error().Err(cause).Str("upload_id", uploadID).Msg("video upload failed")
}

func (o *Orchestrator) compensate(ctx context.Context, uploadID string, assetRefs []*mediastore.AssetReference) {
	var wg sync.WaitGroup
	for _, ref := range assetRefs {
		wg.Add(1)
		go func(ref *mediastore.AssetReference) {
			defer wg.Done()
			if err := o.assets.Destroy(ctx, ref.PublicID, ref.ResourceType); err != nil {
				o.logger.Error().Err(err).
					Str("upload_id", uploadID).
					Str("public_id", ref.PublicID).
					Msg("compensating delete failed; remote asset may be orphaned")
			}
		}(ref)
	}
	wg.Wait()
}
