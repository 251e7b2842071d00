// Package mediastore implements the signed HTTP client for the external
// media storage provider. Uploads and deletes are authorized with a
// time-bound signature so the API secret never travels with the payload.
package mediastore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ResourceType names the provider-side asset class.
type ResourceType string

const (
	ResourceVideo ResourceType = "video"
	ResourceImage ResourceType = "image"
)

// ErrTimeout indicates the provider did not answer within the configured
// client-side deadline.
var ErrTimeout = errors.New("mediastore: request timed out")

// UploadError is a non-success response from the provider API.
type UploadError struct {
	StatusCode      int
	ProviderMessage string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("mediastore: upload failed with status %d: %s", e.StatusCode, e.ProviderMessage)
}

// AssetReference is the handle to a binary successfully transferred to the
// provider. It is kept by the upload workflow for the final metadata write
// and for compensating deletes.
type AssetReference struct {
	ResourceType ResourceType
	PublicID     string
	SecureURL    string
	Bytes        int64
}

// Options configures the media storage client.
type Options struct {
	CloudName       string
	APIKey          string
	APISecret       string
	BaseURL         string
	DeliveryBaseURL string
	HTTPClient      *http.Client
	Logger          *zerolog.Logger
	RequestTimeout  time.Duration
}

// Client performs signed HTTP calls against the media storage API.
type Client struct {
	cloudName       string
	apiKey          string
	apiSecret       string
	baseURL         string
	deliveryBaseURL string
	httpClient      *http.Client
	logger          zerolog.Logger
	now             func() time.Time
}

type uploadResponse struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Bytes     int64  `json:"bytes"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
// The HTTP client timeout is enforced here, not left to callers, so a hung
// provider endpoint cannot pin a request worker indefinitely.
func NewClient(opts Options) (*Client, error) {
	if opts.CloudName == "" || opts.APIKey == "" || opts.APISecret == "" {
		return nil, errors.New("mediastore: cloud name, api key and api secret are required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.cloudinary.com/v1_1"
	}
	deliveryBaseURL := strings.TrimRight(opts.DeliveryBaseURL, "/")
	if deliveryBaseURL == "" {
		deliveryBaseURL = "https://res.cloudinary.com"
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		cloudName:       opts.CloudName,
		apiKey:          opts.APIKey,
		apiSecret:       opts.APISecret,
		baseURL:         baseURL,
		deliveryBaseURL: deliveryBaseURL,
		httpClient:      httpClient,
		logger:          logger,
		now:             time.Now,
	}, nil
}

// Upload transfers the file at localPath to the provider under the given
// folder and public id, returning a reference to the stored asset.
func (c *Client) Upload(ctx context.Context, localPath string, resourceType ResourceType, folder, publicID string) (*AssetReference, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("mediastore: open staged file: %w", err)
	}
	defer file.Close()

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	signature := signParams(map[string]string{
		"folder":    folder,
		"public_id": publicID,
		"timestamp": timestamp,
	}, c.apiSecret)

	fields := map[string]string{
		"api_key":   c.apiKey,
		"timestamp": timestamp,
		"folder":    folder,
		"public_id": publicID,
		"signature": signature,
	}

	body, contentType := multipartBody(file, filepath.Base(localPath), fields)
	endpoint := fmt.Sprintf("%s/%s/%s/upload", c.baseURL, c.cloudName, resourceType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("mediastore: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %s upload of %s", ErrTimeout, resourceType, publicID)
		}
		return nil, fmt.Errorf("mediastore: upload request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mediastore: read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UploadError{StatusCode: resp.StatusCode, ProviderMessage: providerMessage(raw, resp.StatusCode)}
	}

	var decoded uploadResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("mediastore: decode upload response: %w", err)
	}
	c.logger.Debug().
		Str("public_id", decoded.PublicID).
		Str("resource_type", string(resourceType)).
		Int64("bytes", decoded.Bytes).
		Msg("mediastore: asset uploaded")

	return &AssetReference{
		ResourceType: resourceType,
		PublicID:     decoded.PublicID,
		SecureURL:    decoded.SecureURL,
		Bytes:        decoded.Bytes,
	}, nil
}

// Destroy deletes a previously uploaded asset. It is used for compensation
// only; callers treat failures as non-fatal.
func (c *Client) Destroy(ctx context.Context, publicID string, resourceType ResourceType) error {
	if publicID == "" {
		return nil
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	signature := signParams(map[string]string{
		"public_id": publicID,
		"timestamp": timestamp,
	}, c.apiSecret)

	fields := map[string]string{
		"public_id": publicID,
		"api_key":   c.apiKey,
		"timestamp": timestamp,
		"signature": signature,
	}

	body, contentType := multipartBody(nil, "", fields)
	endpoint := fmt.Sprintf("%s/%s/%s/destroy", c.baseURL, c.cloudName, resourceType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("mediastore: build destroy request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: destroy of %s", ErrTimeout, publicID)
		}
		return fmt.Errorf("mediastore: destroy request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mediastore: destroy of %s failed: %s", publicID, providerMessage(raw, resp.StatusCode))
	}
	return nil
}

// FirstFrameThumbnailURL derives a thumbnail URL from the first frame of an
// uploaded video. Pure URL construction, no network call.
func (c *Client) FirstFrameThumbnailURL(videoPublicID string) string {
	return fmt.Sprintf("%s/%s/video/upload/so_0/%s.jpg", c.deliveryBaseURL, c.cloudName, videoPublicID)
}

// signParams builds the provider signature: parameters sorted by key, joined
// as k=v pairs with '&', concatenated with the secret and SHA-1 hashed.
func signParams(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if value == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+params[key])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

// multipartBody streams an optional file plus form fields as a multipart
// payload. The file is piped rather than buffered; video uploads are far too
// large to hold in memory.
func multipartBody(file io.Reader, filename string, fields map[string]string) (io.Reader, string) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		var err error
		defer func() { pw.CloseWithError(err) }()

		if file != nil {
			var part io.Writer
			part, err = writer.CreateFormFile("file", filename)
			if err != nil {
				return
			}
			if _, err = io.Copy(part, file); err != nil {
				return
			}
		}
		for key, value := range fields {
			if err = writer.WriteField(key, value); err != nil {
				return
			}
		}
		err = writer.Close()
	}()

	return pr, writer.FormDataContentType()
}

func providerMessage(raw []byte, statusCode int) string {
	var decoded errorResponse
	if err := json.Unmarshal(raw, &decoded); err == nil {
		if decoded.Error.Message != "" {
			return decoded.Error.Message
		}
		if decoded.Message != "" {
			return decoded.Message
		}
	}
	return fmt.Sprintf("provider request failed with status %d", statusCode)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
