package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string

	// Media storage provider (Cloudinary-style API).
	MediaCloudName       string
	MediaAPIKey          string
	MediaAPISecret       string
	MediaVideoFolder     string
	MediaThumbnailFolder string
	MediaUploadTimeout   time.Duration

	// Upload staging and progress tracking.
	TempUploadDir      string
	MaxVideoSizeMB     int
	MaxThumbnailSizeMB int
	UploadStatusTTL    time.Duration

	// Admin bootstrap.
	SuperAdminSetupKey string

	// Public response caching.
	PublicFeedCacheSeconds   int
	PublicDetailCacheSeconds int
	PublicSearchCacheSeconds int
	StaleWhileRevalidate     int

	FrontendBaseURL string
	AllowedOrigins  []string
	GeoIPDBPath     string

	SlowRequestThreshold time.Duration
	HTTPReadTimeout      time.Duration
	HTTPWriteTimeout     time.Duration
	HTTPIdleTimeout      time.Duration
	RateLimitPerMin      int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		MediaCloudName:       os.Getenv("MEDIA_CLOUD_NAME"),
		MediaAPIKey:          os.Getenv("MEDIA_API_KEY"),
		MediaAPISecret:       os.Getenv("MEDIA_API_SECRET"),
		MediaVideoFolder:     getEnv("MEDIA_VIDEO_FOLDER", "yt/videos"),
		MediaThumbnailFolder: getEnv("MEDIA_THUMBNAIL_FOLDER", "yt/thumbnails"),
		MediaUploadTimeout:   time.Second * time.Duration(getEnvInt("MEDIA_UPLOAD_TIMEOUT_SECONDS", 120)),

		TempUploadDir:      getEnv("TEMP_UPLOAD_DIR", "storage/tmp-uploads"),
		MaxVideoSizeMB:     getEnvInt("MAX_VIDEO_SIZE_MB", 500),
		MaxThumbnailSizeMB: getEnvInt("MAX_THUMBNAIL_SIZE_MB", 10),
		UploadStatusTTL:    time.Minute * time.Duration(getEnvInt("UPLOAD_STATUS_TTL_MINUTES", 30)),

		SuperAdminSetupKey: os.Getenv("SUPER_ADMIN_SETUP_KEY"),

		PublicFeedCacheSeconds:   getEnvInt("PUBLIC_FEED_CACHE_S", 60),
		PublicDetailCacheSeconds: getEnvInt("PUBLIC_DETAIL_CACHE_S", 300),
		PublicSearchCacheSeconds: getEnvInt("PUBLIC_SEARCH_CACHE_S", 30),
		StaleWhileRevalidate:     getEnvInt("PUBLIC_STALE_WHILE_REVALIDATE_S", 120),

		FrontendBaseURL: os.Getenv("FRONTEND_BASE_URL"),
		AllowedOrigins:  splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		GeoIPDBPath:     os.Getenv("GEOIP_DB_PATH"),

		SlowRequestThreshold: time.Millisecond * time.Duration(getEnvInt("SLOW_REQUEST_MS", 1200)),
		HTTPReadTimeout:      time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:     time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:      time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:      getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.MediaCloudName == "" || cfg.MediaAPIKey == "" || cfg.MediaAPISecret == "" {
		return nil, fmt.Errorf("media storage is not configured: MEDIA_CLOUD_NAME, MEDIA_API_KEY and MEDIA_API_SECRET are required")
	}

	return cfg, nil
}

// MaxVideoSizeBytes returns the video size cap in bytes.
func (c *Config) MaxVideoSizeBytes() int64 {
	return int64(c.MaxVideoSizeMB) << 20
}

// MaxThumbnailSizeBytes returns the thumbnail size cap in bytes.
func (c *Config) MaxThumbnailSizeBytes() int64 {
	return int64(c.MaxThumbnailSizeMB) << 20
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
