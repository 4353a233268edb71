package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var Version = "dev"

var (
	Port    string
	EnvMode string

	UploadDir    string
	ProcessedDir string
	PublicDir    string

	FFmpegPath  string
	FFprobePath string

	MaxUploadBytes int64
	ProbeUploads   bool

	InputCleanupDelay  time.Duration
	OutputCleanupDelay time.Duration

	RateLimitMax    int
	RateLimitWindow time.Duration

	LogLevel string

	DiscordWebhookURL string
	DiscordPingUserID string
	DiscordAlerts     bool
)

const (
	DefaultMaxUploadBytes     = 500 * 1024 * 1024
	DefaultInputCleanupDelay  = 60 * time.Second
	DefaultOutputCleanupDelay = time.Hour
	DefaultRateLimitMax       = 100
	DefaultRateLimitWindow    = 15 * time.Minute

	// Multipart framing around the file part (boundaries, part headers).
	MultipartOverhead = 1 << 20

	StagingSuffix  = "-staging"
	OutputPrefix   = "fixed-"
	ProcessedRoute = "/processed"
	UploadField    = "video"

	SweepInterval   = 5 * time.Minute
	DiskSpaceMinGB  = 5
	TargetTimescale = 90000
)

var ContainerMIMEs = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".ts":   "video/mp2t",
	".3gp":  "video/3gpp",
}

func Load() {
	Port = envOrDefault("PORT", "3000")
	EnvMode = envOrDefault("NODE_ENV", "development")

	UploadDir = absDir(envOrDefault("UPLOAD_DIR", "uploads"))
	ProcessedDir = absDir(envOrDefault("PROCESSED_DIR", "processed"))
	PublicDir = absDir(envOrDefault("PUBLIC_DIR", "public"))

	FFmpegPath = envOrDefault("FFMPEG_PATH", "ffmpeg")
	FFprobePath = envOrDefault("FFPROBE_PATH", "ffprobe")

	MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)
	ProbeUploads = envBool("PROBE_UPLOADS", false)

	InputCleanupDelay = envMillis("INPUT_CLEANUP_TIME", DefaultInputCleanupDelay)
	OutputCleanupDelay = envMillis("OUTPUT_CLEANUP_TIME", DefaultOutputCleanupDelay)

	RateLimitMax = int(envInt64("RATE_LIMIT_MAX", DefaultRateLimitMax))
	RateLimitWindow = time.Duration(envInt64("RATE_LIMIT_WINDOW_MINUTES", int64(DefaultRateLimitWindow/time.Minute))) * time.Minute

	LogLevel = envOrDefault("LOG_LEVEL", "info")

	DiscordWebhookURL = os.Getenv("DISCORD_WEBHOOK_URL")
	DiscordPingUserID = os.Getenv("DISCORD_PING_USER_ID")
	DiscordAlerts = DiscordWebhookURL != ""
}

func IsProduction() bool {
	return strings.EqualFold(EnvMode, "production")
}

// StagingDir holds partially received uploads. It is a hidden sibling of
// UploadDir: same filesystem, so the final move is a rename, but outside it,
// so a rejected upload never touches the upload directory.
func StagingDir() string {
	return filepath.Join(filepath.Dir(UploadDir), "."+filepath.Base(UploadDir)+StagingSuffix)
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	n, err := strconv.ParseInt(envOrDefault(key, ""), 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(envOrDefault(key, ""))
	if err != nil {
		return fallback
	}
	return b
}

// envMillis reads a millisecond count, the unit the cleanup variables have
// always used.
func envMillis(key string, fallback time.Duration) time.Duration {
	ms := envInt64(key, 0)
	if ms == 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func absDir(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Clean(dir)
	}
	return abs
}
