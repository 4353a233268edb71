package util

import (
	"context"
	"os/exec"
	"strings"

	"github.com/coah80/vidfix/internal/config"
)

// IsVideoMIME reports whether a client-declared content type names a video
// payload. Only the declared type is inspected; see ValidateVideoFile for a
// content check.
func IsVideoMIME(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "video/")
}

// ValidateVideoFile asks ffprobe whether filePath contains a video stream.
func ValidateVideoFile(ctx context.Context, filePath string) bool {
	cmd := exec.CommandContext(ctx, config.FFprobePath,
		"-v", "error",
		"-select_streams", "v",
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
		filePath,
	)
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), "video")
}
