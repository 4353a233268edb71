package util

import (
	"fmt"
	"os/exec"

	"github.com/coah80/vidfix/internal/config"
	xlog "github.com/coah80/vidfix/internal/log"
)

// CheckDependencies verifies the external tools are on PATH. ffmpeg is always
// required; ffprobe only when upload probing is enabled.
func CheckDependencies() error {
	logger := xlog.WithComponent("deps")
	deps := []struct {
		name     string
		bin      string
		required bool
	}{
		{"ffmpeg", config.FFmpegPath, true},
		{"ffprobe", config.FFprobePath, config.ProbeUploads},
	}

	for _, dep := range deps {
		path, err := exec.LookPath(dep.bin)
		if err != nil {
			if dep.required {
				return fmt.Errorf("%s not found (%s): %w", dep.name, dep.bin, err)
			}
			logger.Info().Str("dep", dep.name).Msg("not found (optional)")
			continue
		}
		logger.Info().Str("dep", dep.name).Str(xlog.FieldPath, path).Msg("found")
	}
	return nil
}
