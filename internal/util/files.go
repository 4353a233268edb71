package util

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/coah80/vidfix/internal/config"
	xlog "github.com/coah80/vidfix/internal/log"
)

var (
	illegalFilenameRe = regexp.MustCompile(`[/?<>\\:*|"]`)
	controlCharRe     = regexp.MustCompile(`[\x00-\x1f\x80-\x9f]`)
	dotsOnlyRe        = regexp.MustCompile(`^\.+$`)
	windowsReservedRe = regexp.MustCompile(`(?i)^(con|prn|aux|nul|com[0-9]|lpt[0-9])(\..*)?$`)
	windowsTrailingRe = regexp.MustCompile(`[. ]+$`)
)

const maxFilenameBytes = 255

// SanitizeFilename reduces a client-supplied name to a single safe path
// element. Only the last segment survives, characters that are invalid on
// common filesystems are dropped, and the result is capped at 255 bytes.
// An empty return means nothing usable was left.
func SanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	s := illegalFilenameRe.ReplaceAllString(name, "")
	s = controlCharRe.ReplaceAllString(s, "")
	s = strings.ToValidUTF8(s, "")
	if dotsOnlyRe.MatchString(s) || windowsReservedRe.MatchString(s) {
		return ""
	}
	s = windowsTrailingRe.ReplaceAllString(s, "")
	s = strings.TrimLeft(s, " ")
	return truncateUTF8(s, maxFilenameBytes)
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

// EnsureDirs creates the upload, staging and processed directories and
// empties the staging area, which only ever holds interrupted uploads.
func EnsureDirs() error {
	for _, dir := range []string{config.UploadDir, config.StagingDir(), config.ProcessedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	entries, err := os.ReadDir(config.StagingDir())
	if err != nil {
		return fmt.Errorf("read staging dir: %w", err)
	}
	for _, e := range entries {
		_ = os.RemoveAll(filepath.Join(config.StagingDir(), e.Name()))
	}
	logger := xlog.WithComponent("files")
	logger.Info().
		Str("uploads", config.UploadDir).
		Str("processed", config.ProcessedDir).
		Int("staging_cleared", len(entries)).
		Msg("directories ready")
	return nil
}

// RemoveArtifact deletes path after confirming it still lives under root.
// A file that is already gone is not an error.
func RemoveArtifact(root, path string) error {
	confined, err := ConfinePath(root, path)
	if err != nil {
		return err
	}
	if err := os.Remove(confined); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// SweepExpired removes regular files directly under the upload and processed
// directories whose modification time is older than maxAge. It returns the
// number of files removed.
func SweepExpired(maxAge time.Duration) int {
	logger := xlog.WithComponent("sweep")
	now := time.Now()
	removed := 0

	for _, dir := range []string{config.UploadDir, config.ProcessedDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			logger.Warn().Err(err).Str(xlog.FieldPath, dir).Msg("read dir failed")
			continue
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			info, err := e.Info()
			if err != nil || now.Sub(info.ModTime()) <= maxAge {
				continue
			}
			p := filepath.Join(dir, e.Name())
			if err := RemoveArtifact(dir, p); err != nil {
				logger.Warn().Err(err).Str(xlog.FieldPath, p).Msg("remove expired file failed")
				continue
			}
			removed++
			logger.Info().Str(xlog.FieldFilename, e.Name()).Msg("removed expired file")
		}
	}

	if ds, err := GetDiskSpace(config.ProcessedDir); err == nil {
		evt := logger.Debug()
		if ds.AvailGB() < config.DiskSpaceMinGB {
			evt = logger.Warn()
		}
		evt.Float64("avail_gb", ds.AvailGB()).
			Float64("total_gb", ds.TotalGB()).
			Msg("disk space")
	}
	return removed
}

// StartRetentionSweep runs SweepExpired on every tick until ctx is done. It
// catches artifacts whose cleanup timers were lost to a restart.
func StartRetentionSweep(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				SweepExpired(maxAge)
			}
		}
	}()
}
