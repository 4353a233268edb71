package util

import (
	"regexp"
	"strconv"
	"time"

	"github.com/coah80/vidfix/internal/config"
)

var (
	ffmpegTimeRe     = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)
	ffmpegDurationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+(?:\.\d+)?)`)
	ffmpegSpeedRe    = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// RemuxArgs builds the ffmpeg argument list that rewrites the container of
// input into output without touching the encoded streams: both streams are
// copied, the moov atom is moved to the front, presentation timestamps are
// regenerated and the video track timescale is fixed.
func RemuxArgs(input, output string) []string {
	return []string{
		"-hide_banner",
		"-y",
		"-fflags", "+genpts",
		"-i", input,
		"-c:v", "copy",
		"-c:a", "copy",
		"-movflags", "+faststart",
		"-video_track_timescale", strconv.Itoa(config.TargetTimescale),
		output,
	}
}

// ParseDuration extracts the input duration from an ffmpeg banner line.
func ParseDuration(line string) (time.Duration, bool) {
	return parseClock(ffmpegDurationRe.FindStringSubmatch(line))
}

// ParseProgressTime extracts the output position from an ffmpeg status line.
func ParseProgressTime(line string) (time.Duration, bool) {
	return parseClock(ffmpegTimeRe.FindStringSubmatch(line))
}

// ParseSpeed extracts the processing speed multiplier from a status line.
func ParseSpeed(line string) (float64, bool) {
	m := ffmpegSpeedRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseClock(m []string) (time.Duration, bool) {
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	sec, _ := strconv.ParseFloat(m[3], 64)
	d := time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute + time.Duration(sec*float64(time.Second))
	return d, true
}
