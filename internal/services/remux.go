package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/coah80/vidfix/internal/log"
	"github.com/coah80/vidfix/internal/metrics"
	"github.com/coah80/vidfix/internal/util"
)

const diagnosticLines = 50

// Progress is one status update parsed from ffmpeg's stderr.
type Progress struct {
	Percent float64 // 0 when the input duration is unknown
	OutTime time.Duration
	Speed   float64
}

type Result struct {
	OutputPath string
	Size       int64
	Elapsed    time.Duration
}

// TranscodeError reports a failed ffmpeg run together with the tail of its
// stderr. It matches util.ErrTranscodeFailed under errors.Is.
type TranscodeError struct {
	ExitCode    int
	Diagnostics []string
	Err         error
}

func (e *TranscodeError) Error() string {
	msg := fmt.Sprintf("ffmpeg failed (exit %d)", e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if tail := e.lastLine(); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *TranscodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{util.ErrTranscodeFailed}
	}
	return []error{util.ErrTranscodeFailed, e.Err}
}

func (e *TranscodeError) lastLine() string {
	for i := len(e.Diagnostics) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(e.Diagnostics[i]); l != "" {
			return l
		}
	}
	return ""
}

// Remuxer runs the container-repair ffmpeg pass. Input paths must live under
// UploadDir and output paths under ProcessedDir.
type Remuxer struct {
	FFmpegPath   string
	UploadDir    string
	ProcessedDir string
	Logger       zerolog.Logger
}

func NewRemuxer(ffmpegPath, uploadDir, processedDir string) *Remuxer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Remuxer{
		FFmpegPath:   ffmpegPath,
		UploadDir:    uploadDir,
		ProcessedDir: processedDir,
		Logger:       xlog.Base(),
	}
}

// Remux copies the streams of input into output with a rebuilt container.
// It blocks until ffmpeg exits. onProgress may be nil. On failure any
// partial output is removed.
func (m *Remuxer) Remux(ctx context.Context, input, output string, onProgress func(Progress)) (Result, error) {
	in, err := util.ConfinePath(m.UploadDir, input)
	if err != nil {
		return Result{}, fmt.Errorf("input path: %w", err)
	}
	out, err := util.ConfinePath(m.ProcessedDir, output)
	if err != nil {
		return Result{}, fmt.Errorf("output path: %w", err)
	}

	logger := m.Logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = *l
	}
	logger = logger.With().Str(xlog.FieldComponent, "remux").Str(xlog.FieldPath, out).Logger()

	start := time.Now()
	cmd := exec.CommandContext(ctx, m.FFmpegPath, util.RemuxArgs(in, out)...)
	cmd.WaitDelay = 5 * time.Second
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("pipe stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		metrics.RemuxTotal.WithLabelValues("error").Inc()
		return Result{}, &TranscodeError{ExitCode: -1, Err: fmt.Errorf("start %s: %w", m.FFmpegPath, err)}
	}

	ring := newRingBuffer(diagnosticLines)
	watchProgress(stderr, ring, logger, onProgress)
	waitErr := cmd.Wait()
	elapsed := time.Since(start)
	metrics.RemuxDuration.Observe(elapsed.Seconds())

	if waitErr != nil {
		metrics.RemuxTotal.WithLabelValues("error").Inc()
		te := &TranscodeError{ExitCode: -1, Diagnostics: ring.Lines(), Err: waitErr}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			te.ExitCode = exitErr.ExitCode()
		}
		m.discard(out, logger)
		return Result{}, te
	}

	info, err := os.Stat(out)
	if err != nil {
		metrics.RemuxTotal.WithLabelValues("error").Inc()
		return Result{}, &TranscodeError{Diagnostics: ring.Lines(), Err: fmt.Errorf("no output produced: %w", err)}
	}

	metrics.RemuxTotal.WithLabelValues("ok").Inc()
	logger.Info().
		Dur("elapsed", elapsed).
		Int64(xlog.FieldSize, info.Size()).
		Msg("video processing completed")
	return Result{OutputPath: out, Size: info.Size(), Elapsed: elapsed}, nil
}

func (m *Remuxer) discard(out string, logger zerolog.Logger) {
	if err := util.RemoveArtifact(m.ProcessedDir, out); err != nil {
		logger.Warn().Err(err).Msg("remove partial output failed")
	}
}

// watchProgress drains stderr into ring and reports status lines. It returns
// once ffmpeg closes stderr.
func watchProgress(stderr io.Reader, ring *ringBuffer, logger zerolog.Logger, onProgress func(Progress)) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	scanner.Split(scanLinesOrCR)

	var duration time.Duration
	lastLogged := -1.0
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		ring.Add(line)

		if d, ok := util.ParseDuration(line); ok && duration == 0 {
			duration = d
			continue
		}
		pos, ok := util.ParseProgressTime(line)
		if !ok {
			continue
		}
		p := Progress{OutTime: pos}
		p.Speed, _ = util.ParseSpeed(line)
		if duration > 0 {
			p.Percent = min(100, float64(pos)/float64(duration)*100)
		}
		if p.Percent >= lastLogged+5 {
			lastLogged = p.Percent
			logger.Debug().Msgf("Processing: %d%% done", int(p.Percent))
		}
		if onProgress != nil {
			onProgress(p)
		}
	}
	// keep draining so ffmpeg never blocks on a full pipe
	_, _ = io.Copy(io.Discard, stderr)
}

// scanLinesOrCR splits on \n and on the bare \r ffmpeg uses for status lines.
func scanLinesOrCR(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
