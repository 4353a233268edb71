package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coah80/vidfix/internal/config"
	xlog "github.com/coah80/vidfix/internal/log"
	"github.com/coah80/vidfix/internal/services"
	"github.com/coah80/vidfix/internal/util"
)

const fakeFFmpegOK = `#!/bin/sh
in=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-i" ]; then in="$a"; fi
  prev="$a"
  out="$a"
done
printf '  Duration: 00:00:02.00, start: 0.000000, bitrate: 100 kb/s\n' >&2
printf 'fixed:%s' "$(basename "$in")" > "$out"
`

const fakeFFmpegFail = `#!/bin/sh
for a in "$@"; do out="$a"; done
printf 'partial' > "$out"
printf 'moov atom not found\n' >&2
exit 1
`

var videoURLPattern = regexp.MustCompile(`^/processed/fixed-[\w-]+-[^/]+$`)

type processResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	VideoURL string `json:"videoUrl"`
	Error    string `json:"error"`
	Details  string `json:"details"`
}

func newTestRouter(t *testing.T, script string) (http.Handler, *services.Scheduler) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg is a shell script")
	}

	config.EnvMode = "development"
	config.UploadDir = t.TempDir()
	config.ProcessedDir = t.TempDir()
	config.PublicDir = t.TempDir()
	config.MaxUploadBytes = 1024
	config.ProbeUploads = false
	config.DiscordAlerts = false
	config.InputCleanupDelay = time.Hour
	config.OutputCleanupDelay = time.Hour
	require.NoError(t, util.EnsureDirs())

	ffmpeg := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(ffmpeg, []byte(script), 0o755))

	remuxer := services.NewRemuxer(ffmpeg, config.UploadDir, config.ProcessedDir)
	remuxer.Logger = zerolog.Nop()
	sched := services.NewScheduler()
	t.Cleanup(sched.Stop)

	d := &Deps{Remuxer: remuxer, Cleanup: sched}
	r := chi.NewRouter()
	d.CoreRoutes(r)
	r.Route("/api", d.ProcessRoutes)
	StaticRoutes(r)
	return r, sched
}

func uploadRequest(t *testing.T, field, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	pw, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = pw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/process-video", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, processResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body processResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

var pageURL = &url.URL{Scheme: "http", Host: "vidfix.test", Path: "/"}

// get requests ref the way a page would after setting it as a media source:
// resolved against the page, fragment dropped.
func get(t *testing.T, h http.Handler, ref string) *httptest.ResponseRecorder {
	t.Helper()
	u, err := pageURL.Parse(ref)
	require.NoError(t, err, ref)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
	return rec
}

// captureLogs routes the base logger into a buffer for the rest of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	xlog.Configure(xlog.Config{Level: "info", Output: &buf})
	t.Cleanup(func() { xlog.Configure(xlog.Config{Level: "info"}) })
	return &buf
}

// regularFiles lists the plain files directly under dir.
func regularFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestProcessVideoSuccess(t *testing.T) {
	h, sched := newTestRouter(t, fakeFFmpegOK)

	rec, body := do(t, h, uploadRequest(t, "video", "holiday clip.mp4", "video/mp4", []byte("not really a video")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, body.Success)
	assert.Equal(t, "Video processed successfully", body.Message)
	assert.Regexp(t, videoURLPattern, body.VideoURL)
	assert.True(t, strings.HasSuffix(body.VideoURL, "-holiday%20clip.mp4"))

	assert.Len(t, regularFiles(t, config.UploadDir), 1)
	assert.Len(t, regularFiles(t, config.ProcessedDir), 1)
	assert.Equal(t, 2, sched.Pending())

	out := get(t, h, body.VideoURL)
	require.Equal(t, http.StatusOK, out.Code)
	assert.Equal(t, "video/mp4", out.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(out.Body.String(), "fixed:"))
	assert.True(t, strings.HasSuffix(out.Body.String(), "-holiday clip.mp4"))
}

func TestVideoURLResolvesForAwkwardNames(t *testing.T) {
	for _, name := range []string{"take#2.mp4", "100%41.mp4", "a%zz.mp4", "50% off #1.mp4"} {
		t.Run(name, func(t *testing.T) {
			h, _ := newTestRouter(t, fakeFFmpegOK)

			rec, body := do(t, h, uploadRequest(t, "video", name, "video/mp4", []byte("data")))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Regexp(t, videoURLPattern, body.VideoURL)

			out := get(t, h, body.VideoURL)
			require.Equal(t, http.StatusOK, out.Code, body.VideoURL)
			assert.True(t, strings.HasSuffix(out.Body.String(), "-"+name))
		})
	}
}

func TestProcessVideoRejections(t *testing.T) {
	tests := []struct {
		name    string
		req     func(t *testing.T) *http.Request
		status  int
		message string
	}{
		{
			name: "non-video content type",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "video", "notes.txt", "text/plain", []byte("hello"))
			},
			status:  http.StatusBadRequest,
			message: "Invalid file type. Only video files are allowed.",
		},
		{
			name: "wrong field name",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "file", "clip.mp4", "video/mp4", []byte("data"))
			},
			status:  http.StatusBadRequest,
			message: "No video file uploaded",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/process-video", strings.NewReader(`{}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			status:  http.StatusBadRequest,
			message: "No video file uploaded",
		},
		{
			name: "dots-only filename",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "video", "...", "video/mp4", []byte("data"))
			},
			status:  http.StatusBadRequest,
			message: "Invalid filename",
		},
		{
			name: "oversize body",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "video", "big.mp4", "video/mp4", bytes.Repeat([]byte("x"), 4096))
			},
			status:  http.StatusRequestEntityTooLarge,
			message: "File is too large. Maximum size is 0MB.",
		},
		{
			name: "oversize chunked body",
			req: func(t *testing.T) *http.Request {
				req := uploadRequest(t, "video", "big.mp4", "video/mp4", bytes.Repeat([]byte("x"), 4096))
				req.ContentLength = -1
				req.TransferEncoding = []string{"chunked"}
				return req
			},
			status:  http.StatusRequestEntityTooLarge,
			message: "File is too large. Maximum size is 0MB.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, sched := newTestRouter(t, fakeFFmpegOK)

			rec, body := do(t, h, tt.req(t))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, body.Error)
			assert.Empty(t, body.Details)

			entries, err := os.ReadDir(config.UploadDir)
			require.NoError(t, err)
			assert.Empty(t, entries)
			assert.Empty(t, regularFiles(t, config.StagingDir()))
			assert.Empty(t, regularFiles(t, config.ProcessedDir))
			assert.Zero(t, sched.Pending())
		})
	}
}

func TestProcessVideoOversizeContentLength(t *testing.T) {
	h, _ := newTestRouter(t, fakeFFmpegOK)

	req := uploadRequest(t, "video", "clip.mp4", "video/mp4", []byte("data"))
	req.ContentLength = config.MaxUploadBytes + config.MultipartOverhead + 1

	rec, body := do(t, h, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, body.Error, "File is too large")
}

func TestProcessVideoTraversalNameStaysInUploadDir(t *testing.T) {
	h, _ := newTestRouter(t, fakeFFmpegOK)

	rec, body := do(t, h, uploadRequest(t, "video", "../../etc/passwd.mp4", "video/mp4", []byte("data")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Regexp(t, videoURLPattern, body.VideoURL)

	files := regularFiles(t, config.UploadDir)
	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0], "-passwd.mp4"))
	assert.NotContains(t, files[0], "..")
}

func TestProcessVideoTranscodeFailure(t *testing.T) {
	h, sched := newTestRouter(t, fakeFFmpegFail)

	rec, body := do(t, h, uploadRequest(t, "video", "broken.mp4", "video/mp4", []byte("data")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to process video", body.Error)
	assert.Contains(t, body.Details, "ffmpeg failed (exit 1)")
	assert.False(t, body.Success)

	assert.Empty(t, regularFiles(t, config.ProcessedDir), "partial output is removed")
	assert.Len(t, regularFiles(t, config.UploadDir), 1)
	assert.Equal(t, 1, sched.Pending(), "only the input is scheduled")
}

func TestProcessVideoFailureHidesDetailsInProduction(t *testing.T) {
	h, _ := newTestRouter(t, fakeFFmpegFail)
	config.EnvMode = "production"
	t.Cleanup(func() { config.EnvMode = "development" })

	rec, body := do(t, h, uploadRequest(t, "video", "broken.mp4", "video/mp4", []byte("data")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Server error", body.Details)
}

func TestArtifactsRemovedAfterDelay(t *testing.T) {
	h, sched := newTestRouter(t, fakeFFmpegOK)
	config.InputCleanupDelay = 20 * time.Millisecond
	config.OutputCleanupDelay = 80 * time.Millisecond

	rec, body := do(t, h, uploadRequest(t, "video", "clip.mp4", "video/mp4", []byte("data")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, get(t, h, body.VideoURL).Code)

	assert.Eventually(t, func() bool {
		return get(t, h, body.VideoURL).Code == http.StatusNotFound
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, regularFiles(t, config.UploadDir))
	assert.Empty(t, regularFiles(t, config.ProcessedDir))
	assert.Zero(t, sched.Pending())
}

func TestConcurrentUploadsGetDistinctOutputs(t *testing.T) {
	h, _ := newTestRouter(t, fakeFFmpegOK)

	const n = 8
	reqs := make([]*http.Request, n)
	for i := range reqs {
		reqs[i] = uploadRequest(t, "video", "same.mp4", "video/mp4", []byte("data"))
	}
	urls := make(chan string, n)
	for _, req := range reqs {
		req := req
		go func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			var body processResponse
			_ = json.Unmarshal(rec.Body.Bytes(), &body)
			urls <- body.VideoURL
		}()
	}

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		u := <-urls
		assert.Regexp(t, videoURLPattern, u)
		assert.False(t, seen[u], "duplicate url %s", u)
		seen[u] = true
	}
	assert.Len(t, regularFiles(t, config.ProcessedDir), n)
}

func TestRejectedUploadLogsFilenameAndSize(t *testing.T) {
	h, _ := newTestRouter(t, fakeFFmpegOK)
	logs := captureLogs(t)

	req := uploadRequest(t, "video", "notes.txt", "text/plain", []byte("hello"))
	req.RemoteAddr = "198.51.100.4:5555"
	rec, _ := do(t, h, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	line := logLine(t, logs, "upload rejected")
	assert.Equal(t, "notes.txt", line["filename"])
	assert.Greater(t, line["size"], float64(0))
	assert.Contains(t, line["error"], "invalid mime type")
}

func TestTranscodeFailureLogsFilenameAndSize(t *testing.T) {
	h, _ := newTestRouter(t, fakeFFmpegFail)
	logs := captureLogs(t)

	rec, _ := do(t, h, uploadRequest(t, "video", "broken.mp4", "video/mp4", []byte("data")))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	line := logLine(t, logs, "error processing video")
	assert.Equal(t, "broken.mp4", line["filename"])
	assert.Equal(t, float64(4), line["size"])
	assert.NotEmpty(t, line["job_id"])
}

func logLine(t *testing.T, buf *bytes.Buffer, msg string) map[string]interface{} {
	t.Helper()
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]interface{}
		if json.Unmarshal([]byte(l), &m) == nil && m["message"] == msg {
			return m
		}
	}
	t.Fatalf("no %q line in logs:\n%s", msg, buf.String())
	return nil
}

func TestHealth(t *testing.T) {
	h, sched := newTestRouter(t, fakeFFmpegOK)
	sched.Schedule("output", config.ProcessedDir, filepath.Join(config.ProcessedDir, "x.mp4"), time.Hour)

	rec := get(t, h, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["pendingCleanups"])
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, fakeFFmpegOK)
	do(t, h, uploadRequest(t, "video", "notes.txt", "text/plain", []byte("hello")))

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	data, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `vidfix_uploads_total{result="rejected"}`)
}
