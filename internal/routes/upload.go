package routes

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/google/renameio/v2"

	"github.com/coah80/vidfix/internal/config"
	xlog "github.com/coah80/vidfix/internal/log"
	"github.com/coah80/vidfix/internal/util"
)

// upload is what receiveUpload learned about the request. On error Paths is
// zero, while Filename and Size hold whatever was known when it stopped.
type upload struct {
	Paths    util.JobPaths
	Filename string // as declared by the client
	Size     int64  // bytes stored, or the declared length if nothing was read
}

// receiveUpload streams the video part of a multipart request through the
// staging directory into the upload directory. Nothing is left in the upload
// directory when it fails.
func receiveUpload(w http.ResponseWriter, r *http.Request) (upload, error) {
	up := upload{Size: max(r.ContentLength, 0)}

	limit := config.MaxUploadBytes + config.MultipartOverhead
	if r.ContentLength > limit {
		return up, fmt.Errorf("content length %d: %w", r.ContentLength, util.ErrOversizeUpload)
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	mr, err := r.MultipartReader()
	if err != nil {
		return up, fmt.Errorf("read multipart: %v: %w", err, util.ErrNoFileProvided)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return up, util.ErrNoFileProvided
		}
		if err != nil {
			return up, classifyReadError("next part", err)
		}
		if part.FormName() != config.UploadField || part.FileName() == "" {
			part.Close()
			continue
		}
		defer part.Close()
		up.Filename = part.FileName()
		return storePart(r, part, up)
	}
}

func storePart(r *http.Request, part *multipart.Part, up upload) (upload, error) {
	ct := part.Header.Get("Content-Type")
	if !util.IsVideoMIME(ct) {
		return up, fmt.Errorf("content type %q: %w", ct, util.ErrInvalidMimeType)
	}

	paths, err := util.NewJobPaths(config.UploadDir, config.ProcessedDir, up.Filename)
	if err != nil {
		return up, err
	}
	if paths, err = paths.Confine(config.UploadDir, config.ProcessedDir); err != nil {
		return up, err
	}

	pf, err := renameio.NewPendingFile(paths.Input,
		renameio.WithTempDir(config.StagingDir()),
		renameio.WithPermissions(0o644),
	)
	if err != nil {
		return up, fmt.Errorf("create pending file: %v: %w", err, util.ErrInternal)
	}
	defer pf.Cleanup()

	n, err := io.Copy(pf, io.LimitReader(part, config.MaxUploadBytes+1))
	up.Size = n
	if err != nil {
		return up, classifyReadError("copy upload", err)
	}
	if n > config.MaxUploadBytes {
		return up, fmt.Errorf("%d bytes read: %w", n, util.ErrOversizeUpload)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return up, fmt.Errorf("commit upload: %v: %w", err, util.ErrInternal)
	}

	if config.ProbeUploads && !util.ValidateVideoFile(r.Context(), paths.Input) {
		if err := os.Remove(paths.Input); err != nil {
			xlog.FromContext(r.Context()).Warn().Err(err).Str(xlog.FieldPath, paths.Input).Msg("failed to remove rejected upload")
		}
		return up, fmt.Errorf("ffprobe found no video stream: %w", util.ErrInvalidMimeType)
	}
	up.Paths = paths
	return up, nil
}

func classifyReadError(op string, err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return fmt.Errorf("%s: limit %d: %w", op, mbe.Limit, util.ErrOversizeUpload)
	}
	return fmt.Errorf("%s: %v: %w", op, err, util.ErrInternal)
}
