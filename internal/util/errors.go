package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/coah80/vidfix/internal/config"
)

var (
	ErrNoFileProvided  = errors.New("no video file uploaded")
	ErrInvalidMimeType = errors.New("invalid mime type")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrPathTraversal   = errors.New("path escapes base directory")
	ErrOversizeUpload  = errors.New("upload exceeds size limit")
	ErrTranscodeFailed = errors.New("transcode failed")
	ErrInternal        = errors.New("internal error")
)

// StatusFor maps an error from the processing pipeline to its HTTP status.
// Anything unclassified is an internal error.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrOversizeUpload):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrNoFileProvided),
		errors.Is(err, ErrInvalidMimeType),
		errors.Is(err, ErrInvalidFilename),
		errors.Is(err, ErrPathTraversal):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func ToUserError(err error) string {
	switch {
	case errors.Is(err, ErrNoFileProvided):
		return "No video file uploaded"
	case errors.Is(err, ErrInvalidMimeType):
		return "Invalid file type. Only video files are allowed."
	case errors.Is(err, ErrInvalidFilename):
		return "Invalid filename"
	case errors.Is(err, ErrPathTraversal):
		return "Invalid file path"
	case errors.Is(err, ErrOversizeUpload):
		return fmt.Sprintf("File is too large. Maximum size is %dMB.", config.MaxUploadBytes/(1024*1024))
	default:
		return "Failed to process video"
	}
}

// ErrorDetails is the extra context attached to 5xx responses. Production
// deployments never echo internal error text back to the client.
func ErrorDetails(err error) string {
	if err == nil {
		return ""
	}
	if config.IsProduction() {
		return "Server error"
	}
	return err.Error()
}
