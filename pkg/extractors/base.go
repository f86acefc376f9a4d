// Package extractors provides the metadata extraction pipelines.
// Each extractor handles one class of source: HLS playlists or progressive
// media (local files and direct network URLs).
//
// To add a new pipeline:
// 1. Create a new file (e.g., dash.go)
// 2. Implement the interfaces.MetadataExtractor interface
// 3. Register it in the registry (see setup in internal/app)
package extractors

import (
	"errors"

	"media-metadata-go/pkg/logging"
	"media-metadata-go/pkg/types"
)

var (
	// ErrInvalidSource means the source URL could not be parsed.
	ErrInvalidSource = errors.New("invalid source url")
	// ErrUnsafePath means a local path is missing or outside the allowed directories.
	ErrUnsafePath = errors.New("local path not allowed")
	// ErrUnreliableNetwork means a remote source was refused because the
	// network is unsuitable or unknown.
	ErrUnreliableNetwork = errors.New("network not reliable for remote media")
	// ErrMissingDuration means the prober reported no integer duration.
	ErrMissingDuration = errors.New("duration unavailable")
	// ErrInvalidDimensions means a video source lacked integer dimensions.
	ErrInvalidDimensions = errors.New("video dimensions unavailable")
	// ErrInvalidSection means a byte range was out of bounds.
	ErrInvalidSection = errors.New("invalid byte range")
)

// BaseExtractor provides common functionality for extractors.
type BaseExtractor struct {
	log *logging.Logger
}

// NewBaseExtractor creates a new base extractor.
func NewBaseExtractor(log *logging.Logger) *BaseExtractor {
	return &BaseExtractor{log: log}
}

// RequestHeaders returns the HTTP headers to send for a network source.
// Empty values are omitted.
func RequestHeaders(req types.MetadataRequest) map[string]string {
	headers := make(map[string]string, 2)
	if req.Cookies != "" {
		headers["Cookie"] = req.Cookies
	}
	if req.UserAgent != "" {
		headers["User-Agent"] = req.UserAgent
	}
	return headers
}
