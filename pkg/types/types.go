// Package types defines core domain types used throughout the application.
package types

import "fmt"

// SourceKind identifies which extraction pipeline handled a request.
type SourceKind string

const (
	SourceKindHLS         SourceKind = "hls"
	SourceKindProgressive SourceKind = "progressive"
)

// StreamMetadata is the result of a metadata extraction. Success is only true
// when a duration could be determined or a playlist was parsed.
type StreamMetadata struct {
	DurationMs int  `json:"duration_ms"`
	Width      int  `json:"width"`
	Height     int  `json:"height"`
	Success    bool `json:"success"`
}

// EmptyMetadata is returned by every failure path.
var EmptyMetadata = StreamMetadata{}

// NewStreamMetadata builds a successful result.
func NewStreamMetadata(durationMs, width, height int) StreamMetadata {
	return StreamMetadata{
		DurationMs: durationMs,
		Width:      width,
		Height:     height,
		Success:    true,
	}
}

// IsEmpty reports whether m is the failure sentinel.
func (m StreamMetadata) IsEmpty() bool {
	return m == EmptyMetadata
}

func (m StreamMetadata) String() string {
	return fmt.Sprintf("StreamMetadata[durationMs=%d, width=%d, height=%d, success=%t]",
		m.DurationMs, m.Width, m.Height, m.Success)
}

// MetadataRequest is a single extraction request.
type MetadataRequest struct {
	URL       string `json:"url"`
	Cookies   string `json:"cookies,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// SectionRequest asks for metadata of a byte range inside a local file.
type SectionRequest struct {
	Path   string `json:"path"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
}

// Probe field keys, named after the platform retriever's metadata keys.
const (
	ProbeKeyDuration    = "duration"
	ProbeKeyHasVideo    = "has_video"
	ProbeKeyVideoWidth  = "video_width"
	ProbeKeyVideoHeight = "video_height"
)

// ProbeFields holds raw string metadata values as reported by a prober.
// A missing key means the prober could not report that value.
type ProbeFields map[string]string

// Get returns the value for key and whether it was present.
func (f ProbeFields) Get(key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}
