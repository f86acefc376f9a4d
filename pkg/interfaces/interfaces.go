// Package interfaces defines the core abstractions for metadata extraction.
// Extractors, probers and the reachability monitor implement these
// interfaces, so the HLS and progressive pipelines can be swapped or faked.
package interfaces

import (
	"context"
	"io"
	"net/http"

	"media-metadata-go/pkg/types"
)

// MetadataExtractor extracts stream metadata for one class of source.
//
// To add a new source class:
// 1. Create a new file in pkg/extractors/
// 2. Implement this interface
// 3. Register it in the ExtractorRegistry
type MetadataExtractor interface {
	// Kind returns the pipeline this extractor implements.
	Kind() types.SourceKind

	// CanHandle returns true if this extractor accepts the given URL.
	CanHandle(url string) bool

	// Extract returns metadata for the request. Failures are reported
	// through StreamMetadata.Success, never as an error.
	Extract(ctx context.Context, req types.MetadataRequest) types.StreamMetadata
}

// PlaylistFetcher retrieves the filtered lines of an HLS playlist.
type PlaylistFetcher interface {
	// FetchLines returns false when the playlist could not be retrieved.
	FetchLines(ctx context.Context, url string) ([]string, bool)
}

// MediaProber reads raw metadata fields from a media source.
type MediaProber interface {
	// Probe inspects a local path or network URL. Headers apply to network sources.
	Probe(ctx context.Context, source string, headers map[string]string) (types.ProbeFields, error)

	// ProbeReader inspects media streamed from r.
	ProbeReader(ctx context.Context, r io.Reader) (types.ProbeFields, error)
}

// NetworkMonitor reports whether the current network is suitable for
// fetching remote media.
type NetworkMonitor interface {
	// Reliable returns false when the network is unsuitable or unknown.
	Reliable(ctx context.Context) bool
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Registry is a generic interface for component registries.
type Registry[T any] interface {
	// Register adds a component to the registry.
	Register(component T)

	// Get returns the appropriate component for the given URL.
	Get(url string) T

	// All returns all registered components.
	All() []T
}

// Logger defines the logging interface used throughout the application.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
