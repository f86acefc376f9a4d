package extractors

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"media-metadata-go/pkg/fsguard"
	"media-metadata-go/pkg/interfaces"
	"media-metadata-go/pkg/logging"
	"media-metadata-go/pkg/metrics"
	"media-metadata-go/pkg/types"
	"media-metadata-go/pkg/urlutil"
)

// Reject reasons recorded in metrics.
const (
	rejectInvalidURL   = "invalid_url"
	rejectUnsafePath   = "unsafe_path"
	rejectUnreliable   = "unreliable_network"
	rejectInvalidRange = "invalid_range"
)

// ProgressiveExtractor reads metadata from progressive media: local files
// under the allowed directories, or network URLs when the network permits.
type ProgressiveExtractor struct {
	*BaseExtractor
	prober  interfaces.MediaProber
	monitor interfaces.NetworkMonitor
	guard   *fsguard.Guard
}

// NewProgressiveExtractor creates a progressive media extractor.
func NewProgressiveExtractor(
	prober interfaces.MediaProber,
	monitor interfaces.NetworkMonitor,
	guard *fsguard.Guard,
	log *logging.Logger,
) *ProgressiveExtractor {
	return &ProgressiveExtractor{
		BaseExtractor: NewBaseExtractor(log.WithComponent("progressive-extractor")),
		prober:        prober,
		monitor:       monitor,
		guard:         guard,
	}
}

// Kind returns the pipeline name.
func (e *ProgressiveExtractor) Kind() types.SourceKind {
	return types.SourceKindProgressive
}

// CanHandle accepts any source; this extractor is the registry fallback.
func (e *ProgressiveExtractor) CanHandle(string) bool {
	return true
}

// Extract probes the source. Any refusal or probe failure returns
// types.EmptyMetadata.
func (e *ProgressiveExtractor) Extract(ctx context.Context, req types.MetadataRequest) types.StreamMetadata {
	meta, err := e.extract(ctx, req)
	if err != nil {
		e.log.Warn("progressive extraction failed", "url", req.URL, "error", err)
		return types.EmptyMetadata
	}
	return meta
}

func (e *ProgressiveExtractor) extract(ctx context.Context, req types.MetadataRequest) (types.StreamMetadata, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		metrics.RecordReject(rejectInvalidURL)
		return types.EmptyMetadata, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	var fields types.ProbeFields
	switch strings.ToLower(u.Scheme) {
	case "", "file", "app":
		path, err := e.guard.Resolve(u.Path)
		if err != nil {
			metrics.RecordReject(rejectUnsafePath)
			return types.EmptyMetadata, fmt.Errorf("%w: %v", ErrUnsafePath, err)
		}
		e.log.Debug("probing local file", "path", path)
		fields, err = e.prober.Probe(ctx, path, nil)
		if err != nil {
			return types.EmptyMetadata, err
		}

	default:
		if !urlutil.IsLoopbackHost(u.Host) && !urlutil.IsLoopbackHost(u.Hostname()) && !e.monitor.Reliable(ctx) {
			metrics.RecordReject(rejectUnreliable)
			return types.EmptyMetadata, ErrUnreliableNetwork
		}
		e.log.Debug("probing network source", "url", req.URL)
		fields, err = e.prober.Probe(ctx, req.URL, RequestHeaders(req))
		if err != nil {
			return types.EmptyMetadata, err
		}
	}

	return MetadataFromFields(fields)
}

// ExtractSection probes length bytes starting at offset inside an allowed
// local file, as if they were a standalone media file.
func (e *ProgressiveExtractor) ExtractSection(ctx context.Context, req types.SectionRequest) types.StreamMetadata {
	meta, err := e.extractSection(ctx, req)
	if err != nil {
		e.log.Warn("section extraction failed",
			"path", req.Path,
			"offset", req.Offset,
			"length", req.Length,
			"error", err,
		)
		return types.EmptyMetadata
	}
	return meta
}

func (e *ProgressiveExtractor) extractSection(ctx context.Context, req types.SectionRequest) (types.StreamMetadata, error) {
	if req.Offset < 0 || req.Length <= 0 {
		metrics.RecordReject(rejectInvalidRange)
		return types.EmptyMetadata, fmt.Errorf("%w: offset %d length %d", ErrInvalidSection, req.Offset, req.Length)
	}

	path, err := e.guard.Resolve(req.Path)
	if err != nil {
		metrics.RecordReject(rejectUnsafePath)
		return types.EmptyMetadata, fmt.Errorf("%w: %v", ErrUnsafePath, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return types.EmptyMetadata, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return types.EmptyMetadata, fmt.Errorf("failed to stat file: %w", err)
	}
	if req.Offset >= info.Size() {
		metrics.RecordReject(rejectInvalidRange)
		return types.EmptyMetadata, fmt.Errorf("%w: offset %d beyond size %d", ErrInvalidSection, req.Offset, info.Size())
	}

	fields, err := e.prober.ProbeReader(ctx, io.NewSectionReader(f, req.Offset, req.Length))
	if err != nil {
		return types.EmptyMetadata, err
	}
	return MetadataFromFields(fields)
}

// MetadataFromFields converts raw probe fields into metadata. The duration
// must be an integer number of milliseconds. When the source has video, both
// dimensions must be integers; otherwise the resolution is 0x0.
func MetadataFromFields(fields types.ProbeFields) (types.StreamMetadata, error) {
	raw, ok := fields.Get(types.ProbeKeyDuration)
	if !ok {
		return types.EmptyMetadata, ErrMissingDuration
	}
	durationMs, err := strconv.Atoi(raw)
	if err != nil {
		return types.EmptyMetadata, fmt.Errorf("%w: %q", ErrMissingDuration, raw)
	}

	var width, height int
	if hasVideo, _ := fields.Get(types.ProbeKeyHasVideo); hasVideo == "yes" {
		if width, err = atoiField(fields, types.ProbeKeyVideoWidth); err != nil {
			return types.EmptyMetadata, err
		}
		if height, err = atoiField(fields, types.ProbeKeyVideoHeight); err != nil {
			return types.EmptyMetadata, err
		}
	}

	return types.NewStreamMetadata(durationMs, width, height), nil
}

func atoiField(fields types.ProbeFields, key string) (int, error) {
	raw, ok := fields.Get(key)
	if !ok {
		return 0, fmt.Errorf("%w: %s missing", ErrInvalidDimensions, key)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidDimensions, key, raw)
	}
	return v, nil
}

var _ interfaces.MetadataExtractor = (*ProgressiveExtractor)(nil)
