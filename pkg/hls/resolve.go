package hls

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"media-metadata-go/pkg/interfaces"
	"media-metadata-go/pkg/logging"
	"media-metadata-go/pkg/types"
	"media-metadata-go/pkg/urlutil"
)

const tracerName = "media-metadata-go/pkg/hls"

// Resolver turns a master or media playlist URL into stream metadata.
type Resolver struct {
	fetcher interfaces.PlaylistFetcher
	log     *logging.Logger
	tracer  trace.Tracer
}

// NewResolver creates a resolver that reads playlists through fetcher.
func NewResolver(fetcher interfaces.PlaylistFetcher, log *logging.Logger) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		log:     log.WithComponent("hls-resolver"),
		tracer:  otel.Tracer(tracerName),
	}
}

// Resolve fetches the playlist at url. A media playlist is scanned directly;
// for a master playlist the first variant is followed and its resolution is
// taken from the RESOLUTION attribute. Every failure returns
// types.EmptyMetadata.
func (r *Resolver) Resolve(ctx context.Context, url string) types.StreamMetadata {
	ctx, span := r.tracer.Start(ctx, "hls.Resolve",
		trace.WithAttributes(attribute.String("hls.url", url)))
	defer span.End()

	meta, err := r.resolve(ctx, url)
	if err != nil {
		r.log.Warn("hls extraction failed", "url", url, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return types.EmptyMetadata
	}

	span.SetAttributes(
		attribute.Int("hls.duration_ms", meta.DurationMs),
		attribute.Int("hls.width", meta.Width),
		attribute.Int("hls.height", meta.Height),
	)
	return meta
}

func (r *Resolver) resolve(ctx context.Context, masterURL string) (meta types.StreamMetadata, err error) {
	defer func() {
		if p := recover(); p != nil {
			meta, err = types.EmptyMetadata, fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()

	lines, ok := r.fetcher.FetchLines(ctx, masterURL)
	if !ok {
		return types.EmptyMetadata, ErrFetchFailed
	}
	if len(lines) < 2 {
		return types.EmptyMetadata, fmt.Errorf("%w: got %d", ErrTooFewLines, len(lines))
	}

	// The last line can never introduce a variant, so it is not inspected.
	for i := 0; i < len(lines)-1; i++ {
		line := lines[i]

		if strings.HasPrefix(line, tagTargetDuration) {
			return scanDuration(lines, i+1, 0, 0)
		}

		if strings.HasPrefix(line, tagStreamInf) {
			width, height, ok := ParseResolution(line)
			if !ok {
				r.log.Warn("could not parse variant resolution", "line", line)
			}

			variant, err := r.fetchVariant(ctx, masterURL, lines[i+1])
			if err != nil {
				return types.EmptyMetadata, err
			}
			return scanDuration(variant, 0, width, height)
		}
	}

	return types.EmptyMetadata, ErrNoPlaylistTag
}

// fetchVariant tries ref as given, then relative to the master's directory.
func (r *Resolver) fetchVariant(ctx context.Context, masterURL, ref string) ([]string, error) {
	if lines, ok := r.fetcher.FetchLines(ctx, ref); ok {
		return lines, nil
	}

	resolved := urlutil.ResolveURL(ref, masterURL)
	if resolved != ref {
		r.log.Debug("retrying variant relative to master", "variant", resolved)
		if lines, ok := r.fetcher.FetchLines(ctx, resolved); ok {
			return lines, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrVariantUnreachable, ref)
}
