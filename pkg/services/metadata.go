// Package services provides core business logic services.
package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"media-metadata-go/pkg/interfaces"
	"media-metadata-go/pkg/logging"
	"media-metadata-go/pkg/metrics"
	"media-metadata-go/pkg/registry"
	"media-metadata-go/pkg/types"
)

// SectionExtractor probes a byte range of a local file.
type SectionExtractor interface {
	ExtractSection(ctx context.Context, req types.SectionRequest) types.StreamMetadata
}

// MetadataService dispatches extraction requests to the matching pipeline.
// Every call performs a fresh extraction; nothing is cached.
type MetadataService struct {
	log         *logging.Logger
	extractors  *registry.ExtractorRegistry
	sections    SectionExtractor
	concurrency int
}

// NewMetadataService creates a new metadata service. concurrency bounds the
// number of extractions a batch runs at once.
func NewMetadataService(
	log *logging.Logger,
	extractors *registry.ExtractorRegistry,
	sections SectionExtractor,
	concurrency int,
) *MetadataService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &MetadataService{
		log:         log.WithComponent("metadata-service"),
		extractors:  extractors,
		sections:    sections,
		concurrency: concurrency,
	}
}

// Extract returns metadata for a single source. Failures, including panics
// inside an extractor, yield types.EmptyMetadata.
func (s *MetadataService) Extract(ctx context.Context, req types.MetadataRequest) (meta types.StreamMetadata) {
	req.URL = decodeURL(strings.TrimSpace(req.URL))

	extractor := s.extractors.Get(req.URL)
	if extractor == nil {
		s.log.Warn("no extractor for url", "url", req.URL)
		return types.EmptyMetadata
	}

	kind := extractor.Kind()
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("extractor panicked", "url", req.URL, "kind", kind, "panic", fmt.Sprint(p))
			meta = types.EmptyMetadata
		}
		metrics.RecordExtraction(kind, meta, time.Since(start))
	}()

	s.log.Debug("using extractor", "kind", kind, "url", req.URL)
	meta = extractor.Extract(ctx, req)

	s.log.Debug("extraction finished",
		"kind", kind,
		"url", req.URL,
		"success", meta.Success,
		"duration_ms", meta.DurationMs,
		"elapsed", time.Since(start),
	)
	return meta
}

// ExtractBatch runs independent extractions concurrently and returns the
// results in input order. A canceled context leaves remaining entries as
// types.EmptyMetadata.
func (s *MetadataService) ExtractBatch(ctx context.Context, reqs []types.MetadataRequest) []types.StreamMetadata {
	results := make([]types.StreamMetadata, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, req := range reqs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			results[i] = s.Extract(gctx, req)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// ExtractSection probes a byte range of an allowed local file.
func (s *MetadataService) ExtractSection(ctx context.Context, req types.SectionRequest) (meta types.StreamMetadata) {
	if s.sections == nil {
		return types.EmptyMetadata
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("section extractor panicked", "path", req.Path, "panic", fmt.Sprint(p))
			meta = types.EmptyMetadata
		}
		metrics.RecordExtraction(types.SourceKindProgressive, meta, time.Since(start))
	}()

	return s.sections.ExtractSection(ctx, req)
}

// Extractors returns the registered pipelines, fallback excluded.
func (s *MetadataService) Extractors() []interfaces.MetadataExtractor {
	return s.extractors.All()
}

// decodeURL attempts to decode a potentially encoded URL.
func decodeURL(urlStr string) string {
	if urlStr == "" {
		return urlStr
	}

	if hasScheme(urlStr) || strings.HasPrefix(urlStr, "/") {
		return urlStr
	}

	// A fully escaped URL has no scheme until unescaped.
	if decoded, err := url.QueryUnescape(urlStr); err == nil && hasScheme(decoded) {
		return decoded
	}

	// Try Base64 decoding
	padded := urlStr
	switch len(urlStr) % 4 {
	case 2:
		padded += "=="
	case 3:
		padded += "="
	}

	if decoded, err := base64.StdEncoding.DecodeString(padded); err == nil && hasScheme(string(decoded)) {
		return string(decoded)
	}

	// Try URL-safe Base64
	if decoded, err := base64.URLEncoding.DecodeString(padded); err == nil && hasScheme(string(decoded)) {
		return string(decoded)
	}

	return urlStr
}

func hasScheme(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && len(u.Scheme) > 1
}
