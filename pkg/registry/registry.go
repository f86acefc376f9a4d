// Package registry provides the extractor registry used to pick a metadata pipeline.
package registry

import (
	"sync"

	"media-metadata-go/pkg/interfaces"
)

// ExtractorRegistry manages metadata extractors.
type ExtractorRegistry struct {
	mu         sync.RWMutex
	extractors []interfaces.MetadataExtractor
	fallback   interfaces.MetadataExtractor
}

// NewExtractorRegistry creates a new extractor registry.
func NewExtractorRegistry() *ExtractorRegistry {
	return &ExtractorRegistry{
		extractors: make([]interfaces.MetadataExtractor, 0),
	}
}

// Register adds an extractor to the registry.
func (r *ExtractorRegistry) Register(extractor interfaces.MetadataExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors = append(r.extractors, extractor)
}

// SetFallback sets the extractor used when no registered extractor matches.
func (r *ExtractorRegistry) SetFallback(extractor interfaces.MetadataExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = extractor
}

// Get returns the first extractor that accepts url, or the fallback.
func (r *ExtractorRegistry) Get(url string) interfaces.MetadataExtractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.extractors {
		if e.CanHandle(url) {
			return e
		}
	}
	return r.fallback
}

// All returns all registered extractors, excluding the fallback.
func (r *ExtractorRegistry) All() []interfaces.MetadataExtractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]interfaces.MetadataExtractor, len(r.extractors))
	copy(result, r.extractors)
	return result
}

var _ interfaces.Registry[interfaces.MetadataExtractor] = (*ExtractorRegistry)(nil)
