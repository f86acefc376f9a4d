package extractors

import (
	"context"

	"media-metadata-go/pkg/hls"
	"media-metadata-go/pkg/interfaces"
	"media-metadata-go/pkg/logging"
	"media-metadata-go/pkg/types"
)

// HLSExtractor reads duration and resolution from HLS playlists.
type HLSExtractor struct {
	*BaseExtractor
	resolver *hls.Resolver
}

// NewHLSExtractor creates an HLS extractor that reads playlists through fetcher.
func NewHLSExtractor(fetcher interfaces.PlaylistFetcher, log *logging.Logger) *HLSExtractor {
	return &HLSExtractor{
		BaseExtractor: NewBaseExtractor(log.WithComponent("hls-extractor")),
		resolver:      hls.NewResolver(fetcher, log),
	}
}

// Kind returns the pipeline name.
func (e *HLSExtractor) Kind() types.SourceKind {
	return types.SourceKindHLS
}

// CanHandle returns true for http(s) URLs whose path ends in .m3u8.
func (e *HLSExtractor) CanHandle(url string) bool {
	return hls.IsValidURL(url)
}

// Extract resolves the playlist. Cookies and user agent are not sent with
// playlist requests.
func (e *HLSExtractor) Extract(ctx context.Context, req types.MetadataRequest) types.StreamMetadata {
	e.log.Debug("extracting hls metadata", "url", req.URL)
	return e.resolver.Resolve(ctx, req.URL)
}

var _ interfaces.MetadataExtractor = (*HLSExtractor)(nil)
