// Package hls extracts duration and resolution from HLS (.m3u8) playlists.
//
// The exported entry points never return errors: every failure collapses to
// types.EmptyMetadata. Internally each step returns a sentinel error so the
// cause stays observable in logs, traces and tests.
package hls

import (
	"errors"
	"net/url"
	"strings"
)

// Playlist tags recognised by the scanner.
const (
	tagHeader         = "#EXTM3U"
	tagCommentPrefix  = "##"
	tagExtInf         = "#EXTINF:"
	tagEndList        = "#EXT-X-ENDLIST"
	tagTargetDuration = "#EXT-X-TARGETDURATION:"
	tagStreamInf      = "#EXT-X-STREAM-INF:"

	playlistSuffix = ".m3u8"
)

var (
	// ErrInvalidURL means the URL is not an http(s) reference to a .m3u8 path.
	ErrInvalidURL = errors.New("not an hls playlist url")
	// ErrFetchFailed means the playlist could not be retrieved.
	ErrFetchFailed = errors.New("playlist fetch failed")
	// ErrTooFewLines means the top-level playlist had fewer than two lines.
	ErrTooFewLines = errors.New("playlist has too few lines")
	// ErrInvalidDuration means an #EXTINF line carried an unparseable duration.
	ErrInvalidDuration = errors.New("invalid #EXTINF duration")
	// ErrVariantUnreachable means the variant playlist could not be fetched
	// either directly or relative to the master.
	ErrVariantUnreachable = errors.New("variant playlist unreachable")
	// ErrNoPlaylistTag means neither a target duration nor a stream-inf tag was found.
	ErrNoPlaylistTag = errors.New("no target duration or stream info tag")
	// ErrPanic wraps a recovered runtime failure.
	ErrPanic = errors.New("unexpected failure during hls extraction")
)

// IsValidURL reports whether raw is an http or https URI whose path ends in
// ".m3u8". Malformed URIs are not HLS.
func IsValidURL(raw string) bool {
	if raw == "" || strings.ContainsFunc(raw, isForbiddenURIRune) {
		return false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	return u.Opaque == "" && strings.HasSuffix(u.Path, playlistSuffix)
}

// isForbiddenURIRune rejects characters that never appear unescaped in a URI.
func isForbiddenURIRune(r rune) bool {
	return r <= ' ' || r == 0x7f || r == '"' || r == '<' || r == '>' || r == '\\' ||
		r == '^' || r == '`' || r == '{' || r == '|' || r == '}'
}
