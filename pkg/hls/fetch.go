package hls

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"media-metadata-go/pkg/interfaces"
	"media-metadata-go/pkg/logging"
	"media-metadata-go/pkg/metrics"
)

// maxLineSize bounds a single playlist line. Longer lines are skipped.
// Signed URLs can be long.
const maxLineSize = 1 << 20

// Fetcher downloads playlists and returns their filtered lines.
type Fetcher struct {
	client interfaces.HTTPClient
	log    *logging.Logger
}

var _ interfaces.PlaylistFetcher = (*Fetcher)(nil)

// NewFetcher creates a playlist fetcher using the given HTTP client.
func NewFetcher(client interfaces.HTTPClient, log *logging.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		log:    log.WithComponent("hls-fetcher"),
	}
}

// FetchLines performs one GET of url and returns its lines, trimmed, with
// "##" comments and the "#EXTM3U" header removed. It returns false for URLs
// that are not HLS, for transport errors and for non-2xx responses.
func (f *Fetcher) FetchLines(ctx context.Context, url string) ([]string, bool) {
	lines, err := f.fetch(ctx, url)
	metrics.RecordPlaylistFetch(err == nil)
	if err != nil {
		f.log.Debug("playlist fetch failed", "url", url, "error", err)
		return nil, false
	}
	return lines, true
}

func (f *Fetcher) fetch(ctx context.Context, url string) ([]string, error) {
	if !IsValidURL(url) {
		return nil, ErrInvalidURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrFetchFailed, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	lines, err := ReadLines(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return lines, nil
}

// ReadLines decodes r as UTF-8, honouring a leading byte order mark, and
// applies the playlist line filter. Lines over maxLineSize are dropped.
func ReadLines(r io.Reader) ([]string, error) {
	br := bufio.NewReaderSize(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())), 64*1024)

	var lines []string
	for {
		raw, overlong, err := readLine(br)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read playlist: %w", err)
		}
		if err == io.EOF && len(raw) == 0 && !overlong {
			return lines, nil
		}

		if !overlong {
			line := strings.TrimSpace(string(raw))
			if !strings.HasPrefix(line, tagCommentPrefix) && line != tagHeader {
				lines = append(lines, line)
			}
		}

		if err == io.EOF {
			return lines, nil
		}
	}
}

// readLine returns the next line including its terminator. A line longer
// than maxLineSize is consumed and reported as overlong with no content.
func readLine(br *bufio.Reader) (line []byte, overlong bool, err error) {
	for {
		chunk, readErr := br.ReadSlice('\n')
		if !overlong {
			if len(line)+len(chunk) > maxLineSize {
				overlong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if readErr == bufio.ErrBufferFull {
			continue
		}
		return line, overlong, readErr
	}
}
