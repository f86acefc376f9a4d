package hls

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"media-metadata-go/pkg/types"
)

var (
	extInfPattern     = regexp.MustCompile(`^#EXTINF:([0-9.]*?),.*?$`)
	resolutionPattern = regexp.MustCompile(`^.*?RESOLUTION=(\d*?)x(\d+).*?$`)
)

// ScanDuration sums #EXTINF durations from lines[start:] until #EXT-X-ENDLIST
// and returns the total in milliseconds with the given resolution attached.
// A playlist without #EXT-X-ENDLIST is live and reports a zero duration.
// #EXTINF lines without a "<digits>," duration are skipped; a captured
// duration that is not a number yields types.EmptyMetadata.
func ScanDuration(lines []string, start, width, height int) types.StreamMetadata {
	meta, _ := scanDuration(lines, start, width, height)
	return meta
}

func scanDuration(lines []string, start, width, height int) (types.StreamMetadata, error) {
	if start < 0 {
		start = 0
	}

	var total float64
	for i := start; i < len(lines); i++ {
		line := lines[i]

		if line == tagEndList {
			return types.NewStreamMetadata(int(math.Round(total*1000)), width, height), nil
		}
		if !strings.HasPrefix(line, tagExtInf) {
			continue
		}

		m := extInfPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		seconds, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return types.EmptyMetadata, fmt.Errorf("%w: line %d: %v", ErrInvalidDuration, i, err)
		}
		total += seconds
	}

	return types.NewStreamMetadata(0, width, height), nil
}

// ParseResolution extracts WIDTHxHEIGHT from the RESOLUTION attribute of a
// #EXT-X-STREAM-INF line. ok is false when the attribute is missing or
// either dimension is not an integer.
func ParseResolution(line string) (width, height int, ok bool) {
	m := resolutionPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}

	w, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	h, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return w, h, true
}
