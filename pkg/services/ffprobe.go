package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"media-metadata-go/pkg/config"
	"media-metadata-go/pkg/interfaces"
	"media-metadata-go/pkg/logging"
	"media-metadata-go/pkg/metrics"
	"media-metadata-go/pkg/types"
)

const (
	stdinSource    = "pipe:0"
	maxStderrBytes = 4096
)

// ErrProbeFailed means ffprobe exited without usable output.
var ErrProbeFailed = errors.New("ffprobe failed")

// FFprobe reads media metadata by running the ffprobe binary.
type FFprobe struct {
	path    string
	timeout time.Duration
	limiter *rate.Limiter
	log     *logging.Logger
}

var _ interfaces.MediaProber = (*FFprobe)(nil)

// NewFFprobe creates a prober from configuration. Process spawns are rate
// limited to FFprobeRate per second with a burst of FFprobeBurst.
func NewFFprobe(cfg *config.Config, log *logging.Logger) *FFprobe {
	limit := rate.Limit(cfg.FFprobeRate)
	if cfg.FFprobeRate <= 0 {
		limit = rate.Inf
	}
	burst := cfg.FFprobeBurst
	if burst < 1 {
		burst = 1
	}

	return &FFprobe{
		path:    cfg.FFprobePath,
		timeout: cfg.ProbeTimeout,
		limiter: rate.NewLimiter(limit, burst),
		log:     log.WithComponent("ffprobe"),
	}
}

// Probe inspects a local path or network URL. Headers are sent with network
// requests only.
func (p *FFprobe) Probe(ctx context.Context, source string, headers map[string]string) (types.ProbeFields, error) {
	return p.run(ctx, buildProbeArgs(source, headers), nil)
}

// ProbeReader inspects media streamed to ffprobe's standard input.
func (p *FFprobe) ProbeReader(ctx context.Context, r io.Reader) (types.ProbeFields, error) {
	return p.run(ctx, buildProbeArgs(stdinSource, nil), r)
}

func (p *FFprobe) run(ctx context.Context, args []string, stdin io.Reader) (fields types.ProbeFields, err error) {
	defer func() { metrics.RecordProbe(err) }()

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("probe rate limit: %w", err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	source := args[len(args)-1]
	p.log.Debug("running ffprobe", "source", source)

	// #nosec G204 -- binary comes from configuration and the source is a single argument
	cmd := exec.CommandContext(ctx, p.path, args...)
	cmd.Stdin = stdin

	var stderr bytes.Buffer
	cmd.Stderr = io.MultiWriter(&limitedBuffer{buf: &stderr, max: maxStderrBytes}, &ffprobeLogger{log: p.log, source: source})

	out, runErr := cmd.Output()
	fields, parseErr := parseProbeOutput(out)

	switch {
	case parseErr == nil && runErr != nil:
		p.log.Warn("ffprobe non-zero exit but output accepted", "source", source, "error", runErr)
		return fields, nil
	case parseErr == nil:
		return fields, nil
	case runErr != nil:
		return nil, fmt.Errorf("%w: %v (stderr: %s)", ErrProbeFailed, runErr, strings.TrimSpace(stderr.String()))
	default:
		return nil, fmt.Errorf("%w: %v", ErrProbeFailed, parseErr)
	}
}

// buildProbeArgs builds the ffprobe command arguments. The source is always
// the last argument.
func buildProbeArgs(source string, headers map[string]string) []string {
	args := []string{
		"-hide_banner",
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
	}

	if len(headers) > 0 {
		keys := make([]string, 0, len(headers))
		for key := range headers {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		var headerParts strings.Builder
		for _, key := range keys {
			fmt.Fprintf(&headerParts, "%s: %s\r\n", key, headers[key])
		}
		args = append(args, "-headers", headerParts.String())
	}

	return append(args, source)
}

type probeData struct {
	Streams []struct {
		CodecType   string `json:"codec_type"`
		Width       int    `json:"width,omitempty"`
		Height      int    `json:"height,omitempty"`
		Duration    string `json:"duration,omitempty"`
		Disposition struct {
			AttachedPic int `json:"attached_pic"`
		} `json:"disposition"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

// parseProbeOutput maps ffprobe JSON onto the retriever-style string fields.
// Keys are omitted when ffprobe did not report a value.
func parseProbeOutput(out []byte) (types.ProbeFields, error) {
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, errors.New("empty ffprobe output")
	}

	var data probeData
	if err := json.Unmarshal(out, &data); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	if data.Format.FormatName == "" && len(data.Streams) == 0 {
		return nil, errors.New("ffprobe reported neither format nor streams")
	}

	fields := types.ProbeFields{}

	duration := data.Format.Duration
	for _, s := range data.Streams {
		if s.CodecType != "video" || s.Disposition.AttachedPic != 0 {
			continue
		}
		if _, ok := fields[types.ProbeKeyHasVideo]; ok {
			continue
		}
		fields[types.ProbeKeyHasVideo] = "yes"
		if s.Width > 0 {
			fields[types.ProbeKeyVideoWidth] = strconv.Itoa(s.Width)
		}
		if s.Height > 0 {
			fields[types.ProbeKeyVideoHeight] = strconv.Itoa(s.Height)
		}
		if duration == "" {
			duration = s.Duration
		}
	}

	if seconds, err := strconv.ParseFloat(duration, 64); err == nil && seconds >= 0 && !math.IsInf(seconds, 0) {
		fields[types.ProbeKeyDuration] = strconv.FormatInt(int64(math.Round(seconds*1000)), 10)
	}

	return fields, nil
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	buf *bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

// ffprobeLogger captures ffprobe stderr output for logging.
type ffprobeLogger struct {
	log    *logging.Logger
	source string
}

func (l *ffprobeLogger) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		l.log.Debug("ffprobe output", "source", l.source, "output", msg)
	}
	return len(p), nil
}
