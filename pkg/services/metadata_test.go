package services

import (
	"context"
	"encoding/base64"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"media-metadata-go/pkg/logging"
	"media-metadata-go/pkg/registry"
	"media-metadata-go/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubExtractor struct {
	kind     types.SourceKind
	match    func(string) bool
	result   func(types.MetadataRequest) types.StreamMetadata
	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	seen     []string
}

func (e *stubExtractor) Kind() types.SourceKind { return e.kind }
func (e *stubExtractor) CanHandle(u string) bool { return e.match(u) }

func (e *stubExtractor) Extract(_ context.Context, req types.MetadataRequest) types.StreamMetadata {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	e.mu.Lock()
	e.seen = append(e.seen, req.URL)
	e.mu.Unlock()
	return e.result(req)
}

type stubSections struct{ meta types.StreamMetadata }

func (s stubSections) ExtractSection(context.Context, types.SectionRequest) types.StreamMetadata {
	return s.meta
}

func newTestService(concurrency int) (*MetadataService, *stubExtractor, *stubExtractor) {
	hlsStub := &stubExtractor{
		kind:  types.SourceKindHLS,
		match: func(u string) bool { return len(u) > 5 && u[len(u)-5:] == ".m3u8" },
		result: func(types.MetadataRequest) types.StreamMetadata {
			return types.NewStreamMetadata(8500, 1280, 720)
		},
	}
	progressive := &stubExtractor{
		kind:  types.SourceKindProgressive,
		match: func(string) bool { return true },
		result: func(req types.MetadataRequest) types.StreamMetadata {
			if req.URL == "panic.mp4" {
				panic("decoder crashed")
			}
			return types.NewStreamMetadata(1000, 0, 0)
		},
	}

	reg := registry.NewExtractorRegistry()
	reg.Register(hlsStub)
	reg.SetFallback(progressive)

	svc := NewMetadataService(logging.Nop(), reg, stubSections{meta: types.NewStreamMetadata(42, 0, 0)}, concurrency)
	return svc, hlsStub, progressive
}

func TestMetadataService_Extract(t *testing.T) {
	svc, hlsStub, progressive := newTestService(1)

	tests := []struct {
		name string
		url  string
		want types.StreamMetadata
	}{
		{"hls playlist", "https://cdn.example.com/master.m3u8", types.NewStreamMetadata(8500, 1280, 720)},
		{"progressive fallback", "https://cdn.example.com/a.mp4", types.NewStreamMetadata(1000, 0, 0)},
		{"escaped url", url.QueryEscape("https://cdn.example.com/master.m3u8"), types.NewStreamMetadata(8500, 1280, 720)},
		{"base64 url", base64.StdEncoding.EncodeToString([]byte("https://cdn.example.com/master.m3u8")), types.NewStreamMetadata(8500, 1280, 720)},
		{"panicking extractor", "panic.mp4", types.EmptyMetadata},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.Extract(context.Background(), types.MetadataRequest{URL: tt.url})
			if got != tt.want {
				t.Errorf("Extract() = %v, want %v", got, tt.want)
			}
		})
	}

	assert.Len(t, hlsStub.seen, 3)
	assert.Contains(t, progressive.seen, "https://cdn.example.com/a.mp4")
}

func TestMetadataService_ExtractIsNotCached(t *testing.T) {
	svc, hlsStub, _ := newTestService(1)

	for range 3 {
		svc.Extract(context.Background(), types.MetadataRequest{URL: "https://cdn.example.com/master.m3u8"})
	}
	assert.Len(t, hlsStub.seen, 3)
}

func TestMetadataService_ExtractBatch(t *testing.T) {
	svc, hlsStub, progressive := newTestService(2)

	reqs := []types.MetadataRequest{
		{URL: "https://cdn.example.com/a.m3u8"},
		{URL: "https://cdn.example.com/b.mp4"},
		{URL: "panic.mp4"},
		{URL: "https://cdn.example.com/c.m3u8"},
		{URL: "https://cdn.example.com/d.mp4"},
	}

	got := svc.ExtractBatch(context.Background(), reqs)
	want := []types.StreamMetadata{
		types.NewStreamMetadata(8500, 1280, 720),
		types.NewStreamMetadata(1000, 0, 0),
		types.EmptyMetadata,
		types.NewStreamMetadata(8500, 1280, 720),
		types.NewStreamMetadata(1000, 0, 0),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractBatch() mismatch (-want +got):\n%s", diff)
	}

	assert.LessOrEqual(t, hlsStub.peak.Load()+progressive.peak.Load(), int32(4))
	assert.LessOrEqual(t, hlsStub.peak.Load(), int32(2))
	assert.LessOrEqual(t, progressive.peak.Load(), int32(2))
}

func TestMetadataService_ExtractBatchCanceled(t *testing.T) {
	svc, _, _ := newTestService(2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := svc.ExtractBatch(ctx, []types.MetadataRequest{{URL: "https://cdn.example.com/a.m3u8"}, {URL: "b.mp4"}})
	assert.Equal(t, []types.StreamMetadata{types.EmptyMetadata, types.EmptyMetadata}, got)
}

func TestMetadataService_ExtractSection(t *testing.T) {
	svc, _, _ := newTestService(1)
	got := svc.ExtractSection(context.Background(), types.SectionRequest{Path: "/media/a.bin", Offset: 0, Length: 10})
	assert.Equal(t, types.NewStreamMetadata(42, 0, 0), got)

	bare := NewMetadataService(logging.Nop(), registry.NewExtractorRegistry(), nil, 0)
	assert.Equal(t, types.EmptyMetadata, bare.ExtractSection(context.Background(), types.SectionRequest{Path: "/a"}))
	assert.Equal(t, types.EmptyMetadata, bare.Extract(context.Background(), types.MetadataRequest{URL: "/a.mp4"}))
}

func TestDecodeURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain url", "https://cdn.example.com/a%20b.mp4", "https://cdn.example.com/a%20b.mp4"},
		{"fully escaped", "https%3A%2F%2Fcdn.example.com%2Fa.m3u8", "https://cdn.example.com/a.m3u8"},
		{"std base64", base64.StdEncoding.EncodeToString([]byte("http://x.example/v.mp4")), "http://x.example/v.mp4"},
		{"unpadded url-safe base64", base64.RawURLEncoding.EncodeToString([]byte("https://x.example/?a=b&c=d~")), "https://x.example/?a=b&c=d~"},
		{"absolute path", "/media/a.mp4", "/media/a.mp4"},
		{"relative path", "media/a.mp4", "media/a.mp4"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeURL(tt.input); got != tt.want {
				t.Errorf("decodeURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
