package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-metadata-go/pkg/appctx"
	"media-metadata-go/pkg/config"
	"media-metadata-go/pkg/interfaces"
	"media-metadata-go/pkg/logging"
	"media-metadata-go/pkg/registry"
	"media-metadata-go/pkg/services"
	"media-metadata-go/pkg/types"
)

// recordingExtractor answers every request with a fixed result and remembers
// what it was asked.
type recordingExtractor struct {
	kind   types.SourceKind
	suffix string
	meta   types.StreamMetadata

	mu   sync.Mutex
	reqs []types.MetadataRequest
}

func (e *recordingExtractor) Kind() types.SourceKind { return e.kind }

func (e *recordingExtractor) CanHandle(url string) bool {
	return e.suffix == "" || strings.HasSuffix(url, e.suffix)
}

func (e *recordingExtractor) Extract(_ context.Context, req types.MetadataRequest) types.StreamMetadata {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reqs = append(e.reqs, req)
	return e.meta
}

type recordingSections struct {
	reqs []types.SectionRequest
}

func (s *recordingSections) ExtractSection(_ context.Context, req types.SectionRequest) types.StreamMetadata {
	s.reqs = append(s.reqs, req)
	return types.NewStreamMetadata(4000, 0, 0)
}

type testEnv struct {
	router      chi.Router
	hls         *recordingExtractor
	progressive *recordingExtractor
	sections    *recordingSections
}

func newTestHandlers(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()

	log := logging.New("debug", false, io.Discard)
	if cfg == nil {
		cfg = &config.Config{BaseURL: "http://localhost:7860"}
	}

	env := &testEnv{
		hls:         &recordingExtractor{kind: types.SourceKindHLS, suffix: ".m3u8", meta: types.NewStreamMetadata(9500, 1280, 720)},
		progressive: &recordingExtractor{kind: types.SourceKindProgressive},
		sections:    &recordingSections{},
	}

	reg := registry.NewExtractorRegistry()
	reg.Register(env.hls)
	reg.SetFallback(env.progressive)

	ctx := appctx.New(cfg, log)
	ctx.WithMetadataService(services.NewMetadataService(log, reg, env.sections, 2))

	env.router = chi.NewRouter()
	NewHandlers(ctx).RegisterRoutes(env.router)
	return env
}

func (env *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeMetadata(t *testing.T, rec *httptest.ResponseRecorder) types.StreamMetadata {
	t.Helper()
	var meta types.StreamMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	return meta
}

func TestHandlers_Metadata(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		want       types.StreamMetadata
	}{
		{
			name:       "hls playlist",
			query:      "?url=https://cdn.example.com/live/master.m3u8",
			wantStatus: http.StatusOK,
			want:       types.NewStreamMetadata(9500, 1280, 720),
		},
		{
			name:       "legacy d parameter",
			query:      "?d=https://cdn.example.com/live/master.m3u8",
			wantStatus: http.StatusOK,
			want:       types.NewStreamMetadata(9500, 1280, 720),
		},
		{
			name:       "failed extraction is still 200",
			query:      "?url=https://cdn.example.com/video.mp4",
			wantStatus: http.StatusOK,
			want:       types.EmptyMetadata,
		},
		{
			name:       "missing url",
			query:      "",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "blank url",
			query:      "?url=%20%20",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestHandlers(t, nil)
			rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/metadata"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.want, decodeMetadata(t, rec))
			} else {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestHandlers_MetadataHeaders(t *testing.T) {
	env := newTestHandlers(t, nil)

	rec := env.do(t, httptest.NewRequest(http.MethodGet,
		"/api/metadata?url=https://cdn.example.com/a.mp4&h_Cookie=session%3Dabc&h_User_Agent=TestAgent%2F1.0&h_Referer=x", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, env.progressive.reqs, 1)
	assert.Equal(t, types.MetadataRequest{
		URL:       "https://cdn.example.com/a.mp4",
		Cookies:   "session=abc",
		UserAgent: "TestAgent/1.0",
	}, env.progressive.reqs[0])
}

func TestHandlers_Batch(t *testing.T) {
	env := newTestHandlers(t, nil)

	body := `{"urls":["https://a/master.m3u8","https://b/movie.mp4","https://c/other.m3u8"],"headers":{"user-agent":"UA/2"}}`
	rec := env.do(t, httptest.NewRequest(http.MethodPost, "/api/metadata/batch", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp batchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []types.StreamMetadata{
		types.NewStreamMetadata(9500, 1280, 720),
		types.EmptyMetadata,
		types.NewStreamMetadata(9500, 1280, 720),
	}, resp.Results)

	require.Len(t, env.progressive.reqs, 1)
	assert.Equal(t, "UA/2", env.progressive.reqs[0].UserAgent)
	assert.Empty(t, env.progressive.reqs[0].Cookies)
}

func TestHandlers_BatchRejects(t *testing.T) {
	tooMany := make([]string, maxBatchSize+1)
	for i := range tooMany {
		tooMany[i] = "https://a/x.m3u8"
	}
	tooManyBody, err := json.Marshal(batchRequest{URLs: tooMany})
	require.NoError(t, err)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"invalid json", `{"urls":`, http.StatusBadRequest},
		{"empty urls", `{"urls":[]}`, http.StatusBadRequest},
		{"too many urls", string(tooManyBody), http.StatusBadRequest},
		{"oversized body", `{"urls":["` + strings.Repeat("a", maxBatchBodySize) + `"]}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestHandlers(t, nil)
			rec := env.do(t, httptest.NewRequest(http.MethodPost, "/api/metadata/batch", strings.NewReader(tt.body)))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Empty(t, env.hls.reqs)
		})
	}
}

func TestHandlers_Section(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantReq    *types.SectionRequest
	}{
		{
			name:       "valid range",
			query:      "?path=/media/bundle.bin&offset=6&length=12",
			wantStatus: http.StatusOK,
			wantReq:    &types.SectionRequest{Path: "/media/bundle.bin", Offset: 6, Length: 12},
		},
		{
			name:       "range checks are left to the extractor",
			query:      "?path=/media/bundle.bin&offset=-1&length=0",
			wantStatus: http.StatusOK,
			wantReq:    &types.SectionRequest{Path: "/media/bundle.bin", Offset: -1, Length: 0},
		},
		{"missing path", "?offset=0&length=1", http.StatusBadRequest, nil},
		{"bad offset", "?path=/m&offset=abc&length=1", http.StatusBadRequest, nil},
		{"missing length", "?path=/m&offset=0", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestHandlers(t, nil)
			rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/metadata/section"+tt.query, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantReq == nil {
				assert.Empty(t, env.sections.reqs)
				return
			}
			require.Len(t, env.sections.reqs, 1)
			assert.Equal(t, *tt.wantReq, env.sections.reqs[0])
			assert.Equal(t, types.NewStreamMetadata(4000, 0, 0), decodeMetadata(t, rec))
		})
	}
}

func TestHandlers_Info(t *testing.T) {
	env := newTestHandlers(t, nil)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "running", info["status"])
	assert.Equal(t, []any{"hls"}, info["extractors"])

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/metadata")
}

func TestHandlers_RateLimit(t *testing.T) {
	env := newTestHandlers(t, &config.Config{RateLimitRequests: 2, RateLimitWindow: time.Minute})

	statuses := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/metadata?url=https://a/x.m3u8", nil)
		req.RemoteAddr = "192.0.2.10:5000"
		statuses = append(statuses, env.do(t, req).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)

	// Status endpoints sit outside the limited group.
	req := httptest.NewRequest(http.MethodGet, "/api/info", nil)
	req.RemoteAddr = "192.0.2.10:5000"
	assert.Equal(t, http.StatusOK, env.do(t, req).Code)
}

func TestHeaderValues(t *testing.T) {
	cookies, ua := headerValues(map[string]string{"cookie": "a=b", "USER-AGENT": "UA", "Referer": "r"})
	assert.Equal(t, "a=b", cookies)
	assert.Equal(t, "UA", ua)

	cookies, ua = headerValues(nil)
	assert.Empty(t, cookies)
	assert.Empty(t, ua)
}

var _ interfaces.MetadataExtractor = (*recordingExtractor)(nil)
