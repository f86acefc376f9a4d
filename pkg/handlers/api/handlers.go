// Package api provides the HTTP handlers for the metadata API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"media-metadata-go/pkg/appctx"
	"media-metadata-go/pkg/httpclient"
	"media-metadata-go/pkg/logging"
	"media-metadata-go/pkg/middleware"
	"media-metadata-go/pkg/types"
)

const (
	maxBatchSize     = 100
	maxBatchBodySize = 1 << 20
)

// Handlers contains all API handlers.
type Handlers struct {
	ctx *appctx.Context
	log *logging.Logger
}

// NewHandlers creates new API handlers.
func NewHandlers(ctx *appctx.Context) *Handlers {
	return &Handlers{
		ctx: ctx,
		log: ctx.Log.WithComponent("api"),
	}
}

// RegisterRoutes registers all API routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Get("/api/info", h.handleAPIInfo)
	r.Get("/healthz", h.handleHealth)

	r.Route("/api/metadata", func(r chi.Router) {
		r.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestLimit: h.ctx.Config.RateLimitRequests,
			WindowSize:   h.ctx.Config.RateLimitWindow,
		}))
		r.Get("/", h.handleMetadata)
		r.Post("/batch", h.handleBatch)
		r.Get("/section", h.handleSection)
	})
}

// handleIndex serves a short landing page.
func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>MediaMetadata</title></head>
<body>
    <h1>MediaMetadata</h1>
    <p>Duration and resolution for HLS playlists and progressive media.</p>
    <ul>
        <li><code>GET /api/metadata?url=...</code> single source</li>
        <li><code>POST /api/metadata/batch</code> several sources</li>
        <li><code>GET /api/metadata/section?path=...&amp;offset=...&amp;length=...</code> byte range of a local file</li>
        <li><code>GET /api/info</code> server status</li>
        <li><code>GET /metrics</code> Prometheus metrics</li>
    </ul>
    <footer>Version %s</footer>
</body>
</html>`, h.ctx.Version)
}

// handleAPIInfo returns server status as JSON.
func (h *Handlers) handleAPIInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"status":  "running",
		"version": h.ctx.Version,
	}

	if h.ctx.MetadataService != nil {
		kinds := []string{}
		for _, e := range h.ctx.MetadataService.Extractors() {
			kinds = append(kinds, string(e.Kind()))
		}
		info["extractors"] = kinds
	}
	if h.ctx.Monitor != nil {
		info["network_policy"] = h.ctx.Monitor.Policy()
	}
	if h.ctx.Guard != nil {
		info["allowed_dirs"] = len(h.ctx.Guard.Roots())
	}

	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetadata extracts metadata for one source. Extraction failures are
// reported in the body's success flag with status 200.
func (h *Handlers) handleMetadata(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseMetadataRequest(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}

	meta := h.ctx.MetadataService.Extract(r.Context(), req)
	h.log.WithURL(req.URL).Debug("metadata extracted", "success", meta.Success, "duration_ms", meta.DurationMs)

	h.writeJSON(w, http.StatusOK, meta)
}

type batchRequest struct {
	URLs    []string          `json:"urls"`
	Headers map[string]string `json:"headers"`
}

type batchResponse struct {
	Results []types.StreamMetadata `json:"results"`
}

// handleBatch extracts metadata for several sources sharing one set of
// headers. Results keep the order of the request.
func (h *Handlers) handleBatch(w http.ResponseWriter, r *http.Request) {
	var body batchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBodySize))
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if len(body.URLs) == 0 {
		h.writeError(w, http.StatusBadRequest, "urls must not be empty")
		return
	}
	if len(body.URLs) > maxBatchSize {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d urls per batch", maxBatchSize))
		return
	}

	cookies, userAgent := headerValues(body.Headers)
	reqs := make([]types.MetadataRequest, len(body.URLs))
	for i, u := range body.URLs {
		reqs[i] = types.MetadataRequest{URL: u, Cookies: cookies, UserAgent: userAgent}
	}

	results := h.ctx.MetadataService.ExtractBatch(r.Context(), reqs)
	h.writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

// handleSection probes a byte range of an allowed local file.
func (h *Handlers) handleSection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	path := q.Get("path")
	if path == "" {
		h.writeError(w, http.StatusBadRequest, "missing path parameter")
		return
	}
	offset, err := strconv.ParseInt(q.Get("offset"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid offset parameter")
		return
	}
	length, err := strconv.ParseInt(q.Get("length"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid length parameter")
		return
	}

	meta := h.ctx.MetadataService.ExtractSection(r.Context(), types.SectionRequest{
		Path:   path,
		Offset: offset,
		Length: length,
	})
	h.writeJSON(w, http.StatusOK, meta)
}

// Helper methods

func (h *Handlers) parseMetadataRequest(r *http.Request) (types.MetadataRequest, bool) {
	q := r.URL.Query()
	urlStr := q.Get("url")
	if urlStr == "" {
		urlStr = q.Get("d")
	}
	if strings.TrimSpace(urlStr) == "" {
		return types.MetadataRequest{}, false
	}

	cookies, userAgent := headerValues(httpclient.ParseHeaderParams(q))
	return types.MetadataRequest{
		URL:       urlStr,
		Cookies:   cookies,
		UserAgent: userAgent,
	}, true
}

// headerValues picks the cookie and user agent out of a header map,
// ignoring the case of the names.
func headerValues(headers map[string]string) (cookies, userAgent string) {
	for name, value := range headers {
		switch http.CanonicalHeaderKey(name) {
		case "Cookie":
			cookies = value
		case "User-Agent":
			userAgent = value
		}
	}
	return cookies, userAgent
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Warn("failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
