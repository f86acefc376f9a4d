// Package metrics provides Prometheus metrics for metadata extraction.
// Labels stay low-cardinality: no URLs or request IDs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"media-metadata-go/pkg/types"
)

var (
	// ExtractionsTotal counts extractions by pipeline and outcome.
	ExtractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_metadata",
		Name:      "extractions_total",
		Help:      "Total number of metadata extractions, by pipeline and result.",
	}, []string{"kind", "result"})

	// ExtractionDuration observes wall time of a single extraction.
	ExtractionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "media_metadata",
		Name:      "extraction_duration_seconds",
		Help:      "Duration of metadata extractions, by pipeline.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	// PlaylistFetchTotal counts playlist GETs by outcome.
	PlaylistFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_metadata",
		Name:      "playlist_fetch_total",
		Help:      "Total number of HLS playlist fetches, by result.",
	}, []string{"result"})

	// ProbeTotal counts ffprobe invocations by outcome.
	ProbeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_metadata",
		Name:      "probe_total",
		Help:      "Total number of media probe invocations, by result.",
	}, []string{"result"})

	// ProgressiveRejectTotal counts progressive sources refused before probing.
	ProgressiveRejectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_metadata",
		Name:      "progressive_reject_total",
		Help:      "Total number of progressive sources rejected, by reason.",
	}, []string{"reason"})
)

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordExtraction records one finished extraction.
func RecordExtraction(kind types.SourceKind, meta types.StreamMetadata, elapsed time.Duration) {
	ExtractionsTotal.WithLabelValues(string(kind), result(meta.Success)).Inc()
	ExtractionDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// RecordPlaylistFetch records one playlist GET.
func RecordPlaylistFetch(ok bool) {
	PlaylistFetchTotal.WithLabelValues(result(ok)).Inc()
}

// RecordProbe records one prober invocation.
func RecordProbe(err error) {
	ProbeTotal.WithLabelValues(result(err == nil)).Inc()
}

// RecordReject records a progressive source refused before probing.
func RecordReject(reason string) {
	ProgressiveRejectTotal.WithLabelValues(reason).Inc()
}
