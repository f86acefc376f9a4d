package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-metadata-go/pkg/types"
)

func TestRecordExtraction(t *testing.T) {
	ok := ExtractionsTotal.WithLabelValues("hls", "success")
	failed := ExtractionsTotal.WithLabelValues("hls", "failure")
	beforeOK := testutil.ToFloat64(ok)
	beforeFailed := testutil.ToFloat64(failed)

	RecordExtraction(types.SourceKindHLS, types.NewStreamMetadata(1000, 0, 0), 10*time.Millisecond)
	RecordExtraction(types.SourceKindHLS, types.EmptyMetadata, 5*time.Millisecond)

	assert.InDelta(t, beforeOK+1, testutil.ToFloat64(ok), 1e-9)
	assert.InDelta(t, beforeFailed+1, testutil.ToFloat64(failed), 1e-9)

	var m dto.Metric
	obs, err := ExtractionDuration.GetMetricWithLabelValues("hls")
	require.NoError(t, err)
	require.NoError(t, obs.(interface{ Write(*dto.Metric) error }).Write(&m))
	assert.GreaterOrEqual(t, m.GetHistogram().GetSampleCount(), uint64(2))
}

func TestRecordProbeAndFetch(t *testing.T) {
	probeFail := ProbeTotal.WithLabelValues("failure")
	fetchOK := PlaylistFetchTotal.WithLabelValues("success")
	reject := ProgressiveRejectTotal.WithLabelValues("unsafe_path")

	b1, b2, b3 := testutil.ToFloat64(probeFail), testutil.ToFloat64(fetchOK), testutil.ToFloat64(reject)

	RecordProbe(errors.New("exit 1"))
	RecordPlaylistFetch(true)
	RecordReject("unsafe_path")

	assert.InDelta(t, b1+1, testutil.ToFloat64(probeFail), 1e-9)
	assert.InDelta(t, b2+1, testutil.ToFloat64(fetchOK), 1e-9)
	assert.InDelta(t, b3+1, testutil.ToFloat64(reject), 1e-9)
}
