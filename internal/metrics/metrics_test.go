package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesCollectors(t *testing.T) {
	MediaIngest.WithLabelValues("success").Inc()
	RosterSize.Set(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "media_ingest_total")
	assert.Contains(t, string(body), "roster_size 3")
	assert.GreaterOrEqual(t, testutil.ToFloat64(MediaIngest.WithLabelValues("success")), 1.0)
}
