package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRender(t *testing.T) {
	before := testutil.ToFloat64(Renders.WithLabelValues("smiles", "svg", "failure"))

	RecordRender("smiles", "svg", false, 20*time.Millisecond)

	after := testutil.ToFloat64(Renders.WithLabelValues("smiles", "svg", "failure"))
	assert.Equal(t, before+1, after)
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequests.WithLabelValues("GET", "/health", "200"))

	RecordAPIRequest("GET", "/health", "200", time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(APIRequests.WithLabelValues("GET", "/health", "200")))
}
