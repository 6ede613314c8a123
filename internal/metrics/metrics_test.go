package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCommandBucketsUnknownVerbs(t *testing.T) {
	before := testutil.ToFloat64(Commands.WithLabelValues("unknown"))
	ObserveCommand("rm -rf")
	ObserveCommand("chat")

	assert.Equal(t, before+1, testutil.ToFloat64(Commands.WithLabelValues("unknown")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(Commands.WithLabelValues("chat")), 1.0)
}

func TestHandlerServesCollectors(t *testing.T) {
	ConnectionsTotal.Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "chatd_connections_total"))
}
