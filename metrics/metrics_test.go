package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	before := testutil.ToFloat64(OrdersSubmitted.WithLabelValues("BUY"))
	OrdersSubmitted.WithLabelValues("BUY").Inc()
	assert.Equal(t, testutil.ToFloat64(OrdersSubmitted.WithLabelValues("BUY")), before+1)

	CandlesInserted.Add(2)
	Judgments.WithLabelValues("UP").Inc()

	// Ensure registered metrics are exposed.
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	assert.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "augur_candles_inserted_total"))
	assert.True(t, strings.Contains(string(body), `augur_orders_submitted_total{side="BUY"}`))
	assert.True(t, strings.Contains(string(body), `augur_judgments_total{prediction="UP"}`))
}
