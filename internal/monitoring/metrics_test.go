package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	RecordOrder("ETHUSD", "market", "placed")
	RecordOrder("ETHUSD", "market", "placed")
	assert.Equal(t, 2.0, testutil.ToFloat64(ordersTotal.WithLabelValues("ETHUSD", "market", "placed")))

	RecordDecision("ETHUSD", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(decisionsTotal.WithLabelValues("ETHUSD", "rejected")))

	SetDailyLoss(12.5)
	assert.Equal(t, 12.5, testutil.ToFloat64(dailyLoss))

	before := testutil.ToFloat64(cyclesTotal)
	RecordCycle(150 * time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(cyclesTotal))
}

func TestHandler(t *testing.T) {
	RecordError("candles")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `kraken_trader_errors_total{type="candles"}`)
}
