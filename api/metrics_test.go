// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/burnpool/api/utils"
	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/events"
	"github.com/vechain/burnpool/ledger"
	"github.com/vechain/burnpool/lvldb"
	"github.com/vechain/burnpool/metrics"
	"github.com/vechain/burnpool/xfer"
)

func init() {
	metrics.InitializePrometheusMetrics()
}

func gather(t *testing.T, name string) []*dto.Metric {
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()
		}
	}
	return nil
}

func label(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func newServer(t *testing.T, opts Options) (*httptest.Server, *events.Feed) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	l, err := ledger.New(db)
	require.NoError(t, err)

	feed := new(events.Feed)
	transferer := xfer.TransfererFunc(func(context.Context, xfer.Transfer) (uint64, error) { return 1, nil })
	handler, closeFn := New(Engines{Ledger: l}, transferer, feed, opts)
	ts := httptest.NewServer(handler)
	t.Cleanup(func() {
		feed.Close()
		closeFn()
		ts.Close()
	})
	return ts, feed
}

func httpGet(t *testing.T, url string, header http.Header) ([]byte, int) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	r, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return r, res.StatusCode
}

func TestMetricsMiddleware(t *testing.T) {
	ts, _ := newServer(t, Options{AllowedOrigins: "*", EnableMetrics: true})

	_, code := httpGet(t, ts.URL+"/burners/totals", nil)
	assert.Equal(t, http.StatusOK, code)
	_, code = httpGet(t, ts.URL+"/burners/totals", http.Header{utils.CallerHeader: {"0x01"}})
	assert.Equal(t, http.StatusBadRequest, code)
	_, code = httpGet(t, ts.URL+"/not-routed", nil)
	assert.Equal(t, http.StatusNotFound, code)

	m := gather(t, "burnpool_api_request_count")
	counts := map[string]float64{}
	for _, metric := range m {
		if label(metric, "name") == "GET /burners/totals" {
			counts[label(metric, "code")] += metric.GetCounter().GetValue()
		}
		assert.NotEqual(t, "", label(metric, "name"), "unnamed routes are not recorded")
	}
	assert.Equal(t, float64(1), counts["200"])
	assert.Equal(t, float64(1), counts["400"])
}

func TestWebsocketMetrics(t *testing.T) {
	ts, _ := newServer(t, Options{AllowedOrigins: "*", EnableMetrics: true})

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/subscriptions/events"
	conn1, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn1.Close()
	conn2, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn2.Close()

	assert.Eventually(t, func() bool {
		m := gather(t, "burnpool_api_active_websocket_count")
		return len(m) == 1 && label(m[0], "subject") == "events" && m[0].GetGauge().GetValue() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestRequestLogger(t *testing.T) {
	var enabled atomic.Bool
	ts, _ := newServer(t, Options{EnableReqLogger: &enabled})

	_, code := httpGet(t, ts.URL+"/burners?take=1", nil)
	assert.Equal(t, http.StatusOK, code)

	_, code = httpGet(t, ts.URL+"/burners/kamikazes?start="+burn.Address{}.String(), nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestCORS(t *testing.T) {
	ts, _ := newServer(t, Options{AllowedOrigins: "https://app.example"})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/burners/claim", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "x-caller")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, "https://app.example", res.Header.Get("Access-Control-Allow-Origin"))
}
