// Copyright (c) 2024 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package health

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/burnpool/health"
)

func httpGet(t *testing.T, url string) ([]byte, int) {
	res, err := http.Get(url) //#nosec G107
	require.NoError(t, err)
	defer res.Body.Close()

	r, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return r, res.StatusCode
}

func TestHealth(t *testing.T) {
	h := health.New(2)
	h.Register("ledger")
	h.Register("raffle")

	router := mux.NewRouter()
	NewAPI(h).Mount(router, "/health")
	ts := httptest.NewServer(router)
	defer ts.Close()

	var status health.Status
	body, code := httpGet(t, ts.URL+"/health")
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, status.Healthy)
	require.Len(t, status.Machines, 2)
	assert.Equal(t, "ledger", status.Machines[0].Name)
	assert.Nil(t, status.Machines[0].LastStep)

	h.Step("raffle", errors.New("treasury down"))
	h.Step("raffle", errors.New("treasury down"))

	body, code = httpGet(t, ts.URL+"/health")
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, status.Healthy)
	assert.Equal(t, 2, status.Machines[1].ConsecutiveFailures)
	assert.Equal(t, "treasury down", status.Machines[1].LastError)
}

func TestHealthOfMachine(t *testing.T) {
	h := health.New(1)
	h.Register("dispenser")

	router := mux.NewRouter()
	NewAPI(h).Mount(router, "/health")
	ts := httptest.NewServer(router)
	defer ts.Close()

	var m struct {
		health.Machine
		Healthy bool `json:"healthy"`
	}
	body, code := httpGet(t, ts.URL+"/health/dispenser")
	assert.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &m))
	assert.True(t, m.Healthy)
	assert.Equal(t, "dispenser", m.Name)

	h.Step("dispenser", errors.New("pool members unavailable"))
	body, code = httpGet(t, ts.URL+"/health/dispenser")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	require.NoError(t, json.Unmarshal(body, &m))
	assert.False(t, m.Healthy)
	assert.Equal(t, uint64(1), m.Steps)

	_, code = httpGet(t, ts.URL+"/health/ledger")
	assert.Equal(t, http.StatusNotFound, code)
}
