// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package engines

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/burnpool/burn"
)

type fakeEngine struct {
	name    string
	stopped bool
	fund    *uint256.Int
}

func (f *fakeEngine) Name() string           { return f.name }
func (f *fakeEngine) Stopped() (bool, error) { return f.stopped, nil }

func (f *fakeEngine) Stop() error {
	f.stopped = true
	return nil
}

func (f *fakeEngine) Resume() error {
	f.stopped = false
	return nil
}

type preparer struct{ fakeEngine }

func (p *preparer) Prepare(fund *uint256.Int) error {
	if p.stopped {
		return &burn.StoppedError{Engine: p.name}
	}
	p.fund = fund
	return nil
}

type kicks []string

func (k *kicks) Kick(name string) { *k = append(*k, name) }

func serve(router *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestEngines(t *testing.T) {
	ledger := &fakeEngine{name: "ledger"}
	raffle := &preparer{fakeEngine{name: "raffle"}}
	var kicked kicks

	router := mux.NewRouter()
	New(&kicked, ledger, raffle).Mount(router, "/admin/engines")

	rr := serve(router, http.MethodGet, "/admin/engines", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Equal(t, []Status{{Name: "ledger"}, {Name: "raffle"}}, list)

	rr = serve(router, http.MethodPost, "/admin/engines/ledger/stop", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var s Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &s))
	assert.True(t, s.Stopped)
	assert.True(t, ledger.stopped)

	rr = serve(router, http.MethodPost, "/admin/engines/ledger/resume", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, ledger.stopped)

	rr = serve(router, http.MethodPost, "/admin/engines/ledger/kick", "")
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, kicks{"ledger", "ledger", "ledger"}, kicked)

	rr = serve(router, http.MethodGet, "/admin/engines/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPrepare(t *testing.T) {
	ledger := &fakeEngine{name: "ledger"}
	raffle := &preparer{fakeEngine{name: "raffle"}}

	router := mux.NewRouter()
	New(nil, ledger, raffle).Mount(router, "/admin/engines")

	rr := serve(router, http.MethodPost, "/admin/engines/ledger/prepare", `{"fund":"100"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(router, http.MethodPost, "/admin/engines/raffle/prepare", `{"fund":"100"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, uint256.NewInt(100), raffle.fund)

	raffle.stopped = true
	rr = serve(router, http.MethodPost, "/admin/engines/raffle/prepare", `{"fund":"100"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = serve(router, http.MethodPost, "/admin/engines/ledger/trigger/1", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
