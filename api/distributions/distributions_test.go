// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package distributions

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/burnpool/api/utils"
	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/dispenser"
	"github.com/vechain/burnpool/lvldb"
	"github.com/vechain/burnpool/seed"
	"github.com/vechain/burnpool/xfer"
)

var (
	alice = burn.Address{1}
	bob   = burn.Address{2}
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

type testServer struct {
	*httptest.Server
	dispenser *dispenser.Dispenser
	clock     *clock
	sent      []xfer.Transfer
	fail      bool
}

func newTestServer(t *testing.T) *testServer {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	common := dispenser.PoolFunc(func(start *burn.Address, _ int) ([]dispenser.Member, error) {
		if start != nil {
			return nil, nil
		}
		return []dispenser.Member{{Owner: bob, Weight: uint256.NewInt(1)}}, nil
	})

	ts := &testServer{clock: &clock{t: time.Unix(1_700_000_000, 0)}}
	ts.dispenser, err = dispenser.New(db,
		dispenser.WithClock(ts.clock.now),
		dispenser.WithToken(uint256.NewInt(1), time.Hour),
		dispenser.WithPools(common, nil, nil),
	)
	require.NoError(t, err)
	require.NoError(t, ts.dispenser.Init(context.Background(), seed.EntropyFunc(func(context.Context) (burn.Bytes32, error) {
		return burn.Bytes32{5}, nil
	})))

	transferer := xfer.TransfererFunc(func(_ context.Context, tr xfer.Transfer) (uint64, error) {
		if ts.fail {
			return 0, errors.New("ledger unavailable")
		}
		ts.sent = append(ts.sent, tr)
		return uint64(len(ts.sent)), nil
	})

	router := mux.NewRouter()
	New(ts.dispenser, transferer, 10).Mount(router, "/distributions")
	ts.Server = httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) runTick(t *testing.T) {
	ts.clock.t = ts.clock.t.Add(ts.dispenser.NextDelay())
	for i := 0; ; i++ {
		require.Less(t, i, 100)
		more, err := ts.dispenser.RunBatch(10)
		require.NoError(t, err)
		if !more {
			return
		}
	}
}

func (ts *testServer) do(t *testing.T, method, path string, caller *burn.Address, body any) ([]byte, int) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	require.NoError(t, err)
	if caller != nil {
		req.Header.Set(utils.CallerHeader, caller.String())
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return data, res.StatusCode
}

func (ts *testServer) create(t *testing.T, req *CreateRequest) uint64 {
	data, code := ts.do(t, http.MethodPost, "/distributions", &alice, req)
	require.Equal(t, http.StatusOK, code, string(data))
	var res CreateResponse
	require.NoError(t, json.Unmarshal(data, &res))
	return res.ID
}

func TestCreateAndList(t *testing.T) {
	ts := newTestServer(t)

	id := ts.create(t, &CreateRequest{Name: "airdrop", Qty: uint256.NewInt(100), DurationTicks: 4})
	hidden := ts.create(t, &CreateRequest{Name: "secret", Qty: uint256.NewInt(100), DurationTicks: 1, Hidden: true, StartAtTrigger: true})

	data, code := ts.do(t, http.MethodGet, "/distributions?status=scheduled", nil, nil)
	require.Equal(t, http.StatusOK, code)
	var list []dispenser.Distribution
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, uint256.NewInt(25), list[0].TickReward)
	assert.Equal(t, "secret", list[1].Name)
	assert.True(t, list[1].ScheduledQty.IsZero(), "amounts of hidden distributions are zeroed")

	data, code = ts.do(t, http.MethodGet, "/distributions?status=scheduled&start=0", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, hidden, list[0].ID)

	data, code = ts.do(t, http.MethodGet, "/distributions?status=completed", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, "[]", string(data))

	_, code = ts.do(t, http.MethodGet, "/distributions?status=bogus", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	_, code = ts.do(t, http.MethodGet, "/distributions/99", nil, nil)
	assert.Equal(t, http.StatusNotFound, code)

	_, code = ts.do(t, http.MethodPost, "/distributions", &alice, &CreateRequest{Qty: uint256.NewInt(100)})
	assert.Equal(t, http.StatusBadRequest, code, "zero duration")
}

func TestTickAndClaim(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t, &CreateRequest{Name: "airdrop", Qty: uint256.NewInt(100), DurationTicks: 1})
	ts.runTick(t)

	data, code := ts.do(t, http.MethodGet, "/distributions/totals", &bob, nil)
	require.Equal(t, http.StatusOK, code)
	var totals dispenser.Totals
	require.NoError(t, json.Unmarshal(data, &totals))
	assert.Equal(t, uint256.NewInt(50), totals.Unclaimed)
	assert.Equal(t, uint64(1), totals.Tick)

	data, code = ts.do(t, http.MethodGet, "/distributions/0", nil, nil)
	require.Equal(t, http.StatusOK, code)
	var dist dispenser.Distribution
	require.NoError(t, json.Unmarshal(data, &dist))
	assert.Equal(t, id, dist.ID)
	assert.Equal(t, dispenser.InProgress, dist.Status)

	data, code = ts.do(t, http.MethodPost, "/distributions/claim", &bob, &AmountRequest{Amount: uint256.NewInt(20)})
	require.Equal(t, http.StatusOK, code, string(data))
	var receipt xfer.Receipt
	require.NoError(t, json.Unmarshal(data, &receipt))
	assert.Equal(t, Token, receipt.Token)
	assert.Equal(t, uint256.NewInt(20), receipt.Amount)

	_, code = ts.do(t, http.MethodPost, "/distributions/claim", &bob, &AmountRequest{Amount: uint256.NewInt(40)})
	assert.Equal(t, http.StatusBadRequest, code)

	ts.fail = true
	_, code = ts.do(t, http.MethodPost, "/distributions/claim", &bob, &AmountRequest{Amount: uint256.NewInt(30)})
	assert.Equal(t, http.StatusBadGateway, code)
	left, err := ts.dispenser.Unclaimed(bob)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(30), left)
}

func TestCancelAndWithdraw(t *testing.T) {
	ts := newTestServer(t)
	id := ts.create(t, &CreateRequest{Name: "later", Qty: uint256.NewInt(100), DurationTicks: 2, StartAtTrigger: true})

	_, code := ts.do(t, http.MethodPost, "/distributions/0/cancel", &bob, nil)
	assert.Equal(t, http.StatusBadRequest, code, "not the owner")

	data, code := ts.do(t, http.MethodPost, "/distributions/0/cancel", &alice, nil)
	require.Equal(t, http.StatusOK, code, string(data))
	var dist dispenser.Distribution
	require.NoError(t, json.Unmarshal(data, &dist))
	assert.Equal(t, dispenser.Canceled, dist.Status)

	data, code = ts.do(t, http.MethodPost, "/distributions/0/withdraw", &alice, &AmountRequest{Amount: uint256.NewInt(60)})
	require.Equal(t, http.StatusOK, code, string(data))

	ts.fail = true
	_, code = ts.do(t, http.MethodPost, "/distributions/0/withdraw", &alice, &AmountRequest{Amount: uint256.NewInt(40)})
	assert.Equal(t, http.StatusBadGateway, code)

	got, err := ts.dispenser.Get(id)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(40), got.LeftoverQty)
	require.Len(t, ts.sent, 1)
}

func TestStoppedDispenser(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.dispenser.Stop())

	_, code := ts.do(t, http.MethodPost, "/distributions", &alice, &CreateRequest{Qty: uint256.NewInt(100), DurationTicks: 1})
	assert.Equal(t, http.StatusServiceUnavailable, code)

	data, code := ts.do(t, http.MethodGet, "/distributions/totals", nil, nil)
	require.Equal(t, http.StatusOK, code)
	var totals dispenser.Totals
	require.NoError(t, json.Unmarshal(data, &totals))
	assert.True(t, totals.Stopped)
}
