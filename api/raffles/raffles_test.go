// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package raffles

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/burnpool/api/utils"
	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/lvldb"
	"github.com/vechain/burnpool/raffle"
	"github.com/vechain/burnpool/seed"
	"github.com/vechain/burnpool/xfer"
	"github.com/vechain/burnpool/xrate"
)

var (
	alice = burn.Address{1}
	bob   = burn.Address{2}
)

func units(n uint64) []byte {
	data, _ := json.Marshal(burn.Units(n, burn.RewardDecimals))
	return data
}

type testServer struct {
	*httptest.Server
	engine *raffle.Engine
	sent   []xfer.Transfer
	fail   bool
}

func newTestServer(t *testing.T) *testServer {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ts := &testServer{}
	ts.engine, err = raffle.New(db,
		raffle.WithSlotCap(burn.Units(10, burn.RewardDecimals)),
		raffle.WithRater(xrate.Static{"asset/usd": burn.Units(2, burn.RewardDecimals)}),
		raffle.WithTokens(raffle.Token{ID: "asset", Pair: "asset/usd", Decimals: 8}, raffle.Token{ID: "other", Pair: "other/usd", Decimals: 8}),
	)
	require.NoError(t, err)
	require.NoError(t, ts.engine.Init(context.Background(), seed.EntropyFunc(func(context.Context) (burn.Bytes32, error) {
		return burn.Bytes32{3}, nil
	})))

	transferer := xfer.TransfererFunc(func(_ context.Context, tr xfer.Transfer) (uint64, error) {
		if ts.fail {
			return 0, errors.New("ledger unavailable")
		}
		ts.sent = append(ts.sent, tr)
		return 42, nil
	})

	router := mux.NewRouter()
	New(ts.engine, transferer, 10).Mount(router, "/raffles")
	ts.Server = httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) completeRound(t *testing.T) {
	require.NoError(t, ts.engine.Prepare(burn.Units(30, burn.RewardDecimals)))
	for i := 0; ; i++ {
		require.Less(t, i, 100)
		more, err := ts.engine.RunBatch(10)
		require.NoError(t, err)
		if !more {
			return
		}
	}
}

func (ts *testServer) do(t *testing.T, method, path string, caller *burn.Address, body []byte) ([]byte, int) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
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

func TestPledge(t *testing.T) {
	ts := newTestServer(t)
	weight := burn.Units(57, burn.RewardDecimals-1)

	body := []byte(`{"token":"asset","amount":` + string(units(3)) + `}`)
	data, code := ts.do(t, http.MethodPost, "/raffles/pledge", &alice, body)
	require.Equal(t, http.StatusOK, code, string(data))
	var res PledgeResponse
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Equal(t, weight, res.Weight)

	// pledged for bob, then taken back
	body = []byte(`{"token":"asset","amount":` + string(units(1)) + `,"owner":"` + bob.String() + `"}`)
	_, code = ts.do(t, http.MethodPost, "/raffles/pledge", &alice, body)
	require.Equal(t, http.StatusOK, code)
	body = []byte(`{"token":"asset","amount":` + string(units(1)) + `,"owner":"` + bob.String() + `","downvote":true}`)
	_, code = ts.do(t, http.MethodPost, "/raffles/pledge", &alice, body)
	require.Equal(t, http.StatusOK, code)

	data, code = ts.do(t, http.MethodGet, "/raffles/totals", &alice, nil)
	require.Equal(t, http.StatusOK, code)
	var totals raffle.Totals
	require.NoError(t, json.Unmarshal(data, &totals))
	assert.Equal(t, weight, totals.Weight)
	assert.Equal(t, weight, totals.TotalWeight)
	assert.Equal(t, burn.Units(6, burn.RewardDecimals), totals.Pledged)
	assert.Equal(t, burn.Units(10, burn.RewardDecimals), totals.TotalPledged)

	_, code = ts.do(t, http.MethodPost, "/raffles/pledge", &alice, []byte(`{"token":"other","amount":"100000000"}`))
	assert.Equal(t, http.StatusBadRequest, code, "not the token of the round")

	_, code = ts.do(t, http.MethodPost, "/raffles/pledge", &alice, []byte(`{"amount":"1"}`))
	assert.Equal(t, http.StatusBadRequest, code)

	_, code = ts.do(t, http.MethodPost, "/raffles/pledge", &alice, []byte(`{"token":"asset","amount":"1","extra":true}`))
	assert.Equal(t, http.StatusBadRequest, code, "unknown fields are rejected")
}

func TestVote(t *testing.T) {
	ts := newTestServer(t)
	_, code := ts.do(t, http.MethodPost, "/raffles/pledge", &alice, []byte(`{"token":"asset","amount":`+string(units(1))+`}`))
	require.Equal(t, http.StatusOK, code)

	data, code := ts.do(t, http.MethodGet, "/raffles/vote", &alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "null", string(bytes.TrimSpace(data)))

	body := []byte(`{"preferences":[{"token":"other","weight":` + string(units(1)) + `}]}`)
	data, code = ts.do(t, http.MethodPost, "/raffles/vote", &alice, body)
	require.Equal(t, http.StatusOK, code, string(data))
	var vote raffle.Vote
	require.NoError(t, json.Unmarshal(data, &vote))
	assert.Equal(t, burn.Units(19, burn.RewardDecimals-1), vote.Power)

	_, code = ts.do(t, http.MethodPost, "/raffles/vote", &alice, body)
	assert.Equal(t, http.StatusBadRequest, code, "votes once a round")
	_, code = ts.do(t, http.MethodPost, "/raffles/vote", &bob, body)
	assert.Equal(t, http.StatusBadRequest, code, "no voting power")
	_, code = ts.do(t, http.MethodPost, "/raffles/vote", nil, body)
	assert.Equal(t, http.StatusUnauthorized, code, "caller required")

	data, code = ts.do(t, http.MethodGet, "/raffles/tokens", nil, nil)
	require.Equal(t, http.StatusOK, code)
	var tokens TokensResponse
	require.NoError(t, json.Unmarshal(data, &tokens))
	assert.Equal(t, "asset", tokens.Current.ID)
	assert.Equal(t, "asset", tokens.Burn.ID)
	assert.Len(t, tokens.Votable, 2)
	require.Len(t, tokens.Tallies, 1)
	assert.Equal(t, "other", tokens.Tallies[0].Token)

	ts.completeRound(t)
	data, code = ts.do(t, http.MethodGet, "/raffles/tokens", nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(data, &tokens))
	assert.Equal(t, "other", tokens.Current.ID)
	assert.Empty(t, tokens.Tallies)
}

func TestHistoryAndClaim(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.engine.Enter(alice, burn.Units(1, burn.RewardDecimals)))
	ts.completeRound(t)

	data, code := ts.do(t, http.MethodGet, "/raffles/history", nil, nil)
	require.Equal(t, http.StatusOK, code)
	var history []raffle.HistoryEntry
	require.NoError(t, json.Unmarshal(data, &history))
	require.Len(t, history, 1)
	require.Len(t, history[0].Winners, 3)
	assert.Equal(t, alice, history[0].Winners[1].Owner)

	_, code = ts.do(t, http.MethodPost, "/raffles/history/0/winners/1/claim", &bob, nil)
	assert.Equal(t, http.StatusBadRequest, code, "not the winner")

	data, code = ts.do(t, http.MethodPost, "/raffles/history/0/winners/1/claim", &alice, nil)
	require.Equal(t, http.StatusOK, code, string(data))
	var receipt xfer.Receipt
	require.NoError(t, json.Unmarshal(data, &receipt))
	assert.Equal(t, "8.33333333", burn.FormatUnits(receipt.Amount, burn.RewardDecimals))
	assert.Equal(t, PrizeToken, receipt.Token)
	assert.Equal(t, uint64(42), receipt.BlockIndex)

	_, code = ts.do(t, http.MethodPost, "/raffles/history/0/winners/1/claim", &alice, nil)
	assert.Equal(t, http.StatusBadRequest, code, "claimed twice")

	data, code = ts.do(t, http.MethodGet, "/raffles/history?before=0", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, "[]", string(data))
}

func TestClaimRevertsUndeliveredTransfer(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.engine.Enter(alice, burn.Units(1, burn.RewardDecimals)))
	ts.completeRound(t)

	ts.fail = true
	_, code := ts.do(t, http.MethodPost, "/raffles/history/0/winners/0/claim", &alice, nil)
	assert.Equal(t, http.StatusBadGateway, code)

	history, err := ts.engine.History(nil, 1)
	require.NoError(t, err)
	assert.False(t, history[0].Winners[0].Claimed)

	ts.fail = false
	_, code = ts.do(t, http.MethodPost, "/raffles/history/0/winners/0/claim", &alice, nil)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, ts.sent, 1)
}
