// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package raffle

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/lvldb"
)

var (
	vet  = Token{ID: "vet", Pair: "vet/usd", Decimals: 18}
	b3tr = Token{ID: "b3tr", Pair: "b3tr/usd", Decimals: 18}
)

func pct(n uint64) *uint256.Int { return burn.Units(n, burn.RewardDecimals-2) }

func newVotingEngine(t *testing.T, opts ...Option) *Engine {
	e, _ := newEngine(t, append([]Option{WithRater(fixedRater{units(1)}), WithTokens(DefaultBurnToken, vet, b3tr)}, opts...)...)
	return e
}

func burnFor(t *testing.T, e *Engine, owner burn.Address, qty uint64) {
	_, err := e.Pledge(context.Background(), PledgeRequest{Owner: owner, Token: "burn", Qty: units(qty)})
	require.NoError(t, err)
}

func TestVoteValidation(t *testing.T) {
	e := newVotingEngine(t)
	require.NoError(t, e.Enter(bob, units(1)))
	burnFor(t, e, alice, 10)

	tests := []struct {
		name  string
		owner burn.Address
		prefs []Preference
	}{
		{"empty", alice, nil},
		{"unknown token", alice, []Preference{{Token: "doge", Weight: pct(100)}}},
		{"listed twice", alice, []Preference{{Token: "vet", Weight: pct(50)}, {Token: "vet", Weight: pct(50)}}},
		{"zero weight", alice, []Preference{{Token: "vet", Weight: pct(100)}, {Token: "b3tr", Weight: burn.Zero()}}},
		{"below one", alice, []Preference{{Token: "vet", Weight: pct(60)}, {Token: "b3tr", Weight: pct(30)}}},
		{"above one", alice, []Preference{{Token: "vet", Weight: pct(60)}, {Token: "b3tr", Weight: pct(50)}}},
		{"no power", bob, []Preference{{Token: "vet", Weight: pct(100)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Vote(tt.owner, tt.prefs)
			require.Error(t, err)
			assert.True(t, burn.IsValidation(err), "%v", err)
		})
	}

	tallies, err := e.Tallies()
	require.NoError(t, err)
	assert.Empty(t, tallies)
}

func TestVoteTallies(t *testing.T) {
	e := newVotingEngine(t)
	burnFor(t, e, alice, 100)
	burnFor(t, e, bob, 20)

	require.NoError(t, e.Vote(alice, []Preference{{Token: "vet", Weight: pct(25)}, {Token: "b3tr", Weight: pct(75)}}))
	require.NoError(t, e.Vote(bob, []Preference{{Token: "vet", Weight: pct(100)}}))
	assert.True(t, burn.IsValidation(e.Vote(bob, []Preference{{Token: "b3tr", Weight: pct(100)}})), "votes once a round")

	tallies, err := e.Tallies()
	require.NoError(t, err)
	assert.Equal(t, []Tally{
		{Token: "b3tr", Votes: uint256.NewInt(7_125_000_000)},
		{Token: "vet", Votes: uint256.NewInt(4_275_000_000)},
	}, tallies)

	v, err := e.VoteOf(alice)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, units(95), v.Power)
	assert.Len(t, v.Preferences, 2)

	tt, err := e.Totals(bob)
	require.NoError(t, err)
	assert.True(t, tt.Voted)
	tt, err = e.Totals(carol)
	require.NoError(t, err)
	assert.False(t, tt.Voted)

	require.NoError(t, e.Prepare(units(10)))
	assert.True(t, burn.IsValidation(e.Vote(carol, []Preference{{Token: "vet", Weight: pct(100)}})), "closed while drawing")
}

func TestElection(t *testing.T) {
	ctx := context.Background()
	e := newVotingEngine(t)

	cur, burnToken, votable, err := e.Tokens()
	require.NoError(t, err)
	assert.Equal(t, DefaultBurnToken, cur)
	assert.Equal(t, DefaultBurnToken, burnToken)
	assert.Equal(t, []Token{b3tr, DefaultBurnToken, vet}, votable)

	burnFor(t, e, alice, 10)
	require.NoError(t, e.Vote(alice, []Preference{{Token: "vet", Weight: pct(100)}}))
	require.NoError(t, e.Prepare(units(10)))
	drain(t, e, 1)

	h := lastRound(t, e)
	assert.Equal(t, "burn", h.Token)
	assert.Equal(t, "vet", h.Elected)
	cur, _, _, err = e.Tokens()
	require.NoError(t, err)
	assert.Equal(t, vet, cur)

	tallies, err := e.Tallies()
	require.NoError(t, err)
	assert.Empty(t, tallies, "tallies are cleared")
	v, err := e.VoteOf(alice)
	require.NoError(t, err)
	assert.Nil(t, v, "ballots are cleared")

	// the elected token weighs its full value and grants no power
	weight, err := e.Pledge(ctx, PledgeRequest{Owner: bob, Token: "vet", Qty: burn.Units(3, 18)})
	require.NoError(t, err)
	assert.Equal(t, units(3), weight)
	tt, err := e.Totals(bob)
	require.NoError(t, err)
	assert.Equal(t, "vet", tt.Token)
	assert.True(t, tt.Power.IsZero())

	_, err = e.Pledge(ctx, PledgeRequest{Owner: bob, Token: "b3tr", Qty: burn.Units(3, 18)})
	assert.True(t, burn.IsValidation(err), "only the elected token and the burn token")

	// nobody votes, the burn token is back
	require.NoError(t, e.Prepare(units(10)))
	drain(t, e, 1)
	assert.Equal(t, "burn", lastRound(t, e).Elected)
}

func TestElectedTokenNoLongerVotable(t *testing.T) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	defer db.Close()
	c := &clock{t: time.Unix(1_700_000_000, 0)}

	e := newEngineOn(t, db, c, WithRater(fixedRater{units(1)}), WithTokens(DefaultBurnToken, vet))
	burnFor(t, e, alice, 10)
	require.NoError(t, e.Vote(alice, []Preference{{Token: "vet", Weight: pct(100)}}))
	require.NoError(t, e.Prepare(units(10)))

	// restarted mid draw with vet delisted
	e = newEngineOn(t, db, c, WithRater(fixedRater{units(1)}))
	drain(t, e, 1)
	assert.Equal(t, "burn", lastRound(t, e).Elected)
	cur, _, _, err := e.Tokens()
	require.NoError(t, err)
	assert.Equal(t, DefaultBurnToken, cur)
}

func TestElectionIsWeighted(t *testing.T) {
	const rounds = 200
	e := newVotingEngine(t)

	elected := map[string]int{}
	for range rounds {
		burnFor(t, e, alice, 10)
		require.NoError(t, e.Vote(alice, []Preference{{Token: "vet", Weight: pct(25)}, {Token: "b3tr", Weight: pct(75)}}))
		require.NoError(t, e.Prepare(units(10)))
		drain(t, e, 10)

		h := lastRound(t, e)
		elected[h.Elected]++
		if h.Elected != "burn" {
			// the elected token can be pledged, the burn token always can
			_, err := e.Pledge(context.Background(), PledgeRequest{Owner: carol, Token: h.Elected, Qty: burn.Units(1, 18)})
			require.NoError(t, err)
		}
	}
	assert.Zero(t, elected["burn"])
	assert.InDelta(t, rounds/4, elected["vet"], 30)
	assert.Equal(t, rounds, elected["vet"]+elected["b3tr"])
}
