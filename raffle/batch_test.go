// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package raffle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/kv"
)

func dump(t *testing.T, s kv.Store) map[string]string {
	out := make(map[string]string)
	require.NoError(t, s.Iterate(kv.Range{}, func(p kv.Pair) bool {
		out[string(p.Key())] = string(p.Value())
		return true
	}))
	return out
}

func TestInconsistentStepCommitsNothing(t *testing.T) {
	enter := func(e *Engine) {
		require.NoError(t, e.Enter(alice, units(1)))
		require.NoError(t, e.Enter(bob, units(3)))
		require.NoError(t, e.Enter(carol, units(2)))
		require.NoError(t, e.Prepare(units(30)))
	}

	want, _ := newEngine(t)
	enter(want)
	drain(t, want, 1)
	wantRound := lastRound(t, want)

	e, _ := newEngine(t)
	enter(e)
	entries := dump(t, e.positions)
	require.Len(t, entries, 3)

	// the frozen entries vanish while the round is drawn
	for k := range entries {
		require.NoError(t, e.positions.Delete([]byte(k)))
	}
	infoBefore := dump(t, e.info)
	for range 2 {
		_, err := e.RunBatch(1)
		require.Error(t, err)
		assert.True(t, burn.IsInvariant(err), "%v", err)
		assert.Equal(t, infoBefore, dump(t, e.info), "info or draw committed")
		assert.Empty(t, dump(t, e.positions))
		assert.Empty(t, dump(t, e.history))
	}

	// restored entries are drawn from the committed continuation
	for k, v := range entries {
		require.NoError(t, e.positions.Put([]byte(k), []byte(v)))
	}
	drain(t, e, 1)
	got := lastRound(t, e)
	assert.Equal(t, wantRound.Fund, got.Fund)
	assert.Equal(t, wantRound.Winners, got.Winners)
	assert.Equal(t, wantRound.TotalWeight, got.TotalWeight)
}
