// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/record"
)

func TestVerify(t *testing.T) {
	l, c := newLedger(t)
	require.NoError(t, l.Mint(alice, shares(100)))
	require.NoError(t, l.Mint(bob, shares(50)))
	require.NoError(t, l.MintKamikaze(kate, shares(10)))

	visited := 0
	require.NoError(t, l.Verify(func() { visited++ }))
	assert.Equal(t, 3, visited)

	runRound(t, l, c, 1)
	require.NoError(t, l.Verify(nil))

	// a position written behind the ledger's back breaks the supply sum
	require.NoError(t, record.Put(l.positions, carol.Bytes(), &Position{Share: shares(1), Reward: burn.Zero()}))
	err := l.Verify(nil)
	assert.True(t, burn.IsInvariant(err), "got %v", err)
}
