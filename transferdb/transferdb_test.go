// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package transferdb_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/transferdb"
	"github.com/vechain/burnpool/xfer"
)

func TestTransferDB(t *testing.T) {
	db, err := transferdb.NewMem()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	alice := burn.BytesToAddress([]byte("alice"))
	bob := burn.BytesToAddress([]byte("bob"))

	count := 100
	for i := range count {
		to := alice
		if i%4 == 0 {
			to = bob
		}
		index, err := db.Transfer(ctx, xfer.Transfer{Token: "reward", To: to, Amount: uint256.NewInt(uint64(i + 1))})
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), index)
	}

	all, err := db.Query(ctx, transferdb.Filter{Token: "reward"})
	require.NoError(t, err)
	assert.Len(t, all, count)

	toBob, err := db.Query(ctx, transferdb.Filter{To: &bob, Offset: 2, Limit: 3})
	require.NoError(t, err)
	require.Len(t, toBob, 3)
	assert.Equal(t, uint64(9), toBob[0].BlockIndex)
	assert.Equal(t, uint256.NewInt(9), toBob[0].Amount)
	assert.Equal(t, bob, toBob[0].To)

	total, err := db.Total(ctx, "reward")
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(5050), total)

	none, err := db.Query(ctx, transferdb.Filter{Token: "other"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReject(t *testing.T) {
	db, err := transferdb.New(filepath.Join(t.TempDir(), "transfers.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	boom := errors.New("ledger unavailable")
	db.Reject(func(xfer.Transfer) error { return boom })

	_, err = db.Transfer(ctx, xfer.Transfer{Token: "reward", Amount: uint256.NewInt(1)})
	assert.Equal(t, boom, err)

	db.Reject(nil)
	_, err = db.Transfer(ctx, xfer.Transfer{Token: "reward", Amount: uint256.NewInt(1)})
	require.NoError(t, err)

	_, err = db.Transfer(ctx, xfer.Transfer{Token: "reward", Amount: uint256.NewInt(0)})
	assert.Error(t, err)
}
