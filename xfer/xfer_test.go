// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package xfer

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/burnpool/burn"
)

func TestSettle(t *testing.T) {
	to := burn.BytesToAddress([]byte{1})
	req := Transfer{Token: "reward", To: to, Amount: uint256.NewInt(42)}

	var reverts int
	prepare := func() (Transfer, error) { return req, nil }
	revert := func(Transfer) error { reverts++; return nil }

	ok := TransfererFunc(func(_ context.Context, got Transfer) (uint64, error) {
		assert.Equal(t, req, got)
		return 7, nil
	})
	rc, err := Settle(context.Background(), ok, prepare, revert)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), rc.BlockIndex)
	assert.Zero(t, reverts)

	boom := errors.New("ledger unavailable")
	failing := TransfererFunc(func(context.Context, Transfer) (uint64, error) { return 0, boom })
	_, err = Settle(context.Background(), failing, prepare, revert)
	assert.True(t, burn.IsExternalCall(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, reverts, "revert runs exactly once")
}

func TestSettlePrepareFails(t *testing.T) {
	invalid := burn.NewValidationError("nothing to claim")
	called := false
	tr := TransfererFunc(func(context.Context, Transfer) (uint64, error) { called = true; return 0, nil })

	_, err := Settle(context.Background(), tr,
		func() (Transfer, error) { return Transfer{}, invalid },
		func(Transfer) error { t.Fatal("revert without debit"); return nil },
	)
	assert.Equal(t, invalid, err)
	assert.False(t, called)
}

func TestSettleRevertFails(t *testing.T) {
	failing := TransfererFunc(func(context.Context, Transfer) (uint64, error) { return 0, errors.New("timeout") })
	_, err := Settle(context.Background(), failing,
		func() (Transfer, error) { return Transfer{Amount: uint256.NewInt(1)}, nil },
		func(Transfer) error { return errors.New("store closed") },
	)
	require.True(t, burn.IsExternalCall(err))
	assert.Contains(t, err.Error(), "store closed")
}
