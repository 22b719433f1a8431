// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger

import (
	"github.com/holiman/uint256"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/kv"
	"github.com/vechain/burnpool/record"
)

// Verify scans every position and checks that the shares add up to the recorded supplies
// and that an idle ledger holds no cursor. progress, if not nil, is called once per
// visited position.
func (l *Ledger) Verify(progress func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.loadInfo()
	if err != nil {
		return err
	}
	if info.Walk.Phase == PhaseIdle && !info.Walk.IsNone() {
		return burn.NewInvariantError("idle ledger holds cursor %x", info.Walk.Cursor)
	}

	sum, err := sumShares(l.positions, progress, func(val []byte) (*uint256.Int, error) {
		var p Position
		err := record.Decode(val, &p)
		return p.Share, err
	})
	if err != nil {
		return err
	}
	if !sum.Eq(info.TotalSupply) {
		return burn.NewInvariantError("share sum %v != total supply %v", sum.Dec(), info.TotalSupply.Dec())
	}
	sum, err = sumShares(l.kamikazes, progress, func(val []byte) (*uint256.Int, error) {
		var k Kamikaze
		err := record.Decode(val, &k)
		return k.Share, err
	})
	if err != nil {
		return err
	}
	if !sum.Eq(info.KamikazeSupply) {
		return burn.NewInvariantError("kamikaze share sum %v != kamikaze supply %v", sum.Dec(), info.KamikazeSupply.Dec())
	}
	return nil
}

func sumShares(s kv.Store, progress func(), decode func([]byte) (*uint256.Int, error)) (*uint256.Int, error) {
	var (
		sum    = burn.Zero()
		decErr error
	)
	err := s.Iterate(kv.Range{}, func(p kv.Pair) bool {
		var v *uint256.Int
		if v, decErr = decode(p.Value()); decErr != nil {
			return false
		}
		sum.Add(sum, burn.OrZero(v))
		if progress != nil {
			progress()
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return sum, decErr
}
