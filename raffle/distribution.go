// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package raffle

import (
	"github.com/holiman/uint256"

	"github.com/vechain/burnpool/burn"
)

// MaxSlots bounds the number of prizes of a single round. Rounds funded from the treasury
// are capped at MaxFund and leave the excess in the treasury for later rounds.
const MaxSlots = 4096

// MaxFund returns the largest fund PrizeDistribution splits with slotCap.
func MaxFund(slotCap *uint256.Int) *uint256.Int {
	limit, overflow := new(uint256.Int).MulOverflow(slotCap, uint256.NewInt(MaxSlots))
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return limit
}

// PrizeDistribution splits fund into a front-loaded list of prize slots.
// Every loop appends a slot and spreads min(remaining, slotCap) evenly over all slots created
// so far, so the first slot is the largest and the slot count grows with the fund.
// Division remainders go to the first slot, so the slots always add up to fund.
func PrizeDistribution(fund, slotCap *uint256.Int) ([]*uint256.Int, error) {
	if slotCap == nil || slotCap.IsZero() {
		return nil, burn.NewValidationError("slot cap must be positive")
	}
	if fund == nil || fund.IsZero() {
		return nil, nil
	}

	// n = ceil(fund / slotCap)
	n, rem := new(uint256.Int).DivMod(fund, slotCap, new(uint256.Int))
	if !rem.IsZero() {
		n.AddUint64(n, 1)
	}
	if !n.IsUint64() || n.Uint64() > MaxSlots {
		return nil, burn.NewValidationError("fund %s needs more than %d slots", burn.FormatUnits(fund, burn.RewardDecimals), MaxSlots)
	}
	slots := int(n.Uint64())

	// loop k (1 based) adds unit_k / k to slots 0..k-1, so slot i receives the sum of
	// the shares of every loop after it.
	var (
		dust   = burn.Zero()
		shares = make([]*uint256.Int, slots)
		left   = new(uint256.Int).Set(fund)
	)
	for k := 1; k <= slots; k++ {
		unit := burn.Min(left, slotCap)
		left.Sub(left, unit)
		share, r := new(uint256.Int).DivMod(unit, uint256.NewInt(uint64(k)), new(uint256.Int))
		shares[k-1] = share
		dust.Add(dust, r)
	}

	out := make([]*uint256.Int, slots)
	acc := burn.Zero()
	for i := slots - 1; i >= 0; i-- {
		acc.Add(acc, shares[i])
		out[i] = new(uint256.Int).Set(acc)
	}
	out[0].Add(out[0], dust)
	return out, nil
}
