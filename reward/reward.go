// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package reward computes the pro-rata round reward, the per-round share fee and
// the decay schedule of reward and round delay.
package reward

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/vechain/burnpool/burn"
)

// Delta returns floor(roundReward * share / supply). roundReward keeps its own precision,
// share and supply must share theirs. A zero supply yields zero.
func Delta(roundReward, share, supply *uint256.Int) *uint256.Int {
	d, _ := burn.MulDiv(roundReward, share, supply)
	return d
}

// Charge deducts fee from share. Shares below the fee are not eligible and are returned unchanged.
func Charge(share, fee *uint256.Int) (*uint256.Int, bool) {
	if share.Lt(fee) {
		return share, false
	}
	return new(uint256.Int).Sub(share, fee), true
}

// Eligible reports whether share pays the round fee.
func Eligible(share, fee *uint256.Int) bool {
	return !share.Lt(fee)
}

// Half returns floor(v / 2).
func Half(v *uint256.Int) *uint256.Int {
	return new(uint256.Int).Rsh(v, 1)
}

// Schedule is the decay applied when a round completes.
type Schedule struct {
	HalvingPeriod uint64        // rounds between two decay steps
	Floor         *uint256.Int  // the reward is never halved below this
	DelayCeiling  time.Duration // the delay is never doubled above this
}

// DefaultSchedule returns the protocol schedule.
func DefaultSchedule() Schedule {
	return Schedule{
		HalvingPeriod: burn.PoSRoundsPerHalving,
		Floor:         new(uint256.Int).Set(burn.RoundRewardFloor),
		DelayCeiling:  burn.PoSRoundDelayLimit,
	}
}

// Apply returns the reward and delay in effect after round (the new round index) starts.
// Every HalvingPeriod rounds the reward halves, clamped at Floor. Once the reward sits at
// the floor, the delay doubles instead, clamped at DelayCeiling.
func (s Schedule) Apply(round uint64, reward *uint256.Int, delay time.Duration) (*uint256.Int, time.Duration) {
	next := new(uint256.Int).Set(reward)
	if s.HalvingPeriod == 0 || round%s.HalvingPeriod != 0 {
		return next, delay
	}
	if next.Gt(s.Floor) {
		next = Half(next)
		if next.Lt(s.Floor) {
			next.Set(s.Floor)
		}
		return next, delay
	}
	if delay < s.DelayCeiling {
		delay = min(delay*2, s.DelayCeiling)
	}
	return next, delay
}
