// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/cursor"
	"github.com/vechain/burnpool/selector"
)

// Phases of a round.
const (
	PhaseIdle uint8 = iota
	PhaseKamikaze
	PhaseHarakiri
	PhasePoS
)

// PhaseName returns a short label for logs and metrics.
func PhaseName(phase uint8) string {
	switch phase {
	case PhaseIdle:
		return "idle"
	case PhaseKamikaze:
		return "kamikaze"
	case PhaseHarakiri:
		return "harakiri"
	case PhasePoS:
		return "pos"
	default:
		return "unknown"
	}
}

// Position is a common pool account.
type Position struct {
	Share  *uint256.Int // 12 decimals
	Reward *uint256.Int // unclaimed, 8 decimals
}

func (p *Position) normalize() {
	p.Share = burn.OrZero(p.Share)
	p.Reward = burn.OrZero(p.Reward)
}

// Kamikaze is a time boxed bonus pool account.
type Kamikaze struct {
	Share     *uint256.Int
	CreatedAt uint64 // unix nano
}

// Info is the ledger singleton.
type Info struct {
	TotalSupply    *uint256.Int // sum of common shares
	KamikazeSupply *uint256.Int // sum of kamikaze shares
	RoundSupply    *uint256.Int // supply snapshot the current pro-rata walk divides by
	TotalBurned    *uint256.Int // asset staked, 8 decimals
	TotalMinted    *uint256.Int // reward claimed, 8 decimals
	RoundReward    *uint256.Int
	Round          uint64
	RoundDelay     uint64 // nanoseconds
	LastRoundEnd   uint64 // unix nano
	Seed           burn.Bytes32
	Walk           cursor.Continuation // the phase of the round and where it stands
	Draw           selector.Draw
	KamikazeRan    bool // the kamikaze pool took half of this round's reward
	Stopped        bool
}

func (i *Info) normalize() {
	i.TotalSupply = burn.OrZero(i.TotalSupply)
	i.KamikazeSupply = burn.OrZero(i.KamikazeSupply)
	i.RoundSupply = burn.OrZero(i.RoundSupply)
	i.TotalBurned = burn.OrZero(i.TotalBurned)
	i.TotalMinted = burn.OrZero(i.TotalMinted)
	i.RoundReward = burn.OrZero(i.RoundReward)
	i.Walk.Normalize()
	i.Draw.Normalize()
}

func (i *Info) delay() time.Duration {
	return time.Duration(i.RoundDelay)
}

// nextRoundAt returns when the idle ledger starts the next round.
func (i *Info) nextRoundAt() time.Time {
	return time.Unix(0, int64(i.LastRoundEnd)).Add(i.delay())
}

// Totals is the aggregate snapshot returned to callers, with the caller's own position.
type Totals struct {
	TotalSupply    *uint256.Int  `json:"totalShareSupply"`
	KamikazeSupply *uint256.Int  `json:"totalKamikazeSupply"`
	TotalBurned    *uint256.Int  `json:"totalBurned"`
	TotalMinted    *uint256.Int  `json:"totalMinted"`
	RoundReward    *uint256.Int  `json:"currentRoundReward"`
	Fee            *uint256.Int  `json:"currentShareFee"`
	Round          uint64        `json:"currentRound"`
	RoundDelay     time.Duration `json:"roundDelay"`
	Phase          string        `json:"phase"`
	Cursor         *burn.Address `json:"cursor"`
	Positions      int           `json:"positions"`
	Kamikazes      int           `json:"kamikazes"`
	Stopped        bool          `json:"stopped"`

	Share             *uint256.Int `json:"yourShare"`
	Reward            *uint256.Int `json:"yourUnclaimedReward"`
	KamikazeShare     *uint256.Int `json:"yourKamikazeShare"`
	KamikazeCreatedAt *time.Time   `json:"yourKamikazeCreatedAt"`
	KamikazeWins      uint64       `json:"yourKamikazeWins"`
}

// Entry is one page item of the common pool.
type Entry struct {
	Owner        burn.Address `json:"owner"`
	Share        *uint256.Int `json:"share"`
	Reward       *uint256.Int `json:"unclaimedReward"`
	Eligible     bool         `json:"eligible"`
	KamikazeWins uint64       `json:"kamikazeWins"`
}

// KamikazeEntry is one page item of the kamikaze pool.
type KamikazeEntry struct {
	Owner     burn.Address `json:"owner"`
	Share     *uint256.Int `json:"share"`
	CreatedAt time.Time    `json:"createdAt"`
	Wins      uint64       `json:"wins"`
}
