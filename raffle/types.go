// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package raffle

import (
	"encoding/binary"
	"time"

	"github.com/holiman/uint256"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/cursor"
	"github.com/vechain/burnpool/selector"
)

// Phases of a round.
const (
	PhaseIdle uint8 = iota
	PhaseSelect
	PhaseEliminate
)

// PhaseName returns a short label for logs and metrics.
func PhaseName(phase uint8) string {
	switch phase {
	case PhaseIdle:
		return "idle"
	case PhaseSelect:
		return "select"
	case PhaseEliminate:
		return "eliminate"
	default:
		return "unknown"
	}
}

// Position is an entry of the current round. All amounts are in weight units.
type Position struct {
	Weight  *uint256.Int // 8 decimals
	Pledged *uint256.Int // value pledged through Pledge
	Power   *uint256.Int // voting power, the value of burn token pledges
}

func (p *Position) normalize() {
	p.Weight = burn.OrZero(p.Weight)
	p.Pledged = burn.OrZero(p.Pledged)
	p.Power = burn.OrZero(p.Power)
}

// Info is the raffle singleton.
type Info struct {
	Round         uint64
	Seed          burn.Bytes32
	RoundDelay    uint64 // nanoseconds, used without a calendar
	PrevRoundTime uint64 // unix nano
	TotalWeight   *uint256.Int
	TotalPledged  *uint256.Int
	TotalWon      *uint256.Int
	Walk          cursor.Continuation
	Stopped       bool
	Token         string // id of the token pledged at full value this round
}

func (i *Info) normalize() {
	i.TotalWeight = burn.OrZero(i.TotalWeight)
	i.TotalPledged = burn.OrZero(i.TotalPledged)
	i.TotalWon = burn.OrZero(i.TotalWon)
	i.Walk.Normalize()
}

func (i *Info) drawing() bool {
	return i.Walk.Phase != PhaseIdle
}

func (i *Info) prevRoundTime() time.Time {
	return time.Unix(0, int64(i.PrevRoundTime))
}

// Draw is the state of a round that is being drawn. It only exists while drawing.
type Draw struct {
	Fund      *uint256.Int
	Prizes    []*uint256.Int
	Matcher   selector.Matcher
	Winners   []Winner
	StartedAt uint64 // unix nano
}

func (d *Draw) normalize() {
	d.Fund = burn.OrZero(d.Fund)
	for i := range d.Prizes {
		d.Prizes[i] = burn.OrZero(d.Prizes[i])
	}
	d.Matcher.Normalize()
	for i := range d.Winners {
		d.Winners[i].Prize = burn.OrZero(d.Winners[i].Prize)
	}
}

// Winner is a matched prize slot.
type Winner struct {
	Owner   burn.Address `json:"owner"`
	Slot    uint32       `json:"slot"`
	Prize   *uint256.Int `json:"prize"`
	Claimed bool         `json:"claimed"`
}

// HistoryEntry is the record of a completed round.
type HistoryEntry struct {
	Round       uint64       `json:"round"`
	Time        uint64       `json:"time"` // unix nano
	Fund        *uint256.Int `json:"prizeFund"`
	TotalWeight *uint256.Int `json:"totalWeight"`
	Winners     []Winner     `json:"winners"`
	Token       string       `json:"token"`   // token of the round
	Elected     string       `json:"elected"` // token of the next round
}

func (h *HistoryEntry) normalize() {
	h.Fund = burn.OrZero(h.Fund)
	h.TotalWeight = burn.OrZero(h.TotalWeight)
	for i := range h.Winners {
		h.Winners[i].Prize = burn.OrZero(h.Winners[i].Prize)
	}
}

func roundKey(round uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, round)
}

// Totals is the raffle snapshot returned to callers.
type Totals struct {
	Round        uint64       `json:"currentRound"`
	TotalWeight  *uint256.Int `json:"totalWeight"`
	TotalPledged *uint256.Int `json:"totalPledged"`
	TotalWon     *uint256.Int `json:"totalWon"`
	Drawing      bool         `json:"drawing"`
	Phase        string       `json:"phase"`
	PrizeFund    *uint256.Int `json:"prizeFund,omitempty"`
	Prizes       int          `json:"prizes"`
	NextRoundAt  time.Time    `json:"nextRoundAt"`
	Stopped      bool         `json:"stopped"`
	Token        string       `json:"token"`

	Weight  *uint256.Int `json:"yourWeight"`
	Pledged *uint256.Int `json:"yourPledged"`
	Power   *uint256.Int `json:"yourPower"`
	Voted   bool         `json:"voted"`
}

// Entry is one page item of the current round.
type Entry struct {
	Owner   burn.Address `json:"owner"`
	Weight  *uint256.Int `json:"weight"`
	Pledged *uint256.Int `json:"pledged"`
}
