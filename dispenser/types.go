// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package dispenser

import (
	"encoding/binary"
	"time"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/cursor"
	"github.com/vechain/burnpool/selector"
)

// Phases of a tick.
const (
	PhaseIdle uint8 = iota
	PhaseCollectCommon
	PhaseCollectKamikaze
	PhaseCollectBonfire
	PhaseActivate
	PhaseSelect
	PhaseCommon
	PhaseKamikaze
	PhaseBonfire
	PhaseComplete
	PhaseFinish
)

var phaseNames = [...]string{
	"idle",
	"collect-common",
	"collect-kamikaze",
	"collect-bonfire",
	"activate",
	"select",
	"common",
	"kamikaze",
	"bonfire",
	"complete",
	"finish",
}

// PhaseName returns a short label for logs and metrics.
func PhaseName(phase uint8) string {
	if int(phase) < len(phaseNames) {
		return phaseNames[phase]
	}
	return "unknown"
}

// Status of a distribution.
type Status uint8

const (
	Scheduled Status = iota
	InProgress
	Canceled
	Completed
)

func (s Status) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	case InProgress:
		return "inProgress"
	case Canceled:
		return "canceled"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	v, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStatus parses the String form of a status.
func ParseStatus(v string) (Status, error) {
	for s := Scheduled; s <= Completed; s++ {
		if s.String() == v {
			return s, nil
		}
	}
	return 0, errors.Errorf("unknown distribution status %q", v)
}

// Start conditions.
const (
	AtTickDelay uint8 = iota // start after Delay ticks
	AtTrigger                // wait for Trigger
)

// Start decides when a scheduled distribution becomes active.
type Start struct {
	Kind  uint8  `json:"kind"`
	Delay uint64 `json:"delay"`
}

// Distribution releases a token quantity linearly over a number of ticks.
type Distribution struct {
	ID            uint64       `json:"id"`
	Owner         burn.Address `json:"owner"`
	Name          string       `json:"name"`
	Start         Start        `json:"startCondition"`
	Status        Status       `json:"status"`
	DurationTicks uint64       `json:"durationTicks"`
	TickReward    *uint256.Int `json:"curTickReward"`
	ScheduledQty  *uint256.Int `json:"scheduledQty"`
	LeftoverQty   *uint256.Int `json:"leftoverQty"`
	Hidden        bool         `json:"hidden"`
	Bonfire       bool         `json:"distributeToBonfire"`
}

func (d *Distribution) normalize() {
	d.TickReward = burn.OrZero(d.TickReward)
	d.ScheduledQty = burn.OrZero(d.ScheduledQty)
	d.LeftoverQty = burn.OrZero(d.LeftoverQty)
}

// tickReward returns what the distribution releases this tick, or nil once fewer than
// fee tokens are left.
func (d *Distribution) tickReward(fee *uint256.Int) *uint256.Int {
	if d.LeftoverQty.Lt(fee) {
		return nil
	}
	return burn.Min(d.LeftoverQty, d.TickReward)
}

// hide zeroes the amounts of a hidden distribution until it starts.
func (d *Distribution) hide() {
	if d.Status == Scheduled && d.Hidden {
		d.TickReward = burn.Zero()
		d.ScheduledQty = burn.Zero()
		d.LeftoverQty = burn.Zero()
	}
}

func idKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, id)
}

// Info is the dispenser singleton.
type Info struct {
	Seed             burn.Bytes32
	TokenFee         *uint256.Int
	TotalDistributed *uint256.Int
	TickDistributed  *uint256.Int
	PrevTickTime     uint64 // unix nano
	TickDelay        uint64 // nanoseconds
	Tick             uint64
	NextID           uint64
	CommonWeight     *uint256.Int
	KamikazeWeight   *uint256.Int
	BonfireWeight    *uint256.Int
	Current          uint64 // distribution being dispensed
	HasCurrent       bool
	TickReward       *uint256.Int // what Current releases this tick
	Walk             cursor.Continuation
	Draw             selector.Draw
	Stopped          bool
}

func (i *Info) normalize() {
	i.TokenFee = burn.OrZero(i.TokenFee)
	i.TotalDistributed = burn.OrZero(i.TotalDistributed)
	i.TickDistributed = burn.OrZero(i.TickDistributed)
	i.CommonWeight = burn.OrZero(i.CommonWeight)
	i.KamikazeWeight = burn.OrZero(i.KamikazeWeight)
	i.BonfireWeight = burn.OrZero(i.BonfireWeight)
	i.TickReward = burn.OrZero(i.TickReward)
	i.Walk.Normalize()
	i.Draw.Normalize()
}

func (i *Info) ticking() bool {
	return i.Walk.Phase != PhaseIdle
}

func (i *Info) nextTickAt() time.Time {
	return time.Unix(0, int64(i.PrevTickTime)).Add(time.Duration(i.TickDelay))
}

// Member is a pool member with its weight.
type Member struct {
	Owner  burn.Address
	Weight *uint256.Int
}

// Totals is the dispenser snapshot returned to callers.
type Totals struct {
	TokenFee         *uint256.Int  `json:"tokenFee"`
	TotalDistributed *uint256.Int  `json:"totalDistributed"`
	PrevTickTime     time.Time     `json:"prevTickTimestamp"`
	TickDelay        time.Duration `json:"tickDelay"`
	Tick             uint64        `json:"curTick"`
	Distributing     bool          `json:"isDistributing"`
	Phase            string        `json:"phase"`
	Stopped          bool          `json:"isStopped"`

	Unclaimed *uint256.Int `json:"yourUnclaimed"`
}
