// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package selector implements weighted random selection over an ordered walk.
//
// Thresholds are fractions in [0, 1] with 18 decimals. An entry owns the slice of the
// cumulative weight line that ends at its running total, so an entry is selected by
// threshold t once cumulative * 1e18 >= t * total. The slice of an entry is (from, to]:
// a threshold on a boundary goes to the entry that ends there and a zero threshold goes
// to the first entry with weight, so the ends of [0, 1] are both reachable. All comparisons
// are exact integer arithmetic against the total weight snapshot taken when the draw started.
package selector

import (
	"github.com/holiman/uint256"

	"github.com/vechain/burnpool/burn"
)

// reached reports whether cumulative * 1e18 >= threshold * total.
func reached(cumulative, threshold, total *uint256.Int) bool {
	lhs := new(uint256.Int).Mul(cumulative, burn.FractionOne)
	rhs := new(uint256.Int).Mul(threshold, total)
	return !lhs.Lt(rhs)
}

// Draw is a single winner selection that can be resumed across batch steps.
// The running weight counter lives in the owner's continuation aggregate.
type Draw struct {
	Active    bool
	Threshold *uint256.Int
	Total     *uint256.Int
}

// Start arms the draw with threshold against the total weight.
func (d *Draw) Start(threshold, total *uint256.Int) {
	d.Active = true
	d.Threshold = new(uint256.Int).Set(threshold)
	d.Total = new(uint256.Int).Set(total)
}

// Add accumulates weight onto counter and reports whether the entry wins.
// Entries without weight never win.
func (d *Draw) Add(counter, weight *uint256.Int) (*uint256.Int, bool) {
	next := new(uint256.Int).Add(burn.OrZero(counter), weight)
	if weight.IsZero() {
		return next, false
	}
	return next, reached(next, d.Threshold, d.Total)
}

// Clear resets the draw after a winner was found.
func (d *Draw) Clear() {
	*d = Draw{}
	d.Normalize()
}

// Normalize replaces nil amounts after decoding.
func (d *Draw) Normalize() {
	d.Threshold = burn.OrZero(d.Threshold)
	d.Total = burn.OrZero(d.Total)
}

// Ticket is a pre-drawn threshold bound to a prize slot.
type Ticket struct {
	Slot      uint32
	Threshold *uint256.Int
}

// Matcher matches many pre-drawn tickets in one ordered walk. The cumulative weight
// before the next entry lives in the owner's continuation aggregate.
type Matcher struct {
	Pending []Ticket
	Total   *uint256.Int
}

// NewMatcher binds thresholds[i] to slot i.
func NewMatcher(thresholds []*uint256.Int, total *uint256.Int) Matcher {
	m := Matcher{
		Pending: make([]Ticket, 0, len(thresholds)),
		Total:   new(uint256.Int).Set(total),
	}
	for i, t := range thresholds {
		m.Pending = append(m.Pending, Ticket{Slot: uint32(i), Threshold: new(uint256.Int).Set(t)})
	}
	return m
}

// Visit advances from the cumulative weight over an entry of the given weight.
// It returns the new cumulative weight and the slots the entry wins; one entry
// may win several slots.
func (m *Matcher) Visit(from, weight *uint256.Int) (*uint256.Int, []uint32) {
	to := new(uint256.Int).Add(burn.OrZero(from), weight)
	if weight.IsZero() {
		return to, nil
	}
	var (
		won  []uint32
		left = m.Pending[:0]
	)
	for _, t := range m.Pending {
		if reached(to, t.Threshold, m.Total) {
			won = append(won, t.Slot)
		} else {
			left = append(left, t)
		}
	}
	m.Pending = left
	return to, won
}

// Done reports whether every ticket has been matched.
func (m *Matcher) Done() bool {
	return len(m.Pending) == 0
}

// Normalize replaces nil amounts after decoding.
func (m *Matcher) Normalize() {
	m.Total = burn.OrZero(m.Total)
	for i := range m.Pending {
		m.Pending[i].Threshold = burn.OrZero(m.Pending[i].Threshold)
	}
}
