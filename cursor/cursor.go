// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package cursor implements the persisted continuation of resumable batch walks.
package cursor

import (
	"github.com/holiman/uint256"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/kv"
)

// Continuation is the resumption point of a state machine: the last key processed,
// a partial aggregate carried between steps and the phase marker.
// It is stored inside the owning info record, so it is only ever committed
// together with the mutation it describes.
type Continuation struct {
	Cursor    []byte
	Aggregate *uint256.Int
	Phase     uint8
}

// New returns an empty continuation at the given phase.
func New(phase uint8) Continuation {
	return Continuation{Aggregate: burn.Zero(), Phase: phase}
}

// IsNone reports whether there is no resumption key.
func (c *Continuation) IsNone() bool {
	return len(c.Cursor) == 0
}

// Advance records key as the last processed one.
func (c *Continuation) Advance(key []byte) {
	c.Cursor = append([]byte(nil), key...)
}

// Reset clears the cursor and the aggregate and moves to phase.
func (c *Continuation) Reset(phase uint8) {
	c.Cursor = nil
	c.Aggregate = burn.Zero()
	c.Phase = phase
}

// Normalize replaces a nil aggregate after decoding.
func (c *Continuation) Normalize() {
	c.Aggregate = burn.OrZero(c.Aggregate)
	if len(c.Cursor) == 0 {
		c.Cursor = nil
	}
}

// VisitFunc is called for every entry a walk visits. key and val are only valid
// for the duration of the call. Returning stop ends the walk at this entry.
type VisitFunc func(key, val []byte) (stop bool, err error)

// Result describes where a walk ended.
type Result struct {
	Last      []byte // last visited key, nil if nothing was visited
	Visited   int
	Exhausted bool // the end of the collection was reached
	Stopped   bool // the visitor ended the walk
	Wraps     int  // times a circular walk restarted from the first key
	Empty     bool // a circular walk found no entries at all
}

// Walk visits up to limit entries strictly after cursor in key order.
// Exhausted is only reported when no entry remains after the last visited one.
func Walk(src kv.Store, cursor []byte, limit int, fn VisitFunc) (Result, error) {
	var (
		res    Result
		visErr error
		more   bool
	)
	err := src.Iterate(kv.RangeAfter(cursor), func(pair kv.Pair) bool {
		if res.Visited >= limit {
			more = true
			return false
		}
		res.Visited++
		res.Last = append(res.Last[:0], pair.Key()...)
		stop, err := fn(pair.Key(), pair.Value())
		if err != nil {
			visErr = err
			return false
		}
		if stop {
			res.Stopped = true
			return false
		}
		return true
	})
	if err != nil {
		return res, err
	}
	if visErr != nil {
		return res, visErr
	}
	res.Exhausted = !more && !res.Stopped
	return res, nil
}

// WalkCircular visits up to limit entries after cursor, restarting from the first key
// whenever the end is reached, until the visitor stops or the budget is spent.
// onWrap, if set, runs before every restart.
func WalkCircular(src kv.Store, cursor []byte, limit int, onWrap func(), fn VisitFunc) (Result, error) {
	res, err := Walk(src, cursor, limit, fn)
	if err != nil {
		return res, err
	}
	fromStart := len(cursor) == 0
	for res.Exhausted && res.Visited < limit {
		if fromStart && res.Visited == 0 {
			res.Empty = true
			return res, nil
		}
		if onWrap != nil {
			onWrap()
		}
		pass, err := Walk(src, nil, limit-res.Visited, fn)
		if err != nil {
			return res, err
		}
		if pass.Visited == 0 {
			res.Empty = res.Visited == 0
			res.Exhausted = false
			return res, nil
		}
		res.Wraps++
		res.Visited += pass.Visited
		res.Last = pass.Last
		res.Stopped = pass.Stopped
		res.Exhausted = pass.Exhausted
		fromStart = true
	}
	res.Exhausted = false
	return res, nil
}
