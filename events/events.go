// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package events fans out state machine notifications to subscribers.
package events

import (
	"github.com/ethereum/go-ethereum/event"

	"github.com/vechain/burnpool/burn"
)

// Kind names what happened.
type Kind string

const (
	RoundCompleted  Kind = "roundCompleted"
	WinnerDrawn     Kind = "winnerDrawn"
	PositionExpired Kind = "positionExpired"
	Claimed         Kind = "claimed"
	ClaimReverted   Kind = "claimReverted"
	Stopped         Kind = "stopped"
	Resumed         Kind = "resumed"
)

// Event is published after the batch that caused it has been committed.
type Event struct {
	Machine string        `json:"machine"`
	Kind    Kind          `json:"kind"`
	Round   uint64        `json:"round"`
	Owner   *burn.Address `json:"owner,omitempty"`
	Amount  string        `json:"amount,omitempty"` // decimal, with the precision of the quantity
	Token   string        `json:"token,omitempty"` // token elected for the next round
	Time    int64         `json:"time"`             // unix seconds
}

// Feed delivers events to every subscribed channel. A nil *Feed drops events.
type Feed struct {
	feed  event.Feed
	scope event.SubscriptionScope
}

// Subscribe registers ch. Sends block until ch is read, so subscribers must keep up
// or use a buffered channel.
func (f *Feed) Subscribe(ch chan *Event) event.Subscription {
	return f.scope.Track(f.feed.Subscribe(ch))
}

// Publish sends ev to all subscribers and returns how many received it.
func (f *Feed) Publish(ev *Event) int {
	if f == nil {
		return 0
	}
	return f.feed.Send(ev)
}

// Close unsubscribes everyone.
func (f *Feed) Close() {
	f.scope.Close()
}
