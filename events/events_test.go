// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeed(t *testing.T) {
	var feed Feed

	ch := make(chan *Event, 4)
	sub := feed.Subscribe(ch)

	n := feed.Publish(&Event{Machine: "ledger", Kind: RoundCompleted, Round: 1})
	assert.Equal(t, 1, n)
	ev := <-ch
	assert.Equal(t, RoundCompleted, ev.Kind)
	assert.Equal(t, uint64(1), ev.Round)

	sub.Unsubscribe()
	assert.Equal(t, 0, feed.Publish(&Event{Kind: WinnerDrawn}))

	sub2 := feed.Subscribe(make(chan *Event, 1))
	feed.Close()
	_, ok := <-sub2.Err()
	assert.False(t, ok, "closing the feed ends subscriptions")
}

func TestNilFeed(t *testing.T) {
	var feed *Feed
	assert.Equal(t, 0, feed.Publish(&Event{Kind: Claimed}))
}
