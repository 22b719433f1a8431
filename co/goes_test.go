// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package co

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGoes(t *testing.T) {
	var (
		g     Goes
		count atomic.Int32
	)
	ctx, cancel := context.WithCancel(context.Background())
	for range 4 {
		g.Go(func() { count.Add(1) })
	}
	g.GoCtx(ctx, func(ctx context.Context) {
		<-ctx.Done()
		count.Add(1)
	})

	select {
	case <-g.Done():
		t.Fatal("done before cancel")
	case <-time.After(10 * time.Millisecond):
	}
	cancel()
	<-g.Done()
	g.Wait()
	assert.Equal(t, int32(5), count.Load())
}
