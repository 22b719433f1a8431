// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package xrate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/burnpool/burn"
)

func rate(s string) *uint256.Int {
	v, err := burn.ParseUnits(s, burn.RewardDecimals)
	if err != nil {
		panic(err)
	}
	return v
}

func TestFeedCachesAndFallsBack(t *testing.T) {
	var (
		calls atomic.Int32
		fail  atomic.Bool
	)
	src := SourceFunc(func(_ context.Context, pair string) (*uint256.Int, error) {
		calls.Add(1)
		if fail.Load() {
			return nil, errors.New("unavailable")
		}
		return rate("2.5"), nil
	})
	f, err := NewFeed(src, WithTTL(time.Hour), WithFallback(rate("1")))
	require.NoError(t, err)

	ctx := context.Background()
	for range 3 {
		v, err := f.Rate(ctx, "icp/cycles")
		require.NoError(t, err)
		assert.Equal(t, rate("2.5"), v)
	}
	assert.Equal(t, int32(1), calls.Load())

	fail.Store(true)
	v, err := f.Rate(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, rate("1"), v, "fallback without a known rate")

	// a refresh failure keeps the cached value
	assert.Equal(t, 0, f.Refresh(ctx))
	v, err = f.Rate(ctx, "icp/cycles")
	require.NoError(t, err)
	assert.Equal(t, rate("2.5"), v)
}

func TestFeedServesStale(t *testing.T) {
	var fail atomic.Bool
	src := SourceFunc(func(context.Context, string) (*uint256.Int, error) {
		if fail.Load() {
			return nil, errors.New("unavailable")
		}
		return rate("3"), nil
	})
	f, err := NewFeed(src, WithTTL(time.Nanosecond))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = f.Rate(ctx, "a/b")
	require.NoError(t, err)
	fail.Store(true)
	time.Sleep(time.Millisecond)

	v, err := f.Rate(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, rate("3"), v)
}

func TestFeedDedupsConcurrentFetches(t *testing.T) {
	var (
		calls   atomic.Int32
		release = make(chan struct{})
	)
	src := SourceFunc(func(context.Context, string) (*uint256.Int, error) {
		calls.Add(1)
		<-release
		return rate("4"), nil
	})
	f, err := NewFeed(src)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.Rate(context.Background(), "x/y")
			assert.NoError(t, err)
			assert.Equal(t, rate("4"), v)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestHTTPSource(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/icp%2Fcycles" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"rate":"1.25"}`))
	}))
	defer ts.Close()

	src := NewHTTPSource(ts.URL+"/", time.Second)
	v, err := src.Rate(context.Background(), "icp/cycles")
	require.NoError(t, err)
	assert.Equal(t, rate("1.25"), v)

	_, err = src.Rate(context.Background(), "missing")
	assert.Error(t, err)
}

func TestParseStatic(t *testing.T) {
	s, err := ParseStatic("icp/cycles=1.5, usd/icp = 12")
	require.NoError(t, err)
	v, err := s.Rate(context.Background(), "usd/icp")
	require.NoError(t, err)
	assert.Equal(t, rate("12"), v)

	_, err = s.Rate(context.Background(), "nope")
	assert.Error(t, err)

	_, err = ParseStatic("broken")
	assert.Error(t, err)
}

func TestStartRejectsBadSpec(t *testing.T) {
	f, err := NewFeed(Static{})
	require.NoError(t, err)
	assert.True(t, burn.IsValidation(f.Start("not a spec")))
	require.NoError(t, f.Start("@every 1h"))
	f.Stop()
}
