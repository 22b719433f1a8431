// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package xrate serves exchange rates from a periodically refreshed cache.
//
// A Feed never fails a lookup: when the source is unavailable the last known rate is
// served, and without one the configured fallback.
package xrate

import (
	"context"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/cache"
	"github.com/vechain/burnpool/log"
	"github.com/vechain/burnpool/metrics"
)

var (
	logger        = log.WithContext("pkg", "xrate")
	metricLookups = metrics.LazyLoadCounterVec("xrate_lookups_count", []string{"result"})
)

const (
	defaultTTL     = 10 * time.Minute
	defaultTimeout = 10 * time.Second
	defaultSize    = 64
)

// Feed caches the rates of a Source.
type Feed struct {
	src      Source
	cache    *cache.LRU
	group    singleflight.Group
	fallback *uint256.Int
	timeout  time.Duration

	mu      sync.Mutex
	watched map[string]struct{}
	cron    *cron.Cron
}

type config struct {
	ttl      time.Duration
	timeout  time.Duration
	size     int
	fallback *uint256.Int
}

// Option configures a Feed.
type Option func(*config)

// WithTTL sets how long a fetched rate is served without asking the source again.
func WithTTL(ttl time.Duration) Option { return func(c *config) { c.ttl = ttl } }

// WithTimeout bounds every source call.
func WithTimeout(d time.Duration) Option { return func(c *config) { c.timeout = d } }

// WithFallback sets the rate served when the source never answered.
func WithFallback(rate *uint256.Int) Option {
	return func(c *config) { c.fallback = new(uint256.Int).Set(rate) }
}

// NewFeed returns a feed over src.
func NewFeed(src Source, opts ...Option) (*Feed, error) {
	cfg := config{
		ttl:      defaultTTL,
		timeout:  defaultTimeout,
		size:     defaultSize,
		fallback: burn.DefaultExchangeRate,
	}
	for _, o := range opts {
		o(&cfg)
	}
	c, err := cache.NewLRU(cfg.size, cfg.ttl)
	if err != nil {
		return nil, err
	}
	return &Feed{
		src:      src,
		cache:    c,
		fallback: cfg.fallback,
		timeout:  cfg.timeout,
		watched:  map[string]struct{}{},
	}, nil
}

// Rate returns the rate of pair. It implements the ledger and raffle Rater.
func (f *Feed) Rate(ctx context.Context, pair string) (*uint256.Int, error) {
	f.watch(pair)
	if v, ok := f.cache.Get(pair); ok {
		metricLookups().AddWithLabel(1, map[string]string{"result": "hit"})
		return new(uint256.Int).Set(v.(*uint256.Int)), nil
	}

	v, err := f.fetch(ctx, pair)
	if err == nil {
		metricLookups().AddWithLabel(1, map[string]string{"result": "fetched"})
		return v, nil
	}
	if stale, at, ok := f.cache.Stale(pair); ok {
		metricLookups().AddWithLabel(1, map[string]string{"result": "stale"})
		logger.Warn("serving stale rate", "pair", pair, "age", time.Since(at).Round(time.Second), "err", err)
		return new(uint256.Int).Set(stale.(*uint256.Int)), nil
	}
	metricLookups().AddWithLabel(1, map[string]string{"result": "fallback"})
	logger.Warn("serving fallback rate", "pair", pair, "rate", burn.FormatUnits(f.fallback, burn.RewardDecimals), "err", err)
	return new(uint256.Int).Set(f.fallback), nil
}

// fetch asks the source once per pair at a time and caches the answer.
func (f *Feed) fetch(ctx context.Context, pair string) (*uint256.Int, error) {
	v, err, _ := f.group.Do(pair, func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		rate, err := f.src.Rate(ctx, pair)
		if err != nil {
			return nil, err
		}
		if rate == nil || rate.IsZero() {
			return nil, burn.NewValidationError("zero rate for %q", pair)
		}
		f.cache.Add(pair, rate)
		return rate, nil
	})
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(v.(*uint256.Int)), nil
}

func (f *Feed) watch(pairs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range pairs {
		f.watched[p] = struct{}{}
	}
}

// Watch adds pairs to the refresh set.
func (f *Feed) Watch(pairs ...string) { f.watch(pairs...) }

// Refresh fetches every watched pair and returns how many were updated.
func (f *Feed) Refresh(ctx context.Context) int {
	f.mu.Lock()
	pairs := make([]string, 0, len(f.watched))
	for p := range f.watched {
		pairs = append(pairs, p)
	}
	f.mu.Unlock()

	updated := 0
	for _, p := range pairs {
		if _, err := f.fetch(ctx, p); err != nil {
			logger.Debug("rate refresh failed", "pair", p, "err", err)
			continue
		}
		updated++
	}
	if changed, hit, miss := f.cache.Stats().Stats(); changed {
		logger.Debug("rate cache", "hit", hit, "miss", miss)
	}
	return updated
}

// Start refreshes the watched pairs on the cron spec until Stop.
func (f *Feed) Start(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { f.Refresh(context.Background()) }); err != nil {
		return burn.NewValidationError("invalid refresh spec %q: %v", spec, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cron != nil {
		f.cron.Stop()
	}
	f.cron = c
	c.Start()
	logger.Info("rate refresher started", "spec", spec)
	return nil
}

// Stop ends the refresher and waits for a running refresh.
func (f *Feed) Stop() {
	f.mu.Lock()
	c := f.cron
	f.cron = nil
	f.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
