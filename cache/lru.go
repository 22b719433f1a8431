// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// LRU is a size bounded cache whose entries expire after ttl. Expired entries are still
// returned by Stale, so callers can fall back to the last known value.
type LRU struct {
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
	stats Stats
}

type entry struct {
	val      any
	storedAt time.Time
}

// NewLRU create a LRU cache instance.
// maxSize should be > 0, or an error returned. A zero ttl never expires.
func NewLRU(maxSize int, ttl time.Duration) (*LRU, error) {
	cache, err := lru.New(maxSize)
	if err != nil {
		return nil, err
	}
	return &LRU{cache: cache, ttl: ttl, now: time.Now}, nil
}

// Add stores val under key.
func (l *LRU) Add(key, val any) {
	l.cache.Add(key, &entry{val, l.now()})
}

// Get returns the value of key if present and not expired.
func (l *LRU) Get(key any) (any, bool) {
	e, ok := l.lookup(key)
	if !ok || l.expired(e) {
		l.stats.Miss()
		return nil, false
	}
	l.stats.Hit()
	return e.val, true
}

// Stale returns the value of key regardless of its age, and when it was stored.
func (l *LRU) Stale(key any) (any, time.Time, bool) {
	e, ok := l.lookup(key)
	if !ok {
		return nil, time.Time{}, false
	}
	return e.val, e.storedAt, true
}

// Keys returns the keys, oldest first.
func (l *LRU) Keys() []any {
	return l.cache.Keys()
}

// Len returns the number of cached entries including expired ones.
func (l *LRU) Len() int {
	return l.cache.Len()
}

// Stats returns the hit statistics of Get.
func (l *LRU) Stats() *Stats {
	return &l.stats
}

func (l *LRU) lookup(key any) (*entry, bool) {
	v, ok := l.cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

func (l *LRU) expired(e *entry) bool {
	return l.ttl > 0 && l.now().Sub(e.storedAt) >= l.ttl
}

// Loader defines loader to load value.
type Loader func(key any) (any, error)

// GetOrLoad first try to get from cache, do load if missed or expired.
func (l *LRU) GetOrLoad(key any, loader Loader) (any, error) {
	if v, ok := l.Get(key); ok {
		return v, nil
	}
	v, err := loader(key)
	if err != nil {
		return nil, err
	}

	l.Add(key, v)
	return v, nil
}
