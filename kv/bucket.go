// Copyright (c) 2021 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"sync"

	"github.com/syndtr/goleveldb/leveldb/util"
)

// Bucket provides logical bucket for kv store.
type Bucket string

// NewGetter creates a bucket getter from the source getter.
func (b Bucket) NewGetter(src Getter) Getter {
	return &struct {
		GetFunc
		HasFunc
		IsNotFoundFunc
	}{
		func(key []byte) ([]byte, error) {
			return withKey(b, key, src.Get)
		},
		func(key []byte) (bool, error) {
			return withKey(b, key, src.Has)
		},
		src.IsNotFound,
	}
}

// NewPutter creates a bucket putter from the source putter.
func (b Bucket) NewPutter(src Putter) Putter {
	return &struct {
		PutFunc
		DeleteFunc
	}{
		func(key, val []byte) error {
			_, err := withKey(b, key, func(k []byte) (struct{}, error) {
				return struct{}{}, src.Put(k, val)
			})
			return err
		},
		func(key []byte) error {
			_, err := withKey(b, key, func(k []byte) (struct{}, error) {
				return struct{}{}, src.Delete(k)
			})
			return err
		},
	}
}

// NewGetPutter creates a bucket getter and putter from the source.
func (b Bucket) NewGetPutter(src GetPutter) GetPutter {
	return &struct {
		Getter
		Putter
	}{
		b.NewGetter(src),
		b.NewPutter(src),
	}
}

// NewStore creates a bucket store from the source store.
func (b Bucket) NewStore(src Store) Store {
	return &struct {
		Getter
		Putter
		BatchFunc
		IterateFunc
	}{
		b.NewGetter(src),
		b.NewPutter(src),
		func(fn func(Putter) error) error {
			return src.Batch(func(p Putter) error {
				return fn(b.NewPutter(p))
			})
		},
		func(rng Range, fn func(Pair) bool) error {
			// the key slices must outlive the iteration, so they are not pooled
			rng.Start = append([]byte(b), rng.Start...)
			if len(rng.Limit) == 0 {
				rng.Limit = util.BytesPrefix([]byte(b)).Limit
			} else {
				rng.Limit = append([]byte(b), rng.Limit...)
			}
			return src.Iterate(rng, func(pair Pair) bool {
				return fn(&struct {
					KeyFunc
					ValueFunc
				}{
					// strip the bucket
					func() []byte { return pair.Key()[len(b):] },
					pair.Value,
				})
			})
		},
	}
}

// withKey calls fn with key prefixed by the bucket. The prefixed key is only valid during fn.
func withKey[T any](b Bucket, key []byte, fn func([]byte) (T, error)) (T, error) {
	buf := bufPool.Get().(*buf)
	defer bufPool.Put(buf)
	buf.k = append(append(buf.k[:0], b...), key...)
	return fn(buf.k)
}

type buf struct {
	k []byte
}

var bufPool = sync.Pool{
	New: func() any {
		return &buf{}
	},
}
