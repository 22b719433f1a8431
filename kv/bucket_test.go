// Copyright (c) 2021 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNotFound = errors.New("not found")

type mem map[string]string

func (m mem) Get(k []byte) ([]byte, error) {
	if v, ok := m[string(k)]; ok {
		return []byte(v), nil
	}
	return nil, errNotFound
}

func (m mem) Has(k []byte) (bool, error) {
	_, ok := m[string(k)]
	return ok, nil
}

func (m mem) Put(k, v []byte) error {
	m[string(k)] = string(v)
	return nil
}

func (m mem) Delete(k []byte) error {
	delete(m, string(k))
	return nil
}

func (m mem) IsNotFound(err error) bool {
	return err == errNotFound
}

func TestBucketGetter(t *testing.T) {
	// li and lp share the l prefix the way the ledger buckets do
	m := mem{"li": "info", "lp\x01": "alice", "lp\x02": "bob"}

	tests := []struct {
		b    Bucket
		key  string
		want string
	}{
		{"", "li", "info"},
		{"l", "i", "info"},
		{"li", "", "info"},
		{"lp", "\x01", "alice"},
		{"lp", "\x02", "bob"},
		{"lp", "\x03", ""},
		{"lk", "\x01", ""},
	}
	for _, tt := range tests {
		g := tt.b.NewGetter(m)

		got, err := g.Get([]byte(tt.key))
		has, _ := g.Has([]byte(tt.key))
		if tt.want == "" {
			assert.True(t, g.IsNotFound(err), "%q/%q", tt.b, tt.key)
			assert.False(t, has)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(got), "%q/%q", tt.b, tt.key)
		assert.True(t, has)
	}
}

func TestBucket_Putter(t *testing.T) {
	m := mem{}
	p := Bucket("p").NewPutter(m)

	require.NoError(t, p.Put([]byte("1"), []byte("v1")))
	assert.Equal(t, mem{"p1": "v1"}, m)

	require.NoError(t, p.Delete([]byte("1")))
	assert.Empty(t, m)
}

func TestStage(t *testing.T) {
	m := mem{"a": "1", "b": "2"}
	s := NewStage(m)

	require.NoError(t, s.Put([]byte("c"), []byte("3")))
	require.NoError(t, s.Delete([]byte("a")))
	require.NoError(t, s.Put([]byte("b"), []byte("22")))

	_, err := s.Get([]byte("a"))
	assert.True(t, s.IsNotFound(err))
	_, err = s.Get([]byte("x"))
	assert.True(t, s.IsNotFound(err))

	v, err := s.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, "22", string(v))

	has, _ := s.Has([]byte("c"))
	assert.True(t, has)
	assert.Equal(t, 3, s.Len())

	// nothing reaches the source before flush
	assert.Equal(t, mem{"a": "1", "b": "2"}, m)

	require.NoError(t, s.Flush(m))
	assert.Equal(t, mem{"b": "22", "c": "3"}, m)
}

func TestRangeAfter(t *testing.T) {
	assert.Equal(t, Range{}, RangeAfter(nil))
	assert.Equal(t, []byte{1, 2, 0}, RangeAfter([]byte{1, 2}).Start)
}
