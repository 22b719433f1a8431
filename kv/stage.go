// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import "errors"

var errStagedDelete = errors.New("kv: staged delete")

// Stage buffers writes on top of a getter so that a batch step can read its own
// writes before they are committed. Flush replays the writes in order.
type Stage struct {
	src   Getter
	dirty map[string][]byte
	keys  []string
}

var _ GetPutter = (*Stage)(nil)

// NewStage creates a stage over src.
func NewStage(src Getter) *Stage {
	return &Stage{
		src:   src,
		dirty: make(map[string][]byte),
	}
}

func (s *Stage) Get(key []byte) ([]byte, error) {
	if val, ok := s.dirty[string(key)]; ok {
		if val == nil {
			return nil, errStagedDelete
		}
		return val, nil
	}
	return s.src.Get(key)
}

func (s *Stage) Has(key []byte) (bool, error) {
	if val, ok := s.dirty[string(key)]; ok {
		return val != nil, nil
	}
	return s.src.Has(key)
}

func (s *Stage) IsNotFound(err error) bool {
	return err == errStagedDelete || s.src.IsNotFound(err)
}

func (s *Stage) Put(key, val []byte) error {
	if val == nil {
		val = []byte{}
	}
	s.set(string(key), append([]byte(nil), val...))
	return nil
}

func (s *Stage) Delete(key []byte) error {
	s.set(string(key), nil)
	return nil
}

func (s *Stage) set(key string, val []byte) {
	if _, ok := s.dirty[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.dirty[key] = val
}

// Len returns the number of distinct keys written.
func (s *Stage) Len() int {
	return len(s.keys)
}

// Flush replays the staged writes into p in first-write order.
func (s *Stage) Flush(p Putter) error {
	for _, key := range s.keys {
		val := s.dirty[key]
		var err error
		if val == nil {
			err = p.Delete([]byte(key))
		} else {
			err = p.Put([]byte(key), val)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
