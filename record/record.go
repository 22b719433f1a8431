// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package record stores rlp encoded values in a kv store.
package record

import (
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/vechain/burnpool/kv"
)

// Get decodes the value stored at key into v. It returns false if the key is absent.
func Get(g kv.Getter, key []byte, v any) (bool, error) {
	data, err := g.Get(key)
	if err != nil {
		if g.IsNotFound(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "get %x", key)
	}
	if err := rlp.DecodeBytes(data, v); err != nil {
		return false, errors.Wrapf(err, "decode %x", key)
	}
	return true, nil
}

// Decode decodes a raw value, typically one visited by an iterator.
func Decode(data []byte, v any) error {
	return errors.Wrap(rlp.DecodeBytes(data, v), "decode record")
}

// Put encodes v and stores it at key.
func Put(p kv.Putter, key []byte, v any) error {
	data, err := rlp.EncodeToBytes(v)
	if err != nil {
		return errors.Wrapf(err, "encode %x", key)
	}
	return p.Put(key, data)
}
