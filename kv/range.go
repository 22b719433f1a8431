// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

// After returns the smallest key strictly greater than key.
func After(key []byte) []byte {
	next := make([]byte, len(key)+1)
	copy(next, key)
	return next
}

// RangeAfter returns the range of keys strictly after cursor.
// An empty cursor yields the full range.
func RangeAfter(cursor []byte) Range {
	if len(cursor) == 0 {
		return Range{}
	}
	return Range{Start: After(cursor)}
}
