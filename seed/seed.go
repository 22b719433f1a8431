// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package seed implements the domain tagged sha256 hash chain used for every draw.
// The chain is reseeded once from external entropy and advanced locally after that.
// It is deterministic: anyone who knows the state can predict the next values.
package seed

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/holiman/uint256"

	"github.com/vechain/burnpool/burn"
)

var (
	u32Max  = uint256.NewInt(0xffffffff)
	u128Max = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
)

// Chain is a hash chain over a 32 byte state.
type Chain struct {
	domain []byte
	state  burn.Bytes32
}

// NewChain resumes a chain of the given domain from state.
func NewChain(domain []byte, state burn.Bytes32) *Chain {
	return &Chain{domain: domain, state: state}
}

// State returns the current state, to be persisted.
func (c *Chain) State() burn.Bytes32 {
	return c.state
}

// Advance replaces the state with sha256(domain || state).
func (c *Chain) Advance() burn.Bytes32 {
	h := sha256.New()
	h.Write(c.domain)
	h.Write(c.state[:])
	copy(c.state[:], h.Sum(nil))
	return c.state
}

// NextUint64 advances the chain and reads the first 8 bytes little endian.
func (c *Chain) NextUint64() uint64 {
	c.Advance()
	return binary.LittleEndian.Uint64(c.state[:8])
}

// NextFraction advances the chain and maps the first 16 bytes, read as a little endian
// u128, onto [0, 1] with 18 decimals.
func (c *Chain) NextFraction() *uint256.Int {
	c.Advance()
	var be [16]byte
	for i := range be {
		be[i] = c.state[15-i]
	}
	v := new(uint256.Int).SetBytes(be[:])
	f, _ := burn.MulDiv(v, burn.FractionOne, u128Max)
	return f
}

// Fractions returns n values in [0, 1] with 18 decimals, eight per digest: each is a
// little endian u32 slice of the state normalized by the u32 maximum. The chain is
// advanced before the first slice of every digest.
func (c *Chain) Fractions(n int) []*uint256.Int {
	out := make([]*uint256.Int, 0, n)
	for i := range n {
		idx := i % 8
		if idx == 0 {
			c.Advance()
		}
		v := binary.LittleEndian.Uint32(c.state[idx*4 : idx*4+4])
		f, _ := burn.MulDiv(uint256.NewInt(uint64(v)), burn.FractionOne, u32Max)
		out = append(out, f)
	}
	return out
}
