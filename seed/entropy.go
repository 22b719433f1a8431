// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package seed

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/log"
)

var logger = log.WithContext("pkg", "seed")

// Entropy supplies the initial 32 random bytes of a chain.
type Entropy interface {
	RandomBytes(ctx context.Context) (burn.Bytes32, error)
}

// EntropyFunc adapts a function to Entropy.
type EntropyFunc func(ctx context.Context) (burn.Bytes32, error)

func (f EntropyFunc) RandomBytes(ctx context.Context) (burn.Bytes32, error) { return f(ctx) }

// SystemEntropy reads the operating system CSPRNG.
type SystemEntropy struct{}

func (SystemEntropy) RandomBytes(ctx context.Context) (b burn.Bytes32, err error) {
	if err := ctx.Err(); err != nil {
		return b, err
	}
	if _, err := rand.Read(b[:]); err != nil {
		return b, errors.Wrap(err, "read system entropy")
	}
	return b, nil
}

// DefaultBackOff retries for up to a minute.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = time.Minute
	return b
}

// Fetch asks src for the initial seed, retrying with b until it answers or ctx is done.
// An all zero answer is treated as a failed call.
func Fetch(ctx context.Context, src Entropy, b backoff.BackOff) (burn.Bytes32, error) {
	var out burn.Bytes32
	op := func() error {
		v, err := src.RandomBytes(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if v.IsZero() {
			return errors.New("entropy source returned zero bytes")
		}
		out = v
		return nil
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("entropy fetch failed, retrying", "err", err, "in", next)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return burn.Bytes32{}, &burn.ExternalCallError{Op: "random bytes", Cause: err}
	}
	return out, nil
}
