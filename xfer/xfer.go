// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package xfer settles claims against an external value transfer.
//
// A claim is debited first (prepare), then the transfer is attempted once. When the
// transfer fails the paired revert runs exactly once and the failure is reported as
// an *burn.ExternalCallError. There are no retries.
package xfer

import (
	"context"
	"time"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/log"
	"github.com/vechain/burnpool/metrics"
)

var (
	logger         = log.WithContext("pkg", "xfer")
	metricSettled  = metrics.LazyLoadCounterVec("transfers_count", []string{"token", "status"})
	metricDuration = metrics.LazyLoadHistogram("transfer_duration_ms", metrics.BucketStepMillis)
)

// Transfer is one outgoing value transfer.
type Transfer struct {
	Token  string       `json:"token"`
	To     burn.Address `json:"to"`
	Amount *uint256.Int `json:"amount"`
	Memo   string       `json:"memo,omitempty"`
}

// Transferer delivers transfers and returns the index the transfer was recorded at.
type Transferer interface {
	Transfer(ctx context.Context, t Transfer) (uint64, error)
}

// TransfererFunc implements Transferer.
type TransfererFunc func(ctx context.Context, t Transfer) (uint64, error)

// Transfer implements Transferer.
func (f TransfererFunc) Transfer(ctx context.Context, t Transfer) (uint64, error) { return f(ctx, t) }

// Receipt is a delivered transfer.
type Receipt struct {
	Transfer
	BlockIndex uint64 `json:"blockIndex"`
}

// Settle debits through prepare, delivers the prepared transfer and reverts the debit
// if the delivery fails. A prepare error is returned as is.
func Settle(ctx context.Context, t Transferer, prepare func() (Transfer, error), revert func(Transfer) error) (*Receipt, error) {
	req, err := prepare()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	index, err := t.Transfer(ctx, req)
	metricDuration().Observe(time.Since(start).Milliseconds())
	if err == nil {
		metricSettled().AddWithLabel(1, map[string]string{"token": req.Token, "status": "delivered"})
		logger.Debug("transfer delivered", "token", req.Token, "to", req.To, "amount", req.Amount, "index", index)
		return &Receipt{Transfer: req, BlockIndex: index}, nil
	}

	metricSettled().AddWithLabel(1, map[string]string{"token": req.Token, "status": "reverted"})
	logger.Warn("transfer failed, reverting", "token", req.Token, "to", req.To, "amount", req.Amount, "err", err)
	if rerr := revert(req); rerr != nil {
		// the debit is lost until an operator restores it
		logger.Error("failed to revert debit", "token", req.Token, "to", req.To, "amount", req.Amount, "err", rerr)
		err = errors.WithMessagef(err, "revert failed: %v", rerr)
	}
	return nil, &burn.ExternalCallError{Op: "transfer " + req.Token, Cause: err}
}
