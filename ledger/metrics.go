// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger

import "github.com/vechain/burnpool/metrics"

var (
	metricSteps         = metrics.LazyLoadCounterVec("batch_steps_count", []string{"machine", "phase"})
	metricStepDuration  = metrics.LazyLoadHistogramVec("batch_step_duration_ms", []string{"machine", "phase"}, metrics.BucketStepMillis)
	metricRounds        = metrics.LazyLoadCounterVec("rounds_count", []string{"machine"})
	metricWraps         = metrics.LazyLoadCounterVec("walk_wraps_count", []string{"machine"})
	metricClaims        = metrics.LazyLoadCounterVec("claims_count", []string{"machine", "op"})
	metricStakes        = metrics.LazyLoadCounterVec("ledger_stakes_count", []string{"kamikaze"})
	metricTotalSupply   = metrics.LazyLoadGauge("ledger_total_supply_shares")
	metricExpiredShares = metrics.LazyLoadCounter("ledger_kamikaze_expired_count")
)
