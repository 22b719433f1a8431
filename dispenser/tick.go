// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package dispenser

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/cursor"
	"github.com/vechain/burnpool/events"
	"github.com/vechain/burnpool/kv"
	"github.com/vechain/burnpool/record"
	"github.com/vechain/burnpool/seed"
)

// pool split, 8 decimals
var (
	splitOne   = burn.Pow10(8)
	splitHalf  = uint256.NewInt(5000_0000)
	splitThird = uint256.NewInt(3333_3333)
)

// Name returns the machine name.
func (d *Dispenser) Name() string { return Name }

// NextDelay returns how long the scheduler may sleep before the next RunBatch has work.
func (d *Dispenser) NextDelay() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, err := d.loadInfo()
	if err != nil {
		logger.Warn("failed to load info", "err", err)
		return burn.DispenserTickDelay
	}
	if info.Stopped {
		return time.Duration(info.TickDelay)
	}
	if info.ticking() {
		return 0
	}
	return max(info.nextTickAt().Sub(d.now()), 0)
}

// RunBatch performs one bounded step of the tick and reports whether more work is
// immediately pending.
func (d *Dispenser) RunBatch(n int) (bool, error) {
	if n <= 0 {
		n = burn.DefaultBatchSize
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	info, err := d.loadInfo()
	if err != nil {
		return false, err
	}
	if info.Stopped {
		return false, nil
	}
	if info.Seed.IsZero() {
		return false, errNotSeeded
	}

	phase := info.Walk.Phase
	start := time.Now()
	defer func() {
		labels := map[string]string{"machine": Name, "phase": PhaseName(phase)}
		metricSteps().AddWithLabel(1, labels)
		metricStepDuration().ObserveWithLabels(time.Since(start).Milliseconds(), labels)
	}()

	var after []*events.Event
	switch phase {
	case PhaseIdle:
		if d.now().Before(info.nextTickAt()) {
			return false, nil
		}
		info.Walk.Reset(PhaseCollectCommon)
		logger.Debug("tick started", "tick", info.Tick)
		err = record.Put(d.info, infoKey, info)
	case PhaseCollectCommon, PhaseCollectKamikaze, PhaseCollectBonfire:
		err = d.collectStep(info, n)
	case PhaseActivate:
		err = d.activateStep(info, n)
	case PhaseSelect:
		err = d.selectStep(info, n)
	case PhaseCommon:
		err = d.shareStep(info, n, d.common, info.CommonWeight, PhaseKamikaze)
	case PhaseKamikaze:
		after, err = d.kamikazeStep(info, n)
	case PhaseBonfire:
		err = d.shareStep(info, n, d.bonfire, info.BonfireWeight, PhaseSelect)
	case PhaseComplete:
		err = d.completeStep(info, n)
	case PhaseFinish:
		after, err = d.finishStep(info, n)
	default:
		err = burn.NewInvariantError("unknown dispenser phase %d", phase)
	}
	if err != nil {
		return false, err
	}
	for _, ev := range after {
		d.feed.Publish(ev)
	}
	return info.ticking(), nil
}

// collectStep copies one page of the current pool source into the tick snapshot.
func (d *Dispenser) collectStep(info *Info, n int) error {
	idx := int(info.Walk.Phase - PhaseCollectCommon)
	buckets := [3]kv.Bucket{commonBucket, kamikazeBucket, bonfireBucket}
	weights := [3]*uint256.Int{info.CommonWeight, info.KamikazeWeight, info.BonfireWeight}

	var members []Member
	if src := d.sources[idx]; src != nil {
		var start *burn.Address
		if !info.Walk.IsNone() {
			a := burn.BytesToAddress(info.Walk.Cursor)
			start = &a
		}
		var err error
		if members, err = src.Members(start, n); err != nil {
			return &burn.ExternalCallError{Op: "pool members", Cause: err}
		}
	}

	return d.db.Batch(func(p kv.Putter) error {
		bp := buckets[idx].NewPutter(p)
		for _, m := range members {
			w := burn.OrZero(m.Weight)
			if w.IsZero() {
				continue
			}
			if err := record.Put(bp, m.Owner.Bytes(), w); err != nil {
				return err
			}
			weights[idx].Add(weights[idx], w)
		}
		if len(members) > 0 {
			info.Walk.Advance(members[len(members)-1].Owner.Bytes())
		}
		if len(members) < n {
			info.Walk.Reset(info.Walk.Phase + 1)
		}
		return d.putInfo(p, info)
	})
}

// activateStep counts down the start delay of scheduled distributions and moves the due
// ones to the active set.
func (d *Dispenser) activateStep(info *Info, n int) error {
	var (
		counted   []Distribution
		activated []uint64
	)
	res, err := cursor.Walk(d.scheduled, info.Walk.Cursor, n, func(_, val []byte) (bool, error) {
		var dist Distribution
		if err := record.Decode(val, &dist); err != nil {
			return false, err
		}
		dist.normalize()
		if dist.Start.Kind != AtTickDelay {
			return false, nil
		}
		if dist.Start.Delay > 0 {
			dist.Start.Delay--
		}
		if dist.Start.Delay == 0 {
			dist.Status = InProgress
			activated = append(activated, dist.ID)
		}
		counted = append(counted, dist)
		return false, nil
	})
	if err != nil {
		return err
	}

	err = d.db.Batch(func(p kv.Putter) error {
		sp, ap := scheduledBucket.NewPutter(p), activeBucket.NewPutter(p)
		for i := range counted {
			dist := &counted[i]
			key := idKey(dist.ID)
			if dist.Status != InProgress {
				if err := record.Put(sp, key, dist); err != nil {
					return err
				}
				continue
			}
			if err := sp.Delete(key); err != nil {
				return err
			}
			if err := record.Put(ap, key, dist); err != nil {
				return err
			}
		}
		if res.Last != nil {
			info.Walk.Advance(res.Last)
		}
		if res.Exhausted {
			info.Walk.Reset(PhaseSelect)
			info.HasCurrent = false
			info.Current = 0
		}
		return d.putInfo(p, info)
	})
	if err != nil {
		return err
	}
	for _, id := range activated {
		logger.Info("distribution started", "id", id, "tick", info.Tick)
	}
	metricActive().Add(int64(len(activated)))
	return nil
}

// selectStep finds the next active distribution that still releases tokens this tick.
func (d *Dispenser) selectStep(info *Info, n int) error {
	var from []byte
	if info.HasCurrent {
		from = idKey(info.Current)
	}
	var (
		picked *Distribution
		last   *Distribution
	)
	res, err := cursor.Walk(d.active, from, n, func(_, val []byte) (bool, error) {
		var dist Distribution
		if err := record.Decode(val, &dist); err != nil {
			return false, err
		}
		dist.normalize()
		last = &dist
		if dist.tickReward(info.TokenFee) != nil {
			picked = &dist
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	switch {
	case picked != nil:
		info.Current, info.HasCurrent = picked.ID, true
		info.TickReward = picked.tickReward(info.TokenFee)
		info.Walk.Reset(PhaseCommon)
	case res.Exhausted:
		info.HasCurrent = false
		info.TickReward = burn.Zero()
		info.Walk.Reset(PhaseComplete)
	case last != nil:
		info.Current, info.HasCurrent = last.ID, true
	}
	return record.Put(d.info, infoKey, info)
}

// portion returns the part of the current tick reward a pool receives.
func (d *Dispenser) portion(info *Info, bonfire bool) *uint256.Int {
	split := splitHalf
	if bonfire {
		split = splitThird
	}
	v, _ := burn.MulDiv(info.TickReward, split, splitOne)
	return v
}

type payout struct {
	owner  burn.Address
	amount *uint256.Int
}

// shareStep credits one page of a pool pro-rata with the current distribution and moves to
// next once the pool is exhausted.
func (d *Dispenser) shareStep(info *Info, n int, pool kv.Store, total *uint256.Int, next uint8) error {
	dist, found, err := d.getDistribution(d.active, info.Current)
	if err != nil {
		return err
	}
	if !found {
		return burn.NewInvariantError("active distribution %d is missing", info.Current)
	}
	if info.Walk.Phase == PhaseBonfire && !dist.Bonfire {
		info.Walk.Reset(next)
		return record.Put(d.info, infoKey, info)
	}

	part := d.portion(info, dist.Bonfire)
	var (
		payouts []payout
		paid    = burn.Zero()
	)
	res, err := cursor.Walk(pool, info.Walk.Cursor, n, func(key, val []byte) (bool, error) {
		w := burn.Zero()
		if err := record.Decode(val, w); err != nil {
			return false, err
		}
		amount, ok := burn.MulDiv(part, w, total)
		if !ok {
			return false, burn.NewInvariantError("pool weight overflow")
		}
		if amount.IsZero() {
			return false, nil
		}
		paid.Add(paid, amount)
		payouts = append(payouts, payout{burn.BytesToAddress(key), amount})
		return false, nil
	})
	if err != nil {
		return err
	}
	if sum := new(uint256.Int).Add(info.Walk.Aggregate, paid); sum.Gt(part) {
		return burn.NewInvariantError("pool credits %s exceed the pool portion %s", sum, part)
	}
	if dist.LeftoverQty.Lt(paid) {
		return burn.NewInvariantError("pool credits %s exceed the leftover of distribution %d", paid, dist.ID)
	}

	return d.db.Batch(func(p kv.Putter) error {
		if err := d.credit(p, payouts); err != nil {
			return err
		}
		dist.LeftoverQty.Sub(dist.LeftoverQty, paid)
		if err := record.Put(activeBucket.NewPutter(p), idKey(dist.ID), dist); err != nil {
			return err
		}
		info.Walk.Aggregate.Add(info.Walk.Aggregate, paid)
		info.TotalDistributed.Add(info.TotalDistributed, paid)
		info.TickDistributed.Add(info.TickDistributed, paid)
		if res.Last != nil {
			info.Walk.Advance(res.Last)
		}
		if res.Exhausted {
			info.Walk.Reset(next)
		}
		return d.putInfo(p, info)
	})
}

// credit adds the payouts to the unclaimed balances within the batch p.
func (d *Dispenser) credit(p kv.Putter, payouts []payout) error {
	stage := kv.NewStage(d.unclaimed)
	for _, po := range payouts {
		have, err := d.getUnclaimed(stage, po.owner)
		if err != nil {
			return err
		}
		if err := record.Put(stage, po.owner.Bytes(), have.Add(have, po.amount)); err != nil {
			return err
		}
	}
	return stage.Flush(unclaimedBucket.NewPutter(p))
}

// kamikazeStep walks the kamikaze snapshot circularly until the armed draw finds the
// single winner of the kamikaze portion.
func (d *Dispenser) kamikazeStep(info *Info, n int) ([]*events.Event, error) {
	if info.KamikazeWeight.IsZero() {
		info.Walk.Reset(PhaseBonfire)
		return nil, record.Put(d.info, infoKey, info)
	}
	if !info.Draw.Active {
		chain := seed.NewChain(burn.DispenserSeedDomain, info.Seed)
		info.Draw.Start(chain.NextFraction(), info.KamikazeWeight)
		info.Seed = chain.State()
	}

	var winner *burn.Address
	res, err := cursor.WalkCircular(d.kamikaze, info.Walk.Cursor, n, nil, func(key, val []byte) (bool, error) {
		w := burn.Zero()
		if err := record.Decode(val, w); err != nil {
			return false, err
		}
		counter, won := info.Draw.Add(info.Walk.Aggregate, w)
		info.Walk.Aggregate = counter
		if won {
			a := burn.BytesToAddress(key)
			winner = &a
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if res.Wraps > 0 {
		metricWraps().AddWithLabel(int64(res.Wraps), map[string]string{"machine": Name})
	}
	if res.Last != nil {
		info.Walk.Advance(res.Last)
	}
	if res.Empty {
		return nil, burn.NewInvariantError("kamikaze snapshot is empty with weight %s", info.KamikazeWeight)
	}
	if winner == nil {
		return nil, record.Put(d.info, infoKey, info)
	}

	dist, found, err := d.getDistribution(d.active, info.Current)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, burn.NewInvariantError("active distribution %d is missing", info.Current)
	}
	prize := d.portion(info, dist.Bonfire)
	if dist.LeftoverQty.Lt(prize) {
		return nil, burn.NewInvariantError("kamikaze prize %s exceeds the leftover of distribution %d", prize, dist.ID)
	}
	err = d.db.Batch(func(p kv.Putter) error {
		if err := d.credit(p, []payout{{*winner, prize}}); err != nil {
			return err
		}
		dist.LeftoverQty.Sub(dist.LeftoverQty, prize)
		if err := record.Put(activeBucket.NewPutter(p), idKey(dist.ID), dist); err != nil {
			return err
		}
		info.TotalDistributed.Add(info.TotalDistributed, prize)
		info.TickDistributed.Add(info.TickDistributed, prize)
		info.Draw.Clear()
		info.Walk.Reset(PhaseBonfire)
		return d.putInfo(p, info)
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("kamikaze winner drawn", "tick", info.Tick, "distribution", dist.ID, "winner", winner, "prize", prize)
	return []*events.Event{d.event(events.WinnerDrawn, info.Tick, winner, prize)}, nil
}

// completeStep moves active distributions that can no longer release a tick reward to the
// past set.
func (d *Dispenser) completeStep(info *Info, n int) error {
	var done []Distribution
	res, err := cursor.Walk(d.active, info.Walk.Cursor, n, func(_, val []byte) (bool, error) {
		var dist Distribution
		if err := record.Decode(val, &dist); err != nil {
			return false, err
		}
		dist.normalize()
		if dist.tickReward(info.TokenFee) == nil {
			dist.Status = Completed
			done = append(done, dist)
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	err = d.db.Batch(func(p kv.Putter) error {
		ap, pp := activeBucket.NewPutter(p), pastBucket.NewPutter(p)
		for i := range done {
			key := idKey(done[i].ID)
			if err := ap.Delete(key); err != nil {
				return err
			}
			if err := record.Put(pp, key, &done[i]); err != nil {
				return err
			}
		}
		if res.Last != nil {
			info.Walk.Advance(res.Last)
		}
		if res.Exhausted {
			info.Walk.Reset(PhaseFinish)
		}
		return d.putInfo(p, info)
	})
	if err != nil {
		return err
	}
	for _, dist := range done {
		logger.Info("distribution completed", "id", dist.ID, "leftover", dist.LeftoverQty)
	}
	metricActive().Add(-int64(len(done)))
	return nil
}

// finishStep clears the tick snapshots and returns the dispenser to idle.
func (d *Dispenser) finishStep(info *Info, n int) ([]*events.Event, error) {
	var (
		buckets = [3]kv.Bucket{commonBucket, kamikazeBucket, bonfireBucket}
		stale   [3][][]byte
		budget  = n
		empty   = true
	)
	for i, s := range []kv.Store{d.common, d.kamikaze, d.bonfire} {
		res, err := cursor.Walk(s, nil, budget, func(key, _ []byte) (bool, error) {
			stale[i] = append(stale[i], append([]byte(nil), key...))
			return false, nil
		})
		if err != nil {
			return nil, err
		}
		budget -= res.Visited
		if !res.Exhausted {
			empty = false
			break
		}
	}

	var completed *events.Event
	err := d.db.Batch(func(p kv.Putter) error {
		for i, keys := range stale {
			bp := buckets[i].NewPutter(p)
			for _, key := range keys {
				if err := bp.Delete(key); err != nil {
					return err
				}
			}
		}
		if empty {
			completed = d.event(events.RoundCompleted, info.Tick, nil, info.TickDistributed)
			chain := seed.NewChain(burn.DispenserSeedDomain, info.Seed)
			chain.Advance()
			info.Seed = chain.State()
			info.Tick++
			info.PrevTickTime = uint64(d.now().UnixNano())
			info.CommonWeight = burn.Zero()
			info.KamikazeWeight = burn.Zero()
			info.BonfireWeight = burn.Zero()
			info.TickDistributed = burn.Zero()
			info.TickReward = burn.Zero()
			info.Current, info.HasCurrent = 0, false
			info.Walk.Reset(PhaseIdle)
		}
		return d.putInfo(p, info)
	})
	if err != nil || completed == nil {
		return nil, err
	}
	metricRounds().AddWithLabel(1, map[string]string{"machine": Name})
	logger.Info("tick completed", "tick", completed.Round, "distributed", completed.Amount)
	return []*events.Event{completed}, nil
}
