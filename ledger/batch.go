// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/cursor"
	"github.com/vechain/burnpool/events"
	"github.com/vechain/burnpool/kv"
	"github.com/vechain/burnpool/record"
	"github.com/vechain/burnpool/reward"
	"github.com/vechain/burnpool/seed"
)

// Name returns the machine name.
func (l *Ledger) Name() string { return Name }

// NextDelay returns how long the scheduler may sleep before the next RunBatch has work.
func (l *Ledger) NextDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.loadInfo()
	if err != nil {
		logger.Warn("failed to load info", "err", err)
		return burn.PoSRoundDelay
	}
	if info.Stopped {
		return info.delay()
	}
	if info.Walk.Phase != PhaseIdle {
		return 0
	}
	return max(info.nextRoundAt().Sub(l.now()), 0)
}

// RunBatch performs one bounded step of the round: at most n entries are visited and the
// step is committed atomically together with the continuation. It reports whether more
// work is immediately pending.
func (l *Ledger) RunBatch(n int) (bool, error) {
	if n <= 0 {
		n = burn.DefaultBatchSize
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.loadInfo()
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
		if !l.startRound(info) {
			return false, nil
		}
		err = record.Put(l.info, infoKey, info)
	case PhaseKamikaze:
		after, err = l.kamikazeStep(info, n)
	case PhaseHarakiri:
		after, err = l.harakiriStep(info, n)
	case PhasePoS:
		after, err = l.posStep(info, n)
	default:
		err = burn.NewInvariantError("unknown ledger phase %d", phase)
	}
	if err != nil {
		return false, err
	}
	for _, ev := range after {
		l.feed.Publish(ev)
	}
	metricTotalSupply().Set(int64(info.TotalSupply.Uint64() / 1e12))
	return info.Walk.Phase != PhaseIdle, nil
}

// startRound moves an idle ledger into the first phase of a round once the delay elapsed.
func (l *Ledger) startRound(info *Info) bool {
	if l.now().Before(info.nextRoundAt()) {
		return false
	}
	if info.KamikazeSupply.IsZero() {
		l.enterPoS(info)
		return true
	}
	chain := seed.NewChain(burn.LedgerSeedDomain, info.Seed)
	info.Draw.Start(chain.NextFraction(), info.KamikazeSupply)
	info.Seed = chain.State()
	info.KamikazeRan = true
	info.Walk.Reset(PhaseKamikaze)
	logger.Debug("round started", "round", info.Round, "kamikaze", true)
	return true
}

func (l *Ledger) enterPoS(info *Info) {
	info.Walk.Reset(PhasePoS)
	info.RoundSupply = new(uint256.Int).Set(info.TotalSupply)
}

// kamikazeStep walks the kamikaze pool circularly until the armed draw finds its winner,
// who is credited half the round reward on the common position.
func (l *Ledger) kamikazeStep(info *Info, n int) ([]*events.Event, error) {
	var winner *burn.Address
	res, err := cursor.WalkCircular(l.kamikazes, info.Walk.Cursor, n, nil, func(key, val []byte) (bool, error) {
		var k Kamikaze
		if err := record.Decode(val, &k); err != nil {
			return false, err
		}
		counter, won := info.Draw.Add(info.Walk.Aggregate, burn.OrZero(k.Share))
		info.Walk.Aggregate = counter
		if won {
			w := burn.BytesToAddress(key)
			winner = &w
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if res.Wraps > 0 {
		metricWraps().AddWithLabel(int64(res.Wraps), map[string]string{"machine": Name})
		logger.Debug("kamikaze walk wrapped", "round", info.Round, "wraps", res.Wraps)
	}
	if res.Last != nil {
		info.Walk.Advance(res.Last)
	}

	if res.Empty {
		// every kamikaze position left before a winner was found, the common pool keeps the full reward
		info.KamikazeRan = false
		info.Draw.Clear()
		info.Walk.Reset(PhaseHarakiri)
		return nil, record.Put(l.info, infoKey, info)
	}
	if winner == nil {
		return nil, record.Put(l.info, infoKey, info)
	}

	prize := reward.Half(info.RoundReward)
	pos, _, err := l.getPosition(l.positions, *winner)
	if err != nil {
		return nil, err
	}
	wins, err := l.getWins(l.wins, *winner)
	if err != nil {
		return nil, err
	}
	err = l.db.Batch(func(p kv.Putter) error {
		pos.Reward.Add(pos.Reward, prize)
		if err := record.Put(positionBucket.NewPutter(p), winner.Bytes(), pos); err != nil {
			return err
		}
		if err := record.Put(winsBucket.NewPutter(p), winner.Bytes(), wins+1); err != nil {
			return err
		}
		info.Draw.Clear()
		info.Walk.Reset(PhaseHarakiri)
		return record.Put(infoBucket.NewPutter(p), infoKey, info)
	})
	if err != nil {
		return nil, err
	}
	logger.Info("kamikaze winner drawn", "round", info.Round, "winner", winner, "prize", burn.FormatUnits(prize, burn.RewardDecimals))
	return []*events.Event{l.event(events.WinnerDrawn, info.Round, winner, prize)}, nil
}

type expired struct {
	owner burn.Address
	share *uint256.Int
}

// harakiriStep removes kamikaze positions that outlived the lifespan.
func (l *Ledger) harakiriStep(info *Info, n int) ([]*events.Event, error) {
	now := l.now()
	var gone []expired
	res, err := cursor.Walk(l.kamikazes, info.Walk.Cursor, n, func(key, val []byte) (bool, error) {
		var k Kamikaze
		if err := record.Decode(val, &k); err != nil {
			return false, err
		}
		if now.Sub(time.Unix(0, int64(k.CreatedAt))) >= l.lifespan {
			gone = append(gone, expired{burn.BytesToAddress(key), burn.OrZero(k.Share)})
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	err = l.db.Batch(func(p kv.Putter) error {
		kp := kamikazeBucket.NewPutter(p)
		for _, g := range gone {
			if info.KamikazeSupply.Lt(g.share) {
				return burn.NewInvariantError("kamikaze share %s exceeds supply %s", g.share, info.KamikazeSupply)
			}
			info.KamikazeSupply.Sub(info.KamikazeSupply, g.share)
			info.Walk.Aggregate.Add(info.Walk.Aggregate, g.share)
			if err := kp.Delete(g.owner.Bytes()); err != nil {
				return err
			}
		}
		if res.Last != nil {
			info.Walk.Advance(res.Last)
		}
		if res.Exhausted {
			if !info.Walk.Aggregate.IsZero() {
				logger.Debug("kamikaze positions expired", "round", info.Round, "shares", burn.FormatUnits(info.Walk.Aggregate, burn.ShareDecimals))
			}
			l.enterPoS(info)
		}
		return record.Put(infoBucket.NewPutter(p), infoKey, info)
	})
	if err != nil {
		return nil, err
	}

	out := make([]*events.Event, 0, len(gone))
	for i := range gone {
		out = append(out, l.event(events.PositionExpired, info.Round, &gone[i].owner, gone[i].share))
	}
	metricExpiredShares().Add(int64(len(gone)))
	return out, nil
}

type credit struct {
	key []byte
	pos Position
}

// posStep credits the pro-rata share of the round reward to every eligible position and
// charges the round fee, completing the round once the pool is exhausted.
func (l *Ledger) posStep(info *Info, n int) ([]*events.Event, error) {
	roundReward := info.RoundReward
	if info.KamikazeRan {
		roundReward = reward.Half(roundReward)
	}

	var (
		credits []credit
		fees    = burn.Zero()
		paid    = burn.Zero()
	)
	res, err := cursor.Walk(l.positions, info.Walk.Cursor, n, func(key, val []byte) (bool, error) {
		var p Position
		if err := record.Decode(val, &p); err != nil {
			return false, err
		}
		p.normalize()
		share, ok := reward.Charge(p.Share, l.fee)
		if !ok {
			return false, nil
		}
		delta := reward.Delta(roundReward, p.Share, info.RoundSupply)
		p.Reward.Add(p.Reward, delta)
		p.Share = share
		fees.Add(fees, l.fee)
		paid.Add(paid, delta)
		credits = append(credits, credit{append([]byte(nil), key...), p})
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if info.Walk.IsNone() && res.Visited == 0 && res.Exhausted {
		// nobody holds a position: the round is skipped and the schedule is not consumed
		l.skipRound(info)
		logger.Debug("round skipped without positions", "round", info.Round)
		return nil, record.Put(l.info, infoKey, info)
	}

	if info.TotalSupply.Lt(fees) {
		return nil, burn.NewInvariantError("round fees %s exceed supply %s", fees, info.TotalSupply)
	}
	if total := new(uint256.Int).Add(info.Walk.Aggregate, paid); total.Gt(roundReward) {
		return nil, burn.NewInvariantError("round credits %s exceed round reward %s", total, roundReward)
	}

	var completed *events.Event
	err = l.db.Batch(func(p kv.Putter) error {
		pp := positionBucket.NewPutter(p)
		for _, c := range credits {
			if c.pos.Share.IsZero() && c.pos.Reward.IsZero() {
				if err := pp.Delete(c.key); err != nil {
					return err
				}
				continue
			}
			if err := record.Put(pp, c.key, &c.pos); err != nil {
				return err
			}
		}
		info.TotalSupply.Sub(info.TotalSupply, fees)
		info.Walk.Aggregate.Add(info.Walk.Aggregate, paid)
		if res.Last != nil {
			info.Walk.Advance(res.Last)
		}
		if res.Exhausted {
			completed = l.completeRound(info)
		}
		return record.Put(infoBucket.NewPutter(p), infoKey, info)
	})
	if err != nil {
		return nil, err
	}
	if completed == nil {
		return nil, nil
	}
	metricRounds().AddWithLabel(1, map[string]string{"machine": Name})
	logger.Info("round completed", "round", completed.Round, "distributed", completed.Amount, "next", info.delay())
	return []*events.Event{completed}, nil
}

// completeRound applies the decay schedule and returns the ledger to idle.
func (l *Ledger) completeRound(info *Info) *events.Event {
	ev := l.event(events.RoundCompleted, info.Round, nil, info.Walk.Aggregate)

	info.Round++
	roundReward, delay := l.schedule.Apply(info.Round, info.RoundReward, info.delay())
	info.RoundReward = roundReward
	info.RoundDelay = uint64(delay)

	chain := seed.NewChain(burn.LedgerSeedDomain, info.Seed)
	chain.Advance()
	info.Seed = chain.State()

	info.LastRoundEnd = uint64(l.now().UnixNano())
	info.Walk.Reset(PhaseIdle)
	info.RoundSupply = burn.Zero()
	info.KamikazeRan = false
	return ev
}

// skipRound returns the ledger to idle until the next delay, leaving the round index,
// the reward schedule and the seed as they are.
func (l *Ledger) skipRound(info *Info) {
	info.LastRoundEnd = uint64(l.now().UnixNano())
	info.Walk.Reset(PhaseIdle)
	info.RoundSupply = burn.Zero()
	info.KamikazeRan = false
}

func (l *Ledger) event(kind events.Kind, round uint64, owner *burn.Address, amount *uint256.Int) *events.Event {
	decimals := burn.RewardDecimals
	if kind == events.PositionExpired {
		decimals = burn.ShareDecimals
	}
	ev := &events.Event{
		Machine: Name,
		Kind:    kind,
		Round:   round,
		Owner:   owner,
		Time:    l.now().Unix(),
	}
	if amount != nil {
		ev.Amount = burn.FormatUnits(amount, decimals)
	}
	return ev
}
