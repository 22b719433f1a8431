// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package raffle

import (
	"context"
	"time"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/cursor"
	"github.com/vechain/burnpool/events"
	"github.com/vechain/burnpool/kv"
	"github.com/vechain/burnpool/record"
	"github.com/vechain/burnpool/seed"
)

// Name returns the machine name.
func (e *Engine) Name() string { return Name }

// NextDelay returns how long the scheduler may sleep before the next RunBatch has work.
func (e *Engine) NextDelay() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := e.loadInfo()
	if err != nil {
		logger.Warn("failed to load info", "err", err)
		return idlePoll
	}
	switch {
	case info.Stopped:
		return idlePoll
	case info.drawing():
		return 0
	case e.treasury == nil:
		// rounds are prepared by hand
		return idlePoll
	}
	return max(e.nextRoundAt(info).Sub(e.now()), 0)
}

// RunBatch performs one bounded step of the draw and reports whether more work is
// immediately pending. An idle engine with a treasury prepares the next round once it is due.
func (e *Engine) RunBatch(n int) (bool, error) {
	if n <= 0 {
		n = burn.DefaultBatchSize
	}

	if err := e.startDueRound(); err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := e.loadInfo()
	if err != nil {
		return false, err
	}
	if info.Stopped || !info.drawing() {
		return false, nil
	}

	phase := info.Walk.Phase
	start := time.Now()
	defer func() {
		labels := map[string]string{"machine": Name, "phase": PhaseName(phase)}
		metricSteps().AddWithLabel(1, labels)
		metricStepDuration().ObserveWithLabels(time.Since(start).Milliseconds(), labels)
	}()

	draw, err := e.loadDraw()
	if err != nil {
		return false, err
	}
	var after []*events.Event
	switch phase {
	case PhaseSelect:
		err = e.selectStep(info, draw, n)
	case PhaseEliminate:
		after, err = e.eliminateStep(info, draw, n)
	default:
		err = burn.NewInvariantError("unknown raffle phase %d", phase)
	}
	if err != nil {
		return false, err
	}
	for _, ev := range after {
		e.feed.Publish(ev)
	}
	return info.drawing(), nil
}

// startDueRound prepares the next round from the treasury balance once it is due.
// The balance is read without holding the lock.
func (e *Engine) startDueRound() error {
	if e.treasury == nil {
		return nil
	}
	e.mu.Lock()
	info, err := e.loadInfo()
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if info.Stopped || info.drawing() || e.now().Before(e.nextRoundAt(info)) {
		return nil
	}
	if info.Seed.IsZero() {
		return errNotSeeded
	}

	ctx, cancel := context.WithTimeout(context.Background(), treasuryTimeout)
	defer cancel()
	balance, err := e.treasury.Balance(ctx)
	if err != nil {
		return &burn.ExternalCallError{Op: "treasury balance", Cause: err}
	}
	fund, _ := burn.MulDiv(balance, uint256.NewInt(e.fundPercent), uint256.NewInt(100))
	if fund.IsZero() {
		logger.Debug("treasury is empty, round postponed", "round", info.Round)
		return nil
	}
	if limit := MaxFund(e.slotCap); fund.Gt(limit) {
		logger.Info("prize fund capped, excess carried over",
			"round", info.Round,
			"fund", burn.FormatUnits(limit, burn.RewardDecimals),
			"excess", burn.FormatUnits(new(uint256.Int).Sub(fund, limit), burn.RewardDecimals))
		fund = limit
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if info, err = e.loadInfo(); err != nil {
		return err
	}
	if info.Stopped || info.drawing() {
		return nil
	}
	ev, err := e.prepare(info, fund)
	if err != nil {
		return errors.WithMessage(err, "prepare round")
	}
	if ev != nil {
		e.feed.Publish(ev)
	}
	return nil
}

// selectStep walks the frozen entries, matching pending thresholds to winners. The walk wraps
// around with the cumulative weight restarting from zero until every ticket is matched.
func (e *Engine) selectStep(info *Info, draw *Draw, n int) error {
	res, err := cursor.WalkCircular(e.positions, info.Walk.Cursor, n, func() {
		info.Walk.Aggregate = burn.Zero()
	}, func(key, val []byte) (bool, error) {
		var p Position
		if err := record.Decode(val, &p); err != nil {
			return false, err
		}
		p.normalize()
		to, won := draw.Matcher.Visit(info.Walk.Aggregate, p.Weight)
		info.Walk.Aggregate = to
		owner := burn.BytesToAddress(key)
		for _, slot := range won {
			draw.Winners = append(draw.Winners, Winner{Owner: owner, Slot: slot, Prize: draw.Prizes[slot]})
		}
		return draw.Matcher.Done(), nil
	})
	if err != nil {
		return err
	}
	if res.Wraps > 0 {
		metricWraps().AddWithLabel(int64(res.Wraps), map[string]string{"machine": Name})
		logger.Warn("selection walk wrapped", "round", info.Round, "wraps", res.Wraps, "pending", len(draw.Matcher.Pending))
	}
	if res.Last != nil {
		info.Walk.Advance(res.Last)
	}
	if res.Empty {
		return burn.NewInvariantError("round %d is drawn without entries", info.Round)
	}
	if draw.Matcher.Done() {
		logger.Debug("winners selected", "round", info.Round, "winners", len(draw.Winners))
		info.Walk.Reset(PhaseEliminate)
	}
	return e.db.Batch(func(p kv.Putter) error {
		ip := infoBucket.NewPutter(p)
		if err := record.Put(ip, drawKey, draw); err != nil {
			return err
		}
		return record.Put(ip, infoKey, info)
	})
}

// eliminateStep removes the entries of the drawn round and completes it once none are left.
func (e *Engine) eliminateStep(info *Info, draw *Draw, n int) ([]*events.Event, error) {
	var keys [][]byte
	res, err := cursor.Walk(e.positions, info.Walk.Cursor, n, func(key, _ []byte) (bool, error) {
		keys = append(keys, append([]byte(nil), key...))
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	var completed *events.Event
	err = e.db.Batch(func(p kv.Putter) error {
		pp, vp := positionBucket.NewPutter(p), voteBucket.NewPutter(p)
		for _, k := range keys {
			if err := pp.Delete(k); err != nil {
				return err
			}
			if err := vp.Delete(k); err != nil {
				return err
			}
		}
		if res.Last != nil {
			info.Walk.Advance(res.Last)
		}
		if !res.Exhausted {
			return record.Put(infoBucket.NewPutter(p), infoKey, info)
		}
		var err error
		completed, err = e.complete(p, info, draw)
		return err
	})
	if err != nil {
		return nil, err
	}
	if completed == nil {
		return nil, nil
	}

	out := make([]*events.Event, 0, len(draw.Winners)+1)
	for i := range draw.Winners {
		w := &draw.Winners[i]
		out = append(out, e.event(events.WinnerDrawn, completed.Round, &w.Owner, w.Prize))
	}
	logger.Info("round completed", "round", completed.Round, "fund", completed.Amount, "winners", len(draw.Winners), "token", completed.Token)
	return append(out, completed), nil
}

// complete archives the round into the history, elects the token of the next round and
// opens it.
func (e *Engine) complete(p kv.Putter, info *Info, draw *Draw) (*events.Event, error) {
	chain := seed.NewChain(burn.RaffleSeedDomain, info.Seed)
	chain.Advance()
	elected, err := e.elect(p, info, chain)
	if err != nil {
		return nil, err
	}

	now := e.now()
	h := HistoryEntry{
		Round:       info.Round,
		Time:        uint64(now.UnixNano()),
		Fund:        draw.Fund,
		TotalWeight: info.TotalWeight,
		Winners:     draw.Winners,
		Token:       e.currentToken(info).ID,
		Elected:     elected.ID,
	}
	ev := e.event(events.RoundCompleted, info.Round, nil, draw.Fund)
	ev.Token = elected.ID

	if err := record.Put(historyBucket.NewPutter(p), roundKey(info.Round), &h); err != nil {
		return nil, err
	}
	if len(draw.Winners) > 0 {
		info.TotalWon.Add(info.TotalWon, draw.Fund)
	}
	info.Seed = chain.State()

	info.Round++
	info.Token = elected.ID
	info.TotalWeight = burn.Zero()
	info.PrevRoundTime = h.Time
	info.Walk.Reset(PhaseIdle)

	ip := infoBucket.NewPutter(p)
	if err := ip.Delete(drawKey); err != nil {
		return nil, err
	}
	if err := record.Put(ip, infoKey, info); err != nil {
		return nil, err
	}
	metricRounds().AddWithLabel(1, map[string]string{"machine": Name})
	return ev, nil
}

func (e *Engine) event(kind events.Kind, round uint64, owner *burn.Address, amount *uint256.Int) *events.Event {
	ev := &events.Event{
		Machine: Name,
		Kind:    kind,
		Round:   round,
		Owner:   owner,
		Time:    e.now().Unix(),
	}
	if amount != nil {
		ev.Amount = burn.FormatUnits(amount, burn.RewardDecimals)
	}
	return ev
}
