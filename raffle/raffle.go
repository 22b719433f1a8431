// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package raffle implements the periodic multi-winner prize draw.
//
// Owners enter the current round with a weight. When a round is drawn the prize fund is
// split into front-loaded slots, one threshold per slot is drawn from the seed chain and a
// single ordered walk over the frozen entries matches every threshold to a winner. The
// entries are then eliminated and the round is archived in the winner history, from which
// prizes are claimed.
//
// Burn token pledges also carry voting power. Owners spread it over the votable tokens and
// the completing round draws the token pledged at full value in the next one.
package raffle

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/cursor"
	"github.com/vechain/burnpool/events"
	"github.com/vechain/burnpool/kv"
	"github.com/vechain/burnpool/log"
	"github.com/vechain/burnpool/record"
	"github.com/vechain/burnpool/seed"
	"github.com/vechain/burnpool/selector"
)

// Name is the machine name used in logs, metrics and events.
const Name = "raffle"

// MinPledgeValue is the smallest pledge accepted, valued in weight units.
var MinPledgeValue = uint256.NewInt(1_000_000)

var logger = log.WithContext("pkg", "raffle")

var (
	infoKey         = []byte("info")
	drawKey         = []byte("draw")
	infoBucket      = kv.Bucket("ri")
	positionBucket  = kv.Bucket("rp")
	historyBucket   = kv.Bucket("rh")
	errNotSeeded    = errors.New("raffle seed is not initialized")
	treasuryTimeout = 30 * time.Second
	idlePoll        = time.Minute
)

// Rater quotes the weight value of one whole unit of the pledged asset, with 8 decimals.
type Rater interface {
	Rate(ctx context.Context, pair string) (*uint256.Int, error)
}

// Treasury reports the balance the prize fund is taken from.
type Treasury interface {
	Balance(ctx context.Context) (*uint256.Int, error)
}

// Engine owns the raffle entries, the round in progress and the winner history.
type Engine struct {
	mu sync.Mutex

	db        kv.Store
	info      kv.Store
	positions kv.Store
	history   kv.Store
	tallies   kv.Store
	votes     kv.Store

	slotCap     *uint256.Int
	fundPercent uint64
	calendar    cron.Schedule
	now         func() time.Time
	feed        *events.Feed
	rater       Rater
	treasury    Treasury
	delay       time.Duration
	burnToken   Token
	tokens      map[string]Token
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithSlotCap sets the largest amount a prize slot grows by per distribution loop.
func WithSlotCap(c *uint256.Int) Option {
	return func(e *Engine) { e.slotCap = new(uint256.Int).Set(c) }
}

// WithCalendar schedules rounds on a cron calendar instead of a fixed delay.
func WithCalendar(s cron.Schedule) Option { return func(e *Engine) { e.calendar = s } }

// WithRoundDelay sets the fixed delay between rounds of a fresh engine.
func WithRoundDelay(d time.Duration) Option { return func(e *Engine) { e.delay = d } }

// WithEvents publishes committed changes to feed.
func WithEvents(feed *events.Feed) Option { return func(e *Engine) { e.feed = feed } }

// WithRater enables Pledge. Token pairs are quoted in weight units.
func WithRater(r Rater) Option { return func(e *Engine) { e.rater = r } }

// WithTreasury lets the engine start rounds on its own, funding each with percent of the balance.
func WithTreasury(t Treasury, percent uint64) Option {
	return func(e *Engine) {
		e.treasury = t
		if percent > 0 && percent <= 100 {
			e.fundPercent = percent
		}
	}
}

// ParseCalendar parses a standard five field cron expression, e.g. "0 15 * * 0".
func ParseCalendar(spec string) (cron.Schedule, error) {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, burn.NewValidationError("invalid raffle calendar %q: %v", spec, err)
	}
	return s, nil
}

// New opens the raffle kept in db, creating the info record when absent.
func New(db kv.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		db:          db,
		info:        infoBucket.NewStore(db),
		positions:   positionBucket.NewStore(db),
		history:     historyBucket.NewStore(db),
		tallies:     tallyBucket.NewStore(db),
		votes:       voteBucket.NewStore(db),
		slotCap:     new(uint256.Int).Set(burn.RaffleSlotCap),
		fundPercent: burn.RaffleFundPercent,
		now:         time.Now,
		delay:       burn.RaffleRoundDelay,
	}
	WithTokens(DefaultBurnToken)(e)
	for _, o := range opts {
		o(e)
	}

	found, err := record.Get(e.info, infoKey, new(Info))
	if err != nil {
		return nil, err
	}
	if !found {
		info := Info{
			RoundDelay:    uint64(e.delay),
			PrevRoundTime: uint64(e.now().UnixNano()),
			Walk:          cursor.New(PhaseIdle),
			Token:         e.burnToken.ID,
		}
		info.normalize()
		if err := record.Put(e.info, infoKey, &info); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) loadInfo() (*Info, error) {
	var info Info
	found, err := record.Get(e.info, infoKey, &info)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, burn.NewInvariantError("raffle info is missing")
	}
	info.normalize()
	return &info, nil
}

func (e *Engine) loadDraw() (*Draw, error) {
	var d Draw
	found, err := record.Get(e.info, drawKey, &d)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, burn.NewInvariantError("raffle is drawing without a draw record")
	}
	d.normalize()
	return &d, nil
}

func (e *Engine) nextRoundAt(info *Info) time.Time {
	if e.calendar != nil {
		return e.calendar.Next(info.prevRoundTime())
	}
	return info.prevRoundTime().Add(time.Duration(info.RoundDelay))
}

// Init seeds the hash chain from src once. Later calls are no-ops.
func (e *Engine) Init(ctx context.Context, src seed.Entropy) error {
	e.mu.Lock()
	info, err := e.loadInfo()
	e.mu.Unlock()
	if err != nil || !info.Seed.IsZero() {
		return err
	}

	s, err := seed.Fetch(ctx, src, seed.DefaultBackOff())
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if info, err = e.loadInfo(); err != nil || !info.Seed.IsZero() {
		return err
	}
	info.Seed = s
	logger.Info("seed initialized")
	return record.Put(e.info, infoKey, info)
}

// Stop pauses the engine. A round being drawn is kept and continues on Resume.
func (e *Engine) Stop() error { return e.setStopped(true) }

// Resume undoes Stop.
func (e *Engine) Resume() error { return e.setStopped(false) }

func (e *Engine) setStopped(stopped bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := e.loadInfo()
	if err != nil {
		return err
	}
	if info.Stopped == stopped {
		return nil
	}
	info.Stopped = stopped
	if err := record.Put(e.info, infoKey, info); err != nil {
		return err
	}
	kind := events.Resumed
	if stopped {
		kind = events.Stopped
	}
	logger.Info("raffle state changed", "stopped", stopped)
	e.feed.Publish(e.event(kind, info.Round, nil, nil))
	return nil
}

// Stopped reports whether the engine is paused.
func (e *Engine) Stopped() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := e.loadInfo()
	if err != nil {
		return false, err
	}
	return info.Stopped, nil
}

func (e *Engine) checkEnter(info *Info, weight *uint256.Int) error {
	if info.Stopped {
		return &burn.StoppedError{Engine: Name}
	}
	if info.drawing() {
		return burn.NewValidationError("round %d is being drawn, entries are closed", info.Round)
	}
	if weight == nil || weight.IsZero() {
		return burn.NewValidationError("weight must be positive")
	}
	return nil
}

// Enter adds weight to the owner's entry of the current round.
func (e *Engine) Enter(owner burn.Address, weight *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := e.loadInfo()
	if err != nil {
		return err
	}
	if err := e.checkEnter(info, weight); err != nil {
		return err
	}
	return e.enter(info, owner, weight)
}

// PledgeRequest pledges Qty tokens, scaled by the token's decimals, onto the entry of Owner.
type PledgeRequest struct {
	Owner    burn.Address
	Token    string
	Qty      *uint256.Int
	Downvote bool // withdraw the weight from the entry instead, never below zero
}

// Pledge values the pledged tokens and enters the owner with that weight. The token of the
// round weighs its full value. The burn token weighs BurnPledgePercent of it, and that weight
// is also voting power for the next round's token. It returns the weight added or removed.
func (e *Engine) Pledge(ctx context.Context, req PledgeRequest) (*uint256.Int, error) {
	if e.rater == nil {
		return nil, burn.NewValidationError("pledging is not enabled")
	}
	if req.Qty == nil || req.Qty.IsZero() {
		return nil, burn.NewValidationError("pledge quantity must be positive")
	}

	e.mu.Lock()
	info, err := e.loadInfo()
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	token, burnt, err := e.pledgeToken(info, req.Token)
	if err != nil {
		return nil, err
	}
	rate, err := e.rater.Rate(ctx, token.Pair)
	if err != nil {
		return nil, errors.WithMessage(err, "quote exchange rate")
	}
	value, ok := burn.MulDiv(req.Qty, rate, burn.Pow10(token.Decimals))
	if !ok {
		return nil, burn.NewValidationError("pledge quantity too large")
	}
	if value.Lt(MinPledgeValue) {
		return nil, burn.NewValidationError("pledge value %s is below the minimum %s",
			burn.FormatUnits(value, burn.RewardDecimals), burn.FormatUnits(MinPledgeValue, burn.RewardDecimals))
	}
	weight := value
	if burnt {
		weight, _ = burn.MulDiv(value, uint256.NewInt(BurnPledgePercent), uint256.NewInt(100))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// the round may have moved on while the rate was quoted
	if info, err = e.loadInfo(); err != nil {
		return nil, err
	}
	if err := e.checkEnter(info, weight); err != nil {
		return nil, err
	}
	if _, _, err := e.pledgeToken(info, req.Token); err != nil {
		return nil, err
	}

	owner := req.Owner
	var pos Position
	if _, err := record.Get(e.positions, owner.Bytes(), &pos); err != nil {
		return nil, err
	}
	pos.normalize()
	if burnt {
		pos.Power.Add(pos.Power, weight)
	}
	if req.Downvote {
		weight = burn.Min(weight, pos.Weight)
		if weight.IsZero() {
			return nil, burn.NewValidationError("no weight to downvote")
		}
		pos.Weight.Sub(pos.Weight, weight)
		info.TotalWeight.Sub(info.TotalWeight, weight)
	} else {
		pos.Weight.Add(pos.Weight, weight)
		info.TotalWeight.Add(info.TotalWeight, weight)
	}
	pos.Pledged.Add(pos.Pledged, value)
	info.TotalPledged.Add(info.TotalPledged, value)
	if err := e.putPosition(owner, &pos, info); err != nil {
		return nil, err
	}
	metricPledges().AddWithLabel(1, map[string]string{"token": token.ID, "downvote": strconv.FormatBool(req.Downvote)})
	logger.Debug("pledge entered", "round", info.Round, "owner", owner, "token", token.ID,
		"weight", burn.FormatUnits(weight, burn.RewardDecimals), "downvote", req.Downvote)
	return weight, nil
}

func (e *Engine) enter(info *Info, owner burn.Address, weight *uint256.Int) error {
	var pos Position
	if _, err := record.Get(e.positions, owner.Bytes(), &pos); err != nil {
		return err
	}
	pos.normalize()
	pos.Weight.Add(pos.Weight, weight)
	info.TotalWeight.Add(info.TotalWeight, weight)
	return e.putPosition(owner, &pos, info)
}

func (e *Engine) putPosition(owner burn.Address, pos *Position, info *Info) error {
	return e.db.Batch(func(p kv.Putter) error {
		if err := record.Put(positionBucket.NewPutter(p), owner.Bytes(), pos); err != nil {
			return err
		}
		return record.Put(infoBucket.NewPutter(p), infoKey, info)
	})
}

// Prepare closes the entries of the current round and arms its draw with fund.
// A round without entries completes at once with no winners, one whose entries lost all
// their weight is eliminated without winners.
func (e *Engine) Prepare(fund *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := e.loadInfo()
	if err != nil {
		return err
	}
	if info.Stopped {
		return &burn.StoppedError{Engine: Name}
	}
	ev, err := e.prepare(info, fund)
	if err != nil {
		return err
	}
	if ev != nil {
		e.feed.Publish(ev)
	}
	return nil
}

func (e *Engine) prepare(info *Info, fund *uint256.Int) (*events.Event, error) {
	if info.drawing() {
		return nil, burn.NewValidationError("round %d is already being drawn", info.Round)
	}
	if info.Seed.IsZero() {
		return nil, errNotSeeded
	}
	if fund == nil || fund.IsZero() {
		return nil, burn.NewValidationError("prize fund must be positive")
	}
	prizes, err := PrizeDistribution(fund, e.slotCap)
	if err != nil {
		return nil, err
	}

	if info.TotalWeight.IsZero() {
		if res, err := cursor.Walk(e.positions, nil, 1, func(_, _ []byte) (bool, error) { return true, nil }); err != nil {
			return nil, err
		} else if res.Visited > 0 {
			// entries left without weight by downvotes are eliminated before completing
			info.Walk.Reset(PhaseEliminate)
			return nil, e.db.Batch(func(p kv.Putter) error {
				ip := infoBucket.NewPutter(p)
				if err := record.Put(ip, drawKey, &Draw{Fund: new(uint256.Int).Set(fund)}); err != nil {
					return err
				}
				return record.Put(ip, infoKey, info)
			})
		}
		var ev *events.Event
		err := e.db.Batch(func(p kv.Putter) error {
			var err error
			ev, err = e.complete(p, info, &Draw{Fund: fund})
			return err
		})
		if err != nil {
			return nil, err
		}
		logger.Info("round completed without entries", "round", ev.Round)
		return ev, nil
	}

	chain := seed.NewChain(burn.RaffleSeedDomain, info.Seed)
	draw := Draw{
		Fund:      new(uint256.Int).Set(fund),
		Prizes:    prizes,
		Matcher:   selector.NewMatcher(chain.Fractions(len(prizes)), info.TotalWeight),
		StartedAt: uint64(e.now().UnixNano()),
	}
	info.Seed = chain.State()
	info.Walk.Reset(PhaseSelect)

	err = e.db.Batch(func(p kv.Putter) error {
		ip := infoBucket.NewPutter(p)
		if err := record.Put(ip, drawKey, &draw); err != nil {
			return err
		}
		return record.Put(ip, infoKey, info)
	})
	if err != nil {
		return nil, err
	}
	logger.Info("round prepared", "round", info.Round, "fund", burn.FormatUnits(fund, burn.RewardDecimals), "prizes", len(prizes))
	return nil, nil
}

// ClaimPrize marks the winner at idx of round as claimed and returns the prize. The caller
// must transfer it and call RevertPrizeClaim if the transfer is not delivered.
func (e *Engine) ClaimPrize(round uint64, idx int, caller burn.Address) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := e.loadInfo()
	if err != nil {
		return nil, err
	}
	if info.Stopped {
		return nil, &burn.StoppedError{Engine: Name}
	}
	entry, w, err := e.winner(round, idx)
	if err != nil {
		return nil, err
	}
	if w.Owner != caller {
		return nil, burn.NewValidationError("access denied")
	}
	if w.Claimed {
		return nil, burn.NewValidationError("prize already claimed")
	}
	w.Claimed = true
	if err := record.Put(e.history, roundKey(round), entry); err != nil {
		return nil, err
	}
	metricClaims().AddWithLabel(1, map[string]string{"machine": Name, "op": "claim"})
	e.feed.Publish(e.event(events.Claimed, round, &caller, w.Prize))
	return new(uint256.Int).Set(w.Prize), nil
}

// RevertPrizeClaim marks a claimed prize as unclaimed again. It is accepted while stopped.
func (e *Engine) RevertPrizeClaim(round uint64, idx int, caller burn.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, w, err := e.winner(round, idx)
	if err != nil {
		return err
	}
	if w.Owner != caller {
		return burn.NewValidationError("access denied")
	}
	if !w.Claimed {
		return burn.NewInvariantError("revert of unclaimed prize %d of round %d", idx, round)
	}
	w.Claimed = false
	if err := record.Put(e.history, roundKey(round), entry); err != nil {
		return err
	}
	logger.Warn("prize claim reverted", "round", round, "idx", idx, "owner", caller)
	metricClaims().AddWithLabel(1, map[string]string{"machine": Name, "op": "revert"})
	e.feed.Publish(e.event(events.ClaimReverted, round, &caller, w.Prize))
	return nil
}

func (e *Engine) winner(round uint64, idx int) (*HistoryEntry, *Winner, error) {
	var h HistoryEntry
	found, err := record.Get(e.history, roundKey(round), &h)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, burn.NewValidationError("round %d not found", round)
	}
	h.normalize()
	if idx < 0 || idx >= len(h.Winners) {
		return nil, nil, burn.NewValidationError("winner %d of round %d not found", idx, round)
	}
	return &h, &h.Winners[idx], nil
}

// Totals returns the raffle snapshot together with the caller's entry.
func (e *Engine) Totals(caller burn.Address) (*Totals, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, err := e.loadInfo()
	if err != nil {
		return nil, err
	}
	var pos Position
	if _, err := record.Get(e.positions, caller.Bytes(), &pos); err != nil {
		return nil, err
	}
	pos.normalize()

	t := &Totals{
		Round:        info.Round,
		TotalWeight:  info.TotalWeight,
		TotalPledged: info.TotalPledged,
		TotalWon:     info.TotalWon,
		Drawing:      info.drawing(),
		Phase:        PhaseName(info.Walk.Phase),
		NextRoundAt:  e.nextRoundAt(info).UTC(),
		Stopped:      info.Stopped,
		Token:        e.currentToken(info).ID,
		Weight:       pos.Weight,
		Pledged:      pos.Pledged,
		Power:        pos.Power,
	}
	if t.Voted, err = e.votes.Has(caller.Bytes()); err != nil {
		return nil, err
	}
	if info.drawing() {
		// thresholds and partial matches stay private until the round completes
		d, err := e.loadDraw()
		if err != nil {
			return nil, err
		}
		t.PrizeFund = d.Fund
		t.Prizes = len(d.Prizes)
	}
	return t, nil
}

// Entries returns up to take entries of the current round after start, in key order.
func (e *Engine) Entries(start *burn.Address, take int) ([]Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		out  []Entry
		from []byte
	)
	if start != nil {
		from = start.Bytes()
	}
	_, err := cursor.Walk(e.positions, from, take, func(key, val []byte) (bool, error) {
		var p Position
		if err := record.Decode(val, &p); err != nil {
			return false, err
		}
		p.normalize()
		out = append(out, Entry{Owner: burn.BytesToAddress(key), Weight: p.Weight, Pledged: p.Pledged})
		return false, nil
	})
	return out, err
}

// History returns up to take completed rounds, newest first, starting below before
// when it is set.
func (e *Engine) History(before *uint64, take int) ([]HistoryEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []HistoryEntry
	rng := kv.Range{}
	if before != nil {
		rng.Limit = roundKey(*before)
	}
	var decErr error
	err := e.history.Iterate(rng, func(pair kv.Pair) bool {
		var h HistoryEntry
		if decErr = record.Decode(pair.Value(), &h); decErr != nil {
			return false
		}
		h.normalize()
		out = append(out, h)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decErr != nil {
		return nil, decErr
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if take >= 0 && len(out) > take {
		out = out[:take]
	}
	return out, nil
}
