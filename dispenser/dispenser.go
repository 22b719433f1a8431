// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package dispenser releases token distributions to the ledger pools tick by tick.
//
// Every tick snapshots the pool members, activates due distributions and, for every active
// distribution, splits its tick reward between the common pool (pro-rata), the kamikaze
// pool (one weighted winner) and optionally the bonfire pool (pro-rata).
package dispenser

import (
	"context"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/cursor"
	"github.com/vechain/burnpool/events"
	"github.com/vechain/burnpool/kv"
	"github.com/vechain/burnpool/log"
	"github.com/vechain/burnpool/record"
	"github.com/vechain/burnpool/seed"
)

// Name is the machine name used in logs, metrics and events.
const Name = "dispenser"

var logger = log.WithContext("pkg", "dispenser")

var (
	infoKey           = []byte("info")
	infoBucket        = kv.Bucket("di")
	commonBucket      = kv.Bucket("dc")
	kamikazeBucket    = kv.Bucket("dk")
	bonfireBucket     = kv.Bucket("db")
	unclaimedBucket   = kv.Bucket("du")
	scheduledBucket   = kv.Bucket("ds")
	activeBucket      = kv.Bucket("da")
	pastBucket        = kv.Bucket("dp")
	errNotSeeded      = errors.New("dispenser seed is not initialized")
	errTickInProgress = burn.NewValidationError("tick in progress, retry later")
)

// Pool pages the members of a pool in key order, strictly after start.
type Pool interface {
	Members(start *burn.Address, take int) ([]Member, error)
}

// PoolFunc implements Pool.
type PoolFunc func(start *burn.Address, take int) ([]Member, error)

// Members implements Pool.
func (f PoolFunc) Members(start *burn.Address, take int) ([]Member, error) { return f(start, take) }

// Dispenser owns the distributions and the unclaimed balances of one token.
type Dispenser struct {
	mu sync.Mutex

	db        kv.Store
	info      kv.Store
	common    kv.Store
	kamikaze  kv.Store
	bonfire   kv.Store
	unclaimed kv.Store
	scheduled kv.Store
	active    kv.Store
	past      kv.Store

	sources [3]Pool // common, kamikaze, bonfire
	now     func() time.Time
	feed    *events.Feed

	tokenFee  *uint256.Int
	tickDelay time.Duration
}

// Option configures a Dispenser.
type Option func(*Dispenser)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option { return func(d *Dispenser) { d.now = now } }

// WithPools sets where each tick collects its pool members from. A nil pool stays empty.
func WithPools(common, kamikaze, bonfire Pool) Option {
	return func(d *Dispenser) { d.sources = [3]Pool{common, kamikaze, bonfire} }
}

// WithEvents publishes committed changes to feed.
func WithEvents(feed *events.Feed) Option { return func(d *Dispenser) { d.feed = feed } }

// WithToken sets the token transfer fee and the tick delay of a fresh dispenser.
func WithToken(fee *uint256.Int, tickDelay time.Duration) Option {
	return func(d *Dispenser) {
		d.tokenFee = new(uint256.Int).Set(fee)
		d.tickDelay = tickDelay
	}
}

// New opens the dispenser kept in db, creating the info record when absent.
func New(db kv.Store, opts ...Option) (*Dispenser, error) {
	d := &Dispenser{
		db:        db,
		info:      infoBucket.NewStore(db),
		common:    commonBucket.NewStore(db),
		kamikaze:  kamikazeBucket.NewStore(db),
		bonfire:   bonfireBucket.NewStore(db),
		unclaimed: unclaimedBucket.NewStore(db),
		scheduled: scheduledBucket.NewStore(db),
		active:    activeBucket.NewStore(db),
		past:      pastBucket.NewStore(db),
		now:       time.Now,
		tokenFee:  new(uint256.Int).Set(burn.DispenserTokenFee),
		tickDelay: burn.DispenserTickDelay,
	}
	for _, o := range opts {
		o(d)
	}

	found, err := record.Get(d.info, infoKey, new(Info))
	if err != nil {
		return nil, err
	}
	if !found {
		info := Info{
			TokenFee:     d.tokenFee,
			PrevTickTime: uint64(d.now().UnixNano()),
			TickDelay:    uint64(d.tickDelay),
			Walk:         cursor.New(PhaseIdle),
		}
		info.normalize()
		if err := record.Put(d.info, infoKey, &info); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Dispenser) loadInfo() (*Info, error) {
	var info Info
	found, err := record.Get(d.info, infoKey, &info)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, burn.NewInvariantError("dispenser info is missing")
	}
	info.normalize()
	return &info, nil
}

func (d *Dispenser) putInfo(p kv.Putter, info *Info) error {
	return record.Put(infoBucket.NewPutter(p), infoKey, info)
}

// Init seeds the hash chain from src once. Later calls are no-ops.
func (d *Dispenser) Init(ctx context.Context, src seed.Entropy) error {
	d.mu.Lock()
	info, err := d.loadInfo()
	d.mu.Unlock()
	if err != nil || !info.Seed.IsZero() {
		return err
	}

	s, err := seed.Fetch(ctx, src, seed.DefaultBackOff())
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if info, err = d.loadInfo(); err != nil || !info.Seed.IsZero() {
		return err
	}
	info.Seed = s
	logger.Info("seed initialized")
	return record.Put(d.info, infoKey, info)
}

// Stop pauses the tick machine and rejects mutations.
func (d *Dispenser) Stop() error { return d.setStopped(true) }

// Resume undoes Stop.
func (d *Dispenser) Resume() error { return d.setStopped(false) }

func (d *Dispenser) setStopped(stopped bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, err := d.loadInfo()
	if err != nil {
		return err
	}
	if info.Stopped == stopped {
		return nil
	}
	info.Stopped = stopped
	if err := record.Put(d.info, infoKey, info); err != nil {
		return err
	}
	kind := events.Resumed
	if stopped {
		kind = events.Stopped
	}
	logger.Info("dispenser state changed", "stopped", stopped)
	d.feed.Publish(d.event(kind, info.Tick, nil, nil))
	return nil
}

// Stopped reports whether the dispenser is paused.
func (d *Dispenser) Stopped() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, err := d.loadInfo()
	if err != nil {
		return false, err
	}
	return info.Stopped, nil
}

// CreateRequest describes a new distribution.
type CreateRequest struct {
	Name          string
	Qty           *uint256.Int
	Start         Start
	DurationTicks uint64
	Hidden        bool
	Bonfire       bool
}

// Create schedules a distribution owned by owner and returns its id. The quantity must
// already be held by the dispenser.
func (d *Dispenser) Create(owner burn.Address, req CreateRequest) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, err := d.mutableInfo()
	if err != nil {
		return 0, err
	}
	switch {
	case req.Qty == nil || req.Qty.IsZero():
		return 0, burn.NewValidationError("quantity must be positive")
	case req.DurationTicks == 0:
		return 0, burn.NewValidationError("duration must be at least one tick")
	case req.Start.Kind != AtTickDelay && req.Start.Kind != AtTrigger:
		return 0, burn.NewValidationError("unknown start condition %d", req.Start.Kind)
	case req.Start.Kind == AtTickDelay && req.Start.Delay > burn.MaxTickDelay:
		return 0, burn.NewValidationError("start delay %d exceeds %d ticks", req.Start.Delay, burn.MaxTickDelay)
	}
	tickReward := new(uint256.Int).Div(req.Qty, uint256.NewInt(req.DurationTicks))
	if tickReward.IsZero() {
		return 0, burn.NewValidationError("quantity %s is too small for %d ticks", req.Qty, req.DurationTicks)
	}

	start := req.Start
	if start.Kind == AtTickDelay && start.Delay == 0 {
		// activation runs on ticks, so the earliest start is the next one
		start.Delay = 1
	}
	dist := Distribution{
		ID:            info.NextID,
		Owner:         owner,
		Name:          req.Name,
		Start:         start,
		Status:        Scheduled,
		DurationTicks: req.DurationTicks,
		TickReward:    tickReward,
		ScheduledQty:  new(uint256.Int).Set(req.Qty),
		LeftoverQty:   new(uint256.Int).Set(req.Qty),
		Hidden:        req.Hidden,
		Bonfire:       req.Bonfire,
	}
	info.NextID++
	err = d.db.Batch(func(p kv.Putter) error {
		if err := record.Put(scheduledBucket.NewPutter(p), idKey(dist.ID), &dist); err != nil {
			return err
		}
		return d.putInfo(p, info)
	})
	if err != nil {
		return 0, err
	}
	logger.Info("distribution created", "id", dist.ID, "owner", owner, "qty", req.Qty, "ticks", req.DurationTicks)
	return dist.ID, nil
}

// mutableInfo loads the info record for an operation that edits distributions.
func (d *Dispenser) mutableInfo() (*Info, error) {
	info, err := d.loadInfo()
	if err != nil {
		return nil, err
	}
	if info.Stopped {
		return nil, &burn.StoppedError{Engine: Name}
	}
	if info.ticking() {
		return nil, errTickInProgress
	}
	return info, nil
}

func (d *Dispenser) getDistribution(g kv.Getter, id uint64) (*Distribution, bool, error) {
	var dist Distribution
	found, err := record.Get(g, idKey(id), &dist)
	if err != nil {
		return nil, false, err
	}
	dist.normalize()
	return &dist, found, nil
}

// Cancel withdraws a scheduled distribution. Its quantity becomes withdrawable by the owner.
func (d *Dispenser) Cancel(caller burn.Address, id uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.mutableInfo(); err != nil {
		return err
	}
	dist, found, err := d.getDistribution(d.scheduled, id)
	if err != nil {
		return err
	}
	if !found {
		return burn.NewValidationError("distribution %d is not scheduled", id)
	}
	if dist.Owner != caller {
		return burn.NewValidationError("access denied")
	}
	dist.Status = Canceled
	return d.db.Batch(func(p kv.Putter) error {
		if err := scheduledBucket.NewPutter(p).Delete(idKey(id)); err != nil {
			return err
		}
		return record.Put(pastBucket.NewPutter(p), idKey(id), dist)
	})
}

// Trigger starts a scheduled distribution on the next tick.
func (d *Dispenser) Trigger(id uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.mutableInfo(); err != nil {
		return err
	}
	dist, found, err := d.getDistribution(d.scheduled, id)
	if err != nil {
		return err
	}
	if !found {
		return burn.NewValidationError("distribution %d is not scheduled", id)
	}
	dist.Start = Start{Kind: AtTickDelay, Delay: 1}
	return record.Put(d.scheduled, idKey(id), dist)
}

// WithdrawCanceled deducts qty from a canceled distribution of the caller. The caller must
// transfer it and call RevertWithdrawCanceled if the transfer is not delivered.
func (d *Dispenser) WithdrawCanceled(caller burn.Address, id uint64, qty *uint256.Int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, err := d.loadInfo()
	if err != nil {
		return err
	}
	if info.Stopped {
		return &burn.StoppedError{Engine: Name}
	}
	if qty == nil || qty.IsZero() {
		return burn.NewValidationError("quantity must be positive")
	}
	dist, err := d.canceled(caller, id)
	if err != nil {
		return err
	}
	if dist.LeftoverQty.Lt(qty) {
		return burn.NewValidationError("only %s left to withdraw", dist.LeftoverQty)
	}
	dist.LeftoverQty.Sub(dist.LeftoverQty, qty)
	return record.Put(d.past, idKey(id), dist)
}

// RevertWithdrawCanceled restores qty after an undelivered withdrawal. It is accepted while stopped.
func (d *Dispenser) RevertWithdrawCanceled(caller burn.Address, id uint64, qty *uint256.Int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if qty == nil || qty.IsZero() {
		return burn.NewValidationError("quantity must be positive")
	}
	dist, err := d.canceled(caller, id)
	if err != nil {
		return err
	}
	restored := new(uint256.Int).Add(dist.LeftoverQty, qty)
	if restored.Gt(dist.ScheduledQty) {
		return burn.NewInvariantError("revert of %s exceeds the scheduled quantity of distribution %d", qty, id)
	}
	dist.LeftoverQty = restored
	logger.Warn("withdrawal reverted", "id", id, "owner", caller, "qty", qty)
	return record.Put(d.past, idKey(id), dist)
}

func (d *Dispenser) canceled(caller burn.Address, id uint64) (*Distribution, error) {
	dist, found, err := d.getDistribution(d.past, id)
	if err != nil {
		return nil, err
	}
	if !found || dist.Status != Canceled {
		return nil, burn.NewValidationError("distribution %d is not canceled", id)
	}
	if dist.Owner != caller {
		return nil, burn.NewValidationError("access denied")
	}
	return dist, nil
}

func (d *Dispenser) getUnclaimed(g kv.Getter, owner burn.Address) (*uint256.Int, error) {
	v := burn.Zero()
	if _, err := record.Get(g, owner.Bytes(), v); err != nil {
		return nil, err
	}
	return v, nil
}

// Unclaimed returns the tokens dispensed to owner and not claimed yet.
func (d *Dispenser) Unclaimed(owner burn.Address) (*uint256.Int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getUnclaimed(d.unclaimed, owner)
}

// ClaimTokens deducts qty from the caller's unclaimed tokens. The caller must transfer it
// and call RevertClaimTokens if the transfer is not delivered.
func (d *Dispenser) ClaimTokens(caller burn.Address, qty *uint256.Int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, err := d.loadInfo()
	if err != nil {
		return err
	}
	if info.Stopped {
		return &burn.StoppedError{Engine: Name}
	}
	if qty == nil || qty.IsZero() {
		return burn.NewValidationError("quantity must be positive")
	}
	have, err := d.getUnclaimed(d.unclaimed, caller)
	if err != nil {
		return err
	}
	if have.Lt(qty) {
		return burn.NewValidationError("only %s unclaimed", have)
	}
	if err := d.putUnclaimed(d.unclaimed, caller, have.Sub(have, qty)); err != nil {
		return err
	}
	metricClaims().AddWithLabel(1, map[string]string{"machine": Name, "op": "claim"})
	d.feed.Publish(d.event(events.Claimed, info.Tick, &caller, qty))
	return nil
}

// RevertClaimTokens restores qty after an undelivered claim. It is accepted while stopped.
func (d *Dispenser) RevertClaimTokens(caller burn.Address, qty *uint256.Int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if qty == nil || qty.IsZero() {
		return burn.NewValidationError("quantity must be positive")
	}
	info, err := d.loadInfo()
	if err != nil {
		return err
	}
	have, err := d.getUnclaimed(d.unclaimed, caller)
	if err != nil {
		return err
	}
	if err := d.putUnclaimed(d.unclaimed, caller, have.Add(have, qty)); err != nil {
		return err
	}
	logger.Warn("claim reverted", "owner", caller, "qty", qty)
	metricClaims().AddWithLabel(1, map[string]string{"machine": Name, "op": "revert"})
	d.feed.Publish(d.event(events.ClaimReverted, info.Tick, &caller, qty))
	return nil
}

func (d *Dispenser) putUnclaimed(p kv.Putter, owner burn.Address, v *uint256.Int) error {
	if v.IsZero() {
		return p.Delete(owner.Bytes())
	}
	return record.Put(p, owner.Bytes(), v)
}

// Get returns the distribution with id in any status. Amounts of hidden scheduled
// distributions are zeroed.
func (d *Dispenser) Get(id uint64) (*Distribution, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, s := range []kv.Store{d.active, d.scheduled, d.past} {
		dist, found, err := d.getDistribution(s, id)
		if err != nil {
			return nil, err
		}
		if found {
			dist.hide()
			return dist, nil
		}
	}
	return nil, burn.NewValidationError("distribution %d not found", id)
}

// List returns up to take distributions with status after start, in id order.
// Canceled and completed distributions are listed together.
func (d *Dispenser) List(status Status, start *uint64, take int) ([]Distribution, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	src := d.past
	switch status {
	case Scheduled:
		src = d.scheduled
	case InProgress:
		src = d.active
	}
	var from []byte
	if start != nil {
		from = idKey(*start)
	}
	var out []Distribution
	_, err := cursor.Walk(src, from, take, func(_, val []byte) (bool, error) {
		var dist Distribution
		if err := record.Decode(val, &dist); err != nil {
			return false, err
		}
		dist.normalize()
		dist.hide()
		out = append(out, dist)
		return false, nil
	})
	return out, err
}

// Totals returns the dispenser snapshot together with the caller's unclaimed tokens.
func (d *Dispenser) Totals(caller burn.Address) (*Totals, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, err := d.loadInfo()
	if err != nil {
		return nil, err
	}
	unclaimed, err := d.getUnclaimed(d.unclaimed, caller)
	if err != nil {
		return nil, err
	}
	return &Totals{
		TokenFee:         info.TokenFee,
		TotalDistributed: info.TotalDistributed,
		PrevTickTime:     time.Unix(0, int64(info.PrevTickTime)).UTC(),
		TickDelay:        time.Duration(info.TickDelay),
		Tick:             info.Tick,
		Distributing:     info.ticking(),
		Phase:            PhaseName(info.Walk.Phase),
		Stopped:          info.Stopped,
		Unclaimed:        unclaimed,
	}, nil
}

func (d *Dispenser) event(kind events.Kind, tick uint64, owner *burn.Address, amount *uint256.Int) *events.Event {
	ev := &events.Event{
		Machine: Name,
		Kind:    kind,
		Round:   tick,
		Owner:   owner,
		Time:    d.now().Unix(),
	}
	if amount != nil {
		ev.Amount = amount.Dec()
	}
	return ev
}
