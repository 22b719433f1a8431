// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package ledger implements the staking ledger: decaying shares, the batched pro-rata
// reward round and the single winner kamikaze bonus pool.
package ledger

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
	"github.com/vechain/burnpool/reward"
	"github.com/vechain/burnpool/seed"
)

// Name is the machine name used in logs, metrics and events.
const Name = "ledger"

var logger = log.WithContext("pkg", "ledger")

var (
	infoKey         = []byte("info")
	infoBucket      = kv.Bucket("li")
	positionBucket  = kv.Bucket("lp")
	kamikazeBucket  = kv.Bucket("lk")
	winsBucket      = kv.Bucket("lw")
	migratedBucket  = kv.Bucket("lm")
	errNotSeeded    = errors.New("ledger seed is not initialized")
	defaultRatePair = "asset/share"
)

// Rater quotes how many whole shares one whole asset unit buys, with 8 decimals.
type Rater interface {
	Rate(ctx context.Context, pair string) (*uint256.Int, error)
}

// Ledger owns the share positions and the round state machine.
// All methods are safe for concurrent use; they are serialized by one lock.
type Ledger struct {
	mu sync.Mutex

	db        kv.Store
	info      kv.Store
	positions kv.Store
	kamikazes kv.Store
	wins      kv.Store
	migrated  kv.Store

	fee      *uint256.Int
	schedule reward.Schedule
	lifespan time.Duration
	now      func() time.Time
	feed     *events.Feed
	rater    Rater
	ratePair string

	initialReward *uint256.Int
	initialDelay  time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

// WithFee sets the per round share fee.
func WithFee(fee *uint256.Int) Option { return func(l *Ledger) { l.fee = new(uint256.Int).Set(fee) } }

// WithSchedule sets the reward decay schedule.
func WithSchedule(s reward.Schedule) Option { return func(l *Ledger) { l.schedule = s } }

// WithKamikazeLifespan sets how long a kamikaze position lives.
func WithKamikazeLifespan(d time.Duration) Option { return func(l *Ledger) { l.lifespan = d } }

// WithEvents publishes committed changes to feed.
func WithEvents(feed *events.Feed) Option { return func(l *Ledger) { l.feed = feed } }

// WithRater enables Stake, quoting pair on r.
func WithRater(r Rater, pair string) Option {
	return func(l *Ledger) {
		l.rater = r
		if pair != "" {
			l.ratePair = pair
		}
	}
}

// WithInitialRound sets the reward and delay of a fresh ledger. It has no effect on an existing one.
func WithInitialRound(roundReward *uint256.Int, delay time.Duration) Option {
	return func(l *Ledger) {
		l.initialReward = new(uint256.Int).Set(roundReward)
		l.initialDelay = delay
	}
}

// New opens the ledger kept in db, creating the info record when absent.
func New(db kv.Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		db:            db,
		info:          infoBucket.NewStore(db),
		positions:     positionBucket.NewStore(db),
		kamikazes:     kamikazeBucket.NewStore(db),
		wins:          winsBucket.NewStore(db),
		migrated:      migratedBucket.NewStore(db),
		fee:           new(uint256.Int).Set(burn.PoSRoundFee),
		schedule:      reward.DefaultSchedule(),
		lifespan:      burn.KamikazeLifespan,
		now:           time.Now,
		ratePair:      defaultRatePair,
		initialReward: new(uint256.Int).Set(burn.InitialRoundReward),
		initialDelay:  burn.PoSRoundDelay,
	}
	for _, o := range opts {
		o(l)
	}

	found, err := record.Get(l.info, infoKey, new(Info))
	if err != nil {
		return nil, err
	}
	if !found {
		info := Info{
			RoundReward:  new(uint256.Int).Set(l.initialReward),
			RoundDelay:   uint64(l.initialDelay),
			LastRoundEnd: uint64(l.now().UnixNano()),
			Walk:         cursor.New(PhaseIdle),
		}
		info.normalize()
		if err := record.Put(l.info, infoKey, &info); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Ledger) loadInfo() (*Info, error) {
	var info Info
	found, err := record.Get(l.info, infoKey, &info)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, burn.NewInvariantError("ledger info is missing")
	}
	info.normalize()
	return &info, nil
}

// Init seeds the hash chain from src once, retrying until the source answers or ctx ends.
// Later calls are no-ops.
func (l *Ledger) Init(ctx context.Context, src seed.Entropy) error {
	if seeded, err := l.seeded(); err != nil || seeded {
		return err
	}
	s, err := seed.Fetch(ctx, src, seed.DefaultBackOff())
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.loadInfo()
	if err != nil {
		return err
	}
	if !info.Seed.IsZero() {
		return nil
	}
	info.Seed = s
	logger.Info("seed initialized")
	return record.Put(l.info, infoKey, info)
}

func (l *Ledger) seeded() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.loadInfo()
	if err != nil {
		return false, err
	}
	return !info.Seed.IsZero(), nil
}

// Stop pauses the round machine and rejects mutations. In-flight round state is kept.
func (l *Ledger) Stop() error { return l.setStopped(true) }

// Resume undoes Stop.
func (l *Ledger) Resume() error { return l.setStopped(false) }

func (l *Ledger) setStopped(stopped bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.loadInfo()
	if err != nil {
		return err
	}
	if info.Stopped == stopped {
		return nil
	}
	info.Stopped = stopped
	if err := record.Put(l.info, infoKey, info); err != nil {
		return err
	}
	kind := events.Resumed
	if stopped {
		kind = events.Stopped
	}
	logger.Info("ledger state changed", "stopped", stopped)
	l.feed.Publish(l.event(kind, info.Round, nil, nil))
	return nil
}

// Stopped reports whether the ledger is paused.
func (l *Ledger) Stopped() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.loadInfo()
	if err != nil {
		return false, err
	}
	return info.Stopped, nil
}

func (l *Ledger) getPosition(g kv.Getter, owner burn.Address) (*Position, bool, error) {
	var p Position
	found, err := record.Get(g, owner.Bytes(), &p)
	if err != nil {
		return nil, false, err
	}
	p.normalize()
	return &p, found, nil
}

func (l *Ledger) getKamikaze(g kv.Getter, owner burn.Address) (*Kamikaze, bool, error) {
	var k Kamikaze
	found, err := record.Get(g, owner.Bytes(), &k)
	if err != nil {
		return nil, false, err
	}
	k.Share = burn.OrZero(k.Share)
	return &k, found, nil
}

func (l *Ledger) getWins(g kv.Getter, owner burn.Address) (uint64, error) {
	var n uint64
	_, err := record.Get(g, owner.Bytes(), &n)
	return n, err
}

// Mint adds shares to the owner's common pool position.
func (l *Ledger) Mint(owner burn.Address, shares *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.loadInfo()
	if err != nil {
		return err
	}
	if err := l.checkMint(info, shares); err != nil {
		return err
	}
	return l.db.Batch(func(p kv.Putter) error {
		return l.mint(info, p, owner, shares)
	})
}

// MintKamikaze adds shares to the owner's kamikaze position. A new position starts its lifespan now.
func (l *Ledger) MintKamikaze(owner burn.Address, shares *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.loadInfo()
	if err != nil {
		return err
	}
	if err := l.checkMint(info, shares); err != nil {
		return err
	}
	return l.db.Batch(func(p kv.Putter) error {
		return l.mintKamikaze(info, p, owner, shares)
	})
}

// Stake converts assetQty (8 decimals) into shares at the quoted rate and mints them,
// into the kamikaze pool if kamikaze is set. It returns the minted shares.
func (l *Ledger) Stake(ctx context.Context, owner burn.Address, assetQty *uint256.Int, kamikaze bool) (*uint256.Int, error) {
	if l.rater == nil {
		return nil, burn.NewValidationError("staking is not enabled")
	}
	if assetQty == nil || assetQty.IsZero() {
		return nil, burn.NewValidationError("stake quantity must be positive")
	}
	// quote before taking the lock, the feed may block on a refresh
	rate, err := l.rater.Rate(ctx, l.ratePair)
	if err != nil {
		return nil, errors.WithMessage(err, "quote exchange rate")
	}
	whole, ok := burn.MulDiv(assetQty, rate, burn.Pow10(burn.RewardDecimals))
	if !ok {
		return nil, burn.NewValidationError("stake quantity too large")
	}
	shares := burn.Rescale(whole, burn.RewardDecimals, burn.ShareDecimals)

	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.loadInfo()
	if err != nil {
		return nil, err
	}
	if err := l.checkMint(info, shares); err != nil {
		return nil, err
	}
	err = l.db.Batch(func(p kv.Putter) error {
		info.TotalBurned.Add(info.TotalBurned, assetQty)
		if kamikaze {
			return l.mintKamikaze(info, p, owner, shares)
		}
		return l.mint(info, p, owner, shares)
	})
	if err != nil {
		return nil, err
	}
	metricStakes().AddWithLabel(1, map[string]string{"kamikaze": boolLabel(kamikaze)})
	return shares, nil
}

func (l *Ledger) checkMint(info *Info, shares *uint256.Int) error {
	if info.Stopped {
		return &burn.StoppedError{Engine: Name}
	}
	if shares == nil || shares.IsZero() {
		return burn.NewValidationError("share quantity must be positive")
	}
	return nil
}

func (l *Ledger) mint(info *Info, p kv.Putter, owner burn.Address, shares *uint256.Int) error {
	pos, _, err := l.getPosition(l.positions, owner)
	if err != nil {
		return err
	}
	pos.Share.Add(pos.Share, shares)
	if err := record.Put(positionBucket.NewPutter(p), owner.Bytes(), pos); err != nil {
		return err
	}
	info.TotalSupply.Add(info.TotalSupply, shares)
	if info.Walk.Phase == PhasePoS {
		// keep credits within the round reward when the walk reaches this owner
		info.RoundSupply.Add(info.RoundSupply, shares)
	}
	return record.Put(infoBucket.NewPutter(p), infoKey, info)
}

func (l *Ledger) mintKamikaze(info *Info, p kv.Putter, owner burn.Address, shares *uint256.Int) error {
	k, found, err := l.getKamikaze(l.kamikazes, owner)
	if err != nil {
		return err
	}
	if !found {
		k.CreatedAt = uint64(l.now().UnixNano())
	}
	k.Share.Add(k.Share, shares)
	if err := record.Put(kamikazeBucket.NewPutter(p), owner.Bytes(), k); err != nil {
		return err
	}
	info.KamikazeSupply.Add(info.KamikazeSupply, shares)
	return record.Put(infoBucket.NewPutter(p), infoKey, info)
}

// ClaimReward zeroes the owner's unclaimed reward and returns it. The caller must
// transfer the amount and call RevertClaim if the transfer is not delivered.
// A position left below the fee is closed and its share leaves the supply.
func (l *Ledger) ClaimReward(owner burn.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.loadInfo()
	if err != nil {
		return nil, err
	}
	if info.Stopped {
		return nil, &burn.StoppedError{Engine: Name}
	}
	pos, found, err := l.getPosition(l.positions, owner)
	if err != nil {
		return nil, err
	}
	if !found || pos.Reward.IsZero() {
		return nil, burn.NewValidationError("nothing to claim")
	}
	if info.TotalSupply.Lt(pos.Share) {
		return nil, burn.NewInvariantError("position share %s exceeds supply %s", pos.Share, info.TotalSupply)
	}

	amount := pos.Reward
	err = l.db.Batch(func(p kv.Putter) error {
		pp := positionBucket.NewPutter(p)
		if !reward.Eligible(pos.Share, l.fee) {
			info.TotalSupply.Sub(info.TotalSupply, pos.Share)
			if err := pp.Delete(owner.Bytes()); err != nil {
				return err
			}
		} else {
			if err := record.Put(pp, owner.Bytes(), &Position{Share: pos.Share, Reward: burn.Zero()}); err != nil {
				return err
			}
		}
		info.TotalMinted.Add(info.TotalMinted, amount)
		return record.Put(infoBucket.NewPutter(p), infoKey, info)
	})
	if err != nil {
		return nil, err
	}
	metricClaims().AddWithLabel(1, map[string]string{"machine": Name, "op": "claim"})
	l.feed.Publish(l.event(events.Claimed, info.Round, &owner, amount))
	return amount, nil
}

// RevertClaim restores amount to the owner after an undelivered transfer, recreating
// the position with zero share if it was closed. It is accepted while stopped.
func (l *Ledger) RevertClaim(owner burn.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount == nil || amount.IsZero() {
		return burn.NewValidationError("revert amount must be positive")
	}
	info, err := l.loadInfo()
	if err != nil {
		return err
	}
	if info.TotalMinted.Lt(amount) {
		return burn.NewInvariantError("revert of %s exceeds total minted %s", amount, info.TotalMinted)
	}
	pos, _, err := l.getPosition(l.positions, owner)
	if err != nil {
		return err
	}
	err = l.db.Batch(func(p kv.Putter) error {
		pos.Reward.Add(pos.Reward, amount)
		if err := record.Put(positionBucket.NewPutter(p), owner.Bytes(), pos); err != nil {
			return err
		}
		info.TotalMinted.Sub(info.TotalMinted, amount)
		return record.Put(infoBucket.NewPutter(p), infoKey, info)
	})
	if err != nil {
		return err
	}
	logger.Warn("claim reverted", "owner", owner, "amount", burn.FormatUnits(amount, burn.RewardDecimals))
	metricClaims().AddWithLabel(1, map[string]string{"machine": Name, "op": "revert"})
	l.feed.Publish(l.event(events.ClaimReverted, info.Round, &owner, amount))
	return nil
}

// Migrate merges the caller's common position into to. Each account migrates at most once.
func (l *Ledger) Migrate(caller, to burn.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.loadInfo()
	if err != nil {
		return err
	}
	if info.Stopped {
		return &burn.StoppedError{Engine: Name}
	}
	if caller == to {
		return burn.NewValidationError("cannot migrate to the same account")
	}
	if info.Walk.Phase == PhasePoS {
		// a moved share would be credited twice in the same walk
		return burn.NewValidationError("round in progress, retry later")
	}
	done, err := l.migrated.Has(caller.Bytes())
	if err != nil {
		return err
	}
	if done {
		return burn.NewValidationError("access denied: account already migrated")
	}
	from, found, err := l.getPosition(l.positions, caller)
	if err != nil {
		return err
	}
	if !found {
		return burn.NewValidationError("no position found")
	}
	dst, _, err := l.getPosition(l.positions, to)
	if err != nil {
		return err
	}
	return l.db.Batch(func(p kv.Putter) error {
		pp := positionBucket.NewPutter(p)
		if err := pp.Delete(caller.Bytes()); err != nil {
			return err
		}
		merged := Position{
			Share:  new(uint256.Int).Add(from.Share, dst.Share),
			Reward: new(uint256.Int).Add(from.Reward, dst.Reward),
		}
		if err := record.Put(pp, to.Bytes(), &merged); err != nil {
			return err
		}
		return migratedBucket.NewPutter(p).Put(caller.Bytes(), []byte{1})
	})
}

// Totals returns the aggregate snapshot together with the caller's positions.
func (l *Ledger) Totals(caller burn.Address) (*Totals, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.loadInfo()
	if err != nil {
		return nil, err
	}
	pos, _, err := l.getPosition(l.positions, caller)
	if err != nil {
		return nil, err
	}
	k, kFound, err := l.getKamikaze(l.kamikazes, caller)
	if err != nil {
		return nil, err
	}
	wins, err := l.getWins(l.wins, caller)
	if err != nil {
		return nil, err
	}
	positions, err := count(l.positions)
	if err != nil {
		return nil, err
	}
	kamikazes, err := count(l.kamikazes)
	if err != nil {
		return nil, err
	}

	t := &Totals{
		TotalSupply:    info.TotalSupply,
		KamikazeSupply: info.KamikazeSupply,
		TotalBurned:    info.TotalBurned,
		TotalMinted:    info.TotalMinted,
		RoundReward:    info.RoundReward,
		Fee:            new(uint256.Int).Set(l.fee),
		Round:          info.Round,
		RoundDelay:     info.delay(),
		Phase:          PhaseName(info.Walk.Phase),
		Positions:      positions,
		Kamikazes:      kamikazes,
		Stopped:        info.Stopped,
		Share:          pos.Share,
		Reward:         pos.Reward,
		KamikazeShare:  k.Share,
		KamikazeWins:   wins,
	}
	if !info.Walk.IsNone() {
		c := burn.BytesToAddress(info.Walk.Cursor)
		t.Cursor = &c
	}
	if kFound {
		created := time.Unix(0, int64(k.CreatedAt)).UTC()
		t.KamikazeCreatedAt = &created
	}
	return t, nil
}

func count(s kv.Store) (int, error) {
	n := 0
	err := s.Iterate(kv.Range{}, func(kv.Pair) bool {
		n++
		return true
	})
	return n, err
}

// Entries returns up to take common positions after start, in key order.
func (l *Ledger) Entries(start *burn.Address, take int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		out  []Entry
		from []byte
	)
	if start != nil {
		from = start.Bytes()
	}
	_, err := cursor.Walk(l.positions, from, take, func(key, val []byte) (bool, error) {
		var p Position
		if err := record.Decode(val, &p); err != nil {
			return false, err
		}
		p.normalize()
		owner := burn.BytesToAddress(key)
		wins, err := l.getWins(l.wins, owner)
		if err != nil {
			return false, err
		}
		out = append(out, Entry{
			Owner:        owner,
			Share:        p.Share,
			Reward:       p.Reward,
			Eligible:     reward.Eligible(p.Share, l.fee),
			KamikazeWins: wins,
		})
		return false, nil
	})
	return out, err
}

// Kamikazes returns up to take kamikaze positions after start, in key order.
func (l *Ledger) Kamikazes(start *burn.Address, take int) ([]KamikazeEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		out  []KamikazeEntry
		from []byte
	)
	if start != nil {
		from = start.Bytes()
	}
	_, err := cursor.Walk(l.kamikazes, from, take, func(key, val []byte) (bool, error) {
		var k Kamikaze
		if err := record.Decode(val, &k); err != nil {
			return false, err
		}
		owner := burn.BytesToAddress(key)
		wins, err := l.getWins(l.wins, owner)
		if err != nil {
			return false, err
		}
		out = append(out, KamikazeEntry{
			Owner:     owner,
			Share:     burn.OrZero(k.Share),
			CreatedAt: time.Unix(0, int64(k.CreatedAt)).UTC(),
			Wins:      wins,
		})
		return false, nil
	})
	return out, err
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
