// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package dispenser

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/burnpool/burn"
	"github.com/vechain/burnpool/events"
	"github.com/vechain/burnpool/lvldb"
	"github.com/vechain/burnpool/seed"
)

var (
	alice = burn.BytesToAddress([]byte{1})
	bob   = burn.BytesToAddress([]byte{2})
	carol = burn.BytesToAddress([]byte{3})
	kate  = burn.BytesToAddress([]byte{4})
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func u(n uint64) *uint256.Int { return uint256.NewInt(n) }

// staticPool pages a fixed member list ordered by owner.
type staticPool []Member

func newPool(weights map[burn.Address]uint64) staticPool {
	p := make(staticPool, 0, len(weights))
	for owner, w := range weights {
		p = append(p, Member{Owner: owner, Weight: u(w)})
	}
	sort.Slice(p, func(i, j int) bool { return p[i].Owner.Compare(p[j].Owner) < 0 })
	return p
}

func (p staticPool) Members(start *burn.Address, take int) ([]Member, error) {
	var out []Member
	for _, m := range p {
		if start != nil && m.Owner.Compare(*start) <= 0 {
			continue
		}
		if len(out) == take {
			break
		}
		out = append(out, m)
	}
	return out, nil
}

func newDispenser(t *testing.T, opts ...Option) (*Dispenser, *clock) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c := &clock{t: time.Unix(1_700_000_000, 0)}
	base := []Option{WithClock(c.now), WithToken(u(1), time.Hour)}
	d, err := New(db, append(base, opts...)...)
	require.NoError(t, err)
	require.NoError(t, d.Init(context.Background(), seed.EntropyFunc(func(context.Context) (burn.Bytes32, error) {
		return burn.Bytes32{7}, nil
	})))
	return d, c
}

// runTick waits out the tick delay and drives the machine until it is idle again.
func runTick(t *testing.T, d *Dispenser, c *clock, n int) {
	c.advance(d.NextDelay())
	for more, steps := true, 0; more; steps++ {
		var err error
		more, err = d.RunBatch(n)
		require.NoError(t, err)
		require.Less(t, steps, 10_000, "tick does not terminate")
	}
}

func unclaimed(t *testing.T, d *Dispenser, who burn.Address) *uint256.Int {
	v, err := d.Unclaimed(who)
	require.NoError(t, err)
	return v
}

func create(t *testing.T, d *Dispenser, qty, ticks uint64, bonfire bool) uint64 {
	id, err := d.Create(alice, CreateRequest{
		Name:          "test",
		Qty:           u(qty),
		Start:         Start{Kind: AtTickDelay},
		DurationTicks: ticks,
		Bonfire:       bonfire,
	})
	require.NoError(t, err)
	return id
}

func TestTickSplitsPools(t *testing.T) {
	feed := new(events.Feed)
	defer feed.Close()
	ch := make(chan *events.Event, 8)
	sub := feed.Subscribe(ch)
	defer sub.Unsubscribe()

	d, c := newDispenser(t,
		WithEvents(feed),
		WithPools(newPool(map[burn.Address]uint64{alice: 1, bob: 3}), newPool(map[burn.Address]uint64{carol: 1}), nil),
	)
	id := create(t, d, 1000, 10, false)

	runTick(t, d, c, burn.DefaultBatchSize)

	assert.Equal(t, u(12), unclaimed(t, d, alice))
	assert.Equal(t, u(37), unclaimed(t, d, bob))
	assert.Equal(t, u(50), unclaimed(t, d, carol))

	dist, err := d.Get(id)
	require.NoError(t, err)
	assert.Equal(t, InProgress, dist.Status)
	assert.Equal(t, u(901), dist.LeftoverQty)

	tt, err := d.Totals(alice)
	require.NoError(t, err)
	assert.Equal(t, u(99), tt.TotalDistributed)
	assert.Equal(t, uint64(1), tt.Tick)
	assert.False(t, tt.Distributing)
	assert.Equal(t, time.Hour, d.NextDelay())

	ev := <-ch
	assert.Equal(t, events.WinnerDrawn, ev.Kind)
	assert.Equal(t, carol, *ev.Owner)
	ev = <-ch
	assert.Equal(t, events.RoundCompleted, ev.Kind)
	assert.Equal(t, "99", ev.Amount)
	assert.Equal(t, uint64(0), ev.Round)
}

func TestBonfireSplit(t *testing.T) {
	d, c := newDispenser(t,
		WithToken(u(10), time.Hour),
		WithPools(
			newPool(map[burn.Address]uint64{alice: 1}),
			newPool(map[burn.Address]uint64{carol: 1}),
			newPool(map[burn.Address]uint64{kate: 2, bob: 2}),
		),
	)
	id := create(t, d, 300, 1, true)

	runTick(t, d, c, 2)

	assert.Equal(t, u(99), unclaimed(t, d, alice))
	assert.Equal(t, u(99), unclaimed(t, d, carol))
	assert.Equal(t, u(49), unclaimed(t, d, kate))
	assert.Equal(t, u(49), unclaimed(t, d, bob))

	// 4 left, below the token fee
	past, err := d.List(Completed, nil, 10)
	require.NoError(t, err)
	require.Len(t, past, 1)
	assert.Equal(t, id, past[0].ID)
	assert.Equal(t, Completed, past[0].Status)
	assert.Equal(t, u(4), past[0].LeftoverQty)
}

func TestDistributionCompletes(t *testing.T) {
	d, c := newDispenser(t, WithPools(
		newPool(map[burn.Address]uint64{alice: 1}),
		newPool(map[burn.Address]uint64{bob: 1}),
		nil,
	))
	id := create(t, d, 20, 2, false)

	runTick(t, d, c, 1)
	active, err := d.List(InProgress, nil, 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, u(10), active[0].LeftoverQty)

	runTick(t, d, c, 1)
	active, err = d.List(InProgress, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, active)

	dist, err := d.Get(id)
	require.NoError(t, err)
	assert.Equal(t, Completed, dist.Status)
	assert.True(t, dist.LeftoverQty.IsZero())
	assert.Equal(t, u(10), unclaimed(t, d, alice))
	assert.Equal(t, u(10), unclaimed(t, d, bob))
}

func TestBatchSizeDoesNotChangeResult(t *testing.T) {
	common := map[burn.Address]uint64{}
	kamikaze := map[burn.Address]uint64{}
	for i := 1; i <= 20; i++ {
		common[burn.BytesToAddress([]byte{byte(i)})] = uint64(i * 7)
	}
	for i := 21; i <= 26; i++ {
		kamikaze[burn.BytesToAddress([]byte{byte(i)})] = uint64(i)
	}

	run := func(n int) map[burn.Address]*uint256.Int {
		d, c := newDispenser(t, WithPools(newPool(common), newPool(kamikaze), nil))
		create(t, d, 1_000_000, 5, false)
		create(t, d, 77_777, 3, false)
		for range 3 {
			runTick(t, d, c, n)
		}
		out := map[burn.Address]*uint256.Int{}
		for i := 1; i <= 26; i++ {
			a := burn.BytesToAddress([]byte{byte(i)})
			out[a] = unclaimed(t, d, a)
		}
		return out
	}
	assert.Equal(t, run(burn.DefaultBatchSize), run(1))
	assert.Equal(t, run(burn.DefaultBatchSize), run(3))
}

func TestStartDelayAndTrigger(t *testing.T) {
	d, c := newDispenser(t, WithPools(newPool(map[burn.Address]uint64{bob: 1}), nil, nil))

	delayed, err := d.Create(alice, CreateRequest{Qty: u(100), Start: Start{Kind: AtTickDelay, Delay: 2}, DurationTicks: 1})
	require.NoError(t, err)
	triggered, err := d.Create(alice, CreateRequest{Qty: u(100), Start: Start{Kind: AtTrigger}, DurationTicks: 1})
	require.NoError(t, err)

	runTick(t, d, c, 10)
	scheduled, err := d.List(Scheduled, nil, 10)
	require.NoError(t, err)
	require.Len(t, scheduled, 2)
	assert.Equal(t, uint64(1), scheduled[0].Start.Delay)
	assert.True(t, unclaimed(t, d, bob).IsZero())

	require.NoError(t, d.Trigger(triggered))
	runTick(t, d, c, 10)

	for _, id := range []uint64{delayed, triggered} {
		dist, err := d.Get(id)
		require.NoError(t, err)
		assert.NotEqual(t, Scheduled, dist.Status)
	}
	assert.Equal(t, u(100), unclaimed(t, d, bob))

	assert.True(t, burn.IsValidation(d.Trigger(delayed)))
}

func TestCancelAndWithdraw(t *testing.T) {
	d, _ := newDispenser(t)
	id, err := d.Create(alice, CreateRequest{Qty: u(500), Start: Start{Kind: AtTrigger}, DurationTicks: 5})
	require.NoError(t, err)

	assert.True(t, burn.IsValidation(d.Cancel(bob, id)))
	require.NoError(t, d.Cancel(alice, id))
	assert.True(t, burn.IsValidation(d.Cancel(alice, id)))

	canceled, err := d.List(Canceled, nil, 10)
	require.NoError(t, err)
	require.Len(t, canceled, 1)
	assert.Equal(t, Canceled, canceled[0].Status)

	assert.True(t, burn.IsValidation(d.WithdrawCanceled(bob, id, u(1))))
	require.NoError(t, d.WithdrawCanceled(alice, id, u(400)))
	assert.True(t, burn.IsValidation(d.WithdrawCanceled(alice, id, u(101))))

	require.NoError(t, d.RevertWithdrawCanceled(alice, id, u(400)))
	dist, err := d.Get(id)
	require.NoError(t, err)
	assert.Equal(t, u(500), dist.LeftoverQty)
	assert.True(t, burn.IsInvariant(d.RevertWithdrawCanceled(alice, id, u(1))))
}

func TestHiddenDistribution(t *testing.T) {
	d, c := newDispenser(t, WithPools(newPool(map[burn.Address]uint64{bob: 1}), nil, nil))
	id, err := d.Create(alice, CreateRequest{Qty: u(100), Start: Start{Kind: AtTickDelay, Delay: 2}, DurationTicks: 4, Hidden: true})
	require.NoError(t, err)

	dist, err := d.Get(id)
	require.NoError(t, err)
	assert.True(t, dist.ScheduledQty.IsZero())
	assert.True(t, dist.TickReward.IsZero())

	runTick(t, d, c, 10)
	runTick(t, d, c, 10)
	dist, err = d.Get(id)
	require.NoError(t, err)
	assert.Equal(t, InProgress, dist.Status)
	assert.Equal(t, u(100), dist.ScheduledQty)
	assert.Equal(t, u(25), dist.TickReward)
}

func TestCreateValidation(t *testing.T) {
	d, _ := newDispenser(t)
	for name, req := range map[string]CreateRequest{
		"zero qty":      {Qty: u(0), DurationTicks: 1},
		"nil qty":       {DurationTicks: 1},
		"zero duration": {Qty: u(10)},
		"long delay":    {Qty: u(10), DurationTicks: 1, Start: Start{Kind: AtTickDelay, Delay: burn.MaxTickDelay + 1}},
		"bad start":     {Qty: u(10), DurationTicks: 1, Start: Start{Kind: 9}},
		"dust":          {Qty: u(3), DurationTicks: 4},
	} {
		_, err := d.Create(alice, req)
		assert.True(t, burn.IsValidation(err), name)
	}
}

func TestClaimTokens(t *testing.T) {
	d, c := newDispenser(t, WithPools(newPool(map[burn.Address]uint64{bob: 1}), nil, nil))
	create(t, d, 100, 1, false)
	runTick(t, d, c, 10)
	require.Equal(t, u(50), unclaimed(t, d, bob))

	assert.True(t, burn.IsValidation(d.ClaimTokens(bob, u(51))))
	assert.True(t, burn.IsValidation(d.ClaimTokens(bob, u(0))))
	require.NoError(t, d.ClaimTokens(bob, u(50)))
	assert.True(t, unclaimed(t, d, bob).IsZero())

	require.NoError(t, d.Stop())
	assert.True(t, burn.IsStopped(d.ClaimTokens(bob, u(1))))
	require.NoError(t, d.RevertClaimTokens(bob, u(50)))
	assert.Equal(t, u(50), unclaimed(t, d, bob))
}

func TestMutationsDuringTick(t *testing.T) {
	d, c := newDispenser(t, WithPools(newPool(map[burn.Address]uint64{alice: 1, bob: 1, carol: 1}), nil, nil))
	id := create(t, d, 100, 1, false)
	runTick(t, d, c, 10)

	c.advance(d.NextDelay())
	more, err := d.RunBatch(1)
	require.NoError(t, err)
	require.True(t, more)

	_, err = d.Create(alice, CreateRequest{Qty: u(10), DurationTicks: 1})
	assert.True(t, burn.IsValidation(err))
	assert.True(t, burn.IsValidation(d.Trigger(id)))
	require.NoError(t, d.ClaimTokens(alice, u(1)))
}

func TestStopped(t *testing.T) {
	d, c := newDispenser(t, WithPools(newPool(map[burn.Address]uint64{bob: 1}), nil, nil))
	create(t, d, 100, 1, false)
	require.NoError(t, d.Stop())

	stopped, err := d.Stopped()
	require.NoError(t, err)
	assert.True(t, stopped)

	c.advance(2 * time.Hour)
	more, err := d.RunBatch(10)
	require.NoError(t, err)
	assert.False(t, more)
	assert.True(t, burn.IsStopped(func() error { _, err := d.Create(alice, CreateRequest{Qty: u(1), DurationTicks: 1}); return err }()))

	require.NoError(t, d.Resume())
	runTick(t, d, c, 10)
	assert.Equal(t, u(50), unclaimed(t, d, bob))
}

func TestRunBatchNeedsSeed(t *testing.T) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	defer db.Close()

	d, err := New(db)
	require.NoError(t, err)
	_, err = d.RunBatch(1)
	assert.ErrorIs(t, err, errNotSeeded)
}

func TestPoolErrorIsExternal(t *testing.T) {
	boom := errors.New("boom")
	d, c := newDispenser(t, WithPools(PoolFunc(func(*burn.Address, int) ([]Member, error) { return nil, boom }), nil, nil))
	c.advance(d.NextDelay())

	_, err := d.RunBatch(1)
	require.NoError(t, err)
	_, err = d.RunBatch(1)
	assert.True(t, burn.IsExternalCall(err))
}

func TestReopen(t *testing.T) {
	path := t.TempDir()
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	pools := WithPools(newPool(map[burn.Address]uint64{alice: 1, bob: 1, carol: 2}), nil, nil)
	open := func() (*Dispenser, func()) {
		db, err := lvldb.New(path, lvldb.Options{})
		require.NoError(t, err)
		d, err := New(db, WithClock(c.now), WithToken(u(1), time.Hour), pools)
		require.NoError(t, err)
		return d, func() { db.Close() }
	}

	d, closeDB := open()
	require.NoError(t, d.Init(context.Background(), seed.EntropyFunc(func(context.Context) (burn.Bytes32, error) {
		return burn.Bytes32{7}, nil
	})))
	create(t, d, 400, 1, false)
	c.advance(d.NextDelay())
	for range 5 {
		_, err := d.RunBatch(1)
		require.NoError(t, err)
	}
	closeDB()

	d, closeDB = open()
	defer closeDB()
	tt, err := d.Totals(alice)
	require.NoError(t, err)
	require.True(t, tt.Distributing)
	for more := true; more; {
		more, err = d.RunBatch(1)
		require.NoError(t, err)
	}
	assert.Equal(t, u(50), unclaimed(t, d, alice))
	assert.Equal(t, u(50), unclaimed(t, d, bob))
	assert.Equal(t, u(100), unclaimed(t, d, carol))
}
