// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package scheduler drives batch machines with one pending timer per machine.
//
// Steps of all machines are serialized by a single step lock, so a machine never observes
// another machine's step half applied.
package scheduler

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/pkg/errors"

	"github.com/vechain/burnpool/health"
	"github.com/vechain/burnpool/log"
	"github.com/vechain/burnpool/metrics"
)

var (
	logger      = log.WithContext("pkg", "scheduler")
	metricSteps = metrics.LazyLoadCounterVec("scheduler_steps_count", []string{"machine", "result"})
)

// MinDelay is the re-arm delay while a machine has pending work.
const MinDelay = time.Millisecond

// Machine is a resumable state machine advanced in bounded steps.
type Machine interface {
	Name() string
	// RunBatch performs one step over at most n entries and reports whether more work is pending.
	RunBatch(n int) (bool, error)
	// NextDelay is how long the machine has no work.
	NextDelay() time.Duration
}

// Options tune a Scheduler.
type Options struct {
	BatchSize  int
	ErrorDelay time.Duration // re-arm delay after a failed step
	Health     *health.Health
}

type entry struct {
	m     Machine
	timer mclock.Timer
}

// Scheduler runs registered machines.
type Scheduler struct {
	clock mclock.Clock
	opts  Options

	step sync.Mutex // held while any machine steps

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// New creates a scheduler on clock.
func New(clock mclock.Clock, opts Options) *Scheduler {
	if opts.ErrorDelay <= 0 {
		opts.ErrorDelay = 10 * time.Second
	}
	return &Scheduler{
		clock:   clock,
		opts:    opts,
		entries: map[string]*entry{},
	}
}

// Register starts scheduling m. The first step is due immediately.
func (s *Scheduler) Register(m Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("scheduler closed")
	}
	if _, ok := s.entries[m.Name()]; ok {
		return errors.Errorf("machine %q already registered", m.Name())
	}
	e := &entry{m: m}
	s.entries[m.Name()] = e
	if s.opts.Health != nil {
		s.opts.Health.Register(m.Name())
	}
	s.arm(e, MinDelay)
	logger.Debug("machine registered", "machine", m.Name())
	return nil
}

// Kick makes the next step of the named machine due immediately, e.g. after it was resumed.
func (s *Scheduler) Kick(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[name]; ok && !s.closed {
		s.arm(e, MinDelay)
	}
}

// arm replaces the pending timer of e. s.mu must be held.
func (s *Scheduler) arm(e *entry, d time.Duration) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = s.clock.AfterFunc(max(d, MinDelay), func() { s.fire(e) })
}

func (s *Scheduler) fire(e *entry) {
	s.step.Lock()
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		s.step.Unlock()
		return
	}

	more, err := e.m.RunBatch(s.opts.BatchSize)
	var delay time.Duration
	switch {
	case err != nil:
		delay = s.opts.ErrorDelay
	case more:
		delay = MinDelay
	default:
		delay = e.m.NextDelay()
	}
	s.step.Unlock()

	name := e.m.Name()
	if s.opts.Health != nil {
		s.opts.Health.Step(name, err)
	}
	result := "idle"
	switch {
	case err != nil:
		result = "error"
		logger.Error("batch step failed", "machine", name, "err", err, "retry", delay)
	case more:
		result = "more"
	}
	metricSteps().AddWithLabel(1, map[string]string{"machine": name, "result": result})

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.arm(e, delay)
	}
}

// Close cancels all pending timers and waits for a running step.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for _, e := range s.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	s.mu.Unlock()

	s.step.Lock()
	defer s.step.Unlock()
}
