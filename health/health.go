// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package health

import (
	"sort"
	"sync"
	"time"
)

// DefaultMaxFailures consecutive failed steps after which a machine is unhealthy.
const DefaultMaxFailures = 3

type Machine struct {
	Name                string     `json:"name"`
	LastStep            *time.Time `json:"lastStep"`
	LastError           string     `json:"lastError,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	Steps               uint64     `json:"steps"`
}

type Status struct {
	Healthy  bool      `json:"healthy"`
	Machines []Machine `json:"machines"`
}

type Health struct {
	lock        sync.RWMutex
	machines    map[string]*Machine
	maxFailures int
}

func New(maxFailures int) *Health {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	return &Health{
		machines:    map[string]*Machine{},
		maxFailures: maxFailures,
	}
}

// Register adds a machine that has not stepped yet.
func (h *Health) Register(name string) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if _, ok := h.machines[name]; !ok {
		h.machines[name] = &Machine{Name: name}
	}
}

// Step records the outcome of one batch step of name.
func (h *Health) Step(name string, err error) {
	h.lock.Lock()
	defer h.lock.Unlock()

	m, ok := h.machines[name]
	if !ok {
		m = &Machine{Name: name}
		h.machines[name] = m
	}
	now := time.Now()
	m.LastStep = &now
	m.Steps++
	if err != nil {
		m.LastError = err.Error()
		m.ConsecutiveFailures++
	} else {
		m.LastError = ""
		m.ConsecutiveFailures = 0
	}
}

func (h *Health) Status() (*Status, error) {
	h.lock.RLock()
	defer h.lock.RUnlock()

	status := &Status{Healthy: true, Machines: make([]Machine, 0, len(h.machines))}
	for _, m := range h.machines {
		if m.ConsecutiveFailures >= h.maxFailures {
			status.Healthy = false
		}
		status.Machines = append(status.Machines, *m)
	}
	sort.Slice(status.Machines, func(i, j int) bool { return status.Machines[i].Name < status.Machines[j].Name })
	return status, nil
}

// Get returns the record of name and whether it is below the failure threshold.
func (h *Health) Get(name string) (m Machine, healthy bool, ok bool) {
	h.lock.RLock()
	defer h.lock.RUnlock()

	p, ok := h.machines[name]
	if !ok {
		return Machine{}, false, false
	}
	return *p, p.ConsecutiveFailures < h.maxFailures, true
}
