// Copyright (c) 2025 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package health

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth_Step(t *testing.T) {
	h := New(2)
	h.Register("raffle")
	h.Register("ledger")

	status, err := h.Status()
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	require.Len(t, status.Machines, 2)
	assert.Equal(t, "ledger", status.Machines[0].Name)
	assert.Nil(t, status.Machines[0].LastStep)

	boom := errors.New("boom")
	h.Step("ledger", boom)
	status, _ = h.Status()
	assert.True(t, status.Healthy)
	assert.Equal(t, "boom", status.Machines[0].LastError)

	h.Step("ledger", boom)
	status, _ = h.Status()
	assert.False(t, status.Healthy)
	assert.Equal(t, 2, status.Machines[0].ConsecutiveFailures)

	h.Step("ledger", nil)
	status, _ = h.Status()
	assert.True(t, status.Healthy)
	assert.Equal(t, uint64(3), status.Machines[0].Steps)
	assert.Empty(t, status.Machines[0].LastError)
	assert.NotNil(t, status.Machines[0].LastStep)
}

func TestHealth_DefaultThreshold(t *testing.T) {
	h := New(0)
	for range DefaultMaxFailures - 1 {
		h.Step("dispenser", errors.New("x"))
	}
	status, _ := h.Status()
	assert.True(t, status.Healthy)
	h.Step("dispenser", errors.New("x"))
	status, _ = h.Status()
	assert.False(t, status.Healthy)
}

func TestHealth_Get(t *testing.T) {
	h := New(2)
	_, _, ok := h.Get("ledger")
	assert.False(t, ok)

	h.Register("ledger")
	m, healthy, ok := h.Get("ledger")
	assert.True(t, ok)
	assert.True(t, healthy)
	assert.Zero(t, m.Steps)

	h.Step("ledger", errors.New("io"))
	h.Step("ledger", errors.New("io"))
	m, healthy, _ = h.Get("ledger")
	assert.False(t, healthy)
	assert.Equal(t, "io", m.LastError)
}
