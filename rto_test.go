// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRTOManagerInitial(t *testing.T) {
	m := newRTOManager()
	assert.Equal(t, rtoInitial, m.getRTO())
}

func TestRTOManagerObserveConverges(t *testing.T) {
	m := newRTOManager()
	for i := 0; i < 20; i++ {
		m.observeRTT(100 * time.Millisecond)
	}
	rto := m.getRTO()
	assert.GreaterOrEqual(t, rto, 100*time.Millisecond)
	assert.Less(t, rto, rtoInitial)
}

func TestRTOManagerBackoffClampsToMax(t *testing.T) {
	m := newRTOManager()
	for i := 0; i < 20; i++ {
		m.backoff()
	}
	assert.Equal(t, rtoMax, m.getRTO())
}

func TestRTOManagerClampsToMin(t *testing.T) {
	m := newRTOManager()
	for i := 0; i < 50; i++ {
		m.observeRTT(time.Microsecond)
	}
	assert.GreaterOrEqual(t, m.getRTO(), rtoMin)
}

func TestRTOManagerReset(t *testing.T) {
	m := newRTOManager()
	m.observeRTT(500 * time.Millisecond)
	m.reset()
	assert.Equal(t, rtoInitial, m.getRTO())
}
