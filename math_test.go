// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerialArithmetic32(t *testing.T) {
	cases := []struct {
		a, b uint32
		gt   bool
	}{
		{1, 0, true},
		{0, 1, false},
		{0, 0, false},
		{math.MaxUint32, 0, false}, // wraparound: 0 is "after" MaxUint32
		{0, math.MaxUint32, true},
		{1 << 31, 0, false}, // exactly half the ring: ambiguous, defined false both ways
		{0, 1 << 31, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.gt, sna32GT(c.a, c.b), "sna32GT(%d,%d)", c.a, c.b)
	}
}

func TestSerialArithmetic32Antisymmetric(t *testing.T) {
	pairs := [][2]uint32{{5, 3}, {0, math.MaxUint32}, {1000, 999}, {42, 42}}
	for _, p := range pairs {
		a, b := p[0], p[1]
		if sna32GT(a, b) {
			assert.False(t, sna32GT(b, a), "both %d>%d and %d>%d held", a, b, b, a)
		}
	}
}

func TestSerialArithmetic32Total(t *testing.T) {
	// Within a 2^31 window every non-equal pair compares one way or the other.
	base := uint32(1000)
	for i := uint32(1); i < 1<<20; i *= 7 {
		a, b := base+i, base
		assert.True(t, sna32GT(a, b) != sna32GT(b, a))
	}
}

func TestSerialArithmetic32GTE(t *testing.T) {
	assert.True(t, sna32GTE(5, 5))
	assert.True(t, sna32GTE(6, 5))
	assert.False(t, sna32GTE(4, 5))
}

func TestSerialArithmetic16(t *testing.T) {
	assert.True(t, sna16GT(1, 0))
	assert.False(t, sna16GT(0, 1))
	assert.True(t, sna16GT(0, math.MaxUint16))
	assert.False(t, sna16GT(math.MaxUint16, 0))
	assert.True(t, sna16GTE(5, 5))
	assert.True(t, sna16LT(0, 1))
	assert.True(t, sna16LTE(5, 5))
}
