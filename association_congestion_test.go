// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFastRetransmitOnThreeDuplicateSACKs exercises RFC 4960 §7.2.4 directly
// against an association's congestion-control bookkeeping: TSN 1 is lost,
// TSNs 2-4 arrive, and the peer's SACK reports the gap. Three SACKs saying
// the same thing should fast-retransmit TSN 1 without waiting on T3-rtx.
func TestFastRetransmitOnThreeDuplicateSACKs(t *testing.T) {
	a := newAssociation(Config{})
	defer close(a.closedCh)

	a.cumulativeTSNAckPoint = 0
	a.myNextTSN = 5
	for tsn := uint32(1); tsn <= 4; tsn++ {
		a.inflight[tsn] = &inflightChunk{
			chunk:   &chunkPayloadData{tsn: tsn, userData: []byte("x")},
			sentAt:  time.Now(),
			relType: ReliabilityTypeReliable,
		}
	}

	sack := &chunkSelectiveAck{
		cumulativeTSNAck: 0,
		gapAckBlocks:     []gapAckBlock{{start: 2, end: 4}},
	}

	require.NoError(t, a.onSACK(sack))
	assert.Equal(t, 1, a.inflight[1].misses)
	assert.False(t, a.inFastRecovery)

	require.NoError(t, a.onSACK(sack))
	assert.Equal(t, 2, a.inflight[1].misses)
	assert.False(t, a.inFastRecovery)

	require.NoError(t, a.onSACK(sack))
	assert.True(t, a.inFastRecovery)
	assert.Equal(t, uint64(1), a.Stats().NumFastRetrans)
	assert.Equal(t, 0, a.inflight[1].misses) // reset once retransmitted
	require.Len(t, a.pending, 1)
	assert.Equal(t, uint32(1), a.pending[0].tsn)
	assert.Equal(t, 1, a.inflight[1].retransmits)
}
