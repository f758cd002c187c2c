// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkForwardTSNRoundTrip(t *testing.T) {
	c := &chunkForwardTSN{
		newCumulativeTSN: 500,
		streams: []forwardTSNStream{
			{identifier: 0, sequence: 3},
			{identifier: 1, sequence: 9},
		},
	}

	raw, err := c.marshal()
	require.NoError(t, err)

	var got chunkForwardTSN
	require.NoError(t, got.unmarshal(raw))
	assert.Equal(t, c.newCumulativeTSN, got.newCumulativeTSN)
	assert.Equal(t, c.streams, got.streams)
	assert.Equal(t, ctForwardTSN, got.chunkType())
}

func TestChunkForwardTSNNoStreams(t *testing.T) {
	c := &chunkForwardTSN{newCumulativeTSN: 10}
	raw, err := c.marshal()
	require.NoError(t, err)

	var got chunkForwardTSN
	require.NoError(t, got.unmarshal(raw))
	assert.Equal(t, uint32(10), got.newCumulativeTSN)
	assert.Empty(t, got.streams)
}
