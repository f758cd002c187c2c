// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutgoingResetRequestRoundTrip(t *testing.T) {
	req := &outgoingResetRequestParam{
		reconfigRequestSequenceNumber:  1,
		reconfigResponseSequenceNumber: 0,
		senderLastTSN:                  100,
		streamIdentifiers:               []uint16{3, 5, 9},
	}

	got, err := parseOutgoingResetRequest(req.marshal())
	require.NoError(t, err)
	assert.Equal(t, req.reconfigRequestSequenceNumber, got.reconfigRequestSequenceNumber)
	assert.Equal(t, req.senderLastTSN, got.senderLastTSN)
	assert.Equal(t, req.streamIdentifiers, got.streamIdentifiers)
}

func TestAddStreamsRequestRoundTrip(t *testing.T) {
	req := &addStreamsRequestParam{reconfigRequestSequenceNumber: 2, numNewStreams: 4}
	got, err := parseAddStreamsRequest(req.marshal())
	require.NoError(t, err)
	assert.Equal(t, req.reconfigRequestSequenceNumber, got.reconfigRequestSequenceNumber)
	assert.Equal(t, req.numNewStreams, got.numNewStreams)
}

func TestReconfigResponseRoundTrip(t *testing.T) {
	resp := &reconfigResponseParam{reconfigResponseSequenceNumber: 7, result: reconfigResultSuccessPerformed}
	got, err := parseReconfigResponse(resp.marshal())
	require.NoError(t, err)
	assert.Equal(t, resp.reconfigResponseSequenceNumber, got.reconfigResponseSequenceNumber)
	assert.Equal(t, resp.result, got.result)
}

func TestChunkReconfigRoundTripWithTwoParams(t *testing.T) {
	c := &chunkReconfig{}
	req := &outgoingResetRequestParam{reconfigRequestSequenceNumber: 1, senderLastTSN: 10, streamIdentifiers: []uint16{1}}
	c.addParam(paramOutgoingResetRequest, req.marshal())
	resp := &reconfigResponseParam{reconfigResponseSequenceNumber: 9, result: reconfigResultDenied}
	c.addParam(paramReconfigResponse, resp.marshal())

	raw, err := c.marshal()
	require.NoError(t, err)

	var got chunkReconfig
	require.NoError(t, got.unmarshal(raw))
	require.Len(t, got.rawParams, 2)

	h0, ok := got.paramAt(0)
	require.True(t, ok)
	assert.Equal(t, paramOutgoingResetRequest, h0.typ)

	h1, ok := got.paramAt(1)
	require.True(t, ok)
	assert.Equal(t, paramReconfigResponse, h1.typ)

	_, ok = got.paramAt(2)
	assert.False(t, ok)
}
