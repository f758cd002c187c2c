// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkAbortRoundTrip(t *testing.T) {
	c := &chunkAbort{unexpectedTag: true, errorCauses: staleCookieCause()}
	raw, err := c.marshal()
	require.NoError(t, err)

	var got chunkAbort
	require.NoError(t, got.unmarshal(raw))
	assert.True(t, got.unexpectedTag)
	assert.Equal(t, c.errorCauses, got.errorCauses)
}

func TestChunkShutdownRoundTrip(t *testing.T) {
	c := &chunkShutdown{cumulativeTSNAck: 77}
	raw, err := c.marshal()
	require.NoError(t, err)

	var got chunkShutdown
	require.NoError(t, got.unmarshal(raw))
	assert.Equal(t, uint32(77), got.cumulativeTSNAck)
}

func TestChunkShutdownAckAndComplete(t *testing.T) {
	ackRaw, err := (&chunkShutdownAck{}).marshal()
	require.NoError(t, err)
	var ack chunkShutdownAck
	require.NoError(t, ack.unmarshal(ackRaw))

	completeRaw, err := (&chunkShutdownComplete{unexpectedTag: true}).marshal()
	require.NoError(t, err)
	var complete chunkShutdownComplete
	require.NoError(t, complete.unmarshal(completeRaw))
	assert.True(t, complete.unexpectedTag)
}

func TestChunkErrorStaleCookieCause(t *testing.T) {
	c := &chunkError{causes: staleCookieCause()}
	raw, err := c.marshal()
	require.NoError(t, err)

	var got chunkError
	require.NoError(t, got.unmarshal(raw))
	code, ok := firstCauseCode(got.causes)
	require.True(t, ok)
	assert.Equal(t, errorCauseStaleCookie, code)
}

func TestChunkCookieEchoAndAck(t *testing.T) {
	echo := &chunkCookieEcho{cookie: []byte("opaque-cookie")}
	raw, err := echo.marshal()
	require.NoError(t, err)
	var gotEcho chunkCookieEcho
	require.NoError(t, gotEcho.unmarshal(raw))
	assert.Equal(t, echo.cookie, gotEcho.cookie)

	ackRaw, err := (&chunkCookieAck{}).marshal()
	require.NoError(t, err)
	var gotAck chunkCookieAck
	assert.NoError(t, gotAck.unmarshal(ackRaw))
}

func TestChunkHeartbeatRoundTrip(t *testing.T) {
	hb := &chunkHeartbeat{params: []byte{1, 2, 3, 4}}
	raw, err := hb.marshal()
	require.NoError(t, err)
	var got chunkHeartbeat
	require.NoError(t, got.unmarshal(raw))
	assert.Equal(t, hb.params, got.params)

	hbAck := &chunkHeartbeatAck{params: []byte{1, 2, 3, 4}}
	rawAck, err := hbAck.marshal()
	require.NoError(t, err)
	var gotAck chunkHeartbeatAck
	require.NoError(t, gotAck.unmarshal(rawAck))
	assert.Equal(t, hbAck.params, gotAck.params)
}

func TestInitCommonRoundTripWithCookie(t *testing.T) {
	c := &chunkInitAck{initCommon: initCommon{
		initiateTag:     1,
		advertisedRwnd:  2,
		numOutboundStrm: 3,
		numInboundStrm:  4,
		initialTSN:      5,
		stateCookie:     []byte("cookie-bytes"),
	}}
	raw, err := c.marshal()
	require.NoError(t, err)

	var got chunkInitAck
	require.NoError(t, got.unmarshal(raw))
	assert.Equal(t, c.initiateTag, got.initiateTag)
	assert.Equal(t, c.stateCookie, got.stateCookie)
}
