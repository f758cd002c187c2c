// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamUnorderedDelivery(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close(context.Background())
	defer server.Close(context.Background())

	cs, err := client.OpenStream(4, "unordered")
	require.NoError(t, err)
	cs.SetReliabilityParams(true, ReliabilityTypeReliable, 0)

	_, err = cs.WriteSCTP([]byte("a"), PayloadTypeWebRTCString)
	require.NoError(t, err)
	_, err = cs.WriteSCTP([]byte("b"), PayloadTypeWebRTCString)
	require.NoError(t, err)

	ss, err := server.OpenStream(4, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := map[string]bool{}
	buf := make([]byte, 16)
	for i := 0; i < 2; i++ {
		n, _, err := ss.ReadSCTP(ctx, buf)
		require.NoError(t, err)
		got[string(buf[:n])] = true
	}
	assert.True(t, got["a"])
	assert.True(t, got["b"])
}

func TestStreamCloseResetsRemoteSSN(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close(context.Background())
	defer server.Close(context.Background())

	var serverResetIDs, clientResetIDs []uint16
	server.OnReconfigStreams = func(ids []uint16) { serverResetIDs = ids }
	client.OnReconfigStreams = func(ids []uint16) { clientResetIDs = ids }

	cs, err := client.OpenStream(5, "closing")
	require.NoError(t, err)
	_, err = cs.WriteSCTP([]byte("x"), PayloadTypeWebRTCString)
	require.NoError(t, err)

	ss, err := server.OpenStream(5, "")
	require.NoError(t, err)
	buf := make([]byte, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err = ss.ReadSCTP(ctx, buf)
	require.NoError(t, err)

	require.NoError(t, cs.Close())

	// The server, as the passive side of the reset, notifies its own
	// upper layer and mirrors an outgoing reset back to the client, which
	// notifies its upper layer too (RFC 6525 §5.1/§5.2.1).
	require.Eventually(t, func() bool {
		return len(serverResetIDs) == 1 && serverResetIDs[0] == 5
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(clientResetIDs) == 1 && clientResetIDs[0] == 5
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAddOutgoingStreamsNotifiesPeer(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close(context.Background())
	defer server.Close(context.Background())

	var added uint16
	server.OnStreamsAdded = func(count uint16) { added = count }

	require.NoError(t, client.AddOutgoingStreams(10))

	require.Eventually(t, func() bool {
		return added == 10
	}, 2*time.Second, 10*time.Millisecond)
}
