// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipePair dials a Client and Server association over an in-memory net.Pipe,
// standing in for a DTLS connection carrying WebRTC Data Channel traffic.
func pipePair(t *testing.T) (client, server *Association) {
	t.Helper()
	c1, c2 := net.Pipe()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		a   *Association
		err error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	go func() {
		a, err := Client(ctx, Config{NetConn: c1, Name: "client"})
		clientCh <- result{a, err}
	}()
	go func() {
		a, err := Server(ctx, Config{NetConn: c2, Name: "server"})
		serverCh <- result{a, err}
	}()

	cr := <-clientCh
	sr := <-serverCh
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)

	return cr.a, sr.a
}

func TestHandshakeEstablishes(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close(context.Background())
	defer server.Close(context.Background())

	assert.Equal(t, stateEstablished, client.state)
	assert.Equal(t, stateEstablished, server.state)
}

func TestStreamOrderedDelivery(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close(context.Background())
	defer server.Close(context.Background())

	cs, err := client.OpenStream(1, "chat")
	require.NoError(t, err)

	_, err = cs.WriteSCTP([]byte("hello"), PayloadTypeWebRTCString)
	require.NoError(t, err)
	_, err = cs.WriteSCTP([]byte("world"), PayloadTypeWebRTCString)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var ss *Stream
	require.Eventually(t, func() bool {
		ss, _ = server.OpenStream(1, "")
		return ss != nil
	}, 2*time.Second, 10*time.Millisecond)

	buf := make([]byte, 64)
	n, ppi, err := ss.ReadSCTP(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	assert.Equal(t, PayloadTypeWebRTCString, ppi)

	n, _, err = ss.ReadSCTP(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))
}

func TestStreamLargeMessageFragmentsAndReassembles(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close(context.Background())
	defer server.Close(context.Background())

	cs, err := client.OpenStream(2, "bulk")
	require.NoError(t, err)

	payload := make([]byte, 4000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	_, err = cs.WriteSCTP(payload, PayloadTypeWebRTCBinary)
	require.NoError(t, err)

	ss, err := server.OpenStream(2, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	buf := make([]byte, len(payload))
	total := 0
	for total < len(payload) {
		n, _, err := ss.ReadSCTP(ctx, buf[total:])
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, payload, buf)
}

func TestGracefulClose(t *testing.T) {
	client, server := pipePair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, client.Close(ctx))
	require.Eventually(t, func() bool {
		return server.state == stateClosed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStatsCountDataAndSacks(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close(context.Background())
	defer server.Close(context.Background())

	cs, err := client.OpenStream(1, "s")
	require.NoError(t, err)
	_, err = cs.WriteSCTP([]byte("x"), PayloadTypeWebRTCString)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return client.Stats().NumSACKs > 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Greater(t, server.Stats().NumDATAs, uint64(0))
}
