// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	p := &packet{
		sourcePort:      1,
		destinationPort: 2,
		verificationTag: 0xdeadbeef,
		chunks: []chunk{
			&chunkPayloadData{
				tsn:                  42,
				streamIdentifier:     3,
				streamSequenceNumber: 7,
				payloadType:          PayloadTypeWebRTCBinary,
				userData:             []byte("hello"),
				beginningFragment:    true,
				endingFragment:       true,
			},
		},
	}

	raw, err := p.marshal()
	require.NoError(t, err)

	var got packet
	require.NoError(t, got.unmarshal(raw))

	assert.Equal(t, p.sourcePort, got.sourcePort)
	assert.Equal(t, p.destinationPort, got.destinationPort)
	assert.Equal(t, p.verificationTag, got.verificationTag)
	require.Len(t, got.chunks, 1)

	data, ok := got.chunks[0].(*chunkPayloadData)
	require.True(t, ok)
	assert.Equal(t, uint32(42), data.tsn)
	assert.Equal(t, []byte("hello"), data.userData)
	assert.True(t, data.beginningFragment)
	assert.True(t, data.endingFragment)
}

func TestPacketChecksumMismatch(t *testing.T) {
	p := &packet{verificationTag: 1, chunks: []chunk{&chunkCookieAck{}}}
	raw, err := p.marshal()
	require.NoError(t, err)

	raw[8] ^= 0xff
	var got packet
	assert.ErrorIs(t, got.unmarshal(raw), ErrChecksumMismatch)
}

func TestPacketTooShort(t *testing.T) {
	var p packet
	assert.ErrorIs(t, p.unmarshal([]byte{1, 2, 3}), ErrPacketRawTooSmall)
}

func TestBuildChunkUnknownType(t *testing.T) {
	c, err := buildChunk(chunkType(255))
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrUnmarshalUnknownChunkType)
}

func TestPacketSkipsUnknownChunkType(t *testing.T) {
	ack, err := (&chunkCookieAck{}).marshal()
	require.NoError(t, err)
	unknown := []byte{255, 0, 0, 4} // unrecognized type, header only, already 4-byte aligned

	raw := make([]byte, packetHeaderSize, packetHeaderSize+len(ack)+len(unknown))
	raw = append(raw, ack...)
	raw = append(raw, unknown...)
	binary.LittleEndian.PutUint32(raw[8:12], generatePacketChecksum(raw))

	var got packet
	require.NoError(t, got.unmarshal(raw))
	require.Len(t, got.chunks, 1)
	_, ok := got.chunks[0].(*chunkCookieAck)
	assert.True(t, ok)
}
