// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"encoding/binary"
	"fmt"
)

const shutdownHeaderSize = 4

// chunkShutdown begins graceful shutdown, carrying the sender's current
// cumulative TSN ack so the peer can confirm all outstanding data landed
// before tearing down (RFC 4960 §9.2).
type chunkShutdown struct {
	chunkHeader

	cumulativeTSNAck uint32
}

func (c *chunkShutdown) unmarshal(raw []byte) error {
	if err := c.chunkHeader.unmarshal(raw); err != nil {
		return err
	}
	if len(c.raw) < shutdownHeaderSize {
		return fmt.Errorf("%w: SHUTDOWN body %d bytes", ErrParamTooShort, len(c.raw))
	}
	c.cumulativeTSNAck = binary.BigEndian.Uint32(c.raw[0:])
	return nil
}

func (c *chunkShutdown) marshal() ([]byte, error) {
	raw := make([]byte, shutdownHeaderSize)
	binary.BigEndian.PutUint32(raw[0:], c.cumulativeTSNAck)

	c.chunkHeader.typ = ctShutdown
	c.chunkHeader.flags = 0
	c.chunkHeader.raw = raw
	return c.chunkHeader.marshal()
}

func (c *chunkShutdown) chunkType() chunkType { return ctShutdown }

// chunkShutdownAck has no value — it's the second leg of the shutdown
// 3-way handshake.
type chunkShutdownAck struct {
	chunkHeader
}

func (c *chunkShutdownAck) unmarshal(raw []byte) error {
	return c.chunkHeader.unmarshal(raw)
}

func (c *chunkShutdownAck) marshal() ([]byte, error) {
	c.chunkHeader.typ = ctShutdownAck
	c.chunkHeader.flags = 0
	c.chunkHeader.raw = nil
	return c.chunkHeader.marshal()
}

func (c *chunkShutdownAck) chunkType() chunkType { return ctShutdownAck }

// chunkShutdownComplete closes out the shutdown handshake. The T bit mirrors
// ABORT's: set when sent without a verification tag reflection.
type chunkShutdownComplete struct {
	chunkHeader

	unexpectedTag bool
}

func (c *chunkShutdownComplete) unmarshal(raw []byte) error {
	if err := c.chunkHeader.unmarshal(raw); err != nil {
		return err
	}
	c.unexpectedTag = c.flags&abortChunkTBitMask != 0
	return nil
}

func (c *chunkShutdownComplete) marshal() ([]byte, error) {
	var flags byte
	if c.unexpectedTag {
		flags |= abortChunkTBitMask
	}
	c.chunkHeader.typ = ctShutdownComplete
	c.chunkHeader.flags = flags
	c.chunkHeader.raw = nil
	return c.chunkHeader.marshal()
}

func (c *chunkShutdownComplete) chunkType() chunkType { return ctShutdownComplete }
