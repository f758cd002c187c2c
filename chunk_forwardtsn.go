// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"encoding/binary"
	"fmt"
)

// forwardTSNStream is a (stream id, highest abandoned SSN) pair carried in
// a FORWARD-TSN chunk (RFC 3758 §3.2).
type forwardTSNStream struct {
	identifier uint16
	sequence   uint16
}

const forwardTSNHeaderSize = 4

// chunkForwardTSN advances the peer's cumulative TSN across chunks the
// sender has abandoned under partial reliability (RFC 3758).
type chunkForwardTSN struct {
	chunkHeader

	newCumulativeTSN uint32
	streams          []forwardTSNStream
}

func (c *chunkForwardTSN) unmarshal(raw []byte) error {
	if err := c.chunkHeader.unmarshal(raw); err != nil {
		return err
	}
	if len(c.raw) < forwardTSNHeaderSize {
		return fmt.Errorf("%w: FORWARD-TSN body %d bytes", ErrParamTooShort, len(c.raw))
	}
	c.newCumulativeTSN = binary.BigEndian.Uint32(c.raw[0:])

	offset := forwardTSNHeaderSize
	for offset+4 <= len(c.raw) {
		c.streams = append(c.streams, forwardTSNStream{
			identifier: binary.BigEndian.Uint16(c.raw[offset:]),
			sequence:   binary.BigEndian.Uint16(c.raw[offset+2:]),
		})
		offset += 4
	}
	return nil
}

func (c *chunkForwardTSN) marshal() ([]byte, error) {
	raw := make([]byte, forwardTSNHeaderSize+4*len(c.streams))
	binary.BigEndian.PutUint32(raw[0:], c.newCumulativeTSN)
	offset := forwardTSNHeaderSize
	for _, s := range c.streams {
		binary.BigEndian.PutUint16(raw[offset:], s.identifier)
		binary.BigEndian.PutUint16(raw[offset+2:], s.sequence)
		offset += 4
	}

	c.chunkHeader.typ = ctForwardTSN
	c.chunkHeader.flags = 0
	c.chunkHeader.raw = raw
	return c.chunkHeader.marshal()
}

func (c *chunkForwardTSN) chunkType() chunkType { return ctForwardTSN }
