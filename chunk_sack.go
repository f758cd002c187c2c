// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"encoding/binary"
	"fmt"
)

// gapAckBlock is a single (start, end) run in a SACK's gap-ack-block list,
// offsets relative to the cumulative TSN ack (RFC 4960 §3.3.4).
type gapAckBlock struct {
	start uint16
	end   uint16
}

const sackHeaderSize = 12

// chunkSelectiveAck is the SACK chunk.
type chunkSelectiveAck struct {
	chunkHeader

	cumulativeTSNAck uint32
	advertisedRwnd   uint32
	gapAckBlocks     []gapAckBlock
	duplicateTSN     []uint32
}

func (c *chunkSelectiveAck) unmarshal(raw []byte) error {
	if err := c.chunkHeader.unmarshal(raw); err != nil {
		return err
	}
	if len(c.raw) < sackHeaderSize {
		return fmt.Errorf("%w: SACK body %d bytes", ErrParamTooShort, len(c.raw))
	}

	c.cumulativeTSNAck = binary.BigEndian.Uint32(c.raw[0:])
	c.advertisedRwnd = binary.BigEndian.Uint32(c.raw[4:])
	numGapBlocks := binary.BigEndian.Uint16(c.raw[8:])
	numDup := binary.BigEndian.Uint16(c.raw[10:])

	offset := sackHeaderSize
	for i := uint16(0); i < numGapBlocks; i++ {
		if offset+4 > len(c.raw) {
			return fmt.Errorf("%w: gap ack block %d truncated", ErrParamTooShort, i)
		}
		c.gapAckBlocks = append(c.gapAckBlocks, gapAckBlock{
			start: binary.BigEndian.Uint16(c.raw[offset:]),
			end:   binary.BigEndian.Uint16(c.raw[offset+2:]),
		})
		offset += 4
	}

	for i := uint16(0); i < numDup; i++ {
		if offset+4 > len(c.raw) {
			return fmt.Errorf("%w: duplicate tsn %d truncated", ErrParamTooShort, i)
		}
		c.duplicateTSN = append(c.duplicateTSN, binary.BigEndian.Uint32(c.raw[offset:]))
		offset += 4
	}

	return nil
}

func (c *chunkSelectiveAck) marshal() ([]byte, error) {
	raw := make([]byte, sackHeaderSize+4*len(c.gapAckBlocks)+4*len(c.duplicateTSN))
	binary.BigEndian.PutUint32(raw[0:], c.cumulativeTSNAck)
	binary.BigEndian.PutUint32(raw[4:], c.advertisedRwnd)
	binary.BigEndian.PutUint16(raw[8:], uint16(len(c.gapAckBlocks)))
	binary.BigEndian.PutUint16(raw[10:], uint16(len(c.duplicateTSN)))

	offset := sackHeaderSize
	for _, b := range c.gapAckBlocks {
		binary.BigEndian.PutUint16(raw[offset:], b.start)
		binary.BigEndian.PutUint16(raw[offset+2:], b.end)
		offset += 4
	}
	for _, d := range c.duplicateTSN {
		binary.BigEndian.PutUint32(raw[offset:], d)
		offset += 4
	}

	c.chunkHeader.typ = ctSack
	c.chunkHeader.flags = 0
	c.chunkHeader.raw = raw
	return c.chunkHeader.marshal()
}

func (c *chunkSelectiveAck) chunkType() chunkType { return ctSack }
