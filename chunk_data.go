// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import "encoding/binary"

// DATA chunk flag bits (RFC 4960 §3.3.1). The I bit (immediate SACK, RFC
// 7053) is not used — nothing in this module requests an immediate SACK.
const (
	dataChunkEndingFragmentBitmask   = 1 << 0
	dataChunkBeginningFragmentBitmask = 1 << 1
	dataChunkUnorderedBitmask        = 1 << 2

	dataChunkHeaderSize = 12
)

// chunkPayloadData is the DATA chunk: one fragment of a user message.
type chunkPayloadData struct {
	chunkHeader

	tsn                  uint32
	streamIdentifier     uint16
	streamSequenceNumber uint16
	payloadType          PayloadProtocolID
	userData             []byte

	beginningFragment bool
	endingFragment    bool
	unordered         bool
}

func (c *chunkPayloadData) unmarshal(raw []byte) error {
	if err := c.chunkHeader.unmarshal(raw); err != nil {
		return err
	}
	if len(c.raw) < dataChunkHeaderSize {
		return ErrParamTooShort
	}

	c.endingFragment = c.flags&dataChunkEndingFragmentBitmask != 0
	c.beginningFragment = c.flags&dataChunkBeginningFragmentBitmask != 0
	c.unordered = c.flags&dataChunkUnorderedBitmask != 0

	c.tsn = binary.BigEndian.Uint32(c.raw[0:])
	c.streamIdentifier = binary.BigEndian.Uint16(c.raw[4:])
	c.streamSequenceNumber = binary.BigEndian.Uint16(c.raw[6:])
	c.payloadType = PayloadProtocolID(binary.BigEndian.Uint32(c.raw[8:]))
	c.userData = c.raw[dataChunkHeaderSize:]
	return nil
}

func (c *chunkPayloadData) marshal() ([]byte, error) {
	raw := make([]byte, dataChunkHeaderSize+len(c.userData))
	binary.BigEndian.PutUint32(raw[0:], c.tsn)
	binary.BigEndian.PutUint16(raw[4:], c.streamIdentifier)
	binary.BigEndian.PutUint16(raw[6:], c.streamSequenceNumber)
	binary.BigEndian.PutUint32(raw[8:], uint32(c.payloadType))
	copy(raw[dataChunkHeaderSize:], c.userData)

	var flags byte
	if c.endingFragment {
		flags |= dataChunkEndingFragmentBitmask
	}
	if c.beginningFragment {
		flags |= dataChunkBeginningFragmentBitmask
	}
	if c.unordered {
		flags |= dataChunkUnorderedBitmask
	}

	c.chunkHeader.typ = ctData
	c.chunkHeader.flags = flags
	c.chunkHeader.raw = raw
	return c.chunkHeader.marshal()
}

func (c *chunkPayloadData) chunkType() chunkType { return ctData }
