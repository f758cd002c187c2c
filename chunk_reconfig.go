// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"encoding/binary"
	"fmt"
)

// RECONFIG parameter types this module understands (RFC 6525 §4). Incoming
// SSN Reset Request and the TSN-reset variants are not produced or acted on
// — stream reconfiguration here is limited to resetting outgoing streams
// and adding outgoing streams.
const (
	paramOutgoingResetRequest paramType = 13
	paramAddOutgoingStreams   paramType = 17
	paramReconfigResponse     paramType = 16
)

// reconfigResponseResult values (RFC 6525 §4.5.2). Only three outcomes are
// named; this module only ever sends SuccessPerformed.
type reconfigResult uint32

const (
	reconfigResultSuccessPerformed reconfigResult = 1
	reconfigResultDenied           reconfigResult = 2
	reconfigResultInProgress       reconfigResult = 6
)

// chunkReconfig carries one or two RECONFIG parameters (RFC 6525 §3.1
// allows pairing a request with its response in one chunk). Parameters are
// kept as raw TLVs and decoded on demand by the reconfiguration state
// machine, mirroring how packet.go treats unknown chunk types.
type chunkReconfig struct {
	chunkHeader

	rawParams [][]byte
}

func (c *chunkReconfig) unmarshal(raw []byte) error {
	if err := c.chunkHeader.unmarshal(raw); err != nil {
		return err
	}

	offset := 0
	for offset+paramHeaderSize <= len(c.raw) {
		var h paramHeader
		if err := h.unmarshal(c.raw[offset:]); err != nil {
			return err
		}
		c.rawParams = append(c.rawParams, c.raw[offset:offset+h.length()])
		adv := h.length()
		if adv <= 0 {
			return fmt.Errorf("%w: zero-length RECONFIG parameter", ErrParamTooShort)
		}
		offset += adv
	}
	return nil
}

func (c *chunkReconfig) marshal() ([]byte, error) {
	var raw []byte
	for _, p := range c.rawParams {
		raw = append(raw, p...)
	}

	c.chunkHeader.typ = ctReconfig
	c.chunkHeader.flags = 0
	c.chunkHeader.raw = raw
	return c.chunkHeader.marshal()
}

func (c *chunkReconfig) chunkType() chunkType { return ctReconfig }

func (c *chunkReconfig) addParam(typ paramType, body []byte) {
	h := paramHeader{typ: typ, raw: body}
	raw := h.marshal()
	if pad := getPadding(len(raw)); pad != 0 {
		raw = append(raw, make([]byte, pad)...)
	}
	c.rawParams = append(c.rawParams, raw)
}

// paramAt decodes the i-th parameter's header, or false if out of range.
func (c *chunkReconfig) paramAt(i int) (paramHeader, bool) {
	if i < 0 || i >= len(c.rawParams) {
		return paramHeader{}, false
	}
	var h paramHeader
	if err := h.unmarshal(c.rawParams[i]); err != nil {
		return paramHeader{}, false
	}
	return h, true
}

// outgoingResetRequestParam is the Outgoing SSN Reset Request Parameter
// (RFC 6525 §4.1): a request to reset one or more outgoing streams once the
// sender has no more unacknowledged data below senderLastTSN.
type outgoingResetRequestParam struct {
	reconfigRequestSequenceNumber  uint32
	reconfigResponseSequenceNumber uint32
	senderLastTSN                  uint32
	streamIdentifiers              []uint16
}

const outgoingResetRequestFixedLen = 12

func parseOutgoingResetRequest(body []byte) (*outgoingResetRequestParam, error) {
	if len(body) < outgoingResetRequestFixedLen {
		return nil, fmt.Errorf("%w: outgoing reset request %d bytes", ErrParamTooShort, len(body))
	}
	p := &outgoingResetRequestParam{
		reconfigRequestSequenceNumber:  binary.BigEndian.Uint32(body[0:]),
		reconfigResponseSequenceNumber: binary.BigEndian.Uint32(body[4:]),
		senderLastTSN:                  binary.BigEndian.Uint32(body[8:]),
	}
	for off := outgoingResetRequestFixedLen; off+2 <= len(body); off += 2 {
		p.streamIdentifiers = append(p.streamIdentifiers, binary.BigEndian.Uint16(body[off:]))
	}
	return p, nil
}

func (p *outgoingResetRequestParam) marshal() []byte {
	body := make([]byte, outgoingResetRequestFixedLen+2*len(p.streamIdentifiers))
	binary.BigEndian.PutUint32(body[0:], p.reconfigRequestSequenceNumber)
	binary.BigEndian.PutUint32(body[4:], p.reconfigResponseSequenceNumber)
	binary.BigEndian.PutUint32(body[8:], p.senderLastTSN)
	off := outgoingResetRequestFixedLen
	for _, s := range p.streamIdentifiers {
		binary.BigEndian.PutUint16(body[off:], s)
		off += 2
	}
	return body
}

// addStreamsRequestParam is the Add Outgoing Streams Request Parameter
// (RFC 6525 §4.4).
type addStreamsRequestParam struct {
	reconfigRequestSequenceNumber uint32
	numNewStreams                 uint16
}

const addStreamsRequestLen = 8

func parseAddStreamsRequest(body []byte) (*addStreamsRequestParam, error) {
	if len(body) < addStreamsRequestLen {
		return nil, fmt.Errorf("%w: add streams request %d bytes", ErrParamTooShort, len(body))
	}
	return &addStreamsRequestParam{
		reconfigRequestSequenceNumber: binary.BigEndian.Uint32(body[0:]),
		numNewStreams:                 binary.BigEndian.Uint16(body[4:]),
	}, nil
}

func (p *addStreamsRequestParam) marshal() []byte {
	body := make([]byte, addStreamsRequestLen)
	binary.BigEndian.PutUint32(body[0:], p.reconfigRequestSequenceNumber)
	binary.BigEndian.PutUint16(body[4:], p.numNewStreams)
	return body
}

// reconfigResponseParam is the short form of the Re-configuration Response
// Parameter (RFC 6525 §4.5): no new TSN is reported, since this module
// never needs the peer to re-synchronize TSNs as part of a reset.
type reconfigResponseParam struct {
	reconfigResponseSequenceNumber uint32
	result                         reconfigResult
}

const reconfigResponseLen = 8

func parseReconfigResponse(body []byte) (*reconfigResponseParam, error) {
	if len(body) < reconfigResponseLen {
		return nil, fmt.Errorf("%w: reconfig response %d bytes", ErrParamTooShort, len(body))
	}
	return &reconfigResponseParam{
		reconfigResponseSequenceNumber: binary.BigEndian.Uint32(body[0:]),
		result:                         reconfigResult(binary.BigEndian.Uint32(body[4:])),
	}, nil
}

func (p *reconfigResponseParam) marshal() []byte {
	body := make([]byte, reconfigResponseLen)
	binary.BigEndian.PutUint32(body[0:], p.reconfigResponseSequenceNumber)
	binary.BigEndian.PutUint32(body[4:], uint32(p.result))
	return body
}
