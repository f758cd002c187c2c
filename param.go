// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"encoding/binary"
	"fmt"
)

// paramType is the type field of a TLV parameter carried inside INIT/INIT-ACK
// (RFC 4960 §3.2.1). Only the ones this module actively acts on are given
// named constants; anything else is tolerated and skipped.
type paramType uint16

const (
	paramStateCookie paramType = 7
)

const paramHeaderSize = 4

// paramHeader is the 4-byte TLV header (type, length-including-header)
// shared by every INIT/INIT-ACK parameter.
type paramHeader struct {
	typ paramType
	raw []byte
}

func (p *paramHeader) unmarshal(raw []byte) error {
	if len(raw) < paramHeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrParamHeaderTooShort, len(raw))
	}
	length := binary.BigEndian.Uint16(raw[2:])
	if int(length) < paramHeaderSize || paramHeaderSize+int(length)-paramHeaderSize > len(raw) {
		return fmt.Errorf("%w: declared %d have %d", ErrParamTooShort, length, len(raw))
	}
	p.typ = paramType(binary.BigEndian.Uint16(raw[0:]))
	p.raw = raw[paramHeaderSize:length]
	return nil
}

func (p *paramHeader) marshal() []byte {
	raw := make([]byte, paramHeaderSize+len(p.raw))
	binary.BigEndian.PutUint16(raw[0:], uint16(p.typ))
	binary.BigEndian.PutUint16(raw[2:], uint16(paramHeaderSize+len(p.raw)))
	copy(raw[paramHeaderSize:], p.raw)
	return raw
}

// length returns the padded on-wire size of this parameter, as used when
// walking a chunk's parameter list (RFC 4960 §3.2.1: parameters, other than
// the chunk's last, are individually padded to a 4-byte boundary).
func (p *paramHeader) length() int {
	l := paramHeaderSize + len(p.raw)
	return l + getPadding(l)
}

// stateCookieParam builds the State Cookie parameter (type 7) carried
// inside INIT-ACK.
func stateCookieParam(cookie []byte) []byte {
	h := paramHeader{typ: paramStateCookie, raw: cookie}
	return h.marshal()
}

// findStateCookie walks a TLV parameter list and returns the State Cookie
// value if present, ignoring every other (recognized or not) parameter.
// Unrecognized parameter types are skipped uniformly ("skip silently")
// rather than inspecting the high bit of the type field for the "report"
// variant.
func findStateCookie(raw []byte) ([]byte, bool) {
	offset := 0
	for offset+paramHeaderSize <= len(raw) {
		var h paramHeader
		if err := h.unmarshal(raw[offset:]); err != nil {
			return nil, false
		}
		if h.typ == paramStateCookie {
			return h.raw, true
		}
		adv := h.length()
		if adv <= 0 {
			return nil, false
		}
		offset += adv
	}
	return nil, false
}
