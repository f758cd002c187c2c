// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import "encoding/binary"

// errorCauseCode identifies an Error Cause TLV (RFC 4960 §3.3.10). Only the
// cause this module actively emits/inspects gets a name; the rest pass
// through ERROR/ABORT chunks as opaque bytes.
type errorCauseCode uint16

const errorCauseStaleCookie errorCauseCode = 3

const errorCauseHeaderSize = 4

// staleCookieCause builds the Stale Cookie error cause sent in response to
// a COOKIE-ECHO whose state cookie has expired (RFC 4960 §3.3.10.3). The
// measure field is advisory (microseconds staler than the lifetime) and is
// left zero — nothing in this module acts on a peer-reported value.
func staleCookieCause() []byte {
	raw := make([]byte, errorCauseHeaderSize+4)
	binary.BigEndian.PutUint16(raw[0:], uint16(errorCauseStaleCookie))
	binary.BigEndian.PutUint16(raw[2:], uint16(len(raw)))
	return raw
}

// chunkError is the ERROR chunk: one or more Error Cause TLVs sent without
// tearing down the association. Causes are kept opaque, mirroring ABORT.
type chunkError struct {
	chunkHeader

	causes []byte
}

func (c *chunkError) unmarshal(raw []byte) error {
	if err := c.chunkHeader.unmarshal(raw); err != nil {
		return err
	}
	c.causes = c.raw
	return nil
}

func (c *chunkError) marshal() ([]byte, error) {
	c.chunkHeader.typ = ctError
	c.chunkHeader.flags = 0
	c.chunkHeader.raw = c.causes
	return c.chunkHeader.marshal()
}

func (c *chunkError) chunkType() chunkType { return ctError }

// firstCauseCode reports the code of the first Error Cause TLV, used to
// tell a stale-cookie ERROR apart from any other reported error.
func firstCauseCode(causes []byte) (errorCauseCode, bool) {
	if len(causes) < errorCauseHeaderSize {
		return 0, false
	}
	return errorCauseCode(binary.BigEndian.Uint16(causes[0:])), true
}
