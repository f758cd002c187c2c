// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // HMAC-SHA1 used as a MAC/PRF, not for collision resistance
	"encoding/binary"

	"github.com/pion/randutil"
)

// newInitiationValues picks the verification tag and initial TSN an
// association offers in its own INIT. Both must be hard to guess (RFC 4960
// §5.1, §5.3.1), so this draws from randutil's crypto-backed generator
// rather than its math/rand one.
func newInitiationValues() (tag, initialTSN uint32, err error) {
	gen := randutil.NewCryptoRandomGenerator()
	tag, err = gen.Uint32()
	if err != nil {
		return 0, 0, err
	}
	if tag == 0 {
		// RFC 4960 §5.1: the initiate tag must not be 0.
		tag = 1
	}
	initialTSN, err = gen.Uint32()
	if err != nil {
		return 0, 0, err
	}
	return tag, initialTSN, nil
}

// deriveResponderValues computes the verification tag and initial TSN a
// server hands back in INIT-ACK, as an HMAC of the peer's own INIT content
// keyed by the association's cookie signing key. A retransmitted duplicate
// INIT — expected traffic while the server stays in stateClosed until
// COOKIE-ECHO succeeds (RFC 4960 §4.2) — gets back the same values instead
// of a fresh, unrelated INIT-ACK each time, while remaining as unguessable
// to an outside observer as fresh randomness would be: the key never
// leaves the association.
func deriveResponderValues(key cookieSigningKey, peerTag, peerInitialTSN uint32) (tag, initialTSN uint32) {
	var body [8]byte
	binary.BigEndian.PutUint32(body[0:], peerTag)
	binary.BigEndian.PutUint32(body[4:], peerInitialTSN)

	digest := func(label byte) []byte {
		mac := hmac.New(sha1.New, key[:])
		mac.Write([]byte{label})
		mac.Write(body[:])
		return mac.Sum(nil)
	}

	tag = binary.BigEndian.Uint32(digest('T')[:4])
	if tag == 0 {
		tag = 1
	}
	initialTSN = binary.BigEndian.Uint32(digest('S')[:4])
	return tag, initialTSN
}
