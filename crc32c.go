// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import "hash/crc32"

// Castagnoli CRC32c, reflected, as used by the SCTP common header checksum
// (RFC 4960 Appendix B). Computed with the checksum field zeroed, and
// stored little-endian regardless of the rest of the packet's big-endian
// fields — a known RFC 4960 quirk.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli) //nolint:gochecknoglobals

var fourZeroes = [4]byte{} //nolint:gochecknoglobals

func generatePacketChecksum(raw []byte) uint32 {
	sum := crc32.Update(0, castagnoliTable, raw[0:8])
	sum = crc32.Update(sum, castagnoliTable, fourZeroes[:])
	sum = crc32.Update(sum, castagnoliTable, raw[12:])
	return sum
}
