// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import "sync/atomic"

// AssociationStats is a snapshot of lifetime counters for an Association,
// useful for getstats-style diagnostics; nothing in this module reads them
// back to make decisions.
type AssociationStats struct {
	NumDATAs           uint64
	NumSACKs           uint64
	NumT3Timeouts      uint64
	NumFastRetrans     uint64
	NumAckTimeouts     uint64
	NumReconfigSent    uint64
	NumReconfigRecv    uint64
	NumDuplicateTSNs   uint64
	NumBytesReceived   uint64
	NumBytesSent       uint64
}

// associationStatsCounters holds the same fields as atomics so the command
// loop and the background read loop can both touch them without a lock.
type associationStatsCounters struct {
	numDATAs         atomic.Uint64
	numSACKs         atomic.Uint64
	numT3Timeouts    atomic.Uint64
	numFastRetrans   atomic.Uint64
	numAckTimeouts   atomic.Uint64
	numReconfigSent  atomic.Uint64
	numReconfigRecv  atomic.Uint64
	numDuplicateTSNs atomic.Uint64
	numBytesReceived atomic.Uint64
	numBytesSent     atomic.Uint64
}

func (s *associationStatsCounters) snapshot() AssociationStats {
	return AssociationStats{
		NumDATAs:         s.numDATAs.Load(),
		NumSACKs:         s.numSACKs.Load(),
		NumT3Timeouts:    s.numT3Timeouts.Load(),
		NumFastRetrans:   s.numFastRetrans.Load(),
		NumAckTimeouts:   s.numAckTimeouts.Load(),
		NumReconfigSent:  s.numReconfigSent.Load(),
		NumReconfigRecv:  s.numReconfigRecv.Load(),
		NumDuplicateTSNs: s.numDuplicateTSNs.Load(),
		NumBytesReceived: s.numBytesReceived.Load(),
		NumBytesSent:     s.numBytesSent.Load(),
	}
}
