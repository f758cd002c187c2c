// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// fastRetransDupAcks is the number of SACKs that must report a TSN missing
// before it is fast-retransmitted (RFC 4960 §7.2.4's "three strikes" rule).
const fastRetransDupAcks = 3

func (a *Association) sendInit() error {
	a.setState(stateCookieWait)
	init := &chunkInit{initCommon: initCommon{
		initiateTag:     a.myVerificationTag,
		advertisedRwnd:  a.myAwareRwnd,
		numOutboundStrm: a.myMaxNumOutboundStreams,
		numInboundStrm:  a.myMaxNumInboundStreams,
		initialTSN:      a.myInitialTSN,
	}}
	a.t1Init.start(a.rtoMgr.getRTO())
	return a.writePacket(context.Background(), init)
}

func (a *Association) sendShutdown() error {
	a.t2Shutdown.start(a.rtoMgr.getRTO())
	return a.writePacket(context.Background(), &chunkShutdown{cumulativeTSNAck: a.inbound.cumulativeTSN})
}

func (a *Association) onT1InitTimeout(attempt int) {
	if a.state != stateCookieWait {
		return
	}
	if a.t1Init.isExceeded() {
		a.closeWithLocked(ErrConnectionTimeout)
		return
	}
	_ = a.writePacket(context.Background(), &chunkInit{initCommon: initCommon{
		initiateTag:     a.myVerificationTag,
		advertisedRwnd:  a.myAwareRwnd,
		numOutboundStrm: a.myMaxNumOutboundStreams,
		numInboundStrm:  a.myMaxNumInboundStreams,
		initialTSN:      a.myInitialTSN,
	}})
}

func (a *Association) onT1CookieTimeout(attempt int) {
	if a.state != stateCookieEchoed {
		return
	}
	if a.t1Cookie.isExceeded() {
		a.closeWithLocked(ErrConnectionTimeout)
		return
	}
}

func (a *Association) onT2ShutdownTimeout(attempt int) {
	switch a.state {
	case stateShutdownSent:
		if a.t2Shutdown.isExceeded() {
			a.closeWithLocked(ErrConnectionTimeout)
			return
		}
		_ = a.writePacket(context.Background(), &chunkShutdown{cumulativeTSNAck: a.inbound.cumulativeTSN})
	case stateShutdownAckSent:
		if a.t2Shutdown.isExceeded() {
			a.closeWithLocked(ErrConnectionTimeout)
			return
		}
		_ = a.writePacket(context.Background(), &chunkShutdownAck{})
	}
}

func (a *Association) onReconfigTimeout(attempt int) {
	a.reconfigState.onTimeout(attempt)
}

// sendOnStream fragments data into DATA chunks of at most userDataMaxLength
// bytes, assigns TSNs/SSNs, queues them, and kicks the transmit loop.
func (a *Association) sendOnStream(s *Stream, data []byte, ppi PayloadProtocolID) error {
	return a.runOnLoopSync(func() error {
		if a.state == stateClosed {
			return ErrAssociationClosed
		}
		if a.state == stateShutdownPending || a.state == stateShutdownSent ||
			a.state == stateShutdownReceived || a.state == stateShutdownAckSent {
			return fmt.Errorf("%w: shutdown in progress", ErrStateViolation)
		}
		if uint32(len(data)) > a.maxMessageSize {
			return fmt.Errorf("sctp: message of %d bytes exceeds max message size %d", len(data), a.maxMessageSize)
		}

		unordered, relType, relVal := s.reliability()
		// Every message consumes its own SSN, ordered or not: unordered
		// delivery skips waiting on SSN order, but distinct in-flight
		// unordered messages on the same stream still need distinct SSNs
		// so reassembly can't merge their fragments under reordering or
		// retransmission (RFC 4960 §3.3.1).
		ssn := s.nextSSN()

		maxFragment := userDataMaxLength
		if room := int(a.mtu) - packetHeaderSize - chunkHeaderSize - dataChunkHeaderSize; room > 0 && room < maxFragment {
			maxFragment = room
		}
		chunks := fragment(data, maxFragment)
		for i, frag := range chunks {
			c := &chunkPayloadData{
				tsn:                  a.myNextTSN,
				streamIdentifier:     s.identifier,
				streamSequenceNumber: ssn,
				payloadType:          ppi,
				userData:             frag,
				beginningFragment:    i == 0,
				endingFragment:       i == len(chunks)-1,
				unordered:            unordered,
			}
			a.myNextTSN++
			a.pending = append(a.pending, c)
			a.inflight[c.tsn] = &inflightChunk{
				chunk:    c,
				queuedAt: time.Now(),
				relType:  relType,
				relVal:   relVal,
			}
		}
		s.addBufferedAmount(int64(len(data)))
		a.flush()
		return nil
	})
}

// flush drains pending into on-the-wire packets while respecting the
// peer's advertised window and the local congestion window.
func (a *Association) flush() {
	cwndEff := a.cwnd
	if a.inFastRecovery {
		cwndEff = a.ssthresh
	}

	var inflightBytes uint32
	for _, ic := range a.inflight {
		if ic.sentAt.IsZero() {
			continue
		}
		inflightBytes += uint32(dataChunkHeaderSize + len(ic.chunk.userData))
	}

	for len(a.pending) > 0 {
		c := a.pending[0]
		size := uint32(dataChunkHeaderSize + len(c.userData))
		if inflightBytes+size > cwndEff || inflightBytes+size > a.peerRwnd {
			break
		}

		if err := a.writePacket(context.Background(), c); err != nil {
			a.log.Warnf("%s: sending DATA tsn=%d: %v", a.name, c.tsn, err)
			break
		}
		ic := a.inflight[c.tsn]
		ic.sentAt = time.Now()
		ic.timedSample = ic.retransmits == 0
		inflightBytes += size
		a.inflightOrder = append(a.inflightOrder, c.tsn)
		a.pending = a.pending[1:]

		if !a.t3RTX.running() {
			a.t3RTX.start(a.rtoMgr.getRTO())
		}
	}
}

// onSACK advances the cumulative ack point, retires acked chunks, feeds an
// RTT sample into rtoMgr when possible, and runs congestion control
// (RFC 4960 §6.2.1/§7.2).
func (a *Association) onSACK(c *chunkSelectiveAck) error {
	if sna32LT(c.cumulativeTSNAck, a.cumulativeTSNAckPoint) {
		return nil // stale SACK
	}

	ackedBytes := uint32(0)
	newlyAcked := false
	for tsn := range a.inflight {
		if sna32LTE(tsn, c.cumulativeTSNAck) {
			ic := a.inflight[tsn]
			ackedBytes += uint32(dataChunkHeaderSize + len(ic.chunk.userData))
			if s, ok := a.streams[ic.chunk.streamIdentifier]; ok {
				s.addBufferedAmount(-int64(len(ic.chunk.userData)))
			}
			if ic.timedSample && ic.retransmits == 0 {
				a.rtoMgr.observeRTT(time.Since(ic.sentAt))
			}
			delete(a.inflight, tsn)
			newlyAcked = true
		}
	}
	gapSet := make(map[uint16]struct{}, len(c.gapAckBlocks))
	var highestGapOffset uint16
	for _, b := range c.gapAckBlocks {
		for off := b.start; off <= b.end; off++ {
			gapSet[off] = struct{}{}
		}
		if b.end > highestGapOffset {
			highestGapOffset = b.end
		}
	}
	for tsn := range a.inflight {
		if sna32GT(tsn, c.cumulativeTSNAck) {
			off := uint16(tsn - c.cumulativeTSNAck)
			if _, ok := gapSet[off]; ok {
				ic := a.inflight[tsn]
				ackedBytes += uint32(dataChunkHeaderSize + len(ic.chunk.userData))
				if s, ok := a.streams[ic.chunk.streamIdentifier]; ok {
					s.addBufferedAmount(-int64(len(ic.chunk.userData)))
				}
				delete(a.inflight, tsn)
			}
		}
	}

	// Fast retransmit (RFC 4960 §7.2.4): a TSN still outstanding but below
	// one the peer has gap-acked is missing from the network, not merely
	// reordered. Once three separate SACKs report it missing, retransmit
	// it immediately instead of waiting on T3-rtx.
	var fastRetransmit []uint32
	if highestGapOffset > 0 {
		highestGapTSN := c.cumulativeTSNAck + uint32(highestGapOffset)
		for tsn, ic := range a.inflight {
			if ic.sentAt.IsZero() {
				continue
			}
			if !sna32GT(tsn, c.cumulativeTSNAck) || !sna32LT(tsn, highestGapTSN) {
				continue
			}
			if _, ok := gapSet[uint16(tsn-c.cumulativeTSNAck)]; ok {
				continue
			}
			ic.misses++
			if ic.misses >= fastRetransDupAcks {
				fastRetransmit = append(fastRetransmit, tsn)
			}
		}
	}

	a.cumulativeTSNAckPoint = c.cumulativeTSNAck
	if sna32GT(a.cumulativeTSNAckPoint, a.forwardTSNPoint) {
		a.forwardTSNPoint = a.cumulativeTSNAckPoint
	}
	a.congestionControlOnAck(ackedBytes, newlyAcked)

	if len(fastRetransmit) > 0 {
		if !a.inFastRecovery {
			a.inFastRecovery = true
			a.fastRecoveryExitTSN = a.cumulativeTSNAckPoint
			for _, tsn := range a.inflightOrder {
				if sna32GT(tsn, a.fastRecoveryExitTSN) {
					a.fastRecoveryExitTSN = tsn
				}
			}
			a.ssthresh = maxUint32(a.cwnd/2, a.minCwnd)
			a.cwnd = a.ssthresh
		}
		sort.Slice(fastRetransmit, func(i, j int) bool { return sna32LT(fastRetransmit[i], fastRetransmit[j]) })
		rtx := make([]*chunkPayloadData, 0, len(fastRetransmit))
		for _, tsn := range fastRetransmit {
			ic := a.inflight[tsn]
			ic.misses = 0
			ic.retransmits++
			ic.timedSample = false
			rtx = append(rtx, ic.chunk)
		}
		a.pending = append(rtx, a.pending...)
		a.stats.numFastRetrans.Add(uint64(len(fastRetransmit)))
	}

	if len(a.inflight) == 0 {
		a.t3RTX.stop()
		if a.state == stateShutdownPending {
			a.setState(stateShutdownSent)
			_ = a.sendShutdown()
		}
	} else {
		a.t3RTX.start(a.rtoMgr.getRTO())
	}

	a.flush()
	return nil
}

// congestionControlOnAck implements RFC 4960 §7.2's slow start / congestion
// avoidance, plus exiting fast recovery once the cumulative ack reaches
// fastRecoveryExitTSN, the highest TSN sent when recovery began.
func (a *Association) congestionControlOnAck(ackedBytes uint32, newlyAcked bool) {
	if !newlyAcked || ackedBytes == 0 {
		return
	}

	if a.inFastRecovery {
		if sna32GTE(a.cumulativeTSNAckPoint, a.fastRecoveryExitTSN) {
			a.inFastRecovery = false
		}
		return
	}

	if a.cwnd <= a.ssthresh {
		// Slow start: grow by the number of bytes acked, up to MTU/ack.
		a.cwnd += minUint32(ackedBytes, a.mtu)
		return
	}

	// Congestion avoidance: grow by at most MTU per RTT's worth of acks.
	a.partialBytesAcked += ackedBytes
	if a.partialBytesAcked >= a.cwnd {
		a.partialBytesAcked -= a.cwnd
		a.cwnd += a.mtu
	}
}

func (a *Association) onT3RTXTimeout(attempt int) {
	a.stats.numT3Timeouts.Add(1)
	a.rtoMgr.backoff()

	// RFC 4960 §6.3.3: cut ssthresh, reset cwnd to minCwnd, and requeue
	// every outstanding TSN at the front of pending for retransmission —
	// unless partial reliability (RFC 3758) says to give up on it instead.
	a.ssthresh = maxUint32(a.cwnd/2, a.minCwnd)
	a.cwnd = a.minCwnd
	a.inFastRecovery = false

	abandoned := make(map[uint32]*chunkPayloadData)
	for _, tsn := range a.inflightOrder {
		ic, ok := a.inflight[tsn]
		if !ok {
			continue
		}
		if a.shouldAbandon(ic) {
			delete(a.inflight, tsn)
			abandoned[tsn] = ic.chunk
			continue
		}
		ic.retransmits++
		ic.timedSample = false
		a.pending = append([]*chunkPayloadData{ic.chunk}, a.pending...)
	}
	a.inflightOrder = nil

	if len(abandoned) > 0 {
		a.advanceForwardTSN(abandoned)
	}
	a.flush()
}

// shouldAbandon reports whether an outstanding chunk's partial reliability
// policy (RFC 3758 §3.1) has been exceeded and it should be given up on
// instead of retransmitted again.
func (a *Association) shouldAbandon(ic *inflightChunk) bool {
	switch ic.relType {
	case ReliabilityTypeRexmit:
		return uint32(ic.retransmits) >= ic.relVal
	case ReliabilityTypeTimed:
		return time.Since(ic.queuedAt) >= time.Duration(ic.relVal)*time.Millisecond
	default:
		return false
	}
}

// advanceForwardTSN walks forward from forwardTSNPoint through any
// contiguously abandoned TSNs and, if it moved, tells the peer to skip them
// with a FORWARD-TSN chunk (RFC 3758 §3.2) carrying the highest abandoned
// SSN per ordered stream touched.
func (a *Association) advanceForwardTSN(abandoned map[uint32]*chunkPayloadData) {
	perStreamSSN := make(map[uint16]uint16)
	point := a.forwardTSNPoint
	for {
		next := point + 1
		c, ok := abandoned[next]
		if !ok {
			break
		}
		if !c.unordered {
			if cur, exists := perStreamSSN[c.streamIdentifier]; !exists || sna16GT(c.streamSequenceNumber, cur) {
				perStreamSSN[c.streamIdentifier] = c.streamSequenceNumber
			}
		}
		point = next
	}
	if point == a.forwardTSNPoint {
		return
	}
	a.forwardTSNPoint = point

	streams := make([]forwardTSNStream, 0, len(perStreamSSN))
	for id, ssn := range perStreamSSN {
		streams = append(streams, forwardTSNStream{identifier: id, sequence: ssn})
	}
	_ = a.writePacket(context.Background(), &chunkForwardTSN{newCumulativeTSN: point, streams: streams})
}

// fragment splits data into chunks of at most size bytes; an empty message
// still produces one zero-length chunk so empty DCEP messages round-trip.
func fragment(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var out [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}
