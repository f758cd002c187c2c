// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import "sort"

// inboundState tracks everything needed to decide what the next SACK
// should say: the cumulative TSN ack point, any gaps above it, and TSNs
// that arrived more than once (RFC 4960 §3.3.4).
type inboundState struct {
	haveFirstTSN  bool
	cumulativeTSN uint32 // highest TSN such that it and everything below has arrived

	gapReceived map[uint32]struct{} // TSNs above cumulativeTSN already seen
	duplicates  []uint32            // since last SACK, cleared after each one

	streams map[uint16]*streamReassembly

	needSACK bool
}

func newInboundState() *inboundState {
	return &inboundState{
		gapReceived: make(map[uint32]struct{}),
		streams:     make(map[uint16]*streamReassembly),
	}
}

// streamReassembly reorders a single stream's fragments back into whole
// messages. Ordered delivery is gated on streamSequenceNumber; unordered
// messages are delivered as soon as all of their own fragments arrive,
// regardless of SSN.
type streamReassembly struct {
	nextSSN uint16 // next ordered SSN this stream will deliver

	ordered   map[uint16][]*chunkPayloadData // pending ordered messages keyed by SSN
	unordered map[uint16][]*chunkPayloadData // pending unordered messages keyed by SSN
}

func newStreamReassembly() *streamReassembly {
	return &streamReassembly{
		ordered:   make(map[uint16][]*chunkPayloadData),
		unordered: make(map[uint16][]*chunkPayloadData),
	}
}

// add inserts one DATA chunk's fragment into the right bucket and returns
// every whole message newly ready for delivery, in delivery order.
func (r *streamReassembly) add(d *chunkPayloadData) []reassembledMessage {
	bucket := r.ordered
	if d.unordered {
		bucket = r.unordered
	}

	bucket[d.streamSequenceNumber] = insertByTSN(bucket[d.streamSequenceNumber], d)

	var out []reassembledMessage
	if d.unordered {
		if msg, ok := tryComplete(bucket[d.streamSequenceNumber]); ok {
			out = append(out, reassembledMessage{ssn: d.streamSequenceNumber, data: msg, ppi: bucket[d.streamSequenceNumber][0].payloadType})
			delete(bucket, d.streamSequenceNumber)
		}
		return out
	}

	// Ordered: only deliver in increasing SSN order, starting at nextSSN.
	for {
		frags, ok := bucket[r.nextSSN]
		if !ok {
			break
		}
		msg, complete := tryComplete(frags)
		if !complete {
			break
		}
		out = append(out, reassembledMessage{ssn: r.nextSSN, data: msg, ppi: frags[0].payloadType})
		delete(bucket, r.nextSSN)
		r.nextSSN++
	}
	return out
}

// forwardTo drops any ordered fragments below newNextSSN and advances
// nextSSN, delivering anything that becomes complete as a result. Called
// when a FORWARD-TSN reports this stream's SSN as abandoned up to a point
// (RFC 3758 §3.2).
func (r *streamReassembly) forwardTo(newNextSSN uint16) []reassembledMessage {
	var out []reassembledMessage
	for sna16LT(r.nextSSN, newNextSSN) {
		delete(r.ordered, r.nextSSN)
		r.nextSSN++
	}
	for {
		frags, ok := r.ordered[r.nextSSN]
		if !ok {
			break
		}
		msg, complete := tryComplete(frags)
		if !complete {
			break
		}
		out = append(out, reassembledMessage{ssn: r.nextSSN, data: msg, ppi: frags[0].payloadType})
		delete(r.ordered, r.nextSSN)
		r.nextSSN++
	}
	return out
}

type reassembledMessage struct {
	ssn  uint16
	data []byte
	ppi  PayloadProtocolID
}

func insertByTSN(frags []*chunkPayloadData, d *chunkPayloadData) []*chunkPayloadData {
	for _, f := range frags {
		if f.tsn == d.tsn {
			return frags // duplicate fragment
		}
	}
	frags = append(frags, d)
	sort.Slice(frags, func(i, j int) bool { return sna32LT(frags[i].tsn, frags[j].tsn) })
	return frags
}

// tryComplete checks whether frags (sorted by TSN) form exactly one whole
// message: a beginning fragment, a contiguous TSN run with no fragment
// boundary in the middle, and an ending fragment. Distinct messages never
// legitimately share a bucket (each gets its own SSN), but this still
// guards against two runs having been wrongly merged.
func tryComplete(frags []*chunkPayloadData) ([]byte, bool) {
	if len(frags) == 0 || !frags[0].beginningFragment {
		return nil, false
	}
	for i := 1; i < len(frags); i++ {
		if frags[i].tsn != frags[i-1].tsn+1 {
			return nil, false
		}
		if frags[i-1].endingFragment || frags[i].beginningFragment {
			return nil, false
		}
	}
	last := frags[len(frags)-1]
	if !last.endingFragment {
		return nil, false
	}

	var out []byte
	for _, f := range frags {
		out = append(out, f.userData...)
	}
	return out, true
}

// recordArrival updates the cumulative TSN / gap tracking for one newly
// decoded DATA chunk's TSN, reporting whether it was a duplicate.
func (s *inboundState) recordArrival(tsn uint32) (duplicate bool) {
	if !s.haveFirstTSN {
		s.haveFirstTSN = true
		s.cumulativeTSN = tsn - 1
	}

	if sna32LTE(tsn, s.cumulativeTSN) {
		s.duplicates = append(s.duplicates, tsn)
		return true
	}
	if _, ok := s.gapReceived[tsn]; ok {
		s.duplicates = append(s.duplicates, tsn)
		return true
	}

	s.gapReceived[tsn] = struct{}{}
	for {
		next := s.cumulativeTSN + 1
		if _, ok := s.gapReceived[next]; !ok {
			break
		}
		delete(s.gapReceived, next)
		s.cumulativeTSN = next
	}
	s.needSACK = true
	return false
}

// buildGapAckBlocks converts the current gap set into the sorted run-length
// blocks a SACK chunk carries (RFC 4960 §3.3.4), relative to cumulativeTSN.
func (s *inboundState) buildGapAckBlocks() []gapAckBlock {
	if len(s.gapReceived) == 0 {
		return nil
	}
	tsns := make([]uint32, 0, len(s.gapReceived))
	for tsn := range s.gapReceived {
		tsns = append(tsns, tsn)
	}
	sort.Slice(tsns, func(i, j int) bool { return sna32LT(tsns[i], tsns[j]) })

	var blocks []gapAckBlock
	start := tsns[0]
	prev := tsns[0]
	for _, tsn := range tsns[1:] {
		if tsn == prev+1 {
			prev = tsn
			continue
		}
		blocks = append(blocks, gapAckBlock{
			start: uint16(start - s.cumulativeTSN),
			end:   uint16(prev - s.cumulativeTSN),
		})
		start, prev = tsn, tsn
	}
	blocks = append(blocks, gapAckBlock{
		start: uint16(start - s.cumulativeTSN),
		end:   uint16(prev - s.cumulativeTSN),
	})
	return blocks
}

// takeDuplicates returns and clears the duplicate-TSN list, reported once
// per SACK (RFC 4960 §3.3.4).
func (s *inboundState) takeDuplicates() []uint32 {
	d := s.duplicates
	s.duplicates = nil
	return d
}
