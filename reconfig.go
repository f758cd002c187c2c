// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"context"

	"github.com/sjhorn/sctp/internal/util"
)

// reconfigState drives RFC 6525 stream reconfiguration: resetting outgoing
// streams and adding new outgoing streams. One request is outstanding at a
// time, matching how a single DataChannel-close or DataChannel-open call
// drives this association — nothing here needs to pipeline multiple
// in-flight reconfig requests.
type reconfigState struct {
	assoc *Association

	nextRequestSeq uint32 // sequence number this side assigns to its next request
	lastPeerReqSeq uint32 // highest peer-originated request sequence already handled
	haveLastPeerReqSeq bool

	pendingStreamIDs []uint16
	pendingAddCount  uint16
	pendingReqSeq    uint32
	pendingIsAdd     bool
}

func newReconfigState(a *Association) *reconfigState {
	return &reconfigState{assoc: a}
}

// alreadyHandled reports whether reqSeq was already applied — the peer
// retransmits its request until it sees a response, so duplicates must be
// re-acked without re-running the reset (RFC 6525 §5.2.1).
func (r *reconfigState) alreadyHandled(reqSeq uint32) bool {
	return r.haveLastPeerReqSeq && sna32LTE(reqSeq, r.lastPeerReqSeq)
}

func (r *reconfigState) markHandled(reqSeq uint32) {
	if !r.haveLastPeerReqSeq || sna32GT(reqSeq, r.lastPeerReqSeq) {
		r.lastPeerReqSeq = reqSeq
		r.haveLastPeerReqSeq = true
	}
}

// resetStream requests the peer reset (and this side stop sending on)
// streamIdentifier, per RFC 6525 §5.1.
func (a *Association) resetStream(streamIdentifier uint16) error {
	return a.runOnLoopSync(func() error {
		return a.reconfigState.requestReset([]uint16{streamIdentifier})
	})
}

// ReconfigStreams requests the peer reset multiple outgoing streams in one
// RECONFIG chunk (RFC 6525 §4.1 allows up to reconfigMaxStreams ids).
func (a *Association) ReconfigStreams(streamIdentifiers []uint16) error {
	return a.runOnLoopSync(func() error {
		return a.reconfigState.requestReset(streamIdentifiers)
	})
}

// AddOutgoingStreams requests count additional outgoing streams beyond what
// was negotiated at handshake time (RFC 6525 §4.4).
func (a *Association) AddOutgoingStreams(count uint16) error {
	return a.runOnLoopSync(func() error {
		return a.reconfigState.requestAddStreams(count)
	})
}

// CloseStreams closes every named stream, returning a combined error if any
// individual Close failed rather than stopping at the first one — a caller
// tearing down a whole DataChannel batch wants to know about all of them.
func (a *Association) CloseStreams(streamIdentifiers ...uint16) error {
	var streams []*Stream
	_ = a.runOnLoopSync(func() error {
		for _, id := range streamIdentifiers {
			if s, ok := a.streams[id]; ok {
				streams = append(streams, s)
			}
		}
		return nil
	})

	var errs []error
	for _, s := range streams {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return util.FlattenErrs(errs)
}

func (r *reconfigState) requestReset(streamIDs []uint16) error {
	if len(streamIDs) > reconfigMaxStreams {
		streamIDs = streamIDs[:reconfigMaxStreams]
	}
	r.pendingStreamIDs = streamIDs
	r.pendingIsAdd = false
	r.pendingReqSeq = r.nextRequestSeq
	r.nextRequestSeq++

	req := &outgoingResetRequestParam{
		reconfigRequestSequenceNumber: r.pendingReqSeq,
		senderLastTSN:                 r.assoc.myNextTSN - 1,
		streamIdentifiers:             streamIDs,
	}
	c := &chunkReconfig{}
	c.addParam(paramOutgoingResetRequest, req.marshal())

	r.assoc.stats.numReconfigSent.Add(1)
	r.assoc.reconfigTimer.start(r.assoc.rtoMgr.getRTO())
	return r.assoc.writePacket(context.Background(), c)
}

func (r *reconfigState) requestAddStreams(count uint16) error {
	r.pendingAddCount = count
	r.pendingIsAdd = true
	r.pendingReqSeq = r.nextRequestSeq
	r.nextRequestSeq++

	req := &addStreamsRequestParam{
		reconfigRequestSequenceNumber: r.pendingReqSeq,
		numNewStreams:                 count,
	}
	c := &chunkReconfig{}
	c.addParam(paramAddOutgoingStreams, req.marshal())

	r.assoc.stats.numReconfigSent.Add(1)
	r.assoc.reconfigTimer.start(r.assoc.rtoMgr.getRTO())
	return r.assoc.writePacket(context.Background(), c)
}

func (r *reconfigState) onTimeout(attempt int) {
	if r.assoc.reconfigTimer.isExceeded() {
		r.assoc.log.Warnf("%s: RECONFIG request %d abandoned after %d attempts", r.assoc.name, r.pendingReqSeq, attempt)
		r.assoc.reconfigTimer.stop()
		return
	}
	// Resend whichever request is still outstanding, under its original
	// sequence number; the timer re-arms itself with backoff after this.
	c := &chunkReconfig{}
	if r.pendingIsAdd {
		req := &addStreamsRequestParam{reconfigRequestSequenceNumber: r.pendingReqSeq, numNewStreams: r.pendingAddCount}
		c.addParam(paramAddOutgoingStreams, req.marshal())
	} else if r.pendingStreamIDs != nil {
		req := &outgoingResetRequestParam{
			reconfigRequestSequenceNumber: r.pendingReqSeq,
			senderLastTSN:                 r.assoc.myNextTSN - 1,
			streamIdentifiers:             r.pendingStreamIDs,
		}
		c.addParam(paramOutgoingResetRequest, req.marshal())
	} else {
		return
	}
	r.assoc.stats.numReconfigSent.Add(1)
	_ = r.assoc.writePacket(context.Background(), c)
}

// handleReconfig processes every parameter in an inbound RECONFIG chunk.
// A chunk may carry a request, a response, or (RFC 6525 §3.1) both.
func (a *Association) handleReconfig(c *chunkReconfig) error {
	a.stats.numReconfigRecv.Add(1)
	var respond []byte

	for i := 0; ; i++ {
		h, ok := c.paramAt(i)
		if !ok {
			break
		}
		switch h.typ {
		case paramOutgoingResetRequest:
			req, err := parseOutgoingResetRequest(h.raw)
			if err != nil {
				return err
			}
			result := reconfigResultSuccessPerformed
			if !a.reconfigState.alreadyHandled(req.reconfigRequestSequenceNumber) {
				result = a.applyIncomingStreamReset(req)
				a.reconfigState.markHandled(req.reconfigRequestSequenceNumber)
			}
			resp := &reconfigResponseParam{reconfigResponseSequenceNumber: req.reconfigRequestSequenceNumber, result: result}
			respond = resp.marshal()

		case paramAddOutgoingStreams:
			req, err := parseAddStreamsRequest(h.raw)
			if err != nil {
				return err
			}
			if !a.reconfigState.alreadyHandled(req.reconfigRequestSequenceNumber) {
				a.peerMaxNumOutboundStreams += req.numNewStreams
				if a.OnStreamsAdded != nil {
					a.OnStreamsAdded(req.numNewStreams)
				}
				a.reconfigState.markHandled(req.reconfigRequestSequenceNumber)
			}
			resp := &reconfigResponseParam{reconfigResponseSequenceNumber: req.reconfigRequestSequenceNumber, result: reconfigResultSuccessPerformed}
			respond = resp.marshal()

		case paramReconfigResponse:
			resp, err := parseReconfigResponse(h.raw)
			if err != nil {
				return err
			}
			a.handleReconfigResponse(resp)
		}
	}

	if respond != nil {
		reply := &chunkReconfig{}
		reply.addParam(paramReconfigResponse, respond)
		return a.writePacket(context.Background(), reply)
	}
	return nil
}

// applyIncomingStreamReset resets local reassembly state for streams the
// peer is resetting on its outgoing (our incoming) side, per RFC 6525
// §5.2.1 — delivery of data already reassembled is unaffected; only the
// per-stream SSN expectation restarts at 0. It also schedules our own
// mirroring outgoing reset for the same stream identifiers: RFC 6525 §5.1
// has stream resets apply to both directions, and a passive side that never
// resets its own outgoing SSNs would hand the peer a stale SSN expectation
// as soon as it next writes on that stream.
func (a *Association) applyIncomingStreamReset(req *outgoingResetRequestParam) reconfigResult {
	ids := req.streamIdentifiers
	if len(ids) == 0 {
		// An empty list means "all streams" (RFC 6525 §4.1).
		for id := range a.inbound.streams {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		a.inbound.streams[id] = newStreamReassembly()
	}
	if a.OnReconfigStreams != nil {
		a.OnReconfigStreams(ids)
	}
	if !a.reconfigState.pendingIsAdd && a.reconfigState.pendingStreamIDs == nil {
		if err := a.reconfigState.requestReset(ids); err != nil {
			a.log.Warnf("%s: mirroring incoming stream reset: %v", a.name, err)
		}
	}
	return reconfigResultSuccessPerformed
}

func (a *Association) handleReconfigResponse(resp *reconfigResponseParam) {
	if resp.reconfigResponseSequenceNumber != a.reconfigState.pendingReqSeq {
		return // stale or unrelated response
	}
	a.reconfigTimer.stop()

	if !a.reconfigState.pendingIsAdd {
		for _, id := range a.reconfigState.pendingStreamIDs {
			if s, ok := a.streams[id]; ok {
				s.lock.Lock()
				s.outboundNextSSN = 0
				s.state = streamStateOpen
				s.lock.Unlock()
			}
		}
		if a.OnReconfigStreams != nil {
			a.OnReconfigStreams(a.reconfigState.pendingStreamIDs)
		}
	}
	a.reconfigState.pendingStreamIDs = nil
	a.reconfigState.pendingIsAdd = false
}
