// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// handlePacket runs on the command loop and dispatches every chunk in an
// inbound packet. A single UDP-sized datagram routinely carries several
// chunks (e.g. SACK + DATA), so this never returns early on one chunk's
// error — RFC 4960 §6.10 bundling rules have each chunk handled on its own
// merits. Processing stops only once a chunk (ABORT, SHUTDOWN-COMPLETE, or a
// SHUTDOWN-ACK completing the shutdown) has closed the association.
func (a *Association) handlePacket(p *packet) error {
	// INIT, COOKIE-ECHO, and (client-side) INIT-ACK legitimately carry a
	// tag we haven't installed yet; this exemption applies to those chunk
	// types specifically, in any association state — not to every chunk
	// type just because the handshake hasn't finished (RFC 4960 §4.2,
	// §8.5). Everything else must carry our own tag, always.
	tagOK := p.verificationTag == a.myVerificationTag
	if !tagOK {
		hasHandshakeChunk := false
		for _, c := range p.chunks {
			if isHandshakeChunkType(c.chunkType()) {
				hasHandshakeChunk = true
				break
			}
		}
		if !hasHandshakeChunk {
			return fmt.Errorf("%w: got %d want %d", ErrBadVerificationTag, p.verificationTag, a.myVerificationTag)
		}
	}

	for _, c := range p.chunks {
		if !tagOK && !isHandshakeChunkType(c.chunkType()) {
			a.log.Warnf("%s: dropping %s carried on a bad-tag packet", a.name, c.chunkType())
			continue
		}
		if err := a.handleChunk(c); err != nil {
			a.log.Warnf("%s: handling %s: %v", a.name, c.chunkType(), err)
		}
		if a.state == stateClosed {
			break
		}
	}

	if a.inbound.needSACK {
		a.scheduleSACK()
	}
	return nil
}

func isHandshakeChunkType(t chunkType) bool {
	switch t {
	case ctInit, ctCookieEcho, ctInitAck:
		return true
	default:
		return false
	}
}

func (a *Association) handleChunk(c chunk) error {
	switch v := c.(type) {
	case *chunkInit:
		return a.handleInit(v)
	case *chunkInitAck:
		return a.handleInitAck(v)
	case *chunkCookieEcho:
		return a.handleCookieEcho(v)
	case *chunkCookieAck:
		return a.handleCookieAck(v)
	case *chunkPayloadData:
		return a.handleData(v)
	case *chunkSelectiveAck:
		return a.handleSack(v)
	case *chunkHeartbeat:
		return a.handleHeartbeat(v)
	case *chunkHeartbeatAck:
		return nil // nothing outstanding to correlate it against
	case *chunkAbort:
		a.closeWithLocked(ErrPeerAbort)
		return nil
	case *chunkShutdown:
		return a.handleShutdown(v)
	case *chunkShutdownAck:
		return a.handleShutdownAck()
	case *chunkShutdownComplete:
		a.closeWithLocked(nil)
		return nil
	case *chunkError:
		return a.handleError(v)
	case *chunkReconfig:
		return a.handleReconfig(v)
	case *chunkForwardTSN:
		return a.handleForwardTSN(v)
	default:
		return fmt.Errorf("%w: %T", ErrUnmarshalUnknownChunkType, c)
	}
}

func (a *Association) handleInit(c *chunkInit) error {
	if a.state != stateClosed {
		// A simultaneous-open INIT while already established: this engine
		// assumes a single DTLS-bound peer, so just re-send INIT-ACK
		// rather than implementing full RFC 4960 §5.2 tie-breaking.
		a.log.Debugf("%s: INIT received in state %s, re-acking", a.name, a.state)
	}

	a.peerVerificationTag = c.initiateTag
	a.peerInitialTSN = c.initialTSN
	a.inbound.cumulativeTSN = c.initialTSN - 1
	a.inbound.haveFirstTSN = true
	a.peerMaxNumInboundStreams = c.numInboundStrm
	a.peerMaxNumOutboundStreams = c.numOutboundStrm
	a.peerRwnd = c.advertisedRwnd

	myTag, myInitialTSN := deriveResponderValues(a.myCookieKey, c.initiateTag, c.initialTSN)
	a.myVerificationTag = myTag
	a.myInitialTSN = myInitialTSN
	a.myNextTSN = myInitialTSN
	a.cumulativeTSNAckPoint = myInitialTSN - 1
	a.forwardTSNPoint = myInitialTSN - 1

	cookie := buildStateCookie(a.myCookieKey, time.Now(), myTag, c.initiateTag, myInitialTSN, c.initialTSN)

	ack := &chunkInitAck{initCommon: initCommon{
		initiateTag:     myTag,
		advertisedRwnd:  a.myAwareRwnd,
		numOutboundStrm: a.myMaxNumOutboundStreams,
		numInboundStrm:  a.myMaxNumInboundStreams,
		initialTSN:      myInitialTSN,
		stateCookie:     cookie,
	}}
	// INIT-ACK reflects the peer's freshly-announced tag even though our
	// own verification tag isn't installed on their side yet (RFC 4960
	// §5.1 exception for this one chunk).
	old := a.peerVerificationTag
	a.peerVerificationTag = c.initiateTag
	err := a.writePacket(context.Background(), ack)
	a.peerVerificationTag = old
	return err
}

func (a *Association) handleInitAck(c *chunkInitAck) error {
	if a.state != stateCookieWait {
		return nil
	}
	a.t1Init.stop()

	a.peerVerificationTag = c.initiateTag
	a.peerInitialTSN = c.initialTSN
	a.inbound.cumulativeTSN = c.initialTSN - 1
	a.inbound.haveFirstTSN = true
	a.peerMaxNumInboundStreams = c.numInboundStrm
	a.peerMaxNumOutboundStreams = c.numOutboundStrm
	a.peerRwnd = c.advertisedRwnd

	if c.stateCookie == nil {
		return fmt.Errorf("%w: INIT-ACK missing state cookie", ErrShortCookie)
	}

	a.setState(stateCookieEchoed)
	a.t1Cookie.start(a.rtoMgr.getRTO())
	return a.writePacket(context.Background(), &chunkCookieEcho{cookie: c.stateCookie})
}

func (a *Association) handleCookieEcho(c *chunkCookieEcho) error {
	localTag, remoteTag, localTSN, remoteTSN, err := verifyStateCookie(a.myCookieKey, time.Now(), c.cookie)
	if err != nil {
		if errors.Is(err, ErrCookieStale) {
			return a.writePacket(context.Background(), &chunkError{causes: staleCookieCause()})
		}
		return err
	}

	a.myVerificationTag = localTag
	a.peerVerificationTag = remoteTag
	a.myNextTSN = localTSN
	a.myInitialTSN = localTSN
	a.peerInitialTSN = remoteTSN
	if !a.inbound.haveFirstTSN {
		a.inbound.cumulativeTSN = remoteTSN - 1
		a.inbound.haveFirstTSN = true
	}

	if err := a.writePacket(context.Background(), &chunkCookieAck{}); err != nil {
		return err
	}
	a.setState(stateEstablished)
	return nil
}

func (a *Association) handleCookieAck(*chunkCookieAck) error {
	if a.state != stateCookieEchoed {
		return nil
	}
	a.t1Cookie.stop()
	a.setState(stateEstablished)
	return nil
}

func (a *Association) handleData(c *chunkPayloadData) error {
	a.stats.numDATAs.Add(1)
	if dup := a.inbound.recordArrival(c.tsn); dup {
		a.stats.numDuplicateTSNs.Add(1)
		return nil
	}

	r, ok := a.inbound.streams[c.streamIdentifier]
	if !ok {
		r = newStreamReassembly()
		a.inbound.streams[c.streamIdentifier] = r
	}
	for _, msg := range r.add(c) {
		s := a.getOrCreateStream(c.streamIdentifier)
		s.deliver(msg.data, msg.ppi)
	}
	return nil
}

func (a *Association) handleSack(c *chunkSelectiveAck) error {
	a.stats.numSACKs.Add(1)
	a.peerRwnd = c.advertisedRwnd
	return a.onSACK(c)
}

func (a *Association) handleHeartbeat(c *chunkHeartbeat) error {
	return a.writePacket(context.Background(), &chunkHeartbeatAck{params: c.params})
}

func (a *Association) handleShutdown(c *chunkShutdown) error {
	switch a.state {
	case stateEstablished, stateShutdownPending:
		a.setState(stateShutdownReceived)
	case stateShutdownSent:
		// simultaneous shutdown, RFC 4960 §9.2 case
	default:
		return nil
	}
	if len(a.inflight) == 0 {
		a.setState(stateShutdownAckSent)
		return a.writePacket(context.Background(), &chunkShutdownAck{})
	}
	return nil
}

func (a *Association) handleShutdownAck() error {
	if a.state != stateShutdownSent && a.state != stateShutdownAckSent {
		return nil
	}
	a.t2Shutdown.stop()
	if err := a.writePacket(context.Background(), &chunkShutdownComplete{}); err != nil {
		return err
	}
	a.closeWithLocked(nil)
	return nil
}

func (a *Association) handleError(c *chunkError) error {
	code, ok := firstCauseCode(c.causes)
	if ok && code == errorCauseStaleCookie && a.state == stateCookieEchoed {
		a.closeWithLocked(fmt.Errorf("%w: stale cookie", ErrCookieStale))
		return nil
	}
	a.log.Warnf("%s: received ERROR chunk", a.name)
	return nil
}

func (a *Association) handleForwardTSN(c *chunkForwardTSN) error {
	if sna32LTE(c.newCumulativeTSN, a.inbound.cumulativeTSN) {
		return nil // already delivered everything it's forwarding past
	}
	a.inbound.cumulativeTSN = c.newCumulativeTSN
	for tsn := range a.inbound.gapReceived {
		if sna32LTE(tsn, c.newCumulativeTSN) {
			delete(a.inbound.gapReceived, tsn)
		}
	}
	for {
		next := a.inbound.cumulativeTSN + 1
		if _, ok := a.inbound.gapReceived[next]; !ok {
			break
		}
		delete(a.inbound.gapReceived, next)
		a.inbound.cumulativeTSN = next
	}

	for _, fs := range c.streams {
		r, ok := a.inbound.streams[fs.identifier]
		if !ok {
			r = newStreamReassembly()
			a.inbound.streams[fs.identifier] = r
		}
		for _, msg := range r.forwardTo(fs.sequence + 1) {
			s := a.getOrCreateStream(fs.identifier)
			s.deliver(msg.data, msg.ppi)
		}
	}

	a.inbound.needSACK = true
	return nil
}

// scheduleSACK arms the zero-delay SACK timer.
func (a *Association) scheduleSACK() {
	a.inbound.needSACK = false
	a.ackTimer.schedule(a.runOnLoop, func() {
		_ = a.sendSACK()
	})
}

func (a *Association) sendSACK() error {
	sack := &chunkSelectiveAck{
		cumulativeTSNAck: a.inbound.cumulativeTSN,
		advertisedRwnd:   a.myAwareRwnd,
		gapAckBlocks:     a.inbound.buildGapAckBlocks(),
		duplicateTSN:     a.inbound.takeDuplicates(),
	}
	return a.writePacket(context.Background(), sack)
}
