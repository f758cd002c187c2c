// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/logging"
)

// associationState is the RFC 4960 §4 state machine, collapsed to what a
// single SCTP-over-DTLS association driven by one peer actually exercises:
// no COOKIE-WAIT retransmission of a listening INIT-ACK, no multi-homed
// path state.
type associationState int

const (
	stateClosed associationState = iota
	stateCookieWait
	stateCookieEchoed
	stateEstablished
	stateShutdownPending
	stateShutdownSent
	stateShutdownReceived
	stateShutdownAckSent
)

func (s associationState) String() string {
	switch s {
	case stateClosed:
		return "Closed"
	case stateCookieWait:
		return "CookieWait"
	case stateCookieEchoed:
		return "CookieEchoed"
	case stateEstablished:
		return "Established"
	case stateShutdownPending:
		return "ShutdownPending"
	case stateShutdownSent:
		return "ShutdownSent"
	case stateShutdownReceived:
		return "ShutdownReceived"
	case stateShutdownAckSent:
		return "ShutdownAckSent"
	default:
		return "Unknown"
	}
}

// Association is an SCTP association carrying one or more WebRTC Data
// Channels. All mutable state is owned by a single command-loop goroutine;
// every exported method that touches it hops onto that loop via runOnLoop
// and waits for the result, so callers can use an Association concurrently
// without their own locking.
type Association struct {
	log  logging.LeveledLogger
	name string

	netConn    NetConn
	sendPacket func(ctx context.Context, raw []byte) error

	commandCh chan func()
	closedCh  chan struct{}

	state associationState

	myVerificationTag   uint32
	peerVerificationTag uint32
	myCookieKey         cookieSigningKey

	myInitialTSN   uint32
	peerInitialTSN uint32
	myNextTSN      uint32 // next TSN to assign to a new DATA chunk
	cumulativeTSNAckPoint uint32 // highest TSN peer has fully acked
	peerCumulativeTSNAck  uint32 // highest TSN we have fully acked to peer (our view of reception)

	myMaxNumOutboundStreams   uint16
	myMaxNumInboundStreams    uint16
	peerMaxNumInboundStreams  uint16
	peerMaxNumOutboundStreams uint16

	streams map[uint16]*Stream

	myAwareRwnd   uint32 // local advertised a_rwnd
	peerRwnd      uint32 // peer's last-advertised a_rwnd, bounds what we may send
	maxReceiveBufferSize uint32
	maxMessageSize       uint32
	mtu                  uint32

	rtoMgr *rtoManager

	cwnd              uint32
	ssthresh          uint32
	partialBytesAcked uint32
	minCwnd           uint32
	inFastRecovery    bool
	fastRecoveryExitTSN uint32

	t1Init     *rtxTimer
	t1Cookie   *rtxTimer
	t2Shutdown *rtxTimer
	t3RTX      *rtxTimer
	reconfigTimer *rtxTimer
	ackTimer   *ackTimer

	inflight      map[uint32]*inflightChunk // TSN -> chunk awaiting ack
	pending       []*chunkPayloadData       // queued, not yet transmitted
	inflightOrder []uint32                  // TSNs in send order, oldest first
	forwardTSNPoint uint32                  // highest TSN covered by ack-or-abandon

	inbound *inboundState

	reconfigState *reconfigState

	stats associationStatsCounters

	// Callbacks. Invoked from the command loop; must not block.
	OnStateChange          func(associationState)
	OnStreamOpened         func(*Stream)
	OnReconfigStreams      func(streamIdentifiers []uint16)
	OnStreamsAdded         func(count uint16)
	OnAssociationClosed    func(error)
}

type inflightChunk struct {
	chunk       *chunkPayloadData
	sentAt      time.Time
	retransmits int
	timedSample bool // eligible for an RTT sample (first send, not a rtx)
	queuedAt    time.Time
	misses      int // consecutive SACKs reporting this TSN missing (RFC 4960 §7.2.4)

	relType ReliabilityType
	relVal  uint32
}

// Client dials out: sends INIT and drives the 4-way handshake to
// completion before returning.
func Client(ctx context.Context, config Config) (*Association, error) {
	a := newAssociation(config)
	if err := a.startReadLoop(); err != nil {
		return nil, err
	}

	tag, initialTSN, err := newInitiationValues()
	if err != nil {
		return nil, fmt.Errorf("sctp: generating initiation values: %w", err)
	}
	a.myVerificationTag = tag
	a.myInitialTSN = initialTSN
	a.myNextTSN = initialTSN
	a.cumulativeTSNAckPoint = initialTSN - 1
	a.forwardTSNPoint = initialTSN - 1

	if err := a.runOnLoopSync(func() error { return a.sendInit() }); err != nil {
		return nil, err
	}

	select {
	case <-a.establishedSignal():
		return a, nil
	case <-ctx.Done():
		a.Abort("handshake canceled")
		return nil, ctx.Err()
	case <-a.closedCh:
		return nil, ErrAssociationClosed
	}
}

// Server accepts: waits for INIT, replies with a State Cookie, and
// completes the handshake on COOKIE-ECHO.
func Server(ctx context.Context, config Config) (*Association, error) {
	a := newAssociation(config)
	if err := a.startReadLoop(); err != nil {
		return nil, err
	}

	select {
	case <-a.establishedSignal():
		return a, nil
	case <-ctx.Done():
		a.Abort("handshake canceled")
		return nil, ctx.Err()
	case <-a.closedCh:
		return nil, ErrAssociationClosed
	}
}

func newAssociation(config Config) *Association {
	a := &Association{
		log:                  config.loggerFactory().NewLogger(config.name()),
		name:                 config.name(),
		netConn:              config.NetConn,
		sendPacket:           config.SendPacket,
		commandCh:            make(chan func(), 64),
		closedCh:             make(chan struct{}),
		state:                stateClosed,
		streams:              make(map[uint16]*Stream),
		maxReceiveBufferSize: config.maxReceiveBufferSize(),
		maxMessageSize:       config.maxMessageSize(),
		mtu:                  config.mtu(),
		myAwareRwnd:          config.maxReceiveBufferSize(),
		peerRwnd:             defaultMaxReceiveBufferSize,
		cwnd:                 minUint32(4*uint32(defaultMTU), maxUint32(2*uint32(defaultMTU), 4380)),
		minCwnd:              4 * uint32(defaultMTU),
		ssthresh:             1 << 30,
		rtoMgr:               newRTOManager(),
		inflight:             make(map[uint32]*inflightChunk),
	}
	a.myMaxNumOutboundStreams = defaultNumOutboundStreams
	a.myMaxNumInboundStreams = defaultNumInboundStreams
	a.inbound = newInboundState()
	a.reconfigState = newReconfigState(a)

	if key, err := newCookieSigningKey(); err == nil {
		a.myCookieKey = key
	}

	a.t1Init = newRTXTimer("t1-init", a.runOnLoop, maxInitRetransmits, a.onT1InitTimeout)
	a.t1Cookie = newRTXTimer("t1-cookie", a.runOnLoop, maxInitRetransmits, a.onT1CookieTimeout)
	a.t2Shutdown = newRTXTimer("t2-shutdown", a.runOnLoop, maxAssocRetransmits, a.onT2ShutdownTimeout)
	a.t3RTX = newRTXTimer("t3-rtx", a.runOnLoop, -1, a.onT3RTXTimeout)
	a.reconfigTimer = newRTXTimer("reconfig", a.runOnLoop, maxAssocRetransmits, a.onReconfigTimeout)
	a.ackTimer = &ackTimer{}

	go a.loop()
	return a
}

// loop is the single goroutine that owns all association state.
func (a *Association) loop() {
	for {
		select {
		case cmd := <-a.commandCh:
			cmd()
		case <-a.closedCh:
			return
		}
	}
}

// runOnLoop posts f to the command loop without waiting for it to run; used
// by timer callbacks and the read loop, which must never block on the loop
// making progress.
func (a *Association) runOnLoop(f func()) {
	select {
	case a.commandCh <- f:
	case <-a.closedCh:
	}
}

// runOnLoopSync posts f and blocks until it has run, propagating its error.
// Used by exported methods so callers observe a consistent state.
func (a *Association) runOnLoopSync(f func() error) error {
	done := make(chan error, 1)
	select {
	case a.commandCh <- func() { done <- f() }:
	case <-a.closedCh:
		return ErrAssociationClosed
	}
	select {
	case err := <-done:
		return err
	case <-a.closedCh:
		return ErrAssociationClosed
	}
}

func (a *Association) establishedSignal() <-chan struct{} {
	ch := make(chan struct{})
	a.runOnLoop(func() {
		if a.state == stateEstablished {
			close(ch)
			return
		}
		prev := a.OnStateChange
		a.OnStateChange = func(s associationState) {
			if prev != nil {
				prev(s)
			}
			if s == stateEstablished {
				select {
				case <-ch:
				default:
					close(ch)
				}
			}
		}
	})
	return ch
}

func (a *Association) setState(s associationState) {
	if a.state == s {
		return
	}
	a.state = s
	a.log.Debugf("%s: state -> %s", a.name, s)
	if a.OnStateChange != nil {
		a.OnStateChange(s)
	}
}

// startReadLoop launches the background goroutine that reads raw packets
// off NetConn, if one was configured, and feeds them to HandlePacket.
// Callers using SendPacket/HandlePacket directly (no NetConn) skip this.
func (a *Association) startReadLoop() error {
	if a.netConn == nil {
		return nil
	}
	go func() {
		buf := make([]byte, 1<<16)
		for {
			n, err := a.netConn.Read(buf)
			if err != nil {
				a.runOnLoop(func() { a.handleReadError(err) })
				return
			}
			raw := make([]byte, n)
			copy(raw, buf[:n])
			_ = a.HandlePacket(context.Background(), raw)
		}
	}()
	return nil
}

func (a *Association) handleReadError(err error) {
	a.log.Warnf("%s: read loop closed: %v", a.name, err)
	a.closeWith(err)
}

// HandlePacket decodes and processes one inbound SCTP packet. Safe to call
// concurrently; each call hops onto the command loop.
func (a *Association) HandlePacket(ctx context.Context, raw []byte) error {
	var p packet
	if err := p.unmarshal(raw); err != nil {
		a.log.Warnf("%s: dropping malformed packet: %v", a.name, err)
		return err
	}
	a.stats.numBytesReceived.Add(uint64(len(raw)))
	return a.runOnLoopSync(func() error {
		return a.handlePacket(&p)
	})
}

// writePacket marshals and transmits one outbound packet, stamping the current
// peer verification tag.
func (a *Association) writePacket(ctx context.Context, chunks ...chunk) error {
	p := &packet{verificationTag: a.peerVerificationTag, chunks: chunks}
	raw, err := p.marshal()
	if err != nil {
		return err
	}
	a.stats.numBytesSent.Add(uint64(len(raw)))
	if a.netConn != nil {
		_, err := a.netConn.Write(raw)
		return err
	}
	if a.sendPacket != nil {
		return a.sendPacket(ctx, raw)
	}
	return fmt.Errorf("sctp: %s: no transport configured", a.name)
}

// Abort tears the association down immediately with an ABORT chunk,
// bypassing the graceful shutdown handshake.
func (a *Association) Abort(reason string) {
	_ = a.runOnLoopSync(func() error {
		if a.state == stateClosed {
			return nil
		}
		_ = a.writePacket(context.Background(), &chunkAbort{})
		a.log.Warnf("%s: aborting: %s", a.name, reason)
		a.closeWithLocked(fmt.Errorf("%w: %s", ErrPeerAbort, reason))
		return nil
	})
}

// Close initiates RFC 4960 §9 graceful shutdown. It returns once the
// association has reached state Closed, or ctx is done.
func (a *Association) Close(ctx context.Context) error {
	err := a.runOnLoopSync(func() error {
		if a.state == stateClosed {
			return nil
		}
		if len(a.inflight) == 0 && len(a.pending) == 0 {
			a.setState(stateShutdownSent)
			return a.sendShutdown()
		}
		a.setState(stateShutdownPending)
		return nil
	})
	if err != nil {
		return err
	}
	select {
	case <-a.closedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Association) closeWith(err error) {
	a.runOnLoop(func() { a.closeWithLocked(err) })
}

func (a *Association) closeWithLocked(err error) {
	if a.state == stateClosed {
		return
	}
	a.setState(stateClosed)
	a.t1Init.stop()
	a.t1Cookie.stop()
	a.t2Shutdown.stop()
	a.t3RTX.stop()
	a.reconfigTimer.stop()

	for _, s := range a.streams {
		s.closeForReading(err)
	}
	if a.netConn != nil {
		_ = a.netConn.Close()
	}
	if a.OnAssociationClosed != nil {
		a.OnAssociationClosed(err)
	}
	close(a.closedCh)
}

// OpenStream returns a Stream for the given identifier, creating it if it
// doesn't already exist locally. SCTP streams need no open handshake: the
// first DATA chunk on an identifier implicitly creates it at the peer.
func (a *Association) OpenStream(streamIdentifier uint16, name string) (*Stream, error) {
	var s *Stream
	err := a.runOnLoopSync(func() error {
		if streamIdentifier >= a.myMaxNumOutboundStreams {
			return ErrInvalidStreamID
		}
		if existing, ok := a.streams[streamIdentifier]; ok {
			s = existing
			return nil
		}
		s = newStream(a, streamIdentifier, name)
		a.streams[streamIdentifier] = s
		return nil
	})
	return s, err
}

func (a *Association) getOrCreateStream(id uint16) *Stream {
	if s, ok := a.streams[id]; ok {
		return s
	}
	s := newStream(a, id, "")
	a.streams[id] = s
	if a.OnStreamOpened != nil {
		a.OnStreamOpened(s)
	}
	return s
}

// Stats returns a snapshot of lifetime counters.
func (a *Association) Stats() AssociationStats { return a.stats.snapshot() }

// MaxMessageSize reports the locally advertised maximum message size.
func (a *Association) MaxMessageSize() uint32 { return a.maxMessageSize }

// BufferedAmount sums BufferedAmount across every open stream.
func (a *Association) BufferedAmount() uint64 {
	var total uint64
	_ = a.runOnLoopSync(func() error {
		for _, s := range a.streams {
			total += s.BufferedAmount()
		}
		return nil
	})
	return total
}
