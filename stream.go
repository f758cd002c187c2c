// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// ReliabilityType selects a stream's partial reliability policy (RFC 3758).
// Once a stream's outstanding data fails to meet the policy, the sender
// abandons it and folds the gap into the next FORWARD-TSN instead of
// retransmitting forever.
type ReliabilityType int

const (
	// ReliabilityTypeReliable never abandons data — ordinary SCTP behavior.
	ReliabilityTypeReliable ReliabilityType = iota
	// ReliabilityTypeRexmit abandons a message after N retransmissions.
	ReliabilityTypeRexmit
	// ReliabilityTypeTimed abandons a message N milliseconds after it was
	// first queued, regardless of how many times it was sent.
	ReliabilityTypeTimed
)

// streamState mirrors the lifecycle a DataChannel label goes through,
// independent of the association's own state machine.
type streamState int

const (
	streamStateOpen streamState = iota
	streamStateResetting
	streamStateClosed
)

// Stream is one bidirectional SCTP stream multiplexed over an Association.
// It preserves message boundaries: Write/WriteSCTP enqueue one whole
// message (fragmented internally if it exceeds userDataMaxLength) and
// Read/ReadSCTP hand back one message at a time, never bytes of two
// messages in one call; a message longer than the caller's buffer is
// returned across successive calls.
type Stream struct {
	lock sync.Mutex

	association *Association
	identifier  uint16

	unordered        bool
	reliabilityType  ReliabilityType
	reliabilityValue uint32

	outboundNextSSN uint16

	readCh  chan streamMessage
	readBuf []byte // leftover from a partially-consumed ReadSCTP/Read message
	readPPI PayloadProtocolID

	bufferedAmount         uint64
	bufferedAmountLowLevel uint64
	onBufferedAmountLow    func()

	state streamState
	name  string
}

type streamMessage struct {
	data []byte
	ppi  PayloadProtocolID
	err  error
}

func newStream(a *Association, id uint16, name string) *Stream {
	return &Stream{
		association: a,
		identifier:  id,
		name:        name,
		readCh:      make(chan streamMessage, 16),
		state:       streamStateOpen,
	}
}

// StreamIdentifier returns the stream's id.
func (s *Stream) StreamIdentifier() uint16 { return s.identifier }

func (s *Stream) String() string {
	if s.name == "" {
		return fmt.Sprintf("stream(%d)", s.identifier)
	}
	return fmt.Sprintf("stream(%d, %q)", s.identifier, s.name)
}

// SetReliabilityParams configures the partial reliability policy applied to
// messages queued on this stream from this point on (RFC 3758 §3.1, DCEP's
// Channel Type field maps onto this).
func (s *Stream) SetReliabilityParams(unordered bool, relType ReliabilityType, relVal uint32) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.unordered = unordered
	s.reliabilityType = relType
	s.reliabilityValue = relVal
}

func (s *Stream) reliability() (unordered bool, relType ReliabilityType, relVal uint32) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.unordered, s.reliabilityType, s.reliabilityValue
}

// nextSSN returns the next outbound stream sequence number for a message,
// ordered or not, and advances the counter (RFC 4960 §3.3.1 SSNs wrap at 2^16).
func (s *Stream) nextSSN() uint16 {
	s.lock.Lock()
	defer s.lock.Unlock()
	ssn := s.outboundNextSSN
	s.outboundNextSSN++
	return ssn
}

// WriteSCTP queues p as one message with the given payload protocol
// identifier, fragmenting internally if needed. It never blocks on the
// network; BufferedAmount grows until the peer's SACKs drain it.
func (s *Stream) WriteSCTP(p []byte, ppi PayloadProtocolID) (int, error) {
	s.lock.Lock()
	if s.state == streamStateClosed {
		s.lock.Unlock()
		return 0, ErrStreamClosed
	}
	s.lock.Unlock()

	if err := s.association.sendOnStream(s, p, ppi); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Write queues p as a binary message (RFC 8831's default outside DCEP).
func (s *Stream) Write(p []byte) (int, error) {
	return s.WriteSCTP(p, PayloadTypeWebRTCBinary)
}

// ReadSCTP blocks until the next whole message arrives, or ctx is done.
// If p is shorter than the message, the remainder is buffered for the next
// call — mirroring pion/sctp's Stream, which never silently drops bytes.
func (s *Stream) ReadSCTP(ctx context.Context, p []byte) (n int, ppi PayloadProtocolID, err error) {
	s.lock.Lock()
	if len(s.readBuf) > 0 {
		n = copy(p, s.readBuf)
		s.readBuf = s.readBuf[n:]
		ppi = s.readPPI
		s.lock.Unlock()
		return n, ppi, nil
	}
	s.lock.Unlock()

	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	case msg, ok := <-s.readCh:
		if !ok {
			return 0, 0, io.EOF
		}
		if msg.err != nil {
			return 0, 0, msg.err
		}
		n = copy(p, msg.data)
		s.lock.Lock()
		if n < len(msg.data) {
			s.readBuf = msg.data[n:]
			s.readPPI = msg.ppi
		}
		s.lock.Unlock()
		return n, msg.ppi, nil
	}
}

// Read implements io.Reader against a background context, for callers that
// don't need per-message payload protocol identifiers.
func (s *Stream) Read(p []byte) (int, error) {
	n, _, err := s.ReadSCTP(context.Background(), p)
	return n, err
}

// deliver hands a fully reassembled message to the stream's reader. Called
// only from the association's command loop — if the reader isn't keeping
// up and readCh's buffer is full, this blocks the whole loop rather than
// drop a message. A slow consumer applying backpressure to the link is the
// same tradeoff SCTP's own receiver window makes at the wire level.
func (s *Stream) deliver(data []byte, ppi PayloadProtocolID) {
	s.readCh <- streamMessage{data: data, ppi: ppi}
}

func (s *Stream) closeForReading(err error) {
	s.lock.Lock()
	if s.state == streamStateClosed {
		s.lock.Unlock()
		return
	}
	s.state = streamStateClosed
	s.lock.Unlock()
	s.readCh <- streamMessage{err: err}
	close(s.readCh)
}

// BufferedAmount returns the number of bytes queued for send but not yet
// acknowledged by the peer, cumulatively or in a gap-ack block.
func (s *Stream) BufferedAmount() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.bufferedAmount
}

func (s *Stream) addBufferedAmount(delta int64) {
	s.lock.Lock()
	prev := s.bufferedAmount
	if delta < 0 && uint64(-delta) > s.bufferedAmount {
		s.bufferedAmount = 0
	} else {
		s.bufferedAmount = uint64(int64(s.bufferedAmount) + delta)
	}
	amount := s.bufferedAmount
	low := s.bufferedAmountLowLevel
	cb := s.onBufferedAmountLow
	s.lock.Unlock()

	if cb != nil && prev > low && amount <= low {
		cb()
	}
}

// OnBufferedAmountLow registers a callback fired once BufferedAmount drops
// to or below level, letting a caller implement backpressure the way
// DCEP's send-buffer-full signal does.
func (s *Stream) OnBufferedAmountLow(level uint64, f func()) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.bufferedAmountLowLevel = level
	s.onBufferedAmountLow = f
}

// Close initiates an RFC 6525 outgoing stream reset for this stream. It
// does not wait for the peer's confirmation; OnReconfigStreams on the
// Association reports completion.
func (s *Stream) Close() error {
	s.lock.Lock()
	if s.state != streamStateOpen {
		s.lock.Unlock()
		return nil
	}
	s.state = streamStateResetting
	s.lock.Unlock()

	return s.association.resetStream(s.identifier)
}
