// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sctp

import (
	"context"
	"time"

	"github.com/pion/logging"

	"github.com/sjhorn/sctp/internal/util"
)

// Config configures an Association. It is consumed once by Client/Server
// and not retained; callers needing to change behavior afterwards use the
// Association's own methods rather than mutating Config.
//
// This module never opens a socket itself: it is handed packets (e.g.
// decrypted DTLS application data) via HandlePacket and emits packets to
// send via SendPacket, or, for convenience, via a net.Conn through NetConn.
// Exactly one of NetConn or SendPacket must be set.
type Config struct {
	// NetConn, if set, is read from and written to directly: a read loop
	// calls NetConn.Read in a background goroutine and posts decoded
	// packets onto the command loop, and outbound packets are written
	// with NetConn.Write. Typically a DTLS connection's net.Conn.
	NetConn NetConn

	// SendPacket is called instead of NetConn.Write for every outbound
	// SCTP packet, letting a caller own transport themselves (e.g. to
	// multiplex several logical associations over one ICE candidate
	// pair). Ignored if NetConn is set.
	SendPacket func(ctx context.Context, raw []byte) error

	LoggerFactory logging.LoggerFactory

	// MaxReceiveBufferSize caps the local advertised receiver window
	// (a_rwnd). Defaults to defaultMaxReceiveBufferSize.
	MaxReceiveBufferSize uint32

	// MaxMessageSize caps a single outbound user message (before SCTP
	// fragmentation). Defaults to defaultMaxMessageSize, mirroring
	// RFC 8831 §6.6's local advertisement, not a wire-negotiated value.
	MaxMessageSize uint32

	// MTU bounds the size of an outbound SCTP packet, including the
	// common header; DATA chunks are fragmented to fit.
	MTU uint32

	// Name is used only in log scoping (NewLogger(Name)) and as the prefix
	// of an Association's log messages.
	Name string

	// RTOMax is accepted but not read by the association: the
	// retransmission timeout is always clamped to rtoMax (60 s).
	RTOMax time.Duration
}

// NetConn is the minimal surface this module needs from a lower-layer
// connection (net.Conn satisfies it); kept narrow so callers can hand in a
// DTLS connection, a test pipe, or anything else shaped like one.
type NetConn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

func (c *Config) maxReceiveBufferSize() uint32 {
	if c.MaxReceiveBufferSize == 0 {
		return defaultMaxReceiveBufferSize
	}
	return c.MaxReceiveBufferSize
}

func (c *Config) maxMessageSize() uint32 {
	if c.MaxMessageSize == 0 {
		return defaultMaxMessageSize
	}
	return c.MaxMessageSize
}

func (c *Config) mtu() uint32 {
	if c.MTU == 0 {
		return defaultMTU
	}
	return c.MTU
}

func (c *Config) loggerFactory() logging.LoggerFactory {
	if c.LoggerFactory == nil {
		return logging.NewDefaultLoggerFactory()
	}
	return c.LoggerFactory
}

func (c *Config) rtoMax() time.Duration {
	if c.RTOMax == 0 {
		return rtoMax
	}
	return c.RTOMax
}

// name returns Name, or a randomly suffixed fallback so that several
// unnamed associations in one process still get distinct log scopes.
func (c *Config) name() string {
	if c.Name == "" {
		return "sctp-" + util.MathRandAlpha(4)
	}
	return c.Name
}
