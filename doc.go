// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package sctp implements an SCTP association engine suitable for carrying
// WebRTC data channels over a DTLS transport (RFC 4960, RFC 3758 partial
// reliability, RFC 6525 stream reconfiguration).
//
// The engine does not open sockets or speak DTLS itself. It is driven from
// the outside: decrypted datagrams are handed to (*Association).HandlePacket,
// and outbound packets leave through the Config.SendPacket callback (or, if
// Config.NetConn is set, are written to that connection directly). Everything
// in between — cookie-based setup, retransmission and congestion control,
// per-stream reassembly, partial reliability and FORWARD-TSN, RFC 6525
// stream reset/add — lives in this package.
package sctp
