// Package transport delivers opcode-tagged packets between clients and
// the chat core. Reads and writes run on transport-owned goroutines;
// the core consumes completed inbound packets via the non-blocking
// PopPacket poll and hands off outbound packets via the fire-and-forget
// Send, so no core state is ever touched from a transport goroutine.
package transport

import (
	"github.com/openlore/chatserver/pkg/protocol"
)

// PacketConn is one client link as seen by the chat core.
type PacketConn interface {
	// PopPacket returns the next completed inbound packet, or nil if
	// none is pending. It never blocks.
	PopPacket() *protocol.Packet

	// Send queues an outbound packet. It never blocks; a link whose
	// outbound queue is full is closed as a slow consumer.
	Send(op protocol.Opcode, payload []byte)

	// IsClosed reports whether the link is no longer usable.
	IsClosed() bool

	// IsStale reports whether nothing has been received for longer
	// than the configured staleness window.
	IsStale() bool

	// Close tears the link down. Safe to call more than once.
	Close()

	// RemoteAddr is the client's address, host only, used as the key
	// for session-key verification.
	RemoteAddr() string
}

const (
	inboundQueueSize  = 128
	outboundQueueSize = 256
)

type outPacket struct {
	op      protocol.Opcode
	payload []byte
}
