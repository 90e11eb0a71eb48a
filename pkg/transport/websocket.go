package transport

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/openlore/chatserver/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  MaxFrameSize,
	WriteBufferSize: MaxFrameSize,
	CheckOrigin: func(r *http.Request) bool {
		// Game clients connect from launchers and wrappers, not
		// browsers with a meaningful Origin.
		return true
	},
}

// WSConn is a WebSocket packet link. Each binary WebSocket message is
// one packet: [Opcode (1 byte)][Payload].
type WSConn struct {
	ws         *websocket.Conn
	log        zerolog.Logger
	inbound    chan *protocol.Packet
	outbound   chan outPacket
	done       chan struct{}
	closed     atomic.Bool
	lastRecv   atomic.Int64
	staleAfter time.Duration
	closeOnce  sync.Once
}

// NewWSConn wraps an upgraded WebSocket and starts its goroutines.
func NewWSConn(ws *websocket.Conn, staleAfter time.Duration, log zerolog.Logger) *WSConn {
	c := &WSConn{
		ws:         ws,
		log:        log.With().Str("remote", ws.RemoteAddr().String()).Logger(),
		inbound:    make(chan *protocol.Packet, inboundQueueSize),
		outbound:   make(chan outPacket, outboundQueueSize),
		done:       make(chan struct{}),
		staleAfter: staleAfter,
	}
	c.lastRecv.Store(time.Now().UnixMilli())

	go c.readLoop()
	go c.writeLoop()

	return c
}

func (c *WSConn) readLoop() {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.log.Debug().Err(err).Msg("read failed")
			}
			c.Close()
			return
		}

		if messageType != websocket.BinaryMessage || len(data) == 0 {
			c.log.Warn().Msg("non-binary or empty message, closing connection")
			c.Close()
			return
		}

		c.lastRecv.Store(time.Now().UnixMilli())

		pkt := &protocol.Packet{Op: protocol.Opcode(data[0]), Payload: data[1:]}
		select {
		case c.inbound <- pkt:
		case <-c.done:
			return
		default:
			c.log.Warn().Msg("inbound queue overflow, closing connection")
			c.Close()
			return
		}
	}
}

func (c *WSConn) writeLoop() {
	for {
		select {
		case out := <-c.outbound:
			data := make([]byte, 1+len(out.payload))
			data[0] = byte(out.op)
			copy(data[1:], out.payload)
			if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				if !c.closed.Load() {
					c.log.Debug().Err(err).Msg("write failed")
				}
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// PopPacket returns the next inbound packet without blocking.
func (c *WSConn) PopPacket() *protocol.Packet {
	select {
	case pkt := <-c.inbound:
		return pkt
	default:
		return nil
	}
}

// Send queues an outbound packet, closing the link on overflow.
func (c *WSConn) Send(op protocol.Opcode, payload []byte) {
	if c.closed.Load() {
		return
	}
	select {
	case c.outbound <- outPacket{op: op, payload: payload}:
	default:
		c.log.Warn().Msg("outbound queue overflow, closing connection")
		c.Close()
	}
}

// IsClosed reports whether the link has been torn down.
func (c *WSConn) IsClosed() bool {
	return c.closed.Load()
}

// IsStale reports whether the peer has gone quiet past the staleness
// window.
func (c *WSConn) IsStale() bool {
	if c.staleAfter <= 0 {
		return false
	}
	last := time.UnixMilli(c.lastRecv.Load())
	return time.Since(last) > c.staleAfter
}

// Close tears the link down.
func (c *WSConn) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.ws.Close()
	})
}

// RemoteAddr returns the peer host without the port.
func (c *WSConn) RemoteAddr() string {
	host, _, err := net.SplitHostPort(c.ws.RemoteAddr().String())
	if err != nil {
		return c.ws.RemoteAddr().String()
	}
	return host
}

// WSHandler returns an http.Handler that upgrades requests and feeds
// the resulting links into conns.
func WSHandler(staleAfter time.Duration, conns chan<- PacketConn, log zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		log.Info().Str("remote", ws.RemoteAddr().String()).Msg("new websocket connection")
		conns <- NewWSConn(ws, staleAfter, log)
	})
}
