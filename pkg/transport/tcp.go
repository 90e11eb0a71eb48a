package transport

import (
	"bufio"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlore/chatserver/pkg/protocol"
)

// TCPConn is a framed TCP packet link.
type TCPConn struct {
	conn       net.Conn
	log        zerolog.Logger
	inbound    chan *protocol.Packet
	outbound   chan outPacket
	done       chan struct{}
	closed     atomic.Bool
	lastRecv   atomic.Int64 // unix milliseconds
	staleAfter time.Duration
	closeOnce  sync.Once
}

// NewTCPConn wraps an accepted connection and starts its reader and
// writer goroutines.
func NewTCPConn(conn net.Conn, staleAfter time.Duration, log zerolog.Logger) *TCPConn {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	c := &TCPConn{
		conn:       conn,
		log:        log.With().Str("remote", conn.RemoteAddr().String()).Logger(),
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

func (c *TCPConn) readLoop() {
	r := bufio.NewReader(c.conn)
	for {
		pkt, err := DecodeFrame(r)
		if err != nil {
			if err != io.EOF && !c.closed.Load() {
				c.log.Debug().Err(err).Msg("read failed")
			}
			c.Close()
			return
		}

		c.lastRecv.Store(time.Now().UnixMilli())

		select {
		case c.inbound <- pkt:
		case <-c.done:
			return
		default:
			// Inbound queue full: the core is not draining this
			// link, treat it like any other broken peer.
			c.log.Warn().Msg("inbound queue overflow, closing connection")
			c.Close()
			return
		}
	}
}

func (c *TCPConn) writeLoop() {
	for {
		select {
		case out := <-c.outbound:
			pkt := &protocol.Packet{Op: out.op, Payload: out.payload}
			if err := EncodeFrame(c.conn, pkt); err != nil {
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
func (c *TCPConn) PopPacket() *protocol.Packet {
	select {
	case pkt := <-c.inbound:
		return pkt
	default:
		return nil
	}
}

// Send queues an outbound packet, closing the link on overflow.
func (c *TCPConn) Send(op protocol.Opcode, payload []byte) {
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
func (c *TCPConn) IsClosed() bool {
	return c.closed.Load()
}

// IsStale reports whether the peer has gone quiet past the staleness
// window.
func (c *TCPConn) IsStale() bool {
	if c.staleAfter <= 0 {
		return false
	}
	last := time.UnixMilli(c.lastRecv.Load())
	return time.Since(last) > c.staleAfter
}

// Close tears the link down.
func (c *TCPConn) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.conn.Close()
	})
}

// RemoteAddr returns the peer host without the port.
func (c *TCPConn) RemoteAddr() string {
	host, _, err := net.SplitHostPort(c.conn.RemoteAddr().String())
	if err != nil {
		return c.conn.RemoteAddr().String()
	}
	return host
}

// TCPListener accepts framed TCP links and hands them to the core via
// a channel drained on the core's own loop.
type TCPListener struct {
	ln         net.Listener
	conns      chan<- PacketConn
	log        zerolog.Logger
	staleAfter time.Duration
	shutdown   chan struct{}
	wg         sync.WaitGroup
}

// ListenTCP starts accepting on addr.
func ListenTCP(addr string, staleAfter time.Duration, conns chan<- PacketConn, log zerolog.Logger) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	l := &TCPListener{
		ln:         ln,
		conns:      conns,
		log:        log,
		staleAfter: staleAfter,
		shutdown:   make(chan struct{}),
	}

	l.wg.Add(1)
	go l.acceptLoop()

	return l, nil
}

func (l *TCPListener) acceptLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.shutdown:
				return
			default:
				l.log.Warn().Err(err).Msg("accept failed")
				continue
			}
		}

		l.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("new connection")
		l.conns <- NewTCPConn(conn, l.staleAfter, l.log)
	}
}

// Addr returns the bound listen address.
func (l *TCPListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting. Existing links stay up.
func (l *TCPListener) Close() {
	close(l.shutdown)
	l.ln.Close()
	l.wg.Wait()
}
