package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/openlore/chatserver/pkg/transport"
)

// Server wires the session manager, channel registry and transports
// together and drives the tick loop.
type Server struct {
	config   TOMLConfig
	log      zerolog.Logger
	metrics  *Metrics
	registry *ChannelRegistry
	manager  *SessionManager

	conns       chan transport.PacketConn
	tcpListener *transport.TCPListener
	wsServer    *http.Server
	httpServer  *http.Server

	done     chan struct{}
	stopped  chan struct{}
	stopping bool
}

// NewServer builds a server from config and a storage backend.
func NewServer(config TOMLConfig, store Storage, log zerolog.Logger) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := NewMetrics(reg)

	registry := NewChannelRegistry(store, metrics, log)
	manager := NewSessionManager(config, store, registry, metrics, log)

	srv := &Server{
		config:   config,
		log:      log,
		metrics:  metrics,
		registry: registry,
		manager:  manager,
		conns:    make(chan transport.PacketConn, 64),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	wsMux := http.NewServeMux()
	wsMux.Handle("/ws", transport.WSHandler(srv.staleAfter(), srv.conns, log))
	srv.wsServer = &http.Server{
		Addr:    config.Server.WSAddr,
		Handler: wsMux,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv.httpServer = &http.Server{
		Addr:    config.Server.MetricsAddr,
		Handler: mux,
	}

	return srv
}

func (s *Server) staleAfter() time.Duration {
	return time.Duration(s.config.Server.StaleAfterSeconds) * time.Second
}

// Start opens the listeners and launches the tick loop. It returns
// once the server is accepting connections.
func (s *Server) Start() error {
	listener, err := transport.ListenTCP(s.config.Server.TCPAddr, s.staleAfter(), s.conns, s.log)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.TCPAddr, err)
	}
	s.tcpListener = listener

	s.log.Info().Str("addr", listener.Addr().String()).Msg("chat listener started")

	go func() {
		s.log.Info().Str("addr", s.config.Server.WSAddr).Msg("websocket listener started")
		if err := s.wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("websocket listener failed")
		}
	}()

	go func() {
		s.log.Info().Str("addr", s.config.Server.MetricsAddr).Msg("metrics listener started")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("metrics listener failed")
		}
	}()

	go s.run()

	return nil
}

// run is the driving loop. All session and channel mutation happens
// here.
func (s *Server) run() {
	defer close(s.stopped)

	tick := time.NewTicker(time.Duration(s.config.Server.TickIntervalMS) * time.Millisecond)
	defer tick.Stop()

	keepalive := time.NewTicker(time.Duration(s.config.Server.KeepaliveIntervalSeconds) * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-s.done:
			s.manager.CloseAll()
			return

		case conn := <-s.conns:
			s.manager.OnNewConnection(conn)

		case <-keepalive.C:
			s.manager.BroadcastKeepalive()

		case <-tick.C:
			// Drain any connections that arrived since the last tick
			// before processing, so a client that connected and
			// immediately sent a login is seen this pass.
			for {
				select {
				case conn := <-s.conns:
					s.manager.OnNewConnection(conn)
					continue
				default:
				}
				break
			}

			s.manager.Tick()
		}
	}
}

// Stop shuts the server down: listeners first, then the tick loop,
// which closes every session on its way out.
func (s *Server) Stop() {
	if s.stopping {
		return
	}
	s.stopping = true

	if s.tcpListener != nil {
		s.tcpListener.Close()
	}
	s.wsServer.Close()
	s.httpServer.Close()

	close(s.done)
	<-s.stopped

	s.log.Info().Msg("server stopped")
}
