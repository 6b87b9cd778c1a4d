// Package server is the broker's Connection Acceptor: it owns the TCP
// listener, spawns one goroutine per accepted connection, and drives each
// connection's read-dispatch-write loop until the client disconnects or a
// frame fails to decode.
package server

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/arikaya/kafkabroker/internal/logging"
	"github.com/arikaya/kafkabroker/internal/protocol"
)

// Config holds the Connection Acceptor's startup parameters.
type Config struct {
	ListenAddr string
	Dispatcher *protocol.Dispatcher
	Logger     logging.Logger
}

// Server accepts connections on a listener and serves each with the
// configured Dispatcher until Stop is called.
type Server struct {
	cfg      Config
	listener net.Listener

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New constructs a Server from cfg. It does not bind a listener yet; call
// Start for that.
func New(cfg Config) *Server {
	return &Server{cfg: cfg}
}

// Start binds the listener and begins accepting connections in background
// goroutines. It returns once the listener is bound, or an error if the
// bind itself fails (the caller should treat that as fatal, per this
// broker's exit-code convention).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.cfg.Logger.Info().Str("addr", s.cfg.ListenAddr).Msg("listening")

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener, which unblocks acceptLoop, then waits for every
// in-flight connection goroutine spawned before the close to return.
func (s *Server) Stop() {
	s.closeOnce.Do(func() {
		if s.listener != nil {
			s.listener.Close()
		}
	})
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.cfg.Logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	s.cfg.Dispatcher.ConnectionOpened()
	defer s.cfg.Dispatcher.ConnectionClosed()

	for {
		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.cfg.Logger.Debug().Err(err).Msg("connection closed")
			}
			return
		}

		resp, fatal := s.cfg.Dispatcher.Handle(frame)
		if fatal {
			s.cfg.Logger.Debug().Msg("frame failed to decode; closing connection")
			return
		}
		if _, err := conn.Write(resp); err != nil {
			s.cfg.Logger.Debug().Err(err).Msg("write failed")
			return
		}
	}
}
