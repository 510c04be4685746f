// Package server accepts TCP connections and hands each one to its own
// session.Session, one goroutine per connection.
package server

import (
	"net"
	"sync/atomic"

	"tidekv/internal/keyspace"
	"tidekv/internal/logger"
	"tidekv/internal/resp"
	"tidekv/internal/serverinfo"
	"tidekv/internal/session"
	"tidekv/internal/stats"
)

// Config holds the listener's startup parameters.
type Config struct {
	// Addr is the TCP address to listen on, e.g. ":6380".
	Addr string
	// ReplicaOf, when non-empty, reports this server as a replica in the
	// INFO replication section. No replication stream is established.
	ReplicaOf string
	// ReadBuffer sizes the per-connection bufio.Reader backing the RESP
	// decoder. Zero selects resp.NewReader's default.
	ReadBuffer int
}

// Server owns the listener and the shared keyspace every session reads
// from and writes to.
type Server struct {
	cfg  Config
	ln   net.Listener
	addr string
	ks   *keyspace.Keyspace
	info serverinfo.Info
	st   *stats.Stats

	activeConns int64
}

// New builds a Server. The keyspace is created empty; nothing is listening
// until Start is called.
func New(cfg Config) *Server {
	return &Server{
		cfg:  cfg,
		ks:   keyspace.New(),
		info: serverinfo.New(cfg.Addr, cfg.ReplicaOf),
		st:   stats.New(),
	}
}

// Start binds the listener and begins accepting connections on a
// background goroutine. It returns once the listener is bound, not once
// the server stops serving.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		logger.Errorf("failed to listen on %s: %v", s.cfg.Addr, err)
		return err
	}
	s.ln = ln
	s.addr = ln.Addr().String()
	logger.Infof("server listening on %s", s.addr)
	go s.serve()
	return nil
}

// Addr returns the address the listener actually bound to, useful when
// Config.Addr uses port 0.
func (s *Server) Addr() string { return s.addr }

// Stats exposes the connection/command counters for callers that report on
// a running server (logging, an admin hook, the load generator's own side).
func (s *Server) Stats() *stats.Stats { return s.st }

// Close stops accepting new connections and releases the keyspace's
// background janitor. In-flight connections are not forcibly closed; they
// end naturally when their client disconnects.
func (s *Server) Close() error {
	s.ks.Close()
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

func (s *Server) serve() {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("panic in accept loop: %v", r)
		}
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			logger.Debugf("accept loop stopping: %v", err)
			return
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(true)
			tcpConn.SetKeepAlive(true)
		}

		s.st.ConnectionAccepted()
		atomic.AddInt64(&s.activeConns, 1)
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("panic handling connection %s: %v", remote, r)
		}
		atomic.AddInt64(&s.activeConns, -1)
		s.st.ConnectionClosed()
		conn.Close()
		logger.Debugf("connection closed: %s", remote)
	}()

	logger.Debugf("connection accepted: %s", remote)

	var r *resp.Reader
	if s.cfg.ReadBuffer > 0 {
		r = resp.NewReaderSize(conn, s.cfg.ReadBuffer)
	} else {
		r = resp.NewReader(conn)
	}
	w := resp.NewWriter(conn)

	sess := session.New(r, w, s.ks, s.info, remote, s.st)
	if err := sess.Serve(); err != nil {
		logger.Debugf("session %s ended: %v", remote, err)
		return
	}
}
