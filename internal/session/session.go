// Package session implements the per-connection state machine: it reads
// decoded commands off a resp.Reader, dispatches them either straight into
// the keyspace (EXEC mode) or onto a per-connection queue (QUEUE mode
// during a MULTI/EXEC transaction), and writes replies through a
// resp.Writer with a flush at each client-visible reply boundary.
package session

import (
	"tidekv/internal/keyspace"
	"tidekv/internal/logger"
	"tidekv/internal/resp"
	"tidekv/internal/serverinfo"
	"tidekv/internal/stats"
)

type mode int

const (
	modeExec mode = iota
	modeQueue
)

// Session is the mutable, per-connection execution context. A Session is
// used from exactly one goroutine — the one reading off its connection —
// so it needs no internal locking of its own.
type Session struct {
	r    *resp.Reader
	w    *resp.Writer
	ks   *keyspace.Keyspace
	info serverinfo.Info
	st   *stats.Stats

	mode   mode
	queued []resp.Command

	// connLabel is used only for debug logging (e.g. a remote address); it
	// carries no protocol meaning.
	connLabel string
}

// New builds a Session bound to r/w, backed by ks and reporting info
// through INFO. st may be nil, in which case command counts simply aren't
// recorded (useful for tests that only care about keyspace behavior).
func New(r *resp.Reader, w *resp.Writer, ks *keyspace.Keyspace, info serverinfo.Info, connLabel string, st *stats.Stats) *Session {
	return &Session{
		r:         r,
		w:         w,
		ks:        ks,
		info:      info,
		st:        st,
		mode:      modeExec,
		connLabel: connLabel,
	}
}

// Serve runs the read-dispatch-reply loop until the connection ends or a
// protocol/IO error occurs. The returned error is never nil: io.EOF
// signals a clean disconnect, anything else a fatal framing or write
// failure. Either way the caller is expected to close the connection.
func (s *Session) Serve() error {
	for {
		cmd, err := s.r.ReadCommand()
		if err != nil {
			return err
		}
		logger.Debugf("session %s: %s %v", s.connLabel, cmd.Name, cmd.Args)
		if err := s.dispatch(cmd); err != nil {
			return err
		}
	}
}

func (s *Session) dispatch(cmd resp.Command) error {
	if s.st != nil {
		s.st.CommandProcessed()
	}
	if s.mode == modeQueue {
		return s.dispatchQueue(cmd)
	}
	return s.dispatchExec(cmd)
}

func (s *Session) dispatchExec(cmd resp.Command) error {
	switch cmd.Name {
	case "MULTI":
		s.queued = s.queued[:0]
		s.mode = modeQueue
		if err := s.w.WriteSimpleString("OK"); err != nil {
			return err
		}
		return s.w.Flush()
	case "EXEC":
		if err := s.w.WriteError("ERR EXEC without MULTI"); err != nil {
			return err
		}
		return s.w.Flush()
	case "DISCARD":
		if err := s.w.WriteError("ERR DISCARD without MULTI"); err != nil {
			return err
		}
		return s.w.Flush()
	default:
		if err := s.execute(cmd); err != nil {
			return err
		}
		return s.w.Flush()
	}
}

func (s *Session) dispatchQueue(cmd resp.Command) error {
	switch cmd.Name {
	case "EXEC":
		return s.execTransaction()
	case "DISCARD":
		s.queued = s.queued[:0]
		s.mode = modeExec
		if err := s.w.WriteSimpleString("OK"); err != nil {
			return err
		}
		return s.w.Flush()
	case "MULTI":
		if err := s.w.WriteError("ERR MULTI calls can not be nested"); err != nil {
			return err
		}
		return s.w.Flush()
	default:
		// Queued commands never touch the keyspace; they are replayed in
		// enqueue order when EXEC arrives.
		s.queued = append(s.queued, cmd)
		if err := s.w.WriteSimpleString("QUEUED"); err != nil {
			return err
		}
		return s.w.Flush()
	}
}

// execTransaction replays the queue as one contiguous reply: an array
// header followed by each queued command's reply, then a single flush.
// Each queued command acquires the keyspace lock independently, in replay
// order — this gives sequential replay, not atomic isolation against
// concurrent writers from other connections (see the concurrency notes in
// the design doc for the upgrade path).
func (s *Session) execTransaction() error {
	k := len(s.queued)
	if err := s.w.WriteArrayHeader(k); err != nil {
		return err
	}
	for _, queued := range s.queued {
		if err := s.execute(queued); err != nil {
			return err
		}
	}
	s.queued = s.queued[:0]
	s.mode = modeExec
	return s.w.Flush()
}

// execute runs one non-transaction command directly against the keyspace
// and writes its reply, without flushing — the caller controls the flush
// boundary (a single command in EXEC mode, or the whole batch in EXEC
// replay).
func (s *Session) execute(cmd resp.Command) error {
	handler, ok := handlers[cmd.Name]
	if !ok {
		return s.w.WriteError("ERR unknown command")
	}
	return handler(s.ks, s.info, cmd.Args, s.w)
}
