// Package stats tracks the small set of atomic counters the server keeps:
// connections and commands processed.
package stats

import "sync/atomic"

// Stats holds lock-free counters safe for concurrent use from every
// connection's goroutine.
type Stats struct {
	connectionsAccepted int64
	activeConnections   int64
	commandsProcessed   int64
}

// New returns a zeroed Stats.
func New() *Stats {
	return &Stats{}
}

// ConnectionAccepted records a newly accepted connection.
func (s *Stats) ConnectionAccepted() {
	atomic.AddInt64(&s.connectionsAccepted, 1)
	atomic.AddInt64(&s.activeConnections, 1)
}

// ConnectionClosed records a connection ending.
func (s *Stats) ConnectionClosed() {
	atomic.AddInt64(&s.activeConnections, -1)
}

// CommandProcessed records one command read off the wire; the session
// counts it before dispatching, whatever the outcome.
func (s *Stats) CommandProcessed() {
	atomic.AddInt64(&s.commandsProcessed, 1)
}

// Snapshot is a point-in-time copy of the counters, safe to read without
// racing further updates.
type Snapshot struct {
	ConnectionsAccepted int64
	ActiveConnections   int64
	CommandsProcessed   int64
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		ConnectionsAccepted: atomic.LoadInt64(&s.connectionsAccepted),
		ActiveConnections:   atomic.LoadInt64(&s.activeConnections),
		CommandsProcessed:   atomic.LoadInt64(&s.commandsProcessed),
	}
}
