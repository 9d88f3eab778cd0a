package tcp

import "github.com/soypat/rawtcp"

// Stream is the blocking byte-stream surface an application holds after
// Listener.Accept (spec §4.5, §6). It carries no state of its own beyond
// which Quad/Interface it refers to — all actual buffering lives on the
// Connection the dispatcher owns, reached back through owner's lock.
type Stream struct {
	quad  Quad
	owner *Interface
}

// Read blocks until at least one byte is available, the peer has closed
// the connection in an orderly way (returns 0, nil), or the connection
// is no longer tracked (ErrConnectionAborted). Never returns 0 bytes with
// a nil error except on peer close, matching spec §4.5.
func (s *Stream) Read(p []byte) (n int, err error) {
	ifc := s.owner
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	for {
		conn, ok := ifc.connections[s.quad]
		if !ok {
			return 0, rawtcp.ErrConnectionAborted
		}
		if conn.HasData() {
			return conn.Read(p)
		}
		if conn.ReadClosed() {
			return 0, nil
		}
		ifc.recvVar.Wait()
	}
}

// Write appends p to the connection's send buffer. Non-blocking: returns
// ErrWouldBlock if the unacked buffer is full, ErrConnectionAborted if the
// connection is no longer tracked (spec §4.5, §7).
func (s *Stream) Write(p []byte) (n int, err error) {
	ifc := s.owner
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	conn, ok := ifc.connections[s.quad]
	if !ok {
		return 0, rawtcp.ErrConnectionAborted
	}
	return conn.Write(p)
}

// Flush blocks until every byte previously handed to Write has been
// acknowledged by the peer. Spec §9 notes the original source instead
// returned ConnectionAborted immediately whenever unacked was non-empty;
// this module takes the spec's own suggested improvement and waits on
// recv_var instead, since the dispatcher already broadcasts it on every
// inbound segment for a tracked connection, ACKs included.
func (s *Stream) Flush() error {
	ifc := s.owner
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	for {
		conn, ok := ifc.connections[s.quad]
		if !ok {
			return rawtcp.ErrConnectionAborted
		}
		if conn.Drained() {
			return nil
		}
		ifc.recvVar.Wait()
	}
}

// Shutdown initiates an orderly close of the connection (spec §4.5, §6).
func (s *Stream) Shutdown() error {
	ifc := s.owner
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	conn, ok := ifc.connections[s.quad]
	if !ok {
		return rawtcp.ErrConnectionAborted
	}
	return conn.Close()
}
