package tcp

// State enumerates the states a connection progresses through during its
// lifetime. This is a deliberately narrowed subset of RFC 9293's full state
// machine: only the passive-open, data-transfer, and active-local-close
// path is implemented (no SynSent/active OPEN, no simultaneous-open, no
// CloseWait/LastAck/Closing — see the package doc for the full rationale).
type State uint8

const (
	// StateClosed represents no connection state at all. Not a reachable
	// state of a tracked Connection, only used as its zero value.
	StateClosed State = iota
	// StateListen represents a bound port waiting for a SYN from any peer.
	StateListen
	// StateSynRcvd represents waiting for the final ACK of a passive-open
	// three-way handshake, having sent SYN+ACK in response to a peer's SYN.
	StateSynRcvd
	// StateEstablished is the normal data-transfer state.
	StateEstablished
	// StateFinWait1 represents waiting for an ACK of the local FIN, or a
	// FIN from the peer.
	StateFinWait1
	// StateFinWait2 represents having received an ACK of the local FIN;
	// now waiting for the peer's FIN.
	StateFinWait2
	// StateTimeWait represents having received and acknowledged the
	// peer's FIN. Terminal for read/write purposes.
	StateTimeWait
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateListen:
		return "LISTEN"
	case StateSynRcvd:
		return "SYN-RECEIVED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN-WAIT-1"
	case StateFinWait2:
		return "FIN-WAIT-2"
	case StateTimeWait:
		return "TIME-WAIT"
	default:
		return "INVALID"
	}
}

// IsOpen reports whether the connection can still send or receive data.
func (s State) IsOpen() bool {
	return s == StateSynRcvd || s == StateEstablished || s == StateFinWait1 || s == StateFinWait2
}

// CanClose reports whether close() moves a connection in this state to
// FinWait1, which is true only for SynRcvd and Estab (spec §4.3 close()).
// Connection.Close handles the other states itself: FinWait1/2 are a
// no-op and every other state is ErrNotConnected.
func (s State) CanClose() bool {
	return s == StateSynRcvd || s == StateEstablished
}
