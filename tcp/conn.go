// Package tcp implements a narrow, RFC 9293-flavored TCP core: passive
// open only (no active OPEN, no simultaneous-open), ESTABLISHED data
// transfer with flow control but no congestion control, and an
// active-local-close path through FIN-WAIT-1/2 into TIME-WAIT. No TCP
// options beyond the fixed 20-byte header are produced or consumed, no
// out-of-order segment reassembly is attempted, and the CLOSING/LAST-ACK
// branches of teardown (a peer-initiated close while data is still being
// sent) are intentionally unimplemented — see Connection's doc comment.
package tcp

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/soypat/rawtcp"
)

// SendSequenceSpace tracks the local endpoint's view of its own send
// stream (RFC 9293 §3.3.1), restricted to the fields this core needs.
type SendSequenceSpace struct {
	ISS Value // initial send sequence number
	UNA Value // oldest unacknowledged sequence number
	NXT Value // next sequence number to assign
	WND Size  // peer's last-advertised receive window
}

// RecvSequenceSpace tracks the local endpoint's view of the peer's send
// stream.
type RecvSequenceSpace struct {
	NXT Value // next sequence number expected from the peer
	WND Size  // our advertised receive window (fixed at defaultRecvWindow)
}

// Emission is a segment a Connection wants sent, produced by OnSegment or
// Tick. The caller (Interface) is responsible for serializing it onto the
// wire using the Connection's Quad for addressing — Connection itself
// never touches frame bytes or IP addresses, only sequence-space state.
type Emission struct {
	Seg     Segment
	Payload []byte
}

// Connection is the per-4-tuple TCP state machine: sequence-number
// bookkeeping, send/receive buffers, and the retransmission timer. It
// holds no lock of its own and is not safe for concurrent use — Interface
// serializes all access to it behind its single mutex, as required by the
// concurrency model (every method here assumes the caller already holds
// that lock).
//
// Passive-close handling is intentionally incomplete: a FIN arriving while
// in StateEstablished (the peer closing before the local side does) has no
// defined transition in this core, so processFin silently ignores it rather
// than guess at CLOSE-WAIT/LAST-ACK semantics that were never implemented.
// This is an accepted limitation of this minimal core, not a bug to paper
// over with an invented state.
type Connection struct {
	Quad  Quad
	State State

	send SendSequenceSpace
	recv RecvSequenceSpace

	unacked  sendBuffer
	incoming recvBuffer

	closed   bool
	closedAt *Value

	// promoted marks that this connection has already been pushed onto its
	// listener's accept backlog, so Interface's tick loop doesn't push it twice.
	promoted bool

	timer retransTimer

	Log *slog.Logger

	stats        Stats
	lastActivity time.Time
}

// Stats are simple diagnostic counters, not part of the wire protocol.
type Stats struct {
	SegmentsSent     uint64
	SegmentsReceived uint64
	SegmentsDropped  uint64
	Retransmissions  uint64
}

// NewPassive creates a Connection in StateSynRcvd in response to an
// inbound SYN, per spec §4.3 "Passive open". iss is the locally chosen
// initial sequence number (see internal.NextISS for the randomized
// construction this module uses in production). The SYN+ACK reply is
// returned as the single Emission the caller must send.
func NewPassive(quad Quad, synSeg Segment, iss Value, now time.Time) (*Connection, Emission) {
	c := &Connection{
		Quad:  quad,
		State: StateSynRcvd,
		send: SendSequenceSpace{
			ISS: iss,
			UNA: iss,
			NXT: iss,
			WND: synSeg.WND,
		},
		recv: RecvSequenceSpace{
			NXT: Add(synSeg.SEQ, 1),
			WND: defaultRecvWindow,
		},
		unacked:      newSendBuffer(),
		incoming:     newRecvBuffer(defaultRecvWindow * 4),
		timer:        newRetransTimer(),
		lastActivity: now,
	}
	em := c.emit(c.send.ISS, FlagSYN|FlagACK, nil, now)
	return c, em
}

// emit builds an Emission starting at seq with the given flags and
// payload, records it in the retransmission timer, and advances send.NXT
// to cover the sequence range it occupies.
func (c *Connection) emit(seq Value, flags Flags, payload []byte, now time.Time) Emission {
	c.timer.Record(seq, now)
	seg := Segment{
		SEQ:     seq,
		ACK:     c.recv.NXT,
		WND:     c.recv.WND,
		DATALEN: Size(len(payload)),
		Flags:   flags,
	}
	end := Add(seq, seg.LEN())
	if LessThan(c.send.NXT, end) {
		c.send.NXT = end
	}
	c.stats.SegmentsSent++
	c.traceSeg("tx", seg)
	return Emission{Seg: seg, Payload: payload}
}

// Acceptable implements the segment acceptability test of RFC 793 §3.3,
// reproduced verbatim from spec §4.3.
func (c *Connection) Acceptable(seq Value, slen Size) bool {
	wnd := c.recv.WND
	wend := Add(c.recv.NXT, wnd)
	switch {
	case slen == 0 && wnd == 0:
		return seq == c.recv.NXT
	case slen == 0 && wnd > 0:
		return InWindow(c.recv.NXT-1, seq, wend)
	case slen > 0 && wnd == 0:
		return false
	default: // slen > 0 && wnd > 0
		last := Add(seq, slen) - 1
		return InWindow(c.recv.NXT-1, seq, wend) || InWindow(c.recv.NXT-1, last, wend)
	}
}

// OnSegment processes one inbound, already-addressed-to-us segment,
// mutating connection state and returning any segments that must be sent
// in response. now is used for RTT sampling and retransmission-timer
// bookkeeping.
func (c *Connection) OnSegment(seg Segment, payload []byte, now time.Time) []Emission {
	c.lastActivity = now
	c.stats.SegmentsReceived++
	c.traceSeg("rx", seg)
	slen := seg.DATALEN
	if seg.Flags.HasAny(FlagSYN) {
		slen++
	}
	if seg.Flags.HasAny(FlagFIN) {
		slen++
	}
	if !c.Acceptable(seg.SEQ, slen) {
		c.stats.SegmentsDropped++
		return []Emission{c.emit(c.send.NXT, FlagACK, nil, now)}
	}

	// Every accepted segment carries the peer's current receive window;
	// absorb it so flow control tracks reality instead of staying pinned
	// to whatever was advertised at handshake time (spec §8 scenario 5:
	// a peer that closes then reopens its window must unblock sendNew).
	c.send.WND = seg.WND

	var out []Emission
	out = append(out, c.processAck(seg, now)...)

	switch c.State {
	case StateEstablished, StateFinWait1, StateFinWait2:
		if seg.DATALEN > 0 {
			out = append(out, c.receiveData(seg, payload, now)...)
		}
		if seg.Flags.HasAny(FlagFIN) {
			out = append(out, c.processFin(seg, now)...)
		}
	}
	return out
}

// processAck implements spec §4.3 "ACK processing".
func (c *Connection) processAck(seg Segment, now time.Time) []Emission {
	if !seg.Flags.HasAny(FlagACK) {
		if c.State == StateSynRcvd && seg.Flags.HasAny(FlagSYN) {
			// Peer retransmitted its SYN before seeing our SYN+ACK.
			c.recv.NXT = Add(seg.SEQ, 1)
		}
		return nil
	}
	ackn := seg.ACK

	if c.State == StateSynRcvd {
		if InWindow(c.send.UNA-1, ackn, c.send.NXT+1) {
			prev := c.State
			c.State = StateEstablished
			c.debugState(prev)
		}
		return nil
	}

	if c.State == StateEstablished || c.State == StateFinWait1 || c.State == StateFinWait2 {
		if InWindow(c.send.UNA, ackn, c.send.NXT+1) {
			drain := int(ackn - c.dataUNA())
			if drain > c.unacked.Len() {
				drain = c.unacked.Len()
			}
			if drain > 0 {
				c.unacked.Drain(drain)
			}
			c.timer.AckUpTo(c.send.UNA, ackn, now)
			c.send.UNA = ackn
		}
		if c.State == StateFinWait1 && c.closedAt != nil && c.send.UNA == *c.closedAt+1 {
			c.State = StateFinWait2
			c.debugState(StateFinWait1)
		}
	}
	return nil
}

// receiveData implements spec §4.3 "Data reception". The skip/advance
// arithmetic mirrors the spec's literal description; this core performs
// no out-of-order reassembly, so a segment overlapping already-delivered
// bytes is handled as described there rather than precisely re-derived,
// consistent with the Non-goals list.
func (c *Connection) receiveData(seg Segment, data []byte, now time.Time) []Emission {
	skip := int(c.recv.NXT - seg.SEQ)
	if skip < 0 || skip > len(data) {
		skip = 0
	}
	c.incoming.Append(data[skip:])
	c.recv.NXT = Add(seg.SEQ, Size(len(data)))
	return []Emission{c.emit(c.send.NXT, FlagACK, nil, now)}
}

// processFin implements spec §4.3 "FIN processing": only handled in
// FinWait2. A FIN arriving in any other state is not acted on here — in
// particular a passive close initiated by the peer while StateEstablished
// has no implemented transition (see the package and Connection doc
// comments).
func (c *Connection) processFin(seg Segment, now time.Time) []Emission {
	if c.State != StateFinWait2 {
		return nil
	}
	c.recv.NXT = Add(c.recv.NXT, 1)
	c.State = StateTimeWait
	c.debugState(StateFinWait2)
	return []Emission{c.emit(c.send.NXT, FlagACK, nil, now)}
}

// dataUNA returns the oldest sequence number that corresponds to an actual
// byte sitting in the unacked ring buffer. Immediately after the handshake
// completes, send.UNA still equals send.ISS — the virtual SYN octet it
// covers was never given a slot in the ring — so callers that need to walk
// real application bytes (draining on ACK, retransmitting, sending new
// data) must skip past it here rather than using send.UNA directly.
func (c *Connection) dataUNA() Value {
	if c.send.UNA == c.send.ISS {
		return c.send.UNA + 1
	}
	return c.send.UNA
}

// Close implements spec §4.3 "close()": the application-initiated
// shutdown. It does not itself emit the FIN — the next Tick does, once
// the send window permits and there's no more buffered data to send.
func (c *Connection) Close() error {
	switch {
	case c.State.CanClose():
		prev := c.State
		c.State = StateFinWait1
		c.closed = true
		c.debugState(prev)
		return nil
	case c.State == StateFinWait1 || c.State == StateFinWait2:
		return nil
	default:
		return rawtcp.ErrNotConnected
	}
}

// Tick implements spec §4.3's periodic tick handler: on idle, decide
// whether to retransmit the oldest outstanding segment or send new data
// (and, if the application has closed and there is nothing left to send,
// attach the FIN).
func (c *Connection) Tick(now time.Time) []Emission {
	if c.State == StateFinWait2 || c.State == StateTimeWait {
		return nil
	}

	una := c.dataUNA()
	nunacked := int(c.send.NXT - una)
	if nunacked < 0 {
		nunacked = 0
	}
	nunsent := c.unacked.Len() - nunacked
	if nunsent < 0 {
		nunsent = 0
	}

	waited, haveOutstanding := c.timer.OldestSince(una, now)
	if haveOutstanding && c.timer.ShouldRetransmit(waited) {
		return c.retransmit(now)
	}
	return c.sendNew(nunsent, nunacked, now)
}

func (c *Connection) retransmit(now time.Time) []Emission {
	resend := c.unacked.Len()
	if int(c.send.WND) < resend {
		resend = int(c.send.WND)
	}
	flags := FlagACK
	if resend < int(c.send.WND) && c.closed && c.closedAt == nil {
		flags |= FlagFIN
		fin := c.dataUNA() + Value(c.unacked.Len())
		c.closedAt = &fin
	}
	buf := make([]byte, resend)
	n, _ := c.unacked.Peek(buf)
	c.stats.Retransmissions++
	return []Emission{c.emit(c.dataUNA(), flags, buf[:n], now)}
}

func (c *Connection) sendNew(nunsent, nunacked int, now time.Time) []Emission {
	if nunsent == 0 && c.closedAt != nil {
		return nil
	}
	allowed := int(c.send.WND) - nunacked
	if allowed <= 0 {
		return nil
	}
	send := nunsent
	if send > allowed {
		send = allowed
	}
	flags := FlagACK
	if send < allowed && c.closed && c.closedAt == nil {
		flags |= FlagFIN
		fin := c.dataUNA() + Value(c.unacked.Len())
		c.closedAt = &fin
	}
	if send == 0 && !flags.HasAny(FlagFIN) {
		return nil
	}
	buf := make([]byte, send)
	if send > 0 {
		n, _ := c.unacked.PeekAt(buf, nunacked)
		buf = buf[:n]
	}
	return []Emission{c.emit(c.send.NXT, flags, buf, now)}
}

// Write appends p to the unacked buffer for later transmission. It never
// blocks; spec §4.5 Stream.write is the blocking-vs-WouldBlock surface
// built on top of this.
func (c *Connection) Write(p []byte) (n int, err error) {
	if c.unacked.Len() >= maxUnacked {
		return 0, rawtcp.ErrWouldBlock
	}
	return c.unacked.Write(p)
}

// Read copies buffered, in-order received bytes into p. Returns 0, nil
// once the connection has reached TimeWait and incoming is empty
// (orderly peer close, spec §4.5 Stream.read).
func (c *Connection) Read(p []byte) (n int, err error) {
	if c.incoming.Len() == 0 {
		if c.State == StateTimeWait {
			return 0, nil
		}
		return 0, nil
	}
	return c.incoming.Read(p)
}

// HasData reports whether a Read would return any bytes right now.
func (c *Connection) HasData() bool { return c.incoming.Len() > 0 }

// Drained reports whether every byte handed to Write has been
// acknowledged by the peer (spec §4.5 Stream.flush's success condition).
func (c *Connection) Drained() bool { return c.unacked.Len() == 0 }

// ReadClosed reports whether Read will only ever return 0, nil from here on.
func (c *Connection) ReadClosed() bool { return c.State == StateTimeWait && c.incoming.Len() == 0 }

// Stats returns a snapshot of this connection's diagnostic counters.
func (c *Connection) Stats() Stats { return c.stats }

// IdleSince reports how long it has been since this connection last
// processed an inbound segment, for Interface.Prune.
func (c *Connection) IdleSince(now time.Time) time.Duration { return now.Sub(c.lastActivity) }

func (c *Connection) String() string {
	return fmt.Sprintf("%s %s snd.una=%d snd.nxt=%d rcv.nxt=%d unacked=%d incoming=%d",
		c.Quad, c.State, c.send.UNA, c.send.NXT, c.recv.NXT, c.unacked.Len(), c.incoming.Len())
}
