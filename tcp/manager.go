package tcp

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/soypat/rawtcp"
	"github.com/soypat/rawtcp/internal"
	"github.com/soypat/rawtcp/ipv4"
)

// maxFrame is the largest IPv4 datagram this module will ever build or
// accept (spec §6: "Frames exceeding 1500 bytes are impossible to send").
const maxFrame = 1500

// pollTimeout is how long the ingress loop waits for a frame before
// running its tick pass over every connection (spec §5 "Poll the
// interface descriptor with a short timeout (e.g., 10 ms)").
const pollTimeout = 10 * time.Millisecond

// ErrTimeout is returned by NetDevice.RecvFrame when no frame arrived
// within the requested timeout; it is not a protocol error and is never
// surfaced past the ingress loop.
var ErrTimeout = errors.New("tcp: recv timeout")

// NetDevice is the opaque bidirectional raw-IPv4-frame channel spec §6
// calls "the underlying medium". iface.Tap implements it against a Linux
// TUN device; tests implement it against an in-memory pipe.
type NetDevice interface {
	// RecvFrame blocks for up to timeout waiting for one frame, copying it
	// into buf. It returns ErrTimeout (n==0) if none arrived in time.
	RecvFrame(buf []byte, timeout time.Duration) (n int, err error)
	// SendFrame writes one complete frame. Implementations must not block
	// indefinitely; the dispatcher holds its lock across this call.
	SendFrame(buf []byte) error
}

// Interface is the dispatcher spec §6 names "Interface": it owns the
// ingress loop, the connection table, and the per-port accept backlogs,
// and is the sole mutator of all three. Every exported method here (and
// every Listener/Stream method that touches shared state) takes mu
// before acting, per spec §5's "single big lock" rule; mu is never held
// across a SendFrame call except the dispatcher's own, which must be
// non-blocking on the underlying device.
type Interface struct {
	mu         sync.Mutex
	pendingVar *sync.Cond
	recvVar    *sync.Cond

	dev       NetDevice
	localAddr [4]byte
	secret    internal.ISNSecret

	connections map[Quad]*Connection
	listeners   map[uint16]*Listener

	ipID uint16

	terminate bool
	log       *slog.Logger
}

// New spawns the dispatcher goroutine for dev, bound to localAddr
// (spec §6 "Interface::new() → Interface"). log may be nil.
func New(dev NetDevice, localAddr [4]byte, log *slog.Logger) *Interface {
	ifc := &Interface{
		dev:         dev,
		localAddr:   localAddr,
		connections: make(map[Quad]*Connection),
		listeners:   make(map[uint16]*Listener),
		log:         log,
	}
	ifc.pendingVar = sync.NewCond(&ifc.mu)
	ifc.recvVar = sync.NewCond(&ifc.mu)
	rand.Read(ifc.secret[:])
	var seed [2]byte
	rand.Read(seed[:])
	ifc.ipID = binary.BigEndian.Uint16(seed[:]) | 1 // xorshift never recovers from a zero seed
	go ifc.run()
	return ifc
}

// Bind reserves port for incoming connections (spec §6 "Interface::bind").
func (ifc *Interface) Bind(port uint16) (*Listener, error) {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	if _, ok := ifc.listeners[port]; ok {
		return nil, rawtcp.ErrAddrInUse
	}
	l := &Listener{Port: port, owner: ifc}
	ifc.listeners[port] = l
	return l, nil
}

// Close sets the terminate flag. Per spec §5's documented limitation,
// the dispatcher does not currently observe this flag and will not exit
// its loop — this is a known, accepted gap (see spec §9), not a bug to
// silently work around.
func (ifc *Interface) Close() {
	ifc.mu.Lock()
	ifc.terminate = true
	ifc.mu.Unlock()
}

// run is the ingress/tick dispatch loop (spec §5 "Ingress loop").
func (ifc *Interface) run() {
	buf := make([]byte, maxFrame)
	for {
		n, err := ifc.dev.RecvFrame(buf, pollTimeout)
		switch {
		case err == nil:
			ifc.mu.Lock()
			ifc.onFrame(buf[:n], time.Now())
			ifc.mu.Unlock()
		case errors.Is(err, ErrTimeout):
			ifc.mu.Lock()
			ifc.onTick(time.Now())
			ifc.mu.Unlock()
		default:
			internal.LogAttrs(ifc.log, slog.LevelError, "recv frame", slog.String("err", err.Error()))
		}
	}
}

// onFrame parses one ingress IPv4+TCP frame and dispatches it. Called with mu held.
func (ifc *Interface) onFrame(raw []byte, now time.Time) {
	ipf, err := ipv4.NewFrame(raw)
	if err != nil {
		return
	}
	var v rawtcp.Validator
	ipf.ValidateExceptCRC(&v)
	if v.Err() != nil {
		internal.LogAttrs(ifc.log, internal.LevelTrace, "drop: bad ip", slog.String("err", v.Err().Error()))
		return
	}
	if ipf.Protocol() != rawtcp.IPProtoTCP {
		return
	}
	payload := ipf.Payload()
	tf, err := NewFrame(payload)
	if err != nil {
		return
	}
	v.ResetErr()
	tf.ValidateExceptCRC(&v)
	if v.Err() != nil {
		internal.LogAttrs(ifc.log, internal.LevelTrace, "drop: bad tcp", slog.String("err", v.Err().Error()))
		return
	}
	if !validTCPChecksum(ipf, tf) {
		internal.LogAttrs(ifc.log, internal.LevelTrace, "drop: bad crc")
		return
	}

	q := Quad{
		LocalAddr:  *ipf.DestinationAddr(),
		RemoteAddr: *ipf.SourceAddr(),
		LocalPort:  tf.DestinationPort(),
		RemotePort: tf.SourcePort(),
	}
	tcpPayload := tf.Payload()
	seg := tf.Segment(len(tcpPayload))

	if conn, ok := ifc.connections[q]; ok {
		emissions := conn.OnSegment(seg, tcpPayload, now)
		ifc.sendAll(q, emissions)
		// Any inbound segment can change what a blocked Read or Flush is
		// waiting on (new data, peer FIN, or an ACK draining unacked), so
		// wake every waiter rather than narrowly tracking which condition
		// actually flipped.
		ifc.recvVar.Broadcast()
		return
	}

	l, ok := ifc.listeners[q.LocalPort]
	if !ok || !seg.Flags.HasAll(FlagSYN) {
		internal.LogAttrs(ifc.log, internal.LevelTrace, "drop: unknown quad", slog.String("quad", q.String()))
		return
	}
	tick := uint32(now.UnixMicro() / 4)
	iss := Value(internal.NextISS(ifc.secret, tick, q.LocalAddr, q.RemoteAddr, q.LocalPort, q.RemotePort))
	conn, em := NewPassive(q, seg, iss, now)
	conn.Log = ifc.log
	ifc.connections[q] = conn
	ifc.sendAll(q, []Emission{em})
	_ = l
}

// onTick drives every connection's retransmission/send-new timer. Called with mu held.
func (ifc *Interface) onTick(now time.Time) {
	for q, conn := range ifc.connections {
		emissions := conn.Tick(now)
		ifc.sendAll(q, emissions)
		if conn.State == StateEstablished {
			// Newly established connections move from the half-open set
			// into their listener's accept backlog exactly once.
			ifc.promoteIfEstablished(q, conn)
		}
	}
}

// promoteIfEstablished pushes a freshly-established passive connection
// onto its listener's backlog, if it hasn't been already.
func (ifc *Interface) promoteIfEstablished(q Quad, conn *Connection) {
	if conn.promoted {
		return
	}
	l, ok := ifc.listeners[q.LocalPort]
	if !ok {
		return
	}
	conn.promoted = true
	l.Push(q)
	ifc.pendingVar.Broadcast()
}

func (ifc *Interface) sendAll(q Quad, emissions []Emission) {
	for _, em := range emissions {
		frame := ifc.buildFrame(q, em.Seg, em.Payload)
		if err := ifc.dev.SendFrame(frame); err != nil {
			internal.LogAttrs(ifc.log, slog.LevelError, "send frame", slog.String("err", err.Error()))
		}
	}
}

// buildFrame serializes seg+payload addressed per q into a complete
// IPv4+TCP frame, computing both checksums (spec §6 "Wire format").
func (ifc *Interface) buildFrame(q Quad, seg Segment, payload []byte) []byte {
	total := sizeHeaderIPv4 + sizeHeaderTCP + len(payload)
	buf := make([]byte, total)

	ipf, _ := ipv4.NewFrame(buf)
	ipf.ClearHeader()
	ipf.SetVersionAndIHL(4, 5)
	ipf.SetTotalLength(uint16(total))
	ipf.SetTTL(64)
	ipf.SetProtocol(rawtcp.IPProtoTCP)
	ifc.ipID = internal.Prand16(ifc.ipID)
	ipf.SetID(ifc.ipID)
	*ipf.SourceAddr() = q.LocalAddr
	*ipf.DestinationAddr() = q.RemoteAddr

	tf, _ := NewFrame(buf[sizeHeaderIPv4:])
	tf.ClearHeader()
	tf.SetSourcePort(q.LocalPort)
	tf.SetDestinationPort(q.RemotePort)
	tf.SetSegment(seg, 5)
	copy(tf.Payload(), payload)

	var crc rawtcp.CRC791
	ipf.CRCWriteTCPPseudo(&crc)
	crc.Write(tf.RawData())
	tf.SetCRC(rawtcp.NeverZeroChecksum(crc.Sum16()))

	ipf.SetCRC(ipf.CalculateHeaderCRC())
	return buf
}

const sizeHeaderIPv4 = 20

// Prune removes connections that have been idle for longer than maxAge,
// whatever their state. Spec §9 notes TIME-WAIT has no timeout in the
// original source and entries persist forever; this is the supplemental
// heartbeat an implementer is left to define — a blunt idle-based sweep
// rather than a precise 2*MSL timer, applied to every state so a peer
// that vanishes mid-handshake or mid-transfer doesn't pin a connection
// slot indefinitely either.
func (ifc *Interface) Prune(maxAge time.Duration) (removed int) {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	now := time.Now()
	for q, conn := range ifc.connections {
		if conn.IdleSince(now) > maxAge {
			delete(ifc.connections, q)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of every tracked connection's diagnostic
// counters, keyed by Quad.
func (ifc *Interface) Stats() map[Quad]Stats {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	out := make(map[Quad]Stats, len(ifc.connections))
	for q, conn := range ifc.connections {
		out[q] = conn.Stats()
	}
	return out
}

// validTCPChecksum recomputes the TCP checksum over the pseudo-header plus
// the segment as received and compares it against the transmitted value.
// It temporarily zeroes and restores the frame's checksum field in place.
func validTCPChecksum(ipf ipv4.Frame, tf Frame) bool {
	got := tf.CRC()
	tf.SetCRC(0)
	var crc rawtcp.CRC791
	ipf.CRCWriteTCPPseudo(&crc)
	crc.Write(tf.RawData())
	tf.SetCRC(got)
	return rawtcp.NeverZeroChecksum(crc.Sum16()) == got
}
