package tcp_test

import (
	"testing"
	"time"

	"github.com/soypat/rawtcp"
	"github.com/soypat/rawtcp/ipv4"
	"github.com/soypat/rawtcp/tcp"
)

func TestInterface_bindDuplicatePort(t *testing.T) {
	dev := &chanDevice{recv: make(chan []byte, 4), send: make(chan []byte, 4)}
	ifc := tcp.New(dev, [4]byte{10, 0, 0, 1}, nil)
	_, err := ifc.Bind(7070)
	if err != nil {
		t.Fatalf("first Bind() = %v, want nil", err)
	}
	_, err = ifc.Bind(7070)
	if err != rawtcp.ErrAddrInUse {
		t.Fatalf("second Bind() = %v, want ErrAddrInUse", err)
	}
}

// TestInterface_handshakeAndRead drives a full passive-open handshake plus
// one data segment through a server Interface over an in-memory pipe
// standing in for the host TUN device; the peer side is hand-built frames,
// and the test checks that Accept returns and Stream.Read yields the data.
func TestInterface_handshakeAndRead(t *testing.T) {
	serverAddr := [4]byte{10, 0, 0, 1}
	clientAddr := [4]byte{10, 0, 0, 2}
	const port = 7070

	toServer := make(chan []byte, 64)
	toClient := make(chan []byte, 64)
	serverDev := &chanDevice{recv: toServer, send: toClient}
	clientDev := &chanDevice{recv: toClient, send: toServer}

	server := tcp.New(serverDev, serverAddr, nil)
	listener, err := server.Bind(port)
	if err != nil {
		t.Fatalf("Bind() = %v", err)
	}

	// Build a raw client SYN by hand -- there is no active-open client side
	// in this module (spec Non-goal), so the "client" here is just enough
	// hand-built wire traffic to exercise the server's passive-open path.
	clientISS := tcp.Value(0x1000)
	synFrame := buildFrame(t, clientAddr, serverAddr, 54321, port, tcp.Segment{
		SEQ: clientISS, Flags: tcp.FlagSYN, WND: 4096,
	}, nil)
	clientDev.send <- synFrame

	acceptDone := make(chan *tcp.Stream, 1)
	go func() { acceptDone <- listener.Accept() }()

	synAckFrame := waitFrame(t, toClient)
	seg, _ := parseSegmentFrame(t, synAckFrame)
	if !seg.Flags.HasAll(tcp.FlagSYN | tcp.FlagACK) {
		t.Fatalf("server reply flags = %s, want SYN|ACK", seg.Flags)
	}
	if seg.ACK != tcp.Add(clientISS, 1) {
		t.Fatalf("server ACK = %d, want %d", seg.ACK, tcp.Add(clientISS, 1))
	}

	finalAck := buildFrame(t, clientAddr, serverAddr, 54321, port, tcp.Segment{
		SEQ: tcp.Add(clientISS, 1), ACK: tcp.Add(seg.SEQ, 1), Flags: tcp.FlagACK, WND: 4096,
	}, nil)
	clientDev.send <- finalAck

	var stream *tcp.Stream
	select {
	case stream = <-acceptDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Accept() never returned after handshake completed")
	}
	if stream == nil {
		t.Fatal("Accept() returned a nil stream")
	}

	payload := []byte("hello\n")
	dataFrame := buildFrame(t, clientAddr, serverAddr, 54321, port, tcp.Segment{
		SEQ: tcp.Add(clientISS, 1), ACK: tcp.Add(seg.SEQ, 1), Flags: tcp.FlagPSH | tcp.FlagACK, DATALEN: tcp.Size(len(payload)), WND: 4096,
	}, payload)
	clientDev.send <- dataFrame

	type readResult struct {
		n   int
		err error
	}
	buf := make([]byte, 64)
	readDone := make(chan readResult, 1)
	go func() {
		n, err := stream.Read(buf)
		readDone <- readResult{n, err}
	}()

	select {
	case res := <-readDone:
		if res.err != nil {
			t.Fatalf("Stream.Read() err = %v", res.err)
		}
		if string(buf[:res.n]) != "hello\n" {
			t.Fatalf("Stream.Read() = %q, want hello\\n", buf[:res.n])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stream.Read() never returned data")
	}
}

// chanDevice is a minimal tcp.NetDevice backed by a pair of channels: one
// end pushes frames the other end's RecvFrame will observe.
type chanDevice struct {
	recv chan []byte
	send chan []byte
}

func (d *chanDevice) RecvFrame(buf []byte, timeout time.Duration) (int, error) {
	select {
	case frame := <-d.recv:
		return copy(buf, frame), nil
	case <-time.After(timeout):
		return 0, tcp.ErrTimeout
	}
}

func (d *chanDevice) SendFrame(buf []byte) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	d.send <- cp
	return nil
}

func waitFrame(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

func buildFrame(t *testing.T, src, dst [4]byte, srcPort, dstPort uint16, seg tcp.Segment, payload []byte) []byte {
	t.Helper()
	total := 20 + 20 + len(payload)
	buf := make([]byte, total)

	ipf, err := ipv4.NewFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	ipf.ClearHeader()
	ipf.SetVersionAndIHL(4, 5)
	ipf.SetTotalLength(uint16(total))
	ipf.SetTTL(64)
	ipf.SetProtocol(rawtcp.IPProtoTCP)
	*ipf.SourceAddr() = src
	*ipf.DestinationAddr() = dst

	tf, err := tcp.NewFrame(buf[20:])
	if err != nil {
		t.Fatal(err)
	}
	tf.ClearHeader()
	tf.SetSourcePort(srcPort)
	tf.SetDestinationPort(dstPort)
	tf.SetSegment(seg, 5)
	copy(tf.Payload(), payload)

	var crc rawtcp.CRC791
	ipf.CRCWriteTCPPseudo(&crc)
	crc.Write(tf.RawData())
	tf.SetCRC(rawtcp.NeverZeroChecksum(crc.Sum16()))
	ipf.SetCRC(ipf.CalculateHeaderCRC())
	return buf
}

func parseSegmentFrame(t *testing.T, raw []byte) (tcp.Segment, []byte) {
	t.Helper()
	ipf, err := ipv4.NewFrame(raw)
	if err != nil {
		t.Fatal(err)
	}
	tf, err := tcp.NewFrame(ipf.Payload())
	if err != nil {
		t.Fatal(err)
	}
	payload := tf.Payload()
	return tf.Segment(len(payload)), payload
}
