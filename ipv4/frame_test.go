package ipv4_test

import (
	"testing"

	"github.com/soypat/rawtcp"
	"github.com/soypat/rawtcp/ipv4"
)

func TestFrame_headerRoundtrip(t *testing.T) {
	buf := make([]byte, 20+8)
	frm, err := ipv4.NewFrame(buf)
	if err != nil {
		t.Fatalf("NewFrame() err = %v", err)
	}
	frm.ClearHeader()
	frm.SetVersionAndIHL(4, 5)
	frm.SetTotalLength(uint16(len(buf)))
	frm.SetTTL(64)
	frm.SetProtocol(rawtcp.IPProtoTCP)
	frm.SetID(0xbeef)
	*frm.SourceAddr() = [4]byte{192, 168, 1, 10}
	*frm.DestinationAddr() = [4]byte{192, 168, 1, 20}

	version, ihl := frm.VersionAndIHL()
	if version != 4 || ihl != 5 {
		t.Fatalf("VersionAndIHL() = %d,%d want 4,5", version, ihl)
	}
	if frm.HeaderLength() != 20 {
		t.Fatalf("HeaderLength() = %d, want 20", frm.HeaderLength())
	}
	if frm.TotalLength() != uint16(len(buf)) {
		t.Fatalf("TotalLength() = %d, want %d", frm.TotalLength(), len(buf))
	}
	if frm.TTL() != 64 {
		t.Fatalf("TTL() = %d, want 64", frm.TTL())
	}
	if frm.Protocol() != rawtcp.IPProtoTCP {
		t.Fatalf("Protocol() = %v, want TCP", frm.Protocol())
	}
	if frm.ID() != 0xbeef {
		t.Fatalf("ID() = %#x, want 0xbeef", frm.ID())
	}
	if *frm.SourceAddr() != [4]byte{192, 168, 1, 10} {
		t.Fatalf("SourceAddr() = %v", *frm.SourceAddr())
	}
	if *frm.DestinationAddr() != [4]byte{192, 168, 1, 20} {
		t.Fatalf("DestinationAddr() = %v", *frm.DestinationAddr())
	}
}

func TestFrame_calculateHeaderCRC(t *testing.T) {
	buf := make([]byte, 20)
	frm, _ := ipv4.NewFrame(buf)
	frm.ClearHeader()
	frm.SetVersionAndIHL(4, 5)
	frm.SetTotalLength(20)
	frm.SetTTL(64)
	frm.SetProtocol(rawtcp.IPProtoTCP)
	*frm.SourceAddr() = [4]byte{10, 0, 0, 1}
	*frm.DestinationAddr() = [4]byte{10, 0, 0, 2}

	crc := frm.CalculateHeaderCRC()
	if crc == 0 {
		t.Fatal("CalculateHeaderCRC() = 0, want non-zero (NeverZeroChecksum should apply)")
	}
	frm.SetCRC(crc)

	// Summing the header including a correct checksum field must fold to
	// zero (ones'-complement checksum self-verification property); verify
	// indirectly by recomputing over a zeroed CRC field and comparing.
	frm.SetCRC(0)
	recomputed := frm.CalculateHeaderCRC()
	if recomputed != crc {
		t.Fatalf("recomputed CRC = %#x, want %#x", recomputed, crc)
	}
}

func TestFrame_payloadBounds(t *testing.T) {
	buf := make([]byte, 20+12)
	frm, _ := ipv4.NewFrame(buf)
	frm.ClearHeader()
	frm.SetVersionAndIHL(4, 5)
	frm.SetTotalLength(uint16(len(buf)))
	copy(frm.Payload(), []byte("hello world\n"))

	if len(frm.Payload()) != 12 {
		t.Fatalf("Payload() length = %d, want 12", len(frm.Payload()))
	}
	if string(frm.Payload()) != "hello world\n" {
		t.Fatalf("Payload() = %q", frm.Payload())
	}
}

func TestFrame_validateSizeCatchesShortBuffers(t *testing.T) {
	buf := make([]byte, 20)
	frm, _ := ipv4.NewFrame(buf)
	frm.ClearHeader()
	frm.SetVersionAndIHL(4, 5)
	frm.SetTotalLength(100) // claims more than the buffer actually holds

	var v rawtcp.Validator
	frm.ValidateSize(&v)
	if v.Err() == nil {
		t.Fatal("ValidateSize() on an over-claimed TotalLength should report an error")
	}
}

func TestFrame_validateSizeCatchesOversizedIHL(t *testing.T) {
	buf := make([]byte, 24)
	frm, _ := ipv4.NewFrame(buf)
	frm.ClearHeader()
	frm.SetVersionAndIHL(4, 6) // IHL=6 -> 24 byte header
	frm.SetTotalLength(20)     // but claims a total length shorter than the header

	var v rawtcp.Validator
	frm.ValidateSize(&v)
	if v.Err() == nil {
		t.Fatal("ValidateSize() should reject a header longer than the claimed total length")
	}
}

func TestFrame_crcWriteTCPPseudoMatchesPayloadLength(t *testing.T) {
	const payloadLen = 20 // fixed TCP header, no data
	buf := make([]byte, 20+payloadLen)
	frm, _ := ipv4.NewFrame(buf)
	frm.ClearHeader()
	frm.SetVersionAndIHL(4, 5)
	frm.SetTotalLength(uint16(len(buf)))
	frm.SetProtocol(rawtcp.IPProtoTCP)
	*frm.SourceAddr() = [4]byte{1, 2, 3, 4}
	*frm.DestinationAddr() = [4]byte{5, 6, 7, 8}

	var crc rawtcp.CRC791
	frm.CRCWriteTCPPseudo(&crc)
	// The pseudo-header's length field must equal total-minus-IP-header,
	// i.e. exactly the TCP segment length -- a regression here would
	// silently corrupt every outgoing TCP checksum.
	var want rawtcp.CRC791
	want.Write(frm.SourceAddr()[:])
	want.Write(frm.DestinationAddr()[:])
	want.AddUint16(uint16(payloadLen))
	want.AddUint16(uint16(rawtcp.IPProtoTCP))
	if crc.Sum16() != want.Sum16() {
		t.Fatalf("CRCWriteTCPPseudo() sum = %#x, want %#x", crc.Sum16(), want.Sum16())
	}
}
