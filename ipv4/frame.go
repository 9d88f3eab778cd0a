// Package ipv4 implements the fixed 20-byte IPv4 header codec this module
// needs to wrap TCP segments. It deliberately does not implement options,
// fragmentation, or IPv6: the host interface this module binds to already
// yields whole, reassembled IPv4 datagrams (see the iface package), and
// IPv6 is out of scope.
package ipv4

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/soypat/rawtcp"
)

const sizeHeader = 20

// NewFrame returns a new Frame with data set to buf.
// An error is returned if the buffer size is smaller than 20 bytes.
// Users should still call [Frame.ValidateSize] before working
// with the payload of frames to avoid panics.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{}, rawtcp.ErrShortBuffer
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw data of an IPv4 packet and provides methods
// for manipulating, validating, and retrieving its fields and payload.
// See RFC 791.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice with which the frame was created.
func (ifrm Frame) RawData() []byte { return ifrm.buf }

// HeaderLength returns the length of the IPv4 header in bytes, as
// calculated from IHL. This module never emits or parses IP options, so
// this is always 20 for frames it produces, but ingress frames from a real
// peer may carry options and this must still be honored to locate the
// payload correctly.
func (ifrm Frame) HeaderLength() int { return int(ifrm.ihl()) * 4 }

func (ifrm Frame) ihl() uint8     { return ifrm.buf[0] & 0xf }
func (ifrm Frame) version() uint8 { return ifrm.buf[0] >> 4 }

// VersionAndIHL returns the version and IHL fields in the IPv4 header. Version should always be 4.
func (ifrm Frame) VersionAndIHL() (version, ihl uint8) {
	v := ifrm.buf[0]
	return v >> 4, v & 0xf
}

// SetVersionAndIHL sets the version and IHL fields in the IPv4 header.
func (ifrm Frame) SetVersionAndIHL(version, ihl uint8) { ifrm.buf[0] = version<<4 | ihl&0xf }

// ToS returns the Type of Service field.
func (ifrm Frame) ToS() ToS { return ToS(ifrm.buf[1]) }

// SetToS sets the Type of Service field. See [Frame.ToS].
func (ifrm Frame) SetToS(tos ToS) { ifrm.buf[1] = byte(tos) }

// TotalLength defines the entire packet size in bytes, including the IP
// header and payload.
func (ifrm Frame) TotalLength() uint16 { return binary.BigEndian.Uint16(ifrm.buf[2:4]) }

// SetTotalLength sets the TotalLength field. See [Frame.TotalLength].
func (ifrm Frame) SetTotalLength(tl uint16) { binary.BigEndian.PutUint16(ifrm.buf[2:4], tl) }

// ID uniquely identifies the group of fragments of a single IP datagram.
// This module does not fragment, so it is set to an arbitrary counter.
func (ifrm Frame) ID() uint16 { return binary.BigEndian.Uint16(ifrm.buf[4:6]) }

// SetID sets the ID field. See [Frame.ID].
func (ifrm Frame) SetID(id uint16) { binary.BigEndian.PutUint16(ifrm.buf[4:6], id) }

// Flags returns the fragmentation Flags of the IP packet.
func (ifrm Frame) Flags() Flags { return Flags(binary.BigEndian.Uint16(ifrm.buf[6:8])) }

// SetFlags sets the IPv4 flags/fragment-offset field. See [Flags].
func (ifrm Frame) SetFlags(flags Flags) { binary.BigEndian.PutUint16(ifrm.buf[6:8], uint16(flags)) }

// TTL is the time-to-live field, decremented by each router the datagram transits.
func (ifrm Frame) TTL() uint8 { return ifrm.buf[8] }

// SetTTL sets the TTL field. See [Frame.TTL].
func (ifrm Frame) SetTTL(ttl uint8) { ifrm.buf[8] = ttl }

// Protocol identifies the payload protocol. TCP is 6.
func (ifrm Frame) Protocol() rawtcp.IPProto { return rawtcp.IPProto(ifrm.buf[9]) }

// SetProtocol sets the Protocol field. See [Frame.Protocol].
func (ifrm Frame) SetProtocol(proto rawtcp.IPProto) { ifrm.buf[9] = uint8(proto) }

// CRC returns the header checksum field.
func (ifrm Frame) CRC() uint16 { return binary.BigEndian.Uint16(ifrm.buf[10:12]) }

// SetCRC sets the header checksum field. See [Frame.CRC].
func (ifrm Frame) SetCRC(cs uint16) { binary.BigEndian.PutUint16(ifrm.buf[10:12], cs) }

// CalculateHeaderCRC calculates the IPv4 header checksum for this frame.
// The CRC field itself is skipped, so its current value does not matter.
func (ifrm Frame) CalculateHeaderCRC() uint16 {
	var crc rawtcp.CRC791
	hl := ifrm.HeaderLength()
	crc.Write(ifrm.buf[0:10])
	crc.Write(ifrm.buf[12:hl])
	return rawtcp.NeverZeroChecksum(crc.Sum16())
}

// CRCWriteTCPPseudo writes the TCP pseudo-header (RFC 793 §3.1) fields
// into the running checksum crc, ahead of the TCP header and payload.
func (ifrm Frame) CRCWriteTCPPseudo(crc *rawtcp.CRC791) {
	crc.Write(ifrm.SourceAddr()[:])
	crc.Write(ifrm.DestinationAddr()[:])
	crc.AddUint16(ifrm.TotalLength() - uint16(ifrm.HeaderLength()))
	crc.AddUint16(uint16(ifrm.Protocol()))
}

// SourceAddr returns a pointer to the source IPv4 address in the IP header.
func (ifrm Frame) SourceAddr() *[4]byte { return (*[4]byte)(ifrm.buf[12:16]) }

// DestinationAddr returns a pointer to the destination IPv4 address in the IP header.
func (ifrm Frame) DestinationAddr() *[4]byte { return (*[4]byte)(ifrm.buf[16:20]) }

// Payload returns the contents of the IPv4 packet, which may be zero sized.
// Call [Frame.ValidateSize] beforehand to avoid a panic on malformed input.
func (ifrm Frame) Payload() []byte {
	off := ifrm.HeaderLength()
	l := ifrm.TotalLength()
	return ifrm.buf[off:l]
}

// ClearHeader zeros out the fixed (non-option) header contents.
func (ifrm Frame) ClearHeader() {
	for i := range ifrm.buf[:sizeHeader] {
		ifrm.buf[i] = 0
	}
}

// ValidateSize checks the frame's size fields against the actual buffer.
func (ifrm Frame) ValidateSize(v *rawtcp.Validator) {
	ihl := ifrm.ihl()
	tl := ifrm.TotalLength()
	if tl < sizeHeader {
		v.AddError(rawtcp.ErrBadIPv4TL)
	}
	if int(tl) > len(ifrm.RawData()) {
		v.AddError(rawtcp.ErrShortIPv4)
	}
	if ihl < 5 {
		v.AddError(rawtcp.ErrBadIPv4IHL)
	}
	if ifrm.HeaderLength() > int(tl) {
		v.AddError(rawtcp.ErrShortIPv4)
	}
}

// ValidateExceptCRC checks for invalid frame values but does not verify the checksum.
func (ifrm Frame) ValidateExceptCRC(v *rawtcp.Validator) {
	ifrm.ValidateSize(v)
	if ifrm.version() != 4 {
		v.AddError(rawtcp.ErrBadIPVer)
	}
	if v.Flags()&rawtcp.ValidateEvilBit != 0 && ifrm.Flags().IsEvil() {
		v.AddError(rawtcp.ErrEvilPacket)
	}
}

func (ifrm Frame) String() string {
	dst := netip.AddrFrom4(*ifrm.DestinationAddr())
	src := netip.AddrFrom4(*ifrm.SourceAddr())
	hl := ifrm.HeaderLength()
	tl := int(ifrm.TotalLength())
	return fmt.Sprintf("IP %s SRC=%s DST=%s LEN=%d OPT=%d TTL=%d ID=%d",
		ifrm.Protocol(), src, dst, tl, tl-hl, ifrm.TTL(), ifrm.ID())
}
