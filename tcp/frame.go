package tcp

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/soypat/rawtcp"
)

const sizeHeaderTCP = 20

// Segment represents an incoming or outgoing TCP segment projected into
// the sequence-number space, independent of its wire encoding. This is the
// type the connection state machine reasons about; Frame is only used at
// the edges to serialize/deserialize it.
type Segment struct {
	SEQ     Value // sequence number of the first octet of the segment (or ISN if SYN set).
	ACK     Value // acknowledgment number, valid when Flags has ACK set.
	DATALEN Size  // payload length in octets, not counting SYN/FIN.
	WND     Size  // advertised window.
	Flags   Flags
}

// LEN returns the length of the segment in sequence-number space,
// including the virtual octet each of SYN and FIN occupy.
func (seg Segment) LEN() Size {
	var l Size
	if seg.Flags.HasAny(FlagSYN) {
		l++
	}
	if seg.Flags.HasAny(FlagFIN) {
		l++
	}
	return l + seg.DATALEN
}

func (seg Segment) String() string {
	return fmt.Sprintf("<SEQ=%d><ACK=%d><WND=%d>%s", seg.SEQ, seg.ACK, seg.WND, seg.Flags)
}

// NewFrame returns a new Frame with data set to buf. An error is returned
// if the buffer is smaller than the fixed 20-byte TCP header.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeaderTCP {
		return Frame{}, rawtcp.ErrShortBuffer
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw data of a TCP segment and provides accessor
// methods for its fixed 20-byte header. This module produces and consumes
// no TCP options (spec Non-goal), so unlike a general-purpose
// implementation, Frame never needs to walk an options list: only
// HeaderLength (computed from the ingress Data Offset field) is used, to
// skip over options an ingress peer may have sent.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice with which the frame was created.
func (tfrm Frame) RawData() []byte { return tfrm.buf }

func (tfrm Frame) SourcePort() uint16 { return binary.BigEndian.Uint16(tfrm.buf[0:2]) }
func (tfrm Frame) SetSourcePort(src uint16) {
	binary.BigEndian.PutUint16(tfrm.buf[0:2], src)
}

func (tfrm Frame) DestinationPort() uint16 { return binary.BigEndian.Uint16(tfrm.buf[2:4]) }
func (tfrm Frame) SetDestinationPort(dst uint16) {
	binary.BigEndian.PutUint16(tfrm.buf[2:4], dst)
}

func (tfrm Frame) Seq() Value { return Value(binary.BigEndian.Uint32(tfrm.buf[4:8])) }
func (tfrm Frame) SetSeq(v Value) {
	binary.BigEndian.PutUint32(tfrm.buf[4:8], uint32(v))
}

func (tfrm Frame) Ack() Value { return Value(binary.BigEndian.Uint32(tfrm.buf[8:12])) }
func (tfrm Frame) SetAck(v Value) {
	binary.BigEndian.PutUint32(tfrm.buf[8:12], uint32(v))
}

// OffsetAndFlags returns the data-offset (in 32-bit words) and flags fields.
func (tfrm Frame) OffsetAndFlags() (offset uint8, flags Flags) {
	v := binary.BigEndian.Uint16(tfrm.buf[12:14])
	return uint8(v >> 12), Flags(v).Mask()
}

// SetOffsetAndFlags sets the data-offset (in 32-bit words, minimum 5) and flags fields.
func (tfrm Frame) SetOffsetAndFlags(offset uint8, flags Flags) {
	v := uint16(offset)<<12 | uint16(flags.Mask())
	binary.BigEndian.PutUint16(tfrm.buf[12:14], v)
}

// HeaderLength returns the TCP header length in bytes, including options, per the Data Offset field.
func (tfrm Frame) HeaderLength() int {
	offset, _ := tfrm.OffsetAndFlags()
	return 4 * int(offset)
}

func (tfrm Frame) WindowSize() uint16 { return binary.BigEndian.Uint16(tfrm.buf[14:16]) }
func (tfrm Frame) SetWindowSize(v uint16) {
	binary.BigEndian.PutUint16(tfrm.buf[14:16], v)
}

func (tfrm Frame) CRC() uint16 { return binary.BigEndian.Uint16(tfrm.buf[16:18]) }
func (tfrm Frame) SetCRC(checksum uint16) {
	binary.BigEndian.PutUint16(tfrm.buf[16:18], checksum)
}

func (tfrm Frame) UrgentPtr() uint16 { return binary.BigEndian.Uint16(tfrm.buf[18:20]) }
func (tfrm Frame) SetUrgentPtr(up uint16) {
	binary.BigEndian.PutUint16(tfrm.buf[18:20], up)
}

// Payload returns the data section of the segment, after the header and
// any options. Call ValidateSize first to avoid a panic on malformed input.
func (tfrm Frame) Payload() []byte { return tfrm.buf[tfrm.HeaderLength():] }

// Segment returns the Segment representation of this frame's header plus payload length.
func (tfrm Frame) Segment(payloadLen int) Segment {
	if payloadLen > math.MaxInt32 {
		panic("tcp: payload too large")
	}
	_, flags := tfrm.OffsetAndFlags()
	return Segment{
		SEQ:     tfrm.Seq(),
		ACK:     tfrm.Ack(),
		WND:     Size(tfrm.WindowSize()),
		DATALEN: Size(payloadLen),
		Flags:   flags,
	}
}

// SetSegment writes the sequence, acknowledgment, window, and flags fields
// from seg into the frame's header, with the given header offset (in
// 32-bit words, minimum 5 since this module emits no options).
func (tfrm Frame) SetSegment(seg Segment, offset uint8) {
	if offset >= 1<<4 {
		panic("tcp: offset too large")
	} else if seg.WND > math.MaxUint16 {
		panic("tcp: window overflow")
	}
	tfrm.SetSeq(seg.SEQ)
	tfrm.SetAck(seg.ACK)
	tfrm.SetOffsetAndFlags(offset, seg.Flags)
	tfrm.SetWindowSize(uint16(seg.WND))
}

// ClearHeader zeros out the fixed header contents.
func (tfrm Frame) ClearHeader() {
	for i := range tfrm.buf[:sizeHeaderTCP] {
		tfrm.buf[i] = 0
	}
}

// ValidateSize checks the frame's data-offset field against the buffer size.
func (tfrm Frame) ValidateSize(v *rawtcp.Validator) {
	off := tfrm.HeaderLength()
	if off < sizeHeaderTCP {
		v.AddError(rawtcp.ErrBadTCPOff)
	}
	if off > len(tfrm.RawData()) {
		v.AddError(rawtcp.ErrShortTCP)
	}
}

// ValidateExceptCRC checks for invalid frame values but does not verify the checksum.
func (tfrm Frame) ValidateExceptCRC(v *rawtcp.Validator) {
	tfrm.ValidateSize(v)
	if tfrm.DestinationPort() == 0 {
		v.AddError(rawtcp.ErrZeroDport)
	}
	if tfrm.SourcePort() == 0 {
		v.AddError(rawtcp.ErrZeroSport)
	}
}

func (tfrm Frame) String() string {
	seg := tfrm.Segment(len(tfrm.Payload()))
	return fmt.Sprintf("TCP :%d -> :%d %s", tfrm.SourcePort(), tfrm.DestinationPort(), seg)
}
