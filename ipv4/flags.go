package ipv4

// ToS represents the Traffic Class (a.k.a Type of Service) byte of the IPv4 header.
type ToS uint8

// DS returns the top 6 bits of the IPv4 ToS holding the Differentiated Services field.
func (tos ToS) DS() uint8 { return uint8(tos) >> 2 }

// ECN is the Explicit Congestion Notification field.
func (tos ToS) ECN() uint8 { return uint8(tos & 0b11) }

// Flags holds the fragmentation-control field of an IPv4 header.
type Flags uint16

// IsEvil returns true if the reserved "evil" bit is set, see RFC 3514.
func (f Flags) IsEvil() bool { return f&0x8000 != 0 }

// DontFragment specifies whether the datagram must not be fragmented.
func (f Flags) DontFragment() bool { return f&0x4000 != 0 }

// MoreFragments is set on every fragment of a fragmented datagram except the last.
func (f Flags) MoreFragments() bool { return f&0x2000 != 0 }

// FragmentOffset specifies the offset of a fragment, in units of 8 bytes.
func (f Flags) FragmentOffset() uint16 { return uint16(f) & 0x1fff }
