package rawtcp

//go:generate stringer -type=IPProto -linecomment -output stringers.go .

// IPProto represents the IP protocol number carried in the IPv4 header's
// Protocol field.
type IPProto uint8

// IP protocol numbers relevant to a host speaking IPv4+TCP over a raw
// interface. Only IPProtoTCP is ever produced by this module; the others
// are named so the dispatcher can recognize and silently drop frames
// carrying them instead of misinterpreting their payload as TCP.
const (
	IPProtoICMP IPProto = 1  // ICMP
	IPProtoTCP  IPProto = 6  // TCP
	IPProtoUDP  IPProto = 17 // UDP
)

func (p IPProto) String() string {
	switch p {
	case IPProtoICMP:
		return "ICMP"
	case IPProtoTCP:
		return "TCP"
	case IPProtoUDP:
		return "UDP"
	default:
		return "unknown"
	}
}
