package tcp

import (
	"fmt"
	"net/netip"
)

// Quad is the four-tuple identifying a TCP connection from the local
// endpoint's perspective: local (bound) address/port and remote
// address/port. Quads are the key of Interface's connection table.
type Quad struct {
	LocalAddr  [4]byte
	RemoteAddr [4]byte
	LocalPort  uint16
	RemotePort uint16
}

func (q Quad) String() string {
	local := netip.AddrPortFrom(netip.AddrFrom4(q.LocalAddr), q.LocalPort)
	remote := netip.AddrPortFrom(netip.AddrFrom4(q.RemoteAddr), q.RemotePort)
	return fmt.Sprintf("%s<->%s", local, remote)
}
