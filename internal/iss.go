package internal

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// ISNSecret is a process-lifetime key mixed into initial sequence number
// generation. It should be filled with random bytes once at startup
// (e.g. via crypto/rand) and reused for the process's whole lifetime;
// changing it mid-run is harmless but unnecessary.
type ISNSecret [32]byte

// NextISS computes a randomized Initial Sequence Number for a new
// connection identified by the given 4-tuple and coarse time counter,
// following the construction described in RFC 6528: ISN = M + F(localip,
// localport, remoteip, remoteport, secret), where M is a timer that
// increments roughly every 4 microseconds and F is a secure hash. The keyed
// hash makes ISNs differ across 4-tuples and hard to predict without the
// secret, with no per-connection persisted state; the same 4-tuple within
// the same timer tick yields the same ISN.
//
// timerTick should be a monotonically increasing counter supplied by the
// caller (e.g. derived from time.Now()); it is added on top of the hash so
// that ISNs for the same 4-tuple still advance over time even if the hash
// input were to repeat.
func NextISS(secret ISNSecret, timerTick uint32, localIP, remoteIP [4]byte, localPort, remotePort uint16) uint32 {
	h, _ := blake2b.New(4, secret[:])
	var tuple [12]byte
	copy(tuple[0:4], localIP[:])
	copy(tuple[4:8], remoteIP[:])
	binary.BigEndian.PutUint16(tuple[8:10], localPort)
	binary.BigEndian.PutUint16(tuple[10:12], remotePort)
	h.Write(tuple[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint32(sum) + timerTick
}
