package tcp

import (
	"io"

	"github.com/soypat/rawtcp/internal"
)

// maxUnacked is the cap on bytes an application may have written but not
// yet had acknowledged by the peer (spec §3 Connection.unacked, §8
// invariant 4). Write returns ErrWouldBlock once this is reached.
const maxUnacked = 1024

// defaultRecvWindow is the fixed size this module advertises for its
// receive window (spec §3 RecvSequenceSpace.wnd).
const defaultRecvWindow = 1024

// sendBuffer is the per-connection "unacked" FIFO: application bytes
// written but not yet acknowledged by the peer. Backed by internal.Ring,
// grounded on the teacher's use of Ring as the tx/rx queue storage.
type sendBuffer struct {
	ring internal.Ring
}

func newSendBuffer() sendBuffer {
	return sendBuffer{ring: internal.Ring{Buf: make([]byte, maxUnacked)}}
}

// Len returns the number of unacknowledged bytes currently buffered.
func (b *sendBuffer) Len() int { return b.ring.Buffered() }

// Free returns how many more bytes Write could accept before reaching maxUnacked.
func (b *sendBuffer) Free() int { return b.ring.Free() }

// Write appends p to the buffer, truncating to the available space. It
// never blocks and never returns an error for a short write; callers
// needing ErrWouldBlock semantics check Len() against maxUnacked first
// (see Connection.Write).
func (b *sendBuffer) Write(p []byte) (n int, err error) {
	free := b.ring.Free()
	if free == 0 {
		return 0, nil
	}
	if len(p) > free {
		p = p[:free]
	}
	return b.ring.Write(p)
}

// Peek copies up to len(p) bytes starting at the front of the buffer
// (offset 0, i.e. at seq=una) without draining them, for (re)transmission.
func (b *sendBuffer) Peek(p []byte) (n int, err error) {
	return b.PeekAt(p, 0)
}

// PeekAt copies up to len(p) bytes starting at offset bytes past the
// front of the buffer (i.e. at seq=una+offset), without draining them.
// Used to read the not-yet-sent tail (seq=nxt..) for new-data emission.
func (b *sendBuffer) PeekAt(p []byte, offset int) (n int, err error) {
	avail := b.ring.Buffered() - offset
	if avail <= 0 {
		return 0, nil
	}
	if avail < len(p) {
		p = p[:avail]
	}
	n, err = b.ring.ReadAt(p, int64(offset))
	if err == io.ErrUnexpectedEOF {
		return 0, nil
	}
	return n, nil
}

// Drain discards the first n bytes of the buffer (they have been acknowledged).
func (b *sendBuffer) Drain(n int) {
	if n <= 0 {
		return
	}
	if n > b.ring.Buffered() {
		n = b.ring.Buffered()
	}
	if n == 0 {
		return
	}
	b.ring.ReadDiscard(n)
}

// recvBuffer is the per-connection "incoming" FIFO: received, in-order
// bytes not yet consumed by an application Read.
type recvBuffer struct {
	ring internal.Ring
}

func newRecvBuffer(size int) recvBuffer {
	return recvBuffer{ring: internal.Ring{Buf: make([]byte, size)}}
}

// Len returns the number of bytes ready to be read.
func (b *recvBuffer) Len() int { return b.ring.Buffered() }

// Append adds newly received, in-order data to the buffer.
func (b *recvBuffer) Append(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	free := b.ring.Free()
	if free < len(p) {
		// Should not happen if the advertised window is honored by the
		// peer; defensively truncate rather than overflow the ring.
		p = p[:free]
	}
	if len(p) == 0 {
		return 0, nil
	}
	return b.ring.Write(p)
}

// Read copies buffered bytes into p and drains them.
func (b *recvBuffer) Read(p []byte) (int, error) {
	return b.ring.Read(p)
}
