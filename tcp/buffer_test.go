package tcp

import "testing"

func TestSendBuffer_writePeekDrain(t *testing.T) {
	b := newSendBuffer()
	n, err := b.Write([]byte("hello world"))
	if err != nil || n != 11 {
		t.Fatalf("Write() = %d,%v want 11,nil", n, err)
	}
	if b.Len() != 11 {
		t.Fatalf("Len() = %d, want 11", b.Len())
	}

	peek := make([]byte, 5)
	n, err = b.Peek(peek)
	if err != nil || n != 5 || string(peek) != "hello" {
		t.Fatalf("Peek() = %d,%q,%v want 5,hello,nil", n, peek, err)
	}
	if b.Len() != 11 {
		t.Fatal("Peek must not drain the buffer")
	}

	b.Drain(6)
	if b.Len() != 5 {
		t.Fatalf("Len() after Drain(6) = %d, want 5", b.Len())
	}
	rest := make([]byte, 5)
	n, _ = b.Peek(rest)
	if string(rest[:n]) != "world" {
		t.Fatalf("Peek() after drain = %q, want world", rest[:n])
	}
}

func TestSendBuffer_peekAtOffset(t *testing.T) {
	b := newSendBuffer()
	b.Write([]byte("0123456789"))

	tail := make([]byte, 4)
	n, err := b.PeekAt(tail, 6)
	if err != nil || n != 4 || string(tail) != "6789" {
		t.Fatalf("PeekAt(,6) = %d,%q,%v want 4,6789,nil", n, tail, err)
	}

	// Offset past the end of buffered data yields nothing, not an error.
	n, err = b.PeekAt(tail, 10)
	if err != nil || n != 0 {
		t.Fatalf("PeekAt(,10) = %d,%v want 0,nil", n, err)
	}

	// PeekAt(p, 0) must agree with Peek.
	full := make([]byte, 10)
	n1, _ := b.Peek(full)
	full2 := make([]byte, 10)
	n2, _ := b.PeekAt(full2, 0)
	if n1 != n2 || string(full[:n1]) != string(full2[:n2]) {
		t.Fatalf("Peek and PeekAt(,0) disagree: %q vs %q", full[:n1], full2[:n2])
	}
}

func TestSendBuffer_writeTruncatesAtCapacity(t *testing.T) {
	b := newSendBuffer()
	big := make([]byte, maxUnacked+100)
	for i := range big {
		big[i] = byte(i)
	}
	n, err := b.Write(big)
	if err != nil {
		t.Fatalf("Write() err = %v", err)
	}
	if n != maxUnacked {
		t.Fatalf("Write() = %d, want truncation to %d", n, maxUnacked)
	}
	if b.Free() != 0 {
		t.Fatalf("Free() = %d, want 0 after filling buffer", b.Free())
	}
	// A further write onto a full buffer accepts nothing, rather than error.
	n, err = b.Write([]byte("more"))
	if err != nil || n != 0 {
		t.Fatalf("Write() on full buffer = %d,%v want 0,nil", n, err)
	}
}

func TestRecvBuffer_appendAndRead(t *testing.T) {
	b := newRecvBuffer(16)
	b.Append([]byte("abc"))
	b.Append([]byte("def"))
	if b.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", b.Len())
	}
	out := make([]byte, 6)
	n, err := b.Read(out)
	if err != nil || n != 6 || string(out) != "abcdef" {
		t.Fatalf("Read() = %d,%q,%v want 6,abcdef,nil", n, out, err)
	}
	if b.Len() != 0 {
		t.Fatal("Read must drain the buffer")
	}
}

func TestRecvBuffer_appendTruncatesAtCapacity(t *testing.T) {
	b := newRecvBuffer(4)
	n, _ := b.Append([]byte("abcdefgh"))
	if n != 4 {
		t.Fatalf("Append() = %d, want 4 (capacity)", n)
	}
}
