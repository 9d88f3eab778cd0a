package tcp

// Value is a TCP sequence (or acknowledgment) number: an unsigned 32-bit
// quantity that wraps modulo 2**32. All comparisons between two Values must
// go through the wrapped-order helpers below rather than Go's native <, >,
// since a "later" sequence number can have a numerically smaller value
// after a wraparound.
type Value uint32

// Size is a length in the sequence-number space: a count of octets (plus,
// where noted, the one virtual octet each of SYN and FIN occupy).
type Size uint32

// Add returns v+n with 32-bit wraparound.
func Add(v Value, n Size) Value { return v + Value(n) }

// LessThan reports whether a precedes b in wrapped sequence order: true
// iff (a-b) mod 2**32 > 2**31. Two values exactly 2**31 apart are not
// ordered either way.
func LessThan(a, b Value) bool {
	return uint32(a-b) > 1<<31
}

// InWindow reports whether x lies strictly between start and end in
// wrapped order: start < x < end. Both comparisons are strict, matching
// the spec's between(start,x,end) predicate used throughout segment
// acceptability and ACK-window checks.
func InWindow(start, x, end Value) bool {
	return LessThan(start, x) && LessThan(x, end)
}

// LessThanEq reports whether a precedes or equals b in wrapped order.
func LessThanEq(a, b Value) bool {
	return a == b || LessThan(a, b)
}
