package rawtcp

import "errors"

var (
	ErrShortIPv4  = errors.New("IPv4 total length exceeds frame")
	ErrBadIPv4TL  = errors.New("IPv4 short total length")
	ErrBadIPv4IHL = errors.New("IPv4 bad IHL (<5)")
	ErrBadIPVer   = errors.New("bad IP version field")
	ErrEvilPacket = errors.New("evil packet")

	ErrShortTCP  = errors.New("TCP offset exceeds frame")
	ErrBadTCPOff = errors.New("TCP offset invalid")
	ErrZeroDport = errors.New("TCP zero destination port")
	ErrZeroSport = errors.New("TCP zero source port")

	ErrShortBuffer = errors.New("short buffer")
)

// ValidatorFlags configure optional, stricter checks a Validator performs.
type ValidatorFlags uint8

const (
	// ValidateEvilBit rejects IPv4 frames carrying the reserved "evil" bit (RFC 3514).
	ValidateEvilBit ValidatorFlags = 1 << iota
)

// Validator accumulates validation errors found across one or more frame
// fields, mirroring the validate-then-act pattern used throughout this
// module's frame codecs: callers validate once before trusting any
// accessor method against attacker-controlled ingress data.
type Validator struct {
	flags ValidatorFlags
	err   error
}

// NewValidator returns a Validator configured with the given flags.
func NewValidator(flags ValidatorFlags) Validator {
	return Validator{flags: flags}
}

// Flags returns the validator's configured flags.
func (v *Validator) Flags() ValidatorFlags { return v.flags }

// ResetErr clears any accumulated error, readying the Validator for reuse.
func (v *Validator) ResetErr() { v.err = nil }

// Err returns the first validation error added, or nil if none were added.
func (v *Validator) Err() error { return v.err }

// AddError records a validation failure. Only the first error is kept;
// callers care whether a frame is malformed, not every reason it is.
func (v *Validator) AddError(err error) {
	if v.err == nil {
		v.err = err
	}
}
