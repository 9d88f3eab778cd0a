//go:build !linux

package iface

import (
	"errors"
	"net/netip"
	"time"
)

// Tap is unavailable outside Linux: TUN devices are a Linux-specific
// kernel facility. Adapted from the teacher's internal/tap_nolinux.go stub.
type Tap struct{}

func NewTap(name string, addr netip.Prefix) (*Tap, error) {
	return nil, errors.ErrUnsupported
}

func (t *Tap) RecvFrame(buf []byte, timeout time.Duration) (int, error) {
	return 0, errors.ErrUnsupported
}

func (t *Tap) SendFrame(buf []byte) error { return errors.ErrUnsupported }

func (t *Tap) Close() error { return errors.ErrUnsupported }

func (t *Tap) Name() string { return "" }
