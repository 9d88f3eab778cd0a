//go:build linux

// Package iface binds this module's tcp.Interface to a real host network
// device. tcp itself only knows about the tcp.NetDevice interface
// (RecvFrame/SendFrame); everything OS-specific — opening the TUN device,
// configuring its address, polling it with a timeout — lives here.
package iface

import (
	"fmt"
	"net/netip"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"github.com/soypat/rawtcp/tcp"
)

// Tap is a Linux TUN device carrying raw IPv4 frames (no link-layer
// header), adapted from the teacher's internal/tap.go: the same
// open-device/ioctl/configure sequence, rewritten against
// golang.org/x/sys/unix instead of raw syscall.Syscall(SYS_IOCTL, ...)
// calls so the ioctl request/response structs are typed. IFF_TUN is used
// in place of the teacher's IFF_TAP since this module's peers speak IP
// directly, with no Ethernet framing to strip.
type Tap struct {
	fd   int
	name string
}

// NewTap opens (creating if necessary) the named TUN device and, if addr
// is valid, assigns it that address and brings the link up via the `ip`
// command line tool, matching the teacher's approach of shelling out
// rather than reimplementing netlink.
func NewTap(name string, addr netip.Prefix) (*Tap, error) {
	if len(name) >= unix.IFNAMSIZ {
		return nil, fmt.Errorf("iface: device name %q too long", name)
	}
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("iface: open /dev/net/tun: %w", err)
	}
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	ifr.SetUint16(unix.IFF_TUN | unix.IFF_NO_PI)
	if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, ifr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("iface: TUNSETIFF: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("iface: set nonblocking: %w", err)
	}

	tap := &Tap{fd: fd, name: name}
	if addr.IsValid() {
		if err := exec.Command("ip", "link", "set", "dev", name, "up").Run(); err != nil {
			tap.Close()
			return nil, fmt.Errorf("iface: bring up %s: %w", name, err)
		}
		if err := exec.Command("ip", "addr", "add", addr.String(), "dev", name).Run(); err != nil {
			tap.Close()
			return nil, fmt.Errorf("iface: assign address to %s: %w", name, err)
		}
	}
	return tap, nil
}

// RecvFrame implements tcp.NetDevice: waits up to timeout for the TUN
// device to become readable, then reads one frame.
func (t *Tap) RecvFrame(buf []byte, timeout time.Duration) (int, error) {
	pfd := []unix.PollFd{{Fd: int32(t.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, int(timeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return 0, tcp.ErrTimeout
		}
		return 0, err
	}
	if n == 0 {
		return 0, tcp.ErrTimeout
	}
	nr, err := unix.Read(t.fd, buf)
	if err == unix.EAGAIN {
		return 0, tcp.ErrTimeout
	}
	return nr, err
}

// SendFrame implements tcp.NetDevice.
func (t *Tap) SendFrame(buf []byte) error {
	_, err := unix.Write(t.fd, buf)
	return err
}

// Close releases the underlying file descriptor.
func (t *Tap) Close() error { return unix.Close(t.fd) }

// Name returns the TUN device's interface name.
func (t *Tap) Name() string { return t.name }
