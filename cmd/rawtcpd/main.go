// Command rawtcpd binds this module's TCP stack to a Linux TUN device and
// echoes back whatever it reads on one listening port. It exists to
// exercise the library end-to-end, in the same spirit as the teacher's
// examples/tap and examples/tcpclient: a small, flag-configured, no
// CLI-framework program.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soypat/rawtcp/iface"
	"github.com/soypat/rawtcp/internal"
	"github.com/soypat/rawtcp/tcp"
)

func main() {
	if err := run(); err != nil {
		log.Fatalln("failed:", err)
	}
	fmt.Println("finished")
}

func run() error {
	var (
		flagDevice  = flag.String("iface", "tap0", "TUN device name")
		flagAddr    = flag.String("addr", "192.168.10.1/24", "local address/prefix to assign the TUN device")
		flagPort    = flag.Uint("port", 7070, "TCP port to listen on")
		flagVerbose = flag.Bool("v", false, "enable debug logging")
		flagPrune   = flag.Duration("prune", 2*time.Minute, "idle connection sweep interval and max age")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *flagVerbose {
		level = internal.LevelTrace
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	prefix, err := netip.ParsePrefix(*flagAddr)
	if err != nil {
		return fmt.Errorf("parsing -addr: %w", err)
	}
	tap, err := iface.NewTap(*flagDevice, prefix)
	if err != nil {
		return fmt.Errorf("opening TUN device %q: %w", *flagDevice, err)
	}
	defer tap.Close()

	ifc := tcp.New(tap, prefix.Addr().As4(), log)

	port := uint16(*flagPort)
	listener, err := ifc.Bind(port)
	if err != nil {
		return fmt.Errorf("binding port %d: %w", port, err)
	}
	log.Info("listening", slog.String("device", tap.Name()), slog.Uint64("port", uint64(port)))

	go pruneLoop(ifc, *flagPrune)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Info("terminating on signal", slog.String("signal", s.String()))
		ifc.Close()
		os.Exit(0)
	}()

	for {
		stream := listener.Accept()
		go echo(log, stream)
	}
}

// echo reads whatever a peer sends and writes it straight back until Read
// fails or returns 0. The tcp package returns 0 only once the connection is
// in TIME-WAIT; a FIN from the peer while ESTABLISHED is ignored, so a peer
// half-close alone does not end the loop.
func echo(log *slog.Logger, s *tcp.Stream) {
	buf := make([]byte, 4096)
	for {
		n, err := s.Read(buf)
		if err != nil {
			log.Error("read", slog.String("err", err.Error()))
			return
		}
		if n == 0 {
			s.Shutdown()
			return
		}
		written := 0
		for written < n {
			m, err := s.Write(buf[written:n])
			if err != nil {
				log.Error("write", slog.String("err", err.Error()))
				return
			}
			written += m
		}
	}
}

func pruneLoop(ifc *tcp.Interface, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for range t.C {
		ifc.Prune(period)
	}
}
