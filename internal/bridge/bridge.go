// Package bridge implements the per-worker event loop: relaying bytes
// between a WebSocket socket and a PTY master, intercepting Ctrl-C to
// signal the child instead of forwarding it, and exiting cleanly on peer
// close or PTY EOF.
//
// The dispatch shape — one epoll instance multiplexing a small, fixed set
// of descriptors with a single read-or-write per readable event — is the
// same reactor-style poll loop used elsewhere in this codebase, narrowed
// from a registered-callback table to the two fixed data paths this
// bridge needs.
package bridge

import (
	"log"

	"github.com/momentics/webterm/internal/ksys"
	"github.com/momentics/webterm/internal/wsproto"
	"golang.org/x/sys/unix"
)

const scratchSize = 64 * 1024

// ECONNRESET is recognised distinctly from other recv errors: a client
// hard-resetting the TCP connection is a clean peer reset, not a bug.
const econnreset = unix.ECONNRESET

// Run relays bytes between wsFD and ptyMasterFD until one side closes,
// the peer sends a close frame, or the process receives SIGINT/SIGTERM.
// On signal, it delivers SIGINT to childPID and returns. Ctrl-C (byte
// 0x03) found in an inbound WS payload is intercepted: SIGINT is sent to
// childPID and that payload, including any other bytes in it, is not
// forwarded to the PTY.
func Run(wsFD, ptyMasterFD, childPID int, logger *log.Logger) error {
	rs, err := ksys.NewReadinessSet()
	if err != nil {
		return err
	}
	defer rs.Close()

	var sigFD *ksys.SignalFD
	if sfd, serr := ksys.NewSignalFD(unix.SIGINT, unix.SIGTERM); serr == nil {
		sigFD = sfd
		defer sigFD.Close()
	} else {
		logger.Printf("bridge: signalfd unavailable, continuing without it: %v", serr)
	}

	if err := rs.AddReadable(wsFD); err != nil {
		return err
	}
	if err := rs.AddReadable(ptyMasterFD); err != nil {
		return err
	}
	if sigFD != nil {
		if err := rs.AddReadable(sigFD.FD()); err != nil {
			return err
		}
	}

	buf, err := ksys.AnonMap(scratchSize)
	if err != nil {
		return err
	}
	defer ksys.Unmap(buf)

	scratch, err := ksys.AnonMap(scratchSize)
	if err != nil {
		return err
	}
	defer ksys.Unmap(scratch)

	for {
		ready, err := rs.Wait(-1)
		if err != nil {
			return err
		}

		for _, fd := range ready {
			switch fd {
			case sigFDOf(sigFD):
				sig, serr := sigFD.ReadSignal()
				if serr != nil {
					continue
				}
				logger.Printf("bridge: received signal %v, stopping child %d", sig, childPID)
				_ = unix.Kill(childPID, unix.SIGINT)
				return nil

			case ptyMasterFD:
				n, rerr := ksys.Read(ptyMasterFD, buf)
				if rerr != nil {
					return errTagged("pty read", rerr)
				}
				if n == 0 {
					return nil
				}
				if werr := wsproto.WriteBinaryFrame(wsFD, buf[:n]); werr != nil {
					return errTagged("ws write", werr)
				}

			case wsFD:
				n, rerr := ksys.Recv(wsFD, buf)
				if rerr != nil {
					if rerr == econnreset {
						logger.Printf("bridge: peer reset connection")
						return nil
					}
					return errTagged("ws read", rerr)
				}
				if n == 0 {
					return nil
				}

				payload, perr := wsproto.ParseAndUnmaskFrame(buf[:n], scratch)
				switch {
				case perr == wsproto.ErrClose:
					return nil
				case perr != nil:
					continue
				}

				if idx := indexCtrlC(payload); idx >= 0 {
					_ = unix.Kill(childPID, unix.SIGINT)
					continue
				}
				if _, werr := unix.Write(ptyMasterFD, payload); werr != nil {
					logger.Printf("bridge: pty write error: %v", werr)
				}
			}
		}
	}
}

// sigFDOf returns the signalfd's descriptor, or an impossible fd value
// (-1) when no signalfd was created, so the switch above never matches it.
func sigFDOf(s *ksys.SignalFD) int {
	if s == nil {
		return -1
	}
	return s.FD()
}

func indexCtrlC(b []byte) int {
	for i, c := range b {
		if c == 0x03 {
			return i
		}
	}
	return -1
}

type tagged struct {
	tag string
	err error
}

func (t *tagged) Error() string { return t.tag + ": " + t.err.Error() }
func (t *tagged) Unwrap() error { return t.err }

func errTagged(tag string, err error) error {
	return &tagged{tag: tag, err: err}
}
