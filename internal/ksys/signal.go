package ksys

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// SignalRecordSize is the size of one signalfd_siginfo record; only the
// leading 4-byte signal number (host byte order) is used by webterm.
const SignalRecordSize = 128

// SignalFD is a readable descriptor yielding queued signals as fixed-size
// records instead of delivering them asynchronously. NewSignalFD blocks the
// signals of interest in the calling thread before creating the
// descriptor, so that they are never delivered as an asynchronous handler.
type SignalFD struct {
	fd int
}

// NewSignalFD blocks the given signals in the calling OS thread and creates
// a signalfd for that same mask. Callers on a goroutine-based runtime must
// ensure the calling goroutine is locked to its OS thread for the duration
// the block needs to hold (the mask is a per-thread property on Linux, so
// signals stay blocked only on the thread that called NewSignalFD).
func NewSignalFD(signals ...unix.Signal) (*SignalFD, error) {
	var set unix.Sigset_t
	for _, s := range signals {
		addSignal(&set, s)
	}
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil); err != nil {
		return nil, fmt.Errorf("rt_sigprocmask: %w", err)
	}
	fd, err := unix.Signalfd(-1, &set, unix.SFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("signalfd4: %w", err)
	}
	return &SignalFD{fd: fd}, nil
}

// addSignal sets the bit for sig in a Sigset_t. golang.org/x/sys/unix does
// not expose a portable sigaddset helper for Sigset_t, so this follows the
// same bit layout the kernel uses (signal n sets bit n-1) directly against
// the exported Val array.
func addSignal(set *unix.Sigset_t, sig unix.Signal) {
	n := uint(sig) - 1
	word := n / 64
	bit := n % 64
	if int(word) < len(set.Val) {
		set.Val[word] |= 1 << bit
	}
}

// FD returns the underlying descriptor, for registering with a ReadinessSet.
func (s *SignalFD) FD() int { return s.fd }

// ReadSignal reads one pending signal number off the descriptor. Returns
// (0, err) if nothing could be read (e.g. EAGAIN on a non-blocking fd).
func (s *SignalFD) ReadSignal() (unix.Signal, error) {
	var rec [SignalRecordSize]byte
	n, err := unix.Read(s.fd, rec[:])
	if err != nil {
		return 0, err
	}
	if n < 4 {
		return 0, fmt.Errorf("short signalfd read: %d bytes", n)
	}
	return unix.Signal(binary.NativeEndian.Uint32(rec[0:4])), nil
}

// Close releases the signalfd.
func (s *SignalFD) Close() error {
	return unix.Close(s.fd)
}
