// Package pty allocates a master/slave pseudo-terminal pair and spawns an
// interactive shell on the slave side, as a session leader with that slave
// as its controlling terminal.
//
// A library like github.com/creack/pty does this in one call (pty.Start),
// but deliberately hides the allocate/fork/ioctl sequence behind a single
// function, which hides exactly the invariants this package needs to keep
// visible (TIOCGPTN, TIOCSPTLCK, the parent/child sync, the
// PR_SET_PDEATHSIG ordering) — so it is not used here (see DESIGN.md).
// Master/slave allocation below is hand-built directly on
// golang.org/x/sys/unix instead.
//
// The second fork (spawning /bin/sh on the slave) uses syscall.ForkExec
// with SysProcAttr{Setsid, Setctty, Pdeathsig}: the Go runtime's
// forkAndExecInChild already performs the fork + setsid + TIOCSCTTY +
// dup2 + execve sequence, synchronised back to the parent over an internal
// pipe that carries the child's errno on failure. Reimplementing that with
// a bare SYS_FORK would be unsafe under the Go scheduler (a process forked
// while other OS threads are running can deadlock if it does anything
// beyond async-signal-safe work before exec), so this is the idiomatic Go
// equivalent rather than a literal translation.
package pty

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

const shellPath = "/bin/sh"

// Session is a live PTY + shell pair, owned by exactly one worker process.
type Session struct {
	MasterFD int
	ChildPID int

	slaveFD int
}

// Spawn allocates a master/slave PTY pair and starts shellPath on the
// slave side, in its own session, with the slave as controlling terminal.
// On any failure, resources already acquired are closed before returning.
func Spawn() (*Session, error) {
	master, err := unix.Open("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/ptmx: %w", err)
	}

	n, err := unix.IoctlGetInt(master, unix.TIOCGPTN)
	if err != nil {
		unix.Close(master)
		return nil, fmt.Errorf("ioctl TIOCGPTN: %w", err)
	}

	// Clears the slave lock (this doubles as the "grant" step too, under a
	// permissive /dev/pts policy — no separate grantpt(3) semantics are
	// applied here). The kernel's pty_set_lock handler reads the lock value
	// through a user pointer, not by value, so this must go through
	// IoctlSetPointerInt rather than IoctlSetInt, or the call faults with
	// EFAULT on every invocation.
	if err := unix.IoctlSetPointerInt(master, unix.TIOCSPTLCK, 0); err != nil {
		unix.Close(master)
		return nil, fmt.Errorf("ioctl TIOCSPTLCK: %w", err)
	}

	slavePath := fmt.Sprintf("/dev/pts/%d", n)
	slave, err := unix.Open(slavePath, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		unix.Close(master)
		return nil, fmt.Errorf("open %s: %w", slavePath, err)
	}

	pid, err := syscall.ForkExec(shellPath, []string{shellPath}, &syscall.ProcAttr{
		Env:   nil,
		Files: []uintptr{uintptr(slave), uintptr(slave), uintptr(slave)},
		Sys: &syscall.SysProcAttr{
			Setsid:    true,
			Setctty:   true,
			Ctty:      0,
			Pdeathsig: syscall.SIGTERM,
		},
	})
	if err != nil {
		unix.Close(slave)
		unix.Close(master)
		return nil, fmt.Errorf("fork/exec %s: %w", shellPath, err)
	}

	// Set the shell as foreground process group on the slave. Like
	// TIOCSPTLCK above, TIOCSPGRP's handler reads the target pgrp through a
	// user pointer (get_user), so this also needs IoctlSetPointerInt.
	if err := unix.IoctlSetPointerInt(slave, unix.TIOCSPGRP, pid); err != nil {
		// Not fatal to the session: the shell still runs, just without
		// foreground job control semantics.
		_ = err
	}

	unix.Close(slave)

	return &Session{MasterFD: master, ChildPID: pid}, nil
}

// Terminate sends SIGTERM to the shell and blocks on its exit, escalating
// to SIGKILL followed by a non-blocking reap if the blocking wait fails.
// Always closes the master descriptor.
func (s *Session) Terminate() {
	defer unix.Close(s.MasterFD)

	proc, err := os.FindProcess(s.ChildPID)
	if err != nil {
		return
	}
	_ = proc.Signal(syscall.SIGTERM)

	if _, err := proc.Wait(); err != nil {
		_ = proc.Signal(syscall.SIGKILL)
		var ws unix.WaitStatus
		_, _ = unix.Wait4(s.ChildPID, &ws, unix.WNOHANG, nil)
	}
}
