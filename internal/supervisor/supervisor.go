// Package supervisor implements the accept/supervise loop: a
// single-threaded event loop over a readiness set that multiplexes the
// listening socket and a signal descriptor, admits connections up to
// MAX_WORKERS, forks a worker per admitted upgrade, and reaps exited
// workers on SIGCHLD.
//
// The control-flow shape — one epoll instance, a switch over which
// descriptor became readable, per-case handling — is the same shape as a
// plain accept loop built directly on net.TCPListener.AcceptTCP,
// generalized from "echo the payload" to "classify the request and either
// fork a worker or serve the HTML asset".
package supervisor

import (
	"fmt"
	"log"
	"syscall"

	"github.com/momentics/webterm/internal/control"
	"github.com/momentics/webterm/internal/htmlasset"
	"github.com/momentics/webterm/internal/httpreq"
	"github.com/momentics/webterm/internal/ksys"
	"golang.org/x/sys/unix"
)

// WorkerFlag is the argv marker a self re-exec'd process uses to select
// worker mode instead of re-entering the supervisor's accept loop. Self
// re-exec is used here rather than a bare fork(2): a process forked while
// other Go-scheduled OS threads are running can deadlock (only the
// calling thread survives the fork), so the worker fork re-execs a fresh
// copy of the running binary instead and branches on this marker.
const WorkerFlag = "-worker"

// Inherited file descriptors a worker process is started with: stdio
// (0-2), the accepted client connection, and a pipe carrying the already
// consumed HTTP request-prelude bytes (the supervisor reads the prelude
// itself to classify the request before deciding to fork; a self re-exec
// child has an entirely fresh memory image and cannot see the parent's
// read buffer the way a true fork(2) child would, so those bytes are
// handed across this extra descriptor instead).
const (
	ConnFD    = 3
	PreludeFD = 4
)

const preludeBufSize = 8192

type Supervisor struct {
	cfg      control.Config
	logger   *log.Logger
	selfPath string

	listenFD int
	rs       *ksys.ReadinessSet
	sigFD    *ksys.SignalFD
	workers  *workerSet
}

// Run bootstraps the listener and readiness set and runs the accept loop
// until a shutdown signal is observed or a fatal setup error occurs.
func Run(cfg control.Config, logger *log.Logger, selfPath string) error {
	s := &Supervisor{cfg: cfg, logger: logger, selfPath: selfPath, workers: newWorkerSet()}

	listenFD, err := ksys.TCPListen(cfg.Port)
	if err != nil {
		return fmt.Errorf("listener: %w", err)
	}
	s.listenFD = listenFD
	defer ksys.Close(s.listenFD)

	rs, err := ksys.NewReadinessSet()
	if err != nil {
		return fmt.Errorf("readiness set: %w", err)
	}
	s.rs = rs
	defer rs.Close()

	if err := rs.AddReadable(listenFD); err != nil {
		return fmt.Errorf("readiness set: %w", err)
	}

	if sfd, serr := ksys.NewSignalFD(unix.SIGINT, unix.SIGTERM, unix.SIGCHLD); serr == nil {
		s.sigFD = sfd
		defer sfd.Close()
		if err := rs.AddReadable(sfd.FD()); err != nil {
			return fmt.Errorf("readiness set: %w", err)
		}
	} else {
		logger.Printf("supervisor: signalfd unavailable, continuing without it: %v", serr)
	}

	logger.Printf("supervisor: listening on 0.0.0.0:%d (max workers %d)", cfg.Port, cfg.MaxWorkers)

	for {
		ready, err := s.rs.Wait(-1)
		if err != nil {
			return fmt.Errorf("epoll_wait: %w", err)
		}

		shutdown := false
		for _, fd := range ready {
			switch {
			case s.sigFD != nil && fd == s.sigFD.FD():
				if s.handleSignal() {
					shutdown = true
				}
			case fd == s.listenFD:
				s.handleAccept()
			}
		}
		if shutdown {
			logger.Printf("supervisor: shutting down")
			return nil
		}
	}
}

// handleSignal drains one signal record and acts on it, returning true iff
// the supervisor should stop its accept loop.
func (s *Supervisor) handleSignal() bool {
	sig, err := s.sigFD.ReadSignal()
	if err != nil {
		return false
	}
	switch sig {
	case unix.SIGCHLD:
		s.reapChildren()
		return false
	case unix.SIGINT, unix.SIGTERM:
		return true
	default:
		return false
	}
}

// reapChildren drains wait4(-1, WNOHANG) until it reports no more exited
// children, decrementing the worker count for each one reaped. A single
// wait would miss children that exited between two SIGCHLD observations,
// so this must loop, not check once.
func (s *Supervisor) reapChildren() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		s.workers.remove(pid)
		s.logger.Printf("supervisor: reaped worker %d (active %d)", pid, s.workers.len())
	}
}

// handleAccept accepts one connection, classifies its HTTP prelude, and
// either forks a worker, refuses at capacity, or serves the HTML asset.
func (s *Supervisor) handleAccept() {
	connFD, err := ksys.Accept(s.listenFD)
	if err != nil {
		s.logger.Printf("supervisor: accept: %v", err)
		return
	}

	var buf [preludeBufSize]byte
	n, err := ksys.Recv(connFD, buf[:])
	if err != nil || n == 0 {
		ksys.Close(connFD)
		return
	}
	req := buf[:n]

	if !httpreq.IsWebSocketUpgrade(req) || !httpreq.PathIsTerm(req) {
		s.serveHTML(connFD)
		ksys.Close(connFD)
		return
	}

	if s.workers.len() >= s.cfg.MaxWorkers {
		s.logger.Printf("supervisor: at capacity (%d), refusing upgrade", s.cfg.MaxWorkers)
		_ = ksys.SendAll(connFD, []byte("HTTP/1.1 503 Service Unavailable\r\nContent-Length: 0\r\n\r\n"))
		ksys.Close(connFD)
		return
	}

	pid, err := s.spawnWorker(connFD, req)
	ksys.Close(connFD)
	if err != nil {
		s.logger.Printf("supervisor: fork worker: %v", err)
		return
	}
	s.workers.add(pid)
	s.logger.Printf("supervisor: forked worker %d (active %d)", pid, s.workers.len())
}

// serveHTML writes the fixed 200 response carrying the embedded page.
func (s *Supervisor) serveHTML(connFD int) {
	body := htmlasset.Page()
	header := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nContent-Type: text/html; charset=utf-8\r\nContent-Length: %d\r\nConnection: close\r\n\r\n",
		len(body),
	)
	if err := ksys.SendAll(connFD, []byte(header)); err != nil {
		s.logger.Printf("supervisor: send html header: %v", err)
		return
	}
	if err := ksys.SendAll(connFD, body); err != nil {
		s.logger.Printf("supervisor: send html body: %v", err)
	}
}

// spawnWorker self re-execs the running binary in worker mode, handing it
// the accepted connection on ConnFD and the already-read request prelude
// on PreludeFD. See the ConnFD/PreludeFD comment for why a prelude pipe
// exists at all.
func (s *Supervisor) spawnWorker(connFD int, req []byte) (int, error) {
	pr, pw, err := ksys.Pipe()
	if err != nil {
		return 0, fmt.Errorf("pipe: %w", err)
	}

	pid, err := syscall.ForkExec(s.selfPath, []string{s.selfPath, WorkerFlag}, &syscall.ProcAttr{
		Files: []uintptr{0, 1, 2, uintptr(connFD), uintptr(pr)},
	})
	ksys.Close(pr)
	if err != nil {
		ksys.Close(pw)
		return 0, err
	}

	if werr := ksys.SendAll(pw, req); werr != nil {
		s.logger.Printf("supervisor: write prelude to worker %d: %v", pid, werr)
	}
	ksys.Close(pw)

	return pid, nil
}
