package supervisor

import (
	"fmt"
	"log"

	"github.com/momentics/webterm/internal/bridge"
	"github.com/momentics/webterm/internal/ksys"
	"github.com/momentics/webterm/internal/pty"
	"github.com/momentics/webterm/internal/wsproto"
)

// RunWorker is the body of a self re-exec'd worker process: perform the
// WebSocket handshake on ConnFD, spawn a PTY + shell, run the bridge, and
// tear the shell down. It assumes ConnFD and PreludeFD are already open,
// inherited from the supervisor.
func RunWorker(logger *log.Logger) error {
	defer ksys.Close(ConnFD)

	req, err := readPrelude()
	if err != nil {
		return fmt.Errorf("read prelude: %w", err)
	}

	if err := wsproto.DoHandshake(ConnFD, req); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	sess, err := pty.Spawn()
	if err != nil {
		return fmt.Errorf("pty spawn: %w", err)
	}
	defer sess.Terminate()

	if err := bridge.Run(ConnFD, sess.MasterFD, sess.ChildPID, logger); err != nil {
		logger.Printf("worker: bridge exited: %v", err)
	}
	return nil
}

// readPrelude drains PreludeFD to EOF and returns what was read: the HTTP
// request bytes the supervisor already consumed from the connection
// before deciding to fork this worker.
func readPrelude() ([]byte, error) {
	defer ksys.Close(PreludeFD)
	var buf [preludeBufSize]byte
	total := 0
	for total < len(buf) {
		n, err := ksys.Read(PreludeFD, buf[total:])
		if n > 0 {
			total += n
		}
		if err != nil || n == 0 {
			break
		}
	}
	return buf[:total], nil
}
