package bridge

import (
	"log"
	"os"
	"os/exec"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// maskFrame builds a single masked binary-opcode frame carrying payload,
// the shape a real browser client would send.
func maskFrame(payload []byte, key [4]byte) []byte {
	frame := make([]byte, 0, 6+len(payload))
	frame = append(frame, 0x82, byte(0x80|len(payload)))
	frame = append(frame, key[:]...)
	for i, b := range payload {
		frame = append(frame, b^key[i%4])
	}
	return frame
}

// startDummyChild starts a process Run can safely signal without touching
// the test runner itself.
func startDummyChild(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("/bin/sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start dummy child: %v", err)
	}
	return cmd
}

func TestRunInterceptsCtrlC(t *testing.T) {
	wsA, wsB, err := socketpair(t)
	if err != nil {
		t.Fatalf("socketpair (ws): %v", err)
	}
	defer unix.Close(wsB)

	ptyA, ptyB, err := socketpair(t)
	if err != nil {
		t.Fatalf("socketpair (pty): %v", err)
	}
	defer unix.Close(ptyA)
	defer unix.Close(ptyB)

	child := startDummyChild(t)

	logger := log.New(os.Stderr, "test: ", 0)
	done := make(chan error, 1)
	go func() {
		done <- Run(wsA, ptyB, child.Process.Pid, logger)
	}()

	frame := maskFrame([]byte{0x03}, [4]byte{0xAA, 0xBB, 0xCC, 0xDD})
	if _, err := unix.Write(wsB, frame); err != nil {
		t.Fatalf("write ctrl-c frame: %v", err)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- child.Wait() }()

	select {
	case err := <-waitErr:
		if err == nil {
			t.Fatalf("expected dummy child to be interrupted, it exited cleanly")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("dummy child was not signalled within 2s")
	}

	unix.Close(wsB)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after ws peer closed")
	}

	buf := make([]byte, 16)
	if err := unix.SetNonblock(ptyA, true); err == nil {
		if n, _ := unix.Read(ptyA, buf); n > 0 {
			t.Errorf("ctrl-c byte was forwarded to pty, got %q", buf[:n])
		}
	}
}

func TestRunExitsOnPTYEOF(t *testing.T) {
	wsA, wsB, err := socketpair(t)
	if err != nil {
		t.Fatalf("socketpair (ws): %v", err)
	}
	defer unix.Close(wsA)
	defer unix.Close(wsB)

	ptyA, ptyB, err := socketpair(t)
	if err != nil {
		t.Fatalf("socketpair (pty): %v", err)
	}
	defer unix.Close(ptyA)

	child := startDummyChild(t)
	defer child.Process.Kill()
	defer child.Wait()

	logger := log.New(os.Stderr, "test: ", 0)
	done := make(chan error, 1)
	go func() {
		done <- Run(wsA, ptyB, child.Process.Pid, logger)
	}()

	unix.Close(ptyA)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error on pty EOF: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after pty EOF")
	}
}

func socketpair(t *testing.T) (int, int, error) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}
