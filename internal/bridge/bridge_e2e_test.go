//go:build linux

package bridge

import (
	"bytes"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/momentics/webterm/internal/pty"
	"github.com/momentics/webterm/internal/wsproto"
	"golang.org/x/sys/unix"
)

// errShortFrame indicates the scanning helpers below found an incomplete
// frame header while hunting for the shell's echoed output; it never
// reaches the test assertions directly.
var errShortFrame = errors.New("short frame")

// TestBridgeEndToEndScenario exercises the full bridge session lifecycle:
// a real PTY-backed shell, a handshake computed over the RFC 6455 test
// vector, a masked binary frame carrying a shell command, a Ctrl-C frame,
// and a close frame — checked against one running bridge.
func TestBridgeEndToEndScenario(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	serverWS, clientWS := fds[0], fds[1]
	defer unix.Close(clientWS)

	// Handshake: the same request line and key as the RFC 6455 accept-key
	// test vector.
	req := []byte("GET /term HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\n" +
		"Connection: Upgrade\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n")
	if err := wsproto.DoHandshake(serverWS, req); err != nil {
		t.Fatalf("DoHandshake: %v", err)
	}

	resp := readAvailable(t, clientWS)
	if !bytes.Contains(resp, []byte("101 Switching Protocols")) {
		t.Fatalf("handshake response missing 101 status: %q", resp)
	}
	if !bytes.Contains(resp, []byte("Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=")) {
		t.Fatalf("handshake response missing expected accept key: %q", resp)
	}

	sess, err := pty.Spawn()
	if err != nil {
		t.Fatalf("pty.Spawn: %v", err)
	}
	defer sess.Terminate()

	logger := log.New(os.Stderr, "test: ", 0)
	done := make(chan error, 1)
	go func() {
		done <- Run(serverWS, sess.MasterFD, sess.ChildPID, logger)
	}()

	// Client sends a masked binary frame carrying a shell command.
	key := [4]byte{0x11, 0x22, 0x33, 0x44}
	if _, err := unix.Write(clientWS, maskFrame([]byte("echo hi\n"), key)); err != nil {
		t.Fatalf("write command frame: %v", err)
	}

	if !waitForUnmaskedFrame(t, clientWS, "hi\n", 3*time.Second) {
		t.Fatalf("did not observe shell output echoed back as a WS frame")
	}

	// Client sends a Ctrl-C frame; the byte must not reach the shell.
	if _, err := unix.Write(clientWS, maskFrame([]byte{0x03}, key)); err != nil {
		t.Fatalf("write ctrl-c frame: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	// Client sends a close frame; the bridge must exit cleanly.
	if _, err := unix.Write(clientWS, []byte{0x88, 0x80, 0x01, 0x02, 0x03, 0x04}); err != nil {
		t.Fatalf("write close frame: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error after close frame: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not exit after close frame")
	}
}

// readAvailable does one best-effort non-blocking-ish read of whatever is
// already queued on fd, retrying briefly if nothing has arrived yet.
func readAvailable(t *testing.T, fd int) []byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		buf := make([]byte, 4096)
		_ = unix.SetNonblock(fd, true)
		n, err := unix.Read(fd, buf)
		if n > 0 {
			return buf[:n]
		}
		if err != nil && err != unix.EAGAIN {
			t.Fatalf("read: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

// waitForUnmaskedFrame polls fd for a binary WS frame whose payload contains
// want, within timeout.
func waitForUnmaskedFrame(t *testing.T, fd int, want string, timeout time.Duration) bool {
	t.Helper()
	_ = unix.SetNonblock(fd, true)
	deadline := time.Now().Add(timeout)
	var collected bytes.Buffer
	for time.Now().Before(deadline) {
		buf := make([]byte, 4096)
		n, err := unix.Read(fd, buf)
		if n > 0 {
			collected.Write(buf[:n])
			if frameContainsPayload(collected.Bytes(), want) {
				return true
			}
		}
		if err != nil && err != unix.EAGAIN {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// frameContainsPayload scans raw, possibly-concatenated WS frame bytes for
// an unmasked binary frame (0x82 first byte) whose payload contains want.
func frameContainsPayload(raw []byte, want string) bool {
	out := make([]byte, 64*1024)
	for len(raw) > 0 {
		if raw[0] != 0x82 {
			raw = raw[1:]
			continue
		}
		payload, err := parseUnmaskedServerFrame(raw, out)
		if err != nil {
			raw = raw[1:]
			continue
		}
		if bytes.Contains(payload, []byte(want)) {
			return true
		}
		raw = raw[frameLen(raw):]
	}
	return false
}

// parseUnmaskedServerFrame decodes one server-originated (unmasked) binary
// frame, mirroring wsproto.ParseAndUnmaskFrame's 7-bit and 16-bit length
// decoding without requiring the MASK bit the client-side codec enforces.
// Frames with a 64-bit length are reported as errShortFrame.
func parseUnmaskedServerFrame(input, out []byte) ([]byte, error) {
	if len(input) < 2 {
		return nil, errShortFrame
	}
	length := int(input[1] & 0x7F)
	offset := 2
	switch length {
	case 126:
		if len(input) < 4 {
			return nil, errShortFrame
		}
		length = int(input[2])<<8 | int(input[3])
		offset = 4
	case 127:
		return nil, errShortFrame
	}
	if len(input) < offset+length {
		return nil, errShortFrame
	}
	copy(out, input[offset:offset+length])
	return out[:length], nil
}

func frameLen(raw []byte) int {
	if len(raw) < 2 {
		return len(raw)
	}
	length := int(raw[1] & 0x7F)
	offset := 2
	switch length {
	case 126:
		if len(raw) < 4 {
			return len(raw)
		}
		length = int(raw[2])<<8 | int(raw[3])
		offset = 4
	}
	total := offset + length
	if total > len(raw) {
		return len(raw)
	}
	return total
}
