package ksys

import "golang.org/x/sys/unix"

// SendAll writes the whole of b to fd, re-entering the write on short
// writes. Used for the handshake response and outbound frame
// header/payload sends, where a short write must not drop the tail.
func SendAll(fd int, b []byte) error {
	for len(b) > 0 {
		n, err := unix.Write(fd, b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// Read reads once into b, returning the same (n, err) shape as the raw
// syscall: n==0 with err==nil means EOF.
func Read(fd int, b []byte) (int, error) {
	return unix.Read(fd, b)
}

// Recv performs a single non-blocking-agnostic recv on a socket.
func Recv(fd int, b []byte) (int, error) {
	return unix.Read(fd, b)
}

// Pipe creates a close-on-exec pipe, returning (readFD, writeFD).
func Pipe() (int, int, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}
