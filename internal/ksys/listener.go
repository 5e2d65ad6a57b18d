package ksys

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ListenBacklog is the fixed backlog for the listening socket.
const ListenBacklog = 128

// TCPListen creates a non-blocking-free, close-on-exec stream socket bound
// to 0.0.0.0:port with SO_REUSEADDR set, and puts it into the listening
// state. The returned descriptor is owned by the caller; close it on every
// exit path.
func TCPListen(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	closeOnErr := func(err error) (int, error) {
		unix.Close(fd)
		return -1, err
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return closeOnErr(fmt.Errorf("setsockopt SO_REUSEADDR: %w", err))
	}

	sa := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, sa); err != nil {
		return closeOnErr(fmt.Errorf("bind: %w", err))
	}
	if err := unix.Listen(fd, ListenBacklog); err != nil {
		return closeOnErr(fmt.Errorf("listen: %w", err))
	}
	return fd, nil
}

// Accept accepts one connection off a listening socket, setting
// close-on-exec on the returned descriptor (accept4 with SOCK_CLOEXEC).
// The listener from TCPListen is a blocking socket, so the call waits for
// a pending connection; any accept4 error is returned as (-1, err).
func Accept(listenFD int) (int, error) {
	connFD, _, err := unix.Accept4(listenFD, unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, err
	}
	return connFD, nil
}

// Close closes fd, swallowing EBADF so teardown paths can call it
// unconditionally on descriptors that may already be -1/invalid.
func Close(fd int) {
	if fd < 0 {
		return
	}
	_ = unix.Close(fd)
}
