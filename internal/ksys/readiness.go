package ksys

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ReadinessSet is a level-triggered epoll instance, trimmed to the single
// operation webterm needs: "tell me which of these descriptors are
// readable".
type ReadinessSet struct {
	epfd int
}

// NewReadinessSet creates a fresh epoll instance.
func NewReadinessSet() (*ReadinessSet, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &ReadinessSet{epfd: epfd}, nil
}

// AddReadable registers fd for level-triggered readable events.
func (r *ReadinessSet) AddReadable(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add %d: %w", fd, err)
	}
	return nil
}

// Remove drops fd from the interest set.
func (r *ReadinessSet) Remove(fd int) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll_ctl del %d: %w", fd, err)
	}
	return nil
}

// Wait blocks indefinitely (timeoutMs < 0) or up to timeoutMs and returns
// the descriptors that became readable. EINTR is surfaced as an empty,
// nil-error result so callers can just loop.
func (r *ReadinessSet) Wait(timeoutMs int) ([]int, error) {
	var events [64]unix.EpollEvent
	n, err := unix.EpollWait(r.epfd, events[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("epoll_wait: %w", err)
	}
	ready := make([]int, n)
	for i := 0; i < n; i++ {
		ready[i] = int(events[i].Fd)
	}
	return ready, nil
}

// Close releases the epoll descriptor.
func (r *ReadinessSet) Close() error {
	return unix.Close(r.epfd)
}
