// Package ksys is the syscall layer: thin typed wrappers over the POSIX
// entry points the rest of webterm needs (listening sockets, epoll,
// signalfd, anonymous mmap). Each wrapper makes the kernel calls for one
// operation (most make a single call; TCPListen, NewSignalFD and SendAll
// make several) plus the bookkeeping needed to return a Go error instead
// of a raw errno.
//
// Nothing in this package retries on EINTR; callers sit behind an
// epoll_wait and re-enter on the next readable event instead.
package ksys
