// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ioloop provides an epoll-backed readiness primitive used to
// multiplex a listening socket, a connected client socket, and an
// interrupt eventfd inside a single-threaded accept/read/write loop.
package ioloop

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Event is a readiness bit, mirroring the epoll event mask.
type Event uint32

const (
	ReadReady  Event = unix.EPOLLIN
	WriteReady Event = unix.EPOLLOUT
)

// Notifier is an RAII-style wrapper around a single Linux epoll instance.
// It is not safe for concurrent use.
type Notifier struct {
	epollFD int
}

// New creates a fresh epoll instance.
func New() (*Notifier, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("ioloop: failed to create epoll instance: %w", err)
	}
	return &Notifier{epollFD: fd}, nil
}

// Add registers fd for the given event mask.
func (n *Notifier) Add(fd int, events Event) error {
	err := unix.EpollCtl(n.epollFD, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: uint32(events),
		Fd:     int32(fd),
	})
	if err != nil {
		return fmt.Errorf("ioloop: failed to add fd %d to epoll instance: %w", fd, err)
	}
	return nil
}

// Remove deregisters fd. It is not an error to remove an fd that was never
// added or has already been closed.
func (n *Notifier) Remove(fd int) error {
	err := unix.EpollCtl(n.epollFD, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT && err != unix.EBADF {
		return fmt.Errorf("ioloop: failed to remove fd %d from epoll instance: %w", fd, err)
	}
	return nil
}

// Wait blocks until an event occurs on one of the registered descriptors,
// or timeout elapses (a zero timeout means wait forever). It returns the
// ready file descriptor, or -1 if the wait timed out.
func (n *Notifier) Wait(timeout time.Duration) (int, error) {
	var events [8]unix.EpollEvent

	ms := -1
	if timeout > 0 {
		ms = int(timeout.Milliseconds())
	}

	for {
		count, err := unix.EpollWait(n.epollFD, events[:], ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, fmt.Errorf("ioloop: epoll_wait failed: %w", err)
		}
		if count == 0 {
			return -1, nil
		}
		return int(events[0].Fd), nil
	}
}

// Close releases the epoll instance's file descriptor.
func (n *Notifier) Close() error {
	return unix.Close(n.epollFD)
}
