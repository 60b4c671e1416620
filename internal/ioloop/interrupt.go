// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ioloop

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// Interrupt is an eventfd-backed signal that can wake a Notifier.Wait call
// blocked on accept/read/write from another goroutine - the one place this
// server needs cross-goroutine coordination (a forwarded target
// state change, or a shutdown request).
type Interrupt struct {
	fd int
}

// NewInterrupt creates an eventfd in non-semaphore counter mode.
func NewInterrupt() (*Interrupt, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("ioloop: failed to create eventfd: %w", err)
	}
	return &Interrupt{fd: fd}, nil
}

// FD returns the underlying file descriptor, for registration with a
// Notifier.
func (i *Interrupt) FD() int {
	return i.fd
}

// Signal wakes up anything blocked on this interrupt's fd in a Notifier.
func (i *Interrupt) Signal() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(i.fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("ioloop: failed to signal eventfd: %w", err)
	}
	return nil
}

// Drain clears the pending counter after a wakeup, so the next Wait call
// doesn't spuriously return immediately.
func (i *Interrupt) Drain() error {
	var buf [8]byte
	_, err := unix.Read(i.fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("ioloop: failed to drain eventfd: %w", err)
	}
	return nil
}

// Close releases the eventfd.
func (i *Interrupt) Close() error {
	return unix.Close(i.fd)
}
