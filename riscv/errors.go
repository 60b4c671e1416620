// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package riscv

import "fmt"

// OperationError is a single failed target operation (timeout, abstract
// command error, insufficient resources). The caller (typically an RSP
// command handler) converts this into an RSP error response and continues
// the session.
type OperationError struct {
	Message string
}

func (e *OperationError) Error() string { return e.Message }

func opErrorf(format string, args ...any) error {
	return &OperationError{Message: fmt.Sprintf(format, args...)}
}

// IllegalMemoryAccessError is a distinguished OperationError subtype: the
// target itself refused the access (an abstract command "exception"),
// as opposed to a communication or resource failure.
type IllegalMemoryAccessError struct{}

func (e *IllegalMemoryAccessError) Error() string { return "illegal memory access" }

// FailureError is fatal: an invariant was broken (e.g. a preserved CPU
// register could not be restored after a program-buffer operation
// clobbered it) and the target is left in an undefined state. The enclosing
// system must shut down the session cleanly; this is never caught and
// converted into an RSP error response.
type FailureError struct {
	Message string
}

func (e *FailureError) Error() string { return e.Message }

func failuref(format string, args ...any) error {
	return &FailureError{Message: fmt.Sprintf(format, args...)}
}
