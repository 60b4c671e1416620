// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsp

import (
	"github.com/bloomdbg/dbgbridge/target"
)

// breakpointTable tracks one of the two independent breakpoint sets a
// session maintains (internal, owned by the server for range-stepping; and
// external, requested by the client). The two tables are never consulted
// against each other: removing from one never affects the other, even for
// a shared address.
type breakpointTable map[target.Address]target.Breakpoint

func (t breakpointTable) insert(addr target.Address, bp target.Breakpoint) {
	t[addr] = bp
}

func (t breakpointTable) remove(addr target.Address) (target.Breakpoint, bool) {
	bp, ok := t[addr]
	delete(t, addr)
	return bp, ok
}

// Session holds all state for one attached GDB client: negotiated
// features, the two breakpoint tables, resume/interrupt bookkeeping, and
// any active auxiliary session (flash programming, range stepping).
//
// A Session is owned by exactly one Connection for its lifetime and is not
// safe for concurrent use - the server loop is single-threaded by design.
type Session struct {
	Features FeatureSet

	internalBreakpoints breakpointTable
	externalBreakpoints breakpointTable

	// WaitingForStop is true exactly when the last command handled was a
	// resume-like command (continue/step/range-step) without a subsequent
	// stop having been reported yet.
	WaitingForStop bool

	// PendingInterrupt is set when an interrupt byte arrives while the
	// client is waiting for a resumed target to stop; the bridge services
	// it on a running or stepping state by halting the target and
	// replying with signal 2.
	PendingInterrupt bool

	Flash     *FlashSession
	RangeStep *RangeStepSession

	NoAckMode bool
}

// NewSession creates an empty session with no breakpoints and no
// negotiated features.
func NewSession() *Session {
	return &Session{
		internalBreakpoints: breakpointTable{},
		externalBreakpoints: breakpointTable{},
	}
}

func (s *Session) InsertExternalBreakpoint(addr target.Address, bp target.Breakpoint) {
	s.externalBreakpoints.insert(addr, bp)
}

func (s *Session) RemoveExternalBreakpoint(addr target.Address) (target.Breakpoint, bool) {
	return s.externalBreakpoints.remove(addr)
}

func (s *Session) ExternalBreakpoint(addr target.Address) (target.Breakpoint, bool) {
	bp, ok := s.externalBreakpoints[addr]
	return bp, ok
}

func (s *Session) InsertInternalBreakpoint(addr target.Address, bp target.Breakpoint) {
	s.internalBreakpoints.insert(addr, bp)
}

func (s *Session) RemoveInternalBreakpoint(addr target.Address) (target.Breakpoint, bool) {
	return s.internalBreakpoints.remove(addr)
}

// InternalBreakpointAddresses returns every address currently holding an
// internal breakpoint.
func (s *Session) InternalBreakpointAddresses() []target.Address {
	addrs := make([]target.Address, 0, len(s.internalBreakpoints))
	for addr := range s.internalBreakpoints {
		addrs = append(addrs, addr)
	}
	return addrs
}
