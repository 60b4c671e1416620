// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsp

import "github.com/bloomdbg/dbgbridge/target"

// RangeStepSession holds the state of an active vCont;r range-stepping
// request: the half-open [Start, End) instruction-address range the
// target is permitted to run within, and the addresses at which this
// server placed internal breakpoints to catch the target leaving that
// range.
//
// A session is torn down when the target's stop is reported to the
// client: its internal breakpoints are removed via the owning Session's
// RemoveInternalBreakpoint, regardless of whether the stop happened to
// land inside or outside the range. Under SingleStepFallback, a stop whose
// PC is still inside [Start, End) is not reported; the target is stepped
// again instead.
type RangeStepSession struct {
	Start target.Address
	End   target.Address

	// BreakpointAddresses records every address this session placed an
	// internal breakpoint at, so they can all be removed on teardown even
	// if the exit-point analysis that produced them is not re-run.
	BreakpointAddresses []target.Address

	// SingleStepFallback is true when the session could not allocate
	// enough breakpoint resources to bound the range and is instead
	// advancing the target one instruction at a time, checking the PC
	// against [Start, End) after each step.
	SingleStepFallback bool
}

// NewRangeStepSession starts tracking a new range-stepping request. The
// caller is responsible for actually placing the internal breakpoints (or
// choosing the single-step fallback) and recording the addresses used via
// AddBreakpointAddress.
func NewRangeStepSession(start, end target.Address) *RangeStepSession {
	return &RangeStepSession{Start: start, End: end}
}

func (s *RangeStepSession) AddBreakpointAddress(addr target.Address) {
	s.BreakpointAddresses = append(s.BreakpointAddresses, addr)
}

// InRange reports whether pc lies within the session's stepping range.
func (s *RangeStepSession) InRange(pc target.Address) bool {
	return pc >= s.Start && pc < s.End
}
