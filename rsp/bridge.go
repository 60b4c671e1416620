// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsp

import (
	"context"
	"fmt"

	"github.com/bloomdbg/dbgbridge/target"
)

const (
	signalTrap        = 5
	signalInterrupted = 2
)

// StateBridge turns target.StateChange events into GDB stop-reply
// packets. It holds no connection of its own; OnStateChange is called by
// the session loop with whatever StateChange it drained from the
// target-controller service's event channel, and returns the stop-reply
// body to send, or nil if the transition produced no reply.
type StateBridge struct {
	svc target.Service
}

func NewStateBridge(svc target.Service) *StateBridge {
	return &StateBridge{svc: svc}
}

// OnStateChange turns a drained target.StateChange into the stop-reply
// packet the session loop should send, if any. It may itself drive the
// target (re-issuing a halt to service a pending interrupt), so it takes a
// context and can return an error; a FatalTargetError here must propagate
// out of the session loop and end the server.
func (b *StateBridge) OnStateChange(ctx context.Context, sess *Session, change target.StateChange) ([]byte, error) {
	switch change.Current {
	case target.ExecutionStateStopped:
		if !sess.WaitingForStop {
			return nil, nil
		}

		if sess.RangeStep != nil && sess.RangeStep.SingleStepFallback && !sess.PendingInterrupt {
			pc, err := b.readPC(ctx)
			if err != nil {
				return nil, err
			}
			if sess.RangeStep.InRange(pc) {
				if err := b.svc.Step(ctx, nil); err != nil {
					sess.WaitingForStop = false
					sess.RangeStep = nil
					return nil, err
				}
				return nil, nil
			}
		}

		sess.WaitingForStop = false
		if sess.RangeStep != nil {
			b.terminateRangeStep(ctx, sess)
		}

		return b.stopReply(ctx, signalTrap)

	case target.ExecutionStateRunning, target.ExecutionStateStepping:
		if sess.WaitingForStop && sess.PendingInterrupt {
			if err := b.svc.Halt(ctx); err != nil {
				return nil, err
			}
			sess.PendingInterrupt = false
			sess.WaitingForStop = false
			if sess.RangeStep != nil {
				b.terminateRangeStep(ctx, sess)
			}
			return b.stopReply(ctx, signalInterrupted)
		}
		return nil, nil

	default:
		return nil, nil
	}
}

func (b *StateBridge) terminateRangeStep(ctx context.Context, sess *Session) {
	for _, addr := range sess.RangeStep.BreakpointAddresses {
		if _, ok := sess.RemoveInternalBreakpoint(addr); ok {
			_ = b.svc.ClearHardwareBreakpoint(ctx, addr)
		}
	}
	sess.RangeStep = nil
}

// stopReply builds a GDB "T" stop-reply packet carrying the given signal
// and the target's current program-counter register, annotated with its
// GDB register number: its index in the architecture's register layout
// (the last entry), written as two hex digits.
func (b *StateBridge) stopReply(ctx context.Context, signal int) ([]byte, error) {
	desc := b.svc.Descriptor()
	layout := registerLayout(desc.Architecture)
	pcIndex := len(layout) - 1
	values, err := b.svc.ReadRegisters(ctx, []target.RegisterDescriptor{layout[pcIndex]})
	if err != nil {
		return nil, err
	}

	return []byte(fmt.Sprintf("T%02x%02x:%s;", signal, pcIndex, DataToHex(values[0].Data))), nil
}

// readPC reads the target's current program-counter value as a target
// address, for range-step bound checking under the single-step fallback.
func (b *StateBridge) readPC(ctx context.Context) (target.Address, error) {
	desc := b.svc.Descriptor()
	layout := registerLayout(desc.Architecture)
	pcIndex := len(layout) - 1
	values, err := b.svc.ReadRegisters(ctx, []target.RegisterDescriptor{layout[pcIndex]})
	if err != nil {
		return 0, err
	}
	return target.Address(leBytesToUint32(values[0].Data)), nil
}
