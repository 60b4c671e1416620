// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsp

import (
	"context"
	"fmt"

	"github.com/bloomdbg/dbgbridge/target"
)

// errReplyOK is the canned "OK" reply a handler can return without
// constructing a byte slice inline.
var errReplyOK = []byte("OK")

// registerLayout returns the GDB-order register descriptors for the
// attached target's architecture.
func registerLayout(arch string) []target.RegisterDescriptor {
	if arch == "riscv" {
		return RiscVRegisterDescriptors()
	}
	return AVRRegisterDescriptors()
}

// decodeAddress splits a raw GDB address into a target address and its
// address space, per the attached architecture's encoding.
func decodeAddress(arch string, raw uint32) (target.Address, target.AddressSpace) {
	if arch == "riscv" {
		return target.Address(raw), target.AddressSpaceSystem
	}
	return DecodeAVRAddress(raw)
}

func encodeAddress(arch string, addr target.Address, space target.AddressSpace) uint32 {
	if arch == "riscv" {
		return uint32(addr)
	}
	return EncodeAVRAddress(addr, space)
}

// preferredBreakpointType applies the per-architecture breakpoint policy:
// AVR flash breakpoints are always hardware; RISC-V is hardware-only
// except in a region known to be RAM, where software breakpoints are
// cheaper and do not consume a scarce trigger.
func preferredBreakpointType(desc target.Descriptor, space target.AddressSpace, addr target.Address) target.BreakpointType {
	if desc.Architecture == "riscv" {
		if ram, ok := desc.MemorySegments[target.AddressSpaceSRAM]; ok && ram.Contains(addr) {
			return target.BreakpointSoftware
		}
		return target.BreakpointHardware
	}
	return target.BreakpointHardware
}

// Handle executes cmd against svc within session sess, returning the raw
// (unescaped) response body to send back to the client. A nil body with a
// nil error means no reply should be sent (the response arrives later via
// the state bridge).
func Handle(ctx context.Context, sess *Session, cmd *Command, svc target.Service, packetSize int) ([]byte, error) {
	desc := svc.Descriptor()

	switch cmd.Kind {
	case CmdSupportedFeaturesQuery:
		if err := Negotiate(cmd.ClientFeatures); err != nil {
			return nil, err
		}
		sess.Features = cmd.ClientFeatures
		return []byte(ServerCapabilities(packetSize)), nil

	case CmdMemoryMapRead:
		return []byte("l"), nil

	case CmdStartNoAckMode:
		sess.NoAckMode = true
		return errReplyOK, nil

	case CmdMonitor:
		return handleMonitor(ctx, sess, cmd.MonitorText, svc)

	case CmdVCont:
		return handleVCont(ctx, sess, cmd, svc)

	case CmdSetBreakpoint:
		return handleSetBreakpoint(ctx, sess, cmd, svc, desc)

	case CmdRemoveBreakpoint:
		return handleRemoveBreakpoint(ctx, sess, cmd, svc)

	case CmdReadRegisters:
		return handleReadRegisters(ctx, desc, svc)

	case CmdWriteRegisters:
		return handleWriteRegisters(ctx, desc, svc, cmd)

	case CmdReadRegister:
		return handleReadRegister(ctx, desc, svc, cmd)

	case CmdWriteRegister:
		return handleWriteRegister(ctx, desc, svc, cmd)

	case CmdReadMemory:
		return handleReadMemory(ctx, desc, svc, cmd)

	case CmdWriteMemory:
		return handleWriteMemory(ctx, desc, svc, cmd)

	case CmdFlashErase:
		return handleFlashErase(sess, cmd)

	case CmdFlashWrite:
		return handleFlashWrite(sess, cmd)

	case CmdFlashDone:
		return handleFlashDone(ctx, sess, svc)

	case CmdDetach:
		return nil, &detachRequested{}

	case CmdQueryStopReason:
		return []byte("S05"), nil

	default:
		return []byte{}, nil
	}
}

// detachRequested signals the session loop to close the connection after
// acking. It is not a failure.
type detachRequested struct{}

func (e *detachRequested) Error() string { return "client detached" }

func handleVCont(ctx context.Context, sess *Session, cmd *Command, svc target.Service) ([]byte, error) {
	switch cmd.VCont {
	case VContRangeStep:
		rs := NewRangeStepSession(cmd.RangeStart, cmd.RangeEnd)
		if err := svc.SetHardwareBreakpoint(ctx, cmd.RangeEnd, 0); err != nil {
			rs.SingleStepFallback = true
		} else {
			sess.InsertInternalBreakpoint(cmd.RangeEnd, target.Breakpoint{Address: cmd.RangeEnd, Type: target.BreakpointHardware})
			rs.AddBreakpointAddress(cmd.RangeEnd)
		}
		sess.RangeStep = rs
		sess.WaitingForStop = true

		var err error
		if rs.SingleStepFallback {
			err = svc.Step(ctx, nil)
		} else {
			err = svc.Run(ctx, nil)
		}
		if err != nil {
			sess.WaitingForStop = false
			sess.RangeStep = nil
			return nil, err
		}
		return nil, nil

	case VContStep:
		sess.WaitingForStop = true
		if err := svc.Step(ctx, cmd.VContAddr); err != nil {
			sess.WaitingForStop = false
			return nil, err
		}
		return nil, nil

	default: // VContContinue
		sess.WaitingForStop = true
		if err := svc.Run(ctx, cmd.VContAddr); err != nil {
			sess.WaitingForStop = false
			return nil, err
		}
		return nil, nil
	}
}

func handleSetBreakpoint(ctx context.Context, sess *Session, cmd *Command, svc target.Service, desc target.Descriptor) ([]byte, error) {
	_, space := decodeAddress(desc.Architecture, uint32(cmd.BreakpointAddr))
	bpType := preferredBreakpointType(desc, space, cmd.BreakpointAddr)

	var err error
	if bpType == target.BreakpointHardware {
		err = svc.SetHardwareBreakpoint(ctx, cmd.BreakpointAddr, cmd.BreakpointSize)
	} else {
		err = svc.SetSoftwareBreakpoint(ctx, cmd.BreakpointAddr, cmd.BreakpointSize)
	}
	if err != nil {
		return nil, err
	}

	sess.InsertExternalBreakpoint(cmd.BreakpointAddr, target.Breakpoint{
		Address: cmd.BreakpointAddr, Type: bpType, Size: cmd.BreakpointSize,
	})
	return errReplyOK, nil
}

func handleRemoveBreakpoint(ctx context.Context, sess *Session, cmd *Command, svc target.Service) ([]byte, error) {
	bp, ok := sess.RemoveExternalBreakpoint(cmd.BreakpointAddr)
	if !ok {
		return errReplyOK, nil
	}

	var err error
	if bp.Type == target.BreakpointHardware {
		err = svc.ClearHardwareBreakpoint(ctx, cmd.BreakpointAddr)
	} else {
		err = svc.ClearSoftwareBreakpoint(ctx, cmd.BreakpointAddr)
	}
	if err != nil {
		return nil, err
	}
	return errReplyOK, nil
}

func handleReadRegisters(ctx context.Context, desc target.Descriptor, svc target.Service) ([]byte, error) {
	layout := registerLayout(desc.Architecture)
	values, err := svc.ReadRegisters(ctx, layout)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(values)*8)
	for _, v := range values {
		out = append(out, []byte(DataToHex(v.Data))...)
	}
	return out, nil
}

func handleWriteRegisters(ctx context.Context, desc target.Descriptor, svc target.Service, cmd *Command) ([]byte, error) {
	layout := registerLayout(desc.Architecture)
	data, err := HexToData(string(cmd.WriteBuf))
	if err != nil {
		return nil, &ParseError{Reason: "malformed G payload"}
	}

	values := make([]target.RegisterValue, 0, len(layout))
	offset := 0
	for _, d := range layout {
		n := d.ByteSize()
		if offset+n > len(data) {
			break
		}
		values = append(values, target.RegisterValue{Descriptor: d, Data: data[offset : offset+n]})
		offset += n
	}
	if err := svc.WriteRegisters(ctx, values); err != nil {
		return nil, err
	}
	return errReplyOK, nil
}

func handleReadRegister(ctx context.Context, desc target.Descriptor, svc target.Service, cmd *Command) ([]byte, error) {
	layout := registerLayout(desc.Architecture)
	if cmd.RegisterNumber < 0 || cmd.RegisterNumber >= len(layout) {
		return nil, &OperationError{Reason: fmt.Sprintf("unknown register number %d", cmd.RegisterNumber)}
	}
	values, err := svc.ReadRegisters(ctx, []target.RegisterDescriptor{layout[cmd.RegisterNumber]})
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, &OperationError{Reason: "target returned unexpected register count"}
	}
	return []byte(DataToHex(values[0].Data)), nil
}

func handleWriteRegister(ctx context.Context, desc target.Descriptor, svc target.Service, cmd *Command) ([]byte, error) {
	layout := registerLayout(desc.Architecture)
	if cmd.RegisterNumber < 0 || cmd.RegisterNumber >= len(layout) {
		return nil, &OperationError{Reason: fmt.Sprintf("unknown register number %d", cmd.RegisterNumber)}
	}
	d := layout[cmd.RegisterNumber]
	data := make([]byte, d.ByteSize())
	for i := range data {
		data[i] = byte(cmd.RegisterValue >> (8 * i))
	}
	if err := svc.WriteRegisters(ctx, []target.RegisterValue{{Descriptor: d, Data: data}}); err != nil {
		return nil, err
	}
	return errReplyOK, nil
}

func handleReadMemory(ctx context.Context, desc target.Descriptor, svc target.Service, cmd *Command) ([]byte, error) {
	addr, space := decodeAddress(desc.Architecture, cmd.MemAddr)
	data, err := svc.ReadMemory(ctx, space, addr, target.Size(cmd.MemBytes), nil)
	if err != nil {
		return nil, err
	}
	return []byte(DataToHex(data)), nil
}

func handleWriteMemory(ctx context.Context, desc target.Descriptor, svc target.Service, cmd *Command) ([]byte, error) {
	addr, space := decodeAddress(desc.Architecture, cmd.MemAddr)
	if err := svc.WriteMemory(ctx, space, addr, cmd.WriteBuf); err != nil {
		return nil, err
	}
	return errReplyOK, nil
}

func handleFlashErase(sess *Session, cmd *Command) ([]byte, error) {
	if sess.Flash == nil {
		sess.Flash = NewFlashSession()
	}
	sess.Flash.RecordErase(target.AddressRange{Start: cmd.FlashAddr, Size: target.Size(cmd.MemBytes)})
	return errReplyOK, nil
}

func handleFlashWrite(sess *Session, cmd *Command) ([]byte, error) {
	if sess.Flash == nil {
		sess.Flash = NewFlashSession()
	}
	sess.Flash.RecordWrite(cmd.FlashAddr, cmd.FlashData)
	return errReplyOK, nil
}

func handleFlashDone(ctx context.Context, sess *Session, svc target.Service) ([]byte, error) {
	if sess.Flash == nil {
		return errReplyOK, nil
	}
	if err := svc.EnterProgrammingMode(ctx); err != nil {
		return nil, err
	}
	flushErr := sess.Flash.Flush(ctx, svc)
	if err := svc.LeaveProgrammingMode(ctx); err != nil && flushErr == nil {
		flushErr = err
	}
	sess.Flash = nil
	if flushErr != nil {
		return nil, flushErr
	}
	return errReplyOK, nil
}

// ErrorResponse formats an operation failure as the RSP "Ennn" two-digit
// error response; the illegal-memory-access subtype and all other
// operation failures alike map to E01, the generic operation-failed code
// this server advertises.
func ErrorResponse(code int) []byte {
	return []byte("E" + fmt.Sprintf("%02x", code))
}
