// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package riscv

import (
	"context"
	"time"

	"github.com/bloomdbg/dbgbridge/target"
)

// responsePollInterval is how long Translator sleeps between busy-bit polls
// while an abstract command is executing.
const responsePollInterval = time.Millisecond

// dtm wraps a target.DebugTransportModule with the debug-module register
// read/write helpers the translator needs, plus response-timeout handling.
type dtm struct {
	transport      target.DebugTransportModule
	responseTimeout time.Duration
}

func newDTM(transport target.DebugTransportModule, timeout time.Duration) *dtm {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &dtm{transport: transport, responseTimeout: timeout}
}

func (d *dtm) readRegister(ctx context.Context, addr uint32) (uint32, error) {
	v, err := d.transport.ReadRegister(addr)
	if err != nil {
		return 0, opErrorf("failed to read debug module register 0x%x: %v", addr, err)
	}
	return v, nil
}

func (d *dtm) writeRegister(ctx context.Context, addr uint32, value uint32) error {
	if err := d.transport.WriteRegister(addr, value); err != nil {
		return opErrorf("failed to write debug module register 0x%x: %v", addr, err)
	}
	return nil
}

func (d *dtm) readControl(ctx context.Context) (ControlRegister, error) {
	v, err := d.readRegister(ctx, RegAddrControl)
	if err != nil {
		return ControlRegister{}, err
	}
	return ControlRegisterFromValue(v), nil
}

func (d *dtm) writeControl(ctx context.Context, c ControlRegister) error {
	return d.writeRegister(ctx, RegAddrControl, c.Value())
}

func (d *dtm) readStatus(ctx context.Context) (StatusRegister, error) {
	v, err := d.readRegister(ctx, RegAddrStatus)
	if err != nil {
		return StatusRegister{}, err
	}
	return StatusRegisterFromValue(v), nil
}

func (d *dtm) readAbstractControlStatus(ctx context.Context) (AbstractControlStatusRegister, error) {
	v, err := d.readRegister(ctx, RegAddrAbstractControlStatus)
	if err != nil {
		return AbstractControlStatusRegister{}, err
	}
	return AbstractControlStatusFromValue(v), nil
}

func (d *dtm) clearAbstractCommandError(ctx context.Context) error {
	return d.writeRegister(ctx, RegAddrAbstractControlStatus, clearCommandErrorValue)
}

// tryExecuteAbstractCommand writes the command register and polls abstractcs
// until the busy bit clears or the response timeout elapses. It returns the
// resulting command error (clearing it on the device first), never an
// operation error for a non-NONE cmderr - that is the caller's decision.
func (d *dtm) tryExecuteAbstractCommand(ctx context.Context, command uint32) (AbstractCommandError, error) {
	if err := d.writeRegister(ctx, RegAddrAbstractCommand, command); err != nil {
		return 0, err
	}

	status, err := d.readAbstractControlStatus(ctx)
	if err != nil {
		return 0, err
	}

	deadline := time.Now().Add(d.responseTimeout)
	for status.Busy && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(responsePollInterval):
		}
		status, err = d.readAbstractControlStatus(ctx)
		if err != nil {
			return 0, err
		}
	}

	if status.Busy {
		return 0, opErrorf("abstract command took too long to execute")
	}

	if status.CommandError != AbstractCmdErrNone {
		if err := d.clearAbstractCommandError(ctx); err != nil {
			return 0, err
		}
	}

	return status.CommandError, nil
}

func (d *dtm) executeAbstractCommand(ctx context.Context, command uint32) error {
	commandError, err := d.tryExecuteAbstractCommand(ctx, command)
	if err != nil {
		return err
	}
	if commandError != AbstractCmdErrNone {
		return opErrorf("failed to execute abstract command - error: %s", commandError)
	}
	return nil
}

func (d *dtm) tryReadRegisterByNumber(ctx context.Context, number RegisterNumber, postExecute bool) (uint32, AbstractCommandError, error) {
	commandError, err := d.tryExecuteAbstractCommand(ctx, RegisterAccessCommand(RegisterAccessControl{
		RegNo:       uint16(number),
		Transfer:    true,
		PostExecute: postExecute,
		Size:        RegisterAccessSize32,
	}))
	if err != nil {
		return 0, 0, err
	}
	if commandError != AbstractCmdErrNone {
		return 0, commandError, nil
	}

	v, err := d.readRegister(ctx, RegAddrData0)
	return v, AbstractCmdErrNone, err
}

func (d *dtm) readRegisterByNumber(ctx context.Context, number RegisterNumber) (uint32, error) {
	v, commandError, err := d.tryReadRegisterByNumber(ctx, number, false)
	if err != nil {
		return 0, err
	}
	if commandError != AbstractCmdErrNone {
		return 0, opErrorf("failed to read CPU register 0x%x - abstract command error: %s", number, commandError)
	}
	return v, nil
}

func (d *dtm) tryWriteRegisterByNumber(ctx context.Context, number RegisterNumber, value uint32, postExecute bool) (AbstractCommandError, error) {
	if err := d.writeRegister(ctx, RegAddrData0, value); err != nil {
		return 0, err
	}
	return d.tryExecuteAbstractCommand(ctx, RegisterAccessCommand(RegisterAccessControl{
		RegNo:       uint16(number),
		Write:       true,
		Transfer:    true,
		PostExecute: postExecute,
		Size:        RegisterAccessSize32,
	}))
}

func (d *dtm) writeRegisterByNumber(ctx context.Context, number RegisterNumber, value uint32) error {
	commandError, err := d.tryWriteRegisterByNumber(ctx, number, value, false)
	if err != nil {
		return err
	}
	if commandError != AbstractCmdErrNone {
		return opErrorf("failed to write CPU register 0x%x - abstract command error: %s", number, commandError)
	}
	return nil
}

func (d *dtm) writeProgramBuffer(ctx context.Context, opcodes []Opcode) error {
	addr := RegAddrProgramBuffer0
	for _, op := range opcodes {
		if err := d.writeRegister(ctx, addr, uint32(op)); err != nil {
			return err
		}
		addr++
	}
	return nil
}
