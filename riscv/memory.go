// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package riscv

import "context"

// MemoryAccessStrategy is how the translator moves bytes between the host
// and target memory.
type MemoryAccessStrategy int

const (
	// MemoryAccessAbstractCommand uses the debug module's dedicated
	// memory-access abstract command. Fast, but not implemented by every
	// debug module.
	MemoryAccessAbstractCommand MemoryAccessStrategy = iota
	// MemoryAccessProgramBuffer synthesizes lw/sw + ebreak sequences in the
	// program buffer. Slower, but universally available wherever a program
	// buffer of at least 3 words exists.
	MemoryAccessProgramBuffer
)

const wordByteSize = 4

func alignAddressDown(addr uint32, alignTo uint32) uint32 {
	return (addr / alignTo) * alignTo
}

func alignSizeUp(size uint32, alignTo uint32) uint32 {
	return ((size + alignTo - 1) / alignTo) * alignTo
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

// readMemoryViaAbstractCommand reads a whole number of 32-bit words, one
// abstract command at a time, using the memory-access command's
// post-increment flag so the address only needs to be set once.
func (d *dtm) readMemoryViaAbstractCommand(ctx context.Context, startAddress uint32, bytes uint32) ([]byte, error) {
	if err := d.writeRegister(ctx, RegAddrData1, startAddress); err != nil {
		return nil, err
	}

	command := MemoryAccessCommand(MemoryAccessControl{
		PostIncrement: true,
		Size:          MemoryAccessSize32,
	})

	out := make([]byte, 0, bytes)
	for n := uint32(0); n < bytes; n += wordByteSize {
		commandError, err := d.tryExecuteAbstractCommand(ctx, command)
		if err != nil {
			return nil, err
		}
		if commandError != AbstractCmdErrNone {
			if commandError == AbstractCmdErrException {
				return nil, &IllegalMemoryAccessError{}
			}
			return nil, opErrorf("failed to read memory via abstract command - error: %s", commandError)
		}

		word, err := d.readRegister(ctx, RegAddrData0)
		if err != nil {
			return nil, err
		}
		var tmp [4]byte
		putLE32(tmp[:], word)
		out = append(out, tmp[:]...)
	}

	return out, nil
}

// writeMemoryViaAbstractCommand is the write-side counterpart.
func (d *dtm) writeMemoryViaAbstractCommand(ctx context.Context, startAddress uint32, buf []byte) error {
	if err := d.writeRegister(ctx, RegAddrData1, startAddress); err != nil {
		return err
	}

	command := MemoryAccessCommand(MemoryAccessControl{
		Write:         true,
		PostIncrement: true,
		Size:          MemoryAccessSize32,
	})

	for offset := 0; offset < len(buf); offset += wordByteSize {
		if err := d.writeRegister(ctx, RegAddrData0, le32(buf[offset:])); err != nil {
			return err
		}

		commandError, err := d.tryExecuteAbstractCommand(ctx, command)
		if err != nil {
			return err
		}
		if commandError != AbstractCmdErrNone {
			if commandError == AbstractCmdErrException {
				return &IllegalMemoryAccessError{}
			}
			return opErrorf("failed to write memory via abstract command - error: %s", commandError)
		}
	}

	return nil
}

// readMemoryViaProgramBuffer reads memory by executing a short lw/addi/ebreak
// sequence repeatedly, preserving and restoring x8 (base address) and x9
// (scratch value) around the operation. x9's final accumulated value is
// streamed out through data0 via abstractauto's "execute on data0 access"
// pipelining, to avoid re-running the full command/poll cycle per word.
func (d *dtm) readMemoryViaProgramBuffer(ctx context.Context, startAddress uint32, bytes uint32, programBufferSize uint8) ([]byte, error) {
	opcodes := []Opcode{
		Lw(GPRX9AsOperand, GPRX8AsOperand, 0),
		Addi(GPRX8AsOperand, GPRX8AsOperand, wordByteSize),
		Ebreak,
	}
	if uint8(len(opcodes)) > programBufferSize {
		return nil, opErrorf("cannot read memory via program buffer - insufficient program buffer size")
	}

	preservedX8, err := preserveRegister(ctx, d, GPRX8)
	if err != nil {
		return nil, err
	}
	preservedX9, err := preserveRegister(ctx, d, GPRX9)
	if err != nil {
		return nil, err
	}

	out, err := d.readMemoryViaProgramBufferInner(ctx, startAddress, bytes, opcodes)
	if err != nil {
		if restoreErr := preservedX8.restoreOnce(ctx); restoreErr != nil {
			return nil, restoreErr
		}
		if restoreErr := preservedX9.restoreOnce(ctx); restoreErr != nil {
			return nil, restoreErr
		}
		return nil, err
	}

	if err := preservedX8.restore(ctx); err != nil {
		return nil, err
	}
	if err := preservedX9.restore(ctx); err != nil {
		return nil, err
	}

	return out, nil
}

func (d *dtm) readMemoryViaProgramBufferInner(ctx context.Context, startAddress uint32, bytes uint32, opcodes []Opcode) ([]byte, error) {
	if err := d.writeProgramBuffer(ctx, opcodes); err != nil {
		return nil, err
	}

	commandError, err := d.tryWriteRegisterByNumber(ctx, GPRX8, startAddress, true)
	if err != nil {
		return nil, err
	}
	if commandError != AbstractCmdErrNone {
		if commandError == AbstractCmdErrException {
			return nil, &IllegalMemoryAccessError{}
		}
		return nil, opErrorf("program buffer execution failed - abstract command error: %s", commandError)
	}

	out := make([]byte, 0, bytes)

	if bytes == wordByteSize {
		word, err := d.readRegisterByNumber(ctx, GPRX9)
		if err != nil {
			return nil, err
		}
		var tmp [4]byte
		putLE32(tmp[:], word)
		return append(out, tmp[:]...), nil
	}

	// Populate the abstract command register with a register-access command
	// that reads X9 into data0, with postexec set. From here, any write of
	// abstractauto enabling "execute on data0 access" makes each data0 touch
	// re-run both the register read and the program buffer, filling X9 with
	// the next word.
	if _, err := d.readRegisterByNumber(ctx, GPRX9); err != nil {
		return nil, err
	}
	if err := d.executeAbstractCommand(ctx, RegisterAccessCommand(RegisterAccessControl{
		RegNo:       uint16(GPRX9),
		Transfer:    true,
		PostExecute: true,
		Size:        RegisterAccessSize32,
	})); err != nil {
		return nil, err
	}

	autoExecEnabled := bytes > wordByteSize*2
	if err := d.writeRegister(ctx, RegAddrAbstractCommandAutoExec, AutoExecuteRegister{OnData0Access: autoExecEnabled}.Value()); err != nil {
		return nil, err
	}

	for uint32(len(out)) < bytes-wordByteSize {
		if autoExecEnabled && uint32(len(out)) >= bytes-wordByteSize*2 {
			if err := d.writeRegister(ctx, RegAddrAbstractCommandAutoExec, AutoExecuteRegister{}.Value()); err != nil {
				return nil, err
			}
		}

		word, err := d.readRegister(ctx, RegAddrData0)
		if err != nil {
			return nil, err
		}
		var tmp [4]byte
		putLE32(tmp[:], word)
		out = append(out, tmp[:]...)
	}

	commandError, err = d.readAndClearAbstractCommandError(ctx)
	if err != nil {
		return nil, err
	}
	if commandError != AbstractCmdErrNone {
		if commandError == AbstractCmdErrException {
			return nil, &IllegalMemoryAccessError{}
		}
		return nil, opErrorf("program buffer execution failed - abstract command error: %s", commandError)
	}

	lastWord, err := d.readRegisterByNumber(ctx, GPRX9)
	if err != nil {
		return nil, err
	}
	var tmp [4]byte
	putLE32(tmp[:], lastWord)
	return append(out, tmp[:]...), nil
}

// writeMemoryViaProgramBuffer is the write-side counterpart: sw/addi/ebreak,
// with the word stream pushed in through data0 under abstractauto.
func (d *dtm) writeMemoryViaProgramBuffer(ctx context.Context, startAddress uint32, buf []byte, programBufferSize uint8) error {
	opcodes := []Opcode{
		Sw(GPRX8AsOperand, GPRX9AsOperand, 0),
		Addi(GPRX8AsOperand, GPRX8AsOperand, wordByteSize),
		Ebreak,
	}
	if uint8(len(opcodes)) > programBufferSize {
		return opErrorf("cannot write memory via program buffer - insufficient program buffer size")
	}

	preservedX8, err := preserveRegister(ctx, d, GPRX8)
	if err != nil {
		return err
	}
	preservedX9, err := preserveRegister(ctx, d, GPRX9)
	if err != nil {
		return err
	}

	err = d.writeMemoryViaProgramBufferInner(ctx, startAddress, buf, opcodes)
	if err != nil {
		if restoreErr := preservedX8.restoreOnce(ctx); restoreErr != nil {
			return restoreErr
		}
		if restoreErr := preservedX9.restoreOnce(ctx); restoreErr != nil {
			return restoreErr
		}
		return err
	}

	if err := preservedX8.restore(ctx); err != nil {
		return err
	}
	return preservedX9.restore(ctx)
}

func (d *dtm) writeMemoryViaProgramBufferInner(ctx context.Context, startAddress uint32, buf []byte, opcodes []Opcode) error {
	if err := d.writeProgramBuffer(ctx, opcodes); err != nil {
		return err
	}
	if err := d.writeRegisterByNumber(ctx, GPRX8, startAddress); err != nil {
		return err
	}
	commandError, err := d.tryWriteRegisterByNumber(ctx, GPRX9, le32(buf), true)
	if err != nil {
		return err
	}
	if commandError != AbstractCmdErrNone {
		if commandError == AbstractCmdErrException {
			return &IllegalMemoryAccessError{}
		}
		return opErrorf("program buffer execution failed - abstract command error: %s", commandError)
	}

	if err := d.writeRegister(ctx, RegAddrAbstractCommandAutoExec, AutoExecuteRegister{OnData0Access: true}.Value()); err != nil {
		return err
	}

	for offset := wordByteSize; offset < len(buf); offset += wordByteSize {
		if err := d.writeRegister(ctx, RegAddrData0, le32(buf[offset:])); err != nil {
			return err
		}
	}

	if err := d.writeRegister(ctx, RegAddrAbstractCommandAutoExec, AutoExecuteRegister{}.Value()); err != nil {
		return err
	}

	commandError, err = d.readAndClearAbstractCommandError(ctx)
	if err != nil {
		return err
	}
	if commandError != AbstractCmdErrNone {
		if commandError == AbstractCmdErrException {
			return &IllegalMemoryAccessError{}
		}
		return opErrorf("program buffer execution failed - abstract command error: %s", commandError)
	}

	return nil
}

// readAndClearAbstractCommandError reads abstractcs purely to fetch cmderr
// (after a sequence of register pokes that bypassed tryExecuteAbstractCommand's
// own polling), clearing it on the device if it is set.
func (d *dtm) readAndClearAbstractCommandError(ctx context.Context) (AbstractCommandError, error) {
	status, err := d.readAbstractControlStatus(ctx)
	if err != nil {
		return 0, err
	}
	if status.CommandError != AbstractCmdErrNone {
		if err := d.clearAbstractCommandError(ctx); err != nil {
			return 0, err
		}
	}
	return status.CommandError, nil
}
