// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package riscv

// RegisterNumber is the architectural register number used in the
// register-access abstract command's regno field. GPRs are 0x1000+x,
// CSRs are their raw CSR address (0x0000-0x0FFF), per the RISC-V Debug
// Spec's register number space.
type RegisterNumber uint16

const (
	CSRDebugControlStatus RegisterNumber = 0x7B0
	CSRDebugPC            RegisterNumber = 0x7B1

	CSRTriggerSelect RegisterNumber = 0x7A0
	CSRTriggerData1  RegisterNumber = 0x7A1
	CSRTriggerData2  RegisterNumber = 0x7A2
	CSRTriggerInfo   RegisterNumber = 0x7A4

	GPRZero RegisterNumber = 0x1000 + 0
	GPRX8   RegisterNumber = 0x1000 + 8
	GPRX9   RegisterNumber = 0x1000 + 9
)

// GPRNumber maps a GDB-style general-purpose register index (0..31) to its
// RegisterNumber for an abstract register-access command.
func GPRNumber(n int) RegisterNumber {
	return RegisterNumber(0x1000 + n)
}

// DebugControlStatusRegister is "dcsr", the CSR that governs single-step
// and break-on-entry behaviour for all privilege modes.
type DebugControlStatusRegister struct {
	Step       bool
	BreakUMode bool
	BreakSMode bool
	BreakMMode bool
}

func (d DebugControlStatusRegister) Value() uint32 {
	return boolBit(d.Step, 2) |
		boolBit(d.BreakUMode, 12) |
		boolBit(d.BreakSMode, 13) |
		boolBit(d.BreakMMode, 15)
}

func DebugControlStatusFromValue(v uint32) DebugControlStatusRegister {
	return DebugControlStatusRegister{
		Step:       v&(1<<2) != 0,
		BreakUMode: v&(1<<12) != 0,
		BreakSMode: v&(1<<13) != 0,
		BreakMMode: v&(1<<15) != 0,
	}
}
