// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package riscv

// Opcode is a 32-bit RV32 instruction encoding, as would be loaded into
// the debug module's program buffer.
type Opcode uint32

// Fixed-encoding instructions.
const (
	Ebreak  Opcode = 0x00100073
	Fence   Opcode = 0x0ff0000f
	FenceI  Opcode = 0x0000100f
)

// Addi encodes "addi rd, rs1, imm12".
func Addi(rd, rs1 uint8, imm12 int16) Opcode {
	return Opcode(0x13 | uint32(rd)<<7 | uint32(rs1)<<15 | (uint32(imm12)&0xfff)<<20)
}

// Lw encodes "lw rd, imm12(rs1)".
func Lw(rd, rs1 uint8, imm12 int16) Opcode {
	return Opcode(0x2003 | uint32(rd)<<7 | uint32(rs1)<<15 | (uint32(imm12)&0xfff)<<20)
}

// store encodes the S-type layout shared by Sw and Sb; funct3 distinguishes
// access width (0b010 = word, 0b000 = byte).
func store(funct3, rs1, rs2 uint8, imm12 int16) Opcode {
	u := uint32(imm12)
	return Opcode(0x23 | (u&0x1f)<<7 | uint32(funct3)<<12 | uint32(rs1)<<15 | uint32(rs2)<<20 | ((u>>5)&0x7f)<<25)
}

// Sw encodes "sw rs2, imm12(rs1)".
func Sw(rs1, rs2 uint8, imm12 int16) Opcode {
	return store(0x2, rs1, rs2, imm12)
}

// Lb encodes "lb rd, imm12(rs1)".
func Lb(rd, rs1 uint8, imm12 int16) Opcode {
	return Opcode(0x03 | uint32(rd)<<7 | uint32(rs1)<<15 | (uint32(imm12)&0xfff)<<20)
}

// Sb encodes "sb rs2, imm12(rs1)", analogous to Sw (the debug spec gives sw's encoding but leaves sb to the reader).
func Sb(rs1, rs2 uint8, imm12 int16) Opcode {
	return store(0x0, rs1, rs2, imm12)
}

// GPR numbers used by the program-buffer memory engine.
const (
	GPRX8AsOperand uint8 = 8
	GPRX9AsOperand uint8 = 9
)
