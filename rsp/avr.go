// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsp

import (
	"strconv"

	"github.com/bloomdbg/dbgbridge/target"
)

// AVR GDB register numbering: 0..31 general-purpose byte registers, 32
// status register, 33 stack pointer (2 bytes), 34 program counter
// (4 bytes).
const (
	AVRRegGPRCount  = 32
	AVRRegSREG      = 32
	AVRRegSP        = 33
	AVRRegPC        = 34
	AVRRegisterCount = 35
)

// AVRRegisterDescriptors returns the fixed GDB register layout for an AVR
// target, in GDB register-number order.
func AVRRegisterDescriptors() []target.RegisterDescriptor {
	descs := make([]target.RegisterDescriptor, 0, AVRRegisterCount)
	for i := 0; i < AVRRegGPRCount; i++ {
		descs = append(descs, target.RegisterDescriptor{
			ID: target.RegisterID(i), Name: gprName(i), Group: "general", BitSize: 8, Readable: true, Writable: true,
		})
	}
	descs = append(descs,
		target.RegisterDescriptor{ID: AVRRegSREG, Name: "SREG", Group: "general", BitSize: 8, Readable: true, Writable: true},
		target.RegisterDescriptor{ID: AVRRegSP, Name: "SP", Group: "general", BitSize: 16, Readable: true, Writable: true},
		target.RegisterDescriptor{ID: AVRRegPC, Name: "PC", Group: "general", BitSize: 32, Readable: true, Writable: true},
	)
	return descs
}

func gprName(i int) string {
	return "r" + strconv.Itoa(i)
}

// AVR GDB address-space masks: the address space is encoded in the high
// bits of a 24-bit address.
const (
	avrSRAMMask   uint32 = 0x00800000
	avrEEPROMMask uint32 = 0x00810000
	avrSpaceMask  uint32 = 0x00ff0000
)

// DecodeAVRAddress strips GDB's address-space encoding from a 24-bit
// address, returning the bare target address and which address space it
// names.
func DecodeAVRAddress(gdbAddress uint32) (target.Address, target.AddressSpace) {
	switch gdbAddress & avrSpaceMask {
	case avrEEPROMMask:
		return target.Address(gdbAddress &^ avrEEPROMMask), target.AddressSpaceEEPROM
	case avrSRAMMask:
		return target.Address(gdbAddress &^ avrSRAMMask), target.AddressSpaceSRAM
	default:
		return target.Address(gdbAddress), target.AddressSpaceFlash
	}
}

// EncodeAVRAddress is the inverse of DecodeAVRAddress, used when reporting
// addresses back to the client (e.g. in memory-map XML).
func EncodeAVRAddress(addr target.Address, space target.AddressSpace) uint32 {
	switch space {
	case target.AddressSpaceEEPROM:
		return uint32(addr) | avrEEPROMMask
	case target.AddressSpaceSRAM:
		return uint32(addr) | avrSRAMMask
	default:
		return uint32(addr)
	}
}
