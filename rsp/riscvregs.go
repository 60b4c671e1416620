// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsp

import (
	"strconv"

	"github.com/bloomdbg/dbgbridge/target"
)

// RISC-V GDB register numbering: 0..31 general-purpose 32-bit, 32 program
// counter.
const (
	RiscVRegGPRCount  = 32
	RiscVRegPC        = 32
	RiscVRegisterCount = 33
)

// RiscVRegisterDescriptors returns the fixed GDB register layout for a
// RISC-V target, in GDB register-number order.
func RiscVRegisterDescriptors() []target.RegisterDescriptor {
	descs := make([]target.RegisterDescriptor, 0, RiscVRegisterCount)
	for i := 0; i < RiscVRegGPRCount; i++ {
		descs = append(descs, target.RegisterDescriptor{
			ID: target.RegisterID(i), Name: "x" + strconv.Itoa(i), Group: "general", BitSize: 32, Readable: true, Writable: true,
		})
	}
	descs = append(descs, target.RegisterDescriptor{
		ID: RiscVRegPC, Name: "pc", Group: "general", BitSize: 32, Readable: true, Writable: true,
	})
	return descs
}
