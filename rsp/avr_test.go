// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bloomdbg/dbgbridge/target"
)

func TestAVRRegisterDescriptorsLayout(t *testing.T) {
	descs := AVRRegisterDescriptors()
	assert.Len(t, descs, AVRRegisterCount)
	assert.Equal(t, "r0", descs[0].Name)
	assert.Equal(t, "r31", descs[31].Name)
	assert.Equal(t, "SREG", descs[AVRRegSREG].Name)
	assert.Equal(t, "SP", descs[AVRRegSP].Name)
	assert.Equal(t, "PC", descs[AVRRegPC].Name)
	assert.Equal(t, 16, descs[AVRRegSP].BitSize)
	assert.Equal(t, 32, descs[AVRRegPC].BitSize)
}

func TestDecodeEncodeAVRAddressFlash(t *testing.T) {
	addr, space := DecodeAVRAddress(0x1234)
	assert.Equal(t, target.AddressSpaceFlash, space)
	assert.Equal(t, target.Address(0x1234), addr)
	assert.Equal(t, uint32(0x1234), EncodeAVRAddress(addr, space))
}

func TestDecodeEncodeAVRAddressSRAM(t *testing.T) {
	addr, space := DecodeAVRAddress(0x800100)
	assert.Equal(t, target.AddressSpaceSRAM, space)
	assert.Equal(t, target.Address(0x100), addr)
	assert.Equal(t, uint32(0x800100), EncodeAVRAddress(addr, space))
}

func TestDecodeEncodeAVRAddressEEPROM(t *testing.T) {
	addr, space := DecodeAVRAddress(0x810050)
	assert.Equal(t, target.AddressSpaceEEPROM, space)
	assert.Equal(t, target.Address(0x50), addr)
	assert.Equal(t, uint32(0x810050), EncodeAVRAddress(addr, space))
}
