// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package riscv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloomdbg/dbgbridge/target"
)

func gdbDescriptors() []target.RegisterDescriptor {
	descs := make([]target.RegisterDescriptor, 0, 33)
	for i := 0; i < 32; i++ {
		descs = append(descs, target.RegisterDescriptor{ID: target.RegisterID(i), Name: "x", BitSize: 32, Readable: true, Writable: true})
	}
	descs = append(descs, target.RegisterDescriptor{ID: 32, Name: "pc", BitSize: 32, Readable: true, Writable: true})
	return descs
}

func testRiscVDescriptor() target.Descriptor {
	return target.Descriptor{
		Name:         "riscv-test",
		Architecture: "riscv",
		Registers:    gdbDescriptors(),
		MemorySegments: map[target.AddressSpace]target.AddressRange{
			target.AddressSpaceSystem: {Start: 0, Size: 1 << 16},
		},
		FlashPageSize:     256,
		SystemAddressSize: 4,
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	transport := NewSimulatedTransport(0, 1<<16)
	svc, err := NewService(context.Background(), transport, testRiscVDescriptor(), 0, 1<<16, Config{})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestServiceActivatesHaltedAfterConstruction(t *testing.T) {
	svc := newTestService(t)

	state, err := svc.GetState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, target.ExecutionStateStopped, state)
}

func TestServiceRegisterReadWrite(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	x8 := svc.desc.Registers[8]
	err := svc.WriteRegisters(ctx, []target.RegisterValue{{Descriptor: x8, Data: []byte{0x44, 0x33, 0x22, 0x11}}})
	require.NoError(t, err)

	values, err := svc.ReadRegisters(ctx, []target.RegisterDescriptor{x8})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, []byte{0x44, 0x33, 0x22, 0x11}, values[0].Data)
}

func TestServiceMemoryReadWrite(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	require.NoError(t, svc.WriteMemory(ctx, target.AddressSpaceSystem, 0x100, data))

	read, err := svc.ReadMemory(ctx, target.AddressSpaceSystem, 0x100, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, data, read)
}

func TestServiceSoftwareBreakpointInjectsEbreakAndRestores(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	orig := []byte{0x13, 0x00, 0x00, 0x00} // nop (addi x0, x0, 0)
	require.NoError(t, svc.WriteMemory(ctx, target.AddressSpaceSystem, 0x200, orig))

	require.NoError(t, svc.SetSoftwareBreakpoint(ctx, 0x200, 4))
	withBreakpoint, err := svc.ReadMemory(ctx, target.AddressSpaceSystem, 0x200, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, ebreakBytes(), withBreakpoint)

	require.NoError(t, svc.ClearSoftwareBreakpoint(ctx, 0x200))
	restored, err := svc.ReadMemory(ctx, target.AddressSpaceSystem, 0x200, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, orig, restored)
}

func TestServiceReadMemoryMasksSoftwareBreakpointWhenExcluded(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	orig := []byte{0x01, 0x02, 0x03, 0x04}
	require.NoError(t, svc.WriteMemory(ctx, target.AddressSpaceSystem, 0x300, orig))
	require.NoError(t, svc.SetSoftwareBreakpoint(ctx, 0x300, 4))

	masked, err := svc.ReadMemory(ctx, target.AddressSpaceSystem, 0x300, 4, []target.AddressRange{{Start: 0x300, Size: 4}})
	require.NoError(t, err)
	assert.Equal(t, orig, masked)
}

func TestServiceHardwareBreakpointInsertAndClear(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetHardwareBreakpoint(ctx, 0x400, 4))
	require.NoError(t, svc.ClearHardwareBreakpoint(ctx, 0x400))
}

func TestServiceHardwareBreakpointExhaustion(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SetHardwareBreakpoint(ctx, 0x400, 4))
	require.NoError(t, svc.SetHardwareBreakpoint(ctx, 0x404, 4))
	err := svc.SetHardwareBreakpoint(ctx, 0x408, 4)
	require.Error(t, err)
	_, ok := err.(*target.OperationError)
	assert.True(t, ok)
}

func TestServiceRunAndHalt(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Run(ctx, nil))

	select {
	case change := <-svc.StateChanges():
		assert.Equal(t, target.ExecutionStateRunning, change.Current)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for running state")
	}

	require.NoError(t, svc.Halt(ctx))

	select {
	case change := <-svc.StateChanges():
		assert.Equal(t, target.ExecutionStateStopped, change.Current)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for halted state")
	}
}

func TestServiceStep(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Step(ctx, nil))

	state, err := svc.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, target.ExecutionStateStopped, state)
}

func TestServiceStepFromAddress(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	from := target.Address(0x100)
	require.NoError(t, svc.Step(ctx, &from))

	// Step sets the PC to fromAddress, then single-steps one simulated
	// 4-byte instruction forward from there.
	values, err := svc.ReadRegisters(ctx, []target.RegisterDescriptor{gdbDescriptors()[32]})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x104), le32(values[0].Data))
}

func TestServiceEraseAndProgramFlash(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EraseFlashRange(ctx, target.AddressRange{Start: 0x500, Size: 4}))
	erased, err := svc.ReadMemory(ctx, target.AddressSpaceSystem, 0x500, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, erased)

	require.NoError(t, svc.ProgramFlash(ctx, 0x500, []byte{1, 2, 3, 4}))
	programmed, err := svc.ReadMemory(ctx, target.AddressSpaceSystem, 0x500, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, programmed)
}
