// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package riscv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedTransportHaltedAfterHaltRequest(t *testing.T) {
	tr := NewSimulatedTransport(0, 1<<16)

	require.NoError(t, tr.WriteRegister(RegAddrControl, ControlRegister{DMActive: true, ResumeRequest: true}.Value()))
	require.NoError(t, tr.WriteRegister(RegAddrControl, ControlRegister{DMActive: true, HaltRequest: true}.Value()))

	v, err := tr.ReadRegister(RegAddrStatus)
	require.NoError(t, err)
	status := StatusRegisterFromValue(v)
	assert.True(t, status.AnyHalted)
	assert.True(t, status.AllHalted)
}

func TestSimulatedTransportRunAcknowledgesResume(t *testing.T) {
	tr := NewSimulatedTransport(0, 1<<16)

	require.NoError(t, tr.WriteRegister(RegAddrControl, ControlRegister{DMActive: true, ResumeRequest: true}.Value()))

	v, err := tr.ReadRegister(RegAddrStatus)
	require.NoError(t, err)
	status := StatusRegisterFromValue(v)
	assert.True(t, status.AnyResumeAcknowledge)
	assert.True(t, status.AnyRunning)
}

func TestSimulatedTransportHartSelectBeyondZeroIsNonExistent(t *testing.T) {
	tr := NewSimulatedTransport(0, 1<<16)

	require.NoError(t, tr.WriteRegister(RegAddrControl, ControlRegister{DMActive: true, SelectedHart: 1}.Value()))

	v, err := tr.ReadRegister(RegAddrStatus)
	require.NoError(t, err)
	status := StatusRegisterFromValue(v)
	assert.True(t, status.AnyNonExistent)
}

func TestSimulatedTransportRegisterAccessRoundTrip(t *testing.T) {
	tr := NewSimulatedTransport(0, 1<<16)

	require.NoError(t, tr.WriteRegister(RegAddrData0, 0xCAFEBABE))
	require.NoError(t, tr.WriteRegister(RegAddrAbstractCommand, RegisterAccessCommand(RegisterAccessControl{
		RegNo: uint16(GPRX8), Write: true, Transfer: true, Size: RegisterAccessSize32,
	})))

	status, err := tr.ReadRegister(RegAddrAbstractControlStatus)
	require.NoError(t, err)
	assert.Equal(t, AbstractCmdErrNone, AbstractControlStatusFromValue(status).CommandError)

	require.NoError(t, tr.WriteRegister(RegAddrAbstractCommand, RegisterAccessCommand(RegisterAccessControl{
		RegNo: uint16(GPRX8), Transfer: true, Size: RegisterAccessSize32,
	})))
	readBack, err := tr.ReadRegister(RegAddrData0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xCAFEBABE), readBack)
}

func TestSimulatedTransportMemoryAccessRoundTrip(t *testing.T) {
	tr := NewSimulatedTransport(0x1000, 4096)

	require.NoError(t, tr.WriteRegister(RegAddrData1, 0x1100))
	require.NoError(t, tr.WriteRegister(RegAddrData0, 0x11223344))
	require.NoError(t, tr.WriteRegister(RegAddrAbstractCommand, MemoryAccessCommand(MemoryAccessControl{
		Write: true, PostIncrement: true, Size: MemoryAccessSize32,
	})))

	require.NoError(t, tr.WriteRegister(RegAddrData1, 0x1100))
	require.NoError(t, tr.WriteRegister(RegAddrAbstractCommand, MemoryAccessCommand(MemoryAccessControl{
		PostIncrement: true, Size: MemoryAccessSize32,
	})))
	word, err := tr.ReadRegister(RegAddrData0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x11223344), word)
}

func TestSimulatedTransportMemoryAccessOutOfRangeReportsException(t *testing.T) {
	tr := NewSimulatedTransport(0x1000, 4096)

	require.NoError(t, tr.WriteRegister(RegAddrData1, 0x9000))
	require.NoError(t, tr.WriteRegister(RegAddrAbstractCommand, MemoryAccessCommand(MemoryAccessControl{
		Size: MemoryAccessSize32,
	})))

	status, err := tr.ReadRegister(RegAddrAbstractControlStatus)
	require.NoError(t, err)
	assert.Equal(t, AbstractCmdErrException, AbstractControlStatusFromValue(status).CommandError)
}

func TestSimulatedTransportTriggerInfoReportsMatchControlForValidIndices(t *testing.T) {
	tr := NewSimulatedTransport(0, 1<<16)

	require.NoError(t, tr.WriteRegister(RegAddrData0, 0))
	require.NoError(t, tr.WriteRegister(RegAddrAbstractCommand, RegisterAccessCommand(RegisterAccessControl{
		RegNo: uint16(CSRTriggerSelect), Write: true, Transfer: true, Size: RegisterAccessSize32,
	})))
	require.NoError(t, tr.WriteRegister(RegAddrAbstractCommand, RegisterAccessCommand(RegisterAccessControl{
		RegNo: uint16(CSRTriggerInfo), Transfer: true, Size: RegisterAccessSize32,
	})))
	info, err := tr.ReadRegister(RegAddrData0)
	require.NoError(t, err)
	assert.NotZero(t, info&(1<<uint(TriggerTypeMatchControl)))
}

func TestSimulatedTransportTriggerInfoReportsNoTriggerBeyondSimulatedCount(t *testing.T) {
	tr := NewSimulatedTransport(0, 1<<16)

	require.NoError(t, tr.WriteRegister(RegAddrData0, uint32(simulatedTriggerCount)))
	require.NoError(t, tr.WriteRegister(RegAddrAbstractCommand, RegisterAccessCommand(RegisterAccessControl{
		RegNo: uint16(CSRTriggerSelect), Write: true, Transfer: true, Size: RegisterAccessSize32,
	})))
	require.NoError(t, tr.WriteRegister(RegAddrAbstractCommand, RegisterAccessCommand(RegisterAccessControl{
		RegNo: uint16(CSRTriggerInfo), Transfer: true, Size: RegisterAccessSize32,
	})))
	info, err := tr.ReadRegister(RegAddrData0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01), info)
}

func TestSimulatedTransportNDMResetWipesRegistersAndMemory(t *testing.T) {
	tr := NewSimulatedTransport(0, 4096)

	require.NoError(t, tr.WriteRegister(RegAddrData1, 0))
	require.NoError(t, tr.WriteRegister(RegAddrData0, 0xFF))
	require.NoError(t, tr.WriteRegister(RegAddrAbstractCommand, MemoryAccessCommand(MemoryAccessControl{
		Write: true, Size: MemoryAccessSize32,
	})))

	require.NoError(t, tr.WriteRegister(RegAddrControl, ControlRegister{DMActive: true, NDMReset: true}.Value()))

	v, err := tr.ReadRegister(RegAddrStatus)
	require.NoError(t, err)
	assert.True(t, StatusRegisterFromValue(v).AnyHaveReset)

	require.NoError(t, tr.WriteRegister(RegAddrData1, 0))
	require.NoError(t, tr.WriteRegister(RegAddrAbstractCommand, MemoryAccessCommand(MemoryAccessControl{
		Size: MemoryAccessSize32,
	})))
	word, err := tr.ReadRegister(RegAddrData0)
	require.NoError(t, err)
	assert.Zero(t, word)
}
