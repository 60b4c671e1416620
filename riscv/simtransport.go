// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package riscv

import "sync"

// simulatedTriggerCount is how many trigger resources SimulatedTransport
// advertises through tinfo during trigger discovery.
const simulatedTriggerCount = 2

// SimulatedTransport is an in-memory target.DebugTransportModule standing
// in for a real JTAG or vendor-probe connection: it backs exactly one
// simulated hart's debug module register file, CPU register file, and
// system memory, synchronously executing abstract commands the instant
// the "command" register is written rather than modelling the bus
// latency a physical transport has. It supports only the abstract-command
// memory access strategy (it advertises a zero-size program buffer),
// which is enough to drive every operation the Translator performs.
type SimulatedTransport struct {
	mu sync.Mutex

	selectedHart uint32
	halted       bool
	resumeAck    bool
	haveReset    bool

	cmdErr AbstractCommandError
	data0  uint32
	data1  uint32

	regs map[RegisterNumber]uint32

	memBase uint32
	mem     []byte
}

// NewSimulatedTransport builds a transport backing a single hart with the
// given flat system memory window.
func NewSimulatedTransport(memBase uint32, memSize uint32) *SimulatedTransport {
	return &SimulatedTransport{
		halted:  true,
		regs:    make(map[RegisterNumber]uint32),
		memBase: memBase,
		mem:     make([]byte, memSize),
	}
}

func (s *SimulatedTransport) ReadRegister(addr uint32) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch addr {
	case RegAddrStatus:
		return s.statusValue(), nil
	case RegAddrAbstractControlStatus:
		return AbstractControlStatusRegister{
			DataCount:      2,
			CommandError:   s.cmdErr,
			ProgramBufSize: 0,
		}.Value(), nil
	case RegAddrData0:
		return s.data0, nil
	case RegAddrData1:
		return s.data1, nil
	default:
		return 0, opErrorf("simulated transport: unsupported register read 0x%x", addr)
	}
}

func (s *SimulatedTransport) WriteRegister(addr uint32, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch addr {
	case RegAddrControl:
		s.applyControl(ControlRegisterFromValue(value))
		return nil
	case RegAddrAbstractControlStatus:
		if value&(0x7<<8) != 0 {
			s.cmdErr = AbstractCmdErrNone
		}
		return nil
	case RegAddrAbstractCommand:
		s.executeCommand(value)
		return nil
	case RegAddrData0:
		s.data0 = value
		return nil
	case RegAddrData1:
		s.data1 = value
		return nil
	case RegAddrAbstractCommandAutoExec:
		// Auto-execute-on-data0-access only matters for the program-buffer
		// pipelining strategy; this transport never advertises a program
		// buffer, so the translator never arms it.
		return nil
	default:
		return opErrorf("simulated transport: unsupported register write 0x%x", addr)
	}
}

func (s *SimulatedTransport) applyControl(c ControlRegister) {
	s.selectedHart = uint32(c.SelectedHart)

	if c.NDMReset {
		for i := range s.regs {
			delete(s.regs, i)
		}
		for i := range s.mem {
			s.mem[i] = 0
		}
		s.haveReset = true
	}
	if c.AckHaveReset {
		s.haveReset = false
	}

	if s.selectedHart != 0 {
		return
	}

	if c.HaltRequest {
		s.halted = true
		s.resumeAck = false
	}
	if c.ResumeRequest {
		s.halted = false
		s.resumeAck = true
		if dcsr := DebugControlStatusFromValue(s.regs[CSRDebugControlStatus]); dcsr.Step {
			s.advancePC()
			s.halted = true
		}
	}
}

func (s *SimulatedTransport) advancePC() {
	s.regs[CSRDebugPC] += 4
}

func (s *SimulatedTransport) statusValue() uint32 {
	exists := s.selectedHart == 0
	running := exists && !s.halted
	haltedNow := exists && s.halted

	var v uint32
	if haltedNow {
		v |= 1<<8 | 1<<9
	}
	if running {
		v |= 1<<10 | 1<<11
	}
	if !exists {
		v |= 1<<14 | 1<<15
	}
	if s.resumeAck && exists {
		v |= 1<<16 | 1<<17
	}
	if s.haveReset && exists {
		v |= 1<<18 | 1<<19
	}
	return v
}

func (s *SimulatedTransport) executeCommand(command uint32) {
	control := command & 0x00FFFFFF
	cmdType := AbstractCommandType((command >> 24) & 0xFF)

	switch cmdType {
	case AbstractCommandRegisterAccess:
		s.executeRegisterAccess(control)
	case AbstractCommandMemoryAccess:
		s.executeMemoryAccess(control)
	default:
		s.cmdErr = AbstractCmdErrNotSupported
	}
}

func (s *SimulatedTransport) executeRegisterAccess(control uint32) {
	regNo := RegisterNumber(control & 0xFFFF)
	write := control&(1<<16) != 0
	transfer := control&(1<<17) != 0

	if !transfer {
		s.cmdErr = AbstractCmdErrNone
		return
	}

	if regNo == CSRTriggerInfo && !write {
		s.data0 = s.triggerInfoValue()
		s.cmdErr = AbstractCmdErrNone
		return
	}

	if write {
		s.regs[regNo] = s.data0
	} else {
		s.data0 = s.regs[regNo]
	}
	s.cmdErr = AbstractCmdErrNone
}

func (s *SimulatedTransport) triggerInfoValue() uint32 {
	tselect := s.regs[CSRTriggerSelect]
	if tselect >= simulatedTriggerCount {
		return 0x01
	}
	return 1 << uint(TriggerTypeMatchControl)
}

func (s *SimulatedTransport) executeMemoryAccess(control uint32) {
	write := control&(1<<16) != 0
	postIncrement := control&(1<<19) != 0

	addr := s.data1
	if addr < s.memBase || int(addr-s.memBase)+4 > len(s.mem) {
		s.cmdErr = AbstractCmdErrException
		return
	}
	off := int(addr - s.memBase)

	if write {
		putLE32(s.mem[off:], s.data0)
	} else {
		s.data0 = le32(s.mem[off:])
	}
	s.cmdErr = AbstractCmdErrNone

	if postIncrement {
		s.data1 = addr + 4
	}
}
