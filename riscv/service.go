// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package riscv

import (
	"context"
	"sync"
	"time"

	"github.com/bloomdbg/dbgbridge/target"
)

// statePollInterval is how often Service polls the translator for an
// execution-state change to publish on its StateChanges channel. A real
// debug module can raise an interrupt on halt; the abstract-command-only
// transport this package ships does not, so polling stands in for it.
const statePollInterval = 10 * time.Millisecond

// Service adapts a Translator to target.Service, giving the RSP server a
// RISC-V target to drive without requiring a live debug probe: it is
// constructed over a SimulatedTransport in cmd/dbgbridged, but accepts any
// target.DebugTransportModule, including a real probe driver.
type Service struct {
	translator *Translator
	desc       target.Descriptor

	mu            sync.Mutex
	softBreakpoints map[target.Address][]byte

	changes chan target.StateChange
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewService activates a translator over transport and starts polling it
// for state changes. desc must describe a RISC-V target whose register
// list is in GDB register-number order (see RiscVRegisterDescriptors).
func NewService(ctx context.Context, transport target.DebugTransportModule, desc target.Descriptor, sysAddressStart, sysAddressSize uint32, cfg Config) (*Service, error) {
	tr := NewTranslator(transport, sysAddressStart, sysAddressSize, cfg)
	if err := tr.Activate(ctx); err != nil {
		return nil, err
	}

	s := &Service{
		translator:      tr,
		desc:            desc,
		softBreakpoints: make(map[target.Address][]byte),
		changes:         make(chan target.StateChange, 16),
		done:            make(chan struct{}),
	}

	s.wg.Add(1)
	go s.pollLoop()

	return s, nil
}

func (s *Service) pollLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(statePollInterval)
	defer ticker.Stop()

	prev := target.ExecutionStateStopped
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			cur, err := s.translator.GetExecutionState(context.Background())
			if err != nil {
				continue
			}
			if cur != prev {
				select {
				case s.changes <- target.StateChange{Previous: prev, Current: cur}:
				default:
				}
				prev = cur
			}
		}
	}
}

func (s *Service) Descriptor() target.Descriptor {
	return s.desc
}

func (s *Service) GetState(ctx context.Context) (target.ExecutionState, error) {
	return wrapErr(s.translator.GetExecutionState(ctx))
}

func wrapErr(state target.ExecutionState, err error) (target.ExecutionState, error) {
	return state, toTargetError(err)
}

func (s *Service) StateChanges() <-chan target.StateChange {
	return s.changes
}

func (s *Service) Halt(ctx context.Context) error {
	return toTargetError(s.translator.Halt(ctx))
}

func (s *Service) Run(ctx context.Context, fromAddress *target.Address) error {
	return toTargetError(s.translator.Run(ctx, toUint32Ptr(fromAddress)))
}

func (s *Service) Step(ctx context.Context, fromAddress *target.Address) error {
	return toTargetError(s.translator.Step(ctx, toUint32Ptr(fromAddress)))
}

// toUint32Ptr converts an optional target.Address into the *uint32 form
// the Translator takes, without the two packages sharing a type.
func toUint32Ptr(addr *target.Address) *uint32 {
	if addr == nil {
		return nil
	}
	v := uint32(*addr)
	return &v
}

func (s *Service) Reset(ctx context.Context) error {
	return toTargetError(s.translator.Reset(ctx))
}

func (s *Service) ReadRegisters(ctx context.Context, descs []target.RegisterDescriptor) ([]target.RegisterValue, error) {
	out := make([]target.RegisterValue, 0, len(descs))
	for _, d := range descs {
		v, err := s.translator.ReadCPURegister(ctx, int(d.ID))
		if err != nil {
			return nil, toTargetError(err)
		}
		data := make([]byte, 4)
		putLE32(data, v)
		out = append(out, target.RegisterValue{Descriptor: d, Data: data})
	}
	return out, nil
}

func (s *Service) WriteRegisters(ctx context.Context, values []target.RegisterValue) error {
	for _, v := range values {
		if err := s.translator.WriteCPURegister(ctx, int(v.Descriptor.ID), le32(v.Data)); err != nil {
			return toTargetError(err)
		}
	}
	return nil
}

func (s *Service) ReadMemory(ctx context.Context, space target.AddressSpace, addr target.Address, size target.Size, excluded []target.AddressRange) ([]byte, error) {
	data, err := s.translator.ReadMemory(ctx, uint32(addr), uint32(size))
	if err != nil {
		return nil, toTargetError(err)
	}

	s.mu.Lock()
	for a, orig := range s.softBreakpoints {
		for _, ex := range excluded {
			if !ex.Contains(a) {
				continue
			}
			off := int(a - addr)
			if off < 0 || off+len(orig) > len(data) {
				continue
			}
			copy(data[off:], orig)
		}
	}
	s.mu.Unlock()

	return data, nil
}

func (s *Service) WriteMemory(ctx context.Context, space target.AddressSpace, addr target.Address, data []byte) error {
	return toTargetError(s.translator.WriteMemory(ctx, uint32(addr), data))
}

// SetSoftwareBreakpoint saves the instruction word at addr and overwrites
// it with an ebreak. RISC-V's compressed-extension 16-bit breakpoints are
// not supported; size must describe a full 4-byte instruction slot.
func (s *Service) SetSoftwareBreakpoint(ctx context.Context, addr target.Address, size target.Size) error {
	orig, err := s.translator.ReadMemory(ctx, uint32(addr), 4)
	if err != nil {
		return toTargetError(err)
	}
	if err := s.translator.WriteMemory(ctx, uint32(addr), ebreakBytes()); err != nil {
		return toTargetError(err)
	}

	s.mu.Lock()
	s.softBreakpoints[addr] = orig
	s.mu.Unlock()
	return nil
}

func (s *Service) ClearSoftwareBreakpoint(ctx context.Context, addr target.Address) error {
	s.mu.Lock()
	orig, ok := s.softBreakpoints[addr]
	delete(s.softBreakpoints, addr)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return toTargetError(s.translator.WriteMemory(ctx, uint32(addr), orig))
}

func (s *Service) SetHardwareBreakpoint(ctx context.Context, addr target.Address, size target.Size) error {
	return toTargetError(s.translator.InsertTriggerBreakpoint(ctx, uint32(addr)))
}

func (s *Service) ClearHardwareBreakpoint(ctx context.Context, addr target.Address) error {
	return toTargetError(s.translator.ClearTriggerBreakpoint(ctx, uint32(addr)))
}

// EnterProgrammingMode halts the hart so flash, memory-mapped on the
// system bus, can be written safely.
func (s *Service) EnterProgrammingMode(ctx context.Context) error {
	return toTargetError(s.translator.Halt(ctx))
}

func (s *Service) LeaveProgrammingMode(ctx context.Context) error {
	return nil
}

// EraseFlashRange fills the given system-bus range with the erased-flash
// value. RISC-V microcontrollers map flash onto the same bus the debug
// module's memory-access abstract command already reaches, so erase and
// program are just bus writes, unlike AVR's dedicated NVM controller.
func (s *Service) EraseFlashRange(ctx context.Context, r target.AddressRange) error {
	fill := make([]byte, r.Size)
	for i := range fill {
		fill[i] = 0xff
	}
	return toTargetError(s.translator.WriteMemory(ctx, uint32(r.Start), fill))
}

func (s *Service) ProgramFlash(ctx context.Context, addr target.Address, data []byte) error {
	return toTargetError(s.translator.WriteMemory(ctx, uint32(addr), data))
}

func (s *Service) GetPinStates(ctx context.Context) ([]target.PinState, error) {
	return nil, nil
}

func (s *Service) Close() error {
	close(s.done)
	s.wg.Wait()
	close(s.changes)
	return s.translator.Deactivate(context.Background())
}

// toTargetError maps this package's own error taxonomy onto the
// target.Service boundary's, mirroring rsp.replyError's type-switch on
// the two sides of the same boundary.
func toTargetError(err error) error {
	switch e := err.(type) {
	case nil:
		return nil
	case *IllegalMemoryAccessError:
		return &target.IllegalMemoryAccessError{Reason: e.Error()}
	case *OperationError:
		return &target.OperationError{Reason: e.Message}
	case *FailureError:
		return &target.FailureError{Reason: e.Message}
	default:
		return &target.OperationError{Reason: err.Error()}
	}
}

// ebreakBytes returns the little-endian encoding of the RISC-V ebreak
// instruction, as written into target memory for a software breakpoint.
func ebreakBytes() []byte {
	b := make([]byte, 4)
	putLE32(b, uint32(Ebreak))
	return b
}
