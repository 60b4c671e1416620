// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package riscv implements a translator from the RISC-V Debug Specification
// 0.13+ debug module's abstract register and memory interface to the
// target-agnostic operations an RSP debug session needs: halt/resume/step,
// memory access, CPU register access, and hardware breakpoints backed by
// the trigger module.
package riscv

import (
	"context"
	"fmt"
	"time"

	"github.com/bloomdbg/dbgbridge/target"
)

// Config tunes translator behaviour; all fields have sane defaults.
type Config struct {
	// ResponseTimeout bounds how long the translator waits for the debug
	// module to clear a busy bit (halt, resume, reset, abstract command).
	ResponseTimeout time.Duration

	// PreferredMemoryAccessStrategy, if non-nil, is used whenever the
	// target actually supports it; otherwise the translator falls back to
	// whichever strategy the debug module advertises, preferring the
	// abstract command strategy for speed.
	PreferredMemoryAccessStrategy *MemoryAccessStrategy

	// NumCPURegisters is the number of GPRs exposed as GDB registers
	// 0..N-1 (RISC-V defines 32).
	NumCPURegisters int
}

func (c Config) withDefaults() Config {
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = 500 * time.Millisecond
	}
	if c.NumCPURegisters <= 0 {
		c.NumCPURegisters = 32
	}
	return c
}

// descriptor accumulates what activation discovers about the target's
// debug module: hart count, trigger resources, and data transfer
// capabilities.
type descriptor struct {
	hartIndices            []HartIndex
	triggers               map[TriggerIndex]TriggerDescriptor
	abstractDataRegisters  uint8
	programBufferSize      uint8
	memoryAccessStrategies map[MemoryAccessStrategy]bool
}

// Translator drives a single RISC-V hart over a target.DebugTransportModule.
// It is not safe for concurrent use; the owning debug session serializes
// all access.
type Translator struct {
	dtm              *dtm
	config           Config
	sysAddressStart  uint32
	sysAddressSize   uint32

	selectedHart HartIndex
	desc         descriptor
	strategy     MemoryAccessStrategy

	triggers *allocator
}

// NewTranslator constructs a translator over the given transport. The
// system address range is used to sanity-probe the memory access strategy
// during Activate.
func NewTranslator(transport target.DebugTransportModule, sysAddressStart, sysAddressSize uint32, cfg Config) *Translator {
	cfg = cfg.withDefaults()
	return &Translator{
		dtm:             newDTM(transport, cfg.ResponseTimeout),
		config:          cfg,
		sysAddressStart: sysAddressStart,
		sysAddressSize:  sysAddressSize,
		triggers:        newAllocator(),
	}
}

// Activate brings the debug module into a known state: discovers harts,
// selects the first one (multi-hart targets are not supported - only the
// first hart discovered is driven), halts it, discovers triggers and
// clears any left over from a previous session, and determines the memory
// access strategy to use for the remainder of the session.
func (t *Translator) Activate(ctx context.Context) error {
	harts, err := t.discoverHartIndices(ctx)
	if err != nil {
		return err
	}
	if len(harts) == 0 {
		return failuref("failed to discover any RISC-V harts")
	}
	t.selectedHart = harts[0]
	t.desc.hartIndices = harts

	if err := t.disableDebugModule(ctx); err != nil {
		return err
	}
	if err := t.enableDebugModule(ctx); err != nil {
		return err
	}

	if err := t.Halt(ctx); err != nil {
		return err
	}

	triggers, err := t.discoverTriggers(ctx)
	if err != nil {
		return err
	}
	t.desc.triggers = triggers
	t.triggers.reset(triggers)

	if len(triggers) > 0 {
		if err := t.ClearAllTriggers(ctx); err != nil {
			return err
		}
	}

	if err := t.initDebugControlStatusRegister(ctx); err != nil {
		return err
	}

	abstractStatus, err := t.dtm.readAbstractControlStatus(ctx)
	if err != nil {
		return err
	}
	t.desc.abstractDataRegisters = abstractStatus.DataCount
	t.desc.programBufferSize = abstractStatus.ProgramBufSize

	if err := t.clearProgramBuffer(ctx); err != nil {
		return err
	}

	t.desc.memoryAccessStrategies = map[MemoryAccessStrategy]bool{}
	if t.desc.abstractDataRegisters > 0 {
		if t.desc.programBufferSize >= 3 {
			t.desc.memoryAccessStrategies[MemoryAccessProgramBuffer] = true
		}

		if err := t.dtm.writeRegister(ctx, RegAddrData1, t.sysAddressStart); err != nil {
			return err
		}
		probeCommand := MemoryAccessCommand(MemoryAccessControl{PostIncrement: true, Size: MemoryAccessSize32})
		commandError, err := t.dtm.tryExecuteAbstractCommand(ctx, probeCommand)
		if err != nil {
			return err
		}
		if commandError == AbstractCmdErrNone {
			t.desc.memoryAccessStrategies[MemoryAccessAbstractCommand] = true
		}
	}

	if len(t.desc.memoryAccessStrategies) == 0 {
		return failuref("target doesn't support any known memory access strategies")
	}

	t.strategy = t.determineMemoryAccessStrategy()
	return nil
}

// Deactivate disables the debug module by writing dmcontrol with every
// field clear (dmactive included); it does not resume or reset the hart.
func (t *Translator) Deactivate(ctx context.Context) error {
	return t.disableDebugModule(ctx)
}

func (t *Translator) determineMemoryAccessStrategy() MemoryAccessStrategy {
	if t.config.PreferredMemoryAccessStrategy != nil && t.desc.memoryAccessStrategies[*t.config.PreferredMemoryAccessStrategy] {
		return *t.config.PreferredMemoryAccessStrategy
	}
	if t.desc.memoryAccessStrategies[MemoryAccessAbstractCommand] {
		return MemoryAccessAbstractCommand
	}
	for strategy := range t.desc.memoryAccessStrategies {
		return strategy
	}
	return MemoryAccessAbstractCommand
}

func (t *Translator) disableDebugModule(ctx context.Context) error {
	return t.dtm.writeControl(ctx, ControlRegister{})
}

func (t *Translator) enableDebugModule(ctx context.Context) error {
	return t.dtm.writeControl(ctx, ControlRegister{DMActive: true})
}

// GetExecutionState reports whether the selected hart is running or
// stopped. A reset detected via dmstatus is acknowledged transparently,
// preserving whatever run/halt state the hart was in before the reset.
func (t *Translator) GetExecutionState(ctx context.Context) (target.ExecutionState, error) {
	status, err := t.dtm.readStatus(ctx)
	if err != nil {
		return target.ExecutionStateUnknown, err
	}

	if status.AnyHaveReset {
		wasRunning := status.AnyRunning
		if wasRunning {
			if err := t.Halt(ctx); err != nil {
				return target.ExecutionStateUnknown, err
			}
		}

		if err := t.initDebugControlStatusRegister(ctx); err != nil {
			return target.ExecutionStateUnknown, err
		}
		if err := t.dtm.writeControl(ctx, ControlRegister{
			DMActive:     true,
			SelectedHart: t.selectedHart,
			AckHaveReset: true,
		}); err != nil {
			return target.ExecutionStateUnknown, err
		}

		if wasRunning {
			if err := t.Run(ctx, nil); err != nil {
				return target.ExecutionStateUnknown, err
			}
		}
	}

	if status.AnyRunning {
		return target.ExecutionStateRunning, nil
	}
	return target.ExecutionStateStopped, nil
}

// Halt requests the selected hart stop and waits for it to acknowledge.
func (t *Translator) Halt(ctx context.Context) error {
	control := ControlRegister{DMActive: true, SelectedHart: t.selectedHart, HaltRequest: true}
	if err := t.dtm.writeControl(ctx, control); err != nil {
		return err
	}

	status, err := t.pollStatus(ctx, func(s StatusRegister) bool { return s.AllHalted })
	if err != nil {
		return err
	}

	control.HaltRequest = false
	if err := t.dtm.writeControl(ctx, control); err != nil {
		return err
	}

	if !status.AllHalted {
		return opErrorf("target took too long to halt selected hart")
	}
	return nil
}

// Run requests the selected hart resume and waits for acknowledgement. If
// fromAddress is non-nil, the program counter is written before resuming.
// If the hart fails to acknowledge in time, it is halted again before
// returning an error, so the session is left in a known state.
func (t *Translator) Run(ctx context.Context, fromAddress *uint32) error {
	if fromAddress != nil {
		if err := t.WriteCPURegister(ctx, t.config.NumCPURegisters, *fromAddress); err != nil {
			return err
		}
	}

	control := ControlRegister{DMActive: true, SetResetHaltReq: true, SelectedHart: t.selectedHart, ResumeRequest: true}
	if err := t.dtm.writeControl(ctx, control); err != nil {
		return err
	}

	status, err := t.pollStatus(ctx, func(s StatusRegister) bool { return s.AllResumeAcknowledge })
	if err != nil {
		return err
	}

	control.ResumeRequest = false
	if err := t.dtm.writeControl(ctx, control); err != nil {
		return err
	}

	if !status.AllResumeAcknowledge {
		_ = t.Halt(ctx)
		return opErrorf("target took too long to acknowledge resume request")
	}
	return nil
}

// Step single-steps the selected hart by setting dcsr.step for the
// duration of one resume/halt cycle. If fromAddress is non-nil, the
// program counter is written before stepping.
func (t *Translator) Step(ctx context.Context, fromAddress *uint32) error {
	if fromAddress != nil {
		if err := t.WriteCPURegister(ctx, t.config.NumCPURegisters, *fromAddress); err != nil {
			return err
		}
	}

	dcsr, err := t.dtm.readRegisterByNumber(ctx, CSRDebugControlStatus)
	if err != nil {
		return err
	}
	status := DebugControlStatusFromValue(dcsr)
	status.Step = true
	if err := t.dtm.writeRegisterByNumber(ctx, CSRDebugControlStatus, status.Value()); err != nil {
		return err
	}

	control := ControlRegister{DMActive: true, SetResetHaltReq: true, SelectedHart: t.selectedHart, ResumeRequest: true}
	if err := t.dtm.writeControl(ctx, control); err != nil {
		return err
	}
	control.ResumeRequest = false
	if err := t.dtm.writeControl(ctx, control); err != nil {
		return err
	}

	status.Step = false
	return t.dtm.writeRegisterByNumber(ctx, CSRDebugControlStatus, status.Value())
}

// Reset issues a non-debug-module reset that halts the hart as soon as it
// comes out of reset, per the haltreq-before-ndmreset-clear convention.
func (t *Translator) Reset(ctx context.Context) error {
	if err := t.dtm.writeControl(ctx, ControlRegister{
		DMActive: true, NDMReset: true, SetResetHaltReq: true, SelectedHart: t.selectedHart, HaltRequest: true,
	}); err != nil {
		return err
	}
	if err := t.dtm.writeControl(ctx, ControlRegister{
		DMActive: true, SelectedHart: t.selectedHart, HaltRequest: true,
	}); err != nil {
		return err
	}

	status, err := t.pollStatus(ctx, func(s StatusRegister) bool { return s.AllHaveReset })
	if err != nil {
		return err
	}

	if err := t.dtm.writeControl(ctx, ControlRegister{
		DMActive: true, SetResetHaltReq: true, SelectedHart: t.selectedHart, AckHaveReset: true, HaltRequest: true,
	}); err != nil {
		return err
	}

	if !status.AllHaveReset {
		return opErrorf("target took too long to reset")
	}

	return t.initDebugControlStatusRegister(ctx)
}

func (t *Translator) pollStatus(ctx context.Context, done func(StatusRegister) bool) (StatusRegister, error) {
	status, err := t.dtm.readStatus(ctx)
	if err != nil {
		return StatusRegister{}, err
	}

	deadline := time.Now().Add(t.config.ResponseTimeout)
	for !done(status) && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-time.After(responsePollInterval):
		}
		status, err = t.dtm.readStatus(ctx)
		if err != nil {
			return StatusRegister{}, err
		}
	}
	return status, nil
}

func (t *Translator) initDebugControlStatusRegister(ctx context.Context) error {
	return t.dtm.writeRegisterByNumber(ctx, CSRDebugControlStatus, DebugControlStatusRegister{
		BreakUMode: true, BreakSMode: true, BreakMMode: true,
	}.Value())
}

func (t *Translator) clearProgramBuffer(ctx context.Context) error {
	if t.desc.programBufferSize == 0 {
		return nil
	}
	addr := RegAddrProgramBuffer0
	for i := uint8(0); i < t.desc.programBufferSize; i++ {
		if err := t.dtm.writeRegister(ctx, addr, 0); err != nil {
			return err
		}
		addr++
	}
	return nil
}

// ReadCPURegister reads a single GDB-numbered general-purpose register
// (0..NumCPURegisters-1) or the program counter (GDB number
// NumCPURegisters).
func (t *Translator) ReadCPURegister(ctx context.Context, gdbNumber int) (uint32, error) {
	return t.dtm.readRegisterByNumber(ctx, t.cpuRegisterNumber(gdbNumber))
}

// WriteCPURegister is the write-side counterpart of ReadCPURegister.
func (t *Translator) WriteCPURegister(ctx context.Context, gdbNumber int, value uint32) error {
	return t.dtm.writeRegisterByNumber(ctx, t.cpuRegisterNumber(gdbNumber), value)
}

func (t *Translator) cpuRegisterNumber(gdbNumber int) RegisterNumber {
	if gdbNumber == t.config.NumCPURegisters {
		return CSRDebugPC
	}
	return GPRNumber(gdbNumber)
}

// ReadMemory reads bytes from the system address space, aligning to word
// boundaries as the underlying strategies require and trimming the result
// back down to the caller's requested range.
func (t *Translator) ReadMemory(ctx context.Context, startAddress uint32, bytes uint32) ([]byte, error) {
	alignedStart := alignAddressDown(startAddress, wordByteSize)
	alignedBytes := alignSizeUp(bytes+(startAddress-alignedStart), wordByteSize)

	if alignedStart != startAddress || alignedBytes != bytes {
		buf, err := t.readAlignedMemory(ctx, alignedStart, alignedBytes)
		if err != nil {
			return nil, err
		}
		offset := startAddress - alignedStart
		return buf[offset : offset+bytes], nil
	}

	return t.readAlignedMemory(ctx, startAddress, bytes)
}

func (t *Translator) readAlignedMemory(ctx context.Context, startAddress, bytes uint32) ([]byte, error) {
	switch t.strategy {
	case MemoryAccessProgramBuffer:
		return t.dtm.readMemoryViaProgramBuffer(ctx, startAddress, bytes, t.desc.programBufferSize)
	case MemoryAccessAbstractCommand:
		return t.dtm.readMemoryViaAbstractCommand(ctx, startAddress, bytes)
	default:
		return nil, opErrorf("unknown selected memory access strategy")
	}
}

// WriteMemory writes bytes to the system address space. Misaligned writes
// are read-modify-written through an aligned buffer, matching the
// read-side alignment shim.
func (t *Translator) WriteMemory(ctx context.Context, startAddress uint32, buf []byte) error {
	alignedStart := alignAddressDown(startAddress, wordByteSize)
	alignedBytes := alignSizeUp(uint32(len(buf))+(startAddress-alignedStart), wordByteSize)

	if alignedStart != startAddress || alignedBytes != uint32(len(buf)) {
		existing, err := t.readAlignedMemory(ctx, alignedStart, alignedBytes)
		if err != nil {
			return err
		}
		offset := startAddress - alignedStart
		copy(existing[offset:], buf)
		return t.writeAlignedMemory(ctx, alignedStart, existing)
	}

	return t.writeAlignedMemory(ctx, startAddress, buf)
}

func (t *Translator) writeAlignedMemory(ctx context.Context, startAddress uint32, buf []byte) error {
	switch t.strategy {
	case MemoryAccessProgramBuffer:
		return t.dtm.writeMemoryViaProgramBuffer(ctx, startAddress, buf, t.desc.programBufferSize)
	case MemoryAccessAbstractCommand:
		return t.dtm.writeMemoryViaAbstractCommand(ctx, startAddress, buf)
	default:
		return opErrorf("unknown selected memory access strategy")
	}
}

// InsertTriggerBreakpoint installs a hardware breakpoint at address using a
// match-control trigger, reusing an already-claimed trigger for the same
// address if one exists.
func (t *Translator) InsertTriggerBreakpoint(ctx context.Context, address uint32) error {
	if _, ok := t.triggers.forAddress(address); ok {
		return nil
	}

	desc, ok := t.triggers.available()
	if !ok {
		return opErrorf("insufficient resources - no available trigger")
	}

	if !desc.SupportedTypes[TriggerTypeMatchControl] {
		return opErrorf("unsupported trigger")
	}

	if err := t.dtm.writeRegisterByNumber(ctx, CSRTriggerSelect, TriggerSelectValue(desc.Index)); err != nil {
		return err
	}
	mc := MatchControl{
		Execute: true, UMode: true, SMode: true, MMode: true,
		Action: TriggerActionEnterDebugMode,
	}
	if err := t.dtm.writeRegisterByNumber(ctx, CSRTriggerData1, mc.Value()); err != nil {
		return err
	}
	if err := t.dtm.writeRegisterByNumber(ctx, CSRTriggerData2, address); err != nil {
		return err
	}

	t.triggers.claim(address, desc)
	return nil
}

// ClearTriggerBreakpoint removes a previously installed hardware breakpoint.
func (t *Translator) ClearTriggerBreakpoint(ctx context.Context, address uint32) error {
	desc, ok := t.triggers.release(address)
	if !ok {
		return opErrorf("unknown hardware breakpoint at address 0x%x", address)
	}
	return t.clearTrigger(ctx, desc)
}

// ClearAllTriggers clears every trigger resource the debug module reported,
// not just ones this translator has allocated, to remove any left over
// from a previous, uncleanly terminated session.
func (t *Translator) ClearAllTriggers(ctx context.Context) error {
	for _, desc := range t.desc.triggers {
		if err := t.clearTrigger(ctx, desc); err != nil {
			return err
		}
	}
	t.triggers.reset(t.desc.triggers)
	return nil
}

func (t *Translator) clearTrigger(ctx context.Context, desc TriggerDescriptor) error {
	if !desc.SupportedTypes[TriggerTypeMatchControl] {
		return opErrorf("unsupported trigger")
	}
	if err := t.dtm.writeRegisterByNumber(ctx, CSRTriggerSelect, TriggerSelectValue(desc.Index)); err != nil {
		return err
	}
	return t.dtm.writeRegisterByNumber(ctx, CSRTriggerData1, MatchControl{}.Value())
}

// discoverHartIndices probes hartsel values in increasing order until
// dmstatus reports a non-existent hart, per the RISC-V Debug Spec's hart
// array discovery convention.
func (t *Translator) discoverHartIndices(ctx context.Context) ([]HartIndex, error) {
	var harts []HartIndex
	for index := HartIndex(0); index < 256; index++ {
		if err := t.dtm.writeControl(ctx, ControlRegister{DMActive: true, SelectedHart: index}); err != nil {
			return nil, err
		}
		status, err := t.dtm.readStatus(ctx)
		if err != nil {
			return nil, err
		}
		if status.AnyNonExistent {
			break
		}
		harts = append(harts, index)
	}
	return harts, nil
}

// discoverTriggers probes tselect/tinfo for each trigger index until an
// index reports no trigger, recording each one's supported types.
func (t *Translator) discoverTriggers(ctx context.Context) (map[TriggerIndex]TriggerDescriptor, error) {
	triggers := map[TriggerIndex]TriggerDescriptor{}

	for index := TriggerIndex(0); index < 32; index++ {
		if err := t.dtm.writeRegisterByNumber(ctx, CSRTriggerSelect, TriggerSelectValue(index)); err != nil {
			return nil, err
		}
		readBack, err := t.dtm.readRegisterByNumber(ctx, CSRTriggerSelect)
		if err != nil {
			return nil, err
		}
		if TriggerSelectValue(index) != 0 && readBack != TriggerSelectValue(index) {
			break
		}

		infoValue, err := t.dtm.readRegisterByNumber(ctx, CSRTriggerInfo)
		if err != nil {
			return nil, err
		}
		info := TriggerInfoFromValue(infoValue)

		var supported map[TriggerType]bool
		if info.NoTrigger() {
			break
		}
		if info.Info != 0 {
			supported = info.SupportedTypes()
		} else {
			data1, err := t.dtm.readRegisterByNumber(ctx, CSRTriggerData1)
			if err != nil {
				return nil, err
			}
			typ, ok := TriggerData1Type(data1)
			if !ok {
				break
			}
			supported = map[TriggerType]bool{typ: true}
		}

		triggers[index] = TriggerDescriptor{Index: index, SupportedTypes: supported}
	}

	return triggers, nil
}

// Descriptor returns a human-readable summary of what activation
// discovered, useful for the RSP monitor command surface.
func (t *Translator) Descriptor() string {
	return fmt.Sprintf(
		"harts=%d triggers=%d program-buffer-size=%d data-registers=%d strategy=%v",
		len(t.desc.hartIndices), len(t.desc.triggers), t.desc.programBufferSize, t.desc.abstractDataRegisters, t.strategy,
	)
}
