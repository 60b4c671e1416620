// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package riscv

// TriggerIndex selects a trigger via the tselect/tdata CSRs.
type TriggerIndex uint32

// TriggerType is one of the types a trigger's tinfo CSR may advertise.
type TriggerType int

const (
	TriggerTypeLegacy TriggerType = iota + 1
	TriggerTypeMatchControl
	TriggerTypeInstructionCount
	TriggerTypeInterrupt
	TriggerTypeException
	_
	TriggerTypeMatchControlV6
	TriggerTypeExternal
)

// TriggerDescriptor records what a discovered trigger resource supports.
type TriggerDescriptor struct {
	Index          TriggerIndex
	SupportedTypes map[TriggerType]bool
}

// TriggerSelectValue encodes tselect for the given index.
func TriggerSelectValue(index TriggerIndex) uint32 {
	return uint32(index)
}

// TriggerInfo decodes tinfo: a bitmask, one bit per TriggerType, of the
// types this trigger supports. A value of 0x01 (only bit 0 set: type 0,
// which no TriggerType constant names and which means "no trigger exists
// at this index") means the index doesn't exist.
type TriggerInfo struct {
	Info    uint16
	Version uint8
}

func TriggerInfoFromValue(v uint32) TriggerInfo {
	return TriggerInfo{
		Info:    uint16(v & 0xFFFF),
		Version: uint8(v >> 24),
	}
}

// NoTrigger reports whether tinfo indicates this index does not exist.
func (t TriggerInfo) NoTrigger() bool {
	return t.Info == 0x01
}

// SupportedTypes returns the set of trigger types tinfo reports.
func (t TriggerInfo) SupportedTypes() map[TriggerType]bool {
	out := map[TriggerType]bool{}
	for _, typ := range []TriggerType{
		TriggerTypeLegacy,
		TriggerTypeMatchControl,
		TriggerTypeInstructionCount,
		TriggerTypeInterrupt,
		TriggerTypeException,
		TriggerTypeMatchControlV6,
		TriggerTypeExternal,
	} {
		if t.Info&(1<<uint(typ)) != 0 {
			out[typ] = true
		}
	}
	return out
}

// TriggerData1Type extracts the trigger type from the top 4 bits of
// tdata1, used as a fallback when tinfo carries no type information.
func TriggerData1Type(v uint32) (TriggerType, bool) {
	typ := TriggerType(v >> 28)
	switch typ {
	case TriggerTypeLegacy, TriggerTypeMatchControl, TriggerTypeInstructionCount,
		TriggerTypeInterrupt, TriggerTypeException, TriggerTypeMatchControlV6, TriggerTypeExternal:
		return typ, true
	default:
		return 0, false
	}
}

// MatchControl is the match-control ("mcontrol") trigger data1 layout.
type MatchControl struct {
	Load      bool
	Store     bool
	Execute   bool
	UMode     bool
	SMode     bool
	MMode     bool
	Match     uint8 // [10:7]
	Chain     bool
	Action    uint8 // [15:12]
	SizeLo    uint8 // [17:16]
	Timing    bool
	Select    bool
	Hit       bool
	SizeHi    uint8 // [22:21]
}

const (
	TriggerActionEnterDebugMode uint8 = 1
)

// Value encodes MatchControl per the debug spec's match-control trigger (data1) layout.
func (m MatchControl) Value() uint32 {
	return boolBit(m.Load, 0) |
		boolBit(m.Store, 1) |
		boolBit(m.Execute, 2) |
		boolBit(m.UMode, 3) |
		boolBit(m.SMode, 4) |
		boolBit(m.MMode, 6) |
		uint32(m.Match&0x0F)<<7 |
		boolBit(m.Chain, 11) |
		uint32(m.Action&0x0F)<<12 |
		uint32(m.SizeLo&0x03)<<16 |
		boolBit(m.Timing, 18) |
		boolBit(m.Select, 19) |
		boolBit(m.Hit, 20) |
		uint32(m.SizeHi&0x03)<<21
}

// allocator tracks the triggers a translator has claimed for hardware
// breakpoints, as distinct from the full set discovered on the target.
type allocator struct {
	descriptors map[TriggerIndex]TriggerDescriptor
	allocated   map[TriggerIndex]bool
	byAddress   map[uint32]TriggerIndex
}

func newAllocator() *allocator {
	return &allocator{
		descriptors: map[TriggerIndex]TriggerDescriptor{},
		allocated:   map[TriggerIndex]bool{},
		byAddress:   map[uint32]TriggerIndex{},
	}
}

func (a *allocator) reset(descs map[TriggerIndex]TriggerDescriptor) {
	a.descriptors = descs
	a.allocated = map[TriggerIndex]bool{}
	a.byAddress = map[uint32]TriggerIndex{}
}

func (a *allocator) available() (TriggerDescriptor, bool) {
	for idx, desc := range a.descriptors {
		if !a.allocated[idx] {
			return desc, true
		}
	}
	return TriggerDescriptor{}, false
}

func (a *allocator) forAddress(addr uint32) (TriggerDescriptor, bool) {
	idx, ok := a.byAddress[addr]
	if !ok {
		return TriggerDescriptor{}, false
	}
	return a.descriptors[idx], true
}

func (a *allocator) claim(addr uint32, desc TriggerDescriptor) {
	a.allocated[desc.Index] = true
	a.byAddress[addr] = desc.Index
}

func (a *allocator) release(addr uint32) (TriggerDescriptor, bool) {
	idx, ok := a.byAddress[addr]
	if !ok {
		return TriggerDescriptor{}, false
	}
	desc := a.descriptors[idx]
	delete(a.byAddress, addr)
	delete(a.allocated, idx)
	return desc, true
}
