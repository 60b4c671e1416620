// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsp

import (
	"context"

	"github.com/bloomdbg/dbgbridge/target"
)

// flashWrite is one vFlashWrite payload, recorded verbatim in the order it
// was received. Writes are not merged with each other, even when adjacent
// or in the same erased region; each is programmed by its own call.
type flashWrite struct {
	startAddress target.Address
	data         []byte
}

// FlashSession accumulates vFlashErase/vFlashWrite packets for the
// duration of a GDB "load" operation and flushes them all at once on
// vFlashDone. GDB may send writes out of address order and in pieces
// smaller than a flash page, so nothing is written to the target until
// the session is flushed.
type FlashSession struct {
	erasedRanges []target.AddressRange
	writes       []flashWrite
}

// NewFlashSession starts a new, empty programming session.
func NewFlashSession() *FlashSession {
	return &FlashSession{}
}

// RecordErase notes that the client requested a region be erased. The
// actual erase is deferred to Flush, which erases each recorded range
// exactly as given.
func (s *FlashSession) RecordErase(r target.AddressRange) {
	s.erasedRanges = append(s.erasedRanges, r)
}

// RecordWrite appends a write to the session's pending buffer.
func (s *FlashSession) RecordWrite(startAddress target.Address, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	s.writes = append(s.writes, flashWrite{startAddress: startAddress, data: buf})
}

// Flush erases every recorded range and then applies every recorded write,
// in the order they were received, via svc, one call per range and per
// write; a later write overlapping an earlier one overwrites its bytes.
// Flush stops at the first error and returns it; erases and writes already
// made are not undone, so the target's flash is left in whatever partial
// state the failing call produced.
func (s *FlashSession) Flush(ctx context.Context, svc target.Service) error {
	for _, r := range s.erasedRanges {
		if err := svc.EraseFlashRange(ctx, r); err != nil {
			return err
		}
	}
	for _, w := range s.writes {
		if err := svc.ProgramFlash(ctx, w.startAddress, w.data); err != nil {
			return err
		}
	}
	return nil
}
