// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package riscv

import "context"

// preservedRegister snapshots a CPU register's value before the translator
// clobbers it (typically via program-buffer execution) so it can be put
// back once the operation using it is done.
type preservedRegister struct {
	number   RegisterNumber
	value    uint32
	restored bool
	dtm      *dtm
}

func preserveRegister(ctx context.Context, d *dtm, number RegisterNumber) (*preservedRegister, error) {
	v, err := d.readRegisterByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return &preservedRegister{number: number, value: v, dtm: d}, nil
}

// restore writes the preserved value back. Failure here is escalated to a
// fatal FailureError: a clobbered register that cannot be restored leaves
// the program running on the target in an undefined state, and there is no
// way to recover from that within the session.
func (p *preservedRegister) restore(ctx context.Context) error {
	if err := p.dtm.writeRegisterByNumber(ctx, p.number, p.value); err != nil {
		return failuref(
			"failed to restore CPU register 0x%x - error: %v - the target is now in an undefined state and may require a reset",
			p.number, err,
		)
	}
	p.restored = true
	return nil
}

// restoreOnce restores the register only if it has not already been
// restored. Used in cleanup paths that run after a normal restore may
// already have happened, or after an error partway through an operation.
func (p *preservedRegister) restoreOnce(ctx context.Context) error {
	if p.restored {
		return nil
	}
	return p.restore(ctx)
}
