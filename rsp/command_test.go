// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloomdbg/dbgbridge/target"
)

func TestParseCommandQSupported(t *testing.T) {
	cmd, err := ParseCommand([]byte("qSupported:swbreak+;hwbreak+;PacketSize=1000"))
	require.NoError(t, err)
	assert.Equal(t, CmdSupportedFeaturesQuery, cmd.Kind)
	assert.True(t, cmd.ClientFeatures.Has(FeatureSoftwareBreakpoints))
	assert.True(t, cmd.ClientFeatures.Has(FeatureHardwareBreakpoints))
	assert.Equal(t, "1000", cmd.ClientFeatures["PacketSize"])
}

func TestParseCommandQRcmd(t *testing.T) {
	// "reset" hex-encoded.
	cmd, err := ParseCommand([]byte("qRcmd," + DataToHex([]byte("reset"))))
	require.NoError(t, err)
	assert.Equal(t, CmdMonitor, cmd.Kind)
	assert.Equal(t, "reset", cmd.MonitorText)
}

func TestParseCommandVContQuery(t *testing.T) {
	cmd, err := ParseCommand([]byte("vCont?"))
	require.NoError(t, err)
	assert.Equal(t, CmdVCont, cmd.Kind)
}

func TestParseCommandVContRangeStep(t *testing.T) {
	cmd, err := ParseCommand([]byte("vCont;r100,200"))
	require.NoError(t, err)
	assert.Equal(t, CmdVCont, cmd.Kind)
	assert.Equal(t, VContRangeStep, cmd.VCont)
	assert.Equal(t, target.Address(0x100), cmd.RangeStart)
	assert.Equal(t, target.Address(0x200), cmd.RangeEnd)
}

func TestParseCommandVContContinueWithAddr(t *testing.T) {
	cmd, err := ParseCommand([]byte("vCont;c1a"))
	require.NoError(t, err)
	assert.Equal(t, VContContinue, cmd.VCont)
	require.NotNil(t, cmd.VContAddr)
	assert.Equal(t, target.Address(0x1a), *cmd.VContAddr)
}

func TestParseLegacyResume(t *testing.T) {
	cmd, err := ParseCommand([]byte("s"))
	require.NoError(t, err)
	assert.Equal(t, CmdVCont, cmd.Kind)
	assert.Equal(t, VContStep, cmd.VCont)
	assert.Nil(t, cmd.VContAddr)
}

func TestParseBreakpointSetAndRemove(t *testing.T) {
	set, err := ParseCommand([]byte("Z1,1000,2"))
	require.NoError(t, err)
	assert.Equal(t, CmdSetBreakpoint, set.Kind)
	assert.Equal(t, target.Address(0x1000), set.BreakpointAddr)
	assert.Equal(t, target.Size(2), set.BreakpointSize)

	remove, err := ParseCommand([]byte("z1,1000,2"))
	require.NoError(t, err)
	assert.Equal(t, CmdRemoveBreakpoint, remove.Kind)
}

func TestParseReadWriteRegister(t *testing.T) {
	read, err := ParseCommand([]byte("p1a"))
	require.NoError(t, err)
	assert.Equal(t, CmdReadRegister, read.Kind)
	assert.Equal(t, 0x1a, read.RegisterNumber)

	write, err := ParseCommand([]byte("P5=04030201"))
	require.NoError(t, err)
	assert.Equal(t, CmdWriteRegister, write.Kind)
	assert.Equal(t, 5, write.RegisterNumber)
	assert.Equal(t, uint32(0x01020304), write.RegisterValue)
}

func TestParseReadWriteMemory(t *testing.T) {
	read, err := ParseCommand([]byte("m1000,4"))
	require.NoError(t, err)
	assert.Equal(t, CmdReadMemory, read.Kind)
	assert.Equal(t, uint32(0x1000), read.MemAddr)
	assert.Equal(t, uint32(4), read.MemBytes)

	write, err := ParseCommand([]byte("M1000,2:aabb"))
	require.NoError(t, err)
	assert.Equal(t, CmdWriteMemory, write.Kind)
	assert.Equal(t, []byte{0xaa, 0xbb}, write.WriteBuf)
}

func TestParseWriteMemoryLengthMismatch(t *testing.T) {
	_, err := ParseCommand([]byte("M1000,4:aabb"))
	assert.Error(t, err)
}

func TestParseFlashEraseAndWrite(t *testing.T) {
	erase, err := ParseCommand([]byte("vFlashErase:1000,100"))
	require.NoError(t, err)
	assert.Equal(t, CmdFlashErase, erase.Kind)
	assert.Equal(t, target.Address(0x1000), erase.FlashAddr)

	write, err := ParseCommand([]byte("vFlashWrite:2000:\x01\x02\x03"))
	require.NoError(t, err)
	assert.Equal(t, CmdFlashWrite, write.Kind)
	assert.Equal(t, target.Address(0x2000), write.FlashAddr)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, write.FlashData)
}

func TestParseFlashWritePassesBinaryThrough(t *testing.T) {
	// The Decoder unescapes '}'-escaped bytes while framing the packet, so
	// by the time ParseCommand sees the body it is raw binary, including
	// any byte that happens to equal 0x7d ('}'). ParseCommand must not
	// unescape it again.
	raw := []byte("vFlashWrite:0:")
	raw = append(raw, 0x01, escapeByte, 0x02)
	write, err := ParseCommand(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, escapeByte, 0x02}, write.FlashData)
}

func TestDecoderThenParseCommandRoundTripsEscapedFlashByte(t *testing.T) {
	// Integration check: frame a packet whose flash payload contains a
	// byte equal to the special bytes requiring escape, decode it, then
	// parse the decoded body. The payload must come out unchanged.
	payload := append([]byte("vFlashWrite:0:"), '#', '$', escapeByte)
	raw := Encode(payload)

	var d Decoder
	packets, _ := d.Feed(raw)
	require.Len(t, packets, 1)

	write, err := ParseCommand(packets[0].Body)
	require.NoError(t, err)
	assert.Equal(t, []byte{'#', '$', escapeByte}, write.FlashData)
}

func TestParseDetachAndStopReason(t *testing.T) {
	detach, err := ParseCommand([]byte("D"))
	require.NoError(t, err)
	assert.Equal(t, CmdDetach, detach.Kind)

	stop, err := ParseCommand([]byte("?"))
	require.NoError(t, err)
	assert.Equal(t, CmdQueryStopReason, stop.Kind)
}

func TestParseCommandEmptyBody(t *testing.T) {
	_, err := ParseCommand([]byte{})
	assert.Error(t, err)
}

func TestParseCommandUnknown(t *testing.T) {
	cmd, err := ParseCommand([]byte("qXfer:unknown"))
	require.NoError(t, err)
	assert.Equal(t, CmdUnknown, cmd.Kind)
}
