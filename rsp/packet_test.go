// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRoundTrip(t *testing.T) {
	body := []byte("qSupported:swbreak+;hwbreak+")
	encoded := Encode(body)

	assert.Equal(t, byte(frameStart), encoded[0])
	assert.Equal(t, byte(frameEnd), encoded[len(encoded)-3])

	escaped := encoded[1 : len(encoded)-3]
	d := &Decoder{}
	packets, consumed := d.Feed(encoded)
	require.Len(t, packets, 1)
	assert.Equal(t, len(encoded), consumed)
	assert.Equal(t, body, packets[0].Body)
	assert.True(t, packets[0].ChecksumOK)
	assert.True(t, VerifyChecksum(escaped, packets[0].Checksum))
}

func TestEncodeEscapesSpecialBytes(t *testing.T) {
	body := []byte{'$', '#', '}', '*'}
	encoded := Encode(body)

	d := &Decoder{}
	packets, _ := d.Feed(encoded)
	require.Len(t, packets, 1)
	assert.Equal(t, body, packets[0].Body)
	assert.True(t, packets[0].ChecksumOK)
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	body := []byte("qSupported:swbreak+;hwbreak+")
	encoded := Encode(body)
	encoded[1] = 'x' // corrupt a body byte without touching the checksum

	d := &Decoder{}
	packets, _ := d.Feed(encoded)
	require.Len(t, packets, 1)
	assert.False(t, packets[0].ChecksumOK)
}

func TestDecodeInterruptByte(t *testing.T) {
	d := &Decoder{}
	packets, consumed := d.Feed([]byte{interruptByte})
	require.Len(t, packets, 1)
	assert.Equal(t, 1, consumed)
	assert.True(t, packets[0].Interrupt)
}

func TestDecodeRunLengthAcrossFeedBoundary(t *testing.T) {
	// Raw frame "$a*" + count-byte(34 -> repeat 5 more times, for 6 total
	// 'a's) + "#cc", built by hand since Encode escapes '*', split across
	// two Feed calls to exercise the streaming run-length state.
	wire := []byte{'a', runLengthByte, byte(5 + runLengthBias)}
	encoded := append([]byte{frameStart}, wire...)
	encoded = append(encoded, frameEnd)
	encoded = append(encoded, hexByte(checksum(wire))...)

	d := &Decoder{}
	split := len(encoded) - 3 // leave checksum for the second call
	packets, _ := d.Feed(encoded[:split])
	assert.Empty(t, packets)

	packets, _ = d.Feed(encoded[split:])
	require.Len(t, packets, 1)
	assert.Equal(t, []byte("aaaaaa"), packets[0].Body)
}

func TestDataToHexRoundTrip(t *testing.T) {
	data := []byte{0x00, 0x01, 0xfe, 0xff}
	hexStr := DataToHex(data)
	assert.Equal(t, "0001feff", hexStr)

	decoded, err := HexToData(hexStr)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestHexToDataRejectsOddLength(t *testing.T) {
	_, err := HexToData("abc")
	assert.Error(t, err)
}
