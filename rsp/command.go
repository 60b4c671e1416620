// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsp

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/bloomdbg/dbgbridge/target"
)

// CommandKind classifies a decoded packet body by its leading byte or
// prefix string, per the RSP command set this server understands.
type CommandKind int

const (
	CmdUnknown CommandKind = iota
	CmdSupportedFeaturesQuery
	CmdMemoryMapRead
	CmdMonitor
	CmdVCont
	CmdSetBreakpoint
	CmdRemoveBreakpoint
	CmdReadRegisters
	CmdWriteRegisters
	CmdReadRegister
	CmdWriteRegister
	CmdReadMemory
	CmdWriteMemory
	CmdDetach
	CmdQueryStopReason
	CmdFlashErase
	CmdFlashWrite
	CmdFlashDone
	CmdStartNoAckMode
)

// VContAction is the action requested by a vCont packet.
type VContAction int

const (
	VContContinue VContAction = iota
	VContStep
	VContRangeStep
)

// Command is a single parsed client request. Only the fields relevant to
// Kind are populated.
type Command struct {
	Kind CommandKind

	// qSupported
	ClientFeatures FeatureSet

	// vCont
	VCont       VContAction
	VContAddr   *target.Address // optional start address for continue/step
	RangeStart  target.Address
	RangeEnd    target.Address

	// Z/z
	BreakpointAddr target.Address
	BreakpointKind byte // GDB-requested type, ignored per policy but recorded
	BreakpointSize target.Size

	// p/P
	RegisterNumber int
	RegisterValue  uint32

	// m/M
	MemAddr  uint32
	MemBytes uint32
	WriteBuf []byte

	// qRcmd
	MonitorText string

	// vFlashErase/vFlashWrite
	FlashAddr target.Address
	FlashData []byte
}

// ParseError reports a malformed command body. Handlers reply to the
// client with an RSP error response and continue the session.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse error: %s", e.Reason) }

// ParseCommand classifies and parses a decoded packet body into a typed
// Command.
func ParseCommand(body []byte) (*Command, error) {
	s := string(body)
	switch {
	case strings.HasPrefix(s, "qSupported"):
		return parseQSupported(s)
	case strings.HasPrefix(s, "qXfer:memory-map:read::"):
		return &Command{Kind: CmdMemoryMapRead}, nil
	case strings.HasPrefix(s, "qRcmd,"):
		return parseQRcmd(s)
	case strings.HasPrefix(s, "vCont;") || s == "vCont?":
		return parseVCont(s)
	case strings.HasPrefix(s, "vFlashErase:"):
		return parseFlashErase(s)
	case strings.HasPrefix(s, "vFlashWrite:"):
		return parseFlashWrite(s)
	case s == "vFlashDone":
		return &Command{Kind: CmdFlashDone}, nil
	case s == "QStartNoAckMode":
		return &Command{Kind: CmdStartNoAckMode}, nil
	case len(s) == 0:
		return nil, &ParseError{Reason: "empty command body"}
	}

	switch s[0] {
	case 'c', 's':
		return parseLegacyResume(s)
	case 'Z':
		return parseBreakpoint(s, CmdSetBreakpoint)
	case 'z':
		return parseBreakpoint(s, CmdRemoveBreakpoint)
	case 'g':
		return &Command{Kind: CmdReadRegisters}, nil
	case 'G':
		return &Command{Kind: CmdWriteRegisters, WriteBuf: []byte(s[1:])}, nil
	case 'p':
		return parseReadRegister(s)
	case 'P':
		return parseWriteRegister(s)
	case 'm':
		return parseReadMemory(s)
	case 'M':
		return parseWriteMemory(s)
	case 'D':
		return &Command{Kind: CmdDetach}, nil
	case '?':
		return &Command{Kind: CmdQueryStopReason}, nil
	}

	return &Command{Kind: CmdUnknown}, nil
}

func parseQSupported(s string) (*Command, error) {
	idx := strings.IndexByte(s, ':')
	body := ""
	if idx >= 0 {
		body = s[idx+1:]
	}
	return &Command{Kind: CmdSupportedFeaturesQuery, ClientFeatures: ParseFeatureSet(body)}, nil
}

func parseQRcmd(s string) (*Command, error) {
	hexPart := strings.TrimPrefix(s, "qRcmd,")
	raw, err := HexToData(hexPart)
	if err != nil {
		return nil, &ParseError{Reason: "malformed qRcmd hex payload"}
	}
	return &Command{Kind: CmdMonitor, MonitorText: string(raw)}, nil
}

func parseVCont(s string) (*Command, error) {
	if s == "vCont?" {
		return &Command{Kind: CmdVCont, VCont: VContContinue}, nil
	}
	rest := strings.TrimPrefix(s, "vCont;")
	action := rest
	if semi := strings.IndexByte(rest, ';'); semi >= 0 {
		action = rest[:semi]
	}

	cmd := &Command{Kind: CmdVCont}
	switch {
	case strings.HasPrefix(action, "r"):
		parts := strings.SplitN(action[1:], ",", 2)
		if len(parts) != 2 {
			return nil, &ParseError{Reason: "malformed vCont;r range"}
		}
		start, err := parseHexAddress(parts[0])
		if err != nil {
			return nil, err
		}
		end, err := parseHexAddress(parts[1])
		if err != nil {
			return nil, err
		}
		cmd.VCont = VContRangeStep
		cmd.RangeStart = start
		cmd.RangeEnd = end
	case strings.HasPrefix(action, "c"):
		cmd.VCont = VContContinue
		if addr := action[1:]; addr != "" {
			a, err := parseHexAddress(addr)
			if err != nil {
				return nil, err
			}
			cmd.VContAddr = &a
		}
	case strings.HasPrefix(action, "s"):
		cmd.VCont = VContStep
		if addr := action[1:]; addr != "" {
			a, err := parseHexAddress(addr)
			if err != nil {
				return nil, err
			}
			cmd.VContAddr = &a
		}
	default:
		return nil, &ParseError{Reason: "unsupported vCont action"}
	}
	return cmd, nil
}

func parseLegacyResume(s string) (*Command, error) {
	cmd := &Command{Kind: CmdVCont}
	if s[0] == 's' {
		cmd.VCont = VContStep
	}
	if len(s) > 1 {
		a, err := parseHexAddress(s[1:])
		if err != nil {
			return nil, err
		}
		cmd.VContAddr = &a
	}
	return cmd, nil
}

func parseBreakpoint(s string, kind CommandKind) (*Command, error) {
	parts := strings.Split(s[1:], ",")
	if len(parts) < 2 {
		return nil, &ParseError{Reason: "malformed breakpoint command"}
	}
	addr, err := parseHexAddress(parts[1])
	if err != nil {
		return nil, err
	}
	cmd := &Command{Kind: kind, BreakpointAddr: addr, BreakpointKind: parts[0][0]}
	if len(parts) > 2 {
		size, err := strconv.ParseUint(parts[2], 16, 32)
		if err != nil {
			return nil, &ParseError{Reason: "malformed breakpoint size"}
		}
		cmd.BreakpointSize = target.Size(size)
	}
	return cmd, nil
}

func parseReadRegister(s string) (*Command, error) {
	n, err := strconv.ParseInt(s[1:], 16, 32)
	if err != nil {
		return nil, &ParseError{Reason: "malformed register number"}
	}
	return &Command{Kind: CmdReadRegister, RegisterNumber: int(n)}, nil
}

func parseWriteRegister(s string) (*Command, error) {
	parts := strings.SplitN(s[1:], "=", 2)
	if len(parts) != 2 {
		return nil, &ParseError{Reason: "malformed P command"}
	}
	n, err := strconv.ParseInt(parts[0], 16, 32)
	if err != nil {
		return nil, &ParseError{Reason: "malformed register number"}
	}
	data, err := HexToData(parts[1])
	if err != nil {
		return nil, &ParseError{Reason: "malformed register value"}
	}
	cmd := &Command{Kind: CmdWriteRegister, RegisterNumber: int(n)}
	cmd.RegisterValue = leBytesToUint32(data)
	return cmd, nil
}

func parseReadMemory(s string) (*Command, error) {
	parts := strings.SplitN(s[1:], ",", 2)
	if len(parts) != 2 {
		return nil, &ParseError{Reason: "malformed m command"}
	}
	addr, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return nil, &ParseError{Reason: "malformed address"}
	}
	bytesLen, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return nil, &ParseError{Reason: "malformed length"}
	}
	return &Command{Kind: CmdReadMemory, MemAddr: uint32(addr), MemBytes: uint32(bytesLen)}, nil
}

func parseWriteMemory(s string) (*Command, error) {
	rest := s[1:]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return nil, &ParseError{Reason: "malformed M command"}
	}
	header := rest[:colon]
	parts := strings.SplitN(header, ",", 2)
	if len(parts) != 2 {
		return nil, &ParseError{Reason: "malformed M command header"}
	}
	addr, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return nil, &ParseError{Reason: "malformed address"}
	}
	bytesLen, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return nil, &ParseError{Reason: "malformed length"}
	}
	data, err := HexToData(rest[colon+1:])
	if err != nil {
		return nil, &ParseError{Reason: "malformed write buffer"}
	}
	if uint64(len(data)) != bytesLen {
		return nil, &ParseError{Reason: "write buffer length mismatch"}
	}
	return &Command{Kind: CmdWriteMemory, MemAddr: uint32(addr), MemBytes: uint32(bytesLen), WriteBuf: data}, nil
}

func parseFlashErase(s string) (*Command, error) {
	rest := strings.TrimPrefix(s, "vFlashErase:")
	parts := strings.SplitN(rest, ",", 2)
	if len(parts) != 2 {
		return nil, &ParseError{Reason: "malformed vFlashErase"}
	}
	addr, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return nil, &ParseError{Reason: "malformed flash erase address"}
	}
	size, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return nil, &ParseError{Reason: "malformed flash erase length"}
	}
	return &Command{Kind: CmdFlashErase, FlashAddr: target.Address(addr), MemBytes: uint32(size)}, nil
}

func parseFlashWrite(s string) (*Command, error) {
	rest := strings.TrimPrefix(s, "vFlashWrite:")
	colon := bytes.IndexByte([]byte(rest), ':')
	if colon < 0 {
		return nil, &ParseError{Reason: "malformed vFlashWrite"}
	}
	addr, err := strconv.ParseUint(rest[:colon], 16, 32)
	if err != nil {
		return nil, &ParseError{Reason: "malformed flash write address"}
	}
	// rest[colon+1:] is already unescaped: Decoder.Feed reverses the '}'
	// escaping while framing the packet, so ParseCommand only ever sees
	// raw binary here. Unescaping a second time would corrupt any flash
	// byte equal to 0x7d.
	data := []byte(rest[colon+1:])
	return &Command{Kind: CmdFlashWrite, FlashAddr: target.Address(addr), FlashData: data}, nil
}

func parseHexAddress(s string) (target.Address, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, &ParseError{Reason: "malformed address: " + s}
	}
	return target.Address(v), nil
}

func leBytesToUint32(b []byte) uint32 {
	var v uint32
	for i := 0; i < len(b) && i < 4; i++ {
		v |= uint32(b[i]) << (8 * i)
	}
	return v
}
