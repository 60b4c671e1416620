// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rsp

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bloomdbg/dbgbridge/target"
)

const serverVersion = "0.1.0"

// ExecuteMonitorCommand runs a monitor sub-command directly against svc
// and returns its plain-text reply, for callers (the interactive monitor
// shell) that are not relaying a GDB qRcmd packet and so have no use for
// the hex encoding the wire protocol requires.
func ExecuteMonitorCommand(ctx context.Context, text string, svc target.Service) (string, error) {
	body, err := handleMonitor(ctx, nil, text, svc)
	if err != nil {
		return "", err
	}
	data, err := HexToData(string(body))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// handleMonitor dispatches a qRcmd's decoded text on its first word and
// returns the hex-encoded text reply GDB's "monitor" command prints
// verbatim to the user.
func handleMonitor(ctx context.Context, sess *Session, text string, svc target.Service) ([]byte, error) {
	text = strings.TrimSpace(text)
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return []byte(DataToHex([]byte("monitor: empty command\n"))), nil
	}

	switch fields[0] {
	case "reset":
		return monitorReset(ctx, svc)
	case "version":
		return monitorVersion(svc, fields)
	case "help":
		return monitorHelp()
	case "svd":
		return monitorSVD(svc)
	case "eeprom":
		if len(fields) >= 2 && fields[1] == "fill" {
			return monitorEEPROMFill(ctx, svc, fields[2:])
		}
		return monitorUnknown(text)
	case "lr":
		return monitorListRegisters(svc)
	case "rr":
		return monitorReadRegister(ctx, svc, fields[1:])
	case "wr":
		return monitorWriteRegister(ctx, svc, fields[1:])
	case "insight":
		return []byte(DataToHex([]byte("Insight is not available in this build\n"))), nil
	default:
		return monitorUnknown(text)
	}
}

func monitorUnknown(text string) ([]byte, error) {
	return []byte(DataToHex([]byte(fmt.Sprintf("unrecognised monitor command: %q\n", text)))), nil
}

func monitorReset(ctx context.Context, svc target.Service) ([]byte, error) {
	if err := svc.Reset(ctx); err != nil {
		return nil, err
	}
	if err := svc.Halt(ctx); err != nil {
		return nil, err
	}
	return []byte(DataToHex([]byte("Target reset and halted\n"))), nil
}

func monitorVersion(svc target.Service, fields []string) ([]byte, error) {
	desc := svc.Descriptor()
	msg := fmt.Sprintf("dbgbridge %s\n", serverVersion)
	if len(fields) >= 2 && fields[1] == "machine" {
		msg = fmt.Sprintf("%s;%s;%s\n", serverVersion, desc.Architecture, desc.Variant)
	}
	return []byte(DataToHex([]byte(msg))), nil
}

func monitorHelp() ([]byte, error) {
	const helpText = `Supported monitor commands:
  reset              Reset and halt the target
  version [machine]  Print server version
  svd                Print the attached target's CMSIS-SVD description
  eeprom fill <val>  Fill the EEPROM address space with a byte value
  lr                 List all known registers
  rr <name>          Read a named register
  wr <name> <value>  Write a named register
  help               Print this text
`
	return []byte(DataToHex([]byte(helpText))), nil
}

func monitorSVD(svc target.Service) ([]byte, error) {
	desc := svc.Descriptor()
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	b.WriteString(fmt.Sprintf("<device><name>%s</name><variant>%s</variant><peripherals>\n", desc.Name, desc.Variant))
	for _, r := range desc.Registers {
		b.WriteString(fmt.Sprintf("  <register><name>%s</name><size>%d</size></register>\n", r.Name, r.BitSize))
	}
	b.WriteString("</peripherals></device>\n")
	return []byte(DataToHex([]byte(b.String()))), nil
}

func monitorEEPROMFill(ctx context.Context, svc target.Service, args []string) ([]byte, error) {
	if len(args) < 1 {
		return []byte(DataToHex([]byte("usage: eeprom fill <byte-value>\n"))), nil
	}
	v, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return []byte(DataToHex([]byte("invalid fill value\n"))), nil
	}

	desc := svc.Descriptor()
	r, ok := desc.MemorySegments[target.AddressSpaceEEPROM]
	if !ok {
		return []byte(DataToHex([]byte("target has no EEPROM\n"))), nil
	}

	buf := make([]byte, r.Size)
	for i := range buf {
		buf[i] = byte(v)
	}
	if err := svc.WriteMemory(ctx, target.AddressSpaceEEPROM, r.Start, buf); err != nil {
		return nil, err
	}
	return []byte(DataToHex([]byte(fmt.Sprintf("EEPROM filled with 0x%02x\n", v)))), nil
}

func monitorListRegisters(svc target.Service) ([]byte, error) {
	desc := svc.Descriptor()
	var b strings.Builder
	for _, r := range desc.Registers {
		b.WriteString(fmt.Sprintf("%-16s %d-bit group=%s\n", r.Name, r.BitSize, r.Group))
	}
	return []byte(DataToHex([]byte(b.String()))), nil
}

func findRegisterByName(svc target.Service, name string) (target.RegisterDescriptor, bool) {
	for _, r := range svc.Descriptor().Registers {
		if r.Name == name {
			return r, true
		}
	}
	return target.RegisterDescriptor{}, false
}

func monitorReadRegister(ctx context.Context, svc target.Service, args []string) ([]byte, error) {
	if len(args) < 1 {
		return []byte(DataToHex([]byte("usage: rr <register-name>\n"))), nil
	}
	d, ok := findRegisterByName(svc, args[0])
	if !ok {
		return []byte(DataToHex([]byte("unknown register: " + args[0] + "\n"))), nil
	}
	values, err := svc.ReadRegisters(ctx, []target.RegisterDescriptor{d})
	if err != nil {
		return nil, err
	}
	return []byte(DataToHex([]byte(fmt.Sprintf("%s = 0x%s\n", d.Name, DataToHex(values[0].Data))))), nil
}

func monitorWriteRegister(ctx context.Context, svc target.Service, args []string) ([]byte, error) {
	if len(args) < 2 {
		return []byte(DataToHex([]byte("usage: wr <register-name> <value>\n"))), nil
	}
	d, ok := findRegisterByName(svc, args[0])
	if !ok {
		return []byte(DataToHex([]byte("unknown register: " + args[0] + "\n"))), nil
	}
	v, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return []byte(DataToHex([]byte("invalid register value\n"))), nil
	}
	data := make([]byte, d.ByteSize())
	for i := range data {
		data[i] = byte(v >> (8 * i))
	}
	if err := svc.WriteRegisters(ctx, []target.RegisterValue{{Descriptor: d, Data: data}}); err != nil {
		return nil, err
	}
	return []byte(DataToHex([]byte(fmt.Sprintf("%s = 0x%s\n", d.Name, args[1])))), nil
}
