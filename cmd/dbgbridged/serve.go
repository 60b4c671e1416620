// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bloomdbg/dbgbridge/riscv"
	"github.com/bloomdbg/dbgbridge/rsp"
	"github.com/bloomdbg/dbgbridge/target"
)

func newServeCommand() *cobra.Command {
	var (
		address              string
		port                 int
		rangeStepping        bool
		packetAcknowledgement bool
		variant              string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the GDB RSP debug server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ip := net.ParseIP(address)
			if ip == nil {
				return fmt.Errorf("invalid listen address %q", address)
			}

			cfg := rsp.Config{
				ListenAddress:                ip,
				ListenPort:                   port,
				RangeSteppingEnabled:         rangeStepping,
				PacketAcknowledgementEnabled: packetAcknowledgement,
				PacketSize:                   4096,
				Logger:                       logger,
			}

			svc, err := buildSimulatorService(cmd.Context(), variant)
			if err != nil {
				return err
			}
			return runServer(cfg, svc)
		},
	}

	cmd.Flags().StringVar(&address, "address", "127.0.0.1", "listen address")
	cmd.Flags().IntVar(&port, "port", 1442, "listen TCP port")
	cmd.Flags().BoolVar(&rangeStepping, "range-stepping", true, "enable vCont;r range stepping")
	cmd.Flags().BoolVar(&packetAcknowledgement, "packet-ack", true, "enable RSP packet acknowledgement")
	cmd.Flags().StringVar(&variant, "variant", "avr", "simulated target variant (avr, riscv)")

	return cmd
}

// buildSimulatorService builds the target.Service backing the "serve"
// command. The "riscv" variant drives the real Debug-Spec translator over
// an in-memory simulated debug module, rather than the generic simulator,
// so a RISC-V client exercises the same abstract-command, trigger, and
// register plumbing a physical probe would. The "avr" variant has no
// equivalent translator in this module, so it uses the generic simulator
// directly.
func buildSimulatorService(ctx context.Context, variant string) (target.Service, error) {
	if variant == "riscv" {
		const (
			sysAddressStart = uint32(0)
			sysAddressSize  = uint32(1 << 20)
			// sramStart sits inside the simulated system memory window
			// (real RISC-V microcontrollers often map SRAM far higher in
			// the address space, but the software-breakpoint region just
			// needs to be addressable by this in-memory transport).
			sramStart = uint32(0x00040000)
			sramSize  = uint32(1 << 16)
		)

		desc := target.Descriptor{
			Name:         "riscv-sim",
			Variant:      "generic-rv32",
			Architecture: "riscv",
			Registers:    rsp.RiscVRegisterDescriptors(),
			MemorySegments: map[target.AddressSpace]target.AddressRange{
				target.AddressSpaceSystem: {Start: target.Address(sysAddressStart), Size: target.Size(sysAddressSize)},
				target.AddressSpaceSRAM:   {Start: target.Address(sramStart), Size: target.Size(sramSize)},
			},
			FlashPageSize:     256,
			SystemAddressSize: 4,
		}

		transport := riscv.NewSimulatedTransport(sysAddressStart, sysAddressSize)
		return riscv.NewService(ctx, transport, desc, sysAddressStart, sysAddressSize, riscv.Config{})
	}

	return target.NewSimulator(target.Descriptor{
		Name:         "avr-sim",
		Variant:      "atmega328p",
		Architecture: "avr",
		Registers:    rsp.AVRRegisterDescriptors(),
		MemorySegments: map[target.AddressSpace]target.AddressRange{
			target.AddressSpaceFlash:  {Start: 0, Size: 32 * 1024},
			target.AddressSpaceSRAM:   {Start: 0, Size: 2 * 1024},
			target.AddressSpaceEEPROM: {Start: 0, Size: 1024},
		},
		FlashPageSize: 128,
	}), nil
}

func runServer(cfg rsp.Config, svc target.Service) error {
	server := rsp.NewServer(cfg, svc)
	if err := server.Init(); err != nil {
		return err
	}
	defer server.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		<-sigCh
		logger.Info("shutting down")
		close(done)
		server.Interrupt()
	}()

	ctx := context.Background()
	for {
		select {
		case <-done:
			return nil
		default:
		}
		if err := server.Run(ctx); err != nil {
			return err
		}
	}
}
