// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/bloomdbg/dbgbridge/rsp"
)

func newMonitorCommand() *cobra.Command {
	var variant string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Interactively run monitor commands against a simulated target",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			svc, err := buildSimulatorService(ctx, variant)
			if err != nil {
				return err
			}

			rl, err := readline.New("dbgbridge> ")
			if err != nil {
				return err
			}
			defer rl.Close()

			for {
				line, err := rl.Readline()
				if err != nil {
					if err == io.EOF || err == readline.ErrInterrupt {
						return nil
					}
					return err
				}
				if line == "" {
					continue
				}
				if line == "quit" || line == "exit" {
					return nil
				}

				out, err := rsp.ExecuteMonitorCommand(ctx, line, svc)
				if err != nil {
					fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
					continue
				}
				fmt.Fprint(rl.Stdout(), out)
			}
		},
	}

	cmd.Flags().StringVar(&variant, "variant", "avr", "simulated target variant (avr, riscv)")
	return cmd
}
