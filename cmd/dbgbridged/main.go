// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command dbgbridged runs the GDB Remote Serial Protocol debug bridge.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	logger   = logrus.StandardLogger()
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "dbgbridged",
		Short: "GDB remote serial protocol bridge for AVR and RISC-V targets",
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		logger.SetLevel(level)
		return nil
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newMonitorCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
