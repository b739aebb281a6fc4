// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	godap "github.com/go-debug/godap"
)

var read32Cmd = &cobra.Command{
	Use:   "read32 <address>",
	Short: "Read one 32-bit word through an AP's MEM-AP window",
	Args:  cobra.ExactArgs(1),
	RunE:  runRead32,
}

var write32Cmd = &cobra.Command{
	Use:   "write32 <address> <value>",
	Short: "Write one 32-bit word through an AP's MEM-AP window",
	Args:  cobra.ExactArgs(2),
	RunE:  runWrite32,
}

func init() {
	rootCmd.AddCommand(read32Cmd)
	rootCmd.AddCommand(write32Cmd)
}

func runRead32(cmd *cobra.Command, args []string) error {
	address, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", args[0], err)
	}

	dap, closeFn, err := openDAP()
	if err != nil {
		return err
	}
	defer closeFn()

	ap := dap.AP(apIndex)
	if err := godap.MemAPInit(ap); err != nil {
		return err
	}

	var value uint32
	if err := godap.MemAPReadAtomicU32(ap, uint32(address), &value); err != nil {
		return err
	}

	fmt.Printf("0x%08x: 0x%08x\n", address, value)
	return nil
}

func runWrite32(cmd *cobra.Command, args []string) error {
	address, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", args[0], err)
	}
	value, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[1], err)
	}

	dap, closeFn, err := openDAP()
	if err != nil {
		return err
	}
	defer closeFn()

	ap := dap.AP(apIndex)
	if err := godap.MemAPInit(ap); err != nil {
		return err
	}

	if err := godap.MemAPWriteAtomicU32(ap, uint32(address), uint32(value)); err != nil {
		return err
	}

	fmt.Printf("0x%08x <- 0x%08x\n", address, value)
	return nil
}
