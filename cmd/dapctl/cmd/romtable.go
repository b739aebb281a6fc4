// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	godap "github.com/go-debug/godap"
)

var romtableCmd = &cobra.Command{
	Use:   "romtable",
	Short: "Walk and print the CoreSight ROM table reachable from an AP's debug base",
	RunE:  runRomtable,
}

func init() {
	rootCmd.AddCommand(romtableCmd)
}

func runRomtable(cmd *cobra.Command, args []string) error {
	dap, closeFn, err := openDAP()
	if err != nil {
		return err
	}
	defer closeFn()

	ap := dap.AP(apIndex)
	if err := godap.MemAPInit(ap); err != nil {
		return err
	}

	base, _, err := godap.GetDebugBase(ap)
	if err != nil {
		return err
	}

	return godap.RomDisplay(ap, base, 0, func(info godap.ComponentInfo) {
		fmt.Println(info.String())
	})
}
