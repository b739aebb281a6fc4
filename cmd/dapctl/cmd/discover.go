// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	godap "github.com/go-debug/godap"
)

var discoverAPType uint32

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan AP indices and report the first AP of the requested type",
	RunE:  runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().Uint32Var(&discoverAPType, "ap-type", godap.APTypeAHBAP, "AP type field to match (0=JTAG-AP, 1=AHB-AP, 2=APB-AP, 4=AXI-AP)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	dap, closeFn, err := openDAP()
	if err != nil {
		return err
	}
	defer closeFn()

	ap, err := godap.FindAP(dap, discoverAPType)
	if err != nil {
		return err
	}

	base, idr, err := godap.GetDebugBase(ap)
	if err != nil {
		return err
	}

	fmt.Printf("found AP %d: IDR=0x%08x BASE=0x%08x\n", ap.APNum(), idr, base)
	return nil
}
