// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// dapctl is a command-line front end for the godap driver: discover APs,
// walk a CoreSight ROM table, or poke at MEM-AP memory directly, against
// either a USB-bulk probe or a serial scan-chain adapter.
package main

import (
	"os"

	"github.com/go-debug/godap/cmd/dapctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
