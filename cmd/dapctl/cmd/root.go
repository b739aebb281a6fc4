// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"os"

	"github.com/google/gousb"
	"github.com/spf13/cobra"

	godap "github.com/go-debug/godap"
	"github.com/go-debug/godap/transport/scanchain"
	"github.com/go-debug/godap/transport/usbprobe"
)

var (
	verbose bool

	// link selection flags, shared by every subcommand that needs to open
	// a transport.
	linkKind   string
	serialPort string
	serialBaud uint
	usbVID     uint
	usbPID     uint

	// apIndex is the AP index most subcommands operate on.
	apIndex uint8
)

var rootCmd = &cobra.Command{
	Use:     "dapctl",
	Short:   "ARM ADIv5 debug access port command-line driver",
	Version: "0.1.0",
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&linkKind, "link", "usb", "transport kind: usb or serial")
	rootCmd.PersistentFlags().StringVar(&serialPort, "port", "", "serial port path, for --link=serial")
	rootCmd.PersistentFlags().UintVar(&serialBaud, "baud", 115200, "serial baud rate, for --link=serial")
	rootCmd.PersistentFlags().UintVar(&usbVID, "vid", 0, "USB vendor ID, for --link=usb")
	rootCmd.PersistentFlags().UintVar(&usbPID, "pid", 0, "USB product ID, for --link=usb")
	rootCmd.PersistentFlags().Uint8Var(&apIndex, "ap", 0, "AP index")
}

// openTransport opens the transport named by the --link flag.
func openTransport() (godap.Transport, func() error, error) {
	switch linkKind {
	case "usb":
		t, err := usbprobe.Open(usbprobe.Config{
			VIDs:         []gousb.ID{gousb.ID(usbVID)},
			PIDs:         []gousb.ID{gousb.ID(usbPID)},
			InterfaceNum: 0,
			InEndpoint:   1,
			OutEndpoint:  1,
		})
		if err != nil {
			return nil, nil, err
		}
		return t, t.Close, nil
	case "serial":
		if serialPort == "" {
			return nil, nil, fmt.Errorf("--port is required for --link=serial")
		}
		t, err := scanchain.Open(scanchain.Config{PortName: serialPort, BaudRate: serialBaud})
		if err != nil {
			return nil, nil, err
		}
		return t, t.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown --link %q (expected usb or serial)", linkKind)
	}
}

// openDAP opens the configured transport and brings the debug port up.
func openDAP() (*godap.DAP, func() error, error) {
	transport, closeFn, err := openTransport()
	if err != nil {
		return nil, nil, err
	}
	dap, err := godap.DAPInit(transport)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return dap, closeFn, nil
}
