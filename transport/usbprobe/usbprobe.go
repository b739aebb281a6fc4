// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see
//
// https://sourceforge.net/p/openocd/code

// Package usbprobe implements dap.Transport over a USB-bulk debug probe,
// generalized from a single ST-Link's command-buffer protocol to a
// generic queued DP/AP register command packet. Any probe that accepts
// a batch of opcoded register operations over one bulk OUT endpoint and
// replies with one status byte plus one 4-byte word per queued read on
// a bulk IN endpoint can be driven by this package by supplying its
// vendor/product ID pair.
package usbprobe

import (
	"context"
	"fmt"
	"time"

	"github.com/boljen/go-bitmap"
	"github.com/google/gousb"
	"github.com/sirupsen/logrus"

	godap "github.com/go-debug/godap"
)

// opcode tags a journal entry's kind, mirroring the teacher's
// STLINK_DEBUG_APIV2_* command byte convention generalized to the four
// queueable DP/AP operations.
type opcode byte

const (
	opDPRead opcode = iota
	opDPWrite
	opAPRead
	opAPWrite
	opAPInit
)

// cmdBufferSize and dataBufferSize carry the sizes of the teacher's
// cmdbuf/databuf. Run uses cmdBufferSize only as the initial capacity of
// the command packet, which grows past it for a longer journal; nothing
// reads dataBufferSize.
const (
	cmdBufferSize  = 4096
	dataBufferSize = 4096
)

// entry is one queued operation together with where its eventual read
// result, if any, should be written back.
type entry struct {
	op    opcode
	apNum uint8
	reg   uint32
	value uint32
	out   *uint32
}

// Config selects which USB devices this probe recognizes.
type Config struct {
	VIDs []gousb.ID
	PIDs []gousb.ID

	// InEndpoint/OutEndpoint identify the bulk endpoints carrying the
	// command/response packets, analogous to the teacher's
	// rxEndpoint/txEndpoint. InterfaceNum appears only in Open's log
	// message: Open always claims the device's default interface.
	InterfaceNum int
	InEndpoint   int
	OutEndpoint  int
}

// Transport is a dap.Transport backed by a USB-bulk debug probe.
type Transport struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	iface  *gousb.Interface
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	done   func()
	config Config

	journal []entry

	// openedAP tracks which AP indices have had their one-time probe-side
	// init command issued, mirroring the teacher's accessport.go
	// opened_ap bitmap (there a package global, here per-transport since
	// a process may drive more than one probe).
	openedAP bitmap.Bitmap
}

var _ godap.Transport = (*Transport)(nil)

// Open finds the first USB device matching cfg's VID/PID list and claims
// its debug interface, mirroring usb_find_devices/usb_open in the
// teacher's usb.go generalized away from a single hardcoded probe.
func Open(cfg Config) (*Transport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(pickID(cfg.VIDs), pickID(cfg.PIDs))
	if err != nil || dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("usbprobe: no matching device found: %w", err)
	}

	iface, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbprobe: claim interface: %w", err)
	}

	in, err := iface.InEndpoint(cfg.InEndpoint)
	if err != nil {
		done()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbprobe: open in endpoint: %w", err)
	}
	out, err := iface.OutEndpoint(cfg.OutEndpoint)
	if err != nil {
		done()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbprobe: open out endpoint: %w", err)
	}

	logrus.Infof("usbprobe: opened device %s on interface %d", dev.String(), cfg.InterfaceNum)

	return &Transport{
		ctx:      ctx,
		dev:      dev,
		iface:    iface,
		in:       in,
		out:      out,
		done:     done,
		config:   cfg,
		openedAP: bitmap.New(godap.MaxAPIndex + 1),
	}, nil
}

// ensureAPOpen queues a one-time AP-init operation the first time a
// given AP index is touched, matching the teacher's usb_open_ap gate on
// STLINK_F_HAS_AP_INIT.
func (t *Transport) ensureAPOpen(apNum uint8) {
	if t.openedAP.Get(int(apNum)) {
		return
	}
	t.journal = append(t.journal, entry{op: opAPInit, apNum: apNum})
	t.openedAP.Set(int(apNum), true)
	logrus.Debugf("usbprobe: AP %d enabled", apNum)
}

func pickID(ids []gousb.ID) gousb.ID {
	if len(ids) == 0 {
		return 0
	}
	return ids[0]
}

// Close releases the USB interface and device, and the libusb context.
func (t *Transport) Close() error {
	t.iface.Close()
	t.done()
	err := t.dev.Close()
	t.ctx.Close()
	return err
}

func (t *Transport) QueueDPRead(reg uint32, out *uint32) error {
	t.journal = append(t.journal, entry{op: opDPRead, reg: reg, out: out})
	return nil
}

func (t *Transport) QueueDPWrite(reg uint32, val uint32) error {
	t.journal = append(t.journal, entry{op: opDPWrite, reg: reg, value: val})
	return nil
}

func (t *Transport) QueueAPRead(apNum uint8, reg uint32, out *uint32) error {
	t.ensureAPOpen(apNum)
	t.journal = append(t.journal, entry{op: opAPRead, apNum: apNum, reg: reg, out: out})
	return nil
}

func (t *Transport) QueueAPWrite(apNum uint8, reg uint32, val uint32) error {
	t.ensureAPOpen(apNum)
	t.journal = append(t.journal, entry{op: opAPWrite, apNum: apNum, reg: reg, value: val})
	return nil
}

// Run encodes the journal into one command packet, writes it to the out
// endpoint, reads the probe's response packet from the in endpoint, and
// distributes decoded read results to each entry's out pointer, mirroring
// the teacher's usbTransferReadWrite/usbGetReadWriteStatus pair.
func (t *Transport) Run() error {
	defer func() { t.journal = t.journal[:0] }()

	if len(t.journal) == 0 {
		return nil
	}

	cmdbuf := make([]byte, 0, cmdBufferSize)
	for _, e := range t.journal {
		cmdbuf = append(cmdbuf, byte(e.op), e.apNum)
		cmdbuf = appendU32LE(cmdbuf, e.reg)
		cmdbuf = appendU32LE(cmdbuf, e.value)
	}

	logrus.Tracef("usbprobe: flushing %d queued operations (%d bytes)", len(t.journal), len(cmdbuf))

	if _, err := t.out.Write(cmdbuf); err != nil {
		return godap.ErrTransportFault(err, "usbprobe: write command packet")
	}

	nReads := 0
	for _, e := range t.journal {
		if e.op == opDPRead || e.op == opAPRead {
			nReads++
		}
	}

	respbuf := make([]byte, 1+4*nReads)
	if _, err := t.in.Read(respbuf); err != nil {
		return godap.ErrTransportFault(err, "usbprobe: read response packet")
	}

	status := respbuf[0]
	if err := classifyStatus(status); err != nil {
		return err
	}

	off := 1
	for _, e := range t.journal {
		if e.op != opDPRead && e.op != opAPRead {
			continue
		}
		value := leToU32(respbuf[off:])
		off += 4
		if e.out != nil {
			*e.out = value
		}
	}

	return nil
}

// PollRegister flushes and retries a DP register read until it matches,
// sleeping between attempts like the teacher's WAIT-ACK retry loops in
// usbCmdAllowRetry.
func (t *Transport) PollRegister(reg uint32, mask uint32, expected uint32, timeoutMs int) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	for {
		var value uint32
		if err := t.QueueDPRead(reg, &value); err != nil {
			return err
		}
		if err := t.Run(); err != nil {
			return err
		}
		if value&mask == expected {
			return nil
		}
		select {
		case <-ctx.Done():
			return godap.ErrTimeout("usbprobe: poll_register 0x%x timed out after %dms", reg, timeoutMs)
		case <-time.After(time.Millisecond):
		}
	}
}

// probe status codes, generalized from the teacher's STLINK_DEBUG_ERR_*
// family in errors.go to a protocol-agnostic probe response byte.
const (
	statusOK       byte = 0x00
	statusWait     byte = 0x01
	statusFault    byte = 0x02
	statusOverrun  byte = 0x03
	statusProtocol byte = 0x04
)

func classifyStatus(status byte) error {
	switch status {
	case statusOK:
		return nil
	case statusWait:
		return godap.ErrTransportFault(fmt.Errorf("probe returned WAIT"), "usbprobe")
	case statusFault:
		return godap.ErrTransportFault(fmt.Errorf("probe returned FAULT"), "usbprobe")
	case statusOverrun:
		return godap.ErrOverrunDetected("usbprobe: sticky overrun reported by probe")
	case statusProtocol:
		return godap.ErrTransportFault(fmt.Errorf("probe reported a protocol error"), "usbprobe")
	default:
		return godap.ErrTransportFault(fmt.Errorf("unknown probe status 0x%02x", status), "usbprobe")
	}
}

func appendU32LE(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func leToU32(buf []byte) uint32 {
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
}
