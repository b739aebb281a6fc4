// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package scanchain implements dap.Transport over a serial scan-chain
// adapter: a board that shifts DP/AP register operations onto a JTAG or
// SWD scan chain and replies over a UART. It generalizes the same
// queued-packet idea as transport/usbprobe to a byte-oriented serial
// link, where framing and a handshake matter more than on USB bulk
// transfers.
package scanchain

import (
	"context"
	"fmt"
	"time"

	"github.com/cesanta/go-serial/serial"
	"github.com/juju/errors"

	godap "github.com/go-debug/godap"
)

const (
	// interCharacterTimeout bounds how long one Read blocks waiting for
	// the next byte of a response frame before go-serial returns a
	// pseudo-EOF.
	interCharacterTimeout = 200 * time.Millisecond

	// handshakeInterval is the resend period while waiting for the
	// adapter to answer the opening sync frame.
	handshakeInterval = 200 * time.Millisecond

	// handshakeAttempts bounds how many sync frames Open will send
	// before giving up.
	handshakeAttempts = 10
)

// frame delimiters bracket one packet on the wire so a receiver that
// starts mid-stream can resynchronize on the next delimiter rather than
// desyncing permanently, the same role streamFrameDelimiter1/2 play in
// the teacher's serial codec.
const (
	frameStart byte = 0x7E
	frameSync  byte = 0x16
)

type opcode byte

const (
	opDPRead opcode = iota
	opDPWrite
	opAPRead
	opAPWrite
)

type entry struct {
	op    opcode
	apNum uint8
	reg   uint32
	value uint32
	out   *uint32
}

// Config names the serial port and link parameters for a scan-chain
// adapter.
type Config struct {
	PortName string
	BaudRate uint

	// HardwareFlowControl enables RTS/CTS, for adapters that need it to
	// avoid overrunning their scan-chain shift buffer.
	HardwareFlowControl bool
}

// Transport is a dap.Transport backed by a serial scan-chain adapter.
type Transport struct {
	port serial.Serial
	cfg  Config

	journal []entry
}

var _ godap.Transport = (*Transport)(nil)

// Open opens the serial port named by cfg.PortName and performs the
// adapter's sync handshake, mirroring the teacher's Serial() constructor
// and its handshake loop in WriteWithContext, pulled up front here since
// a scan-chain adapter's framing is rigid enough to sync once at open
// time rather than per write.
func Open(cfg Config) (*Transport, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = 115200
	}

	port, err := serial.Open(serial.OpenOptions{
		PortName:              cfg.PortName,
		BaudRate:              baud,
		DataBits:              8,
		ParityMode:            serial.PARITY_NONE,
		StopBits:              1,
		HardwareFlowControl:   cfg.HardwareFlowControl,
		InterCharacterTimeout: uint(interCharacterTimeout / time.Millisecond),
		MinimumReadSize:       0,
	})
	if err != nil {
		return nil, errors.Annotatef(err, "scanchain: open %s", cfg.PortName)
	}
	port.Flush()

	t := &Transport{port: port, cfg: cfg}
	if err := t.syncHandshake(); err != nil {
		port.Close()
		return nil, err
	}
	return t, nil
}

// syncHandshake resends a single sync byte until the adapter echoes it
// back, the scan-chain equivalent of the teacher's delimiter handshake.
func (t *Transport) syncHandshake() error {
	ack := make([]byte, 1)
	for attempt := 0; attempt < handshakeAttempts; attempt++ {
		if _, err := t.port.Write([]byte{frameSync}); err != nil {
			return errors.Annotatef(err, "scanchain: handshake write")
		}
		n, err := t.port.Read(ack)
		if n == 1 && ack[0] == frameSync {
			return nil
		}
		_ = err
		time.Sleep(handshakeInterval)
	}
	return godap.ErrTransportFault(fmt.Errorf("no response to sync handshake"), "scanchain: %s", t.cfg.PortName)
}

// Close releases the serial port.
func (t *Transport) Close() error {
	return t.port.Close()
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
	t.journal = append(t.journal, entry{op: opAPRead, apNum: apNum, reg: reg, out: out})
	return nil
}

func (t *Transport) QueueAPWrite(apNum uint8, reg uint32, val uint32) error {
	t.journal = append(t.journal, entry{op: opAPWrite, apNum: apNum, reg: reg, value: val})
	return nil
}

// Run frames the journal into one delimited packet with a trailing
// checksum byte, writes it, and parses the delimited response packet
// it gets back. Framing on both ends lets either side resynchronize on
// the next frameStart byte if a previous exchange was corrupted.
func (t *Transport) Run() error {
	defer func() { t.journal = t.journal[:0] }()

	if len(t.journal) == 0 {
		return nil
	}

	payload := make([]byte, 0, 10*len(t.journal))
	for _, e := range t.journal {
		payload = append(payload, byte(e.op), e.apNum)
		payload = appendU32LE(payload, e.reg)
		payload = appendU32LE(payload, e.value)
	}

	frame := make([]byte, 0, len(payload)+3)
	frame = append(frame, frameStart)
	frame = append(frame, payload...)
	frame = append(frame, checksum(payload))

	if _, err := t.port.Write(frame); err != nil {
		return godap.ErrTransportFault(err, "scanchain: write frame")
	}

	nReads := 0
	for _, e := range t.journal {
		if e.op == opDPRead || e.op == opAPRead {
			nReads++
		}
	}

	resp, err := t.readFrame(1 + 4*nReads)
	if err != nil {
		return err
	}

	status := resp[0]
	if err := classifyStatus(status); err != nil {
		return err
	}

	off := 1
	for _, e := range t.journal {
		if e.op != opDPRead && e.op != opAPRead {
			continue
		}
		value := leToU32(resp[off:])
		off += 4
		if e.out != nil {
			*e.out = value
		}
	}

	return nil
}

// readFrame reads until it sees frameStart, then reads payloadLen bytes
// of payload plus one checksum byte, verifying the checksum.
func (t *Transport) readFrame(payloadLen int) ([]byte, error) {
	marker := make([]byte, 1)
	for {
		n, err := t.port.Read(marker)
		if err != nil {
			return nil, godap.ErrTransportFault(err, "scanchain: read frame marker")
		}
		if n == 1 && marker[0] == frameStart {
			break
		}
	}

	buf := make([]byte, payloadLen+1)
	read := 0
	for read < len(buf) {
		n, err := t.port.Read(buf[read:])
		if err != nil {
			return nil, godap.ErrTransportFault(err, "scanchain: read frame body")
		}
		read += n
	}

	payload, sum := buf[:payloadLen], buf[payloadLen]
	if checksum(payload) != sum {
		return nil, godap.ErrTransportFault(fmt.Errorf("checksum mismatch"), "scanchain: corrupt response frame")
	}
	return payload, nil
}

// PollRegister flushes and retries a DP register read until it matches,
// bounded by a context timeout, mirroring the teacher's WAIT-ACK retry
// shape adapted to a blocking serial link.
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
			return godap.ErrTimeout("scanchain: poll_register 0x%x timed out after %dms", reg, timeoutMs)
		default:
		}
	}
}

const (
	statusOK       byte = 0x00
	statusFault    byte = 0x01
	statusOverrun  byte = 0x02
	statusProtocol byte = 0x03
)

func classifyStatus(status byte) error {
	switch status {
	case statusOK:
		return nil
	case statusFault:
		return godap.ErrTransportFault(fmt.Errorf("adapter returned FAULT"), "scanchain")
	case statusOverrun:
		return godap.ErrOverrunDetected("scanchain: sticky overrun reported by adapter")
	case statusProtocol:
		return godap.ErrTransportFault(fmt.Errorf("adapter reported a protocol error"), "scanchain")
	default:
		return godap.ErrTransportFault(fmt.Errorf("unknown adapter status 0x%02x", status), "scanchain")
	}
}

func checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum ^= b
	}
	return sum
}

func appendU32LE(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func leToU32(buf []byte) uint32 {
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
}
