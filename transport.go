// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package dap

// Transport is the capability set the core consumes from a physical debug
// link (serial-wire or scan-chain). Everything above this interface is
// link-agnostic; everything below it knows how to shift bits onto a wire.
//
// Queued reads are not populated until Run returns successfully — out
// pointers passed to QueueDPRead/QueueAPRead must not be read before that.
// Implementations execute queued operations in enqueue order and surface
// the first failure; pending-read destinations for operations after the
// failing one are left unspecified.
type Transport interface {
	// QueueDPRead schedules a DP register read. out receives the value
	// once Run succeeds; out may be nil to read purely for its side
	// effect (e.g. clearing a sticky status bit) and discard the value.
	QueueDPRead(reg uint32, out *uint32) error

	// QueueDPWrite schedules a DP register write.
	QueueDPWrite(reg uint32, val uint32) error

	// QueueAPRead schedules a read of reg on the AP addressed by apNum.
	QueueAPRead(apNum uint8, reg uint32, out *uint32) error

	// QueueAPWrite schedules a write of val to reg on the AP addressed by
	// apNum.
	QueueAPWrite(apNum uint8, reg uint32, val uint32) error

	// Run flushes the queue across the physical link. It returns nil only
	// if every queued operation ACKed successfully; otherwise the
	// returned error should be classified via ErrTransportFault or
	// ErrOverrunDetected so callers can branch on KindOf.
	Run() error

	// PollRegister flushes and retries a DP register read until
	// (value & mask) == expected or timeoutMs elapses, returning
	// ErrTimeout on budget exhaustion.
	PollRegister(reg uint32, mask uint32, expected uint32, timeoutMs int) error
}
