// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see
//
// https://sourceforge.net/p/openocd/code

package dap

// bankedDataReg returns the BDx register offset selected by address's
// bits [3:2], the banked-data-register optimization from spec.md §4.D
// that avoids a TAR update for successive accesses inside the same
// 16-byte window.
func bankedDataReg(address uint32) uint32 {
	switch address & 0xC {
	case 0x0:
		return MemAPRegBD0
	case 0x4:
		return MemAPRegBD1
	case 0x8:
		return MemAPRegBD2
	default:
		return MemAPRegBD3
	}
}

// MemAPReadU32 queues a 32-bit read of address via the banked data
// register for its 16-byte window, without flushing. out is populated
// only after a subsequent Run succeeds.
func MemAPReadU32(ap *APState, address uint32, out *uint32) error {
	if err := setupTransfer(ap, CSW32Bit|CSWAddrIncOff, address&0xFFFFFFF0); err != nil {
		return err
	}
	if err := ap.dap.transport.QueueAPRead(ap.apNum, bankedDataReg(address), out); err != nil {
		return ErrTransportFault(err, "queue banked read on AP %d", ap.apNum)
	}
	return nil
}

// MemAPWriteU32 queues a 32-bit write of value to address via the banked
// data register for its 16-byte window, without flushing.
func MemAPWriteU32(ap *APState, address uint32, value uint32) error {
	if err := setupTransfer(ap, CSW32Bit|CSWAddrIncOff, address&0xFFFFFFF0); err != nil {
		return err
	}
	if err := ap.dap.transport.QueueAPWrite(ap.apNum, bankedDataReg(address), value); err != nil {
		return ErrTransportFault(err, "queue banked write on AP %d", ap.apNum)
	}
	return nil
}

// MemAPReadAtomicU32 is MemAPReadU32 followed by an immediate flush, so
// out is valid on return.
func MemAPReadAtomicU32(ap *APState, address uint32, out *uint32) error {
	if err := MemAPReadU32(ap, address, out); err != nil {
		return err
	}
	return runAndInvalidateOnFailure(ap)
}

// MemAPWriteAtomicU32 is MemAPWriteU32 followed by an immediate flush.
func MemAPWriteAtomicU32(ap *APState, address uint32, value uint32) error {
	if err := MemAPWriteU32(ap, address, value); err != nil {
		return err
	}
	return runAndInvalidateOnFailure(ap)
}

// runAndInvalidateOnFailure flushes the queue and, on failure, marks this
// AP's CSW/TAR cache stale per spec.md §5 so the next setup_* re-emits.
func runAndInvalidateOnFailure(ap *APState) error {
	if err := ap.dap.transport.Run(); err != nil {
		ap.cacheValid = false
		return ErrTransportFault(err, "flush AP %d", ap.apNum)
	}
	return nil
}
