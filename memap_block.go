// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see
//
// https://sourceforge.net/p/openocd/code

package dap

// chunkThisSize decides how many bytes the next DRW transaction will
// carry: 4 for a packed chunk when autoincrement, packed-transfer
// support, remaining byte count and room before the next
// tar_autoincr_block boundary all allow it, otherwise the natural access
// width. Shared between the write path, the read capture pass and the
// read replay pass so all three partition a transfer identically.
func chunkThisSize(ap *APState, autoinc bool, size int, remaining int, address uint32) (thisSize int, packed bool) {
	if autoinc && ap.packedTransfers && remaining >= 4 && maxBlockSize(ap.tarAutoincrBlock, address) >= 4 {
		return 4, true
	}
	return size, false
}

// MemAPWriteBuf writes buf to address at the given access width with TAR
// autoincrement. size must be 1, 2 or 4.
func MemAPWriteBuf(ap *APState, buf []byte, size int, address uint32) (int, error) {
	return memAPWrite(ap, buf, size, address, true)
}

// MemAPWriteBufNoIncr writes buf to address without autoincrement,
// FIFO-style: every chunk lands at the same address.
func MemAPWriteBufNoIncr(ap *APState, buf []byte, size int, address uint32) (int, error) {
	return memAPWrite(ap, buf, size, address, false)
}

func memAPWrite(ap *APState, buf []byte, size int, address uint32, autoinc bool) (int, error) {
	cswSize, err := cswSizeField(size)
	if err != nil {
		return 0, err
	}
	if ap.unalignedAccessBad && address%uint32(size) != 0 {
		return 0, ErrUnalignedAccess("write address 0x%x not aligned to size %d", address, size)
	}

	beQuirk := ap.dap.tiBE32Quirks
	var addrXor uint32
	if beQuirk {
		addrXor = addrXorFor(size)
	}

	startAddress := address
	cswAddrIncr := uint32(CSWAddrIncOff)
	if autoinc {
		cswAddrIncr = CSWAddrIncSingle
	}

	if err := setupTAR(ap, address^addrXor); err != nil {
		return 0, err
	}

	bufOff := 0
	remaining := len(buf)
	for remaining > 0 {
		thisSize, packed := chunkThisSize(ap, autoinc, size, remaining, address)
		csw := cswSize | cswAddrIncr
		if packed {
			csw = cswSize | CSWAddrIncPacked
		}
		if _, err := setupCSW(ap, csw); err != nil {
			return recoverWriteProgress(ap, startAddress, err)
		}

		var outvalue uint32
		for k := 0; k < thisSize; k++ {
			shift := byteLaneWrite(beQuirk, thisSize, addrXor, address, k)
			outvalue |= uint32(buf[bufOff+k]) << (8 * shift)
		}
		if err := ap.dap.transport.QueueAPWrite(ap.apNum, MemAPRegDRW, outvalue); err != nil {
			return recoverWriteProgress(ap, startAddress, ErrTransportFault(err, "queue DRW write on AP %d", ap.apNum))
		}

		remaining -= thisSize
		address += uint32(thisSize)
		bufOff += thisSize

		// Rewrite TAR if it wrapped within its autoincrement block, or
		// unconditionally whenever the BE-32 quirk is xoring addresses,
		// since autoincrement can no longer be trusted in that mode.
		if autoinc && (addrXor != 0 || (address%ap.tarAutoincrBlock < uint32(size) && remaining > 0)) {
			if err := setupTAR(ap, address^addrXor); err != nil {
				return recoverWriteProgress(ap, startAddress, err)
			}
		}
	}

	if err := ap.dap.transport.Run(); err != nil {
		return recoverWriteProgress(ap, startAddress, ErrTransportFault(err, "flush write on AP %d", ap.apNum))
	}
	return len(buf), nil
}

// recoverWriteProgress implements spec.md §4.E's post-failure progress
// recovery for the write path: one more TAR read, flushed on its own, to
// report exactly where the pipeline broke. cause is always returned
// unchanged; only the reported byte count varies.
func recoverWriteProgress(ap *APState, startAddress uint32, cause error) (int, error) {
	ap.cacheValid = false
	var tar uint32
	if err := ap.dap.transport.QueueAPRead(ap.apNum, MemAPRegTAR, &tar); err == nil {
		if err := ap.dap.transport.Run(); err == nil {
			logger.Errorf("failed to write memory at 0x%08x", tar)
			if tar < startAddress {
				return 0, cause
			}
			return int(tar - startAddress), cause
		}
	}
	logger.Errorf("failed to write memory and, additionally, failed to find out where")
	return 0, cause
}

// MemAPReadBuf reads len(buf) bytes from address at the given access
// width with TAR autoincrement.
func MemAPReadBuf(ap *APState, buf []byte, size int, address uint32) (int, error) {
	return memAPRead(ap, buf, size, address, true)
}

// MemAPReadBufNoIncr reads len(buf) bytes from address without
// autoincrement, FIFO-style.
func MemAPReadBufNoIncr(ap *APState, buf []byte, size int, address uint32) (int, error) {
	return memAPRead(ap, buf, size, address, false)
}

func memAPRead(ap *APState, buf []byte, size int, address uint32, autoinc bool) (int, error) {
	cswSize, err := cswSizeField(size)
	if err != nil {
		return 0, err
	}
	if ap.unalignedAccessBad && address%uint32(size) != 0 {
		return 0, ErrUnalignedAccess("read address 0x%x not aligned to size %d", address, size)
	}

	beQuirk := ap.dap.tiBE32Quirks
	startAddress := address
	cswAddrIncr := uint32(CSWAddrIncOff)
	if autoinc {
		cswAddrIncr = CSWAddrIncSingle
	}

	if err := setupTAR(ap, address); err != nil {
		return 0, err
	}

	// words holds the raw DRW captures in chunk order. Preallocated at
	// full capacity so the pointers QueueAPRead is handed never move
	// under a later append (Run has not executed yet, so nothing has
	// populated them).
	words := make([]uint32, 0, len(buf))

	remaining := len(buf)
	for remaining > 0 {
		thisSize, packed := chunkThisSize(ap, autoinc, size, remaining, address)
		csw := cswSize | cswAddrIncr
		if packed {
			csw = cswSize | CSWAddrIncPacked
		}
		if _, err := setupCSW(ap, csw); err != nil {
			return recoverReadProgress(ap, startAddress, buf, size, autoinc, beQuirk, words, err)
		}

		words = append(words, 0)
		if err := ap.dap.transport.QueueAPRead(ap.apNum, MemAPRegDRW, &words[len(words)-1]); err != nil {
			return recoverReadProgress(ap, startAddress, buf, size, autoinc, beQuirk, words, ErrTransportFault(err, "queue DRW read on AP %d", ap.apNum))
		}

		remaining -= thisSize
		address += uint32(thisSize)

		if autoinc && address%ap.tarAutoincrBlock < uint32(size) && remaining > 0 {
			if err := setupTAR(ap, address); err != nil {
				return recoverReadProgress(ap, startAddress, buf, size, autoinc, beQuirk, words, err)
			}
		}
	}

	if err := ap.dap.transport.Run(); err != nil {
		return recoverReadProgress(ap, startAddress, buf, size, autoinc, beQuirk, words, ErrTransportFault(err, "flush read on AP %d", ap.apNum))
	}

	replayReadWords(ap, buf, len(buf), size, startAddress, autoinc, beQuirk, words)
	return len(buf), nil
}

// replayReadWords re-walks the same chunk partition used to capture
// words and extracts nbytes worth of useful bytes from it into buf,
// using the byte-lane rule symmetric to the write path.
func replayReadWords(ap *APState, buf []byte, nbytes int, size int, startAddress uint32, autoinc bool, beQuirk bool, words []uint32) {
	address := startAddress
	bufOff := 0
	wordIdx := 0
	remaining := nbytes
	for remaining > 0 && wordIdx < len(words) {
		thisSize, _ := chunkThisSize(ap, autoinc, size, remaining, address)
		word := words[wordIdx]
		wordIdx++
		for k := 0; k < thisSize && bufOff < len(buf); k++ {
			shift := byteLaneRead(beQuirk, address, k)
			buf[bufOff] = byte(word >> shift)
			bufOff++
		}
		remaining -= thisSize
		address += uint32(thisSize)
	}
}

// recoverReadProgress implements spec.md §4.E's post-failure progress
// recovery for the read path: a TAR readback clamps how much of buf was
// actually populated before replaying the partial result.
func recoverReadProgress(ap *APState, startAddress uint32, buf []byte, size int, autoinc bool, beQuirk bool, words []uint32, cause error) (int, error) {
	ap.cacheValid = false
	var tar uint32
	if err := ap.dap.transport.QueueAPRead(ap.apNum, MemAPRegTAR, &tar); err == nil {
		if err := ap.dap.transport.Run(); err == nil {
			logger.Errorf("failed to read memory at 0x%08x", tar)
			nbytes := len(buf)
			if tar >= startAddress && int(tar-startAddress) < nbytes {
				nbytes = int(tar - startAddress)
			}
			replayReadWords(ap, buf, nbytes, size, startAddress, autoinc, beQuirk, words)
			return nbytes, cause
		}
	}
	logger.Errorf("failed to read memory and, additionally, failed to find out where")
	return 0, cause
}
