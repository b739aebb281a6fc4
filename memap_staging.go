// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see
//
// https://sourceforge.net/p/openocd/code

package dap

// setupCSW enqueues a CSW write iff the effective value (requested bits
// ORed with the overlay this driver always asserts, plus the AP's
// configured default) differs from the cached value. Returns the
// effective value written (or already cached) so callers can reuse it
// without re-reading ap.cswCache. Invariant I1.
func setupCSW(ap *APState, cswRequested uint32) (uint32, error) {
	effective := cswRequested | CSWDbgSwEnable | CSWMasterDebug | CSWHProt | ap.cswDefault
	if ap.cacheValid && effective == ap.cswCache {
		return effective, nil
	}
	if err := ap.dap.transport.QueueAPWrite(ap.apNum, MemAPRegCSW, effective); err != nil {
		return 0, ErrTransportFault(err, "queue CSW write on AP %d", ap.apNum)
	}
	ap.cswCache = effective
	ap.cacheValid = true
	return effective, nil
}

// setupTAR enqueues a TAR write unless tar already equals the cached
// value AND the current CSW's address-increment field is OFF. With
// autoincrement enabled the device mutates TAR behind the driver's back,
// so the cached value can never be trusted for elision in that mode
// (invariant I2).
func setupTAR(ap *APState, tar uint32) error {
	autoincrOff := ap.cswCache&CSWAddrIncMask == CSWAddrIncOff
	if ap.cacheValid && autoincrOff && tar == ap.tarCache {
		return nil
	}
	if err := ap.dap.transport.QueueAPWrite(ap.apNum, MemAPRegTAR, tar); err != nil {
		return ErrTransportFault(err, "queue TAR write on AP %d", ap.apNum)
	}
	ap.tarCache = tar
	return nil
}

// setupTransfer stages both CSW and TAR for a transaction, in that order,
// per spec.md §4.C.
func setupTransfer(ap *APState, csw uint32, tar uint32) error {
	if _, err := setupCSW(ap, csw); err != nil {
		return err
	}
	return setupTAR(ap, tar)
}
