// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see
//
// https://sourceforge.net/p/openocd/code

package dap

// FindAP scans AP indices 0..255 by IDR and returns the first whose
// JEP106 designer code matches ARM and whose AP type field matches
// apType. A queue-time failure aborts the scan and returns that error;
// a failed flush is treated as "no match at this index" and the scan
// continues (spec.md §9's resolved Open Question 3 — some transports
// surface a missing AP as a run failure rather than a clean zero read).
func FindAP(dap *DAP, apType uint32) (*APState, error) {
	for apNum := 0; apNum <= MaxAPIndex; apNum++ {
		var idr uint32
		if err := dap.transport.QueueAPRead(uint8(apNum), APRegIDR, &idr); err != nil {
			return nil, ErrTransportFault(err, "queue IDR read on AP %d", apNum)
		}

		if err := dap.transport.Run(); err != nil {
			logger.Debugf("AP %d: run failed probing IDR, continuing scan: %v", apNum, err)
			continue
		}

		if idr&IDRJep106 == IDRJep106ARM && idr&IDRTypeMask == apType {
			logger.Debugf("found AP type 0x%x at index %d (IDR=0x%08x)", apType, apNum, idr)
			return dap.AP(uint8(apNum)), nil
		}
	}

	return nil, ErrResourceNotAvailable("no AP of type 0x%x found", apType)
}

// GetDebugBase reads an AP's BASE and IDR registers together in a single
// flush.
func GetDebugBase(ap *APState) (base uint32, idr uint32, err error) {
	if err = ap.dap.transport.QueueAPRead(ap.apNum, MemAPRegBASE, &base); err != nil {
		return 0, 0, ErrTransportFault(err, "queue BASE read on AP %d", ap.apNum)
	}
	if err = ap.dap.transport.QueueAPRead(ap.apNum, APRegIDR, &idr); err != nil {
		return 0, 0, ErrTransportFault(err, "queue IDR read on AP %d", ap.apNum)
	}
	if err = ap.dap.transport.Run(); err != nil {
		return 0, 0, ErrTransportFault(err, "flush debugbase read on AP %d", ap.apNum)
	}
	return base, idr, nil
}
