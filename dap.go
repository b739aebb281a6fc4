// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see
//
// https://sourceforge.net/p/openocd/code

package dap

import (
	"github.com/boljen/go-bitmap"
)

// APState is the per-access-port cached state (spec.md §3 "AP slot").
type APState struct {
	dap *DAP

	// apNum is this slot's fixed 0..255 index.
	apNum uint8

	// cswCache/tarCache are the last values written to this AP's CSW/TAR,
	// valid only after a successful Run. Any transaction failure
	// invalidates both; the next setupCSW/setupTAR must re-emit.
	cswCache uint32
	tarCache uint32
	cacheValid bool

	// cswDefault carries bits always ORed into every CSW write, e.g. the
	// user-configured SPROT bit.
	cswDefault uint32

	// memAccessTCK records the operator-set number of extra link cycles
	// per MEM-AP access (0..255). Nothing in this package passes it to
	// the transport, so it does not change the queued traffic.
	memAccessTCK uint8

	// tarAutoincrBlock is the implementation-defined power-of-two
	// boundary at which TAR autoincrement wraps. Minimum 2^10.
	tarAutoincrBlock uint32

	// packedTransfers reports whether packed 8/16-bit transfers work on
	// this AP, probed once by MemAPInit.
	packedTransfers bool

	// unalignedAccessBad reports whether unaligned sub-word accesses
	// must be rejected before any link traffic is issued.
	unalignedAccessBad bool
}

// APNum returns this slot's fixed AP index.
func (ap *APState) APNum() uint8 { return ap.apNum }

// DAP is the process-local handle for one attached target debug port
// (spec.md §3 "DAP"). It owns 256 per-AP state slots, the cached DP
// selector, the shadow of DP_CTRL_STAT, and the transport used to reach
// the physical link. A DAP is not safe for concurrent use — see spec.md
// §5.
type DAP struct {
	transport Transport

	// selectCache is the last value written to DP_SELECT, or
	// selectInvalid meaning "must re-emit on next access".
	selectCache uint32

	// ctrlStat shadows DP_CTRL_STAT's power/overrun bits as last observed
	// during bring-up.
	ctrlStat uint32

	// apsel is the currently selected AP index for user-facing commands.
	apsel uint8

	// tiBE32Quirks applies the TI TMS570/TMS470 byte-lane workaround to
	// every AP under this DAP.
	tiBE32Quirks bool

	ap [MaxAPIndex + 1]APState

	// apValid tracks which AP slots have been initialized by MemAPInit,
	// mirroring the teacher's opened_ap bitmap generalized from a single
	// global to a per-DAP set.
	apValid bitmap.Bitmap
}

// DAPOption configures a DAP at construction time.
type DAPOption func(*DAP)

// WithAPSel sets the AP index addressed by user-facing commands.
func WithAPSel(apsel uint8) DAPOption {
	return func(d *DAP) { d.apsel = apsel }
}

// WithSPROT toggles the CSW SPROT (secure protection) bit in every AP's
// default CSW overlay under this DAP.
func WithSPROT(enabled bool) DAPOption {
	return func(d *DAP) {
		for i := range d.ap {
			if enabled {
				d.ap[i].cswDefault |= cswSPROT
			} else {
				d.ap[i].cswDefault &^= cswSPROT
			}
		}
	}
}

// WithMemAccessCycles records cycles as the extra link TCK cycles per
// MEM-AP access on every AP under this DAP. The value is only stored on
// each APState; no access path reads it.
func WithMemAccessCycles(cycles uint8) DAPOption {
	return func(d *DAP) {
		for i := range d.ap {
			d.ap[i].memAccessTCK = cycles
		}
	}
}

// WithTIBE32Quirks enables the BE-32 workaround globally for this DAP,
// forcing packedTransfers off and unalignedAccessBad on for every AP
// (spec.md §4.H).
func WithTIBE32Quirks(enabled bool) DAPOption {
	return func(d *DAP) {
		d.tiBE32Quirks = enabled
		for i := range d.ap {
			d.ap[i].unalignedAccessBad = enabled
			if enabled {
				d.ap[i].packedTransfers = false
			}
		}
	}
}

// NewDAP allocates a DAP bound to transport, with 256 AP slots at their
// zero-value defaults, and applies opts in order.
func NewDAP(transport Transport, opts ...DAPOption) *DAP {
	d := &DAP{
		transport:   transport,
		selectCache: selectInvalid,
		apValid:     bitmap.New(MaxAPIndex + 1),
	}
	for i := range d.ap {
		d.ap[i] = APState{
			dap:              d,
			apNum:            uint8(i),
			tarAutoincrBlock: DefaultTarAutoincrBlock,
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AP returns the state slot for apNum. apNum is always in range because
// the slot array is fixed at MaxAPIndex+1 entries.
func (d *DAP) AP(apNum uint8) *APState { return &d.ap[apNum] }

// APSel returns the AP index currently selected for user-facing commands.
func (d *DAP) APSel() uint8 { return d.apsel }

// SetAPSel changes the AP index used by user-facing commands.
func (d *DAP) SetAPSel(apsel uint8) { d.apsel = apsel }

// TIBE32Quirks reports whether the BE-32 workaround is active for this
// DAP.
func (d *DAP) TIBE32Quirks() bool { return d.tiBE32Quirks }

// markAPValid records that MemAPInit has probed apNum's quirks.
func (d *DAP) markAPValid(apNum uint8) { d.apValid.Set(int(apNum), true) }

// isAPValid reports whether MemAPInit has already probed apNum.
func (d *DAP) isAPValid(apNum uint8) bool { return d.apValid.Get(int(apNum)) }

// invalidateCache marks every AP's CSW/TAR cache stale, per spec.md §5's
// "after any failure return, treat all AP cached state as stale" rule.
func (d *DAP) invalidateCache() {
	d.selectCache = selectInvalid
	for i := range d.ap {
		d.ap[i].cacheValid = false
	}
}
