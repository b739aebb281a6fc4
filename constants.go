// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see
//
// https://sourceforge.net/p/openocd/code

package dap

// DP register addresses (byte offsets into the debug port register file).
const (
	DPAbort    = 0x00
	DPCtrlStat = 0x04
	DPSelect   = 0x08
	DPRdBuff   = 0x0C
)

// DP_CTRL_STAT bits.
const (
	CtrlStatCSysPwrUpAck = 1 << 31
	CtrlStatCSysPwrUpReq = 1 << 30
	CtrlStatCDbgPwrUpAck = 1 << 29
	CtrlStatCDbgPwrUpReq = 1 << 28
	CtrlStatCDbgRstAck   = 1 << 27
	CtrlStatCDbgRstReq   = 1 << 26
	CtrlStatCOrunDetect  = 1 << 0
	CtrlStatSStickyOrun  = 1 << 1
	CtrlStatSStickyErr   = 1 << 5
)

// MEM-AP register offsets (spec.md §6).
const (
	MemAPRegCSW  = 0x00
	MemAPRegTAR  = 0x04
	MemAPRegDRW  = 0x0C
	MemAPRegBD0  = 0x10
	MemAPRegBD1  = 0x14
	MemAPRegBD2  = 0x18
	MemAPRegBD3  = 0x1C
	MemAPRegCFG  = 0xF4
	MemAPRegBASE = 0xF8
	APRegIDR     = 0xFC
)

// CSW field encodings.
const (
	CSW8Bit  = 0
	CSW16Bit = 1
	CSW32Bit = 2

	CSWAddrIncMask   = 0x30
	CSWAddrIncOff    = 0 << 4
	CSWAddrIncSingle = 1 << 4
	CSWAddrIncPacked = 2 << 4

	CSWDbgSwEnable = 1 << 31
	CSWMasterDebug = 1 << 29
	CSWHProt       = 1 << 25 // HPROT[0] = 1, data access

	// cswSPROT is the operator-toggleable secure-protection bit folded
	// into an AP's csw_default by WithSPROT.
	cswSPROT = 1 << 24
)

// AP IDR decode masks.
const (
	IDRJep106     = 0x0FFE0000
	IDRJep106ARM  = 0x04760000
	IDRTypeMask   = 0x0000000F
	IDRClassMask  = 0x0000F000
	APClassMemAP  = 0x00008000
	APTypeJTAGAP  = 0
	APTypeAHBAP   = 1
	APTypeAPBAP   = 2
	APTypeAXIAP   = 4
)

// Component ID quartet offsets, relative to a component's 4KiB base.
const (
	RegPID4 = 0xFD0
	RegPID0 = 0xFE0
	RegPID1 = 0xFE4
	RegPID2 = 0xFE8
	RegPID3 = 0xFEC
	RegCID0 = 0xFF0
	RegCID1 = 0xFF4
	RegCID2 = 0xFF8
	RegCID3 = 0xFFC
	RegDevType = 0xFCC
	RegMemType = 0xFCC
)

// DP_SELECT sentinel meaning "must re-emit on next access" (spec.md §3).
const selectInvalid = 0xFFFFFFFF

// MaxAPIndex is the largest legal AP index; the SELECT register's APSEL
// field is 8 bits wide.
const MaxAPIndex = 255

// DefaultTarAutoincrBlock is the minimum legal TAR autoincrement boundary
// required by the ADI spec (at least 10 bits of autoincrement).
const DefaultTarAutoincrBlock = 1 << 10

// romWalkLimit bounds both the lookup and display ROM-table walkers at the
// same offset, resolving spec.md §9's asymmetry note (Open Question 2).
const romWalkLimit = 0xF00

// romTableDepthLimit caps ROM-table recursion (spec.md §3 traversal frame).
const romTableDepthLimit = 16

// maxWaitRetries bounds the WAIT-ACK retry loop used by the DP bring-up
// handshake (spec.md §4.F).
const maxWaitRetries = 10

// CID validity mask (spec.md §7, invariant I7).
const (
	cidValidMask  = 0xFFFF0FFF
	cidValidMagic = 0xB105000D
)

// ANYID is the wildcard designer ID used by legacy part-number entries that
// predate JEP106 disambiguation.
const ANYID = 0x1000

// ARMID is ARM Ltd's JEP106 designer code as encoded in the part table.
const ARMID = 0x4BB
