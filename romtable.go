// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see
//
// https://sourceforge.net/p/openocd/code

package dap

import "fmt"

// MemAPInit probes an AP's packed-transfer support and unaligned-access
// behavior, the one-time setup spec.md §4.H requires before the AP is
// used for block transfers.
//
// The probe writes CSW with 8-bit/packed increment and a TAR of 0, then
// reads CSW back: packedTransfers is true iff the readback still shows
// the packed increment field, since an AP that doesn't support packed
// transfers silently ignores the request. BE-32 quirk hardware is known
// to mishandle packed transfers even when it reports support for them,
// so the quirk always forces packedTransfers off regardless of the
// probe result.
func MemAPInit(ap *APState) error {
	if err := setupTransfer(ap, CSW8Bit|CSWAddrIncPacked, 0); err != nil {
		return err
	}

	var csw, cfg uint32
	if err := ap.dap.transport.QueueAPRead(ap.apNum, MemAPRegCSW, &csw); err != nil {
		return ErrTransportFault(err, "queue CSW probe read on AP %d", ap.apNum)
	}
	if err := ap.dap.transport.QueueAPRead(ap.apNum, MemAPRegCFG, &cfg); err != nil {
		return ErrTransportFault(err, "queue CFG read on AP %d", ap.apNum)
	}
	if err := ap.dap.transport.Run(); err != nil {
		return ErrTransportFault(err, "flush MemAPInit probe on AP %d", ap.apNum)
	}

	ap.packedTransfers = csw&CSWAddrIncMask == CSWAddrIncPacked
	if ap.dap.tiBE32Quirks {
		ap.packedTransfers = false
	}

	logger.Debugf("AP %d packed transfers: %v", ap.apNum, ap.packedTransfers)
	logger.Debugf("AP %d CFG: large data %v, long address %v, big-endian %v",
		ap.apNum, cfg&0x4 != 0, cfg&0x2 != 0, cfg&0x1 != 0)

	ap.unalignedAccessBad = ap.dap.tiBE32Quirks
	ap.dap.markAPValid(ap.apNum)
	return nil
}

// walkROMEntries invokes visit for each present ROM table entry found at
// 4-byte strides from base (masked to its 4 KiB component alignment),
// stopping at the first zero entry or after romWalkLimit bytes — spec.md
// §9's resolved Open Question 2 applies this bound to both the lookup
// and display walkers, where the original source only bounded display.
// visit returns (stop, err); stop ends the walk early without error.
func walkROMEntries(ap *APState, base uint32, visit func(entryOffset uint32, componentBase uint32, romEntry uint32) (stop bool, err error)) error {
	baseAddr := base & 0xFFFFF000
	for entryOffset := uint32(0); entryOffset < romWalkLimit; entryOffset += 4 {
		var romEntry uint32
		if err := MemAPReadAtomicU32(ap, baseAddr|entryOffset, &romEntry); err != nil {
			return err
		}
		if romEntry == 0 {
			return nil
		}
		componentBase := baseAddr + (romEntry & 0xFFFFF000)
		stop, err := visit(entryOffset, componentBase, romEntry)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

// LookupCSComponent recursively walks the ROM table rooted at dbgbase
// looking for a component whose DEVTYPE low byte equals devtypeWanted.
// idx selects the n-th match (0-based) when more than one component of
// that type exists. Returns ErrResourceNotAvailable if the walk is
// exhausted without a match; a component that fails to read (its
// on-chip domain may be powered off) is skipped rather than treated as
// fatal, per spec.md §7.
func LookupCSComponent(ap *APState, dbgbase uint32, devtypeWanted uint8, idx *int32) (uint32, error) {
	var found uint32

	err := walkROMEntries(ap, dbgbase, func(entryOffset, componentBase, romEntry uint32) (bool, error) {
		if romEntry&0x1 == 0 {
			return false, nil
		}

		var cid1 uint32
		if err := MemAPReadAtomicU32(ap, componentBase|0xFF4, &cid1); err != nil {
			logger.Errorf("can't read component at base 0x%08x, the corresponding core might be turned off", componentBase)
			return false, nil
		}

		if (cid1>>4)&0xF == 1 {
			addr, err := LookupCSComponent(ap, componentBase, devtypeWanted, idx)
			if err == nil {
				found = addr
				return true, nil
			}
			if !IsResourceNotAvailable(err) {
				return false, err
			}
		}

		var devtype uint32
		if err := MemAPReadAtomicU32(ap, componentBase&0xFFFFF000|0xFCC, &devtype); err != nil {
			return false, nil
		}
		if uint8(devtype&0xFF) == devtypeWanted {
			if *idx == 0 {
				found = componentBase
				return true, nil
			}
			*idx--
		}
		return false, nil
	})
	if err != nil {
		return 0, err
	}
	if found == 0 {
		return 0, ErrResourceNotAvailable("no component with DEVTYPE 0x%02x found under 0x%08x", devtypeWanted, dbgbase)
	}
	return found, nil
}

// readPartID reads a component's CID0..3 and PID0..4 quartets through the
// banked data window (the same TAR/BDx path walkROMEntries uses, since
// these registers live in target memory space, not the AP's own register
// bank) and assembles them into the packed forms spec.md §4.H describes.
func readPartID(ap *APState, componentBase uint32) (cid uint32, pid uint64, err error) {
	var pid0, pid1, pid2, pid3, pid4, cid0, cid1, cid2, cid3 uint32
	reads := []struct {
		addr uint32
		out  *uint32
	}{
		{componentBase + RegPID0, &pid0},
		{componentBase + RegPID1, &pid1},
		{componentBase + RegPID2, &pid2},
		{componentBase + RegPID3, &pid3},
		{componentBase + RegPID4, &pid4},
		{componentBase + RegCID0, &cid0},
		{componentBase + RegCID1, &cid1},
		{componentBase + RegCID2, &cid2},
		{componentBase + RegCID3, &cid3},
	}
	for _, r := range reads {
		if err := MemAPReadU32(ap, r.addr, r.out); err != nil {
			return 0, 0, err
		}
	}
	if err := ap.dap.transport.Run(); err != nil {
		return 0, 0, ErrTransportFault(err, "flush part-ID read on AP %d", ap.apNum)
	}

	cid = (cid3&0xFF)<<24 | (cid2&0xFF)<<16 | (cid1&0xFF)<<8 | (cid0 & 0xFF)
	pid = uint64(pid4&0xFF)<<32 | uint64(pid3&0xFF)<<24 | uint64(pid2&0xFF)<<16 | uint64(pid1&0xFF)<<8 | uint64(pid0&0xFF)
	return cid, pid, nil
}

// isValidCID reports whether cid carries the CoreSight CID magic value
// (spec.md invariant I7).
func isValidCID(cid uint32) bool {
	return cid&cidValidMask == cidValidMagic
}

// classDescription maps a CID component-class nibble to its ARM IHI
// 0029B §3 description.
var classDescription = [16]string{
	"Reserved", "ROM table", "Reserved", "Reserved",
	"Reserved", "Reserved", "Reserved", "Reserved",
	"Reserved", "CoreSight component", "Reserved", "Peripheral Test Block",
	"Reserved", "OptimoDE DESS",
	"Generic IP component", "PrimeCell or System component",
}

// partNum identifies a component by JEP106 (or legacy ASCII) designer
// code and part number, the process-wide table spec.md §4.H calls for.
type partNum struct {
	designerID uint16
	partNum    uint16
	short      string
	long       string
}

// dapPartNums is the static, process-wide part-number table. ANYID
// matches any designer and exists only to preserve legacy entries that
// predate JEP106 disambiguation.
var dapPartNums = []partNum{
	{ARMID, 0x000, "Cortex-M3 SCS", "(System Control Space)"},
	{ARMID, 0x001, "Cortex-M3 ITM", "(Instrumentation Trace Module)"},
	{ARMID, 0x002, "Cortex-M3 DWT", "(Data Watchpoint and Trace)"},
	{ARMID, 0x003, "Cortex-M3 FPB", "(Flash Patch and Breakpoint)"},
	{ARMID, 0x008, "Cortex-M0 SCS", "(System Control Space)"},
	{ARMID, 0x00a, "Cortex-M0 DWT", "(Data Watchpoint and Trace)"},
	{ARMID, 0x00b, "Cortex-M0 BPU", "(Breakpoint Unit)"},
	{ARMID, 0x00c, "Cortex-M4 SCS", "(System Control Space)"},
	{ARMID, 0x00d, "CoreSight ETM11", "(Embedded Trace)"},
	{ARMID, 0x00e, "Cortex-M7 FPB", "(Flash Patch and Breakpoint)"},
	{ARMID, 0x4c0, "Cortex-M0+ ROM", "(ROM Table)"},
	{ARMID, 0x4c3, "Cortex-M3 ROM", "(ROM Table)"},
	{ARMID, 0x4c4, "Cortex-M4 ROM", "(ROM Table)"},
	{ARMID, 0x4c7, "Cortex-M7 PPB ROM", "(Private Peripheral Bus ROM Table)"},
	{ARMID, 0x4c8, "Cortex-M7 ROM", "(ROM Table)"},
	{ARMID, 0x470, "Cortex-M1 ROM", "(ROM Table)"},
	{ARMID, 0x471, "Cortex-M0 ROM", "(ROM Table)"},
	{ARMID, 0x4a1, "Cortex-A53 ROM", "(v8 Memory Map ROM Table)"},
	{ARMID, 0x4a2, "Cortex-A57 ROM", "(ROM Table)"},
	{ARMID, 0x4a3, "Cortex-A53 ROM", "(v7 Memory Map ROM Table)"},
	{ARMID, 0x4a4, "Cortex-A72 ROM", "(ROM Table)"},
	{ARMID, 0x4af, "Cortex-A15 ROM", "(ROM Table)"},
	{ARMID, 0x906, "CoreSight CTI", "(Cross Trigger)"},
	{ARMID, 0x907, "CoreSight ETB", "(Trace Buffer)"},
	{ARMID, 0x908, "CoreSight CSTF", "(Trace Funnel)"},
	{ARMID, 0x909, "CoreSight ATBR", "(Advanced Trace Bus Replicator)"},
	{ARMID, 0x912, "CoreSight TPIU", "(Trace Port Interface Unit)"},
	{ARMID, 0x913, "CoreSight ITM", "(Instrumentation Trace Macrocell)"},
	{ARMID, 0x914, "CoreSight SWO", "(Single Wire Output)"},
	{ARMID, 0x923, "Cortex-M3 TPIU", "(Trace Port Interface Unit)"},
	{ARMID, 0x924, "Cortex-M3 ETM", "(Embedded Trace)"},
	{ARMID, 0x925, "Cortex-M4 ETM", "(Embedded Trace)"},
	{ARMID, 0x932, "CoreSight MTB-M0+", "(Micro Trace Buffer)"},
	{ARMID, 0x961, "CoreSight TMC", "(Trace Memory Controller)"},
	{ARMID, 0x962, "CoreSight STM", "(System Trace Macrocell)"},
	{ARMID, 0x9a0, "CoreSight PMU", "(Performance Monitoring Unit)"},
	{0x09f, 0xcd0, "Atmel CPU with DSU", "(CPU)"},
	{ANYID, 0x120, "TI SDTI", "(System Debug Trace Interface)"},
	{ANYID, 0x343, "TI DAPCTL", ""},
}

func lookupPartNum(designerID uint16, partN uint16) (short string, long string, ok bool) {
	for _, e := range dapPartNums {
		if e.designerID != designerID && e.designerID != ANYID {
			continue
		}
		if e.partNum != partN {
			continue
		}
		return e.short, e.long, true
	}
	return "Unrecognized", "", false
}

// devTypeDescription decodes a CoreSight component's DEVTYPE byte into
// its major/minor classification, per ARM IHI 0029B table 9-3.
func devTypeDescription(devtype uint8) (major string, minor string) {
	majorMinor := map[uint8]map[uint8]string{
		0x0: {0x0: "other", 0x4: "Validation component"},
		0x1: {0x0: "other", 0x1: "Port", 0x2: "Buffer", 0x3: "Router"},
		0x2: {0x0: "other", 0x1: "Funnel, router", 0x2: "Filter", 0x3: "FIFO, buffer"},
		0x3: {0x0: "other", 0x1: "Processor", 0x2: "DSP", 0x3: "Engine/Coprocessor", 0x4: "Bus", 0x6: "Software"},
		0x4: {0x0: "other", 0x1: "Trigger Matrix", 0x2: "Debug Auth", 0x3: "Power Requestor"},
		0x5: {0x0: "other", 0x1: "Processor", 0x2: "DSP", 0x3: "Engine/Coprocessor", 0x4: "Bus", 0x5: "Memory"},
		0x6: {0x0: "other", 0x1: "Processor", 0x2: "DSP", 0x3: "Engine/Coprocessor", 0x4: "Bus", 0x5: "Memory"},
	}
	majorNames := map[uint8]string{
		0x0: "Miscellaneous", 0x1: "Trace Sink", 0x2: "Trace Link", 0x3: "Trace Source",
		0x4: "Debug Control", 0x5: "Debug Logic", 0x6: "Performance Monitor",
	}
	majorKey := devtype & 0xF
	minorKey := (devtype >> 4) & 0xF
	major, ok := majorNames[majorKey]
	if !ok {
		return "Reserved", "Reserved"
	}
	minor, ok = majorMinor[majorKey][minorKey]
	if !ok {
		minor = "Reserved"
	}
	return major, minor
}

// ComponentInfo is the decoded CID/PID description of a single CoreSight
// component, as produced by one RomDisplay visit.
type ComponentInfo struct {
	BaseAddr   uint32
	CID        uint32
	PID        uint64
	Valid      bool
	Class      uint8
	ClassName  string
	PartNum    uint16
	DesignerID uint16
	PartShort  string
	PartLong   string
	Depth      int
}

// String formats a ComponentInfo as a single line holding the fields
// dap_rom_display's command_print calls report.
func (c ComponentInfo) String() string {
	if !c.Valid {
		return fmt.Sprintf("Component base address 0x%08x: invalid CID 0x%08x", c.BaseAddr, c.CID)
	}
	return fmt.Sprintf("Component base address 0x%08x: PID 0x%010x designer 0x%03x part 0x%03x %s %s, class 0x%x %s",
		c.BaseAddr, c.PID, c.DesignerID, c.PartNum, c.PartShort, c.PartLong, c.Class, c.ClassName)
}

// RomDisplay recursively walks the ROM table rooted at dbgbase, decoding
// each component's CID/PID and invoking visit with the result. Once depth
// exceeds romTableDepthLimit (spec.md §3's traversal frame depth bound)
// it returns ErrResourceNotAvailable, and that error propagates out of
// every enclosing table's walk; a component that fails to read is
// reported through visit as !Valid rather than aborting the walk,
// matching arm_adi_v5.c's "don't abort recursion" comment.
func RomDisplay(ap *APState, dbgbase uint32, depth int, visit func(ComponentInfo)) error {
	if depth > romTableDepthLimit {
		return ErrResourceNotAvailable("ROM table nesting exceeds depth %d", romTableDepthLimit)
	}

	baseAddr := dbgbase & 0xFFFFF000
	cid, pid, err := readPartID(ap, baseAddr)
	if err != nil {
		visit(ComponentInfo{BaseAddr: baseAddr, Depth: depth})
		return nil
	}
	if !isValidCID(cid) {
		visit(ComponentInfo{BaseAddr: baseAddr, CID: cid, Depth: depth})
		return nil
	}

	class := uint8((cid >> 12) & 0xF)
	partN := uint16(pid & 0xFFF)
	designerID := uint16((pid>>32)&0xF)<<8 | uint16((pid>>12)&0xFF)

	short, long, _ := lookupPartNum(designerID, partN)
	visit(ComponentInfo{
		BaseAddr:   baseAddr,
		CID:        cid,
		PID:        pid,
		Valid:      true,
		Class:      class,
		ClassName:  classDescription[class],
		PartNum:    partN,
		DesignerID: designerID,
		PartShort:  short,
		PartLong:   long,
		Depth:      depth,
	})

	switch class {
	case 1: // ROM table
		return walkROMEntries(ap, baseAddr, func(entryOffset, componentBase, romEntry uint32) (bool, error) {
			if romEntry&0x1 != 0 {
				return false, RomDisplay(ap, componentBase, depth+1, visit)
			}
			return false, nil
		})
	case 9: // CoreSight component
		var devtype uint32
		if err := MemAPReadAtomicU32(ap, baseAddr|RegDevType, &devtype); err != nil {
			return err
		}
		major, minor := devTypeDescription(uint8(devtype & 0xFF))
		logger.Debugf("component at 0x%08x: type 0x%02x, %s, %s", baseAddr, devtype&0xFF, major, minor)
	}
	return nil
}
