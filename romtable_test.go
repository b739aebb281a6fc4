// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package dap

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// validCID builds a CoreSight CID value for class that passes isValidCID.
func validCID(class uint8) uint32 {
	return cidValidMagic | uint32(class)<<12
}

// seedCID writes cid's four byte-wide registers at componentBase.
func seedCID(ft *fakeTransport, apNum uint8, componentBase uint32, cid uint32) {
	ft.writeMem(apNum, componentBase+RegCID0, []byte{byte(cid)})
	ft.writeMem(apNum, componentBase+RegCID1, []byte{byte(cid >> 8)})
	ft.writeMem(apNum, componentBase+RegCID2, []byte{byte(cid >> 16)})
	ft.writeMem(apNum, componentBase+RegCID3, []byte{byte(cid >> 24)})
}

// seedPID writes pid's five byte-wide registers at componentBase.
func seedPID(ft *fakeTransport, apNum uint8, componentBase uint32, pid uint64) {
	ft.writeMem(apNum, componentBase+RegPID0, []byte{byte(pid)})
	ft.writeMem(apNum, componentBase+RegPID1, []byte{byte(pid >> 8)})
	ft.writeMem(apNum, componentBase+RegPID2, []byte{byte(pid >> 16)})
	ft.writeMem(apNum, componentBase+RegPID3, []byte{byte(pid >> 24)})
	ft.writeMem(apNum, componentBase+RegPID4, []byte{byte(pid >> 32)})
}

// seedROMEntry writes one present, non-zero-offset ROM table entry.
func seedROMEntry(ft *fakeTransport, apNum uint8, tableBase uint32, entryOffset uint32, componentBase uint32) {
	entry := (componentBase - tableBase&0xFFFFF000) | 0x1
	ft.writeMem(apNum, tableBase+entryOffset, []byte{
		byte(entry), byte(entry >> 8), byte(entry >> 16), byte(entry >> 24),
	})
}

var _ = Describe("walkROMEntries", func() {
	It("visits each present entry once at 4-byte strides and stops at the first zero entry (I6)", func() {
		ft := newFakeTransport()
		ap := newTestAP(ft)
		seedROMEntry(ft, 0, 0x1000, 0x0, 0x2000)
		seedROMEntry(ft, 0, 0x1000, 0x4, 0x3000)
		seedROMEntry(ft, 0, 0x1000, 0x8, 0x4000)
		// offset 0xC left at zero.

		var visited []uint32
		err := walkROMEntries(ap, 0x1000, func(entryOffset, componentBase, romEntry uint32) (bool, error) {
			visited = append(visited, componentBase)
			return false, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(visited).To(Equal([]uint32{0x2000, 0x3000, 0x4000}))
	})

	It("stops at romWalkLimit bytes when no zero entry is ever found", func() {
		ft := newFakeTransport()
		ap := newTestAP(ft)
		for off := uint32(0); off < romWalkLimit; off += 4 {
			seedROMEntry(ft, 0, 0x1000, off, 0x1000+off)
		}

		count := 0
		err := walkROMEntries(ap, 0x1000, func(entryOffset, componentBase, romEntry uint32) (bool, error) {
			count++
			return false, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(int(romWalkLimit / 4)))
	})
})

var _ = Describe("isValidCID (I7)", func() {
	It("accepts the CoreSight magic with any component class", func() {
		Expect(isValidCID(validCID(1))).To(BeTrue())
		Expect(isValidCID(validCID(9))).To(BeTrue())
	})

	It("rejects anything outside the magic, even if close", func() {
		Expect(isValidCID(0xB105000C)).To(BeFalse())
		Expect(isValidCID(0x00000000)).To(BeFalse())
	})
})

var _ = Describe("LookupCSComponent / RomDisplay recursion (S6)", func() {
	It("finds a DEVTYPE-matching component two ROM tables deep", func() {
		ft := newFakeTransport()
		ap := newTestAP(ft)

		const topTable = 0x1000
		const nestedTable = 0x2000
		const leaf = 0x3000

		seedROMEntry(ft, 0, topTable, 0x0, nestedTable)
		seedCID(ft, 0, topTable, validCID(1)) // ROM table class
		seedPID(ft, 0, topTable, 0)

		seedROMEntry(ft, 0, nestedTable, 0x0, leaf)
		seedCID(ft, 0, nestedTable, validCID(1))
		seedPID(ft, 0, nestedTable, 0)

		seedCID(ft, 0, leaf, validCID(9)) // CoreSight component class
		seedPID(ft, 0, leaf, 0)
		ft.writeMem(0, leaf+RegDevType, []byte{0x13})

		idx := int32(0)
		found, err := LookupCSComponent(ap, topTable, 0x13, &idx)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(Equal(uint32(leaf)))
	})

	It("reports ErrResourceNotAvailable when nothing under the table matches", func() {
		ft := newFakeTransport()
		ap := newTestAP(ft)

		const topTable = 0x1000
		const leaf = 0x3000
		seedROMEntry(ft, 0, topTable, 0x0, leaf)
		seedCID(ft, 0, topTable, validCID(1))
		seedCID(ft, 0, leaf, validCID(9))
		ft.writeMem(0, leaf+RegDevType, []byte{0x42})

		idx := int32(0)
		_, err := LookupCSComponent(ap, topTable, 0x13, &idx)
		Expect(err).To(HaveOccurred())
		Expect(KindOf(err)).To(Equal(KindResourceNotAvailable))
	})

	It("reports each visited component through RomDisplay with increasing depth", func() {
		ft := newFakeTransport()
		ap := newTestAP(ft)

		const topTable = 0x1000
		const nestedTable = 0x2000
		const leaf = 0x3000

		seedROMEntry(ft, 0, topTable, 0x0, nestedTable)
		seedCID(ft, 0, topTable, validCID(1))
		seedPID(ft, 0, topTable, 0)

		seedROMEntry(ft, 0, nestedTable, 0x0, leaf)
		seedCID(ft, 0, nestedTable, validCID(1))
		seedPID(ft, 0, nestedTable, 0)

		seedCID(ft, 0, leaf, validCID(9))
		seedPID(ft, 0, leaf, 0)
		ft.writeMem(0, leaf+RegDevType, []byte{0x13})

		var infos []ComponentInfo
		err := RomDisplay(ap, topTable, 0, func(info ComponentInfo) {
			infos = append(infos, info)
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(infos).To(HaveLen(3))
		Expect(infos[0].BaseAddr).To(Equal(uint32(topTable)))
		Expect(infos[0].Depth).To(Equal(0))
		Expect(infos[1].BaseAddr).To(Equal(uint32(nestedTable)))
		Expect(infos[1].Depth).To(Equal(1))
		Expect(infos[2].BaseAddr).To(Equal(uint32(leaf)))
		Expect(infos[2].Depth).To(Equal(2))
		Expect(infos[2].Class).To(Equal(uint8(9)))
	})
})

var _ = Describe("MemAPInit", func() {
	It("enables packed transfers when the probe readback honors them", func() {
		ft := newFakeTransport()
		ft.packedSupported = true
		ap := newTestAP(ft)

		Expect(MemAPInit(ap)).NotTo(HaveOccurred())
		Expect(ap.packedTransfers).To(BeTrue())
		Expect(ap.unalignedAccessBad).To(BeFalse())
	})
})
