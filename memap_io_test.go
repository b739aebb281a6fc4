// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package dap

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("bankedDataReg", func() {
	It("selects BD0..BD3 from address bits [3:2]", func() {
		Expect(bankedDataReg(0x1000)).To(Equal(uint32(MemAPRegBD0)))
		Expect(bankedDataReg(0x1004)).To(Equal(uint32(MemAPRegBD1)))
		Expect(bankedDataReg(0x1008)).To(Equal(uint32(MemAPRegBD2)))
		Expect(bankedDataReg(0x100C)).To(Equal(uint32(MemAPRegBD3)))
	})
})

var _ = Describe("MemAPReadAtomicU32/MemAPWriteAtomicU32", func() {
	It("round-trips a word through the banked data register", func() {
		ft := newFakeTransport()
		ap := newTestAP(ft)

		Expect(MemAPWriteAtomicU32(ap, 0x2000, 0x11223344)).NotTo(HaveOccurred())

		var got uint32
		Expect(MemAPReadAtomicU32(ap, 0x2000, &got)).NotTo(HaveOccurred())
		Expect(got).To(Equal(uint32(0x11223344)))
	})

	It("avoids a TAR update for a second access inside the same 16-byte window", func() {
		ft := newFakeTransport()
		ap := newTestAP(ft)

		Expect(MemAPWriteAtomicU32(ap, 0x3000, 1)).NotTo(HaveOccurred())
		Expect(MemAPWriteAtomicU32(ap, 0x3004, 2)).NotTo(HaveOccurred())

		var a, b uint32
		Expect(MemAPReadAtomicU32(ap, 0x3000, &a)).NotTo(HaveOccurred())
		Expect(MemAPReadAtomicU32(ap, 0x3004, &b)).NotTo(HaveOccurred())
		Expect(a).To(Equal(uint32(1)))
		Expect(b).To(Equal(uint32(2)))
		Expect(ft.tarWritesApplied).To(Equal(1), "only the first access sets TAR to the 0x3000 window")
	})

	It("invalidates the AP's cache when Run fails", func() {
		ft := newFakeTransport()
		ap := newTestAP(ft)
		ft.failAfterOps = 0

		err := MemAPWriteAtomicU32(ap, 0x4000, 0xaa)
		Expect(err).To(HaveOccurred())
		Expect(KindOf(err)).To(Equal(KindTransportFault))
		Expect(ap.cacheValid).To(BeFalse())
	})
})
