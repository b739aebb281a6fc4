// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package dap

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("setupCSW", func() {
	It("elides a redundant write once the effective value is cached (I1)", func() {
		ft := newFakeTransport()
		ap := newTestAP(ft)

		_, err := setupCSW(ap, CSW32Bit|CSWAddrIncSingle)
		Expect(err).NotTo(HaveOccurred())
		Expect(ft.journal).To(HaveLen(1))

		ft.journal = nil
		_, err = setupCSW(ap, CSW32Bit|CSWAddrIncSingle)
		Expect(err).NotTo(HaveOccurred())
		Expect(ft.journal).To(BeEmpty())
	})

	It("re-emits when the requested value changes", func() {
		ft := newFakeTransport()
		ap := newTestAP(ft)

		_, err := setupCSW(ap, CSW32Bit|CSWAddrIncSingle)
		Expect(err).NotTo(HaveOccurred())

		ft.journal = nil
		_, err = setupCSW(ap, CSW8Bit|CSWAddrIncOff)
		Expect(err).NotTo(HaveOccurred())
		Expect(ft.journal).To(HaveLen(1))
	})

	It("always folds in the SPROT overlay once WithSPROT is set", func() {
		ft := newFakeTransport()
		d := NewDAP(ft, WithSPROT(true))
		ap := d.AP(0)

		effective, err := setupCSW(ap, CSW32Bit|CSWAddrIncSingle)
		Expect(err).NotTo(HaveOccurred())
		Expect(effective & cswSPROT).NotTo(BeZero())
	})
})

var _ = Describe("setupTAR", func() {
	It("elides a redundant write when autoincrement is off and TAR is cached (I2)", func() {
		ft := newFakeTransport()
		ap := newTestAP(ft)

		_, err := setupCSW(ap, CSW32Bit|CSWAddrIncOff)
		Expect(err).NotTo(HaveOccurred())
		ft.journal = nil

		Expect(setupTAR(ap, 0x2000)).NotTo(HaveOccurred())
		Expect(ft.journal).To(HaveLen(1))

		ft.journal = nil
		Expect(setupTAR(ap, 0x2000)).NotTo(HaveOccurred())
		Expect(ft.journal).To(BeEmpty())
	})

	It("never elides while autoincrement is enabled, since hardware mutates TAR behind the cache", func() {
		ft := newFakeTransport()
		ap := newTestAP(ft)

		_, err := setupCSW(ap, CSW32Bit|CSWAddrIncSingle)
		Expect(err).NotTo(HaveOccurred())
		Expect(setupTAR(ap, 0x2000)).NotTo(HaveOccurred())

		ft.journal = nil
		Expect(setupTAR(ap, 0x2000)).NotTo(HaveOccurred())
		Expect(ft.journal).To(HaveLen(1))
	})

	It("invalidates on the next setupCSW/setupTAR after a failed Run", func() {
		ft := newFakeTransport()
		ap := newTestAP(ft)

		Expect(setupTransfer(ap, CSW32Bit|CSWAddrIncOff, 0x1000)).NotTo(HaveOccurred())
		Expect(runAndInvalidateOnFailure(ap)).NotTo(HaveOccurred())

		ft.failAfterOps = 0
		Expect(MemAPWriteU32(ap, 0x1000, 0xdeadbeef)).NotTo(HaveOccurred())
		Expect(runAndInvalidateOnFailure(ap)).To(HaveOccurred())
		Expect(ap.cacheValid).To(BeFalse())

		ft.journal = nil
		Expect(setupTAR(ap, 0x1000)).NotTo(HaveOccurred())
		Expect(ft.journal).To(HaveLen(1))
	})
})
