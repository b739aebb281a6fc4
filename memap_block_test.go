// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package dap

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("MemAPWriteBuf/MemAPReadBuf round-trip", func() {
	It("round-trips arbitrary bytes at size=1/2/4 (R1)", func() {
		for _, size := range []int{1, 2, 4} {
			ft := newFakeTransport()
			ap := newTestAP(ft)

			buf := make([]byte, 36)
			for i := range buf {
				buf[i] = byte(i*7 + size)
			}

			n, err := MemAPWriteBuf(ap, buf, size, 0x1000)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(len(buf)))

			got := make([]byte, len(buf))
			n, err = MemAPReadBuf(ap, got, size, 0x1000)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(len(buf)))
			Expect(got).To(Equal(buf))
		}
	})

	It("round-trips under the BE-32 quirk (R2)", func() {
		ft := newFakeTransport()
		ft.be32Quirks = true
		d := NewDAP(ft, WithTIBE32Quirks(true))
		ap := d.AP(0)

		buf := []byte{0xAB, 0xCD, 0xEF, 0x12, 0x34, 0x56, 0x78, 0x9A}
		_, err := MemAPWriteBuf(ap, buf, 1, 0x2000)
		Expect(err).NotTo(HaveOccurred())

		got := make([]byte, len(buf))
		_, err = MemAPReadBuf(ap, got, 1, 0x2000)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(buf))
	})

	It("advances buffer and address together by exactly this_size per chunk (I3)", func() {
		ft := newFakeTransport()
		ap := newTestAP(ft)
		ap.packedTransfers = false // force single, non-packed chunks of size=2

		buf := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
		n, err := MemAPWriteBuf(ap, buf, 2, 0x5000)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(6))
		Expect(ft.readMem(0, 0x5000, 6)).To(Equal(buf))
	})
})

var _ = Describe("autoincrement-block wrap", func() {
	It("emits no TAR rewrite when a transfer never crosses the block boundary (I4)", func() {
		ft := newFakeTransport()
		ap := newTestAP(ft)
		ap.tarAutoincrBlock = 1024
		ap.packedTransfers = false
		ft.autoincrBlock = 1024

		buf := make([]byte, 16) // four size=4 chunks starting well inside the block
		_, err := MemAPWriteBuf(ap, buf, 4, 0x100)
		Expect(err).NotTo(HaveOccurred())
		Expect(ft.tarWritesApplied).To(Equal(1), "only the initial setupTAR, no mid-transfer rewrite")
	})

	It("rewrites TAR exactly once when the transfer crosses the boundary (S3)", func() {
		ft := newFakeTransport()
		ap := newTestAP(ft)
		ap.tarAutoincrBlock = 1024
		ft.autoincrBlock = 1024
		ap.packedTransfers = false

		// addr=0x3FC, size=4, count=4: the first 4-byte chunk lands
		// address exactly on 0x400, the 1 KiB boundary, which is where
		// this implementation's wrap condition (address % block <
		// size) fires — before the second chunk, not the third.
		buf := make([]byte, 16)
		for i := range buf {
			buf[i] = byte(i + 1)
		}

		_, err := MemAPWriteBuf(ap, buf, 4, 0x3FC)
		Expect(err).NotTo(HaveOccurred())
		Expect(ft.tarWritesApplied).To(Equal(2), "the initial setupTAR plus exactly one boundary rewrite")
		Expect(ft.readMem(0, 0x3FC, 16)).To(Equal(buf))
	})
})

var _ = Describe("packed transfers", func() {
	It("packs four 8-bit units per DRW when packed_transfers is true (S2)", func() {
		ft := newFakeTransport()
		ft.packedSupported = true
		ap := newTestAP(ft)
		Expect(MemAPInit(ap)).NotTo(HaveOccurred())
		Expect(ap.packedTransfers).To(BeTrue())

		buf := make([]byte, 16)
		for i := range buf {
			buf[i] = byte(0xB0 + i)
		}
		n, err := MemAPWriteBuf(ap, buf, 1, 0x0)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(16))
		Expect(ft.readMem(0, 0x0, 16)).To(Equal(buf))
	})

	It("falls back to single transfers when the probe reports no packed support", func() {
		ft := newFakeTransport()
		ft.packedSupported = false
		ap := newTestAP(ft)
		Expect(MemAPInit(ap)).NotTo(HaveOccurred())
		Expect(ap.packedTransfers).To(BeFalse())
	})

	It("is always disabled under the BE-32 quirk regardless of probe result (I5 precondition)", func() {
		ft := newFakeTransport()
		ft.packedSupported = true
		d := NewDAP(ft, WithTIBE32Quirks(true))
		ap := d.AP(0)
		Expect(MemAPInit(ap)).NotTo(HaveOccurred())
		Expect(ap.packedTransfers).To(BeFalse())
	})
})

var _ = Describe("BE-32 quirk byte mapping (S4)", func() {
	It("XORs TAR and byte lane for a size=1 write at address 0", func() {
		addrXor := addrXorFor(1)
		Expect(addrXor).To(Equal(uint32(3)))

		lane := byteLaneWrite(true, 1, addrXor, 0, 0)
		Expect(lane).To(Equal(uint(3)))

		var outvalue uint32
		outvalue |= uint32(0xAB) << (8 * lane)
		Expect(outvalue).To(Equal(uint32(0xAB) << 24))
	})
})

var _ = Describe("partial-failure progress reporting (S5)", func() {
	It("reports the byte count reached on write, from a TAR readback", func() {
		ft := newFakeTransport()
		ap := newTestAP(ft)
		ap.packedTransfers = false

		buf := make([]byte, 16) // four size=4 chunks
		// journal order: setupTAR, setupCSW, DRW#1, [no TAR rewrite yet], DRW#2, ...
		// cutting after 3 ops lets exactly the first chunk's DRW land.
		ft.failAfterOps = 3

		n, err := MemAPWriteBuf(ap, buf, 4, 0x6000)
		Expect(err).To(HaveOccurred())
		Expect(KindOf(err)).To(Equal(KindTransportFault))
		Expect(n).To(Equal(4))
	})

	It("reports zero progress when the TAR readback itself fails", func() {
		ft := newFakeTransport()
		ft.failAfterOps = 3
		wrapped := &chainedFailTransport{fakeTransport: ft, failSecondRun: true}

		ap := newTestAPOn(wrapped)
		ap.packedTransfers = false

		buf := make([]byte, 16)
		n, err := MemAPWriteBuf(ap, buf, 4, 0x6000)
		Expect(err).To(HaveOccurred())
		Expect(n).To(Equal(0))
	})
})

// chainedFailTransport lets a test force a second, independent Run
// failure (the diagnostic TAR readback) after the fake's normal
// one-shot failAfterOps has already fired once for the main transfer.
type chainedFailTransport struct {
	*fakeTransport
	failSecondRun bool
	ranOnce       bool
}

func (c *chainedFailTransport) Run() error {
	if c.ranOnce && c.failSecondRun {
		c.failSecondRun = false
		c.fakeTransport.journal = nil
		return c.fakeTransport.runErr
	}
	err := c.fakeTransport.Run()
	c.ranOnce = true
	return err
}
