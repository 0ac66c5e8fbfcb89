/*
 * PS2DMAC - DMA controller test set.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package dmac

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/rcornwell/PS2DMAC/emu/device"
	"github.com/rcornwell/PS2DMAC/emu/dmatag"
	"github.com/rcornwell/PS2DMAC/emu/memory"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Controller", func() {
	var (
		mockCtrl *gomock.Controller
		bus      *memory.Bus
		ctl      *Controller
	)

	fifo := func(id ChannelID) *device.FIFO {
		return ctl.Channel(id).Peripheral().(*device.FIFO)
	}

	run := func() {
		Expect(ctl.Run(context.Background())).To(Succeed())
	}

	statusBit := func(b Bit) bool {
		return ctl.Status().Value()&(1<<b) != 0
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		bus = newTestBus()
		ctl = NewController(WithBus(bus), WithLogger(testLogger()))
	})

	Describe("source chain", func() {
		It("follows a next tag and ends", func() {
			putTag(bus.Main, 0x1000, dmatag.Tag{Kind: dmatag.Next, QWC: 4, Addr: 0x2000})
			first := putData(bus.Main, 0x1010, 4, 0x10)
			putTag(bus.Main, 0x2000, dmatag.Tag{Kind: dmatag.End, QWC: 1})
			last := putData(bus.Main, 0x2010, 1, 0x20)

			ch := ctl.Channel(VIF1)
			Expect(ch.Setup(Registers{TADR: 0x1000})).To(Succeed())
			Expect(ctl.Start(VIF1, SendChain)).To(Succeed())
			Expect(ch.State()).To(Equal(Running))

			Expect(ch.Step()).To(BeTrue())
			regs := ch.Registers()
			Expect(regs.MADR).To(Equal(uint32(0x1010)))
			Expect(regs.TADR).To(Equal(uint32(0x2000)))
			Expect(regs.QWC).To(Equal(uint16(4)))
			Expect(ch.LastTag().Kind).To(Equal(dmatag.Next))

			run()
			Expect(ch.State()).To(Equal(Stopped))
			Expect(ch.Control().Started()).To(BeFalse())
			Expect(statusBit(BitVIF1)).To(BeTrue())
			Expect(fifo(VIF1).Written()).To(Equal(append(first, last...)))
		})

		It("returns through the address stack", func() {
			putTag(bus.Main, 0x1000, dmatag.Tag{Kind: dmatag.Call, QWC: 2, Addr: 0x3000})
			putData(bus.Main, 0x1010, 2, 0x30)
			putTag(bus.Main, 0x3000, dmatag.Tag{Kind: dmatag.Return, QWC: 1})
			putData(bus.Main, 0x3010, 1, 0x40)
			putTag(bus.Main, 0x1030, dmatag.Tag{Kind: dmatag.End})

			ch := ctl.Channel(VIF1)
			Expect(ch.Setup(Registers{TADR: 0x1000})).To(Succeed())
			Expect(ctl.Start(VIF1, SendChain|ASP1Addr)).To(Succeed())

			Expect(ch.Step()).To(BeTrue())
			Expect(ch.StackDepth()).To(Equal(1))
			Expect(ch.StackSlot(0)).To(Equal(uint32(0x1030)))
			v, err := ctl.Read(RegAddr(VIF1, regASR0))
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(uint32(0x1030)))
			Expect(ch.Registers().TADR).To(Equal(uint32(0x3000)))

			// Payload of the call, then the ret tag.
			Expect(ch.Step()).To(BeTrue())
			Expect(ch.StackDepth()).To(Equal(0))
			Expect(ch.Registers().TADR).To(Equal(uint32(0x1030)))
			Expect(ch.Registers().MADR).To(Equal(uint32(0x3010)))

			run()
			Expect(ch.State()).To(Equal(Stopped))
			Expect(ch.Err()).ToNot(HaveOccurred())
			Expect(fifo(VIF1).Written()).To(HaveLen(3))
		})

		It("nests calls up to the configured depth", func() {
			putTag(bus.Main, 0x1000, dmatag.Tag{Kind: dmatag.Call, Addr: 0x2000})
			putTag(bus.Main, 0x2000, dmatag.Tag{Kind: dmatag.Call, Addr: 0x3000})
			putTag(bus.Main, 0x3000, dmatag.Tag{Kind: dmatag.Call, Addr: 0x4000})

			ch := ctl.Channel(VIF0)
			Expect(ch.Setup(Registers{TADR: 0x1000})).To(Succeed())
			Expect(ctl.Start(VIF0, SendChain|ASP2Addr)).To(Succeed())

			Expect(ch.Step()).To(BeTrue())
			Expect(ch.Step()).To(BeTrue())
			Expect(ch.StackDepth()).To(Equal(2))
			Expect(ch.StackSlot(0)).To(Equal(uint32(0x1010)))
			Expect(ch.StackSlot(1)).To(Equal(uint32(0x2010)))

			Expect(ch.Step()).To(BeTrue())
			Expect(ch.State()).To(Equal(Errored))
			Expect(errors.Is(ch.Err(), ErrStackOverflow)).To(BeTrue())
			Expect(statusBit(BitBusError)).To(BeTrue())

			Expect(ch.Step()).To(BeTrue())
			Expect(ch.State()).To(Equal(Stopped))
			Expect(ch.Control().Started()).To(BeFalse())
			Expect(ch.Step()).To(BeFalse())
		})

		It("unwinds nested calls in reverse order", func() {
			putTag(bus.Main, 0x1000, dmatag.Tag{Kind: dmatag.Call, Addr: 0x2000})
			putTag(bus.Main, 0x1010, dmatag.Tag{Kind: dmatag.End})
			putTag(bus.Main, 0x2000, dmatag.Tag{Kind: dmatag.Call, Addr: 0x3000})
			putTag(bus.Main, 0x2010, dmatag.Tag{Kind: dmatag.Return})
			putTag(bus.Main, 0x3000, dmatag.Tag{Kind: dmatag.Return})

			ch := ctl.Channel(VIF0)
			Expect(ch.Setup(Registers{TADR: 0x1000})).To(Succeed())
			Expect(ctl.Start(VIF0, SendChain|ASP2Addr)).To(Succeed())

			steps := []struct {
				tadr  uint32
				depth int
			}{
				{0x2000, 1},
				{0x3000, 2},
				{0x2010, 1},
				{0x1010, 0},
			}
			for _, want := range steps {
				Expect(ch.Step()).To(BeTrue())
				Expect(ch.Registers().TADR).To(Equal(want.tadr))
				Expect(ch.StackDepth()).To(Equal(want.depth))
				if want.tadr == 0x3000 {
					Expect(ch.StackSlot(0)).To(Equal(uint32(0x1010)))
					Expect(ch.StackSlot(1)).To(Equal(uint32(0x2010)))
				}
			}

			run()
			Expect(ch.State()).To(Equal(Stopped))
			Expect(ch.Err()).ToNot(HaveOccurred())
			Expect(statusBit(BitVIF0)).To(BeTrue())
			Expect(statusBit(BitBusError)).To(BeFalse())
		})

		It("empties the stack when a chain ends inside a call", func() {
			putTag(bus.Main, 0x1000, dmatag.Tag{Kind: dmatag.Call, Addr: 0x2000})
			putTag(bus.Main, 0x2000, dmatag.Tag{Kind: dmatag.End})

			ch := ctl.Channel(VIF0)
			Expect(ch.Setup(Registers{TADR: 0x1000})).To(Succeed())
			Expect(ctl.Start(VIF0, SendChain|ASP2Addr)).To(Succeed())

			Expect(ch.Step()).To(BeTrue())
			Expect(ch.StackDepth()).To(Equal(1))

			run()
			Expect(ch.State()).To(Equal(Stopped))
			Expect(ch.Err()).ToNot(HaveOccurred())
			Expect(ch.StackDepth()).To(Equal(0))
		})

		It("overflows a call with no stack configured", func() {
			putTag(bus.Main, 0x1000, dmatag.Tag{Kind: dmatag.Call, Addr: 0x2000})

			Expect(ctl.Channel(VIF0).Setup(Registers{TADR: 0x1000})).To(Succeed())
			Expect(ctl.Start(VIF0, SendChain)).To(Succeed())
			run()
			Expect(errors.Is(ctl.Channel(VIF0).Err(), ErrStackOverflow)).To(BeTrue())
		})

		It("overflows a call on a channel without stack registers", func() {
			putTag(bus.Main, 0x1000, dmatag.Tag{Kind: dmatag.Call, Addr: 0x2000})

			Expect(ctl.Channel(SIF1).Setup(Registers{TADR: 0x1000})).To(Succeed())
			Expect(ctl.Start(SIF1, SendChain|ASP2Addr)).To(Succeed())
			run()
			Expect(errors.Is(ctl.Channel(SIF1).Err(), ErrStackOverflow)).To(BeTrue())
		})

		It("underflows a ret on an empty stack", func() {
			putTag(bus.Main, 0x1000, dmatag.Tag{Kind: dmatag.Return})

			Expect(ctl.Channel(VIF0).Setup(Registers{TADR: 0x1000})).To(Succeed())
			Expect(ctl.Start(VIF0, SendChain|ASP2Addr)).To(Succeed())
			run()
			Expect(errors.Is(ctl.Channel(VIF0).Err(), ErrStackUnderflow)).To(BeTrue())
			Expect(statusBit(BitBusError)).To(BeTrue())
			Expect(statusBit(BitVIF0)).To(BeFalse())
		})

		It("stops on a malformed tag", func() {
			// cnt with the reserved priority control value.
			q := dmatag.Quadword{Lo: 1<<26 | 1<<28}
			Expect(bus.Main.WriteQuad(0x1000, q.Bytes())).To(Succeed())

			ch := ctl.Channel(GIF)
			Expect(ch.Setup(Registers{TADR: 0x1000})).To(Succeed())
			Expect(ctl.Start(GIF, SendChain)).To(Succeed())
			Expect(ch.Step()).To(BeTrue())
			Expect(ch.State()).To(Equal(Errored))
			Expect(errors.Is(ch.Err(), dmatag.ErrMalformedTag)).To(BeTrue())
			Expect(statusBit(BitBusError)).To(BeTrue())
		})

		It("raises the tag interrupt after the payload moves", func() {
			putTag(bus.Main, 0x1000, dmatag.Tag{Kind: dmatag.Continue, QWC: 2, IRQ: true})
			putData(bus.Main, 0x1010, 2, 0x50)
			putTag(bus.Main, 0x1030, dmatag.Tag{Kind: dmatag.End, QWC: 1})
			putData(bus.Main, 0x1040, 1, 0x60)

			ch := ctl.Channel(VIF0)
			Expect(ch.Setup(Registers{TADR: 0x1000})).To(Succeed())
			Expect(ctl.Start(VIF0, SendChain|TIEOn)).To(Succeed())

			Expect(ch.Step()).To(BeTrue())
			Expect(statusBit(BitVIF0)).To(BeFalse())

			Expect(ch.Step()).To(BeTrue())
			Expect(fifo(VIF0).Written()).To(HaveLen(2))
			Expect(statusBit(BitVIF0)).To(BeTrue())
			Expect(ch.State()).To(Equal(Running))

			Expect(ctl.Write(STAT, 1<<BitVIF0)).To(Succeed())
			Expect(statusBit(BitVIF0)).To(BeFalse())

			run()
			Expect(ch.State()).To(Equal(Stopped))
			Expect(statusBit(BitVIF0)).To(BeTrue())
		})

		It("ignores the tag interrupt without TIE", func() {
			putTag(bus.Main, 0x1000, dmatag.Tag{Kind: dmatag.Continue, QWC: 1, IRQ: true})
			putTag(bus.Main, 0x1020, dmatag.Tag{Kind: dmatag.End})

			ch := ctl.Channel(VIF0)
			Expect(ch.Setup(Registers{TADR: 0x1000})).To(Succeed())
			Expect(ctl.Start(VIF0, SendChain)).To(Succeed())
			Expect(ch.Step()).To(BeTrue())
			Expect(ch.Step()).To(BeTrue())
			Expect(statusBit(BitVIF0)).To(BeFalse())
		})

		It("sends the tag before its data with TTE", func() {
			tag := putTag(bus.Main, 0x1000, dmatag.Tag{Kind: dmatag.End, QWC: 1})
			data := putData(bus.Main, 0x1010, 1, 0x70)

			Expect(ctl.Channel(VIF1).Setup(Registers{TADR: 0x1000})).To(Succeed())
			Expect(ctl.Start(VIF1, SendChainTTE)).To(Succeed())
			run()

			out := fifo(VIF1).Written()
			Expect(out).To(HaveLen(2))
			Expect(out[0]).To(Equal(tag.Bytes()))
			Expect(out[1]).To(Equal(data[0]))
		})

		It("reads data by reference", func() {
			putTag(bus.Main, 0x1000, dmatag.Tag{Kind: dmatag.Reference, QWC: 2, Addr: 0x8000})
			ref := putData(bus.Main, 0x8000, 2, 0x80)
			putTag(bus.Main, 0x1010, dmatag.Tag{Kind: dmatag.ReferenceEnd, QWC: 1, Addr: 0x9000})
			refe := putData(bus.Main, 0x9000, 1, 0x90)

			ch := ctl.Channel(GIF)
			Expect(ch.Setup(Registers{TADR: 0x1000})).To(Succeed())
			Expect(ctl.Start(GIF, SendChain)).To(Succeed())
			run()
			Expect(fifo(GIF).Written()).To(Equal(append(ref, refe...)))
			Expect(ch.Registers().TADR).To(Equal(uint32(0x1010)))
		})

		It("stamps the upper tag bits into CHCR", func() {
			tag := putTag(bus.Main, 0x1000, dmatag.Tag{Kind: dmatag.End, IRQ: true})

			ch := ctl.Channel(VIF1)
			Expect(ch.Setup(Registers{TADR: 0x1000})).To(Succeed())
			Expect(ctl.Start(VIF1, SendChain)).To(Succeed())
			Expect(ch.Step()).To(BeTrue())
			Expect(ch.Control().Tag()).To(Equal(uint16(tag.Lo >> 16)))
			Expect(ch.Control().Tag()).To(Equal(uint16(0xf000)))
		})

		It("fails when the tag address is outside memory", func() {
			ch := ctl.Channel(VIF1)
			Expect(ch.Setup(Registers{TADR: testMemSize + 0x100})).To(Succeed())
			Expect(ctl.Start(VIF1, SendChain)).To(Succeed())
			Expect(ch.Step()).To(BeTrue())
			Expect(errors.Is(ch.Err(), ErrBusError)).To(BeTrue())
		})
	})

	Describe("priority control", func() {
		var arb *MockBusArbiter

		BeforeEach(func() {
			arb = NewMockBusArbiter(mockCtrl)
			ctl = NewController(WithBus(bus), WithArbiter(arb), WithLogger(testLogger()))
			putTag(bus.Main, 0x1000, dmatag.Tag{Kind: dmatag.Continue, Priority: dmatag.PriorityRaise})
			putTag(bus.Main, 0x1010, dmatag.Tag{Kind: dmatag.Continue})
			putTag(bus.Main, 0x1020, dmatag.Tag{Kind: dmatag.End, Priority: dmatag.PriorityLower})
			Expect(ctl.Channel(VIF1).Setup(Registers{TADR: 0x1000})).To(Succeed())
		})

		It("passes hints when PCE is set", func() {
			arb.EXPECT().PriorityHint(VIF1, dmatag.PriorityRaise).Times(1)
			arb.EXPECT().PriorityHint(VIF1, dmatag.PriorityLower).Times(1)

			Expect(ctl.Write(PCR, 0x80000000)).To(Succeed())
			Expect(ctl.Start(VIF1, SendChain)).To(Succeed())
			run()
			Expect(ctl.Channel(VIF1).State()).To(Equal(Stopped))
		})

		It("drops hints when PCE is clear", func() {
			Expect(ctl.Start(VIF1, SendChain)).To(Succeed())
			run()
			Expect(ctl.Channel(VIF1).State()).To(Equal(Stopped))
		})
	})

	Describe("normal mode", func() {
		It("moves a block in slices", func() {
			data := putData(bus.Main, 0x1000, 20, 1)

			ch := ctl.Channel(GIF)
			Expect(ch.Setup(Registers{MADR: 0x1000, QWC: 20})).To(Succeed())
			Expect(ctl.Start(GIF, SendNormal)).To(Succeed())

			Expect(ch.Step()).To(BeTrue())
			Expect(ch.Registers().QWC).To(Equal(uint16(12)))
			Expect(ch.Registers().MADR).To(Equal(uint32(0x1080)))

			run()
			Expect(ch.State()).To(Equal(Stopped))
			Expect(statusBit(BitGIF)).To(BeTrue())
			Expect(fifo(GIF).Written()).To(Equal(data))
		})

		It("completes at once with nothing to move", func() {
			ch := ctl.Channel(VIF0)
			Expect(ctl.Start(VIF0, SendNormal)).To(Succeed())
			Expect(ch.Step()).To(BeTrue())
			Expect(ch.State()).To(Equal(Stopped))
			Expect(statusBit(BitVIF0)).To(BeTrue())
		})

		It("halts on a stop request without touching registers", func() {
			putData(bus.Main, 0x1000, 20, 1)

			ch := ctl.Channel(VIF1)
			Expect(ch.Setup(Registers{MADR: 0x1000, QWC: 20})).To(Succeed())
			Expect(ctl.Start(VIF1, SendNormal)).To(Succeed())
			Expect(ch.Step()).To(BeTrue())

			Expect(ctl.Stop(VIF1)).To(Succeed())
			Expect(ch.Step()).To(BeTrue())
			Expect(ch.State()).To(Equal(Stopped))
			Expect(ch.Control().Started()).To(BeFalse())
			Expect(ch.Registers().QWC).To(Equal(uint16(12)))
			Expect(ch.Registers().MADR).To(Equal(uint32(0x1080)))
			Expect(ctl.Status().Value()).To(BeZero())
		})

		It("reports a bus error past the end of memory", func() {
			ch := ctl.Channel(GIF)
			Expect(ch.Setup(Registers{MADR: 0x200000, QWC: 1})).To(Succeed())
			Expect(ctl.Start(GIF, SendNormal)).To(Succeed())

			Expect(ch.Step()).To(BeTrue())
			Expect(ch.State()).To(Equal(Errored))
			Expect(errors.Is(ch.Err(), ErrBusError)).To(BeTrue())
			Expect(statusBit(BitBusError)).To(BeTrue())

			Expect(ch.Step()).To(BeTrue())
			Expect(ch.State()).To(Equal(Stopped))
			Expect(ch.Control().Started()).To(BeFalse())
			Expect(statusBit(BitGIF)).To(BeFalse())
		})

		It("waits for a peripheral with no data", func() {
			ch := ctl.Channel(SIF0)
			Expect(ch.Setup(Registers{MADR: 0x4000, QWC: 2})).To(Succeed())
			Expect(ctl.Start(SIF0, RecvNormal)).To(Succeed())

			Expect(ch.Step()).To(BeFalse())
			Expect(ch.State()).To(Equal(Running))

			in := [][dmatag.QuadSize]byte{pattern(0xa1), pattern(0xa2)}
			fifo(SIF0).Queue(in...)
			run()
			Expect(ch.State()).To(Equal(Stopped))
			Expect(readQuad(bus.Main, 0x4000)).To(Equal(in[0]))
			Expect(readQuad(bus.Main, 0x4010)).To(Equal(in[1]))
		})

		It("copies main memory to scratch-pad", func() {
			data := putData(bus.Main, 0x9000, 3, 0xb0)

			ch := ctl.Channel(TSPR)
			Expect(ch.Setup(Registers{MADR: 0x9000, QWC: 3, SADR: 0x200})).To(Succeed())
			Expect(ctl.Start(TSPR, SendNormal)).To(Succeed())
			run()
			Expect(ch.State()).To(Equal(Stopped))
			for i := 0; i < 3; i++ {
				Expect(readQuad(bus.Scratch, 0x200+uint32(i)*16)).To(Equal(data[i]))
			}
			Expect(ch.Registers().SADR).To(Equal(uint32(0x230)))
		})

		It("reads main memory through MADR bit 31 as scratch-pad", func() {
			data := putData(bus.Scratch, 0x40, 2, 0xc0)

			ch := ctl.Channel(VIF1)
			Expect(ch.Setup(Registers{MADR: 0x80000040, QWC: 2})).To(Succeed())
			Expect(ctl.Start(VIF1, SendNormal)).To(Succeed())
			run()
			Expect(fifo(VIF1).Written()).To(Equal(data))
		})
	})

	Describe("interleave mode", func() {
		It("skips between transfer blocks", func() {
			putData(bus.Main, 0x7000, 10, 0)

			ch := ctl.Channel(TSPR)
			ctl.SetInterleave(2, 1)
			Expect(ch.Setup(Registers{MADR: 0x7000, QWC: 3})).To(Succeed())
			Expect(ctl.Start(TSPR, DirFromMemory|ModInterleave|STRStart)).To(Succeed())

			Expect(ch.Step()).To(BeTrue())
			Expect(ch.Registers().MADR).To(Equal(uint32(0x7030)))
			run()
			Expect(ch.State()).To(Equal(Stopped))
			Expect(readQuad(bus.Scratch, 0x00)).To(Equal(pattern(0)))
			Expect(readQuad(bus.Scratch, 0x10)).To(Equal(pattern(3)))
			Expect(readQuad(bus.Scratch, 0x20)).To(Equal(pattern(6)))
		})

		It("is refused on other channels", func() {
			err := ctl.Start(GIF, DirFromMemory|ModInterleave|STRStart)
			Expect(errors.Is(err, ErrModeUnsupported)).To(BeTrue())
			Expect(ctl.Channel(GIF).State()).To(Equal(Stopped))
		})
	})

	Describe("destination chain", func() {
		encode := func(t dmatag.Tag) [dmatag.QuadSize]byte {
			q, err := t.Encode()
			Expect(err).ToNot(HaveOccurred())
			return q.Bytes()
		}

		It("takes tags from the incoming data", func() {
			a, b, c := pattern(0xd1), pattern(0xd2), pattern(0xd3)
			fifo(SIF0).Queue(
				encode(dmatag.Tag{Kind: dmatag.Continue, QWC: 2, Addr: 0x5000}), a, b,
				encode(dmatag.Tag{Kind: dmatag.End, QWC: 1, Addr: 0x6000}), c)

			ch := ctl.Channel(SIF0)
			Expect(ctl.Start(SIF0, DirToMemory|ModChain|STRStart)).To(Succeed())
			Expect(ch.Step()).To(BeTrue())
			Expect(ch.Registers().MADR).To(Equal(uint32(0x5000)))
			Expect(ch.Registers().QWC).To(Equal(uint16(2)))

			run()
			Expect(ch.State()).To(Equal(Stopped))
			Expect(statusBit(BitSIF0)).To(BeTrue())
			Expect(readQuad(bus.Main, 0x5000)).To(Equal(a))
			Expect(readQuad(bus.Main, 0x5010)).To(Equal(b))
			Expect(readQuad(bus.Main, 0x6000)).To(Equal(c))
		})

		It("publishes the stall address on cnts", func() {
			Expect(ctl.SetStallControl(SIF0, NoChannel)).To(Succeed())
			fifo(SIF0).Queue(
				encode(dmatag.Tag{Kind: dmatag.ContinueStall, QWC: 2, Addr: 0x5000}),
				pattern(1), pattern(2),
				encode(dmatag.Tag{Kind: dmatag.End}))

			Expect(ctl.Start(SIF0, DirToMemory|ModChain|STRStart)).To(Succeed())
			run()
			Expect(ctl.StallAddress()).To(Equal(uint32(0x5020)))
			v, err := ctl.Read(STADR)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(uint32(0x5020)))
		})

		It("refuses tags that locate data elsewhere", func() {
			fifo(SIF0).Queue(encode(dmatag.Tag{Kind: dmatag.Next, Addr: 0x5000}))

			ch := ctl.Channel(SIF0)
			Expect(ctl.Start(SIF0, DirToMemory|ModChain|STRStart)).To(Succeed())
			Expect(ch.Step()).To(BeTrue())
			Expect(errors.Is(ch.Err(), dmatag.ErrMalformedTag)).To(BeTrue())
		})

		It("reads tags from scratch-pad", func() {
			putTag(bus.Scratch, 0x100, dmatag.Tag{Kind: dmatag.Continue, QWC: 2, Addr: 0x7000})
			first := putData(bus.Scratch, 0x110, 2, 0xe0)
			putTag(bus.Scratch, 0x130, dmatag.Tag{Kind: dmatag.End, QWC: 1, Addr: 0x8000})
			last := putData(bus.Scratch, 0x140, 1, 0xf0)

			ch := ctl.Channel(FSPR)
			Expect(ch.Setup(Registers{SADR: 0x100})).To(Succeed())
			Expect(ctl.Start(FSPR, ModChain|STRStart)).To(Succeed())
			run()

			Expect(ch.State()).To(Equal(Stopped))
			Expect(ch.Registers().SADR).To(Equal(uint32(0x150)))
			Expect(readQuad(bus.Main, 0x7000)).To(Equal(first[0]))
			Expect(readQuad(bus.Main, 0x7010)).To(Equal(first[1]))
			Expect(readQuad(bus.Main, 0x8000)).To(Equal(last[0]))
		})

		It("is refused on SIF2", func() {
			err := ctl.Start(SIF2, SendChain)
			Expect(errors.Is(err, ErrModeUnsupported)).To(BeTrue())
		})
	})

	Describe("stall control", func() {
		It("suspends the drain at the stall address", func() {
			data := putData(bus.Main, 0x1000, 8, 0x11)
			Expect(ctl.SetStallControl(SIF0, GIF)).To(Succeed())
			ctl.PublishStall(0x1040)

			ch := ctl.Channel(GIF)
			Expect(ch.Setup(Registers{MADR: 0x1000, QWC: 8})).To(Succeed())
			Expect(ctl.Start(GIF, SendNormal)).To(Succeed())

			Expect(ch.Step()).To(BeTrue())
			Expect(ch.Registers().QWC).To(Equal(uint16(4)))

			Expect(ch.Step()).To(BeTrue())
			Expect(ch.State()).To(Equal(Suspended))
			Expect(statusBit(BitStall)).To(BeTrue())
			Expect(ch.Step()).To(BeFalse())

			ctl.PublishStall(0x1080)
			Expect(ch.Step()).To(BeTrue())
			Expect(ch.State()).To(Equal(Running))

			run()
			Expect(ch.State()).To(Equal(Stopped))
			Expect(fifo(GIF).Written()).To(Equal(data))
		})

		It("honors a stop request while suspended", func() {
			Expect(ctl.SetStallControl(NoChannel, VIF1)).To(Succeed())
			ch := ctl.Channel(VIF1)
			Expect(ch.Setup(Registers{MADR: 0x1000, QWC: 4})).To(Succeed())
			Expect(ctl.Start(VIF1, SendNormal)).To(Succeed())
			Expect(ch.Step()).To(BeTrue())
			Expect(ch.State()).To(Equal(Suspended))

			Expect(ctl.Write(RegAddr(VIF1, regCHCR), uint32(DirFromMemory))).To(Succeed())
			Expect(ch.Step()).To(BeTrue())
			Expect(ch.State()).To(Equal(Stopped))
			Expect(ch.Registers().QWC).To(Equal(uint16(4)))
		})

		It("limits refs descriptors only", func() {
			Expect(ctl.SetStallControl(NoChannel, VIF1)).To(Succeed())
			ctl.PublishStall(0x8010)
			putTag(bus.Main, 0x1000, dmatag.Tag{Kind: dmatag.Reference, QWC: 2, Addr: 0x8000})
			putTag(bus.Main, 0x1010, dmatag.Tag{Kind: dmatag.ReferenceStall, QWC: 2, Addr: 0x8000})

			ch := ctl.Channel(VIF1)
			Expect(ch.Setup(Registers{TADR: 0x1000})).To(Succeed())
			Expect(ctl.Start(VIF1, SendChain)).To(Succeed())
			Expect(ch.Step()).To(BeTrue()) // ref tag
			Expect(ch.Step()).To(BeTrue()) // two quads, refs tag
			Expect(fifo(VIF1).Written()).To(HaveLen(2))
			Expect(ch.Step()).To(BeTrue()) // one quad up to STADR
			Expect(fifo(VIF1).Written()).To(HaveLen(3))
			Expect(ch.Step()).To(BeTrue())
			Expect(ch.State()).To(Equal(Suspended))
		})

		It("rejects channels that can't take part", func() {
			Expect(errors.Is(ctl.SetStallControl(GIF, VIF1), ErrBadChannel)).To(BeTrue())
			Expect(errors.Is(ctl.SetStallControl(SIF0, VIF0), ErrBadChannel)).To(BeTrue())

			Expect(ctl.SetStallControl(FIPU, SIF1)).To(Succeed())
			src, drain := ctl.StallControl()
			Expect(src).To(Equal(FIPU))
			Expect(drain).To(Equal(SIF1))
			v, err := ctl.Read(CTRL)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(ctrlDMAE | 3<<ctrlSTSShift | 3<<ctrlSTDShift))
		})

		Context("with a source and drain", func() {
			var in [][dmatag.QuadSize]byte

			BeforeEach(func() {
				in = nil
				for i := 0; i < 6; i++ {
					in = append(in, pattern(byte(0x21+i)))
				}
				fifo(SIF0).Queue(in...)
				Expect(ctl.SetStallControl(SIF0, GIF)).To(Succeed())
				ctl.SetSlice(2)
				Expect(ctl.Channel(SIF0).Setup(Registers{MADR: 0x4000, QWC: 6})).To(Succeed())
				Expect(ctl.Channel(GIF).Setup(Registers{MADR: 0x4000, QWC: 6})).To(Succeed())
				Expect(ctl.Start(SIF0, RecvNormal)).To(Succeed())
				Expect(ctl.Start(GIF, SendNormal)).To(Succeed())
			})

			It("drains behind the source when stepped together", func() {
				run()
				Expect(ctl.Busy()).To(BeFalse())
				Expect(ctl.StallAddress()).To(Equal(uint32(0x4060)))
				Expect(fifo(GIF).Written()).To(Equal(in))
				Expect(statusBit(BitStall)).To(BeTrue())
			})

			It("drains behind the source when run in parallel", func() {
				Expect(ctl.RunParallel(context.Background())).To(Succeed())
				Expect(ctl.Busy()).To(BeFalse())
				Expect(fifo(GIF).Written()).To(Equal(in))
			})
		})
	})

	Describe("registers", func() {
		It("masks addresses", func() {
			Expect(ctl.Write(RegAddr(VIF1, regMADR), 0x12345678)).To(Succeed())
			v, err := ctl.Read(RegAddr(VIF1, regMADR))
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(uint32(0x12345670)))

			Expect(ctl.Write(RegAddr(TSPR, regSADR), 0xffffffff)).To(Succeed())
			v, err = ctl.Read(RegAddr(TSPR, regSADR))
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(uint32(0x3ff0)))
		})

		It("only decodes registers a channel has", func() {
			_, err := ctl.Read(RegAddr(SIF0, regTADR))
			Expect(errors.Is(err, ErrNoRegister)).To(BeTrue())
			_, err = ctl.Read(RegAddr(GIF, regSADR))
			Expect(errors.Is(err, ErrNoRegister)).To(BeTrue())
			Expect(errors.Is(ctl.Write(RegAddr(TIPU, regASR0), 0), ErrNoRegister)).To(BeTrue())
			_, err = ctl.Read(0x2000)
			Expect(errors.Is(err, ErrNoRegister)).To(BeTrue())
			Expect(errors.Is(ctl.Write(ENABLER, 0), ErrNoRegister)).To(BeTrue())
		})

		It("starts and stops a channel through CHCR", func() {
			Expect(ctl.Write(RegAddr(GIF, regQWC), 20)).To(Succeed())
			Expect(ctl.Write(RegAddr(GIF, regCHCR), uint32(SendNormal))).To(Succeed())
			ch := ctl.Channel(GIF)
			Expect(ch.State()).To(Equal(Running))

			Expect(errors.Is(ctl.Write(RegAddr(GIF, regMADR), 0x100), ErrBusy)).To(BeTrue())

			// Clearing STR asks the channel to stop.
			Expect(ctl.Write(RegAddr(GIF, regCHCR), uint32(DirFromMemory))).To(Succeed())
			Expect(ch.State()).To(Equal(Running))
			Expect(ch.Step()).To(BeTrue())
			Expect(ch.State()).To(Equal(Stopped))
			Expect(ch.Registers().QWC).To(Equal(uint16(20)))
		})

		It("keeps a fixed direction", func() {
			Expect(ctl.Write(RegAddr(GIF, regCHCR), uint32(DirToMemory|ModChain))).To(Succeed())
			Expect(ctl.Channel(GIF).Control().Direction()).To(Equal(dmatag.FromMemory))
			Expect(ctl.Channel(GIF).Control().Mode()).To(Equal(ModeChain))

			Expect(ctl.Write(RegAddr(VIF1, regCHCR), uint32(DirToMemory))).To(Succeed())
			Expect(ctl.Channel(VIF1).Control().Direction()).To(Equal(dmatag.ToMemory))
		})

		It("holds every channel while suspended or disabled", func() {
			putData(bus.Main, 0x1000, 2, 1)
			Expect(ctl.Channel(GIF).Setup(Registers{MADR: 0x1000, QWC: 2})).To(Succeed())
			Expect(ctl.Start(GIF, SendNormal)).To(Succeed())

			Expect(ctl.Write(ENABLEW, 0xffffffff)).To(Succeed())
			v, err := ctl.Read(ENABLER)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(enableCPND))
			Expect(ctl.Step()).To(BeFalse())

			Expect(ctl.Write(ENABLEW, 0)).To(Succeed())
			Expect(ctl.Write(CTRL, 0)).To(Succeed())
			Expect(ctl.Step()).To(BeFalse())
			Expect(ctl.Channel(GIF).Registers().QWC).To(Equal(uint16(2)))

			Expect(ctl.Write(CTRL, ctrlDMAE)).To(Succeed())
			Expect(ctl.Step()).To(BeTrue())
			Expect(ctl.Channel(GIF).State()).To(Equal(Stopped))
		})

		It("stores the interleave and ring buffer registers", func() {
			Expect(ctl.Write(SQWC, 0xffffffff)).To(Succeed())
			v, _ := ctl.Read(SQWC)
			Expect(v).To(Equal(uint32(0x00ff00ff)))
			skip, transfer := ctl.interleave()
			Expect(skip).To(Equal(uint32(0xff)))
			Expect(transfer).To(Equal(uint32(0xff)))

			Expect(ctl.Write(RBSR, 0x1230)).To(Succeed())
			Expect(ctl.Write(RBOR, 0x4560)).To(Succeed())
			v, _ = ctl.Read(RBSR)
			Expect(v).To(Equal(uint32(0x1230)))
			v, _ = ctl.Read(RBOR)
			Expect(v).To(Equal(uint32(0x4560)))
		})

		It("resets to power on state", func() {
			Expect(ctl.Channel(GIF).Setup(Registers{MADR: 0x1000, QWC: 2})).To(Succeed())
			Expect(ctl.Start(GIF, SendNormal)).To(Succeed())
			ctl.Status().Raise(BitBusError)
			ctl.PublishStall(0x4000)

			ctl.Reset()
			Expect(ctl.Busy()).To(BeFalse())
			Expect(ctl.Status().Value()).To(BeZero())
			Expect(ctl.StallAddress()).To(BeZero())
			Expect(ctl.Channel(GIF).Registers()).To(Equal(Registers{}))
			Expect(ctl.Channel(GIF).Control().Direction()).To(Equal(dmatag.FromMemory))
		})
	})

	Describe("start", func() {
		It("rejects bad requests", func() {
			Expect(errors.Is(ctl.Start(VIF0, Control(3<<chcrMODShift)|STRStart), ErrModeUnsupported)).To(BeTrue())
			Expect(errors.Is(ctl.Start(ChannelID(12), SendNormal), ErrBadChannel)).To(BeTrue())
			Expect(errors.Is(ctl.Stop(NoChannel), ErrBadChannel)).To(BeTrue())
			Expect(ctl.Channel(NoChannel)).To(BeNil())

			Expect(ctl.Channel(GIF).Setup(Registers{QWC: 1})).To(Succeed())
			Expect(ctl.Start(GIF, SendNormal)).To(Succeed())
			Expect(errors.Is(ctl.Start(GIF, SendNormal), ErrBusy)).To(BeTrue())
			Expect(errors.Is(ctl.Channel(GIF).Setup(Registers{}), ErrBusy)).To(BeTrue())
		})

		It("stops on context cancel", func() {
			Expect(ctl.Channel(GIF).Setup(Registers{QWC: 1})).To(Succeed())
			Expect(ctl.Start(GIF, SendNormal)).To(Succeed())
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			Expect(errors.Is(ctl.Run(ctx), context.Canceled)).To(BeTrue())
			Expect(ctl.Channel(GIF).State()).To(Equal(Running))
		})
	})

	Describe("collaborators", func() {
		It("tells the interrupt sink about pending changes", func() {
			sink := NewMockInterruptSink(mockCtrl)
			gomock.InOrder(
				sink.EXPECT().Interrupt(false),
				sink.EXPECT().Interrupt(true),
				sink.EXPECT().Interrupt(false),
			)
			ctl = NewController(WithBus(bus), WithInterruptSink(sink), WithLogger(testLogger()))

			Expect(ctl.Write(STAT, 1<<(maskShift+BitGIF))).To(Succeed())
			Expect(ctl.Start(GIF, SendNormal)).To(Succeed())
			run()
			Expect(ctl.Status().IsPending(BitGIF)).To(BeTrue())
			Expect(ctl.Write(STAT, 1<<BitGIF)).To(Succeed())
		})

		It("traces tags and state changes", func() {
			tracer := NewMockTracer(mockCtrl)
			tag := dmatag.Tag{Kind: dmatag.End}
			putTag(bus.Main, 0x1000, tag)
			gomock.InOrder(
				tracer.EXPECT().StateChanged(VIF1, Stopped, Running, gomock.Nil()),
				tracer.EXPECT().TagDecoded(VIF1, uint32(0x1000), tag),
				tracer.EXPECT().StateChanged(VIF1, Running, Stopped, gomock.Nil()),
			)
			ctl = NewController(WithBus(bus), WithTracer(tracer), WithLogger(testLogger()))

			Expect(ctl.Channel(VIF1).Setup(Registers{TADR: 0x1000})).To(Succeed())
			Expect(ctl.Start(VIF1, SendChain)).To(Succeed())
			run()
		})

		It("traces failures", func() {
			tracer := NewMockTracer(mockCtrl)
			gomock.InOrder(
				tracer.EXPECT().StateChanged(GIF, Stopped, Running, gomock.Nil()),
				tracer.EXPECT().StateChanged(GIF, Running, Errored, gomock.Any()),
				tracer.EXPECT().StateChanged(GIF, Errored, Stopped, gomock.Any()),
			)
			ctl = NewController(WithBus(bus), WithLogger(testLogger()))
			ctl.SetTracer(tracer)

			Expect(ctl.Channel(GIF).Setup(Registers{MADR: 0x200000, QWC: 1})).To(Succeed())
			Expect(ctl.Start(GIF, SendNormal)).To(Succeed())
			run()
		})

		It("uses an attached peripheral", func() {
			dev := device.NewFIFO("gs")
			ctl = NewController(WithBus(bus), WithPeripheral(GIF, dev), WithSlice(1))
			data := putData(bus.Main, 0x1000, 3, 0x31)

			Expect(ctl.Channel(GIF).Setup(Registers{MADR: 0x1000, QWC: 3})).To(Succeed())
			Expect(ctl.Start(GIF, SendNormal)).To(Succeed())
			Expect(ctl.Step()).To(BeTrue())
			Expect(dev.Written()).To(HaveLen(1))
			run()
			Expect(dev.Written()).To(Equal(data))
		})
	})

	It("runs independent chains in parallel", func() {
		putTag(bus.Main, 0x1000, dmatag.Tag{Kind: dmatag.End, QWC: 3})
		vif0 := putData(bus.Main, 0x1010, 3, 0x40)
		putTag(bus.Main, 0x2000, dmatag.Tag{Kind: dmatag.Next, QWC: 1, Addr: 0x3000})
		vif1 := putData(bus.Main, 0x2010, 1, 0x50)
		putTag(bus.Main, 0x3000, dmatag.Tag{Kind: dmatag.End, QWC: 2})
		vif1 = append(vif1, putData(bus.Main, 0x3010, 2, 0x60)...)
		gif := putData(bus.Main, 0x5000, 17, 0x70)

		Expect(ctl.Channel(VIF0).Setup(Registers{TADR: 0x1000})).To(Succeed())
		Expect(ctl.Channel(VIF1).Setup(Registers{TADR: 0x2000})).To(Succeed())
		Expect(ctl.Channel(GIF).Setup(Registers{MADR: 0x5000, QWC: 17})).To(Succeed())
		Expect(ctl.Start(VIF0, SendChain)).To(Succeed())
		Expect(ctl.Start(VIF1, SendChain)).To(Succeed())
		Expect(ctl.Start(GIF, SendNormal)).To(Succeed())

		Expect(ctl.RunParallel(context.Background())).To(Succeed())
		Expect(ctl.Busy()).To(BeFalse())
		Expect(fifo(VIF0).Written()).To(Equal(vif0))
		Expect(fifo(VIF1).Written()).To(Equal(vif1))
		Expect(fifo(GIF).Written()).To(Equal(gif))
		Expect(ctl.Status().Value() & 0x3ff).To(Equal(uint32(1<<BitVIF0 | 1<<BitVIF1 | 1<<BitGIF)))
	})
})
