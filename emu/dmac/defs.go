/*
 * PS2DMAC - DMA controller definitions.
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
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rcornwell/PS2DMAC/emu/dmatag"
)

var (
	ErrStackOverflow   = errors.New("address stack overflow")
	ErrStackUnderflow  = errors.New("address stack underflow")
	ErrBusError        = errors.New("bus error")
	ErrModeUnsupported = errors.New("transfer mode not supported by channel")
	ErrBadChannel      = errors.New("no such channel")
	ErrNoRegister      = errors.New("no register at address")
	ErrBusy            = errors.New("channel busy")
)

// ChannelID is the fixed identity of a channel.
type ChannelID int

const (
	VIF0 ChannelID = iota // Vector unit 0 interface.
	VIF1                  // Vector unit 1 interface.
	GIF                   // Graphics synthesizer interface.
	FIPU                  // From image processor.
	TIPU                  // To image processor.
	SIF0                  // Sub-system interface 0.
	SIF1                  // Sub-system interface 1.
	SIF2                  // Sub-system interface 2.
	FSPR                  // From scratch-pad.
	TSPR                  // To scratch-pad.
	NumChannels
	NoChannel ChannelID = -1
)

var channelName = [NumChannels]string{
	"VIF0", "VIF1", "GIF", "FIPU", "TIPU", "SIF0", "SIF1", "SIF2", "FSPR", "TSPR",
}

func (id ChannelID) String() string {
	if id < 0 || id >= NumChannels {
		return "none"
	}
	return channelName[id]
}

// Valid reports whether id names a channel.
func (id ChannelID) Valid() bool {
	return id >= 0 && id < NumChannels
}

// ParseChannel accepts a channel name or number.
func ParseChannel(name string) (ChannelID, error) {
	up := strings.ToUpper(name)
	for i, n := range channelName {
		if n == up {
			return ChannelID(i), nil
		}
	}
	num, err := strconv.ParseUint(name, 10, 8)
	if err != nil || num >= uint64(NumChannels) {
		return NoChannel, errors.Wrap(ErrBadChannel, name)
	}
	return ChannelID(num), nil
}

// Register offsets from a channel base.
const (
	regCHCR uint32 = 0x00 // Channel control.
	regMADR uint32 = 0x10 // Memory address.
	regQWC  uint32 = 0x20 // Quadword count.
	regTADR uint32 = 0x30 // Tag address.
	regASR0 uint32 = 0x40 // Address stack 0.
	regASR1 uint32 = 0x50 // Address stack 1.
	regSADR uint32 = 0x80 // Scratch-pad address.
)

// Which registers exist on a channel.
const (
	hasTADR = 1 << iota
	hasASR
	hasSADR
)

type channelInfo struct {
	base     uint32           // Register base address.
	regs     int              // Optional registers present.
	dir      dmatag.Direction // Default direction.
	fixedDir bool             // Direction can't be changed.
	spr      bool             // Channel moves data to or from scratch-pad.
}

var channels = [NumChannels]channelInfo{
	VIF0: {base: 0x10008000, regs: hasTADR | hasASR, dir: dmatag.FromMemory},
	VIF1: {base: 0x10009000, regs: hasTADR | hasASR, dir: dmatag.FromMemory},
	GIF:  {base: 0x1000a000, regs: hasTADR | hasASR, dir: dmatag.FromMemory, fixedDir: true},
	FIPU: {base: 0x1000b000, dir: dmatag.ToMemory, fixedDir: true},
	TIPU: {base: 0x1000b400, regs: hasTADR, dir: dmatag.FromMemory, fixedDir: true},
	SIF0: {base: 0x1000c000, dir: dmatag.ToMemory, fixedDir: true},
	SIF1: {base: 0x1000c400, regs: hasTADR, dir: dmatag.FromMemory, fixedDir: true},
	SIF2: {base: 0x1000c800, dir: dmatag.FromMemory},
	FSPR: {base: 0x1000d000, regs: hasSADR, dir: dmatag.ToMemory, fixedDir: true, spr: true},
	TSPR: {base: 0x1000d400, regs: hasTADR | hasSADR, dir: dmatag.FromMemory, fixedDir: true, spr: true},
}

// Global register addresses.
const (
	CTRL    uint32 = 0x1000e000 // DMAC control.
	STAT    uint32 = 0x1000e010 // DMAC status and mask.
	PCR     uint32 = 0x1000e020 // DMAC priority control.
	SQWC    uint32 = 0x1000e030 // DMAC skip quadword.
	RBSR    uint32 = 0x1000e040 // DMAC ring buffer size.
	RBOR    uint32 = 0x1000e050 // DMAC ring buffer offset.
	STADR   uint32 = 0x1000e060 // DMAC stall address.
	ENABLER uint32 = 0x1000f520 // Acquisition of DMA suspend status.
	ENABLEW uint32 = 0x1000f590 // DMA suspend control.
)

// Chain modes. Channels with a tag address register follow tags in
// memory. Channels writing memory without one take tags from the data
// they receive.
func (info *channelInfo) sourceChain() bool {
	return (info.regs & hasTADR) != 0
}

func (info *channelInfo) destChain() bool {
	return (info.regs&hasTADR) == 0 && info.dir == dmatag.ToMemory
}

// Channel register address.
func RegAddr(id ChannelID, offset uint32) uint32 {
	return channels[id].base + offset
}

// CTRL register fields.
const (
	ctrlDMAE     uint32 = 1 << 0 // DMA enable.
	ctrlRELE     uint32 = 1 << 1 // Release signal enable.
	ctrlMFDShift        = 2      // MFIFO drain channel.
	ctrlSTSShift        = 4      // Stall control source channel.
	ctrlSTDShift        = 6      // Stall control drain channel.
	ctrlRCYC     uint32 = 7 << 8 // Release cycle.
	ctrlMask     uint32 = 0x7ff
)

// Stall source and drain selections in CTRL.
var (
	stallSources = [4]ChannelID{NoChannel, SIF0, FSPR, FIPU}
	stallDrains  = [4]ChannelID{NoChannel, VIF1, GIF, SIF1}
)

// PCR register fields.
const (
	pcrCPCMask uint32 = 0x3ff       // COP control per channel.
	pcrCDEMask uint32 = 0x3ff << 16 // Channel enable for priority control.
	pcrPCE     uint32 = 1 << 31     // Priority control enable.
)

// SQWC register fields.
const (
	sqwcSkipMask      uint32 = 0xff
	sqwcTransferShift        = 16
)

// ENABLE register suspend bit.
const enableCPND uint32 = 1 << 16

// Status register bits.
type Bit uint

const (
	BitVIF0 Bit = iota // Ch0 interrupt status VIF0.
	BitVIF1            // Ch1 interrupt status VIF1.
	BitGIF             // Ch2 interrupt status GIF.
	BitFIPU            // Ch3 interrupt status from IPU.
	BitTIPU            // Ch4 interrupt status to IPU.
	BitSIF0            // Ch5 interrupt status SIF0.
	BitSIF1            // Ch6 interrupt status SIF1.
	BitSIF2            // Ch7 interrupt status SIF2.
	BitFSPR            // Ch8 interrupt status from SPR.
	BitTSPR            // Ch9 interrupt status to SPR.

	BitStall    Bit = 13 // DMA stall interrupt status.
	BitMFIFO    Bit = 14 // MFIFO empty interrupt status.
	BitBusError Bit = 15 // BUSERR interrupt status.

	maskShift = 16
)

// Status bit for a channel.
func ChannelBit(id ChannelID) Bit {
	return Bit(id)
}
