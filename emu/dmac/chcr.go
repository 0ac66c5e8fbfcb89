/*
 * PS2DMAC - Channel control register.
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
	"fmt"

	"github.com/rcornwell/PS2DMAC/emu/dmatag"
)

// Mode is the transfer mode held in CHCR.MOD.
type Mode uint8

const (
	ModeNormal     Mode = 0
	ModeChain      Mode = 1
	ModeInterleave Mode = 2
	modeReserved   Mode = 3
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeChain:
		return "chain"
	case ModeInterleave:
		return "interleave"
	}
	return "reserved"
}

// Control is the value of a channel's CHCR register.
//
//	bit 0      DIR  direction, 1 = from memory
//	bits 2-3   MOD  mode
//	bits 4-5   ASP  address stack pointer
//	bit 6      TTE  tag transfer enable
//	bit 7      TIE  tag interrupt enable
//	bit 8      STR  start
//	bits 16-31 TAG  bits 16-31 of the last tag read
type Control uint32

const (
	chcrDIR      Control = 1 << 0
	chcrMODShift         = 2
	chcrMODMask  Control = 3 << chcrMODShift
	chcrASPShift         = 4
	chcrASPMask  Control = 3 << chcrASPShift
	chcrTTE      Control = 1 << 6
	chcrTIE      Control = 1 << 7
	chcrSTR      Control = 1 << 8
	chcrTAGShift         = 16
	chcrWritable Control = 0x1fd
)

// Preset control values.
const (
	DirToMemory   Control = 0
	DirFromMemory Control = chcrDIR
	ModNormal     Control = Control(ModeNormal) << chcrMODShift
	ModChain      Control = Control(ModeChain) << chcrMODShift
	ModInterleave Control = Control(ModeInterleave) << chcrMODShift
	ASPNone       Control = 0
	ASP1Addr      Control = 1 << chcrASPShift
	ASP2Addr      Control = 2 << chcrASPShift
	TTEOn         Control = chcrTTE
	TIEOn         Control = chcrTIE
	STRStart      Control = chcrSTR

	SendNormal    = DirFromMemory | ModNormal | STRStart
	SendNormalTIE = DirFromMemory | ModNormal | TIEOn | STRStart
	SendChain     = DirFromMemory | ModChain | STRStart
	SendChainTTE  = DirFromMemory | ModChain | TTEOn | STRStart
	RecvNormal    = DirToMemory | ModNormal | STRStart
	RecvChainTIE  = DirToMemory | ModChain | TIEOn | STRStart
)

func (c Control) Direction() dmatag.Direction {
	if (c & chcrDIR) != 0 {
		return dmatag.FromMemory
	}
	return dmatag.ToMemory
}

func (c Control) Mode() Mode {
	return Mode((c & chcrMODMask) >> chcrMODShift)
}

// ASP returns the configured address stack depth.
func (c Control) ASP() int {
	return int((c & chcrASPMask) >> chcrASPShift)
}

func (c Control) TTE() bool {
	return (c & chcrTTE) != 0
}

func (c Control) TIE() bool {
	return (c & chcrTIE) != 0
}

func (c Control) Started() bool {
	return (c & chcrSTR) != 0
}

// Tag returns the upper half of the last tag read.
func (c Control) Tag() uint16 {
	return uint16(c >> chcrTAGShift)
}

func (c Control) WithDirection(d dmatag.Direction) Control {
	c &^= chcrDIR
	if d == dmatag.FromMemory {
		c |= chcrDIR
	}
	return c
}

func (c Control) WithMode(m Mode) Control {
	return (c &^ chcrMODMask) | (Control(m)<<chcrMODShift)&chcrMODMask
}

func (c Control) WithASP(n int) Control {
	return (c &^ chcrASPMask) | (Control(n)<<chcrASPShift)&chcrASPMask
}

func (c Control) WithTTE(on bool) Control {
	return setFlag(c, chcrTTE, on)
}

func (c Control) WithTIE(on bool) Control {
	return setFlag(c, chcrTIE, on)
}

func (c Control) WithStart(on bool) Control {
	return setFlag(c, chcrSTR, on)
}

func (c Control) WithTag(tag uint16) Control {
	return (c & 0xffff) | Control(tag)<<chcrTAGShift
}

func setFlag(c Control, flag Control, on bool) Control {
	if on {
		return c | flag
	}
	return c &^ flag
}

func (c Control) String() string {
	return fmt.Sprintf("CHCR{DIR:%s; MOD:%s; ASP:%d; TTE:%t; TIE:%t; STR:%t; TAG:%04x}",
		c.Direction(), c.Mode(), c.ASP(), c.TTE(), c.TIE(), c.Started(), c.Tag())
}
