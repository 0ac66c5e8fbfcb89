/*
 * PS2DMAC - I/O processor DMA tag.
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

package dmatag

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	iopAddrMask uint64 = 0x00ffffff
	iopIntBit   uint64 = 1 << 30
	iopErtBit   uint64 = 1 << 31
	iopWCShift         = 32
)

// IOPTag is the tag used by the sub-system interface on the IOP side.
// ERT has no defined behaviour here and is carried through unchanged.
type IOPTag struct {
	Addr      uint32 // IOP address, 24 bits.
	IRQ       bool   // Assert IOP interrupt on completion.
	ERT       bool   // Opaque flag.
	WordCount uint32 // 32 bit word count.
}

// DecodeIOP splits the first 64 bits of q into IOP tag fields.
func DecodeIOP(q Quadword) IOPTag {
	raw := q.Lo
	return IOPTag{
		Addr:      uint32(raw & iopAddrMask),
		IRQ:       (raw & iopIntBit) != 0,
		ERT:       (raw & iopErtBit) != 0,
		WordCount: uint32(raw >> iopWCShift),
	}
}

// Encode builds the quadword for an IOP tag.
func (t IOPTag) Encode() (Quadword, error) {
	if uint64(t.Addr) > iopAddrMask {
		return Quadword{}, errors.Wrapf(ErrMalformedTag, "IOP address %08x too wide", t.Addr)
	}
	raw := uint64(t.Addr)
	if t.IRQ {
		raw |= iopIntBit
	}
	if t.ERT {
		raw |= iopErtBit
	}
	raw |= uint64(t.WordCount) << iopWCShift
	return Quadword{Lo: raw}, nil
}

func (t IOPTag) String() string {
	return fmt.Sprintf("IopTag{Addr:%06x; WC:%08x; INT:%t; ERT:%t}", t.Addr, t.WordCount, t.IRQ, t.ERT)
}
