/*
 * PS2DMAC - DMA tag decoder.
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
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrMalformedTag      = errors.New("malformed DMA tag")
	ErrMisalignedAddress = errors.WithMessage(ErrMalformedTag, "address not on quadword boundary")
)

// Tag layout in the low 64 bits of the quadword.
const (
	qwcMask   uint64 = 0xffff
	pceShift         = 26
	pceMask   uint64 = 0x3
	idShift          = 28
	idMask    uint64 = 0x7
	irqBit    uint64 = 1 << 31
	addrShift        = 32
	addrMask  uint64 = 0x7fffffff
	sprBit    uint64 = 1 << 63

	// AddrMask covers the 31 address bits of a tag.
	AddrMask uint32 = 0x7fffffff

	// QuadSize is the number of bytes in one quadword.
	QuadSize = 16
)

// Direction of the channel reading the tag. It is needed to tell the
// two kinds sharing ID 0 apart.
type Direction uint8

const (
	ToMemory   Direction = 0 // Peripheral to memory.
	FromMemory Direction = 1 // Memory to peripheral.
)

func (d Direction) String() string {
	if d == ToMemory {
		return "to"
	}
	return "from"
}

// Region selects main memory or scratch-pad RAM.
type Region uint8

const (
	Memory     Region = 0
	ScratchPad Region = 1
)

func (r Region) String() string {
	if r == ScratchPad {
		return "spr"
	}
	return "mem"
}

// Priority is the priority control hint carried by a tag.
type Priority uint8

const (
	PriorityDisabled Priority = 0 // No change.
	priorityReserved Priority = 1
	PriorityLower    Priority = 2 // Priority control disabled for this packet.
	PriorityRaise    Priority = 3 // Priority control enabled for this packet.
)

func (p Priority) String() string {
	switch p {
	case PriorityDisabled:
		return "none"
	case PriorityLower:
		return "lower"
	case PriorityRaise:
		return "raise"
	}
	return "reserved"
}

// Kind identifies how a tag locates its data and the next tag.
type Kind uint8

const (
	ReferenceEnd   Kind = iota // refe: data at ADDR, then end.
	ContinueStall              // cnts: data follows tag, MADR published to STADR.
	Continue                   // cnt: data follows tag, next tag follows data.
	Next                       // next: data follows tag, next tag at ADDR.
	Reference                  // ref: data at ADDR, next tag follows tag.
	ReferenceStall             // refs: ref under stall control.
	Call                       // call: push next, next tag at ADDR.
	Return                     // ret: next tag popped from stack.
	End                        // end: data follows tag, then end.
	numKinds
)

// Encoded tag identifiers.
var kindID = [numKinds]uint8{
	ReferenceEnd:   0,
	ContinueStall:  0,
	Continue:       1,
	Next:           2,
	Reference:      3,
	ReferenceStall: 4,
	Call:           5,
	Return:         6,
	End:            7,
}

var kindName = [numKinds]string{
	"refe", "cnts", "cnt", "next", "ref", "refs", "call", "ret", "end",
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k < numKinds
}

// ID returns the 3 bit value stored in the tag.
func (k Kind) ID() uint8 {
	if !k.Valid() {
		return 0xff
	}
	return kindID[k]
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindName[k]
}

// UsesAddress reports whether the ADDR field is consumed by the kind.
func (k Kind) UsesAddress() bool {
	switch k {
	case ReferenceEnd, Reference, ReferenceStall, Next, Call:
		return true
	}
	return false
}

// Ends reports whether the chain stops after this tag's data.
func (k Kind) Ends() bool {
	return k == ReferenceEnd || k == End
}

// KindFromName returns the kind with the given short name.
func KindFromName(name string) (Kind, bool) {
	for k, n := range kindName {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// Quadword is a 128 bit value stored little endian.
type Quadword struct {
	Lo uint64
	Hi uint64
}

// QuadwordFromBytes builds a quadword from 16 bytes.
func QuadwordFromBytes(b []byte) Quadword {
	return Quadword{
		Lo: binary.LittleEndian.Uint64(b[0:8]),
		Hi: binary.LittleEndian.Uint64(b[8:16]),
	}
}

// Bytes returns the 16 byte memory image.
func (q Quadword) Bytes() [QuadSize]byte {
	var b [QuadSize]byte
	binary.LittleEndian.PutUint64(b[0:8], q.Lo)
	binary.LittleEndian.PutUint64(b[8:16], q.Hi)
	return b
}

func (q Quadword) String() string {
	return fmt.Sprintf("%016x%016x", q.Hi, q.Lo)
}

// Tag is the decoded view of a DMA tag.
type Tag struct {
	QWC      uint16   // Quadword count.
	Priority Priority // Priority control enable.
	Kind     Kind     // Tag identifier.
	IRQ      bool     // Interrupt request.
	Addr     uint32   // Address, lower 4 bits zero.
	Region   Region   // Memory or scratch-pad.
}

// Decoder holds channel context needed while decoding.
type Decoder struct {
	Direction   Direction // Direction of the channel.
	TagTransfer bool      // Tag is sent to the peripheral.
}

// Decode a tag for a channel moving data in direction dir.
func Decode(q Quadword, dir Direction) (Tag, error) {
	return Decoder{Direction: dir}.Decode(q)
}

// Decode splits the first 64 bits of q into tag fields. The upper 64 bits
// are ignored.
func (d Decoder) Decode(q Quadword) (Tag, error) {
	raw := q.Lo
	tag := Tag{
		QWC:      uint16(raw & qwcMask),
		Priority: Priority((raw >> pceShift) & pceMask),
		IRQ:      (raw & irqBit) != 0,
		Addr:     uint32((raw >> addrShift) & addrMask),
	}
	if (raw & sprBit) != 0 {
		tag.Region = ScratchPad
	}

	if tag.Priority == priorityReserved {
		return Tag{}, errors.Wrapf(ErrMalformedTag, "reserved priority control %d", tag.Priority)
	}

	id := uint8((raw >> idShift) & idMask)
	kind, ok := kindFromID(id, d.Direction)
	if !ok {
		return Tag{}, errors.Wrapf(ErrMalformedTag, "tag id %d", id)
	}
	tag.Kind = kind

	if (tag.Addr&0xf) != 0 && (kind.UsesAddress() || d.TagTransfer) {
		return Tag{}, errors.Wrapf(ErrMisalignedAddress, "%s address %08x", kind, tag.Addr)
	}
	return tag, nil
}

// Map tag identifier to kind.
func kindFromID(id uint8, dir Direction) (Kind, bool) {
	if id == 0 {
		if dir == ToMemory {
			return ContinueStall, true
		}
		return ReferenceEnd, true
	}
	for k := Continue; k < numKinds; k++ {
		if kindID[k] == id {
			return k, true
		}
	}
	return 0, false
}

// Encode builds the quadword for the tag. The upper 64 bits are zero.
func (t Tag) Encode() (Quadword, error) {
	if !t.Kind.Valid() {
		return Quadword{}, errors.Wrapf(ErrMalformedTag, "invalid kind %d", uint8(t.Kind))
	}
	if t.Priority > PriorityRaise || t.Priority == priorityReserved {
		return Quadword{}, errors.Wrapf(ErrMalformedTag, "invalid priority control %d", t.Priority)
	}
	if t.Addr > AddrMask {
		return Quadword{}, errors.Wrapf(ErrMalformedTag, "address %08x too wide", t.Addr)
	}
	if (t.Addr & 0xf) != 0 {
		return Quadword{}, errors.Wrapf(ErrMisalignedAddress, "%s address %08x", t.Kind, t.Addr)
	}

	raw := uint64(t.QWC)
	raw |= uint64(t.Priority) << pceShift
	raw |= uint64(t.Kind.ID()) << idShift
	if t.IRQ {
		raw |= irqBit
	}
	raw |= uint64(t.Addr) << addrShift
	if t.Region == ScratchPad {
		raw |= sprBit
	}
	return Quadword{Lo: raw}, nil
}

// Direction returns the channel direction a kind must be decoded with to
// round trip through ID 0.
func (k Kind) Direction() Direction {
	if k == ContinueStall {
		return ToMemory
	}
	return FromMemory
}

func (t Tag) String() string {
	return fmt.Sprintf("DmaTag{ID:%-4s; Addr:%08x; QWC:%04x; SPR:%t; IRQ:%t; PCE:%s}",
		t.Kind, t.Addr, t.QWC, t.Region == ScratchPad, t.IRQ, t.Priority)
}
