/*
 * PS2DMAC - Main memory and scratch-pad RAM.
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

package memory

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"github.com/rcornwell/PS2DMAC/emu/dmatag"
)

var (
	ErrAddress   = errors.New("address out of range")
	ErrAlignment = errors.New("address not aligned")
)

const (
	MainSize    uint32 = 32 * 1024 * 1024 // Main memory size.
	ScratchSize uint32 = 16 * 1024        // Scratch-pad size.
	maxSize     uint32 = 256 * 1024 * 1024

	HMASK uint32 = 0x0000ffff // Half word mask
	UMASK uint32 = 0xffff0000 // Upper half word mask
	FMASK uint32 = 0xffffffff // Full word mask
)

// Space is a byte addressable memory a channel can read and write.
type Space interface {
	ReadQuad(addr uint32) ([dmatag.QuadSize]byte, error)
	WriteQuad(addr uint32, data [dmatag.QuadSize]byte) error
}

// Memory is one block of RAM. Scratch-pad addresses wrap.
type Memory struct {
	mu   sync.RWMutex
	mem  []byte
	size uint32
	wrap bool
}

// New creates a memory of size bytes.
func New(size uint32) *Memory {
	m := &Memory{}
	m.SetSize(size)
	return m
}

// NewScratchPad creates a scratch-pad, addresses wrap at its size.
func NewScratchPad(size uint32) *Memory {
	m := New(size)
	m.wrap = true
	return m
}

// Set size in bytes, rounded down to a quadword. Contents are cleared.
func (m *Memory) SetSize(size uint32) {
	if size > maxSize {
		size = maxSize
	}
	size &^= dmatag.QuadSize - 1
	m.mu.Lock()
	m.mem = make([]byte, size)
	m.size = size
	m.mu.Unlock()
}

// Return size of memory in bytes.
func (m *Memory) GetSize() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Map address into memory, applying scratch-pad wrap.
func (m *Memory) translate(addr uint32, n uint32) (uint32, error) {
	if m.wrap && m.size != 0 {
		addr %= m.size
	}
	if m.size < n || addr > m.size-n {
		return 0, errors.Wrapf(ErrAddress, "%08x", addr)
	}
	return addr, nil
}

// Check if address out of range.
func (m *Memory) CheckAddr(addr uint32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.translate(addr, 1)
	return err == nil
}

// Get a word from memory.
func (m *Memory) GetWord(addr uint32) (uint32, error) {
	if (addr & 3) != 0 {
		return 0, errors.Wrapf(ErrAlignment, "word %08x", addr)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, err := m.translate(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.mem[a:]), nil
}

// Put a word to memory.
func (m *Memory) PutWord(addr, data uint32) error {
	return m.PutWordMask(addr, data, FMASK)
}

// Put a word to memory, under mask.
func (m *Memory) PutWordMask(addr, data, mask uint32) error {
	if (addr & 3) != 0 {
		return errors.Wrapf(ErrAlignment, "word %08x", addr)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.translate(addr, 4)
	if err != nil {
		return err
	}
	word := binary.LittleEndian.Uint32(m.mem[a:])
	word &= ^mask
	word |= data & mask
	binary.LittleEndian.PutUint32(m.mem[a:], word)
	return nil
}

// Read one quadword.
func (m *Memory) ReadQuad(addr uint32) ([dmatag.QuadSize]byte, error) {
	var q [dmatag.QuadSize]byte
	if (addr & 0xf) != 0 {
		return q, errors.Wrapf(ErrAlignment, "quadword %08x", addr)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, err := m.translate(addr, dmatag.QuadSize)
	if err != nil {
		return q, err
	}
	copy(q[:], m.mem[a:a+dmatag.QuadSize])
	return q, nil
}

// Write one quadword.
func (m *Memory) WriteQuad(addr uint32, data [dmatag.QuadSize]byte) error {
	if (addr & 0xf) != 0 {
		return errors.Wrapf(ErrAlignment, "quadword %08x", addr)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.translate(addr, dmatag.QuadSize)
	if err != nil {
		return err
	}
	copy(m.mem[a:], data[:])
	return nil
}

// Load copies an image into memory at addr.
func (m *Memory) Load(addr uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.translate(addr, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(m.mem[a:], data)
	return nil
}

// Read returns a copy of n bytes at addr.
func (m *Memory) Read(addr, n uint32) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, err := m.translate(addr, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, m.mem[a:a+n])
	return out, nil
}

// Clear zeroes all of memory.
func (m *Memory) Clear() {
	m.mu.Lock()
	clear(m.mem)
	m.mu.Unlock()
}

// Bus holds the two regions a tag can select.
type Bus struct {
	Main    *Memory
	Scratch *Memory
}

// NewBus creates main memory and scratch-pad of default sizes.
func NewBus() *Bus {
	return &Bus{Main: New(MainSize), Scratch: NewScratchPad(ScratchSize)}
}

// Space returns the memory for a region.
func (b *Bus) Space(r dmatag.Region) *Memory {
	if r == dmatag.ScratchPad {
		return b.Scratch
	}
	return b.Main
}
