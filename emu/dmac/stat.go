/*
 * PS2DMAC - DMAC status and mask register.
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
	"sync"
	"sync/atomic"
)

const statusHalf uint32 = 0xffff

// Status is the DMAC_STAT register. The low half holds interrupt status,
// the high half the matching masks. A status bit is pending only while
// its mask bit is set.
type Status struct {
	mu    sync.Mutex // Orders changes with their sink notification.
	value atomic.Uint32
	sink  InterruptSink
}

func (s *Status) update(fn func(uint32) uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.value.Load()
	next := fn(old)
	if old == next {
		return
	}
	s.value.Store(next)
	if s.sink != nil {
		s.sink.Interrupt(pendingOf(next) != 0)
	}
}

func pendingOf(v uint32) uint32 {
	return v & (v >> maskShift) & statusHalf
}

// Raise sets a status bit.
func (s *Status) Raise(bit Bit) {
	s.update(func(v uint32) uint32 { return v | (1 << bit) })
}

// ClearOnWrite clears the status bits set in v.
func (s *Status) ClearOnWrite(v uint32) {
	v &= statusHalf
	s.update(func(old uint32) uint32 { return old &^ v })
}

// ToggleMaskOnWrite flips the mask bits set in v. Mask positions are taken
// from the high half when present, otherwise from the low half.
func (s *Status) ToggleMaskOnWrite(v uint32) {
	m := v &^ statusHalf
	if m == 0 {
		m = (v & statusHalf) << maskShift
	}
	s.update(func(old uint32) uint32 { return old ^ m })
}

// Write applies a register store: write one to clear status, write one to
// toggle mask.
func (s *Status) Write(v uint32) {
	s.update(func(old uint32) uint32 {
		return (old &^ (v & statusHalf)) ^ (v &^ statusHalf)
	})
}

// IsPending reports status and mask for bit.
func (s *Status) IsPending(bit Bit) bool {
	return pendingOf(s.value.Load())&(1<<bit) != 0
}

// Pending returns all pending bits.
func (s *Status) Pending() uint32 {
	return pendingOf(s.value.Load())
}

func (s *Status) Value() uint32 {
	return s.value.Load()
}

func (s *Status) reset() {
	s.update(func(uint32) uint32 { return 0 })
}
