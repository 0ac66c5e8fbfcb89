/*
 * PS2DMAC - Channel address stack.
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
	"github.com/pkg/errors"
)

// StackSlots is the number of address stack registers on a channel.
const StackSlots = 2

// AddressStack holds return addresses for call and ret tags. The limit is
// the depth configured in CHCR.ASP when the channel was started.
type AddressStack struct {
	slot  [StackSlots]uint32
	sp    int
	limit int
}

// Reset empties the stack and sets its usable depth.
func (s *AddressStack) Reset(limit int) {
	if limit < 0 {
		limit = 0
	}
	if limit > StackSlots {
		limit = StackSlots
	}
	s.sp = 0
	s.limit = limit
}

// Push saves addr. Fails when the configured depth is used up.
func (s *AddressStack) Push(addr uint32) error {
	if s.sp >= s.limit {
		return errors.Wrapf(ErrStackOverflow, "depth %d", s.limit)
	}
	s.slot[s.sp] = addr
	s.sp++
	return nil
}

// Pop returns the most recently pushed address.
func (s *AddressStack) Pop() (uint32, error) {
	if s.sp == 0 {
		return 0, ErrStackUnderflow
	}
	s.sp--
	return s.slot[s.sp], nil
}

// Depth is the number of addresses on the stack.
func (s *AddressStack) Depth() int {
	return s.sp
}

func (s *AddressStack) Limit() int {
	return s.limit
}

func (s *AddressStack) Slot(i int) uint32 {
	return s.slot[i]
}

// SetSlot loads a stack register directly.
func (s *AddressStack) SetSlot(i int, addr uint32) {
	s.slot[i] = addr
}
