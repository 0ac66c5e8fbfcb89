/*
 * PS2DMAC - DMAC register access.
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

// Find the channel owning addr and the register offset within it.
func (c *Controller) lookup(addr uint32) (*Channel, uint32, bool) {
	for _, ch := range c.channels {
		base := ch.info.base
		if addr < base || addr >= base+0x100 {
			continue
		}
		off := addr - base
		switch off {
		case regCHCR, regMADR, regQWC:
			return ch, off, true
		case regTADR:
			return ch, off, (ch.info.regs & hasTADR) != 0
		case regASR0, regASR1:
			return ch, off, (ch.info.regs & hasASR) != 0
		case regSADR:
			return ch, off, (ch.info.regs & hasSADR) != 0
		}
		return ch, off, false
	}
	return nil, 0, false
}

// Read returns the value of the register at addr.
func (c *Controller) Read(addr uint32) (uint32, error) {
	switch addr {
	case CTRL:
		return c.ctrl.Load(), nil
	case STAT:
		return c.stat.Value(), nil
	case PCR:
		return c.pcr.Load(), nil
	case SQWC:
		return c.sqwc.Load(), nil
	case RBSR:
		return c.rbsr.Load(), nil
	case RBOR:
		return c.rbor.Load(), nil
	case STADR:
		return c.stadr.Load(), nil
	case ENABLER, ENABLEW:
		return c.enable.Load(), nil
	}

	ch, off, ok := c.lookup(addr)
	if !ok {
		return 0, errors.Wrapf(ErrNoRegister, "%08x", addr)
	}
	return ch.readReg(off), nil
}

// Write stores v in the register at addr with the side effects the
// hardware has.
func (c *Controller) Write(addr uint32, v uint32) error {
	switch addr {
	case CTRL:
		c.ctrl.Store(v & ctrlMask)
		return nil
	case STAT:
		c.stat.Write(v)
		return nil
	case PCR:
		c.SetPriorityControl(v)
		return nil
	case SQWC:
		c.sqwc.Store(v & (sqwcSkipMask | sqwcSkipMask<<sqwcTransferShift))
		return nil
	case RBSR:
		c.rbsr.Store(v)
		return nil
	case RBOR:
		c.rbor.Store(v)
		return nil
	case STADR:
		c.PublishStall(v)
		return nil
	case ENABLEW:
		c.enable.Store(v & enableCPND)
		return nil
	case ENABLER:
		return errors.Wrapf(ErrNoRegister, "%08x is read only", addr)
	}

	ch, off, ok := c.lookup(addr)
	if !ok {
		return errors.Wrapf(ErrNoRegister, "%08x", addr)
	}
	if off == regCHCR {
		return c.writeControl(ch, Control(v))
	}
	return ch.writeReg(off, v)
}

// Writing CHCR with STR set starts a stopped channel. Clearing STR on an
// active channel asks it to stop. Other writes to an active channel are
// dropped.
func (c *Controller) writeControl(ch *Channel, v Control) error {
	if ch.State() != Stopped {
		if !v.Started() {
			ch.stop()
		}
		return nil
	}
	if v.Started() {
		return c.Start(ch.id, v)
	}
	ch.mu.Lock()
	ch.chcr = (ch.chcr &^ chcrWritable) | (v & chcrWritable)
	if ch.info.fixedDir {
		ch.chcr = ch.chcr.WithDirection(ch.info.dir)
	}
	ch.mu.Unlock()
	return nil
}

func (ch *Channel) readReg(off uint32) uint32 {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	switch off {
	case regCHCR:
		return uint32(ch.chcr)
	case regMADR:
		return ch.madr
	case regQWC:
		return uint32(ch.qwc)
	case regTADR:
		return ch.tadr
	case regASR0:
		return ch.stack.Slot(0)
	case regASR1:
		return ch.stack.Slot(1)
	case regSADR:
		return ch.sadr
	}
	return 0
}

func (ch *Channel) writeReg(off uint32, v uint32) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.state != Stopped {
		return errors.Wrap(ErrBusy, ch.id.String())
	}
	switch off {
	case regMADR:
		ch.madr = v & (madrSPR | addrMask)
	case regQWC:
		ch.qwc = uint16(v)
	case regTADR:
		ch.tadr = v & addrMask
	case regASR0:
		ch.stack.SetSlot(0, v&addrMask)
	case regASR1:
		ch.stack.SetSlot(1, v&addrMask)
	case regSADR:
		ch.sadr = v & sadrMask
	}
	return nil
}
