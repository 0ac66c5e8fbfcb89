/*
 * PS2DMAC - DMAC configuration keywords.
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
	config "github.com/rcornwell/PS2DMAC/config/configparser"
	"github.com/rcornwell/PS2DMAC/emu/dmatag"
)

// RegisterConfig binds the DMAC keywords of a configuration file to c.
func (c *Controller) RegisterConfig(p *config.Parser) {
	p.RegisterOptions("CHANNEL", c.configChannel)
	p.RegisterOptions("STALL", c.configStall)
	p.RegisterOption("PRIORITY", c.configPriority)
	p.RegisterOptions("SQWC", c.configSQWC)
	p.RegisterOption("SLICE", c.configSlice)
}

// CHANNEL <name> [normal|chain|interleave] [tte] [tie] [asp=n] [dir=to|from]
// [madr=x] [qwc=x] [tadr=x] [sadr=x] [start].
func (c *Controller) configChannel(_ uint32, name string, options []config.Option) error {
	id, err := ParseChannel(name)
	if err != nil {
		return err
	}
	ch := c.channels[id]
	regs := ch.Registers()
	ctl := ch.Control()
	start := false

	for _, opt := range options {
		switch strings.ToUpper(opt.Name) {
		case "NORMAL":
			ctl = ctl.WithMode(ModeNormal)
		case "CHAIN":
			ctl = ctl.WithMode(ModeChain)
		case "INTERLEAVE":
			ctl = ctl.WithMode(ModeInterleave)
		case "TTE":
			ctl = ctl.WithTTE(true)
		case "TIE":
			ctl = ctl.WithTIE(true)
		case "START":
			start = true
		case "ASP":
			n, err := strconv.ParseUint(opt.EqualOpt, 10, 2)
			if err != nil || n > StackSlots {
				return errors.New("asp must be 0, 1 or 2: " + opt.EqualOpt)
			}
			ctl = ctl.WithASP(int(n))
		case "DIR":
			switch strings.ToUpper(opt.EqualOpt) {
			case "TO":
				ctl = ctl.WithDirection(dmatag.ToMemory)
			case "FROM":
				ctl = ctl.WithDirection(dmatag.FromMemory)
			default:
				return errors.New("dir must be to or from: " + opt.EqualOpt)
			}
		case "MADR", "QWC", "TADR", "SADR":
			v, err := strconv.ParseUint(opt.EqualOpt, 16, 32)
			if err != nil {
				return errors.Wrapf(err, "%s value", opt.Name)
			}
			switch strings.ToUpper(opt.Name) {
			case "MADR":
				regs.MADR = uint32(v)
			case "QWC":
				if v > 0xffff {
					return errors.New("qwc too large: " + opt.EqualOpt)
				}
				regs.QWC = uint16(v)
			case "TADR":
				regs.TADR = uint32(v)
			case "SADR":
				regs.SADR = uint32(v)
			}
		default:
			return errors.New("channel option invalid: " + opt.Name)
		}
	}

	if err := ch.Setup(regs); err != nil {
		return err
	}
	if start {
		return c.Start(id, ctl)
	}
	return c.Write(RegAddr(id, regCHCR), uint32(ctl.WithStart(false)))
}

// STALL <source> [drain=<name>].
func (c *Controller) configStall(_ uint32, source string, options []config.Option) error {
	src := NoChannel
	if !strings.EqualFold(source, "none") {
		id, err := ParseChannel(source)
		if err != nil {
			return err
		}
		src = id
	}
	drain := NoChannel
	for _, opt := range options {
		if !strings.EqualFold(opt.Name, "drain") {
			return errors.New("stall option invalid: " + opt.Name)
		}
		if strings.EqualFold(opt.EqualOpt, "none") {
			continue
		}
		id, err := ParseChannel(opt.EqualOpt)
		if err != nil {
			return err
		}
		drain = id
	}
	return c.SetStallControl(src, drain)
}

// PRIORITY <hex PCR>.
func (c *Controller) configPriority(addr uint32, value string, _ []config.Option) error {
	if addr == config.NoAddr {
		return errors.New("priority requires hex value: " + value)
	}
	c.SetPriorityControl(addr)
	return nil
}

// SQWC <skip> transfer=<n>, both decimal.
func (c *Controller) configSQWC(_ uint32, value string, options []config.Option) error {
	skip, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		return errors.New("sqwc skip must be a number: " + value)
	}
	transfer := uint64(0)
	for _, opt := range options {
		if !strings.EqualFold(opt.Name, "transfer") {
			return errors.New("sqwc option invalid: " + opt.Name)
		}
		transfer, err = strconv.ParseUint(opt.EqualOpt, 10, 8)
		if err != nil {
			return errors.New("sqwc transfer must be a number: " + opt.EqualOpt)
		}
	}
	c.SetInterleave(uint8(skip), uint8(transfer))
	return nil
}

// SLICE <n>, decimal.
func (c *Controller) configSlice(_ uint32, value string, _ []config.Option) error {
	n, err := strconv.ParseUint(value, 10, 16)
	if err != nil || n == 0 {
		return errors.New("slice must be a positive number: " + value)
	}
	c.SetSlice(int(n))
	return nil
}
