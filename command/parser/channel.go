/*
 * PS2DMAC - Channel set and show commands.
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

package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	command "github.com/rcornwell/PS2DMAC/command/command"
	"github.com/rcornwell/PS2DMAC/emu/device"
	"github.com/rcornwell/PS2DMAC/emu/dmac"
	"github.com/rcornwell/PS2DMAC/emu/dmatag"
)

// Register offsets from a channel base.
const (
	offCHCR uint32 = 0x00
	offMADR uint32 = 0x10
	offQWC  uint32 = 0x20
	offTADR uint32 = 0x30
	offASR0 uint32 = 0x40
	offSADR uint32 = 0x80
)

const (
	setShow = command.ValidSet | command.ValidShow
	setOnly = command.ValidSet
)

var channelOptions = []command.Options{
	{Name: "madr", OptionType: command.OptionHex, OptionValid: setShow},
	{Name: "qwc", OptionType: command.OptionHex, OptionValid: setShow},
	{Name: "tadr", OptionType: command.OptionHex, OptionValid: setShow},
	{Name: "sadr", OptionType: command.OptionHex, OptionValid: setShow},
	{Name: "asr", OptionType: command.OptionHex, OptionValid: setShow},
	{Name: "mode", OptionType: command.OptionList, OptionValid: setOnly, OptionList: []string{"NORMAL", "CHAIN", "INTERLEAVE"}},
	{Name: "dir", OptionType: command.OptionList, OptionValid: setOnly, OptionList: []string{"TO", "FROM"}},
	{Name: "asp", OptionType: command.OptionNumber, OptionValid: setOnly},
	{Name: "tte", OptionType: command.OptionSwitch, OptionValid: setOnly},
	{Name: "tie", OptionType: command.OptionSwitch, OptionValid: setOnly},
	{Name: "debug", OptionType: command.OptionList, OptionValid: setOnly, OptionList: []string{"TAG", "DATA", "STALL", "IRQ", "STATE"}},
	{Name: "control", OptionType: command.OptionSwitch, OptionValid: command.ValidShow},
	{Name: "state", OptionType: command.OptionSwitch, OptionValid: command.ValidShow},
	{Name: "tag", OptionType: command.OptionSwitch, OptionValid: command.ValidShow},
	{Name: "stack", OptionType: command.OptionSwitch, OptionValid: command.ValidShow},
	{Name: "device", OptionType: command.OptionSwitch, OptionValid: command.ValidShow},
}

// channelCommand lets the console set and show one DMA channel.
type channelCommand struct {
	ctl *dmac.Controller
	id  dmac.ChannelID
}

var _ command.Command = (*channelCommand)(nil)

func (c *channelCommand) Name() string {
	return c.id.String()
}

// Options returns every option, or those named opt.
func (c *channelCommand) Options(opt string) []command.Options {
	if opt == "" {
		return channelOptions
	}
	opts := []command.Options{}
	for _, o := range channelOptions {
		if o.Name == opt {
			opts = append(opts, o)
		}
	}
	return opts
}

func (c *channelCommand) regAddr(off uint32) uint32 {
	return dmac.RegAddr(c.id, off)
}

// Set registers and control bits of a stopped channel.
func (c *channelCommand) Set(unset bool, options []*command.CmdOption) error {
	ch := c.ctl.Channel(c.id)
	ctl := ch.Control()
	control := false

	for _, opt := range options {
		if unset && opt.Name != "tte" && opt.Name != "tie" {
			return errors.New("option can't be unset: " + opt.Name)
		}
		switch opt.Name {
		case "madr":
			if err := c.ctl.Write(c.regAddr(offMADR), opt.Value); err != nil {
				return err
			}
		case "qwc":
			if opt.Value > 0xffff {
				return errors.Errorf("qwc too large: %x", opt.Value)
			}
			if err := c.ctl.Write(c.regAddr(offQWC), opt.Value); err != nil {
				return err
			}
		case "tadr":
			if err := c.ctl.Write(c.regAddr(offTADR), opt.Value); err != nil {
				return err
			}
		case "sadr":
			if err := c.ctl.Write(c.regAddr(offSADR), opt.Value); err != nil {
				return err
			}
		case "asr":
			if err := c.ctl.Write(c.regAddr(offASR0), opt.Value); err != nil {
				return err
			}
		case "mode":
			switch opt.EqualOpt {
			case "normal":
				ctl = ctl.WithMode(dmac.ModeNormal)
			case "chain":
				ctl = ctl.WithMode(dmac.ModeChain)
			case "interleave":
				ctl = ctl.WithMode(dmac.ModeInterleave)
			}
			control = true
		case "dir":
			if opt.EqualOpt == "to" {
				ctl = ctl.WithDirection(dmatag.ToMemory)
			} else {
				ctl = ctl.WithDirection(dmatag.FromMemory)
			}
			control = true
		case "asp":
			if opt.Value > dmac.StackSlots {
				return errors.Errorf("asp must be 0, 1 or 2: %d", opt.Value)
			}
			ctl = ctl.WithASP(int(opt.Value))
			control = true
		case "tte":
			ctl = ctl.WithTTE(!unset)
			control = true
		case "tie":
			ctl = ctl.WithTIE(!unset)
			control = true
		case "debug":
			if err := ch.Debug(strings.ToUpper(opt.EqualOpt)); err != nil {
				return err
			}
		default:
			return errors.New("invalid option: " + opt.Name)
		}
	}

	if !control {
		return nil
	}
	// A control write without STR would stop a running channel.
	if ch.State() != dmac.Stopped {
		return errors.Wrap(dmac.ErrBusy, c.id.String())
	}
	return c.ctl.Write(c.regAddr(offCHCR), uint32(ctl.WithStart(false)))
}

// Show the channel, all of it when no options are given.
func (c *channelCommand) Show(options []*command.CmdOption) (string, error) {
	if len(options) == 0 {
		options = []*command.CmdOption{
			{Name: "state"}, {Name: "control"}, {Name: "madr"}, {Name: "qwc"},
			{Name: "tadr"}, {Name: "sadr"}, {Name: "stack"}, {Name: "tag"}, {Name: "device"},
		}
	}

	ch := c.ctl.Channel(c.id)
	regs := ch.Registers()
	fields := []string{c.Name() + ":"}
	for _, opt := range options {
		var value string
		switch opt.Name {
		case "state":
			value = ch.State().String()
			if err := ch.Err(); err != nil {
				value += " (" + err.Error() + ")"
			}
		case "control":
			value = ch.Control().String()
		case "madr":
			value = fmt.Sprintf("%08x", regs.MADR)
		case "qwc":
			value = fmt.Sprintf("%04x", regs.QWC)
		case "tadr":
			value = fmt.Sprintf("%08x", regs.TADR)
		case "sadr":
			value = fmt.Sprintf("%04x", regs.SADR)
		case "asr":
			value = fmt.Sprintf("%08x,%08x", ch.StackSlot(0), ch.StackSlot(1))
		case "stack":
			value = strconv.Itoa(ch.StackDepth())
		case "tag":
			value = ch.LastTag().String()
		case "device":
			value = deviceSummary(ch.Peripheral())
		default:
			return "", errors.New("invalid option: " + opt.Name)
		}
		fields = append(fields, opt.Name+"="+value)
	}
	return strings.Join(fields, " "), nil
}

func deviceSummary(p device.Peripheral) string {
	if f, ok := p.(*device.FIFO); ok {
		return fmt.Sprintf("%s(written %d)", f.Name(), len(f.Written()))
	}
	return p.Name()
}
