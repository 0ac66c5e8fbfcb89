/*
 * PS2DMAC - Chain assembler configuration keyword.
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

package assemble

import (
	"strings"

	"github.com/pkg/errors"
	config "github.com/rcornwell/PS2DMAC/config/configparser"
	"github.com/rcornwell/PS2DMAC/emu/dmac"
)

// RegisterConfig adds ASSEMBLE <hex base> file="name" [channel=name]. When a
// channel is named its TADR is pointed at the start of the chain.
func RegisterConfig(p *config.Parser, ctl *dmac.Controller) {
	p.RegisterModel("ASSEMBLE", config.TypeModel, func(base uint32, _ string, options []config.Option) error {
		fileName := ""
		channel := dmac.NoChannel
		for _, opt := range options {
			switch strings.ToUpper(opt.Name) {
			case "FILE":
				fileName = opt.EqualOpt
			case "CHANNEL":
				id, err := dmac.ParseChannel(opt.EqualOpt)
				if err != nil {
					return err
				}
				channel = id
			default:
				return errors.New("assemble option invalid: " + opt.Name)
			}
		}
		if fileName == "" {
			return errors.New("assemble requires file=")
		}
		start, err := LoadFile(ctl, fileName, base)
		if err != nil {
			return err
		}
		if channel == dmac.NoChannel {
			return nil
		}
		ch := ctl.Channel(channel)
		regs := ch.Registers()
		regs.TADR = start
		return ch.Setup(regs)
	})
}

// LoadFile parses a chain file and stores it in the controller's memory.
func LoadFile(ctl *dmac.Controller, name string, base uint32) (uint32, error) {
	c, err := ParseFile(name)
	if err != nil {
		return 0, err
	}
	start, err := c.Load(ctl.Bus(), base)
	return start, errors.WithMessage(err, name)
}
