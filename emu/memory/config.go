/*
 * PS2DMAC - Memory configuration keywords.
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
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	config "github.com/rcornwell/PS2DMAC/config/configparser"
	"github.com/rcornwell/PS2DMAC/emu/dmatag"
)

// RegisterConfig binds MEMORY, SCRATCHPAD and LOAD to b.
func (b *Bus) RegisterConfig(p *config.Parser) {
	p.RegisterOption("MEMORY", func(_ uint32, value string, _ []config.Option) error {
		size, err := ParseSize(value)
		if err != nil {
			return err
		}
		b.Main.SetSize(size)
		return nil
	})
	p.RegisterOption("SCRATCHPAD", func(_ uint32, value string, _ []config.Option) error {
		size, err := ParseSize(value)
		if err != nil {
			return err
		}
		b.Scratch.SetSize(size)
		return nil
	})
	p.RegisterModel("LOAD", config.TypeModel, b.configLoad)
}

// ParseSize accepts a decimal number with an optional K or M suffix.
func ParseSize(value string) (uint32, error) {
	mult := uint64(1)
	v := strings.ToUpper(value)
	switch {
	case strings.HasSuffix(v, "K"):
		mult = 1024
		v = v[:len(v)-1]
	case strings.HasSuffix(v, "M"):
		mult = 1024 * 1024
		v = v[:len(v)-1]
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, errors.Errorf("invalid memory size: %s", value)
	}
	n *= mult
	if n == 0 || n > uint64(maxSize) {
		return 0, errors.Errorf("memory size out of range: %s", value)
	}
	return uint32(n), nil
}

// LOAD <hex address> file="name" [spr].
func (b *Bus) configLoad(addr uint32, _ string, options []config.Option) error {
	fileName := ""
	region := dmatag.Memory
	for _, opt := range options {
		switch strings.ToUpper(opt.Name) {
		case "FILE":
			fileName = opt.EqualOpt
		case "SPR":
			region = dmatag.ScratchPad
		default:
			return errors.New("load option invalid: " + opt.Name)
		}
	}
	if fileName == "" {
		return errors.New("load requires file=")
	}
	data, err := os.ReadFile(fileName)
	if err != nil {
		return errors.Wrap(err, "load")
	}
	return errors.Wrapf(b.Space(region).Load(addr, data), "load %s", fileName)
}
