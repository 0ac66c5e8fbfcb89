/*
 * PS2DMAC - Memory and register commands.
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
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"github.com/rcornwell/PS2DMAC/emu/assemble"
	"github.com/rcornwell/PS2DMAC/emu/device"
	"github.com/rcornwell/PS2DMAC/emu/dmatag"
	"github.com/rcornwell/PS2DMAC/emu/memory"
	"github.com/rcornwell/PS2DMAC/util/hex"
)

// Addresses at or above this are DMAC registers unless -s is given.
const registerBase uint32 = 0x10000000

type memoryOpts struct {
	file      *os.File // File to output too.
	scratch   bool     // Scratch-pad instead of main memory.
	data      bool     // Data words instead of a tag.
	iop       bool     // IOP side tags.
	high      bool     // High value defined.
	lowRange  uint32   // Lower start to display.
	highRange uint32   // Highest value to display.
}

// Get options for memory reference command.
func (line *cmdLine) parseMemoryOptions(options *memoryOpts, file bool) error {
	for {
		line.skipSpace()
		switch line.peek() {
		case '@':
			if !file {
				return errors.New("output file not allowed")
			}
			if options.file != nil {
				return errors.New("can't specify more then one file")
			}
			line.pos++
			fileName, ok := line.parseQuoteString()
			if !ok || fileName == "" {
				return errors.New("file name not valid")
			}
			f, err := os.Create(fileName)
			if err != nil {
				return err
			}
			options.file = f
		case '-':
			line.pos++
			for !line.atSeparator() {
				switch unicode.ToLower(rune(line.getCurrent())) {
				case 's':
					options.scratch = true
				case 'd':
					options.data = true
				case 'i':
					options.iop = true
				default:
					return errors.New("invalid flag: " + line.line[line.pos-1:line.pos])
				}
			}
		default:
			return nil
		}
	}
}

// Get address and optional end address.
func (line *cmdLine) parseMemoryRange(options *memoryOpts) error {
	low, err := line.getHex()
	if err != nil {
		return errors.New("address must be hex number")
	}
	options.lowRange = low
	options.highRange = low

	if by := line.peek(); by == '-' || by == ':' {
		line.pos++
		high, err := line.getHex()
		if err != nil {
			return errors.New("end address must be hex number")
		}
		if high < low {
			return errors.New("high address below low address")
		}
		options.high = true
		options.highRange = high
	}
	if !line.atSeparator() {
		return errors.New("invalid address: " + line.rest())
	}
	return nil
}

// Parse list of hex words.
func (line *cmdLine) parseDepositHex() ([]uint32, error) {
	words := []uint32{}
	for {
		line.skipSpace()
		if line.isEOL() {
			break
		}
		word, err := line.getHex()
		if err != nil || !line.atSeparator() {
			return nil, errors.New("value must be hex word")
		}
		words = append(words, word)
	}
	if len(words) == 0 {
		return nil, errors.New("no value to deposit")
	}
	return words, nil
}

func (s *Session) space(options *memoryOpts) *memory.Memory {
	if options.scratch {
		return s.ctl.Bus().Scratch
	}
	return s.ctl.Bus().Main
}

func isRegister(options *memoryOpts) bool {
	return !options.scratch && options.lowRange >= registerBase
}

// Dump range of memory.
func (s *Session) dumpMemory(w io.Writer, options *memoryOpts) error {
	start := options.lowRange &^ 0xf
	end := options.highRange | 0xf
	data, err := s.space(options).Read(start, end-start+1)
	if err != nil {
		return errors.Wrapf(err, "examine %08x", options.lowRange)
	}
	_, err = io.WriteString(w, hex.Dump(start, data))
	return err
}

// List each quadword in range as an IOP tag.
func (s *Session) dumpIOPTags(w io.Writer, options *memoryOpts) error {
	start := options.lowRange &^ 0xf
	end := options.highRange | 0xf
	data, err := s.space(options).Read(start, end-start+1)
	if err != nil {
		return errors.Wrapf(err, "examine %08x", options.lowRange)
	}
	for off := 0; off < len(data); off += dmatag.QuadSize {
		tag := dmatag.DecodeIOP(dmatag.QuadwordFromBytes(data[off : off+dmatag.QuadSize]))
		fmt.Fprintf(w, "%08x: %s\n", start+uint32(off), tag)
	}
	return nil
}

// Dump range of registers, skipping holes.
func (s *Session) dumpRegisters(w io.Writer, options *memoryOpts) error {
	if !options.high {
		v, err := s.ctl.Read(options.lowRange)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%08x: %08x\n", options.lowRange, v)
		return nil
	}
	for addr := options.lowRange &^ 0xf; addr <= options.highRange; addr += 0x10 {
		v, err := s.ctl.Read(addr)
		if err == nil {
			fmt.Fprintf(w, "%08x: %08x\n", addr, v)
		}
		if addr+0x10 < addr {
			break
		}
	}
	return nil
}

// Examine memory or registers.
func examine(line *cmdLine, s *Session) (bool, error) {
	slog.Debug("Command Examine")
	var options memoryOpts

	if err := line.parseMemoryOptions(&options, true); err != nil {
		return false, err
	}

	var w io.Writer = s.out
	if options.file != nil {
		defer options.file.Close()
		w = options.file
	}

	if err := line.parseMemoryRange(&options); err != nil {
		return false, err
	}

	if extra := line.rest(); extra != "" {
		return false, errors.New("extra arguments to command: " + extra)
	}

	if isRegister(&options) {
		if options.iop {
			return false, errors.New("registers hold no IOP tags")
		}
		return false, s.dumpRegisters(w, &options)
	}
	if options.iop {
		return false, s.dumpIOPTags(w, &options)
	}
	return false, s.dumpMemory(w, &options)
}

// Deposit words into memory or a register.
func deposit(line *cmdLine, s *Session) (bool, error) {
	slog.Debug("Command Deposit")
	var options memoryOpts

	if err := line.parseMemoryOptions(&options, false); err != nil {
		return false, err
	}
	if err := line.parseMemoryRange(&options); err != nil {
		return false, err
	}
	if options.high {
		return false, errors.New("deposit takes a single address")
	}
	words, err := line.parseDepositHex()
	if err != nil {
		return false, err
	}

	if isRegister(&options) {
		if len(words) != 1 {
			return false, errors.New("register takes one value")
		}
		return false, s.ctl.Write(options.lowRange, words[0])
	}

	space := s.space(&options)
	for i, word := range words {
		addr := options.lowRange + uint32(i*4)
		if err := space.PutWord(addr, word); err != nil {
			return false, errors.Wrapf(err, "deposit %08x", addr)
		}
	}
	return false, nil
}

// Assemble a tag into memory.
func assembleTag(line *cmdLine, s *Session) (bool, error) {
	slog.Debug("Command Assemble")
	var options memoryOpts

	if err := line.parseMemoryOptions(&options, false); err != nil {
		return false, err
	}
	if err := line.parseMemoryRange(&options); err != nil {
		return false, err
	}
	if options.high {
		return false, errors.New("assemble takes a single address")
	}

	data, err := assemble.Assemble(line.rest())
	if err != nil {
		return false, err
	}
	if err := s.space(&options).WriteQuad(options.lowRange, [dmatag.QuadSize]byte(data)); err != nil {
		return false, errors.Wrapf(err, "assemble %08x", options.lowRange)
	}

	var str strings.Builder
	hex.FormatWord(&str, []uint32{options.lowRange})
	str.WriteString(": ")
	hex.FormatQuad(&str, data)
	fmt.Fprintln(s.out, str.String())
	return false, nil
}

// Queue a tag or data quadword on a channel's device.
func feed(line *cmdLine, s *Session) (bool, error) {
	slog.Debug("Command Feed")

	channel, err := line.getChannel(s)
	if err != nil {
		return false, err
	}
	fifo, ok := s.ctl.Channel(channel.id).Peripheral().(*device.FIFO)
	if !ok {
		return false, errors.New("channel device can't be fed: " + channel.Name())
	}

	var options memoryOpts
	if err := line.parseMemoryOptions(&options, false); err != nil {
		return false, err
	}

	var q [dmatag.QuadSize]byte
	switch {
	case options.data && options.iop:
		return false, errors.New("-d and -i can't be combined")
	case options.iop:
		tag, err := line.parseIOPTag()
		if err != nil {
			return false, err
		}
		raw, err := tag.Encode()
		if err != nil {
			return false, err
		}
		q = raw.Bytes()
	case options.data:
		words, err := line.parseDepositHex()
		if err != nil {
			return false, err
		}
		if len(words) > dmatag.QuadSize/4 {
			return false, errors.New("at most four words in a quadword")
		}
		for i, word := range words {
			binary.LittleEndian.PutUint32(q[i*4:], word)
		}
	default:
		data, err := assemble.Assemble(line.rest())
		if err != nil {
			return false, err
		}
		q = [dmatag.QuadSize]byte(data)
	}
	fifo.Queue(q)
	return false, nil
}

// IOP tag: <addr> <word count> [irq] [ert].
func (line *cmdLine) parseIOPTag() (dmatag.IOPTag, error) {
	var tag dmatag.IOPTag
	addr, err := line.getHex()
	if err != nil || !line.atSeparator() {
		return tag, errors.New("IOP address must be hex number")
	}
	wc, err := line.getHex()
	if err != nil || !line.atSeparator() {
		return tag, errors.New("word count must be hex number")
	}
	tag.Addr = addr
	tag.WordCount = wc
	for {
		line.skipSpace()
		if line.isEOL() {
			return tag, nil
		}
		switch flag := line.getName(); flag {
		case "irq":
			tag.IRQ = true
		case "ert":
			tag.ERT = true
		default:
			return tag, errors.New("invalid IOP tag flag: " + line.rest())
		}
	}
}

// Load a chain file at a base address.
func load(line *cmdLine, s *Session) (bool, error) {
	slog.Debug("Command Load")

	base, err := line.getHex()
	if err != nil {
		return false, errors.New("base must be hex number")
	}
	name, ok := line.parseQuoteString()
	if !ok || name == "" {
		return false, errors.New("file name required")
	}
	if extra := line.rest(); extra != "" {
		return false, errors.New("extra arguments to command: " + extra)
	}

	start, err := assemble.LoadFile(s.ctl, name, base)
	if err != nil {
		return false, err
	}
	fmt.Fprintf(s.out, "chain starts at %08x\n", start)
	return false, nil
}
