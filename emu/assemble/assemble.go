/*
 * PS2DMAC - DMA tag assembler
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
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rcornwell/PS2DMAC/emu/dmatag"
)

var priorityMap = map[string]dmatag.Priority{
	"NONE":  dmatag.PriorityDisabled,
	"LOWER": dmatag.PriorityLower,
	"RAISE": dmatag.PriorityRaise,
}

// Assemble builds one tag quadword from a line of the form
//
//	<kind> [qwc=n] [addr=hex] [irq] [spr] [pce=none|lower|raise]
//
// qwc is decimal, addr is hex.
func Assemble(line string) ([]byte, error) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return []byte{}, errors.New("undefined tag kind ")
	}
	kind, ok := dmatag.KindFromName(strings.ToLower(words[0]))
	if !ok {
		return []byte{}, errors.New("undefined tag kind " + words[0])
	}

	tag := dmatag.Tag{Kind: kind}
	for _, word := range words[1:] {
		name, value, hasValue := strings.Cut(word, "=")
		name = strings.ToUpper(name)
		if hasValue == (name == "IRQ" || name == "SPR") {
			return []byte{}, errors.New("invalid format for " + word)
		}
		switch name {
		case "QWC":
			n, err := strconv.ParseUint(value, 10, 16)
			if err != nil {
				return []byte{}, errors.New("invalid qwc for " + words[0])
			}
			tag.QWC = uint16(n)
		case "ADDR":
			a, err := strconv.ParseUint(strings.TrimPrefix(value, "0x"), 16, 32)
			if err != nil {
				return []byte{}, errors.New("invalid addr for " + words[0])
			}
			tag.Addr = uint32(a)
		case "PCE":
			p, ok := priorityMap[strings.ToUpper(value)]
			if !ok {
				return []byte{}, errors.New("invalid pce for " + words[0])
			}
			tag.Priority = p
		case "IRQ":
			tag.IRQ = true
		case "SPR":
			tag.Region = dmatag.ScratchPad
		default:
			return []byte{}, errors.New("unknown operand " + word)
		}
	}

	q, err := tag.Encode()
	if err != nil {
		return []byte{}, err
	}
	b := q.Bytes()
	return b[:], nil
}
