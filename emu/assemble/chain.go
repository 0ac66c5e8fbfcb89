/*
 * PS2DMAC - DMA chain files
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
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rcornwell/PS2DMAC/emu/dmatag"
	"github.com/rcornwell/PS2DMAC/emu/memory"
	"gopkg.in/yaml.v3"
)

// Chain is a YAML description of tags and their data. A file looks like:
//
//	blocks:
//	  - at: 0x1000
//	    items:
//	      - tag: next
//	        addr: 0x2000
//	        fill: 0x41
//	        count: 4
//	  - at: 0x2000
//	    items:
//	      - tag: end
//	        irq: true
//	        data: ["000102030405060708090a0b0c0d0e0f"]
//
// Each item is a tag followed by its inline data, or just data when tag is
// empty. Items in a block are stored one after another. Tag addresses move
// with the load base unless the item is marked absolute.
type Chain struct {
	Blocks []Block `yaml:"blocks"`
}

// Block is a run of items stored from address At.
type Block struct {
	At    uint32 `yaml:"at"`
	SPR   bool   `yaml:"spr"` // Block is stored in scratch-pad.
	Items []Item `yaml:"items"`
}

// Item is one tag and the quadwords following it.
type Item struct {
	Tag      string   `yaml:"tag"`
	QWC      *uint16  `yaml:"qwc"` // Defaults to the number of data quadwords.
	Addr     uint32   `yaml:"addr"`
	Absolute bool     `yaml:"absolute"` // Addr is not moved by the load base.
	IRQ      bool     `yaml:"irq"`
	SPR      bool     `yaml:"spr"`
	Priority string   `yaml:"priority"`
	Data     []string `yaml:"data"`  // Quadwords as 32 hex digits, memory order.
	Fill     *uint8   `yaml:"fill"`  // Byte to fill Count quadwords with.
	Count    int      `yaml:"count"` // Number of fill quadwords.
}

// Parse reads a chain description.
func Parse(r io.Reader) (*Chain, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c Chain
	if err := dec.Decode(&c); err != nil {
		return nil, errors.Wrap(err, "chain")
	}
	if len(c.Blocks) == 0 {
		return nil, errors.New("chain has no blocks")
	}
	return &c, nil
}

// ParseFile reads a chain description from a file.
func ParseFile(name string) (*Chain, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Parse(f)
	return c, errors.WithMessage(err, name)
}

// Quadwords of inline data for an item.
func (it *Item) payload() ([][dmatag.QuadSize]byte, error) {
	var out [][dmatag.QuadSize]byte
	for _, s := range it.Data {
		s = strings.TrimPrefix(s, "0x")
		b, err := hex.DecodeString(s)
		if err != nil || len(b) != dmatag.QuadSize {
			return nil, errors.Errorf("data %q is not one quadword", s)
		}
		out = append(out, [dmatag.QuadSize]byte(b))
	}
	if it.Fill != nil {
		var q [dmatag.QuadSize]byte
		for i := range q {
			q[i] = *it.Fill
		}
		for j := 0; j < it.Count; j++ {
			out = append(out, q)
		}
	} else if it.Count != 0 {
		return nil, errors.New("count without fill")
	}
	return out, nil
}

// Build the tag of an item.
func (it *Item) tag(n int, base uint32) (dmatag.Tag, error) {
	kind, ok := dmatag.KindFromName(strings.ToLower(it.Tag))
	if !ok {
		return dmatag.Tag{}, errors.Errorf("undefined tag kind %s", it.Tag)
	}
	t := dmatag.Tag{Kind: kind, Addr: it.Addr, IRQ: it.IRQ}
	if kind.UsesAddress() && !it.Absolute {
		t.Addr += base
		if t.Addr < it.Addr {
			return dmatag.Tag{}, errors.Errorf("address %08x moved past end of memory", it.Addr)
		}
	}
	if it.SPR {
		t.Region = dmatag.ScratchPad
	}
	if it.Priority != "" {
		p, ok := priorityMap[strings.ToUpper(it.Priority)]
		if !ok {
			return dmatag.Tag{}, errors.Errorf("invalid priority %s", it.Priority)
		}
		t.Priority = p
	}
	switch {
	case it.QWC != nil:
		t.QWC = *it.QWC
	case kind.UsesAddress() && kind != dmatag.Next && kind != dmatag.Call:
		// Reference kinds have no inline data to count.
		return dmatag.Tag{}, errors.Errorf("%s needs qwc", kind)
	default:
		if n > 0xffff {
			return dmatag.Tag{}, errors.Errorf("%d quadwords too many for one tag", n)
		}
		t.QWC = uint16(n)
	}
	return t, nil
}

// Load stores the chain with every block and tag address moved up by base. It returns the
// address of the first block, where a channel's TADR should point.
func (c *Chain) Load(bus *memory.Bus, base uint32) (uint32, error) {
	for bi, blk := range c.Blocks {
		space := bus.Main
		if blk.SPR {
			space = bus.Scratch
		}
		addr := base + blk.At
		if (addr & 0xf) != 0 {
			return 0, errors.Errorf("block %d at %08x not quadword aligned", bi, addr)
		}
		for ii := range blk.Items {
			it := &blk.Items[ii]
			data, err := it.payload()
			if err != nil {
				return 0, errors.WithMessagef(err, "block %d item %d", bi, ii)
			}
			if it.Tag != "" {
				t, err := it.tag(len(data), base)
				if err != nil {
					return 0, errors.WithMessagef(err, "block %d item %d", bi, ii)
				}
				q, err := t.Encode()
				if err != nil {
					return 0, errors.WithMessagef(err, "block %d item %d", bi, ii)
				}
				if err := space.WriteQuad(addr, q.Bytes()); err != nil {
					return 0, err
				}
				addr += dmatag.QuadSize
			}
			for _, d := range data {
				if err := space.WriteQuad(addr, d); err != nil {
					return 0, err
				}
				addr += dmatag.QuadSize
			}
		}
	}
	return base + c.Blocks[0].At, nil
}
