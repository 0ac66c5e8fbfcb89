/*
 * PS2DMAC - Hex formatting helpers
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

package hex

import "strings"

var hexMap = "0123456789ABCDEF"

func FormatWord(str *strings.Builder, word []uint32) {
	for _, full := range word {
		shift := 28
		for j := 0; j < 8; j++ {
			str.WriteByte(hexMap[(full>>shift)&0xf])

			shift -= 4
		}
		str.WriteByte(' ')
	}
}

func FormatHalf(str *strings.Builder, space bool, half []uint16) {
	for _, word := range half {
		shift := 12
		for j := 0; j < 4; j++ {
			str.WriteByte(hexMap[(word>>shift)&0xf])
			shift -= 4
		}
		if space {
			str.WriteByte(' ')
		}
	}
	if !space {
		str.WriteByte(' ')
	}
}

func FormatBytes(str *strings.Builder, space bool, data []uint8) {
	for _, by := range data {
		str.WriteByte(hexMap[(by>>4)&0xf])
		str.WriteByte(hexMap[by&0xf])
		if space {
			str.WriteByte(' ')
		}
	}
}

func FormatByte(str *strings.Builder, data byte) {
	str.WriteByte(hexMap[(data>>4)&0xf])
	str.WriteByte(hexMap[data&0xf])
}

// FormatQuad writes one quadword as four little endian words, highest
// word first, the way a register dump shows it.
func FormatQuad(str *strings.Builder, data []byte) {
	for i := 12; i >= 0; i -= 4 {
		w := uint32(data[i]) | uint32(data[i+1])<<8 | uint32(data[i+2])<<16 | uint32(data[i+3])<<24
		FormatWord(str, []uint32{w})
	}
}

// FormatASCII writes printable bytes as is and others as dots.
func FormatASCII(str *strings.Builder, data []byte) {
	for _, by := range data {
		if by < 0x20 || by > 0x7e {
			by = '.'
		}
		str.WriteByte(by)
	}
}

// Dump formats memory starting at addr, one quadword per line.
func Dump(addr uint32, data []byte) string {
	var str strings.Builder
	for len(data) > 0 {
		n := min(len(data), 16)
		FormatWord(&str, []uint32{addr})
		str.WriteString(": ")
		FormatBytes(&str, true, data[:n])
		for j := 0; j < 16-n; j++ {
			str.WriteString("   ")
		}
		FormatASCII(&str, data[:n])
		str.WriteByte('\n')
		data = data[n:]
		addr += uint32(n)
	}
	return str.String()
}
