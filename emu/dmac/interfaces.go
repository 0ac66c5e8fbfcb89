/*
 * PS2DMAC - DMAC collaborators.
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
	"github.com/rcornwell/PS2DMAC/emu/dmatag"
)

// BusArbiter receives priority control hints from tags.
type BusArbiter interface {
	PriorityHint(id ChannelID, p dmatag.Priority)
}

// InterruptSink is told whenever the pending state of DMAC_STAT may have
// changed.
type InterruptSink interface {
	Interrupt(pending bool)
}

// Tracer records decoded tags and channel state changes. Calls may come
// from several channels at once.
type Tracer interface {
	TagDecoded(id ChannelID, addr uint32, tag dmatag.Tag)
	StateChanged(id ChannelID, from, to State, err error)
}

type nullArbiter struct{}

func (nullArbiter) PriorityHint(ChannelID, dmatag.Priority) {}

type nullTracer struct{}

func (nullTracer) TagDecoded(ChannelID, uint32, dmatag.Tag)    {}
func (nullTracer) StateChanged(ChannelID, State, State, error) {}
