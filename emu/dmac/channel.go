/*
 * PS2DMAC - DMA channel state machine.
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
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rcornwell/PS2DMAC/emu/device"
	"github.com/rcornwell/PS2DMAC/emu/dmatag"
	"github.com/rcornwell/PS2DMAC/util/debug"
)

// State of a channel.
type State int

const (
	Stopped   State = iota // Idle, STR clear.
	Running                // Moving data or following tags.
	Suspended              // Waiting on the stall address.
	Errored                // Failed, reported on next step.
)

var stateName = [...]string{"stopped", "running", "suspended", "errored"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateName) {
		return "unknown"
	}
	return stateName[s]
}

const (
	// Debug options.
	debugTag = 1 << iota
	debugData
	debugStall
	debugIRQ
	debugState
)

var debugOption = map[string]int{
	"TAG":   debugTag,
	"DATA":  debugData,
	"STALL": debugStall,
	"IRQ":   debugIRQ,
	"STATE": debugState,
}

const (
	madrSPR  uint32 = 1 << 31 // MADR selects scratch-pad.
	addrMask uint32 = dmatag.AddrMask &^ 0xf
	sadrMask uint32 = 0x3ff0 // Scratch-pad address wraps at 16K.
	quad     uint32 = dmatag.QuadSize
)

// Registers is a snapshot of a channel's address and count registers.
type Registers struct {
	MADR uint32 // Memory address, bit 31 selects scratch-pad.
	QWC  uint16 // Quadwords remaining.
	TADR uint32 // Tag address.
	SADR uint32 // Scratch-pad address.
}

// Channel is one DMA channel.
type Channel struct {
	mu       sync.Mutex
	id       ChannelID
	info     *channelInfo
	ctl      *Controller
	dev      device.Peripheral
	chcr     Control
	madr     uint32
	qwc      uint16
	tadr     uint32
	sadr     uint32
	stack    AddressStack
	state    State
	err      error
	stopReq  atomic.Bool
	lastTag  dmatag.Tag // Tag of current descriptor.
	inDesc   bool       // A tag has been read and its data not yet finished.
	endAfter bool       // Chain ends when current descriptor is done.
	irqAfter bool       // Raise channel status when current descriptor is done.
	publish  bool       // Descriptor publishes MADR to STADR.
	stall    bool       // Descriptor transfers are limited by STADR.
	block    uint32     // Quadwords moved in the current interleave block.
	debugMsk int        // Debug option mask.
}

func newChannel(id ChannelID, ctl *Controller) *Channel {
	ch := &Channel{id: id, info: &channels[id], ctl: ctl}
	ch.dev = device.NewFIFO(id.String())
	ch.chcr = ch.chcr.WithDirection(ch.info.dir)
	return ch
}

func (ch *Channel) ID() ChannelID {
	return ch.id
}

// Peripheral at the far end of the channel.
func (ch *Channel) Peripheral() device.Peripheral {
	return ch.dev
}

func (ch *Channel) State() State {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// Err returns the reason for the last failure, if any.
func (ch *Channel) Err() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.err
}

func (ch *Channel) Control() Control {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.chcr
}

func (ch *Channel) Registers() Registers {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return Registers{MADR: ch.madr, QWC: ch.qwc, TADR: ch.tadr, SADR: ch.sadr}
}

// LastTag returns the most recently decoded tag.
func (ch *Channel) LastTag() dmatag.Tag {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.lastTag
}

// StackDepth returns the number of addresses on the stack.
func (ch *Channel) StackDepth() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.stack.Depth()
}

// Stack register value.
func (ch *Channel) StackSlot(i int) uint32 {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.stack.Slot(i)
}

// Setup loads the address and count registers of a stopped channel.
func (ch *Channel) Setup(r Registers) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.state != Stopped {
		return errors.Wrap(ErrBusy, ch.id.String())
	}
	ch.madr = r.MADR & (madrSPR | addrMask)
	ch.qwc = r.QWC
	ch.tadr = r.TADR & addrMask
	ch.sadr = r.SADR & sadrMask
	return nil
}

// Enable debug options.
func (ch *Channel) Debug(opt string) error {
	flag, ok := debugOption[opt]
	if !ok {
		return errors.New("dmac debug option invalid: " + opt)
	}
	ch.mu.Lock()
	ch.debugMsk |= flag
	ch.mu.Unlock()
	return nil
}

// Start the channel with control value c.
func (ch *Channel) start(c Control) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.state != Stopped {
		return errors.Wrap(ErrBusy, ch.id.String())
	}
	if ch.info.fixedDir {
		c = c.WithDirection(ch.info.dir)
	}
	switch c.Mode() {
	case ModeNormal:
	case ModeChain:
		if !ch.info.sourceChain() && !(ch.info.destChain() && c.Direction() == dmatag.ToMemory) {
			return errors.Wrapf(ErrModeUnsupported, "%s chain", ch.id)
		}
	case ModeInterleave:
		if !ch.info.spr {
			return errors.Wrapf(ErrModeUnsupported, "%s interleave", ch.id)
		}
	default:
		return errors.Wrapf(ErrModeUnsupported, "%s mode %d", ch.id, c.Mode())
	}

	limit := c.ASP()
	if (ch.info.regs & hasASR) == 0 {
		limit = 0
	}
	ch.stack.Reset(limit)
	ch.chcr = (ch.chcr &^ chcrWritable) | (c & chcrWritable) | chcrSTR
	ch.err = nil
	ch.stopReq.Store(false)
	ch.inDesc = false
	ch.endAfter = false
	ch.irqAfter = false
	ch.block = 0
	ch.publish = false
	ch.stall = false
	if c.Mode() == ModeNormal {
		ch.publish = ch.ctl.stallSource() == ch.id
		ch.stall = ch.ctl.stallDrain() == ch.id
	}
	ch.setState(Running, nil)
	return nil
}

// Request stop. Takes effect at the start of the next step.
func (ch *Channel) stop() {
	ch.stopReq.Store(true)
}

// Put channel back to power on state.
func (ch *Channel) reset() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.chcr = Control(0).WithDirection(ch.info.dir)
	ch.madr = 0
	ch.qwc = 0
	ch.tadr = 0
	ch.sadr = 0
	ch.stack = AddressStack{}
	ch.state = Stopped
	ch.err = nil
	ch.stopReq.Store(false)
	ch.inDesc = false
	ch.dev.Reset()
}

// Step advances the channel by at most one slice of data or one tag.
// Returns true if anything changed.
func (ch *Channel) Step() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	switch ch.state {
	case Stopped:
		return false

	case Errored:
		ch.ctl.log.Warn("DMA channel stopped on error", ch.logAttr(), "error", ch.err)
		ch.chcr = ch.chcr.WithStart(false)
		ch.setState(Stopped, ch.err)
		return true

	case Suspended:
		if ch.stopReq.Swap(false) {
			ch.halt()
			return true
		}
		if ch.stallRoom() == 0 {
			return false
		}
		debug.DebugChanf(ch.id.String(), ch.debugMsk, debugStall, "resume MADR=%08x STADR=%08x",
			ch.madr, ch.ctl.stadr.Load())
		ch.setState(Running, nil)
		return true
	}

	if ch.stopReq.Swap(false) {
		ch.halt()
		return true
	}

	if ch.qwc > 0 {
		n, err := ch.transfer()
		if err != nil {
			ch.fail(err)
			return true
		}
		if n == 0 {
			return ch.state == Suspended
		}
		if ch.qwc > 0 {
			return true
		}
	}

	// Current descriptor is done.
	if ch.inDesc {
		ch.inDesc = false
		if ch.irqAfter {
			ch.irqAfter = false
			debug.DebugChanf(ch.id.String(), ch.debugMsk, debugIRQ, "tag interrupt")
			ch.ctl.stat.Raise(ChannelBit(ch.id))
		}
	}

	if ch.chcr.Mode() != ModeChain || ch.endAfter {
		ch.complete()
		return true
	}

	if ch.stopReq.Swap(false) {
		ch.halt()
		return true
	}

	var err error
	if ch.info.sourceChain() {
		err = ch.sourceTag()
	} else {
		err = ch.destTag()
	}
	if errors.Is(err, device.ErrEmpty) {
		return false
	}
	if err != nil {
		ch.fail(err)
	}
	return true
}

// Move up to one slice of quadwords. Returns number moved.
func (ch *Channel) transfer() (uint32, error) {
	n := min(uint32(ch.qwc), ch.ctl.slice)

	skip, tqwc := uint32(0), uint32(0)
	if ch.chcr.Mode() == ModeInterleave {
		skip, tqwc = ch.ctl.interleave()
		if tqwc != 0 {
			n = min(n, tqwc-ch.block)
		}
	}

	if ch.stall {
		room := ch.stallRoom()
		if room == 0 {
			debug.DebugChanf(ch.id.String(), ch.debugMsk, debugStall, "stall MADR=%08x STADR=%08x",
				ch.madr, ch.ctl.stadr.Load())
			ch.setState(Suspended, nil)
			ch.ctl.stat.Raise(BitStall)
			return 0, nil
		}
		n = min(n, room)
	}

	var moved uint32
	for moved < n {
		err := ch.moveQuad()
		if errors.Is(err, device.ErrEmpty) {
			break
		}
		if err != nil {
			return moved, err
		}
		moved++
		ch.madr = (ch.madr & madrSPR) | ((ch.madr + quad) & addrMask)
		ch.qwc--
		if ch.info.spr {
			ch.sadr = (ch.sadr + quad) & sadrMask
		}
		if tqwc != 0 {
			ch.block++
			if ch.block == tqwc {
				ch.block = 0
				ch.madr = (ch.madr & madrSPR) | ((ch.madr + skip*quad) & addrMask)
			}
		}
	}

	if moved != 0 {
		debug.DebugChanf(ch.id.String(), ch.debugMsk, debugData, "moved %d MADR=%08x QWC=%04x",
			moved, ch.madr, ch.qwc)
	}
	if ch.publish && moved != 0 {
		ch.ctl.stadr.Store(ch.madr & addrMask)
	}
	return moved, nil
}

// Number of quadwords the drain may move before reaching STADR.
func (ch *Channel) stallRoom() uint32 {
	limit := ch.ctl.stadr.Load() & addrMask
	addr := ch.madr & addrMask
	if limit <= addr {
		return 0
	}
	return (limit - addr) / quad
}

// Move one quadword between memory and the other end of the channel.
func (ch *Channel) moveQuad() error {
	space := ch.ctl.bus.Main
	if (ch.madr & madrSPR) != 0 {
		space = ch.ctl.bus.Scratch
	}
	addr := ch.madr & addrMask

	if ch.chcr.Direction() == dmatag.FromMemory {
		data, err := space.ReadQuad(addr)
		if err != nil {
			return errors.Wrap(ErrBusError, err.Error())
		}
		if ch.info.spr {
			err = ch.ctl.bus.Scratch.WriteQuad(ch.sadr, data)
			if err != nil {
				return errors.Wrap(ErrBusError, err.Error())
			}
			return nil
		}
		return ch.dev.Write(data)
	}

	var data [dmatag.QuadSize]byte
	var err error
	if ch.info.spr {
		data, err = ch.ctl.bus.Scratch.ReadQuad(ch.sadr)
		if err != nil {
			return errors.Wrap(ErrBusError, err.Error())
		}
	} else {
		data, err = ch.dev.Read()
		if err != nil {
			return err
		}
	}
	if err := space.WriteQuad(addr, data); err != nil {
		return errors.Wrap(ErrBusError, err.Error())
	}
	return nil
}

// Read the next tag from memory at TADR and apply it.
func (ch *Channel) sourceTag() error {
	addr := ch.tadr & addrMask
	raw, err := ch.ctl.bus.Main.ReadQuad(addr)
	if err != nil {
		return errors.Wrapf(ErrBusError, "tag at %08x: %v", addr, err)
	}
	q := dmatag.QuadwordFromBytes(raw[:])
	dec := dmatag.Decoder{Direction: ch.chcr.Direction(), TagTransfer: ch.chcr.TTE()}
	tag, err := dec.Decode(q)
	if err != nil {
		return errors.WithMessagef(err, "tag at %08x", addr)
	}
	ch.acceptTag(addr, q, tag)

	if ch.chcr.TTE() && ch.chcr.Direction() == dmatag.FromMemory && !ch.info.spr {
		if err := ch.dev.Write(raw); err != nil {
			return err
		}
	}

	next := (addr + quad) & addrMask
	data := tag.Addr
	switch tag.Kind {
	case dmatag.ReferenceEnd:
	case dmatag.Reference, dmatag.ReferenceStall:
		ch.tadr = next
	case dmatag.Continue, dmatag.ContinueStall:
		data = next
		ch.tadr = (next + uint32(tag.QWC)*quad) & addrMask
	case dmatag.Next:
		data = next
		ch.tadr = tag.Addr
	case dmatag.Call:
		data = next
		if err := ch.stack.Push((next + uint32(tag.QWC)*quad) & addrMask); err != nil {
			return err
		}
		ch.tadr = tag.Addr
	case dmatag.Return:
		data = next
		ret, err := ch.stack.Pop()
		if err != nil {
			return err
		}
		ch.tadr = ret
	case dmatag.End:
		data = next
	}
	ch.stall = tag.Kind == dmatag.ReferenceStall && ch.ctl.stallDrain() == ch.id
	ch.publish = tag.Kind == dmatag.ContinueStall && ch.ctl.stallSource() == ch.id
	ch.loadDescriptor(tag, data)
	return nil
}

// Take the next tag from the incoming data and apply it.
func (ch *Channel) destTag() error {
	var raw [dmatag.QuadSize]byte
	var err error
	addr := ch.sadr
	if ch.info.spr {
		raw, err = ch.ctl.bus.Scratch.ReadQuad(ch.sadr)
		if err != nil {
			return errors.Wrapf(ErrBusError, "tag at SPR %04x: %v", ch.sadr, err)
		}
		ch.sadr = (ch.sadr + quad) & sadrMask
	} else {
		raw, err = ch.dev.Read()
		if err != nil {
			return err
		}
	}
	q := dmatag.QuadwordFromBytes(raw[:])
	tag, err := dmatag.Decode(q, dmatag.ToMemory)
	if err != nil {
		return err
	}
	switch tag.Kind {
	case dmatag.Continue, dmatag.ContinueStall, dmatag.End:
	default:
		return errors.Wrapf(dmatag.ErrMalformedTag, "%s tag in %s data", tag.Kind, ch.id)
	}
	ch.acceptTag(addr, q, tag)
	ch.stall = false
	ch.publish = tag.Kind == dmatag.ContinueStall && ch.ctl.stallSource() == ch.id
	ch.loadDescriptor(tag, tag.Addr)
	return nil
}

// Common bookkeeping for every decoded tag.
func (ch *Channel) acceptTag(addr uint32, q dmatag.Quadword, tag dmatag.Tag) {
	debug.DebugChanf(ch.id.String(), ch.debugMsk, debugTag, "%08x %s", addr, tag)
	ch.ctl.tracer.TagDecoded(ch.id, addr, tag)
	ch.chcr = ch.chcr.WithTag(uint16(q.Lo >> 16))
	if tag.Priority != dmatag.PriorityDisabled && ch.ctl.priorityEnabled() {
		ch.ctl.arbiter.PriorityHint(ch.id, tag.Priority)
	}
}

// Set up the transfer described by tag with data at addr.
func (ch *Channel) loadDescriptor(tag dmatag.Tag, addr uint32) {
	ch.madr = addr & addrMask
	if tag.Region == dmatag.ScratchPad {
		ch.madr |= madrSPR
	}
	ch.qwc = tag.QWC
	ch.lastTag = tag
	ch.inDesc = true
	ch.endAfter = tag.Kind.Ends()
	ch.irqAfter = tag.IRQ && ch.chcr.TIE()
}

// Chain or transfer finished.
func (ch *Channel) complete() {
	ch.chcr = ch.chcr.WithStart(false)
	ch.stack.Reset(ch.stack.Limit())
	ch.inDesc = false
	ch.endAfter = false
	debug.DebugChanf(ch.id.String(), ch.debugMsk, debugIRQ, "complete")
	ch.setState(Stopped, nil)
	ch.ctl.stat.Raise(ChannelBit(ch.id))
}

// Stop on request, registers are left as they are.
func (ch *Channel) halt() {
	ch.chcr = ch.chcr.WithStart(false)
	ch.inDesc = false
	ch.setState(Stopped, nil)
}

func (ch *Channel) fail(err error) {
	ch.err = err
	ch.setState(Errored, err)
	ch.ctl.stat.Raise(BitBusError)
}

func (ch *Channel) setState(s State, err error) {
	if ch.state == s {
		return
	}
	debug.DebugChanf(ch.id.String(), ch.debugMsk, debugState, "%s -> %s", ch.state, s)
	ch.ctl.tracer.StateChanged(ch.id, ch.state, s, err)
	ch.state = s
}

// Log attributes for the channel.
func (ch *Channel) logAttr() slog.Attr {
	return slog.Group("channel",
		slog.String("id", ch.id.String()),
		slog.String("state", ch.state.String()),
		slog.Any("madr", ch.madr),
		slog.Any("qwc", ch.qwc),
		slog.Any("tadr", ch.tadr),
	)
}
