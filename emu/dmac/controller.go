/*
 * PS2DMAC - DMA controller.
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
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rcornwell/PS2DMAC/emu/device"
	"github.com/rcornwell/PS2DMAC/emu/memory"
	"golang.org/x/sync/errgroup"
)

// DefaultSlice is the number of quadwords a channel moves per step.
const DefaultSlice = 8

// Controller owns the ten channels and the global DMAC registers.
type Controller struct {
	channels [NumChannels]*Channel
	stat     Status
	bus      *memory.Bus
	arbiter  BusArbiter
	tracer   Tracer
	log      *slog.Logger
	slice    uint32

	ctrl   atomic.Uint32 // D_CTRL.
	pcr    atomic.Uint32 // D_PCR.
	sqwc   atomic.Uint32 // D_SQWC.
	rbsr   atomic.Uint32 // D_RBSR, stored only.
	rbor   atomic.Uint32 // D_RBOR, stored only.
	stadr  atomic.Uint32 // D_STADR.
	enable atomic.Uint32 // D_ENABLEW.
}

// Option configures a Controller.
type Option func(*Controller)

// WithBus selects the memory the channels use.
func WithBus(bus *memory.Bus) Option {
	return func(c *Controller) { c.bus = bus }
}

// WithPeripheral attaches a device to a channel.
func WithPeripheral(id ChannelID, dev device.Peripheral) Option {
	return func(c *Controller) {
		if id.Valid() {
			c.channels[id].dev = dev
		}
	}
}

func WithArbiter(a BusArbiter) Option {
	return func(c *Controller) { c.arbiter = a }
}

func WithInterruptSink(s InterruptSink) Option {
	return func(c *Controller) { c.stat.sink = s }
}

func WithTracer(t Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithSlice sets how many quadwords a channel moves per step.
func WithSlice(n int) Option {
	return func(c *Controller) { c.SetSlice(n) }
}

// NewController creates a controller with all channels stopped and DMA
// enabled.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		arbiter: nullArbiter{},
		tracer:  nullTracer{},
		log:     slog.Default(),
		slice:   DefaultSlice,
	}
	for id := ChannelID(0); id < NumChannels; id++ {
		c.channels[id] = newChannel(id, c)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bus == nil {
		c.bus = memory.NewBus()
	}
	c.ctrl.Store(ctrlDMAE)
	return c
}

// Channel returns channel id, or nil if there is none.
func (c *Controller) Channel(id ChannelID) *Channel {
	if !id.Valid() {
		return nil
	}
	return c.channels[id]
}

func (c *Controller) Status() *Status {
	return &c.stat
}

func (c *Controller) Bus() *memory.Bus {
	return c.bus
}

// SetTracer replaces the tracer. Nil restores the silent one.
func (c *Controller) SetTracer(t Tracer) {
	if t == nil {
		t = nullTracer{}
	}
	c.tracer = t
}

// Set number of quadwords moved per step.
func (c *Controller) SetSlice(n int) {
	if n < 1 {
		n = 1
	}
	c.slice = uint32(n)
}

// Start channel id with control value ctl. STR is implied.
func (c *Controller) Start(id ChannelID, ctl Control) error {
	ch := c.Channel(id)
	if ch == nil {
		return errors.Wrapf(ErrBadChannel, "%d", id)
	}
	if err := ch.start(ctl); err != nil {
		return err
	}
	c.log.Debug("DMA channel started", "channel", id.String(), "control", ch.Control().String())
	return nil
}

// Stop requests channel id to halt before its next transfer or tag fetch.
func (c *Controller) Stop(id ChannelID) error {
	ch := c.Channel(id)
	if ch == nil {
		return errors.Wrapf(ErrBadChannel, "%d", id)
	}
	ch.stop()
	return nil
}

// SetStallControl couples a source channel publishing its address with a
// drain channel that may not pass it. NoChannel disables either side.
func (c *Controller) SetStallControl(source, drain ChannelID) error {
	sts, ok := stallIndex(stallSources, source)
	if !ok {
		return errors.Wrapf(ErrBadChannel, "%s can't be a stall source", source)
	}
	std, ok := stallIndex(stallDrains, drain)
	if !ok {
		return errors.Wrapf(ErrBadChannel, "%s can't be a stall drain", drain)
	}
	for {
		old := c.ctrl.Load()
		v := old &^ (3<<ctrlSTSShift | 3<<ctrlSTDShift)
		v |= sts<<ctrlSTSShift | std<<ctrlSTDShift
		if c.ctrl.CompareAndSwap(old, v) {
			return nil
		}
	}
}

func stallIndex(table [4]ChannelID, id ChannelID) (uint32, bool) {
	for i, t := range table {
		if t == id {
			return uint32(i), true
		}
	}
	return 0, false
}

func (c *Controller) stallSource() ChannelID {
	return stallSources[(c.ctrl.Load()>>ctrlSTSShift)&3]
}

func (c *Controller) stallDrain() ChannelID {
	return stallDrains[(c.ctrl.Load()>>ctrlSTDShift)&3]
}

// StallControl returns the current source and drain.
func (c *Controller) StallControl() (ChannelID, ChannelID) {
	return c.stallSource(), c.stallDrain()
}

// PublishStall sets the stall address.
func (c *Controller) PublishStall(addr uint32) {
	c.stadr.Store(addr & addrMask)
}

// StallAddress returns the current stall address.
func (c *Controller) StallAddress() uint32 {
	return c.stadr.Load()
}

// SetPriorityControl loads D_PCR.
func (c *Controller) SetPriorityControl(v uint32) {
	c.pcr.Store(v & (pcrCPCMask | pcrCDEMask | pcrPCE))
}

func (c *Controller) priorityEnabled() bool {
	return (c.pcr.Load() & pcrPCE) != 0
}

// SetInterleave loads D_SQWC with skip and transfer counts.
func (c *Controller) SetInterleave(skip, transfer uint8) {
	c.sqwc.Store(uint32(skip) | uint32(transfer)<<sqwcTransferShift)
}

func (c *Controller) interleave() (skip uint32, transfer uint32) {
	v := c.sqwc.Load()
	return v & sqwcSkipMask, (v >> sqwcTransferShift) & sqwcSkipMask
}

// Enable or disable the controller through D_CTRL.DMAE.
func (c *Controller) SetEnable(on bool) {
	for {
		old := c.ctrl.Load()
		v := old &^ ctrlDMAE
		if on {
			v |= ctrlDMAE
		}
		if c.ctrl.CompareAndSwap(old, v) {
			return
		}
	}
}

// Channels step only while DMAE is set and CPND is clear.
func (c *Controller) enabled() bool {
	return (c.ctrl.Load()&ctrlDMAE) != 0 && (c.enable.Load()&enableCPND) == 0
}

// Busy reports whether any channel is not stopped.
func (c *Controller) Busy() bool {
	for _, ch := range c.channels {
		if ch.State() != Stopped {
			return true
		}
	}
	return false
}

// Reset all channels and registers to power on state.
func (c *Controller) Reset() {
	for _, ch := range c.channels {
		ch.reset()
	}
	c.ctrl.Store(ctrlDMAE)
	c.pcr.Store(0)
	c.sqwc.Store(0)
	c.rbsr.Store(0)
	c.rbor.Store(0)
	c.stadr.Store(0)
	c.enable.Store(0)
	c.stat.reset()
}

// Step gives every channel one step. Returns true if any channel made
// progress.
func (c *Controller) Step() bool {
	if !c.enabled() {
		return false
	}
	progress := false
	for _, ch := range c.channels {
		if ch.Step() {
			progress = true
		}
	}
	return progress
}

// Run steps the controller until nothing moves or ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !c.Step() {
			return nil
		}
	}
}

// RunParallel steps each active channel in its own goroutine until every
// channel stops making progress. A suspended stall drain keeps waiting
// while the stall source is still running.
func (c *Controller) RunParallel(ctx context.Context) error {
	var live [NumChannels]atomic.Bool
	g, gctx := errgroup.WithContext(ctx)

	var active []*Channel
	for _, ch := range c.channels {
		if ch.State() != Stopped {
			live[ch.id].Store(true)
			active = append(active, ch)
		}
	}

	for _, ch := range active {
		ch := ch
		g.Go(func() error {
			defer live[ch.id].Store(false)
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				if !c.enabled() {
					return nil
				}
				if ch.Step() {
					continue
				}
				src := c.stallSource()
				if ch.State() == Suspended && src.Valid() {
					if live[src].Load() {
						runtime.Gosched()
						continue
					}
					// Source may have published just before it finished.
					if ch.Step() {
						continue
					}
				}
				return nil
			}
		})
	}
	return g.Wait()
}
