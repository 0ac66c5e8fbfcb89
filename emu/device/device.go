package device

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rcornwell/PS2DMAC/emu/dmatag"
)

// ErrEmpty is returned when a device has no data to send to memory.
var ErrEmpty = errors.New("device has no data")

// Interface for peripherals at the far end of a channel.
type Peripheral interface {
	Name() string
	Write(data [dmatag.QuadSize]byte) error // Memory to device.
	Read() ([dmatag.QuadSize]byte, error)   // Device to memory.
	Reset()
}

// Null device, accepts everything and supplies zeros.
type Null struct{}

func (Null) Name() string                         { return "null" }
func (Null) Write(_ [dmatag.QuadSize]byte) error  { return nil }
func (Null) Read() ([dmatag.QuadSize]byte, error) { return [dmatag.QuadSize]byte{}, nil }
func (Null) Reset()                               {}

// FIFO device. Records quadwords written to it and hands out queued
// quadwords on read.
type FIFO struct {
	mu      sync.Mutex
	name    string
	written [][dmatag.QuadSize]byte
	queue   [][dmatag.QuadSize]byte
}

// NewFIFO creates an empty FIFO device.
func NewFIFO(name string) *FIFO {
	return &FIFO{name: name}
}

func (f *FIFO) Name() string {
	return f.name
}

func (f *FIFO) Write(data [dmatag.QuadSize]byte) error {
	f.mu.Lock()
	f.written = append(f.written, data)
	f.mu.Unlock()
	return nil
}

func (f *FIFO) Read() ([dmatag.QuadSize]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return [dmatag.QuadSize]byte{}, errors.Wrap(ErrEmpty, f.name)
	}
	data := f.queue[0]
	f.queue = f.queue[1:]
	return data, nil
}

// Queue adds quadwords for the channel to read.
func (f *FIFO) Queue(data ...[dmatag.QuadSize]byte) {
	f.mu.Lock()
	f.queue = append(f.queue, data...)
	f.mu.Unlock()
}

// Written returns a copy of everything written so far.
func (f *FIFO) Written() [][dmatag.QuadSize]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][dmatag.QuadSize]byte, len(f.written))
	copy(out, f.written)
	return out
}

func (f *FIFO) Reset() {
	f.mu.Lock()
	f.written = nil
	f.queue = nil
	f.mu.Unlock()
}
