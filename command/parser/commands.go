/*
 * PS2DMAC - Command executer.
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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	command "github.com/rcornwell/PS2DMAC/command/command"
	"github.com/rcornwell/PS2DMAC/emu/dmac"
)

var cmdList = []cmd{
	{Name: "assemble", Min: 2, Process: assembleTag},
	{Name: "deposit", Min: 2, Process: deposit},
	{Name: "examine", Min: 2, Process: examine},
	{Name: "feed", Min: 1, Process: feed, Complete: channelComplete},
	{Name: "load", Min: 1, Process: load},
	{Name: "quit", Min: 4, Process: quit},
	{Name: "reset", Min: 5, Process: reset},
	{Name: "run", Min: 2, Process: run, Complete: runComplete},
	{Name: "set", Min: 3, Process: set, Complete: setComplete},
	{Name: "show", Min: 2, Process: show, Complete: showComplete},
	{Name: "start", Min: 3, Process: start, Complete: setComplete},
	{Name: "step", Min: 3, Process: step},
	{Name: "stop", Min: 3, Process: stop, Complete: stopComplete},
	{Name: "unset", Min: 4, Process: unset, Complete: setComplete},
}

// Handle set commands.
func set(line *cmdLine, s *Session) (bool, error) {
	slog.Debug("Command Set")

	channel, err := line.getChannel(s)
	if err != nil {
		return false, err
	}

	optlist, err := line.getOptions(channel, command.ValidSet)
	if err != nil {
		return false, err
	}
	if len(optlist) == 0 {
		return false, errors.New("no options give to set command")
	}
	return false, channel.Set(false, optlist)
}

// Handle unset commands.
func unset(line *cmdLine, s *Session) (bool, error) {
	slog.Debug("Command Unset")

	channel, err := line.getChannel(s)
	if err != nil {
		return false, err
	}

	optlist, err := line.getOptions(channel, command.ValidSet)
	if err != nil {
		return false, err
	}
	if len(optlist) == 0 {
		return false, errors.New("no options give to unset command")
	}
	return false, channel.Set(true, optlist)
}

// Handle commands that quit simulation.
func quit(_ *cmdLine, _ *Session) (bool, error) {
	slog.Debug("Command Quit")
	return true, nil
}

// Start a channel, options are applied first.
func start(line *cmdLine, s *Session) (bool, error) {
	slog.Debug("Command Start")

	channel, err := line.getChannel(s)
	if err != nil {
		return false, err
	}

	optlist, err := line.getOptions(channel, command.ValidSet)
	if err != nil {
		return false, err
	}
	if len(optlist) != 0 {
		if err := channel.Set(false, optlist); err != nil {
			return false, err
		}
	}
	ch := s.ctl.Channel(channel.id)
	return false, s.ctl.Start(channel.id, ch.Control())
}

// Stop one channel or all of them.
func stop(line *cmdLine, s *Session) (bool, error) {
	slog.Debug("Command Stop")

	line.skipSpace()
	save := line.pos
	if line.getWord(false) == "all" {
		for id := dmac.ChannelID(0); id < dmac.NumChannels; id++ {
			_ = s.ctl.Stop(id)
		}
		return false, nil
	}
	line.pos = save

	channel, err := line.getChannel(s)
	if err != nil {
		return false, err
	}
	return false, s.ctl.Stop(channel.id)
}

// Step the controller a number of times, default once.
func step(line *cmdLine, s *Session) (bool, error) {
	slog.Debug("Command Step")

	count := uint32(1)
	line.skipSpace()
	if !line.isEOL() {
		n, err := line.getNumber()
		if err != nil || n == 0 {
			return false, errors.New("step count must be a positive number")
		}
		count = n
	}

	done := uint32(0)
	for done < count {
		if !s.ctl.Step() {
			break
		}
		done++
	}
	if done < count {
		fmt.Fprintf(s.out, "idle after %d steps\n", done)
	}
	return false, nil
}

// Run until no channel moves. Interrupt stops the run.
func run(line *cmdLine, s *Session) (bool, error) {
	slog.Debug("Command Run")

	parallel := s.parallel
	switch line.getWord(false) {
	case "":
	case "parallel":
		parallel = true
	case "serial":
		parallel = false
	default:
		return false, errors.New("run takes parallel or serial")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var err error
	if parallel {
		err = s.ctl.RunParallel(ctx)
	} else {
		err = s.ctl.Run(ctx)
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(s.out, "run interrupted")
		return false, nil
	}
	return false, err
}

// Process the show command.
func show(line *cmdLine, s *Session) (bool, error) {
	slog.Debug("Command Show")

	line.skipSpace()
	save := line.pos
	switch line.getWord(false) {
	case "", "all":
		if !line.isEOL() {
			break
		}
		for id := dmac.ChannelID(0); id < dmac.NumChannels; id++ {
			out, err := (&channelCommand{ctl: s.ctl, id: id}).Show(nil)
			if err != nil {
				return false, err
			}
			fmt.Fprintln(s.out, out)
		}
		return false, nil
	case "status":
		return false, s.showStatus()
	}
	line.pos = save

	channel, err := line.getChannel(s)
	if err != nil {
		return false, err
	}

	optlist, err := line.getShowOptions(channel)
	if err != nil {
		return false, err
	}

	out, err := channel.Show(optlist)
	if err != nil {
		return false, err
	}

	fmt.Fprintln(s.out, out)
	return false, nil
}

var globalRegs = []struct {
	name string
	addr uint32
}{
	{"CTRL", dmac.CTRL},
	{"STAT", dmac.STAT},
	{"PCR", dmac.PCR},
	{"SQWC", dmac.SQWC},
	{"STADR", dmac.STADR},
	{"ENABLE", dmac.ENABLER},
}

var statusNames = map[dmac.Bit]string{
	dmac.BitStall:    "SIS",
	dmac.BitMFIFO:    "MEIS",
	dmac.BitBusError: "BEIS",
}

// Show global registers, stall control and pending interrupts.
func (s *Session) showStatus() error {
	fields := []string{}
	for _, reg := range globalRegs {
		v, err := s.ctl.Read(reg.addr)
		if err != nil {
			return err
		}
		fields = append(fields, fmt.Sprintf("%s=%08x", reg.name, v))
	}
	fmt.Fprintln(s.out, strings.Join(fields, " "))

	source, drain := s.ctl.StallControl()
	fmt.Fprintf(s.out, "stall source=%s drain=%s\n", source, drain)

	v := s.ctl.Status().Value()
	fmt.Fprintln(s.out, "raised: "+bitNames(v&0xffff))
	fmt.Fprintln(s.out, "pending: "+bitNames(s.ctl.Status().Pending()))
	return nil
}

// Names of the status bits set in v.
func bitNames(v uint32) string {
	names := []string{}
	for bit := dmac.BitVIF0; bit <= dmac.BitBusError; bit++ {
		if v&(1<<bit) == 0 {
			continue
		}
		name, ok := statusNames[bit]
		if !ok {
			name = dmac.ChannelID(bit).String()
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, " ")
}

// Reset the controller, channels drop queued device data.
func reset(_ *cmdLine, s *Session) (bool, error) {
	slog.Debug("Command Reset")
	s.ctl.Reset()
	return false, nil
}
