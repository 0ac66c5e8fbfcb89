/*
 * PS2DMAC - Main process.
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

package main

import (
	"io"
	"log/slog"
	"os"

	getopt "github.com/pborman/getopt/v2"
	"github.com/pkg/errors"
	parser "github.com/rcornwell/PS2DMAC/command/parser"
	reader "github.com/rcornwell/PS2DMAC/command/reader"
	config "github.com/rcornwell/PS2DMAC/config/configparser"
	"github.com/rcornwell/PS2DMAC/config/debugconfig"
	"github.com/rcornwell/PS2DMAC/emu/assemble"
	"github.com/rcornwell/PS2DMAC/emu/dmac"
	"github.com/rcornwell/PS2DMAC/emu/memory"
	"github.com/rcornwell/PS2DMAC/util/debug"
	logger "github.com/rcornwell/PS2DMAC/util/logger"
	"github.com/rcornwell/PS2DMAC/util/trace"
	"github.com/tebeka/atexit"
)

func main() {
	optConfig := getopt.StringLong("config", 'c', "", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optTrace := getopt.StringLong("trace", 't', "", "Trace database")
	optParallel := getopt.BoolLong("parallel", 'p', "Run channels in parallel")
	optDebug := getopt.BoolLong("debug", 'd', "Log debug to console")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file io.Writer
	if *optLogFile != "" {
		f, err := os.Create(*optLogFile)
		if err != nil {
			slog.Error("Unable to create log file", "file", *optLogFile, "error", err)
			os.Exit(1)
		}
		atexit.Register(func() { _ = f.Close() })
		file = f
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	Logger := slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, optDebug))
	slog.SetDefault(Logger)

	atexit.Register(func() {
		if err := debug.Close(); err != nil {
			Logger.Error("Debug file close failed", "error", err)
		}
	})

	Logger.Info("PS2DMAC Started")

	bus := memory.NewBus()
	ctl := dmac.NewController(dmac.WithBus(bus), dmac.WithLogger(Logger))
	session := parser.NewSession(ctl, os.Stdout)
	session.SetParallel(*optParallel)

	setTrace := func(name string) error {
		rec, err := trace.New(name)
		if err != nil {
			return err
		}
		ctl.SetTracer(rec)
		return nil
	}

	if *optTrace != "" {
		if err := setTrace(*optTrace); err != nil {
			Logger.Error(err.Error())
			atexit.Exit(1)
		}
	}

	if *optConfig != "" {
		p := config.New()
		ctl.RegisterConfig(p)
		bus.RegisterConfig(p)
		debug.RegisterConfig(p)
		debugconfig.Register(p, ctl)
		assemble.RegisterConfig(p, ctl)
		p.RegisterFile("TRACE", func(_ uint32, name string, _ []config.Option) error {
			if *optTrace != "" {
				return errors.New("trace already given on command line")
			}
			return setTrace(name)
		})
		p.RegisterSwitch("PARALLEL", func(uint32, string, []config.Option) error {
			session.SetParallel(true)
			return nil
		})

		if err := p.LoadConfigFile(*optConfig); err != nil {
			Logger.Error(err.Error())
			atexit.Exit(1)
		}
	}

	reader.ConsoleReader(session)

	Logger.Info("PS2DMAC stopped.")
	atexit.Exit(0)
}
