/*
 * PS2DMAC - Set debug options from configuration
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

package debugconfig

import (
	"strings"

	"github.com/pkg/errors"
	config "github.com/rcornwell/PS2DMAC/config/configparser"
	"github.com/rcornwell/PS2DMAC/emu/dmac"
)

// Register adds the DEBUG keyword for the channels of ctl.
func Register(p *config.Parser, ctl *dmac.Controller) {
	p.RegisterModel("DEBUG", config.TypeOptions, func(_ uint32, what string, options []config.Option) error {
		return setDebug(ctl, what, options)
	})
}

// Apply each option and its comma list to set.
func apply(options []config.Option, set func(string) error) error {
	for _, opt := range options {
		if opt.EqualOpt != "" {
			return errors.New("debug option can't have equals: " + opt.Name)
		}
		err := set(strings.ToUpper(opt.Name))
		if err != nil {
			return err
		}
		for _, value := range opt.Value {
			err = set(strings.ToUpper(*value))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// DEBUG CHANNEL <name> opts or DEBUG ALL opts.
func setDebug(ctl *dmac.Controller, what string, options []config.Option) error {
	switch strings.ToUpper(what) {
	case "CHANNEL":
		// Process Channel debug options
		if len(options) < 1 {
			return errors.New("debug channel requires a channel first")
		}
		if options[0].EqualOpt != "" || len(options[0].Value) != 0 {
			return errors.New("debug channel name can't have equals or values")
		}
		id, err := dmac.ParseChannel(options[0].Name)
		if err != nil {
			return err
		}
		return apply(options[1:], ctl.Channel(id).Debug)

	case "ALL":
		return apply(options, func(opt string) error {
			for id := dmac.ChannelID(0); id < dmac.NumChannels; id++ {
				if err := ctl.Channel(id).Debug(opt); err != nil {
					return err
				}
			}
			return nil
		})

	default:
		return errors.New("debug option invalid: " + what)
	}
}
