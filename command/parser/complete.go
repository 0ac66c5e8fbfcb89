/*
 * PS2DMAC - Command completion functions.
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
	"slices"
	"strings"
	"unicode"

	command "github.com/rcornwell/PS2DMAC/command/command"
	"github.com/rcornwell/PS2DMAC/emu/dmac"
)

// Called to complete a command line, during line editing.
func CompleteCmd(commandLine string) []string {
	line := cmdLine{line: commandLine}
	name := line.getWord(false)

	// We have a command, let it try and complete it.
	if line.pos < len(line.line) && unicode.IsSpace(rune(line.line[line.pos])) {
		match := matchList(name)
		if len(match) != 1 || match[0].Complete == nil {
			return nil
		}
		return match[0].Complete(&line)
	}

	var matches []string
	for _, m := range cmdList {
		if strings.HasPrefix(m.Name, name) {
			matches = append(matches, m.Name+" ")
		}
	}
	slices.Sort(matches)
	return matches
}

// Collect the word being typed. Returns the line before it, the word and
// whether the word is finished.
func (line *cmdLine) scanWord() (string, string, bool) {
	line.skipSpace()
	start := line.pos
	for line.pos < len(line.line) && !unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
	done := line.pos < len(line.line)
	return line.line[:start], line.line[start:line.pos], done
}

// Complete from a list of names.
func completeList(leading, word string, names []string) []string {
	matches := []string{}
	for _, name := range names {
		if strings.HasPrefix(name, strings.ToLower(word)) {
			matches = append(matches, leading+name+" ")
		}
	}
	return matches
}

func channelNames() []string {
	names := make([]string, 0, dmac.NumChannels)
	for id := dmac.ChannelID(0); id < dmac.NumChannels; id++ {
		names = append(names, strings.ToLower(id.String()))
	}
	return names
}

// Match a channel name. Returns the channel when the name is complete.
func (line *cmdLine) matchChannel(extra ...string) ([]string, dmac.ChannelID) {
	leading, word, done := line.scanWord()
	if !done {
		return completeList(leading, word, append(channelNames(), extra...)), dmac.NoChannel
	}
	id, err := dmac.ParseChannel(word)
	if err != nil {
		return nil, dmac.NoChannel
	}
	return nil, id
}

// Complete commands that only need a channel.
func channelComplete(line *cmdLine) []string {
	matches, _ := line.matchChannel()
	return matches
}

func stopComplete(line *cmdLine) []string {
	matches, _ := line.matchChannel("all")
	return matches
}

func runComplete(line *cmdLine) []string {
	leading, word, done := line.scanWord()
	if done {
		return nil
	}
	return completeList(leading, word, []string{"parallel", "serial"})
}

// Complete option names and list values.
func scanOptions(line *cmdLine, cmdType int) []string {
	for {
		leading, word, done := line.scanWord()
		if done {
			continue
		}

		name, value, hasValue := strings.Cut(word, "=")
		if !hasValue {
			matches := []string{}
			for _, opt := range channelOptions {
				if (opt.OptionValid&cmdType) == 0 || !strings.HasPrefix(opt.Name, strings.ToLower(name)) {
					continue
				}
				sep := " "
				if cmdType == command.ValidSet && opt.OptionType != command.OptionSwitch {
					sep = "="
				}
				matches = append(matches, leading+opt.Name+sep)
			}
			return matches
		}

		opt := matchOption(strings.ToLower(name), channelOptions, cmdType)
		if opt.OptionType != command.OptionList {
			return nil
		}
		values := []string{}
		for _, mod := range opt.OptionList {
			values = append(values, strings.ToLower(mod))
		}
		return completeList(leading+name+"=", value, values)
	}
}

// Set, unset and start command completion.
func setComplete(line *cmdLine) []string {
	matches, id := line.matchChannel()
	if id == dmac.NoChannel {
		return matches
	}
	return scanOptions(line, command.ValidSet)
}

// Show command completion.
func showComplete(line *cmdLine) []string {
	matches, id := line.matchChannel("all", "status")
	if id == dmac.NoChannel {
		return matches
	}
	return scanOptions(line, command.ValidShow)
}
