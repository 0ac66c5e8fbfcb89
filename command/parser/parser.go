/*
 * PS2DMAC - Command parser.
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
	"io"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	command "github.com/rcornwell/PS2DMAC/command/command"
	"github.com/rcornwell/PS2DMAC/emu/dmac"
)

type cmd struct {
	Name     string // Command name.
	Min      int    // Minimum match size.
	Process  func(*cmdLine, *Session) (bool, error)
	Complete func(*cmdLine) []string
}

type cmdLine struct {
	line string // Current command.
	pos  int    // Position in line.
}

// Session is the console state commands work on.
type Session struct {
	ctl      *dmac.Controller
	out      io.Writer
	parallel bool // Run channels in their own goroutines.
}

// NewSession creates a console session writing its output to out.
func NewSession(ctl *dmac.Controller, out io.Writer) *Session {
	return &Session{ctl: ctl, out: out}
}

// SetParallel selects the default for the run command.
func (s *Session) SetParallel(on bool) {
	s.parallel = on
}

// Execute the command line given.
func ProcessCommand(commandLine string, s *Session) (bool, error) {
	line := cmdLine{line: commandLine}
	command := line.getWord(false)
	if command == "" {
		if !line.isEOL() {
			return false, errors.New("command not found: " + line.rest())
		}
		return false, nil
	}

	match := matchList(command)
	if len(match) == 0 {
		return false, errors.New("command not found: " + command)
	}

	if len(match) > 1 {
		return false, errors.New("unique command not found: " + command)
	}

	return match[0].Process(&line, s)
}

// Check if command matches at least to minimum length.
func matchCommand(match cmd, command string) bool {
	if len(command) > len(match.Name) {
		return false
	}
	return strings.HasPrefix(match.Name, command) && len(command) >= match.Min
}

// Check if command matches one of the commands.
func matchList(command string) []cmd {
	if command == "" {
		return []cmd{}
	}

	var match []cmd
	for _, m := range cmdList {
		if matchCommand(m, command) {
			match = append(match, m)
		}
	}
	return match
}

// Match list of options.
func matchOption(option string, optList []command.Options, cmdType int) command.Options {
	for _, opt := range optList {
		if (opt.OptionValid & cmdType) == 0 {
			continue
		}
		if opt.Name == option {
			return opt
		}
	}
	return command.Options{OptionType: -1}
}

// Skip forward over line until none whitespace character found.
func (line *cmdLine) skipSpace() {
	for line.pos < len(line.line) && unicode.IsSpace(rune(line.line[line.pos])) {
		line.pos++
	}
}

// Check if at end of line.
func (line *cmdLine) isEOL() bool {
	if line.pos >= len(line.line) {
		return true
	}
	return line.line[line.pos] == '#'
}

// Current character, 0 at end of line.
func (line *cmdLine) peek() byte {
	if line.isEOL() {
		return 0
	}
	return line.line[line.pos]
}

// Return current character and advance to next.
func (line *cmdLine) getCurrent() byte {
	if line.isEOL() {
		return 0
	}
	by := line.line[line.pos]
	line.pos++
	return by
}

// At a separator or end of line.
func (line *cmdLine) atSeparator() bool {
	return line.isEOL() || unicode.IsSpace(rune(line.line[line.pos]))
}

// Remainder of line without leading space.
func (line *cmdLine) rest() string {
	line.skipSpace()
	if line.pos >= len(line.line) {
		return ""
	}
	text := line.line[line.pos:]
	if i := strings.IndexByte(text, '#'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// Parse string that is "string" or just string.
func (line *cmdLine) parseQuoteString() (string, bool) {
	line.skipSpace()
	if line.isEOL() {
		return "", false
	}

	if line.peek() != '"' {
		start := line.pos
		for !line.atSeparator() {
			line.pos++
		}
		return line.line[start:line.pos], true
	}

	line.pos++
	var value strings.Builder
	for line.pos < len(line.line) {
		by := line.line[line.pos]
		line.pos++
		if by != '"' {
			value.WriteByte(by)
			continue
		}
		// "" inside quotes is a single quote.
		if line.pos < len(line.line) && line.line[line.pos] == '"' {
			value.WriteByte(by)
			line.pos++
			continue
		}
		return value.String(), true
	}
	return value.String(), false
}

// Parse a decimal number.
func (line *cmdLine) getNumber() (uint32, error) {
	line.skipSpace()

	start := line.pos
	value := uint64(0)
	for !line.isEOL() && unicode.IsDigit(rune(line.line[line.pos])) {
		value = (value * 10) + uint64(line.line[line.pos]-'0')
		if value > 0xffffffff {
			line.pos = start
			return 0, errors.New("number too large")
		}
		line.pos++
	}
	if line.pos == start {
		return 0, errors.New("not a number")
	}
	return uint32(value), nil
}

const hexDigits = "0123456789abcdef"

// Parse hex number, stops at the first character that is not a digit.
func (line *cmdLine) getHex() (uint32, error) {
	line.skipSpace()

	start := line.pos
	value := uint64(0)
	for !line.isEOL() {
		digit := strings.IndexByte(hexDigits, byte(unicode.ToLower(rune(line.line[line.pos]))))
		if digit == -1 {
			break
		}
		value = (value << 4) + uint64(digit)
		if value > 0xffffffff {
			line.pos = start
			return 0, errors.New("hex number too large")
		}
		line.pos++
	}
	if line.pos == start {
		return 0, errors.New("not a hex number")
	}
	return uint32(value), nil
}

// Parse option name of letters, stops at = if equal is set.
func (line *cmdLine) getWord(equal bool) string {
	line.skipSpace()

	start := line.pos
	for !line.atSeparator() {
		by := line.line[line.pos]
		if equal && by == '=' {
			break
		}
		if !unicode.IsLetter(rune(by)) {
			line.pos = start
			return ""
		}
		line.pos++
	}
	return strings.ToLower(line.line[start:line.pos])
}

// Parse a name of letters and digits.
func (line *cmdLine) getName() string {
	line.skipSpace()

	start := line.pos
	for !line.atSeparator() {
		by := rune(line.line[line.pos])
		if !unicode.IsLetter(by) && !unicode.IsDigit(by) {
			break
		}
		line.pos++
	}
	return strings.ToLower(line.line[start:line.pos])
}

// Get an option.
func (line *cmdLine) getOption(opts []command.Options, cmdType int) (*command.CmdOption, error) {
	name := line.getWord(true)
	if name == "" {
		if line.isEOL() {
			return nil, nil
		}
		return nil, errors.New("invalid option: " + line.rest())
	}

	opt := command.CmdOption{Name: name}
	match := matchOption(name, opts, cmdType)
	if match.OptionType == -1 {
		return nil, errors.New("unknown option: " + name)
	}

	if match.OptionType != command.OptionSwitch && line.getCurrent() != '=' {
		return nil, errors.New("option requires a value: " + name)
	}

	switch match.OptionType {
	case command.OptionSwitch:
		if line.peek() == '=' {
			return nil, errors.New("switch option can't have arguments: " + name)
		}
	case command.OptionFile:
		file, ok := line.parseQuoteString()
		if !ok {
			return nil, errors.New("file name not valid: " + name)
		}
		opt.EqualOpt = file
	case command.OptionNumber:
		num, err := line.getNumber()
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		opt.Value = num
	case command.OptionHex:
		num, err := line.getHex()
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		opt.Value = num
	case command.OptionName:
		opt.EqualOpt = line.getName()
		if opt.EqualOpt == "" {
			return nil, errors.New("option requires a name: " + name)
		}
	case command.OptionList:
		opt.EqualOpt = line.getName()
		found := false
		for _, mod := range match.OptionList {
			if strings.EqualFold(mod, opt.EqualOpt) {
				found = true
				break
			}
		}
		if !found {
			return nil, errors.New("option not valid for " + name + ": " + opt.EqualOpt)
		}
	default:
		return nil, errors.New("invalid option type: " + name)
	}

	if !line.atSeparator() {
		return nil, errors.New("options must be followed by separator: " + name)
	}
	return &opt, nil
}

// Scan options and return a list of options.
func (line *cmdLine) getOptions(device command.Command, cmdType int) ([]*command.CmdOption, error) {
	optlist := []*command.CmdOption{}
	opts := device.Options("")
	for {
		opt, err := line.getOption(opts, cmdType)
		if err != nil {
			return optlist, err
		}
		if opt == nil {
			return optlist, nil
		}
		optlist = append(optlist, opt)
	}
}

// Get options for show commands, names only.
func (line *cmdLine) getShowOptions(device command.Command) ([]*command.CmdOption, error) {
	optlist := []*command.CmdOption{}
	opts := device.Options("")
	for {
		name := line.getWord(false)
		if name == "" {
			if !line.isEOL() {
				return nil, errors.New("invalid option: " + line.rest())
			}
			return optlist, nil
		}
		match := matchOption(name, opts, command.ValidShow)
		if match.OptionType == -1 {
			return nil, errors.New("invalid option: " + name)
		}
		optlist = append(optlist, &command.CmdOption{Name: name})
	}
}

// Return command interface to the channel named next on the line.
func (line *cmdLine) getChannel(s *Session) (*channelCommand, error) {
	name := line.getName()
	if name == "" {
		return nil, errors.New("channel name required")
	}
	id, err := dmac.ParseChannel(name)
	if err != nil {
		return nil, err
	}
	return &channelCommand{ctl: s.ctl, id: id}, nil
}
