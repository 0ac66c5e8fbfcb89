/*
 * PS2DMAC - Configuration file parser
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

package configparser

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// NoAddr is passed to handlers when the first value is not a hex number.
const NoAddr uint32 = 0xffffffff

// List of options to pass to create routine.
type Option struct {
	Name     string    // Name of option.
	EqualOpt string    // Value of string after =.
	Value    []*string // Value of option.
}

// Model specification.
type modelName struct {
	model string // value of model.
}

// Option after model.
type FirstOption struct {
	addr   uint32 // Value of option if hex.
	isAddr bool   // Valid address in addr.
	value  string // String value of option.
}

// Current option line being parsed.
type optionLine struct {
	line string  // Current option line.
	pos  int     // Current position in line.
	num  int     // Line number in file.
	p    *Parser // Parser holding registered keywords.
}

/* Configuration file format:
 *
 * '#' indicates comment, rest of line is ignored.
 * <line> := <model> <whitespace> <address> <whitespace> <options> |
 *            <option> <whitespace> <value> |
 *            <file> <whitespace> <quoteopt> |
 *            <switch>
 * <address> ::= <string> | <hexnumber>| <number><K|M>
 * <options> ::= *(<option> *(<whitespace>))
 * <option> ::= *<value> (<whitespace> | <eol>
 * <value> ::= <opt> *(',' *(<whitespace>) <string>
 * <opt> := <valueopt> | <string>
 * <commaopt> ::= ',' *(<whitespace>) <string>
 * <optstring> ::= <string>
 * <optvalue> ::= <string>' =' <quoteopt>
 * <quoteopt> ::= <string> | '"' *(<letter> | <whitespace>) '"'
 * <string> ::= *(<letter> | <number>)
 */

const (
	TypeModel   = 1 + iota // Requires a hex address.
	TypeOption             // Accepts a option parameter.
	TypeOptions            // Accepts a list of options.
	TypeSwitch             // Option only used to set a flag.
	TypeFile               // Accepts a file name.
)

// Handler for one configuration keyword.
type CreateFunc func(addr uint32, value string, options []Option) error

// Model creation list.
type modelDef struct {
	create CreateFunc
	ty     int
}

// Parser holds the keywords a configuration file may use.
type Parser struct {
	models map[string]modelDef
}

// New creates a parser with no keywords.
func New() *Parser {
	return &Parser{models: map[string]modelDef{}}
}

// Return type of model or 0 if no model.
func (p *Parser) getModel(mod string) int {
	model, ok := p.models[mod]
	if !ok {
		return 0
	}
	return model.ty
}

func (p *Parser) register(mod string, ty int, fn CreateFunc) {
	mod = strings.ToUpper(mod)
	slog.Debug("Registering config keyword", "keyword", mod, "type", ty)
	p.models[mod] = modelDef{create: fn, ty: ty}
}

// Register keyword followed by address and options.
func (p *Parser) RegisterModel(mod string, ty int, fn CreateFunc) {
	p.register(mod, ty, fn)
}

// Register keyword with no arguments.
func (p *Parser) RegisterSwitch(mod string, fn CreateFunc) {
	p.register(mod, TypeSwitch, fn)
}

// Register keyword followed by one value.
func (p *Parser) RegisterOption(mod string, fn CreateFunc) {
	p.register(mod, TypeOption, fn)
}

// Register keyword followed by a value and options.
func (p *Parser) RegisterOptions(mod string, fn CreateFunc) {
	p.register(mod, TypeOptions, fn)
}

// Register keyword followed by a file name.
func (p *Parser) RegisterFile(mod string, fn CreateFunc) {
	p.register(mod, TypeFile, fn)
}

// Look up model and check type.
func (p *Parser) lookup(mod string, ty int, what string) (modelDef, error) {
	mod = strings.ToUpper(mod)
	model, ok := p.models[mod]
	if !ok {
		return model, errors.New("Unknown " + what + ": " + mod)
	}
	if model.ty != ty {
		return model, errors.New("Not a " + what + " type: " + mod)
	}
	return model, nil
}

// Create a model with address.
func (p *Parser) createModel(mod string, first *FirstOption, options []Option) error {
	model, err := p.lookup(mod, TypeModel, "model")
	if err != nil {
		return err
	}
	return model.create(first.addr, "", options)
}

// Create a option with one parameter.
func (p *Parser) createOption(mod string, first *FirstOption) error {
	model, err := p.lookup(mod, TypeOption, "option")
	if err != nil {
		return err
	}
	return model.create(first.addr, first.value, []Option{})
}

// Create a option with options.
func (p *Parser) createOptions(mod string, first *FirstOption, options []Option) error {
	model, err := p.lookup(mod, TypeOptions, "options")
	if err != nil {
		return err
	}
	return model.create(first.addr, first.value, options)
}

// Create switch option.
func (p *Parser) createSwitch(mod string) error {
	model, err := p.lookup(mod, TypeSwitch, "switch")
	if err != nil {
		return err
	}
	return model.create(0, "", nil)
}

// Create file option.
func (p *Parser) createFile(mod string, name string) error {
	model, err := p.lookup(mod, TypeFile, "file")
	if err != nil {
		return err
	}
	return model.create(NoAddr, name, nil)
}

// Load in a configuration file.
func (p *Parser) LoadConfigFile(name string) error {
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	defer file.Close()
	return errors.WithMessage(p.Load(file), name)
}

// Load configuration from r.
func (p *Parser) Load(r io.Reader) error {
	lineNumber := 0
	reader := bufio.NewReader(r)
	for {
		var err error

		line := optionLine{p: p}
		line.line, err = reader.ReadString('\n')
		lineNumber++
		line.num = lineNumber
		if len(line.line) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		err = line.parseLine()
		if err != nil {
			return err
		}
	}
	return nil
}

// Parse a single configuration line.
func (p *Parser) ParseLine(text string) error {
	line := optionLine{line: text, p: p}
	return line.parseLine()
}

// Parse one line from file.
func (line *optionLine) parseLine() error {
	model := line.parseModel()
	if model == nil {
		return nil
	}
	switch line.p.getModel(model.model) {
	case TypeModel:
		first := line.parseFirst()
		if first == nil || !first.isAddr {
			return errors.Errorf("%s requires address, line: %d", model.model, line.num)
		}
		// Get any remaining options.
		options, err := line.parseOptions()
		if err != nil {
			return err
		}
		return line.p.createModel(model.model, first, options)

	case TypeOption:
		first := line.parseFirst()
		line.skipSpace()
		if !line.isEOL() || first == nil {
			return errors.Errorf("Option: %s not followed by value. line: %d", model.model, line.num)
		}
		return line.p.createOption(model.model, first)

	case TypeOptions:
		first := line.parseFirst()
		if first == nil {
			return errors.Errorf("Option: %s not followed by value, line: %d", model.model, line.num)
		}
		options, err := line.parseOptions()
		if err != nil {
			return err
		}
		return line.p.createOptions(model.model, first, options)

	case TypeSwitch:
		line.skipSpace()
		if !line.isEOL() {
			return errors.Errorf("Switch Option: %s followed by options, line: %d", model.model, line.num)
		}
		return line.p.createSwitch(model.model)

	case TypeFile:
		line.skipSpace()
		if line.isEOL() {
			return errors.Errorf("File Option: %s requires file name, line: %d", model.model, line.num)
		}
		// Back up one so quote check sees first character.
		line.pos--
		name, ok := line.parseQuoteString()
		if !ok || name == "" {
			return errors.Errorf("Invalid file name, line: %d", line.num)
		}
		return line.p.createFile(model.model, name)

	case 0:
		return errors.Errorf("No type: %s registered, line: %d", model.model, line.num)
	}
	return nil
}

// Skip forward over line until none whitespace character found.
func (line *optionLine) skipSpace() {
	for {
		if line.pos >= len(line.line) {
			return
		}
		if unicode.IsSpace(rune(line.line[line.pos])) {
			line.pos++
			continue
		}
		return
	}
}

// Check if at end of line.
func (line *optionLine) isEOL() bool {
	if line.pos >= len(line.line) {
		return true
	}

	if line.line[line.pos] == '#' {
		return true
	}
	return false
}

// Return next letter or digit in line. 0 if EOL or space.
func (line *optionLine) getNext(inQuote bool) byte {
	line.pos++
	if line.isEOL() {
		return 0
	}
	by := line.line[line.pos]
	if unicode.IsLetter(rune(by)) || unicode.IsNumber(rune(by)) || inQuote {
		return by
	}
	return 0
}

// Peek at next character.
func (line *optionLine) getPeek() byte {
	if (line.pos + 1) >= len(line.line) {
		return 0
	}
	return line.line[line.pos+1]
}

// Grab letters and digits starting at current position.
func (line *optionLine) getWord() string {
	value := ""
	for {
		if line.isEOL() {
			break
		}
		by := line.line[line.pos]
		if unicode.IsLetter(rune(by)) || unicode.IsNumber(rune(by)) {
			value += string([]byte{by})
			line.pos++
			continue
		}
		break
	}
	return value
}

// Parse model option.
func (line *optionLine) parseModel() *modelName {
	// Skip leading space
	line.skipSpace()
	// Check if end of line.
	if line.isEOL() {
		return nil
	}

	return &modelName{model: strings.ToUpper(line.getWord())}
}

// Parse first option parameter.
func (line *optionLine) parseFirst() *FirstOption {
	// Skip leading space
	line.skipSpace()
	// Check if end of line.
	if line.isEOL() {
		return nil
	}

	value := line.getWord()
	option := FirstOption{addr: NoAddr, value: value}

	addr, err := strconv.ParseUint(value, 16, 32)
	if err == nil {
		option.addr = uint32(addr)
		option.isAddr = true
	}
	return &option
}

// Parse string that is "string" or just string.
func (line *optionLine) parseQuoteString() (string, bool) {
	inQuote := false
	value := ""

	// If quote, set we are in quoted string
	if line.getPeek() == '"' {
		inQuote = true
		_ = line.getNext(true)
	}

	for {
		by := line.getNext(inQuote)
		// If processing a quoted string "" gets replaced by signal quote
		if by == '"' && inQuote {
			by = line.getNext(inQuote)
			if by != '"' {
				// Hit end of string.
				return value, true
			}
		}

		space := unicode.IsSpace(rune(by))
		// Space or comma terminates a no quoted string.
		if !inQuote && (space || by == 0 || by == ',') {
			return value, true
		}

		value += string(by)
		// If we hit end of line, stop processing.
		if line.isEOL() {
			return value, !inQuote
		}
	}
}

// Parse option name.
func (line *optionLine) getName() (string, error) {
	// Check if end of line.
	if line.isEOL() {
		return "", nil
	}

	// First character must be alphabetic.
	by := line.line[line.pos]
	if !unicode.IsLetter(rune(by)) && !unicode.IsNumber(rune(by)) {
		return "", errors.Errorf("Invalid option encountered line: %d [%d]", line.num, line.pos)
	}
	value := ""

	// Already verified that first character is letter,
	// so grab until not letter or number.
	for {
		value += string([]byte{by})
		by = line.getNext(false)
		if by == 0 {
			break
		}
	}

	return value, nil
}

// Parse options for a line.
func (line *optionLine) parseOption() (*Option, error) {
	// Skip leading space
	line.skipSpace()

	// Grab option name
	value, err := line.getName()
	if value == "" {
		return nil, err
	}

	// Empty option.
	option := Option{Name: value}

	// If at end of line done.
	if line.isEOL() {
		return &option, nil
	}

	// Check if equals option.
	if line.line[line.pos] == '=' {
		v, ok := line.parseQuoteString()
		if !ok {
			return nil, errors.Errorf("Invalid quoted string line: %d [%d]", line.num, line.pos)
		}
		option.EqualOpt = v
	}

	// Skip any spaces.
	line.skipSpace()

	// Grab all , options
	for !line.isEOL() && line.line[line.pos] == ',' {
		line.pos++ // Skip comma
		// Skip space between , and next option
		line.skipSpace()
		v, err := line.getName()
		if err != nil {
			return nil, err
		}
		if v != "" {
			option.Value = append(option.Value, &v)
		}
		// Skip any trailing spaces.
		line.skipSpace()
	}

	return &option, nil
}

// Collect all options for line.
func (line *optionLine) parseOptions() ([]Option, error) {
	options := []Option{}
	for {
		option, err := line.parseOption()
		if err != nil {
			return nil, err
		}
		if option == nil {
			break
		}
		options = append(options, *option)
	}
	return options, nil
}
