/*
 * PS2DMAC - Log debug data to a file
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

package debug

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	config "github.com/rcornwell/PS2DMAC/config/configparser"
)

var (
	mu      sync.Mutex
	logFile io.Writer
	logName string
)

// Generic debug message.
func Debugf(module string, mask int, level int, format string, a ...interface{}) {
	if (mask & level) == 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		fmt.Fprintf(logFile, module+": "+format+"\n", a...)
	}
}

// Channel debug message.
func DebugChanf(name string, mask int, level int, format string, a ...interface{}) {
	if (mask & level) == 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		fmt.Fprintf(logFile, "Channel "+name+": "+format+"\n", a...)
	}
}

// SetOutput sends debug messages to w. Nil discards them.
func SetOutput(w io.Writer) {
	mu.Lock()
	logFile = w
	logName = ""
	mu.Unlock()
}

// Close the debug file if one is open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	var err error
	if c, ok := logFile.(io.Closer); ok && logName != "" {
		err = c.Close()
	}
	logFile = nil
	logName = ""
	return err
}

// RegisterConfig adds the DEBUGFILE keyword.
func RegisterConfig(p *config.Parser) {
	p.RegisterFile("DEBUGFILE", create)
}

// Open the debug file.
func create(_ uint32, fileName string, _ []config.Option) error {
	mu.Lock()
	defer mu.Unlock()
	if logName != "" {
		return errors.Errorf("can't have more then one debug file, previous: %s", logName)
	}

	file, err := os.Create(fileName)
	if err != nil {
		return errors.Wrapf(err, "unable to create debug file: %s", fileName)
	}

	logFile = file
	logName = fileName
	return nil
}
