/*
 * zkRISCV - Run configuration file parser.
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
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

/* Configuration file format:
 *
 * '#' indicates comment, rest of line is ignored.
 * <line> := <option> <whitespace> <value>
 *
 * Options:
 *   segment_po2   <number>     cycle budget exponent per segment
 *   session_limit <number>     abort after this many cycles
 *   stdin         <path>       file mapped to guest stdin
 *   input         <path>       file served via sys_initial_input
 *   log           <path>       log file
 *   remote_prover <url>        delegate to a remote proving service
 *   debug         on|off       mirror debug records to stderr
 */

// Config holds the run options read from a configuration file.
type Config struct {
	SegmentPo2   uint32
	SessionLimit int
	StdinPath    string
	InputPath    string
	LogFile      string
	RemoteProver string
	Debug        bool
}

// LoadConfigFile reads and parses a configuration file.
func LoadConfigFile(name string) (*Config, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(file)
}

// Parse reads configuration lines from a reader.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}
	scanner := bufio.NewScanner(r)
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if index := strings.Index(line, "#"); index >= 0 {
			line = line[:index]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected option and value, got %q", lineNumber, line)
		}

		option := strings.ToLower(fields[0])
		value := fields[1]
		switch option {
		case "segment_po2":
			n, err := strconv.ParseUint(value, 0, 6)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad segment_po2 %q", lineNumber, value)
			}
			cfg.SegmentPo2 = uint32(n)
		case "session_limit":
			n, err := strconv.ParseInt(value, 0, 64)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("line %d: bad session_limit %q", lineNumber, value)
			}
			cfg.SessionLimit = int(n)
		case "stdin":
			cfg.StdinPath = value
		case "input":
			cfg.InputPath = value
		case "log":
			cfg.LogFile = value
		case "remote_prover":
			cfg.RemoteProver = value
		case "debug":
			switch strings.ToLower(value) {
			case "on", "true", "1":
				cfg.Debug = true
			case "off", "false", "0":
				cfg.Debug = false
			default:
				return nil, fmt.Errorf("line %d: bad debug value %q", lineNumber, value)
			}
		default:
			return nil, fmt.Errorf("line %d: unknown option %q", lineNumber, option)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return cfg, nil
}
