/*
 * zkRISCV - Main process.
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
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	getopt "github.com/pborman/getopt/v2"
	"github.com/rcornwell/zkriscv/command/reader"
	config "github.com/rcornwell/zkriscv/config/configparser"
	"github.com/rcornwell/zkriscv/emu/exec"
	logger "github.com/rcornwell/zkriscv/util/logger"
)

var Logger *slog.Logger

func main() {
	optElf := getopt.StringLong("elf", 'e', "", "Guest ELF binary")
	optConfig := getopt.StringLong("config", 'c', "", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optPo2 := getopt.Uint32Long("po2", 's', 0, "Segment cycle budget exponent")
	optSegments := getopt.StringLong("segments", 'o', "", "Directory to write segments to")
	optInteractive := getopt.BoolLong("interactive", 'i', "Interactive single-step debugger")
	optTrace := getopt.BoolLong("trace", 't', "Log trace events")
	optDebug := getopt.BoolLong("debug", 'd', "Mirror debug output to stderr")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var cfg *config.Config
	if *optConfig != "" {
		var err error
		cfg, err = config.LoadConfigFile(*optConfig)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Configuration error: "+err.Error())
			os.Exit(1)
		}
	} else {
		cfg = &config.Config{}
	}

	logName := cfg.LogFile
	if *optLogFile != "" {
		logName = *optLogFile
	}
	var file *os.File
	if logName != "" {
		file, _ = os.Create(logName)
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	Logger = slog.New(logger.NewHandler(file,
		&slog.HandlerOptions{Level: programLevel}, *optDebug || cfg.Debug))
	slog.SetDefault(Logger)

	if *optElf == "" {
		Logger.Error("Please specify a guest ELF binary")
		os.Exit(1)
	}
	elf, err := os.ReadFile(*optElf)
	if err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	env := exec.NewEnv()
	if cfg.SegmentPo2 != 0 {
		env.SegmentLimitPo2 = cfg.SegmentPo2
	}
	if *optPo2 != 0 {
		env.SegmentLimitPo2 = *optPo2
	}
	if cfg.SessionLimit != 0 {
		env.SessionLimit = cfg.SessionLimit
	}
	if cfg.RemoteProver != "" {
		env.RemoteProver = cfg.RemoteProver
	}
	if cfg.StdinPath != "" {
		stdin, err := os.Open(cfg.StdinPath)
		if err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
		defer stdin.Close()
		env.SetStdin(stdin)
	}
	if cfg.InputPath != "" {
		input, err := os.ReadFile(cfg.InputPath)
		if err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
		env.Input = input
	}
	if *optTrace {
		env.TraceCallback = func(event exec.TraceEvent) error {
			slog.Debug("trace " + event.String())
			return nil
		}
	}

	executor, err := exec.FromELF(env, elf)
	if err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	if *optInteractive {
		Logger.Info("zkRISCV debugger started")
		reader.ConsoleReader(executor)
		return
	}

	Logger.Info("zkRISCV started")
	session, err := executor.Run()
	if err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	fmt.Printf("exit:     %s\n", session.Exit)
	fmt.Printf("segments: %d\n", len(session.Segments))
	fmt.Printf("journal:  %s\n", hex.EncodeToString(session.Journal))
	if session.ProofID != 0 {
		fmt.Printf("proof id: %d\n", session.ProofID)
	}

	if *optSegments != "" {
		if err := writeSegments(*optSegments, session); err != nil {
			Logger.Error(err.Error())
			os.Exit(1)
		}
	}
}

// Write each segment of the session to its own file for the prover.
func writeSegments(dir string, session *exec.Session) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i := range session.Segments {
		seg := &session.Segments[i]
		name := filepath.Join(dir, fmt.Sprintf("segment-%04d.bin", seg.Index))
		file, err := os.Create(name)
		if err != nil {
			return err
		}
		if err := seg.Serialize(file); err != nil {
			file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
	}
	return nil
}
