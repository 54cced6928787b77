// Package logging wires the process-wide logger from the resolved
// configuration: a colorized terminal handler or a JSON handler, wrapped in
// a glog-style handler so --log-verbosity and --log-vmodule behave the way
// every go-ethereum-derived binary's do.
package logging

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
)

// Setup builds and installs the default logger. verbosity is 0 (silent)
// through 5 (trace); vmodule, if non-empty, is glog vmodule syntax
// ("file.go=5,pattern*=4").
func Setup(verbosity int, vmodule string, jsonOutput bool) error {
	var handler log.Handler
	if jsonOutput {
		handler = log.JSONHandler(os.Stderr)
	} else {
		useColor := isTerminal(os.Stderr)
		handler = log.NewTerminalHandler(os.Stderr, useColor)
	}

	glog := log.NewGlogHandler(handler)
	glog.Verbosity(log.FromLegacyLevel(verbosity))
	if vmodule != "" {
		if err := glog.Vmodule(vmodule); err != nil {
			return fmt.Errorf("logging: invalid vmodule %q: %w", vmodule, err)
		}
	}

	log.SetDefault(log.NewLogger(glog))
	return nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
