// Package color provides terminal color output for the CLI.
// It respects the NO_COLOR environment variable (https://no-color.org/)
// and turns itself off when stdout is not a terminal.
package color

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-isatty"
)

var state struct {
	once       sync.Once
	enabled    atomic.Bool
	overridden atomic.Bool
}

// Init detects color support from the environment. Calling it again is a no-op.
func Init(noColorFlag bool) {
	state.once.Do(func() {
		if state.overridden.Load() {
			return
		}
		on := true
		if _, exists := os.LookupEnv("NO_COLOR"); exists {
			on = false
		}
		if os.Getenv("TERM") == "dumb" {
			on = false
		}
		if fd := os.Stdout.Fd(); !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
			on = false
		}
		if noColorFlag {
			on = false
		}
		state.enabled.Store(on)
	})
}

// Enabled returns true if color output is enabled.
func Enabled() bool {
	Init(false)
	return state.enabled.Load()
}

// Disable turns off color output.
func Disable() {
	state.overridden.Store(true)
	state.enabled.Store(false)
}

// Enable turns on color output.
func Enable() {
	state.overridden.Store(true)
	state.enabled.Store(true)
}

// ANSI color codes
const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	DimCode = "\033[2m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Cyan    = "\033[36m"
)

func wrap(code string) func(string) string {
	return func(s string) string {
		if !Enabled() {
			return s
		}
		return code + s + Reset
	}
}

var (
	Redf    = wrap(Red)
	Greenf  = wrap(Green)
	Yellowf = wrap(Yellow)
	Cyanf   = wrap(Cyan)
	Boldf   = wrap(Bold)
	Dimf    = wrap(DimCode)
)

// Success formats a success message in green.
func Success(s string) string { return Greenf(s) }

// Successf formats a success message with printf-style arguments.
func Successf(format string, args ...any) string { return Greenf(fmt.Sprintf(format, args...)) }

// Error formats an error message in red.
func Error(s string) string { return Redf(s) }

// Errorf formats an error message with printf-style arguments.
func Errorf(format string, args ...any) string { return Redf(fmt.Sprintf(format, args...)) }

// Warning formats a warning message in yellow.
func Warning(s string) string { return Yellowf(s) }

// Warningf formats a warning message with printf-style arguments.
func Warningf(format string, args ...any) string { return Yellowf(fmt.Sprintf(format, args...)) }

// ID formats an entry, report or export identifier.
func ID(s string) string { return Cyanf(s) }

// Hash formats a digest, shortened to its first 12 characters.
func Hash(s string) string {
	if len(s) > 12 {
		s = s[:12]
	}
	return Dimf(s)
}

// Header formats a header in bold.
func Header(s string) string { return Boldf(s) }
