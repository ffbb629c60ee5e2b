// Package cli contains small helpers shared by the reference command-line
// tools built on top of this module: flag parsing and logging setup.
package cli

import (
	"fmt"
	"os"
	"regexp"

	"golang.org/x/crypto/ssh/terminal"
	"gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("cli")

// StdErrIsATerminal is true if the process' stderr is an interactive TTY.
var StdErrIsATerminal = terminal.IsTerminal(int(os.Stderr.Fd()))

// StripAnsi is a regex to find & replace ANSI console escape sequences.
var StripAnsi = regexp.MustCompile("\x1b[^m]+m")

// A Verbosity is used as a flag to define logging verbosity; 0 is errors only,
// higher numbers progressively enable warning, notice, info and debug logging.
type Verbosity int

// UnmarshalFlag implements the flags.Unmarshaler interface so Verbosity can be used directly as a flag.
func (v *Verbosity) UnmarshalFlag(in string) error {
	levels := map[string]Verbosity{
		"error": 0, "warning": 1, "notice": 2, "info": 3, "debug": 4,
	}
	if n, present := levels[in]; present {
		*v = n
		return nil
	}
	var n int
	if _, err := fmt.Sscanf(in, "%d", &n); err != nil {
		return fmt.Errorf("invalid verbosity %q: %w", in, err)
	}
	*v = Verbosity(n)
	return nil
}

// level converts a Verbosity into the underlying logging library's Level.
func (v Verbosity) level() logging.Level {
	switch {
	case v <= 0:
		return logging.ERROR
	case v == 1:
		return logging.WARNING
	case v == 2:
		return logging.NOTICE
	case v == 3:
		return logging.INFO
	default:
		return logging.DEBUG
	}
}

// InitLogging initialises the logging backend at the given verbosity.
// It is idempotent and safe to call more than once (e.g. from tests).
func InitLogging(verbosity Verbosity) {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatted := logging.NewBackendFormatter(backend, logFormatter(StdErrIsATerminal))
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(verbosity.level(), "")
	logging.SetBackend(leveled)
}

func logFormatter(coloured bool) logging.Formatter {
	formatStr := "%{time:15:04:05.000} %{level:7s}: %{message}"
	if coloured {
		formatStr = "%{color}" + formatStr + "%{color:reset}"
	}
	return logging.MustStringFormatter(formatStr)
}
