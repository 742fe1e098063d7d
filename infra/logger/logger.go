package logger

import (
	"io"
	"os"
	"strings"

	corelogger "github.com/kilianp07/erbalance/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger = corelogger.Nop

// New returns a Logger for the given component. APP_LOGGER selects the
// backend (zerolog by default, logrus on request) and APP_ENV=dev switches
// to human readable output.
func New(component string) Logger {
	return NewWithWriter(component, os.Stdout)
}

// NewWithWriter is New with an explicit output.
func NewWithWriter(component string, w io.Writer) Logger {
	dev := strings.EqualFold(os.Getenv("APP_ENV"), "dev")
	level := os.Getenv("LOG_LEVEL")
	if strings.EqualFold(os.Getenv("APP_LOGGER"), "logrus") {
		return newLogrusLogger(component, w, dev, level)
	}
	return newZerologLogger(component, w, dev, level)
}
