package core

import "github.com/rs/zerolog"

var logger = zerolog.Nop()

// SetLogger installs the logger used by the core package. The default logger
// discards everything.
func SetLogger(l zerolog.Logger) { logger = l }

// Logger returns the logger used by the core package.
func Logger() *zerolog.Logger { return &logger }
