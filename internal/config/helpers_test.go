package config

import (
	"io"

	"github.com/phuslu/log"
)

func quietLogger() log.Logger {
	return log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}
