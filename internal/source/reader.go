// Package source delivers bursts of NMEA lines from a local GPS: a TCP
// client feeding a listener, or a serial port.
package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// BurstHandler receives the complete lines of one read. A returned error
// stops the source.
type BurstHandler func(ctx context.Context, lines []string, now time.Time) error

// Source runs until ctx is cancelled, the input ends or the handler fails.
type Source interface {
	Run(ctx context.Context, h BurstHandler) error
}

type ReaderConfig struct {
	// Pacing is the sleep between two reads.
	Pacing   time.Duration
	ReadSize int
	// MaxPending caps a line that never terminates.
	MaxPending int
}

// HandlerError marks a failure of the BurstHandler, as opposed to a failure
// of the input.
type HandlerError struct {
	Err error
}

func (e *HandlerError) Error() string { return "burst handler: " + e.Err.Error() }

func (e *HandlerError) Unwrap() error { return e.Err }

// ReadBursts reads r until EOF. A partial trailing line is carried into the
// next read; whatever is left at EOF is delivered as a last burst.
func ReadBursts(ctx context.Context, r io.Reader, cfg ReaderConfig, h BurstHandler) error {
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = 1024
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 64 * 1024
	}
	buf := make([]byte, cfg.ReadSize)
	var pending []byte
	for {
		n, err := r.Read(buf)
		pending = append(pending, buf[:n]...)
		var lines []string
		if i := bytes.LastIndexByte(pending, '\n'); i >= 0 {
			lines = splitLines(pending[:i+1])
			pending = append(pending[:0], pending[i+1:]...)
		} else if len(pending) > cfg.MaxPending {
			pending = pending[:0]
		}
		if err != nil && len(pending) > 0 {
			lines = append(lines, string(pending))
			pending = pending[:0]
		}
		if len(lines) > 0 {
			if herr := h(ctx, lines, time.Now()); herr != nil {
				return &HandlerError{herr}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if cfg.Pacing > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Pacing):
			}
		}
	}
}

func splitLines(b []byte) []string {
	var out []string
	for _, l := range strings.Split(string(b), "\n") {
		l = strings.TrimRight(l, "\r")
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
