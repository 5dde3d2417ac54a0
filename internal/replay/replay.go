// Package replay records sentence bursts as JSON lines and plays them back.
//
// Each line is one burst:
//
//	{"at_ms":1500,"sentences":["$GPRMC,...*6A","$GPGGA,...*47"]}
//
// at_ms is milliseconds since the recording started. Blank lines and lines
// starting with '#' are ignored.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Record struct {
	AtMs      int64    `json:"at_ms"`
	Sentences []string `json:"sentences"`
}

func (r Record) At() time.Duration { return time.Duration(r.AtMs) * time.Millisecond }

type Reader struct {
	s    *bufio.Scanner
	line int
}

func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{s: s}
}

// Next returns io.EOF after the last record.
func (rr *Reader) Next() (Record, error) {
	for rr.s.Scan() {
		rr.line++
		line := strings.TrimSpace(rr.s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return Record{}, fmt.Errorf("replay line %d: %w", rr.line, err)
		}
		if rec.AtMs < 0 {
			return Record{}, fmt.Errorf("replay line %d: negative at_ms %d", rr.line, rec.AtMs)
		}
		return rec, nil
	}
	if err := rr.s.Err(); err != nil {
		return Record{}, err
	}
	return Record{}, io.EOF
}

func (rr *Reader) ReadAll() ([]Record, error) {
	var recs []Record
	for {
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
}

// Writer is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	c      io.Closer
	w      *bufio.Writer
	enc    *json.Encoder
	start  time.Time
	closed bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return NewWriter(f, time.Now()), nil
}

// NewWriter writes to w; times are relative to start.
func NewWriter(w io.WriteCloser, start time.Time) *Writer {
	bw := bufio.NewWriterSize(w, 64*1024)
	return &Writer{c: w, w: bw, enc: json.NewEncoder(bw), start: start}
}

func (ww *Writer) WriteBurst(now time.Time, sentences []string) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	d := now.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	if err := ww.enc.Encode(Record{AtMs: d.Milliseconds(), Sentences: sentences}); err != nil {
		return err
	}
	// a killed daemon keeps every burst recorded so far
	return ww.w.Flush()
}

func (ww *Writer) Flush() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true
	ferr := ww.w.Flush()
	cerr := ww.c.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}

// Play sends each record to emit at its recorded offset, scaled by speed
// (2 plays twice as fast). A speed of zero or less disables waiting.
func Play(ctx context.Context, recs []Record, speed float64, emit func(Record) error) error {
	start := time.Now()
	for _, rec := range recs {
		if speed > 0 {
			due := start.Add(time.Duration(float64(rec.At()) / speed))
			if wait := time.Until(due); wait > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	return nil
}
