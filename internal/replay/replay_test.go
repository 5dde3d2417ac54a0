package replay

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func TestWriterFlushesEachBurst(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(nopCloser{&buf}, time.Now())
	if err := w.WriteBurst(time.Now(), []string{"$GPRMC,1*00"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// not closed: the burst must already be on the underlying writer
	if !strings.Contains(buf.String(), `"$GPRMC,1*00"`) {
		t.Fatalf("burst still buffered: %q", buf.String())
	}
}

func TestWriterReader(t *testing.T) {
	var buf bytes.Buffer
	t0 := time.Date(2021, 7, 4, 9, 8, 7, 0, time.UTC)
	w := NewWriter(nopCloser{&buf}, t0)
	if err := w.WriteBurst(t0, []string{"$GPRMC,1*00", "$GPGGA,2*00"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.WriteBurst(t0.Add(1500*time.Millisecond), []string{"$GPRMC,3*00"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.WriteBurst(t0, nil); err == nil {
		t.Fatalf("write after close succeeded")
	}

	first := strings.SplitN(buf.String(), "\n", 2)[0]
	if first != `{"at_ms":0,"sentences":["$GPRMC,1*00","$GPGGA,2*00"]}` {
		t.Fatalf("line %q", first)
	}

	recs, err := NewReader(strings.NewReader("# recorded\n\n" + buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 2 || recs[1].At() != 1500*time.Millisecond || recs[1].Sentences[0] != "$GPRMC,3*00" {
		t.Fatalf("recs %+v", recs)
	}
}

func TestReaderRejectsGarbage(t *testing.T) {
	_, err := NewReader(strings.NewReader("{'at_ms': 1, 'sentences': []}\n")).ReadAll()
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("err=%v", err)
	}
	_, err = NewReader(strings.NewReader(`{"at_ms":-1,"sentences":[]}`)).ReadAll()
	if err == nil {
		t.Fatalf("negative offset accepted")
	}
}

func TestPlay(t *testing.T) {
	recs := []Record{{AtMs: 0}, {AtMs: 40}, {AtMs: 80}}
	var got []int64
	start := time.Now()
	err := Play(context.Background(), recs, 2, func(r Record) error {
		got = append(got, r.AtMs)
		return nil
	})
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %v", got)
	}
	if el := time.Since(start); el < 40*time.Millisecond {
		t.Fatalf("played too fast: %v", el)
	}
}

func TestPlayCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	recs := []Record{{AtMs: 0}, {AtMs: 60000}}
	err := Play(ctx, recs, 1, func(r Record) error {
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}
