package source

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

// chunkReader returns one chunk per Read call.
type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

func collect(t *testing.T, r io.Reader, cfg ReaderConfig) [][]string {
	t.Helper()
	var bursts [][]string
	err := ReadBursts(context.Background(), r, cfg, func(ctx context.Context, lines []string, now time.Time) error {
		bursts = append(bursts, lines)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return bursts
}

func TestReadBurstsCarriesPartialLine(t *testing.T) {
	r := &chunkReader{chunks: []string{
		"$GPRMC,1*00\r\n$GPGGA,",
		"2*00\r\n$GPVTG,3*00\r\n",
		"$GPGSA,4*00",
	}}
	bursts := collect(t, r, ReaderConfig{})
	want := [][]string{
		{"$GPRMC,1*00"},
		{"$GPGGA,2*00", "$GPVTG,3*00"},
		{"$GPGSA,4*00"},
	}
	if len(bursts) != len(want) {
		t.Fatalf("bursts %q", bursts)
	}
	for i := range want {
		if strings.Join(bursts[i], "|") != strings.Join(want[i], "|") {
			t.Fatalf("burst %d: %q, want %q", i, bursts[i], want[i])
		}
	}
}

func TestReadBurstsPacing(t *testing.T) {
	r := &chunkReader{chunks: []string{"a\n", "b\n", "c\n"}}
	start := time.Now()
	bursts := collect(t, r, ReaderConfig{Pacing: 20 * time.Millisecond})
	if len(bursts) != 3 {
		t.Fatalf("bursts %q", bursts)
	}
	if time.Since(start) < 60*time.Millisecond {
		t.Fatalf("reads were not paced")
	}
}

func TestReadBurstsDropsRunawayLine(t *testing.T) {
	r := &chunkReader{chunks: []string{strings.Repeat("x", 40), strings.Repeat("y", 40), "\n$GP,1\n"}}
	bursts := collect(t, r, ReaderConfig{MaxPending: 64})
	if len(bursts) != 1 || len(bursts[0]) != 1 || bursts[0][0] != "$GP,1" {
		t.Fatalf("bursts %q", bursts)
	}
}

func TestReadBurstsHandlerError(t *testing.T) {
	boom := errors.New("boom")
	r := &chunkReader{chunks: []string{"a\n", "b\n"}}
	err := ReadBursts(context.Background(), r, ReaderConfig{}, func(ctx context.Context, lines []string, now time.Time) error {
		return boom
	})
	var he *HandlerError
	if !errors.As(err, &he) || !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}

func TestReadBurstsCancelDuringPacing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &chunkReader{chunks: []string{"a\n", "b\n"}}
	err := ReadBursts(ctx, r, ReaderConfig{Pacing: time.Hour}, func(ctx context.Context, lines []string, now time.Time) error {
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}
