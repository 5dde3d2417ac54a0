package source

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/phuslu/log"
)

func quietLogger() log.Logger {
	return log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}

func TestListenerOneClientAtATime(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	l := NewListener(ListenerConfig{}, quietLogger())

	var mu sync.Mutex
	var got []string
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Serve(ctx, ln, func(ctx context.Context, lines []string, now time.Time) error {
			mu.Lock()
			got = append(got, lines...)
			mu.Unlock()
			return nil
		})
	}()

	for _, payload := range []string{"$A,1*00\r\n", "$B,2*00\r\n"} {
		c, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		c.Write([]byte(payload))
		c.Close()
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %q", got)
		}
		time.Sleep(10 * time.Millisecond)
	}
	mu.Lock()
	if got[0] != "$A,1*00" || got[1] != "$B,2*00" {
		t.Fatalf("got %q", got)
	}
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not stop")
	}
}

func TestListenerHandlerErrorStops(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	l := NewListener(ListenerConfig{}, quietLogger())
	boom := errors.New("upstream gone")
	done := make(chan error, 1)
	go func() {
		done <- l.Serve(context.Background(), ln, func(ctx context.Context, lines []string, now time.Time) error {
			return boom
		})
	}()
	c, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	c.Write([]byte("$A,1*00\r\n"))

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not stop")
	}
}
