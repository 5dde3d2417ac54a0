package sink

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/phuslu/log"

	"github.com/cradlepoint/sdk-samples-sub000/internal/events"
	"github.com/cradlepoint/sdk-samples-sub000/internal/fix"
)

type fakePublisher struct {
	mu       sync.Mutex
	payloads [][]byte
	closed   bool
}

func (p *fakePublisher) Publish(ctx context.Context, b []byte) error {
	p.mu.Lock()
	p.payloads = append(p.payloads, b)
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

func quietLogger() log.Logger {
	return log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}

func TestEncode(t *testing.T) {
	ev := events.FixEvent{Identity: "imei", Reason: "first", Fix: &fix.Fix{Valid: true, Latitude: fix.Float(45.5)}}
	b, err := Encode(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got struct {
		Identity string `json:"identity"`
		Reason   string `json:"reason"`
		Fix      struct {
			Latitude  float64  `json:"latitude"`
			Longitude *float64 `json:"longitude"`
		} `json:"fix"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Identity != "imei" || got.Reason != "first" || got.Fix.Latitude != 45.5 || got.Fix.Longitude != nil {
		t.Fatalf("got %+v", got)
	}
}

func TestFanout(t *testing.T) {
	a, b := &fakePublisher{}, &fakePublisher{}
	f := NewFanout([]Publisher{a, b}, 1, quietLogger())

	if !f.Offer(events.FixEvent{Reason: "first"}) {
		t.Fatalf("offer rejected")
	}
	if f.Offer(events.FixEvent{Reason: "time"}) {
		t.Fatalf("full queue accepted event")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { f.Run(ctx); close(done) }()

	deadline := time.Now().Add(2 * time.Second)
	for a.count() != 1 || b.count() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("a=%d b=%d", a.count(), b.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if !a.closed || !b.closed {
		t.Fatalf("publishers not closed")
	}
}
