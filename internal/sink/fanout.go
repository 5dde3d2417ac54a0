package sink

import (
	"context"
	"time"

	"github.com/phuslu/log"

	"github.com/cradlepoint/sdk-samples-sub000/internal/events"
)

// Fanout feeds published fixes to every Publisher from its own goroutine so
// a slow broker never stalls the forwarder. When the queue is full the event
// is dropped.
type Fanout struct {
	pubs    []Publisher
	queue   chan events.FixEvent
	log     log.Logger
	timeout time.Duration
	dropped uint64
}

func NewFanout(pubs []Publisher, queue int, logger log.Logger) *Fanout {
	if queue <= 0 {
		queue = 64
	}
	f := &Fanout{pubs: pubs, queue: make(chan events.FixEvent, queue), log: logger, timeout: 5 * time.Second}
	f.log.Context = log.NewContext(nil).Str("module", "sink").Value()
	return f
}

// Offer never blocks.
func (f *Fanout) Offer(ev events.FixEvent) bool {
	select {
	case f.queue <- ev:
		return true
	default:
		f.dropped++
		f.log.Warn().Uint64("dropped", f.dropped).Msg("sink queue full")
		return false
	}
}

// Run publishes until ctx is done, then closes the publishers.
func (f *Fanout) Run(ctx context.Context) {
	defer func() {
		for _, p := range f.pubs {
			p.Close()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-f.queue:
			payload, err := Encode(ev)
			if err != nil {
				f.log.Error().Err(err).Msg("encode")
				continue
			}
			for _, p := range f.pubs {
				pctx, cancel := context.WithTimeout(ctx, f.timeout)
				if err := p.Publish(pctx, payload); err != nil {
					f.log.Error().Err(err).Msg("publish failed")
				}
				cancel()
			}
		}
	}
}
