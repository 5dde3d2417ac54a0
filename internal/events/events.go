// Package events is the in-process bus connecting the forwarder to its
// observers (status page, websocket stream, sinks).
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/mustafaturan/bus/v3"
	"github.com/mustafaturan/monoton/v2"
	"github.com/mustafaturan/monoton/v2/sequencer"
	"github.com/phuslu/log"

	"github.com/cradlepoint/sdk-samples-sub000/internal/fix"
)

const (
	TopicFixPublished = "fix.published"
	TopicFixFiltered  = "fix.filtered"
	TopicSessionState = "session.state"
)

// FixEvent is emitted once per burst.
type FixEvent struct {
	Identity string   `json:"identity"`
	Reason   string   `json:"reason"`
	Fix      *fix.Fix `json:"fix"`
}

type StateEvent struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

type Bus struct {
	b   *bus.Bus
	log log.Logger
}

// 2020-01-01T00:00:00Z in ms
const epoch = 1577836800000

func New(logger log.Logger) (*Bus, error) {
	node := uint64(1)
	m, err := monoton.New(sequencer.NewMillisecond(), node, epoch)
	if err != nil {
		return nil, fmt.Errorf("monoton: %w", err)
	}
	b, err := bus.NewBus(bus.Next(m.Next))
	if err != nil {
		return nil, fmt.Errorf("bus: %w", err)
	}
	b.RegisterTopics(TopicFixPublished, TopicFixFiltered, TopicSessionState)
	e := &Bus{b: b, log: logger}
	e.log.Context = log.NewContext(nil).Str("module", "events").Value()
	return e, nil
}

func (e *Bus) Emit(ctx context.Context, topic string, data interface{}) error {
	return e.b.Emit(ctx, topic, data)
}

// Subscribe registers fn for every topic matching the regular expression
// matcher. Handlers run synchronously on the emitting goroutine and must not
// block.
func (e *Bus) Subscribe(key, matcher string, fn func(ctx context.Context, topic string, data interface{})) {
	e.b.RegisterHandler(key, bus.Handler{
		Matcher: matcher,
		Handle: func(ctx context.Context, ev bus.Event) {
			e.log.Trace().Str("topic", ev.Topic).Str("id", ev.ID).Str("handler", key).Msg("dispatch")
			fn(ctx, ev.Topic, ev.Data)
		},
	})
}

func (e *Bus) Unsubscribe(key string) {
	e.b.DeregisterHandler(key)
}
