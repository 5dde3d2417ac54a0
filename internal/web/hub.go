package web

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Hub fans encoded fixes out to stream subscribers. A new subscriber first
// receives the latest message.
type Hub struct {
	mu   sync.Mutex
	list map[*Subscriber]bool
	data []byte
}

func NewHub() *Hub {
	return &Hub{list: make(map[*Subscriber]bool)}
}

type Subscriber struct {
	id      string
	loc     chan []byte
	skipped uint64
	pushed  uint64
}

func newSubscriber(queue int) *Subscriber {
	return &Subscriber{id: uuid.NewString(), loc: make(chan []byte, queue)}
}

// Push never blocks; a full queue drops the message.
func (s *Subscriber) Push(d []byte) {
	select {
	case s.loc <- d:
		atomic.AddUint64(&s.pushed, 1)
	default:
		atomic.AddUint64(&s.skipped, 1)
	}
}

func (s *Subscriber) Skipped() uint64 { return atomic.LoadUint64(&s.skipped) }

func (h *Hub) Subscribe(queue int) *Subscriber {
	sub := newSubscriber(queue)
	h.mu.Lock()
	h.list[sub] = true
	if h.data != nil {
		sub.Push(h.data)
	}
	h.mu.Unlock()
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	delete(h.list, sub)
	h.mu.Unlock()
}

func (h *Hub) Send(d []byte) {
	h.mu.Lock()
	h.data = d
	for sub := range h.list {
		sub.Push(d)
	}
	h.mu.Unlock()
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.list)
}
