// Package sink republishes forwarded fixes to message brokers.
package sink

import (
	"context"
	"encoding/json"

	"github.com/cradlepoint/sdk-samples-sub000/internal/events"
)

// Publisher delivers one encoded fix event.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
	Close()
}

func Encode(ev events.FixEvent) ([]byte, error) {
	return json.Marshal(ev)
}
