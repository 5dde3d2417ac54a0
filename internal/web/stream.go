package web

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

const streamQueue = 16

func (api *Api) stream(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		api.log.Error().Err(err).Msg("error while upgrading websocket")
		return
	}
	defer c.Close(websocket.StatusInternalError, "unhandled error")

	sub := api.hub.Subscribe(streamQueue)
	defer api.hub.Unsubscribe(sub)
	api.log.Info().Str("subscriber", sub.id).Msg("stream subscriber connected")

	// the client never sends; CloseRead reports when it goes away
	ctx := c.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			api.log.Info().Str("subscriber", sub.id).Uint64("skipped", sub.Skipped()).Msg("stream subscriber gone")
			return
		case d := <-sub.loc:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.Write(wctx, websocket.MessageText, d)
			cancel()
			if err != nil {
				api.log.Error().Err(err).Str("subscriber", sub.id).Msg("error while writing to connection")
				return
			}
		}
	}
}
