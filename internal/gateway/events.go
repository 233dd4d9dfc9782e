// Live intervention feed over WebSocket.
//
// DESIGN: Subscribers get a bounded buffer; a slow consumer drops events
// rather than backpressuring the request path.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"
)

const eventWriteTimeout = 5 * time.Second

// handleEvents upgrades to WebSocket and streams intervention records as
// they happen until the client disconnects.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // same-host dashboards and CLIs
	})
	if err != nil {
		log.Debug().Err(err).Msg("event feed upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	events, cancel := g.hub.Subscribe()
	defer cancel()

	ctx := r.Context()
	// Reader goroutine notices client-side close.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case rec, ok := <-events:
			if !ok {
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, eventWriteTimeout)
			err := wsjson.Write(writeCtx, conn, rec)
			cancelWrite()
			if err != nil {
				return
			}
		case <-readDone:
			return
		case <-ctx.Done():
			return
		}
	}
}
