package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/fpang/artframe/internal/pipeline"
	"github.com/fpang/artframe/internal/progress"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsMessage is one frame sent to the client.
type wsMessage struct {
	Type  string           `json:"type"` // "event", "done", "error"
	RunID string           `json:"runId"`
	Event *progress.Event  `json:"event,omitempty"`
	State *pipeline.Status `json:"status,omitempty"`
	Error string           `json:"error,omitempty"`
}

// GET /api/runs/{id}/ws
//
// Pushes every event of the run as JSON, then a final "done" message with
// the run status. Only one live consumer may attach to a run.
func (s *server) handleRunWS(w http.ResponseWriter, r *http.Request, run *pipeline.Run) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	// Reads only serve to process control frames and notice a closed socket.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	write := func(m wsMessage) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(m)
	}

	events, err := run.Events(ctx)
	if err != nil {
		write(wsMessage{Type: "error", RunID: run.ID, Error: err.Error()})
		return
	}

	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				select {
				case <-run.Done():
				case <-ctx.Done():
					return
				}
				st := run.Status()
				if err := write(wsMessage{Type: "done", RunID: run.ID, State: &st}); err != nil {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := write(wsMessage{Type: "event", RunID: run.ID, Event: &ev}); err != nil {
				log.Debug().Err(err).Str("run", run.ID).Msg("WebSocket write failed")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
